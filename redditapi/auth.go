package redditapi

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// TokenURL is Reddit's OAuth token endpoint.
const TokenURL = "https://www.reddit.com/api/v1/access_token"

type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Header.Set("User-Agent", t.userAgent)
	return t.base.RoundTrip(r)
}

// NewAppOnlyHTTPClient wraps base with Reddit's application-only OAuth
// (client credentials grant). Tokens are fetched lazily and refreshed when
// they expire. Requests made with it must go to OAuthBaseURL.
func NewAppOnlyHTTPClient(ctx context.Context, clientID, clientSecret, tokenURL, userAgent string, base *http.Client) *http.Client {
	if tokenURL == "" {
		tokenURL = TokenURL
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	rt := base.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	tokenHTTP := &http.Client{
		Transport: &userAgentTransport{base: rt, userAgent: userAgent},
		Timeout:   base.Timeout,
	}
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	c := cfg.Client(context.WithValue(ctx, oauth2.HTTPClient, tokenHTTP))
	c.Timeout = base.Timeout
	return c
}
