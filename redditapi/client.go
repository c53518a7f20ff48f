// Package redditapi contains minimal helpers to read Reddit live threads and
// subreddit listings over the public JSON API.
package redditapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"github.com/onnwee/livefeed-relay/telemetry"
	"github.com/onnwee/livefeed-relay/tracker"
)

const (
	// DefaultBaseURL serves unauthenticated requests.
	DefaultBaseURL = "https://www.reddit.com"
	// OAuthBaseURL serves requests carrying an app-only bearer token.
	OAuthBaseURL = "https://oauth.reddit.com"
	// DefaultUserAgent identifies the bot; Reddit throttles generic agents.
	DefaultUserAgent = "livefeed-relay/1.0 (live thread relay)"

	liveUpdateLimit = 10
)

var liveLinkPattern = regexp.MustCompile(`(?i)reddit\.com/live/([a-z0-9]+)`)

// StatusError is returned for non-200 responses.
type StatusError struct {
	StatusCode int
	Status     string
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("reddit GET %s: %s", e.URL, e.Status)
}

// Client reads live threads and subreddit listings.
type Client struct {
	BaseURL    string
	UserAgent  string
	HTTPClient *http.Client
}

// NewHTTPClient returns a client with separate connect and read budgets so a
// stalled remote cannot hold a tick for long.
func NewHTTPClient(connectTimeout, readTimeout time.Duration) *http.Client {
	dialer := &net.Dialer{Timeout: connectTimeout, KeepAlive: 30 * time.Second}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = dialer.DialContext
	transport.TLSHandshakeTimeout = connectTimeout
	transport.ResponseHeaderTimeout = readTimeout
	return &http.Client{Transport: transport, Timeout: connectTimeout + readTimeout}
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) baseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return DefaultBaseURL
}

func (c *Client) userAgent() string {
	if c.UserAgent != "" {
		return c.UserAgent
	}
	return DefaultUserAgent
}

type listing struct {
	Data struct {
		Children []struct {
			Kind string          `json:"kind"`
			Data json.RawMessage `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type liveUpdateData struct {
	Author     string  `json:"author"`
	Body       string  `json:"body"`
	CreatedUTC float64 `json:"created_utc"`
}

type postData struct {
	URL      string `json:"url"`
	Selftext string `json:"selftext"`
	Title    string `json:"title"`
}

// FetchUpdates returns the newest updates of a live thread in the order
// Reddit lists them.
func (c *Client) FetchUpdates(ctx context.Context, feedID string) ([]tracker.Update, error) {
	if feedID == "" {
		return nil, errors.New("feed id empty")
	}
	q := url.Values{}
	q.Set("limit", strconv.Itoa(liveUpdateLimit))
	var body listing
	if err := c.getJSON(ctx, "/live/"+url.PathEscape(feedID)+".json", q, &body); err != nil {
		return nil, err
	}
	out := make([]tracker.Update, 0, len(body.Data.Children))
	for _, child := range body.Data.Children {
		var d liveUpdateData
		if err := json.Unmarshal(child.Data, &d); err != nil {
			return nil, fmt.Errorf("decode live update: %w", err)
		}
		out = append(out, tracker.Update{Author: d.Author, Body: d.Body, CreatedAt: int64(d.CreatedUTC)})
	}
	return out, nil
}

// LatestLiveFeed inspects the newest post of a subreddit and reports the live
// thread it links to, if any.
func (c *Client) LatestLiveFeed(ctx context.Context, subreddit string) (tracker.ScanResult, error) {
	res := tracker.ScanResult{Source: subreddit}
	if subreddit == "" {
		return res, errors.New("subreddit empty")
	}
	q := url.Values{}
	q.Set("limit", "1")
	var body listing
	if err := c.getJSON(ctx, "/r/"+url.PathEscape(subreddit)+"/new.json", q, &body); err != nil {
		return res, err
	}
	if len(body.Data.Children) == 0 {
		return res, nil
	}
	var d postData
	if err := json.Unmarshal(body.Data.Children[0].Data, &d); err != nil {
		return res, fmt.Errorf("decode post: %w", err)
	}
	if id := LiveFeedID(d.URL); id != "" {
		res.Found, res.FeedID = true, id
		return res, nil
	}
	if id := LiveFeedID(d.Selftext); id != "" {
		res.Found, res.FeedID = true, id
	}
	return res, nil
}

// LiveFeedID extracts a live thread id from text containing a reddit.com/live link.
func LiveFeedID(text string) string {
	m := liveLinkPattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[1]
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, out any) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "redditapi", "GET "+path, telemetry.FeedAttr("path", path))
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()

	u := c.baseURL() + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", c.userAgent())
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache")

	var resp *http.Response
	telemetry.TimeFunc(telemetry.FetchDuration, func() { resp, err = c.http().Do(req) })
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	telemetry.SetSpanHTTPStatus(span, resp.StatusCode)
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return &StatusError{StatusCode: resp.StatusCode, Status: resp.Status, URL: u}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
