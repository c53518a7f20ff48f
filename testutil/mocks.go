package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// LiveUpdate is one entry served by MockLiveThreadResponse.
type LiveUpdate struct {
	Author     string
	Body       string
	CreatedUTC int64
}

// MockRedditServer creates a test server that mocks Reddit JSON API responses
type MockRedditServer struct {
	*httptest.Server

	mu       sync.Mutex
	Handlers map[string]http.HandlerFunc
	hits     map[string]int
	agents   []string
}

// NewMockRedditServer creates a new mock Reddit API server
func NewMockRedditServer(t *testing.T) *MockRedditServer {
	t.Helper()
	m := &MockRedditServer{
		Handlers: make(map[string]http.HandlerFunc),
		hits:     make(map[string]int),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path
		m.mu.Lock()
		m.hits[key]++
		m.agents = append(m.agents, r.Header.Get("User-Agent"))
		handler, ok := m.Handlers[key]
		m.mu.Unlock()
		if ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// Handle registers a handler for an exact path.
func (m *MockRedditServer) Handle(path string, h http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Handlers[path] = h
}

// Hits returns how many requests reached path.
func (m *MockRedditServer) Hits(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hits[path]
}

// UserAgents returns the User-Agent header of every request so far.
func (m *MockRedditServer) UserAgents() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.agents...)
}

// MockLiveThreadResponse serves /live/{id}.json with the given updates, in order.
func (m *MockRedditServer) MockLiveThreadResponse(id string, updates []LiveUpdate) {
	m.Handle("/live/"+id+".json", func(w http.ResponseWriter, r *http.Request) {
		children := make([]map[string]interface{}, 0, len(updates))
		for _, u := range updates {
			children = append(children, map[string]interface{}{
				"kind": "LiveUpdate",
				"data": map[string]interface{}{
					"author":      u.Author,
					"body":        u.Body,
					"created_utc": float64(u.CreatedUTC),
				},
			})
		}
		writeListing(w, children)
	})
}

// MockSubredditNewResponse serves /r/{sub}/new.json whose newest post links to postURL.
// An empty postURL serves an empty listing.
func (m *MockRedditServer) MockSubredditNewResponse(sub, postURL string) {
	m.Handle("/r/"+sub+"/new.json", func(w http.ResponseWriter, r *http.Request) {
		children := []map[string]interface{}{}
		if postURL != "" {
			children = append(children, map[string]interface{}{
				"kind": "t3",
				"data": map[string]interface{}{
					"title":    "Live thread",
					"url":      postURL,
					"selftext": "",
				},
			})
		}
		writeListing(w, children)
	})
}

// MockStatus makes path answer with a bare status code.
func (m *MockRedditServer) MockStatus(path string, status int) {
	m.Handle(path, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	})
}

// MockOAuthTokenResponse adds a handler for the OAuth token endpoint
func (m *MockRedditServer) MockOAuthTokenResponse(accessToken string, expiresIn int) {
	m.Handle("/api/v1/access_token", func(w http.ResponseWriter, r *http.Request) {
		response := map[string]interface{}{
			"access_token": accessToken,
			"expires_in":   expiresIn,
			"token_type":   "bearer",
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	})
}

func writeListing(w http.ResponseWriter, children []map[string]interface{}) {
	response := map[string]interface{}{
		"kind": "Listing",
		"data": map[string]interface{}{
			"children": children,
		},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
}
