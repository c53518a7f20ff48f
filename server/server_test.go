package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/onnwee/livefeed-relay/testutil"
	"github.com/onnwee/livefeed-relay/tracker"
)

type followCall struct {
	feedID   string
	lastSeen int64
	silent   bool
}

type fakeTracker struct {
	mu        sync.Mutex
	state     tracker.State
	follows   []followCall
	unfollows []bool
	err       error
}

func (f *fakeTracker) Follow(ctx context.Context, feedID string, lastSeen int64, silent bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.follows = append(f.follows, followCall{feedID, lastSeen, silent})
	f.state = tracker.State{Mode: tracker.ModePolling, FeedID: feedID, LastSeen: lastSeen}
	return nil
}

func (f *fakeTracker) Unfollow(ctx context.Context, silent bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.unfollows = append(f.unfollows, silent)
	f.state = tracker.State{Mode: tracker.ModeScanning, LastSeen: tracker.Unset}
	return nil
}

func (f *fakeTracker) QueryCount(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	if f.state.Mode == tracker.ModePolling {
		return 1, nil
	}
	return 0, nil
}

func (f *fakeTracker) State(ctx context.Context) (tracker.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state, f.err
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(ctx context.Context) error { return p.err }

func newTestMux(t *testing.T, tr Tracker, token string) http.Handler {
	t.Helper()
	t.Setenv("RATE_LIMIT_ENABLED", "0")
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewMux(ctx, Deps{
		Tracker:    tr,
		Store:      testutil.SetupTestStore(t),
		Jobs:       func() []string { return []string{"poll:abc123"} },
		AdminToken: token,
	})
}

func TestHealthzOK(t *testing.T) {
	h := newTestMux(t, &fakeTracker{}, "")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body=%s", rr.Code, rr.Body.String())
	}
	if got := rr.Body.String(); got != "ok" {
		t.Fatalf("expected ok body, got %q", got)
	}
	if rr.Header().Get("X-Correlation-ID") == "" {
		t.Error("missing X-Correlation-ID header")
	}
}

func TestCorrelationIDPropagated(t *testing.T) {
	h := newTestMux(t, &fakeTracker{}, "")
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Correlation-ID", "corr-123")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if got := rr.Header().Get("X-Correlation-ID"); got != "corr-123" {
		t.Errorf("X-Correlation-ID = %q, want corr-123", got)
	}
}

func TestHealthzStoreDown(t *testing.T) {
	h := NewMux(context.Background(), Deps{Tracker: &fakeTracker{}, Store: fakePinger{err: errors.New("down")}})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestReadyz(t *testing.T) {
	tests := []struct {
		name       string
		store      Pinger
		trackerErr error
		wantStatus int
		wantCheck  string
	}{
		{name: "ready", store: fakePinger{}, wantStatus: http.StatusOK},
		{name: "database down", store: fakePinger{err: errors.New("refused")}, wantStatus: http.StatusServiceUnavailable, wantCheck: "database"},
		{name: "executor stopped", store: fakePinger{}, trackerErr: errors.New("scheduler stopped"), wantStatus: http.StatusServiceUnavailable, wantCheck: "tracker"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewMux(context.Background(), Deps{Tracker: &fakeTracker{err: tt.trackerErr}, Store: tt.store})
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			var body map[string]string
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["failed_check"] != tt.wantCheck {
				t.Errorf("failed_check = %q, want %q", body["failed_check"], tt.wantCheck)
			}
		})
	}
}

func TestStatus(t *testing.T) {
	tr := &fakeTracker{state: tracker.State{Mode: tracker.ModePolling, FeedID: "abc123", LastSeen: 110}}
	h := newTestMux(t, tr, "")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var got statusResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Mode != "polling" || got.FeedID != "abc123" || got.LastSeen == nil || *got.LastSeen != 110 {
		t.Errorf("status = %+v", got)
	}
	if len(got.Jobs) != 1 || got.Jobs[0] != "poll:abc123" {
		t.Errorf("jobs = %v", got.Jobs)
	}

	tr.state = tracker.State{Mode: tracker.ModeScanning, LastSeen: tracker.Unset}
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status", nil))
	if strings.Contains(rr.Body.String(), "last_seen") {
		t.Errorf("unset last_seen rendered: %s", rr.Body.String())
	}
}

func TestAdminFollow(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		want       *followCall
	}{
		{
			name:       "bare id",
			body:       `{"feed_id":"abc123"}`,
			wantStatus: http.StatusOK,
			want:       &followCall{feedID: "abc123", lastSeen: tracker.Unset},
		},
		{
			name:       "url with last_seen and silent",
			body:       `{"feed_id":"https://www.reddit.com/live/xyz789/","last_seen":1700000000,"silent":true}`,
			wantStatus: http.StatusOK,
			want:       &followCall{feedID: "xyz789", lastSeen: 1700000000, silent: true},
		},
		{name: "missing id", body: `{}`, wantStatus: http.StatusBadRequest},
		{name: "bad id", body: `{"feed_id":"../etc"}`, wantStatus: http.StatusBadRequest},
		{name: "negative last_seen", body: `{"feed_id":"abc","last_seen":-5}`, wantStatus: http.StatusBadRequest},
		{name: "unknown field", body: `{"feed":"abc"}`, wantStatus: http.StatusBadRequest},
		{name: "malformed", body: `{`, wantStatus: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &fakeTracker{}
			h := newTestMux(t, tr, "")
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/admin/follow", strings.NewReader(tt.body)))
			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d, body=%s", rr.Code, tt.wantStatus, rr.Body.String())
			}
			if tt.want == nil {
				if len(tr.follows) != 0 {
					t.Errorf("Follow called on rejected request: %+v", tr.follows)
				}
				return
			}
			if len(tr.follows) != 1 || tr.follows[0] != *tt.want {
				t.Errorf("follows = %+v, want %+v", tr.follows, *tt.want)
			}
		})
	}
}

func TestAdminFollowMethodNotAllowed(t *testing.T) {
	h := newTestMux(t, &fakeTracker{}, "")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/follow", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rr.Code)
	}
}

func TestAdminUnfollowAndCount(t *testing.T) {
	tr := &fakeTracker{state: tracker.State{Mode: tracker.ModePolling, FeedID: "abc123", LastSeen: 1}}
	h := newTestMux(t, tr, "")

	count := func() int {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/count", nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("count status = %d", rr.Code)
		}
		var body map[string]int
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return body["count"]
	}

	if n := count(); n != 1 {
		t.Errorf("count = %d, want 1", n)
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/admin/unfollow", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unfollow status = %d, body=%s", rr.Code, rr.Body.String())
	}
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/admin/unfollow", strings.NewReader(`{"silent":true}`)))
	if rr.Code != http.StatusOK {
		t.Fatalf("silent unfollow status = %d", rr.Code)
	}
	if len(tr.unfollows) != 2 || tr.unfollows[0] || !tr.unfollows[1] {
		t.Errorf("unfollows = %v, want [false true]", tr.unfollows)
	}
	if n := count(); n != 0 {
		t.Errorf("count = %d, want 0", n)
	}
}

func TestAdminTrackerUnavailable(t *testing.T) {
	h := newTestMux(t, &fakeTracker{err: errors.New("scheduler stopped")}, "")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/admin/follow", strings.NewReader(`{"feed_id":"abc"}`)))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rr.Code)
	}
}

func TestStartAndShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- Start(ctx, Deps{Tracker: &fakeTracker{}, Store: fakePinger{}}, "127.0.0.1:0") }()

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("server returned error: %v", err)
	}
}
