package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/onnwee/livefeed-relay/tracker"
)

// Tracker is the operator command surface of the tracking controller.
type Tracker interface {
	Follow(ctx context.Context, feedID string, lastSeen int64, silent bool) error
	Unfollow(ctx context.Context, silent bool) error
	QueryCount(ctx context.Context) (int, error)
	State(ctx context.Context) (tracker.State, error)
}

// Pinger reports whether the settings store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the HTTP API serves.
type Deps struct {
	Tracker Tracker
	Store   Pinger
	// Jobs lists the scheduler's active jobs for /status. Optional.
	Jobs       func() []string
	AdminToken string
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	tracker Tracker
	store   Pinger
	jobs    func() []string
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(deps Deps) *Handlers {
	jobs := deps.Jobs
	if jobs == nil {
		jobs = func() []string { return nil }
	}
	return &Handlers{tracker: deps.Tracker, store: deps.Store, jobs: jobs}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
