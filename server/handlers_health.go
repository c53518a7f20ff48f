package server

import (
	"context"
	"net/http"
	"time"
)

const probeTimeout = 2 * time.Second

// HandleHealthz responds to liveness probe requests by checking database connectivity.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz responds to readiness probe requests: the store must answer and
// the tracker's executor must be accepting work.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
	defer cancel()

	checks := []struct {
		name string
		fn   func() error
	}{
		{"database", func() error { return h.store.Ping(ctx) }},
		{"tracker", func() error {
			_, err := h.tracker.State(ctx)
			return err
		}},
	}

	for _, check := range checks {
		if err := check.fn(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
				"error":        err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type statusResponse struct {
	Mode     string   `json:"mode"`
	FeedID   string   `json:"feed_id,omitempty"`
	LastSeen *int64   `json:"last_seen,omitempty"`
	Jobs     []string `json:"jobs"`
}

// HandleStatus reports the tracking state and the scheduler's jobs.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
	defer cancel()
	st, err := h.tracker.State(ctx)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	resp := statusResponse{Mode: st.Mode.String(), FeedID: st.FeedID, Jobs: h.jobs()}
	if st.LastSeen >= 0 {
		ls := st.LastSeen
		resp.LastSeen = &ls
	}
	if resp.Jobs == nil {
		resp.Jobs = []string{}
	}
	writeJSON(w, http.StatusOK, resp)
}
