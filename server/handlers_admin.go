package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/onnwee/livefeed-relay/redditapi"
	"github.com/onnwee/livefeed-relay/telemetry"
	"github.com/onnwee/livefeed-relay/tracker"
)

var feedIDPattern = regexp.MustCompile(`^[A-Za-z0-9]+$`)

type followRequest struct {
	FeedID   string `json:"feed_id"`
	LastSeen *int64 `json:"last_seen,omitempty"`
	Silent   bool   `json:"silent"`
}

type unfollowRequest struct {
	Silent bool `json:"silent"`
}

// normalizeFeedID accepts a bare id or a live thread URL.
func normalizeFeedID(raw string) string {
	raw = strings.TrimSpace(raw)
	if id := redditapi.LiveFeedID(raw); id != "" {
		return id
	}
	return raw
}

// HandleAdminFollow switches tracking to the requested feed.
func (h *Handlers) HandleAdminFollow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req followRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body: "+err.Error())
		return
	}
	id := normalizeFeedID(req.FeedID)
	if !feedIDPattern.MatchString(id) {
		writeError(w, http.StatusBadRequest, "feed_id must be a live thread id or URL")
		return
	}
	lastSeen := tracker.Unset
	if req.LastSeen != nil {
		if *req.LastSeen < 0 {
			writeError(w, http.StatusBadRequest, "last_seen must be a unix timestamp")
			return
		}
		lastSeen = *req.LastSeen
	}

	if err := h.tracker.Follow(r.Context(), id, lastSeen, req.Silent); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	telemetry.LoggerWithCorr(r.Context()).Info("operator follow", slog.String("feed", id), slog.Int64("last_seen", lastSeen), slog.Bool("silent", req.Silent), slog.String("component", "http"))
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "feed_id": id})
}

// HandleAdminUnfollow stops tracking the current feed and resumes scanning.
func (h *Handlers) HandleAdminUnfollow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req unfollowRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body: "+err.Error())
		return
	}
	if err := h.tracker.Unfollow(r.Context(), req.Silent); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	telemetry.LoggerWithCorr(r.Context()).Info("operator unfollow", slog.Bool("silent", req.Silent), slog.String("component", "http"))
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// HandleAdminCount reports how many feeds are being polled.
func (h *Handlers) HandleAdminCount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	n, err := h.tracker.QueryCount(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

// decodeBody decodes a small JSON body; an empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && err != io.EOF {
		return err
	}
	return nil
}
