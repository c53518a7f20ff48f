// Package tracker follows a Reddit live thread and relays its updates.
//
// A Controller owns the tracking state and alternates between two mutually
// exclusive components:
//   - SourceScanner: periodically checks the watched subreddits for a newly
//     posted live thread and reports the first one it finds.
//   - FeedPoller: polls the followed thread every few seconds, forwards
//     updates newer than the last seen one in chronological order, and
//     reports when the thread has gone quiet for too long.
//
// All transitions and component callbacks run on the process scheduler's
// executor goroutine (see package schedule), which makes the Controller the
// single writer of tracking state.
package tracker

import (
	"context"
	"fmt"
)

// Unset marks a lastSeen value that has never been set.
const Unset int64 = -1

// Update is one entry of a live feed.
type Update struct {
	Author    string
	Body      string
	CreatedAt int64 // unix seconds
}

// Mode is the controller's tracking mode.
type Mode int

const (
	// ModeScanning looks for a new live feed in the watched sources.
	ModeScanning Mode = iota
	// ModePolling follows a single live feed.
	ModePolling
)

func (m Mode) String() string {
	switch m {
	case ModeScanning:
		return "scanning"
	case ModePolling:
		return "polling"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// State is a snapshot of what is being tracked. FeedID is non-empty exactly
// when Mode is ModePolling.
type State struct {
	Mode     Mode
	FeedID   string
	LastSeen int64
}

// ScanResult is the outcome of one source query.
type ScanResult struct {
	Found  bool
	FeedID string
	Source string
}

// UpdateFetcher retrieves the current updates of a live feed in source order.
type UpdateFetcher interface {
	FetchUpdates(ctx context.Context, feedID string) ([]Update, error)
}

// LiveFeedLister reports the newest live feed referenced by a source.
type LiveFeedLister interface {
	LatestLiveFeed(ctx context.Context, source string) (ScanResult, error)
}

// SettingsStore persists the tracked feed and its high-water mark.
type SettingsStore interface {
	CurrentFeed(ctx context.Context) (string, bool, error)
	LastPost(ctx context.Context) (int64, bool, error)
	// SetCurrentFeed stores id; an empty id clears it.
	SetCurrentFeed(ctx context.Context, id string) error
	// SetLastPost stores ts; Unset clears it.
	SetLastPost(ctx context.Context, ts int64) error
	AddKnownFeed(ctx context.Context, id string) error
	KnownFeeds(ctx context.Context) ([]string, error)
}
