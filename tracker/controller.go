package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/onnwee/livefeed-relay/notify"
	"github.com/onnwee/livefeed-relay/schedule"
	"github.com/onnwee/livefeed-relay/telemetry"
)

const (
	defaultKnownFeeds = 256
	storeTimeout      = 5 * time.Second

	// DefaultNotifyTimeout bounds one delivery when Options.NotifyTimeout is unset.
	DefaultNotifyTimeout = 10 * time.Second
)

// Deps are the collaborators a Controller drives.
type Deps struct {
	Scheduler *schedule.Scheduler
	Fetcher   UpdateFetcher
	Lister    LiveFeedLister
	Store     SettingsStore
	Notifier  notify.Notifier
}

// Options tunes a Controller and the components it owns. NotifyTimeout
// bounds each delivery, which runs on the executor.
type Options struct {
	Sources           []string
	PollInterval      time.Duration
	ScanInterval      time.Duration
	InactivityTimeout time.Duration
	KnownFeedsSize    int
	NotifyTimeout     time.Duration
	Now               func() time.Time
}

// Controller owns the tracking state and switches between scanning and
// polling. Every exported method hands its work to the scheduler's executor,
// where all callbacks of the scanner and poller also run.
type Controller struct {
	sched    *schedule.Scheduler
	store    SettingsStore
	notifier notify.Notifier
	poller   *FeedPoller
	scanner  *SourceScanner
	known    *lru.Cache[string, struct{}]

	notifyTimeout time.Duration
	state         State
}

// NewController wires a controller. Nothing runs until Start.
func NewController(deps Deps, opts Options) (*Controller, error) {
	if deps.Scheduler == nil || deps.Fetcher == nil || deps.Lister == nil || deps.Store == nil || deps.Notifier == nil {
		return nil, errors.New("tracker: missing dependency")
	}
	if opts.KnownFeedsSize <= 0 {
		opts.KnownFeedsSize = defaultKnownFeeds
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = DefaultNotifyTimeout
	}
	known, err := lru.New[string, struct{}](opts.KnownFeedsSize)
	if err != nil {
		return nil, fmt.Errorf("known feeds cache: %w", err)
	}
	c := &Controller{
		sched:    deps.Scheduler,
		store:    deps.Store,
		notifier: deps.Notifier,
		known:    known,

		notifyTimeout: opts.NotifyTimeout,
		state:         State{Mode: ModeScanning, LastSeen: Unset},
	}
	c.poller = NewFeedPoller(deps.Scheduler, deps.Fetcher, PollerOptions{
		Interval:          opts.PollInterval,
		InactivityTimeout: opts.InactivityTimeout,
		Now:               opts.Now,
	})
	c.scanner = NewSourceScanner(deps.Scheduler, deps.Lister, ScannerOptions{
		Interval: opts.ScanInterval,
		Sources:  opts.Sources,
		Skip:     c.known.Contains,
	})
	return c, nil
}

// Start restores persisted state: a stored feed resumes polling silently from
// the stored high-water mark, otherwise scanning begins. The scheduler must be
// running.
func (c *Controller) Start(ctx context.Context) error {
	feedID, hasFeed, err := c.store.CurrentFeed(ctx)
	if err != nil {
		return fmt.Errorf("load current feed: %w", err)
	}
	lastSeen, hasLast, err := c.store.LastPost(ctx)
	if err != nil {
		return fmt.Errorf("load last post: %w", err)
	}
	if !hasLast {
		lastSeen = Unset
	}
	known, err := c.store.KnownFeeds(ctx)
	if err != nil {
		return fmt.Errorf("load known feeds: %w", err)
	}
	for _, id := range known {
		c.known.Add(id, struct{}{})
	}

	return c.sched.Do(ctx, func() {
		if hasFeed && feedID != "" {
			slog.Info("resuming persisted feed", slog.String("feed", feedID), slog.Int64("last_seen", lastSeen), slog.String("component", "controller"))
			c.follow(feedID, lastSeen, true)
			return
		}
		slog.Info("no persisted feed; scanning", slog.String("component", "controller"))
		c.beginScanning()
	})
}

// Follow switches to polling feedID. Following the feed already being polled
// restarts its poller; there is never more than one.
func (c *Controller) Follow(ctx context.Context, feedID string, lastSeen int64, silent bool) error {
	if feedID == "" {
		return errors.New("feed id empty")
	}
	return c.sched.Do(ctx, func() { c.follow(feedID, lastSeen, silent) })
}

// Unfollow stops polling and goes back to scanning. It does nothing while
// already scanning.
func (c *Controller) Unfollow(ctx context.Context, silent bool) error {
	return c.sched.Do(ctx, func() {
		if c.state.Mode != ModePolling {
			slog.Debug("unfollow while scanning ignored", slog.String("component", "controller"))
			return
		}
		c.unfollow(silent, notify.OperatorUnfollowed())
	})
}

// QueryCount returns the number of feeds being polled (0 or 1).
func (c *Controller) QueryCount(ctx context.Context) (int, error) {
	var n int
	err := c.sched.Do(ctx, func() {
		if c.state.Mode == ModePolling {
			n = 1
		}
	})
	return n, err
}

// State returns a snapshot of the tracking state.
func (c *Controller) State(ctx context.Context) (State, error) {
	var st State
	err := c.sched.Do(ctx, func() { st = c.state })
	return st, err
}

// Shutdown stops the active component and writes a final checkpoint. It
// works whether or not the scheduler is still running.
func (c *Controller) Shutdown(ctx context.Context) error {
	final := func() {
		c.poller.cancel()
		c.scanner.cancel()
		c.persistFeed(c.state.FeedID)
		if c.state.Mode == ModePolling {
			c.persistLastSeen(c.state.LastSeen)
		}
	}
	if err := c.sched.Do(ctx, final); err != nil {
		if errors.Is(err, schedule.ErrStopped) {
			final()
			return nil
		}
		return err
	}
	return nil
}

func (c *Controller) follow(feedID string, lastSeen int64, silent bool) {
	c.poller.cancel()
	c.scanner.cancel()
	c.poller.Start(feedID, lastSeen, c.handleUpdate, c.handleTimeout)

	c.state = State{Mode: ModePolling, FeedID: feedID, LastSeen: lastSeen}
	c.persistFeed(feedID)
	c.persistLastSeen(lastSeen)
	c.rememberFeed(feedID)
	telemetry.SetTrackingMode(true)
	slog.Info("following live feed", slog.String("feed", feedID), slog.Int64("last_seen", lastSeen), slog.Bool("silent", silent), slog.String("component", "controller"))

	if !silent {
		c.send(notify.Started(feedID))
	}
}

func (c *Controller) unfollow(silent bool, announce notify.Message) {
	c.poller.cancel()
	prev := c.state.FeedID
	c.beginScanning()
	c.persistFeed("")
	slog.Info("unfollowed live feed", slog.String("feed", prev), slog.Bool("silent", silent), slog.String("component", "controller"))

	if !silent {
		c.send(announce)
	}
}

func (c *Controller) beginScanning() {
	c.scanner.Start(c.handleFound)
	c.state = State{Mode: ModeScanning, LastSeen: Unset}
	telemetry.SetTrackingMode(false)
}

func (c *Controller) handleUpdate(u Update) {
	feedID := c.state.FeedID
	c.send(notify.Update(feedID, u.Author, u.Body))
	telemetry.UpdatesForwarded.Inc()

	if u.CreatedAt > c.state.LastSeen {
		c.state.LastSeen = u.CreatedAt
	}
	c.persistLastSeen(c.state.LastSeen)
	telemetry.SetLastSeen(c.state.LastSeen)
}

func (c *Controller) handleTimeout() {
	telemetry.InactivityTimeouts.Inc()
	c.unfollow(false, notify.Stopped())
}

func (c *Controller) handleFound(feedID string) {
	c.follow(feedID, Unset, false)
}

func (c *Controller) rememberFeed(feedID string) {
	c.known.Add(feedID, struct{}{})
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := c.store.AddKnownFeed(ctx, feedID); err != nil {
		telemetry.PersistFailures.Inc()
		slog.Warn("persist known feed failed", slog.String("feed", feedID), slog.Any("err", err), slog.String("component", "controller"))
	}
}

func (c *Controller) persistFeed(feedID string) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := c.store.SetCurrentFeed(ctx, feedID); err != nil {
		telemetry.PersistFailures.Inc()
		slog.Error("persist current feed failed", slog.String("feed", feedID), slog.Any("err", err), slog.String("component", "controller"))
	}
}

func (c *Controller) persistLastSeen(ts int64) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := c.store.SetLastPost(ctx, ts); err != nil {
		telemetry.PersistFailures.Inc()
		slog.Error("persist last post failed", slog.Int64("last_seen", ts), slog.Any("err", err), slog.String("component", "controller"))
	}
}

func (c *Controller) send(m notify.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), c.notifyTimeout)
	defer cancel()
	if err := c.notifier.Send(ctx, m); err != nil {
		telemetry.DeliveryFailures.Inc()
		slog.Warn("notify failed", slog.Any("err", err), slog.String("class", Classify(err).String()), slog.String("component", "controller"))
	}
}
