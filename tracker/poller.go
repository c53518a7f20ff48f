package tracker

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/livefeed-relay/schedule"
	"github.com/onnwee/livefeed-relay/telemetry"
)

// Defaults for PollerOptions.
const (
	DefaultPollInterval      = 2 * time.Second
	DefaultInactivityTimeout = 6 * time.Hour
)

// PollerOptions tunes a FeedPoller.
type PollerOptions struct {
	Interval          time.Duration
	InactivityTimeout time.Duration
	Now               func() time.Time
}

func (o *PollerOptions) defaults() {
	if o.Interval <= 0 {
		o.Interval = DefaultPollInterval
	}
	if o.InactivityTimeout <= 0 {
		o.InactivityTimeout = DefaultInactivityTimeout
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// FeedPoller polls one live feed and emits its new updates.
//
// Start and the tick run on the scheduler's executor; Stop may be called from
// any other goroutine.
type FeedPoller struct {
	sched   *schedule.Scheduler
	fetcher UpdateFetcher
	opts    PollerOptions

	job       *schedule.Job
	active    bool
	feedID    string
	lastSeen  int64
	startedAt time.Time
	onUpdate  func(Update)
	onTimeout func()
}

// NewFeedPoller returns an idle poller.
func NewFeedPoller(sched *schedule.Scheduler, fetcher UpdateFetcher, opts PollerOptions) *FeedPoller {
	opts.defaults()
	return &FeedPoller{sched: sched, fetcher: fetcher, opts: opts}
}

// Start begins polling feedID, replacing any previous poll. lastSeen may be
// Unset, in which case only the newest update is emitted on the first
// successful fetch.
func (p *FeedPoller) Start(feedID string, lastSeen int64, onUpdate func(Update), onTimeout func()) {
	p.begin(feedID, lastSeen, onUpdate, onTimeout)
	p.job = p.sched.Every("poll:"+feedID, p.opts.Interval, p.tick)
	slog.Info("feed poller started", slog.String("feed", feedID), slog.Int64("last_seen", lastSeen), slog.Duration("interval", p.opts.Interval), slog.String("component", "poller"))
}

// Stop cancels polling and returns once no tick can invoke a callback any
// more. It must not be called from a poller callback.
func (p *FeedPoller) Stop() {
	if err := p.sched.Do(context.Background(), p.cancel); err != nil {
		p.cancel()
	}
}

func (p *FeedPoller) begin(feedID string, lastSeen int64, onUpdate func(Update), onTimeout func()) {
	p.cancel()
	p.active = true
	p.feedID = feedID
	p.lastSeen = lastSeen
	p.startedAt = p.opts.Now()
	p.onUpdate = onUpdate
	p.onTimeout = onTimeout
}

// cancel is the executor-side stop.
func (p *FeedPoller) cancel() {
	if p.job != nil {
		p.job.Cancel()
		p.job = nil
	}
	if p.active {
		slog.Info("feed poller stopped", slog.String("feed", p.feedID), slog.String("component", "poller"))
	}
	p.active = false
}

func (p *FeedPoller) tick(ctx context.Context) {
	if !p.active {
		return
	}
	telemetry.PollTicks.Inc()
	feedID := p.feedID

	ctx = telemetry.WithCorrelation(ctx, uuid.NewString())
	ctx, span := telemetry.StartSpan(ctx, "tracker", "poll", telemetry.FeedAttr("feed", feedID))
	defer span.End()

	updates, err := p.fetcher.FetchUpdates(ctx, feedID)
	if err != nil {
		err = &FetchError{Op: "fetch updates", Target: feedID, Err: err}
		telemetry.RecordError(span, err)
		telemetry.FetchFailures.Inc()
		telemetry.LoggerWithCorr(ctx).Warn("poll tick skipped", slog.String("feed", feedID), slog.Any("err", err), slog.String("class", Classify(err).String()), slog.String("component", "poller"))
		return
	}
	fresh := newerThan(updates, p.lastSeen)
	if len(fresh) == 0 {
		p.checkInactivity()
		return
	}
	if p.lastSeen == Unset {
		p.emit(mostRecent(fresh))
		return
	}
	sort.SliceStable(fresh, func(i, j int) bool { return fresh[i].CreatedAt < fresh[j].CreatedAt })
	for _, u := range fresh {
		if !p.active {
			return
		}
		p.emit(u)
	}
}

func (p *FeedPoller) emit(u Update) {
	p.lastSeen = u.CreatedAt
	p.onUpdate(u)
}

func (p *FeedPoller) checkInactivity() {
	ref := p.startedAt
	if p.lastSeen != Unset {
		ref = time.Unix(p.lastSeen, 0)
	}
	idle := p.opts.Now().Sub(ref)
	if idle <= p.opts.InactivityTimeout {
		return
	}
	slog.Info("feed inactive; giving up", slog.String("feed", p.feedID), slog.Duration("idle", idle.Truncate(time.Second)), slog.String("component", "poller"))
	onTimeout := p.onTimeout
	p.cancel()
	onTimeout()
}

// newerThan keeps updates created after lastSeen, in source order.
func newerThan(updates []Update, lastSeen int64) []Update {
	out := make([]Update, 0, len(updates))
	for _, u := range updates {
		if u.CreatedAt > lastSeen {
			out = append(out, u)
		}
	}
	return out
}

// mostRecent returns the update with the greatest CreatedAt; the first one
// in source order wins ties.
func mostRecent(updates []Update) Update {
	best := updates[0]
	for _, u := range updates[1:] {
		if u.CreatedAt > best.CreatedAt {
			best = u
		}
	}
	return best
}
