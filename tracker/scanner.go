package tracker

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/livefeed-relay/schedule"
	"github.com/onnwee/livefeed-relay/telemetry"
)

// DefaultScanInterval is how often the watched sources are checked.
const DefaultScanInterval = 30 * time.Second

// ScannerOptions tunes a SourceScanner.
type ScannerOptions struct {
	Interval time.Duration
	Sources  []string
	// Skip reports feeds that must not be reported again, e.g. ones already
	// followed to their end.
	Skip func(feedID string) bool
}

// SourceScanner looks for a newly posted live feed in the watched sources and
// reports at most one discovery per Start.
type SourceScanner struct {
	sched  *schedule.Scheduler
	lister LiveFeedLister
	opts   ScannerOptions

	job     *schedule.Job
	active  bool
	onFound func(feedID string)
}

// NewSourceScanner returns an idle scanner.
func NewSourceScanner(sched *schedule.Scheduler, lister LiveFeedLister, opts ScannerOptions) *SourceScanner {
	if opts.Interval <= 0 {
		opts.Interval = DefaultScanInterval
	}
	if opts.Skip == nil {
		opts.Skip = func(string) bool { return false }
	}
	return &SourceScanner{sched: sched, lister: lister, opts: opts}
}

// Start begins scanning, replacing any previous scan.
func (s *SourceScanner) Start(onFound func(feedID string)) {
	s.begin(onFound)
	s.job = s.sched.Every("scan", s.opts.Interval, s.tick)
	slog.Info("source scanner started", slog.Any("sources", s.opts.Sources), slog.Duration("interval", s.opts.Interval), slog.String("component", "scanner"))
}

// Stop cancels scanning and returns once no tick can invoke onFound any more.
// It must not be called from the onFound callback.
func (s *SourceScanner) Stop() {
	if err := s.sched.Do(context.Background(), s.cancel); err != nil {
		s.cancel()
	}
}

func (s *SourceScanner) begin(onFound func(feedID string)) {
	s.cancel()
	s.active = true
	s.onFound = onFound
}

func (s *SourceScanner) cancel() {
	if s.job != nil {
		s.job.Cancel()
		s.job = nil
	}
	if s.active {
		slog.Info("source scanner stopped", slog.String("component", "scanner"))
	}
	s.active = false
}

func (s *SourceScanner) tick(ctx context.Context) {
	if !s.active {
		return
	}
	telemetry.ScanTicks.Inc()
	ctx = telemetry.WithCorrelation(ctx, uuid.NewString())
	log := telemetry.LoggerWithCorr(ctx)
	for _, src := range s.opts.Sources {
		if !s.active || ctx.Err() != nil {
			return
		}
		res, err := s.lister.LatestLiveFeed(ctx, src)
		if err != nil {
			err = &FetchError{Op: "scan source", Target: src, Err: err}
			telemetry.ScanFailures.Inc()
			log.Warn("scan failed", slog.String("source", src), slog.Any("err", err), slog.String("class", Classify(err).String()), slog.String("component", "scanner"))
			continue
		}
		if !res.Found {
			continue
		}
		if s.opts.Skip(res.FeedID) {
			log.Debug("scan found known feed", slog.String("source", src), slog.String("feed", res.FeedID), slog.String("component", "scanner"))
			continue
		}
		log.Info("live feed discovered", slog.String("source", src), slog.String("feed", res.FeedID), slog.String("component", "scanner"))
		telemetry.FeedsDiscovered.Inc()
		onFound := s.onFound
		s.cancel()
		onFound(res.FeedID)
		return
	}
}
