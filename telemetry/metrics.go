// Package telemetry provides Prometheus metrics, OpenTelemetry tracing and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	ScanTicks          prometheus.Counter
	ScanFailures       prometheus.Counter
	FeedsDiscovered    prometheus.Counter
	PollTicks          prometheus.Counter
	FetchFailures      prometheus.Counter
	UpdatesForwarded   prometheus.Counter
	DeliveryFailures   prometheus.Counter
	InactivityTimeouts prometheus.Counter
	PersistFailures    prometheus.Counter

	// Histograms (seconds)
	FetchDuration prometheus.Observer

	// Gauges
	TrackingModeGauge prometheus.Gauge // 1=polling,0=scanning
	LastSeenGauge     prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		ScanTicks = promauto.NewCounter(prometheus.CounterOpts{Name: "livefeed_scan_ticks_total", Help: "Number of source scan cycles"})
		ScanFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "livefeed_scan_failures_total", Help: "Number of failed source queries"})
		FeedsDiscovered = promauto.NewCounter(prometheus.CounterOpts{Name: "livefeed_feeds_discovered_total", Help: "Number of live feeds discovered by the scanner"})
		PollTicks = promauto.NewCounter(prometheus.CounterOpts{Name: "livefeed_poll_ticks_total", Help: "Number of feed poll cycles"})
		FetchFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "livefeed_fetch_failures_total", Help: "Number of failed feed update fetches"})
		UpdatesForwarded = promauto.NewCounter(prometheus.CounterOpts{Name: "livefeed_updates_forwarded_total", Help: "Number of live updates forwarded to the notifier"})
		DeliveryFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "livefeed_delivery_failures_total", Help: "Number of notifier sends that failed"})
		InactivityTimeouts = promauto.NewCounter(prometheus.CounterOpts{Name: "livefeed_inactivity_timeouts_total", Help: "Number of feeds dropped for inactivity"})
		PersistFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "livefeed_persist_failures_total", Help: "Number of settings writes that failed"})
		FetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "livefeed_fetch_duration_seconds", Help: "Source API request duration seconds", Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4}})
		TrackingModeGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "livefeed_tracking_mode", Help: "Tracking mode polling=1 scanning=0"})
		LastSeenGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "livefeed_last_seen_timestamp", Help: "Creation time (unix seconds) of the last forwarded update"})
	})
}

// SetTrackingMode sets the mode gauge to 1 while polling else 0.
func SetTrackingMode(polling bool) {
	if TrackingModeGauge == nil {
		return
	}
	if polling {
		TrackingModeGauge.Set(1)
	} else {
		TrackingModeGauge.Set(0)
	}
}

// SetLastSeen records the high-water mark of forwarded updates.
func SetLastSeen(ts int64) {
	if LastSeenGauge != nil {
		LastSeenGauge.Set(float64(ts))
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
