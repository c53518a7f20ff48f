// Command livefeed-relay watches subreddits for newly posted live threads,
// follows the newest one, and relays its updates to chat destinations.
// It:
//   - Loads configuration and initializes structured logging.
//   - Opens the settings database (sqlite by default, Postgres by URL) and runs
//     idempotent migrations.
//   - Builds the notification sinks (Telegram, Twitch chat, or a log-only fallback).
//   - Starts the scheduler and the tracking controller, resuming a persisted feed.
//   - Exposes an HTTP server with /healthz, /readyz, /status, /metrics and the
//     operator endpoints under /admin/.
//
// Shutdown is graceful on SIGINT/SIGTERM: the controller checkpoints its state
// before the process exits.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/livefeed-relay/config"
	"github.com/onnwee/livefeed-relay/db"
	"github.com/onnwee/livefeed-relay/notify"
	"github.com/onnwee/livefeed-relay/redditapi"
	"github.com/onnwee/livefeed-relay/schedule"
	"github.com/onnwee/livefeed-relay/server"
	"github.com/onnwee/livefeed-relay/telemetry"
	"github.com/onnwee/livefeed-relay/tracker"
)

const serviceName = "livefeed-relay"

var version = "dev"

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load(".env")

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))

	cfg, err := config.Load()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		slog.Error("configuration error", slog.Any("err", err), slog.String("class", tracker.Classify(err).String()))
		os.Exit(1)
	}

	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdownTracing, err := telemetry.InitTracing(serviceName, version)
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdownTracing()

	database, driver, err := db.Open(cfg.DBDsn)
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()
	migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), 30*time.Second)
	err = db.Migrate(migrateCtx, database)
	cancelMigrate()
	if err != nil {
		slog.Error("failed to migrate db", slog.Any("err", err), slog.String("component", "db_migrate"))
		os.Exit(1)
	}
	slog.Info("database ready", slog.String("driver", driver), slog.String("component", "db_migrate"))
	store := db.NewStore(database, driver)

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	notifier, err := buildNotifier(ctx, cfg)
	if err != nil {
		slog.Error("notifier setup failed", slog.Any("err", err))
		os.Exit(1)
	}

	httpClient := redditapi.NewHTTPClient(cfg.HTTPTimeout, cfg.HTTPTimeout)
	if cfg.AppOnlyAuth() {
		httpClient = redditapi.NewAppOnlyHTTPClient(ctx, cfg.RedditClientID, cfg.RedditClientSecret, redditapi.TokenURL, cfg.RedditUserAgent, httpClient)
		slog.Info("reddit app-only auth enabled", slog.String("base_url", cfg.RedditBaseURL))
	}
	reddit := &redditapi.Client{BaseURL: cfg.RedditBaseURL, UserAgent: cfg.RedditUserAgent, HTTPClient: httpClient}

	sched := schedule.New()
	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		sched.Run(ctx)
	}()

	ctrl, err := tracker.NewController(tracker.Deps{
		Scheduler: sched,
		Fetcher:   reddit,
		Lister:    reddit,
		Store:     store,
		Notifier:  notifier,
	}, tracker.Options{
		Sources:           cfg.Subreddits,
		PollInterval:      cfg.PollInterval,
		ScanInterval:      cfg.ScanInterval,
		InactivityTimeout: cfg.InactivityTimeout,
		KnownFeedsSize:    cfg.KnownFeedsCache,
		NotifyTimeout:     cfg.NotifyTimeout,
	})
	if err != nil {
		slog.Error("tracker setup failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := ctrl.Start(ctx); err != nil {
		slog.Error("tracker start failed", slog.Any("err", err))
		os.Exit(1)
	}
	slog.Info("tracker started", slog.Any("subreddits", cfg.Subreddits), slog.Duration("poll_interval", cfg.PollInterval), slog.Duration("scan_interval", cfg.ScanInterval), slog.Duration("inactivity_timeout", cfg.InactivityTimeout))

	go func() {
		if err := server.Start(ctx, server.Deps{
			Tracker:    ctrl,
			Store:      store,
			Jobs:       sched.Jobs,
			AdminToken: cfg.AdminToken,
		}, cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Block until shutdown signal
	<-ctx.Done()
	slog.Info("shutting down")
	<-schedDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := ctrl.Shutdown(shutdownCtx); err != nil {
		slog.Error("tracker shutdown failed", slog.Any("err", err))
	}
}

// buildNotifier assembles the configured sinks. With none configured, messages
// are only logged.
func buildNotifier(ctx context.Context, cfg *config.Config) (notify.Notifier, error) {
	var sinks notify.Multi
	if cfg.TelegramReady() {
		ids, err := notify.ParseChatIDs(cfg.TelegramChatIDs)
		if err != nil {
			return nil, err
		}
		tg, err := notify.NewTelegram(cfg.TelegramBotToken, ids, "", cfg.NotifyTimeout)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, tg)
		slog.Info("telegram sink enabled", slog.Int("chats", len(ids)), slog.String("component", "notify"))
	}
	if cfg.TwitchReady() {
		tc := notify.NewTwitchChat(cfg.TwitchBotUsername, cfg.TwitchOAuthToken, cfg.TwitchChannels)
		go tc.Connect(ctx)
		sinks = append(sinks, tc)
		slog.Info("twitch chat sink enabled", slog.Any("channels", cfg.TwitchChannels), slog.String("component", "notify"))
	}
	if !cfg.NotifierReady() {
		slog.Warn("no chat destination configured; updates will only be logged", slog.String("component", "notify"))
		sinks = append(sinks, notify.Log{})
	}
	return sinks, nil
}
