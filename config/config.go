// Package config loads environment variables and provides a typed Config used across the service.
// It applies sensible defaults so the binary can run locally with minimal setup: with nothing set
// it watches r/worldnews, stores state in a local sqlite file and logs messages instead of sending them.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrInvalid marks configuration errors. They are fatal at startup.
var ErrInvalid = errors.New("invalid configuration")

// Default Reddit endpoints.
const (
	DefaultRedditBaseURL = "https://www.reddit.com"
	OAuthRedditBaseURL   = "https://oauth.reddit.com"
	DefaultUserAgent     = "livefeed-relay/1.0"
)

type Config struct {
	// Reddit
	Subreddits         []string
	RedditUserAgent    string
	RedditBaseURL      string
	RedditClientID     string
	RedditClientSecret string

	// Tracking
	PollInterval      time.Duration
	ScanInterval      time.Duration
	InactivityTimeout time.Duration
	HTTPTimeout       time.Duration
	NotifyTimeout     time.Duration
	KnownFeedsCache   int

	// Database
	DBDsn string

	// Telegram
	TelegramBotToken string
	TelegramChatIDs  string

	// Twitch chat
	TwitchBotUsername string
	TwitchOAuthToken  string
	TwitchChannels    []string

	// HTTP
	HTTPAddr   string
	AdminToken string
}

// Load reads environment variables and applies defaults. Malformed values are
// reported as errors wrapping ErrInvalid; call Validate for cross-field checks.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	cfg.Subreddits = splitList(os.Getenv("REDDIT_SUBREDDITS"))
	if len(cfg.Subreddits) == 0 {
		cfg.Subreddits = []string{"worldnews"}
	}
	cfg.RedditUserAgent = os.Getenv("REDDIT_USER_AGENT")
	if cfg.RedditUserAgent == "" {
		cfg.RedditUserAgent = DefaultUserAgent
	}
	cfg.RedditClientID = os.Getenv("REDDIT_CLIENT_ID")
	cfg.RedditClientSecret = os.Getenv("REDDIT_CLIENT_SECRET")
	cfg.RedditBaseURL = strings.TrimRight(os.Getenv("REDDIT_BASE_URL"), "/")
	if cfg.RedditBaseURL == "" {
		cfg.RedditBaseURL = DefaultRedditBaseURL
		if cfg.AppOnlyAuth() {
			cfg.RedditBaseURL = OAuthRedditBaseURL
		}
	}

	cfg.PollInterval = envDuration("POLL_INTERVAL", 2*time.Second, &errs)
	cfg.ScanInterval = envDuration("SCAN_INTERVAL", 30*time.Second, &errs)
	cfg.InactivityTimeout = envDuration("INACTIVITY_TIMEOUT", 6*time.Hour, &errs)
	cfg.HTTPTimeout = envDuration("HTTP_TIMEOUT", 2*time.Second, &errs)
	cfg.NotifyTimeout = envDuration("NOTIFY_TIMEOUT", 5*time.Second, &errs)
	cfg.KnownFeedsCache = envInt("KNOWN_FEEDS_CACHE", 256, &errs)

	cfg.DBDsn = os.Getenv("DB_DSN")
	if cfg.DBDsn == "" {
		cfg.DBDsn = "file:livefeed.db"
	}

	cfg.TelegramBotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	cfg.TelegramChatIDs = os.Getenv("TELEGRAM_CHAT_IDS")

	cfg.TwitchBotUsername = os.Getenv("TWITCH_BOT_USERNAME")
	cfg.TwitchOAuthToken = os.Getenv("TWITCH_OAUTH_TOKEN")
	cfg.TwitchChannels = splitList(os.Getenv("TWITCH_CHANNELS"))

	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}
	cfg.AdminToken = os.Getenv("ADMIN_TOKEN")

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

// Validate checks values that must hold before any polling begins.
func (c *Config) Validate() error {
	var problems []string
	if len(c.Subreddits) == 0 {
		problems = append(problems, "REDDIT_SUBREDDITS: no sources to scan")
	}
	for name, d := range map[string]time.Duration{
		"POLL_INTERVAL":      c.PollInterval,
		"SCAN_INTERVAL":      c.ScanInterval,
		"INACTIVITY_TIMEOUT": c.InactivityTimeout,
		"HTTP_TIMEOUT":       c.HTTPTimeout,
		"NOTIFY_TIMEOUT":     c.NotifyTimeout,
	} {
		if d <= 0 {
			problems = append(problems, name+": must be positive")
		}
	}
	if c.InactivityTimeout > 0 && c.InactivityTimeout < c.PollInterval {
		problems = append(problems, "INACTIVITY_TIMEOUT: shorter than POLL_INTERVAL")
	}
	if c.KnownFeedsCache <= 0 {
		problems = append(problems, "KNOWN_FEEDS_CACHE: must be positive")
	}
	if (c.RedditClientID == "") != (c.RedditClientSecret == "") {
		problems = append(problems, "REDDIT_CLIENT_ID and REDDIT_CLIENT_SECRET must be set together")
	}
	if (c.TelegramBotToken == "") != (c.TelegramChatIDs == "") {
		problems = append(problems, "TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_IDS must be set together")
	}
	if c.twitchPartial() {
		problems = append(problems, "twitch chat requires TWITCH_BOT_USERNAME, TWITCH_OAUTH_TOKEN and TWITCH_CHANNELS")
	}
	if len(problems) > 0 {
		sort.Strings(problems)
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// AppOnlyAuth reports whether Reddit requests go through app-only OAuth.
func (c *Config) AppOnlyAuth() bool {
	return c.RedditClientID != "" && c.RedditClientSecret != ""
}

// TelegramReady reports whether the Telegram sink is configured.
func (c *Config) TelegramReady() bool {
	return c.TelegramBotToken != "" && c.TelegramChatIDs != ""
}

// TwitchReady reports whether the Twitch chat sink is configured.
func (c *Config) TwitchReady() bool {
	return c.TwitchBotUsername != "" && c.TwitchOAuthToken != "" && len(c.TwitchChannels) > 0
}

// NotifierReady reports whether at least one real destination is configured.
// Without one, messages are only logged.
func (c *Config) NotifierReady() bool {
	return c.TelegramReady() || c.TwitchReady()
}

func (c *Config) twitchPartial() bool {
	set := 0
	for _, ok := range []bool{c.TwitchBotUsername != "", c.TwitchOAuthToken != "", len(c.TwitchChannels) > 0} {
		if ok {
			set++
		}
	}
	return set > 0 && set < 3
}

// envDuration accepts Go durations ("90s", "6h") or bare seconds.
func envDuration(key string, def time.Duration, errs *[]error) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%w: %s=%q: %v", ErrInvalid, key, v, err))
		return def
	}
	return d
}

func envInt(key string, def int, errs *[]error) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%w: %s=%q: %v", ErrInvalid, key, v, err))
		return def
	}
	return n
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		part = strings.TrimPrefix(part, "r/")
		part = strings.TrimPrefix(part, "#")
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
