// Package config loads fragwatch settings from an optional YAML file, an
// optional .env file and FRAGWATCH_* environment variables, in that order of
// increasing precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/fragwatch/fragwatch/internal/extract"
)

// Config is the full configuration.
type Config struct {
	Timezone    string            `yaml:"timezone"`
	LogLevel    string            `yaml:"log_level"`
	Database    string            `yaml:"database"`
	HTTP        HTTPConfig        `yaml:"http"`
	Source      SourceConfig      `yaml:"source"`
	Fetch       FetchConfig       `yaml:"fetch"`
	Session     SessionConfig     `yaml:"session"`
	Browser     BrowserConfig     `yaml:"browser"`
	Acquisition AcquisitionConfig `yaml:"acquisition"`
	Stats       StatsConfig       `yaml:"stats"`
	Extract     ExtractConfig     `yaml:"extract"`
	Delivery    DeliveryConfig    `yaml:"delivery"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
	// CollectPerMinute throttles stats, rankings and run requests per client.
	// Zero disables the throttle.
	CollectPerMinute int `yaml:"collect_per_minute"`
	CollectBurst     int `yaml:"collect_burst"`
}

// SourceConfig shapes the candidate URLs.
type SourceConfig struct {
	Hosts           []string `yaml:"hosts"`
	Paths           []string `yaml:"paths"`
	Game            string   `yaml:"game"`
	DefaultPlatform string   `yaml:"default_platform"`
}

type FetchConfig struct {
	RetryBudget      int           `yaml:"retry_budget"`
	BackoffBase      time.Duration `yaml:"backoff_base"`
	BackoffMax       time.Duration `yaml:"backoff_max"`
	Jitter           float64       `yaml:"jitter"`
	Timeout          time.Duration `yaml:"timeout"`
	MaxBytes         int64         `yaml:"max_bytes"`
	UserAgent        string        `yaml:"user_agent"`
	ChallengeMarkers []string      `yaml:"challenge_markers"`
}

type SessionConfig struct {
	TTL                   time.Duration `yaml:"ttl"`
	RefreshTimeout        time.Duration `yaml:"refresh_timeout"`
	ChallengeWaitBudget   int           `yaml:"challenge_wait_budget"`
	ChallengePollInterval time.Duration `yaml:"challenge_poll_interval"`
	// WarmupURL is loaded by the browser to earn clearance. Default: first source host.
	WarmupURL string `yaml:"warmup_url"`
}

type BrowserConfig struct {
	RemoteURL        string        `yaml:"remote_url"`
	Bin              string        `yaml:"bin"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	ResourceBlocking []string      `yaml:"resource_blocking"`
	Headful          bool          `yaml:"headful"`
}

type AcquisitionConfig struct {
	InterPlayerDelay time.Duration `yaml:"inter_player_delay"`
}

type StatsConfig struct {
	CountEmptyDays bool `yaml:"count_empty_days"`
	TopN           int  `yaml:"top_n"`
}

// ExtractConfig overrides layout selectors. Empty fields keep the defaults.
type ExtractConfig struct {
	Matches extract.Selectors `yaml:"matches"`
	Summary extract.Selectors `yaml:"summary"`
}

type DeliveryConfig struct {
	Stdout         bool   `yaml:"stdout"`
	StdoutJSON     bool   `yaml:"stdout_json"`
	WebhookURL     string `yaml:"webhook_url"`
	WebhookSecret  string `yaml:"webhook_secret"`
	DiscordToken   string `yaml:"discord_token"`
	DiscordChannel string `yaml:"discord_channel"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Timezone: "UTC",
		LogLevel: "info",
		Database: "data/fragwatch.db",
		HTTP:     HTTPConfig{Addr: ":8087", CollectPerMinute: 30, CollectBurst: 5},
		Source: SourceConfig{
			Hosts:           []string{"https://tracker.gg"},
			Game:            "cs2",
			DefaultPlatform: "steam",
		},
		Fetch: FetchConfig{
			RetryBudget: 3,
			BackoffBase: 2 * time.Second,
			BackoffMax:  30 * time.Second,
			Jitter:      0.25,
			Timeout:     20 * time.Second,
			MaxBytes:    10 << 20,
		},
		Session: SessionConfig{
			TTL:                   30 * time.Minute,
			RefreshTimeout:        2 * time.Minute,
			ChallengeWaitBudget:   15,
			ChallengePollInterval: 2 * time.Second,
		},
		Browser: BrowserConfig{
			IdleTimeout:      5 * time.Minute,
			ResourceBlocking: []string{"images", "fonts", "media"},
		},
		Acquisition: AcquisitionConfig{InterPlayerDelay: 3 * time.Second},
		Stats:       StatsConfig{CountEmptyDays: true, TopN: 5},
		Delivery:    DeliveryConfig{Stdout: true},
	}
}

// Load builds the configuration. path may be empty to skip the YAML file.
// A .env file in the working directory is loaded when present; variables
// already set in the environment win.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: .env: %w", err)
	}
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv("FRAGWATCH_" + key); v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) error {
		v := getenv("FRAGWATCH_" + key)
		if v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: FRAGWATCH_%s: %w", key, err)
		}
		*dst = d
		return nil
	}

	str("TIMEZONE", &c.Timezone)
	str("LOG_LEVEL", &c.LogLevel)
	str("DATABASE", &c.Database)
	str("HTTP_ADDR", &c.HTTP.Addr)
	str("USER_AGENT", &c.Fetch.UserAgent)
	str("WARMUP_URL", &c.Session.WarmupURL)
	str("BROWSER_REMOTE_URL", &c.Browser.RemoteURL)
	str("BROWSER_BIN", &c.Browser.Bin)
	str("WEBHOOK_URL", &c.Delivery.WebhookURL)
	str("WEBHOOK_SECRET", &c.Delivery.WebhookSecret)
	str("DISCORD_TOKEN", &c.Delivery.DiscordToken)
	str("DISCORD_CHANNEL", &c.Delivery.DiscordChannel)
	if v := getenv("FRAGWATCH_SOURCE_HOSTS"); v != "" {
		c.Source.Hosts = splitList(v)
	}
	if v := getenv("FRAGWATCH_RETRY_BUDGET"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: FRAGWATCH_RETRY_BUDGET: %w", err)
		}
		c.Fetch.RetryBudget = n
	}
	if v := getenv("FRAGWATCH_BROWSER_HEADFUL"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: FRAGWATCH_BROWSER_HEADFUL: %w", err)
		}
		c.Browser.Headful = b
	}

	for key, dst := range map[string]*time.Duration{
		"BACKOFF_BASE":       &c.Fetch.BackoffBase,
		"FETCH_TIMEOUT":      &c.Fetch.Timeout,
		"SESSION_TTL":        &c.Session.TTL,
		"INTER_PLAYER_DELAY": &c.Acquisition.InterPlayerDelay,
		"BROWSER_IDLE":       &c.Browser.IdleTimeout,
	} {
		if err := dur(key, dst); err != nil {
			return err
		}
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks that values are usable.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("config: timezone %q: %w", c.Timezone, err)
	}
	if len(c.Source.Hosts) == 0 {
		return fmt.Errorf("config: source.hosts is required")
	}
	if c.Fetch.RetryBudget <= 0 {
		return fmt.Errorf("config: fetch.retry_budget must be > 0")
	}
	if c.Fetch.BackoffBase <= 0 || c.Fetch.Timeout <= 0 {
		return fmt.Errorf("config: fetch.backoff_base and fetch.timeout must be > 0")
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("config: session.ttl must be > 0")
	}
	if c.Session.ChallengeWaitBudget <= 0 {
		return fmt.Errorf("config: session.challenge_wait_budget must be > 0")
	}
	if c.Acquisition.InterPlayerDelay < 0 {
		return fmt.Errorf("config: acquisition.inter_player_delay must be >= 0")
	}
	if c.HTTP.CollectPerMinute < 0 || c.HTTP.CollectBurst < 0 {
		return fmt.Errorf("config: http.collect_per_minute and http.collect_burst must be >= 0")
	}
	if c.Stats.TopN < 0 {
		return fmt.Errorf("config: stats.top_n must be >= 0")
	}
	return nil
}

// Location returns the configured timezone. Call after Validate.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// WarmupURL is the page the browser loads to clear the challenge.
func (c *Config) WarmupURL() string {
	if c.Session.WarmupURL != "" {
		return c.Session.WarmupURL
	}
	if len(c.Source.Hosts) > 0 {
		return strings.TrimRight(c.Source.Hosts[0], "/") + "/"
	}
	return ""
}

// Level maps LogLevel to a slog level.
func (c *Config) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
