package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. MARKETGATE_UPSTREAM_API_KEY.
const EnvPrefix = "MARKETGATE"

type Upstream struct {
	Provider           string `yaml:"provider" envconfig:"PROVIDER"` // alphavantage | twelvedata | mock
	BaseURL            string `yaml:"base_url" envconfig:"BASE_URL"`
	APIKey             string `yaml:"api_key" envconfig:"API_KEY"`
	TimeoutSeconds     int    `yaml:"timeout_seconds" envconfig:"TIMEOUT_SECONDS"`
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute" envconfig:"RATE_LIMIT_PER_MINUTE"`
}

type Budget struct {
	Limit           int `yaml:"limit" envconfig:"LIMIT"`
	WindowSeconds   int `yaml:"window_seconds" envconfig:"WINDOW_SECONDS"`
	DrainIntervalMs int `yaml:"drain_interval_ms" envconfig:"DRAIN_INTERVAL_MS"`
	QueueMaxDepth   int `yaml:"queue_max_depth" envconfig:"QUEUE_MAX_DEPTH"`
	QueueMaxWaitMs  int `yaml:"queue_max_wait_ms" envconfig:"QUEUE_MAX_WAIT_MS"`
}

type Cache struct {
	MaxEntries         int `yaml:"max_entries" envconfig:"MAX_ENTRIES"`
	QuoteTTLSeconds    int `yaml:"quote_ttl_seconds" envconfig:"QUOTE_TTL_SECONDS"`
	HistoryTTLSeconds  int `yaml:"history_ttl_seconds" envconfig:"HISTORY_TTL_SECONDS"`
	SearchTTLSeconds   int `yaml:"search_ttl_seconds" envconfig:"SEARCH_TTL_SECONDS"`
	FallbackTTLSeconds int `yaml:"fallback_ttl_seconds" envconfig:"FALLBACK_TTL_SECONDS"`
}

type Breaker struct {
	Threshold     int `yaml:"threshold" envconfig:"THRESHOLD"`
	OpenTimeoutMs int `yaml:"open_timeout_ms" envconfig:"OPEN_TIMEOUT_MS"`
}

type Retry struct {
	MaxAttempts int  `yaml:"max_attempts" envconfig:"MAX_ATTEMPTS"`
	DelayMs     int  `yaml:"delay_ms" envconfig:"DELAY_MS"`
	Linear      bool `yaml:"linear" envconfig:"LINEAR"`
}

type Synth struct {
	Timezone string `yaml:"timezone" envconfig:"TIMEZONE"`
}

type Server struct {
	Addr                string   `yaml:"addr" envconfig:"ADDR"`
	BroadcastIntervalMs int      `yaml:"broadcast_interval_ms" envconfig:"BROADCAST_INTERVAL_MS"`
	Workers             int      `yaml:"workers" envconfig:"WORKERS"`
	DefaultSymbols      []string `yaml:"default_symbols" envconfig:"DEFAULT_SYMBOLS"`
}

type Root struct {
	LogLevel string   `yaml:"log_level" envconfig:"LOG_LEVEL"`
	Upstream Upstream `yaml:"upstream" envconfig:"UPSTREAM"`
	Budget   Budget   `yaml:"budget" envconfig:"BUDGET"`
	Cache    Cache    `yaml:"cache" envconfig:"CACHE"`
	Breaker  Breaker  `yaml:"breaker" envconfig:"BREAKER"`
	Retry    Retry    `yaml:"retry" envconfig:"RETRY"`
	Synth    Synth    `yaml:"synth" envconfig:"SYNTH"`
	Server   Server   `yaml:"server" envconfig:"SERVER"`
}

// Load reads the YAML file at path (optional when empty), overlays
// MARKETGATE_* environment variables (a .env file is honored), applies
// defaults and validates the result.
func Load(path string) (Root, error) {
	var c Root
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return c, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return c, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	// .env is optional; a missing file is not an error.
	_ = godotenv.Load()
	if err := envconfig.Process(EnvPrefix, &c); err != nil {
		return c, fmt.Errorf("env overrides: %w", err)
	}

	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// Default returns a configuration with every default applied.
func Default() Root {
	var c Root
	c.applyDefaults()
	return c
}

func (c *Root) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	// Upstream defaults
	c.Upstream.Provider = strings.ToLower(strings.TrimSpace(c.Upstream.Provider))
	if c.Upstream.Provider == "" {
		c.Upstream.Provider = "twelvedata"
	}
	if c.Upstream.TimeoutSeconds == 0 {
		c.Upstream.TimeoutSeconds = 10
	}
	if c.Upstream.RateLimitPerMinute == 0 {
		c.Upstream.RateLimitPerMinute = 8
	}

	// Budget defaults (conservative versus the free upstream tiers)
	if c.Budget.Limit == 0 {
		c.Budget.Limit = 8
	}
	if c.Budget.WindowSeconds == 0 {
		c.Budget.WindowSeconds = 60
	}
	if c.Budget.DrainIntervalMs == 0 {
		c.Budget.DrainIntervalMs = 1000
	}
	if c.Budget.QueueMaxDepth == 0 {
		c.Budget.QueueMaxDepth = 32
	}
	if c.Budget.QueueMaxWaitMs == 0 {
		c.Budget.QueueMaxWaitMs = 15000
	}

	// Cache defaults
	if c.Cache.MaxEntries == 0 {
		c.Cache.MaxEntries = 2000
	}
	if c.Cache.QuoteTTLSeconds == 0 {
		c.Cache.QuoteTTLSeconds = 20
	}
	if c.Cache.HistoryTTLSeconds == 0 {
		c.Cache.HistoryTTLSeconds = 120
	}
	if c.Cache.SearchTTLSeconds == 0 {
		c.Cache.SearchTTLSeconds = 300
	}
	if c.Cache.FallbackTTLSeconds == 0 {
		c.Cache.FallbackTTLSeconds = 20
	}

	if c.Breaker.Threshold == 0 {
		c.Breaker.Threshold = 5
	}
	if c.Breaker.OpenTimeoutMs == 0 {
		c.Breaker.OpenTimeoutMs = 60000
	}

	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 3
	}
	if c.Retry.DelayMs == 0 {
		c.Retry.DelayMs = 500
	}

	if c.Synth.Timezone == "" {
		c.Synth.Timezone = "America/New_York"
	}

	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.BroadcastIntervalMs == 0 {
		c.Server.BroadcastIntervalMs = 5000
	}
	if c.Server.Workers == 0 {
		c.Server.Workers = 4
	}
	if len(c.Server.DefaultSymbols) == 0 {
		c.Server.DefaultSymbols = []string{"SPY", "QQQ", "DIA"}
	}
}

// Validate rejects configurations the gateway cannot run with.
func (c Root) Validate() error {
	var errs []error
	switch c.Upstream.Provider {
	case "alphavantage", "twelvedata":
		if c.Upstream.APIKey == "" {
			errs = append(errs, fmt.Errorf("upstream.api_key is required for provider %q", c.Upstream.Provider))
		}
	case "mock":
	default:
		errs = append(errs, fmt.Errorf("unknown upstream.provider %q", c.Upstream.Provider))
	}
	if c.Upstream.TimeoutSeconds < 0 || c.Upstream.RateLimitPerMinute < 0 {
		errs = append(errs, errors.New("upstream timeout and rate limit must be positive"))
	}
	if c.Budget.Limit < 0 || c.Budget.WindowSeconds < 0 || c.Budget.QueueMaxDepth < 0 || c.Budget.QueueMaxWaitMs < 0 {
		errs = append(errs, errors.New("budget values must be positive"))
	}
	if c.Cache.MaxEntries < 0 {
		errs = append(errs, errors.New("cache.max_entries must be positive"))
	}
	if c.Breaker.Threshold < 0 || c.Breaker.OpenTimeoutMs < 0 {
		errs = append(errs, errors.New("breaker values must be positive"))
	}
	if c.Retry.MaxAttempts < 0 || c.Retry.DelayMs < 0 {
		errs = append(errs, errors.New("retry values must be positive"))
	}
	if c.Server.Workers < 0 {
		errs = append(errs, errors.New("server.workers must be positive"))
	}
	return errors.Join(errs...)
}

func (u Upstream) Timeout() time.Duration { return time.Duration(u.TimeoutSeconds) * time.Second }

func (b Budget) Window() time.Duration        { return time.Duration(b.WindowSeconds) * time.Second }
func (b Budget) DrainInterval() time.Duration { return time.Duration(b.DrainIntervalMs) * time.Millisecond }
func (b Budget) QueueMaxWait() time.Duration  { return time.Duration(b.QueueMaxWaitMs) * time.Millisecond }

func (b Breaker) OpenTimeout() time.Duration { return time.Duration(b.OpenTimeoutMs) * time.Millisecond }

func (r Retry) Delay() time.Duration { return time.Duration(r.DelayMs) * time.Millisecond }

func (s Server) BroadcastInterval() time.Duration {
	return time.Duration(s.BroadcastIntervalMs) * time.Millisecond
}

func ttl(seconds int) time.Duration { return time.Duration(seconds) * time.Second }

func (c Cache) QuoteTTL() time.Duration    { return ttl(c.QuoteTTLSeconds) }
func (c Cache) HistoryTTL() time.Duration  { return ttl(c.HistoryTTLSeconds) }
func (c Cache) SearchTTL() time.Duration   { return ttl(c.SearchTTLSeconds) }
func (c Cache) FallbackTTL() time.Duration { return ttl(c.FallbackTTLSeconds) }
