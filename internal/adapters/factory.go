package adapters

import (
	"fmt"
	"strings"

	"github.com/Rajchodisetti/marketgate/internal/config"
	"github.com/Rajchodisetti/marketgate/internal/observ"
)

// NewProvider creates the upstream provider named in the configuration.
func NewProvider(cfg config.Upstream) (Provider, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Provider))

	switch name {
	case "mock":
		observ.Log("provider_created", map[string]any{
			"type":   "mock",
			"reason": "deterministic testing",
		})
		return NewMockProvider(), nil

	case "alphavantage":
		p, err := NewAlphaVantageAdapter(AlphaVantageConfig{
			APIKey:             cfg.APIKey,
			BaseURL:            cfg.BaseURL,
			RateLimitPerMinute: cfg.RateLimitPerMinute,
			TimeoutSeconds:     cfg.TimeoutSeconds,
		})
		if err != nil {
			return nil, err
		}
		logCreated(name, cfg)
		return p, nil

	case "twelvedata":
		p, err := NewTwelveDataAdapter(TwelveDataConfig{
			APIKey:             cfg.APIKey,
			BaseURL:            cfg.BaseURL,
			RateLimitPerMinute: cfg.RateLimitPerMinute,
			TimeoutSeconds:     cfg.TimeoutSeconds,
		})
		if err != nil {
			return nil, err
		}
		logCreated(name, cfg)
		return p, nil
	}
	return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
}

func logCreated(name string, cfg config.Upstream) {
	observ.Log("provider_created", map[string]any{
		"type":           name,
		"base_url":       cfg.BaseURL,
		"rate_limit_pm":  cfg.RateLimitPerMinute,
		"timeout_sec":    cfg.TimeoutSeconds,
		"api_key_masked": maskAPIKey(cfg.APIKey),
	})
}

// maskAPIKey masks sensitive API key for logging
func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:4] + "***" + key[len(key)-4:]
}
