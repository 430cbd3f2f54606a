package config

import (
	"os"
	"strconv"
	"time"
)

// RateLimitConfig describes the fixed-window limits applied per
// endpoint.  Two window sizes exist: a short window for credential
// and code endpoints and a long window for endpoints that trigger
// email delivery.  When disabled or when Redis is unreachable the
// middleware passes requests through.
type RateLimitConfig struct {
	Enabled     bool
	Prefix      string
	Debug       bool
	ShortLimit  int           // requests allowed per ShortWindow
	ShortWindow time.Duration // default 15 minutes
	LongLimit   int           // requests allowed per LongWindow
	LongWindow  time.Duration // default 1 hour
}

// LoadRateLimitConfig builds a RateLimitConfig from the environment,
// with sane defaults when variables are not set.
func LoadRateLimitConfig() RateLimitConfig {
	cfg := RateLimitConfig{
		Enabled:     envBool("RATE_LIMIT_ENABLED", true),
		Prefix:      envStr("RATE_LIMIT_PREFIX", "rl"),
		Debug:       envBool("RATE_LIMIT_DEBUG", false),
		ShortLimit:  envInt("RATE_LIMIT_SHORT_LIMIT", 10),
		ShortWindow: envDur("RATE_LIMIT_SHORT_WINDOW", 15*time.Minute),
		LongLimit:   envInt("RATE_LIMIT_LONG_LIMIT", 5),
		LongWindow:  envDur("RATE_LIMIT_LONG_WINDOW", time.Hour),
	}
	if cfg.ShortLimit < 1 {
		cfg.ShortLimit = 1
	}
	if cfg.LongLimit < 1 {
		cfg.LongLimit = 1
	}
	if cfg.ShortWindow <= 0 {
		cfg.ShortWindow = 15 * time.Minute
	}
	if cfg.LongWindow <= 0 {
		cfg.LongWindow = time.Hour
	}
	return cfg
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	switch v {
	case "1", "true", "TRUE", "True", "yes", "YES", "on", "ON":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "off", "OFF":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil {
		return dur
	}
	return d
}
