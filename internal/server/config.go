// Package server provides configuration helpers that define runtime defaults,
// validation, and tuning parameters for the chat relay service.
package server

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Config holds the server configuration settings including security controls
// and relay tuning knobs.
type Config struct {
	Port           string
	AllowedOrigins []string
	MaxMessageSize int64
	RateLimit      RateLimitConfig

	// HistoryLimit bounds the global-room message ring.
	HistoryLimit int
	// ReplayLimit bounds how much history new room joiners receive.
	ReplayLimit int
	// StandbyTimeout evicts standby users with no heartbeat within the window.
	StandbyTimeout time.Duration
	// StandbyReapInterval is the standby reaper tick.
	StandbyReapInterval time.Duration
	// UserCountInterval is the periodic room user-count broadcast tick.
	UserCountInterval time.Duration
}

var (
	configMu        sync.RWMutex
	activeConfig    Config
	allowedOrigins  map[string]struct{}
	allowAllOrigins bool
)

func init() {
	SetConfig(nil)
}

func defaultConfig() Config {
	return Config{
		Port: ":8080",
		AllowedOrigins: []string{
			"http://localhost:3000",
			"http://localhost:8080",
		},
		MaxMessageSize: 512,
		RateLimit: RateLimitConfig{
			Burst:          5,
			RefillInterval: time.Second,
		},
		HistoryLimit:        100,
		ReplayLimit:         20,
		StandbyTimeout:      60 * time.Second,
		StandbyReapInterval: 30 * time.Second,
		UserCountInterval:   30 * time.Second,
	}
}

func sanitizeConfig(cfg Config) Config {
	defaults := defaultConfig()

	if cfg.Port == "" {
		cfg.Port = defaults.Port
	}

	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaults.MaxMessageSize
	}

	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = defaults.RateLimit.Burst
	}

	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = defaults.RateLimit.RefillInterval
	}

	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaults.HistoryLimit
	}

	if cfg.ReplayLimit <= 0 {
		cfg.ReplayLimit = defaults.ReplayLimit
	}

	if cfg.StandbyTimeout <= 0 {
		cfg.StandbyTimeout = defaults.StandbyTimeout
	}

	if cfg.StandbyReapInterval <= 0 {
		cfg.StandbyReapInterval = defaults.StandbyReapInterval
	}

	if cfg.UserCountInterval <= 0 {
		cfg.UserCountInterval = defaults.UserCountInterval
	}

	normalizedOrigins, allowAll := normalizeOrigins(cfg.AllowedOrigins)
	cfg.AllowedOrigins = normalizedOrigins

	configMu.Lock()
	defer configMu.Unlock()

	activeConfig = cfg
	allowAllOrigins = allowAll
	allowedOrigins = make(map[string]struct{}, len(normalizedOrigins))
	for _, origin := range normalizedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	return cfg
}

// SetConfig applies the provided configuration. Passing nil resets to defaults.
func SetConfig(cfg *Config) {
	if cfg == nil {
		defaultCfg := defaultConfig()
		sanitizeConfig(defaultCfg)
		return
	}

	sanitized := *cfg
	sanitized.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	sanitizeConfig(sanitized)
}

func currentConfig() Config {
	configMu.RLock()
	defer configMu.RUnlock()

	cfg := activeConfig
	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Falls back to default values if environment variables are not set.
func NewConfigFromEnv() *Config {
	cfg := defaultConfig()

	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Port = port
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseOrigins(origins)
	}

	if maxSize := os.Getenv("MAX_MESSAGE_SIZE"); maxSize != "" {
		cfg.MaxMessageSize = parseMaxMessageSize(maxSize, cfg.MaxMessageSize)
	}

	if burst := os.Getenv("RATE_LIMIT_BURST"); burst != "" {
		cfg.RateLimit.Burst = parseIntValue(burst, cfg.RateLimit.Burst)
	}

	if interval := os.Getenv("RATE_LIMIT_REFILL_INTERVAL"); interval != "" {
		cfg.RateLimit.RefillInterval = parseSeconds(interval, cfg.RateLimit.RefillInterval)
	}

	if limit := os.Getenv("HISTORY_LIMIT"); limit != "" {
		cfg.HistoryLimit = parseIntValue(limit, cfg.HistoryLimit)
	}

	if limit := os.Getenv("REPLAY_LIMIT"); limit != "" {
		cfg.ReplayLimit = parseIntValue(limit, cfg.ReplayLimit)
	}

	if timeout := os.Getenv("STANDBY_TIMEOUT"); timeout != "" {
		cfg.StandbyTimeout = parseSeconds(timeout, cfg.StandbyTimeout)
	}

	if interval := os.Getenv("STANDBY_REAP_INTERVAL"); interval != "" {
		cfg.StandbyReapInterval = parseSeconds(interval, cfg.StandbyReapInterval)
	}

	if interval := os.Getenv("USER_COUNT_INTERVAL"); interval != "" {
		cfg.UserCountInterval = parseSeconds(interval, cfg.UserCountInterval)
	}

	return &cfg
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseMaxMessageSize(value string, defaultValue int64) int64 {
	if size, err := strconv.ParseInt(value, 10, 64); err == nil && size > 0 {
		return size
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseSeconds(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
