package dispatcher

import (
	"time"

	"github.com/DotoriPicnic/condition-pick/internal/config"
	"github.com/DotoriPicnic/condition-pick/pkg/backoff"
)

// MemoryConfig holds configuration for the in-memory dispatcher.
// Zero values are replaced with defaults, except MaxRetries where zero
// means a single attempt.
type MemoryConfig struct {
	BufferSize       int           // pending deliveries (default: 256)
	Workers          int           // concurrent senders (default: 2)
	HTTPTimeout      time.Duration // per-request timeout (default: 10s)
	MaxRetries       int           // retries after the first attempt (env default: 3)
	Backoff          backoff.Config
	BreakerThreshold int           // consecutive failures that open a circuit (default: 5)
	BreakerCooldown  time.Duration // open circuit duration (default: 30s)
	MaxRequeues      int           // requeues before a delivery is dropped (default: 10)
}

// LoadConfigFromEnv loads dispatcher configuration from environment variables.
func LoadConfigFromEnv() MemoryConfig {
	cfg := MemoryConfig{
		BufferSize:      config.GetIntEnv("WEBHOOK_BUFFER_SIZE", 256),
		Workers:         config.GetIntEnv("WEBHOOK_WORKERS", 2),
		HTTPTimeout:     config.GetDurationEnv("WEBHOOK_TIMEOUT", 10*time.Second),
		MaxRetries:      config.GetIntEnv("WEBHOOK_MAX_RETRIES", 3),
		BreakerCooldown: config.GetDurationEnv("WEBHOOK_BREAKER_COOLDOWN", 30*time.Second),
		Backoff: backoff.Config{
			Initial: 500 * time.Millisecond,
			Max:     10 * time.Second,
			Jitter:  0.2,
		},
	}
	return cfg.withDefaults()
}

// withDefaults fills in zero values with defaults.
func (c MemoryConfig) withDefaults() MemoryConfig {
	if c.BufferSize <= 0 {
		c.BufferSize = 256
	}
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 10 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.BreakerThreshold <= 0 {
		c.BreakerThreshold = 5
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = 30 * time.Second
	}
	if c.MaxRequeues <= 0 {
		c.MaxRequeues = 10
	}
	return c
}
