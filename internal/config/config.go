// Package config provides configuration loading from environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os/exec"
	"time"
)

// Runner backends.
const (
	BackendExec   = "exec"
	BackendDocker = "docker"
)

// Bootstrap policies for a read that finds the cache empty.
const (
	BootstrapAsync = "async" // kick a background run, answer immediately
	BootstrapSync  = "sync"  // run once synchronously on the first miss
)

// Output encodings understood by the runner.
const (
	EncodingUTF8  = "utf-8"
	EncodingEUCKR = "euc-kr"
	EncodingAuto  = "auto"
)

// ServiceConfig holds configuration for the screening service.
type ServiceConfig struct {
	Port              string
	MetricsPort       string
	LogLevel          string
	ShutdownDrainWait time.Duration // Time to wait for load balancer to drain (0 to skip)

	Screener ScreenerConfig

	RefreshInterval time.Duration // 0 disables the scheduler
	BootstrapMode   string
	ResultFile      string
	CatalogFile     string

	WebhookURLs []string
	WebhookKey  string
}

// ScreenerConfig describes how to invoke the external screening program.
type ScreenerConfig struct {
	Backend    string
	Command    string
	Args       []string
	Dir        string
	Env        map[string]string
	Image      string   // docker backend only
	ExtraHosts []string // docker backend only
	Timeout    time.Duration
	KillGrace  time.Duration
	Encoding   string
}

// LoadServiceConfig loads service configuration from environment variables.
func LoadServiceConfig() *ServiceConfig {
	webhookKey := GetEnv("WEBHOOK_KEY", "")
	if file := GetEnv("WEBHOOK_KEY_FILE", ""); file != "" {
		webhookKey = GetSecretFile(file)
	}

	return &ServiceConfig{
		Port:              GetEnv("PORT", "8080"),
		MetricsPort:       GetEnv("METRICS_PORT", "9090"),
		LogLevel:          GetEnv("LOG_LEVEL", "info"),
		ShutdownDrainWait: GetDurationEnv("SHUTDOWN_DRAIN_WAIT", 0),
		Screener: ScreenerConfig{
			Backend:    GetEnv("RUNNER_BACKEND", BackendExec),
			Command:    GetEnv("SCREENER_COMMAND", ""),
			Args:       GetListEnv("SCREENER_ARGS"),
			Dir:        GetEnv("SCREENER_DIR", ""),
			Env:        GetMapEnv("SCREENER_ENV"),
			Image:      GetEnv("SCREENER_IMAGE", ""),
			ExtraHosts: GetListEnv("EXTRA_HOSTS"),
			Timeout:    GetDurationEnv("RUN_TIMEOUT", 3*time.Minute),
			KillGrace:  GetDurationEnv("KILL_GRACE", 5*time.Second),
			Encoding:   GetEnv("OUTPUT_ENCODING", EncodingUTF8),
		},
		RefreshInterval: GetDurationEnv("REFRESH_INTERVAL", 5*time.Minute),
		BootstrapMode:   GetEnv("BOOTSTRAP_MODE", BootstrapAsync),
		ResultFile:      GetEnv("RESULT_FILE", "data/last_result.json"),
		CatalogFile:     GetEnv("CATALOG_FILE", ""),
		WebhookURLs:     GetListEnv("WEBHOOK_URLS"),
		WebhookKey:      webhookKey,
	}
}

// Validate reports configuration errors that must stop the service before
// anything is scheduled.
func (c *ServiceConfig) Validate() error {
	s := c.Screener
	switch s.Backend {
	case BackendExec:
		if s.Command == "" {
			return fmt.Errorf("SCREENER_COMMAND is required")
		}
		if _, err := exec.LookPath(s.Command); err != nil {
			return fmt.Errorf("screener command %q cannot be resolved: %w", s.Command, err)
		}
	case BackendDocker:
		if s.Image == "" {
			return fmt.Errorf("SCREENER_IMAGE is required for the docker backend")
		}
	default:
		return fmt.Errorf("unknown RUNNER_BACKEND %q", s.Backend)
	}

	if s.Timeout <= 0 {
		return fmt.Errorf("RUN_TIMEOUT must be positive, got %s", s.Timeout)
	}
	if s.KillGrace < 0 {
		return fmt.Errorf("KILL_GRACE must not be negative, got %s", s.KillGrace)
	}
	switch s.Encoding {
	case EncodingUTF8, EncodingEUCKR, EncodingAuto:
	default:
		return fmt.Errorf("unknown OUTPUT_ENCODING %q", s.Encoding)
	}

	if c.RefreshInterval < 0 {
		return fmt.Errorf("REFRESH_INTERVAL must not be negative, got %s", c.RefreshInterval)
	}
	switch c.BootstrapMode {
	case BootstrapAsync, BootstrapSync:
	default:
		return fmt.Errorf("unknown BOOTSTRAP_MODE %q", c.BootstrapMode)
	}
	if c.ResultFile == "" {
		return fmt.Errorf("RESULT_FILE must not be empty")
	}
	return nil
}

// SlogLevel parses LogLevel, falling back to info for unknown values.
func (c *ServiceConfig) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}
