package sidecar

import (
	"os"
	"strconv"
	"time"
)

// Config gathers the sidecar's environment-driven settings, read from
// os.Getenv after godotenv.Load.
type Config struct {
	AppName string

	IdleTimeout     time.Duration
	MonitorInterval time.Duration
	OfflineMode     bool
	ModelOverride   string
	DebugWSAddr     string // optional coder/websocket debug mirror, empty disables it
}

// DefaultConfig returns the sidecar's built-in defaults.
func DefaultConfig() Config {
	return Config{
		AppName:         "whispersidecar",
		IdleTimeout:     10 * time.Second,
		MonitorInterval: 30 * time.Second,
	}
}

// ConfigFromEnv overlays environment variables onto DefaultConfig. Missing
// or malformed values fall back to the default silently.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	if v := os.Getenv("WHISPERSIDECAR_IDLE_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			cfg.IdleTimeout = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("WHISPERSIDECAR_MONITOR_INTERVAL_S"); v != "" {
		if s, err := strconv.Atoi(v); err == nil && s > 0 {
			cfg.MonitorInterval = time.Duration(s) * time.Second
		}
	}
	if v := os.Getenv("WHISPERSIDECAR_OFFLINE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.OfflineMode = b
		}
	}
	cfg.ModelOverride = os.Getenv("WHISPERSIDECAR_MODEL_OVERRIDE")
	cfg.DebugWSAddr = os.Getenv("WHISPERSIDECAR_DEBUG_WS_ADDR")

	return cfg
}
