package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config carries every environment-derived setting the application
// needs at startup. Values are read once, at process start.
type Config struct {
	DataDir            string
	RingBufferCapacity int
	StopOnShutdown     bool
	AutoExportInterval time.Duration
	WatchDefinitions   bool
	LogLevel           string
}

const defaultRingBufferCapacity = 1000

// LoadConfig reads configuration from the environment, falling back to
// documented defaults.
func LoadConfig() Config {
	return Config{
		DataDir:            os.Getenv("DATA_DIR"),
		RingBufferCapacity: envInt("RING_BUFFER_CAPACITY", defaultRingBufferCapacity),
		StopOnShutdown:     envBool("STOP_ON_SHUTDOWN", false),
		AutoExportInterval: envSeconds("AUTO_EXPORT_INTERVAL", 0),
		WatchDefinitions:   envBool("WRANGLER_WATCH_DEFINITIONS", false),
		LogLevel:           envString("WRANGLER_LOG_LEVEL", "info"),
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return fallback
	}
	return v == "true" || v == "1" || v == "yes"
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func envSeconds(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return time.Duration(n) * time.Second
}
