package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	DatabaseURL string
	Port        string
	Environment string

	// Scheduler
	TickInterval     time.Duration
	BatchSize        int
	Concurrency      int
	LockTTL          time.Duration
	InstanceID       string
	ManualRunTimeout time.Duration

	// Validation
	PricePlausibleMax float64

	// Browser automation
	ExtendedBrowserPlatforms []string
	DebugDumpDir             string

	// Logging
	LogLevel  string
	LogPretty bool
}

func Load() *Config {
	hostname, _ := os.Hostname()
	defaultInstance := fmt.Sprintf("%s-%d", hostname, os.Getpid())

	return &Config{
		DatabaseURL: getEnv("DATABASE_URL", "root:root@tcp(127.0.0.1:3306)/price_tracker?charset=utf8mb4&parseTime=True&loc=Local"),
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),

		TickInterval:     time.Duration(getEnvInt("SCHEDULER_TICK_SECONDS", 30)) * time.Second,
		BatchSize:        getEnvInt("SCHEDULER_BATCH_SIZE", 10),
		Concurrency:      getEnvInt("SCHEDULER_CONCURRENCY", 3),
		LockTTL:          time.Duration(getEnvInt("LOCK_TTL_MINUTES", 10)) * time.Minute,
		InstanceID:       getEnv("INSTANCE_ID", defaultInstance),
		ManualRunTimeout: time.Duration(getEnvInt("TRACK_SCRAPE_TIMEOUT_MS", 30000)) * time.Millisecond,

		PricePlausibleMax: getEnvFloat("PRICE_PLAUSIBLE_MAX", 5000000),

		ExtendedBrowserPlatforms: getEnvList("EXTENDED_BROWSER_PLATFORMS", nil),
		DebugDumpDir:             getEnv("DEBUG_DUMP_DIR", "pw_debug"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogPretty: getEnv("LOG_PRETTY", "true") == "true",
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
