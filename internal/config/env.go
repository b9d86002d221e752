// Package config handles environment-based configuration loading and static map definitions.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// EnvConfig holds all environment-variable-driven settings.
type EnvConfig struct {
	// Network
	ListenAddress string
	APIPort       int

	// Store
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Bus
	MQTTBroker     string
	MQTTClientID   string
	MQTTUsername   string
	MQTTPassword   string
	PublishTimeout time.Duration

	// Core
	MapPrefix             string
	MapsFile              string
	NodeCountGlitchMax    int
	LegacyCommandChannel  bool
	DailyResetSchedule    string
	QueueCapacity         int
	ConnectionRetention   time.Duration
	ConnectionSweepPeriod time.Duration

	// Battery voltage window for percent conversion.
	BatteryMaxVolt float64
	BatteryMinVolt float64

	// Key lifetimes
	ArriveTTL     time.Duration
	DailyStatsTTL time.Duration

	// Auth
	AdminToken string

	// Logging
	LogLevel  string
	LogFormat string
}

// LoadEnvConfig reads environment variables and returns a validated EnvConfig.
// Returns an error if any required variable is missing or any value is invalid.
func LoadEnvConfig() (*EnvConfig, error) {
	cfg := &EnvConfig{}
	var errs []string

	// --- Network ---
	cfg.ListenAddress = strings.TrimSpace(envStr("FLEET_LISTEN_ADDRESS", "0.0.0.0"))
	cfg.APIPort = envInt("FLEET_API_PORT", 8000, &errs)

	// --- Store ---
	cfg.RedisAddr = envStr("FLEET_REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = envStr("FLEET_REDIS_PASSWORD", "")
	cfg.RedisDB = envInt("FLEET_REDIS_DB", 0, &errs)

	// --- Bus ---
	cfg.MQTTBroker = envStr("FLEET_MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTTClientID = envStr("FLEET_MQTT_CLIENT_ID", "fleetd-controller")
	cfg.MQTTUsername = envStr("FLEET_MQTT_USERNAME", "")
	cfg.MQTTPassword = envStr("FLEET_MQTT_PASSWORD", "")
	cfg.PublishTimeout = envDuration("FLEET_PUBLISH_TIMEOUT", 2*time.Second, &errs)

	// --- Core ---
	cfg.MapPrefix = envStr("FLEET_MAP_PREFIX", "smartfarm_")
	cfg.MapsFile = envStr("FLEET_MAPS_FILE", "")
	cfg.NodeCountGlitchMax = envInt("FLEET_NODE_COUNT_GLITCH_MAX", 10, &errs)
	cfg.LegacyCommandChannel = envBool("FLEET_LEGACY_COMMAND_CHANNEL", false, &errs)
	cfg.DailyResetSchedule = envStr("FLEET_DAILY_RESET_SCHEDULE", "0 0 * * *")
	cfg.QueueCapacity = envInt("FLEET_QUEUE_CAPACITY", 64, &errs)
	cfg.ConnectionRetention = envDuration("FLEET_CONNECTION_RETENTION", 24*time.Hour, &errs)
	cfg.ConnectionSweepPeriod = envDuration("FLEET_CONNECTION_SWEEP_PERIOD", 5*time.Minute, &errs)

	// --- Battery ---
	cfg.BatteryMaxVolt = envFloat("FLEET_BATTERY_MAX_VOLT", 16.5, &errs)
	cfg.BatteryMinVolt = envFloat("FLEET_BATTERY_MIN_VOLT", 13.5, &errs)

	// --- Key lifetimes ---
	cfg.ArriveTTL = envDuration("FLEET_ARRIVE_TTL", 180*time.Second, &errs)
	cfg.DailyStatsTTL = envDuration("FLEET_DAILY_STATS_TTL", 30*24*time.Hour, &errs)

	// --- Auth (must be defined; empty means auth disabled) ---
	adminToken, hasAdminToken := os.LookupEnv("FLEET_ADMIN_TOKEN")
	cfg.AdminToken = adminToken

	// --- Logging ---
	cfg.LogLevel = envStr("FLEET_LOG_LEVEL", "info")
	cfg.LogFormat = envStr("FLEET_LOG_FORMAT", "json")

	// --- Validation ---
	if !hasAdminToken {
		errs = append(errs, "FLEET_ADMIN_TOKEN must be defined (can be empty)")
	}
	if cfg.ListenAddress == "" {
		errs = append(errs, "FLEET_LISTEN_ADDRESS must not be empty")
	}
	validatePort("FLEET_API_PORT", cfg.APIPort, &errs)
	if cfg.RedisAddr == "" {
		errs = append(errs, "FLEET_REDIS_ADDR must not be empty")
	}
	if cfg.MQTTBroker == "" {
		errs = append(errs, "FLEET_MQTT_BROKER must not be empty")
	}
	if cfg.MapPrefix == "" {
		errs = append(errs, "FLEET_MAP_PREFIX must not be empty")
	}
	if cfg.PublishTimeout <= 0 {
		errs = append(errs, "FLEET_PUBLISH_TIMEOUT must be positive")
	}
	validatePositive("FLEET_NODE_COUNT_GLITCH_MAX", cfg.NodeCountGlitchMax, &errs)
	validatePositive("FLEET_QUEUE_CAPACITY", cfg.QueueCapacity, &errs)
	if _, err := cron.ParseStandard(cfg.DailyResetSchedule); err != nil {
		errs = append(errs, fmt.Sprintf("FLEET_DAILY_RESET_SCHEDULE: invalid cron expression %q: %v", cfg.DailyResetSchedule, err))
	}
	if cfg.ConnectionRetention <= 0 {
		errs = append(errs, "FLEET_CONNECTION_RETENTION must be positive")
	}
	if cfg.ConnectionSweepPeriod <= 0 {
		errs = append(errs, "FLEET_CONNECTION_SWEEP_PERIOD must be positive")
	}
	if cfg.BatteryMaxVolt <= cfg.BatteryMinVolt {
		errs = append(errs, "FLEET_BATTERY_MAX_VOLT must be greater than FLEET_BATTERY_MIN_VOLT")
	}
	if cfg.ArriveTTL <= 0 {
		errs = append(errs, "FLEET_ARRIVE_TTL must be positive")
	}
	if cfg.DailyStatsTTL <= 0 {
		errs = append(errs, "FLEET_DAILY_STATS_TTL must be positive")
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}

	return cfg, nil
}

// --- helpers ---

func envStr(key, defaultVal string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int, errs *[]string) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid integer %q", key, v))
		return defaultVal
	}
	return n
}

func envFloat(key string, defaultVal float64, errs *[]string) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid float %q", key, v))
		return defaultVal
	}
	return f
}

func envBool(key string, defaultVal bool, errs *[]string) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid boolean %q", key, v))
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration, errs *[]string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid duration %q", key, v))
		return defaultVal
	}
	return d
}

func validatePort(name string, value int, errs *[]string) {
	if value < 1 || value > 65535 {
		*errs = append(*errs, fmt.Sprintf("%s: port must be 1-65535, got %d", name, value))
	}
}

func validatePositive(name string, value int, errs *[]string) {
	if value <= 0 {
		*errs = append(*errs, fmt.Sprintf("%s: must be positive, got %d", name, value))
	}
}
