package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadEnvConfigDefaults(t *testing.T) {
	t.Setenv("FLEET_ADMIN_TOKEN", "secret")

	cfg, err := LoadEnvConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.APIPort != 8000 {
		t.Errorf("APIPort = %d, want 8000", cfg.APIPort)
	}
	if cfg.MapPrefix != "smartfarm_" {
		t.Errorf("MapPrefix = %q", cfg.MapPrefix)
	}
	if cfg.RedisAddr != "localhost:6379" {
		t.Errorf("RedisAddr = %q", cfg.RedisAddr)
	}
	if cfg.MQTTBroker != "tcp://localhost:1883" {
		t.Errorf("MQTTBroker = %q", cfg.MQTTBroker)
	}
	if cfg.DailyResetSchedule != "0 0 * * *" {
		t.Errorf("DailyResetSchedule = %q", cfg.DailyResetSchedule)
	}
	if cfg.BatteryMaxVolt != 16.5 || cfg.BatteryMinVolt != 13.5 {
		t.Errorf("battery window = %v..%v", cfg.BatteryMinVolt, cfg.BatteryMaxVolt)
	}
	if cfg.DailyStatsTTL != 30*24*time.Hour {
		t.Errorf("DailyStatsTTL = %v", cfg.DailyStatsTTL)
	}
	if cfg.AdminToken != "secret" {
		t.Errorf("AdminToken = %q", cfg.AdminToken)
	}
}

func TestLoadEnvConfigRequiresAdminToken(t *testing.T) {
	_, err := LoadEnvConfig()
	if err == nil || !strings.Contains(err.Error(), "FLEET_ADMIN_TOKEN") {
		t.Fatalf("err = %v", err)
	}
}

func TestLoadEnvConfigOverrides(t *testing.T) {
	t.Setenv("FLEET_ADMIN_TOKEN", "")
	t.Setenv("FLEET_API_PORT", "9999")
	t.Setenv("FLEET_ARRIVE_TTL", "90s")
	t.Setenv("FLEET_LEGACY_COMMAND_CHANNEL", "true")

	cfg, err := LoadEnvConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.APIPort != 9999 {
		t.Errorf("APIPort = %d", cfg.APIPort)
	}
	if cfg.ArriveTTL != 90*time.Second {
		t.Errorf("ArriveTTL = %v", cfg.ArriveTTL)
	}
	if !cfg.LegacyCommandChannel {
		t.Error("LegacyCommandChannel not set")
	}
}

func TestLoadEnvConfigAccumulatesErrors(t *testing.T) {
	t.Setenv("FLEET_ADMIN_TOKEN", "secret")
	t.Setenv("FLEET_API_PORT", "0")
	t.Setenv("FLEET_DAILY_RESET_SCHEDULE", "not a schedule")
	t.Setenv("FLEET_BATTERY_MAX_VOLT", "12.0")

	_, err := LoadEnvConfig()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	msg := err.Error()
	for _, want := range []string{"FLEET_API_PORT", "FLEET_DAILY_RESET_SCHEDULE", "FLEET_BATTERY_MAX_VOLT"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error is missing %s: %v", want, msg)
		}
	}
}

func TestLoadEnvConfigRejectsBadDuration(t *testing.T) {
	t.Setenv("FLEET_ADMIN_TOKEN", "secret")
	t.Setenv("FLEET_PUBLISH_TIMEOUT", "soon")

	_, err := LoadEnvConfig()
	if err == nil || !strings.Contains(err.Error(), "FLEET_PUBLISH_TIMEOUT") {
		t.Fatalf("err = %v", err)
	}
}
