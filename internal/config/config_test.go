package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const validConfig = `
hub:
  host: 192.168.1.20
limits:
  max_minutes: 240
  warn_percentages: [50, 75, 90]
notify:
  broker: tcp://127.0.0.1:1883
  recipients: [alice, bob]
`

func TestLoad_Valid(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Hub.Host != "192.168.1.20" {
		t.Errorf("hub host = %q", cfg.Hub.Host)
	}
	if cfg.Hub.Port != 8088 {
		t.Errorf("hub port default = %d, want 8088", cfg.Hub.Port)
	}
	if cfg.Limits.MaxMinutes != 240 {
		t.Errorf("max_minutes = %d", cfg.Limits.MaxMinutes)
	}
	if got := cfg.TickInterval().Minutes(); got != 1 {
		t.Errorf("tick interval default = %v minutes, want 1", got)
	}
	if cfg.Storage.Redis.Host != "127.0.0.1" {
		t.Errorf("redis host default = %q", cfg.Storage.Redis.Host)
	}
	if cfg.Server.HTTPPort != 8186 || cfg.Server.MetricsPort != 9186 {
		t.Errorf("port defaults = %d/%d", cfg.Server.HTTPPort, cfg.Server.MetricsPort)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		config string
	}{
		{
			name: "missing hub host",
			config: `
limits:
  max_minutes: 240
`,
		},
		{
			name: "zero max minutes",
			config: `
hub:
  host: 192.168.1.20
`,
		},
		{
			name: "negative max minutes",
			config: `
hub:
  host: 192.168.1.20
limits:
  max_minutes: -5
`,
		},
		{
			name: "warn percentage out of range",
			config: `
hub:
  host: 192.168.1.20
limits:
  max_minutes: 240
  warn_percentages: [50, 100]
`,
		},
		{
			name: "warn percentages not ascending",
			config: `
hub:
  host: 192.168.1.20
limits:
  max_minutes: 240
  warn_percentages: [90, 50]
`,
		},
		{
			name: "broker without recipients",
			config: `
hub:
  host: 192.168.1.20
limits:
  max_minutes: 240
notify:
  broker: tcp://127.0.0.1:1883
`,
		},
		{
			name: "bad tick interval",
			config: `
hub:
  host: 192.168.1.20
limits:
  max_minutes: 240
  tick_interval: soon
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.config)); err == nil {
				t.Fatal("Load accepted invalid configuration")
			}
		})
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("HUBWATCH_LIMITS_MAX_MINUTES", "120")

	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Limits.MaxMinutes != 120 {
		t.Errorf("max_minutes = %d, want env override 120", cfg.Limits.MaxMinutes)
	}
}
