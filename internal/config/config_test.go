package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Scheduler.Period.Duration() != time.Minute {
		t.Errorf("period = %v, want 1m", cfg.Scheduler.Period.Duration())
	}
	if !cfg.Scheduler.IsAutostart() || !cfg.Ledger.IsEnabled() || !cfg.Control.IsEnabled() || !cfg.Watch.IsEnabled() {
		t.Error("toggles should default to enabled")
	}
	if cfg.Control.Host != "127.0.0.1" || cfg.Control.Port != 9240 {
		t.Errorf("control = %s:%d", cfg.Control.Host, cfg.Control.Port)
	}
	if cfg.Paths.Config != "./Config" || cfg.Paths.Temp != "./Temp" {
		t.Errorf("paths = %+v", cfg.Paths)
	}
	if cfg.Ledger.RetentionPeriod.Duration() != 720*time.Hour {
		t.Errorf("retention = %v, want 720h", cfg.Ledger.RetentionPeriod.Duration())
	}
	if cfg.Script != "" {
		t.Errorf("script = %q, want disabled", cfg.Script)
	}

	loc, err := cfg.Scheduler.Location()
	if err != nil || loc != time.Local {
		t.Errorf("Location = %v, %v", loc, err)
	}
}

func TestLoad_Values(t *testing.T) {
	t.Setenv("MONITORD_TOOL", `C:\Tools\ControlMyMonitor.exe`)

	cfg, err := Load(writeConfig(t, `
log:
  level: debug
  print_schedule: 10m
tool:
  path: ${MONITORD_TOOL}
  timeout: 5s
scheduler:
  period: 30s
  timezone: Europe/Berlin
  autostart: false
control:
  enabled: false
  port: ${MONITORD_PORT:9999}
watch:
  debounce: 1s
script: adjust.lua
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Log.Level != "debug" || cfg.Log.PrintSchedule.Duration() != 10*time.Minute {
		t.Errorf("log = %+v", cfg.Log)
	}
	if cfg.Tool.Path != `C:\Tools\ControlMyMonitor.exe` || cfg.Tool.Timeout.Duration() != 5*time.Second {
		t.Errorf("tool = %+v", cfg.Tool)
	}
	if cfg.Scheduler.Period.Duration() != 30*time.Second || cfg.Scheduler.IsAutostart() {
		t.Errorf("scheduler = %+v", cfg.Scheduler)
	}
	if cfg.Control.IsEnabled() || cfg.Control.Port != 9999 {
		t.Errorf("control = %+v", cfg.Control)
	}
	if cfg.Watch.Debounce.Duration() != time.Second {
		t.Errorf("debounce = %v", cfg.Watch.Debounce.Duration())
	}
	if cfg.Script != "adjust.lua" {
		t.Errorf("script = %q", cfg.Script)
	}

	loc, err := cfg.Scheduler.Location()
	if err != nil {
		t.Fatalf("Location: %v", err)
	}
	if loc.String() != "Europe/Berlin" {
		t.Errorf("location = %s", loc)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := Load(writeConfig(t, "scheduler:\n  period: soon\n")); err == nil {
		t.Error("expected error for invalid duration")
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("MONITORD_SET", "value")

	tests := []struct {
		in   string
		want string
	}{
		{"${MONITORD_SET}", "value"},
		{"${MONITORD_UNSET_VAR}", ""},
		{"${MONITORD_UNSET_VAR:fallback}", "fallback"},
		{"prefix-${MONITORD_SET}-suffix", "prefix-value-suffix"},
		{"no vars", "no vars"},
	}
	for _, tt := range tests {
		if got := expandEnvVars(tt.in); got != tt.want {
			t.Errorf("expandEnvVars(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
