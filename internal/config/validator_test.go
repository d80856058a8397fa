package config

import (
	"strings"
	"testing"
)

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Runner.PollIntervalMs = 0
	cfg.Runner.InactivityTimeoutMinutes = -1
	cfg.Notifications.SoundVolume = 1.5
	cfg.Logging.Level = "loud"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Validate should fail")
	}

	errs, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("Expected ValidationErrors, got %T", err)
	}
	if len(errs) != 4 {
		t.Errorf("Expected 4 errors, got %d: %v", len(errs), errs)
	}
}

func TestValidate_FieldChecks(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"zero poll interval", func(c *Config) { c.Runner.PollIntervalMs = 0 }, "runner.poll_interval_ms"},
		{"negative debounce", func(c *Config) { c.Runner.PersistDebounceMs = -1 }, "runner.persist_debounce_ms"},
		{"zero inactivity timeout", func(c *Config) { c.Runner.InactivityTimeoutMinutes = 0 }, "runner.inactivity_timeout_minutes"},
		{"volume above one", func(c *Config) { c.Notifications.SoundVolume = 1.1 }, "notifications.sound_volume"},
		{"negative volume", func(c *Config) { c.Notifications.SoundVolume = -0.1 }, "notifications.sound_volume"},
		{"negative repeat", func(c *Config) { c.Notifications.SoundRepeat = -1 }, "notifications.sound_repeat"},
		{"unknown log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"negative max size", func(c *Config) { c.Logging.MaxSizeMB = -1 }, "logging.max_size_mb"},
		{"negative max backups", func(c *Config) { c.Logging.MaxBackups = -1 }, "logging.max_backups"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := Validate(cfg)
			if err == nil {
				t.Fatal("Validate should fail")
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("Error %q should name field %q", err.Error(), tt.field)
			}
		})
	}
}

func TestValidate_LogLevelCaseInsensitive(t *testing.T) {
	cfg := Default()
	cfg.Logging.Level = "DEBUG"

	if err := Validate(cfg); err != nil {
		t.Errorf("Upper-case level should validate, got %v", err)
	}
}

func TestValidationErrors_Formatting(t *testing.T) {
	one := ValidationErrors{
		{Field: "runner.poll_interval_ms", Value: 0, Message: "must be positive"},
	}
	if !strings.Contains(one.Error(), "runner.poll_interval_ms") {
		t.Errorf("Single error format: %q", one.Error())
	}

	many := ValidationErrors{
		{Field: "a", Value: 1, Message: "bad"},
		{Field: "b", Value: 2, Message: "worse"},
	}
	msg := many.Error()
	if !strings.Contains(msg, "2 validation errors") {
		t.Errorf("Multi-error format: %q", msg)
	}
	if !strings.Contains(msg, "a") || !strings.Contains(msg, "b") {
		t.Errorf("Multi-error format should list all fields: %q", msg)
	}
}
