package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "runner.poll_interval_ms")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks cfg for invalid values, returning all problems at once.
// A nil return means the configuration is usable.
func Validate(cfg *Config) error {
	var errs ValidationErrors

	if cfg.Runner.PollIntervalMs <= 0 {
		errs = append(errs, ValidationError{
			Field:   "runner.poll_interval_ms",
			Value:   cfg.Runner.PollIntervalMs,
			Message: "must be positive",
		})
	}
	if cfg.Runner.PersistDebounceMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "runner.persist_debounce_ms",
			Value:   cfg.Runner.PersistDebounceMs,
			Message: "must not be negative",
		})
	}
	if cfg.Runner.InactivityTimeoutMinutes <= 0 {
		errs = append(errs, ValidationError{
			Field:   "runner.inactivity_timeout_minutes",
			Value:   cfg.Runner.InactivityTimeoutMinutes,
			Message: "must be positive",
		})
	}

	if cfg.Notifications.SoundVolume < 0 || cfg.Notifications.SoundVolume > 1 {
		errs = append(errs, ValidationError{
			Field:   "notifications.sound_volume",
			Value:   cfg.Notifications.SoundVolume,
			Message: "must be between 0 and 1",
		})
	}
	if cfg.Notifications.SoundRepeat < 0 {
		errs = append(errs, ValidationError{
			Field:   "notifications.sound_repeat",
			Value:   cfg.Notifications.SoundRepeat,
			Message: "must not be negative",
		})
	}

	if !slices.Contains(ValidLogLevels(), strings.ToLower(cfg.Logging.Level)) {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Value:   cfg.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}
	if cfg.Logging.MaxSizeMB < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   cfg.Logging.MaxSizeMB,
			Message: "must not be negative",
		})
	}
	if cfg.Logging.MaxBackups < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_backups",
			Value:   cfg.Logging.MaxBackups,
			Message: "must not be negative",
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
