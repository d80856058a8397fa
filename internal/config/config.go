// Package config defines Autoserve's configuration, loaded with viper from
// a YAML file and environment variables. It is the settings collaborator
// for the orchestrator: the completion trigger reads notification and sound
// preferences through the Live holder, which the fsnotify watcher keeps
// current so mid-run toggles are honored.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete Autoserve configuration
type Config struct {
	Runner        RunnerConfig       `mapstructure:"runner"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Logging       LoggingConfig      `mapstructure:"logging"`
	Paths         PathsConfig        `mapstructure:"paths"`
}

// RunnerConfig controls how the maintenance worker is launched and observed
type RunnerConfig struct {
	// Binary is the path to the worker executable (the automation runner)
	Binary string `mapstructure:"binary"`
	// PollIntervalMs is how often the log tail channel polls for new output
	PollIntervalMs int `mapstructure:"poll_interval_ms"`
	// PersistDebounceMs is how long state mutations are coalesced before a durable write
	PersistDebounceMs int `mapstructure:"persist_debounce_ms"`
	// InactivityTimeoutMinutes is how old a persisted run may be before restore discards it
	InactivityTimeoutMinutes int `mapstructure:"inactivity_timeout_minutes"`
}

// NotificationConfig controls completion signals
type NotificationConfig struct {
	// Enabled controls desktop notifications on run completion
	Enabled bool `mapstructure:"enabled"`
	// SoundEnabled controls the completion sound
	SoundEnabled bool `mapstructure:"sound_enabled"`
	// SoundVolume is the playback volume in [0, 1]
	SoundVolume float64 `mapstructure:"sound_volume"`
	// SoundID selects which completion sound to play
	SoundID string `mapstructure:"sound_id"`
	// SoundRepeat is how many times the sound repeats (0 = play once)
	SoundRepeat int `mapstructure:"sound_repeat"`
}

// LoggingConfig controls the orchestrator log and the worker output mirror
type LoggingConfig struct {
	// Enabled turns file logging on
	Enabled bool `mapstructure:"enabled"`
	// Level is the minimum log level: debug, info, warn, error
	Level string `mapstructure:"level"`
	// MaxSizeMB is the worker output mirror size limit before rotation
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is the number of rotated mirror files to keep
	MaxBackups int `mapstructure:"max_backups"`
}

// PathsConfig controls where Autoserve keeps its state
type PathsConfig struct {
	// DataDir overrides the default data directory (~/.autoserve)
	DataDir string `mapstructure:"data_dir"`
}

// PollInterval returns the tail poll interval as a time.Duration
func (c *RunnerConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// PersistDebounce returns the persistence debounce as a time.Duration
func (c *RunnerConfig) PersistDebounce() time.Duration {
	return time.Duration(c.PersistDebounceMs) * time.Millisecond
}

// InactivityTimeout returns the restore staleness window as a time.Duration
func (c *RunnerConfig) InactivityTimeout() time.Duration {
	return time.Duration(c.InactivityTimeoutMinutes) * time.Minute
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Runner: RunnerConfig{
			Binary:                   "service_runner",
			PollIntervalMs:           700,
			PersistDebounceMs:        500,
			InactivityTimeoutMinutes: 10,
		},
		Notifications: NotificationConfig{
			Enabled:      true,
			SoundEnabled: true,
			SoundVolume:  0.8,
			SoundID:      "chime",
			SoundRepeat:  0,
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Paths: PathsConfig{
			DataDir: "",
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("runner.binary", defaults.Runner.Binary)
	viper.SetDefault("runner.poll_interval_ms", defaults.Runner.PollIntervalMs)
	viper.SetDefault("runner.persist_debounce_ms", defaults.Runner.PersistDebounceMs)
	viper.SetDefault("runner.inactivity_timeout_minutes", defaults.Runner.InactivityTimeoutMinutes)

	viper.SetDefault("notifications.enabled", defaults.Notifications.Enabled)
	viper.SetDefault("notifications.sound_enabled", defaults.Notifications.SoundEnabled)
	viper.SetDefault("notifications.sound_volume", defaults.Notifications.SoundVolume)
	viper.SetDefault("notifications.sound_id", defaults.Notifications.SoundID)
	viper.SetDefault("notifications.sound_repeat", defaults.Notifications.SoundRepeat)

	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)

	viper.SetDefault("paths.data_dir", defaults.Paths.DataDir)
}

// Load unmarshals the current viper state into a Config and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ConfigDir returns the directory searched for the config file.
func ConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "autoserve")
	}
	return "."
}

// DataDir resolves the data directory: the configured override, or
// ~/.autoserve.
func (c *Config) DataDir() string {
	if c.Paths.DataDir != "" {
		return c.Paths.DataDir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".autoserve"
	}
	return filepath.Join(home, ".autoserve")
}

// Live holds the current configuration and swaps it atomically when the
// watcher reloads. It implements the settings collaborator interface the
// completion trigger reads from.
type Live struct {
	mu  sync.RWMutex
	cfg *Config
}

// NewLive creates a Live holder with an initial configuration.
func NewLive(cfg *Config) *Live {
	return &Live{cfg: cfg}
}

// Get returns the current configuration.
func (l *Live) Get() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg
}

// Set replaces the current configuration.
func (l *Live) Set(cfg *Config) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cfg = cfg
}

// NotificationsEnabled reports whether desktop notifications are on.
func (l *Live) NotificationsEnabled() bool { return l.Get().Notifications.Enabled }

// SoundEnabled reports whether the completion sound is on.
func (l *Live) SoundEnabled() bool { return l.Get().Notifications.SoundEnabled }

// SoundVolume returns the configured playback volume.
func (l *Live) SoundVolume() float64 { return l.Get().Notifications.SoundVolume }

// SoundID returns the configured completion sound.
func (l *Live) SoundID() string { return l.Get().Notifications.SoundID }

// SoundRepeat returns the configured repeat count.
func (l *Live) SoundRepeat() int { return l.Get().Notifications.SoundRepeat }
