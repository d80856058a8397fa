// Package notify fires user-facing completion signals — a desktop
// notification and a sound — when a run reaches a terminal status.
//
// The guarantee is at most one notification and at most one sound per run
// ID, enforced by a persisted marker file that survives navigation and
// application reload.
package notify

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/autoserve/autoserve/internal/logging"
)

// Settings provides read-only access to the completion preferences owned by
// the settings collaborator.
type Settings interface {
	NotificationsEnabled() bool
	SoundEnabled() bool
	SoundVolume() float64
	SoundID() string
	SoundRepeat() int
}

// Notifier shows a desktop notification.
type Notifier interface {
	Notify(title, body string) error
}

// SoundPlayer plays a completion sound.
type SoundPlayer interface {
	Play(soundID string, volume float64, repeat int) error
}

// ForegroundChecker reports whether the run view is currently foregrounded.
// Desktop notifications are suppressed while it is; sound is not.
type ForegroundChecker func() bool

// Trigger decides whether to fire completion signals for a terminal run.
type Trigger struct {
	markerDir  string
	settings   Settings
	notifier   Notifier
	player     SoundPlayer
	foreground ForegroundChecker
	logger     *logging.Logger

	mu sync.Mutex
}

// New creates a Trigger persisting its fired markers under markerDir.
// notifier, player, and foreground may be nil: a nil notifier or player
// disables that signal, and a nil foreground checker is treated as "not
// foregrounded".
func New(markerDir string, settings Settings, notifier Notifier, player SoundPlayer,
	foreground ForegroundChecker, logger *logging.Logger) *Trigger {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Trigger{
		markerDir:  markerDir,
		settings:   settings,
		notifier:   notifier,
		player:     player,
		foreground: foreground,
		logger:     logger,
	}
}

// Fire fires the completion signals for runID at most once. The marker is
// checked before firing and written immediately after, so a second call —
// from a duplicate terminal line, a view re-entry, or a restored session —
// is a no-op.
func (t *Trigger) Fire(runID string, success bool) {
	if runID == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.fired(runID) {
		t.logger.Debug("completion already signaled", "run_id", runID)
		return
	}

	t.fireNotification(runID, success)
	t.fireSound(runID)

	if err := t.writeMarker(runID); err != nil {
		t.logger.Warn("failed to persist completion marker",
			"run_id", runID, "error", err)
	}
}

// Reset removes the fired marker for runID, re-arming the trigger. Called
// when a run's state is cleaned up.
func (t *Trigger) Reset(runID string) {
	if runID == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := os.Remove(t.markerPath(runID)); err != nil && !os.IsNotExist(err) {
		t.logger.Warn("failed to remove completion marker",
			"run_id", runID, "error", err)
	}
}

func (t *Trigger) fireNotification(runID string, success bool) {
	if t.notifier == nil || !t.settings.NotificationsEnabled() {
		return
	}
	if t.foreground != nil && t.foreground() {
		t.logger.Debug("notification suppressed: run view foregrounded", "run_id", runID)
		return
	}

	title := "Service run finished"
	body := "All tasks completed successfully."
	if !success {
		title = "Service run finished with problems"
		body = "One or more tasks did not complete successfully."
	}
	if err := t.notifier.Notify(title, body); err != nil {
		t.logger.Warn("failed to show notification", "run_id", runID, "error", err)
	}
}

func (t *Trigger) fireSound(runID string) {
	if t.player == nil || !t.settings.SoundEnabled() {
		return
	}
	err := t.player.Play(t.settings.SoundID(), t.settings.SoundVolume(), t.settings.SoundRepeat())
	if err != nil {
		t.logger.Warn("failed to play completion sound", "run_id", runID, "error", err)
	}
}

func (t *Trigger) fired(runID string) bool {
	_, err := os.Stat(t.markerPath(runID))
	return err == nil
}

func (t *Trigger) writeMarker(runID string) error {
	if err := os.MkdirAll(t.markerDir, 0755); err != nil {
		return fmt.Errorf("failed to create marker directory: %w", err)
	}
	f, err := os.OpenFile(t.markerPath(runID), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return fmt.Errorf("failed to create marker file: %w", err)
	}
	return f.Close()
}

func (t *Trigger) markerPath(runID string) string {
	return filepath.Join(t.markerDir, ".notified-"+runID)
}
