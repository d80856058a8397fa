package notify

import (
	"strings"
	"testing"
)

// fakeSettings is a fixed-preference Settings implementation.
type fakeSettings struct {
	notifications bool
	sound         bool
	volume        float64
	soundID       string
	repeat        int
}

func (f fakeSettings) NotificationsEnabled() bool { return f.notifications }
func (f fakeSettings) SoundEnabled() bool         { return f.sound }
func (f fakeSettings) SoundVolume() float64       { return f.volume }
func (f fakeSettings) SoundID() string            { return f.soundID }
func (f fakeSettings) SoundRepeat() int           { return f.repeat }

func allEnabled() fakeSettings {
	return fakeSettings{notifications: true, sound: true, volume: 0.8, soundID: "chime"}
}

type fakeNotifier struct {
	titles []string
}

func (f *fakeNotifier) Notify(title, body string) error {
	f.titles = append(f.titles, title)
	return nil
}

type fakePlayer struct {
	plays []string
}

func (f *fakePlayer) Play(soundID string, volume float64, repeat int) error {
	f.plays = append(f.plays, soundID)
	return nil
}

func TestTrigger_FiresOnce(t *testing.T) {
	dir := t.TempDir()
	notifier := &fakeNotifier{}
	player := &fakePlayer{}
	trigger := New(dir, allEnabled(), notifier, player, nil, nil)

	trigger.Fire("run-1", true)
	trigger.Fire("run-1", true)
	trigger.Fire("run-1", false)

	if len(notifier.titles) != 1 {
		t.Errorf("Expected 1 notification, got %d", len(notifier.titles))
	}
	if len(player.plays) != 1 {
		t.Errorf("Expected 1 sound, got %d", len(player.plays))
	}
	if player.plays[0] != "chime" {
		t.Errorf("Sound ID = %q, want chime", player.plays[0])
	}
}

func TestTrigger_MarkerSurvivesReload(t *testing.T) {
	// A new Trigger over the same marker directory models an application
	// restart; the completion must not fire again.
	dir := t.TempDir()
	first := New(dir, allEnabled(), &fakeNotifier{}, &fakePlayer{}, nil, nil)
	first.Fire("run-1", true)

	notifier := &fakeNotifier{}
	second := New(dir, allEnabled(), notifier, &fakePlayer{}, nil, nil)
	second.Fire("run-1", true)

	if len(notifier.titles) != 0 {
		t.Errorf("Restarted trigger should not refire, got %d notifications", len(notifier.titles))
	}
}

func TestTrigger_DistinctRunsFireIndependently(t *testing.T) {
	dir := t.TempDir()
	notifier := &fakeNotifier{}
	trigger := New(dir, allEnabled(), notifier, &fakePlayer{}, nil, nil)

	trigger.Fire("run-1", true)
	trigger.Fire("run-2", false)

	if len(notifier.titles) != 2 {
		t.Fatalf("Expected 2 notifications, got %d", len(notifier.titles))
	}
	if strings.Contains(notifier.titles[0], "problems") {
		t.Errorf("Success title = %q", notifier.titles[0])
	}
	if !strings.Contains(notifier.titles[1], "problems") {
		t.Errorf("Failure title = %q", notifier.titles[1])
	}
}

func TestTrigger_ForegroundSuppressesNotificationOnly(t *testing.T) {
	dir := t.TempDir()
	notifier := &fakeNotifier{}
	player := &fakePlayer{}
	foreground := func() bool { return true }
	trigger := New(dir, allEnabled(), notifier, player, foreground, nil)

	trigger.Fire("run-1", true)

	if len(notifier.titles) != 0 {
		t.Error("Notification should be suppressed while foregrounded")
	}
	if len(player.plays) != 1 {
		t.Error("Sound should play regardless of foreground state")
	}
}

func TestTrigger_SettingsGates(t *testing.T) {
	dir := t.TempDir()
	notifier := &fakeNotifier{}
	player := &fakePlayer{}
	settings := fakeSettings{notifications: false, sound: false}
	trigger := New(dir, settings, notifier, player, nil, nil)

	trigger.Fire("run-1", true)

	if len(notifier.titles) != 0 || len(player.plays) != 0 {
		t.Error("Disabled settings should suppress both signals")
	}

	// The marker is still written: re-enabling later must not refire a
	// completion the user already lived through.
	settings = allEnabled()
	rearmed := New(dir, settings, notifier, player, nil, nil)
	rearmed.Fire("run-1", true)
	if len(notifier.titles) != 0 {
		t.Error("Fired run should stay fired after settings change")
	}
}

func TestTrigger_ResetRearms(t *testing.T) {
	dir := t.TempDir()
	notifier := &fakeNotifier{}
	trigger := New(dir, allEnabled(), notifier, &fakePlayer{}, nil, nil)

	trigger.Fire("run-1", true)
	trigger.Reset("run-1")
	trigger.Fire("run-1", true)

	if len(notifier.titles) != 2 {
		t.Errorf("Reset should re-arm the trigger, got %d notifications", len(notifier.titles))
	}
}

func TestTrigger_EmptyRunIDIgnored(t *testing.T) {
	dir := t.TempDir()
	notifier := &fakeNotifier{}
	trigger := New(dir, allEnabled(), notifier, &fakePlayer{}, nil, nil)

	trigger.Fire("", true)
	trigger.Reset("")

	if len(notifier.titles) != 0 {
		t.Errorf("Empty run ID should fire nothing, got %d", len(notifier.titles))
	}
}

func TestTrigger_NilCollaborators(t *testing.T) {
	dir := t.TempDir()
	trigger := New(dir, allEnabled(), nil, nil, nil, nil)

	// Nil notifier and player just disable the signals.
	trigger.Fire("run-1", true)
}
