package notify

import "github.com/autoserve/autoserve/internal/logging"

// LogNotifier records notifications in the structured log. Hosts without a
// native notification integration use it as the default sink.
type LogNotifier struct {
	Logger *logging.Logger
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(title, body string) error {
	n.Logger.Info("notification", "title", title, "body", body)
	return nil
}

// LogSoundPlayer records sound playback requests in the structured log.
type LogSoundPlayer struct {
	Logger *logging.Logger
}

// Play implements SoundPlayer.
func (p *LogSoundPlayer) Play(soundID string, volume float64, repeat int) error {
	p.Logger.Info("completion sound", "sound_id", soundID, "volume", volume, "repeat", repeat)
	return nil
}
