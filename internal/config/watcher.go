package config

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/autoserve/autoserve/internal/logging"
)

// Watcher monitors the config directory and reloads settings into a Live
// holder when the file changes. This keeps mid-run preference toggles
// (sound on/off, notification on/off) effective without a restart.
type Watcher struct {
	live     *Live
	watchDir string
	watcher  *fsnotify.Watcher
	logger   *logging.Logger
	debounce time.Duration
}

// NewWatcher creates a watcher for the given config directory.
func NewWatcher(live *Live, watchDir string, logger *logging.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if logger == nil {
		logger = logging.NopLogger()
	}

	return &Watcher{
		live:     live,
		watchDir: watchDir,
		watcher:  fsWatcher,
		logger:   logger,
		debounce: 100 * time.Millisecond,
	}, nil
}

// Start begins watching. It returns immediately; watching stops when ctx is
// canceled or Close is called.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(w.watchDir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.watchDir, err)
	}

	go w.loop(ctx)
	return nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) loop(ctx context.Context) {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.isConfigFile(ev.Name) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			// Editors often emit bursts of writes; reload once per burst.
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, w.reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", "error", err)
		}
	}
}

// isConfigFile reports whether name looks like the config file viper reads.
func (w *Watcher) isConfigFile(name string) bool {
	base := filepath.Base(name)
	return strings.HasPrefix(base, "config.")
}

// reload re-reads the config file and swaps the Live holder. An unreadable
// or invalid file keeps the previous settings.
func (w *Watcher) reload() {
	if err := viper.ReadInConfig(); err != nil {
		w.logger.Warn("config reload failed", "error", err)
		return
	}
	cfg, err := Load()
	if err != nil {
		w.logger.Warn("config reload rejected", "error", err)
		return
	}
	w.live.Set(cfg)
	w.logger.Info("configuration reloaded", "file", viper.ConfigFileUsed())
}
