package runstate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/autoserve/autoserve/internal/logging"
)

// persister owns the durable copy of the run state. Mutations are coalesced
// over the debounce window so a burst of task updates costs one write;
// flush bypasses the window for transitions that must hit disk immediately
// (run start, terminal status).
type persister struct {
	path     string
	debounce time.Duration
	logger   *logging.Logger

	mu      sync.Mutex
	timer   *time.Timer
	pending *RunState
}

func newPersister(path string, debounce time.Duration, logger *logging.Logger) *persister {
	return &persister{
		path:     path,
		debounce: debounce,
		logger:   logger,
	}
}

// schedule records snap as the state to persist and arms the debounce timer
// if it is not already running. Later snapshots replace earlier ones.
func (p *persister) schedule(snap RunState) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.pending = &snap
	if p.timer == nil {
		p.timer = time.AfterFunc(p.debounce, p.fire)
	}
}

// fire writes the most recent pending snapshot.
func (p *persister) fire() {
	p.mu.Lock()
	snap := p.pending
	p.pending = nil
	p.timer = nil
	p.mu.Unlock()

	if snap != nil {
		p.write(*snap)
	}
}

// flush cancels any pending debounced write and persists snap immediately.
func (p *persister) flush(snap RunState) {
	p.mu.Lock()
	p.cancelLocked()
	p.mu.Unlock()

	p.write(snap)
}

// cancel drops any pending debounced write without persisting it.
func (p *persister) cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelLocked()
}

func (p *persister) cancelLocked() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.pending = nil
}

// stop flushes any pending snapshot. Call on shutdown.
func (p *persister) stop() {
	p.mu.Lock()
	snap := p.pending
	p.cancelLocked()
	p.mu.Unlock()

	if snap != nil {
		p.write(*snap)
	}
}

// clear cancels pending writes and removes the durable record.
func (p *persister) clear() {
	p.cancel()
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		p.logger.Warn("failed to remove persisted run state", "error", err)
	}
}

// write persists snap atomically. Persistence failures are logged, never
// surfaced: durability is best-effort and must not disturb the run.
func (p *persister) write(snap RunState) {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		p.logger.Error("failed to marshal run state", "error", err)
		return
	}
	if err := atomicWriteFile(p.path, data, 0644); err != nil {
		p.logger.Error("failed to persist run state", "error", err)
	}
}

// load reads and validates the durable record. Returns ErrNotFound when no
// record exists and ErrCorrupted (wrapped) on decode or schema failures.
func (p *persister) load() (RunState, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return RunState{}, ErrNotFound
		}
		return RunState{}, fmt.Errorf("failed to read run state: %w", err)
	}

	var st RunState
	if err := json.Unmarshal(data, &st); err != nil {
		return RunState{}, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	if err := validateState(st); err != nil {
		return RunState{}, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	return st, nil
}

// validateState checks the decoded record against the schema. Invalid
// documents are discarded by the caller, not repaired.
func validateState(st RunState) error {
	if st.RunID == "" {
		return fmt.Errorf("missing run_id")
	}
	if !st.OverallStatus.Valid() {
		return fmt.Errorf("unknown overall_status %q", st.OverallStatus)
	}
	if st.LastActivity.IsZero() {
		return fmt.Errorf("missing last_activity_time")
	}
	if st.CurrentTaskIndex < -1 || st.CurrentTaskIndex >= len(st.Tasks) {
		return fmt.Errorf("current_task_index %d out of range", st.CurrentTaskIndex)
	}
	for i, task := range st.Tasks {
		if !task.Status.Valid() {
			return fmt.Errorf("task %d has unknown status %q", i, task.Status)
		}
		if task.Type == "" {
			return fmt.Errorf("task %d missing type", i)
		}
	}
	return nil
}

// atomicWriteFile writes data via a temp file and rename so the target is
// never observed partially written.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}
