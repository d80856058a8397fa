package bridge

import (
	"io"
	"os"
	"strings"
	"sync/atomic"

	"github.com/autoserve/autoserve/internal/logging"
)

// tailer reads the delta of a growing log file. It tracks the last-read
// byte offset and only emits complete lines, carrying a trailing partial
// line over to the next cycle. A busy flag prevents overlapping cycles when
// a read outlasts the poll interval.
type tailer struct {
	path   string
	logger *logging.Logger

	busy    atomic.Bool
	offset  int64
	partial string
}

func newTailer(path string, logger *logging.Logger) *tailer {
	return &tailer{path: path, logger: logger}
}

// poll reads everything written since the last cycle and emits each
// complete line. A missing file is normal early in a run, before the worker
// has created it. If the file shrank it was replaced; reading restarts from
// the beginning.
func (t *tailer) poll(emit func(line string)) {
	if !t.busy.CompareAndSwap(false, true) {
		return
	}
	defer t.busy.Store(false)

	f, err := os.Open(t.path)
	if err != nil {
		if !os.IsNotExist(err) {
			t.logger.Warn("failed to open worker log", "error", err)
		}
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		t.logger.Warn("failed to stat worker log", "error", err)
		return
	}
	if info.Size() < t.offset {
		t.offset = 0
		t.partial = ""
	}
	if info.Size() == t.offset {
		return
	}

	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		t.logger.Warn("failed to seek worker log", "error", err)
		return
	}

	data, err := io.ReadAll(f)
	if err != nil {
		t.logger.Warn("failed to read worker log", "error", err)
		return
	}
	t.offset += int64(len(data))

	text := t.partial + string(data)
	lines := strings.Split(text, "\n")
	t.partial = lines[len(lines)-1]

	for _, line := range lines[:len(lines)-1] {
		line = strings.TrimRight(line, "\r")
		if line != "" {
			emit(line)
		}
	}
}
