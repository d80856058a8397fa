package protocol

import (
	"fmt"
	"io"

	"github.com/autoserve/autoserve/internal/logging"
	"github.com/autoserve/autoserve/internal/runstate"
)

// Parser applies parsed protocol lines to the run state store. All state
// mutations are synchronous; Process returns as soon as the line has been
// applied, it never blocks on I/O.
type Parser struct {
	store  *runstate.Store
	logger *logging.Logger
	sink   io.Writer // receives plain log lines; may be nil
}

// NewParser creates a Parser writing plain (non-marker) lines to sink.
// A nil sink discards them; they are still logged at debug level.
func NewParser(store *runstate.Store, logger *logging.Logger, sink io.Writer) *Parser {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Parser{store: store, logger: logger, sink: sink}
}

// Process parses one line and applies its effect to the store.
func (p *Parser) Process(raw string) {
	line := Parse(raw)

	switch line.Kind {
	case KindTaskStart:
		p.store.UpdateTaskStatus(line.Index, runstate.TaskRunning)

	case KindTaskOK:
		p.store.UpdateTaskStatus(line.Index, runstate.TaskSuccess)

	case KindTaskFail:
		if line.Reason != "" {
			p.logger.WithTask(line.Index).Info("task failed", "reason", line.Reason)
		}
		p.store.UpdateTaskStatus(line.Index, runstate.TaskError)

	case KindTaskSkip:
		if line.Reason != "" {
			p.logger.WithTask(line.Index).Info("task skipped", "reason", line.Reason)
		}
		p.store.UpdateTaskStatus(line.Index, runstate.TaskSkipped)

	case KindProgress:
		p.mergeProgress(line.Progress)

	case KindProgressFinal:
		p.mergeProgress(line.Progress)
		overall := runstate.StatusError
		if line.Progress.OverallStatus == "success" {
			overall = runstate.StatusCompleted
		}
		p.store.UpdateProgress(runstate.ProgressUpdate{OverallStatus: &overall})

	case KindRunStopped:
		p.applyControlAck(runstate.StatusStopped, line.Reason)

	case KindRunPaused:
		p.applyControlAck(runstate.StatusPaused, line.Reason)

	case KindRunResumed:
		p.applyControlAck(runstate.StatusRunning, line.Reason)

	case KindIgnored:
		p.logger.Warn("malformed protocol line skipped", "line", truncate(line.Raw, 200))

	case KindText:
		if line.Raw != "" {
			if p.sink != nil {
				fmt.Fprintln(p.sink, line.Raw)
			}
			p.logger.Debug("worker output", "line", truncate(line.Raw, 200))
		}
	}
}

// mergeProgress folds the per-task statuses of a progress payload into the
// store. Entries are positional: entry i describes task i. Only terminal or
// running statuses are applied; unknown strings are logged and skipped so a
// malformed entry cannot regress a task.
func (p *Parser) mergeProgress(payload *ProgressPayload) {
	for i, entry := range payload.Entries() {
		status, ok := mapWorkerStatus(entry.Status)
		if !ok {
			p.logger.Warn("unknown status in progress payload skipped",
				"index", i, "status", entry.Status)
			continue
		}
		p.store.UpdateTaskStatus(i, status)
	}
}

// applyControlAck applies a worker RUN_* acknowledgment. The worker is the
// authority for these transitions; the dispatcher never sets them
// optimistically.
func (p *Parser) applyControlAck(status runstate.OverallStatus, reason string) {
	if reason != "" {
		p.logger.Info("worker control acknowledgment",
			"status", string(status), "reason", reason)
	}
	p.store.UpdateProgress(runstate.ProgressUpdate{OverallStatus: &status})
}

// mapWorkerStatus translates the worker's result vocabulary into task
// statuses. The worker says "failure" and "skipped"; the store says "error"
// and "skip". Warning stays distinct from error.
func mapWorkerStatus(raw string) (runstate.TaskStatus, bool) {
	switch raw {
	case "success":
		return runstate.TaskSuccess, true
	case "failure", "error":
		return runstate.TaskError, true
	case "skipped", "skip":
		return runstate.TaskSkipped, true
	case "warning":
		return runstate.TaskWarning, true
	case "running":
		return runstate.TaskRunning, true
	default:
		return "", false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
