// Package worker launches and supervises the external maintenance runner
// process.
//
// The runner is opaque to the orchestrator: it receives a JSON task queue,
// executes tasks in order, and reports through the line protocol on
// stdout/stderr and a live log file. This package only spawns it, streams
// its output lines, and reports its exit.
package worker

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/autoserve/autoserve/internal/logging"
	"github.com/autoserve/autoserve/internal/runstate"
)

// Scanner buffer bounds. Progress snapshots embed every task result, so a
// single line can run long.
const (
	initialScanBuf = 64 * 1024
	maxScanBuf     = 1024 * 1024
)

// Runner supervises one worker process for one run.
type Runner struct {
	binary string
	runDir string
	logger *logging.Logger

	cmd   *exec.Cmd
	lines chan string
	wg    sync.WaitGroup
}

// New creates a Runner that will execute binary and keep the run's files
// (task queue, live log, final report) under runDir.
func New(binary, runDir string, logger *logging.Logger) *Runner {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Runner{
		binary: binary,
		runDir: runDir,
		logger: logger,
	}
}

// LogPath returns the live log file the worker writes; the bridge's tail
// channel polls it.
func (r *Runner) LogPath() string {
	return filepath.Join(r.runDir, "worker.log")
}

// ReportPath returns where the worker writes its final JSON report.
func (r *Runner) ReportPath() string {
	return filepath.Join(r.runDir, "report.json")
}

// ControlDir returns the directory the worker watches for control signal
// files.
func (r *Runner) ControlDir() string {
	return filepath.Join(r.runDir, "control")
}

// Lines returns the push channel: one protocol line per worker output line,
// merged from stdout and stderr. The channel closes when the process's
// output streams are exhausted.
func (r *Runner) Lines() <-chan string {
	return r.lines
}

// Start writes the task queue and spawns the worker process. Launch
// failures are returned to the caller, which may fall back to tail-only
// delivery or surface the error; the runner itself never retries.
func (r *Runner) Start(ctx context.Context, tasks []runstate.TaskSpec) error {
	if err := os.MkdirAll(r.runDir, 0755); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}

	tasksPath := filepath.Join(r.runDir, "tasks.json")
	if err := writeTaskQueue(tasksPath, tasks); err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, r.binary, tasksPath,
		"--log-file", r.LogPath(),
		"--output-file", r.ReportPath(),
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to open stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to launch worker %q: %w", r.binary, err)
	}

	r.cmd = cmd
	r.lines = make(chan string, 64)

	r.wg.Add(2)
	go r.scan(stdout)
	go r.scan(stderr)
	go func() {
		r.wg.Wait()
		close(r.lines)
	}()

	r.logger.Info("worker launched", "binary", r.binary, "pid", cmd.Process.Pid)
	return nil
}

// Wait blocks until the worker's output is fully consumed and the process
// has exited. The returned error reflects the process exit status.
func (r *Runner) Wait() error {
	if r.cmd == nil {
		return fmt.Errorf("worker not started")
	}
	r.wg.Wait()
	if err := r.cmd.Wait(); err != nil {
		return fmt.Errorf("worker exited abnormally: %w", err)
	}
	return nil
}

// scan forwards one stream's lines into the merged channel.
func (r *Runner) scan(stream io.Reader) {
	defer r.wg.Done()

	scanner := bufio.NewScanner(stream)
	scanner.Buffer(make([]byte, initialScanBuf), maxScanBuf)
	for scanner.Scan() {
		r.lines <- scanner.Text()
	}
	if err := scanner.Err(); err != nil {
		r.logger.Warn("worker output stream error", "error", err)
	}
}

// writeTaskQueue serializes the task queue in the worker's input format:
// {"tasks": [{"type": ...}, ...]}.
func writeTaskQueue(path string, tasks []runstate.TaskSpec) error {
	type taskPayload struct {
		Type  string `json:"type"`
		Label string `json:"label,omitempty"`
	}
	payload := struct {
		Tasks []taskPayload `json:"tasks"`
	}{Tasks: make([]taskPayload, len(tasks))}
	for i, t := range tasks {
		payload.Tasks[i] = taskPayload{Type: t.Type, Label: t.Label}
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal task queue: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write task queue: %w", err)
	}
	return nil
}
