// Package runstate maintains the state of a service run: the ordered task
// queue handed to the maintenance worker, per-task status, overall run
// status, and durable persistence that survives an application restart.
//
// The Store is the single source of truth. All status updates flow through
// it, it notifies subscribers synchronously on every mutation, and it
// persists itself (debounced) so an interrupted session can be restored.
package runstate

import "time"

// TaskStatus is the lifecycle status of an individual task.
type TaskStatus string

// Task statuses. A task moves pending → running → terminal; skip may be
// entered directly from pending when the worker has no handler for the task.
const (
	TaskPending TaskStatus = "pending"
	TaskRunning TaskStatus = "running"
	TaskSuccess TaskStatus = "success"
	TaskError   TaskStatus = "error"
	TaskWarning TaskStatus = "warning"
	TaskSkipped TaskStatus = "skip"
)

// Valid reports whether s is a known task status.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskPending, TaskRunning, TaskSuccess, TaskError, TaskWarning, TaskSkipped:
		return true
	}
	return false
}

// Terminal reports whether s is a terminal task status. Terminal statuses
// never revert; late duplicates are idempotent no-ops.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskSuccess, TaskError, TaskWarning, TaskSkipped:
		return true
	}
	return false
}

// NormalizeTaskStatus maps an arbitrary status string to a TaskStatus.
// Unknown strings normalize to pending; the second return value reports
// whether the input was a known status.
func NormalizeTaskStatus(raw string) (TaskStatus, bool) {
	s := TaskStatus(raw)
	if s.Valid() {
		return s, true
	}
	return TaskPending, false
}

// OverallStatus is the lifecycle status of the run as a whole.
type OverallStatus string

// Overall statuses. The run moves idle → running ⇄ paused → terminal.
// InitRun is the only transition out of a terminal status, and it allocates
// a new run ID.
const (
	StatusIdle      OverallStatus = "idle"
	StatusRunning   OverallStatus = "running"
	StatusPaused    OverallStatus = "paused"
	StatusCompleted OverallStatus = "completed"
	StatusError     OverallStatus = "error"
	StatusStopped   OverallStatus = "stopped"
)

// Valid reports whether s is a known overall status.
func (s OverallStatus) Valid() bool {
	switch s {
	case StatusIdle, StatusRunning, StatusPaused, StatusCompleted, StatusError, StatusStopped:
		return true
	}
	return false
}

// Terminal reports whether s is a terminal overall status.
func (s OverallStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusError, StatusStopped:
		return true
	}
	return false
}

// Active reports whether s describes a run in flight (running or paused).
func (s OverallStatus) Active() bool {
	return s == StatusRunning || s == StatusPaused
}

// TaskSpec describes one task to queue when initializing a run.
type TaskSpec struct {
	// Type is the worker task identifier (e.g., "sfc_scan", "ping_test").
	Type string
	// Label is an optional display name; defaults to Type when empty.
	Label string
}

// TaskInfo is the tracked state of one queued task.
type TaskInfo struct {
	ID        int        `json:"id"`
	Type      string     `json:"type"`
	Label     string     `json:"label,omitempty"`
	Status    TaskStatus `json:"status"`
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
}

// RunState is the full state of a service run. Snapshots handed to
// subscribers are deep copies; mutating them has no effect on the store.
type RunState struct {
	RunID            string            `json:"run_id"`
	Tasks            []TaskInfo        `json:"tasks"`
	CurrentTaskIndex int               `json:"current_task_index"` // -1 when no task is running
	StartTime        *time.Time        `json:"start_time,omitempty"`
	EndTime          *time.Time        `json:"end_time,omitempty"`
	OverallStatus    OverallStatus     `json:"overall_status"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	LastActivity     time.Time         `json:"last_activity_time"`
}

// Clone returns a deep copy of the state.
func (s RunState) Clone() RunState {
	out := s
	out.Tasks = make([]TaskInfo, len(s.Tasks))
	copy(out.Tasks, s.Tasks)
	for i := range out.Tasks {
		out.Tasks[i].StartTime = cloneTime(s.Tasks[i].StartTime)
		out.Tasks[i].EndTime = cloneTime(s.Tasks[i].EndTime)
	}
	out.StartTime = cloneTime(s.StartTime)
	out.EndTime = cloneTime(s.EndTime)
	if s.Metadata != nil {
		out.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// idleState returns the empty state used before any run starts and after
// Cleanup.
func idleState() RunState {
	return RunState{
		CurrentTaskIndex: -1,
		OverallStatus:    StatusIdle,
	}
}
