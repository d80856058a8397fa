// Package event defines event types for decoupling Autoserve components.
// These events let the orchestrator, completion trigger, and any view layer
// communicate without direct dependencies.
package event

import "time"

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "run.started", "run.completed")
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// baseEvent provides common fields for all events.
// Embed this in concrete event types to satisfy the Event interface.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

// newBaseEvent creates a baseEvent with the current time.
func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Run Lifecycle Events
// -----------------------------------------------------------------------------

// RunStartedEvent is emitted when a new service run is initialized.
type RunStartedEvent struct {
	baseEvent
	RunID     string // Unique identifier for the run
	TaskCount int    // Number of tasks queued
	Title     string // Caller-supplied title, may be empty
}

// NewRunStartedEvent creates a RunStartedEvent.
func NewRunStartedEvent(runID string, taskCount int, title string) RunStartedEvent {
	return RunStartedEvent{
		baseEvent: newBaseEvent("run.started"),
		RunID:     runID,
		TaskCount: taskCount,
		Title:     title,
	}
}

// TaskStatusEvent is emitted when an individual task changes status.
type TaskStatusEvent struct {
	baseEvent
	RunID  string // Run the task belongs to
	Index  int    // Task index within the run
	Type   string // Worker task identifier (e.g., "sfc_scan")
	Status string // New task status
}

// NewTaskStatusEvent creates a TaskStatusEvent.
func NewTaskStatusEvent(runID string, index int, taskType, status string) TaskStatusEvent {
	return TaskStatusEvent{
		baseEvent: newBaseEvent("run.task"),
		RunID:     runID,
		Index:     index,
		Type:      taskType,
		Status:    status,
	}
}

// RunProgressEvent is emitted on overall progress changes that are not
// task-status transitions (current task moved, run paused or resumed).
type RunProgressEvent struct {
	baseEvent
	RunID         string // Run identifier
	OverallStatus string // Current overall status
	Completed     int    // Tasks in a terminal status
	Total         int    // Total tasks in the run
}

// NewRunProgressEvent creates a RunProgressEvent.
func NewRunProgressEvent(runID, overallStatus string, completed, total int) RunProgressEvent {
	return RunProgressEvent{
		baseEvent:     newBaseEvent("run.progress"),
		RunID:         runID,
		OverallStatus: overallStatus,
		Completed:     completed,
		Total:         total,
	}
}

// RunCompletedEvent is emitted exactly once when a run reaches a terminal
// overall status. The completion trigger listens for this event.
type RunCompletedEvent struct {
	baseEvent
	RunID         string // Run identifier
	OverallStatus string // Terminal status: "completed", "error", or "stopped"
	Success       bool   // True only for "completed"
}

// NewRunCompletedEvent creates a RunCompletedEvent.
func NewRunCompletedEvent(runID, overallStatus string, success bool) RunCompletedEvent {
	return RunCompletedEvent{
		baseEvent:     newBaseEvent("run.completed"),
		RunID:         runID,
		OverallStatus: overallStatus,
		Success:       success,
	}
}

// -----------------------------------------------------------------------------
// Control Events
// -----------------------------------------------------------------------------

// ControlSentEvent is emitted when a control signal is dispatched to the
// worker process. It reflects the attempt, not the worker's acknowledgment;
// the authoritative status change arrives via the line protocol.
type ControlSentEvent struct {
	baseEvent
	RunID  string // Run identifier
	Signal string // "stop", "pause", "resume", or "skip"
	Err    error  // Non-nil if the transport rejected the signal
}

// NewControlSentEvent creates a ControlSentEvent.
func NewControlSentEvent(runID, signal string, err error) ControlSentEvent {
	return ControlSentEvent{
		baseEvent: newBaseEvent("run.control"),
		RunID:     runID,
		Signal:    signal,
		Err:       err,
	}
}
