package runstate

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/autoserve/autoserve/internal/event"
	"github.com/autoserve/autoserve/internal/logging"
)

// Defaults for persistence behavior.
const (
	// DefaultInactivityTimeout is how old a persisted run may be before
	// restore discards it as stale.
	DefaultInactivityTimeout = 10 * time.Minute

	// DefaultPersistDebounce is how long mutations are coalesced before a
	// durable write.
	DefaultPersistDebounce = 500 * time.Millisecond
)

// Subscriber receives a full state snapshot on every mutation.
//
// Subscribers are invoked synchronously, in mutation order, while the store
// lock is held: one mutation is fully applied and delivered before the next
// is considered. A subscriber must not call back into the store; the
// snapshot it receives is complete and detached.
type Subscriber func(RunState)

type storeSub struct {
	id uint64
	fn Subscriber
}

// Store is the single source of truth for the current service run. There is
// one Store per orchestrator; construct it explicitly and inject it into the
// components that need it.
type Store struct {
	logger *logging.Logger
	bus    *event.Bus

	mu      sync.Mutex
	state   RunState
	subs    []storeSub
	nextSub uint64

	persist           *persister
	inactivityTimeout time.Duration
	debounce          time.Duration
	now               func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithBus attaches an event bus; the store publishes typed run events
// (run.started, run.task, run.progress, run.completed) on every mutation in
// addition to invoking subscribers.
func WithBus(bus *event.Bus) Option {
	return func(s *Store) { s.bus = bus }
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithInactivityTimeout overrides the staleness window for restored state.
func WithInactivityTimeout(d time.Duration) Option {
	return func(s *Store) { s.inactivityTimeout = d }
}

// WithPersistDebounce overrides the persistence debounce interval.
func WithPersistDebounce(d time.Duration) Option {
	return func(s *Store) { s.debounce = d }
}

// New creates a Store persisting to statePath. An empty statePath disables
// persistence (useful for tests).
func New(statePath string, logger *logging.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = logging.NopLogger()
	}
	s := &Store{
		logger:            logger,
		state:             idleState(),
		inactivityTimeout: DefaultInactivityTimeout,
		debounce:          DefaultPersistDebounce,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if statePath != "" {
		s.persist = newPersister(statePath, s.debounce, logger)
	}
	return s
}

// InitRun resets the store to a fresh run: a new run ID is allocated, all
// tasks are set to pending, and the overall status becomes running. Any
// previous run, terminal or not, is superseded. The new state is persisted
// immediately and subscribers are notified.
func (s *Store) InitRun(specs []TaskSpec, metadata map[string]string) string {
	s.mu.Lock()

	if s.state.OverallStatus.Active() {
		s.logger.Warn("superseding active run", "run_id", s.state.RunID,
			"overall_status", string(s.state.OverallStatus))
	}

	now := s.now()
	tasks := make([]TaskInfo, len(specs))
	for i, spec := range specs {
		label := spec.Label
		if label == "" {
			label = spec.Type
		}
		tasks[i] = TaskInfo{ID: i, Type: spec.Type, Label: label, Status: TaskPending}
	}

	var meta map[string]string
	if len(metadata) > 0 {
		meta = make(map[string]string, len(metadata))
		for k, v := range metadata {
			meta[k] = v
		}
	}

	start := now
	s.state = RunState{
		RunID:            uuid.NewString(),
		Tasks:            tasks,
		CurrentTaskIndex: -1,
		StartTime:        &start,
		OverallStatus:    StatusRunning,
		Metadata:         meta,
		LastActivity:     now,
	}

	snap := s.state.Clone()
	runID := s.state.RunID
	s.notifyLocked(snap)
	s.mu.Unlock()

	if s.persist != nil {
		s.persist.flush(snap)
	}
	if s.bus != nil {
		s.bus.Publish(event.NewRunStartedEvent(runID, len(tasks), meta["title"]))
	}

	s.logger.Info("run initialized", "run_id", runID, "tasks", len(tasks))
	return runID
}

// UpdateTaskStatus applies a status change to the task at index.
//
// Out-of-range indexes are rejected with a warning. Unknown statuses are
// normalized to pending with a warning. Once a task is terminal, a duplicate
// of the same terminal status is a silent no-op and a conflicting status is
// logged and ignored; this makes delivery over redundant channels safe.
func (s *Store) UpdateTaskStatus(index int, status TaskStatus) {
	s.mu.Lock()

	if s.state.OverallStatus == StatusIdle {
		s.logger.Warn("task update ignored: no active run", "index", index)
		s.mu.Unlock()
		return
	}
	if index < 0 || index >= len(s.state.Tasks) {
		s.logger.Warn("task update ignored: index out of range",
			"index", index, "tasks", len(s.state.Tasks))
		s.mu.Unlock()
		return
	}
	if !status.Valid() {
		s.logger.Warn("invalid task status normalized to pending",
			"index", index, "status", string(status))
		status = TaskPending
	}

	task := &s.state.Tasks[index]
	current := task.Status
	if current.Terminal() {
		if current != status {
			s.logger.Warn("conflicting update after terminal status ignored",
				"index", index, "current", string(current), "requested", string(status))
		}
		s.mu.Unlock()
		return
	}
	if current == status {
		s.mu.Unlock()
		return
	}

	now := s.now()
	switch {
	case status == TaskRunning:
		t := now
		task.StartTime = &t
		s.state.CurrentTaskIndex = index
	case status.Terminal():
		t := now
		task.EndTime = &t
		if s.state.CurrentTaskIndex == index {
			s.state.CurrentTaskIndex = -1
		}
	}
	task.Status = status
	s.state.LastActivity = now

	runID := s.state.RunID
	taskType := task.Type
	snap := s.state.Clone()
	s.notifyLocked(snap)
	s.mu.Unlock()

	if s.persist != nil {
		s.persist.schedule(snap)
	}
	if s.bus != nil {
		s.bus.Publish(event.NewTaskStatusEvent(runID, index, taskType, string(status)))
	}
}

// ProgressUpdate is a partial update applied by UpdateProgress. Nil fields
// are left unchanged.
type ProgressUpdate struct {
	CurrentTaskIndex *int
	OverallStatus    *OverallStatus
}

// UpdateProgress applies a partial progress update. Setting a terminal
// overall status stamps the run's end time and persists immediately; the
// terminal transition happens at most once per run, so downstream completion
// side effects fire exactly once.
func (s *Store) UpdateProgress(upd ProgressUpdate) {
	s.mu.Lock()

	changed := false
	completedNow := false

	if upd.CurrentTaskIndex != nil {
		idx := *upd.CurrentTaskIndex
		if idx >= -1 && idx < len(s.state.Tasks) {
			if s.state.CurrentTaskIndex != idx {
				s.state.CurrentTaskIndex = idx
				changed = true
			}
		} else {
			s.logger.Warn("progress update ignored: index out of range", "index", idx)
		}
	}

	if upd.OverallStatus != nil {
		next := *upd.OverallStatus
		switch {
		case !next.Valid():
			s.logger.Warn("progress update ignored: unknown overall status",
				"status", string(next))
		case next == s.state.OverallStatus:
			// Duplicate delivery; nothing to do.
		case !s.canTransitionLocked(next):
			s.logger.Warn("progress update ignored: invalid transition",
				"from", string(s.state.OverallStatus), "to", string(next))
		default:
			s.state.OverallStatus = next
			if next.Terminal() {
				t := s.now()
				s.state.EndTime = &t
				completedNow = true
			}
			changed = true
		}
	}

	if !changed {
		s.mu.Unlock()
		return
	}

	s.state.LastActivity = s.now()
	snap := s.state.Clone()
	s.notifyLocked(snap)
	s.mu.Unlock()

	if s.persist != nil {
		if completedNow {
			s.persist.flush(snap)
		} else {
			s.persist.schedule(snap)
		}
	}
	if s.bus != nil {
		m := computeMetrics(snap, s.now())
		s.bus.Publish(event.NewRunProgressEvent(snap.RunID, string(snap.OverallStatus), m.Completed, m.Total))
		if completedNow {
			s.bus.Publish(event.NewRunCompletedEvent(snap.RunID, string(snap.OverallStatus),
				snap.OverallStatus == StatusCompleted))
		}
	}
}

// canTransitionLocked reports whether the overall status may move from the
// current value to next. The caller must hold the mutex.
func (s *Store) canTransitionLocked(next OverallStatus) bool {
	current := s.state.OverallStatus
	switch current {
	case StatusRunning:
		return next == StatusPaused || next.Terminal()
	case StatusPaused:
		return next == StatusRunning || next.Terminal()
	default:
		// idle only leaves via InitRun; terminal only via InitRun.
		return false
	}
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Subscribe registers a callback that is invoked immediately with the
// current snapshot and then on every subsequent mutation, in mutation
// order. The returned function unsubscribes.
func (s *Store) Subscribe(fn Subscriber) func() {
	s.mu.Lock()
	s.nextSub++
	id := s.nextSub
	s.subs = append(s.subs, storeSub{id: id, fn: fn})
	fn(s.state.Clone())
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

// Cleanup resets the store to idle. Any pending debounced write is
// canceled; when clearPersisted is true the durable record is erased as
// well.
func (s *Store) Cleanup(clearPersisted bool) {
	s.mu.Lock()
	s.state = idleState()
	snap := s.state.Clone()
	s.notifyLocked(snap)
	s.mu.Unlock()

	if s.persist != nil {
		if clearPersisted {
			s.persist.clear()
		} else {
			s.persist.cancel()
		}
	}
}

// RestoreFromSession loads persisted state, validates it, and restores it
// only if the run was still in flight (running or paused) and not stale.
// Invalid, corrupt, or stale records are discarded. Returns whether a
// restore occurred.
func (s *Store) RestoreFromSession() bool {
	if s.persist == nil {
		return false
	}

	st, err := s.persist.load()
	if err != nil {
		if err != ErrNotFound {
			s.logger.Warn("discarding persisted run state", "error", err)
			s.persist.clear()
		}
		return false
	}

	if !st.OverallStatus.Active() {
		s.logger.Debug("persisted run not restorable",
			"overall_status", string(st.OverallStatus))
		s.persist.clear()
		return false
	}
	if s.now().Sub(st.LastActivity) > s.inactivityTimeout {
		s.logger.Info("discarding stale persisted run",
			"run_id", st.RunID, "last_activity", st.LastActivity)
		s.persist.clear()
		return false
	}

	s.mu.Lock()
	s.state = st
	snap := s.state.Clone()
	s.notifyLocked(snap)
	s.mu.Unlock()

	s.logger.Info("restored run from session", "run_id", st.RunID,
		"overall_status", string(st.OverallStatus))
	return true
}

// Close flushes any pending debounced write. Call on shutdown.
func (s *Store) Close() {
	if s.persist != nil {
		s.persist.stop()
	}
}

// notifyLocked delivers a snapshot to all subscribers in registration
// order. The caller must hold the mutex.
func (s *Store) notifyLocked(snap RunState) {
	for _, sub := range s.subs {
		sub.fn(snap)
	}
}
