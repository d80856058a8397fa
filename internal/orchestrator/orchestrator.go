// Package orchestrator wires the run state store, delivery bridge, command
// dispatcher, completion trigger, and worker supervision into a single run
// lifecycle.
//
// A caller starts a run; the orchestrator initializes state, launches the
// worker, and feeds both delivery channels (push pipes and log tail) through
// the protocol parser into the store. Control commands are validated against
// the store and forwarded to the worker; the worker's acknowledgment lines
// drive the authoritative status transitions. When the run reaches a
// terminal status the completion trigger fires exactly once.
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"

	"github.com/autoserve/autoserve/internal/bridge"
	"github.com/autoserve/autoserve/internal/config"
	"github.com/autoserve/autoserve/internal/dispatch"
	"github.com/autoserve/autoserve/internal/event"
	"github.com/autoserve/autoserve/internal/logging"
	"github.com/autoserve/autoserve/internal/notify"
	"github.com/autoserve/autoserve/internal/protocol"
	"github.com/autoserve/autoserve/internal/runstate"
	"github.com/autoserve/autoserve/internal/worker"
)

// Orchestrator owns one run at a time. Construct it once per process and
// inject it wherever run control is needed; the store it carries is the
// single source of truth for run state.
type Orchestrator struct {
	settings *config.Live
	logger   *logging.Logger
	bus      *event.Bus
	store    *runstate.Store
	trigger  *notify.Trigger
	dataDir  string

	mu       sync.Mutex
	active   *activeRun
	busSubID string
}

// activeRun bundles the per-run wiring torn down on dismissal.
type activeRun struct {
	id         string
	runner     *worker.Runner
	bridge     *bridge.Bridge
	dispatcher *dispatch.Dispatcher
	mirror     *logging.RotatingWriter
	cancel     context.CancelFunc
	done       chan struct{}
}

// Option customizes orchestrator construction.
type Option func(*options)

type options struct {
	notifier   notify.Notifier
	player     notify.SoundPlayer
	foreground notify.ForegroundChecker
}

// WithNotifier sets the desktop notification implementation.
func WithNotifier(n notify.Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// WithSoundPlayer sets the completion sound implementation.
func WithSoundPlayer(p notify.SoundPlayer) Option {
	return func(o *options) { o.player = p }
}

// WithForegroundChecker sets the foreground probe that gates desktop
// notifications.
func WithForegroundChecker(f notify.ForegroundChecker) Option {
	return func(o *options) { o.foreground = f }
}

// New creates an Orchestrator using the given live settings, logger, and
// event bus.
func New(settings *config.Live, logger *logging.Logger, bus *event.Bus, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = logging.NopLogger()
	}
	if bus == nil {
		bus = event.NewBus()
	}

	o := &options{
		notifier: &notify.LogNotifier{Logger: logger},
		player:   &notify.LogSoundPlayer{Logger: logger},
	}
	for _, opt := range opts {
		opt(o)
	}

	cfg := settings.Get()
	dataDir := cfg.DataDir()

	store := runstate.New(
		filepath.Join(dataDir, "runstate.json"),
		logger,
		runstate.WithBus(bus),
		runstate.WithPersistDebounce(cfg.Runner.PersistDebounce()),
		runstate.WithInactivityTimeout(cfg.Runner.InactivityTimeout()),
	)

	trigger := notify.New(dataDir, settings, o.notifier, o.player, o.foreground, logger)

	orch := &Orchestrator{
		settings: settings,
		logger:   logger,
		bus:      bus,
		store:    store,
		trigger:  trigger,
		dataDir:  dataDir,
	}

	orch.busSubID = bus.Subscribe("run.completed", func(e event.Event) {
		if ev, ok := e.(event.RunCompletedEvent); ok {
			trigger.Fire(ev.RunID, ev.Success)
		}
	})

	return orch
}

// Store returns the run state store for read access and subscriptions.
func (o *Orchestrator) Store() *runstate.Store {
	return o.store
}

// Subscribe registers a snapshot subscriber on the store.
func (o *Orchestrator) Subscribe(fn runstate.Subscriber) func() {
	return o.store.Subscribe(fn)
}

// RestoreFromSession restores a persisted in-flight run if one exists and
// is fresh. The worker process behind a restored run is gone; the restored
// state is for display and dismissal, not control.
func (o *Orchestrator) RestoreFromSession() bool {
	return o.store.RestoreFromSession()
}

// StartRun initializes a fresh run for the given tasks and launches the
// worker. Any previous run's wiring is torn down first; the store
// supersedes its state. Launch failure leaves the run in error status and
// is returned to the caller, which may retry with a different transport or
// surface it.
func (o *Orchestrator) StartRun(ctx context.Context, specs []runstate.TaskSpec, metadata map[string]string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.teardownLocked()

	cfg := o.settings.Get()
	runID := o.store.InitRun(specs, metadata)
	runDir := filepath.Join(o.dataDir, "runs", runID)
	runLogger := o.logger.WithRun(runID)

	var mirror *logging.RotatingWriter
	if cfg.Logging.Enabled {
		var err error
		mirror, err = logging.NewRotatingWriter(filepath.Join(runDir, "output.log"), logging.RotationConfig{
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
		})
		if err != nil {
			runLogger.Warn("worker output mirror disabled", "error", err)
		}
	}

	// A typed-nil *RotatingWriter must not reach the io.Writer sink.
	var sink io.Writer
	if mirror != nil {
		sink = mirror
	}
	parser := protocol.NewParser(o.store, runLogger, sink)
	br := bridge.New(parser.Process,
		bridge.WithLogger(runLogger),
		bridge.WithPollInterval(cfg.Runner.PollInterval()),
	)

	runCtx, cancel := context.WithCancel(ctx)
	if err := br.Start(runCtx); err != nil {
		cancel()
		return runID, fmt.Errorf("failed to start delivery bridge: %w", err)
	}

	runner := worker.New(cfg.Runner.Binary, runDir, runLogger)
	if err := runner.Start(runCtx, specs); err != nil {
		br.Stop()
		cancel()
		if mirror != nil {
			mirror.Close()
		}
		status := runstate.StatusError
		o.store.UpdateProgress(runstate.ProgressUpdate{OverallStatus: &status})
		return runID, err
	}

	br.AttachPush(runner.Lines())
	if err := br.StartTail(runner.LogPath()); err != nil {
		runLogger.Warn("tail channel unavailable", "error", err)
	}

	run := &activeRun{
		id:         runID,
		runner:     runner,
		bridge:     br,
		dispatcher: dispatch.New(o.store, dispatch.NewFileSignalSender(runner.ControlDir()), runLogger, o.bus),
		mirror:     mirror,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	o.active = run

	go o.supervise(run)
	return runID, nil
}

// supervise waits for the worker to exit, drains both delivery channels,
// and closes out runs the worker abandoned without a terminal marker.
func (o *Orchestrator) supervise(run *activeRun) {
	defer close(run.done)

	err := run.runner.Wait()

	// Both channels must be fully applied before judging the run: the push
	// source is already closed, and one more poll picks up tail lines
	// written after the last tick. Stop drains whatever is still queued.
	run.bridge.WaitPush()
	run.bridge.FlushTail()
	run.bridge.Stop()

	snap := o.store.Snapshot()
	if snap.RunID == run.id && !snap.OverallStatus.Terminal() {
		if err != nil {
			o.logger.WithRun(run.id).Error("worker exited without terminal status", "error", err)
		} else {
			o.logger.WithRun(run.id).Warn("worker exited without terminal status")
		}
		status := runstate.StatusError
		o.store.UpdateProgress(runstate.ProgressUpdate{OverallStatus: &status})
	}
}

// Wait blocks until the active run's worker has exited and its output has
// been applied. Returns immediately when no run is active.
func (o *Orchestrator) Wait() {
	o.mu.Lock()
	run := o.active
	o.mu.Unlock()

	if run != nil {
		<-run.done
	}
}

// Stop asks the worker to stop the run. A no-op when no run is active or
// the run is already terminal.
func (o *Orchestrator) Stop() error { return o.control((*dispatch.Dispatcher).Stop) }

// Pause asks the worker to pause between tasks.
func (o *Orchestrator) Pause() error { return o.control((*dispatch.Dispatcher).Pause) }

// Resume asks the worker to continue a paused run.
func (o *Orchestrator) Resume() error { return o.control((*dispatch.Dispatcher).Resume) }

// SkipCurrent asks the worker to abandon the current task.
func (o *Orchestrator) SkipCurrent() error { return o.control((*dispatch.Dispatcher).SkipCurrent) }

func (o *Orchestrator) control(op func(*dispatch.Dispatcher) error) error {
	o.mu.Lock()
	run := o.active
	o.mu.Unlock()

	if run == nil {
		o.logger.Debug("control signal suppressed: no active run")
		return nil
	}
	return op(run.dispatcher)
}

// Dismiss tears down the finished run's wiring, clears the durable state
// record, and re-arms the completion trigger for the dismissed run ID.
func (o *Orchestrator) Dismiss() {
	o.mu.Lock()
	defer o.mu.Unlock()

	runID := o.store.Snapshot().RunID
	o.teardownLocked()
	o.store.Cleanup(true)
	if runID != "" {
		o.trigger.Reset(runID)
	}
}

// Close shuts the orchestrator down, flushing pending persistence. The
// active run's worker keeps running only until its context is canceled.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.teardownLocked()
	o.mu.Unlock()

	o.bus.Unsubscribe(o.busSubID)
	o.store.Close()
}

// teardownLocked releases the active run's wiring. The caller must hold the
// mutex.
func (o *Orchestrator) teardownLocked() {
	if o.active == nil {
		return
	}
	o.active.cancel()
	o.active.bridge.Stop()
	if o.active.mirror != nil {
		o.active.mirror.Close()
	}
	o.active = nil
}
