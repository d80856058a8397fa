// Package dispatch sends control signals (stop, pause, resume, skip) to the
// maintenance worker.
//
// The dispatcher never mutates the run status itself: it validates against
// the store's current snapshot, fires the signal, and leaves the
// authoritative transition to the worker's RUN_* acknowledgment line.
package dispatch

import (
	"github.com/autoserve/autoserve/internal/event"
	"github.com/autoserve/autoserve/internal/logging"
	"github.com/autoserve/autoserve/internal/runstate"
)

// Signal is a named control operation understood by the worker.
type Signal string

// The four control signals.
const (
	SignalStop   Signal = "stop"
	SignalPause  Signal = "pause"
	SignalResume Signal = "resume"
	SignalSkip   Signal = "skip"
)

// ControlSender delivers a named signal to the worker process. The send is
// fire-and-forget; the worker honors stop/skip cooperatively at task
// boundaries.
type ControlSender interface {
	Send(signal Signal) error
}

// Dispatcher validates and sends control signals.
type Dispatcher struct {
	store  *runstate.Store
	sender ControlSender
	logger *logging.Logger
	bus    *event.Bus
}

// New creates a Dispatcher. The bus is optional; when present, every send
// attempt is published as a run.control event.
func New(store *runstate.Store, sender ControlSender, logger *logging.Logger, bus *event.Bus) *Dispatcher {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Dispatcher{store: store, sender: sender, logger: logger, bus: bus}
}

// Stop asks the worker to stop the run at the next task boundary.
// Valid while the run is running or paused; otherwise a no-op.
func (d *Dispatcher) Stop() error {
	return d.send(SignalStop, func(s runstate.OverallStatus) bool { return s.Active() })
}

// Pause asks the worker to pause between tasks.
// Valid while the run is running or paused; otherwise a no-op.
func (d *Dispatcher) Pause() error {
	return d.send(SignalPause, func(s runstate.OverallStatus) bool { return s.Active() })
}

// Resume asks the worker to continue a paused run.
// Valid only while the run is paused; otherwise a no-op.
func (d *Dispatcher) Resume() error {
	return d.send(SignalResume, func(s runstate.OverallStatus) bool { return s == runstate.StatusPaused })
}

// SkipCurrent asks the worker to abandon the current task and move on.
// Valid while the run is running or paused; otherwise a no-op.
func (d *Dispatcher) SkipCurrent() error {
	return d.send(SignalSkip, func(s runstate.OverallStatus) bool { return s.Active() })
}

// send checks validity against the live snapshot — not a cached flag, so a
// stale caller cannot race a finished run — then fires the signal once.
// Transport failures are logged and reported; there is no automatic retry.
func (d *Dispatcher) send(signal Signal, valid func(runstate.OverallStatus) bool) error {
	snap := d.store.Snapshot()
	if !valid(snap.OverallStatus) {
		d.logger.Debug("control signal suppressed",
			"signal", string(signal), "overall_status", string(snap.OverallStatus))
		return nil
	}

	err := d.sender.Send(signal)
	if err != nil {
		d.logger.Error("failed to send control signal",
			"signal", string(signal), "error", err)
	} else {
		d.logger.Info("control signal sent", "signal", string(signal))
	}

	if d.bus != nil {
		d.bus.Publish(event.NewControlSentEvent(snap.RunID, string(signal), err))
	}
	return err
}
