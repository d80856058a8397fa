// Package bridge merges the two redundant delivery channels for worker
// protocol lines — a push stream from the worker's pipes and a polled tail
// of its live log file — into one inbound queue drained by a single
// goroutine.
//
// Because the run state store treats terminal statuses as idempotent,
// duplicate delivery of the same line across both channels is safe by
// construction; the bridge only has to preserve per-channel ordering.
package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/autoserve/autoserve/internal/logging"
)

// LineHandler consumes one protocol line. The bridge invokes it from a
// single goroutine, so the handler (and the state store behind it) sees
// mutations one at a time.
type LineHandler func(line string)

// Bridge merges push and tail delivery into one ordered queue.
type Bridge struct {
	handler LineHandler
	logger  *logging.Logger

	pollInterval time.Duration
	queueSize    int
	retry        RetryPolicy

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu             sync.Mutex
	lines          chan string
	started        bool
	pushRegistered bool
	pushDone       chan struct{}
	tail           *tailer
}

// New creates a Bridge delivering lines to handler. The handler must be
// non-nil; passing nil panics early to surface wiring bugs immediately.
func New(handler LineHandler, opts ...Option) *Bridge {
	if handler == nil {
		panic("bridge: LineHandler must not be nil")
	}

	cfg := &config{
		pollInterval: defaultPollInterval,
		queueSize:    defaultQueueSize,
		retry:        DefaultRetryPolicy(),
		logger:       logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.pollInterval <= 0 {
		cfg.pollInterval = defaultPollInterval
	}
	if cfg.queueSize <= 0 {
		cfg.queueSize = defaultQueueSize
	}

	return &Bridge{
		handler:      handler,
		logger:       cfg.logger,
		pollInterval: cfg.pollInterval,
		queueSize:    cfg.queueSize,
		retry:        cfg.retry,
	}
}

// Start begins draining the inbound queue. It returns immediately; call
// Stop to shut down once the run is terminal and dismissed.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.started {
		return fmt.Errorf("bridge: already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	b.ctx = ctx
	b.cancel = cancel
	b.lines = make(chan string, b.queueSize)
	b.started = true

	b.wg.Add(1)
	go b.drainLoop()

	return nil
}

// AttachPush wires a push line source into the queue. Registration is
// idempotent: only the first call per bridge attaches a forwarder, so
// re-wiring on view re-entry cannot create duplicate subscriptions.
// Returns whether this call performed the registration.
func (b *Bridge) AttachPush(source <-chan string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.started || b.pushRegistered {
		return false
	}
	b.pushRegistered = true
	done := make(chan struct{})
	b.pushDone = done

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer close(done)
		for {
			select {
			case <-b.ctx.Done():
				return
			case line, ok := <-source:
				if !ok {
					return
				}
				b.enqueue(line)
			}
		}
	}()
	return true
}

// StartTail begins polling the worker's log file at path, feeding any new
// complete lines into the queue. Only one tail may be active per bridge.
func (b *Bridge) StartTail(path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.started {
		return fmt.Errorf("bridge: not started")
	}
	if b.tail != nil {
		return fmt.Errorf("bridge: tail already active")
	}

	t := newTailer(path, b.logger.WithChannel("tail"))
	b.tail = t

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ticker := time.NewTicker(b.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-b.ctx.Done():
				return
			case <-ticker.C:
				t.poll(b.enqueue)
			}
		}
	}()
	return nil
}

// WaitPush blocks until the push source has been fully forwarded into the
// queue, which happens when the source channel closes or the bridge shuts
// down. Returns immediately when no push source is attached.
func (b *Bridge) WaitPush() {
	b.mu.Lock()
	done := b.pushDone
	b.mu.Unlock()

	if done != nil {
		<-done
	}
}

// FlushTail runs one final poll cycle. Called after the worker process has
// exited to pick up trailing output the ticker has not yet seen.
func (b *Bridge) FlushTail() {
	b.mu.Lock()
	t := b.tail
	b.mu.Unlock()

	if t != nil {
		t.poll(b.enqueue)
	}
}

// Stop tears the bridge down and waits for in-flight lines to be handled.
func (b *Bridge) Stop() {
	b.mu.Lock()
	if !b.started {
		b.mu.Unlock()
		return
	}
	cancel := b.cancel
	b.started = false
	b.pushRegistered = false
	b.pushDone = nil
	b.tail = nil
	b.mu.Unlock()

	cancel()
	b.wg.Wait()
}

// enqueue delivers one line into the queue, retrying per the bounded
// policy when the queue is full. A line that still cannot be delivered is
// dropped with a warning; the redundant channel or a later progress
// snapshot covers the loss.
func (b *Bridge) enqueue(line string) {
	for attempt := 0; ; attempt++ {
		select {
		case b.lines <- line:
			return
		case <-b.ctx.Done():
			return
		default:
		}

		if attempt >= b.retry.MaxAttempts {
			b.logger.Warn("inbound queue full, dropping line", "line", line)
			return
		}

		select {
		case <-time.After(b.retry.Delay(attempt)):
		case <-b.ctx.Done():
			return
		}
	}
}

// drainLoop is the single consumer of the inbound queue. Lines are handled
// strictly one at a time, which gives the state store its single-writer
// discipline.
func (b *Bridge) drainLoop() {
	defer b.wg.Done()
	for {
		select {
		case <-b.ctx.Done():
			// Drain whatever is already queued before exiting.
			for {
				select {
				case line := <-b.lines:
					b.handler(line)
				default:
					return
				}
			}
		case line := <-b.lines:
			b.handler(line)
		}
	}
}
