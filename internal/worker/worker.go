// Package worker implements a cancellable background task that drains an
// unbounded FIFO of items and exposes a single published float64 result.
//
// A Worker moves through Created → Running → Cancelled. Cancellation is
// cooperative: it is observed once per loop iteration, never interrupts a
// handler that is already running, and closes the publish window so no new
// value lands after the cancellation point. Once the loop has exited the
// value is marked final and Final reports it as authoritative.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/groundspeed/internal/timeutil"
)

// DefaultPollInterval bounds how long an idle worker sleeps before
// re-checking for cancellation.
const DefaultPollInterval = 50 * time.Millisecond

var (
	// ErrAlreadyStarted is returned by Run when the worker has been run before.
	ErrAlreadyStarted = errors.New("worker: already started")

	// ErrHandlerPanic wraps a panic recovered from a handler.
	ErrHandlerPanic = errors.New("worker: handler panic")
)

// State is the lifecycle state of a Worker.
type State int32

const (
	StateCreated State = iota
	StateRunning
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Handler processes one dequeued item. A returned error is logged and the
// loop moves on to the next item.
type Handler[T any] func(ctx context.Context, item T) error

// Options configures a Worker. Zero values select defaults.
type Options struct {
	// Name prefixes log lines.
	Name string
	// PollInterval is the idle wait between cancellation checks.
	PollInterval time.Duration
	// Clock drives the idle timer.
	Clock timeutil.Clock
}

// Worker runs a Handler over queued items on its own goroutine.
type Worker[T any] struct {
	name         string
	handle       Handler[T]
	queue        *Queue[T]
	clock        timeutil.Clock
	pollInterval time.Duration

	started  atomic.Bool
	state    atomic.Int32
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	doneOnce sync.Once

	processed atomic.Uint64
	failed    atomic.Uint64

	// mu guards the published cell.
	mu        sync.RWMutex
	value     float64
	closed    bool
	finalized bool
}

// New creates a worker in the Created state.
func New[T any](handle Handler[T], opts Options) *Worker[T] {
	if opts.Name == "" {
		opts.Name = "worker"
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	return &Worker[T]{
		name:         opts.Name,
		handle:       handle,
		queue:        NewQueue[T](),
		clock:        opts.Clock,
		pollInterval: opts.PollInterval,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Submit enqueues item. It never blocks.
func (w *Worker[T]) Submit(item T) {
	w.queue.Push(item)
}

// Pending returns the number of items waiting in the queue.
func (w *Worker[T]) Pending() int {
	return w.queue.Len()
}

// State returns the current lifecycle state.
func (w *Worker[T]) State() State {
	return State(w.state.Load())
}

// Start runs the processing loop on a new goroutine.
func (w *Worker[T]) Start(ctx context.Context) {
	go func() {
		if err := w.Run(ctx); err != nil {
			opsf("%s: %v", w.name, err)
		}
	}()
}

// Run executes the processing loop on the calling goroutine until the
// worker is cancelled or ctx is done. It returns ErrAlreadyStarted when
// called more than once; a worker cancelled before Run returns nil at once.
func (w *Worker[T]) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	if !w.state.CompareAndSwap(int32(StateCreated), int32(StateRunning)) {
		return nil
	}
	defer w.finish()

	diagf("%s: running (poll=%v)", w.name, w.pollInterval)
	for !w.Cancelled() {
		if ctx.Err() != nil {
			w.Cancel()
			break
		}

		item, ok := w.queue.TryPop()
		if !ok {
			w.idle(ctx)
			continue
		}

		tracef("%s: dequeued item, %d pending", w.name, w.queue.Len())
		if err := w.process(ctx, item); err != nil {
			w.failed.Add(1)
			opsf("%s: item failed: %v", w.name, err)
			continue
		}
		w.processed.Add(1)
	}

	diagf("%s: stopped after %d items (%d failed, %d left queued)",
		w.name, w.processed.Load(), w.failed.Load(), w.queue.Len())
	return nil
}

// idle waits for a push, cancellation, context end or the poll interval,
// whichever comes first.
func (w *Worker[T]) idle(ctx context.Context) {
	timer := w.clock.NewTimer(w.pollInterval)
	defer timer.Stop()

	select {
	case <-w.queue.Ready():
	case <-timer.C():
	case <-w.stop:
	case <-ctx.Done():
	}
}

func (w *Worker[T]) process(ctx context.Context, item T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return w.handle(ctx, item)
}

// Cancel requests the loop to stop. It is idempotent and safe to call from
// any goroutine. After Cancel returns, Publish refuses new values.
func (w *Worker[T]) Cancel() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()

	w.stopOnce.Do(func() { close(w.stop) })

	if w.state.CompareAndSwap(int32(StateCreated), int32(StateCancelled)) {
		w.finish()
	}
}

// Cancelled reports whether cancellation has been requested.
func (w *Worker[T]) Cancelled() bool {
	select {
	case <-w.stop:
		return true
	default:
		return false
	}
}

func (w *Worker[T]) finish() {
	w.state.Store(int32(StateCancelled))

	w.mu.Lock()
	w.closed = true
	w.finalized = true
	w.mu.Unlock()

	w.doneOnce.Do(func() { close(w.done) })
}

// Done is closed once the worker has terminated.
func (w *Worker[T]) Done() <-chan struct{} {
	return w.done
}

// Wait blocks until the worker has terminated.
func (w *Worker[T]) Wait() {
	<-w.done
}

// Publish replaces the published value. It is the only write path for the
// result and returns false once cancellation has been requested.
func (w *Worker[T]) Publish(v float64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return false
	}
	w.value = v
	return true
}

// Value returns the most recently published value, 0 before any publish.
// While the worker runs this is a progress indicator only.
func (w *Worker[T]) Value() float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.value
}

// Final returns the published value and whether the worker has terminated,
// in which case the value is authoritative.
func (w *Worker[T]) Final() (float64, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.value, w.finalized
}

// Processed returns how many items were handled without error.
func (w *Worker[T]) Processed() uint64 {
	return w.processed.Load()
}

// Failed returns how many items returned an error or panicked.
func (w *Worker[T]) Failed() uint64 {
	return w.failed.Load()
}
