package worker

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/groundspeed/internal/timeutil"
)

// summingHandler publishes the running sum of every item it sees.
type summingHandler struct {
	mu   sync.Mutex
	w    *Worker[float64]
	sum  float64
	seen []float64
}

func (h *summingHandler) handle(_ context.Context, item float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen = append(h.seen, item)
	h.sum += item
	h.w.Publish(h.sum)
	return nil
}

func (h *summingHandler) items() []float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]float64, len(h.seen))
	copy(out, h.seen)
	return out
}

func newSumming(opts Options) (*Worker[float64], *summingHandler) {
	h := &summingHandler{}
	h.w = New[float64](h.handle, opts)
	return h.w, h
}

func TestWorker_InitialState(t *testing.T) {
	t.Parallel()
	w, _ := newSumming(Options{})

	assert.Equal(t, StateCreated, w.State())
	assert.Zero(t, w.Value())
	v, final := w.Final()
	assert.Zero(t, v)
	assert.False(t, final)
	assert.False(t, w.Cancelled())
}

func TestWorker_ProcessesInFIFOOrder(t *testing.T) {
	t.Parallel()
	w, h := newSumming(Options{PollInterval: time.Millisecond})

	for _, v := range []float64{1, 2, 3, 4} {
		w.Submit(v)
	}
	w.Start(context.Background())

	require.Eventually(t, func() bool { return len(h.items()) == 4 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, StateRunning, w.State())
	assert.Equal(t, []float64{1, 2, 3, 4}, h.items())
	assert.Equal(t, 10.0, w.Value())

	w.Cancel()
	w.Wait()

	v, final := w.Final()
	assert.True(t, final)
	assert.Equal(t, 10.0, v)
	assert.Equal(t, StateCancelled, w.State())
	assert.Equal(t, uint64(4), w.Processed())
}

func TestWorker_CancelIsIdempotent(t *testing.T) {
	t.Parallel()
	w, _ := newSumming(Options{PollInterval: time.Millisecond})
	w.Start(context.Background())

	w.Cancel()
	w.Cancel()
	w.Wait()
	w.Cancel()

	assert.True(t, w.Cancelled())
	assert.Equal(t, StateCancelled, w.State())
}

func TestWorker_CancelBeforeRun(t *testing.T) {
	t.Parallel()
	w, h := newSumming(Options{})
	w.Submit(5)

	w.Cancel()
	assert.Equal(t, StateCancelled, w.State())

	require.NoError(t, w.Run(context.Background()))
	w.Wait()

	assert.Empty(t, h.items())
	assert.Equal(t, 1, w.Pending())
	_, final := w.Final()
	assert.True(t, final)
}

func TestWorker_RunTwice(t *testing.T) {
	t.Parallel()
	w, _ := newSumming(Options{PollInterval: time.Millisecond})
	w.Cancel()

	require.NoError(t, w.Run(context.Background()))
	assert.ErrorIs(t, w.Run(context.Background()), ErrAlreadyStarted)
}

func TestWorker_CancelHaltsBeforeDrainingQueue(t *testing.T) {
	t.Parallel()

	entered := make(chan struct{})
	release := make(chan struct{})
	var w *Worker[int]
	var calls int
	w = New[int](func(_ context.Context, item int) error {
		calls++
		if item == 0 {
			close(entered)
			<-release
		}
		w.Publish(float64(item + 100))
		return nil
	}, Options{PollInterval: time.Millisecond})

	for i := 0; i < 5; i++ {
		w.Submit(i)
	}
	w.Start(context.Background())

	<-entered
	w.Cancel()
	assert.True(t, w.Cancelled())
	close(release)
	w.Wait()

	assert.Equal(t, 1, calls)
	assert.Equal(t, 4, w.Pending())
	// The in-flight item finished after the cancellation point, so its
	// publish was refused.
	v, final := w.Final()
	assert.True(t, final)
	assert.Zero(t, v)
}

func TestWorker_PublishRefusedAfterCancel(t *testing.T) {
	t.Parallel()
	w, _ := newSumming(Options{})

	require.True(t, w.Publish(3))
	w.Cancel()
	assert.False(t, w.Publish(7))
	assert.Equal(t, 3.0, w.Value())
}

func TestWorker_ContinuesAfterErrorsAndPanics(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var handled []int
	var w *Worker[int]
	w = New[int](func(_ context.Context, item int) error {
		switch item {
		case 1:
			return errors.New("bad sample")
		case 2:
			panic("boom")
		}
		mu.Lock()
		handled = append(handled, item)
		mu.Unlock()
		w.Publish(float64(item))
		return nil
	}, Options{PollInterval: time.Millisecond})

	for _, v := range []int{0, 1, 2, 3} {
		w.Submit(v)
	}
	w.Start(context.Background())

	require.Eventually(t, func() bool { return w.Processed()+w.Failed() == 4 }, 2*time.Second, time.Millisecond)
	w.Cancel()
	w.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 3}, handled)
	assert.Equal(t, uint64(2), w.Failed())
	assert.Equal(t, 3.0, w.Value())
}

func TestWorker_ContextCancellation(t *testing.T) {
	t.Parallel()
	w, _ := newSumming(Options{PollInterval: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)
	cancel()

	select {
	case <-w.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after context cancellation")
	}
	assert.True(t, w.Cancelled())
}

func TestWorker_IdleWakesOnSubmit(t *testing.T) {
	t.Parallel()

	// The mock clock never advances, so only the ready signal can wake the
	// idle loop.
	clock := timeutil.NewMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	w, h := newSumming(Options{PollInterval: time.Hour, Clock: clock})
	w.Start(context.Background())

	w.Submit(42)
	require.Eventually(t, func() bool { return len(h.items()) == 1 }, 2*time.Second, time.Millisecond)

	w.Cancel()
	w.Wait()
	assert.Equal(t, 42.0, w.Value())
}

func TestWorker_IdleIsNotLogged(t *testing.T) {
	var ops bytes.Buffer
	SetLogWriters(&ops, nil, nil)
	defer SetLogWriters(nil, nil, nil)

	w, _ := newSumming(Options{PollInterval: time.Millisecond})
	w.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	w.Cancel()
	w.Wait()

	assert.Empty(t, ops.String())
}

func TestState_String(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "created", StateCreated.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "cancelled", StateCancelled.String())
	assert.Equal(t, "State(9)", State(9).String())
}

func TestQueue(t *testing.T) {
	t.Parallel()
	q := NewQueue[string]()

	_, ok := q.TryPop()
	assert.False(t, ok)

	q.Push("a")
	q.Push("b")
	assert.Equal(t, 2, q.Len())

	select {
	case <-q.Ready():
	default:
		t.Fatal("expected a ready signal after Push")
	}

	v, ok := q.TryPop()
	require.True(t, ok)
	assert.Equal(t, "a", v)
	v, ok = q.TryPop()
	require.True(t, ok)
	assert.Equal(t, "b", v)
	assert.Zero(t, q.Len())
}
