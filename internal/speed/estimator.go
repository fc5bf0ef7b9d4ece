// Package speed turns matched frame pairs into a running platform speed
// estimate.
//
// Each pair yields a Sample: the mean physical displacement of its feature
// correspondences divided by the elapsed time, plus a confidence score
// derived from how consistent those displacements are. The Estimator keeps
// the ordered sample history and republishes the aggregated estimate after
// every pair it processes.
package speed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/groundspeed/internal/timeutil"
	"github.com/banshee-data/groundspeed/internal/worker"
)

// Option configures an Estimator.
type Option func(*options)

type options struct {
	name         string
	pollInterval time.Duration
	clock        timeutil.Clock
	aggregator   Aggregator
}

// WithName sets the prefix used in worker log lines.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithPollInterval sets the idle cancellation-check cadence.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) { o.pollInterval = d }
}

// WithClock injects the clock driving the idle timer.
func WithClock(c timeutil.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithAggregator overrides the strategy selected by Config.Aggregation.
func WithAggregator(a Aggregator) Option {
	return func(o *options) { o.aggregator = a }
}

// Estimator is a worker that consumes MatchedFramePairs.
type Estimator struct {
	cfg Config
	agg Aggregator
	w   *worker.Worker[MatchedFramePair]

	mu           sync.Mutex
	history      []Sample
	contributing int
}

// New validates cfg and returns an estimator in the Created state.
func New(cfg Config, opts ...Option) (*Estimator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{name: "speed"}
	for _, opt := range opts {
		opt(&o)
	}
	agg := o.aggregator
	if agg == nil {
		var err error
		if agg, err = NewAggregator(cfg); err != nil {
			return nil, err
		}
	}

	e := &Estimator{cfg: cfg, agg: agg}
	e.w = worker.New[MatchedFramePair](e.handle, worker.Options{
		Name:         o.name,
		PollInterval: o.pollInterval,
		Clock:        o.clock,
	})
	return e, nil
}

// handle computes one sample and publishes the new estimate. The history
// only grows if the estimate was accepted, so a pair that fails or lands
// after cancellation leaves no trace.
func (e *Estimator) handle(_ context.Context, pair MatchedFramePair) error {
	sample, err := Compute(e.cfg, pair)
	if err != nil {
		return fmt.Errorf("compute sample: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	candidate := make([]Sample, len(e.history), len(e.history)+1)
	copy(candidate, e.history)
	candidate = append(candidate, sample)

	estimate, ok := e.agg.Aggregate(candidate)
	accepted := !e.w.Cancelled()
	if ok {
		accepted = e.w.Publish(estimate)
	}
	if !accepted {
		diagf("sample discarded after cancellation: speed=%.4f score=%.4f", sample.Speed, sample.Score)
		return nil
	}

	e.history = candidate
	if sample.Contributes() {
		e.contributing++
	}

	if sample.Degenerate != NotDegenerate {
		diagf("degenerate sample (%s), estimate=%.4f", sample.Degenerate, e.w.Value())
		return nil
	}
	diagf("speed=%.4f score=%.4f estimate=%.4f", sample.Speed, sample.Score, estimate)
	return nil
}

// Submit queues a pair for processing. It never blocks.
func (e *Estimator) Submit(pair MatchedFramePair) {
	e.w.Submit(pair)
}

// Run processes pairs on the calling goroutine until cancelled.
func (e *Estimator) Run(ctx context.Context) error {
	return e.w.Run(ctx)
}

// Start runs the estimator on a new goroutine.
func (e *Estimator) Start(ctx context.Context) {
	e.w.Start(ctx)
}

// Cancel stops the estimator after the pair in flight, if any.
func (e *Estimator) Cancel() {
	e.w.Cancel()
}

// Cancelled reports whether Cancel has been called.
func (e *Estimator) Cancelled() bool {
	return e.w.Cancelled()
}

// Wait blocks until the estimator has terminated.
func (e *Estimator) Wait() {
	e.w.Wait()
}

// State returns the lifecycle state.
func (e *Estimator) State() worker.State {
	return e.w.State()
}

// Pending returns the number of queued pairs.
func (e *Estimator) Pending() int {
	return e.w.Pending()
}

// Value returns the current estimate. It is a progress indicator until
// the estimator has terminated.
func (e *Estimator) Value() float64 {
	return e.w.Value()
}

// Final returns the estimate and whether it is authoritative.
func (e *Estimator) Final() (float64, bool) {
	return e.w.Final()
}

// SampleCount returns how many samples are in the history, degenerate ones
// included.
func (e *Estimator) SampleCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.history)
}

// ContributingCount returns how many samples carry aggregation weight. A
// zero count means the estimate of 0 is "no data", not a measured speed.
func (e *Estimator) ContributingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.contributing
}

// History returns a copy of the sample history in processing order.
func (e *Estimator) History() []Sample {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Sample, len(e.history))
	copy(out, e.history)
	return out
}
