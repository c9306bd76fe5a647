// Package guard bounds concurrent access to the analysis engine. Callers are
// admitted in arrival order, wait at most a configured time for a slot, and
// get a deadline on the engine call itself.
package guard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"langworker/internal/engine"
)

// Analyzer is the engine capability being guarded.
type Analyzer interface {
	Analyze(ctx context.Context, req engine.Request) (engine.Result, error)
}

// Config holds admission limits.
type Config struct {
	// MaxInFlight is the number of engine calls allowed at once.
	MaxInFlight int
	// QueueTimeout is how long a caller may wait for a slot. Zero waits
	// until the caller's context ends.
	QueueTimeout time.Duration
	// CallTimeout bounds a single engine call. Zero disables the bound.
	CallTimeout time.Duration
	// MaxQueue caps the number of waiting callers. Zero is unbounded.
	MaxQueue int
}

// DefaultConfig serializes engine calls.
func DefaultConfig() Config {
	return Config{
		MaxInFlight:  1,
		QueueTimeout: 5 * time.Second,
		CallTimeout:  10 * time.Second,
	}
}

// Observer receives per-call measurements.
type Observer interface {
	QueueWait(ctx context.Context, wait time.Duration)
	CallDuration(ctx context.Context, elapsed time.Duration)
	Outcome(ctx context.Context, outcome string)
}

type noopObserver struct{}

func (noopObserver) QueueWait(context.Context, time.Duration)    {}
func (noopObserver) CallDuration(context.Context, time.Duration) {}
func (noopObserver) Outcome(context.Context, string)             {}

// Outcome labels reported to the Observer.
const (
	OutcomeOK       = "ok"
	OutcomeCanceled = "canceled"
)

// Option configures a Guard.
type Option func(*Guard)

// WithObserver sets the metrics observer.
func WithObserver(o Observer) Option {
	return func(g *Guard) {
		if o != nil {
			g.observer = o
		}
	}
}

// WithLogger sets the guard logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Guard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// Stats is a point-in-time view of the guard.
type Stats struct {
	MaxInFlight int
	InFlight    int64
	Queued      int64
	// Abandoned counts timed-out engine calls that have not returned yet.
	Abandoned int64
	Admitted  uint64
	Rejected  uint64
	TimedOut  uint64
}

// Guard wraps an Analyzer with admission control.
type Guard struct {
	analyzer Analyzer
	cfg      Config
	sem      *semaphore.Weighted
	observer Observer
	logger   *slog.Logger

	closed    atomic.Bool
	inFlight  atomic.Int64
	queued    atomic.Int64
	abandoned atomic.Int64
	admitted  atomic.Uint64
	rejected  atomic.Uint64
	timedOut  atomic.Uint64
}

// New creates a guard in front of analyzer.
func New(analyzer Analyzer, cfg Config, opts ...Option) *Guard {
	if cfg.MaxInFlight < 1 {
		cfg.MaxInFlight = 1
	}
	g := &Guard{
		analyzer: analyzer,
		cfg:      cfg,
		sem:      semaphore.NewWeighted(int64(cfg.MaxInFlight)),
		observer: noopObserver{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With(slog.String("component", "guard"))
	return g
}

type callResult struct {
	res engine.Result
	err error
}

// Analyze admits the request and runs it on the engine. Errors are
// *engine.AnalysisError, or engine.ErrCanceled when ctx ended while the
// request was still queued.
func (g *Guard) Analyze(ctx context.Context, req engine.Request) (engine.Result, error) {
	if err := g.admit(ctx); err != nil {
		g.observer.Outcome(ctx, outcomeOf(err))
		return engine.Result{}, err
	}
	defer g.sem.Release(1)

	g.admitted.Add(1)
	g.inFlight.Add(1)
	defer g.inFlight.Add(-1)
	g.logger.DebugContext(ctx, "request in flight", slog.Int64("in_flight", g.inFlight.Load()))

	start := time.Now()
	res, err := g.call(ctx, req)
	g.observer.CallDuration(ctx, time.Since(start))
	g.observer.Outcome(ctx, outcomeOf(err))
	return res, err
}

func (g *Guard) admit(ctx context.Context) error {
	if g.closed.Load() {
		g.rejected.Add(1)
		return engine.NewAnalysisError(engine.Overloaded, errors.New("not accepting work"))
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", engine.ErrCanceled, err)
	}

	// TryAcquire fails while others are waiting, so this keeps arrival order.
	if g.sem.TryAcquire(1) {
		g.observer.QueueWait(ctx, 0)
		return g.checkOpen()
	}

	if q := g.queued.Add(1); g.cfg.MaxQueue > 0 && q > int64(g.cfg.MaxQueue) {
		g.queued.Add(-1)
		g.rejected.Add(1)
		return engine.NewAnalysisError(engine.Overloaded, fmt.Errorf("queue is full (%d waiting)", g.cfg.MaxQueue))
	}
	g.logger.DebugContext(ctx, "request queued", slog.Int64("queued", g.queued.Load()))

	waitCtx, cancel := ctx, context.CancelFunc(func() {})
	if g.cfg.QueueTimeout > 0 {
		waitCtx, cancel = context.WithTimeout(ctx, g.cfg.QueueTimeout)
	}
	start := time.Now()
	err := g.sem.Acquire(waitCtx, 1)
	cancel()
	g.queued.Add(-1)
	g.observer.QueueWait(ctx, time.Since(start))

	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", engine.ErrCanceled, ctx.Err())
		}
		g.rejected.Add(1)
		return engine.NewAnalysisError(engine.Overloaded, fmt.Errorf("no engine slot within %s", g.cfg.QueueTimeout))
	}
	return g.checkOpen()
}

func (g *Guard) checkOpen() error {
	if g.closed.Load() {
		g.sem.Release(1)
		g.rejected.Add(1)
		return engine.NewAnalysisError(engine.Overloaded, errors.New("not accepting work"))
	}
	return nil
}

// call runs the engine in its own goroutine so the slot can be released at
// the deadline even if the engine ignores its context.
func (g *Guard) call(ctx context.Context, req engine.Request) (engine.Result, error) {
	callCtx, cancel := context.WithoutCancel(ctx), context.CancelFunc(func() {})
	if g.cfg.CallTimeout > 0 {
		callCtx, cancel = context.WithTimeout(callCtx, g.cfg.CallTimeout)
	}

	done := make(chan callResult, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- callResult{err: engine.NewAnalysisError(engine.EngineFault, fmt.Errorf("engine panic: %v", rec))}
			}
		}()
		res, err := g.analyzer.Analyze(callCtx, req)
		done <- callResult{res: res, err: err}
	}()

	select {
	case out := <-done:
		cancel()
		if out.err != nil {
			err := classify(out.err)
			if errors.Is(err, engine.ErrTimeout) {
				g.timedOut.Add(1)
			}
			return engine.Result{}, err
		}
		return out.res, nil
	case <-callCtx.Done():
		g.timedOut.Add(1)
		g.abandoned.Add(1)
		g.logger.WarnContext(ctx, "engine call exceeded deadline, abandoning",
			slog.Duration("call_timeout", g.cfg.CallTimeout))
		go func() {
			<-done
			cancel()
			g.abandoned.Add(-1)
			g.logger.Info("abandoned engine call returned")
		}()
		return engine.Result{}, engine.NewAnalysisError(engine.Timeout, callCtx.Err())
	}
}

func classify(err error) error {
	var ae *engine.AnalysisError
	if errors.As(err, &ae) {
		return ae
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return engine.NewAnalysisError(engine.Timeout, err)
	}
	return engine.NewAnalysisError(engine.EngineFault, err)
}

func outcomeOf(err error) string {
	if err == nil {
		return OutcomeOK
	}
	if errors.Is(err, engine.ErrCanceled) {
		return OutcomeCanceled
	}
	if code, ok := engine.CodeOf(err); ok {
		return strings.ToLower(string(code))
	}
	return strings.ToLower(string(engine.EngineFault))
}

// Accepting reports whether new requests are admitted.
func (g *Guard) Accepting() bool {
	return !g.closed.Load()
}

// Close stops admitting new requests. Requests already admitted finish.
func (g *Guard) Close() {
	if !g.closed.Swap(true) {
		g.logger.Info("guard closed")
	}
}

// Drain waits until no admitted call holds a slot or ctx ends. Abandoned
// calls have already released their slots and are not waited for.
func (g *Guard) Drain(ctx context.Context) error {
	n := int64(g.cfg.MaxInFlight)
	if err := g.sem.Acquire(ctx, n); err != nil {
		return err
	}
	g.sem.Release(n)
	return nil
}

// Stats returns current counters.
func (g *Guard) Stats() Stats {
	return Stats{
		MaxInFlight: g.cfg.MaxInFlight,
		InFlight:    g.inFlight.Load(),
		Queued:      g.queued.Load(),
		Abandoned:   g.abandoned.Load(),
		Admitted:    g.admitted.Load(),
		Rejected:    g.rejected.Load(),
		TimedOut:    g.timedOut.Load(),
	}
}

// Config returns the limits the guard was built with.
func (g *Guard) Config() Config {
	return g.cfg
}
