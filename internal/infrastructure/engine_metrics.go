package infrastructure

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"langworker/internal/guard"
)

// EngineMetrics records admission and call measurements for the engine
// guard. It implements guard.Observer.
type EngineMetrics struct {
	queueWait    metric.Float64Histogram
	callDuration metric.Float64Histogram
	outcomes     metric.Int64Counter

	registration metric.Registration
}

var _ guard.Observer = (*EngineMetrics)(nil)

// CreateEngineMetrics registers the engine instruments. stats is polled on
// each collection for the in-flight, queued and abandoned gauges.
func CreateEngineMetrics(meter metric.Meter, stats func() guard.Stats) (*EngineMetrics, error) {
	queueWait, err := meter.Float64Histogram(
		"engine_queue_wait_seconds",
		metric.WithDescription("Time requests spent waiting for an engine slot"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	callDuration, err := meter.Float64Histogram(
		"engine_call_duration_seconds",
		metric.WithDescription("Engine call duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	outcomes, err := meter.Int64Counter(
		"engine_outcomes_total",
		metric.WithDescription("Analysis requests by outcome"),
	)
	if err != nil {
		return nil, err
	}

	inFlight, err := meter.Int64ObservableUpDownCounter(
		"engine_inflight_calls",
		metric.WithDescription("Engine calls currently holding a slot"),
	)
	if err != nil {
		return nil, err
	}
	queued, err := meter.Int64ObservableUpDownCounter(
		"engine_queued_requests",
		metric.WithDescription("Requests waiting for an engine slot"),
	)
	if err != nil {
		return nil, err
	}
	abandoned, err := meter.Int64ObservableUpDownCounter(
		"engine_abandoned_calls",
		metric.WithDescription("Timed-out engine calls that have not returned"),
	)
	if err != nil {
		return nil, err
	}

	reg, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := stats()
		o.ObserveInt64(inFlight, s.InFlight)
		o.ObserveInt64(queued, s.Queued)
		o.ObserveInt64(abandoned, s.Abandoned)
		return nil
	}, inFlight, queued, abandoned)
	if err != nil {
		return nil, err
	}

	return &EngineMetrics{
		queueWait:    queueWait,
		callDuration: callDuration,
		outcomes:     outcomes,
		registration: reg,
	}, nil
}

func (m *EngineMetrics) QueueWait(ctx context.Context, wait time.Duration) {
	m.queueWait.Record(ctx, wait.Seconds())
}

func (m *EngineMetrics) CallDuration(ctx context.Context, elapsed time.Duration) {
	m.callDuration.Record(ctx, elapsed.Seconds())
}

func (m *EngineMetrics) Outcome(ctx context.Context, outcome string) {
	m.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// Unregister stops polling the guard.
func (m *EngineMetrics) Unregister() error {
	if m.registration == nil {
		return nil
	}
	return m.registration.Unregister()
}
