package infrastructure

import (
	"context"
	"runtime"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// RegisterRuntimeMetrics exposes goroutine count, heap usage and process
// uptime, sampled on each collection.
func RegisterRuntimeMetrics(meter metric.Meter, startTime time.Time) (metric.Registration, error) {
	goroutines, err := meter.Int64ObservableGauge(
		"system_goroutines",
		metric.WithDescription("Number of active goroutines"),
	)
	if err != nil {
		return nil, err
	}

	heapAlloc, err := meter.Int64ObservableGauge(
		"system_memory_allocated_bytes",
		metric.WithDescription("Heap bytes allocated by the Go runtime"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	uptime, err := meter.Float64ObservableGauge(
		"system_uptime_seconds",
		metric.WithDescription("Process uptime in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		o.ObserveInt64(goroutines, int64(runtime.NumGoroutine()))
		o.ObserveInt64(heapAlloc, int64(m.HeapAlloc))
		o.ObserveFloat64(uptime, time.Since(startTime).Seconds())
		return nil
	}, goroutines, heapAlloc, uptime)
}
