package websocket

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metrics provides OpenTelemetry metrics for live checking sessions
type Metrics struct {
	connectionsTotal   metric.Int64Counter
	connectionsActive  metric.Int64UpDownCounter
	connectionDuration metric.Float64Histogram
	messagesTotal      metric.Int64Counter
	droppedMessages    metric.Int64Counter
}

// NewMetrics creates the session instruments on meter. A nil meter yields
// no-op instruments.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("websocket")
	}

	connectionsTotal, err := meter.Int64Counter(
		"websocket_connections_total",
		metric.WithDescription("Total number of WebSocket connections"),
	)
	if err != nil {
		return nil, err
	}

	connectionsActive, err := meter.Int64UpDownCounter(
		"websocket_connections_active",
		metric.WithDescription("Number of active WebSocket connections"),
	)
	if err != nil {
		return nil, err
	}

	connectionDuration, err := meter.Float64Histogram(
		"websocket_connection_duration_seconds",
		metric.WithDescription("Duration of WebSocket connections"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	messagesTotal, err := meter.Int64Counter(
		"websocket_messages_total",
		metric.WithDescription("Total number of WebSocket messages by direction and type"),
	)
	if err != nil {
		return nil, err
	}

	droppedMessages, err := meter.Int64Counter(
		"websocket_dropped_messages_total",
		metric.WithDescription("Replies dropped because the client was not reading"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		connectionsTotal:   connectionsTotal,
		connectionsActive:  connectionsActive,
		connectionDuration: connectionDuration,
		messagesTotal:      messagesTotal,
		droppedMessages:    droppedMessages,
	}, nil
}

func (m *Metrics) connected(ctx context.Context) {
	m.connectionsTotal.Add(ctx, 1)
	m.connectionsActive.Add(ctx, 1)
}

func (m *Metrics) disconnected(ctx context.Context, d time.Duration) {
	m.connectionsActive.Add(ctx, -1)
	m.connectionDuration.Record(ctx, d.Seconds())
}

func (m *Metrics) message(ctx context.Context, direction, msgType string) {
	m.messagesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("direction", direction),
		attribute.String("type", msgType),
	))
}

func (m *Metrics) dropped(ctx context.Context) {
	m.droppedMessages.Add(ctx, 1)
}
