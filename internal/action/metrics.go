package action

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "member-manager/action"

type metrics struct {
	counter metric.Int64Counter
	hist    metric.Int64Histogram
}

func newMetrics() (*metrics, error) {
	meter := otel.Meter(
		instrumentationName,
		metric.WithInstrumentationVersion(otel.Version()),
	)

	counter, err := meter.Int64Counter(
		"action.count",
		metric.WithDescription("Submitted action count"),
		metric.WithUnit("action"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating action count meter: %w", err)
	}

	hist, err := meter.Int64Histogram(
		"action.duration",
		metric.WithDescription("Action duration from submission to decoded result"),
		metric.WithUnit("milliseconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating action duration meter: %w", err)
	}

	return &metrics{counter: counter, hist: hist}, nil
}

func (m *metrics) record(ctx context.Context, out Outcome, elapsed time.Duration) {
	result := "success"
	if !out.OK() {
		result = "failure"
	}

	attrs := metric.WithAttributes(
		attribute.String("kind", string(out.Kind)),
		attribute.String("outcome", result),
	)

	m.counter.Add(ctx, 1, attrs)
	m.hist.Record(ctx, elapsed.Milliseconds(), attrs)
}
