package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds governance metrics using OTEL semantic conventions
type Metrics struct {
	decisions        metric.Int64Counter
	attempts         metric.Int64Counter
	dispatchDuration metric.Float64Histogram
	haltTrips        metric.Int64Counter
	inFlight         metric.Int64UpDownCounter
}

// NewMetrics creates the governance instrument set
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("warden.core")

	decisions, err := meter.Int64Counter(
		"warden.governor.decisions",
		metric.WithDescription("Number of governor decisions by verdict and reason"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, err
	}

	attempts, err := meter.Int64Counter(
		"warden.dispatch.attempts",
		metric.WithDescription("Number of path attempts by path and outcome"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	dispatchDuration, err := meter.Float64Histogram(
		"warden.dispatch.duration",
		metric.WithDescription("End-to-end dispatch duration per action"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	haltTrips, err := meter.Int64Counter(
		"warden.halt.trips",
		metric.WithDescription("Number of times the autonomy halt tripped"),
		metric.WithUnit("{trip}"),
	)
	if err != nil {
		return nil, err
	}

	inFlight, err := meter.Int64UpDownCounter(
		"warden.actions.in_flight",
		metric.WithDescription("Actions currently executing"),
		metric.WithUnit("{action}"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		decisions:        decisions,
		attempts:         attempts,
		dispatchDuration: dispatchDuration,
		haltTrips:        haltTrips,
		inFlight:         inFlight,
	}, nil
}

// RecordDecision records a governor verdict
func (m *Metrics) RecordDecision(ctx context.Context, verdict, reason string) {
	m.decisions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("verdict", verdict),
			attribute.String("reason", reason),
		),
	)
}

// RecordAttempt records one path attempt
func (m *Metrics) RecordAttempt(ctx context.Context, path, outcome string) {
	m.attempts.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("path", path),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordDispatchDuration records total dispatch time for one action
func (m *Metrics) RecordDispatchDuration(ctx context.Context, d time.Duration, outcome string) {
	m.dispatchDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(
			attribute.String("outcome", outcome),
		),
	)
}

// RecordHaltTrip records an autonomy suspension
func (m *Metrics) RecordHaltTrip(ctx context.Context, reason string) {
	m.haltTrips.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("reason", reason),
		),
	)
}

// ActionStarted bumps the in-flight gauge
func (m *Metrics) ActionStarted(ctx context.Context) {
	m.inFlight.Add(ctx, 1)
}

// ActionFinished drops the in-flight gauge
func (m *Metrics) ActionFinished(ctx context.Context) {
	m.inFlight.Add(ctx, -1)
}
