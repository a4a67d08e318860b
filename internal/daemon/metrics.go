package daemon

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// DaemonMetrics holds operational metrics using OTEL semantic conventions
type DaemonMetrics struct {
	cycles        metric.Int64Counter
	cycleDuration metric.Float64Histogram
	haltState     metric.Int64Gauge
	configReloads metric.Int64Counter
}

// NewDaemonMetrics creates daemon metrics following OTEL semantic conventions
func NewDaemonMetrics() (*DaemonMetrics, error) {
	meter := otel.Meter("warden.daemon")

	cycles, err := meter.Int64Counter(
		"warden.daemon.cycles",
		metric.WithDescription("Number of observe-decide-act cycles run"),
		metric.WithUnit("{cycle}"),
	)
	if err != nil {
		return nil, err
	}

	cycleDuration, err := meter.Float64Histogram(
		"warden.daemon.cycle.duration",
		metric.WithDescription("Duration of observe-decide-act cycles"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	haltState, err := meter.Int64Gauge(
		"warden.halt.state",
		metric.WithDescription("Whether autonomy is currently suspended"),
		metric.WithUnit("{state}"),
	)
	if err != nil {
		return nil, err
	}

	configReloads, err := meter.Int64Counter(
		"warden.daemon.config_reloads",
		metric.WithDescription("Number of governance config hot reloads"),
		metric.WithUnit("{reload}"),
	)
	if err != nil {
		return nil, err
	}

	return &DaemonMetrics{
		cycles:        cycles,
		cycleDuration: cycleDuration,
		haltState:     haltState,
		configReloads: configReloads,
	}, nil
}

// RecordCycle records one completed cycle with its outcome
func (m *DaemonMetrics) RecordCycle(ctx context.Context, status string, durationSeconds float64) {
	m.cycles.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("status", status),
		),
	)
	m.cycleDuration.Record(ctx, durationSeconds,
		metric.WithAttributes(
			attribute.String("status", status),
		),
	)
}

// RecordHaltState records the current halt flag
func (m *DaemonMetrics) RecordHaltState(ctx context.Context, halted bool) {
	state := int64(0)
	if halted {
		state = 1
	}
	m.haltState.Record(ctx, state)
}

// RecordConfigReload records a successful governance hot reload
func (m *DaemonMetrics) RecordConfigReload(ctx context.Context) {
	m.configReloads.Add(ctx, 1)
}
