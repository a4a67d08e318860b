package failsafe

import (
	"context"
	"sync"
	"time"

	"github.com/wardenhq/warden/telemetry"
	"github.com/wardenhq/warden/types"
)

// Monitor counts FAILED and ROLLED_BACK terminal outcomes over a rolling
// window and trips the halt when the count reaches the threshold.
//
// The asymmetry is deliberate: tripping is automatic, releasing requires a
// manual reset even after the window ages past the failures.
type Monitor struct {
	mu        sync.Mutex
	outcomes  []time.Time
	threshold int
	window    time.Duration

	halt    *HaltState
	logger  *telemetry.Logger
	metrics *telemetry.Metrics
	now     func() time.Time
}

// NewMonitor creates a cascading failure monitor wired to the halt switch
func NewMonitor(halt *HaltState, threshold int, window time.Duration) *Monitor {
	return &Monitor{
		threshold: threshold,
		window:    window,
		halt:      halt,
		logger:    telemetry.NewLogger("failsafe"),
		now:       time.Now,
	}
}

// WithMetrics attaches the metric instrument set
func (m *Monitor) WithMetrics(metrics *telemetry.Metrics) *Monitor {
	m.metrics = metrics
	return m
}

// RecordTerminal feeds one terminal record into the window. Succeeded
// records are ignored.
func (m *Monitor) RecordTerminal(ctx context.Context, record *types.ActionRecord) {
	if !record.CountsAsFailure() {
		return
	}
	m.recordFailure(ctx, record.UpdatedAt)
}

// Rebuild reloads the window from persisted terminal records at startup
func (m *Monitor) Rebuild(ctx context.Context, records []types.ActionRecord) {
	for i := range records {
		m.RecordTerminal(ctx, &records[i])
	}
}

// FailureCount returns the number of failures currently inside the window
func (m *Monitor) FailureCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneLocked(m.now())
	return len(m.outcomes)
}

func (m *Monitor) recordFailure(ctx context.Context, at time.Time) {
	m.mu.Lock()
	now := m.now()
	m.pruneLocked(now)
	if now.Sub(at) < m.window {
		m.outcomes = append(m.outcomes, at)
	}
	count := len(m.outcomes)
	m.mu.Unlock()

	m.logger.WithContext(ctx).Warn().
		Int("failures_in_window", count).
		Int("threshold", m.threshold).
		Msg("terminal failure recorded")

	if count >= m.threshold {
		m.halt.Trip(ctx, ReasonCascadingFailure)
		if m.metrics != nil {
			m.metrics.RecordHaltTrip(ctx, ReasonCascadingFailure)
		}
	}
}

func (m *Monitor) pruneLocked(now time.Time) {
	cutoff := now.Add(-m.window)
	kept := m.outcomes[:0]
	for _, at := range m.outcomes {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	m.outcomes = kept
}
