// Package dispatch tries execution paths in priority order until one
// succeeds. Path failure is recoverable; the dispatcher only gives up
// when every enabled path has failed or a halt trips mid-dispatch.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wardenhq/warden/config"
	"github.com/wardenhq/warden/telemetry"
	"github.com/wardenhq/warden/types"
)

// Executor is one execution backend. Execute must honor ctx cancellation;
// the dispatcher wraps every attempt in the path's configured timeout.
type Executor interface {
	Name() string
	Execute(ctx context.Context, action types.Action) error
}

// Reverser is implemented by executors that can undo a completed action
type Reverser interface {
	Reverse(ctx context.Context, action types.Action) error
}

// HaltReader lets the dispatcher stop between attempts when autonomy
// is suspended mid-dispatch.
type HaltReader interface {
	Active() bool
}

// Result is the outcome of dispatching one action across its paths
type Result struct {
	ActionID string
	Path     string // Path that succeeded, empty otherwise
	Outcome  types.AttemptOutcome
	Attempts []types.ExecutionAttempt
}

// Succeeded reports whether any path completed the action
func (r *Result) Succeeded() bool {
	return r.Outcome == types.OutcomeSuccess
}

// Dispatcher routes actions through registered executors following the
// configured path order.
type Dispatcher struct {
	mu        sync.RWMutex
	paths     []config.PathConfig
	executors map[string]Executor
	halt      HaltReader
	logger    *telemetry.Logger
	metrics   *telemetry.Metrics
	now       func() time.Time
}

// New creates a dispatcher over the given path order
func New(paths []config.PathConfig, halt HaltReader) *Dispatcher {
	return &Dispatcher{
		paths:     paths,
		executors: make(map[string]Executor),
		halt:      halt,
		logger:    telemetry.NewLogger("dispatcher"),
		now:       time.Now,
	}
}

// WithMetrics attaches OTEL metrics recording
func (d *Dispatcher) WithMetrics(m *telemetry.Metrics) *Dispatcher {
	d.metrics = m
	return d
}

// Register adds an executor. Paths without a registered executor are
// skipped at dispatch time.
func (d *Dispatcher) Register(e Executor) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.executors[e.Name()] = e
}

// Reload swaps the path order, used by the config watcher. In-flight
// dispatches finish under the order they started with.
func (d *Dispatcher) Reload(paths []config.PathConfig) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.paths = paths
	d.logger.WithContext(context.Background()).Info().
		Int("paths", len(paths)).
		Msg("Dispatch paths reloaded")
}

// Dispatch tries each enabled path in priority order and returns after
// the first success. When every path fails the Result carries
// OutcomeExhausted and the error is a DispatchExhausted.
func (d *Dispatcher) Dispatch(ctx context.Context, action types.Action) (*Result, error) {
	d.mu.RLock()
	paths := make([]config.PathConfig, len(d.paths))
	copy(paths, d.paths)
	d.mu.RUnlock()

	start := d.now()
	result := &Result{ActionID: action.ID}

	for _, path := range paths {
		if !path.Enabled {
			continue
		}

		if d.halt != nil && d.halt.Active() {
			result.Outcome = types.OutcomeHalted
			d.recordDuration(ctx, start, result.Outcome)
			return result, fmt.Errorf("dispatch halted after %d attempts", len(result.Attempts))
		}

		d.mu.RLock()
		executor, ok := d.executors[path.Name]
		d.mu.RUnlock()
		if !ok {
			d.logger.WithContext(ctx).Warn().
				Str("path", path.Name).
				Msg("No executor registered for path, skipping")
			continue
		}

		attempt := d.attempt(ctx, path, executor, action)
		result.Attempts = append(result.Attempts, attempt)
		d.logger.LogAttempt(ctx, attempt)
		if d.metrics != nil {
			d.metrics.RecordAttempt(ctx, path.Name, string(attempt.Outcome))
		}

		if attempt.Outcome == types.OutcomeSuccess {
			result.Path = path.Name
			result.Outcome = types.OutcomeSuccess
			d.recordDuration(ctx, start, result.Outcome)
			return result, nil
		}
	}

	result.Outcome = types.OutcomeExhausted
	d.recordDuration(ctx, start, result.Outcome)
	return result, &types.DispatchExhausted{
		ActionID: action.ID,
		Attempts: len(result.Attempts),
	}
}

// Reverse undoes a previously executed action through the path that
// performed it. Paths that cannot reverse report an AdapterFailure.
func (d *Dispatcher) Reverse(ctx context.Context, path string, action types.Action) error {
	d.mu.RLock()
	executor, ok := d.executors[path]
	d.mu.RUnlock()
	if !ok {
		return &types.AdapterFailure{Path: path, Err: fmt.Errorf("no executor registered")}
	}
	reverser, ok := executor.(Reverser)
	if !ok {
		return &types.AdapterFailure{Path: path, Err: fmt.Errorf("path cannot reverse actions")}
	}
	if err := reverser.Reverse(ctx, action); err != nil {
		return &types.AdapterFailure{Path: path, Err: err}
	}
	return nil
}

func (d *Dispatcher) attempt(ctx context.Context, path config.PathConfig, executor Executor, action types.Action) types.ExecutionAttempt {
	attemptCtx, cancel := context.WithTimeout(ctx, path.Timeout)
	defer cancel()

	started := d.now()
	err := executor.Execute(attemptCtx, action)
	finished := d.now()

	attempt := types.ExecutionAttempt{
		ActionID:   action.ID,
		Path:       path.Name,
		StartedAt:  started,
		FinishedAt: finished,
	}

	switch {
	case err == nil:
		attempt.Outcome = types.OutcomeSuccess
	case attemptCtx.Err() == context.DeadlineExceeded:
		attempt.Outcome = types.OutcomeTimeout
		attempt.Error = (&types.AdapterFailure{Path: path.Name, Err: attemptCtx.Err()}).Error()
	default:
		attempt.Outcome = types.OutcomeFailed
		attempt.Error = (&types.AdapterFailure{Path: path.Name, Err: err}).Error()
	}
	return attempt
}

func (d *Dispatcher) recordDuration(ctx context.Context, start time.Time, outcome types.AttemptOutcome) {
	if d.metrics != nil {
		d.metrics.RecordDispatchDuration(ctx, d.now().Sub(start), string(outcome))
	}
}
