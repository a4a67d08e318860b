package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wardenhq/warden/telemetry"
	"github.com/wardenhq/warden/types"
)

// SignalSource proposes candidate actions each observation cycle.
// Implementations poll alerts, queues or detectors.
type SignalSource interface {
	GetCandidateActions(ctx context.Context) ([]types.Action, error)
}

// CycleResult summarizes one observe-decide-act cycle
type CycleResult struct {
	Polled    int
	Allowed   int
	Denied    int
	Succeeded int
	Failed    int
	StartedAt time.Time
	Duration  time.Duration
}

// Loop runs the observe-decide-act cycle on a fixed interval. Each
// candidate is submitted on its own goroutine; shutdown waits for all
// in-flight submissions before returning.
type Loop struct {
	core     *Core
	source   SignalSource
	interval time.Duration
	logger   *telemetry.Logger
	hook     func(context.Context, CycleResult)
}

// NewLoop creates a loop polling source every interval
func NewLoop(core *Core, source SignalSource, interval time.Duration) *Loop {
	return &Loop{
		core:     core,
		source:   source,
		interval: interval,
		logger:   telemetry.NewLogger("loop"),
	}
}

// WithCycleHook registers a callback invoked after every completed
// cycle, used by the daemon for operational metrics.
func (l *Loop) WithCycleHook(hook func(context.Context, CycleResult)) *Loop {
	l.hook = hook
	return l
}

// RunOnce executes a single observe-decide-act cycle. One-shot mode for
// cron-style deployments.
func (l *Loop) RunOnce(ctx context.Context) CycleResult {
	result := l.cycle(ctx)
	if l.hook != nil {
		l.hook(ctx, result)
	}
	l.logger.WithContext(ctx).Info().
		Int("polled", result.Polled).
		Int("allowed", result.Allowed).
		Int("denied", result.Denied).
		Dur("duration", result.Duration).
		Msg("Cycle complete")
	return result
}

// Run blocks until ctx is cancelled, then drains in-flight actions and
// returns ctx.Err().
func (l *Loop) Run(ctx context.Context) error {
	l.logger.WithContext(ctx).Info().
		Dur("interval", l.interval).
		Msg("Observe-decide-act loop starting")

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.WithContext(ctx).Info().Msg("Loop stopped")
			return ctx.Err()
		case <-ticker.C:
			result := l.cycle(ctx)
			if l.hook != nil {
				l.hook(ctx, result)
			}
			l.logger.WithContext(ctx).Info().
				Int("polled", result.Polled).
				Int("allowed", result.Allowed).
				Int("denied", result.Denied).
				Dur("duration", result.Duration).
				Msg("Cycle complete")
		}
	}
}

// cycle polls the source once, submits every candidate concurrently
// and waits for all of them. Cancellation mid-cycle still drains: each
// submission observes ctx and finishes its record before returning.
func (l *Loop) cycle(ctx context.Context) CycleResult {
	result := CycleResult{StartedAt: time.Now()}
	defer func() { result.Duration = time.Since(result.StartedAt) }()

	candidates, err := l.source.GetCandidateActions(ctx)
	if err != nil {
		l.logger.WithContext(ctx).Error().Err(err).Msg("Polling signal source failed")
		return result
	}
	result.Polled = len(candidates)

	// Cancellation stops new cycles, never work already admitted: a
	// submission killed mid-dispatch would be recorded FAILED and feed the
	// failure window, so a plain shutdown could trip the halt. Submissions
	// run detached from loop cancellation and the WaitGroup drains them.
	submitCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	var mu sync.Mutex
	for _, candidate := range candidates {
		wg.Add(1)
		go func(action types.Action) {
			defer wg.Done()
			_, err := l.core.Submit(submitCtx, action)

			mu.Lock()
			defer mu.Unlock()
			var policyErr *types.PolicyViolation
			switch {
			case err == nil:
				result.Allowed++
				result.Succeeded++
			case errors.As(err, &policyErr):
				result.Denied++
			default:
				result.Allowed++
				result.Failed++
			}
		}(candidate)
	}
	wg.Wait()
	return result
}
