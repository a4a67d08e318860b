// Package orchestrator wires the governor, dispatcher, lifecycle
// tracking and failsafe monitor into a single action pipeline.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/wardenhq/warden/config"
	"github.com/wardenhq/warden/dispatch"
	"github.com/wardenhq/warden/failsafe"
	"github.com/wardenhq/warden/governor"
	"github.com/wardenhq/warden/lifecycle"
	"github.com/wardenhq/warden/storage"
	"github.com/wardenhq/warden/telemetry"
	"github.com/wardenhq/warden/types"
	"github.com/wardenhq/warden/wal"
)

// Core runs the full govern-dispatch-record pipeline for one action at
// a time per action id, many actions concurrently.
type Core struct {
	cfg        *config.Config
	governor   *governor.Governor
	dispatcher *dispatch.Dispatcher
	tracker    *lifecycle.Tracker
	halt       *failsafe.HaltState
	monitor    *failsafe.Monitor
	store      *storage.RecordStore
	journal    *wal.WAL
	logger     *telemetry.Logger
	metrics    *telemetry.Metrics
	now        func() time.Time
}

// New assembles a core from pre-built components. The governor's
// in-flight source must be the same tracker passed here.
func New(
	cfg *config.Config,
	gov *governor.Governor,
	dispatcher *dispatch.Dispatcher,
	tracker *lifecycle.Tracker,
	halt *failsafe.HaltState,
	monitor *failsafe.Monitor,
	store *storage.RecordStore,
	journal *wal.WAL,
) *Core {
	return &Core{
		cfg:        cfg,
		governor:   gov,
		dispatcher: dispatcher,
		tracker:    tracker,
		halt:       halt,
		monitor:    monitor,
		store:      store,
		journal:    journal,
		logger:     telemetry.NewLogger("orchestrator"),
		now:        time.Now,
	}
}

// WithMetrics attaches OTEL metrics recording
func (c *Core) WithMetrics(m *telemetry.Metrics) *Core {
	c.metrics = m
	return c
}

// Restore reloads persisted halt status and refills the cascading
// failure window from stored terminal records. Must run before the
// first Submit.
func (c *Core) Restore(ctx context.Context) error {
	status, err := c.store.LoadHaltStatus()
	if err != nil {
		return fmt.Errorf("loading halt status: %w", err)
	}
	c.halt.Restore(status)

	since := c.now().Add(-c.cfg.Monitor.Window)
	records, err := c.store.TerminalSince(since)
	if err != nil {
		return fmt.Errorf("loading terminal records: %w", err)
	}
	c.monitor.Rebuild(ctx, records)

	c.logger.WithContext(ctx).Info().
		Bool("halted", status.Active).
		Int("window_failures", c.monitor.FailureCount()).
		Msg("State restored")
	return nil
}

// SubmissionResult is the outcome of one action submission
type SubmissionResult struct {
	Decision types.Decision
	Record   *types.ActionRecord
	Dispatch *dispatch.Result
}

// Submit runs one action through the pipeline: evaluate, track,
// dispatch, record. A denied or escalated action returns a
// PolicyViolation; the decision is still journaled.
func (c *Core) Submit(ctx context.Context, action types.Action) (*SubmissionResult, error) {
	if err := c.journal.Append(wal.EntryProposed, action.ID, action); err != nil {
		return nil, fmt.Errorf("journaling proposal: %w", err)
	}

	decision := c.governor.Evaluate(ctx, action)
	if err := c.journal.Append(wal.EntryDecided, action.ID, decision); err != nil {
		if decision.Allowed() {
			// An ALLOW holds a target reservation until Begin; bailing out
			// here must give it back.
			c.tracker.ReleaseTargets(action.ID)
		}
		return nil, fmt.Errorf("journaling decision: %w", err)
	}

	result := &SubmissionResult{Decision: decision}
	if !decision.Allowed() {
		return result, &types.PolicyViolation{
			ActionID: action.ID,
			Verdict:  decision.Verdict,
			Reasons:  decision.Reasons,
		}
	}

	record, err := c.tracker.Begin(action)
	if err != nil {
		return result, err
	}
	result.Record = record
	c.persist(ctx, record)
	if c.metrics != nil {
		c.metrics.ActionStarted(ctx)
	}

	dispatchResult, dispatchErr := c.execute(ctx, record, action)
	result.Dispatch = dispatchResult

	c.finalize(ctx, record)
	return result, dispatchErr
}

// execute moves the record through EXECUTING and dispatches it
func (c *Core) execute(ctx context.Context, record *types.ActionRecord, action types.Action) (*dispatch.Result, error) {
	c.transition(ctx, record, types.StateExecuting)
	if err := c.journal.Append(wal.EntryDispatching, action.ID, nil); err != nil {
		c.logger.WithContext(ctx).Error().Err(err).Msg("Journaling dispatch start failed")
	}

	dispatchResult, dispatchErr := c.dispatcher.Dispatch(ctx, action)
	for _, attempt := range dispatchResult.Attempts {
		lifecycle.AppendAttempt(record, attempt)
		if err := c.journal.Append(wal.EntryAttempt, action.ID, attempt); err != nil {
			c.logger.WithContext(ctx).Error().Err(err).Msg("Journaling attempt failed")
		}
	}

	if dispatchResult.Succeeded() {
		c.transition(ctx, record, types.StateSucceeded)
		if err := c.journal.Append(wal.EntryExecuted, action.ID, dispatchResult); err != nil {
			c.logger.WithContext(ctx).Error().Err(err).Msg("Journaling completion failed")
		}
		return dispatchResult, nil
	}

	c.transition(ctx, record, types.StateFailed)
	if err := c.journal.AppendError(wal.EntryFailed, action.ID, dispatchResult, dispatchErr); err != nil {
		c.logger.WithContext(ctx).Error().Err(err).Msg("Journaling failure failed")
	}

	if c.cfg.Rollback.Auto && len(dispatchResult.Attempts) > 0 {
		c.rollback(ctx, record, action)
	}
	return dispatchResult, dispatchErr
}

// rollback reverses a failed action through the last path that touched
// it. The record lands in ROLLED_BACK whether or not the reversal call
// itself succeeded: the reversal outcome is journaled, the lifecycle
// does not fork on it.
func (c *Core) rollback(ctx context.Context, record *types.ActionRecord, action types.Action) {
	c.transition(ctx, record, types.StateRollingBack)

	lastPath := ""
	if n := len(record.Attempts); n > 0 {
		lastPath = record.Attempts[n-1].Path
	}
	var reverseErr error
	if lastPath != "" {
		reverseErr = c.dispatcher.Reverse(ctx, lastPath, action)
	}

	c.transition(ctx, record, types.StateRolledBack)
	if err := c.journal.AppendError(wal.EntryRolledBack, action.ID, map[string]string{"path": lastPath}, reverseErr); err != nil {
		c.logger.WithContext(ctx).Error().Err(err).Msg("Journaling rollback failed")
	}
}

// Rollback is the operator entry point: reverse an already-failed
// action that auto-rollback left alone.
func (c *Core) Rollback(ctx context.Context, actionID string) error {
	record, err := c.store.GetRecord(actionID)
	if err != nil {
		return fmt.Errorf("loading record: %w", err)
	}
	if record == nil {
		return fmt.Errorf("unknown action %s", actionID)
	}
	if record.State != types.StateFailed {
		return &types.StateTransitionError{
			ActionID: actionID,
			From:     record.State,
			To:       types.StateRollingBack,
		}
	}

	c.rollback(ctx, record, record.Action)
	c.persist(ctx, record)
	return nil
}

// finalize settles a terminal record: persists it, feeds the failure
// window and closes out tracking.
func (c *Core) finalize(ctx context.Context, record *types.ActionRecord) {
	wasHalted := c.halt.Active()

	// One terminal event per action instance. A FAILED record that was
	// auto-rolled back still counts once.
	c.monitor.RecordTerminal(ctx, record)

	if !wasHalted && c.halt.Active() {
		if err := c.journal.Append(wal.EntryHalted, "", c.halt.Status()); err != nil {
			c.logger.WithContext(ctx).Error().Err(err).Msg("Journaling halt failed")
		}
	}

	c.persist(ctx, record)
	if err := c.tracker.Finish(record); err != nil {
		c.logger.LogDroppedEvent(ctx, record.ActionID(), err)
	}
	if c.metrics != nil {
		c.metrics.ActionFinished(ctx)
	}
}

// Halt suspends all autonomous execution until Resume
func (c *Core) Halt(ctx context.Context, reason string) {
	c.halt.Trip(ctx, reason)
	if err := c.journal.Append(wal.EntryHalted, "", c.halt.Status()); err != nil {
		c.logger.WithContext(ctx).Error().Err(err).Msg("Journaling halt failed")
	}
}

// Resume clears the halt after an operator has reviewed the situation
func (c *Core) Resume(ctx context.Context) {
	c.halt.Reset(ctx)
	if err := c.journal.Append(wal.EntryReset, "", nil); err != nil {
		c.logger.WithContext(ctx).Error().Err(err).Msg("Journaling reset failed")
	}
}

// Status reports the current halt state
func (c *Core) Status() types.HaltStatus {
	return c.halt.Status()
}

// Record returns the stored record for an action, nil when unknown
func (c *Core) Record(actionID string) (*types.ActionRecord, error) {
	return c.store.GetRecord(actionID)
}

// transition applies a state change or drops it. An illegal move is a
// bug in the pipeline, not in the caller's action, so it is logged and
// the record left untouched.
func (c *Core) transition(ctx context.Context, record *types.ActionRecord, to types.ActionState) {
	from := record.State
	if err := lifecycle.Transition(record, to, c.now()); err != nil {
		c.logger.LogDroppedEvent(ctx, record.ActionID(), err)
		return
	}
	c.logger.LogStateChange(ctx, record.ActionID(), from, to)
	c.persist(ctx, record)
}

func (c *Core) persist(ctx context.Context, record *types.ActionRecord) {
	if _, err := c.store.SaveRecord(record); err != nil {
		c.logger.WithContext(ctx).Error().
			Err(err).
			Str("action_id", record.ActionID()).
			Msg("Persisting record failed")
	}
}
