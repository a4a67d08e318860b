// Package failsafe holds the process-wide autonomy switch and the cascading
// failure monitor that trips it.
package failsafe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wardenhq/warden/telemetry"
	"github.com/wardenhq/warden/types"
)

// Reasons a halt can trip with
const (
	ReasonCascadingFailure = "cascading_failure"
	ReasonManual           = "manual"
)

// Persister durably records halt state changes so the switch survives
// restarts. Implemented by the storage layer.
type Persister interface {
	SaveHaltStatus(status types.HaltStatus) error
}

// HaltState is the shared autonomy kill switch. All access goes through
// Trip/Reset/Status under one lock; correctness never depends on call sites.
type HaltState struct {
	mu        sync.Mutex
	active    bool
	reason    string
	trippedAt time.Time

	persister Persister
	logger    *telemetry.Logger
	now       func() time.Time
}

// NewHaltState creates an inactive halt switch
func NewHaltState(persister Persister) *HaltState {
	return &HaltState{
		persister: persister,
		logger:    telemetry.NewLogger("failsafe"),
		now:       time.Now,
	}
}

// Restore applies a previously persisted status, typically at startup
func (h *HaltState) Restore(status types.HaltStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.active = status.Active
	h.reason = status.Reason
	h.trippedAt = status.TrippedAt
}

// Trip sets the halt. Idempotent: a second trip keeps the original reason
// and timestamp. The halt never auto-expires; only Reset releases it.
func (h *HaltState) Trip(ctx context.Context, reason string) {
	h.mu.Lock()
	if h.active {
		h.mu.Unlock()
		return
	}
	h.active = true
	h.reason = reason
	h.trippedAt = h.now()
	status := h.statusLocked()
	h.mu.Unlock()

	h.logger.LogHaltTripped(ctx, reason)
	h.persist(ctx, status)
}

// Reset releases the halt. Always an explicit, manual operation.
func (h *HaltState) Reset(ctx context.Context) {
	h.mu.Lock()
	if !h.active {
		h.mu.Unlock()
		return
	}
	h.active = false
	h.reason = ""
	h.trippedAt = time.Time{}
	status := h.statusLocked()
	h.mu.Unlock()

	h.logger.LogHaltReset(ctx)
	h.persist(ctx, status)
}

// Active reports whether autonomy is currently suspended
func (h *HaltState) Active() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.active
}

// Status returns a read-only snapshot
func (h *HaltState) Status() types.HaltStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.statusLocked()
}

func (h *HaltState) statusLocked() types.HaltStatus {
	return types.HaltStatus{
		Active:    h.active,
		Reason:    h.reason,
		TrippedAt: h.trippedAt,
	}
}

// Describe returns the operator-facing status line
func (h *HaltState) Describe() string {
	status := h.Status()
	if !status.Active {
		return "autonomy active"
	}
	return fmt.Sprintf("autonomy suspended: %s since %s", status.Reason, status.TrippedAt.Format(time.RFC3339))
}

func (h *HaltState) persist(ctx context.Context, status types.HaltStatus) {
	if h.persister == nil {
		return
	}
	if err := h.persister.SaveHaltStatus(status); err != nil {
		h.logger.WithContext(ctx).Error().
			Err(err).
			Msg("failed to persist halt status")
	}
}
