package lifecycle

import (
	"fmt"
	"sync"
	"time"

	"github.com/wardenhq/warden/types"
)

// Tracker owns the set of active (non-terminal) records plus target
// reservations made at decision time. A record belongs exclusively to its
// evaluation/dispatch pipeline until it turns terminal; the tracker only
// guards admission and lookup.
type Tracker struct {
	mu       sync.Mutex
	active   map[string]*types.ActionRecord
	reserved map[string][]string
	now      func() time.Time
}

// NewTracker creates an empty tracker
func NewTracker() *Tracker {
	return &Tracker{
		active:   make(map[string]*types.ActionRecord),
		reserved: make(map[string][]string),
		now:      time.Now,
	}
}

// Begin registers a new record for the action, consuming any reservation
// made for it at decision time. Re-submitting an action id that is still
// active fails: no two records for one id may execute at once.
func (t *Tracker) Begin(action types.Action) (*types.ActionRecord, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.reserved, action.ID)
	if existing, ok := t.active[action.ID]; ok {
		return nil, fmt.Errorf("action %s already active in state %s", action.ID, existing.State)
	}

	record := NewRecord(action, t.now())
	t.active[action.ID] = record
	return record, nil
}

// ReserveTargets holds the action's targets in the in-flight accounting
// between the admission decision and Begin. admit sees the current
// in-flight target set under the tracker's lock, so check and reservation
// are one atomic step: two candidates racing for the last blast units
// cannot both pass.
func (t *Tracker) ReserveTargets(actionID string, targets []string, admit func(inFlight []string) bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !admit(t.inFlightLocked()) {
		return false
	}
	t.reserved[actionID] = targets
	return true
}

// ReleaseTargets drops a reservation whose action was rejected by a later
// check or never made it to Begin
func (t *Tracker) ReleaseTargets(actionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.reserved, actionID)
}

// Get returns the active record for an action id, if any
func (t *Tracker) Get(actionID string) (*types.ActionRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	record, ok := t.active[actionID]
	return record, ok
}

// Finish releases a record that reached a terminal state. Finishing a
// non-terminal record is a bug in the caller.
func (t *Tracker) Finish(record *types.ActionRecord) error {
	if !record.State.Terminal() {
		return fmt.Errorf("action %s finished in non-terminal state %s", record.ActionID(), record.State)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.active, record.ActionID())
	return nil
}

// InFlightTargets returns every target named by currently active records
// and outstanding reservations. Used by the governor's blast radius
// accounting.
func (t *Tracker) InFlightTargets() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inFlightLocked()
}

func (t *Tracker) inFlightLocked() []string {
	var targets []string
	for _, record := range t.active {
		targets = append(targets, record.Action.Targets...)
	}
	for _, reserved := range t.reserved {
		targets = append(targets, reserved...)
	}
	return targets
}

// ActiveCount returns the number of in-flight records
func (t *Tracker) ActiveCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}
