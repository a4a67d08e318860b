package failsafe

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/wardenhq/warden/types"
)

type mockPersister struct {
	saved   []types.HaltStatus
	failErr error
}

func (m *mockPersister) SaveHaltStatus(status types.HaltStatus) error {
	if m.failErr != nil {
		return m.failErr
	}
	m.saved = append(m.saved, status)
	return nil
}

func TestHaltState_TripAndReset(t *testing.T) {
	persister := &mockPersister{}
	halt := NewHaltState(persister)
	ctx := context.Background()

	if halt.Active() {
		t.Fatal("new halt state should be inactive")
	}

	halt.Trip(ctx, ReasonManual)

	if !halt.Active() {
		t.Fatal("halt should be active after trip")
	}
	status := halt.Status()
	if status.Reason != ReasonManual {
		t.Errorf("Reason = %v, want %v", status.Reason, ReasonManual)
	}
	if status.TrippedAt.IsZero() {
		t.Error("TrippedAt should be set")
	}
	if len(persister.saved) != 1 {
		t.Errorf("persisted %d statuses, want 1", len(persister.saved))
	}

	halt.Reset(ctx)

	if halt.Active() {
		t.Error("halt should be inactive after reset")
	}
	if len(persister.saved) != 2 {
		t.Errorf("persisted %d statuses, want 2", len(persister.saved))
	}
}

func TestHaltState_TripIsIdempotent(t *testing.T) {
	halt := NewHaltState(nil)
	ctx := context.Background()

	halt.Trip(ctx, ReasonCascadingFailure)
	first := halt.Status()

	halt.Trip(ctx, ReasonManual)
	second := halt.Status()

	if second.Reason != ReasonCascadingFailure {
		t.Errorf("second trip changed reason to %v", second.Reason)
	}
	if !second.TrippedAt.Equal(first.TrippedAt) {
		t.Error("second trip changed the timestamp")
	}
}

func TestHaltState_Describe(t *testing.T) {
	halt := NewHaltState(nil)
	if halt.Describe() != "autonomy active" {
		t.Errorf("Describe() = %q", halt.Describe())
	}

	halt.Trip(context.Background(), ReasonCascadingFailure)
	desc := halt.Describe()
	if !strings.HasPrefix(desc, "autonomy suspended: cascading_failure since ") {
		t.Errorf("Describe() = %q", desc)
	}
}

func TestHaltState_Restore(t *testing.T) {
	halt := NewHaltState(nil)
	tripped := time.Now().Add(-time.Hour)
	halt.Restore(types.HaltStatus{Active: true, Reason: ReasonCascadingFailure, TrippedAt: tripped})

	if !halt.Active() {
		t.Fatal("restored halt should be active")
	}
	if !halt.Status().TrippedAt.Equal(tripped) {
		t.Error("restored timestamp does not match")
	}
}

func TestHaltState_PersistFailureDoesNotBlockTrip(t *testing.T) {
	persister := &mockPersister{failErr: errors.New("disk full")}
	halt := NewHaltState(persister)

	halt.Trip(context.Background(), ReasonManual)

	if !halt.Active() {
		t.Error("halt must trip even when persistence fails")
	}
}
