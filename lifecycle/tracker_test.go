package lifecycle

import (
	"sort"
	"testing"
	"time"

	"github.com/wardenhq/warden/types"
)

func TestTracker_BeginRejectsDuplicate(t *testing.T) {
	tracker := NewTracker()

	record, err := tracker.Begin(testAction("act-1"))
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	_ = Transition(record, types.StateExecuting, time.Now())

	// Idempotent re-submission must fail while the first record is active
	if _, err := tracker.Begin(testAction("act-1")); err == nil {
		t.Fatal("Begin() should reject an id that is still executing")
	}
}

func TestTracker_FinishReleasesID(t *testing.T) {
	tracker := NewTracker()

	record, _ := tracker.Begin(testAction("act-1"))
	_ = Transition(record, types.StateExecuting, time.Now())
	_ = Transition(record, types.StateSucceeded, time.Now())

	if err := tracker.Finish(record); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}

	// The id is free again for a new action instance
	if _, err := tracker.Begin(testAction("act-1")); err != nil {
		t.Errorf("Begin() after finish error = %v", err)
	}
}

func TestTracker_FinishRejectsNonTerminal(t *testing.T) {
	tracker := NewTracker()
	record, _ := tracker.Begin(testAction("act-1"))

	if err := tracker.Finish(record); err == nil {
		t.Error("Finish() should reject a pending record")
	}
}

func TestTracker_InFlightTargets(t *testing.T) {
	tracker := NewTracker()

	a := testAction("act-1")
	a.Targets = []string{"svc1", "svc2"}
	b := testAction("act-2")
	b.Targets = []string{"svc3"}

	_, _ = tracker.Begin(a)
	_, _ = tracker.Begin(b)

	targets := tracker.InFlightTargets()
	sort.Strings(targets)
	want := []string{"svc1", "svc2", "svc3"}
	if len(targets) != len(want) {
		t.Fatalf("InFlightTargets() = %v, want %v", targets, want)
	}
	for i := range want {
		if targets[i] != want[i] {
			t.Errorf("InFlightTargets()[%d] = %v, want %v", i, targets[i], want[i])
		}
	}

	if tracker.ActiveCount() != 2 {
		t.Errorf("ActiveCount() = %d, want 2", tracker.ActiveCount())
	}
}

func TestTracker_ReservationsCountAsInFlight(t *testing.T) {
	tracker := NewTracker()

	ok := tracker.ReserveTargets("act-1", []string{"svc1", "svc2"}, func(inFlight []string) bool {
		return len(inFlight) == 0
	})
	if !ok {
		t.Fatal("ReserveTargets() rejected against an empty tracker")
	}

	// Reserved targets are visible to accounting before Begin
	if got := tracker.InFlightTargets(); len(got) != 2 {
		t.Errorf("InFlightTargets() = %v, want the reserved targets", got)
	}

	// A second reservation sees the first one under the same lock
	admitSaw := 0
	tracker.ReserveTargets("act-2", []string{"svc3"}, func(inFlight []string) bool {
		admitSaw = len(inFlight)
		return true
	})
	if admitSaw != 2 {
		t.Errorf("admit saw %d in-flight targets, want 2", admitSaw)
	}
}

func TestTracker_BeginConsumesReservation(t *testing.T) {
	tracker := NewTracker()

	a := testAction("act-1")
	a.Targets = []string{"svc1", "svc2"}
	tracker.ReserveTargets(a.ID, a.Targets, func([]string) bool { return true })

	if _, err := tracker.Begin(a); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}

	// No double count: the targets moved from reserved to active
	if got := tracker.InFlightTargets(); len(got) != 2 {
		t.Errorf("InFlightTargets() = %v, want 2 targets after Begin", got)
	}
}

func TestTracker_ReleaseTargets(t *testing.T) {
	tracker := NewTracker()

	tracker.ReserveTargets("act-1", []string{"svc1"}, func([]string) bool { return true })
	tracker.ReleaseTargets("act-1")

	if got := tracker.InFlightTargets(); len(got) != 0 {
		t.Errorf("InFlightTargets() = %v, want empty after release", got)
	}
}
