package governor

import (
	"sync"
	"time"
)

// admissionWindow is the rolling rate-limit budget. The only operations are
// a peek and an atomic test-and-increment, both under one lock, so two
// concurrent evaluations can never both take the last unit.
type admissionWindow struct {
	mu         sync.Mutex
	admissions []time.Time
	limit      int
	window     time.Duration
	now        func() time.Time
}

func newAdmissionWindow(limit int, window time.Duration) *admissionWindow {
	return &admissionWindow{
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Full reports whether the rolling window is at its limit
func (w *admissionWindow) Full() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pruneLocked(w.now())
	return len(w.admissions) >= w.limit
}

// TryAdmit reserves one unit of budget. Returns false when the window is
// already full.
func (w *admissionWindow) TryAdmit() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.pruneLocked(now)
	if len(w.admissions) >= w.limit {
		return false
	}
	w.admissions = append(w.admissions, now)
	return true
}

// Admitted returns the number of admissions inside the current window
func (w *admissionWindow) Admitted() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pruneLocked(w.now())
	return len(w.admissions)
}

func (w *admissionWindow) pruneLocked(now time.Time) {
	cutoff := now.Add(-w.window)
	kept := w.admissions[:0]
	for _, at := range w.admissions {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	w.admissions = kept
}
