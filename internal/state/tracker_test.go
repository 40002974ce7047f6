package state

import (
	"testing"
	"time"

	"pulsemon/internal/models"
)

var now = time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)

func observe(t *testing.T, tr *Tracker[models.Status], status models.Status) Action {
	t.Helper()
	action, _ := tr.Observe("svc", status, models.Status.Healthy, now)
	return action
}

func TestDebounceSuppressesTransientFluctuations(t *testing.T) {
	tr := NewTracker[models.Status](4)
	tr.Seed("svc", models.StatusHealthy, now)

	// Cycles 1-3 of error: no alert yet.
	for i := 1; i <= 3; i++ {
		if action := observe(t, tr, models.StatusError); action != ActionNone {
			t.Fatalf("cycle %d: action = %v, want none", i, action)
		}
	}
	// Cycle 4 confirms the transition.
	if action := observe(t, tr, models.StatusError); action != ActionDown {
		t.Fatalf("cycle 4: action = %v, want down", action)
	}
	// Cycles 5+ repeat the stable status: deduplicated.
	for i := 5; i <= 8; i++ {
		if action := observe(t, tr, models.StatusError); action != ActionNone {
			t.Fatalf("cycle %d: action = %v, want none (dedup)", i, action)
		}
	}
}

func TestCounterResetsWhenObservationChanges(t *testing.T) {
	tr := NewTracker[models.Status](4)
	tr.Seed("svc", models.StatusHealthy, now)

	observe(t, tr, models.StatusError)
	observe(t, tr, models.StatusError)
	observe(t, tr, models.StatusTimeout) // flips the transient status
	st, ok := tr.State("svc")
	if !ok {
		t.Fatal("missing item state")
	}
	if st.Counter != 1 {
		t.Fatalf("counter = %d, want 1 after status flip", st.Counter)
	}
	if st.Stable != models.StatusHealthy {
		t.Fatalf("stable = %s, want healthy (no promotion yet)", st.Stable)
	}

	// Three more timeouts reach the threshold.
	observe(t, tr, models.StatusTimeout)
	observe(t, tr, models.StatusTimeout)
	if action := observe(t, tr, models.StatusTimeout); action != ActionDown {
		t.Fatalf("action = %v, want down at threshold", action)
	}
}

func TestImmediateRecoveryBypassesThreshold(t *testing.T) {
	tr := NewTracker[models.Status](4)
	tr.Seed("svc", models.StatusHealthy, now)
	for i := 0; i < 4; i++ {
		observe(t, tr, models.StatusDown)
	}

	// A single healthy observation recovers immediately.
	action, old := tr.Observe("svc", models.StatusHealthy, models.Status.Healthy, now)
	if action != ActionRecovered {
		t.Fatalf("action = %v, want recovered", action)
	}
	if old != models.StatusDown {
		t.Fatalf("old stable = %s, want down", old)
	}
	// And only once.
	if action := observe(t, tr, models.StatusHealthy); action != ActionNone {
		t.Fatalf("repeat healthy: action = %v, want none", action)
	}
}

func TestFirstObservationOnlyInitializes(t *testing.T) {
	tr := NewTracker[models.Status](4)
	if action := observe(t, tr, models.StatusDown); action != ActionNone {
		t.Fatalf("first observation: action = %v, want none", action)
	}
	st, _ := tr.State("svc")
	if st.Stable != models.StatusDown || st.Counter != 1 {
		t.Fatalf("state after init = %+v, want stable=down counter=1", st)
	}
}

func TestSeedSuppressesRestartRealert(t *testing.T) {
	tr := NewTracker[int](4)
	tr.Seed("worker", 500, now)

	// Same bad status after a restart: no new alert.
	healthy := func(c int) bool { return c == 200 }
	for i := 0; i < 6; i++ {
		if action, _ := tr.Observe("worker", 500, healthy, now); action != ActionNone {
			t.Fatalf("observation %d: action = %v, want none", i, action)
		}
	}
	// Recovery still fires immediately.
	if action, _ := tr.Observe("worker", 200, healthy, now); action != ActionRecovered {
		t.Fatalf("action = %v, want recovered", action)
	}
}
