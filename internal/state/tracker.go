package state

import "time"

// Action is the outcome of one observation pass for an item.
type Action int

const (
	ActionNone Action = iota
	ActionRecovered
	ActionDown
)

// ItemState holds the debounce state for one monitored identity.
type ItemState[T comparable] struct {
	Stable         T
	Transient      T
	Counter        int
	LastTransition time.Time
}

// Tracker is the generic debounce state machine driving both the remote
// controller target and every individual service. An observed status must
// repeat for threshold consecutive cycles before it is promoted to stable,
// except recovery-class values, which promote immediately.
//
// The tracker is not safe for concurrent use; all mutation happens from the
// single post-join orchestrator context per tick.
type Tracker[T comparable] struct {
	threshold int
	items     map[string]*ItemState[T]
}

func NewTracker[T comparable](threshold int) *Tracker[T] {
	if threshold < 1 {
		threshold = 1
	}
	return &Tracker[T]{threshold: threshold, items: map[string]*ItemState[T]{}}
}

// Seed installs a stable status for an item without emitting any action,
// so a restart does not spuriously re-alert.
func (t *Tracker[T]) Seed(name string, status T, now time.Time) {
	t.items[name] = &ItemState[T]{Stable: status, Transient: status, Counter: 1, LastTransition: now}
}

// Observe folds one cycle's status into the item's state. It returns the
// action to take and the previous stable status. The first observation of an
// unseen item only initializes state.
func (t *Tracker[T]) Observe(name string, current T, recovery func(T) bool, now time.Time) (Action, T) {
	it, ok := t.items[name]
	if !ok {
		t.Seed(name, current, now)
		var zero T
		return ActionNone, zero
	}

	if current == it.Transient {
		it.Counter++
	} else {
		it.Transient = current
		it.Counter = 1
	}

	if it.Transient == it.Stable {
		return ActionNone, it.Stable
	}

	old := it.Stable
	switch {
	case recovery(it.Transient):
		it.Stable = it.Transient
		it.LastTransition = now
		return ActionRecovered, old
	case it.Counter >= t.threshold:
		it.Stable = it.Transient
		it.LastTransition = now
		return ActionDown, old
	}
	return ActionNone, old
}

// State exposes an item's current debounce state, used for cycle logging.
func (t *Tracker[T]) State(name string) (ItemState[T], bool) {
	it, ok := t.items[name]
	if !ok {
		return ItemState[T]{}, false
	}
	return *it, true
}
