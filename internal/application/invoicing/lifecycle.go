package invoicing

import "fmt"

// LifecycleState is the position of one lifecycle operation
type LifecycleState string

const (
	StateDraft           LifecycleState = "draft"
	StateValidating      LifecycleState = "validating"
	StatePersisting      LifecycleState = "persisting"
	StateSyncingStock    LifecycleState = "syncing_stock"
	StateSyncingWarranty LifecycleState = "syncing_warranty"
	StateSyncingLedger   LifecycleState = "syncing_ledger"
	StateComplete        LifecycleState = "complete"
	StateFailed          LifecycleState = "failed"
)

var stateOrder = map[LifecycleState]int{
	StateDraft:           0,
	StateValidating:      1,
	StatePersisting:      2,
	StateSyncingStock:    3,
	StateSyncingWarranty: 4,
	StateSyncingLedger:   5,
	StateComplete:        6,
}

func (s LifecycleState) String() string {
	return string(s)
}

// IsTerminal reports whether no further transition is possible
func (s LifecycleState) IsTerminal() bool {
	return s == StateComplete || s == StateFailed
}

// CanTransitionTo allows moving forward (or staying) along
// Draft -> Validating -> Persisting -> SyncingStock -> SyncingWarranty ->
// SyncingLedger -> Complete, and failing from any non-terminal state.
// Operations that skip a stage simply jump past it.
func (s LifecycleState) CanTransitionTo(target LifecycleState) bool {
	if s.IsTerminal() {
		return false
	}
	if target == StateFailed {
		return true
	}
	from, ok := stateOrder[s]
	if !ok {
		return false
	}
	to, ok := stateOrder[target]
	if !ok {
		return false
	}
	return to >= from
}

// Lifecycle tracks the state of a single operation run
type Lifecycle struct {
	state   LifecycleState
	history []LifecycleState
}

// NewLifecycle starts a run in the draft state
func NewLifecycle() *Lifecycle {
	return &Lifecycle{state: StateDraft, history: []LifecycleState{StateDraft}}
}

// State returns the current state
func (l *Lifecycle) State() LifecycleState {
	return l.state
}

// History returns every state entered, in order
func (l *Lifecycle) History() []LifecycleState {
	return append([]LifecycleState(nil), l.history...)
}

// Enter moves to target
func (l *Lifecycle) Enter(target LifecycleState) error {
	if !l.state.CanTransitionTo(target) {
		return fmt.Errorf("invalid lifecycle transition from %s to %s", l.state, target)
	}
	if target != l.state {
		l.history = append(l.history, target)
	}
	l.state = target
	return nil
}

// Fail moves to the failed state unless the run already ended
func (l *Lifecycle) Fail() {
	if !l.state.IsTerminal() {
		l.state = StateFailed
		l.history = append(l.history, StateFailed)
	}
}
