package domain

// State is the registration state of an Identity.
//
// States only move forward along NEW → AWAITING_ROLE → AWAITING_BRANCH →
// REGISTERED. There is no reset path; a repeated start command while
// REGISTERED is answered with a notice.
type State string

const (
	StateNew            State = "NEW"
	StateAwaitingRole   State = "AWAITING_ROLE"
	StateAwaitingBranch State = "AWAITING_BRANCH"
	StateRegistered     State = "REGISTERED"
)

// transitions is the complete table of allowed state moves.
var transitions = map[State]State{
	StateNew:            StateAwaitingRole,
	StateAwaitingRole:   StateAwaitingBranch,
	StateAwaitingBranch: StateRegistered,
}

// States returns every state in registration order.
func States() []State {
	return []State{StateNew, StateAwaitingRole, StateAwaitingBranch, StateRegistered}
}

// Valid reports whether s is one of the known states.
func (s State) Valid() bool {
	switch s {
	case StateNew, StateAwaitingRole, StateAwaitingBranch, StateRegistered:
		return true
	}
	return false
}

// Next returns the single state reachable from s. ok is false for
// REGISTERED and unknown states.
func (s State) Next() (next State, ok bool) {
	next, ok = transitions[s]
	return next, ok
}

// CanTransitionTo reports whether moving from s to to is allowed.
func (s State) CanTransitionTo(to State) bool {
	next, ok := transitions[s]
	return ok && next == to
}

// Ordinal is the position of s in the registration order, or -1.
func (s State) Ordinal() int {
	for i, st := range States() {
		if st == s {
			return i
		}
	}
	return -1
}
