package guard

// sessionStateMachine centralizes the session status transition graph.
type sessionStateMachine struct {
	transitions map[SessionStatus]map[SessionStatus]struct{}
}

func newSessionStateMachine() *sessionStateMachine {
	return &sessionStateMachine{
		transitions: map[SessionStatus]map[SessionStatus]struct{}{
			SessionUnknown: {
				SessionLoading:       {},
				SessionAuthenticated: {},
				SessionAnonymous:     {},
			},
			SessionLoading: {
				SessionAuthenticated: {},
				SessionAnonymous:     {},
			},
			SessionAuthenticated: {
				SessionAuthenticated: {},
				SessionAnonymous:     {},
			},
			SessionAnonymous: {
				SessionAuthenticated: {},
				SessionAnonymous:     {},
			},
		},
	}
}

// CanTransition reports whether from -> to is part of the graph.
func (sm *sessionStateMachine) CanTransition(from, to SessionStatus) bool {
	if allowed, ok := sm.transitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}

// validate returns ErrInvalidTransition decorated with the attempted move.
func (sm *sessionStateMachine) validate(from, to SessionStatus, user *User) error {
	if !to.IsValid() {
		return withMetadata(ErrInvalidTransition, map[string]any{
			"from":   from,
			"to":     to,
			"reason": "unknown target status",
		})
	}

	if !sm.CanTransition(from, to) {
		return withMetadata(ErrInvalidTransition, map[string]any{
			"from": from,
			"to":   to,
		})
	}

	if to == SessionAuthenticated && (user == nil || user.ID == "") {
		return withMetadata(ErrInvalidUser, map[string]any{
			"from": from,
			"to":   to,
		})
	}

	return nil
}

// isNoop reports transitions that commit nothing and must not bump the version.
func (sm *sessionStateMachine) isNoop(from, to SessionStatus) bool {
	return from == to && to != SessionAuthenticated
}
