package auth

import (
	"context"
	"time"
)

// transitionTable lists the allowed status changes. Initializing is the only
// initial state and nothing transitions back into it.
var transitionTable = map[Status]map[Status]struct{}{
	StatusInitializing: {
		StatusAuthenticated:   {},
		StatusUnauthenticated: {},
	},
	StatusUnauthenticated: {
		StatusAuthenticated:   {},
		StatusUnauthenticated: {},
	},
	StatusAuthenticated: {
		StatusAuthenticated:   {},
		StatusUnauthenticated: {},
	},
}

// CanTransition reports whether from -> to is a legal session transition.
func CanTransition(from, to Status) bool {
	if allowed, ok := transitionTable[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}

// TransitionContext is passed to transition hooks
type TransitionContext struct {
	From     Status
	To       Status
	Reason   string
	Identity *Identity
	Epoch    uint64
}

// TransitionHook observes a committed transition. Hooks run after the new
// snapshot is published and cannot veto it.
type TransitionHook func(ctx context.Context, tc TransitionContext)

// stateMachine owns the mutable session and applies checked transitions.
// Callers hold the manager lock.
type stateMachine struct {
	session Session
	now     func() time.Time
}

func newStateMachine(now func() time.Time) *stateMachine {
	return &stateMachine{
		session: Session{
			Status:    StatusInitializing,
			UpdatedAt: now(),
		},
		now: now,
	}
}

func (sm *stateMachine) current() Session {
	return sm.session.Clone()
}

// authenticate moves to Authenticated with the given token and identity.
func (sm *stateMachine) authenticate(token string, identity Identity) (TransitionContext, error) {
	tc, err := sm.check(StatusAuthenticated, "authenticated")
	if err != nil {
		return tc, err
	}

	id := identity
	sm.session.Status = StatusAuthenticated
	sm.session.Token = token
	sm.session.Identity = &id
	sm.session.UpdatedAt = sm.now()
	tc.Identity = id.Clone()
	return tc, nil
}

// reset moves to Unauthenticated dropping token and identity.
func (sm *stateMachine) reset(reason string) (TransitionContext, error) {
	tc, err := sm.check(StatusUnauthenticated, reason)
	if err != nil {
		return tc, err
	}

	sm.session.Status = StatusUnauthenticated
	sm.session.Token = ""
	sm.session.Identity = nil
	sm.session.UpdatedAt = sm.now()
	return tc, nil
}

// pendingToken records the token under rehydration. Only valid while initializing.
func (sm *stateMachine) pendingToken(token string) error {
	if sm.session.Status != StatusInitializing {
		return NewError(ErrInvalidTransition, nil, map[string]any{
			"from":   sm.session.Status,
			"reason": "pending token outside initialization",
		})
	}
	sm.session.Token = token
	sm.session.UpdatedAt = sm.now()
	return nil
}

func (sm *stateMachine) check(target Status, reason string) (TransitionContext, error) {
	from := sm.session.Status
	tc := TransitionContext{
		From:   from,
		To:     target,
		Reason: reason,
		Epoch:  sm.session.Epoch,
	}
	if !CanTransition(from, target) {
		return tc, NewError(ErrInvalidTransition, nil, map[string]any{
			"from":   from,
			"to":     target,
			"reason": reason,
		})
	}
	return tc, nil
}

func (sm *stateMachine) setMessage(msg string) {
	sm.session.Message = msg
	sm.session.Error = ""
}

func (sm *stateMachine) setError(msg string) {
	sm.session.Error = msg
	sm.session.Message = ""
}

func (sm *stateMachine) clearMessages() {
	sm.session.Message = ""
	sm.session.Error = ""
}
