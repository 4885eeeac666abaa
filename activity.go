package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventStatusChanged     ActivityEventType = "session.status.changed"
	ActivityEventRehydrateSuccess  ActivityEventType = "session.rehydrate.success"
	ActivityEventRehydrateFailure  ActivityEventType = "session.rehydrate.failure"
	ActivityEventSignUpSuccess     ActivityEventType = "session.signup.success"
	ActivityEventSignUpFailure     ActivityEventType = "session.signup.failure"
	ActivityEventSignInSuccess     ActivityEventType = "session.signin.success"
	ActivityEventSignInFailure     ActivityEventType = "session.signin.failure"
	ActivityEventSignOut           ActivityEventType = "session.signout"
	ActivityEventStaleResultIgnore ActivityEventType = "session.result.discarded"
)

// ActivityEvent describes a session lifecycle action.
// It never carries tokens or passwords.
type ActivityEvent struct {
	ID         string
	EventType  ActivityEventType
	UserID     string
	Email      string
	FromStatus Status
	ToStatus   Status
	Epoch      uint64
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

func newActivityEvent(eventType ActivityEventType, occurredAt time.Time) ActivityEvent {
	return ActivityEvent{
		ID:         uuid.NewString(),
		EventType:  eventType,
		OccurredAt: occurredAt,
		Metadata:   map[string]any{},
	}
}
