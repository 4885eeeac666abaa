package auth

import (
	"context"
)

var publisherCtxKey = &contextKey{"publisher"}
var sessionCtxKey = &contextKey{"session"}

type contextKey struct {
	name string
}

// WithContext sets the Publisher in the given context
func WithContext(r context.Context, publisher *Publisher) context.Context {
	return context.WithValue(r, publisherCtxKey, publisher)
}

// PublisherFromContext finds the publisher from the context.
func PublisherFromContext(ctx context.Context) (*Publisher, bool) {
	raw, ok := ctx.Value(publisherCtxKey).(*Publisher)
	return raw, ok && raw != nil
}

// WithSessionContext stores a session snapshot in the given context
func WithSessionContext(r context.Context, session Session) context.Context {
	return context.WithValue(r, sessionCtxKey, session.Clone())
}

// SessionFromContext returns the snapshot stored with WithSessionContext,
// falling back to the current value of a scoped publisher.
func SessionFromContext(ctx context.Context) (Session, bool) {
	if raw, ok := ctx.Value(sessionCtxKey).(Session); ok {
		return raw.Clone(), true
	}
	if p, ok := PublisherFromContext(ctx); ok {
		return p.Snapshot().Session, true
	}
	return Session{}, false
}

// IdentityFromContext is a convenience returning the signed in identity, if any.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	session, ok := SessionFromContext(ctx)
	if !ok || !session.IsAuthenticated() {
		return nil, false
	}
	return session.Identity, true
}
