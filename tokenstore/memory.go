// Package tokenstore provides auth.TokenStore implementations.
//
// Every store keeps exactly one bearer token under a namespace key
// (auth.DefaultTokenKey unless overridden). Load reports an absent token
// with ok=false and a nil error; Clear is idempotent.
package tokenstore

import (
	"context"
	"sync"

	"github.com/landslide-report/go-auth"
)

// Memory is a process local store, mainly for tests and ephemeral sessions.
type Memory struct {
	mu    sync.RWMutex
	token string
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{}
}

// NewMemoryWithToken returns a store holding token.
func NewMemoryWithToken(token string) *Memory {
	return &Memory{token: token}
}

// Save implements auth.TokenStore.
func (m *Memory) Save(ctx context.Context, token string) error {
	if err := checkToken(token); err != nil {
		return err
	}
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
	return nil
}

// Load implements auth.TokenStore.
func (m *Memory) Load(ctx context.Context) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token, m.token != "", nil
}

// Clear implements auth.TokenStore.
func (m *Memory) Clear(ctx context.Context) error {
	m.mu.Lock()
	m.token = ""
	m.mu.Unlock()
	return nil
}

func checkToken(token string) error {
	if token == "" {
		return auth.NewError(auth.ErrValidation, nil, map[string]any{"field": "token"})
	}
	return nil
}

func storageError(err error, operation string, metadata map[string]any) error {
	meta := map[string]any{"operation": operation}
	for k, v := range metadata {
		meta[k] = v
	}
	return auth.NewError(auth.ErrStorage, err, meta)
}

var _ auth.TokenStore = (*Memory)(nil)
