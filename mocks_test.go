package auth_test

import (
	"context"
	"errors"
	"sync"

	"github.com/landslide-report/go-auth"
	"github.com/stretchr/testify/mock"
)

// MockBackend implements auth.Backend
type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) Register(ctx context.Context, creds auth.Credentials) error {
	args := m.Called(ctx, creds)
	return args.Error(0)
}

func (m *MockBackend) IssueToken(ctx context.Context, creds auth.Credentials) (*auth.TokenGrant, error) {
	args := m.Called(ctx, creds)
	grant, _ := args.Get(0).(*auth.TokenGrant)
	return grant, args.Error(1)
}

func (m *MockBackend) CurrentUser(ctx context.Context, token string) (*auth.Identity, error) {
	args := m.Called(ctx, token)
	identity, _ := args.Get(0).(*auth.Identity)
	return identity, args.Error(1)
}

// failingStore wraps a store and fails the selected operations.
type failingStore struct {
	auth.TokenStore
	failSave  bool
	failLoad  bool
	failClear bool
}

var errDisk = errors.New("disk full")

func (s *failingStore) Save(ctx context.Context, token string) error {
	if s.failSave {
		return errDisk
	}
	return s.TokenStore.Save(ctx, token)
}

func (s *failingStore) Load(ctx context.Context) (string, bool, error) {
	if s.failLoad {
		return "", false, errDisk
	}
	return s.TokenStore.Load(ctx)
}

func (s *failingStore) Clear(ctx context.Context) error {
	if s.failClear {
		return errDisk
	}
	return s.TokenStore.Clear(ctx)
}

// recordingSink collects activity events.
type recordingSink struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (s *recordingSink) Record(_ context.Context, event auth.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) types() []auth.ActivityEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]auth.ActivityEventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.EventType)
	}
	return out
}

func rejected(detail string) error {
	meta := map[string]any{}
	if detail != "" {
		meta["detail"] = detail
	}
	return auth.NewError(auth.ErrAuthRejected, nil, meta)
}

func networkDown() error {
	return auth.NewError(auth.ErrNetwork, errors.New("connection refused"), nil)
}
