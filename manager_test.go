package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/landslide-report/go-auth"
	"github.com/landslide-report/go-auth/api"
	"github.com/landslide-report/go-auth/retry"
	"github.com/landslide-report/go-auth/tokenstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testIdentity = &auth.Identity{ID: "1", Email: "a@b.c", Username: "alice"}

func signInCreds() auth.Credentials {
	return auth.Credentials{Email: "a@b.c", Password: "secret"}
}

func signUpCreds() auth.Credentials {
	return auth.Credentials{Email: "a@b.c", Username: "alice", Password: "secret"}
}

// readyManager returns a manager that finished rehydration with an empty store.
func readyManager(t *testing.T, store auth.TokenStore, backend auth.Backend, opts ...auth.ManagerOption) *auth.Manager {
	t.Helper()
	m := auth.NewManager(store, backend, opts...)
	session, err := m.Rehydrate(context.Background())
	require.NoError(t, err)
	require.Equal(t, auth.StatusUnauthenticated, session.Status)
	return m
}

func retryPolicy(attempts int) retry.Policy {
	return retry.Policy{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		Sleep:        func(context.Context, time.Duration) error { return nil },
	}
}

func storedToken(t *testing.T, store auth.TokenStore) (string, bool) {
	t.Helper()
	token, ok, err := store.Load(context.Background())
	require.NoError(t, err)
	return token, ok
}

func TestRehydrate_NoStoredToken(t *testing.T) {
	backend := new(MockBackend)
	m := auth.NewManager(tokenstore.NewMemory(), backend)

	assert.Equal(t, auth.StatusInitializing, m.Session().Status)

	session, err := m.Rehydrate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, auth.StatusUnauthenticated, session.Status)
	assert.False(t, session.Loading)
	assert.Empty(t, session.Message)
	assert.Empty(t, session.Error)
	backend.AssertNotCalled(t, "CurrentUser", mock.Anything, mock.Anything)
}

func TestRehydrate_ValidTokenRestoresIdentity(t *testing.T) {
	backend := new(MockBackend)
	backend.On("CurrentUser", mock.Anything, "tok").Return(testIdentity, nil).Once()

	store := tokenstore.NewMemoryWithToken("tok")
	m := auth.NewManager(store, backend)

	session, err := m.Rehydrate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, auth.StatusAuthenticated, session.Status)
	assert.Equal(t, "tok", session.Token)
	assert.Equal(t, testIdentity, session.Identity)
	assert.Equal(t, "Welcome back, a@b.c!", session.Message)

	again, err := m.Rehydrate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, session.Identity, again.Identity)
	backend.AssertExpectations(t)
}

func TestRehydrate_RejectedTokenClearsStore(t *testing.T) {
	backend := new(MockBackend)
	backend.On("CurrentUser", mock.Anything, "stale").Return(nil, rejected("Could not validate credentials")).Once()

	store := tokenstore.NewMemoryWithToken("stale")
	m := auth.NewManager(store, backend)

	session, err := m.Rehydrate(context.Background())
	require.Error(t, err)
	assert.True(t, auth.IsAuthRejected(err))
	assert.Equal(t, auth.StatusUnauthenticated, session.Status)
	assert.Empty(t, session.Token)
	assert.Nil(t, session.Identity)
	assert.Equal(t, auth.DefaultMessages().SessionExpired, session.Error)

	_, ok := storedToken(t, store)
	assert.False(t, ok)
}

func TestRehydrate_MalformedIdentityClearsStore(t *testing.T) {
	backend := new(MockBackend)
	backend.On("CurrentUser", mock.Anything, "tok").Return(&auth.Identity{Email: "a@b.c"}, nil).Once()

	store := tokenstore.NewMemoryWithToken("tok")
	m := auth.NewManager(store, backend)

	session, err := m.Rehydrate(context.Background())
	require.Error(t, err)
	assert.True(t, auth.IsMalformedResponse(err))
	assert.Equal(t, auth.StatusUnauthenticated, session.Status)

	_, ok := storedToken(t, store)
	assert.False(t, ok)
}

func TestRehydrate_RetriesTransientFailures(t *testing.T) {
	backend := new(MockBackend)
	backend.On("CurrentUser", mock.Anything, "tok").Return(nil, networkDown()).Twice()
	backend.On("CurrentUser", mock.Anything, "tok").Return(testIdentity, nil).Once()

	policy := auth.WithRehydratePolicy(retryPolicy(3))
	m := auth.NewManager(tokenstore.NewMemoryWithToken("tok"), backend, policy)

	session, err := m.Rehydrate(context.Background())
	require.NoError(t, err)
	assert.True(t, session.IsAuthenticated())
	backend.AssertNumberOfCalls(t, "CurrentUser", 3)
}

func TestRehydrate_RejectionIsNotRetried(t *testing.T) {
	backend := new(MockBackend)
	backend.On("CurrentUser", mock.Anything, "tok").Return(nil, rejected("")).Once()

	m := auth.NewManager(tokenstore.NewMemoryWithToken("tok"), backend, auth.WithRehydratePolicy(retryPolicy(5)))

	_, err := m.Rehydrate(context.Background())
	require.Error(t, err)
	assert.True(t, auth.IsAuthRejected(err))
	backend.AssertNumberOfCalls(t, "CurrentUser", 1)
}

func TestRehydrate_ExpiredJWTSkipsBackend(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "1",
		"exp": now.Add(-time.Hour).Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	backend := new(MockBackend)
	store := tokenstore.NewMemoryWithToken(token)
	m := auth.NewManager(store, backend, auth.WithClock(func() time.Time { return now }))

	session, err := m.Rehydrate(context.Background())
	require.Error(t, err)
	assert.True(t, auth.IsTokenExpired(err))
	assert.Equal(t, auth.StatusUnauthenticated, session.Status)
	backend.AssertNotCalled(t, "CurrentUser", mock.Anything, mock.Anything)

	_, ok := storedToken(t, store)
	assert.False(t, ok)
}

func TestRehydrate_ExpiryCheckCanBeDisabled(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(-time.Hour).Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	backend := new(MockBackend)
	backend.On("CurrentUser", mock.Anything, token).Return(testIdentity, nil).Once()

	m := auth.NewManager(tokenstore.NewMemoryWithToken(token), backend, auth.WithExpiryCheck(false))

	session, err := m.Rehydrate(context.Background())
	require.NoError(t, err)
	assert.True(t, session.IsAuthenticated())
}

func TestRehydrate_LoadFailureKeepsStore(t *testing.T) {
	inner := tokenstore.NewMemoryWithToken("tok")
	store := &failingStore{TokenStore: inner, failLoad: true}
	m := auth.NewManager(store, new(MockBackend))

	session, err := m.Rehydrate(context.Background())
	require.Error(t, err)
	assert.True(t, auth.IsStorageError(err))
	assert.Equal(t, auth.StatusUnauthenticated, session.Status)
	assert.Equal(t, auth.DefaultMessages().SessionLoadFailed, session.Error)

	token, ok := storedToken(t, inner)
	assert.True(t, ok)
	assert.Equal(t, "tok", token)
}

func TestRehydrate_CancelledKeepsStore(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	backend := new(MockBackend)
	backend.On("CurrentUser", mock.Anything, "tok").
		Run(func(mock.Arguments) { cancel() }).
		Return(nil, networkDown()).Once()

	store := tokenstore.NewMemoryWithToken("tok")
	m := auth.NewManager(store, backend, auth.WithRehydratePolicy(retryPolicy(3)))

	session, err := m.Rehydrate(ctx)
	require.Error(t, err)
	assert.Equal(t, auth.StatusUnauthenticated, session.Status)

	_, ok := storedToken(t, store)
	assert.True(t, ok)
}

func TestSignIn_Success(t *testing.T) {
	backend := new(MockBackend)
	backend.On("IssueToken", mock.Anything, signInCreds()).
		Return(&auth.TokenGrant{AccessToken: "T", Identity: *testIdentity}, nil).Once()

	store := tokenstore.NewMemory()
	m := readyManager(t, store, backend)

	session, err := m.SignIn(context.Background(), auth.Credentials{Email: "  a@b.c ", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, auth.StatusAuthenticated, session.Status)
	assert.Equal(t, "T", session.Token)
	assert.Equal(t, "1", session.UserID())
	assert.Equal(t, auth.DefaultMessages().SignInSuccess, session.Message)
	assert.False(t, session.Loading)

	token, ok := storedToken(t, store)
	assert.True(t, ok)
	assert.Equal(t, "T", token)
	backend.AssertExpectations(t)
}

func TestSignIn_MissingFieldsSkipsBackend(t *testing.T) {
	backend := new(MockBackend)
	m := readyManager(t, tokenstore.NewMemory(), backend)

	session, err := m.SignIn(context.Background(), auth.Credentials{Email: "a@b.c"})
	require.Error(t, err)
	assert.True(t, auth.IsValidationError(err))
	assert.Equal(t, auth.DefaultMessages().MissingSignIn, session.Error)
	assert.Equal(t, auth.StatusUnauthenticated, session.Status)
	backend.AssertNotCalled(t, "IssueToken", mock.Anything, mock.Anything)
}

func TestSubmitSignIn_GuardRejectionClearsInput(t *testing.T) {
	backend := new(MockBackend)
	m := readyManager(t, tokenstore.NewMemory(), backend)
	m.Input().Set(auth.Credentials{Email: "a@b.c"})

	session, err := m.SubmitSignIn(context.Background())
	require.Error(t, err)
	assert.True(t, auth.IsValidationError(err))
	assert.Equal(t, auth.DefaultMessages().MissingSignIn, session.Error)
	assert.True(t, m.Input().IsEmpty())
}

func TestSubmitSignIn_NotReadyClearsInput(t *testing.T) {
	m := auth.NewManager(tokenstore.NewMemory(), new(MockBackend))
	m.Input().Set(signInCreds())

	_, err := m.SubmitSignIn(context.Background())
	require.Error(t, err)
	assert.True(t, auth.IsNotReady(err))
	assert.True(t, m.Input().IsEmpty())
}

func TestSignIn_RejectedShowsServerDetail(t *testing.T) {
	backend := new(MockBackend)
	backend.On("IssueToken", mock.Anything, mock.Anything).Return(nil, rejected("Incorrect email or password")).Once()

	m := readyManager(t, tokenstore.NewMemory(), backend)

	session, err := m.SignIn(context.Background(), signInCreds())
	require.Error(t, err)
	assert.True(t, auth.IsAuthRejected(err))
	assert.Equal(t, "Incorrect email or password", session.Error)
	assert.Equal(t, auth.StatusUnauthenticated, session.Status)
}

func TestSignIn_FailureMessages(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"rejected without detail", rejected(""), auth.DefaultMessages().InvalidCredentials},
		{"network", networkDown(), auth.DefaultMessages().NetworkError},
		{"malformed", auth.NewError(auth.ErrMalformedResponse, nil, nil), auth.DefaultMessages().MalformedResponse},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			backend := new(MockBackend)
			backend.On("IssueToken", mock.Anything, mock.Anything).Return(nil, tc.err).Once()
			m := readyManager(t, tokenstore.NewMemory(), backend)

			session, err := m.SignIn(context.Background(), signInCreds())
			require.Error(t, err)
			assert.Equal(t, tc.want, session.Error)
		})
	}
}

func TestSignIn_EmptyGrantIsMalformed(t *testing.T) {
	backend := new(MockBackend)
	backend.On("IssueToken", mock.Anything, mock.Anything).
		Return(&auth.TokenGrant{Identity: *testIdentity}, nil).Once()

	store := tokenstore.NewMemory()
	m := readyManager(t, store, backend)

	session, err := m.SignIn(context.Background(), signInCreds())
	require.Error(t, err)
	assert.True(t, auth.IsMalformedResponse(err))
	assert.Equal(t, auth.StatusUnauthenticated, session.Status)

	_, ok := storedToken(t, store)
	assert.False(t, ok)
}

func TestSignIn_StorageFailure(t *testing.T) {
	backend := new(MockBackend)
	backend.On("IssueToken", mock.Anything, mock.Anything).
		Return(&auth.TokenGrant{AccessToken: "T", Identity: *testIdentity}, nil).Once()

	store := &failingStore{TokenStore: tokenstore.NewMemory(), failSave: true}
	m := readyManager(t, store, backend)

	session, err := m.SignIn(context.Background(), signInCreds())
	require.Error(t, err)
	assert.True(t, auth.IsStorageError(err))
	assert.Equal(t, auth.StatusUnauthenticated, session.Status)
	assert.Empty(t, session.Token)
	assert.Equal(t, auth.DefaultMessages().StorageFailure, session.Error)
}

func TestSignIn_FailureDropsExistingSession(t *testing.T) {
	backend := new(MockBackend)
	backend.On("IssueToken", mock.Anything, signInCreds()).
		Return(&auth.TokenGrant{AccessToken: "T", Identity: *testIdentity}, nil).Once()
	backend.On("IssueToken", mock.Anything, mock.Anything).Return(nil, networkDown()).Once()

	store := tokenstore.NewMemory()
	m := readyManager(t, store, backend)

	_, err := m.SignIn(context.Background(), signInCreds())
	require.NoError(t, err)

	session, err := m.SignIn(context.Background(), auth.Credentials{Email: "x@y.z", Password: "other"})
	require.Error(t, err)
	assert.Equal(t, auth.StatusUnauthenticated, session.Status)
	assert.Empty(t, session.Token)
	assert.Nil(t, session.Identity)
	assert.Equal(t, auth.DefaultMessages().NetworkError, session.Error)

	_, ok := storedToken(t, store)
	assert.False(t, ok)
}

func TestSignUp_CreatedButLoginFailedDropsExistingSession(t *testing.T) {
	backend := new(MockBackend)
	backend.On("IssueToken", mock.Anything, signInCreds()).
		Return(&auth.TokenGrant{AccessToken: "T", Identity: *testIdentity}, nil).Once()
	backend.On("Register", mock.Anything, mock.Anything).Return(nil).Once()
	backend.On("IssueToken", mock.Anything, mock.Anything).Return(nil, networkDown()).Once()

	store := tokenstore.NewMemory()
	m := readyManager(t, store, backend)

	_, err := m.SignIn(context.Background(), signInCreds())
	require.NoError(t, err)

	session, err := m.SignUp(context.Background(), signUpCreds())
	require.Error(t, err)
	assert.True(t, auth.IsCreatedLoginFailed(err))
	assert.Equal(t, auth.StatusUnauthenticated, session.Status)
	assert.Empty(t, session.Token)

	_, ok := storedToken(t, store)
	assert.False(t, ok)
}

func TestNotReadyBeforeRehydrate(t *testing.T) {
	backend := new(MockBackend)
	m := auth.NewManager(tokenstore.NewMemory(), backend)

	session, err := m.SignIn(context.Background(), signInCreds())
	require.Error(t, err)
	assert.True(t, auth.IsNotReady(err))
	assert.Equal(t, auth.StatusInitializing, session.Status)
	assert.Equal(t, auth.DefaultMessages().NotReady, session.Error)

	_, err = m.SignUp(context.Background(), signUpCreds())
	require.Error(t, err)
	assert.True(t, auth.IsNotReady(err))

	backend.AssertNotCalled(t, "IssueToken", mock.Anything, mock.Anything)
	backend.AssertNotCalled(t, "Register", mock.Anything, mock.Anything)
}

func TestSignUp_RegistersThenSignsIn(t *testing.T) {
	backend := new(MockBackend)
	backend.On("Register", mock.Anything, signUpCreds()).Return(nil).Once()
	backend.On("IssueToken", mock.Anything, signUpCreds()).
		Return(&auth.TokenGrant{AccessToken: "T", Identity: *testIdentity}, nil).Once()

	store := tokenstore.NewMemory()
	m := readyManager(t, store, backend)
	m.Input().Set(signUpCreds())

	session, err := m.SubmitSignUp(context.Background())
	require.NoError(t, err)
	assert.True(t, session.IsAuthenticated())
	assert.Equal(t, "T", session.Token)
	assert.Equal(t, "1", session.UserID())
	assert.Equal(t, auth.DefaultMessages().SignUpSuccess, session.Message)
	assert.True(t, m.Input().IsEmpty())

	token, _ := storedToken(t, store)
	assert.Equal(t, "T", token)
	backend.AssertExpectations(t)
}

func TestSignUp_MissingUsername(t *testing.T) {
	backend := new(MockBackend)
	m := readyManager(t, tokenstore.NewMemory(), backend)
	m.Input().Set(signInCreds())

	session, err := m.SubmitSignUp(context.Background())
	require.Error(t, err)
	assert.True(t, auth.IsValidationError(err))
	assert.Equal(t, auth.DefaultMessages().MissingSignUp, session.Error)
	assert.True(t, m.Input().IsEmpty())
	backend.AssertNotCalled(t, "Register", mock.Anything, mock.Anything)
}

func TestSignUp_CreatedButLoginFailed(t *testing.T) {
	backend := new(MockBackend)
	backend.On("Register", mock.Anything, mock.Anything).Return(nil).Once()
	backend.On("IssueToken", mock.Anything, mock.Anything).Return(nil, networkDown()).Once()

	store := tokenstore.NewMemory()
	m := readyManager(t, store, backend)

	session, err := m.SignUp(context.Background(), signUpCreds())
	require.Error(t, err)
	assert.True(t, auth.IsCreatedLoginFailed(err))
	assert.Equal(t, auth.StatusUnauthenticated, session.Status)
	assert.Equal(t, auth.DefaultMessages().CreatedLoginFailed, session.Error)

	_, ok := storedToken(t, store)
	assert.False(t, ok)
}

func TestSignUp_FieldErrorsFromServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/register", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"detail":[{"loc":["body","email"],"msg":"invalid","type":"value_error"}]}`))
	}))
	defer srv.Close()

	client := api.New(api.Config{BaseURL: srv.URL})
	m := readyManager(t, tokenstore.NewMemory(), client)

	session, err := m.SignUp(context.Background(), auth.Credentials{Email: "bad", Username: "u", Password: "p"})
	require.Error(t, err)
	assert.True(t, auth.IsAuthRejected(err))
	assert.Equal(t, "body.email: invalid", session.Error)
	assert.Equal(t, auth.StatusUnauthenticated, session.Status)
}

func TestSignInThenRehydrateRestoresSameIdentity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/token":
			_, _ = w.Write([]byte(`{"access_token":"T","token_type":"bearer","user_id":1,"email":"a@b.c","username":"alice"}`))
		case "/users/me":
			if r.Header.Get("Authorization") != "Bearer T" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"detail":"Could not validate credentials"}`))
				return
			}
			_, _ = w.Write([]byte(`{"user_id":1,"email":"a@b.c","username":"alice"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := api.New(api.Config{BaseURL: srv.URL})
	store := tokenstore.NewMemory()

	first := readyManager(t, store, client)
	signedIn, err := first.SignIn(context.Background(), signInCreds())
	require.NoError(t, err)
	require.True(t, signedIn.IsAuthenticated())

	second := auth.NewManager(store, client)
	restored, err := second.Rehydrate(context.Background())
	require.NoError(t, err)
	assert.True(t, restored.IsAuthenticated())
	assert.Equal(t, signedIn.Identity, restored.Identity)
	assert.Equal(t, signedIn.Token, restored.Token)
}

func TestSignOut_ClearsSessionAndStore(t *testing.T) {
	backend := new(MockBackend)
	backend.On("IssueToken", mock.Anything, mock.Anything).
		Return(&auth.TokenGrant{AccessToken: "T", Identity: *testIdentity}, nil).Once()

	store := tokenstore.NewMemory()
	m := readyManager(t, store, backend)

	before, err := m.SignIn(context.Background(), signInCreds())
	require.NoError(t, err)

	session, err := m.SignOut(context.Background())
	require.NoError(t, err)
	assert.Equal(t, auth.StatusUnauthenticated, session.Status)
	assert.Empty(t, session.Token)
	assert.Nil(t, session.Identity)
	assert.Equal(t, auth.DefaultMessages().SignedOut, session.Message)
	assert.Equal(t, before.Epoch+1, session.Epoch)

	_, ok := storedToken(t, store)
	assert.False(t, ok)
}

func TestSignOut_StoreFailureStillSignsOut(t *testing.T) {
	store := &failingStore{TokenStore: tokenstore.NewMemory(), failClear: true}
	m := readyManager(t, store, new(MockBackend))

	session, err := m.SignOut(context.Background())
	require.NoError(t, err)
	assert.Equal(t, auth.StatusUnauthenticated, session.Status)
}

func TestSignOutDuringRehydrateDiscardsResult(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})

	backend := new(MockBackend)
	backend.On("CurrentUser", mock.Anything, "tok").
		Run(func(mock.Arguments) {
			close(entered)
			<-release
		}).
		Return(testIdentity, nil).Once()

	store := tokenstore.NewMemoryWithToken("tok")
	m := auth.NewManager(store, backend)

	type result struct {
		session auth.Session
		err     error
	}
	done := make(chan result, 1)
	go func() {
		s, err := m.Rehydrate(context.Background())
		done <- result{s, err}
	}()

	<-entered
	signedOut, err := m.SignOut(context.Background())
	require.NoError(t, err)
	assert.Equal(t, auth.StatusUnauthenticated, signedOut.Status)
	close(release)

	res := <-done
	require.Error(t, res.err)
	assert.True(t, auth.IsSuperseded(res.err))
	assert.Equal(t, auth.StatusUnauthenticated, res.session.Status)
	assert.False(t, res.session.Loading)

	final := m.Session()
	assert.False(t, final.IsAuthenticated())
	assert.Nil(t, final.Identity)

	_, ok := storedToken(t, store)
	assert.False(t, ok)
}

func TestSignOutDuringSignInDiscardsResult(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})

	backend := new(MockBackend)
	backend.On("IssueToken", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			close(entered)
			<-release
		}).
		Return(&auth.TokenGrant{AccessToken: "late", Identity: *testIdentity}, nil).Once()

	sink := &recordingSink{}
	store := tokenstore.NewMemory()
	m := readyManager(t, store, backend, auth.WithActivitySink(sink))

	done := make(chan error, 1)
	go func() {
		_, err := m.SignIn(context.Background(), signInCreds())
		done <- err
	}()

	<-entered
	assert.True(t, m.Session().Loading)
	_, err := m.SignOut(context.Background())
	require.NoError(t, err)
	close(release)

	err = <-done
	require.Error(t, err)
	assert.True(t, auth.IsSuperseded(err))

	session := m.Session()
	assert.Equal(t, auth.StatusUnauthenticated, session.Status)
	assert.Empty(t, session.Token)
	assert.False(t, session.Loading)

	_, ok := storedToken(t, store)
	assert.False(t, ok)
	assert.Contains(t, sink.types(), auth.ActivityEventStaleResultIgnore)
}

func TestActivitySinkMayReadSession(t *testing.T) {
	backend := new(MockBackend)
	backend.On("IssueToken", mock.Anything, mock.Anything).
		Return(&auth.TokenGrant{AccessToken: "T", Identity: *testIdentity}, nil).Once()

	var m *auth.Manager
	var seen []auth.Status
	sink := auth.ActivitySinkFunc(func(context.Context, auth.ActivityEvent) error {
		seen = append(seen, m.Session().Status)
		return nil
	})
	m = auth.NewManager(tokenstore.NewMemory(), backend, auth.WithActivitySink(sink))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := m.Rehydrate(context.Background())
		assert.NoError(t, err)
		_, err = m.SignIn(context.Background(), signInCreds())
		assert.NoError(t, err)
		_, err = m.SignOut(context.Background())
		assert.NoError(t, err)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("activity sink blocked on the session lock")
	}

	require.NotEmpty(t, seen)
	assert.Equal(t, auth.StatusUnauthenticated, seen[len(seen)-1])
	assert.Contains(t, seen, auth.StatusAuthenticated)
}

func TestActivityEvents(t *testing.T) {
	backend := new(MockBackend)
	backend.On("IssueToken", mock.Anything, mock.Anything).
		Return(&auth.TokenGrant{AccessToken: "T", Identity: *testIdentity}, nil).Once()

	sink := &recordingSink{}
	m := readyManager(t, tokenstore.NewMemory(), backend, auth.WithActivitySink(sink))

	_, err := m.SignIn(context.Background(), signInCreds())
	require.NoError(t, err)
	_, err = m.SignOut(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []auth.ActivityEventType{
		auth.ActivityEventStatusChanged,
		auth.ActivityEventStatusChanged,
		auth.ActivityEventSignInSuccess,
		auth.ActivityEventStatusChanged,
		auth.ActivityEventSignOut,
	}, sink.types())

	for _, event := range sink.events {
		assert.NotEmpty(t, event.ID)
		for _, v := range event.Metadata {
			assert.NotEqual(t, "T", v)
		}
	}
}

func TestActivitySinkErrorsDoNotFailOperations(t *testing.T) {
	sink := auth.ActivitySinkFunc(func(context.Context, auth.ActivityEvent) error {
		return errDisk
	})
	m := readyManager(t, tokenstore.NewMemory(), new(MockBackend), auth.WithActivitySink(sink))

	_, err := m.SignOut(context.Background())
	require.NoError(t, err)
}

func TestTransitionHooks(t *testing.T) {
	backend := new(MockBackend)
	backend.On("IssueToken", mock.Anything, mock.Anything).
		Return(&auth.TokenGrant{AccessToken: "T", Identity: *testIdentity}, nil).Once()

	var seen []auth.TransitionContext
	hook := func(_ context.Context, tc auth.TransitionContext) {
		seen = append(seen, tc)
	}
	m := readyManager(t, tokenstore.NewMemory(), backend, auth.WithTransitionHook(hook))

	_, err := m.SignIn(context.Background(), signInCreds())
	require.NoError(t, err)

	require.NotEmpty(t, seen)
	last := seen[len(seen)-1]
	assert.Equal(t, auth.StatusUnauthenticated, last.From)
	assert.Equal(t, auth.StatusAuthenticated, last.To)
	require.NotNil(t, last.Identity)
	assert.Equal(t, "1", last.Identity.ID)
}
