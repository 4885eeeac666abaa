package auth

import (
	"context"
	"sync"
	"time"

	"github.com/landslide-report/go-auth/retry"
)

// ManagerOption customizes Manager construction.
type ManagerOption func(*Manager)

// WithLogger sets the logger used by the manager.
func WithLogger(logger Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithLoggerProvider resolves the manager logger by name from provider.
func WithLoggerProvider(provider LoggerProvider) ManagerOption {
	return func(m *Manager) {
		if provider != nil {
			m.loggerProvider = provider
		}
	}
}

// WithActivitySink sets the ActivitySink used to publish session events.
func WithActivitySink(sink ActivitySink) ManagerOption {
	return func(m *Manager) {
		m.activity = normalizeActivitySink(sink)
	}
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) ManagerOption {
	return func(m *Manager) {
		if clock != nil {
			m.now = clock
		}
	}
}

// WithRehydratePolicy retries the startup identity lookup. Rejected tokens
// are never retried.
func WithRehydratePolicy(policy retry.Policy) ManagerOption {
	return func(m *Manager) {
		m.rehydratePolicy = policy
	}
}

// WithExpiryCheck toggles the local JWT exp check before rehydration.
func WithExpiryCheck(enabled bool) ManagerOption {
	return func(m *Manager) {
		if enabled {
			m.checker = ExpiryChecker{}
		} else {
			m.checker = nil
		}
	}
}

// WithTokenChecker installs a custom check run on stored tokens before rehydration.
func WithTokenChecker(checker TokenChecker) ManagerOption {
	return func(m *Manager) {
		m.checker = checker
	}
}

// WithMessages overrides the published texts.
func WithMessages(messages Messages) ManagerOption {
	return func(m *Manager) {
		m.messages = messages.withDefaults()
	}
}

// WithTransitionHook adds a hook executed after each committed status change.
func WithTransitionHook(hook TransitionHook) ManagerOption {
	return func(m *Manager) {
		if hook != nil {
			m.hooks = append(m.hooks, hook)
		}
	}
}

// WithCredentialInput shares an existing input buffer with the manager.
func WithCredentialInput(input *CredentialInput) ManagerOption {
	return func(m *Manager) {
		if input != nil {
			m.input = input
		}
	}
}

// Manager owns the client session. It is the only writer of the token store.
//
// Every operation captures the session epoch when it starts. SignOut bumps
// the epoch, and any operation that completes under an older epoch has its
// result discarded without touching the store or the published session.
type Manager struct {
	mu       sync.Mutex
	sm       *stateMachine
	version  uint64
	inFlight int
	started  bool

	store   TokenStore
	backend Backend
	input   *CredentialInput

	now             func() time.Time
	logger          Logger
	loggerProvider  LoggerProvider
	activity        ActivitySink
	rehydratePolicy retry.Policy
	checker         TokenChecker
	messages        Messages
	hooks           []TransitionHook
	pending         []ActivityEvent

	publisher *Publisher
}

// NewManager builds a manager in the Initializing state.
func NewManager(store TokenStore, backend Backend, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:           store,
		backend:         backend,
		input:           NewCredentialInput(),
		now:             time.Now,
		activity:        noopActivitySink{},
		rehydratePolicy: retry.NoRetry(),
		checker:         ExpiryChecker{},
		messages:        DefaultMessages(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	m.loggerProvider, m.logger = ResolveLogger("auth.session", m.loggerProvider, m.logger)
	m.sm = newStateMachine(m.now)
	m.publisher = newPublisher(m)
	return m
}

// Session returns the current snapshot.
func (m *Manager) Session() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sm.current()
}

func (m *Manager) versionedSession() (uint64, Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.version, m.sm.current()
}

// Input returns the managed credential input buffer.
func (m *Manager) Input() *CredentialInput {
	return m.input
}

// Publisher returns the publisher bound to this manager.
func (m *Manager) Publisher() *Publisher {
	return m.publisher
}

// Rehydrate restores the session from the token store. It runs once; later
// calls return the current snapshot.
//
// Any failure to confirm the stored token clears the store and leaves the
// session Unauthenticated. Cancelling ctx also ends Unauthenticated but
// keeps the stored token for the next start.
func (m *Manager) Rehydrate(ctx context.Context) (Session, error) {
	m.mu.Lock()
	if m.started {
		snap := m.sm.current()
		m.mu.Unlock()
		return snap, nil
	}
	m.started = true
	epoch := m.beginLocked()
	version, snap := m.commitLocked()
	m.mu.Unlock()
	m.publisher.publish(version, snap)

	token, ok, err := m.store.Load(ctx)
	if err != nil {
		m.logger.Error("failed to load stored session", "error", err)
		storeErr := NewError(ErrStorage, err, map[string]any{"operation": "load"})
		return m.finishRehydrate(ctx, epoch, "", nil, storeErr, m.messages.SessionLoadFailed, false)
	}

	if !ok || token == "" {
		m.logger.Debug("no stored session")
		return m.finish(ctx, epoch, func() (Session, error) {
			tc, err := m.sm.reset("no_stored_token")
			if err != nil {
				return m.sm.current(), err
			}
			m.afterTransition(ctx, tc)
			return m.sm.current(), nil
		})
	}

	m.mu.Lock()
	if m.sm.session.Epoch == epoch {
		if err := m.sm.pendingToken(token); err == nil {
			version, snap = m.commitLocked()
			m.mu.Unlock()
			m.publisher.publish(version, snap)
		} else {
			m.mu.Unlock()
		}
	} else {
		m.mu.Unlock()
	}

	if m.checker != nil {
		if err := m.checker.Check(token, m.now()); err != nil {
			m.logger.Info("stored token rejected locally", "error", err)
			return m.finishRehydrate(ctx, epoch, token, nil, err, m.messages.SessionExpired, true)
		}
	}

	identity, err := retry.Do(ctx, m.rehydratePolicy, func(ctx context.Context, attempt int) (*Identity, error) {
		identity, err := m.backend.CurrentUser(ctx, token)
		if err != nil {
			if IsAuthRejected(err) {
				return nil, retry.Permanent(err)
			}
			m.logger.Debug("identity lookup failed", "attempt", attempt, "error", err)
			return nil, err
		}
		if identity == nil || identity.ID == "" {
			return nil, NewError(ErrMalformedResponse, nil, map[string]any{"endpoint": "current_user"})
		}
		return identity, nil
	})
	if err != nil {
		err = retry.LastCause(err)
		clearStore := ctx.Err() == nil
		return m.finishRehydrate(ctx, epoch, token, nil, err, m.messages.SessionExpired, clearStore)
	}

	return m.finishRehydrate(ctx, epoch, token, identity, nil, "", false)
}

func (m *Manager) finishRehydrate(ctx context.Context, epoch uint64, token string, identity *Identity, cause error, failMsg string, clearStore bool) (Session, error) {
	return m.finish(ctx, epoch, func() (Session, error) {
		if cause == nil && identity != nil {
			tc, err := m.sm.authenticate(token, *identity)
			if err != nil {
				return m.sm.current(), err
			}
			m.sm.setMessage(m.messages.welcome(identity))
			m.afterTransition(ctx, tc)
			m.recordLocked(ctx, ActivityEventRehydrateSuccess, identity, nil)
			m.logger.Info("session restored", "user_id", identity.ID)
			return m.sm.current(), nil
		}

		if clearStore {
			if err := m.store.Clear(ctx); err != nil {
				m.logger.Warn("failed to clear rejected token", "error", err)
			}
		}

		tc, err := m.sm.reset("rehydrate_failed")
		if err != nil {
			return m.sm.current(), err
		}
		m.sm.setError(failMsg)
		m.afterTransition(ctx, tc)
		m.recordLocked(ctx, ActivityEventRehydrateFailure, nil, map[string]any{
			"error":         cause.Error(),
			"store_cleared": clearStore,
		})
		m.logger.Info("stored session rejected", "error", cause)
		return m.sm.current(), cause
	})
}

// SignUp registers an account and signs in with the same credentials.
func (m *Manager) SignUp(ctx context.Context, creds Credentials) (Session, error) {
	creds = creds.Trimmed()
	defer m.input.Clear()

	epoch, snap, err := m.begin(ctx, func() (string, error) {
		if verr := creds.ValidateSignUp(); verr != nil {
			return m.messages.MissingSignUp, NewError(ErrValidation, verr, nil)
		}
		return "", nil
	})
	if err != nil {
		m.record(ctx, ActivityEventSignUpFailure, nil, map[string]any{"error": err.Error()})
		return snap, err
	}

	if err := m.backend.Register(ctx, creds); err != nil {
		m.logger.Info("registration failed", "error", err)
		msg := m.messages.remoteFailure(err, m.messages.SignUpFailed)
		return m.finishFailure(ctx, epoch, ActivityEventSignUpFailure, msg, err)
	}

	m.logger.Info("account registered")

	grant, err := m.issueToken(ctx, creds)
	if err != nil {
		wrapped := NewError(ErrCreatedLoginFailed, err, nil)
		m.logger.Warn("automatic sign in after registration failed", "error", err)
		return m.finishFailure(ctx, epoch, ActivityEventSignUpFailure, m.messages.CreatedLoginFailed, wrapped)
	}

	return m.finishGrant(ctx, epoch, grant, ActivityEventSignUpSuccess, m.messages.SignUpSuccess, func(storeErr error) error {
		return NewError(ErrCreatedLoginFailed, storeErr, nil)
	}, m.messages.CreatedLoginFailed)
}

// SignIn requests a token, persists it and authenticates the session.
func (m *Manager) SignIn(ctx context.Context, creds Credentials) (Session, error) {
	creds = creds.Trimmed()
	defer m.input.Clear()

	epoch, snap, err := m.begin(ctx, func() (string, error) {
		if verr := creds.ValidateSignIn(); verr != nil {
			return m.messages.MissingSignIn, NewError(ErrValidation, verr, nil)
		}
		return "", nil
	})
	if err != nil {
		m.record(ctx, ActivityEventSignInFailure, nil, map[string]any{"error": err.Error()})
		return snap, err
	}

	grant, err := m.issueToken(ctx, creds)
	if err != nil {
		m.logger.Info("sign in failed", "error", err)
		msg := m.messages.remoteFailure(err, m.messages.InvalidCredentials)
		return m.finishFailure(ctx, epoch, ActivityEventSignInFailure, msg, err)
	}

	return m.finishGrant(ctx, epoch, grant, ActivityEventSignInSuccess, m.messages.SignInSuccess, func(storeErr error) error {
		return storeErr
	}, m.messages.StorageFailure)
}

// SubmitSignUp runs SignUp with the managed credential input.
func (m *Manager) SubmitSignUp(ctx context.Context) (Session, error) {
	return m.SignUp(ctx, m.input.Snapshot())
}

// SubmitSignIn runs SignIn with the managed credential input.
func (m *Manager) SubmitSignIn(ctx context.Context) (Session, error) {
	return m.SignIn(ctx, m.input.Snapshot())
}

// SignOut clears the store and resets the session. It is always allowed and
// invalidates every operation still in flight.
func (m *Manager) SignOut(ctx context.Context) (Session, error) {
	m.mu.Lock()
	m.sm.clearMessages()
	m.sm.session.Epoch++

	if err := m.store.Clear(ctx); err != nil {
		m.logger.Warn("failed to clear stored token on sign out", "error", err)
	}

	prev := m.sm.current()
	tc, err := m.sm.reset("signed_out")
	if err != nil {
		version, snap := m.commitLocked()
		m.mu.Unlock()
		m.publisher.publish(version, snap)
		return snap, err
	}
	m.sm.setMessage(m.messages.SignedOut)
	m.afterTransition(ctx, tc)
	m.recordLocked(ctx, ActivityEventSignOut, prev.Identity, nil)
	version, snap := m.commitLocked()
	events := m.takeEventsLocked()
	m.mu.Unlock()

	m.publisher.publish(version, snap)
	m.flushEvents(ctx, events)
	m.runHooks(ctx, tc)
	m.logger.Info("signed out", "user_id", prev.UserID())
	return snap, nil
}

func (m *Manager) issueToken(ctx context.Context, creds Credentials) (*TokenGrant, error) {
	grant, err := m.backend.IssueToken(ctx, creds)
	if err != nil {
		return nil, err
	}
	if grant == nil || grant.AccessToken == "" || grant.Identity.ID == "" {
		return nil, NewError(ErrMalformedResponse, nil, map[string]any{"endpoint": "token"})
	}
	return grant, nil
}

// begin clears the previous texts, rejects the call while initializing and
// runs the local guard. On success the operation is counted in flight.
func (m *Manager) begin(ctx context.Context, guard func() (string, error)) (uint64, Session, error) {
	m.mu.Lock()
	m.sm.clearMessages()

	var failMsg string
	var err error
	if m.sm.session.Status == StatusInitializing {
		failMsg, err = m.messages.NotReady, NewError(ErrNotReady, nil, nil)
	} else if guard != nil {
		failMsg, err = guard()
	}

	if err != nil {
		m.sm.setError(failMsg)
		version, snap := m.commitLocked()
		m.mu.Unlock()
		m.publisher.publish(version, snap)
		return 0, snap, err
	}

	epoch := m.beginLocked()
	version, snap := m.commitLocked()
	m.mu.Unlock()
	m.publisher.publish(version, snap)
	return epoch, snap, nil
}

func (m *Manager) beginLocked() uint64 {
	m.sm.clearMessages()
	m.inFlight++
	m.sm.session.Loading = true
	return m.sm.session.Epoch
}

// finish applies result under the lock when epoch is still current.
func (m *Manager) finish(ctx context.Context, epoch uint64, apply func() (Session, error)) (Session, error) {
	m.mu.Lock()
	m.inFlight--
	if m.inFlight < 0 {
		m.inFlight = 0
	}
	m.sm.session.Loading = m.inFlight > 0

	from := m.sm.session.Status
	var err error
	if m.sm.session.Epoch != epoch {
		m.logger.Debug("discarding superseded result", "epoch", epoch, "current", m.sm.session.Epoch)
		m.recordLocked(ctx, ActivityEventStaleResultIgnore, nil, map[string]any{
			"started_epoch": epoch,
			"current_epoch": m.sm.session.Epoch,
		})
		err = NewError(ErrSuperseded, nil, map[string]any{"epoch": epoch})
	} else {
		_, err = apply()
	}

	to := m.sm.session.Status
	version, snap := m.commitLocked()
	events := m.takeEventsLocked()
	m.mu.Unlock()

	m.publisher.publish(version, snap)
	m.flushEvents(ctx, events)
	if from != to || to == StatusAuthenticated {
		m.runHooks(ctx, TransitionContext{
			From:     from,
			To:       to,
			Identity: snap.Identity.Clone(),
			Epoch:    snap.Epoch,
		})
	}
	return snap, err
}

func (m *Manager) finishFailure(ctx context.Context, epoch uint64, event ActivityEventType, msg string, cause error) (Session, error) {
	return m.finish(ctx, epoch, func() (Session, error) {
		prev := m.sm.current()
		if prev.HasToken() {
			if err := m.store.Clear(ctx); err != nil {
				m.logger.Warn("failed to clear previous session token", "error", err)
			}
		}
		tc, err := m.sm.reset("operation_failed")
		if err != nil {
			return m.sm.current(), err
		}
		m.sm.setError(msg)
		m.afterTransition(ctx, tc)
		m.recordLocked(ctx, event, nil, map[string]any{"error": cause.Error()})
		return m.sm.current(), cause
	})
}

func (m *Manager) finishGrant(ctx context.Context, epoch uint64, grant *TokenGrant, event ActivityEventType, successMsg string, wrapStoreErr func(error) error, storeFailMsg string) (Session, error) {
	return m.finish(ctx, epoch, func() (Session, error) {
		if err := m.store.Save(ctx, grant.AccessToken); err != nil {
			m.logger.Error("failed to persist session token", "error", err)
			storeErr := NewError(ErrStorage, err, map[string]any{"operation": "save"})
			if m.sm.session.HasToken() {
				if cerr := m.store.Clear(ctx); cerr != nil {
					m.logger.Warn("failed to clear previous session token", "error", cerr)
				}
			}
			tc, rerr := m.sm.reset("store_failed")
			if rerr != nil {
				return m.sm.current(), rerr
			}
			m.sm.setError(storeFailMsg)
			m.afterTransition(ctx, tc)
			failure := ActivityEventSignInFailure
			if event == ActivityEventSignUpSuccess {
				failure = ActivityEventSignUpFailure
			}
			m.recordLocked(ctx, failure, &grant.Identity, map[string]any{"error": storeErr.Error()})
			return m.sm.current(), wrapStoreErr(storeErr)
		}

		tc, err := m.sm.authenticate(grant.AccessToken, grant.Identity)
		if err != nil {
			return m.sm.current(), err
		}
		m.sm.setMessage(successMsg)
		m.afterTransition(ctx, tc)
		m.recordLocked(ctx, event, &grant.Identity, nil)
		m.logger.Info("signed in", "user_id", grant.Identity.ID)
		return m.sm.current(), nil
	})
}

// commitLocked bumps the publication version and returns the snapshot to publish.
func (m *Manager) commitLocked() (uint64, Session) {
	m.version++
	return m.version, m.sm.current()
}

func (m *Manager) afterTransition(ctx context.Context, tc TransitionContext) {
	if tc.From == tc.To {
		return
	}
	event := newActivityEvent(ActivityEventStatusChanged, m.now())
	event.FromStatus = tc.From
	event.ToStatus = tc.To
	event.Epoch = m.sm.session.Epoch
	if tc.Reason != "" {
		event.Metadata["reason"] = tc.Reason
	}
	if tc.Identity != nil {
		event.UserID = tc.Identity.ID
		event.Email = tc.Identity.Email
	}
	m.pending = append(m.pending, event)
}

func (m *Manager) runHooks(ctx context.Context, tc TransitionContext) {
	for _, hook := range m.hooks {
		hook(ctx, tc)
	}
}

func (m *Manager) record(ctx context.Context, eventType ActivityEventType, identity *Identity, metadata map[string]any) {
	m.mu.Lock()
	m.recordLocked(ctx, eventType, identity, metadata)
	events := m.takeEventsLocked()
	m.mu.Unlock()
	m.flushEvents(ctx, events)
}

func (m *Manager) recordLocked(ctx context.Context, eventType ActivityEventType, identity *Identity, metadata map[string]any) {
	event := newActivityEvent(eventType, m.now())
	event.Epoch = m.sm.session.Epoch
	event.ToStatus = m.sm.session.Status
	if identity != nil {
		event.UserID = identity.ID
		event.Email = identity.Email
	}
	for k, v := range metadata {
		event.Metadata[k] = v
	}
	m.pending = append(m.pending, event)
}

// takeEventsLocked hands over the events queued under the lock. Sinks only
// run after the lock is released so they may read the session or act on it.
func (m *Manager) takeEventsLocked() []ActivityEvent {
	events := m.pending
	m.pending = nil
	return events
}

func (m *Manager) flushEvents(ctx context.Context, events []ActivityEvent) {
	for _, event := range events {
		m.emit(ctx, event)
	}
}

func (m *Manager) emit(ctx context.Context, event ActivityEvent) {
	if err := normalizeActivitySink(m.activity).Record(ctx, event); err != nil {
		m.logger.Warn("session activity sink error", "event", event.EventType, "error", err)
	}
}
