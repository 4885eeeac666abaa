package auth

import (
	"context"
	"sync"
)

// Actions are the bound session operations handed to consumers together with
// each snapshot.
type Actions struct {
	SignUp       func(ctx context.Context, creds Credentials) (Session, error)
	SignIn       func(ctx context.Context, creds Credentials) (Session, error)
	SignOut      func(ctx context.Context) (Session, error)
	SubmitSignUp func(ctx context.Context) (Session, error)
	SubmitSignIn func(ctx context.Context) (Session, error)
	Input        *CredentialInput
}

// Context is the published value: a session snapshot plus the actions that
// change it. Consumers receive copies and cannot mutate manager state.
type Context struct {
	Session Session
	Actions Actions
}

type listener struct {
	id uint64
	fn func(uint64, Context)
}

// Publisher fans out session snapshots to subscribers.
//
// Deliveries are serialized and run in subscription order. A listener may
// run on whichever goroutine is draining the queue, which is not always the
// one that committed the transition. A publication triggered from inside a
// listener is delivered after the current round completes. Snapshots older
// than the last delivered one are dropped so subscribers never see the
// session move backwards.
type Publisher struct {
	manager *Manager
	actions Actions

	mu            sync.Mutex
	listeners     []listener
	nextID        uint64
	lastVersion   uint64
	queue         []Session
	queueVersions []uint64
	draining      bool
}

func newPublisher(m *Manager) *Publisher {
	return &Publisher{
		manager: m,
		actions: Actions{
			SignUp:       m.SignUp,
			SignIn:       m.SignIn,
			SignOut:      m.SignOut,
			SubmitSignUp: m.SubmitSignUp,
			SubmitSignIn: m.SubmitSignIn,
			Input:        m.input,
		},
	}
}

// Snapshot returns the current published value.
func (p *Publisher) Snapshot() Context {
	return Context{
		Session: p.manager.Session(),
		Actions: p.actions,
	}
}

// Subscribe registers fn for every future publication. The returned func
// removes the subscription and is safe to call more than once.
func (p *Publisher) Subscribe(fn func(Context)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	return p.subscribe(func(_ uint64, c Context) { fn(c) })
}

func (p *Publisher) subscribe(fn func(uint64, Context)) func() {
	p.mu.Lock()
	p.nextID++
	id := p.nextID
	p.listeners = append(p.listeners, listener{id: id, fn: fn})
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			for i, l := range p.listeners {
				if l.id == id {
					p.listeners = append(p.listeners[:i:i], p.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// Watch returns a channel carrying the current value followed by every
// publication. Slow readers only see the latest value. The channel is closed
// when ctx is done.
func (p *Publisher) Watch(ctx context.Context) <-chan Context {
	out := make(chan Context, 1)
	w := &watcher{out: out}

	// subscribe before taking the snapshot so no publication falls in between;
	// the watcher drops anything not newer than what it already holds
	unsubscribe := p.subscribe(w.offer)
	version, session := p.manager.versionedSession()
	w.offer(version, Context{Session: session, Actions: p.actions})

	go func() {
		<-ctx.Done()
		unsubscribe()
		w.close()
	}()

	return out
}

func (p *Publisher) publish(version uint64, session Session) {
	p.mu.Lock()
	if version <= p.lastVersion {
		p.mu.Unlock()
		return
	}
	p.lastVersion = version
	p.queue = append(p.queue, session)
	p.queueVersions = append(p.queueVersions, version)
	if p.draining {
		p.mu.Unlock()
		return
	}
	p.draining = true

	for len(p.queue) > 0 {
		next := p.queue[0]
		p.queue = p.queue[1:]
		nextVersion := p.queueVersions[0]
		p.queueVersions = p.queueVersions[1:]
		listeners := append([]listener(nil), p.listeners...)
		p.mu.Unlock()

		for _, l := range listeners {
			l.fn(nextVersion, Context{Session: next.Clone(), Actions: p.actions})
		}

		p.mu.Lock()
	}

	p.draining = false
	p.mu.Unlock()
}

type watcher struct {
	mu      sync.Mutex
	out     chan Context
	version uint64
	seen    bool
	closed  bool
}

func (w *watcher) offer(version uint64, c Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || (w.seen && version <= w.version) {
		return
	}
	w.version = version
	w.seen = true
	select {
	case w.out <- c:
	default:
		select {
		case <-w.out:
		default:
		}
		w.out <- c
	}
}

func (w *watcher) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.closed = true
		close(w.out)
	}
}
