package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"sessiongate/internal/backend"
)

// Registry indexes every live Session by token behind a single mutex. No
// session ever has its own lock: workers and HTTP handlers alike take
// Registry.mu, read or mutate a Session in place, and release it before
// doing anything that can block (a syscall, a socket write, a child-process
// signal). This is the same discipline relay.go and the blaxel-ai-sandbox
// session manager use for their own shared maps.
type Registry struct {
	mu sync.Mutex

	sessions map[string]*Session
	max      int

	backendCfg backend.Config
	log        *logrus.Logger
}

// NewRegistry builds an empty Registry bound to max concurrent sessions,
// each backed by a backend process launched with cfg.
func NewRegistry(max int, cfg backend.Config, log *logrus.Logger) *Registry {
	return &Registry{
		sessions:   make(map[string]*Session),
		max:        max,
		backendCfg: cfg,
		log:        log,
	}
}

// Count returns the number of sessions currently tracked, idle or not.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Lookup returns the session for token, if any. The returned pointer must
// only be dereferenced while holding r's lock — callers outside this
// package should prefer With, which does that for them.
func (r *Registry) Lookup(token string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[token]
	return s, ok
}

// With runs fn with the registry locked and the named session resolved,
// returning ErrSessionExpired if the token names no live session. This is
// the normal way callers outside the workers touch session state safely.
func (r *Registry) With(token string, fn func(s *Session)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[token]
	if !ok {
		return ErrSessionExpired
	}
	fn(s)
	return nil
}

// ForEach runs fn once per tracked session with the lock held. fn must not
// block or call back into the Registry.
func (r *Registry) ForEach(fn func(s *Session)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		fn(s)
	}
}

// Remove drops token from the index. It does not touch the process or
// sockets owned by the session — callers must have already torn those
// down (see the watchdog's reap step).
func (r *Registry) Remove(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, token)
}

// MarkShouldTerminate sets the sticky should_terminate flag on token, a
// no-op if the token names no live session.
func (r *Registry) MarkShouldTerminate(token string) {
	r.mu.Lock()
	if s, ok := r.sessions[token]; ok {
		s.ShouldTerminate = true
	}
	r.mu.Unlock()
}

// Harvest adopts the first idle session found (clearing its IsIdle flag
// and returning its token) or, if none exists, creates a fresh non-idle
// one. It fails with ErrAtCapacity only when no idle session is available
// and the registry is already full.
func (r *Registry) Harvest() (string, error) {
	r.mu.Lock()
	for token, s := range r.sessions {
		if s.IsIdle {
			s.IsIdle = false
			r.mu.Unlock()
			return token, nil
		}
	}
	full := len(r.sessions) >= r.max
	r.mu.Unlock()

	if full {
		return "", ErrAtCapacity
	}
	return r.Create(false)
}

// Create spawns a new backend process and registers a session for it,
// returning the freshly minted token. It fails with ErrAtCapacity if the
// registry is already full. The token is a SESSION_-prefixed v4 UUID; on
// the vanishingly unlikely chance it collides with a live session's
// token, a fresh one is drawn instead of failing outright.
func (r *Registry) Create(isIdle bool) (string, error) {
	r.mu.Lock()
	if len(r.sessions) >= r.max {
		r.mu.Unlock()
		return "", ErrAtCapacity
	}
	r.mu.Unlock()

	h, err := backend.Spawn(r.backendCfg)
	if err != nil {
		return "", err
	}

	var token string
	r.mu.Lock()
	if len(r.sessions) >= r.max {
		r.mu.Unlock()
		_ = h.Kill()
		h.ClosePipes()
		return "", ErrAtCapacity
	}
	for {
		token = "SESSION_" + uuid.NewString()
		if _, exists := r.sessions[token]; !exists {
			break
		}
	}
	s := &Session{
		Token:       token,
		Status:      WaitingForPort,
		IsIdle:      isIdle,
		handle:      h,
		LastTouch:   time.Now(),
		InboxAlive:  true,
		OutboxAlive: true,
	}
	r.sessions[token] = s
	r.mu.Unlock()

	go inboxWorker(r, token)
	go outboxWorker(r, token)

	r.log.WithFields(logrus.Fields{
		"token": token,
		"pid":   h.Pid,
		"idle":  isIdle,
	}).Info("session created")

	return token, nil
}
