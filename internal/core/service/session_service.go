package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/rs/zerolog"

	"github.com/servimarket/portal/internal/core/domain"
	"github.com/servimarket/portal/internal/core/ports"
)

const (
	pathMe       = "/auth/me"
	pathLogin    = "/auth/login"
	pathLogout   = "/auth/logout"
	pathRegister = "/auth/register"
)

type loginResponse struct {
	User *domain.Identity `json:"user"`
}

// SessionService owns one visitor's Session. It is the only writer of the
// identity and loading flag.
type SessionService struct {
	transport ports.Transport
	log       zerolog.Logger

	mu       sync.Mutex
	identity *domain.Identity
	loading  bool

	// checkSeq is the token of the latest dispatched CheckAuth; version is
	// bumped on every write to identity.
	checkSeq uint64
	version  uint64

	ready     chan struct{}
	readyOnce sync.Once

	subs    map[int]func(domain.Session)
	nextSub int

	unregister func()
	closed     bool
}

// NewSessionService builds a session bound to transport. The session starts
// loading and listens for 401 responses on every request made through
// transport.
func NewSessionService(transport ports.Transport, log zerolog.Logger) *SessionService {
	s := &SessionService{
		transport: transport,
		log:       log,
		loading:   true,
		ready:     make(chan struct{}),
		subs:      make(map[int]func(domain.Session)),
	}
	s.unregister = transport.OnUnauthorized(func() {
		s.log.Debug().Msg("upstream returned 401, invalidating session")
		s.SetIdentity(nil)
	})
	return s
}

// CheckAuth queries the current principal and replaces the session with the
// result. Failures of any kind resolve to a nil identity. Resolutions of a
// check that is no longer the latest dispatched one are discarded.
func (s *SessionService) CheckAuth(ctx context.Context) domain.Session {
	s.mu.Lock()
	s.checkSeq++
	token, version := s.checkSeq, s.version
	s.mu.Unlock()

	// A 401 here is this check's own result and goes through the token rules
	// below instead of the global hook.
	var id domain.Identity
	err := s.transport.Do(ports.WithoutUnauthorizedHook(ctx), http.MethodGet, pathMe, nil, &id)
	if err == nil && !id.Role.Valid() {
		err = fmt.Errorf("check auth: %w", domain.ErrUnknownRole)
	}

	s.mu.Lock()
	if token != s.checkSeq {
		s.mu.Unlock()
		s.log.Debug().Uint64("token", token).Msg("stale session check discarded")
		return s.Snapshot()
	}

	changed := false
	if version == s.version {
		var next *domain.Identity
		if err == nil {
			next = &id
		}
		changed = s.setLocked(next)
	}
	if s.loading {
		s.loading = false
		changed = true
		s.readyOnce.Do(func() { close(s.ready) })
	}
	snap, subs := s.snapshotLocked(), s.subscribersLocked(changed)
	s.mu.Unlock()

	if err != nil && !errors.Is(err, domain.ErrUnauthorized) {
		s.log.Warn().Err(err).Msg("session check failed")
	}
	notify(subs, snap)
	return snap
}

// Login authenticates and stores the returned identity. On failure the
// current identity is left untouched and the error is returned.
func (s *SessionService) Login(ctx context.Context, creds domain.Credentials) (*domain.Identity, error) {
	var resp loginResponse
	if err := s.transport.Do(ports.WithoutUnauthorizedHook(ctx), http.MethodPost, pathLogin, creds, &resp); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if resp.User == nil || !resp.User.Role.Valid() {
		return nil, fmt.Errorf("login: %w", &domain.APIError{
			Kind: domain.KindServer, Status: http.StatusOK, Err: domain.ErrUnknownRole,
		})
	}

	s.write(resp.User)
	s.log.Info().Str("user_id", resp.User.ID).Str("role", string(resp.User.Role)).Msg("logged in")
	return resp.User.Clone(), nil
}

// Logout clears the identity immediately, then tells the API. The remote
// outcome never restores the identity.
func (s *SessionService) Logout(ctx context.Context) {
	s.write(nil)
	if err := s.transport.Do(ctx, http.MethodPost, pathLogout, nil, nil); err != nil {
		s.log.Warn().Err(err).Msg("remote logout failed")
	}
}

// Register creates an account. It does not authenticate the session.
func (s *SessionService) Register(ctx context.Context, reg domain.Registration) error {
	if !reg.Role.Valid() {
		return fmt.Errorf("register: %w", domain.ErrUnknownRole)
	}
	if reg.Role != domain.RoleAdmin {
		reg.AdminSecret = ""
	}
	if err := s.transport.Do(ctx, http.MethodPost, pathRegister, reg, nil); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	return nil
}

// SetIdentity replaces the identity directly. Calling it with the value
// already held is a no-op.
func (s *SessionService) SetIdentity(id *domain.Identity) {
	s.write(id)
}

func (s *SessionService) write(id *domain.Identity) {
	s.mu.Lock()
	s.version++
	changed := s.setLocked(id.Clone())
	snap, subs := s.snapshotLocked(), s.subscribersLocked(changed)
	s.mu.Unlock()
	notify(subs, snap)
}

func (s *SessionService) setLocked(id *domain.Identity) bool {
	if s.identity.Equal(id) {
		return false
	}
	s.identity = id
	return true
}

// Snapshot returns a copy of the current session.
func (s *SessionService) Snapshot() domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *SessionService) snapshotLocked() domain.Session {
	return domain.Session{Identity: s.identity.Clone(), Loading: s.loading}
}

// Ready is closed once the first session check has resolved.
func (s *SessionService) Ready() <-chan struct{} { return s.ready }

// Subscribe registers fn to be called after every change of the session.
func (s *SessionService) Subscribe(fn func(domain.Session)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *SessionService) subscribersLocked(changed bool) []func(domain.Session) {
	if !changed || len(s.subs) == 0 {
		return nil
	}
	out := make([]func(domain.Session), 0, len(s.subs))
	for _, fn := range s.subs {
		out = append(out, fn)
	}
	return out
}

// Close detaches the session from its transport and drops subscribers.
func (s *SessionService) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.subs = map[int]func(domain.Session){}
	unregister := s.unregister
	s.mu.Unlock()

	if unregister != nil {
		unregister()
	}
}

func notify(subs []func(domain.Session), snap domain.Session) {
	for _, fn := range subs {
		fn(snap)
	}
}
