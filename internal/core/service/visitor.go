package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/servimarket/portal/internal/core/domain"
	"github.com/servimarket/portal/internal/core/ports"
)

// Visitor is one browser client of the portal. It owns exactly one session
// and, while the session belongs to a vendor with an incomplete profile, one
// onboarding controller.
type Visitor struct {
	ID string

	session     *SessionService
	coordinator *Coordinator
	transport   ports.Transport
	uploader    ports.Uploader
	log         zerolog.Logger

	mu          sync.Mutex
	onboarding  *OnboardingController
	detach      func()
	lastSeen    time.Time
	unsubscribe func()
}

// NewVisitor wires a session, a coordinator and the onboarding lifecycle
// around transport.
func NewVisitor(id string, transport ports.Transport, uploader ports.Uploader, audit ports.AuditSink, log zerolog.Logger) *Visitor {
	log = log.With().Str("visitor_id", id).Logger()
	session := NewSessionService(transport, log)
	v := &Visitor{
		ID:          id,
		session:     session,
		coordinator: NewCoordinator(session, audit, log),
		transport:   transport,
		uploader:    uploader,
		log:         log,
	}
	v.unsubscribe = session.Subscribe(v.onSession)
	return v
}

// Session returns the visitor's session service.
func (v *Visitor) Session() *SessionService { return v.session }

// Onboarding returns the controller for the current vendor, creating it on
// first use. It fails with ErrOnboardingUnavailable unless the identity is a
// vendor whose profile is incomplete.
func (v *Visitor) Onboarding() (*OnboardingController, error) {
	id := v.session.Snapshot().Identity
	if !id.NeedsOnboarding() {
		return nil, domain.ErrOnboardingUnavailable
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.onboarding != nil && v.onboarding.UserID() == id.ID {
		return v.onboarding, nil
	}
	v.dropLocked()
	c := NewOnboardingController(id.ID, v.transport, v.uploader, v.log)
	v.onboarding = c
	v.detach = v.coordinator.Attach(c)
	return c, nil
}

// onSession supersedes the onboarding controller once it no longer applies.
func (v *Visitor) onSession(s domain.Session) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.onboarding == nil {
		return
	}
	if !s.Identity.NeedsOnboarding() || s.Identity.ID != v.onboarding.UserID() {
		v.log.Debug().Msg("onboarding controller superseded")
		v.dropLocked()
	}
}

func (v *Visitor) dropLocked() {
	if v.detach != nil {
		v.detach()
	}
	v.onboarding, v.detach = nil, nil
}

func (v *Visitor) touch(now time.Time) {
	v.mu.Lock()
	v.lastSeen = now
	v.mu.Unlock()
}

func (v *Visitor) idleSince(now time.Time) time.Duration {
	v.mu.Lock()
	defer v.mu.Unlock()
	return now.Sub(v.lastSeen)
}

// Close disposes the visitor's session and controller.
func (v *Visitor) Close() {
	v.mu.Lock()
	v.dropLocked()
	v.mu.Unlock()
	v.unsubscribe()
	v.session.Close()
}

// TransportFactory builds the per-visitor transport and uploader.
type TransportFactory func(ctx context.Context, visitorID string) (ports.Transport, ports.Uploader, error)

// Registry holds the live visitors of the portal.
type Registry struct {
	factory      TransportFactory
	audit        ports.AuditSink
	log          zerolog.Logger
	mountTimeout time.Duration
	idleTTL      time.Duration
	maxVisitors  int
	now          func() time.Time

	mu       sync.Mutex
	visitors map[string]*Visitor
}

// RegistryOptions tunes a Registry.
type RegistryOptions struct {
	// MountTimeout bounds the session check made when a visitor is created.
	MountTimeout time.Duration
	// IdleTTL is how long a visitor may stay unused before Sweep evicts it.
	IdleTTL time.Duration
	// MaxVisitors caps the live visitors; the least recently seen one is
	// evicted to make room.
	MaxVisitors int
}

func NewRegistry(factory TransportFactory, audit ports.AuditSink, opts RegistryOptions, log zerolog.Logger) *Registry {
	if opts.MountTimeout <= 0 {
		opts.MountTimeout = 10 * time.Second
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = 30 * time.Minute
	}
	if opts.MaxVisitors <= 0 {
		opts.MaxVisitors = 10000
	}
	return &Registry{
		factory:      factory,
		audit:        audit,
		log:          log,
		mountTimeout: opts.MountTimeout,
		idleTTL:      opts.IdleTTL,
		maxVisitors:  opts.MaxVisitors,
		now:          time.Now,
		visitors:     make(map[string]*Visitor),
	}
}

// Get returns the visitor with id, creating it when unknown. A new visitor
// starts its first session check in the background. The transport is built
// without holding the registry lock; if two requests race to create the same
// visitor the first one registered wins.
func (r *Registry) Get(ctx context.Context, id string) (*Visitor, error) {
	if v := r.lookup(id); v != nil {
		return v, nil
	}

	transport, uploader, err := r.factory(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("new visitor: %w", err)
	}

	r.mu.Lock()
	if v, ok := r.visitors[id]; ok {
		r.mu.Unlock()
		v.touch(r.now())
		return v, nil
	}
	evicted := r.evictOldestLocked()
	v := NewVisitor(id, transport, uploader, r.audit, r.log)
	v.touch(r.now())
	r.visitors[id] = v
	r.mu.Unlock()

	if evicted != nil {
		r.log.Debug().Str("evicted_id", evicted.ID).Msg("visitor cap reached, evicted least recently seen")
		evicted.Close()
	}

	go func() {
		mountCtx, cancel := context.WithTimeout(context.Background(), r.mountTimeout)
		defer cancel()
		v.session.CheckAuth(mountCtx)
	}()
	return v, nil
}

func (r *Registry) lookup(id string) *Visitor {
	r.mu.Lock()
	v, ok := r.visitors[id]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	v.touch(r.now())
	return v
}

// evictOldestLocked removes the least recently seen visitor when the registry
// is full. The caller closes it after releasing r.mu.
func (r *Registry) evictOldestLocked() *Visitor {
	if len(r.visitors) < r.maxVisitors {
		return nil
	}
	now := r.now()
	var oldest *Visitor
	var oldestIdle time.Duration
	for _, v := range r.visitors {
		if idle := v.idleSince(now); oldest == nil || idle > oldestIdle {
			oldest, oldestIdle = v, idle
		}
	}
	if oldest != nil {
		delete(r.visitors, oldest.ID)
	}
	return oldest
}

// Remove disposes and forgets a visitor.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	v, ok := r.visitors[id]
	delete(r.visitors, id)
	r.mu.Unlock()
	if ok {
		v.Close()
	}
}

// Sweep evicts visitors idle for longer than the configured TTL and returns
// how many were removed.
func (r *Registry) Sweep() int {
	now := r.now()
	r.mu.Lock()
	var stale []*Visitor
	for id, v := range r.visitors {
		if v.idleSince(now) > r.idleTTL {
			stale = append(stale, v)
			delete(r.visitors, id)
		}
	}
	r.mu.Unlock()

	for _, v := range stale {
		v.Close()
	}
	if len(stale) > 0 {
		r.log.Debug().Int("evicted", len(stale)).Msg("idle visitors evicted")
	}
	return len(stale)
}

// Len returns the number of live visitors.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.visitors)
}

// Close disposes every visitor.
func (r *Registry) Close() {
	r.mu.Lock()
	all := r.visitors
	r.visitors = make(map[string]*Visitor)
	r.mu.Unlock()
	for _, v := range all {
		v.Close()
	}
}
