package service

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/servimarket/portal/internal/core/domain"
)

func newSession(t *testing.T, tr *fakeTransport) *SessionService {
	t.Helper()
	s := NewSessionService(tr, zerolog.Nop())
	t.Cleanup(s.Close)
	return s
}

func TestSessionService_StartsLoading(t *testing.T) {
	s := newSession(t, newFakeTransport())

	snap := s.Snapshot()
	if !snap.Loading || snap.Identity != nil {
		t.Fatalf("expected loading with no identity, got %+v", snap)
	}
	select {
	case <-s.Ready():
		t.Fatalf("ready must not be closed before the first check")
	default:
	}
}

func TestSessionService_CheckAuth_Success(t *testing.T) {
	tr := newFakeTransport()
	tr.on(http.MethodGet, pathMe, respond(vendor(false)))
	s := newSession(t, tr)

	snap := s.CheckAuth(context.Background())
	if snap.Loading {
		t.Fatalf("expected loading=false after check")
	}
	if snap.Identity == nil || snap.Identity.ID != "v1" || snap.Identity.Role != domain.RoleVendor {
		t.Fatalf("unexpected identity: %+v", snap.Identity)
	}
	select {
	case <-s.Ready():
	default:
		t.Fatalf("ready should be closed after the first check")
	}
}

func TestSessionService_CheckAuth_FailuresClearIdentity(t *testing.T) {
	cases := map[string]responder{
		"unauthorized": fail(http.StatusUnauthorized, "no session"),
		"server":       fail(http.StatusInternalServerError, "boom"),
		"network":      networkDown(),
	}
	for name, r := range cases {
		t.Run(name, func(t *testing.T) {
			tr := newFakeTransport()
			s := newSession(t, tr)
			s.SetIdentity(client())

			tr.on(http.MethodGet, pathMe, r)
			snap := s.CheckAuth(context.Background())
			if snap.Identity != nil {
				t.Fatalf("expected identity cleared, got %+v", snap.Identity)
			}
			if snap.Loading {
				t.Fatalf("expected loading=false")
			}
		})
	}
}

func TestSessionService_CheckAuth_RejectsUnknownRole(t *testing.T) {
	tr := newFakeTransport()
	tr.on(http.MethodGet, pathMe, respond(map[string]any{"_id": "x", "role": "superuser"}))
	s := newSession(t, tr)

	if snap := s.CheckAuth(context.Background()); snap.Identity != nil {
		t.Fatalf("unknown role must not produce an identity: %+v", snap.Identity)
	}
}

func TestSessionService_CheckAuth_Idempotent(t *testing.T) {
	tr := newFakeTransport()
	tr.on(http.MethodGet, pathMe, respond(client()))
	s := newSession(t, tr)

	first := s.CheckAuth(context.Background())
	for i := 0; i < 5; i++ {
		next := s.CheckAuth(context.Background())
		if next.Loading != first.Loading || !next.Identity.Equal(first.Identity) {
			t.Fatalf("check %d diverged: %+v vs %+v", i, next, first)
		}
	}
}

func TestSessionService_CheckAuth_StaleResolutionDiscarded(t *testing.T) {
	tr := newFakeTransport()
	s := newSession(t, tr)

	started := make(chan struct{})
	release := make(chan struct{})
	calls := 0
	tr.on(http.MethodGet, pathMe, func(ctx context.Context, in, out any) error {
		calls++
		if calls == 1 {
			close(started)
			<-release
			return respond(vendor(false))(ctx, in, out)
		}
		return respond(vendor(true))(ctx, in, out)
	})

	done := make(chan domain.Session)
	go func() { done <- s.CheckAuth(context.Background()) }()
	<-started

	newer := s.CheckAuth(context.Background())
	if newer.Identity == nil || !newer.Identity.IsProfileComplete {
		t.Fatalf("newer check should apply, got %+v", newer.Identity)
	}

	close(release)
	<-done

	got := s.Snapshot()
	if got.Identity == nil || !got.Identity.IsProfileComplete {
		t.Fatalf("stale check overwrote newer state: %+v", got.Identity)
	}
}

func TestSessionService_CheckAuth_ExplicitWriteWins(t *testing.T) {
	tr := newFakeTransport()
	s := newSession(t, tr)

	started := make(chan struct{})
	release := make(chan struct{})
	tr.on(http.MethodGet, pathMe, func(context.Context, any, any) error {
		close(started)
		<-release
		return &domain.APIError{Kind: domain.KindServer, Status: http.StatusBadGateway}
	})
	tr.on(http.MethodPost, pathLogin, respond(map[string]any{"user": client()}))

	done := make(chan struct{})
	go func() {
		s.CheckAuth(context.Background())
		close(done)
	}()
	<-started

	if _, err := s.Login(context.Background(), domain.Credentials{Email: "carl@example.com", Password: "pw"}); err != nil {
		t.Fatalf("login: %v", err)
	}
	close(release)
	<-done

	snap := s.Snapshot()
	if snap.Identity == nil || snap.Identity.ID != "c1" {
		t.Fatalf("login identity lost to an older check: %+v", snap.Identity)
	}
	if snap.Loading {
		t.Fatalf("loading should be cleared once the check resolved")
	}
}

func TestSessionService_CheckAuth_Pending401DoesNotUndoLogin(t *testing.T) {
	tr := newFakeTransport()
	s := newSession(t, tr)

	started := make(chan struct{})
	release := make(chan struct{})
	tr.on(http.MethodGet, pathMe, func(ctx context.Context, in, out any) error {
		close(started)
		<-release
		return fail(http.StatusUnauthorized, "no session")(ctx, in, out)
	})
	tr.on(http.MethodPost, pathLogin, respond(map[string]any{"user": vendor(false)}))

	done := make(chan struct{})
	go func() {
		s.CheckAuth(context.Background())
		close(done)
	}()
	<-started

	if _, err := s.Login(context.Background(), domain.Credentials{Email: "vera@example.com", Password: "pw"}); err != nil {
		t.Fatalf("login: %v", err)
	}
	close(release)
	<-done

	if snap := s.Snapshot(); snap.Identity == nil || snap.Identity.ID != "v1" {
		t.Fatalf("a check dispatched before login must not log the user out: %+v", snap.Identity)
	}
}

func TestSessionService_Login_Success(t *testing.T) {
	tr := newFakeTransport()
	tr.on(http.MethodPost, pathLogin, respond(map[string]any{"user": vendor(false)}))
	s := newSession(t, tr)

	id, err := s.Login(context.Background(), domain.Credentials{Email: "vera@example.com", Password: "pw"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if id.ID != "v1" {
		t.Fatalf("unexpected identity returned: %+v", id)
	}
	snap := s.Snapshot()
	if snap.Identity == nil || snap.Identity.ID != "v1" {
		t.Fatalf("identity not stored: %+v", snap.Identity)
	}
	if !snap.Loading {
		t.Fatalf("login must not touch the loading flag")
	}
}

func TestSessionService_Login_FailureKeepsIdentity(t *testing.T) {
	tr := newFakeTransport()
	tr.on(http.MethodPost, pathLogin, fail(http.StatusBadRequest, "Email ou mot de passe incorrect"))
	s := newSession(t, tr)
	s.SetIdentity(client())

	_, err := s.Login(context.Background(), domain.Credentials{Email: "x@example.com", Password: "bad"})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	var apiErr *domain.APIError
	if !errors.As(err, &apiErr) || apiErr.UserMessage() != "Email ou mot de passe incorrect" {
		t.Fatalf("server message must surface verbatim, got %v", err)
	}
	if snap := s.Snapshot(); snap.Identity == nil || snap.Identity.ID != "c1" {
		t.Fatalf("identity must be unchanged on failed login: %+v", snap.Identity)
	}
}

func TestSessionService_Login_UnauthorizedKeepsIdentity(t *testing.T) {
	tr := newFakeTransport()
	tr.on(http.MethodPost, pathLogin, fail(http.StatusUnauthorized, "bad credentials"))
	s := newSession(t, tr)
	s.SetIdentity(client())

	_, err := s.Login(context.Background(), domain.Credentials{Email: "carl@example.com", Password: "bad"})
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if snap := s.Snapshot(); snap.Identity == nil || snap.Identity.ID != "c1" {
		t.Fatalf("a rejected login must not clear the current identity: %+v", snap.Identity)
	}
}

func TestSessionService_Logout_ClearsEvenWhenRemoteFails(t *testing.T) {
	tr := newFakeTransport()
	tr.on(http.MethodPost, pathLogout, networkDown())
	s := newSession(t, tr)
	s.SetIdentity(client())

	s.Logout(context.Background())

	if snap := s.Snapshot(); snap.Identity != nil {
		t.Fatalf("expected identity cleared, got %+v", snap.Identity)
	}
	if tr.callsTo(http.MethodPost, pathLogout) != 1 {
		t.Fatalf("expected remote logout attempt")
	}
}

func TestSessionService_Register_DoesNotAuthenticate(t *testing.T) {
	tr := newFakeTransport()
	tr.on(http.MethodPost, pathRegister, ok())
	s := newSession(t, tr)

	err := s.Register(context.Background(), domain.Registration{
		Name: "Vera", Email: "vera@example.com", Password: "pw", Role: domain.RoleVendor, AdminSecret: "leak",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if snap := s.Snapshot(); snap.Identity != nil {
		t.Fatalf("register must not authenticate: %+v", snap.Identity)
	}
	body, _ := tr.lastCall().body.(domain.Registration)
	if body.AdminSecret != "" {
		t.Fatalf("admin secret must only be sent for admins")
	}
}

func TestSessionService_Register_UnknownRole(t *testing.T) {
	tr := newFakeTransport()
	s := newSession(t, tr)

	err := s.Register(context.Background(), domain.Registration{Role: "guest"})
	if !errors.Is(err, domain.ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}
	if tr.totalCalls() != 0 {
		t.Fatalf("no request expected for an unknown role")
	}
}

func TestSessionService_UnauthorizedElsewhereInvalidates(t *testing.T) {
	tr := newFakeTransport()
	tr.on(http.MethodGet, "/services", fail(http.StatusUnauthorized, "expired"))
	s := newSession(t, tr)
	s.SetIdentity(vendor(true))

	_ = tr.Do(context.Background(), http.MethodGet, "/services", nil, nil)

	snap := s.Snapshot()
	if snap.Identity != nil {
		t.Fatalf("401 on an unrelated request must clear identity")
	}
	d := Evaluate(GuardInput{Identity: snap.Identity, Path: "/dashVendor", AllowedRoles: RouteTable["/dashVendor"]})
	if d.Kind != Redirect || d.Target != LoginPath {
		t.Fatalf("expected redirect to login, got %+v", d)
	}
}

func TestSessionService_SetIdentity_Idempotent(t *testing.T) {
	s := newSession(t, newFakeTransport())
	notified := 0
	s.Subscribe(func(domain.Session) { notified++ })

	s.SetIdentity(nil)
	s.SetIdentity(nil)
	if notified != 0 {
		t.Fatalf("setting nil on nil must not notify, got %d", notified)
	}

	s.SetIdentity(client())
	s.SetIdentity(client())
	if notified != 1 {
		t.Fatalf("expected a single notification, got %d", notified)
	}
}

func TestSessionService_Close_DetachesFromTransport(t *testing.T) {
	tr := newFakeTransport()
	s := NewSessionService(tr, zerolog.Nop())
	if tr.hookCount() != 1 {
		t.Fatalf("expected hook registered")
	}
	s.Close()
	s.Close()
	if tr.hookCount() != 0 {
		t.Fatalf("expected hook removed on close")
	}
}

func TestSessionService_ReadyUnblocksWaiters(t *testing.T) {
	tr := newFakeTransport()
	tr.on(http.MethodGet, pathMe, respond(client()))
	s := newSession(t, tr)

	go s.CheckAuth(context.Background())

	select {
	case <-s.Ready():
	case <-time.After(2 * time.Second):
		t.Fatalf("ready was never closed")
	}
}
