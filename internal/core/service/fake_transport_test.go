package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/servimarket/portal/internal/core/domain"
	"github.com/servimarket/portal/internal/core/ports"
)

type responder func(ctx context.Context, in, out any) error

type recordedCall struct {
	method string
	path   string
	body   any
}

// fakeTransport routes requests to per-endpoint responders and fires the
// unauthorized hooks on auth errors, like the real client.
type fakeTransport struct {
	mu     sync.Mutex
	routes map[string]responder
	calls  []recordedCall
	hooks  map[int]func()
	next   int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{routes: make(map[string]responder), hooks: make(map[int]func())}
}

func (f *fakeTransport) on(method, path string, fn responder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[method+" "+path] = fn
}

func (f *fakeTransport) Do(ctx context.Context, method, path string, in, out any) error {
	f.mu.Lock()
	f.calls = append(f.calls, recordedCall{method: method, path: path, body: in})
	fn := f.routes[method+" "+path]
	f.mu.Unlock()

	if fn == nil {
		return &domain.APIError{Kind: domain.KindValidation, Status: http.StatusNotFound, Message: "no route"}
	}
	err := fn(ctx, in, out)
	var apiErr *domain.APIError
	if errors.As(err, &apiErr) && apiErr.Kind == domain.KindAuth && !ports.UnauthorizedHookSuppressed(ctx) {
		f.fireUnauthorized()
	}
	return err
}

func (f *fakeTransport) OnUnauthorized(fn func()) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next
	f.next++
	f.hooks[id] = fn
	return func() {
		f.mu.Lock()
		delete(f.hooks, id)
		f.mu.Unlock()
	}
}

func (f *fakeTransport) fireUnauthorized() {
	f.mu.Lock()
	hooks := make([]func(), 0, len(f.hooks))
	for _, h := range f.hooks {
		hooks = append(hooks, h)
	}
	f.mu.Unlock()
	for _, h := range hooks {
		h()
	}
}

func (f *fakeTransport) hookCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.hooks)
}

func (f *fakeTransport) callsTo(method, path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.method == method && c.path == path {
			n++
		}
	}
	return n
}

func (f *fakeTransport) lastCall() recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return recordedCall{}
	}
	return f.calls[len(f.calls)-1]
}

func (f *fakeTransport) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// respond copies v into out through JSON, the way the real client decodes.
func respond(v any) responder {
	return func(_ context.Context, _, out any) error {
		if out == nil {
			return nil
		}
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return json.Unmarshal(b, out)
	}
}

func ok() responder { return respond(nil) }

func fail(status int, msg string) responder {
	return func(context.Context, any, any) error {
		return &domain.APIError{Kind: domain.StatusKind(status), Status: status, Message: msg}
	}
}

func networkDown() responder {
	return func(context.Context, any, any) error {
		return &domain.APIError{Kind: domain.KindNetwork, Err: errors.New("connection refused")}
	}
}

type stubUploader struct {
	url     string
	err     error
	release chan struct{}
	started chan struct{}
	calls   int
	mu      sync.Mutex
}

func (u *stubUploader) Upload(ctx context.Context, _ string, r io.Reader) (string, error) {
	u.mu.Lock()
	u.calls++
	u.mu.Unlock()
	_, _ = io.Copy(io.Discard, r)
	if u.started != nil {
		u.started <- struct{}{}
	}
	if u.release != nil {
		select {
		case <-u.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return u.url, u.err
}

func vendor(complete bool) *domain.Identity {
	return &domain.Identity{ID: "v1", Role: domain.RoleVendor, Name: "Vera", Email: "vera@example.com", IsProfileComplete: complete}
}

func client() *domain.Identity {
	return &domain.Identity{ID: "c1", Role: domain.RoleClient, Name: "Carl", Email: "carl@example.com"}
}
