package ports

import (
	"context"
	"io"
)

// Transport performs credentialed JSON requests against the marketplace API.
//
// Any response with status 401 fires every registered unauthorized hook before
// Do returns. Non-2xx outcomes are returned as *domain.APIError.
type Transport interface {
	// Do sends in (if non-nil) as the JSON body and decodes the response into
	// out (if non-nil).
	Do(ctx context.Context, method, path string, in, out any) error
	// OnUnauthorized registers fn and returns a function that unregisters it.
	OnUnauthorized(fn func()) (unregister func())
}

// Uploader stores a file and returns the URL it can be referenced by.
type Uploader interface {
	Upload(ctx context.Context, filename string, r io.Reader) (string, error)
}

type hookSuppressedKey struct{}

// WithoutUnauthorizedHook marks ctx so that a 401 answer to a request made
// with it does not fire the unauthorized hooks. Callers that resolve the 401
// themselves use it.
func WithoutUnauthorizedHook(ctx context.Context) context.Context {
	return context.WithValue(ctx, hookSuppressedKey{}, true)
}

// UnauthorizedHookSuppressed reports whether ctx was marked by
// WithoutUnauthorizedHook.
func UnauthorizedHookSuppressed(ctx context.Context) bool {
	v, _ := ctx.Value(hookSuppressedKey{}).(bool)
	return v
}
