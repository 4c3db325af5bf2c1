package ports

import (
	"context"
	"net/http"
)

// CookieStore keeps the upstream session cookies of each portal visitor so a
// visitor survives a portal restart.
type CookieStore interface {
	Load(ctx context.Context, visitorID string) ([]*http.Cookie, error)
	Save(ctx context.Context, visitorID string, cookies []*http.Cookie) error
	Delete(ctx context.Context, visitorID string) error
}
