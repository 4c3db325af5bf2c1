package ports

import (
	"context"

	"github.com/servimarket/portal/internal/core/domain"
)

// SessionService is the single writer of a visitor's Session.
type SessionService interface {
	CheckAuth(ctx context.Context) domain.Session
	Login(ctx context.Context, creds domain.Credentials) (*domain.Identity, error)
	Logout(ctx context.Context)
	Register(ctx context.Context, reg domain.Registration) error
	SetIdentity(id *domain.Identity)
	Snapshot() domain.Session
	Ready() <-chan struct{}
	Subscribe(fn func(domain.Session)) (unsubscribe func())
}

// SessionRefresher is the narrow surface the coordinator needs.
type SessionRefresher interface {
	CheckAuth(ctx context.Context) domain.Session
}
