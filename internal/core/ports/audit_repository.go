package ports

import (
	"context"

	"github.com/servimarket/portal/internal/core/domain"
)

// AuditRepository persists acknowledged onboarding commits.
type AuditRepository interface {
	InsertCommit(ctx context.Context, event domain.StepCommitted) error
}

// AuditSink accepts commit events for asynchronous recording.
type AuditSink interface {
	Enqueue(event domain.StepCommitted)
}
