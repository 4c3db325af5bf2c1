package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/servimarket/portal/internal/core/domain"
	"github.com/servimarket/portal/internal/core/ports"
)

// Coordinator links the onboarding wizard to the session without either
// knowing about the other: every acknowledged commit triggers a session
// refresh so the route guard sees the server's isProfileComplete flag.
type Coordinator struct {
	session ports.SessionRefresher
	audit   ports.AuditSink
	log     zerolog.Logger
}

// NewCoordinator returns a coordinator. audit may be nil.
func NewCoordinator(session ports.SessionRefresher, audit ports.AuditSink, log zerolog.Logger) *Coordinator {
	return &Coordinator{session: session, audit: audit, log: log}
}

// Attach subscribes the coordinator to c and returns the unsubscribe func.
func (co *Coordinator) Attach(c *OnboardingController) func() {
	return c.Subscribe(co.HandleStepCommitted)
}

// HandleStepCommitted refreshes the session and records the commit.
func (co *Coordinator) HandleStepCommitted(ctx context.Context, ev domain.StepCommitted) {
	if co.audit != nil {
		co.audit.Enqueue(ev)
	}
	sess := co.session.CheckAuth(ctx)
	if ev.Submitted && sess.Identity != nil && !sess.Identity.IsProfileComplete {
		co.log.Warn().Str("user_id", ev.UserID).Msg("onboarding submitted but profile still reported incomplete")
	}
}
