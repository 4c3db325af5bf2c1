package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/servimarket/portal/internal/core/domain"
	"github.com/servimarket/portal/internal/core/ports"
)

type commitRoute struct {
	method string
	path   string
}

// commitRoutes maps each step to the endpoint that durably records it.
var commitRoutes = map[domain.StepID]commitRoute{
	domain.StepPersonal: {http.MethodPut, "/auth/complete-vendor-profile"},
	domain.StepBusiness: {http.MethodPut, "/auth/update-vendor-business"},
	domain.StepSkills:   {http.MethodPut, "/auth/update-vendor-skills"},
	domain.StepDocs:     {http.MethodPost, "/auth/upload-vendor-docs"},
	domain.StepBanking:  {http.MethodPut, "/auth/update-vendor-banking"},
}

// OnboardingController drives one vendor through the wizard. A step only
// advances after its commit has been acknowledged by the API.
type OnboardingController struct {
	userID    string
	transport ports.Transport
	uploader  ports.Uploader
	validate  *validator.Validate
	log       zerolog.Logger
	now       func() time.Time

	mu          sync.Mutex
	progress    domain.OnboardingProgress
	inFlight    bool
	attachments map[domain.StepID]domain.Attachments

	// uploading counts running uploads; idle is closed whenever it is zero.
	uploading int
	idle      chan struct{}

	subs    map[int]func(context.Context, domain.StepCommitted)
	nextSub int
}

// NewOnboardingController starts a wizard for userID at the first step.
func NewOnboardingController(userID string, transport ports.Transport, uploader ports.Uploader, log zerolog.Logger) *OnboardingController {
	idle := make(chan struct{})
	close(idle)

	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &OnboardingController{
		userID:      userID,
		transport:   transport,
		uploader:    uploader,
		validate:    v,
		log:         log.With().Str("user_id", userID).Logger(),
		now:         time.Now,
		progress:    domain.OnboardingProgress{Current: domain.FirstStep()},
		attachments: make(map[domain.StepID]domain.Attachments),
		idle:        idle,
		subs:        make(map[int]func(context.Context, domain.StepCommitted)),
	}
}

// UserID is the vendor this wizard belongs to.
func (c *OnboardingController) UserID() string { return c.userID }

// Progress returns the current wizard position.
func (c *OnboardingController) Progress() domain.OnboardingProgress {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.progress
}

// Busy reports whether a commit is in flight.
func (c *OnboardingController) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// Subscribe registers fn to receive every acknowledged commit.
func (c *OnboardingController) Subscribe(fn func(context.Context, domain.StepCommitted)) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// Advance commits payload for the current step and moves forward on success.
// After the wizard is submitted it does nothing. A second call while a commit
// is running is rejected with ErrCommitInFlight.
func (c *OnboardingController) Advance(ctx context.Context, payload domain.StepPayload) error {
	c.mu.Lock()
	if c.progress.Submitted {
		c.mu.Unlock()
		c.log.Debug().Msg("advance ignored, onboarding already submitted")
		return nil
	}
	if c.inFlight {
		c.mu.Unlock()
		return domain.ErrCommitInFlight
	}
	step := c.progress.Current
	if payload == nil || payload.Step() != step {
		c.mu.Unlock()
		return fmt.Errorf("advance %s: %w", step, domain.ErrStepMismatch)
	}
	c.inFlight = true
	c.mu.Unlock()

	merged, err := c.commit(ctx, step, payload)

	c.mu.Lock()
	c.inFlight = false
	if err != nil {
		c.mu.Unlock()
		c.log.Warn().Err(err).Str("step", string(step)).Msg("step commit failed")
		return err
	}
	if next, ok := step.Next(); ok {
		c.progress.Current = next
	} else {
		c.progress.Submitted = true
	}
	c.clearAttachmentsLocked(step, merged)
	event := domain.StepCommitted{
		UserID:    c.userID,
		Step:      step,
		Submitted: c.progress.Submitted,
		At:        c.now().UTC(),
	}
	subs := make([]func(context.Context, domain.StepCommitted), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	c.log.Info().Str("step", string(step)).Bool("submitted", event.Submitted).Msg("step committed")
	for _, fn := range subs {
		fn(ctx, event)
	}
	return nil
}

// commit returns the attachments it merged into payload.
func (c *OnboardingController) commit(ctx context.Context, step domain.StepID, payload domain.StepPayload) (domain.Attachments, error) {
	if err := c.waitUploads(ctx); err != nil {
		return nil, fmt.Errorf("advance %s: %w", step, err)
	}

	c.mu.Lock()
	merged := maps.Clone(c.attachments[step])
	c.mu.Unlock()
	payload = payload.WithAttachments(merged)

	if err := c.validate.Struct(payload); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			return nil, fmt.Errorf("advance %s: %w: %s", step, domain.ErrIncompletePayload, missingFields(ve))
		}
		return nil, fmt.Errorf("advance %s: %w", step, err)
	}

	route := commitRoutes[step]
	if err := c.transport.Do(ctx, route.method, route.path, payload, nil); err != nil {
		return nil, fmt.Errorf("advance %s: %w", step, err)
	}
	return merged, nil
}

// clearAttachmentsLocked forgets the committed attachments of step. Uploads
// that landed while the commit was in flight are kept.
func (c *OnboardingController) clearAttachmentsLocked(step domain.StepID, committed domain.Attachments) {
	held := c.attachments[step]
	for kind, url := range committed {
		if held[kind] == url {
			delete(held, kind)
		}
	}
	if len(held) == 0 {
		delete(c.attachments, step)
	}
}

// Retreat moves back one step. It reports false when nothing changed: on the
// first step, after submission, or while a commit is in flight.
func (c *OnboardingController) Retreat() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight || c.progress.Submitted {
		return false
	}
	prev, ok := c.progress.Current.Prev()
	if !ok {
		return false
	}
	c.progress.Current = prev
	return true
}

// Upload stores a file for a later commit of the step owning kind. Advance
// waits for running uploads before it commits.
func (c *OnboardingController) Upload(ctx context.Context, kind domain.AttachmentKind, filename string, r io.Reader) (string, error) {
	if c.uploader == nil {
		return "", fmt.Errorf("upload %s: no uploader configured", kind)
	}

	c.mu.Lock()
	if c.progress.Submitted {
		c.mu.Unlock()
		return "", fmt.Errorf("upload %s: %w", kind, domain.ErrOnboardingUnavailable)
	}
	if c.uploading == 0 {
		c.idle = make(chan struct{})
	}
	c.uploading++
	c.mu.Unlock()

	url, err := c.uploader.Upload(ctx, filename, r)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.uploading--
	if c.uploading == 0 {
		close(c.idle)
	}
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", kind, err)
	}
	if url == "" {
		return "", fmt.Errorf("upload %s: %w: empty url", kind, domain.ErrIncompletePayload)
	}
	step := kind.Step()
	if c.attachments[step] == nil {
		c.attachments[step] = domain.Attachments{}
	}
	c.attachments[step][kind] = url
	return url, nil
}

func (c *OnboardingController) waitUploads(ctx context.Context) error {
	c.mu.Lock()
	idle := c.idle
	c.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func missingFields(ve validator.ValidationErrors) string {
	fields := make([]string, 0, len(ve))
	for _, fe := range ve {
		fields = append(fields, fe.Field())
	}
	return strings.Join(fields, ", ")
}
