package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/servimarket/portal/internal/api/metrics"
	"github.com/servimarket/portal/internal/core/domain"
	"github.com/servimarket/portal/internal/core/service"
)

// OnboardingHandler serves the vendor onboarding wizard of the visitor.
type OnboardingHandler struct {
	log zerolog.Logger
}

func NewOnboardingHandler(log zerolog.Logger) *OnboardingHandler {
	return &OnboardingHandler{log: log}
}

type progressResponse struct {
	domain.OnboardingProgress
	Steps     []domain.StepID `json:"steps"`
	Committed []domain.StepID `json:"committedSteps"`
	Busy      bool            `json:"busy"`
	// Next is set once the wizard no longer applies to the session.
	Next string `json:"next,omitempty"`
}

type uploadResponse struct {
	Kind domain.AttachmentKind `json:"kind"`
	URL  string                `json:"url"`
}

func newProgressResponse(ctrl *service.OnboardingController) progressResponse {
	p := ctrl.Progress()
	return progressResponse{
		OnboardingProgress: p,
		Steps:              domain.Steps(),
		Committed:          p.Committed(),
		Busy:               ctrl.Busy(),
	}
}

// Progress reports the wizard position. A vendor whose profile is already
// complete is sent to the dashboard.
//
// @Summary      Onboarding progress
// @Tags         onboarding
// @Produce      json
// @Success      200  {object}  progressResponse
// @Success      204
// @Failure      302  {string}  string  "login, onboarding or dashboard redirect"
// @Router       /profilVendor [get]
func (h *OnboardingHandler) Progress(c echo.Context) error {
	v, err := ctxVisitor(c)
	if err != nil {
		return err
	}
	ctrl, err := v.Onboarding()
	if errors.Is(err, domain.ErrOnboardingUnavailable) {
		return c.Redirect(http.StatusFound, dashboardOf(v))
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newProgressResponse(ctrl))
}

// Advance decodes the body as the payload of the current step and commits it.
//
// @Summary      Commit the current step
// @Tags         onboarding
// @Accept       json
// @Produce      json
// @Param        body  body      object  true  "Payload of the current step"
// @Success      200   {object}  progressResponse
// @Failure      400   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Failure      422   {object}  map[string]string
// @Failure      502   {object}  map[string]string
// @Router       /profilVendor/advance [post]
func (h *OnboardingHandler) Advance(c echo.Context) error {
	v, err := ctxVisitor(c)
	if err != nil {
		return err
	}
	ctrl, err := v.Onboarding()
	if err != nil {
		return err
	}

	step := ctrl.Progress().Current
	payload, err := domain.NewPayload(step)
	if err != nil {
		return err
	}
	if err := c.Bind(payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}

	if err := ctrl.Advance(c.Request().Context(), payload); err != nil {
		metrics.OnboardingCommitsTotal.WithLabelValues(string(step), "error").Inc()
		return err
	}
	metrics.OnboardingCommitsTotal.WithLabelValues(string(step), "ok").Inc()

	resp := newProgressResponse(ctrl)
	if resp.Submitted && !v.Session().Snapshot().Identity.NeedsOnboarding() {
		resp.Next = dashboardOf(v)
	}
	return c.JSON(http.StatusOK, resp)
}

// Retreat moves the wizard back one step. Nothing changes on the first step,
// after submission or while a commit runs; the response reports the
// unchanged position.
//
// @Summary      Go back one step
// @Tags         onboarding
// @Produce      json
// @Success      200  {object}  progressResponse
// @Failure      409  {object}  map[string]string
// @Router       /profilVendor/retreat [post]
func (h *OnboardingHandler) Retreat(c echo.Context) error {
	v, err := ctxVisitor(c)
	if err != nil {
		return err
	}
	ctrl, err := v.Onboarding()
	if err != nil {
		return err
	}
	if !ctrl.Retreat() {
		h.log.Debug().Str("visitor_id", v.ID).Msg("retreat ignored")
	}
	return c.JSON(http.StatusOK, newProgressResponse(ctrl))
}

// Upload stores the multipart "file" field as the attachment named by :kind.
//
// @Summary      Upload an onboarding attachment
// @Tags         onboarding
// @Accept       multipart/form-data
// @Produce      json
// @Param        kind  path      string  true  "Attachment kind"
// @Param        file  formData  file    true  "File to upload"
// @Success      201   {object}  uploadResponse
// @Failure      400   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Failure      502   {object}  map[string]string
// @Router       /profilVendor/uploads/{kind} [post]
func (h *OnboardingHandler) Upload(c echo.Context) error {
	v, err := ctxVisitor(c)
	if err != nil {
		return err
	}
	kind, err := domain.ParseAttachmentKind(c.Param("kind"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctrl, err := v.Onboarding()
	if err != nil {
		return err
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	f, err := fh.Open()
	if err != nil {
		return err
	}
	defer f.Close()

	url, err := ctrl.Upload(c.Request().Context(), kind, fh.Filename, f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, uploadResponse{Kind: kind, URL: url})
}

func dashboardOf(v *service.Visitor) string {
	id := v.Session().Snapshot().Identity
	if id == nil {
		return service.LoginPath
	}
	return service.Dashboard(id.Role)
}
