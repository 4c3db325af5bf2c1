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

// AuthHandler exposes the session actions of the current visitor.
type AuthHandler struct {
	log zerolog.Logger
}

func NewAuthHandler(log zerolog.Logger) *AuthHandler {
	return &AuthHandler{log: log}
}

type loginRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required"`
	// From is the path recorded by the login redirect, if any.
	From string `json:"from"`
}

type registerRequest struct {
	Name        string `json:"name"        validate:"required"`
	Email       string `json:"email"       validate:"required,email"`
	Password    string `json:"password"    validate:"required,min=6"`
	Role        string `json:"role"        validate:"required,oneof=client vendor admin"`
	AdminSecret string `json:"adminSecret" validate:"required_if=Role admin"`
}

type loginResponse struct {
	User *domain.Identity `json:"user"`
	Next string           `json:"next"`
}

type nextResponse struct {
	Next string `json:"next"`
}

// Session returns the visitor's current session snapshot. It does not wait
// for the first check: a loading session is reported as such.
//
// @Summary      Current session
// @Tags         auth
// @Produce      json
// @Success      200  {object}  domain.Session
// @Router       /auth/session [get]
func (h *AuthHandler) Session(c echo.Context) error {
	v, err := ctxVisitor(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, v.Session().Snapshot())
}

// Login authenticates against the API and tells the caller where to go next.
//
// @Summary      Log in
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      loginRequest  true   "Credentials and optional origin path"
// @Param        from  query     string        false  "Path recorded by the login redirect"
// @Success      200   {object}  loginResponse
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      429   {object}  map[string]string
// @Failure      502   {object}  map[string]string
// @Router       /auth/login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	v, err := ctxVisitor(c)
	if err != nil {
		return err
	}
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	if req.From == "" {
		req.From = c.QueryParam("from")
	}

	user, err := v.Session().Login(c.Request().Context(), domain.Credentials{Email: req.Email, Password: req.Password})
	if err != nil {
		metrics.LoginsTotal.WithLabelValues(errorKind(err)).Inc()
		return err
	}
	metrics.LoginsTotal.WithLabelValues("ok").Inc()

	return c.JSON(http.StatusOK, loginResponse{User: user, Next: service.LandingPath(user, req.From)})
}

// Register creates an account. The visitor stays unauthenticated and is sent
// to the login page.
//
// @Summary      Register an account
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      registerRequest  true  "Account details"
// @Success      201   {object}  nextResponse
// @Failure      400   {object}  map[string]string
// @Failure      502   {object}  map[string]string
// @Router       /auth/register [post]
func (h *AuthHandler) Register(c echo.Context) error {
	v, err := ctxVisitor(c)
	if err != nil {
		return err
	}
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		return err
	}

	err = v.Session().Register(c.Request().Context(), domain.Registration{
		Name:        req.Name,
		Email:       req.Email,
		Password:    req.Password,
		Role:        role,
		AdminSecret: req.AdminSecret,
	})
	if err != nil {
		return err
	}
	h.log.Info().Str("visitor_id", v.ID).Str("role", string(role)).Msg("account registered")
	return c.JSON(http.StatusCreated, nextResponse{Next: service.LoginPath})
}

// Logout clears the session without waiting for the API and sends the
// browser to the login page.
//
// @Summary      Log out
// @Tags         auth
// @Success      303
// @Router       /auth/logout [post]
func (h *AuthHandler) Logout(c echo.Context) error {
	v, err := ctxVisitor(c)
	if err != nil {
		return err
	}
	v.Session().Logout(c.Request().Context())
	return c.Redirect(http.StatusSeeOther, service.LoginPath)
}

func errorKind(err error) string {
	var apiErr *domain.APIError
	if errors.As(err, &apiErr) {
		return string(apiErr.Kind)
	}
	return "other"
}
