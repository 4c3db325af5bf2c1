package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/servimarket/portal/internal/core/domain"
)

// viewResponse describes a protected view the front end should render.
type viewResponse struct {
	View string           `json:"view"`
	Path string           `json:"path"`
	User *domain.Identity `json:"user"`
}

// View returns a handler for a guarded page. Rendering is the front end's
// job; the portal only confirms the view may be shown and to whom.
func View(name string) echo.HandlerFunc {
	return func(c echo.Context) error {
		v, err := ctxVisitor(c)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, viewResponse{
			View: name,
			Path: c.Request().URL.Path,
			User: v.Session().Snapshot().Identity,
		})
	}
}
