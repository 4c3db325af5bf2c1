package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/servimarket/portal/internal/api/middleware"
	"github.com/servimarket/portal/internal/core/service"
)

// ctxVisitor returns the visitor injected by the Visitor middleware. Its
// absence means the route was registered without the visitor middleware.
func ctxVisitor(c echo.Context) (*service.Visitor, error) {
	v, ok := c.Get(middleware.VisitorKey).(*service.Visitor)
	if !ok || v == nil {
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "visitor missing from context")
	}
	return v, nil
}
