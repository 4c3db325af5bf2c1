package middleware

import (
	"net/http"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/servimarket/portal/internal/api/metrics"
	"github.com/servimarket/portal/internal/core/domain"
	"github.com/servimarket/portal/internal/core/service"
)

// Guard runs the route guard for the visitor's session. While the first
// session check is pending it waits up to readyWait; if the session is still
// loading after that, it answers 204 and renders nothing. Redirects are 302,
// and redirects to the login page carry the requested path and query in
// ?from=.
func Guard(readyWait time.Duration, roles ...domain.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			v, ok := c.Get(VisitorKey).(*service.Visitor)
			if !ok {
				return echo.NewHTTPError(http.StatusInternalServerError, "visitor missing from context")
			}

			session := v.Session()
			waitReady(c, session.Ready(), readyWait)
			snap := session.Snapshot()

			d := service.Evaluate(service.GuardInput{
				Identity:     snap.Identity,
				Loading:      snap.Loading,
				Path:         c.Request().URL.Path,
				RawQuery:     c.Request().URL.RawQuery,
				AllowedRoles: roles,
			})
			metrics.GuardDecisionsTotal.WithLabelValues(d.Kind.String()).Inc()

			switch d.Kind {
			case service.NoDecision:
				return c.NoContent(http.StatusNoContent)
			case service.Redirect:
				return c.Redirect(http.StatusFound, redirectURL(d))
			}
			return next(c)
		}
	}
}

func waitReady(c echo.Context, ready <-chan struct{}, wait time.Duration) {
	if wait <= 0 {
		return
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ready:
	case <-timer.C:
	case <-c.Request().Context().Done():
	}
}

func redirectURL(d service.Decision) string {
	if d.From == "" {
		return d.Target
	}
	return d.Target + "?" + url.Values{"from": {d.From}}.Encode()
}
