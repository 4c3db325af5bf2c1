package api

import (
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/servimarket/portal/internal/api/handler"
	"github.com/servimarket/portal/internal/api/middleware"
	"github.com/servimarket/portal/internal/core/service"
	"github.com/servimarket/portal/internal/infrastructure/http/handlers"
)

// RouterConfig carries everything NewRouter wires together.
type RouterConfig struct {
	Visitors  middleware.VisitorSource
	Cookie    middleware.VisitorConfig
	ReadyWait time.Duration
	// LoginRate is the sustained login attempts per second allowed per IP,
	// with LoginBurst on top.
	LoginRate  float64
	LoginBurst int
	Checks     []handlers.Check
	Log        zerolog.Logger
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(cfg RouterConfig) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(cfg.Log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(requestLogger(cfg.Log))

	// --- Probes and metrics (no visitor) ---
	e.GET("/health", handlers.Liveness)
	e.GET("/health/ready", handlers.NewReadinessHandler(cfg.Checks...).Readiness)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// --- Visitor routes ---
	// Attached per route: echo runs group middleware on unmatched paths too.
	visitor := middleware.Visitor(cfg.Cookie, cfg.Visitors)

	authHandler := handler.NewAuthHandler(cfg.Log)
	loginLimiter := echomiddleware.RateLimiterWithConfig(echomiddleware.RateLimiterConfig{
		Store: echomiddleware.NewRateLimiterMemoryStoreWithConfig(echomiddleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(cfg.LoginRate),
			Burst:     cfg.LoginBurst,
			ExpiresIn: 3 * time.Minute,
		}),
	})

	e.GET("/auth/session", authHandler.Session, visitor)
	e.POST("/auth/login", authHandler.Login, loginLimiter, visitor)
	e.POST("/auth/register", authHandler.Register, visitor)
	e.POST("/auth/logout", authHandler.Logout, visitor)

	onboardingHandler := handler.NewOnboardingHandler(cfg.Log)
	onboardingGuard := middleware.Guard(cfg.ReadyWait, service.RouteTable[service.OnboardingPath]...)
	e.GET(service.OnboardingPath, onboardingHandler.Progress, visitor, onboardingGuard)
	e.POST(service.OnboardingPath+"/advance", onboardingHandler.Advance, visitor, onboardingGuard)
	e.POST(service.OnboardingPath+"/retreat", onboardingHandler.Retreat, visitor, onboardingGuard)
	e.POST(service.OnboardingPath+"/uploads/:kind", onboardingHandler.Upload, visitor, onboardingGuard)

	for path, roles := range service.RouteTable {
		if path == service.OnboardingPath {
			continue
		}
		e.GET(path, handler.View(viewName(path)), visitor, middleware.Guard(cfg.ReadyWait, roles...))
	}

	return e
}

func viewName(path string) string {
	return path[1:]
}

// requestLogger logs one line per request through zerolog.
func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(_ echo.Context, v echomiddleware.RequestLoggerValues) error {
			ev := log.Info()
			if v.Error != nil {
				ev = log.Warn().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	})
}
