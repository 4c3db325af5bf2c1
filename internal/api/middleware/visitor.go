package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/servimarket/portal/internal/core/service"
)

// VisitorKey is the echo context key holding the *service.Visitor.
const VisitorKey = "visitor"

const visitorIssuer = "portal"

// VisitorSource resolves a visitor ID to its live core instance.
type VisitorSource interface {
	Get(ctx context.Context, id string) (*service.Visitor, error)
}

// VisitorConfig configures the visitor cookie.
type VisitorConfig struct {
	Secret     string
	CookieName string
	TTL        time.Duration
	Secure     bool
}

// Visitor identifies the browser through a signed HS256 cookie whose subject
// is the visitor ID, issuing a fresh one when it is missing or invalid, and
// injects the visitor's core instance into the context.
func Visitor(cfg VisitorConfig, source VisitorSource) echo.MiddlewareFunc {
	secret := []byte(cfg.Secret)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := parseVisitorCookie(c, cfg.CookieName, secret)
			if !ok {
				id = uuid.NewString()
				token, err := signVisitor(id, secret, cfg.TTL, time.Now())
				if err != nil {
					return err
				}
				c.SetCookie(&http.Cookie{
					Name:     cfg.CookieName,
					Value:    token,
					Path:     "/",
					MaxAge:   int(cfg.TTL.Seconds()),
					HttpOnly: true,
					Secure:   cfg.Secure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			v, err := source.Get(c.Request().Context(), id)
			if err != nil {
				return err
			}
			c.Set(VisitorKey, v)
			return next(c)
		}
	}
}

func parseVisitorCookie(c echo.Context, name string, secret []byte) (string, bool) {
	cookie, err := c.Cookie(name)
	if err != nil || cookie.Value == "" {
		return "", false
	}

	claims := &jwt.RegisteredClaims{}
	tkn, err := jwt.ParseWithClaims(cookie.Value, claims, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(visitorIssuer))
	if err != nil || !tkn.Valid {
		return "", false
	}
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return "", false
	}
	return claims.Subject, true
}

func signVisitor(id string, secret []byte, ttl time.Duration, now time.Time) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("visitor: empty signing secret")
	}
	claims := jwt.RegisteredClaims{
		Issuer:    visitorIssuer,
		Subject:   id,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
