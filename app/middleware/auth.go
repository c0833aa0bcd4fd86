package middleware

import (
	"context"
	"database/sql"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/shelfcircle/shelfcircle/app/service"
)

const (
	ContextKeyUserID   = "user_id"
	ContextKeyUsername = "username"

	// invalidationFallbackWindow is the approximate gate used when a token
	// carries no issued-at claim: if the marker is this recent, the session
	// is treated as stale. Fail-safe leaning; a session created moments
	// after "log out everywhere" can be a false positive.
	invalidationFallbackWindow = 5 * time.Minute
)

type sessionParser interface {
	Parse(tokenString string) (*service.Claims, error)
}

type invalidationMarkerSource interface {
	SessionInvalidatedAt(ctx context.Context, userID uint64) (sql.NullTime, error)
}

type AuthMiddleware struct {
	sessions sessionParser
	accounts invalidationMarkerSource
	now      func() time.Time
}

func NewAuthMiddleware(sessions sessionParser, accounts invalidationMarkerSource) *AuthMiddleware {
	return &AuthMiddleware{
		sessions: sessions,
		accounts: accounts,
		now:      time.Now,
	}
}

// RequireAuth validates the bearer token and then runs the session
// invalidation gate: tokens issued before profile.session_invalidated_at
// are rejected, which is how "log out of all other devices" takes effect.
func (m *AuthMiddleware) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get("Authorization")
		if authHeader == "" {
			logrus.Debug("Missing authorization header")
			return c.JSON(http.StatusUnauthorized, map[string]string{
				"error": "missing authorization header",
			})
		}

		parts := strings.Fields(authHeader)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			logrus.Debug("Invalid authorization header format")
			return c.JSON(http.StatusUnauthorized, map[string]string{
				"error": "invalid authorization header format",
			})
		}

		claims, err := m.sessions.Parse(parts[1])
		if err != nil {
			logrus.Debug("Invalid or expired access token")
			return c.JSON(http.StatusUnauthorized, map[string]string{
				"error": "invalid or expired token",
			})
		}

		marker, err := m.accounts.SessionInvalidatedAt(c.Request().Context(), claims.UserID)
		if err != nil {
			logrus.WithError(err).WithField("user_id", claims.UserID).Error("Session invalidation lookup failed")
			return c.JSON(http.StatusInternalServerError, map[string]string{
				"error": "internal server error",
			})
		}
		if m.sessionStale(claims, marker) {
			logrus.WithField("user_id", claims.UserID).Info("Rejecting session issued before invalidation marker")
			return c.JSON(http.StatusUnauthorized, map[string]string{
				"error": "session expired, please log in again",
			})
		}

		c.Set(ContextKeyUserID, claims.UserID)
		c.Set(ContextKeyUsername, claims.Username)

		return next(c)
	}
}

func (m *AuthMiddleware) sessionStale(claims *service.Claims, marker sql.NullTime) bool {
	if !marker.Valid {
		return false
	}
	if claims.IssuedAt != nil {
		return claims.IssuedAt.Time.Before(marker.Time)
	}
	// No issued-at on the token: fall back to the recency heuristic.
	return m.now().Sub(marker.Time) < invalidationFallbackWindow
}

// UserID pulls the authenticated user id set by RequireAuth.
func UserID(c echo.Context) (uint64, bool) {
	id, ok := c.Get(ContextKeyUserID).(uint64)
	return id, ok
}
