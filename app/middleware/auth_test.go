package middleware_test

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/shelfcircle/shelfcircle/app/middleware"
	"github.com/shelfcircle/shelfcircle/app/service"
	"github.com/shelfcircle/shelfcircle/config"
)

const testSecret = "test-secret"

type fixedMarkerSource struct {
	marker sql.NullTime
	err    error
}

func (s *fixedMarkerSource) SessionInvalidatedAt(_ context.Context, _ uint64) (sql.NullTime, error) {
	return s.marker, s.err
}

func newMiddleware(t *testing.T, marker sql.NullTime) *middleware.AuthMiddleware {
	t.Helper()

	cfg := &config.Config{
		JWTSecret:         testSecret,
		JWTAccessTokenTTL: 12 * time.Hour,
	}
	sessions := service.NewSessionService(cfg)
	return middleware.NewAuthMiddleware(sessions, &fixedMarkerSource{marker: marker})
}

// signToken builds a session token with full control over the issued-at
// claim; issuedAt == zero omits the claim entirely.
func signToken(t *testing.T, userID uint64, issuedAt time.Time) string {
	t.Helper()

	claims := &service.Claims{
		UserID:   userID,
		Username: "maria",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			Subject:   "maria",
		},
	}
	if !issuedAt.IsZero() {
		claims.IssuedAt = jwt.NewNumericDate(issuedAt)
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func runRequireAuth(t *testing.T, m *middleware.AuthMiddleware, authHeader string) (*httptest.ResponseRecorder, bool) {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)

	reached := false
	handler := m.RequireAuth(func(c echo.Context) error {
		reached = true
		return c.NoContent(http.StatusOK)
	})

	if err := handler(ctx); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	return rec, reached
}

func TestRequireAuth_MissingHeader(t *testing.T) {
	m := newMiddleware(t, sql.NullTime{})

	rec, reached := runRequireAuth(t, m, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
	if reached {
		t.Fatal("handler must not run")
	}
}

func TestRequireAuth_InvalidHeaderFormat(t *testing.T) {
	m := newMiddleware(t, sql.NullTime{})

	rec, _ := runRequireAuth(t, m, "Token abc")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
}

func TestRequireAuth_GarbageToken(t *testing.T) {
	m := newMiddleware(t, sql.NullTime{})

	rec, _ := runRequireAuth(t, m, "Bearer not-a-jwt")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
}

func TestRequireAuth_ValidTokenNoMarker(t *testing.T) {
	m := newMiddleware(t, sql.NullTime{})
	token := signToken(t, 7, time.Now())

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)

	handler := m.RequireAuth(func(c echo.Context) error {
		id, ok := middleware.UserID(c)
		if !ok || id != 7 {
			t.Fatalf("expected user id 7 in context, got %d (ok=%v)", id, ok)
		}
		return c.NoContent(http.StatusOK)
	})

	if err := handler(ctx); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
}

func TestRequireAuth_SessionIssuedBeforeMarkerIsStale(t *testing.T) {
	marker := sql.NullTime{Time: time.Now(), Valid: true}
	m := newMiddleware(t, marker)
	token := signToken(t, 7, time.Now().Add(-time.Hour))

	rec, reached := runRequireAuth(t, m, "Bearer "+token)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
	if reached {
		t.Fatal("stale session must not reach the handler")
	}
}

func TestRequireAuth_SessionIssuedAfterMarkerSurvives(t *testing.T) {
	marker := sql.NullTime{Time: time.Now().Add(-time.Hour), Valid: true}
	m := newMiddleware(t, marker)
	token := signToken(t, 7, time.Now())

	rec, _ := runRequireAuth(t, m, "Bearer "+token)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
}

func TestRequireAuth_NoIssuedAtFallsBackToRecencyWindow(t *testing.T) {
	// Recent marker: fail safe and reject.
	m := newMiddleware(t, sql.NullTime{Time: time.Now().Add(-time.Minute), Valid: true})
	token := signToken(t, 7, time.Time{})

	rec, _ := runRequireAuth(t, m, "Bearer "+token)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 for recent marker, got %d", rec.Code)
	}

	// Old marker: the window has passed, the session is accepted.
	m = newMiddleware(t, sql.NullTime{Time: time.Now().Add(-time.Hour), Valid: true})

	rec, _ = runRequireAuth(t, m, "Bearer "+token)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 for old marker, got %d", rec.Code)
	}
}
