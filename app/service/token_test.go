package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/shelfcircle/shelfcircle/app/entity"
	"github.com/shelfcircle/shelfcircle/app/repository"
	"github.com/shelfcircle/shelfcircle/app/service"
	"github.com/shelfcircle/shelfcircle/config"
)

var tokenColumns = []string{
	"id",
	"user_id",
	"kind",
	"token",
	"new_email",
	"created_at",
	"expires_at",
	"used",
}

const (
	invalidateActiveQuery = `UPDATE security_tokens SET used = TRUE WHERE user_id = \? AND kind = \? AND used = FALSE AND expires_at > NOW\(\)`
	existsTokenQuery      = `SELECT EXISTS\(SELECT 1 FROM security_tokens WHERE token = \?\)`
	insertTokenQuery      = `(?s)INSERT INTO security_tokens \(user_id, kind, token, new_email, created_at, expires_at, used\)\s+VALUES \(\?, \?, \?, \?, \?, \?, \?\)`
	findTokenByValueQuery = `(?s)SELECT id, user_id, kind, token, new_email, created_at, expires_at, used\s+FROM security_tokens WHERE token = \? AND kind = \?`
	markTokenUsedQuery    = `UPDATE security_tokens SET used = TRUE WHERE id = \?`
)

func newTokenServiceWithMock(t *testing.T) (*service.TokenService, sqlmock.Sqlmock, func()) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	cfg := &config.Config{SecurityTokenTTL: 24 * time.Hour}
	svc := service.NewTokenService(db, repository.NewTokenRepository(db), cfg)

	return svc, mock, func() { _ = db.Close() }
}

func expectTokenCreation(mock sqlmock.Sqlmock, userID uint64, kind entity.TokenKind) {
	mock.ExpectBegin()
	mock.ExpectExec(invalidateActiveQuery).
		WithArgs(userID, kind).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(existsTokenQuery).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(insertTokenQuery).
		WithArgs(userID, kind, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), false).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
}

func TestTokenService_Create_RetiresPredecessorsAndInserts(t *testing.T) {
	svc, mock, cleanup := newTokenServiceWithMock(t)
	defer cleanup()

	expectTokenCreation(mock, 7, entity.TokenKindPasswordReset)

	token, err := svc.Create(context.Background(), 7, entity.TokenKindPasswordReset, "")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if token.ID != 1 {
		t.Fatalf("expected token ID 1, got %d", token.ID)
	}
	if len(token.Token) != 43 {
		t.Fatalf("expected 43-character token value, got %d characters", len(token.Token))
	}
	if token.Used {
		t.Fatal("freshly created token must not be used")
	}
	if !token.ExpiresAt.After(token.CreatedAt) {
		t.Fatal("expiry must be after creation")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTokenService_Create_SecondCreateLeavesOneActive(t *testing.T) {
	svc, mock, cleanup := newTokenServiceWithMock(t)
	defer cleanup()

	// Both creations run the invalidation update first, so after the second
	// one only its own token can still be live.
	expectTokenCreation(mock, 7, entity.TokenKindPasswordReset)
	expectTokenCreation(mock, 7, entity.TokenKindPasswordReset)

	first, err := svc.Create(context.Background(), 7, entity.TokenKindPasswordReset, "")
	if err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	second, err := svc.Create(context.Background(), 7, entity.TokenKindPasswordReset, "")
	if err != nil {
		t.Fatalf("second create failed: %v", err)
	}
	if first.Token == second.Token {
		t.Fatal("expected distinct token values")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTokenService_Create_RegeneratesOnCollision(t *testing.T) {
	svc, mock, cleanup := newTokenServiceWithMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec(invalidateActiveQuery).
		WithArgs(uint64(7), entity.TokenKindPasswordReset).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(existsTokenQuery).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(existsTokenQuery).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(insertTokenQuery).
		WithArgs(uint64(7), entity.TokenKindPasswordReset, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), false).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	if _, err := svc.Create(context.Background(), 7, entity.TokenKindPasswordReset, ""); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTokenService_Create_EmailChangeRequiresPendingEmail(t *testing.T) {
	svc, _, cleanup := newTokenServiceWithMock(t)
	defer cleanup()

	if _, err := svc.Create(context.Background(), 7, entity.TokenKindEmailChange, ""); err == nil {
		t.Fatal("expected error for email change token without pending email")
	}
}

func TestTokenService_Validate_UnknownValue(t *testing.T) {
	svc, mock, cleanup := newTokenServiceWithMock(t)
	defer cleanup()

	mock.ExpectQuery(findTokenByValueQuery).
		WithArgs("no-such-token", entity.TokenKindPasswordReset).
		WillReturnRows(sqlmock.NewRows(tokenColumns))

	_, err := svc.Validate(context.Background(), "no-such-token", entity.TokenKindPasswordReset)
	if err != service.ErrInvalidOrExpiredToken {
		t.Fatalf("expected ErrInvalidOrExpiredToken, got %v", err)
	}
}

func TestTokenService_Validate_ExpiredAndUsedShareTheError(t *testing.T) {
	tests := []struct {
		name      string
		expiresAt time.Time
		used      bool
	}{
		{name: "expired", expiresAt: time.Now().Add(-time.Hour), used: false},
		{name: "used", expiresAt: time.Now().Add(time.Hour), used: true},
		{name: "used and expired", expiresAt: time.Now().Add(-time.Hour), used: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, mock, cleanup := newTokenServiceWithMock(t)
			defer cleanup()

			mock.ExpectQuery(findTokenByValueQuery).
				WithArgs("some-token", entity.TokenKindPasswordReset).
				WillReturnRows(sqlmock.NewRows(tokenColumns).
					AddRow(1, 7, entity.TokenKindPasswordReset, "some-token", nil, time.Now().Add(-2*time.Hour), tt.expiresAt, tt.used))

			_, err := svc.Validate(context.Background(), "some-token", entity.TokenKindPasswordReset)
			if err != service.ErrInvalidOrExpiredToken {
				t.Fatalf("expected ErrInvalidOrExpiredToken, got %v", err)
			}
		})
	}
}

func TestTokenService_Validate_LiveToken(t *testing.T) {
	svc, mock, cleanup := newTokenServiceWithMock(t)
	defer cleanup()

	mock.ExpectQuery(findTokenByValueQuery).
		WithArgs("live-token", entity.TokenKindEmailChange).
		WillReturnRows(sqlmock.NewRows(tokenColumns).
			AddRow(3, 7, entity.TokenKindEmailChange, "live-token", "new@example.com", time.Now(), time.Now().Add(time.Hour), false))

	token, err := svc.Validate(context.Background(), "live-token", entity.TokenKindEmailChange)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if token.NewEmail.String != "new@example.com" {
		t.Fatalf("expected pending email to round-trip, got %q", token.NewEmail.String)
	}
}

func TestTokenService_MarkUsed(t *testing.T) {
	svc, mock, cleanup := newTokenServiceWithMock(t)
	defer cleanup()

	mock.ExpectExec(markTokenUsedQuery).
		WithArgs(uint64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	token := &entity.SecurityToken{ID: 3}
	if err := svc.MarkUsed(context.Background(), token); err != nil {
		t.Fatalf("mark used failed: %v", err)
	}
	if !token.Used {
		t.Fatal("token must be flagged used in memory as well")
	}
}

func TestSecurityToken_Valid(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		token entity.SecurityToken
		want  bool
	}{
		{name: "live", token: entity.SecurityToken{ExpiresAt: now.Add(time.Minute)}, want: true},
		{name: "expires exactly now", token: entity.SecurityToken{ExpiresAt: now}, want: true},
		{name: "expired", token: entity.SecurityToken{ExpiresAt: now.Add(-time.Second)}, want: false},
		{name: "used", token: entity.SecurityToken{ExpiresAt: now.Add(time.Minute), Used: true}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.token.Valid(now); got != tt.want {
				t.Fatalf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}
