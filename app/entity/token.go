package entity

import (
	"database/sql"
	"time"
)

type TokenKind string

const (
	TokenKindPasswordReset TokenKind = "password_reset"
	TokenKindEmailChange   TokenKind = "email_change"
)

// SecurityToken is a single-use, time-bounded bearer secret delivered by
// email. At most one unused, unexpired token exists per (user, kind);
// creating a new one marks its predecessors used. NewEmail is populated
// only for the email_change kind.
type SecurityToken struct {
	ID        uint64
	UserID    uint64
	Kind      TokenKind
	Token     string
	NewEmail  sql.NullString
	CreatedAt time.Time
	ExpiresAt time.Time
	Used      bool
}

// Valid reports whether the token can still be consumed. Pure check, no
// side effects; the cutoff is hard, there is no grace period.
func (t *SecurityToken) Valid(now time.Time) bool {
	return !t.Used && !now.After(t.ExpiresAt)
}
