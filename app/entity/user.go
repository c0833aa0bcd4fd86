package entity

import (
	"database/sql"
	"time"
)

type User struct {
	ID           uint64
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Profile is the 1:1 companion row of a User. SessionInvalidatedAt is the
// cutover marker for the session invalidation gate: sessions established
// before it are stale.
type Profile struct {
	ID                   uint64
	UserID               uint64
	Phone                sql.NullString
	City                 string
	Country              string
	SessionInvalidatedAt sql.NullTime
}
