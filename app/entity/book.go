package entity

import (
	"database/sql"
	"time"
)

type BookState string

const (
	BookStateAvailable   BookState = "available"
	BookStateLoaned      BookState = "loaned"
	BookStateUnavailable BookState = "unavailable"
)

// Book belongs to exactly one owner. State is "loaned" iff an active
// (non-returned) loan references it; that transition is driven by the
// lending service, never set directly.
type Book struct {
	ID          uint64
	OwnerID     uint64
	Title       string
	Author      string
	Publisher   sql.NullString
	ISBN        sql.NullString
	Description sql.NullString
	State       BookState
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
