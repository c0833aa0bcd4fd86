package entity

import (
	"database/sql"
	"time"
)

// Loan records that a book is (or was) lent from its owner to a borrower.
// LenderID always equals the book's owner at creation time.
type Loan struct {
	ID            uint64
	BookID        uint64
	BorrowerID    uint64
	LenderID      uint64
	LoanedAt      time.Time
	Returned      bool
	ReturnComment sql.NullString
}
