package http

import (
	"fmt"
	"runtime/debug"
	"time"

	"github.com/shelfcircle/shelfcircle/app/entity"
)

type RegisterResponse struct {
	UserID   uint64 `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Message  string `json:"message"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type LogoutAllResponse struct {
	AccessToken string `json:"access_token"`
	Message     string `json:"message"`
}

// ErrorResponse is the sanitized error surface. Debug is populated only
// when the service runs with the debug flag on; production responses never
// carry it.
type ErrorResponse struct {
	Error string     `json:"error"`
	Debug *DebugInfo `json:"debug,omitempty"`
}

type DebugInfo struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Stack   string `json:"stack"`
}

// NewErrorResponse builds the error payload, attaching diagnostics iff
// debugMode is set.
func NewErrorResponse(message string, cause error, debugMode bool) ErrorResponse {
	resp := ErrorResponse{Error: message}
	if debugMode && cause != nil {
		resp.Debug = &DebugInfo{
			Type:    fmt.Sprintf("%T", cause),
			Message: cause.Error(),
			Stack:   string(debug.Stack()),
		}
	}
	return resp
}

type BookResponse struct {
	ID          uint64 `json:"id"`
	Title       string `json:"title"`
	Author      string `json:"author"`
	Publisher   string `json:"publisher,omitempty"`
	ISBN        string `json:"isbn,omitempty"`
	Description string `json:"description,omitempty"`
	State       string `json:"state"`
}

func NewBookResponse(book *entity.Book) BookResponse {
	return BookResponse{
		ID:          book.ID,
		Title:       book.Title,
		Author:      book.Author,
		Publisher:   book.Publisher.String,
		ISBN:        book.ISBN.String,
		Description: book.Description.String,
		State:       string(book.State),
	}
}

func NewBookListResponse(books []*entity.Book) []BookResponse {
	out := make([]BookResponse, 0, len(books))
	for _, book := range books {
		out = append(out, NewBookResponse(book))
	}
	return out
}

type LoanResponse struct {
	ID            uint64    `json:"id"`
	BookID        uint64    `json:"book_id"`
	BorrowerID    uint64    `json:"borrower_id"`
	LenderID      uint64    `json:"lender_id"`
	LoanedAt      time.Time `json:"loaned_at"`
	Returned      bool      `json:"returned"`
	ReturnComment string    `json:"return_comment,omitempty"`
	Warning       string    `json:"warning,omitempty"`
}

func NewLoanResponse(loan *entity.Loan) LoanResponse {
	return LoanResponse{
		ID:            loan.ID,
		BookID:        loan.BookID,
		BorrowerID:    loan.BorrowerID,
		LenderID:      loan.LenderID,
		LoanedAt:      loan.LoanedAt,
		Returned:      loan.Returned,
		ReturnComment: loan.ReturnComment.String,
	}
}

func NewLoanListResponse(loans []*entity.Loan) []LoanResponse {
	out := make([]LoanResponse, 0, len(loans))
	for _, loan := range loans {
		out = append(out, NewLoanResponse(loan))
	}
	return out
}

type LoanOverviewResponse struct {
	Made     []LoanResponse `json:"made"`
	Received []LoanResponse `json:"received"`
}
