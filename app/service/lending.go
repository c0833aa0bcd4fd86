package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shelfcircle/shelfcircle/app/entity"
	"github.com/shelfcircle/shelfcircle/app/repository"
)

var (
	ErrBookNotLendable = errors.New("book does not exist, is not yours or is not available")
	ErrBorrowerUnknown = errors.New("borrower does not exist")
	ErrSelfLoan        = errors.New("cannot lend a book to yourself")
	ErrLoanNotFound    = errors.New("loan does not exist or is not yours")
	// ErrAlreadyReturned is a soft signal: the loan is already in its
	// terminal state and nothing was changed.
	ErrAlreadyReturned = errors.New("loan has already been marked as returned")
)

type lendingBookRepository interface {
	FindByID(ctx context.Context, id uint64) (*entity.Book, error)
	ListAvailableByOwner(ctx context.Context, ownerID uint64) ([]*entity.Book, error)
}

type lendingLoanRepository interface {
	FindByIDForLender(ctx context.Context, id, lenderID uint64) (*entity.Loan, error)
	ListActiveByLender(ctx context.Context, lenderID uint64) ([]*entity.Loan, error)
	ListActiveByBorrower(ctx context.Context, borrowerID uint64) ([]*entity.Loan, error)
	ListByLender(ctx context.Context, lenderID uint64) ([]*entity.Loan, error)
	ListByBorrower(ctx context.Context, borrowerID uint64) ([]*entity.Loan, error)
}

type lendingUserRepository interface {
	FindByUsername(ctx context.Context, username string) (*entity.User, error)
}

// LendingService creates loans and processes returns. The loan row and the
// book state always move together inside one transaction; a loan without
// the matching book state (or vice versa) must never be observable.
type LendingService struct {
	db       *sql.DB
	bookRepo lendingBookRepository
	loanRepo lendingLoanRepository
	userRepo lendingUserRepository
	now      func() time.Time
}

func NewLendingService(db *sql.DB, bookRepo lendingBookRepository, loanRepo lendingLoanRepository, userRepo lendingUserRepository) *LendingService {
	return &LendingService{
		db:       db,
		bookRepo: bookRepo,
		loanRepo: loanRepo,
		userRepo: userRepo,
		now:      time.Now,
	}
}

// Lend hands bookID over to the user named borrowerUsername. The book must
// belong to the lender and be available, and the borrower must be a
// different, existing user.
func (s *LendingService) Lend(ctx context.Context, bookID uint64, borrowerUsername string, lenderID uint64) (*entity.Loan, error) {
	book, err := s.bookRepo.FindByID(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if book == nil || book.OwnerID != lenderID || book.State != entity.BookStateAvailable {
		return nil, ErrBookNotLendable
	}

	borrower, err := s.userRepo.FindByUsername(ctx, borrowerUsername)
	if err != nil {
		return nil, err
	}
	if borrower == nil {
		return nil, ErrBorrowerUnknown
	}
	if borrower.ID == lenderID {
		return nil, ErrSelfLoan
	}

	loan := &entity.Loan{
		BookID:     book.ID,
		BorrowerID: borrower.ID,
		LenderID:   lenderID,
		LoanedAt:   s.now(),
	}

	err = repository.WithTx(ctx, s.db, nil, func(tx repository.DBTX) error {
		// The conditional update is the real guard: the pre-check above ran
		// outside the transaction, and a concurrent lend may have taken the
		// book since.
		moved, err := repository.NewBookRepository(tx).TransitionState(ctx, book.ID, entity.BookStateAvailable, entity.BookStateLoaned)
		if err != nil {
			return err
		}
		if !moved {
			return ErrBookNotLendable
		}
		return repository.NewLoanRepository(tx).Create(ctx, loan)
	})
	if err != nil {
		return nil, err
	}

	return loan, nil
}

// Return marks the loan returned and frees the book. Only the lender may do
// this. Returning an already-returned loan changes nothing and reports
// ErrAlreadyReturned alongside the loan.
func (s *LendingService) Return(ctx context.Context, loanID, lenderID uint64, comment string) (*entity.Loan, error) {
	loan, err := s.loanRepo.FindByIDForLender(ctx, loanID, lenderID)
	if err != nil {
		return nil, err
	}
	if loan == nil {
		return nil, ErrLoanNotFound
	}

	if loan.Returned {
		return loan, ErrAlreadyReturned
	}

	var returnComment sql.NullString
	if comment != "" {
		returnComment = sql.NullString{String: comment, Valid: true}
	}

	err = repository.WithTx(ctx, s.db, nil, func(tx repository.DBTX) error {
		if err := repository.NewLoanRepository(tx).MarkReturned(ctx, loan.ID, returnComment); err != nil {
			return err
		}
		return repository.NewBookRepository(tx).UpdateState(ctx, loan.BookID, entity.BookStateAvailable)
	})
	if err != nil {
		return nil, err
	}

	loan.Returned = true
	loan.ReturnComment = returnComment
	return loan, nil
}

// ActiveLoans lists the open loans the user made and received.
func (s *LendingService) ActiveLoans(ctx context.Context, userID uint64) (made, received []*entity.Loan, err error) {
	made, err = s.loanRepo.ListActiveByLender(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	received, err = s.loanRepo.ListActiveByBorrower(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	return made, received, nil
}

// History lists every loan the user was part of, newest first.
func (s *LendingService) History(ctx context.Context, userID uint64) (made, received []*entity.Loan, err error) {
	made, err = s.loanRepo.ListByLender(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	received, err = s.loanRepo.ListByBorrower(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	return made, received, nil
}

// LendableBooks lists the user's books that can be lent right now.
func (s *LendingService) LendableBooks(ctx context.Context, userID uint64) ([]*entity.Book, error) {
	return s.bookRepo.ListAvailableByOwner(ctx, userID)
}
