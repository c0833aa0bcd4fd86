package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shelfcircle/shelfcircle/app/entity"
)

var (
	ErrBookNotFound   = errors.New("book not found")
	ErrForbidden      = errors.New("you do not own this book")
	ErrDuplicateISBN  = errors.New("a book with this ISBN is already registered")
	ErrBookValidation = errors.New("invalid book data")
	// ErrBookLoaned guards manual state edits: "loaned" is driven by the
	// lending service, and a loaned book cannot be edited into another
	// state while the loan is open.
	ErrBookLoaned = errors.New("book is currently loaned out")
)

const maxBookFieldLen = 255

type catalogBookRepository interface {
	Create(ctx context.Context, book *entity.Book) error
	FindByID(ctx context.Context, id uint64) (*entity.Book, error)
	ListByOwner(ctx context.Context, ownerID uint64) ([]*entity.Book, error)
	Update(ctx context.Context, book *entity.Book) error
	ExistsByISBN(ctx context.Context, isbn string) (bool, error)
}

type catalogLoanRepository interface {
	FindActiveByBook(ctx context.Context, bookID uint64) (*entity.Loan, error)
}

// CatalogService manages a user's own book catalog.
type CatalogService struct {
	bookRepo catalogBookRepository
	loanRepo catalogLoanRepository
	now      func() time.Time
}

func NewCatalogService(bookRepo catalogBookRepository, loanRepo catalogLoanRepository) *CatalogService {
	return &CatalogService{bookRepo: bookRepo, loanRepo: loanRepo, now: time.Now}
}

type BookInput struct {
	Title       string
	Author      string
	Publisher   string
	ISBN        string
	Description string
}

func (s *CatalogService) Create(ctx context.Context, ownerID uint64, in BookInput) (*entity.Book, error) {
	book, err := s.validate(in)
	if err != nil {
		return nil, err
	}

	if book.ISBN.Valid {
		taken, err := s.bookRepo.ExistsByISBN(ctx, book.ISBN.String)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, ErrDuplicateISBN
		}
	}

	now := s.now()
	book.OwnerID = ownerID
	book.State = entity.BookStateAvailable
	book.CreatedAt = now
	book.UpdatedAt = now

	if err := s.bookRepo.Create(ctx, book); err != nil {
		return nil, err
	}
	return book, nil
}

func (s *CatalogService) Get(ctx context.Context, bookID, ownerID uint64) (*entity.Book, error) {
	book, err := s.bookRepo.FindByID(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if book == nil {
		return nil, ErrBookNotFound
	}
	if book.OwnerID != ownerID {
		return nil, ErrForbidden
	}
	return book, nil
}

func (s *CatalogService) List(ctx context.Context, ownerID uint64) ([]*entity.Book, error) {
	return s.bookRepo.ListByOwner(ctx, ownerID)
}

func (s *CatalogService) Update(ctx context.Context, bookID, ownerID uint64, in BookInput) (*entity.Book, error) {
	book, err := s.Get(ctx, bookID, ownerID)
	if err != nil {
		return nil, err
	}

	updated, err := s.validate(in)
	if err != nil {
		return nil, err
	}

	if updated.ISBN.Valid && updated.ISBN.String != book.ISBN.String {
		taken, err := s.bookRepo.ExistsByISBN(ctx, updated.ISBN.String)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, ErrDuplicateISBN
		}
	}

	book.Title = updated.Title
	book.Author = updated.Author
	book.Publisher = updated.Publisher
	book.ISBN = updated.ISBN
	book.Description = updated.Description

	if err := s.bookRepo.Update(ctx, book); err != nil {
		return nil, err
	}
	return book, nil
}

// SetAvailability toggles a book between available and unavailable. Loaned
// books cannot be toggled; the lending service owns that state.
func (s *CatalogService) SetAvailability(ctx context.Context, bookID, ownerID uint64, available bool) (*entity.Book, error) {
	book, err := s.Get(ctx, bookID, ownerID)
	if err != nil {
		return nil, err
	}
	if book.State == entity.BookStateLoaned {
		return nil, ErrBookLoaned
	}

	// The loans table is the authority: an open loan blocks the toggle even
	// if the state column disagrees.
	active, err := s.loanRepo.FindActiveByBook(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, ErrBookLoaned
	}

	if available {
		book.State = entity.BookStateAvailable
	} else {
		book.State = entity.BookStateUnavailable
	}

	if err := s.bookRepo.Update(ctx, book); err != nil {
		return nil, err
	}
	return book, nil
}

func (s *CatalogService) validate(in BookInput) (*entity.Book, error) {
	title := strings.TrimSpace(in.Title)
	author := strings.TrimSpace(in.Author)

	// Limits count characters, matching the utf8mb4 VARCHAR(255) columns.
	switch {
	case title == "":
		return nil, fmt.Errorf("%w: title is required", ErrBookValidation)
	case utf8.RuneCountInString(title) > maxBookFieldLen:
		return nil, fmt.Errorf("%w: title exceeds %d characters", ErrBookValidation, maxBookFieldLen)
	case author == "":
		return nil, fmt.Errorf("%w: author is required", ErrBookValidation)
	case utf8.RuneCountInString(author) > maxBookFieldLen:
		return nil, fmt.Errorf("%w: author exceeds %d characters", ErrBookValidation, maxBookFieldLen)
	}

	book := &entity.Book{Title: title, Author: author}

	if publisher := strings.TrimSpace(in.Publisher); publisher != "" {
		if utf8.RuneCountInString(publisher) > maxBookFieldLen {
			return nil, fmt.Errorf("%w: publisher exceeds %d characters", ErrBookValidation, maxBookFieldLen)
		}
		book.Publisher = sql.NullString{String: publisher, Valid: true}
	}

	if isbn := NormalizeISBN(in.ISBN); isbn != "" {
		if utf8.RuneCountInString(isbn) > maxISBNLen {
			return nil, fmt.Errorf("%w: ISBN exceeds %d characters", ErrBookValidation, maxISBNLen)
		}
		book.ISBN = sql.NullString{String: isbn, Valid: true}
	}

	if description := strings.TrimSpace(in.Description); description != "" {
		book.Description = sql.NullString{String: description, Valid: true}
	}

	return book, nil
}

const maxISBNLen = 13

// NormalizeISBN strips hyphens and spaces; comparison and storage both use
// the stripped form.
func NormalizeISBN(isbn string) string {
	isbn = strings.TrimSpace(isbn)
	isbn = strings.ReplaceAll(isbn, "-", "")
	return strings.ReplaceAll(isbn, " ", "")
}
