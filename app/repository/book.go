package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/shelfcircle/shelfcircle/app/entity"
)

type BookRepository struct {
	db DBTX
}

func NewBookRepository(db DBTX) *BookRepository {
	return &BookRepository{db: db}
}

const bookSelectColumns = `id, owner_id, title, author, publisher, isbn, description, state, created_at, updated_at`

func (r *BookRepository) Create(ctx context.Context, book *entity.Book) error {
	query := `
		INSERT INTO books (owner_id, title, author, publisher, isbn, description, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.ExecContext(ctx, query,
		book.OwnerID,
		book.Title,
		book.Author,
		book.Publisher,
		book.ISBN,
		book.Description,
		book.State,
		book.CreatedAt,
		book.UpdatedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	book.ID = uint64(id)
	return nil
}

// CreateBatch inserts all books in a single multi-row statement. Used by the
// spreadsheet import, which defers persistence to one batch at the end.
func (r *BookRepository) CreateBatch(ctx context.Context, books []*entity.Book) error {
	if len(books) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO books (owner_id, title, author, publisher, isbn, description, state, created_at, updated_at) VALUES `)
	args := make([]any, 0, len(books)*9)
	for i, book := range books {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			book.OwnerID,
			book.Title,
			book.Author,
			book.Publisher,
			book.ISBN,
			book.Description,
			book.State,
			book.CreatedAt,
			book.UpdatedAt,
		)
	}

	_, err := r.db.ExecContext(ctx, sb.String(), args...)
	return err
}

func (r *BookRepository) FindByID(ctx context.Context, id uint64) (*entity.Book, error) {
	query := `
		SELECT ` + bookSelectColumns + `
		FROM books WHERE id = ?
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *BookRepository) ListByOwner(ctx context.Context, ownerID uint64) ([]*entity.Book, error) {
	query := `
		SELECT ` + bookSelectColumns + `
		FROM books WHERE owner_id = ? ORDER BY title, author
	`
	return r.list(ctx, query, ownerID)
}

func (r *BookRepository) ListAvailableByOwner(ctx context.Context, ownerID uint64) ([]*entity.Book, error) {
	query := `
		SELECT ` + bookSelectColumns + `
		FROM books WHERE owner_id = ? AND state = ? ORDER BY title, author
	`
	return r.list(ctx, query, ownerID, entity.BookStateAvailable)
}

func (r *BookRepository) Update(ctx context.Context, book *entity.Book) error {
	query := `
		UPDATE books SET
			title = ?,
			author = ?,
			publisher = ?,
			isbn = ?,
			description = ?,
			state = ?,
			updated_at = ?
		WHERE id = ?
	`
	book.UpdatedAt = time.Now()
	_, err := r.db.ExecContext(ctx, query,
		book.Title,
		book.Author,
		book.Publisher,
		book.ISBN,
		book.Description,
		book.State,
		book.UpdatedAt,
		book.ID,
	)
	return err
}

func (r *BookRepository) UpdateState(ctx context.Context, bookID uint64, state entity.BookState) error {
	query := `UPDATE books SET state = ?, updated_at = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, state, time.Now(), bookID)
	return err
}

// TransitionState moves the book from one state to another and reports
// whether the row actually changed. A false result means the book was no
// longer in the expected state when the update ran.
func (r *BookRepository) TransitionState(ctx context.Context, bookID uint64, from, to entity.BookState) (bool, error) {
	query := `UPDATE books SET state = ?, updated_at = ? WHERE id = ? AND state = ?`
	result, err := r.db.ExecContext(ctx, query, to, time.Now(), bookID, from)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ExistsByISBN checks the global ISBN namespace (the unique constraint spans
// all owners).
func (r *BookRepository) ExistsByISBN(ctx context.Context, isbn string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM books WHERE isbn = ?)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, isbn).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// ExistsByISBNForOwner scopes the duplicate check to one owner's catalog,
// as the import pipeline requires.
func (r *BookRepository) ExistsByISBNForOwner(ctx context.Context, ownerID uint64, isbn string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM books WHERE owner_id = ? AND isbn = ?)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, ownerID, isbn).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *BookRepository) ExistsByTitleAuthorForOwner(ctx context.Context, ownerID uint64, title, author string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM books WHERE owner_id = ? AND LOWER(title) = LOWER(?) AND LOWER(author) = LOWER(?))`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, ownerID, title, author).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *BookRepository) list(ctx context.Context, query string, args ...any) ([]*entity.Book, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var books []*entity.Book
	for rows.Next() {
		book := &entity.Book{}
		if err := rows.Scan(
			&book.ID,
			&book.OwnerID,
			&book.Title,
			&book.Author,
			&book.Publisher,
			&book.ISBN,
			&book.Description,
			&book.State,
			&book.CreatedAt,
			&book.UpdatedAt,
		); err != nil {
			return nil, err
		}
		books = append(books, book)
	}
	return books, rows.Err()
}

func (r *BookRepository) scanOne(row *sql.Row) (*entity.Book, error) {
	book := &entity.Book{}
	err := row.Scan(
		&book.ID,
		&book.OwnerID,
		&book.Title,
		&book.Author,
		&book.Publisher,
		&book.ISBN,
		&book.Description,
		&book.State,
		&book.CreatedAt,
		&book.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return book, nil
}
