package repository

import (
	"context"
	"database/sql"

	"github.com/shelfcircle/shelfcircle/app/entity"
)

type LoanRepository struct {
	db DBTX
}

func NewLoanRepository(db DBTX) *LoanRepository {
	return &LoanRepository{db: db}
}

const loanSelectColumns = `id, book_id, borrower_id, lender_id, loaned_at, returned, return_comment`

func (r *LoanRepository) Create(ctx context.Context, loan *entity.Loan) error {
	query := `
		INSERT INTO loans (book_id, borrower_id, lender_id, loaned_at, returned, return_comment)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.ExecContext(ctx, query,
		loan.BookID,
		loan.BorrowerID,
		loan.LenderID,
		loan.LoanedAt,
		loan.Returned,
		loan.ReturnComment,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	loan.ID = uint64(id)
	return nil
}

// FindByIDForLender returns the loan only if lenderID made it. Absence and
// lack of ownership are indistinguishable to the caller, matching the
// "does not exist or is not yours" surface.
func (r *LoanRepository) FindByIDForLender(ctx context.Context, id, lenderID uint64) (*entity.Loan, error) {
	query := `
		SELECT ` + loanSelectColumns + `
		FROM loans WHERE id = ? AND lender_id = ?
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id, lenderID))
}

func (r *LoanRepository) FindActiveByBook(ctx context.Context, bookID uint64) (*entity.Loan, error) {
	query := `
		SELECT ` + loanSelectColumns + `
		FROM loans WHERE book_id = ? AND returned = FALSE
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, bookID))
}

func (r *LoanRepository) ListActiveByLender(ctx context.Context, lenderID uint64) ([]*entity.Loan, error) {
	query := `
		SELECT ` + loanSelectColumns + `
		FROM loans WHERE lender_id = ? AND returned = FALSE ORDER BY loaned_at DESC
	`
	return r.list(ctx, query, lenderID)
}

func (r *LoanRepository) ListActiveByBorrower(ctx context.Context, borrowerID uint64) ([]*entity.Loan, error) {
	query := `
		SELECT ` + loanSelectColumns + `
		FROM loans WHERE borrower_id = ? AND returned = FALSE ORDER BY loaned_at DESC
	`
	return r.list(ctx, query, borrowerID)
}

func (r *LoanRepository) ListByLender(ctx context.Context, lenderID uint64) ([]*entity.Loan, error) {
	query := `
		SELECT ` + loanSelectColumns + `
		FROM loans WHERE lender_id = ? ORDER BY loaned_at DESC
	`
	return r.list(ctx, query, lenderID)
}

func (r *LoanRepository) ListByBorrower(ctx context.Context, borrowerID uint64) ([]*entity.Loan, error) {
	query := `
		SELECT ` + loanSelectColumns + `
		FROM loans WHERE borrower_id = ? ORDER BY loaned_at DESC
	`
	return r.list(ctx, query, borrowerID)
}

func (r *LoanRepository) MarkReturned(ctx context.Context, loanID uint64, comment sql.NullString) error {
	query := `UPDATE loans SET returned = TRUE, return_comment = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, comment, loanID)
	return err
}

func (r *LoanRepository) list(ctx context.Context, query string, args ...any) ([]*entity.Loan, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var loans []*entity.Loan
	for rows.Next() {
		loan := &entity.Loan{}
		if err := rows.Scan(
			&loan.ID,
			&loan.BookID,
			&loan.BorrowerID,
			&loan.LenderID,
			&loan.LoanedAt,
			&loan.Returned,
			&loan.ReturnComment,
		); err != nil {
			return nil, err
		}
		loans = append(loans, loan)
	}
	return loans, rows.Err()
}

func (r *LoanRepository) scanOne(row *sql.Row) (*entity.Loan, error) {
	loan := &entity.Loan{}
	err := row.Scan(
		&loan.ID,
		&loan.BookID,
		&loan.BorrowerID,
		&loan.LenderID,
		&loan.LoanedAt,
		&loan.Returned,
		&loan.ReturnComment,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return loan, nil
}
