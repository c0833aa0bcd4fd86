package repository

import (
	"context"
	"database/sql"

	"github.com/shelfcircle/shelfcircle/app/entity"
)

type TokenRepository struct {
	db DBTX
}

func NewTokenRepository(db DBTX) *TokenRepository {
	return &TokenRepository{db: db}
}

const tokenSelectColumns = `id, user_id, kind, token, new_email, created_at, expires_at, used`

func (r *TokenRepository) Create(ctx context.Context, token *entity.SecurityToken) error {
	query := `
		INSERT INTO security_tokens (user_id, kind, token, new_email, created_at, expires_at, used)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.ExecContext(ctx, query,
		token.UserID,
		token.Kind,
		token.Token,
		token.NewEmail,
		token.CreatedAt,
		token.ExpiresAt,
		token.Used,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	token.ID = uint64(id)
	return nil
}

// FindByValue looks up a token by its raw value. The token column is
// uniquely indexed; this is the bearer-secret lookup.
func (r *TokenRepository) FindByValue(ctx context.Context, value string, kind entity.TokenKind) (*entity.SecurityToken, error) {
	query := `
		SELECT ` + tokenSelectColumns + `
		FROM security_tokens WHERE token = ? AND kind = ?
	`
	token := &entity.SecurityToken{}
	err := r.db.QueryRowContext(ctx, query, value, kind).Scan(
		&token.ID,
		&token.UserID,
		&token.Kind,
		&token.Token,
		&token.NewEmail,
		&token.CreatedAt,
		&token.ExpiresAt,
		&token.Used,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return token, nil
}

func (r *TokenRepository) ExistsByValue(ctx context.Context, value string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM security_tokens WHERE token = ?)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, value).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// InvalidateActive marks every unused, unexpired token of the given kind for
// the user as used. Called before inserting a replacement so at most one
// token per (user, kind) stays live.
func (r *TokenRepository) InvalidateActive(ctx context.Context, userID uint64, kind entity.TokenKind) error {
	query := `UPDATE security_tokens SET used = TRUE WHERE user_id = ? AND kind = ? AND used = FALSE AND expires_at > NOW()`
	_, err := r.db.ExecContext(ctx, query, userID, kind)
	return err
}

func (r *TokenRepository) MarkUsed(ctx context.Context, tokenID uint64) error {
	query := `UPDATE security_tokens SET used = TRUE WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, tokenID)
	return err
}
