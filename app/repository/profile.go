package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/shelfcircle/shelfcircle/app/entity"
)

type ProfileRepository struct {
	db DBTX
}

func NewProfileRepository(db DBTX) *ProfileRepository {
	return &ProfileRepository{db: db}
}

func (r *ProfileRepository) Create(ctx context.Context, profile *entity.Profile) error {
	query := `
		INSERT INTO profiles (user_id, phone, city, country, session_invalidated_at)
		VALUES (?, ?, ?, ?, ?)
	`
	result, err := r.db.ExecContext(ctx, query,
		profile.UserID,
		profile.Phone,
		profile.City,
		profile.Country,
		profile.SessionInvalidatedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	profile.ID = uint64(id)
	return nil
}

func (r *ProfileRepository) FindByUserID(ctx context.Context, userID uint64) (*entity.Profile, error) {
	query := `
		SELECT id, user_id, phone, city, country, session_invalidated_at
		FROM profiles WHERE user_id = ?
	`
	profile := &entity.Profile{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&profile.ID,
		&profile.UserID,
		&profile.Phone,
		&profile.City,
		&profile.Country,
		&profile.SessionInvalidatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return profile, nil
}

// SetSessionInvalidatedAt stamps the session cutover marker. Sessions issued
// before at are treated as stale by the auth middleware.
func (r *ProfileRepository) SetSessionInvalidatedAt(ctx context.Context, userID uint64, at time.Time) error {
	query := `UPDATE profiles SET session_invalidated_at = ? WHERE user_id = ?`
	_, err := r.db.ExecContext(ctx, query, at, userID)
	return err
}
