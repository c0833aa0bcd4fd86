package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/shelfcircle/shelfcircle/app/entity"
	"github.com/shelfcircle/shelfcircle/app/repository"
	"github.com/shelfcircle/shelfcircle/config"
)

// ErrInvalidOrExpiredToken covers absent, used and expired tokens alike.
// The cases are deliberately not distinguishable from the outside.
var ErrInvalidOrExpiredToken = errors.New("invalid or expired token")

const (
	// tokenEntropyBytes of CSPRNG output per token; base64url-encoded this
	// yields a 43-character value.
	tokenEntropyBytes = 32
	// maxTokenAttempts bounds the regenerate-on-collision loop. A collision
	// on 32 random bytes is astronomically unlikely; the bound exists so a
	// broken entropy source cannot spin forever.
	maxTokenAttempts = 5
)

type tokenLookup interface {
	FindByValue(ctx context.Context, value string, kind entity.TokenKind) (*entity.SecurityToken, error)
	MarkUsed(ctx context.Context, tokenID uint64) error
}

// TokenService owns the lifecycle of single-use security tokens: creation
// (which retires all still-active predecessors of the same kind), validation
// and consumption.
type TokenService struct {
	db        *sql.DB
	tokenRepo tokenLookup
	cfg       *config.Config
	now       func() time.Time
}

func NewTokenService(db *sql.DB, tokenRepo tokenLookup, cfg *config.Config) *TokenService {
	return &TokenService{
		db:        db,
		tokenRepo: tokenRepo,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Create issues a fresh token for the user. Retiring the predecessors and
// inserting the replacement happen in one serializable transaction so two
// concurrent requests cannot both end up with a live token.
func (s *TokenService) Create(ctx context.Context, userID uint64, kind entity.TokenKind, newEmail string) (*entity.SecurityToken, error) {
	if kind == entity.TokenKindEmailChange && newEmail == "" {
		return nil, errors.New("email change token requires the pending email")
	}

	now := s.now()
	token := &entity.SecurityToken{
		UserID:    userID,
		Kind:      kind,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.SecurityTokenTTL),
	}
	if kind == entity.TokenKindEmailChange {
		token.NewEmail = sql.NullString{String: newEmail, Valid: true}
	}

	opts := &sql.TxOptions{Isolation: sql.LevelSerializable}
	err := repository.WithTx(ctx, s.db, opts, func(tx repository.DBTX) error {
		txTokenRepo := repository.NewTokenRepository(tx)

		if err := txTokenRepo.InvalidateActive(ctx, userID, kind); err != nil {
			return fmt.Errorf("invalidate previous tokens: %w", err)
		}

		for attempt := 0; ; attempt++ {
			value, err := generateTokenValue()
			if err != nil {
				return err
			}
			taken, err := txTokenRepo.ExistsByValue(ctx, value)
			if err != nil {
				return err
			}
			if !taken {
				token.Token = value
				break
			}
			if attempt+1 >= maxTokenAttempts {
				return errors.New("could not generate a unique token value")
			}
		}

		return txTokenRepo.Create(ctx, token)
	})
	if err != nil {
		return nil, err
	}
	return token, nil
}

// Validate resolves a raw token value and checks it is still consumable.
// Absent, used and expired all collapse into ErrInvalidOrExpiredToken.
func (s *TokenService) Validate(ctx context.Context, value string, kind entity.TokenKind) (*entity.SecurityToken, error) {
	token, err := s.tokenRepo.FindByValue(ctx, value, kind)
	if err != nil {
		return nil, err
	}
	if token == nil || !token.Valid(s.now()) {
		return nil, ErrInvalidOrExpiredToken
	}
	return token, nil
}

// MarkUsed consumes the token. Idempotent: marking an already-used token
// used again is a no-op.
func (s *TokenService) MarkUsed(ctx context.Context, token *entity.SecurityToken) error {
	if err := s.tokenRepo.MarkUsed(ctx, token.ID); err != nil {
		return err
	}
	token.Used = true
	return nil
}

func generateTokenValue() (string, error) {
	buf := make([]byte, tokenEntropyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read token entropy: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
