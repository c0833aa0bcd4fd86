package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/shelfcircle/shelfcircle/app/entity"
	"github.com/shelfcircle/shelfcircle/app/mail"
	"github.com/shelfcircle/shelfcircle/app/repository"
	"github.com/shelfcircle/shelfcircle/config"
)

var (
	ErrUserExists         = errors.New("username or email already in use")
	ErrUserNotFound       = errors.New("user not found")
	ErrWrongCredential    = errors.New("wrong credentials")
	ErrEmailAlreadyInUse  = errors.New("email address already in use")
	ErrWeakPassword       = errors.New("password does not meet policy requirements")
	ErrNotificationFailed = errors.New("could not deliver notification email")
)

const (
	passwordResetConfirmPath = "/auth/password-reset/confirm"
	emailChangeConfirmPath   = "/auth/email-change/confirm"
)

type accountUserRepository interface {
	Create(ctx context.Context, user *entity.User) error
	FindByID(ctx context.Context, id uint64) (*entity.User, error)
	FindByUsername(ctx context.Context, username string) (*entity.User, error)
	FindByEmail(ctx context.Context, email string) (*entity.User, error)
	EmailInUseByOther(ctx context.Context, email string, excludeID uint64) (bool, error)
	UpdatePasswordHash(ctx context.Context, userID uint64, hash string) error
	UpdateEmail(ctx context.Context, userID uint64, email string) error
}

type accountProfileRepository interface {
	FindByUserID(ctx context.Context, userID uint64) (*entity.Profile, error)
	SetSessionInvalidatedAt(ctx context.Context, userID uint64, at time.Time) error
}

type tokenEngine interface {
	Create(ctx context.Context, userID uint64, kind entity.TokenKind, newEmail string) (*entity.SecurityToken, error)
	Validate(ctx context.Context, value string, kind entity.TokenKind) (*entity.SecurityToken, error)
	MarkUsed(ctx context.Context, token *entity.SecurityToken) error
}

// AccountService orchestrates registration, login and the self-service
// security flows: password reset by emailed token, password change with
// re-authentication, email change by emailed token, and log-out-everywhere.
type AccountService struct {
	db          *sql.DB
	userRepo    accountUserRepository
	profileRepo accountProfileRepository
	tokens      tokenEngine
	sessions    *SessionService
	mailer      mail.Mailer
	cfg         *config.Config
	now         func() time.Time
}

func NewAccountService(
	db *sql.DB,
	userRepo accountUserRepository,
	profileRepo accountProfileRepository,
	tokens tokenEngine,
	sessions *SessionService,
	mailer mail.Mailer,
	cfg *config.Config,
) *AccountService {
	return &AccountService{
		db:          db,
		userRepo:    userRepo,
		profileRepo: profileRepo,
		tokens:      tokens,
		sessions:    sessions,
		mailer:      mailer,
		cfg:         cfg,
		now:         time.Now,
	}
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
	Phone    string
	City     string
	Country  string
}

func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*entity.User, error) {
	existing, err := s.userRepo.FindByUsername(ctx, in.Username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrUserExists
	}

	existing, err = s.userRepo.FindByEmail(ctx, in.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailAlreadyInUse
	}

	if err := s.cfg.PasswordPolicy.Validate(in.Password); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrWeakPassword, err.Error())
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	now := s.now()
	user := &entity.User{
		Username:     in.Username,
		Email:        strings.TrimSpace(in.Email),
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = repository.WithTx(ctx, s.db, nil, func(tx repository.DBTX) error {
		if err := repository.NewUserRepository(tx).Create(ctx, user); err != nil {
			return err
		}

		profile := &entity.Profile{
			UserID:  user.ID,
			City:    in.City,
			Country: in.Country,
		}
		if in.Phone != "" {
			profile.Phone = sql.NullString{String: in.Phone, Valid: true}
		}
		return repository.NewProfileRepository(tx).Create(ctx, profile)
	})
	if err != nil {
		return nil, err
	}

	return user, nil
}

// Login verifies the credential and issues a session token. Unknown
// usernames and wrong passwords share one error.
func (s *AccountService) Login(ctx context.Context, username, password string) (*entity.User, string, error) {
	user, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		return nil, "", err
	}
	if user == nil {
		return nil, "", ErrWrongCredential
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, "", ErrWrongCredential
	}

	accessToken, err := s.sessions.Issue(user)
	if err != nil {
		return nil, "", err
	}
	return user, accessToken, nil
}

// RequestPasswordReset creates a reset token and emails the confirmation
// link. For an unknown email it returns (nil, nil): the caller must render
// the same generic message either way so the response does not reveal
// whether an account exists.
func (s *AccountService) RequestPasswordReset(ctx context.Context, email string) (*entity.SecurityToken, error) {
	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, nil
	}

	token, err := s.tokens.Create(ctx, user.ID, entity.TokenKindPasswordReset, "")
	if err != nil {
		return nil, err
	}

	data := mail.Data{
		Username:  user.Username,
		ActionURL: s.actionURL(passwordResetConfirmPath, token.Token),
	}
	if err := s.mailer.Send(mail.KindPasswordResetRequest, user.Email, data); err != nil {
		logrus.WithError(err).WithField("user_id", user.ID).Error("Password reset mail delivery failed")
		return nil, fmt.Errorf("%w: %s", ErrNotificationFailed, err.Error())
	}

	return token, nil
}

// ConfirmPasswordReset consumes a reset token and sets the new credential.
// The confirmation mail afterwards is best-effort: the password change is
// not rolled back if it cannot be delivered.
func (s *AccountService) ConfirmPasswordReset(ctx context.Context, tokenValue, newPassword string) (*entity.User, error) {
	token, err := s.tokens.Validate(ctx, tokenValue, entity.TokenKindPasswordReset)
	if err != nil {
		return nil, err
	}

	user, err := s.userRepo.FindByID(ctx, token.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	if err := s.cfg.PasswordPolicy.Validate(newPassword); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrWeakPassword, err.Error())
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	if err := s.userRepo.UpdatePasswordHash(ctx, user.ID, string(hash)); err != nil {
		return nil, err
	}

	if err := s.tokens.MarkUsed(ctx, token); err != nil {
		return nil, err
	}

	if err := s.mailer.Send(mail.KindPasswordChanged, user.Email, mail.Data{Username: user.Username}); err != nil {
		logrus.WithError(err).WithField("user_id", user.ID).Warn("Password changed confirmation mail delivery failed")
	}

	return user, nil
}

// ChangePassword is the "I know my current password" fast path: no token,
// but the current credential must match.
func (s *AccountService) ChangePassword(ctx context.Context, userID uint64, oldPassword, newPassword string) error {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(oldPassword)); err != nil {
		return ErrWrongCredential
	}

	if err := s.cfg.PasswordPolicy.Validate(newPassword); err != nil {
		return fmt.Errorf("%w: %s", ErrWeakPassword, err.Error())
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	if err := s.userRepo.UpdatePasswordHash(ctx, user.ID, string(hash)); err != nil {
		return err
	}

	if err := s.mailer.Send(mail.KindPasswordChanged, user.Email, mail.Data{Username: user.Username}); err != nil {
		logrus.WithError(err).WithField("user_id", user.ID).Warn("Password changed confirmation mail delivery failed")
	}

	return nil
}

// RequestEmailChange re-verifies the credential, reserves the pending email
// in a token and mails the confirmation link to the NEW address: whoever
// controls that mailbox must prove receipt.
func (s *AccountService) RequestEmailChange(ctx context.Context, userID uint64, newEmail, password string) (*entity.SecurityToken, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrWrongCredential
	}

	newEmail = strings.TrimSpace(newEmail)
	inUse, err := s.userRepo.EmailInUseByOther(ctx, newEmail, user.ID)
	if err != nil {
		return nil, err
	}
	if inUse {
		return nil, ErrEmailAlreadyInUse
	}

	token, err := s.tokens.Create(ctx, user.ID, entity.TokenKindEmailChange, newEmail)
	if err != nil {
		return nil, err
	}

	data := mail.Data{
		Username:  user.Username,
		ActionURL: s.actionURL(emailChangeConfirmPath, token.Token),
		NewEmail:  newEmail,
	}
	if err := s.mailer.Send(mail.KindEmailChangeRequest, newEmail, data); err != nil {
		logrus.WithError(err).WithField("user_id", user.ID).Error("Email change request mail delivery failed")
		return nil, fmt.Errorf("%w: %s", ErrNotificationFailed, err.Error())
	}

	return token, nil
}

// ConfirmEmailChange applies the pending email carried by the token. The
// uniqueness check runs again here: the address may have been claimed since
// the token was issued. In that case the token stays unconsumed so the user
// can retry or abandon cleanly; expiry still retires it within 24h.
func (s *AccountService) ConfirmEmailChange(ctx context.Context, tokenValue string) (*entity.User, string, string, error) {
	token, err := s.tokens.Validate(ctx, tokenValue, entity.TokenKindEmailChange)
	if err != nil {
		return nil, "", "", err
	}

	user, err := s.userRepo.FindByID(ctx, token.UserID)
	if err != nil {
		return nil, "", "", err
	}
	if user == nil {
		return nil, "", "", ErrUserNotFound
	}

	oldEmail := user.Email
	newEmail := token.NewEmail.String

	inUse, err := s.userRepo.EmailInUseByOther(ctx, newEmail, user.ID)
	if err != nil {
		return nil, "", "", err
	}
	if inUse {
		return nil, "", "", ErrEmailAlreadyInUse
	}

	if err := s.userRepo.UpdateEmail(ctx, user.ID, newEmail); err != nil {
		return nil, "", "", err
	}
	user.Email = newEmail

	if err := s.tokens.MarkUsed(ctx, token); err != nil {
		return nil, "", "", err
	}

	data := mail.Data{
		Username: user.Username,
		OldEmail: oldEmail,
		NewEmail: newEmail,
	}
	if err := s.mailer.Send(mail.KindEmailChanged, newEmail, data); err != nil {
		logrus.WithError(err).WithField("user_id", user.ID).Warn("Email changed confirmation mail delivery failed")
	}

	return user, oldEmail, newEmail, nil
}

// LogoutAllDevices stamps the session invalidation marker and hands the
// acting client a fresh token, so every session issued before this moment
// goes stale on its next request while the current one carries on.
func (s *AccountService) LogoutAllDevices(ctx context.Context, userID uint64) (string, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", ErrUserNotFound
	}

	// Truncated to seconds so the marker never lands after the issued-at
	// claim of the replacement token, which carries no sub-second part.
	if err := s.profileRepo.SetSessionInvalidatedAt(ctx, userID, s.now().Truncate(time.Second)); err != nil {
		return "", err
	}

	return s.sessions.Issue(user)
}

// SessionInvalidatedAt exposes the gate marker for the auth middleware.
func (s *AccountService) SessionInvalidatedAt(ctx context.Context, userID uint64) (sql.NullTime, error) {
	profile, err := s.profileRepo.FindByUserID(ctx, userID)
	if err != nil {
		return sql.NullTime{}, err
	}
	if profile == nil {
		return sql.NullTime{}, nil
	}
	return profile.SessionInvalidatedAt, nil
}

func (s *AccountService) actionURL(path, tokenValue string) string {
	return strings.TrimRight(s.cfg.BaseURL, "/") + path + "/" + tokenValue
}
