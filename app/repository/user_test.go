package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/shelfcircle/shelfcircle/app/entity"
	"github.com/shelfcircle/shelfcircle/app/repository"
)

const (
	insertUserQuery        = `(?s)INSERT INTO users \(username, email, password_hash, created_at, updated_at\)\s+VALUES \(\?, \?, \?, \?, \?\)`
	findUserByEmailQuery   = `(?s)SELECT id, username, email, password_hash, created_at, updated_at\s+FROM users WHERE LOWER\(email\) = LOWER\(\?\)`
	emailInUseByOtherQuery = `SELECT EXISTS\(SELECT 1 FROM users WHERE LOWER\(email\) = LOWER\(\?\) AND id <> \?\)`
)

var userColumns = []string{
	"id",
	"username",
	"email",
	"password_hash",
	"created_at",
	"updated_at",
}

func TestUserRepository_Create(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	repo := repository.NewUserRepository(db)
	now := time.Now()
	user := &entity.User{
		Username:     "maria",
		Email:        "maria@example.com",
		PasswordHash: "hash",
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	mock.ExpectExec(insertUserQuery).
		WithArgs("maria", "maria@example.com", "hash", now, now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if user.ID != 1 {
		t.Fatalf("expected ID 1, got %d", user.ID)
	}
}

func TestUserRepository_FindByEmail_NotFoundIsNil(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	repo := repository.NewUserRepository(db)
	mock.ExpectQuery(findUserByEmailQuery).
		WithArgs("nobody@example.com").
		WillReturnRows(sqlmock.NewRows(userColumns))

	user, err := repo.FindByEmail(context.Background(), "nobody@example.com")
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if user != nil {
		t.Fatal("expected nil for missing user")
	}
}

func TestUserRepository_EmailInUseByOther(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	repo := repository.NewUserRepository(db)
	mock.ExpectQuery(emailInUseByOtherQuery).
		WithArgs("maria@example.com", uint64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	inUse, err := repo.EmailInUseByOther(context.Background(), "maria@example.com", 1)
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if !inUse {
		t.Fatal("expected the address to be reported in use")
	}
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := repository.WithTx(context.Background(), db, nil, func(tx repository.DBTX) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected the inner error, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestWithTx_CommitsOnSuccess(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectCommit()

	if err := repository.WithTx(context.Background(), db, nil, func(tx repository.DBTX) error {
		return nil
	}); err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
