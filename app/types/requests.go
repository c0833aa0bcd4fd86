package types

import (
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

func bind[T any](ctx echo.Context) (*T, error) {
	var body T
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}
	return &body, nil
}

type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=150"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Phone    string `json:"phone" validate:"omitempty,max=15"`
	City     string `json:"city" validate:"required,max=100"`
	Country  string `json:"country" validate:"required,max=100"`
}

func NewRegisterRequestFromContext(ctx echo.Context) (*RegisterRequest, error) {
	return bind[RegisterRequest](ctx)
}

func (r *RegisterRequest) Validate() error {
	return validate.Struct(r)
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func NewLoginRequestFromContext(ctx echo.Context) (*LoginRequest, error) {
	return bind[LoginRequest](ctx)
}

func (r *LoginRequest) Validate() error {
	return validate.Struct(r)
}

type PasswordResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func NewPasswordResetRequestFromContext(ctx echo.Context) (*PasswordResetRequest, error) {
	return bind[PasswordResetRequest](ctx)
}

func (r *PasswordResetRequest) Validate() error {
	return validate.Struct(r)
}

// PasswordResetConfirmRequest carries only the new password; the token
// value travels in the URL path, as in the emailed link.
type PasswordResetConfirmRequest struct {
	NewPassword string `json:"new_password" validate:"required"`
}

func NewPasswordResetConfirmRequestFromContext(ctx echo.Context) (*PasswordResetConfirmRequest, error) {
	return bind[PasswordResetConfirmRequest](ctx)
}

func (r *PasswordResetConfirmRequest) Validate() error {
	return validate.Struct(r)
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required"`
}

func NewChangePasswordRequestFromContext(ctx echo.Context) (*ChangePasswordRequest, error) {
	return bind[ChangePasswordRequest](ctx)
}

func (r *ChangePasswordRequest) Validate() error {
	return validate.Struct(r)
}

type EmailChangeRequest struct {
	NewEmail string `json:"new_email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func NewEmailChangeRequestFromContext(ctx echo.Context) (*EmailChangeRequest, error) {
	return bind[EmailChangeRequest](ctx)
}

func (r *EmailChangeRequest) Validate() error {
	return validate.Struct(r)
}

type BookRequest struct {
	Title       string `json:"title" validate:"required,max=255"`
	Author      string `json:"author" validate:"required,max=255"`
	Publisher   string `json:"publisher" validate:"omitempty,max=255"`
	ISBN        string `json:"isbn" validate:"omitempty,max=20"`
	Description string `json:"description" validate:"omitempty"`
}

func NewBookRequestFromContext(ctx echo.Context) (*BookRequest, error) {
	return bind[BookRequest](ctx)
}

func (r *BookRequest) Validate() error {
	return validate.Struct(r)
}

type BookAvailabilityRequest struct {
	Available *bool `json:"available" validate:"required"`
}

func NewBookAvailabilityRequestFromContext(ctx echo.Context) (*BookAvailabilityRequest, error) {
	return bind[BookAvailabilityRequest](ctx)
}

func (r *BookAvailabilityRequest) Validate() error {
	return validate.Struct(r)
}

type LendRequest struct {
	BookID   uint64 `json:"book_id" validate:"required"`
	Borrower string `json:"borrower" validate:"required"`
}

func NewLendRequestFromContext(ctx echo.Context) (*LendRequest, error) {
	return bind[LendRequest](ctx)
}

func (r *LendRequest) Validate() error {
	return validate.Struct(r)
}

type ReturnRequest struct {
	Comment string `json:"comment" validate:"omitempty"`
}

func NewReturnRequestFromContext(ctx echo.Context) (*ReturnRequest, error) {
	return bind[ReturnRequest](ctx)
}

func (r *ReturnRequest) Validate() error {
	return validate.Struct(r)
}
