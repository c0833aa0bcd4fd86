package controller

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	httpdto "github.com/shelfcircle/shelfcircle/app/dto/http"
	"github.com/shelfcircle/shelfcircle/app/middleware"
	"github.com/shelfcircle/shelfcircle/app/service"
	"github.com/shelfcircle/shelfcircle/app/types"
	"github.com/shelfcircle/shelfcircle/config"
)

// genericResetMessage is rendered for every password-reset request outcome
// except delivery failure, so the response does not reveal whether the
// address belongs to an account.
const genericResetMessage = "If the address belongs to an account, an email with instructions is on its way"

type AccountController struct {
	accounts *service.AccountService
	cfg      *config.Config
}

func NewAccountController(accounts *service.AccountService, cfg *config.Config) *AccountController {
	return &AccountController{accounts: accounts, cfg: cfg}
}

func (c *AccountController) RequestPasswordReset(ctx echo.Context) error {
	req, err := types.NewPasswordResetRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind password reset request")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid request body"})
	}

	if err = req.Validate(); err != nil {
		logrus.Debug("Password reset request validation failed")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
	}

	logrus.Info("Password reset requested")
	_, err = c.accounts.RequestPasswordReset(ctx.Request().Context(), req.Email)
	if err != nil {
		if errors.Is(err, service.ErrNotificationFailed) {
			logrus.WithError(err).Error("Password reset mail could not be delivered")
			return ctx.JSON(http.StatusBadGateway, httpdto.NewErrorResponse("could not deliver the email, please try again later", err, c.cfg.Debug))
		}
		logrus.WithError(err).Error("Password reset request failed")
		return ctx.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse("internal server error", err, c.cfg.Debug))
	}

	// Unknown address and token issued look identical from here.
	return ctx.JSON(http.StatusOK, httpdto.MessageResponse{Message: genericResetMessage})
}

func (c *AccountController) ConfirmPasswordReset(ctx echo.Context) error {
	tokenValue := ctx.Param("token")

	req, err := types.NewPasswordResetConfirmRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind password reset confirm request")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid request body"})
	}

	if err = req.Validate(); err != nil {
		logrus.Debug("Password reset confirm validation failed")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
	}

	_, err = c.accounts.ConfirmPasswordReset(ctx.Request().Context(), tokenValue, req.NewPassword)
	if err != nil {
		if errors.Is(err, service.ErrInvalidOrExpiredToken) {
			logrus.Info("Password reset confirm rejected: invalid or expired token")
			return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "the password change link is invalid or has expired"})
		}
		if errors.Is(err, service.ErrWeakPassword) {
			return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
		}
		logrus.WithError(err).Error("Password reset confirm failed")
		return ctx.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse("internal server error", err, c.cfg.Debug))
	}

	logrus.Info("Password reset confirmed")
	return ctx.JSON(http.StatusOK, httpdto.MessageResponse{Message: "password changed successfully"})
}

func (c *AccountController) ChangePassword(ctx echo.Context) error {
	userID, ok := middleware.UserID(ctx)
	if !ok {
		return ctx.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{Error: "unauthorized"})
	}

	req, err := types.NewChangePasswordRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind change password request")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid request body"})
	}

	if err = req.Validate(); err != nil {
		logrus.WithField("user_id", userID).Debug("Change password validation failed")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
	}

	err = c.accounts.ChangePassword(ctx.Request().Context(), userID, req.OldPassword, req.NewPassword)
	if err != nil {
		if errors.Is(err, service.ErrWrongCredential) {
			logrus.WithField("user_id", userID).Warn("Change password failed: wrong current password")
			return ctx.JSON(http.StatusForbidden, httpdto.ErrorResponse{Error: "the current password is incorrect"})
		}
		if errors.Is(err, service.ErrWeakPassword) {
			return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
		}
		logrus.WithError(err).WithField("user_id", userID).Error("Change password failed")
		return ctx.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse("internal server error", err, c.cfg.Debug))
	}

	logrus.WithField("user_id", userID).Info("Password changed from profile")
	return ctx.JSON(http.StatusOK, httpdto.MessageResponse{Message: "password changed successfully"})
}

func (c *AccountController) RequestEmailChange(ctx echo.Context) error {
	userID, ok := middleware.UserID(ctx)
	if !ok {
		return ctx.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{Error: "unauthorized"})
	}

	req, err := types.NewEmailChangeRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind email change request")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid request body"})
	}

	if err = req.Validate(); err != nil {
		logrus.WithField("user_id", userID).Debug("Email change request validation failed")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
	}

	_, err = c.accounts.RequestEmailChange(ctx.Request().Context(), userID, req.NewEmail, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrWrongCredential):
			logrus.WithField("user_id", userID).Warn("Email change request failed: wrong password")
			return ctx.JSON(http.StatusForbidden, httpdto.ErrorResponse{Error: "the password is incorrect"})
		case errors.Is(err, service.ErrEmailAlreadyInUse):
			logrus.WithField("user_id", userID).Warn("Email change request failed: address in use")
			return ctx.JSON(http.StatusConflict, httpdto.ErrorResponse{Error: "this email address is already in use"})
		case errors.Is(err, service.ErrNotificationFailed):
			logrus.WithError(err).WithField("user_id", userID).Error("Email change mail could not be delivered")
			return ctx.JSON(http.StatusBadGateway, httpdto.NewErrorResponse("could not deliver the email, please try again later", err, c.cfg.Debug))
		}
		logrus.WithError(err).WithField("user_id", userID).Error("Email change request failed")
		return ctx.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse("internal server error", err, c.cfg.Debug))
	}

	logrus.WithField("user_id", userID).Info("Email change requested")
	return ctx.JSON(http.StatusOK, httpdto.MessageResponse{Message: "a confirmation email was sent to the new address"})
}

func (c *AccountController) ConfirmEmailChange(ctx echo.Context) error {
	tokenValue := ctx.Param("token")

	_, _, newEmail, err := c.accounts.ConfirmEmailChange(ctx.Request().Context(), tokenValue)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidOrExpiredToken):
			logrus.Info("Email change confirm rejected: invalid or expired token")
			return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "the email change link is invalid or has expired"})
		case errors.Is(err, service.ErrEmailAlreadyInUse):
			logrus.Warn("Email change confirm failed: address claimed meanwhile")
			return ctx.JSON(http.StatusConflict, httpdto.ErrorResponse{Error: "this email address is already in use"})
		}
		logrus.WithError(err).Error("Email change confirm failed")
		return ctx.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse("internal server error", err, c.cfg.Debug))
	}

	logrus.WithField("new_email", newEmail).Info("Email change confirmed")
	return ctx.JSON(http.StatusOK, httpdto.MessageResponse{Message: "email address changed successfully"})
}

func (c *AccountController) LogoutAllDevices(ctx echo.Context) error {
	userID, ok := middleware.UserID(ctx)
	if !ok {
		return ctx.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{Error: "unauthorized"})
	}

	accessToken, err := c.accounts.LogoutAllDevices(ctx.Request().Context(), userID)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("Logout all devices failed")
		return ctx.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse("internal server error", err, c.cfg.Debug))
	}

	logrus.WithField("user_id", userID).Info("All other sessions invalidated")
	return ctx.JSON(http.StatusOK, httpdto.LogoutAllResponse{
		AccessToken: accessToken,
		Message:     "all other sessions have been logged out",
	})
}
