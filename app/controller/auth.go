package controller

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	httpdto "github.com/shelfcircle/shelfcircle/app/dto/http"
	"github.com/shelfcircle/shelfcircle/app/service"
	"github.com/shelfcircle/shelfcircle/app/types"
	"github.com/shelfcircle/shelfcircle/config"
)

type AuthController struct {
	accounts *service.AccountService
	cfg      *config.Config
}

func NewAuthController(accounts *service.AccountService, cfg *config.Config) *AuthController {
	return &AuthController{accounts: accounts, cfg: cfg}
}

func (c *AuthController) Register(ctx echo.Context) error {
	req, err := types.NewRegisterRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind register request")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid request body"})
	}

	if err = req.Validate(); err != nil {
		logrus.WithField("username", req.Username).Debug("Register validation failed")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
	}

	logrus.WithField("username", req.Username).Info("Register request received")
	user, err := c.accounts.Register(ctx.Request().Context(), service.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Phone:    req.Phone,
		City:     req.City,
		Country:  req.Country,
	})
	if err != nil {
		if errors.Is(err, service.ErrUserExists) || errors.Is(err, service.ErrEmailAlreadyInUse) {
			logrus.WithField("username", req.Username).Warn("Register failed: identity already taken")
			return ctx.JSON(http.StatusConflict, httpdto.ErrorResponse{Error: err.Error()})
		}
		if errors.Is(err, service.ErrWeakPassword) {
			logrus.WithField("username", req.Username).Warn("Register failed: weak password")
			return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
		}
		logrus.WithError(err).WithField("username", req.Username).Error("Register failed")
		return ctx.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse("internal server error", err, c.cfg.Debug))
	}

	logrus.WithFields(logrus.Fields{
		"user_id":  user.ID,
		"username": user.Username,
	}).Info("User registered")

	return ctx.JSON(http.StatusCreated, httpdto.RegisterResponse{
		UserID:   user.ID,
		Username: user.Username,
		Email:    user.Email,
		Message:  "registration successful",
	})
}

func (c *AuthController) Login(ctx echo.Context) error {
	req, err := types.NewLoginRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind login request")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid request body"})
	}

	if err = req.Validate(); err != nil {
		logrus.WithField("username", req.Username).Debug("Login validation failed")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
	}

	_, accessToken, err := c.accounts.Login(ctx.Request().Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrWrongCredential) {
			logrus.WithField("username", req.Username).Warn("Login failed: invalid credentials")
			return ctx.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{Error: "invalid credentials"})
		}
		logrus.WithError(err).WithField("username", req.Username).Error("Login failed")
		return ctx.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse("internal server error", err, c.cfg.Debug))
	}

	logrus.WithField("username", req.Username).Info("Login successful")
	return ctx.JSON(http.StatusOK, httpdto.LoginResponse{
		AccessToken: accessToken,
		ExpiresIn:   int64(c.cfg.JWTAccessTokenTTL.Seconds()),
	})
}
