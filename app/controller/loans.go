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

type LoanController struct {
	lending *service.LendingService
	cfg     *config.Config
}

func NewLoanController(lending *service.LendingService, cfg *config.Config) *LoanController {
	return &LoanController{lending: lending, cfg: cfg}
}

func (c *LoanController) Lend(ctx echo.Context) error {
	userID, ok := middleware.UserID(ctx)
	if !ok {
		return ctx.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{Error: "unauthorized"})
	}

	req, err := types.NewLendRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind lend request")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid request body"})
	}
	if err = req.Validate(); err != nil {
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
	}

	loan, err := c.lending.Lend(ctx.Request().Context(), req.BookID, req.Borrower, userID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrBookNotLendable):
			return ctx.JSON(http.StatusConflict, httpdto.ErrorResponse{Error: "book does not exist, is not yours or is not available"})
		case errors.Is(err, service.ErrBorrowerUnknown):
			return ctx.JSON(http.StatusNotFound, httpdto.ErrorResponse{Error: "borrower does not exist"})
		case errors.Is(err, service.ErrSelfLoan):
			return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "cannot lend a book to yourself"})
		}
		logrus.WithError(err).WithField("user_id", userID).Error("Lend failed")
		return ctx.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse("internal server error", err, c.cfg.Debug))
	}

	logrus.WithFields(logrus.Fields{
		"user_id": userID,
		"book_id": loan.BookID,
		"loan_id": loan.ID,
	}).Info("Loan created")
	return ctx.JSON(http.StatusCreated, httpdto.NewLoanResponse(loan))
}

func (c *LoanController) Return(ctx echo.Context) error {
	userID, ok := middleware.UserID(ctx)
	if !ok {
		return ctx.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{Error: "unauthorized"})
	}

	loanID, err := parseID(ctx.Param("id"))
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid loan id"})
	}

	req, err := types.NewReturnRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind return request")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid request body"})
	}
	if err = req.Validate(); err != nil {
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
	}

	loan, err := c.lending.Return(ctx.Request().Context(), loanID, userID, req.Comment)
	if err != nil && !errors.Is(err, service.ErrAlreadyReturned) {
		if errors.Is(err, service.ErrLoanNotFound) {
			return ctx.JSON(http.StatusNotFound, httpdto.ErrorResponse{Error: "loan does not exist or is not yours"})
		}
		logrus.WithError(err).WithField("user_id", userID).Error("Return failed")
		return ctx.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse("internal server error", err, c.cfg.Debug))
	}

	resp := httpdto.NewLoanResponse(loan)
	if errors.Is(err, service.ErrAlreadyReturned) {
		resp.Warning = "loan was already marked as returned"
	} else {
		logrus.WithFields(logrus.Fields{"user_id": userID, "loan_id": loan.ID}).Info("Loan returned")
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (c *LoanController) Active(ctx echo.Context) error {
	userID, ok := middleware.UserID(ctx)
	if !ok {
		return ctx.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{Error: "unauthorized"})
	}

	made, received, err := c.lending.ActiveLoans(ctx.Request().Context(), userID)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("List active loans failed")
		return ctx.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse("internal server error", err, c.cfg.Debug))
	}

	return ctx.JSON(http.StatusOK, httpdto.LoanOverviewResponse{
		Made:     httpdto.NewLoanListResponse(made),
		Received: httpdto.NewLoanListResponse(received),
	})
}

func (c *LoanController) History(ctx echo.Context) error {
	userID, ok := middleware.UserID(ctx)
	if !ok {
		return ctx.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{Error: "unauthorized"})
	}

	made, received, err := c.lending.History(ctx.Request().Context(), userID)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("List loan history failed")
		return ctx.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse("internal server error", err, c.cfg.Debug))
	}

	return ctx.JSON(http.StatusOK, httpdto.LoanOverviewResponse{
		Made:     httpdto.NewLoanListResponse(made),
		Received: httpdto.NewLoanListResponse(received),
	})
}

func (c *LoanController) Lendable(ctx echo.Context) error {
	userID, ok := middleware.UserID(ctx)
	if !ok {
		return ctx.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{Error: "unauthorized"})
	}

	books, err := c.lending.LendableBooks(ctx.Request().Context(), userID)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("List lendable books failed")
		return ctx.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse("internal server error", err, c.cfg.Debug))
	}

	return ctx.JSON(http.StatusOK, httpdto.NewBookListResponse(books))
}
