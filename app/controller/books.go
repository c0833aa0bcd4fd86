package controller

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	httpdto "github.com/shelfcircle/shelfcircle/app/dto/http"
	"github.com/shelfcircle/shelfcircle/app/middleware"
	"github.com/shelfcircle/shelfcircle/app/service"
	"github.com/shelfcircle/shelfcircle/app/types"
	"github.com/shelfcircle/shelfcircle/config"
)

type BookController struct {
	catalog *service.CatalogService
	cfg     *config.Config
}

func NewBookController(catalog *service.CatalogService, cfg *config.Config) *BookController {
	return &BookController{catalog: catalog, cfg: cfg}
}

func (c *BookController) Create(ctx echo.Context) error {
	userID, ok := middleware.UserID(ctx)
	if !ok {
		return ctx.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{Error: "unauthorized"})
	}

	req, err := types.NewBookRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind book request")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid request body"})
	}
	if err = req.Validate(); err != nil {
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
	}

	book, err := c.catalog.Create(ctx.Request().Context(), userID, service.BookInput{
		Title:       req.Title,
		Author:      req.Author,
		Publisher:   req.Publisher,
		ISBN:        req.ISBN,
		Description: req.Description,
	})
	if err != nil {
		return c.mapCatalogError(ctx, userID, err, "Create book failed")
	}

	logrus.WithFields(logrus.Fields{"user_id": userID, "book_id": book.ID}).Info("Book created")
	return ctx.JSON(http.StatusCreated, httpdto.NewBookResponse(book))
}

func (c *BookController) List(ctx echo.Context) error {
	userID, ok := middleware.UserID(ctx)
	if !ok {
		return ctx.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{Error: "unauthorized"})
	}

	books, err := c.catalog.List(ctx.Request().Context(), userID)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("List books failed")
		return ctx.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse("internal server error", err, c.cfg.Debug))
	}

	return ctx.JSON(http.StatusOK, httpdto.NewBookListResponse(books))
}

func (c *BookController) Get(ctx echo.Context) error {
	userID, ok := middleware.UserID(ctx)
	if !ok {
		return ctx.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{Error: "unauthorized"})
	}

	bookID, err := parseID(ctx.Param("id"))
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid book id"})
	}

	book, err := c.catalog.Get(ctx.Request().Context(), bookID, userID)
	if err != nil {
		return c.mapCatalogError(ctx, userID, err, "Get book failed")
	}

	return ctx.JSON(http.StatusOK, httpdto.NewBookResponse(book))
}

func (c *BookController) Update(ctx echo.Context) error {
	userID, ok := middleware.UserID(ctx)
	if !ok {
		return ctx.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{Error: "unauthorized"})
	}

	bookID, err := parseID(ctx.Param("id"))
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid book id"})
	}

	req, err := types.NewBookRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind book request")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid request body"})
	}
	if err = req.Validate(); err != nil {
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
	}

	book, err := c.catalog.Update(ctx.Request().Context(), bookID, userID, service.BookInput{
		Title:       req.Title,
		Author:      req.Author,
		Publisher:   req.Publisher,
		ISBN:        req.ISBN,
		Description: req.Description,
	})
	if err != nil {
		return c.mapCatalogError(ctx, userID, err, "Update book failed")
	}

	logrus.WithFields(logrus.Fields{"user_id": userID, "book_id": book.ID}).Info("Book updated")
	return ctx.JSON(http.StatusOK, httpdto.NewBookResponse(book))
}

func (c *BookController) SetAvailability(ctx echo.Context) error {
	userID, ok := middleware.UserID(ctx)
	if !ok {
		return ctx.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{Error: "unauthorized"})
	}

	bookID, err := parseID(ctx.Param("id"))
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid book id"})
	}

	req, err := types.NewBookAvailabilityRequestFromContext(ctx)
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid request body"})
	}
	if err = req.Validate(); err != nil {
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
	}

	book, err := c.catalog.SetAvailability(ctx.Request().Context(), bookID, userID, *req.Available)
	if err != nil {
		return c.mapCatalogError(ctx, userID, err, "Set book availability failed")
	}

	return ctx.JSON(http.StatusOK, httpdto.NewBookResponse(book))
}

func (c *BookController) mapCatalogError(ctx echo.Context, userID uint64, err error, logMsg string) error {
	switch {
	case errors.Is(err, service.ErrBookNotFound):
		return ctx.JSON(http.StatusNotFound, httpdto.ErrorResponse{Error: "book not found"})
	case errors.Is(err, service.ErrForbidden):
		return ctx.JSON(http.StatusForbidden, httpdto.ErrorResponse{Error: "you do not own this book"})
	case errors.Is(err, service.ErrDuplicateISBN):
		return ctx.JSON(http.StatusConflict, httpdto.ErrorResponse{Error: "a book with this ISBN is already registered"})
	case errors.Is(err, service.ErrBookLoaned):
		return ctx.JSON(http.StatusConflict, httpdto.ErrorResponse{Error: "the book is currently loaned out"})
	case errors.Is(err, service.ErrBookValidation):
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
	}
	logrus.WithError(err).WithField("user_id", userID).Error(logMsg)
	return ctx.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse("internal server error", err, c.cfg.Debug))
}

func parseID(raw string) (uint64, error) {
	return strconv.ParseUint(raw, 10, 64)
}
