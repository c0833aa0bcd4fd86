package controller

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	httpdto "github.com/shelfcircle/shelfcircle/app/dto/http"
	"github.com/shelfcircle/shelfcircle/app/importer"
	"github.com/shelfcircle/shelfcircle/app/middleware"
	"github.com/shelfcircle/shelfcircle/config"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type ImportController struct {
	importer *importer.Importer
	cfg      *config.Config
}

func NewImportController(imp *importer.Importer, cfg *config.Config) *ImportController {
	return &ImportController{importer: imp, cfg: cfg}
}

// Upload ingests a spreadsheet from the "file" form field. Per-row problems
// come back in the 200 payload; only storage failures produce a 5xx.
func (c *ImportController) Upload(ctx echo.Context) error {
	userID, ok := middleware.UserID(ctx)
	if !ok {
		return ctx.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{Error: "unauthorized"})
	}

	fileHeader, err := ctx.FormFile("file")
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "a file named 'file' must be attached"})
	}

	file, err := fileHeader.Open()
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("Opening uploaded file failed")
		return ctx.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse("internal server error", err, c.cfg.Debug))
	}
	defer file.Close()

	result, err := c.importer.Ingest(ctx.Request().Context(), file, fileHeader.Filename, userID)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("Import failed")
		return ctx.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse("internal server error", err, c.cfg.Debug))
	}

	logrus.WithFields(logrus.Fields{
		"user_id":    userID,
		"file":       fileHeader.Filename,
		"created":    len(result.Created),
		"duplicates": len(result.Duplicates),
		"errors":     len(result.Errors),
	}).Info("Import processed")
	return ctx.JSON(http.StatusOK, result)
}

// Template serves an empty xlsx file with the expected header row and a few
// example entries.
func (c *ImportController) Template(ctx echo.Context) error {
	data, err := importer.Template()
	if err != nil {
		logrus.WithError(err).Error("Building import template failed")
		return ctx.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse("internal server error", err, c.cfg.Debug))
	}

	ctx.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="book_import_template.xlsx"`)
	return ctx.Blob(http.StatusOK, xlsxContentType, data)
}
