package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/victor297/student-clearance/internal/models"
	appErrors "github.com/victor297/student-clearance/pkg/errors"
	"github.com/victor297/student-clearance/pkg/response"
)

type importService interface {
	ImportStudents(ctx context.Context, actor *models.JWTClaims, r io.Reader, filename string) (*models.StudentImportResult, error)
	ImportEligibility(ctx context.Context, actor *models.JWTClaims, r io.Reader, filename string) (*models.EligibilityImportResult, error)
}

// ImportHandler accepts spreadsheet uploads for bulk account changes.
type ImportHandler struct {
	service importService
}

// NewImportHandler constructs the handler.
func NewImportHandler(svc importService) *ImportHandler {
	return &ImportHandler{service: svc}
}

// Students godoc
// @Summary Import students
// @Description Creates student accounts from an .xlsx or .csv file
// @Tags Imports
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Spreadsheet"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /imports/students [post]
func (h *ImportHandler) Students(c *gin.Context) {
	h.handle(c, func(ctx context.Context, r io.Reader, name string) (interface{}, error) {
		return h.service.ImportStudents(ctx, claimsFromContext(c), r, name)
	})
}

// Eligibility godoc
// @Summary Import eligibility
// @Description Marks the listed students eligible for clearance
// @Tags Imports
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Spreadsheet"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /imports/eligibility [post]
func (h *ImportHandler) Eligibility(c *gin.Context) {
	h.handle(c, func(ctx context.Context, r io.Reader, name string) (interface{}, error) {
		return h.service.ImportEligibility(ctx, claimsFromContext(c), r, name)
	})
}

func (h *ImportHandler) handle(c *gin.Context, run func(ctx context.Context, r io.Reader, name string) (interface{}, error)) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file is required"))
		return
	}
	src, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open file"))
		return
	}
	defer src.Close()

	result, err := run(c.Request.Context(), src, fileHeader.Filename)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
