package handler

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/victor297/student-clearance/internal/models"
	"github.com/victor297/student-clearance/internal/service"
	"github.com/victor297/student-clearance/pkg/response"
)

type exportService interface {
	Generate(ctx context.Context, actor *models.JWTClaims, filter models.ClearanceFilter, format string) (*service.ExportResult, error)
	Open(ctx context.Context, token string) (*service.ExportDownload, error)
}

// ExportHandler renders request listings to downloadable files.
type ExportHandler struct {
	service exportService
}

// NewExportHandler constructs the handler.
func NewExportHandler(svc exportService) *ExportHandler {
	return &ExportHandler{service: svc}
}

// Generate godoc
// @Summary Export clearance requests
// @Description Renders all requests matching the filters as CSV or PDF and returns a signed link
// @Tags Exports
// @Produce json
// @Param format query string false "csv or pdf"
// @Param status query string false "Overall status"
// @Param department query string false "Student home department"
// @Success 201 {object} response.Envelope
// @Router /exports/requests [post]
func (h *ExportHandler) Generate(c *gin.Context) {
	format := strings.ToLower(c.DefaultQuery("format", service.ExportFormatCSV))
	result, err := h.service.Generate(c.Request.Context(), claimsFromContext(c), filterFromQuery(c), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Download godoc
// @Summary Download export
// @Tags Exports
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} binary
// @Failure 401 {object} response.Envelope
// @Router /exports/{token} [get]
func (h *ExportHandler) Download(c *gin.Context) {
	result, err := h.service.Open(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer result.Body.Close()

	response.Attachment(c, result.Filename, result.ContentType, -1, result.Body)
}
