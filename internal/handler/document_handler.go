package handler

import (
	"context"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/victor297/student-clearance/internal/models"
	"github.com/victor297/student-clearance/internal/service"
	appErrors "github.com/victor297/student-clearance/pkg/errors"
	"github.com/victor297/student-clearance/pkg/response"
)

type documentService interface {
	Upload(ctx context.Context, actor *models.JWTClaims, requestID, dept string, files []models.UploadedFile) (*models.UploadResult, error)
	ListByRequest(ctx context.Context, actor *models.JWTClaims, requestID, dept string) ([]models.Document, error)
	ListByDepartment(ctx context.Context, actor *models.JWTClaims, dept string) ([]models.Document, error)
	Link(ctx context.Context, actor *models.JWTClaims, id string) (*models.DocumentLink, error)
	Download(ctx context.Context, id, token string) (*service.DocumentDownload, error)
}

// DocumentHandler manages clearance supporting documents.
type DocumentHandler struct {
	service documentService
}

// NewDocumentHandler constructs the handler.
func NewDocumentHandler(svc documentService) *DocumentHandler {
	return &DocumentHandler{service: svc}
}

// Upload godoc
// @Summary Upload clearance documents
// @Description Stores files for a department of a request. Uploading to the rejecting department reopens the request there.
// @Tags Documents
// @Accept multipart/form-data
// @Produce json
// @Param request_id formData string true "Request ID"
// @Param department formData string true "Clearance department"
// @Param documents formData file true "Documents"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /documents [post]
func (h *DocumentHandler) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "multipart form required"))
		return
	}
	headers := form.File["documents"]
	files := make([]models.UploadedFile, 0, len(headers))
	for _, fh := range headers {
		files = append(files, uploadedFile(fh))
	}

	result, err := h.service.Upload(c.Request.Context(), claimsFromContext(c), c.PostForm("request_id"), c.PostForm("department"), files)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// ListByRequest godoc
// @Summary List documents of a request
// @Tags Documents
// @Produce json
// @Param id path string true "Request ID"
// @Param department query string false "Clearance department"
// @Success 200 {object} response.Envelope
// @Router /documents/request/{id} [get]
func (h *DocumentHandler) ListByRequest(c *gin.Context) {
	docs, err := h.service.ListByRequest(c.Request.Context(), claimsFromContext(c), c.Param("id"), c.Query("department"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, docs, nil)
}

// ListByDepartment godoc
// @Summary List documents submitted to a department
// @Tags Documents
// @Produce json
// @Param department path string true "Clearance department"
// @Success 200 {object} response.Envelope
// @Router /documents/department/{department} [get]
func (h *DocumentHandler) ListByDepartment(c *gin.Context) {
	docs, err := h.service.ListByDepartment(c.Request.Context(), claimsFromContext(c), c.Param("department"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, docs, nil)
}

// Link godoc
// @Summary Get signed download link
// @Tags Documents
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Router /documents/{id}/link [get]
func (h *DocumentHandler) Link(c *gin.Context) {
	link, err := h.service.Link(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, link, nil)
}

// Download godoc
// @Summary Download document
// @Tags Documents
// @Produce octet-stream
// @Param id path string true "Document ID"
// @Param token query string true "Signed token"
// @Success 200 {file} binary
// @Failure 401 {object} response.Envelope
// @Router /documents/{id}/download [get]
func (h *DocumentHandler) Download(c *gin.Context) {
	result, err := h.service.Download(c.Request.Context(), c.Param("id"), c.Query("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer result.Body.Close()

	response.Attachment(c, result.Filename, result.MimeType, result.Size, result.Body)
}

func uploadedFile(fh *multipart.FileHeader) models.UploadedFile {
	return models.UploadedFile{
		Name:        fh.Filename,
		Size:        fh.Size,
		ContentType: fh.Header.Get("Content-Type"),
		Open: func() (io.ReadSeekCloser, error) {
			return fh.Open()
		},
	}
}
