package handler

import (
	"bytes"
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/victor297/student-clearance/internal/models"
	appErrors "github.com/victor297/student-clearance/pkg/errors"
	"github.com/victor297/student-clearance/pkg/response"
)

type clearanceService interface {
	Create(ctx context.Context, actor *models.JWTClaims, payload models.CreateClearanceRequest) (*models.ClearanceRequest, error)
	Decide(ctx context.Context, actor *models.JWTClaims, requestID string, payload models.DecisionRequest) (*models.ClearanceRequest, error)
	MyRequests(ctx context.Context, actor *models.JWTClaims, page, size int) ([]models.ClearanceRequestDetail, *models.Pagination, error)
	PendingForOfficer(ctx context.Context, actor *models.JWTClaims, page, size int) ([]models.ClearanceRequestDetail, *models.Pagination, error)
	All(ctx context.Context, actor *models.JWTClaims, filter models.ClearanceFilter) ([]models.ClearanceRequestDetail, *models.Pagination, error)
	Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.ClearanceRequestView, error)
	Certificate(ctx context.Context, actor *models.JWTClaims, id string) ([]byte, string, error)
}

// ClearanceHandler exposes the clearance request lifecycle.
type ClearanceHandler struct {
	service clearanceService
}

// NewClearanceHandler constructs the handler.
func NewClearanceHandler(svc clearanceService) *ClearanceHandler {
	return &ClearanceHandler{service: svc}
}

// Create godoc
// @Summary Submit clearance request
// @Description Eligible students open a request that starts at the first department
// @Tags Clearance
// @Accept json
// @Produce json
// @Param payload body models.CreateClearanceRequest false "Request payload"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /clearance [post]
func (h *ClearanceHandler) Create(c *gin.Context) {
	var req models.CreateClearanceRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid clearance payload"))
			return
		}
	}

	created, err := h.service.Create(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, created)
}

// Decide godoc
// @Summary Record department decision
// @Description The acting officer approves or rejects the request at their department
// @Tags Clearance
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body models.DecisionRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /clearance/{id}/decision [put]
func (h *ClearanceHandler) Decide(c *gin.Context) {
	var req models.DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid decision payload"))
		return
	}

	updated, err := h.service.Decide(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, updated, nil)
}

// Mine godoc
// @Summary List my clearance requests
// @Tags Clearance
// @Produce json
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /clearance/my-requests [get]
func (h *ClearanceHandler) Mine(c *gin.Context) {
	page, size := pageParams(c)
	items, pagination, err := h.service.MyRequests(c.Request.Context(), claimsFromContext(c), page, size)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Pending godoc
// @Summary List requests waiting on my department
// @Tags Clearance
// @Produce json
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /clearance/pending [get]
func (h *ClearanceHandler) Pending(c *gin.Context) {
	page, size := pageParams(c)
	items, pagination, err := h.service.PendingForOfficer(c.Request.Context(), claimsFromContext(c), page, size)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// All godoc
// @Summary List all clearance requests
// @Tags Clearance
// @Produce json
// @Param status query string false "Overall status"
// @Param department query string false "Student home department"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /clearance/all [get]
func (h *ClearanceHandler) All(c *gin.Context) {
	filter := filterFromQuery(c)
	items, pagination, err := h.service.All(c.Request.Context(), claimsFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get clearance request
// @Description Request detail with its decision history
// @Tags Clearance
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /clearance/{id} [get]
func (h *ClearanceHandler) Get(c *gin.Context) {
	view, err := h.service.Get(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// Certificate godoc
// @Summary Download clearance certificate
// @Tags Clearance
// @Produce application/pdf
// @Param id path string true "Request ID"
// @Success 200 {file} binary
// @Failure 409 {object} response.Envelope
// @Router /clearance/{id}/certificate [get]
func (h *ClearanceHandler) Certificate(c *gin.Context) {
	body, filename, err := h.service.Certificate(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, filename, "application/pdf", int64(len(body)), bytes.NewReader(body))
}

func filterFromQuery(c *gin.Context) models.ClearanceFilter {
	var filter models.ClearanceFilter
	filter.Page, filter.PageSize = pageParams(c)
	if status := c.Query("status"); status != "" {
		s := models.Status(status)
		filter.OverallStatus = &s
	}
	filter.StudentDepartment = c.Query("department")
	return filter
}
