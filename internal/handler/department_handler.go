package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/victor297/student-clearance/internal/models"
	appErrors "github.com/victor297/student-clearance/pkg/errors"
	"github.com/victor297/student-clearance/pkg/response"
)

type departmentService interface {
	List(ctx context.Context) ([]models.DepartmentProfile, error)
	Create(ctx context.Context, actor *models.JWTClaims, req models.CreateDepartmentRequest) (*models.DepartmentProfile, error)
	AddOfficer(ctx context.Context, actor *models.JWTClaims, departmentID string, req models.AddOfficerRequest) (*models.DepartmentProfile, error)
	RemoveOfficer(ctx context.Context, actor *models.JWTClaims, departmentID, officerID string) (*models.DepartmentProfile, error)
}

// DepartmentHandler serves the department directory.
type DepartmentHandler struct {
	service departmentService
}

// NewDepartmentHandler constructs the handler.
func NewDepartmentHandler(svc departmentService) *DepartmentHandler {
	return &DepartmentHandler{service: svc}
}

// List godoc
// @Summary List departments
// @Description Active clearance departments with their officers
// @Tags Departments
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /departments [get]
func (h *DepartmentHandler) List(c *gin.Context) {
	items, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Create godoc
// @Summary Create department
// @Tags Departments
// @Accept json
// @Produce json
// @Param payload body models.CreateDepartmentRequest true "Department"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /departments [post]
func (h *DepartmentHandler) Create(c *gin.Context) {
	var req models.CreateDepartmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid department payload"))
		return
	}
	dept, err := h.service.Create(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dept)
}

// AddOfficer godoc
// @Summary Attach officer to department
// @Tags Departments
// @Accept json
// @Produce json
// @Param id path string true "Department ID"
// @Param payload body models.AddOfficerRequest true "Officer"
// @Success 200 {object} response.Envelope
// @Router /departments/{id}/officers [post]
func (h *DepartmentHandler) AddOfficer(c *gin.Context) {
	var req models.AddOfficerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid officer payload"))
		return
	}
	dept, err := h.service.AddOfficer(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dept, nil)
}

// RemoveOfficer godoc
// @Summary Detach officer from department
// @Tags Departments
// @Produce json
// @Param id path string true "Department ID"
// @Param officerId path string true "Officer ID"
// @Success 200 {object} response.Envelope
// @Router /departments/{id}/officers/{officerId} [delete]
func (h *DepartmentHandler) RemoveOfficer(c *gin.Context) {
	dept, err := h.service.RemoveOfficer(c.Request.Context(), claimsFromContext(c), c.Param("id"), c.Param("officerId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dept, nil)
}
