package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/victor297/student-clearance/internal/models"
	"github.com/victor297/student-clearance/internal/repository"
	appErrors "github.com/victor297/student-clearance/pkg/errors"
)

type departmentStore interface {
	List(ctx context.Context, activeOnly bool) ([]models.DepartmentProfile, error)
	GetByID(ctx context.Context, id string) (*models.DepartmentProfile, error)
	Create(ctx context.Context, dept *models.DepartmentProfile) error
	AddOfficer(ctx context.Context, departmentID, officerID string) error
	RemoveOfficer(ctx context.Context, departmentID, officerID string) error
}

// DepartmentService manages the department directory.
type DepartmentService struct {
	repo      departmentStore
	users     userReader
	audit     auditLogger
	validator *validator.Validate
	logger    *zap.Logger
}

// NewDepartmentService constructs the service.
func NewDepartmentService(repo departmentStore, users userReader, audit auditLogger, validate *validator.Validate, logger *zap.Logger) *DepartmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DepartmentService{repo: repo, users: users, audit: audit, validator: ensureValidator(validate), logger: logger}
}

// List returns active departments with their officers.
func (s *DepartmentService) List(ctx context.Context) ([]models.DepartmentProfile, error) {
	depts, err := s.repo.List(ctx, true)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list departments")
	}
	if depts == nil {
		depts = []models.DepartmentProfile{}
	}
	return depts, nil
}

// Create registers one of the clearance departments in the directory.
func (s *DepartmentService) Create(ctx context.Context, actor *models.JWTClaims, req models.CreateDepartmentRequest) (*models.DepartmentProfile, error) {
	req.Name = strings.ToLower(strings.TrimSpace(req.Name))
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid department payload")
	}
	dept := &models.DepartmentProfile{
		Name:        models.Department(req.Name),
		Description: strings.TrimSpace(req.Description),
	}
	if err := s.repo.Create(ctx, dept); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "department already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create department")
	}
	emitAudit(ctx, s.audit, s.logger, &models.AuditLog{
		UserID:     userIDPtr(actor),
		Action:     models.AuditActionDepartmentCreate,
		Resource:   "departments",
		ResourceID: &dept.ID,
		NewValues:  auditPayload(dept),
	})
	return dept, nil
}

// AddOfficer links an officer whose assigned stage matches the department.
func (s *DepartmentService) AddOfficer(ctx context.Context, actor *models.JWTClaims, departmentID string, req models.AddOfficerRequest) (*models.DepartmentProfile, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid officer payload")
	}
	dept, err := s.get(ctx, departmentID)
	if err != nil {
		return nil, err
	}
	officer, err := s.users.FindByID(ctx, req.OfficerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "officer not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load officer")
	}
	if officer.Role != models.RoleOfficer {
		return nil, appErrors.Clone(appErrors.ErrValidation, "user is not an officer")
	}
	if !officer.IsOfficerOf(dept.Name) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "officer is assigned to a different department")
	}
	if err := s.repo.AddOfficer(ctx, dept.ID, officer.ID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to add officer")
	}
	emitAudit(ctx, s.audit, s.logger, &models.AuditLog{
		UserID:     userIDPtr(actor),
		Action:     models.AuditActionOfficerAssign,
		Resource:   "departments",
		ResourceID: &dept.ID,
		NewValues:  auditPayload(map[string]string{"officer_id": officer.ID}),
	})
	return s.get(ctx, dept.ID)
}

// RemoveOfficer unlinks an officer from a department.
func (s *DepartmentService) RemoveOfficer(ctx context.Context, actor *models.JWTClaims, departmentID, officerID string) (*models.DepartmentProfile, error) {
	dept, err := s.get(ctx, departmentID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.RemoveOfficer(ctx, dept.ID, officerID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove officer")
	}
	emitAudit(ctx, s.audit, s.logger, &models.AuditLog{
		UserID:     userIDPtr(actor),
		Action:     models.AuditActionOfficerRemove,
		Resource:   "departments",
		ResourceID: &dept.ID,
		OldValues:  auditPayload(map[string]string{"officer_id": officerID}),
	})
	return s.get(ctx, dept.ID)
}

func (s *DepartmentService) get(ctx context.Context, id string) (*models.DepartmentProfile, error) {
	dept, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "department not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load department")
	}
	return dept, nil
}
