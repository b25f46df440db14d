package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/victor297/student-clearance/internal/models"
	appErrors "github.com/victor297/student-clearance/pkg/errors"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	ListOfficers(ctx context.Context, dept models.Department) ([]models.User, error)
	SetEligibility(ctx context.Context, id string, eligible bool) (*models.User, error)
	UpdateRole(ctx context.Context, id string, role models.UserRole, officerDept *models.Department) (*models.User, error)
	Delete(ctx context.Context, id string) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type cacheInvalidator interface {
	Invalidate(ctx context.Context, pattern string) error
}

// UpdateRoleRequest changes a user's role and officer department.
type UpdateRoleRequest struct {
	Role              models.UserRole `json:"role" validate:"required,oneof=student officer admin"`
	OfficerDepartment string          `json:"officer_department" validate:"required_if=Role officer,omitempty,clearance_department"`
}

// EligibilityRequest flips a student's eligibility flag.
type EligibilityRequest struct {
	IsEligible *bool `json:"is_eligible" validate:"required"`
}

// UserService handles user management workflows.
type UserService struct {
	repo      userRepository
	cache     cacheInvalidator
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService creates an instance of UserService. cache may be nil.
func NewUserService(repo userRepository, cache cacheInvalidator, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{repo: repo, cache: cache, validator: ensureValidator(validate), logger: logger}
}

// List returns paginated users and pagination metadata.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	filter.Page, filter.PageSize = models.NormalisePage(filter.Page, filter.PageSize)
	if filter.Role != nil && !filter.Role.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown role filter")
	}
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	return users, paginationFor(filter.Page, filter.PageSize, total), nil
}

// Get returns a user by ID.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

// Officers lists the officers of a clearance department.
func (s *UserService) Officers(ctx context.Context, raw string) ([]models.User, error) {
	dept, err := models.ParseDepartment(raw)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid department")
	}
	officers, err := s.repo.ListOfficers(ctx, dept)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list officers")
	}
	return officers, nil
}

// SetEligibility marks a user eligible or ineligible for clearance.
func (s *UserService) SetEligibility(ctx context.Context, id string, req EligibilityRequest, actor *models.JWTClaims) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid eligibility payload")
	}
	user, err := s.repo.SetEligibility(ctx, id, *req.IsEligible)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update eligibility")
	}

	emitAudit(ctx, s.repo, s.logger, &models.AuditLog{
		UserID:     userIDPtr(actor),
		Action:     models.AuditActionEligibility,
		Resource:   "users",
		ResourceID: &user.ID,
		NewValues:  auditPayload(map[string]bool{"is_eligible": user.IsEligible}),
	})
	return user, nil
}

// UpdateRole changes the role of a user. Officer lookups are invalidated
// because the set of officers per department may have changed.
func (s *UserService) UpdateRole(ctx context.Context, id string, req UpdateRoleRequest, actor *models.JWTClaims) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid role payload")
	}
	before, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var dept *models.Department
	if req.Role == models.RoleOfficer {
		d := models.Department(req.OfficerDepartment)
		dept = &d
	}
	user, err := s.repo.UpdateRole(ctx, id, req.Role, dept)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update role")
	}
	s.invalidateOfficers(ctx)

	emitAudit(ctx, s.repo, s.logger, &models.AuditLog{
		UserID:     userIDPtr(actor),
		Action:     models.AuditActionRoleChange,
		Resource:   "users",
		ResourceID: &user.ID,
		OldValues:  auditPayload(map[string]interface{}{"role": before.Role, "officer_department": before.OfficerDepartment}),
		NewValues:  auditPayload(map[string]interface{}{"role": user.Role, "officer_department": user.OfficerDepartment}),
	})
	return user, nil
}

// Delete removes a user permanently.
func (s *UserService) Delete(ctx context.Context, id string, actor *models.JWTClaims) error {
	if actor != nil && actor.UserID == id {
		return appErrors.Clone(appErrors.ErrForbidden, "you cannot delete your own account")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete user")
	}
	s.invalidateOfficers(ctx)

	emitAudit(ctx, s.repo, s.logger, &models.AuditLog{
		UserID:     userIDPtr(actor),
		Action:     models.AuditActionUserDelete,
		Resource:   "users",
		ResourceID: &id,
	})
	return nil
}

func (s *UserService) invalidateOfficers(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, officerCachePattern); err != nil {
		s.logger.Warn("failed to invalidate officer cache", zap.Error(err))
	}
}
