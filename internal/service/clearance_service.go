package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/victor297/student-clearance/internal/models"
	"github.com/victor297/student-clearance/internal/repository"
	"github.com/victor297/student-clearance/internal/workflow"
	appErrors "github.com/victor297/student-clearance/pkg/errors"
)

type clearanceStore interface {
	Create(ctx context.Context, req *models.ClearanceRequest, notes []models.Notification) error
	GetByID(ctx context.Context, id string) (*models.ClearanceRequest, error)
	GetDetail(ctx context.Context, id string) (*models.ClearanceRequestDetail, error)
	HasPending(ctx context.Context, studentID string) (bool, error)
	List(ctx context.Context, filter models.ClearanceFilter) ([]models.ClearanceRequestDetail, int, error)
	ApplyTransition(ctx context.Context, params repository.TransitionParams) (int, error)
	History(ctx context.Context, requestID string) ([]models.ClearanceDecision, error)
}

type userReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// ClearanceServiceOption configures the service.
type ClearanceServiceOption func(*ClearanceService)

// WithClearanceCache sets the cache whose dashboard entry is dropped on
// every state change.
func WithClearanceCache(cache cacheInvalidator) ClearanceServiceOption {
	return func(s *ClearanceService) {
		s.cache = cache
	}
}

// WithClearanceMetrics records transitions on the given metrics service.
func WithClearanceMetrics(metrics *MetricsService) ClearanceServiceOption {
	return func(s *ClearanceService) {
		s.metrics = metrics
	}
}

// WithClearanceCertificates enables certificate downloads.
func WithClearanceCertificates(renderer certificateRenderer) ClearanceServiceOption {
	return func(s *ClearanceService) {
		s.certificates = renderer
	}
}

// WithClearanceClock overrides the time source.
func WithClearanceClock(now func() time.Time) ClearanceServiceOption {
	return func(s *ClearanceService) {
		if now != nil {
			s.now = now
		}
	}
}

// ClearanceService runs the approval workflow against storage.
type ClearanceService struct {
	repo         clearanceStore
	users        userReader
	notifier     *Notifier
	audit        auditLogger
	cache        cacheInvalidator
	metrics      *MetricsService
	certificates certificateRenderer
	validator    *validator.Validate
	logger       *zap.Logger
	now          func() time.Time
}

// NewClearanceService constructs the service with defaults.
func NewClearanceService(repo clearanceStore, users userReader, notifier *Notifier, audit auditLogger, validate *validator.Validate, logger *zap.Logger, opts ...ClearanceServiceOption) *ClearanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &ClearanceService{
		repo:      repo,
		users:     users,
		notifier:  notifier,
		audit:     audit,
		validator: ensureValidator(validate),
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Create opens a new request for an eligible student without a pending one.
func (s *ClearanceService) Create(ctx context.Context, actor *models.JWTClaims, payload models.CreateClearanceRequest) (*models.ClearanceRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrRoleMismatch, "only students can create clearance requests")
	}
	if err := s.validator.Struct(payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid clearance payload")
	}

	student, err := s.loadUser(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	if student.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrRoleMismatch, "only students can create clearance requests")
	}
	if !student.IsEligible {
		return nil, appErrors.ErrNotEligible
	}

	pending, err := s.repo.HasPending(ctx, student.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check pending requests")
	}
	if pending {
		return nil, appErrors.ErrPendingRequestExists
	}

	req := workflow.New(student.ID, payload.Reason, s.now())
	fx, err := s.notifier.RequestCreated(ctx, *student, req)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve officers")
	}

	if err := s.repo.Create(ctx, &req, fx.Notifications); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.ErrPendingRequestExists
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create clearance request")
	}

	s.afterCommit(ctx, fx, workflowEvent{name: TransitionCreated, dept: models.Sequence[0]})
	emitAudit(ctx, s.audit, s.logger, &models.AuditLog{
		UserID:     &student.ID,
		Action:     models.AuditActionClearanceCreate,
		Resource:   "clearance_requests",
		ResourceID: &req.ID,
	})
	return &req, nil
}

// Decide records an officer's decision for the officer's own department. The
// officer's department is read from storage, not from the token.
func (s *ClearanceService) Decide(ctx context.Context, actor *models.JWTClaims, requestID string, payload models.DecisionRequest) (*models.ClearanceRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleOfficer {
		return nil, appErrors.Clone(appErrors.ErrRoleMismatch, "only officers can decide clearance requests")
	}
	if err := s.validator.Struct(payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid decision payload")
	}

	officer, err := s.loadUser(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	if officer.Role != models.RoleOfficer || officer.OfficerDepartment == nil {
		return nil, appErrors.Clone(appErrors.ErrRoleMismatch, "officer department is not assigned")
	}
	dept := *officer.OfficerDepartment

	current, err := s.repo.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "clearance request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load clearance request")
	}
	if err := workflow.Check(*current); err != nil {
		s.logger.Error("stored clearance request is inconsistent", zap.String("request_id", current.ID), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "clearance request is inconsistent")
	}

	outcome, err := workflow.Decide(*current, workflow.Decision{
		OfficerID:  officer.ID,
		Department: dept,
		Status:     payload.Status,
		Comments:   payload.Comments,
	}, s.now())
	if err != nil {
		return nil, err
	}

	student, err := s.loadUser(ctx, current.StudentID)
	if err != nil {
		return nil, err
	}
	fx, err := s.notifier.DecisionRecorded(ctx, *student, outcome.Request, dept, payload.Status, outcome.NotifyNext, outcome.Completed)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve officers")
	}

	history := outcome.History
	version, err := s.repo.ApplyTransition(ctx, repository.TransitionParams{
		Request:         outcome.Request,
		ExpectedVersion: current.Version,
		History:         &history,
		Notifications:   fx.Notifications,
	})
	if err != nil {
		return nil, s.transitionError(err, dept)
	}
	outcome.Request.Version = version

	event := workflowEvent{name: TransitionAdvanced, dept: dept}
	switch {
	case outcome.Rejected:
		event.name = TransitionRejected
	case outcome.Completed:
		event.name = TransitionApproved
	}
	s.afterCommit(ctx, fx, event)
	emitAudit(ctx, s.audit, s.logger, &models.AuditLog{
		UserID:     &officer.ID,
		Action:     models.AuditActionClearanceDecision,
		Resource:   "clearance_requests",
		ResourceID: &current.ID,
		OldValues:  auditPayload(map[string]interface{}{"overall_status": current.OverallStatus, "current_stage": current.CurrentStage}),
		NewValues: auditPayload(map[string]interface{}{
			"department":     dept,
			"status":         payload.Status,
			"overall_status": outcome.Request.OverallStatus,
			"current_stage":  outcome.Request.CurrentStage,
		}),
	})
	return &outcome.Request, nil
}

// MyRequests lists the caller's own requests, newest first.
func (s *ClearanceService) MyRequests(ctx context.Context, actor *models.JWTClaims, page, size int) ([]models.ClearanceRequestDetail, *models.Pagination, error) {
	if actor == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleStudent {
		return nil, nil, appErrors.Clone(appErrors.ErrRoleMismatch, "only students can view their requests")
	}
	return s.list(ctx, models.ClearanceFilter{StudentID: actor.UserID, Page: page, PageSize: size})
}

// PendingForOfficer lists requests currently waiting on the officer's
// department.
func (s *ClearanceService) PendingForOfficer(ctx context.Context, actor *models.JWTClaims, page, size int) ([]models.ClearanceRequestDetail, *models.Pagination, error) {
	if actor == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleOfficer {
		return nil, nil, appErrors.Clone(appErrors.ErrRoleMismatch, "only officers can view pending requests")
	}
	officer, err := s.loadUser(ctx, actor.UserID)
	if err != nil {
		return nil, nil, err
	}
	if officer.OfficerDepartment == nil {
		return nil, nil, appErrors.Clone(appErrors.ErrRoleMismatch, "officer department is not assigned")
	}
	dept := *officer.OfficerDepartment
	return s.list(ctx, models.ClearanceFilter{PendingFor: &dept, Page: page, PageSize: size})
}

// All lists every request for administrators.
func (s *ClearanceService) All(ctx context.Context, actor *models.JWTClaims, filter models.ClearanceFilter) ([]models.ClearanceRequestDetail, *models.Pagination, error) {
	if actor == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleAdmin {
		return nil, nil, appErrors.Clone(appErrors.ErrRoleMismatch, "admin access required")
	}
	if filter.OverallStatus != nil && !filter.OverallStatus.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown status filter")
	}
	filter.StudentID = ""
	filter.PendingFor = nil
	return s.list(ctx, filter)
}

// Get returns one request with its decision history. Students may only read
// their own requests.
func (s *ClearanceService) Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.ClearanceRequestView, error) {
	detail, err := s.detailFor(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	history, err := s.repo.History(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load clearance history")
	}
	if history == nil {
		history = []models.ClearanceDecision{}
	}
	return &models.ClearanceRequestView{ClearanceRequestDetail: *detail, History: history}, nil
}

// Certificate renders the PDF certificate of an approved request.
func (s *ClearanceService) Certificate(ctx context.Context, actor *models.JWTClaims, id string) ([]byte, string, error) {
	if s.certificates == nil {
		return nil, "", appErrors.Clone(appErrors.ErrInternal, "certificate rendering unavailable")
	}
	detail, err := s.detailFor(ctx, actor, id)
	if err != nil {
		return nil, "", err
	}
	if actor.Role == models.RoleOfficer {
		return nil, "", appErrors.Clone(appErrors.ErrForbidden, "certificates are available to the student and administrators")
	}
	if detail.OverallStatus != models.StatusApproved {
		return nil, "", appErrors.Clone(appErrors.ErrConflict, "certificate is only available for approved requests")
	}
	student, err := s.loadUser(ctx, detail.StudentID)
	if err != nil {
		return nil, "", err
	}
	pdf, err := s.certificates.RenderCertificate(certificateFor(*student, detail.ClearanceRequest))
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render certificate")
	}
	return pdf, certificateFilename(detail.ID), nil
}

func (s *ClearanceService) detailFor(ctx context.Context, actor *models.JWTClaims, id string) (*models.ClearanceRequestDetail, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	detail, err := s.repo.GetDetail(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "clearance request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load clearance request")
	}
	if actor.Role == models.RoleStudent && detail.StudentID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "you can only view your own requests")
	}
	return detail, nil
}

func (s *ClearanceService) list(ctx context.Context, filter models.ClearanceFilter) ([]models.ClearanceRequestDetail, *models.Pagination, error) {
	filter.Page, filter.PageSize = models.NormalisePage(filter.Page, filter.PageSize)
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list clearance requests")
	}
	if items == nil {
		items = []models.ClearanceRequestDetail{}
	}
	return items, paginationFor(filter.Page, filter.PageSize, total), nil
}

func (s *ClearanceService) loadUser(ctx context.Context, id string) (*models.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

func (s *ClearanceService) transitionError(err error, dept models.Department) error {
	switch {
	case errors.Is(err, repository.ErrStaleVersion):
		s.metrics.RecordTransition(TransitionConflict, dept)
		return appErrors.ErrConcurrentUpdate
	case errors.Is(err, repository.ErrDuplicate):
		return appErrors.ErrPendingRequestExists
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist clearance request")
	}
}

type workflowEvent struct {
	name string
	dept models.Department
}

func (s *ClearanceService) afterCommit(ctx context.Context, fx Effects, event workflowEvent) {
	s.notifier.Dispatch(fx.Emails)
	s.metrics.RecordTransition(event.name, event.dept)
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, dashboardCacheKey); err != nil {
			s.logger.Warn("failed to invalidate dashboard cache", zap.Error(err))
		}
	}
}
