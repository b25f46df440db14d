package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/victor297/student-clearance/internal/models"
	appErrors "github.com/victor297/student-clearance/pkg/errors"
)

type dashboardRequestCounter interface {
	CountByStatus(ctx context.Context) ([]models.StatusCount, error)
	CountPendingByStage(ctx context.Context) ([]models.StageCount, error)
}

type dashboardStudentCounter interface {
	CountStudents(ctx context.Context) (total, eligible int, err error)
}

// DashboardServiceConfig tunes dashboard behaviour.
type DashboardServiceConfig struct {
	CacheTTL time.Duration
}

// DashboardService composes the admin overview.
type DashboardService struct {
	requests dashboardRequestCounter
	students dashboardStudentCounter
	cache    *CacheService
	metrics  *MetricsService
	logger   *zap.Logger
	now      func() time.Time
	cfg      DashboardServiceConfig
}

// DashboardServiceParams groups constructor dependencies.
type DashboardServiceParams struct {
	Requests dashboardRequestCounter
	Students dashboardStudentCounter
	Cache    *CacheService
	Metrics  *MetricsService
	Logger   *zap.Logger
	Config   DashboardServiceConfig
}

// NewDashboardService constructs a DashboardService with sane defaults.
func NewDashboardService(params DashboardServiceParams) *DashboardService {
	cfg := params.Config
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{
		requests: params.Requests,
		students: params.Students,
		cache:    params.Cache,
		metrics:  params.Metrics,
		logger:   logger,
		now:      time.Now,
		cfg:      cfg,
	}
}

// Admin returns request and student counts and indicates cache utilisation.
// The process metrics snapshot is always fresh.
func (s *DashboardService) Admin(ctx context.Context) (*models.AdminDashboard, bool, error) {
	summary, hit := s.tryCache(ctx)
	if !hit {
		var err error
		summary, err = s.compose(ctx)
		if err != nil {
			return nil, false, err
		}
		s.persistCache(ctx, summary)
	}
	if s.metrics != nil {
		snapshot := s.metrics.Snapshot()
		summary.System = &snapshot
	}
	return summary, hit, nil
}

func (s *DashboardService) compose(ctx context.Context) (*models.AdminDashboard, error) {
	byStatus, err := s.requests.CountByStatus(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count requests")
	}
	byStage, err := s.requests.CountPendingByStage(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count pending requests")
	}
	total, eligible, err := s.students.CountStudents(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count students")
	}

	summary := &models.AdminDashboard{
		ByStatus:       map[models.Status]int{models.StatusPending: 0, models.StatusApproved: 0, models.StatusRejected: 0},
		PendingByStage: make(map[models.Stage]int, len(models.Sequence)),
		TotalStudents:  total,
		Eligible:       eligible,
		GeneratedAt:    s.now().UTC(),
	}
	for _, dept := range models.Sequence {
		summary.PendingByStage[models.StageOf(dept)] = 0
	}
	for _, c := range byStatus {
		summary.ByStatus[c.Status] = c.Count
		summary.TotalRequests += c.Count
	}
	for _, c := range byStage {
		summary.PendingByStage[c.Stage] = c.Count
	}
	return summary, nil
}

func (s *DashboardService) tryCache(ctx context.Context) (*models.AdminDashboard, bool) {
	var cached models.AdminDashboard
	hit, err := s.cache.Get(ctx, dashboardCacheKey, &cached)
	if err != nil || !hit {
		return nil, false
	}
	return &cached, true
}

func (s *DashboardService) persistCache(ctx context.Context, summary *models.AdminDashboard) {
	if err := s.cache.Set(ctx, dashboardCacheKey, summary, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("dashboard cache write failed", zap.String("key", dashboardCacheKey), zap.Error(err))
	}
}
