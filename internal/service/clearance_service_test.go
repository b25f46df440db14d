package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/victor297/student-clearance/internal/models"
	"github.com/victor297/student-clearance/internal/repository"
	"github.com/victor297/student-clearance/pkg/export"
	"github.com/victor297/student-clearance/pkg/jobs"
	appErrors "github.com/victor297/student-clearance/pkg/errors"
)

type clearanceStoreStub struct {
	requests    map[string]*models.ClearanceRequest
	createErr   error
	created     []models.Notification
	transitions []repository.TransitionParams
	staleOnce   bool
	history     []models.ClearanceDecision
	lastFilter  models.ClearanceFilter
}

func newClearanceStoreStub() *clearanceStoreStub {
	return &clearanceStoreStub{requests: map[string]*models.ClearanceRequest{}}
}

func (s *clearanceStoreStub) Create(ctx context.Context, req *models.ClearanceRequest, notes []models.Notification) error {
	if s.createErr != nil {
		return s.createErr
	}
	copy := *req
	s.requests[req.ID] = &copy
	s.created = append(s.created, notes...)
	return nil
}

func (s *clearanceStoreStub) GetByID(ctx context.Context, id string) (*models.ClearanceRequest, error) {
	req, ok := s.requests[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *req
	copy.Departments = req.Departments.Clone()
	return &copy, nil
}

func (s *clearanceStoreStub) GetDetail(ctx context.Context, id string) (*models.ClearanceRequestDetail, error) {
	req, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.ClearanceRequestDetail{ClearanceRequest: *req}, nil
}

func (s *clearanceStoreStub) HasPending(ctx context.Context, studentID string) (bool, error) {
	for _, req := range s.requests {
		if req.StudentID == studentID && req.OverallStatus == models.StatusPending {
			return true, nil
		}
	}
	return false, nil
}

func (s *clearanceStoreStub) List(ctx context.Context, filter models.ClearanceFilter) ([]models.ClearanceRequestDetail, int, error) {
	s.lastFilter = filter
	var out []models.ClearanceRequestDetail
	for _, req := range s.requests {
		out = append(out, models.ClearanceRequestDetail{ClearanceRequest: *req})
	}
	return out, len(out), nil
}

func (s *clearanceStoreStub) ApplyTransition(ctx context.Context, params repository.TransitionParams) (int, error) {
	if s.staleOnce {
		s.staleOnce = false
		return 0, repository.ErrStaleVersion
	}
	stored, ok := s.requests[params.Request.ID]
	if !ok || stored.Version != params.ExpectedVersion {
		return 0, repository.ErrStaleVersion
	}
	s.transitions = append(s.transitions, params)
	next := params.Request
	next.Version = params.ExpectedVersion + 1
	s.requests[next.ID] = &next
	return next.Version, nil
}

func (s *clearanceStoreStub) History(ctx context.Context, requestID string) ([]models.ClearanceDecision, error) {
	return s.history, nil
}

type recordingDispatcher struct {
	jobs []jobs.Job
}

func (d *recordingDispatcher) Enqueue(job jobs.Job) error {
	d.jobs = append(d.jobs, job)
	return nil
}

func (d *recordingDispatcher) emails() []EmailJob {
	var out []EmailJob
	for _, job := range d.jobs {
		if email, ok := job.Payload.(EmailJob); ok {
			out = append(out, email)
		}
	}
	return out
}

type certificateStub struct {
	rendered []export.Certificate
}

func (c *certificateStub) RenderCertificate(cert export.Certificate) ([]byte, error) {
	c.rendered = append(c.rendered, cert)
	return []byte("%PDF-1.4"), nil
}

type clearanceFixture struct {
	svc   *ClearanceService
	store *clearanceStoreStub
	users *mockUserRepo
	queue *recordingDispatcher
	cache *invalidatorStub
	certs *certificateStub
	now   time.Time
}

func newClearanceFixture(t *testing.T) *clearanceFixture {
	t.Helper()
	users := &mockUserRepo{users: map[string]*models.User{}}
	matric := "CSC/2019/001"
	users.users["student-1"] = &models.User{
		ID: "student-1", Email: "ada@uni.edu", FirstName: "Ada", LastName: "Obi",
		Role: models.RoleStudent, Department: "Computer Science", StudentID: &matric, IsEligible: true,
	}
	for _, dept := range models.Sequence {
		d := dept
		id := "officer-" + string(d)
		users.users[id] = &models.User{ID: id, Email: id + "@uni.edu", FirstName: "Officer", LastName: string(d), Role: models.RoleOfficer, OfficerDepartment: &d}
	}

	store := newClearanceStoreStub()
	queue := &recordingDispatcher{}
	cache := &invalidatorStub{}
	certs := &certificateStub{}
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	notifier := NewNotifier(users, nil, queue, nil, zap.NewNop(), NotifierConfig{PortalURL: "https://clearance.example.edu"})
	svc := NewClearanceService(store, users, notifier, users, nil, zap.NewNop(),
		WithClearanceCache(cache),
		WithClearanceCertificates(certs),
		WithClearanceClock(func() time.Time { return now }),
	)
	return &clearanceFixture{svc: svc, store: store, users: users, queue: queue, cache: cache, certs: certs, now: now}
}

// seed stores a pending request whose departments before stage are approved.
func (f *clearanceFixture) seed(stage models.Department) *models.ClearanceRequest {
	records := models.NewDepartmentRecords()
	ts := f.now.Add(-time.Hour)
	for _, dept := range models.Sequence {
		if dept == stage {
			break
		}
		officer := "officer-" + string(dept)
		records[dept] = models.DepartmentRecord{Status: models.StatusApproved, OfficerID: &officer, Timestamp: &ts}
	}
	req := &models.ClearanceRequest{
		ID:            "req-1",
		StudentID:     "student-1",
		Departments:   records,
		OverallStatus: models.StatusPending,
		CurrentStage:  models.StageOf(stage),
		Version:       3,
	}
	f.store.requests[req.ID] = req
	return req
}

func studentClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "student-1", Role: models.RoleStudent}
}

func officerClaims(dept models.Department) *models.JWTClaims {
	return &models.JWTClaims{UserID: "officer-" + string(dept), Role: models.RoleOfficer}
}

func TestClearanceServiceCreate(t *testing.T) {
	f := newClearanceFixture(t)

	req, err := f.svc.Create(context.Background(), studentClaims(), models.CreateClearanceRequest{Reason: "  graduating  "})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, req.OverallStatus)
	assert.Equal(t, models.StageOf(models.DeptHOD), req.CurrentStage)
	assert.Equal(t, "graduating", req.Reason)
	assert.Len(t, req.Departments, len(models.Sequence))

	require.Len(t, f.store.created, 1)
	assert.Equal(t, "officer-hod", f.store.created[0].UserID)
	assert.Equal(t, models.NotificationNewRequest, f.store.created[0].Type)
	assert.Equal(t, "New clearance request from Ada Obi", f.store.created[0].Message)

	emails := f.queue.emails()
	require.Len(t, emails, 1)
	assert.Equal(t, "officer-hod@uni.edu", emails[0].Message.To)
	assert.Equal(t, subjectNewRequest, emails[0].Message.Subject)

	assert.Equal(t, []string{dashboardCacheKey}, f.cache.patterns)
	require.Len(t, f.users.auditLogs, 1)
	assert.Equal(t, models.AuditActionClearanceCreate, f.users.auditLogs[0].Action)
}

func TestClearanceServiceCreateRejectsIneligible(t *testing.T) {
	f := newClearanceFixture(t)
	f.users.users["student-1"].IsEligible = false

	_, err := f.svc.Create(context.Background(), studentClaims(), models.CreateClearanceRequest{})
	assert.True(t, appErrors.Is(err, appErrors.ErrNotEligible))
	assert.Empty(t, f.store.requests)
	assert.Empty(t, f.queue.jobs)
}

func TestClearanceServiceCreateRejectsSecondPending(t *testing.T) {
	f := newClearanceFixture(t)
	f.seed(models.DeptLibrary)

	_, err := f.svc.Create(context.Background(), studentClaims(), models.CreateClearanceRequest{})
	assert.True(t, appErrors.Is(err, appErrors.ErrPendingRequestExists))
	assert.Len(t, f.store.requests, 1)
}

func TestClearanceServiceCreateAllowedAfterRejection(t *testing.T) {
	f := newClearanceFixture(t)
	ctx := context.Background()

	first, err := f.svc.Create(ctx, studentClaims(), models.CreateClearanceRequest{Reason: "graduating"})
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, studentClaims(), models.CreateClearanceRequest{})
	assert.True(t, appErrors.Is(err, appErrors.ErrPendingRequestExists))

	rejected, err := f.svc.Decide(ctx, officerClaims(models.DeptHOD), first.ID, models.DecisionRequest{Status: models.StatusRejected, Comments: "missing transcript"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, rejected.OverallStatus)

	second, err := f.svc.Create(ctx, studentClaims(), models.CreateClearanceRequest{Reason: "second attempt"})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, models.StatusPending, second.OverallStatus)
	assert.Len(t, f.store.requests, 2)
}

func TestClearanceServiceCreateMapsUniqueViolation(t *testing.T) {
	f := newClearanceFixture(t)
	f.store.createErr = &repository.DuplicateError{Constraint: "clearance_requests_one_pending"}

	_, err := f.svc.Create(context.Background(), studentClaims(), models.CreateClearanceRequest{})
	assert.True(t, appErrors.Is(err, appErrors.ErrPendingRequestExists))
	assert.Empty(t, f.queue.jobs)
}

func TestClearanceServiceCreateRequiresStudent(t *testing.T) {
	f := newClearanceFixture(t)

	_, err := f.svc.Create(context.Background(), officerClaims(models.DeptHOD), models.CreateClearanceRequest{})
	assert.True(t, appErrors.Is(err, appErrors.ErrRoleMismatch))

	_, err = f.svc.Create(context.Background(), nil, models.CreateClearanceRequest{})
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}

func TestClearanceServiceDecideAdvancesStage(t *testing.T) {
	f := newClearanceFixture(t)
	f.seed(models.DeptHOD)

	req, err := f.svc.Decide(context.Background(), officerClaims(models.DeptHOD), "req-1", models.DecisionRequest{Status: models.StatusApproved, Comments: "ok"})
	require.NoError(t, err)
	assert.Equal(t, models.StageOf(models.DeptBursary), req.CurrentStage)
	assert.Equal(t, models.StatusPending, req.OverallStatus)
	assert.Equal(t, 4, req.Version)

	rec := req.Departments[models.DeptHOD]
	assert.Equal(t, models.StatusApproved, rec.Status)
	require.NotNil(t, rec.OfficerID)
	assert.Equal(t, "officer-hod", *rec.OfficerID)
	assert.Equal(t, f.now, *rec.Timestamp)

	require.Len(t, f.store.transitions, 1)
	params := f.store.transitions[0]
	assert.Equal(t, 3, params.ExpectedVersion)
	require.NotNil(t, params.History)
	assert.Equal(t, models.DecisionKindDecision, params.History.Kind)

	recipients := map[string]string{}
	for _, n := range params.Notifications {
		recipients[n.UserID] = n.Message
	}
	assert.Equal(t, "Clearance request from Ada Obi requires your approval", recipients["officer-bursary"])
	assert.Equal(t, "Your clearance request has been approved by hod department", recipients["student-1"])

	emails := f.queue.emails()
	require.Len(t, emails, 1)
	assert.Equal(t, "officer-bursary@uni.edu", emails[0].Message.To)
	assert.Equal(t, subjectApprovalRequired, emails[0].Message.Subject)
}

func TestClearanceServiceDecideFinalApprovalSendsOneCertificate(t *testing.T) {
	f := newClearanceFixture(t)
	f.seed(models.DeptRegistrar)

	req, err := f.svc.Decide(context.Background(), officerClaims(models.DeptRegistrar), "req-1", models.DecisionRequest{Status: models.StatusApproved})
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, req.OverallStatus)
	assert.Equal(t, models.StageCompleted, req.CurrentStage)
	require.NotNil(t, req.CompletedAt)

	emails := f.queue.emails()
	require.Len(t, emails, 1)
	assert.Equal(t, EmailKindCertificate, emails[0].Kind)
	assert.Equal(t, "ada@uni.edu", emails[0].Message.To)
	require.NotNil(t, emails[0].Certificate)
	assert.Equal(t, "CSC/2019/001", emails[0].Certificate.StudentID)
	assert.Len(t, emails[0].Certificate.Approvals, len(models.Sequence))

	params := f.store.transitions[0]
	require.Len(t, params.Notifications, 2)
	for _, n := range params.Notifications {
		assert.Equal(t, "student-1", n.UserID)
	}
}

func TestClearanceServiceDecideRejectionNotifiesStudentOnly(t *testing.T) {
	f := newClearanceFixture(t)
	f.seed(models.DeptLibrary)

	req, err := f.svc.Decide(context.Background(), officerClaims(models.DeptLibrary), "req-1", models.DecisionRequest{Status: models.StatusRejected, Comments: "overdue books"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, req.OverallStatus)
	assert.Equal(t, models.StageCompleted, req.CurrentStage)
	assert.Equal(t, "overdue books", req.Departments[models.DeptLibrary].Comments)

	params := f.store.transitions[0]
	require.Len(t, params.Notifications, 1)
	assert.Equal(t, "student-1", params.Notifications[0].UserID)
	assert.Equal(t, "Your clearance request has been rejected by library department", params.Notifications[0].Message)
	assert.Empty(t, f.queue.jobs)
}

func TestClearanceServiceDecideRejectionRequiresComments(t *testing.T) {
	f := newClearanceFixture(t)
	f.seed(models.DeptHOD)

	_, err := f.svc.Decide(context.Background(), officerClaims(models.DeptHOD), "req-1", models.DecisionRequest{Status: models.StatusRejected, Comments: "   "})
	assert.True(t, appErrors.Is(err, appErrors.ErrCommentsRequired))
	assert.Empty(t, f.store.transitions)
}

func TestClearanceServiceDecideStageMismatch(t *testing.T) {
	f := newClearanceFixture(t)
	f.seed(models.DeptHOD)

	_, err := f.svc.Decide(context.Background(), officerClaims(models.DeptBursary), "req-1", models.DecisionRequest{Status: models.StatusApproved})
	assert.True(t, appErrors.Is(err, appErrors.ErrStageMismatch))
	assert.Empty(t, f.store.transitions)
	assert.Empty(t, f.queue.jobs)
}

func TestClearanceServiceDecideUsesStoredDepartment(t *testing.T) {
	f := newClearanceFixture(t)
	f.seed(models.DeptHOD)
	bursary := models.DeptBursary
	f.users.users["officer-hod"].OfficerDepartment = &bursary

	_, err := f.svc.Decide(context.Background(), officerClaims(models.DeptHOD), "req-1", models.DecisionRequest{Status: models.StatusApproved})
	assert.True(t, appErrors.Is(err, appErrors.ErrStageMismatch))
}

func TestClearanceServiceDecideStaleVersion(t *testing.T) {
	f := newClearanceFixture(t)
	f.seed(models.DeptHOD)
	f.store.staleOnce = true

	_, err := f.svc.Decide(context.Background(), officerClaims(models.DeptHOD), "req-1", models.DecisionRequest{Status: models.StatusApproved})
	assert.True(t, appErrors.Is(err, appErrors.ErrConcurrentUpdate))
	assert.Empty(t, f.queue.jobs)
	assert.Empty(t, f.cache.patterns)
}

func TestClearanceServiceDecideClosedRequest(t *testing.T) {
	f := newClearanceFixture(t)
	req := f.seed(models.DeptHOD)
	req.OverallStatus = models.StatusApproved
	req.CurrentStage = models.StageCompleted

	_, err := f.svc.Decide(context.Background(), officerClaims(models.DeptHOD), "req-1", models.DecisionRequest{Status: models.StatusApproved})
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))
}

func TestClearanceServiceDecideNotFound(t *testing.T) {
	f := newClearanceFixture(t)

	_, err := f.svc.Decide(context.Background(), officerClaims(models.DeptHOD), "missing", models.DecisionRequest{Status: models.StatusApproved})
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestClearanceServiceDecideRequiresOfficer(t *testing.T) {
	f := newClearanceFixture(t)
	f.seed(models.DeptHOD)

	_, err := f.svc.Decide(context.Background(), studentClaims(), "req-1", models.DecisionRequest{Status: models.StatusApproved})
	assert.True(t, appErrors.Is(err, appErrors.ErrRoleMismatch))
}

func TestClearanceServicePendingForOfficerFiltersByStage(t *testing.T) {
	f := newClearanceFixture(t)
	f.seed(models.DeptMedical)

	_, pagination, err := f.svc.PendingForOfficer(context.Background(), officerClaims(models.DeptMedical), 0, 0)
	require.NoError(t, err)
	require.NotNil(t, f.store.lastFilter.PendingFor)
	assert.Equal(t, models.DeptMedical, *f.store.lastFilter.PendingFor)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 20, pagination.PageSize)
}

func TestClearanceServiceAllRequiresAdmin(t *testing.T) {
	f := newClearanceFixture(t)

	_, _, err := f.svc.All(context.Background(), studentClaims(), models.ClearanceFilter{})
	assert.True(t, appErrors.Is(err, appErrors.ErrRoleMismatch))

	bad := models.Status("archived")
	_, _, err = f.svc.All(context.Background(), &models.JWTClaims{UserID: "admin", Role: models.RoleAdmin}, models.ClearanceFilter{OverallStatus: &bad})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestClearanceServiceGetRestrictsStudents(t *testing.T) {
	f := newClearanceFixture(t)
	f.seed(models.DeptHOD)
	f.store.history = []models.ClearanceDecision{{ID: "h1", RequestID: "req-1"}}

	view, err := f.svc.Get(context.Background(), studentClaims(), "req-1")
	require.NoError(t, err)
	assert.Len(t, view.History, 1)

	_, err = f.svc.Get(context.Background(), &models.JWTClaims{UserID: "student-2", Role: models.RoleStudent}, "req-1")
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestClearanceServiceCertificate(t *testing.T) {
	f := newClearanceFixture(t)
	req := f.seed(models.DeptHOD)

	_, _, err := f.svc.Certificate(context.Background(), studentClaims(), "req-1")
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))

	completed := f.now
	req.OverallStatus = models.StatusApproved
	req.CurrentStage = models.StageCompleted
	req.CompletedAt = &completed

	pdf, name, err := f.svc.Certificate(context.Background(), studentClaims(), "req-1")
	require.NoError(t, err)
	assert.NotEmpty(t, pdf)
	assert.Equal(t, certificateFilename("req-1"), name)
	require.Len(t, f.certs.rendered, 1)
	assert.Equal(t, "Ada Obi", f.certs.rendered[0].StudentName)

	_, _, err = f.svc.Certificate(context.Background(), officerClaims(models.DeptHOD), "req-1")
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestClearanceServiceDecideRefusesInconsistentRequest(t *testing.T) {
	f := newClearanceFixture(t)
	req := f.seed(models.DeptHOD)
	delete(req.Departments, models.DeptLibrary)

	_, err := f.svc.Decide(context.Background(), officerClaims(models.DeptHOD), "req-1", models.DecisionRequest{Status: models.StatusApproved})
	assert.True(t, appErrors.Is(err, appErrors.ErrInternal))
	assert.Empty(t, f.store.transitions)
}
