package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victor297/student-clearance/internal/middleware"
	"github.com/victor297/student-clearance/internal/models"
	appErrors "github.com/victor297/student-clearance/pkg/errors"
)

type fakeClearanceSrv struct {
	createErr   error
	decideErr   error
	lastActor   *models.JWTClaims
	lastReason  string
	lastID      string
	lastStatus  models.Status
	lastFilter  models.ClearanceFilter
	lastPage    int
	lastSize    int
	certificate []byte
}

func (f *fakeClearanceSrv) Create(_ context.Context, actor *models.JWTClaims, payload models.CreateClearanceRequest) (*models.ClearanceRequest, error) {
	f.lastActor = actor
	f.lastReason = payload.Reason
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &models.ClearanceRequest{ID: "req-1", StudentID: actor.UserID, OverallStatus: models.StatusPending}, nil
}

func (f *fakeClearanceSrv) Decide(_ context.Context, actor *models.JWTClaims, id string, payload models.DecisionRequest) (*models.ClearanceRequest, error) {
	f.lastActor = actor
	f.lastID = id
	f.lastStatus = payload.Status
	if f.decideErr != nil {
		return nil, f.decideErr
	}
	return &models.ClearanceRequest{ID: id, OverallStatus: models.StatusPending}, nil
}

func (f *fakeClearanceSrv) MyRequests(_ context.Context, _ *models.JWTClaims, page, size int) ([]models.ClearanceRequestDetail, *models.Pagination, error) {
	f.lastPage, f.lastSize = page, size
	return []models.ClearanceRequestDetail{}, &models.Pagination{Page: page, PageSize: size}, nil
}

func (f *fakeClearanceSrv) PendingForOfficer(_ context.Context, _ *models.JWTClaims, page, size int) ([]models.ClearanceRequestDetail, *models.Pagination, error) {
	f.lastPage, f.lastSize = page, size
	return []models.ClearanceRequestDetail{}, &models.Pagination{Page: page, PageSize: size}, nil
}

func (f *fakeClearanceSrv) All(_ context.Context, _ *models.JWTClaims, filter models.ClearanceFilter) ([]models.ClearanceRequestDetail, *models.Pagination, error) {
	f.lastFilter = filter
	return []models.ClearanceRequestDetail{}, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize}, nil
}

func (f *fakeClearanceSrv) Get(_ context.Context, _ *models.JWTClaims, id string) (*models.ClearanceRequestView, error) {
	return nil, appErrors.Clone(appErrors.ErrNotFound, "clearance request not found")
}

func (f *fakeClearanceSrv) Certificate(_ context.Context, _ *models.JWTClaims, id string) ([]byte, string, error) {
	return f.certificate, "clearance-certificate-" + id + ".pdf", nil
}

func newClearanceContext(method, target, body string, claims *models.JWTClaims) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
		c.Request = httptest.NewRequest(method, target, reader)
		c.Request.Header.Set("Content-Type", "application/json")
	} else {
		c.Request = httptest.NewRequest(method, target, nil)
	}
	if claims != nil {
		c.Set(middleware.ContextUserKey, claims)
	}
	return c, rec
}

func TestClearanceHandlerCreate(t *testing.T) {
	srv := &fakeClearanceSrv{}
	handler := NewClearanceHandler(srv)
	claims := &models.JWTClaims{UserID: "student-1", Role: models.RoleStudent}

	c, rec := newClearanceContext(http.MethodPost, "/clearance", `{"reason":"graduating"}`, claims)
	handler.Create(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "graduating", srv.lastReason)
	assert.Same(t, claims, srv.lastActor)
}

func TestClearanceHandlerCreateWithoutBody(t *testing.T) {
	srv := &fakeClearanceSrv{}
	handler := NewClearanceHandler(srv)

	c, rec := newClearanceContext(http.MethodPost, "/clearance", "", &models.JWTClaims{UserID: "student-1"})
	handler.Create(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Empty(t, srv.lastReason)
}

func TestClearanceHandlerCreatePendingConflict(t *testing.T) {
	handler := NewClearanceHandler(&fakeClearanceSrv{createErr: appErrors.ErrPendingRequestExists})

	c, rec := newClearanceContext(http.MethodPost, "/clearance", `{}`, &models.JWTClaims{UserID: "student-1"})
	handler.Create(c)

	assert.Equal(t, http.StatusConflict, rec.Code)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "PENDING_REQUEST_EXISTS", envelope.Error.Code)
}

func TestClearanceHandlerDecide(t *testing.T) {
	srv := &fakeClearanceSrv{}
	handler := NewClearanceHandler(srv)

	c, rec := newClearanceContext(http.MethodPut, "/clearance/req-9/decision", `{"status":"approved"}`, &models.JWTClaims{UserID: "officer-1"})
	c.Params = gin.Params{{Key: "id", Value: "req-9"}}
	handler.Decide(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-9", srv.lastID)
	assert.Equal(t, models.StatusApproved, srv.lastStatus)
}

func TestClearanceHandlerDecideRejectsMalformedBody(t *testing.T) {
	srv := &fakeClearanceSrv{}
	handler := NewClearanceHandler(srv)

	c, rec := newClearanceContext(http.MethodPut, "/clearance/req-9/decision", `{"status":`, &models.JWTClaims{UserID: "officer-1"})
	handler.Decide(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, srv.lastID)
}

func TestClearanceHandlerDecideStageMismatch(t *testing.T) {
	handler := NewClearanceHandler(&fakeClearanceSrv{decideErr: appErrors.ErrStageMismatch})

	c, rec := newClearanceContext(http.MethodPut, "/clearance/req-9/decision", `{"status":"rejected","comments":"no"}`, &models.JWTClaims{UserID: "officer-1"})
	handler.Decide(c)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestClearanceHandlerAllParsesFilters(t *testing.T) {
	srv := &fakeClearanceSrv{}
	handler := NewClearanceHandler(srv)

	c, rec := newClearanceContext(http.MethodGet, "/clearance/all?status=rejected&department=Physics&page=2&page_size=5", "", &models.JWTClaims{UserID: "admin-1"})
	handler.All(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, srv.lastFilter.OverallStatus)
	assert.Equal(t, models.StatusRejected, *srv.lastFilter.OverallStatus)
	assert.Equal(t, "Physics", srv.lastFilter.StudentDepartment)
	assert.Equal(t, 2, srv.lastFilter.Page)
	assert.Equal(t, 5, srv.lastFilter.PageSize)
}

func TestClearanceHandlerPendingDefaultsPaging(t *testing.T) {
	srv := &fakeClearanceSrv{}
	handler := NewClearanceHandler(srv)

	c, rec := newClearanceContext(http.MethodGet, "/clearance/pending", "", &models.JWTClaims{UserID: "officer-1"})
	handler.Pending(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, srv.lastPage)
	assert.Equal(t, 20, srv.lastSize)
}

func TestClearanceHandlerGetNotFound(t *testing.T) {
	handler := NewClearanceHandler(&fakeClearanceSrv{})

	c, rec := newClearanceContext(http.MethodGet, "/clearance/missing", "", &models.JWTClaims{UserID: "admin-1"})
	handler.Get(c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestClearanceHandlerCertificate(t *testing.T) {
	handler := NewClearanceHandler(&fakeClearanceSrv{certificate: []byte("%PDF-1.4")})

	c, rec := newClearanceContext(http.MethodGet, "/clearance/req-1/certificate", "", &models.JWTClaims{UserID: "student-1"})
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}
	handler.Certificate(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "clearance-certificate-req-1.pdf")
	assert.Equal(t, "%PDF-1.4", rec.Body.String())
}
