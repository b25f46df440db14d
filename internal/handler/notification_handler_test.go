package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victor297/student-clearance/internal/middleware"
	"github.com/victor297/student-clearance/internal/models"
	appErrors "github.com/victor297/student-clearance/pkg/errors"
)

type fakeNotificationSrv struct {
	unreadOnly bool
	marked     string
}

func (f *fakeNotificationSrv) List(_ context.Context, _ *models.JWTClaims, unreadOnly bool, page, size int) ([]models.Notification, *models.Pagination, error) {
	f.unreadOnly = unreadOnly
	return []models.Notification{{ID: "n1"}}, &models.Pagination{Page: page, PageSize: size, TotalCount: 1}, nil
}

func (f *fakeNotificationSrv) UnreadCount(context.Context, *models.JWTClaims) (int, error) {
	return 3, nil
}

func (f *fakeNotificationSrv) MarkRead(_ context.Context, _ *models.JWTClaims, id string) error {
	if id == "missing" {
		return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
	}
	f.marked = id
	return nil
}

func (f *fakeNotificationSrv) MarkAllRead(context.Context, *models.JWTClaims) (int64, error) {
	return 2, nil
}

func notificationContext(target string) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, target, nil)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "student-1"})
	return c, rec
}

func TestNotificationHandlerList(t *testing.T) {
	srv := &fakeNotificationSrv{}
	handler := NewNotificationHandler(srv)

	c, rec := notificationContext("/notifications?unread=true")
	handler.List(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, srv.unreadOnly)
}

func TestNotificationHandlerUnreadCount(t *testing.T) {
	handler := NewNotificationHandler(&fakeNotificationSrv{})

	c, rec := notificationContext("/notifications/unread-count")
	handler.UnreadCount(c)

	require.Equal(t, http.StatusOK, rec.Code)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, float64(3), envelope.Data["unread"])
}

func TestNotificationHandlerMarkRead(t *testing.T) {
	srv := &fakeNotificationSrv{}
	handler := NewNotificationHandler(srv)

	c, rec := notificationContext("/notifications/n1/read")
	c.Params = gin.Params{{Key: "id", Value: "n1"}}
	handler.MarkRead(c)
	assert.Equal(t, http.StatusNoContent, c.Writer.Status())
	assert.Equal(t, "n1", srv.marked)

	c, rec = notificationContext("/notifications/missing/read")
	c.Params = gin.Params{{Key: "id", Value: "missing"}}
	handler.MarkRead(c)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
