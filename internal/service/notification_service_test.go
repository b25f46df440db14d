package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/victor297/student-clearance/internal/models"
	appErrors "github.com/victor297/student-clearance/pkg/errors"
)

type notificationStoreStub struct {
	items  map[string]*models.Notification
	filter models.NotificationFilter
}

func (s *notificationStoreStub) ListByUser(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error) {
	s.filter = filter
	var out []models.Notification
	for _, n := range s.items {
		if n.UserID != filter.UserID || (filter.UnreadOnly && n.Status != models.NotificationUnread) {
			continue
		}
		out = append(out, *n)
	}
	return out, len(out), nil
}

func (s *notificationStoreStub) CountUnread(ctx context.Context, userID string) (int, error) {
	count := 0
	for _, n := range s.items {
		if n.UserID == userID && n.Status == models.NotificationUnread {
			count++
		}
	}
	return count, nil
}

func (s *notificationStoreStub) MarkRead(ctx context.Context, id, userID string) error {
	n, ok := s.items[id]
	if !ok || n.UserID != userID {
		return sql.ErrNoRows
	}
	n.Status = models.NotificationRead
	return nil
}

func (s *notificationStoreStub) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	var changed int64
	for _, n := range s.items {
		if n.UserID == userID && n.Status == models.NotificationUnread {
			n.Status = models.NotificationRead
			changed++
		}
	}
	return changed, nil
}

func newNotificationStoreStub() *notificationStoreStub {
	return &notificationStoreStub{items: map[string]*models.Notification{
		"n1": {ID: "n1", UserID: "student-1", Status: models.NotificationUnread},
		"n2": {ID: "n2", UserID: "student-1", Status: models.NotificationRead},
		"n3": {ID: "n3", UserID: "student-1", Status: models.NotificationUnread},
		"n4": {ID: "n4", UserID: "officer-hod", Status: models.NotificationUnread},
	}}
}

func TestNotificationServiceListAndCount(t *testing.T) {
	repo := newNotificationStoreStub()
	svc := NewNotificationService(repo, zap.NewNop())
	ctx := context.Background()

	items, pagination, err := svc.List(ctx, studentClaims(), true, 0, 500)
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, 100, repo.filter.PageSize)
	assert.Equal(t, 2, pagination.TotalCount)

	count, err := svc.UnreadCount(ctx, studentClaims())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestNotificationServiceMarkRead(t *testing.T) {
	repo := newNotificationStoreStub()
	svc := NewNotificationService(repo, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, svc.MarkRead(ctx, studentClaims(), "n1"))
	assert.Equal(t, models.NotificationRead, repo.items["n1"].Status)

	err := svc.MarkRead(ctx, studentClaims(), "n4")
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))

	n, err := svc.MarkAllRead(ctx, studentClaims())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, models.NotificationUnread, repo.items["n4"].Status)

	_, err = svc.MarkAllRead(ctx, nil)
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}
