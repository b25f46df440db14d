package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victor297/student-clearance/internal/models"
)

func TestNotificationRepositoryListUnread(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM notifications WHERE user_id = $1 AND status = $2 ORDER BY created_at DESC LIMIT 20 OFFSET 0")).
		WithArgs("u1", models.NotificationUnread).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "message", "type", "status", "related_request", "read_at", "created_at"}).
			AddRow("n1", "u1", "hello", "new_request", "unread", "req-1", nil, now))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND status = $2")).
		WithArgs("u1", models.NotificationUnread).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	notes, total, err := repo.ListByUser(context.Background(), models.NotificationFilter{UserID: "u1", UnreadOnly: true})
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, models.NotificationNewRequest, notes[0].Type)
	require.NotNil(t, notes[0].RelatedRequest)
	assert.Equal(t, "req-1", *notes[0].RelatedRequest)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepositoryMarkReadForeign(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE notifications SET status = $3")).
		WithArgs("n1", "someone-else", models.NotificationRead, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkRead(context.Background(), "n1", "someone-else")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepositoryMarkAllRead(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE notifications SET status = $2, read_at = $3 WHERE user_id = $1 AND status = $4")).
		WithArgs("u1", models.NotificationRead, sqlmock.AnyArg(), models.NotificationUnread).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.MarkAllRead(context.Background(), "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepositoryCreateBatchEmpty(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	require.NoError(t, repo.CreateBatch(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepositoryCreateBatchRollsBack(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO notifications")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO notifications")).WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	err := repo.CreateBatch(context.Background(), []models.Notification{{UserID: "a"}, {UserID: "b"}})
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.NoError(t, mock.ExpectationsWereMet())
}
