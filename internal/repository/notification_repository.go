package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/victor297/student-clearance/internal/models"
)

const notificationColumns = `id, user_id, message, type, status, related_request, read_at, created_at`

// NotificationRepository persists in-app notifications.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// CreateBatch inserts notifications in a single transaction.
func (r *NotificationRepository) CreateBatch(ctx context.Context, notes []models.Notification) error {
	if len(notes) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin notification tx: %w", err)
	}
	if err := insertNotifications(ctx, tx, notes); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit notification tx: %w", err)
	}
	return nil
}

func insertNotifications(ctx context.Context, ext sqlx.ExtContext, notes []models.Notification) error {
	const query = `INSERT INTO notifications (id, user_id, message, type, status, related_request, read_at, created_at)
	VALUES (:id, :user_id, :message, :type, :status, :related_request, :read_at, :created_at)`
	now := time.Now().UTC()
	for i := range notes {
		if notes[i].ID == "" {
			notes[i].ID = uuid.NewString()
		}
		if notes[i].Status == "" {
			notes[i].Status = models.NotificationUnread
		}
		if notes[i].CreatedAt.IsZero() {
			notes[i].CreatedAt = now
		}
		if _, err := sqlx.NamedExecContext(ctx, ext, query, notes[i]); err != nil {
			return fmt.Errorf("insert notification: %w", err)
		}
	}
	return nil
}

// ListByUser returns a page of notifications, newest first, with the total.
func (r *NotificationRepository) ListByUser(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error) {
	where := `FROM notifications WHERE user_id = $1`
	args := []interface{}{filter.UserID}
	if filter.UnreadOnly {
		where += ` AND status = $2`
		args = append(args, models.NotificationUnread)
	}

	limit, offset := pageBounds(filter.Page, filter.PageSize)
	query := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d", notificationColumns, where, limit, offset)
	var notes []models.Notification
	if err := r.db.SelectContext(ctx, &notes, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}
	return notes, total, nil
}

// CountUnread returns the number of unread notifications for a user.
func (r *NotificationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	var count int
	const query = `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND status = $2`
	if err := r.db.GetContext(ctx, &count, query, userID, models.NotificationUnread); err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

// MarkRead marks one of the user's notifications read. sql.ErrNoRows is
// returned when the notification does not belong to the user.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, userID string) error {
	const query = `UPDATE notifications SET status = $3, read_at = COALESCE(read_at, $4) WHERE id = $1 AND user_id = $2`
	result, err := r.db.ExecContext(ctx, query, id, userID, models.NotificationRead, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check notification rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkAllRead marks every unread notification of the user read.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	const query = `UPDATE notifications SET status = $2, read_at = $3 WHERE user_id = $1 AND status = $4`
	result, err := r.db.ExecContext(ctx, query, userID, models.NotificationRead, time.Now().UTC(), models.NotificationUnread)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return result.RowsAffected()
}
