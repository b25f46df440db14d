package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/victor297/student-clearance/internal/models"
)

const clearanceColumns = `cr.id, cr.student_id, cr.departments, cr.overall_status, cr.current_stage, cr.reason,
       cr.submitted_at, cr.completed_at, cr.version, cr.created_at, cr.updated_at`

const studentSummaryColumns = `u.first_name AS student_first_name, u.last_name AS student_last_name,
       u.email AS student_email, u.department AS student_department, u.student_id AS student_matric_no`

// ClearanceRepository persists clearance requests and their history.
type ClearanceRepository struct {
	db *sqlx.DB
}

// NewClearanceRepository constructs the repository.
func NewClearanceRepository(db *sqlx.DB) *ClearanceRepository {
	return &ClearanceRepository{db: db}
}

// Create inserts a request together with the notifications it triggers. The
// partial unique index on pending requests surfaces as *DuplicateError.
func (r *ClearanceRepository) Create(ctx context.Context, req *models.ClearanceRequest, notes []models.Notification) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin clearance tx: %w", err)
	}
	const query = `INSERT INTO clearance_requests
	(id, student_id, departments, overall_status, current_stage, reason, submitted_at, completed_at, version, created_at, updated_at)
	VALUES (:id, :student_id, :departments, :overall_status, :current_stage, :reason, :submitted_at, :completed_at, :version, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, req); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("create clearance request: %w", wrapDuplicate(err))
	}
	if err := insertNotifications(ctx, tx, notes); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit clearance tx: %w", err)
	}
	return nil
}

// GetByID fetches a request by identifier.
func (r *ClearanceRepository) GetByID(ctx context.Context, id string) (*models.ClearanceRequest, error) {
	query := `SELECT ` + clearanceColumns + ` FROM clearance_requests cr WHERE cr.id = $1`
	var req models.ClearanceRequest
	if err := r.db.GetContext(ctx, &req, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get clearance request: %w", err)
	}
	return &req, nil
}

// GetDetail fetches a request joined with its student.
func (r *ClearanceRepository) GetDetail(ctx context.Context, id string) (*models.ClearanceRequestDetail, error) {
	query := `SELECT ` + clearanceColumns + `, ` + studentSummaryColumns + `
	FROM clearance_requests cr JOIN users u ON u.id = cr.student_id WHERE cr.id = $1`
	var detail models.ClearanceRequestDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get clearance detail: %w", err)
	}
	return &detail, nil
}

// HasPending reports whether the student already has a pending request.
func (r *ClearanceRepository) HasPending(ctx context.Context, studentID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM clearance_requests WHERE student_id = $1 AND overall_status = $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, studentID, models.StatusPending); err != nil {
		return false, fmt.Errorf("check pending request: %w", err)
	}
	return exists, nil
}

// List returns requests matching the filter, newest first, with the total.
func (r *ClearanceRepository) List(ctx context.Context, filter models.ClearanceFilter) ([]models.ClearanceRequestDetail, int, error) {
	from := strings.Builder{}
	from.WriteString(` FROM clearance_requests cr JOIN users u ON u.id = cr.student_id`)
	args := make([]interface{}, 0, 4)
	conditions := make([]string, 0, 4)

	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conditions = append(conditions, fmt.Sprintf("cr.student_id = $%d", len(args)))
	}
	if filter.OverallStatus != nil {
		args = append(args, *filter.OverallStatus)
		conditions = append(conditions, fmt.Sprintf("cr.overall_status = $%d", len(args)))
	}
	if filter.StudentDepartment != "" {
		args = append(args, filter.StudentDepartment)
		conditions = append(conditions, fmt.Sprintf("u.department = $%d", len(args)))
	}
	if filter.PendingFor != nil {
		args = append(args, string(*filter.PendingFor))
		n := len(args)
		conditions = append(conditions, fmt.Sprintf("cr.current_stage = $%d AND cr.departments -> $%d::text ->> 'status' = 'pending'", n, n))
	}
	if len(conditions) > 0 {
		from.WriteString(" WHERE ")
		from.WriteString(strings.Join(conditions, " AND "))
	}

	limit, offset := pageBounds(filter.Page, filter.PageSize)
	query := fmt.Sprintf("SELECT %s, %s%s ORDER BY cr.created_at DESC, cr.id LIMIT %d OFFSET %d",
		clearanceColumns, studentSummaryColumns, from.String(), limit, offset)

	var requests []models.ClearanceRequestDetail
	if err := r.db.SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list clearance requests: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*)"+from.String(), args...); err != nil {
		return nil, 0, fmt.Errorf("count clearance requests: %w", err)
	}
	return requests, total, nil
}

// TransitionParams groups everything a state change writes atomically.
type TransitionParams struct {
	Request         models.ClearanceRequest
	ExpectedVersion int
	History         *models.ClearanceDecision
	Documents       []models.Document
	Notifications   []models.Notification
}

// ApplyTransition persists a new request state when the stored version still
// equals ExpectedVersion. ErrStaleVersion is returned otherwise, and nothing
// is written.
func (r *ClearanceRepository) ApplyTransition(ctx context.Context, params TransitionParams) (int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transition tx: %w", err)
	}

	const update = `UPDATE clearance_requests
	SET departments = $3, overall_status = $4, current_stage = $5, completed_at = $6, updated_at = $7, version = version + 1
	WHERE id = $1 AND version = $2`
	req := params.Request
	updatedAt := req.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	result, err := tx.ExecContext(ctx, update, req.ID, params.ExpectedVersion,
		req.Departments, req.OverallStatus, req.CurrentStage, req.CompletedAt, updatedAt)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("update clearance request: %w", wrapDuplicate(err))
	}
	rows, err := result.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("check transition rows: %w", err)
	}
	if rows == 0 {
		_ = tx.Rollback()
		return 0, ErrStaleVersion
	}

	if params.History != nil {
		const insertHistory = `INSERT INTO clearance_decisions (id, request_id, department, status, actor_id, comments, kind, created_at)
		VALUES (:id, :request_id, :department, :status, :actor_id, :comments, :kind, :created_at)`
		if _, err := tx.NamedExecContext(ctx, insertHistory, params.History); err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("insert clearance decision: %w", err)
		}
	}
	if err := insertDocuments(ctx, tx, params.Documents); err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	if err := insertNotifications(ctx, tx, params.Notifications); err != nil {
		_ = tx.Rollback()
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transition tx: %w", err)
	}
	return params.ExpectedVersion + 1, nil
}

// History returns the decision trail of a request in chronological order.
func (r *ClearanceRepository) History(ctx context.Context, requestID string) ([]models.ClearanceDecision, error) {
	const query = `SELECT id, request_id, department, status, actor_id, comments, kind, created_at
	FROM clearance_decisions WHERE request_id = $1 ORDER BY created_at, id`
	var items []models.ClearanceDecision
	if err := r.db.SelectContext(ctx, &items, query, requestID); err != nil {
		return nil, fmt.Errorf("list clearance decisions: %w", err)
	}
	return items, nil
}

// CountByStatus aggregates requests by overall status.
func (r *ClearanceRepository) CountByStatus(ctx context.Context) ([]models.StatusCount, error) {
	const query = `SELECT overall_status, COUNT(*) AS count FROM clearance_requests GROUP BY overall_status`
	var counts []models.StatusCount
	if err := r.db.SelectContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("count requests by status: %w", err)
	}
	return counts, nil
}

// CountPendingByStage aggregates pending requests by their current stage.
func (r *ClearanceRepository) CountPendingByStage(ctx context.Context) ([]models.StageCount, error) {
	const query = `SELECT current_stage, COUNT(*) AS count FROM clearance_requests WHERE overall_status = $1 GROUP BY current_stage`
	var counts []models.StageCount
	if err := r.db.SelectContext(ctx, &counts, query, models.StatusPending); err != nil {
		return nil, fmt.Errorf("count pending by stage: %w", err)
	}
	return counts, nil
}
