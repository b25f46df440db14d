package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/victor297/student-clearance/internal/models"
)

const departmentColumns = `id, name, description, is_active, created_at, updated_at`

// DepartmentRepository manages the department directory.
type DepartmentRepository struct {
	db *sqlx.DB
}

// NewDepartmentRepository constructs the repository.
func NewDepartmentRepository(db *sqlx.DB) *DepartmentRepository {
	return &DepartmentRepository{db: db}
}

// List returns departments ordered by name with their officers attached.
func (r *DepartmentRepository) List(ctx context.Context, activeOnly bool) ([]models.DepartmentProfile, error) {
	query := `SELECT ` + departmentColumns + ` FROM departments`
	if activeOnly {
		query += ` WHERE is_active = TRUE`
	}
	query += ` ORDER BY name`

	var depts []models.DepartmentProfile
	if err := r.db.SelectContext(ctx, &depts, query); err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	if err := r.attachOfficers(ctx, depts); err != nil {
		return nil, err
	}
	return depts, nil
}

// GetByID fetches one department with officers.
func (r *DepartmentRepository) GetByID(ctx context.Context, id string) (*models.DepartmentProfile, error) {
	query := `SELECT ` + departmentColumns + ` FROM departments WHERE id = $1`
	var dept models.DepartmentProfile
	if err := r.db.GetContext(ctx, &dept, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get department: %w", err)
	}
	list := []models.DepartmentProfile{dept}
	if err := r.attachOfficers(ctx, list); err != nil {
		return nil, err
	}
	return &list[0], nil
}

func (r *DepartmentRepository) attachOfficers(ctx context.Context, depts []models.DepartmentProfile) error {
	if len(depts) == 0 {
		return nil
	}
	ids := make([]string, len(depts))
	index := make(map[string]int, len(depts))
	for i, d := range depts {
		ids[i] = d.ID
		index[d.ID] = i
		depts[i].Officers = []models.OfficerInfo{}
	}
	const query = `SELECT u.id, dof.department_id, u.first_name, u.last_name, u.email, u.officer_department
	FROM department_officers dof JOIN users u ON u.id = dof.officer_id
	WHERE dof.department_id = ANY($1) ORDER BY u.last_name, u.first_name`
	var officers []models.OfficerInfo
	if err := r.db.SelectContext(ctx, &officers, query, pq.Array(ids)); err != nil {
		return fmt.Errorf("list department officers: %w", err)
	}
	for _, o := range officers {
		if i, ok := index[o.DepartmentID]; ok {
			depts[i].Officers = append(depts[i].Officers, o)
		}
	}
	return nil
}

// Create inserts a department. A name clash surfaces as *DuplicateError.
func (r *DepartmentRepository) Create(ctx context.Context, dept *models.DepartmentProfile) error {
	if dept.ID == "" {
		dept.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	dept.CreatedAt, dept.UpdatedAt = now, now
	dept.IsActive = true
	const query = `INSERT INTO departments (id, name, description, is_active, created_at, updated_at)
	VALUES (:id, :name, :description, :is_active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, dept); err != nil {
		return fmt.Errorf("create department: %w", wrapDuplicate(err))
	}
	dept.Officers = []models.OfficerInfo{}
	return nil
}

// AddOfficer links an officer to a department. Adding twice is a no-op.
func (r *DepartmentRepository) AddOfficer(ctx context.Context, departmentID, officerID string) error {
	const query = `INSERT INTO department_officers (department_id, officer_id, created_at) VALUES ($1, $2, $3)
	ON CONFLICT (department_id, officer_id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, departmentID, officerID, time.Now().UTC()); err != nil {
		return fmt.Errorf("add department officer: %w", err)
	}
	return nil
}

// RemoveOfficer unlinks an officer. Removing an absent link is a no-op.
func (r *DepartmentRepository) RemoveOfficer(ctx context.Context, departmentID, officerID string) error {
	const query = `DELETE FROM department_officers WHERE department_id = $1 AND officer_id = $2`
	if _, err := r.db.ExecContext(ctx, query, departmentID, officerID); err != nil {
		return fmt.Errorf("remove department officer: %w", err)
	}
	return nil
}
