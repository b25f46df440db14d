package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victor297/student-clearance/internal/models"
)

func TestDepartmentRepositoryListAttachesOfficers(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewDepartmentRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM departments WHERE is_active = TRUE ORDER BY name")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description", "is_active", "created_at", "updated_at"}).
			AddRow("d1", "library", "Main library", true, now, now).
			AddRow("d2", "medical", "", true, now, now))
	mock.ExpectQuery(regexp.QuoteMeta("FROM department_officers dof JOIN users u")).
		WithArgs(pq.Array([]string{"d1", "d2"})).
		WillReturnRows(sqlmock.NewRows([]string{"id", "department_id", "first_name", "last_name", "email", "officer_department"}).
			AddRow("o1", "d1", "Kemi", "Lawal", "kemi@uni.edu", "library"))

	depts, err := repo.List(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, depts, 2)
	require.Len(t, depts[0].Officers, 1)
	assert.Equal(t, "kemi@uni.edu", depts[0].Officers[0].Email)
	assert.NotNil(t, depts[1].Officers)
	assert.Empty(t, depts[1].Officers)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDepartmentRepositoryCreateDuplicate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewDepartmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO departments")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "departments_name_key"})

	err := repo.Create(context.Background(), &models.DepartmentProfile{Name: models.DeptLibrary})
	assert.True(t, errors.Is(err, ErrDuplicate))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDepartmentRepositoryOfficerLinks(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewDepartmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (department_id, officer_id) DO NOTHING")).
		WithArgs("d1", "o1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM department_officers")).
		WithArgs("d1", "o1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.AddOfficer(context.Background(), "d1", "o1"))
	require.NoError(t, repo.RemoveOfficer(context.Background(), "d1", "o1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
