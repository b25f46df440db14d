package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/victor297/student-clearance/internal/models"
	"github.com/victor297/student-clearance/internal/repository"
	appErrors "github.com/victor297/student-clearance/pkg/errors"
)

type importUserStub struct {
	existing  []models.User
	created   []*models.User
	eligible  []string
	raceEmail string
	auditLogs []*models.AuditLog
}

func (s *importUserStub) FindByStudentIDOrEmail(ctx context.Context, studentID, email string) (*models.User, error) {
	for _, u := range s.existing {
		if (studentID != "" && u.StudentID != nil && *u.StudentID == studentID) || (email != "" && u.Email == strings.ToLower(email)) {
			user := u
			return &user, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *importUserStub) Create(ctx context.Context, user *models.User) error {
	if user.Email == s.raceEmail {
		return &repository.DuplicateError{Constraint: "users_email_key", Err: sql.ErrTxDone}
	}
	s.created = append(s.created, user)
	return nil
}

func (s *importUserStub) SetEligibility(ctx context.Context, id string, eligible bool) (*models.User, error) {
	s.eligible = append(s.eligible, id)
	return &models.User{ID: id, IsEligible: eligible}, nil
}

func (s *importUserStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	s.auditLogs = append(s.auditLogs, log)
	return nil
}

func adminClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
}

func TestImportServiceImportStudents(t *testing.T) {
	existingID := "CSC/001"
	users := &importUserStub{
		existing:  []models.User{{ID: "u1", Email: "taken@uni.edu", StudentID: &existingID}},
		raceEmail: "race@uni.edu",
	}
	svc := NewImportService(users, users, nil, zap.NewNop(), bcrypt.MinCost)

	csv := strings.Join([]string{
		"StudentID,FirstName,LastName,Email,Department,CGPA",
		"CSC/002,Ada,Obi,Ada@Uni.edu,Computer Science,4.5",
		"CSC/001,Dup,Student,other@uni.edu,Computer Science,",
		"CSC/003,,Nope,nope@uni.edu,Physics,",
		"CSC/004,Bad,Grade,bad@uni.edu,Physics,seven",
		"CSC/005,Race,Cond,race@uni.edu,Physics,",
		"CSC/006,Ngozi,Eze,ngozi@uni.edu,Physics,",
	}, "\n")

	result, err := svc.ImportStudents(context.Background(), adminClaims(), strings.NewReader(csv), "students.csv")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Success)
	assert.Equal(t, 2, result.Duplicates)
	require.Len(t, result.Errors, 2)
	assert.Equal(t, "Row 4: Missing required fields", result.Errors[0])
	assert.Contains(t, result.Errors[1], "Row 5: invalid CGPA")

	require.Len(t, users.created, 2)
	ada := users.created[0]
	assert.Equal(t, "ada@uni.edu", ada.Email)
	assert.Equal(t, models.RoleStudent, ada.Role)
	assert.True(t, ada.IsEligible)
	assert.Equal(t, 4.5, *ada.CGPA)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(ada.PasswordHash), []byte("obi")))
	assert.Equal(t, 0.0, *users.created[1].CGPA)

	require.Len(t, users.auditLogs, 1)
	assert.Equal(t, models.AuditActionStudentImport, users.auditLogs[0].Action)
}

func TestImportServiceImportEligibility(t *testing.T) {
	matric := "CSC/010"
	users := &importUserStub{existing: []models.User{
		{ID: "u1", Email: "one@uni.edu", StudentID: &matric},
		{ID: "u2", Email: "two@uni.edu"},
	}}
	svc := NewImportService(users, users, nil, zap.NewNop(), bcrypt.MinCost)

	csv := "StudentID,Email\nCSC/010,\n,two@uni.edu\nCSC/999,ghost@uni.edu\n,\n"
	result, err := svc.ImportEligibility(context.Background(), adminClaims(), strings.NewReader(csv), "eligible.csv")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Success)
	assert.Equal(t, 1, result.NotFound)
	assert.Contains(t, result.Errors, "Row 4: Student not found")
	assert.Equal(t, []string{"u1", "u2"}, users.eligible)
}

func TestImportServiceRejectsUnsupportedFormat(t *testing.T) {
	svc := NewImportService(&importUserStub{}, nil, nil, zap.NewNop(), bcrypt.MinCost)

	_, err := svc.ImportStudents(context.Background(), adminClaims(), strings.NewReader("x"), "students.txt")
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestImportServiceRequiresAdmin(t *testing.T) {
	svc := NewImportService(&importUserStub{}, nil, nil, zap.NewNop(), bcrypt.MinCost)

	_, err := svc.ImportEligibility(context.Background(), studentClaims(), strings.NewReader(""), "e.csv")
	assert.True(t, appErrors.Is(err, appErrors.ErrRoleMismatch))

	_, err = svc.ImportStudents(context.Background(), nil, strings.NewReader(""), "s.csv")
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}
