package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/victor297/student-clearance/internal/models"
	"github.com/victor297/student-clearance/internal/repository"
	appErrors "github.com/victor297/student-clearance/pkg/errors"
	"github.com/victor297/student-clearance/pkg/spreadsheet"
)

// Import kinds used for metrics labels.
const (
	ImportKindStudents    = "students"
	ImportKindEligibility = "eligibility"
)

// Spreadsheet columns.
const (
	colStudentID  = "StudentID"
	colFirstName  = "FirstName"
	colLastName   = "LastName"
	colEmail      = "Email"
	colDepartment = "Department"
	colCGPA       = "CGPA"
)

type importUserStore interface {
	FindByStudentIDOrEmail(ctx context.Context, studentID, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	SetEligibility(ctx context.Context, id string, eligible bool) (*models.User, error)
}

// ImportService creates student accounts and updates eligibility from
// spreadsheets. Rows are processed independently.
type ImportService struct {
	users    importUserStore
	audit    auditLogger
	metrics  *MetricsService
	logger   *zap.Logger
	hashCost int
}

// NewImportService constructs the service. hashCost defaults to bcrypt's.
func NewImportService(users importUserStore, audit auditLogger, metrics *MetricsService, logger *zap.Logger, hashCost int) *ImportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if hashCost == 0 {
		hashCost = bcrypt.DefaultCost
	}
	return &ImportService{users: users, audit: audit, metrics: metrics, logger: logger, hashCost: hashCost}
}

// ImportStudents creates a student account per row. The initial password is
// the lowercased last name. Rows matching an existing email or student id
// count as duplicates.
func (s *ImportService) ImportStudents(ctx context.Context, actor *models.JWTClaims, r io.Reader, filename string) (*models.StudentImportResult, error) {
	rows, err := s.read(actor, r, filename)
	if err != nil {
		return nil, err
	}

	result := &models.StudentImportResult{Errors: []string{}}
	for _, row := range rows {
		switch err := s.importStudent(ctx, row); {
		case err == nil:
			result.Success++
		case errors.Is(err, repository.ErrDuplicate):
			result.Duplicates++
		default:
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: %s", row.Line, err.Error()))
		}
	}

	s.metrics.RecordImportRows(ImportKindStudents, "success", result.Success)
	s.metrics.RecordImportRows(ImportKindStudents, "duplicate", result.Duplicates)
	s.metrics.RecordImportRows(ImportKindStudents, "error", len(result.Errors))
	s.logger.Info("student import finished",
		zap.String("file", filename),
		zap.Int("rows", len(rows)),
		zap.Int("success", result.Success),
		zap.Int("duplicates", result.Duplicates),
		zap.Int("errors", len(result.Errors)),
	)
	emitAudit(ctx, s.audit, s.logger, &models.AuditLog{
		UserID:    userIDPtr(actor),
		Action:    models.AuditActionStudentImport,
		Resource:  "users",
		NewValues: auditPayload(result),
	})
	return result, nil
}

// ImportEligibility marks the student of each row eligible, matching by
// student id or email.
func (s *ImportService) ImportEligibility(ctx context.Context, actor *models.JWTClaims, r io.Reader, filename string) (*models.EligibilityImportResult, error) {
	rows, err := s.read(actor, r, filename)
	if err != nil {
		return nil, err
	}

	result := &models.EligibilityImportResult{Errors: []string{}}
	for _, row := range rows {
		studentID, email := row.Get(colStudentID), row.Get(colEmail)
		if studentID == "" && email == "" {
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: Missing StudentID or Email", row.Line))
			continue
		}
		user, err := s.users.FindByStudentIDOrEmail(ctx, studentID, email)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				result.NotFound++
				result.Errors = append(result.Errors, fmt.Sprintf("Row %d: Student not found", row.Line))
				continue
			}
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: %s", row.Line, err.Error()))
			continue
		}
		if _, err := s.users.SetEligibility(ctx, user.ID, true); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: %s", row.Line, err.Error()))
			continue
		}
		result.Success++
	}

	s.metrics.RecordImportRows(ImportKindEligibility, "success", result.Success)
	s.metrics.RecordImportRows(ImportKindEligibility, "not_found", result.NotFound)
	s.metrics.RecordImportRows(ImportKindEligibility, "error", len(result.Errors)-result.NotFound)
	s.logger.Info("eligibility import finished",
		zap.String("file", filename),
		zap.Int("rows", len(rows)),
		zap.Int("success", result.Success),
		zap.Int("not_found", result.NotFound),
	)
	emitAudit(ctx, s.audit, s.logger, &models.AuditLog{
		UserID:    userIDPtr(actor),
		Action:    models.AuditActionEligibilityImport,
		Resource:  "users",
		NewValues: auditPayload(result),
	})
	return result, nil
}

func (s *ImportService) read(actor *models.JWTClaims, r io.Reader, filename string) ([]spreadsheet.Row, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrRoleMismatch, "admin access required")
	}
	if r == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file is required")
	}
	rows, err := spreadsheet.Read(r, filename)
	if err != nil {
		if errors.Is(err, spreadsheet.ErrUnsupportedFormat) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "only .xlsx and .csv files are allowed")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "failed to read spreadsheet")
	}
	return rows, nil
}

func (s *ImportService) importStudent(ctx context.Context, row spreadsheet.Row) error {
	studentID := row.Get(colStudentID)
	firstName := row.Get(colFirstName)
	lastName := row.Get(colLastName)
	email := strings.ToLower(row.Get(colEmail))
	department := row.Get(colDepartment)
	if studentID == "" || firstName == "" || lastName == "" || email == "" || department == "" {
		return errors.New("Missing required fields")
	}

	cgpa := 0.0
	if raw := row.Get(colCGPA); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || parsed < 0 || parsed > 5 {
			return fmt.Errorf("invalid CGPA %q", raw)
		}
		cgpa = parsed
	}

	if _, err := s.users.FindByStudentIDOrEmail(ctx, studentID, email); err == nil {
		return repository.ErrDuplicate
	} else if !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(strings.ToLower(lastName)), s.hashCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	user := &models.User{
		FirstName:    firstName,
		LastName:     lastName,
		Email:        email,
		PasswordHash: string(hash),
		Department:   department,
		Role:         models.RoleStudent,
		IsEligible:   true,
		CGPA:         &cgpa,
		StudentID:    &studentID,
	}
	return s.users.Create(ctx, user)
}
