package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/victor297/student-clearance/internal/models"
	"github.com/victor297/student-clearance/internal/repository"
	appErrors "github.com/victor297/student-clearance/pkg/errors"
)

type mockAuthRepo struct {
	userByEmail      *models.User
	findByEmailErr   error
	created          []*models.User
	createErr        error
	auditLogs        []*models.AuditLog
	lastLoginUpdated bool
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.findByEmailErr != nil {
		return nil, m.findByEmailErr
	}
	if m.userByEmail == nil {
		return nil, sql.ErrNoRows
	}
	return m.userByEmail, nil
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if m.userByEmail != nil && m.userByEmail.ID == id {
		return m.userByEmail, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) Create(ctx context.Context, user *models.User) error {
	if m.createErr != nil {
		return m.createErr
	}
	user.ID = "new-user"
	m.created = append(m.created, user)
	return nil
}

func (m *mockAuthRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	m.lastLoginUpdated = true
	return nil
}

func (m *mockAuthRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.auditLogs = append(m.auditLogs, log)
	return nil
}

func newAuthService(repo *mockAuthRepo) *AuthService {
	return NewAuthService(repo, nil, zap.NewNop(), AuthConfig{Secret: "secret", Expiration: 24 * time.Hour, Issuer: "clearance", HashCost: bcrypt.MinCost})
}

func hashed(t *testing.T, password string) string {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func TestAuthServiceLoginSuccess(t *testing.T) {
	repo := &mockAuthRepo{userByEmail: &models.User{ID: "u1", FirstName: "Ada", LastName: "Obi", Email: "ada@uni.edu", PasswordHash: hashed(t, "obi"), Role: models.RoleStudent, IsEligible: true}}
	svc := newAuthService(repo)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "ada@uni.edu", Password: "obi"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)
	assert.EqualValues(t, 86400, resp.ExpiresIn)
	assert.True(t, resp.User.IsEligible)
	assert.True(t, repo.lastLoginUpdated)
	require.Len(t, repo.auditLogs, 1)
	assert.Equal(t, models.AuditActionLogin, repo.auditLogs[0].Action)

	claims, err := svc.ValidateToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, models.RoleStudent, claims.Role)
	assert.Equal(t, "Ada Obi", claims.FullName)
}

func TestAuthServiceLoginWrongPassword(t *testing.T) {
	repo := &mockAuthRepo{userByEmail: &models.User{ID: "u1", Email: "ada@uni.edu", PasswordHash: hashed(t, "obi")}}
	svc := newAuthService(repo)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "ada@uni.edu", Password: "nope"})
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidCredentials))
	assert.False(t, repo.lastLoginUpdated)
}

func TestAuthServiceLoginUnknownEmail(t *testing.T) {
	svc := newAuthService(&mockAuthRepo{})

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "ghost@uni.edu", Password: "x"})
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidCredentials))
}

func TestAuthServiceRegisterDefaultsToStudent(t *testing.T) {
	repo := &mockAuthRepo{}
	svc := newAuthService(repo)

	resp, err := svc.Register(context.Background(), models.RegisterRequest{
		FirstName:  "Ada",
		LastName:   "Obi",
		Email:      "ada@uni.edu",
		Password:   "obi",
		Department: "Physics",
		StudentID:  "PHY/001",
	})
	require.NoError(t, err)
	require.Len(t, repo.created, 1)
	assert.Equal(t, models.RoleStudent, repo.created[0].Role)
	assert.Nil(t, repo.created[0].OfficerDepartment)
	assert.NotEqual(t, "obi", repo.created[0].PasswordHash)
	assert.Equal(t, "new-user", resp.User.ID)
	assert.NotEmpty(t, resp.Token)
}

func TestAuthServiceRegisterOfficerNeedsDepartment(t *testing.T) {
	svc := newAuthService(&mockAuthRepo{})

	_, err := svc.Register(context.Background(), models.RegisterRequest{
		FirstName: "Bola", LastName: "Ade", Email: "bola@uni.edu", Password: "ade", Department: "Admin",
		Role: models.RoleOfficer,
	})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, err = svc.Register(context.Background(), models.RegisterRequest{
		FirstName: "Bola", LastName: "Ade", Email: "bola@uni.edu", Password: "ade", Department: "Admin",
		Role: models.RoleOfficer, OfficerDepartment: "kitchen",
	})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestAuthServiceRegisterOfficer(t *testing.T) {
	repo := &mockAuthRepo{}
	svc := newAuthService(repo)

	_, err := svc.Register(context.Background(), models.RegisterRequest{
		FirstName: "Bola", LastName: "Ade", Email: "bola@uni.edu", Password: "ade", Department: "Admin",
		Role: models.RoleOfficer, OfficerDepartment: "library",
	})
	require.NoError(t, err)
	require.NotNil(t, repo.created[0].OfficerDepartment)
	assert.Equal(t, models.DeptLibrary, *repo.created[0].OfficerDepartment)
}

// officerDirectory serves registrations and officer lookups from one store.
type officerDirectory struct {
	*mockAuthRepo
}

func (d officerDirectory) ListOfficers(_ context.Context, dept models.Department) ([]models.User, error) {
	var out []models.User
	for _, u := range d.created {
		if u.Role == models.RoleOfficer && u.OfficerDepartment != nil && *u.OfficerDepartment == dept {
			out = append(out, *u)
		}
	}
	return out, nil
}

func TestAuthServiceRegisterOfficerRefreshesOfficerCache(t *testing.T) {
	ctx := context.Background()
	store := officerDirectory{mockAuthRepo: &mockAuthRepo{}}
	cache := NewCacheService(&stubCacheRepo{}, nil, time.Minute, zap.NewNop(), true)
	notifier := NewNotifier(store, cache, nil, nil, zap.NewNop(), NotifierConfig{OfficerTTL: 10 * time.Minute})
	svc := NewAuthService(store, nil, zap.NewNop(), AuthConfig{Secret: "secret", HashCost: bcrypt.MinCost}, WithAuthCache(cache))

	student := models.User{ID: "s1", FirstName: "Ada", LastName: "Obi", Email: "ada@uni.edu"}
	req := models.ClearanceRequest{ID: "req-1", StudentID: "s1"}

	fx, err := notifier.RequestCreated(ctx, student, req)
	require.NoError(t, err)
	assert.Empty(t, fx.Notifications)

	_, err = svc.Register(ctx, models.RegisterRequest{
		FirstName: "Bola", LastName: "Ade", Email: "bola@uni.edu", Password: "ade", Department: "Admin",
		Role: models.RoleOfficer, OfficerDepartment: "hod",
	})
	require.NoError(t, err)

	fx, err = notifier.RequestCreated(ctx, student, req)
	require.NoError(t, err)
	require.Len(t, fx.Notifications, 1)
	assert.Equal(t, "new-user", fx.Notifications[0].UserID)
}

func TestAuthServiceRegisterStudentKeepsOfficerCache(t *testing.T) {
	cache := &invalidatorStub{}
	svc := NewAuthService(&mockAuthRepo{}, nil, zap.NewNop(), AuthConfig{Secret: "secret", HashCost: bcrypt.MinCost}, WithAuthCache(cache))

	_, err := svc.Register(context.Background(), models.RegisterRequest{
		FirstName: "Ada", LastName: "Obi", Email: "ada@uni.edu", Password: "obi", Department: "Physics",
	})
	require.NoError(t, err)
	assert.Empty(t, cache.patterns)
}

func TestAuthServiceRegisterRejectsAdminRole(t *testing.T) {
	svc := newAuthService(&mockAuthRepo{})

	_, err := svc.Register(context.Background(), models.RegisterRequest{
		FirstName: "Root", LastName: "User", Email: "root@uni.edu", Password: "root", Department: "IT", Role: models.RoleAdmin,
	})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestAuthServiceRegisterDuplicate(t *testing.T) {
	svc := newAuthService(&mockAuthRepo{userByEmail: &models.User{ID: "u1", Email: "ada@uni.edu"}})

	_, err := svc.Register(context.Background(), models.RegisterRequest{
		FirstName: "Ada", LastName: "Obi", Email: "ada@uni.edu", Password: "obi", Department: "Physics",
	})
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))

	racing := &mockAuthRepo{createErr: &repository.DuplicateError{Constraint: "users_student_id_key", Err: sql.ErrNoRows}}
	_, err = newAuthService(racing).Register(context.Background(), models.RegisterRequest{
		FirstName: "Ada", LastName: "Obi", Email: "ada2@uni.edu", Password: "obi", Department: "Physics",
	})
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))
}

func TestAuthServiceValidateTokenRejectsGarbage(t *testing.T) {
	svc := newAuthService(&mockAuthRepo{})
	_, err := svc.ValidateToken("not-a-token")
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}

func TestAuthServiceMe(t *testing.T) {
	dept := models.DeptHostel
	svc := newAuthService(&mockAuthRepo{userByEmail: &models.User{ID: "o1", Role: models.RoleOfficer, OfficerDepartment: &dept}})

	info, err := svc.Me(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, models.DeptHostel, *info.OfficerDepartment)

	_, err = svc.Me(context.Background(), "gone")
	assert.True(t, appErrors.Is(err, appErrors.ErrUnauthorized))
}
