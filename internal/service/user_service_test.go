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

type mockUserRepo struct {
	users     map[string]*models.User
	listCount int
	lastList  models.UserFilter
	deleted   []string
	auditLogs []*models.AuditLog
}

func (m *mockUserRepo) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	m.lastList = filter
	var users []models.User
	for _, u := range m.users {
		users = append(users, *u)
	}
	return users, m.listCount, nil
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := m.users[id]; ok {
		copy := *user
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) ListOfficers(ctx context.Context, dept models.Department) ([]models.User, error) {
	var out []models.User
	for _, u := range m.users {
		if u.IsOfficerOf(dept) {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (m *mockUserRepo) SetEligibility(ctx context.Context, id string, eligible bool) (*models.User, error) {
	user, ok := m.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	user.IsEligible = eligible
	copy := *user
	return &copy, nil
}

func (m *mockUserRepo) UpdateRole(ctx context.Context, id string, role models.UserRole, dept *models.Department) (*models.User, error) {
	user, ok := m.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	user.Role = role
	user.OfficerDepartment = dept
	copy := *user
	return &copy, nil
}

func (m *mockUserRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.users[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.users, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockUserRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.auditLogs = append(m.auditLogs, log)
	return nil
}

type invalidatorStub struct {
	patterns []string
}

func (s *invalidatorStub) Invalidate(ctx context.Context, pattern string) error {
	s.patterns = append(s.patterns, pattern)
	return nil
}

func TestUserServiceListNormalisesPaging(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{"1": {ID: "1"}}, listCount: 41}
	svc := NewUserService(repo, nil, nil, zap.NewNop())

	role := models.RoleStudent
	users, pagination, err := svc.List(context.Background(), models.UserFilter{Role: &role, PageSize: 500})
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 100, pagination.PageSize)
	assert.Equal(t, 41, pagination.TotalCount)
	assert.Equal(t, 100, repo.lastList.PageSize)
}

func TestUserServiceListRejectsUnknownRole(t *testing.T) {
	svc := NewUserService(&mockUserRepo{}, nil, nil, zap.NewNop())
	role := models.UserRole("janitor")
	_, _, err := svc.List(context.Background(), models.UserFilter{Role: &role})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestUserServiceOfficers(t *testing.T) {
	lib := models.DeptLibrary
	repo := &mockUserRepo{users: map[string]*models.User{
		"o1": {ID: "o1", Role: models.RoleOfficer, OfficerDepartment: &lib},
		"s1": {ID: "s1", Role: models.RoleStudent},
	}}
	svc := NewUserService(repo, nil, nil, zap.NewNop())

	officers, err := svc.Officers(context.Background(), "library")
	require.NoError(t, err)
	require.Len(t, officers, 1)
	assert.Equal(t, "o1", officers[0].ID)

	_, err = svc.Officers(context.Background(), "canteen")
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestUserServiceSetEligibility(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{"s1": {ID: "s1", Role: models.RoleStudent}}}
	svc := NewUserService(repo, nil, nil, zap.NewNop())
	yes := true

	user, err := svc.SetEligibility(context.Background(), "s1", EligibilityRequest{IsEligible: &yes}, &models.JWTClaims{UserID: "admin"})
	require.NoError(t, err)
	assert.True(t, user.IsEligible)
	require.Len(t, repo.auditLogs, 1)
	assert.Equal(t, models.AuditActionEligibility, repo.auditLogs[0].Action)

	_, err = svc.SetEligibility(context.Background(), "s1", EligibilityRequest{}, nil)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, err = svc.SetEligibility(context.Background(), "missing", EligibilityRequest{IsEligible: &yes}, nil)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestUserServiceUpdateRoleToOfficer(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{"u1": {ID: "u1", Role: models.RoleStudent}}}
	cache := &invalidatorStub{}
	svc := NewUserService(repo, cache, nil, zap.NewNop())

	user, err := svc.UpdateRole(context.Background(), "u1", UpdateRoleRequest{Role: models.RoleOfficer, OfficerDepartment: "bursary"}, &models.JWTClaims{UserID: "admin"})
	require.NoError(t, err)
	assert.True(t, user.IsOfficerOf(models.DeptBursary))
	assert.Equal(t, []string{officerCachePattern}, cache.patterns)

	_, err = svc.UpdateRole(context.Background(), "u1", UpdateRoleRequest{Role: models.RoleOfficer}, nil)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestUserServiceDelete(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{"u1": {ID: "u1"}, "admin": {ID: "admin", Role: models.RoleAdmin}}}
	svc := NewUserService(repo, nil, nil, zap.NewNop())
	actor := &models.JWTClaims{UserID: "admin", Role: models.RoleAdmin}

	require.NoError(t, svc.Delete(context.Background(), "u1", actor))
	assert.Equal(t, []string{"u1"}, repo.deleted)

	err := svc.Delete(context.Background(), "admin", actor)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	err = svc.Delete(context.Background(), "u1", actor)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}
