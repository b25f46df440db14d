package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/victor297/student-clearance/internal/models"
)

type seedUser struct {
	FirstName         string `yaml:"firstname"`
	LastName          string `yaml:"lastname"`
	Email             string `yaml:"email"`
	Password          string `yaml:"password"`
	Department        string `yaml:"department"`
	OfficerDepartment string `yaml:"officer_department"`
}

type seedDepartment struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// SeedData is the layout of the seed file.
type SeedData struct {
	Admin       seedUser         `yaml:"admin"`
	Departments []seedDepartment `yaml:"departments"`
	Officers    []seedUser       `yaml:"officers"`
}

type seedSummary struct {
	UsersCreated       int
	UsersExisting      int
	DepartmentsCreated int
}

type seedUserStore interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
}

type seedDepartmentStore interface {
	List(ctx context.Context, activeOnly bool) ([]models.DepartmentProfile, error)
	Create(ctx context.Context, dept *models.DepartmentProfile) error
	AddOfficer(ctx context.Context, departmentID, officerID string) error
}

type officerCache interface {
	InvalidateOfficers(ctx context.Context) error
}

type seeder struct {
	users       seedUserStore
	departments seedDepartmentStore
	officers    officerCache
	logger      *zap.Logger
	hashCost    int
}

func parseSeed(raw []byte) (*SeedData, error) {
	var data SeedData
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	if data.Admin.Email == "" || data.Admin.Password == "" {
		return nil, errors.New("admin email and password are required")
	}
	for _, d := range data.Departments {
		if _, err := models.ParseDepartment(strings.ToLower(d.Name)); err != nil {
			return nil, err
		}
	}
	for _, o := range data.Officers {
		if o.Email == "" || o.Password == "" {
			return nil, fmt.Errorf("officer %q needs email and password", o.Email)
		}
		if _, err := models.ParseDepartment(strings.ToLower(o.OfficerDepartment)); err != nil {
			return nil, fmt.Errorf("officer %s: %w", o.Email, err)
		}
	}
	return &data, nil
}

func (s *seeder) apply(ctx context.Context, data *SeedData) (*seedSummary, error) {
	summary := &seedSummary{}

	if _, err := s.ensureUser(ctx, data.Admin, models.RoleAdmin, summary); err != nil {
		return nil, err
	}

	existing, err := s.departments.List(ctx, false)
	if err != nil {
		return nil, err
	}
	byName := make(map[models.Department]string, len(existing))
	for _, d := range existing {
		byName[d.Name] = d.ID
	}
	for _, d := range data.Departments {
		name := models.Department(strings.ToLower(d.Name))
		if _, ok := byName[name]; ok {
			continue
		}
		profile := &models.DepartmentProfile{Name: name, Description: d.Description}
		if err := s.departments.Create(ctx, profile); err != nil {
			return nil, err
		}
		byName[name] = profile.ID
		summary.DepartmentsCreated++
	}

	usersBefore := summary.UsersCreated
	for _, o := range data.Officers {
		user, err := s.ensureUser(ctx, o, models.RoleOfficer, summary)
		if err != nil {
			return nil, err
		}
		deptID, ok := byName[*user.OfficerDepartment]
		if !ok {
			s.logger.Warn("officer department not in directory", zap.String("email", user.Email))
			continue
		}
		if err := s.departments.AddOfficer(ctx, deptID, user.ID); err != nil {
			return nil, err
		}
	}
	// A running API may hold officer lists cached before these officers existed.
	if summary.UsersCreated > usersBefore && s.officers != nil {
		if err := s.officers.InvalidateOfficers(ctx); err != nil {
			s.logger.Warn("failed to invalidate officer cache", zap.Error(err))
		}
	}
	return summary, nil
}

func (s *seeder) ensureUser(ctx context.Context, in seedUser, role models.UserRole, summary *seedSummary) (*models.User, error) {
	found, err := s.users.FindByEmail(ctx, strings.ToLower(in.Email))
	if err == nil {
		summary.UsersExisting++
		return found, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	cost := s.hashCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), cost)
	if err != nil {
		return nil, err
	}
	user := &models.User{
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Email:        strings.ToLower(in.Email),
		PasswordHash: string(hash),
		Department:   in.Department,
		Role:         role,
	}
	if role == models.RoleOfficer {
		dept := models.Department(strings.ToLower(in.OfficerDepartment))
		user.OfficerDepartment = &dept
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	summary.UsersCreated++
	return user, nil
}
