package models

import (
	"strings"
	"time"
)

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleStudent UserRole = "student"
	RoleOfficer UserRole = "officer"
	RoleAdmin   UserRole = "admin"
)

// Valid reports whether r is a known role.
func (r UserRole) Valid() bool {
	switch r {
	case RoleStudent, RoleOfficer, RoleAdmin:
		return true
	}
	return false
}

// User represents an account stored in the users table. Department is the
// home academic department; OfficerDepartment is the clearance stage an
// officer may decide for.
type User struct {
	ID                string      `db:"id" json:"id"`
	FirstName         string      `db:"first_name" json:"firstname"`
	LastName          string      `db:"last_name" json:"lastname"`
	Email             string      `db:"email" json:"email"`
	PasswordHash      string      `db:"password_hash" json:"-"`
	Department        string      `db:"department" json:"department"`
	Role              UserRole    `db:"role" json:"role"`
	OfficerDepartment *Department `db:"officer_department" json:"officer_department,omitempty"`
	IsEligible        bool        `db:"is_eligible" json:"is_eligible"`
	CGPA              *float64    `db:"cgpa" json:"cgpa,omitempty"`
	StudentID         *string     `db:"student_id" json:"student_id,omitempty"`
	LastLogin         *time.Time  `db:"last_login" json:"last_login,omitempty"`
	CreatedAt         time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time   `db:"updated_at" json:"updated_at"`
}

// FullName joins first and last name.
func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// IsOfficerOf reports whether u is an officer for dept.
func (u User) IsOfficerOf(dept Department) bool {
	return u.Role == RoleOfficer && u.OfficerDepartment != nil && *u.OfficerDepartment == dept
}

// Info projects the user into the public representation.
func (u User) Info() UserInfo {
	return UserInfo{
		ID:                u.ID,
		FirstName:         u.FirstName,
		LastName:          u.LastName,
		Email:             u.Email,
		Role:              u.Role,
		Department:        u.Department,
		OfficerDepartment: u.OfficerDepartment,
		IsEligible:        u.IsEligible,
		StudentID:         u.StudentID,
	}
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role       *UserRole
	Department string
	Search     string
	Page       int
	PageSize   int
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// NormalisePage applies defaults and bounds to page and size.
func NormalisePage(page, size int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	if size > 100 {
		size = 100
	}
	return page, size
}
