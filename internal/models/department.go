package models

import "time"

// DepartmentProfile is the directory entry for a clearance department.
type DepartmentProfile struct {
	ID          string        `db:"id" json:"id"`
	Name        Department    `db:"name" json:"dept_name"`
	Description string        `db:"description" json:"description"`
	IsActive    bool          `db:"is_active" json:"is_active"`
	Officers    []OfficerInfo `db:"-" json:"officers"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time     `db:"updated_at" json:"updated_at"`
}

// OfficerInfo is the officer projection listed under a department.
type OfficerInfo struct {
	ID                string     `db:"id" json:"id"`
	DepartmentID      string     `db:"department_id" json:"-"`
	FirstName         string     `db:"first_name" json:"firstname"`
	LastName          string     `db:"last_name" json:"lastname"`
	Email             string     `db:"email" json:"email"`
	OfficerDepartment Department `db:"officer_department" json:"officer_department"`
}

// CreateDepartmentRequest registers a department in the directory.
type CreateDepartmentRequest struct {
	Name        string `json:"dept_name" validate:"required,clearance_department"`
	Description string `json:"description" validate:"max=500"`
}

// AddOfficerRequest attaches an officer to a department.
type AddOfficerRequest struct {
	OfficerID string `json:"officer_id" validate:"required,uuid"`
}
