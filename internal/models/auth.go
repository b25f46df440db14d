package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// LoginResponse returns the issued token and user info.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresIn int64     `json:"expires_in"`
	User      UserInfo  `json:"user"`
	IssuedAt  time.Time `json:"issued_at"`
}

// RegisterRequest is the self-service sign up payload.
type RegisterRequest struct {
	FirstName         string   `json:"firstname" validate:"required,max=100"`
	LastName          string   `json:"lastname" validate:"required,max=100"`
	Email             string   `json:"email" validate:"required,email"`
	Password          string   `json:"password" validate:"required,min=3"`
	Department        string   `json:"department" validate:"required"`
	Role              UserRole `json:"role" validate:"omitempty,oneof=student officer"`
	OfficerDepartment string   `json:"officer_department" validate:"required_if=Role officer,omitempty,clearance_department"`
	StudentID         string   `json:"student_id" validate:"omitempty,max=64"`
	CGPA              *float64 `json:"cgpa" validate:"omitempty,gte=0,lte=5"`
}

// UserInfo describes a user in responses without credentials.
type UserInfo struct {
	ID                string      `json:"id"`
	FirstName         string      `json:"firstname"`
	LastName          string      `json:"lastname"`
	Email             string      `json:"email"`
	Role              UserRole    `json:"role"`
	Department        string      `json:"department"`
	OfficerDepartment *Department `json:"officer_department,omitempty"`
	IsEligible        bool        `json:"is_eligible"`
	StudentID         *string     `json:"student_id,omitempty"`
}

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	jwt.RegisteredClaims
}
