package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Department identifies one clearance stage.
type Department string

const (
	DeptHOD       Department = "hod"
	DeptBursary   Department = "bursary"
	DeptMedical   Department = "medical"
	DeptLibrary   Department = "library"
	DeptFaculty   Department = "faculty"
	DeptHostel    Department = "hostel"
	DeptAlumni    Department = "alumni"
	DeptRegistrar Department = "registrar"
)

// Sequence is the fixed approval order. It is the only source of truth for
// which department follows which.
var Sequence = [...]Department{
	DeptHOD,
	DeptBursary,
	DeptMedical,
	DeptLibrary,
	DeptFaculty,
	DeptHostel,
	DeptAlumni,
	DeptRegistrar,
}

// Departments returns the sequence as a fresh slice.
func Departments() []Department {
	out := make([]Department, len(Sequence))
	copy(out, Sequence[:])
	return out
}

// ParseDepartment validates raw against the closed set of departments.
func ParseDepartment(raw string) (Department, error) {
	d := Department(raw)
	if d.Index() < 0 {
		return "", fmt.Errorf("unknown department %q", raw)
	}
	return d, nil
}

// Index returns the position of d in Sequence or -1.
func (d Department) Index() int {
	for i, s := range Sequence {
		if s == d {
			return i
		}
	}
	return -1
}

// Valid reports whether d is one of the eight departments.
func (d Department) Valid() bool { return d.Index() >= 0 }

// Next returns the department after d, if any.
func (d Department) Next() (Department, bool) {
	i := d.Index()
	if i < 0 || i+1 >= len(Sequence) {
		return "", false
	}
	return Sequence[i+1], true
}

// Status is shared by department records and the overall request.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Stage is the department awaiting a decision, or StageCompleted.
type Stage string

// StageCompleted marks a request that is no longer pending.
const StageCompleted Stage = "completed"

// StageOf converts a department into its stage.
func StageOf(d Department) Stage { return Stage(d) }

// Department returns the department for s, false when completed or unknown.
func (s Stage) Department() (Department, bool) {
	d := Department(s)
	return d, d.Valid()
}

// Valid reports whether s is a department or completed.
func (s Stage) Valid() bool {
	if s == StageCompleted {
		return true
	}
	_, ok := s.Department()
	return ok
}

// DepartmentRecord is the decision state for one department of a request.
type DepartmentRecord struct {
	Status    Status     `json:"status"`
	OfficerID *string    `json:"officer_id,omitempty"`
	Comments  string     `json:"comments,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// DepartmentRecords maps every department to its record. Stored as JSONB.
type DepartmentRecords map[Department]DepartmentRecord

// NewDepartmentRecords returns all departments initialised to pending.
func NewDepartmentRecords() DepartmentRecords {
	records := make(DepartmentRecords, len(Sequence))
	for _, d := range Sequence {
		records[d] = DepartmentRecord{Status: StatusPending}
	}
	return records
}

// Clone returns a deep copy.
func (r DepartmentRecords) Clone() DepartmentRecords {
	out := make(DepartmentRecords, len(r))
	for k, v := range r {
		if v.OfficerID != nil {
			id := *v.OfficerID
			v.OfficerID = &id
		}
		if v.Timestamp != nil {
			ts := *v.Timestamp
			v.Timestamp = &ts
		}
		out[k] = v
	}
	return out
}

// WithStatus lists departments currently holding status, in sequence order.
func (r DepartmentRecords) WithStatus(status Status) []Department {
	out := make([]Department, 0)
	for _, d := range Sequence {
		if rec, ok := r[d]; ok && rec.Status == status {
			out = append(out, d)
		}
	}
	return out
}

// Value implements driver.Valuer.
func (r DepartmentRecords) Value() (driver.Value, error) {
	if r == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(r)
}

// Scan implements sql.Scanner.
func (r *DepartmentRecords) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	case nil:
		*r = nil
		return nil
	default:
		return fmt.Errorf("department records: unsupported type %T", src)
	}
	records := DepartmentRecords{}
	if err := json.Unmarshal(raw, &records); err != nil {
		return fmt.Errorf("department records: %w", err)
	}
	*r = records
	return nil
}

// ClearanceRequest is a student's request to be cleared by every department.
type ClearanceRequest struct {
	ID            string            `db:"id" json:"id"`
	StudentID     string            `db:"student_id" json:"student_id"`
	Departments   DepartmentRecords `db:"departments" json:"departments"`
	OverallStatus Status            `db:"overall_status" json:"overall_status"`
	CurrentStage  Stage             `db:"current_stage" json:"current_stage"`
	Reason        string            `db:"reason" json:"reason"`
	SubmittedAt   time.Time         `db:"submitted_at" json:"submitted_at"`
	CompletedAt   *time.Time        `db:"completed_at" json:"completed_at,omitempty"`
	Version       int               `db:"version" json:"-"`
	CreatedAt     time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time         `db:"updated_at" json:"updated_at"`
}

// StudentSummary is the student projection joined onto request listings.
type StudentSummary struct {
	FirstName  string  `db:"student_first_name" json:"firstname"`
	LastName   string  `db:"student_last_name" json:"lastname"`
	Email      string  `db:"student_email" json:"email"`
	Department string  `db:"student_department" json:"department"`
	MatricNo   *string `db:"student_matric_no" json:"student_id,omitempty"`
}

// ClearanceRequestDetail is a request together with its owner.
type ClearanceRequestDetail struct {
	ClearanceRequest
	StudentSummary `json:"student"`
}

// DecisionKind distinguishes officer decisions from upload driven resets.
type DecisionKind string

const (
	DecisionKindDecision DecisionKind = "decision"
	DecisionKindReopen   DecisionKind = "reopen"
)

// ClearanceDecision is an append-only history entry for a request.
type ClearanceDecision struct {
	ID         string       `db:"id" json:"id"`
	RequestID  string       `db:"request_id" json:"request_id"`
	Department Department   `db:"department" json:"department"`
	Status     Status       `db:"status" json:"status"`
	ActorID    *string      `db:"actor_id" json:"actor_id,omitempty"`
	Comments   string       `db:"comments" json:"comments,omitempty"`
	Kind       DecisionKind `db:"kind" json:"kind"`
	CreatedAt  time.Time    `db:"created_at" json:"created_at"`
}

// ClearanceFilter selects requests for the list views.
type ClearanceFilter struct {
	StudentID         string
	OverallStatus     *Status
	StudentDepartment string
	PendingFor        *Department
	Page              int
	PageSize          int
}

// CreateClearanceRequest is the student submission payload.
type CreateClearanceRequest struct {
	Reason string `json:"reason" validate:"max=2000"`
}

// DecisionRequest is an officer's decision payload.
type DecisionRequest struct {
	Status   Status `json:"status" validate:"required,oneof=approved rejected"`
	Comments string `json:"comments" validate:"max=2000"`
}

// StageCount is the number of pending requests waiting at a stage.
type StageCount struct {
	Stage Stage `db:"current_stage" json:"stage"`
	Count int   `db:"count" json:"count"`
}

// StatusCount is the number of requests with an overall status.
type StatusCount struct {
	Status Status `db:"overall_status" json:"status"`
	Count  int    `db:"count" json:"count"`
}

// ClearanceRequestView is a request with its owner and decision trail.
type ClearanceRequestView struct {
	ClearanceRequestDetail
	History []ClearanceDecision `json:"history"`
}
