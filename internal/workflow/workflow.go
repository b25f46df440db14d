// Package workflow holds the clearance approval state machine. Every function
// is pure: it takes a request value, returns the next value plus a description
// of the side effects to perform, and never touches storage or the network.
package workflow

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/victor297/student-clearance/internal/models"
	appErrors "github.com/victor297/student-clearance/pkg/errors"
)

// ReopenComment is written on a department record reset by a new upload.
const ReopenComment = "New documents uploaded - pending review"

// Decision is one officer's verdict for their own department.
type Decision struct {
	OfficerID  string
	Department models.Department
	Status     models.Status
	Comments   string
}

// Outcome is the result of a transition.
type Outcome struct {
	Request models.ClearanceRequest
	History models.ClearanceDecision

	// NotifyNext is set when the request advanced and that stage's officers
	// must be asked for a decision.
	NotifyNext *models.Department
	// Completed is set when the final department approved.
	Completed bool
	// Rejected is set when the decision closed the request.
	Rejected bool
	// Reopened is set when an upload put a rejected request back in progress.
	Reopened bool
	// Changed is false when an upload did not alter the request record.
	Changed bool
}

// New returns a fresh request at the first stage with every department pending.
func New(studentID, reason string, now time.Time) models.ClearanceRequest {
	return models.ClearanceRequest{
		ID:            uuid.NewString(),
		StudentID:     studentID,
		Departments:   models.NewDepartmentRecords(),
		OverallStatus: models.StatusPending,
		CurrentStage:  models.StageOf(models.Sequence[0]),
		Reason:        strings.TrimSpace(reason),
		SubmittedAt:   now,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Decide records an officer decision for the current stage.
func Decide(req models.ClearanceRequest, d Decision, now time.Time) (Outcome, error) {
	if !d.Department.Valid() {
		return Outcome{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown department %q", d.Department))
	}
	if d.Status != models.StatusApproved && d.Status != models.StatusRejected {
		return Outcome{}, appErrors.Clone(appErrors.ErrValidation, "status must be approved or rejected")
	}
	if req.OverallStatus != models.StatusPending {
		return Outcome{}, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("request already %s", req.OverallStatus))
	}
	if req.CurrentStage != models.StageOf(d.Department) {
		return Outcome{}, appErrors.Clone(appErrors.ErrStageMismatch,
			fmt.Sprintf("request is awaiting %s, not %s", req.CurrentStage, d.Department))
	}
	comments := strings.TrimSpace(d.Comments)
	if d.Status == models.StatusRejected && comments == "" {
		return Outcome{}, appErrors.ErrCommentsRequired
	}

	next := req
	next.Departments = req.Departments.Clone()
	officerID := d.OfficerID
	ts := now
	next.Departments[d.Department] = models.DepartmentRecord{
		Status:    d.Status,
		OfficerID: &officerID,
		Comments:  comments,
		Timestamp: &ts,
	}
	next.UpdatedAt = now

	out := Outcome{Changed: true}
	switch d.Status {
	case models.StatusRejected:
		next.OverallStatus = models.StatusRejected
		next.CurrentStage = models.StageCompleted
		next.CompletedAt = &ts
		out.Rejected = true
	case models.StatusApproved:
		if following, ok := d.Department.Next(); ok {
			next.CurrentStage = models.StageOf(following)
			out.NotifyNext = &following
		} else {
			next.OverallStatus = models.StatusApproved
			next.CurrentStage = models.StageCompleted
			next.CompletedAt = &ts
			out.Completed = true
		}
	}

	out.Request = next
	out.History = history(req.ID, d.Department, d.Status, &officerID, comments, models.DecisionKindDecision, now)
	return out, nil
}

// ReopenOnUpload applies a document upload for dept. Uploads are accepted on
// pending and rejected requests. On a rejected request the department record
// is reset to pending, and when dept is one of the rejecting departments the
// request goes back to pending at that stage. Records of later departments
// are left as they were.
func ReopenOnUpload(req models.ClearanceRequest, dept models.Department, studentID string, now time.Time) (Outcome, error) {
	if !dept.Valid() {
		return Outcome{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown department %q", dept))
	}
	if req.StudentID != studentID {
		return Outcome{}, appErrors.ErrRequestClosed
	}
	switch req.OverallStatus {
	case models.StatusPending:
		return Outcome{Request: req}, nil
	case models.StatusRejected:
	default:
		return Outcome{}, appErrors.ErrRequestClosed
	}

	rejecting := req.Departments.WithStatus(models.StatusRejected)

	next := req
	next.Departments = req.Departments.Clone()
	ts := now
	next.Departments[dept] = models.DepartmentRecord{
		Status:    models.StatusPending,
		Comments:  ReopenComment,
		Timestamp: &ts,
	}
	next.UpdatedAt = now

	out := Outcome{Changed: true}
	for _, r := range rejecting {
		if r == dept {
			next.OverallStatus = models.StatusPending
			next.CurrentStage = models.StageOf(dept)
			next.CompletedAt = nil
			out.Reopened = true
			break
		}
	}

	out.Request = next
	out.History = history(req.ID, dept, models.StatusPending, nil, ReopenComment, models.DecisionKindReopen, now)
	return out, nil
}

// Check verifies the structural invariants of a stored request.
func Check(req models.ClearanceRequest) error {
	for _, d := range models.Sequence {
		rec, ok := req.Departments[d]
		if !ok {
			return fmt.Errorf("request %s: missing department %s", req.ID, d)
		}
		if !rec.Status.Valid() {
			return fmt.Errorf("request %s: department %s has status %q", req.ID, d, rec.Status)
		}
	}
	if len(req.Departments) != len(models.Sequence) {
		return fmt.Errorf("request %s: unexpected department keys", req.ID)
	}
	if !req.OverallStatus.Valid() {
		return fmt.Errorf("request %s: overall status %q", req.ID, req.OverallStatus)
	}
	if !req.CurrentStage.Valid() {
		return fmt.Errorf("request %s: current stage %q", req.ID, req.CurrentStage)
	}
	if req.OverallStatus != models.StatusPending && req.CurrentStage != models.StageCompleted {
		return fmt.Errorf("request %s: %s request still at stage %s", req.ID, req.OverallStatus, req.CurrentStage)
	}
	if req.OverallStatus == models.StatusPending && req.CurrentStage == models.StageCompleted {
		return fmt.Errorf("request %s: pending request marked completed", req.ID)
	}
	return nil
}

func history(requestID string, dept models.Department, status models.Status, actor *string, comments string, kind models.DecisionKind, now time.Time) models.ClearanceDecision {
	return models.ClearanceDecision{
		ID:         uuid.NewString(),
		RequestID:  requestID,
		Department: dept,
		Status:     status,
		ActorID:    actor,
		Comments:   comments,
		Kind:       kind,
		CreatedAt:  now,
	}
}
