package models

import "time"

// AuditAction constants represent actions to be logged.
const (
	AuditActionLogin             = "LOGIN"
	AuditActionRegister          = "REGISTER"
	AuditActionUserDelete        = "USER_DELETE"
	AuditActionRoleChange        = "ROLE_CHANGE"
	AuditActionEligibility       = "ELIGIBILITY_CHANGE"
	AuditActionClearanceCreate   = "CLEARANCE_CREATE"
	AuditActionClearanceDecision = "CLEARANCE_DECISION"
	AuditActionDocumentUpload    = "DOCUMENT_UPLOAD"
	AuditActionStudentImport     = "STUDENT_IMPORT"
	AuditActionEligibilityImport = "ELIGIBILITY_IMPORT"
	AuditActionDepartmentCreate  = "DEPARTMENT_CREATE"
	AuditActionOfficerAssign     = "OFFICER_ASSIGN"
	AuditActionOfficerRemove     = "OFFICER_REMOVE"
	AuditActionExportGenerate    = "EXPORT_GENERATE"
	AuditActionCertificate       = "CERTIFICATE_DOWNLOAD"
)

// AuditLog represents an audit trail record. Values are JSON snapshots.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	OldValues  []byte    `db:"old_values" json:"old_values,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
