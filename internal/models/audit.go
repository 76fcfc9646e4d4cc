package models

import "time"

// Audited actions.
const (
	AuditActionSessionsGenerate   = "SESSIONS_GENERATE"
	AuditActionSessionClose       = "SESSION_CLOSE"
	AuditActionAttendanceOverride = "ATTENDANCE_OVERRIDE"
	AuditActionCorrectionApprove  = "CORRECTION_APPROVE"
	AuditActionCorrectionReject   = "CORRECTION_REJECT"
	AuditActionPolicyUpdate       = "POLICY_UPDATE"
)

// AuditLog is one state-changing action taken by a teacher or admin. Source
// names the service that emitted it; RequestID ties it back to the HTTP call.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	OldValues  []byte    `db:"old_values" json:"old_values,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	Source     string    `db:"source" json:"source"`
	RequestID  *string   `db:"request_id" json:"request_id,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
