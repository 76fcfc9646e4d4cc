package models

import "time"

// CorrectionKind distinguishes excuses from appeals.
type CorrectionKind string

const (
	CorrectionKindExcuse CorrectionKind = "EXCUSE"
	CorrectionKindAppeal CorrectionKind = "APPEAL"
)

// Valid returns true when the kind is supported.
func (k CorrectionKind) Valid() bool {
	return k == CorrectionKindExcuse || k == CorrectionKindAppeal
}

// CorrectionStatus captures review state.
type CorrectionStatus string

const (
	CorrectionStatusPending  CorrectionStatus = "PENDING"
	CorrectionStatusApproved CorrectionStatus = "APPROVED"
	CorrectionStatusRejected CorrectionStatus = "REJECTED"
)

// CorrectionRequest asks an instructor to change a finalized attendance status.
type CorrectionRequest struct {
	ID           string            `db:"id" json:"id"`
	Kind         CorrectionKind    `db:"kind" json:"kind"`
	AttendanceID string            `db:"attendance_id" json:"attendance_id"`
	SessionID    string            `db:"session_id" json:"session_id"`
	CourseID     string            `db:"course_id" json:"course_id"`
	RequestedBy  string            `db:"requested_by" json:"requested_by"`
	Message      string            `db:"message" json:"message"`
	Status       CorrectionStatus  `db:"status" json:"status"`
	TargetStatus *AttendanceStatus `db:"target_status" json:"target_status,omitempty"`
	Comment      *string           `db:"comment" json:"comment,omitempty"`
	DecidedBy    *string           `db:"decided_by" json:"decided_by,omitempty"`
	DecidedAt    *time.Time        `db:"decided_at" json:"decided_at,omitempty"`
	CreatedAt    time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time         `db:"updated_at" json:"updated_at"`
}

// CorrectionFilter scopes correction listings.
type CorrectionFilter struct {
	Kind        CorrectionKind
	Status      *CorrectionStatus
	CourseID    string
	RequestedBy string
	Page        int
	PageSize    int
}
