package dto

import "github.com/noah-isme/sma-attendance-api/internal/models"

// CreateCorrectionRequest files an excuse or appeal. Either AttendanceID or
// SessionID identifies the record.
type CreateCorrectionRequest struct {
	AttendanceID string `json:"attendanceId" validate:"required_without=SessionID"`
	SessionID    string `json:"sessionId" validate:"required_without=AttendanceID"`
	Message      string `json:"message" validate:"required,max=2000"`
}

// DecideCorrectionRequest approves or rejects a pending correction.
type DecideCorrectionRequest struct {
	Decision     models.CorrectionStatus  `json:"decision" validate:"required,oneof=APPROVED REJECTED"`
	Comment      string                   `json:"comment" validate:"max=2000"`
	TargetStatus *models.AttendanceStatus `json:"targetStatus,omitempty"`
}

// CorrectionQuery mirrors supported listing filters.
type CorrectionQuery struct {
	Status   *models.CorrectionStatus
	CourseID string
	Page     int
	PageSize int
}
