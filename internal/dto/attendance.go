package dto

import "github.com/noah-isme/sma-attendance-api/internal/models"

// CheckInRequest is submitted by a student for an open session.
type CheckInRequest struct {
	SessionID string `json:"-" validate:"required"`
	StudentID string `json:"-" validate:"required"`
	Code      string `json:"code,omitempty"`
}

// OverrideAttendanceRequest sets a student's status directly.
type OverrideAttendanceRequest struct {
	SessionID string                  `json:"-" validate:"required"`
	StudentID string                  `json:"-" validate:"required"`
	Status    models.AttendanceStatus `json:"status" validate:"required,attendance_status"`
}

// CloseSessionResult summarises a close.
type CloseSessionResult struct {
	Session   models.ClassSession `json:"session"`
	Finalized int64               `json:"finalized"`
}

// SessionAttendanceResponse lists the roster of a session.
type SessionAttendanceResponse struct {
	Session models.ClassSession            `json:"session"`
	State   models.SessionState            `json:"state"`
	Roster  []models.AttendanceRosterEntry `json:"roster"`
}
