package models

import "time"

// RiskLevel classifies how close a student is to the absence limit.
type RiskLevel string

const (
	RiskNormal  RiskLevel = "NORMAL"
	RiskWarning RiskLevel = "WARNING"
	RiskDanger  RiskLevel = "DANGER"
)

// StudentAttendanceSummary is a per-student report row.
type StudentAttendanceSummary struct {
	AttendanceTally
	EffectiveAbsent int       `json:"effective_absent"`
	AttendanceRate  float64   `json:"attendance_rate"`
	Risk            RiskLevel `json:"risk"`
}

// CourseAttendanceReport aggregates a course's attendance.
type CourseAttendanceReport struct {
	CourseID    string                     `json:"course_id"`
	CourseName  string                     `json:"course_name"`
	Policy      AttendancePolicy           `json:"policy"`
	Sessions    int                        `json:"sessions"`
	Students    []StudentAttendanceSummary `json:"students"`
	GeneratedAt time.Time                  `json:"generated_at"`
}
