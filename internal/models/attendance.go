package models

import "time"

// AttendanceStatus is the lifecycle state of a student's attendance for a session.
type AttendanceStatus string

const (
	AttendanceStatusPending AttendanceStatus = "PENDING"
	AttendanceStatusPresent AttendanceStatus = "PRESENT"
	AttendanceStatusLate    AttendanceStatus = "LATE"
	AttendanceStatusAbsent  AttendanceStatus = "ABSENT"
	AttendanceStatusExcused AttendanceStatus = "EXCUSED"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceStatusPending, AttendanceStatusPresent, AttendanceStatusLate,
		AttendanceStatusAbsent, AttendanceStatusExcused:
		return true
	default:
		return false
	}
}

// Final reports whether the status is a decided outcome.
func (s AttendanceStatus) Final() bool {
	return s.Valid() && s != AttendanceStatusPending
}

// AttendanceRecord is one student's attendance for one session. A missing row
// is read as PENDING.
type AttendanceRecord struct {
	ID        string           `db:"id" json:"id"`
	SessionID string           `db:"session_id" json:"session_id"`
	StudentID string           `db:"student_id" json:"student_id"`
	Status    AttendanceStatus `db:"status" json:"status"`
	CheckedAt *time.Time       `db:"checked_at" json:"checked_at,omitempty"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt time.Time        `db:"updated_at" json:"updated_at"`
}

// AttendanceRosterEntry pairs an enrolled student with their record, if any.
type AttendanceRosterEntry struct {
	StudentID    string           `db:"student_id" json:"student_id"`
	StudentName  string           `db:"student_name" json:"student_name"`
	AttendanceID *string          `db:"attendance_id" json:"attendance_id,omitempty"`
	Status       AttendanceStatus `db:"status" json:"status"`
	CheckedAt    *time.Time       `db:"checked_at" json:"checked_at,omitempty"`
}

// AttendanceTally counts a student's statuses across a course.
type AttendanceTally struct {
	StudentID   string `db:"student_id" json:"student_id"`
	StudentName string `db:"student_name" json:"student_name"`
	Present     int    `db:"present" json:"present"`
	Late        int    `db:"late" json:"late"`
	Absent      int    `db:"absent" json:"absent"`
	Excused     int    `db:"excused" json:"excused"`
	Pending     int    `db:"pending" json:"pending"`
}

// Sessions returns the number of sessions counted in the tally.
func (t AttendanceTally) Sessions() int {
	return t.Present + t.Late + t.Absent + t.Excused + t.Pending
}
