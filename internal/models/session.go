package models

import "time"

// CheckInMethod selects how students register presence for a session.
type CheckInMethod string

const (
	CheckInElectronic CheckInMethod = "ELECTRONIC"
	CheckInCode       CheckInMethod = "CODE"
	CheckInRollCall   CheckInMethod = "ROLL_CALL"
)

// Valid returns true when the method is supported.
func (m CheckInMethod) Valid() bool {
	switch m {
	case CheckInElectronic, CheckInCode, CheckInRollCall:
		return true
	default:
		return false
	}
}

// SessionState is derived from the open/closed flags.
type SessionState string

const (
	SessionStatePending SessionState = "PENDING"
	SessionStateOpen    SessionState = "OPEN"
	SessionStateClosed  SessionState = "CLOSED"
)

// RecurrenceRule describes a weekly class pattern inside a semester.
type RecurrenceRule struct {
	DaysOfWeek      []time.Weekday
	StartDate       time.Time
	EndDate         time.Time
	StartTime       string
	EndTime         string
	ExcludeHolidays bool
	Room            *string
	CheckInMethod   CheckInMethod
	MakeUpDates     []time.Time
}

// GeneratedSession is a materialised candidate that has not been persisted.
type GeneratedSession struct {
	WeekNumber    int           `json:"week_number"`
	Date          time.Time     `json:"date"`
	StartAt       time.Time     `json:"start_at"`
	EndAt         time.Time     `json:"end_at"`
	Room          *string       `json:"room,omitempty"`
	CheckInMethod CheckInMethod `json:"check_in_method"`
	AccessCode    *string       `json:"access_code,omitempty"`
	IsHoliday     bool          `json:"is_holiday"`
	HolidayName   *string       `json:"holiday_name,omitempty"`
	IsMakeUp      bool          `json:"is_make_up"`
}

// ClassSession is a persisted, dated meeting of a course.
type ClassSession struct {
	ID            string        `db:"id" json:"id"`
	CourseID      string        `db:"course_id" json:"course_id"`
	Week          int           `db:"week" json:"week"`
	SessionDate   time.Time     `db:"session_date" json:"session_date"`
	StartAt       time.Time     `db:"start_at" json:"start_at"`
	EndAt         time.Time     `db:"end_at" json:"end_at"`
	Room          *string       `db:"room" json:"room,omitempty"`
	CheckInMethod CheckInMethod `db:"check_in_method" json:"check_in_method"`
	AccessCode    *string       `db:"access_code" json:"access_code,omitempty"`
	IsMakeUp      bool          `db:"is_make_up" json:"is_make_up"`
	IsOpen        bool          `db:"is_open" json:"is_open"`
	IsClosed      bool          `db:"is_closed" json:"is_closed"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`
}

// State derives the lifecycle state from the flags.
func (s ClassSession) State() SessionState {
	switch {
	case s.IsClosed:
		return SessionStateClosed
	case s.IsOpen:
		return SessionStateOpen
	default:
		return SessionStatePending
	}
}

// WithoutCode hides the access code from student-facing payloads.
func (s ClassSession) WithoutCode() ClassSession {
	s.AccessCode = nil
	return s
}
