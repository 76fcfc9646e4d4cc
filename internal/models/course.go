package models

import "time"

// Default attendance policy values applied when a course has none configured.
const (
	DefaultMaxAbsent    = 3
	DefaultLateToAbsent = 3
)

// Course is the read-only view of a course the attendance core needs.
type Course struct {
	ID           string  `db:"id" json:"id"`
	SemesterID   string  `db:"semester_id" json:"semester_id"`
	InstructorID *string `db:"instructor_id" json:"instructor_id,omitempty"`
	Name         string  `db:"name" json:"name"`
}

// Semester bounds generation. Start and end may be unset for drafts.
type Semester struct {
	ID        string     `db:"id" json:"id"`
	Name      string     `db:"name" json:"name"`
	StartDate *time.Time `db:"start_date" json:"start_date,omitempty"`
	EndDate   *time.Time `db:"end_date" json:"end_date,omitempty"`
}

// Bounded reports whether both semester dates are set.
func (s Semester) Bounded() bool {
	return s.StartDate != nil && s.EndDate != nil
}

// AttendancePolicy drives the late-to-absent conversion and risk thresholds.
type AttendancePolicy struct {
	CourseID     string    `db:"course_id" json:"course_id"`
	MaxAbsent    int       `db:"max_absent" json:"max_absent"`
	LateToAbsent int       `db:"late_to_absent" json:"late_to_absent"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// DefaultPolicy returns the fallback policy for a course.
func DefaultPolicy(courseID string) AttendancePolicy {
	return AttendancePolicy{CourseID: courseID, MaxAbsent: DefaultMaxAbsent, LateToAbsent: DefaultLateToAbsent}
}

// Normalized replaces non-positive values with defaults.
func (p AttendancePolicy) Normalized() AttendancePolicy {
	if p.MaxAbsent <= 0 {
		p.MaxAbsent = DefaultMaxAbsent
	}
	if p.LateToAbsent <= 0 {
		p.LateToAbsent = DefaultLateToAbsent
	}
	return p
}
