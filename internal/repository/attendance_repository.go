package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-attendance-api/internal/models"
)

const attendanceColumns = `id, session_id, student_id, status, checked_at, created_at, updated_at`

// AttendanceRepository persists per-session attendance rows.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

func (r *AttendanceRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Upsert writes the status for (session, student), creating the row when absent.
func (r *AttendanceRepository) Upsert(ctx context.Context, exec sqlx.ExtContext, record *models.AttendanceRecord) error {
	now := time.Now().UTC()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	const query = `INSERT INTO attendance_records (id, session_id, student_id, status, checked_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (session_id, student_id) DO UPDATE
SET status = EXCLUDED.status,
    checked_at = EXCLUDED.checked_at,
    updated_at = EXCLUDED.updated_at
RETURNING id, created_at`

	row := r.exec(exec).QueryRowxContext(ctx, query,
		record.ID, record.SessionID, record.StudentID, record.Status, record.CheckedAt, record.CreatedAt, record.UpdatedAt)
	if err := row.Scan(&record.ID, &record.CreatedAt); err != nil {
		return fmt.Errorf("upsert attendance record: %w", err)
	}
	return nil
}

// EnsurePending creates a PENDING row for (session, student) when none exists
// and returns the stored row either way.
func (r *AttendanceRepository) EnsurePending(ctx context.Context, exec sqlx.ExtContext, sessionID, studentID string) (*models.AttendanceRecord, error) {
	now := time.Now().UTC()
	const query = `INSERT INTO attendance_records (id, session_id, student_id, status, checked_at, created_at, updated_at)
VALUES ($1, $2, $3, 'PENDING', NULL, $4, $4)
ON CONFLICT (session_id, student_id) DO NOTHING`
	if _, err := r.exec(exec).ExecContext(ctx, query, uuid.NewString(), sessionID, studentID, now); err != nil {
		return nil, fmt.Errorf("ensure attendance record: %w", err)
	}
	return r.FindBySessionStudent(ctx, exec, sessionID, studentID)
}

// FindBySessionStudent returns sql.ErrNoRows when the student has no row yet.
func (r *AttendanceRepository) FindBySessionStudent(ctx context.Context, exec sqlx.ExtContext, sessionID, studentID string) (*models.AttendanceRecord, error) {
	query := `SELECT ` + attendanceColumns + ` FROM attendance_records WHERE session_id = $1 AND student_id = $2`
	var record models.AttendanceRecord
	if err := sqlx.GetContext(ctx, r.exec(exec), &record, query, sessionID, studentID); err != nil {
		return nil, err
	}
	return &record, nil
}

// FindByID loads an attendance row, locking it when forUpdate is set.
func (r *AttendanceRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string, forUpdate bool) (*models.AttendanceRecord, error) {
	query := `SELECT ` + attendanceColumns + ` FROM attendance_records WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var record models.AttendanceRecord
	if err := sqlx.GetContext(ctx, r.exec(exec), &record, query, id); err != nil {
		return nil, err
	}
	return &record, nil
}

// UpdateStatus sets the status of an existing row.
func (r *AttendanceRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.AttendanceStatus) error {
	const query = `UPDATE attendance_records SET status = $2, updated_at = $3 WHERE id = $1`
	result, err := r.exec(exec).ExecContext(ctx, query, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update attendance status: %w", err)
	}
	return expectAffected(result)
}

// FinalizeAbsent marks every enrolled student still pending as ABSENT, creating
// rows for students who never had one. Returns the number of rows written.
func (r *AttendanceRepository) FinalizeAbsent(ctx context.Context, exec sqlx.ExtContext, sessionID, courseID string) (int64, error) {
	const query = `INSERT INTO attendance_records (id, session_id, student_id, status, checked_at, created_at, updated_at)
SELECT gen_random_uuid(), $1, e.student_id, 'ABSENT', NULL, $3, $3
FROM enrollments e
WHERE e.course_id = $2
ON CONFLICT (session_id, student_id) DO UPDATE
SET status = 'ABSENT',
    updated_at = EXCLUDED.updated_at
WHERE attendance_records.status = 'PENDING'`

	result, err := r.exec(exec).ExecContext(ctx, query, sessionID, courseID, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("finalize absent attendance: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check finalized rows: %w", err)
	}
	return rows, nil
}

// Roster lists enrolled students with their record; missing rows read as PENDING.
func (r *AttendanceRepository) Roster(ctx context.Context, sessionID, courseID string) ([]models.AttendanceRosterEntry, error) {
	const query = `SELECT e.student_id, COALESCE(u.full_name, '') AS student_name, ar.id AS attendance_id,
       COALESCE(ar.status, 'PENDING') AS status, ar.checked_at
FROM enrollments e
LEFT JOIN users u ON u.id = e.student_id
LEFT JOIN attendance_records ar ON ar.session_id = $1 AND ar.student_id = e.student_id
WHERE e.course_id = $2
ORDER BY student_name ASC, e.student_id ASC`
	var roster []models.AttendanceRosterEntry
	if err := r.db.SelectContext(ctx, &roster, query, sessionID, courseID); err != nil {
		return nil, fmt.Errorf("list session roster: %w", err)
	}
	return roster, nil
}

const tallyQuery = `SELECT e.student_id, COALESCE(u.full_name, '') AS student_name,
       COUNT(s.id) FILTER (WHERE ar.status = 'PRESENT') AS present,
       COUNT(s.id) FILTER (WHERE ar.status = 'LATE') AS late,
       COUNT(s.id) FILTER (WHERE ar.status = 'ABSENT') AS absent,
       COUNT(s.id) FILTER (WHERE ar.status = 'EXCUSED') AS excused,
       COUNT(s.id) FILTER (WHERE COALESCE(ar.status, 'PENDING') = 'PENDING') AS pending
FROM enrollments e
LEFT JOIN users u ON u.id = e.student_id
LEFT JOIN class_sessions s ON s.course_id = e.course_id AND (s.is_open OR s.is_closed)
LEFT JOIN attendance_records ar ON ar.session_id = s.id AND ar.student_id = e.student_id
WHERE e.course_id = $1`

// TallyByCourse counts statuses per enrolled student over held sessions.
func (r *AttendanceRepository) TallyByCourse(ctx context.Context, courseID string) ([]models.AttendanceTally, error) {
	query := tallyQuery + `
GROUP BY e.student_id, u.full_name
ORDER BY student_name ASC, e.student_id ASC`
	var tallies []models.AttendanceTally
	if err := r.db.SelectContext(ctx, &tallies, query, courseID); err != nil {
		return nil, fmt.Errorf("tally course attendance: %w", err)
	}
	return tallies, nil
}

// TallyByStudent counts statuses for one student in a course.
func (r *AttendanceRepository) TallyByStudent(ctx context.Context, courseID, studentID string) (*models.AttendanceTally, error) {
	query := tallyQuery + ` AND e.student_id = $2
GROUP BY e.student_id, u.full_name`
	var tally models.AttendanceTally
	if err := r.db.GetContext(ctx, &tally, query, courseID, studentID); err != nil {
		return nil, err
	}
	return &tally, nil
}
