package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-attendance-api/internal/models"
)

// CourseRepository reads courses and their semesters and policies.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// FindByID fetches a course.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	const query = `SELECT id, semester_id, instructor_id, name FROM courses WHERE id = $1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// LockForUpdate serialises session generation for a course within exec's transaction.
func (r *CourseRepository) LockForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) error {
	const query = `SELECT id FROM courses WHERE id = $1 FOR UPDATE`
	var locked string
	if err := sqlx.GetContext(ctx, exec, &locked, query, id); err != nil {
		return err
	}
	return nil
}

// FindSemester fetches the semester bounding a course.
func (r *CourseRepository) FindSemester(ctx context.Context, semesterID string) (*models.Semester, error) {
	const query = `SELECT id, name, start_date, end_date FROM semesters WHERE id = $1`
	var semester models.Semester
	if err := r.db.GetContext(ctx, &semester, query, semesterID); err != nil {
		return nil, err
	}
	return &semester, nil
}

// FindPolicy returns sql.ErrNoRows when the course has no explicit policy.
func (r *CourseRepository) FindPolicy(ctx context.Context, courseID string) (*models.AttendancePolicy, error) {
	const query = `SELECT course_id, max_absent, late_to_absent, updated_at FROM attendance_policies WHERE course_id = $1`
	var policy models.AttendancePolicy
	if err := r.db.GetContext(ctx, &policy, query, courseID); err != nil {
		return nil, err
	}
	return &policy, nil
}

// UpsertPolicy stores the course policy.
func (r *CourseRepository) UpsertPolicy(ctx context.Context, policy *models.AttendancePolicy) error {
	policy.UpdatedAt = time.Now().UTC()
	const query = `INSERT INTO attendance_policies (course_id, max_absent, late_to_absent, updated_at)
VALUES (:course_id, :max_absent, :late_to_absent, :updated_at)
ON CONFLICT (course_id) DO UPDATE
SET max_absent = EXCLUDED.max_absent,
    late_to_absent = EXCLUDED.late_to_absent,
    updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, policy); err != nil {
		return fmt.Errorf("upsert attendance policy: %w", err)
	}
	return nil
}
