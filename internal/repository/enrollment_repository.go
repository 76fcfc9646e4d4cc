package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// EnrollmentRepository reads course enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// IsEnrolled reports whether the student belongs to the course.
func (r *EnrollmentRepository) IsEnrolled(ctx context.Context, exec sqlx.ExtContext, courseID, studentID string) (bool, error) {
	var target sqlx.ExtContext = r.db
	if exec != nil {
		target = exec
	}
	const query = `SELECT EXISTS(SELECT 1 FROM enrollments WHERE course_id = $1 AND student_id = $2)`
	var exists bool
	if err := sqlx.GetContext(ctx, target, &exists, query, courseID, studentID); err != nil {
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return exists, nil
}
