package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func newEnrollmentRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestEnrollmentRepositoryIsEnrolledTrueAndFalse(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	query := regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM enrollments WHERE course_id = $1 AND student_id = $2)")
	mock.ExpectQuery(query).
		WithArgs("course-1", "stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(query).
		WithArgs("course-1", "stu-9").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	enrolled, err := repo.IsEnrolled(context.Background(), nil, "course-1", "stu-1")
	require.NoError(t, err)
	require.True(t, enrolled)

	enrolled, err = repo.IsEnrolled(context.Background(), nil, "course-1", "stu-9")
	require.NoError(t, err)
	require.False(t, enrolled)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryIsEnrolledWrapsErrors(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery("SELECT EXISTS").WillReturnError(errors.New("boom"))

	_, err := repo.IsEnrolled(context.Background(), nil, "course-1", "stu-1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "check enrollment")
}
