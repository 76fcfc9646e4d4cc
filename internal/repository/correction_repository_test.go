package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-attendance-api/internal/models"
)

var correctionRowColumns = []string{"id", "kind", "attendance_id", "session_id", "course_id", "requested_by", "message",
	"status", "target_status", "comment", "decided_by", "decided_at", "created_at", "updated_at"}

func TestCorrectionRepositoryCreateAndGet(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCorrectionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO correction_requests")).WillReturnResult(sqlmock.NewResult(1, 1))
	request := &models.CorrectionRequest{Kind: models.CorrectionKindExcuse, AttendanceID: "att-1", RequestedBy: "student-1", Message: "sick"}
	require.NoError(t, repo.Create(context.Background(), nil, request))
	assert.NotEmpty(t, request.ID)
	assert.Equal(t, models.CorrectionStatusPending, request.Status)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE c.id = $1")).
		WithArgs(request.ID).
		WillReturnRows(sqlmock.NewRows(correctionRowColumns).
			AddRow(request.ID, "EXCUSE", "att-1", "session-1", "course-1", "student-1", "sick", "PENDING", nil, nil, nil, nil, now, now))
	found, err := repo.GetByID(context.Background(), nil, request.ID)
	require.NoError(t, err)
	assert.Equal(t, "course-1", found.CourseID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCorrectionRepositoryHasPending(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCorrectionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM correction_requests")).
		WithArgs(models.CorrectionKindAppeal, "att-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	pending, err := repo.HasPending(context.Background(), nil, models.CorrectionKindAppeal, "att-1")
	require.NoError(t, err)
	assert.True(t, pending)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCorrectionRepositoryDecideOnlyOnce(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCorrectionRepository(db)
	params := DecideCorrectionParams{ID: "corr-1", Status: models.CorrectionStatusApproved, DecidedBy: "teacher-1", DecidedAt: time.Now()}

	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND status = 'PENDING'")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Decide(context.Background(), nil, params))

	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND status = 'PENDING'")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.Decide(context.Background(), nil, params)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCorrectionRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCorrectionRepository(db)
	status := models.CorrectionStatusPending
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM correction_requests c")).
		WithArgs(models.CorrectionKindExcuse, status, "course-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE c.kind = $1 AND c.status = $2 AND s.course_id = $3 ORDER BY c.created_at DESC LIMIT 50 OFFSET 0")).
		WithArgs(models.CorrectionKindExcuse, status, "course-1").
		WillReturnRows(sqlmock.NewRows(correctionRowColumns).
			AddRow("corr-1", "EXCUSE", "att-1", "session-1", "course-1", "student-1", "sick", "PENDING", nil, nil, nil, nil, now, now))

	items, total, err := repo.List(context.Background(), models.CorrectionFilter{Kind: models.CorrectionKindExcuse, Status: &status, CourseID: "course-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, items, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}
