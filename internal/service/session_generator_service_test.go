package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-attendance-api/internal/dto"
	"github.com/noah-isme/sma-attendance-api/internal/models"
	appErrors "github.com/noah-isme/sma-attendance-api/pkg/errors"
	"github.com/noah-isme/sma-attendance-api/pkg/holiday"
)

type txProviderMock struct {
	db   *sqlx.DB
	mock sqlmock.Sqlmock
}

func newTxProviderMock(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &txProviderMock{db: sqlx.NewDb(db, "postgres"), mock: mock}, mock
}

func (t *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}

type noopTxProvider struct{}

func (noopTxProvider) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return nil, appErrors.Clone(appErrors.ErrInternal, "transaction provider unavailable")
}

type courseStub struct {
	course   *models.Course
	semester *models.Semester
	policy   *models.AttendancePolicy
	findErr  error
	locked   []string
}

func (s *courseStub) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	if s.course == nil || s.course.ID != id {
		return nil, sql.ErrNoRows
	}
	course := *s.course
	return &course, nil
}

func (s *courseStub) FindSemester(ctx context.Context, semesterID string) (*models.Semester, error) {
	if s.semester == nil {
		return nil, sql.ErrNoRows
	}
	return s.semester, nil
}

func (s *courseStub) LockForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) error {
	s.locked = append(s.locked, id)
	return nil
}

func (s *courseStub) FindPolicy(ctx context.Context, courseID string) (*models.AttendancePolicy, error) {
	if s.policy == nil {
		return nil, sql.ErrNoRows
	}
	return s.policy, nil
}

func (s *courseStub) UpsertPolicy(ctx context.Context, policy *models.AttendancePolicy) error {
	s.policy = policy
	return nil
}

type sessionStoreStub struct {
	sessions  []models.ClassSession
	createErr error
}

func (s *sessionStoreStub) ListByCourse(ctx context.Context, exec sqlx.ExtContext, courseID string) ([]models.ClassSession, error) {
	out := make([]models.ClassSession, 0, len(s.sessions))
	for _, session := range s.sessions {
		if session.CourseID == courseID {
			out = append(out, session)
		}
	}
	return out, nil
}

func (s *sessionStoreStub) BulkCreate(ctx context.Context, exec sqlx.ExtContext, sessions []models.ClassSession) error {
	if s.createErr != nil {
		return s.createErr
	}
	for i := range sessions {
		sessions[i].ID = "session-" + sessions[i].SessionDate.Format(dateLayout)
	}
	s.sessions = append(s.sessions, sessions...)
	return nil
}

type auditStub struct {
	logs []*models.AuditLog
	err  error
}

func (s *auditStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	s.logs = append(s.logs, log)
	return s.err
}

func springSemester() *models.Semester {
	start := day(2025, 3, 1)
	end := day(2025, 6, 30)
	return &models.Semester{ID: "sem-1", Name: "2025-1", StartDate: &start, EndDate: &end}
}

func teacherClaims(id string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: models.RoleTeacher}
}

func studentClaims(id string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: models.RoleStudent}
}

func marchRequest() dto.GenerateSessionsRequest {
	return dto.GenerateSessionsRequest{
		DaysOfWeek:    []int{1, 3},
		StartDate:     "2025-03-01",
		EndDate:       "2025-03-31",
		StartTime:     "09:00",
		EndTime:       "10:30",
		CheckInMethod: "electronic",
	}
}

type generatorFixture struct {
	service  *SessionGeneratorService
	courses  *courseStub
	sessions *sessionStoreStub
	audit    *auditStub
	metrics  *MetricsService
}

func newGeneratorFixture(tx txProvider) *generatorFixture {
	instructor := "teacher-1"
	courses := &courseStub{
		course:   &models.Course{ID: "course-1", SemesterID: "sem-1", InstructorID: &instructor, Name: "Physics"},
		semester: springSemester(),
	}
	sessions := &sessionStoreStub{}
	audit := &auditStub{}
	metrics := NewMetricsService()
	if tx == nil {
		tx = noopTxProvider{}
	}
	svc := NewSessionGeneratorService(courses, sessions, holiday.NewStaticCalendar(2025),
		&fixedCodes{codes: []string{"4821", "0937"}}, tx, audit, metrics, nil, nil, SessionGeneratorConfig{})
	return &generatorFixture{service: svc, courses: courses, sessions: sessions, audit: audit, metrics: metrics}
}

func TestSessionGeneratorGenerateExcludesHolidays(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectCommit()
	f := newGeneratorFixture(tx)

	result, err := f.service.Generate(context.Background(), "course-1", marchRequest(), teacherClaims("teacher-1"))
	require.NoError(t, err)

	require.Len(t, result.Created, 8)
	assert.Equal(t, 8, result.Total)
	assert.Equal(t, 0, result.Skipped)
	assert.Equal(t, day(2025, 3, 5), result.Created[0].SessionDate)
	assert.Equal(t, 1, result.Created[0].Week)
	assert.Equal(t, 5, result.Created[len(result.Created)-1].Week)
	assert.Equal(t, time.Date(2025, 3, 5, 9, 0, 0, 0, time.UTC), result.Created[0].StartAt)
	for _, session := range result.Created {
		assert.NotEqual(t, day(2025, 3, 3), session.SessionDate)
		assert.Nil(t, session.AccessCode)
	}
	assert.Equal(t, []string{"course-1"}, f.courses.locked)
	require.Len(t, f.audit.logs, 1)
	assert.Equal(t, models.AuditActionSessionsGenerate, f.audit.logs[0].Action)
	assert.Equal(t, uint64(8), f.metrics.Snapshot().SessionsGenerated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionGeneratorSecondRunSkipsEverything(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectRollback()
	f := newGeneratorFixture(tx)

	first, err := f.service.Generate(context.Background(), "course-1", marchRequest(), teacherClaims("teacher-1"))
	require.NoError(t, err)

	second, err := f.service.Generate(context.Background(), "course-1", marchRequest(), teacherClaims("teacher-1"))
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrSessionConflict))
	require.NotNil(t, second)
	assert.Empty(t, second.Created)
	assert.Equal(t, len(first.Created), second.Skipped)
	assert.Len(t, f.sessions.sessions, len(first.Created))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionGeneratorKeepsMakeUpOnHoliday(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectCommit()
	f := newGeneratorFixture(tx)

	req := marchRequest()
	req.MakeUpDates = []string{"2025-03-03", "2025-03-08"}
	result, err := f.service.Generate(context.Background(), "course-1", req, teacherClaims("teacher-1"))
	require.NoError(t, err)
	require.Len(t, result.Created, 10)
	assert.Equal(t, day(2025, 3, 3), result.Created[0].SessionDate)
	assert.True(t, result.Created[0].IsMakeUp)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionGeneratorAssignsCodesForCodeSessions(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectCommit()
	f := newGeneratorFixture(tx)

	req := marchRequest()
	req.CheckInMethod = "CODE"
	req.EndDate = "2025-03-07"
	result, err := f.service.Generate(context.Background(), "course-1", req, teacherClaims("teacher-1"))
	require.NoError(t, err)
	require.Len(t, result.Created, 1)
	require.NotNil(t, result.Created[0].AccessCode)
	assert.Equal(t, "4821", *result.Created[0].AccessCode)
	assert.Equal(t, models.CheckInCode, result.Created[0].CheckInMethod)
}

func TestSessionGeneratorNoSessionsGenerated(t *testing.T) {
	f := newGeneratorFixture(nil)
	req := marchRequest()
	req.StartDate = "2025-08-01"
	req.EndDate = "2025-08-31"

	result, err := f.service.Generate(context.Background(), "course-1", req, teacherClaims("teacher-1"))
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNoSessionsGenerated))
	require.NotNil(t, result)
	assert.Equal(t, 0, result.Total)
	assert.Empty(t, f.sessions.sessions)
}

func TestSessionGeneratorRejectsInvalidInput(t *testing.T) {
	f := newGeneratorFixture(nil)

	cases := map[string]func(*dto.GenerateSessionsRequest){
		"bad clock":      func(r *dto.GenerateSessionsRequest) { r.StartTime = "25:00" },
		"end not after":  func(r *dto.GenerateSessionsRequest) { r.EndTime = "09:00" },
		"no weekdays":    func(r *dto.GenerateSessionsRequest) { r.DaysOfWeek = nil },
		"weekday range":  func(r *dto.GenerateSessionsRequest) { r.DaysOfWeek = []int{7} },
		"bad method":     func(r *dto.GenerateSessionsRequest) { r.CheckInMethod = "QR" },
		"bad date":       func(r *dto.GenerateSessionsRequest) { r.StartDate = "03/01/2025" },
		"inverted range": func(r *dto.GenerateSessionsRequest) { r.EndDate = "2025-02-01" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := marchRequest()
			mutate(&req)
			_, err := f.service.Generate(context.Background(), "course-1", req, teacherClaims("teacher-1"))
			require.Error(t, err)
			assert.True(t, appErrors.Is(err, appErrors.ErrValidation), err.Error())
		})
	}
}

func TestSessionGeneratorAuthorization(t *testing.T) {
	f := newGeneratorFixture(nil)

	_, err := f.service.Generate(context.Background(), "course-1", marchRequest(), teacherClaims("teacher-2"))
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	_, err = f.service.Generate(context.Background(), "course-1", marchRequest(), studentClaims("student-1"))
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	_, err = f.service.Generate(context.Background(), "missing", marchRequest(), teacherClaims("teacher-1"))
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestSessionGeneratorRequiresBoundedSemester(t *testing.T) {
	f := newGeneratorFixture(nil)
	f.courses.semester = &models.Semester{ID: "sem-1"}

	_, err := f.service.Preview(context.Background(), "course-1", marchRequest(), teacherClaims("teacher-1"))
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestSessionGeneratorUniqueViolationIsConflict(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectRollback()
	f := newGeneratorFixture(tx)
	f.sessions.createErr = &pq.Error{Code: "23505", Constraint: "class_sessions_course_date_key"}

	_, err := f.service.Generate(context.Background(), "course-1", marchRequest(), teacherClaims("teacher-1"))
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrSessionConflict))
	assert.Empty(t, f.audit.logs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionGeneratorPreviewDoesNotPersist(t *testing.T) {
	f := newGeneratorFixture(nil)
	f.sessions.sessions = []models.ClassSession{{ID: "existing", CourseID: "course-1", SessionDate: day(2025, 3, 5)}}

	result, err := f.service.Preview(context.Background(), "course-1", marchRequest(), teacherClaims("teacher-1"))
	require.NoError(t, err)
	assert.True(t, result.Preview)
	assert.Equal(t, 8, result.Total)
	assert.Equal(t, 1, result.Skipped)
	assert.Len(t, result.Candidates, 7)
	assert.Len(t, f.sessions.sessions, 1)
}

func TestSessionGeneratorCreateSingle(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectCommit()
	f := newGeneratorFixture(tx)

	session, err := f.service.CreateSingle(context.Background(), "course-1", dto.CreateSessionRequest{
		Date:          "2025-03-15",
		StartTime:     "13:00",
		EndTime:       "14:00",
		CheckInMethod: "CODE",
		IsMakeUp:      true,
	}, teacherClaims("teacher-1"))
	require.NoError(t, err)
	assert.Equal(t, 3, session.Week)
	assert.Equal(t, day(2025, 3, 15), session.SessionDate)
	assert.True(t, session.IsMakeUp)
	require.NotNil(t, session.AccessCode)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionGeneratorCreateSingleReusesExistingWeek(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectCommit()
	f := newGeneratorFixture(tx)
	f.sessions.sessions = []models.ClassSession{
		{ID: "s1", CourseID: "course-1", SessionDate: day(2025, 3, 5), Week: 1},
		{ID: "s2", CourseID: "course-1", SessionDate: day(2025, 3, 19), Week: 2},
	}

	session, err := f.service.CreateSingle(context.Background(), "course-1", dto.CreateSessionRequest{
		Date: "2025-03-21", StartTime: "13:00", EndTime: "14:00", CheckInMethod: "ELECTRONIC",
	}, teacherClaims("teacher-1"))
	require.NoError(t, err)
	assert.Equal(t, 2, session.Week)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionGeneratorCreateSingleCodeFailure(t *testing.T) {
	f := newGeneratorFixture(nil)
	f.service.codes = &fixedCodes{err: errors.New("entropy exhausted")}

	_, err := f.service.CreateSingle(context.Background(), "course-1", dto.CreateSessionRequest{
		Date: "2025-03-21", StartTime: "13:00", EndTime: "14:00", CheckInMethod: "CODE",
	}, teacherClaims("teacher-1"))
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInternal))
	assert.Empty(t, f.sessions.sessions)
}

func TestSessionGeneratorCreateSingleConflicts(t *testing.T) {
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectRollback()
	f := newGeneratorFixture(tx)
	f.sessions.sessions = []models.ClassSession{{ID: "existing", CourseID: "course-1", SessionDate: day(2025, 3, 15)}}

	_, err := f.service.CreateSingle(context.Background(), "course-1", dto.CreateSessionRequest{
		Date: "2025-03-15", StartTime: "13:00", EndTime: "14:00", CheckInMethod: "ELECTRONIC",
	}, teacherClaims("teacher-1"))
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrSessionConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionGeneratorCreateSingleOutsideSemester(t *testing.T) {
	f := newGeneratorFixture(nil)

	_, err := f.service.CreateSingle(context.Background(), "course-1", dto.CreateSessionRequest{
		Date: "2025-07-15", StartTime: "13:00", EndTime: "14:00", CheckInMethod: "ELECTRONIC",
	}, teacherClaims("teacher-1"))
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestSessionGeneratorListHidesCodesFromStudents(t *testing.T) {
	f := newGeneratorFixture(nil)
	code := "1234"
	f.sessions.sessions = []models.ClassSession{{ID: "s1", CourseID: "course-1", AccessCode: &code}}

	sessions, err := f.service.List(context.Background(), "course-1", studentClaims("student-1"))
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Nil(t, sessions[0].AccessCode)

	sessions, err = f.service.List(context.Background(), "course-1", teacherClaims("teacher-1"))
	require.NoError(t, err)
	require.NotNil(t, sessions[0].AccessCode)
	assert.Equal(t, code, *sessions[0].AccessCode)
}
