package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-attendance-api/internal/dto"
	"github.com/noah-isme/sma-attendance-api/internal/models"
	"github.com/noah-isme/sma-attendance-api/internal/repository"
	appErrors "github.com/noah-isme/sma-attendance-api/pkg/errors"
)

type sessionStateStub struct {
	sessions  map[string]*models.ClassSession
	lockModes []repository.LockMode
}

func (s *sessionStateStub) find(id string) (*models.ClassSession, error) {
	session, ok := s.sessions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *session
	return &copied, nil
}

func (s *sessionStateStub) FindByID(ctx context.Context, id string) (*models.ClassSession, error) {
	return s.find(id)
}

func (s *sessionStateStub) FindForUpdate(ctx context.Context, exec sqlx.ExtContext, id string, mode repository.LockMode) (*models.ClassSession, error) {
	s.lockModes = append(s.lockModes, mode)
	return s.find(id)
}

func (s *sessionStateStub) UpdateState(ctx context.Context, exec sqlx.ExtContext, id string, isOpen, isClosed bool) error {
	s.sessions[id].IsOpen = isOpen
	s.sessions[id].IsClosed = isClosed
	return nil
}

func (s *sessionStateStub) UpdateAccessCode(ctx context.Context, exec sqlx.ExtContext, id, code string) error {
	s.sessions[id].AccessCode = &code
	return nil
}

type attendanceStoreStub struct {
	records  map[string]*models.AttendanceRecord
	enrolled map[string][]string
	upserts  int
}

func newAttendanceStoreStub(enrolled map[string][]string) *attendanceStoreStub {
	return &attendanceStoreStub{records: map[string]*models.AttendanceRecord{}, enrolled: enrolled}
}

func recordKey(sessionID, studentID string) string {
	return sessionID + "/" + studentID
}

func (s *attendanceStoreStub) Upsert(ctx context.Context, exec sqlx.ExtContext, record *models.AttendanceRecord) error {
	s.upserts++
	key := recordKey(record.SessionID, record.StudentID)
	if existing, ok := s.records[key]; ok {
		record.ID = existing.ID
	} else if record.ID == "" {
		record.ID = "att-" + record.StudentID
	}
	copied := *record
	s.records[key] = &copied
	return nil
}

func (s *attendanceStoreStub) FindBySessionStudent(ctx context.Context, exec sqlx.ExtContext, sessionID, studentID string) (*models.AttendanceRecord, error) {
	record, ok := s.records[recordKey(sessionID, studentID)]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *record
	return &copied, nil
}

func (s *attendanceStoreStub) FindByID(ctx context.Context, exec sqlx.ExtContext, id string, forUpdate bool) (*models.AttendanceRecord, error) {
	for _, record := range s.records {
		if record.ID == id {
			copied := *record
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *attendanceStoreStub) EnsurePending(ctx context.Context, exec sqlx.ExtContext, sessionID, studentID string) (*models.AttendanceRecord, error) {
	key := recordKey(sessionID, studentID)
	if _, ok := s.records[key]; !ok {
		s.records[key] = &models.AttendanceRecord{ID: "att-" + studentID, SessionID: sessionID, StudentID: studentID, Status: models.AttendanceStatusPending}
	}
	return s.FindBySessionStudent(ctx, exec, sessionID, studentID)
}

func (s *attendanceStoreStub) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.AttendanceStatus) error {
	for _, record := range s.records {
		if record.ID == id {
			record.Status = status
			return nil
		}
	}
	return sql.ErrNoRows
}

func (s *attendanceStoreStub) FinalizeAbsent(ctx context.Context, exec sqlx.ExtContext, sessionID, courseID string) (int64, error) {
	var count int64
	for _, studentID := range s.enrolled[courseID] {
		key := recordKey(sessionID, studentID)
		record, ok := s.records[key]
		switch {
		case !ok:
			s.records[key] = &models.AttendanceRecord{ID: "att-" + studentID, SessionID: sessionID, StudentID: studentID, Status: models.AttendanceStatusAbsent}
			count++
		case record.Status == models.AttendanceStatusPending:
			record.Status = models.AttendanceStatusAbsent
			count++
		}
	}
	return count, nil
}

func (s *attendanceStoreStub) Roster(ctx context.Context, sessionID, courseID string) ([]models.AttendanceRosterEntry, error) {
	roster := make([]models.AttendanceRosterEntry, 0)
	for _, studentID := range s.enrolled[courseID] {
		entry := models.AttendanceRosterEntry{StudentID: studentID, Status: models.AttendanceStatusPending}
		if record, ok := s.records[recordKey(sessionID, studentID)]; ok {
			id := record.ID
			entry.AttendanceID = &id
			entry.Status = record.Status
			entry.CheckedAt = record.CheckedAt
		}
		roster = append(roster, entry)
	}
	return roster, nil
}

func (s *attendanceStoreStub) IsEnrolled(ctx context.Context, exec sqlx.ExtContext, courseID, studentID string) (bool, error) {
	for _, id := range s.enrolled[courseID] {
		if id == studentID {
			return true, nil
		}
	}
	return false, nil
}

type attendanceFixture struct {
	service  *AttendanceService
	sessions *sessionStateStub
	records  *attendanceStoreStub
	audit    *auditStub
	metrics  *MetricsService
	mock     sqlmock.Sqlmock
	now      time.Time
}

func newAttendanceFixture(t *testing.T, sessions ...*models.ClassSession) *attendanceFixture {
	tx, mock := newTxProviderMock(t)
	instructor := "teacher-1"
	courses := &courseStub{course: &models.Course{ID: "course-1", SemesterID: "sem-1", InstructorID: &instructor}}
	state := &sessionStateStub{sessions: map[string]*models.ClassSession{}}
	for _, session := range sessions {
		state.sessions[session.ID] = session
	}
	records := newAttendanceStoreStub(map[string][]string{"course-1": {"student-1", "student-2", "student-3"}})
	audit := &auditStub{}
	metrics := NewMetricsService()
	svc := NewAttendanceService(state, records, records, courses, &fixedCodes{codes: []string{"4821", "0937"}},
		tx, audit, nil, metrics, nil, nil)
	now := time.Date(2025, 3, 5, 9, 3, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	return &attendanceFixture{service: svc, sessions: state, records: records, audit: audit, metrics: metrics, mock: mock, now: now}
}

func classSession(id string, method models.CheckInMethod, open, closed bool) *models.ClassSession {
	return &models.ClassSession{ID: id, CourseID: "course-1", Week: 1, SessionDate: day(2025, 3, 5), CheckInMethod: method, IsOpen: open, IsClosed: closed}
}

func (f *attendanceFixture) expectCommit() {
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
}

func (f *attendanceFixture) expectRollback() {
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
}

func TestAttendanceOpenSession(t *testing.T) {
	f := newAttendanceFixture(t, classSession("s1", models.CheckInElectronic, false, false))
	f.expectCommit()

	session, err := f.service.OpenSession(context.Background(), "s1", teacherClaims("teacher-1"))
	require.NoError(t, err)
	assert.Equal(t, models.SessionStateOpen, session.State())
	assert.True(t, f.sessions.sessions["s1"].IsOpen)
	assert.Equal(t, []repository.LockMode{repository.LockExclusive}, f.sessions.lockModes)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestAttendanceOpenCodeSessionGetsCode(t *testing.T) {
	f := newAttendanceFixture(t, classSession("s1", models.CheckInCode, false, false))
	f.expectCommit()

	session, err := f.service.OpenSession(context.Background(), "s1", teacherClaims("teacher-1"))
	require.NoError(t, err)
	require.NotNil(t, session.AccessCode)
	assert.Equal(t, "4821", *session.AccessCode)
}

func TestAttendanceOpenRejectsOpenOrClosed(t *testing.T) {
	f := newAttendanceFixture(t,
		classSession("open", models.CheckInElectronic, true, false),
		classSession("closed", models.CheckInElectronic, false, true))
	f.expectRollback()
	f.expectRollback()

	_, err := f.service.OpenSession(context.Background(), "open", teacherClaims("teacher-1"))
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidState))
	_, err = f.service.OpenSession(context.Background(), "closed", teacherClaims("teacher-1"))
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidState))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestAttendanceOpenRequiresInstructor(t *testing.T) {
	f := newAttendanceFixture(t, classSession("s1", models.CheckInElectronic, false, false))
	f.expectRollback()
	f.expectRollback()
	f.expectRollback()

	_, err := f.service.OpenSession(context.Background(), "s1", teacherClaims("teacher-2"))
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
	_, err = f.service.OpenSession(context.Background(), "s1", studentClaims("student-1"))
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
	_, err = f.service.OpenSession(context.Background(), "missing", teacherClaims("teacher-1"))
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
	assert.False(t, f.sessions.sessions["s1"].IsOpen)
}

func TestAttendanceCheckInElectronic(t *testing.T) {
	f := newAttendanceFixture(t, classSession("s1", models.CheckInElectronic, true, false))
	f.expectCommit()

	record, err := f.service.CheckIn(context.Background(), dto.CheckInRequest{SessionID: "s1", StudentID: "student-1"})
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceStatusPresent, record.Status)
	require.NotNil(t, record.CheckedAt)
	assert.Equal(t, f.now, *record.CheckedAt)
	assert.Equal(t, []repository.LockMode{repository.LockShared}, f.sessions.lockModes)
	assert.Equal(t, uint64(1), f.metrics.Snapshot().CheckIns)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestAttendanceCheckInWithWrongCodeWritesNothing(t *testing.T) {
	session := classSession("s1", models.CheckInCode, true, false)
	code := "4821"
	session.AccessCode = &code
	f := newAttendanceFixture(t, session)
	f.expectRollback()
	f.expectCommit()

	_, err := f.service.CheckIn(context.Background(), dto.CheckInRequest{SessionID: "s1", StudentID: "student-1", Code: "1111"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidState))
	assert.Empty(t, f.records.records)

	record, err := f.service.CheckIn(context.Background(), dto.CheckInRequest{SessionID: "s1", StudentID: "student-2", Code: "4821"})
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceStatusPresent, record.Status)
	assert.Len(t, f.records.records, 1)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestAttendanceCheckInRejectsWrongState(t *testing.T) {
	f := newAttendanceFixture(t,
		classSession("pending", models.CheckInElectronic, false, false),
		classSession("closed", models.CheckInElectronic, false, true),
		classSession("rollcall", models.CheckInRollCall, true, false))
	f.expectRollback()
	f.expectRollback()
	f.expectRollback()

	for _, id := range []string{"pending", "closed", "rollcall"} {
		_, err := f.service.CheckIn(context.Background(), dto.CheckInRequest{SessionID: id, StudentID: "student-1"})
		require.Error(t, err, id)
		assert.True(t, appErrors.Is(err, appErrors.ErrInvalidState), id)
	}
	assert.Empty(t, f.records.records)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestAttendanceCheckInRequiresEnrollment(t *testing.T) {
	f := newAttendanceFixture(t, classSession("s1", models.CheckInElectronic, true, false))
	f.expectRollback()

	_, err := f.service.CheckIn(context.Background(), dto.CheckInRequest{SessionID: "s1", StudentID: "stranger"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestAttendanceRepeatedCheckInKeepsOneRecord(t *testing.T) {
	f := newAttendanceFixture(t, classSession("s1", models.CheckInElectronic, true, false))
	f.expectCommit()
	f.expectCommit()

	first, err := f.service.CheckIn(context.Background(), dto.CheckInRequest{SessionID: "s1", StudentID: "student-1"})
	require.NoError(t, err)
	second, err := f.service.CheckIn(context.Background(), dto.CheckInRequest{SessionID: "s1", StudentID: "student-1"})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, f.records.records, 1)
}

func TestAttendanceCloseFinalizesAbsentees(t *testing.T) {
	f := newAttendanceFixture(t, classSession("s1", models.CheckInElectronic, true, false))
	f.expectCommit()
	f.expectCommit()

	_, err := f.service.CheckIn(context.Background(), dto.CheckInRequest{SessionID: "s1", StudentID: "student-1"})
	require.NoError(t, err)

	result, err := f.service.CloseSession(context.Background(), "s1", teacherClaims("teacher-1"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.Finalized)
	assert.Equal(t, models.SessionStateClosed, result.Session.State())

	assert.Equal(t, models.AttendanceStatusPresent, f.records.records[recordKey("s1", "student-1")].Status)
	assert.Equal(t, models.AttendanceStatusAbsent, f.records.records[recordKey("s1", "student-2")].Status)
	assert.Equal(t, models.AttendanceStatusAbsent, f.records.records[recordKey("s1", "student-3")].Status)
	require.Len(t, f.audit.logs, 1)
	assert.Equal(t, models.AuditActionSessionClose, f.audit.logs[0].Action)
	assert.Equal(t, uint64(2), f.metrics.Snapshot().AbsencesFinalized)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestAttendanceCloseIsFinal(t *testing.T) {
	f := newAttendanceFixture(t, classSession("s1", models.CheckInElectronic, true, false))
	f.expectCommit()
	f.expectRollback()
	f.expectRollback()

	_, err := f.service.CloseSession(context.Background(), "s1", teacherClaims("teacher-1"))
	require.NoError(t, err)

	_, err = f.service.CloseSession(context.Background(), "s1", teacherClaims("teacher-1"))
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidState))

	_, err = f.service.CheckIn(context.Background(), dto.CheckInRequest{SessionID: "s1", StudentID: "student-1"})
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidState))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestAttendanceCloseSucceedsWhenAuditFails(t *testing.T) {
	f := newAttendanceFixture(t, classSession("s1", models.CheckInElectronic, true, false))
	f.audit.err = sql.ErrConnDone
	f.expectCommit()

	result, err := f.service.CloseSession(context.Background(), "s1", teacherClaims("teacher-1"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.Finalized)
}

func TestAttendanceOverrideStatus(t *testing.T) {
	f := newAttendanceFixture(t, classSession("s1", models.CheckInElectronic, false, true))
	f.expectCommit()
	f.expectCommit()

	record, err := f.service.OverrideStatus(context.Background(), dto.OverrideAttendanceRequest{
		SessionID: "s1", StudentID: "student-2", Status: "late",
	}, teacherClaims("teacher-1"))
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceStatusLate, record.Status)
	require.NotNil(t, record.CheckedAt)

	record, err = f.service.OverrideStatus(context.Background(), dto.OverrideAttendanceRequest{
		SessionID: "s1", StudentID: "student-2", Status: models.AttendanceStatusExcused,
	}, teacherClaims("teacher-1"))
	require.NoError(t, err)
	assert.Nil(t, record.CheckedAt)
	assert.Len(t, f.records.records, 1)

	require.Len(t, f.audit.logs, 2)
	assert.JSONEq(t, `{"status":"PENDING"}`, string(f.audit.logs[0].OldValues))
	assert.JSONEq(t, `{"status":"LATE"}`, string(f.audit.logs[0].NewValues))
	assert.JSONEq(t, `{"status":"LATE"}`, string(f.audit.logs[1].OldValues))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestAttendanceOverrideValidation(t *testing.T) {
	f := newAttendanceFixture(t, classSession("s1", models.CheckInElectronic, true, false))
	f.expectRollback()
	f.expectRollback()

	_, err := f.service.OverrideStatus(context.Background(), dto.OverrideAttendanceRequest{
		SessionID: "s1", StudentID: "student-1", Status: "SLEEPING",
	}, teacherClaims("teacher-1"))
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, err = f.service.OverrideStatus(context.Background(), dto.OverrideAttendanceRequest{
		SessionID: "s1", StudentID: "stranger", Status: models.AttendanceStatusPresent,
	}, teacherClaims("teacher-1"))
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, err = f.service.OverrideStatus(context.Background(), dto.OverrideAttendanceRequest{
		SessionID: "s1", StudentID: "student-1", Status: models.AttendanceStatusPresent,
	}, studentClaims("student-1"))
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
	assert.Empty(t, f.records.records)
}

func TestAttendanceRegenerateCode(t *testing.T) {
	f := newAttendanceFixture(t,
		classSession("code", models.CheckInCode, true, false),
		classSession("plain", models.CheckInElectronic, true, false))
	f.expectCommit()
	f.expectRollback()

	session, err := f.service.RegenerateCode(context.Background(), "code", teacherClaims("teacher-1"))
	require.NoError(t, err)
	require.NotNil(t, session.AccessCode)
	assert.Equal(t, "4821", *f.sessions.sessions["code"].AccessCode)

	_, err = f.service.RegenerateCode(context.Background(), "plain", teacherClaims("teacher-1"))
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidState))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestAttendanceSessionRosterReadsMissingRowsAsPending(t *testing.T) {
	f := newAttendanceFixture(t, classSession("s1", models.CheckInElectronic, true, false))
	f.expectCommit()

	_, err := f.service.CheckIn(context.Background(), dto.CheckInRequest{SessionID: "s1", StudentID: "student-3"})
	require.NoError(t, err)

	resp, err := f.service.SessionAttendance(context.Background(), "s1", teacherClaims("teacher-1"))
	require.NoError(t, err)
	assert.Equal(t, models.SessionStateOpen, resp.State)
	require.Len(t, resp.Roster, 3)
	assert.Equal(t, models.AttendanceStatusPending, resp.Roster[0].Status)
	assert.Nil(t, resp.Roster[0].AttendanceID)
	assert.Equal(t, models.AttendanceStatusPresent, resp.Roster[2].Status)
}
