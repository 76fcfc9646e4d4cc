package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-attendance-api/internal/dto"
	"github.com/noah-isme/sma-attendance-api/internal/models"
	"github.com/noah-isme/sma-attendance-api/internal/repository"
	appErrors "github.com/noah-isme/sma-attendance-api/pkg/errors"
	applog "github.com/noah-isme/sma-attendance-api/pkg/logger"
)

const (
	checkInResultOK          = "ok"
	checkInResultNotOpen     = "not_open"
	checkInResultInvalidCode = "invalid_code"
	checkInResultRollCall    = "roll_call"
	checkInResultNotEnrolled = "not_enrolled"
)

type sessionStateStore interface {
	FindByID(ctx context.Context, id string) (*models.ClassSession, error)
	FindForUpdate(ctx context.Context, exec sqlx.ExtContext, id string, mode repository.LockMode) (*models.ClassSession, error)
	UpdateState(ctx context.Context, exec sqlx.ExtContext, id string, isOpen, isClosed bool) error
	UpdateAccessCode(ctx context.Context, exec sqlx.ExtContext, id, code string) error
}

type attendanceStore interface {
	Upsert(ctx context.Context, exec sqlx.ExtContext, record *models.AttendanceRecord) error
	FindBySessionStudent(ctx context.Context, exec sqlx.ExtContext, sessionID, studentID string) (*models.AttendanceRecord, error)
	FinalizeAbsent(ctx context.Context, exec sqlx.ExtContext, sessionID, courseID string) (int64, error)
	Roster(ctx context.Context, sessionID, courseID string) ([]models.AttendanceRosterEntry, error)
}

type enrollmentChecker interface {
	IsEnrolled(ctx context.Context, exec sqlx.ExtContext, courseID, studentID string) (bool, error)
}

type courseFinder interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

// AttendanceService drives the session lifecycle and per-student attendance state.
type AttendanceService struct {
	sessions    sessionStateStore
	records     attendanceStore
	enrollments enrollmentChecker
	courses     courseFinder
	codes       accessCodeGenerator
	tx          txProvider
	audit       auditLogger
	cache       *CacheService
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewAttendanceService constructs the attendance service.
func NewAttendanceService(
	sessions sessionStateStore,
	records attendanceStore,
	enrollments enrollmentChecker,
	courses courseFinder,
	codes accessCodeGenerator,
	tx txProvider,
	audit auditLogger,
	cache *CacheService,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
) *AttendanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{
		sessions:    sessions,
		records:     records,
		enrollments: enrollments,
		courses:     courses,
		codes:       codes,
		tx:          tx,
		audit:       audit,
		cache:       cache,
		metrics:     metrics,
		validator:   newAttendanceValidator(validate),
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// OpenSession moves a pending session to open. CODE sessions without a code get one.
func (s *AttendanceService) OpenSession(ctx context.Context, sessionID string, actor *models.JWTClaims) (session *models.ClassSession, err error) {
	tx, err := beginTx(ctx, s.tx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	session, err = s.lockSession(ctx, tx, sessionID, repository.LockExclusive)
	if err != nil {
		return nil, err
	}
	if err = s.authorize(ctx, session.CourseID, actor); err != nil {
		return nil, err
	}
	switch session.State() {
	case models.SessionStateClosed:
		err = appErrors.Clone(appErrors.ErrInvalidState, "session already closed")
		return nil, err
	case models.SessionStateOpen:
		err = appErrors.Clone(appErrors.ErrInvalidState, "session already open")
		return nil, err
	}

	if session.CheckInMethod == models.CheckInCode && (session.AccessCode == nil || *session.AccessCode == "") && s.codes != nil {
		var code string
		if code, err = newAccessCode(s.codes); err != nil {
			return nil, err
		}
		if err = s.sessions.UpdateAccessCode(ctx, tx, session.ID, code); err != nil {
			err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to set access code")
			return nil, err
		}
		session.AccessCode = &code
	}
	if err = s.sessions.UpdateState(ctx, tx, session.ID, true, false); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open session")
		return nil, err
	}
	if err = commitTx(tx); err != nil {
		return nil, err
	}

	session.IsOpen = true
	s.cache.InvalidateCourse(ctx, session.CourseID)
	applog.FromContext(ctx, s.logger).Info("session opened", zap.String("session_id", session.ID), zap.String("course_id", session.CourseID))
	return session, nil
}

// CheckIn records a student's own presence for an open session.
func (s *AttendanceService) CheckIn(ctx context.Context, req dto.CheckInRequest) (record *models.AttendanceRecord, err error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}

	tx, err := beginTx(ctx, s.tx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// FOR SHARE lets check-ins proceed together while excluding a concurrent close.
	session, err := s.lockSession(ctx, tx, req.SessionID, repository.LockShared)
	if err != nil {
		return nil, err
	}
	if session.State() != models.SessionStateOpen {
		s.metrics.RecordCheckIn(session.CheckInMethod, checkInResultNotOpen)
		err = appErrors.Clone(appErrors.ErrInvalidState, "session is not open for check-in")
		return nil, err
	}
	switch session.CheckInMethod {
	case models.CheckInRollCall:
		s.metrics.RecordCheckIn(session.CheckInMethod, checkInResultRollCall)
		err = appErrors.Clone(appErrors.ErrInvalidState, "attendance for this session is taken by roll call")
		return nil, err
	case models.CheckInCode:
		if session.AccessCode == nil || req.Code != *session.AccessCode {
			s.metrics.RecordCheckIn(session.CheckInMethod, checkInResultInvalidCode)
			err = appErrors.Clone(appErrors.ErrInvalidState, "invalid access code")
			return nil, err
		}
	}

	enrolled, err := s.enrollments.IsEnrolled(ctx, tx, session.CourseID, req.StudentID)
	if err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify enrollment")
		return nil, err
	}
	if !enrolled {
		s.metrics.RecordCheckIn(session.CheckInMethod, checkInResultNotEnrolled)
		err = appErrors.Clone(appErrors.ErrForbidden, "student is not enrolled in this course")
		return nil, err
	}

	checkedAt := s.now()
	record = &models.AttendanceRecord{
		SessionID: session.ID,
		StudentID: req.StudentID,
		Status:    models.AttendanceStatusPresent,
		CheckedAt: &checkedAt,
	}
	if err = s.records.Upsert(ctx, tx, record); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record check-in")
		return nil, err
	}
	if err = commitTx(tx); err != nil {
		return nil, err
	}

	s.metrics.RecordCheckIn(session.CheckInMethod, checkInResultOK)
	s.cache.InvalidateCourse(ctx, session.CourseID)
	return record, nil
}

// CloseSession closes a session and finalizes every pending enrolled student as ABSENT.
func (s *AttendanceService) CloseSession(ctx context.Context, sessionID string, actor *models.JWTClaims) (result *dto.CloseSessionResult, err error) {
	tx, err := beginTx(ctx, s.tx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	session, err := s.lockSession(ctx, tx, sessionID, repository.LockExclusive)
	if err != nil {
		return nil, err
	}
	if err = s.authorize(ctx, session.CourseID, actor); err != nil {
		return nil, err
	}
	if session.IsClosed {
		err = appErrors.Clone(appErrors.ErrInvalidState, "session already closed")
		return nil, err
	}
	if err = s.sessions.UpdateState(ctx, tx, session.ID, false, true); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to close session")
		return nil, err
	}
	finalized, err := s.records.FinalizeAbsent(ctx, tx, session.ID, session.CourseID)
	if err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to finalize absences")
		return nil, err
	}
	if err = commitTx(tx); err != nil {
		return nil, err
	}

	session.IsOpen = false
	session.IsClosed = true
	s.metrics.RecordSessionClose(finalized)
	s.cache.InvalidateCourse(ctx, session.CourseID)
	emitAudit(ctx, s.audit, s.logger, "attendance", &models.AuditLog{
		UserID:     actorID(actor),
		Action:     models.AuditActionSessionClose,
		Resource:   "class_session",
		ResourceID: stringPtr(session.ID),
		NewValues:  auditValues(map[string]interface{}{"finalized_absent": finalized}),
	})
	applog.FromContext(ctx, s.logger).Info("session closed",
		zap.String("session_id", session.ID),
		zap.Int64("finalized_absent", finalized),
	)
	return &dto.CloseSessionResult{Session: *session, Finalized: finalized}, nil
}

// RegenerateCode issues a fresh access code for a CODE session that is not closed.
func (s *AttendanceService) RegenerateCode(ctx context.Context, sessionID string, actor *models.JWTClaims) (session *models.ClassSession, err error) {
	if s.codes == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "access code generator missing")
	}
	tx, err := beginTx(ctx, s.tx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	session, err = s.lockSession(ctx, tx, sessionID, repository.LockExclusive)
	if err != nil {
		return nil, err
	}
	if err = s.authorize(ctx, session.CourseID, actor); err != nil {
		return nil, err
	}
	if session.CheckInMethod != models.CheckInCode {
		err = appErrors.Clone(appErrors.ErrInvalidState, "session does not use code check-in")
		return nil, err
	}
	if session.IsClosed {
		err = appErrors.Clone(appErrors.ErrInvalidState, "session already closed")
		return nil, err
	}
	var code string
	if code, err = newAccessCode(s.codes); err != nil {
		return nil, err
	}
	if err = s.sessions.UpdateAccessCode(ctx, tx, session.ID, code); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update access code")
		return nil, err
	}
	if err = commitTx(tx); err != nil {
		return nil, err
	}
	session.AccessCode = &code
	return session, nil
}

// OverrideStatus lets an instructor set any status regardless of session state.
func (s *AttendanceService) OverrideStatus(ctx context.Context, req dto.OverrideAttendanceRequest, actor *models.JWTClaims) (record *models.AttendanceRecord, err error) {
	req.Status = models.AttendanceStatus(strings.ToUpper(string(req.Status)))
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}

	tx, err := beginTx(ctx, s.tx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	session, err := s.lockSession(ctx, tx, req.SessionID, repository.LockShared)
	if err != nil {
		return nil, err
	}
	if err = s.authorize(ctx, session.CourseID, actor); err != nil {
		return nil, err
	}
	enrolled, err := s.enrollments.IsEnrolled(ctx, tx, session.CourseID, req.StudentID)
	if err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify enrollment")
		return nil, err
	}
	if !enrolled {
		err = appErrors.Clone(appErrors.ErrValidation, "student is not enrolled in this course")
		return nil, err
	}

	oldStatus := models.AttendanceStatusPending
	record = &models.AttendanceRecord{SessionID: session.ID, StudentID: req.StudentID}
	existing, err := s.records.FindBySessionStudent(ctx, tx, session.ID, req.StudentID)
	switch {
	case err == nil:
		oldStatus = existing.Status
		record.ID = existing.ID
		record.CreatedAt = existing.CreatedAt
		record.CheckedAt = existing.CheckedAt
	case errors.Is(err, sql.ErrNoRows):
		err = nil
	default:
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance")
		return nil, err
	}

	record.Status = req.Status
	switch req.Status {
	case models.AttendanceStatusPresent, models.AttendanceStatusLate:
		if record.CheckedAt == nil {
			now := s.now()
			record.CheckedAt = &now
		}
	default:
		record.CheckedAt = nil
	}
	if err = s.records.Upsert(ctx, tx, record); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to override attendance")
		return nil, err
	}
	if err = commitTx(tx); err != nil {
		return nil, err
	}

	s.cache.InvalidateCourse(ctx, session.CourseID)
	emitAudit(ctx, s.audit, s.logger, "attendance", &models.AuditLog{
		UserID:     actorID(actor),
		Action:     models.AuditActionAttendanceOverride,
		Resource:   "attendance_record",
		ResourceID: stringPtr(record.ID),
		OldValues:  auditValues(map[string]string{"status": string(oldStatus)}),
		NewValues:  auditValues(map[string]string{"status": string(record.Status)}),
	})
	return record, nil
}

// SessionAttendance returns the roster of a session; students without a row read as PENDING.
func (s *AttendanceService) SessionAttendance(ctx context.Context, sessionID string, actor *models.JWTClaims) (*dto.SessionAttendanceResponse, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, sessionLookupError(err)
	}
	if err := s.authorize(ctx, session.CourseID, actor); err != nil {
		return nil, err
	}
	roster, err := s.records.Roster(ctx, session.ID, session.CourseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}
	return &dto.SessionAttendanceResponse{Session: *session, State: session.State(), Roster: roster}, nil
}

func (s *AttendanceService) lockSession(ctx context.Context, tx sqlx.ExtContext, sessionID string, mode repository.LockMode) (*models.ClassSession, error) {
	session, err := s.sessions.FindForUpdate(ctx, tx, sessionID, mode)
	if err != nil {
		return nil, sessionLookupError(err)
	}
	return session, nil
}

func (s *AttendanceService) authorize(ctx context.Context, courseID string, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if !actor.Role.IsStaff() {
		return appErrors.ErrForbidden
	}
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return authorizeInstructor(course, actor)
}

func sessionLookupError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, "session not found")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
}
