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
	"github.com/noah-isme/sma-attendance-api/pkg/database"
	appErrors "github.com/noah-isme/sma-attendance-api/pkg/errors"
	"github.com/noah-isme/sma-attendance-api/pkg/holiday"
	applog "github.com/noah-isme/sma-attendance-api/pkg/logger"
	"github.com/noah-isme/sma-attendance-api/pkg/recurrence"
)

const dateLayout = "2006-01-02"

type courseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	FindSemester(ctx context.Context, semesterID string) (*models.Semester, error)
	LockForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) error
}

type sessionWriter interface {
	ListByCourse(ctx context.Context, exec sqlx.ExtContext, courseID string) ([]models.ClassSession, error)
	BulkCreate(ctx context.Context, exec sqlx.ExtContext, sessions []models.ClassSession) error
}

// SessionGeneratorConfig tunes generation.
type SessionGeneratorConfig struct {
	Location *time.Location
}

// SessionGeneratorService expands recurrence rules into persisted class sessions.
type SessionGeneratorService struct {
	courses   courseReader
	sessions  sessionWriter
	calendar  holiday.Calendar
	codes     accessCodeGenerator
	tx        txProvider
	audit     auditLogger
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	location  *time.Location
}

// NewSessionGeneratorService wires generator dependencies.
func NewSessionGeneratorService(
	courses courseReader,
	sessions sessionWriter,
	calendar holiday.Calendar,
	codes accessCodeGenerator,
	tx txProvider,
	audit auditLogger,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg SessionGeneratorConfig,
) *SessionGeneratorService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &SessionGeneratorService{
		courses:   courses,
		sessions:  sessions,
		calendar:  calendar,
		codes:     codes,
		tx:        tx,
		audit:     audit,
		metrics:   metrics,
		validator: newAttendanceValidator(validate),
		logger:    logger,
		location:  cfg.Location,
	}
}

// Preview materializes a rule and reports how many candidates would be skipped, without writing.
func (s *SessionGeneratorService) Preview(ctx context.Context, courseID string, req dto.GenerateSessionsRequest, actor *models.JWTClaims) (*dto.GenerateSessionsResult, error) {
	candidates, _, err := s.materialize(ctx, courseID, req, actor)
	if err != nil {
		return nil, err
	}
	existing, err := s.sessions.ListByCourse(ctx, nil, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load existing sessions")
	}
	toCreate, skipped := FilterNewSessions(candidates, existing)
	return &dto.GenerateSessionsResult{
		Preview:    true,
		Total:      len(candidates),
		Skipped:    skipped,
		Candidates: toCreate,
	}, nil
}

// Generate materializes a rule and persists every candidate whose day is still free.
// The batch is written in one transaction; either all new sessions land or none do.
func (s *SessionGeneratorService) Generate(ctx context.Context, courseID string, req dto.GenerateSessionsRequest, actor *models.JWTClaims) (result *dto.GenerateSessionsResult, err error) {
	candidates, course, err := s.materialize(ctx, courseID, req, actor)
	if err != nil {
		return nil, err
	}
	result = &dto.GenerateSessionsResult{Total: len(candidates), Created: []models.ClassSession{}}
	if len(candidates) == 0 {
		return result, appErrors.Clone(appErrors.ErrNoSessionsGenerated, "rule produced no session dates")
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

	if err = s.courses.LockForUpdate(ctx, tx, course.ID); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock course")
		return nil, err
	}
	existing, err := s.sessions.ListByCourse(ctx, tx, course.ID)
	if err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load existing sessions")
		return nil, err
	}

	toCreate, skipped := FilterNewSessions(candidates, existing)
	result.Skipped = skipped
	if len(toCreate) == 0 {
		err = appErrors.Clone(appErrors.ErrSessionConflict, "all generated sessions already exist")
		return result, err
	}

	rows := make([]models.ClassSession, 0, len(toCreate))
	for _, candidate := range toCreate {
		rows = append(rows, toClassSession(course.ID, candidate))
	}
	if err = s.sessions.BulkCreate(ctx, tx, rows); err != nil {
		if database.IsUniqueViolation(err) {
			err = appErrors.Wrap(err, appErrors.ErrSessionConflict.Code, appErrors.ErrSessionConflict.Status, "a session already exists on one of the dates")
			return result, err
		}
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create sessions")
		return nil, err
	}
	if err = commitTx(tx); err != nil {
		return nil, err
	}

	result.Created = rows
	s.metrics.RecordGeneration(len(rows), skipped)
	emitAudit(ctx, s.audit, s.logger, "session-generator", &models.AuditLog{
		UserID:     actorID(actor),
		Action:     models.AuditActionSessionsGenerate,
		Resource:   "course",
		ResourceID: stringPtr(course.ID),
		NewValues:  auditValues(map[string]int{"created": len(rows), "skipped": skipped}),
	})
	applog.FromContext(ctx, s.logger).Info("sessions generated",
		zap.String("course_id", course.ID),
		zap.Int("created", len(rows)),
		zap.Int("skipped", skipped),
	)
	return result, nil
}

// CreateSingle schedules one session on an explicit date inside the semester.
func (s *SessionGeneratorService) CreateSingle(ctx context.Context, courseID string, req dto.CreateSessionRequest, actor *models.JWTClaims) (session *models.ClassSession, err error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}
	course, semester, err := s.loadCourse(ctx, courseID, actor)
	if err != nil {
		return nil, err
	}
	date, err := time.ParseInLocation(dateLayout, req.Date, s.location)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "date must be YYYY-MM-DD")
	}
	startClock, endClock, err := parseClockRange(req.StartTime, req.EndTime)
	if err != nil {
		return nil, err
	}
	semStart := recurrence.DateOnly(*semester.StartDate, s.location)
	window := recurrence.Window{Start: semStart, End: recurrence.DateOnly(*semester.EndDate, s.location)}
	if !window.Contains(date) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date is outside the semester")
	}

	method := models.CheckInMethod(strings.ToUpper(req.CheckInMethod))
	candidate := models.GeneratedSession{
		Date:          date,
		StartAt:       startClock.On(date, s.location),
		EndAt:         endClock.On(date, s.location),
		Room:          req.Room,
		CheckInMethod: method,
		IsMakeUp:      req.IsMakeUp,
	}
	if method == models.CheckInCode && s.codes != nil {
		code, codeErr := newAccessCode(s.codes)
		if codeErr != nil {
			return nil, codeErr
		}
		candidate.AccessCode = &code
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

	if err = s.courses.LockForUpdate(ctx, tx, course.ID); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock course")
		return nil, err
	}
	existing, err := s.sessions.ListByCourse(ctx, tx, course.ID)
	if err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load existing sessions")
		return nil, err
	}
	candidate.WeekNumber = weekForDate(date, semStart, existing)
	if toCreate, _ := FilterNewSessions([]models.GeneratedSession{candidate}, existing); len(toCreate) == 0 {
		err = appErrors.Clone(appErrors.ErrSessionConflict, "a session already exists on "+req.Date)
		return nil, err
	}

	rows := []models.ClassSession{toClassSession(course.ID, candidate)}
	if err = s.sessions.BulkCreate(ctx, tx, rows); err != nil {
		if database.IsUniqueViolation(err) {
			err = appErrors.Wrap(err, appErrors.ErrSessionConflict.Code, appErrors.ErrSessionConflict.Status, "a session already exists on "+req.Date)
			return nil, err
		}
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create session")
		return nil, err
	}
	if err = commitTx(tx); err != nil {
		return nil, err
	}
	s.metrics.RecordGeneration(1, 0)
	return &rows[0], nil
}

// List returns a course's sessions. Students never see access codes.
func (s *SessionGeneratorService) List(ctx context.Context, courseID string, actor *models.JWTClaims) ([]models.ClassSession, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if _, err := s.findCourse(ctx, courseID); err != nil {
		return nil, err
	}
	sessions, err := s.sessions.ListByCourse(ctx, nil, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	if !actor.Role.IsStaff() {
		for i := range sessions {
			sessions[i] = sessions[i].WithoutCode()
		}
	}
	return sessions, nil
}

func (s *SessionGeneratorService) materialize(ctx context.Context, courseID string, req dto.GenerateSessionsRequest, actor *models.JWTClaims) ([]models.GeneratedSession, *models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, validationError(err)
	}
	rule, err := s.parseRule(req)
	if err != nil {
		return nil, nil, err
	}
	course, semester, err := s.loadCourse(ctx, courseID, actor)
	if err != nil {
		return nil, nil, err
	}
	candidates, err := MaterializeSessions(rule, *semester.StartDate, *semester.EndDate, MaterializeOptions{
		Calendar: s.calendar,
		Codes:    s.codes,
		Location: s.location,
	})
	if err != nil {
		return nil, nil, err
	}
	return candidates, course, nil
}

func (s *SessionGeneratorService) loadCourse(ctx context.Context, courseID string, actor *models.JWTClaims) (*models.Course, *models.Semester, error) {
	course, err := s.findCourse(ctx, courseID)
	if err != nil {
		return nil, nil, err
	}
	if err := authorizeInstructor(course, actor); err != nil {
		return nil, nil, err
	}
	semester, err := s.courses.FindSemester(ctx, course.SemesterID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "semester not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load semester")
	}
	if !semester.Bounded() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "semester has no start or end date")
	}
	return course, semester, nil
}

func (s *SessionGeneratorService) findCourse(ctx context.Context, courseID string) (*models.Course, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

func (s *SessionGeneratorService) parseRule(req dto.GenerateSessionsRequest) (models.RecurrenceRule, error) {
	start, err := time.ParseInLocation(dateLayout, req.StartDate, s.location)
	if err != nil {
		return models.RecurrenceRule{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "startDate must be YYYY-MM-DD")
	}
	end, err := time.ParseInLocation(dateLayout, req.EndDate, s.location)
	if err != nil {
		return models.RecurrenceRule{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "endDate must be YYYY-MM-DD")
	}
	days := make([]time.Weekday, 0, len(req.DaysOfWeek))
	for _, d := range req.DaysOfWeek {
		days = append(days, time.Weekday(d))
	}
	makeUps := make([]time.Time, 0, len(req.MakeUpDates))
	for _, raw := range req.MakeUpDates {
		date, err := time.ParseInLocation(dateLayout, raw, s.location)
		if err != nil {
			return models.RecurrenceRule{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "makeUpDates must be YYYY-MM-DD")
		}
		makeUps = append(makeUps, date)
	}
	excludeHolidays := true
	if req.ExcludeHolidays != nil {
		excludeHolidays = *req.ExcludeHolidays
	}
	return models.RecurrenceRule{
		DaysOfWeek:      days,
		StartDate:       start,
		EndDate:         end,
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
		ExcludeHolidays: excludeHolidays,
		Room:            req.Room,
		CheckInMethod:   models.CheckInMethod(strings.ToUpper(req.CheckInMethod)),
		MakeUpDates:     makeUps,
	}, nil
}

// toClassSession stores the local calendar day as a UTC midnight date.
func toClassSession(courseID string, g models.GeneratedSession) models.ClassSession {
	y, m, d := g.Date.Date()
	return models.ClassSession{
		CourseID:      courseID,
		Week:          g.WeekNumber,
		SessionDate:   time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
		StartAt:       g.StartAt.UTC(),
		EndAt:         g.EndAt.UTC(),
		Room:          g.Room,
		CheckInMethod: g.CheckInMethod,
		AccessCode:    g.AccessCode,
		IsMakeUp:      g.IsMakeUp,
	}
}
