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
	"github.com/noah-isme/sma-attendance-api/pkg/database"
	appErrors "github.com/noah-isme/sma-attendance-api/pkg/errors"
	applog "github.com/noah-isme/sma-attendance-api/pkg/logger"
)

type correctionStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, request *models.CorrectionRequest) error
	GetByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.CorrectionRequest, error)
	HasPending(ctx context.Context, exec sqlx.ExtContext, kind models.CorrectionKind, attendanceID string) (bool, error)
	List(ctx context.Context, filter models.CorrectionFilter) ([]models.CorrectionRequest, int, error)
	Decide(ctx context.Context, exec sqlx.ExtContext, params repository.DecideCorrectionParams) error
}

type correctionAttendanceStore interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string, forUpdate bool) (*models.AttendanceRecord, error)
	EnsurePending(ctx context.Context, exec sqlx.ExtContext, sessionID, studentID string) (*models.AttendanceRecord, error)
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.AttendanceStatus) error
}

type sessionFinder interface {
	FindByID(ctx context.Context, id string) (*models.ClassSession, error)
}

type notifier interface {
	Notify(ctx context.Context, notification models.Notification)
}

// CorrectionService runs the excuse and appeal review workflow.
type CorrectionService struct {
	corrections correctionStore
	records     correctionAttendanceStore
	sessions    sessionFinder
	enrollments enrollmentChecker
	courses     courseFinder
	notifier    notifier
	tx          txProvider
	audit       auditLogger
	cache       *CacheService
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewCorrectionService wires correction dependencies.
func NewCorrectionService(
	corrections correctionStore,
	records correctionAttendanceStore,
	sessions sessionFinder,
	enrollments enrollmentChecker,
	courses courseFinder,
	notify notifier,
	tx txProvider,
	audit auditLogger,
	cache *CacheService,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
) *CorrectionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CorrectionService{
		corrections: corrections,
		records:     records,
		sessions:    sessions,
		enrollments: enrollments,
		courses:     courses,
		notifier:    notify,
		tx:          tx,
		audit:       audit,
		cache:       cache,
		metrics:     metrics,
		validator:   newAttendanceValidator(validate),
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Create files an excuse or appeal on the requestor's own attendance record.
// When only a session is given, a PENDING record is created for the requestor first.
func (s *CorrectionService) Create(ctx context.Context, kind models.CorrectionKind, req dto.CreateCorrectionRequest, actor *models.JWTClaims) (request *models.CorrectionRequest, err error) {
	if !kind.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported correction kind")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "message is required")
	}
	if actor == nil || actor.UserID == "" {
		return nil, appErrors.ErrUnauthorized
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

	record, session, err := s.resolveRecord(ctx, tx, req, actor.UserID)
	if err != nil {
		return nil, err
	}
	if kind == models.CorrectionKindAppeal && !record.Status.Final() {
		err = appErrors.Clone(appErrors.ErrInvalidState, "attendance has no recorded status to appeal")
		return nil, err
	}

	pending, err := s.corrections.HasPending(ctx, tx, kind, record.ID)
	if err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check pending requests")
		return nil, err
	}
	if pending {
		err = appErrors.Clone(appErrors.ErrConflict, "a pending request already exists for this attendance")
		return nil, err
	}

	request = &models.CorrectionRequest{
		Kind:         kind,
		AttendanceID: record.ID,
		SessionID:    session.ID,
		CourseID:     session.CourseID,
		RequestedBy:  actor.UserID,
		Message:      message,
		Status:       models.CorrectionStatusPending,
	}
	if err = s.corrections.Create(ctx, tx, request); err != nil {
		if database.IsUniqueViolation(err) {
			err = appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "a pending request already exists for this attendance")
			return nil, err
		}
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create request")
		return nil, err
	}
	if err = commitTx(tx); err != nil {
		return nil, err
	}

	applog.FromContext(ctx, s.logger).Info("correction requested",
		zap.String("kind", string(kind)),
		zap.String("request_id", request.ID),
		zap.String("attendance_id", record.ID),
	)
	return request, nil
}

// Decide approves or rejects a pending request exactly once.
func (s *CorrectionService) Decide(ctx context.Context, kind models.CorrectionKind, requestID string, req dto.DecideCorrectionRequest, actor *models.JWTClaims) (request *models.CorrectionRequest, err error) {
	req.Decision = models.CorrectionStatus(strings.ToUpper(string(req.Decision)))
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}
	request, err = s.load(ctx, kind, requestID)
	if err != nil {
		return nil, err
	}
	if err = s.authorizeCourse(ctx, request.CourseID, actor); err != nil {
		return nil, err
	}
	comment := strings.TrimSpace(req.Comment)
	target, err := decisionTarget(kind, req, comment)
	if err != nil {
		return nil, err
	}
	if request.Status != models.CorrectionStatusPending {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "correction already processed")
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

	decidedAt := s.now()
	params := repository.DecideCorrectionParams{
		ID:        request.ID,
		Status:    req.Decision,
		DecidedBy: actor.UserID,
		DecidedAt: decidedAt,
	}
	if comment != "" {
		params.Comment = &comment
	}
	if target != nil {
		params.TargetStatus = target
	}
	if err = s.corrections.Decide(ctx, tx, params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = appErrors.Clone(appErrors.ErrInvalidState, "correction already processed")
			return nil, err
		}
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record decision")
		return nil, err
	}

	var before models.AttendanceStatus
	if target != nil {
		record, lookupErr := s.records.FindByID(ctx, tx, request.AttendanceID, true)
		if lookupErr != nil {
			err = appErrors.Wrap(lookupErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance")
			return nil, err
		}
		before = record.Status
		if err = s.records.UpdateStatus(ctx, tx, record.ID, *target); err != nil {
			err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update attendance")
			return nil, err
		}
	}
	if err = commitTx(tx); err != nil {
		return nil, err
	}

	request.Status = req.Decision
	request.TargetStatus = params.TargetStatus
	request.Comment = params.Comment
	request.DecidedBy = stringPtr(actor.UserID)
	request.DecidedAt = &decidedAt

	s.afterDecision(ctx, request, before, actor)
	return request, nil
}

// Get returns one request visible to the actor.
func (s *CorrectionService) Get(ctx context.Context, kind models.CorrectionKind, requestID string, actor *models.JWTClaims) (*models.CorrectionRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	request, err := s.load(ctx, kind, requestID)
	if err != nil {
		return nil, err
	}
	if !actor.Role.IsStaff() {
		if request.RequestedBy != actor.UserID {
			return nil, appErrors.ErrForbidden
		}
		return request, nil
	}
	if err := s.authorizeCourse(ctx, request.CourseID, actor); err != nil {
		return nil, err
	}
	return request, nil
}

// List pages through requests. Students only ever see their own.
func (s *CorrectionService) List(ctx context.Context, kind models.CorrectionKind, query dto.CorrectionQuery, actor *models.JWTClaims) ([]models.CorrectionRequest, *models.Pagination, error) {
	if actor == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	filter := models.CorrectionFilter{
		Kind:     kind,
		Status:   query.Status,
		CourseID: query.CourseID,
		Page:     query.Page,
		PageSize: query.PageSize,
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	if !actor.Role.IsStaff() {
		filter.RequestedBy = actor.UserID
	} else if filter.CourseID != "" {
		if err := s.authorizeCourse(ctx, filter.CourseID, actor); err != nil {
			return nil, nil, err
		}
	}

	requests, total, err := s.corrections.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list requests")
	}
	return requests, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

func (s *CorrectionService) resolveRecord(ctx context.Context, tx sqlx.ExtContext, req dto.CreateCorrectionRequest, studentID string) (*models.AttendanceRecord, *models.ClassSession, error) {
	if req.AttendanceID != "" {
		record, err := s.records.FindByID(ctx, tx, req.AttendanceID, true)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
			}
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance")
		}
		if record.StudentID != studentID {
			return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "attendance belongs to another student")
		}
		session, err := s.sessions.FindByID(ctx, record.SessionID)
		if err != nil {
			return nil, nil, sessionLookupError(err)
		}
		return record, session, nil
	}

	session, err := s.sessions.FindByID(ctx, req.SessionID)
	if err != nil {
		return nil, nil, sessionLookupError(err)
	}
	enrolled, err := s.enrollments.IsEnrolled(ctx, tx, session.CourseID, studentID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify enrollment")
	}
	if !enrolled {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "student is not enrolled in this course")
	}
	record, err := s.records.EnsurePending(ctx, tx, session.ID, studentID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to prepare attendance")
	}
	return record, session, nil
}

func (s *CorrectionService) load(ctx context.Context, kind models.CorrectionKind, requestID string) (*models.CorrectionRequest, error) {
	request, err := s.corrections.GetByID(ctx, nil, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	if request.Kind != kind {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
	}
	return request, nil
}

func (s *CorrectionService) authorizeCourse(ctx context.Context, courseID string, actor *models.JWTClaims) error {
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

func (s *CorrectionService) afterDecision(ctx context.Context, request *models.CorrectionRequest, before models.AttendanceStatus, actor *models.JWTClaims) {
	s.metrics.RecordCorrectionDecision(request.Kind, request.Status)

	action := models.AuditActionCorrectionReject
	if request.Status == models.CorrectionStatusApproved {
		action = models.AuditActionCorrectionApprove
		s.cache.InvalidateCourse(ctx, request.CourseID)
	}
	newValues := map[string]interface{}{"status": request.Status}
	if request.TargetStatus != nil {
		newValues["attendance_status"] = *request.TargetStatus
	}
	oldValues := map[string]interface{}{"status": models.CorrectionStatusPending}
	if before != "" {
		oldValues["attendance_status"] = before
	}
	emitAudit(ctx, s.audit, s.logger, "corrections", &models.AuditLog{
		UserID:     actorID(actor),
		Action:     action,
		Resource:   strings.ToLower(string(request.Kind)),
		ResourceID: stringPtr(request.ID),
		OldValues:  auditValues(oldValues),
		NewValues:  auditValues(newValues),
	})

	if s.notifier != nil {
		s.notifier.Notify(ctx, models.Notification{
			RecipientID: request.RequestedBy,
			Type:        models.NotificationCorrectionDecided,
			Title:       decisionTitle(request.Kind, request.Status),
			Body:        derefString(request.Comment),
			Data: auditValues(map[string]string{
				"requestId":    request.ID,
				"attendanceId": request.AttendanceID,
				"sessionId":    request.SessionID,
				"decision":     string(request.Status),
			}),
		})
	}
	applog.FromContext(ctx, s.logger).Info("correction decided",
		zap.String("request_id", request.ID),
		zap.String("kind", string(request.Kind)),
		zap.String("decision", string(request.Status)),
	)
}

// decisionTarget resolves the attendance status an approval writes, or nil for rejections.
func decisionTarget(kind models.CorrectionKind, req dto.DecideCorrectionRequest, comment string) (*models.AttendanceStatus, error) {
	if req.Decision == models.CorrectionStatusRejected {
		if comment == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "comment is required when rejecting")
		}
		return nil, nil
	}
	switch kind {
	case models.CorrectionKindExcuse:
		status := models.AttendanceStatusExcused
		return &status, nil
	case models.CorrectionKindAppeal:
		if req.TargetStatus == nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "targetStatus is required when approving an appeal")
		}
		status := models.AttendanceStatus(strings.ToUpper(string(*req.TargetStatus)))
		if !status.Final() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "targetStatus must be PRESENT, LATE, ABSENT or EXCUSED")
		}
		return &status, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported correction kind")
	}
}

func decisionTitle(kind models.CorrectionKind, status models.CorrectionStatus) string {
	noun := "Excuse"
	if kind == models.CorrectionKindAppeal {
		noun = "Appeal"
	}
	if status == models.CorrectionStatusApproved {
		return noun + " approved"
	}
	return noun + " rejected"
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
