package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/sma-attendance-api/internal/dto"
	"github.com/noah-isme/sma-attendance-api/internal/models"
	appErrors "github.com/noah-isme/sma-attendance-api/pkg/errors"
	"github.com/noah-isme/sma-attendance-api/pkg/export"
	applog "github.com/noah-isme/sma-attendance-api/pkg/logger"
)

type reportCourseStore interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	FindPolicy(ctx context.Context, courseID string) (*models.AttendancePolicy, error)
	UpsertPolicy(ctx context.Context, policy *models.AttendancePolicy) error
}

type attendanceTallyStore interface {
	TallyByCourse(ctx context.Context, courseID string) ([]models.AttendanceTally, error)
	TallyByStudent(ctx context.Context, courseID, studentID string) (*models.AttendanceTally, error)
}

type heldSessionCounter interface {
	CountHeld(ctx context.Context, courseID string) (int, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	RenderWithOptions(data export.Dataset, title string, opts export.PDFOptions) ([]byte, error)
}

// ReportService derives per-student attendance standing from recorded statuses.
type ReportService struct {
	courses   reportCourseStore
	tallies   attendanceTallyStore
	sessions  heldSessionCounter
	cache     *CacheService
	audit     auditLogger
	csv       csvRenderer
	pdf       pdfRenderer
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewReportService constructs the report service. Nil renderers default to pkg/export.
func NewReportService(
	courses reportCourseStore,
	tallies attendanceTallyStore,
	sessions heldSessionCounter,
	cache *CacheService,
	audit auditLogger,
	csv csvRenderer,
	pdf pdfRenderer,
	validate *validator.Validate,
	logger *zap.Logger,
) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter().WithBOM()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ReportService{
		courses:   courses,
		tallies:   tallies,
		sessions:  sessions,
		cache:     cache,
		audit:     audit,
		csv:       csv,
		pdf:       pdf,
		validator: newAttendanceValidator(validate),
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// EffectiveAbsences counts absences after converting every lateToAbsent lates
// into one absence. Stored LATE rows are never rewritten.
func EffectiveAbsences(absent, late, lateToAbsent int) int {
	if lateToAbsent <= 0 {
		lateToAbsent = models.DefaultLateToAbsent
	}
	return absent + late/lateToAbsent
}

// ClassifyRisk grades effective absences against the course limit.
func ClassifyRisk(effectiveAbsent int, policy models.AttendancePolicy) models.RiskLevel {
	policy = policy.Normalized()
	switch {
	case effectiveAbsent >= policy.MaxAbsent:
		return models.RiskDanger
	case effectiveAbsent > 0 && effectiveAbsent*2 >= policy.MaxAbsent:
		return models.RiskWarning
	default:
		return models.RiskNormal
	}
}

// AttendanceRate is the share of decided sessions attended, in percent.
// Students with nothing decided yet score 100.
func AttendanceRate(t models.AttendanceTally) float64 {
	decided := t.Present + t.Late + t.Absent + t.Excused
	if decided == 0 {
		return 100
	}
	rate := float64(t.Present+t.Late+t.Excused) / float64(decided) * 100
	return math.Round(rate*100) / 100
}

// Summarize applies the policy to one tally.
func Summarize(t models.AttendanceTally, policy models.AttendancePolicy) models.StudentAttendanceSummary {
	policy = policy.Normalized()
	effective := EffectiveAbsences(t.Absent, t.Late, policy.LateToAbsent)
	return models.StudentAttendanceSummary{
		AttendanceTally: t,
		EffectiveAbsent: effective,
		AttendanceRate:  AttendanceRate(t),
		Risk:            ClassifyRisk(effective, policy),
	}
}

// CourseReport summarizes every enrolled student of a course.
func (s *ReportService) CourseReport(ctx context.Context, courseID string, actor *models.JWTClaims) (*models.CourseAttendanceReport, error) {
	course, err := s.course(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if err := authorizeInstructor(course, actor); err != nil {
		return nil, err
	}
	return s.buildCourseReport(ctx, course)
}

// StudentReport summarizes one student. Students may only read their own.
func (s *ReportService) StudentReport(ctx context.Context, courseID, studentID string, actor *models.JWTClaims) (*models.StudentAttendanceSummary, error) {
	course, err := s.course(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role == models.RoleStudent {
		if actor.UserID != studentID {
			return nil, appErrors.ErrForbidden
		}
	} else if err := authorizeInstructor(course, actor); err != nil {
		return nil, err
	}
	if cached, ok := s.cache.StudentSummary(ctx, courseID, studentID); ok {
		return cached, nil
	}

	var (
		policy models.AttendancePolicy
		tally  *models.AttendanceTally
	)
	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		policy, err = s.policy(gctx, courseID)
		return err
	})
	group.Go(func() error {
		var err error
		tally, err = s.tallies.TallyByStudent(gctx, courseID, studentID)
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student is not enrolled in this course")
		}
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to tally attendance")
		}
		return nil
	})
	if err := group.Wait(); err != nil {
		return nil, err
	}
	summary := Summarize(*tally, policy)
	s.cache.StoreStudentSummary(ctx, courseID, &summary)
	return &summary, nil
}

// ExportCourseReport renders the course report as CSV or PDF.
func (s *ReportService) ExportCourseReport(ctx context.Context, courseID string, format dto.ReportFormat, actor *models.JWTClaims) (*dto.ExportedReport, error) {
	format = dto.ReportFormat(strings.ToLower(string(format)))
	if format == "" {
		format = dto.ReportFormatCSV
	}
	if format != dto.ReportFormatCSV && format != dto.ReportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	report, err := s.CourseReport(ctx, courseID, actor)
	if err != nil {
		return nil, err
	}

	dataset := reportDataset(report)
	filename := fmt.Sprintf("attendance_%s_%s.%s", sanitizeFilename(report.CourseName, report.CourseID), report.GeneratedAt.Format("20060102"), format)
	var (
		content     []byte
		contentType string
	)
	switch format {
	case dto.ReportFormatPDF:
		content, err = s.pdf.RenderWithOptions(dataset, report.CourseName+" attendance", export.PDFOptions{
			Subtitle: []string{
				fmt.Sprintf("Sessions held: %d", report.Sessions),
				fmt.Sprintf("Max absences: %d, lates per absence: %d", report.Policy.MaxAbsent, report.Policy.LateToAbsent),
			},
			Landscape: true,
			Weights:   map[string]float64{"Student ID": 1.4, "Name": 2},
			RowFill:   riskFill,
			Footer:    "Generated " + report.GeneratedAt.Format(time.RFC3339),
		})
		contentType = "application/pdf"
	default:
		content, err = s.csv.Render(dataset)
		contentType = "text/csv; charset=utf-8"
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render report")
	}
	return &dto.ExportedReport{Filename: filename, ContentType: contentType, Content: content}, nil
}

// Policy returns the effective policy of a course.
func (s *ReportService) Policy(ctx context.Context, courseID string, actor *models.JWTClaims) (*models.AttendancePolicy, error) {
	course, err := s.course(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role.IsStaff() {
		if err := authorizeInstructor(course, actor); err != nil {
			return nil, err
		}
	}
	policy, err := s.policy(ctx, courseID)
	if err != nil {
		return nil, err
	}
	return &policy, nil
}

// UpdatePolicy replaces the course policy and drops cached reports.
func (s *ReportService) UpdatePolicy(ctx context.Context, courseID string, req dto.UpdatePolicyRequest, actor *models.JWTClaims) (*models.AttendancePolicy, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}
	course, err := s.course(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if err := authorizeInstructor(course, actor); err != nil {
		return nil, err
	}
	previous, err := s.policy(ctx, courseID)
	if err != nil {
		return nil, err
	}
	policy := &models.AttendancePolicy{CourseID: courseID, MaxAbsent: req.MaxAbsent, LateToAbsent: req.LateToAbsent}
	if err := s.courses.UpsertPolicy(ctx, policy); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save policy")
	}
	s.cache.InvalidateCourse(ctx, courseID)
	emitAudit(ctx, s.audit, s.logger, "report", &models.AuditLog{
		UserID:     actorID(actor),
		Action:     models.AuditActionPolicyUpdate,
		Resource:   "attendance_policy",
		ResourceID: stringPtr(courseID),
		OldValues:  auditValues(previous),
		NewValues:  auditValues(policy),
	})
	applog.FromContext(ctx, s.logger).Info("attendance policy updated",
		zap.String("course_id", courseID),
		zap.Int("max_absent", policy.MaxAbsent),
		zap.Int("late_to_absent", policy.LateToAbsent),
	)
	return policy, nil
}

func (s *ReportService) buildCourseReport(ctx context.Context, course *models.Course) (*models.CourseAttendanceReport, error) {
	if cached, ok := s.cache.CourseReport(ctx, course.ID); ok {
		return cached, nil
	}

	var (
		policy  models.AttendancePolicy
		tallies []models.AttendanceTally
		held    int
	)
	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		policy, err = s.policy(gctx, course.ID)
		return err
	})
	group.Go(func() error {
		var err error
		tallies, err = s.tallies.TallyByCourse(gctx, course.ID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to tally attendance")
		}
		return nil
	})
	group.Go(func() error {
		var err error
		held, err = s.sessions.CountHeld(gctx, course.ID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count sessions")
		}
		return nil
	})
	if err := group.Wait(); err != nil {
		return nil, err
	}

	report := &models.CourseAttendanceReport{
		CourseID:    course.ID,
		CourseName:  course.Name,
		Policy:      policy,
		Sessions:    held,
		Students:    make([]models.StudentAttendanceSummary, 0, len(tallies)),
		GeneratedAt: s.now(),
	}
	for _, tally := range tallies {
		report.Students = append(report.Students, Summarize(tally, policy))
	}
	s.cache.StoreCourseReport(ctx, report)
	return report, nil
}

func (s *ReportService) course(ctx context.Context, courseID string) (*models.Course, error) {
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

func (s *ReportService) policy(ctx context.Context, courseID string) (models.AttendancePolicy, error) {
	policy, err := s.courses.FindPolicy(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.DefaultPolicy(courseID), nil
		}
		return models.AttendancePolicy{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load policy")
	}
	return policy.Normalized(), nil
}

var reportHeaders = []string{"Student ID", "Name", "Present", "Late", "Absent", "Excused", "Pending", "Effective Absent", "Rate (%)", "Risk"}

func reportDataset(report *models.CourseAttendanceReport) export.Dataset {
	rows := make([]map[string]string, 0, len(report.Students))
	for _, student := range report.Students {
		rows = append(rows, map[string]string{
			"Student ID":       student.StudentID,
			"Name":             student.StudentName,
			"Present":          strconv.Itoa(student.Present),
			"Late":             strconv.Itoa(student.Late),
			"Absent":           strconv.Itoa(student.Absent),
			"Excused":          strconv.Itoa(student.Excused),
			"Pending":          strconv.Itoa(student.Pending),
			"Effective Absent": strconv.Itoa(student.EffectiveAbsent),
			"Rate (%)":         strconv.FormatFloat(student.AttendanceRate, 'f', 2, 64),
			"Risk":             string(student.Risk),
		})
	}
	return export.Dataset{Headers: reportHeaders, Rows: rows}
}

var (
	dangerFill  = export.RGB{R: 248, G: 203, B: 203}
	warningFill = export.RGB{R: 255, G: 236, B: 179}
)

func riskFill(row map[string]string) (export.RGB, bool) {
	switch models.RiskLevel(row["Risk"]) {
	case models.RiskDanger:
		return dangerFill, true
	case models.RiskWarning:
		return warningFill, true
	default:
		return export.RGB{}, false
	}
}

func sanitizeFilename(raw, fallback string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(raw)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_':
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return fallback
	}
	return b.String()
}
