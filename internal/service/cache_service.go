package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-attendance-api/internal/models"
	appErrors "github.com/noah-isme/sma-attendance-api/pkg/errors"
)

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CacheService caches derived attendance reports. Every key of a course
// shares the course prefix so one pattern delete invalidates all of them.
// Backend failures degrade to misses.
type CacheService struct {
	repo    CacheRepository
	metrics *MetricsService
	ttl     time.Duration
	logger  *zap.Logger
	enabled bool
}

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheRepository, metrics *MetricsService, ttl time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, ttl: ttl, logger: logger, enabled: enabled}
}

// CourseReportKey is the cache key of a course attendance report.
func CourseReportKey(courseID string) string {
	return "report:course:" + courseID
}

// StudentSummaryKey is the cache key of one student's summary within a course.
func StudentSummaryKey(courseID, studentID string) string {
	return CourseReportKey(courseID) + ":student:" + studentID
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// CourseReport returns the cached report of a course, if any.
func (s *CacheService) CourseReport(ctx context.Context, courseID string) (*models.CourseAttendanceReport, bool) {
	var report models.CourseAttendanceReport
	if !s.load(ctx, CourseReportKey(courseID), &report) {
		return nil, false
	}
	return &report, true
}

// StoreCourseReport caches a freshly built course report.
func (s *CacheService) StoreCourseReport(ctx context.Context, report *models.CourseAttendanceReport) {
	if report == nil {
		return
	}
	s.store(ctx, CourseReportKey(report.CourseID), report)
}

// StudentSummary returns a cached student summary, if any.
func (s *CacheService) StudentSummary(ctx context.Context, courseID, studentID string) (*models.StudentAttendanceSummary, bool) {
	var summary models.StudentAttendanceSummary
	if !s.load(ctx, StudentSummaryKey(courseID, studentID), &summary) {
		return nil, false
	}
	return &summary, true
}

// StoreStudentSummary caches one student's summary.
func (s *CacheService) StoreStudentSummary(ctx context.Context, courseID string, summary *models.StudentAttendanceSummary) {
	if summary == nil {
		return
	}
	s.store(ctx, StudentSummaryKey(courseID, summary.StudentID), summary)
}

// InvalidateCourse drops every cached report derived from a course.
func (s *CacheService) InvalidateCourse(ctx context.Context, courseID string) {
	if !s.Enabled() {
		return
	}
	pattern := CourseReportKey(courseID) + "*"
	if err := s.repo.DeleteByPattern(ctx, pattern); err != nil {
		s.logger.Warn("cache invalidate failed", zap.String("pattern", pattern), zap.Error(err))
	}
}

func (s *CacheService) load(ctx context.Context, key string, dest interface{}) bool {
	if !s.Enabled() {
		return false
	}
	start := time.Now()
	err := s.repo.Get(ctx, key, dest)
	s.metrics.RecordCacheOperation(err == nil, time.Since(start))
	if err != nil && !errors.Is(err, appErrors.ErrCacheMiss) {
		s.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
	}
	return err == nil
}

func (s *CacheService) store(ctx context.Context, key string, value interface{}) {
	if !s.Enabled() {
		return
	}
	start := time.Now()
	err := s.repo.Set(ctx, key, value, s.ttl)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}
