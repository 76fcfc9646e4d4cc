package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-attendance-api/internal/dto"
	"github.com/noah-isme/sma-attendance-api/internal/models"
	"github.com/noah-isme/sma-attendance-api/pkg/response"
)

type attendanceReporter interface {
	CourseReport(ctx context.Context, courseID string, actor *models.JWTClaims) (*models.CourseAttendanceReport, error)
	StudentReport(ctx context.Context, courseID, studentID string, actor *models.JWTClaims) (*models.StudentAttendanceSummary, error)
	ExportCourseReport(ctx context.Context, courseID string, format dto.ReportFormat, actor *models.JWTClaims) (*dto.ExportedReport, error)
	Policy(ctx context.Context, courseID string, actor *models.JWTClaims) (*models.AttendancePolicy, error)
	UpdatePolicy(ctx context.Context, courseID string, req dto.UpdatePolicyRequest, actor *models.JWTClaims) (*models.AttendancePolicy, error)
}

// ReportHandler exposes attendance reports and course policy.
type ReportHandler struct {
	reports attendanceReporter
}

// NewReportHandler constructs handler.
func NewReportHandler(reports attendanceReporter) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// CourseReport godoc
// @Summary Course attendance report
// @Tags Reports
// @Produce json
// @Param courseId path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{courseId}/report [get]
func (h *ReportHandler) CourseReport(c *gin.Context) {
	report, err := h.reports.CourseReport(c.Request.Context(), c.Param("courseId"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// StudentReport godoc
// @Summary One student's attendance standing
// @Tags Reports
// @Produce json
// @Param courseId path string true "Course ID"
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{courseId}/students/{studentId}/report [get]
func (h *ReportHandler) StudentReport(c *gin.Context) {
	summary, err := h.reports.StudentReport(c.Request.Context(), c.Param("courseId"), c.Param("studentId"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Export godoc
// @Summary Download the course report
// @Tags Reports
// @Produce text/csv
// @Produce application/pdf
// @Param courseId path string true "Course ID"
// @Param format query string false "csv (default) or pdf"
// @Success 200 {file} file
// @Router /courses/{courseId}/report/export [get]
func (h *ReportHandler) Export(c *gin.Context) {
	file, err := h.reports.ExportCourseReport(c.Request.Context(), c.Param("courseId"), dto.ReportFormat(c.Query("format")), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, file.Filename, file.ContentType, file.Content)
}

// Policy godoc
// @Summary Effective attendance policy
// @Tags Reports
// @Produce json
// @Param courseId path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{courseId}/policy [get]
func (h *ReportHandler) Policy(c *gin.Context) {
	policy, err := h.reports.Policy(c.Request.Context(), c.Param("courseId"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, policy, nil)
}

// UpdatePolicy godoc
// @Summary Replace the attendance policy
// @Tags Reports
// @Accept json
// @Produce json
// @Param courseId path string true "Course ID"
// @Param payload body dto.UpdatePolicyRequest true "Policy"
// @Success 200 {object} response.Envelope
// @Router /courses/{courseId}/policy [put]
func (h *ReportHandler) UpdatePolicy(c *gin.Context) {
	var req dto.UpdatePolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid policy payload"))
		return
	}
	policy, err := h.reports.UpdatePolicy(c.Request.Context(), c.Param("courseId"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, policy, nil)
}
