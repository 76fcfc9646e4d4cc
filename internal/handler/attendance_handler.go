package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-attendance-api/internal/dto"
	"github.com/noah-isme/sma-attendance-api/internal/models"
	appErrors "github.com/noah-isme/sma-attendance-api/pkg/errors"
	"github.com/noah-isme/sma-attendance-api/pkg/response"
)

type attendanceManager interface {
	OpenSession(ctx context.Context, sessionID string, actor *models.JWTClaims) (*models.ClassSession, error)
	CloseSession(ctx context.Context, sessionID string, actor *models.JWTClaims) (*dto.CloseSessionResult, error)
	RegenerateCode(ctx context.Context, sessionID string, actor *models.JWTClaims) (*models.ClassSession, error)
	CheckIn(ctx context.Context, req dto.CheckInRequest) (*models.AttendanceRecord, error)
	OverrideStatus(ctx context.Context, req dto.OverrideAttendanceRequest, actor *models.JWTClaims) (*models.AttendanceRecord, error)
	SessionAttendance(ctx context.Context, sessionID string, actor *models.JWTClaims) (*dto.SessionAttendanceResponse, error)
}

// AttendanceHandler drives the session lifecycle and check-ins.
type AttendanceHandler struct {
	attendance attendanceManager
}

// NewAttendanceHandler constructs the handler.
func NewAttendanceHandler(attendance attendanceManager) *AttendanceHandler {
	return &AttendanceHandler{attendance: attendance}
}

// Open godoc
// @Summary Open a session for check-in
// @Tags Attendance
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions/{id}/open [post]
func (h *AttendanceHandler) Open(c *gin.Context) {
	session, err := h.attendance.OpenSession(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// Close godoc
// @Summary Close a session and finalize absences
// @Tags Attendance
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions/{id}/close [post]
func (h *AttendanceHandler) Close(c *gin.Context) {
	result, err := h.attendance.CloseSession(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// RegenerateCode godoc
// @Summary Issue a new access code
// @Tags Attendance
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/code [post]
func (h *AttendanceHandler) RegenerateCode(c *gin.Context) {
	session, err := h.attendance.RegenerateCode(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// CheckIn godoc
// @Summary Check in to an open session
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.CheckInRequest false "Access code for CODE sessions"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions/{id}/check-in [post]
func (h *AttendanceHandler) CheckIn(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CheckInRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, invalidPayload(err, "invalid check-in payload"))
		return
	}
	req.SessionID = c.Param("id")
	req.StudentID = claims.UserID

	record, err := h.attendance.CheckIn(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Roster godoc
// @Summary Session roster with attendance statuses
// @Tags Attendance
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/attendance [get]
func (h *AttendanceHandler) Roster(c *gin.Context) {
	roster, err := h.attendance.SessionAttendance(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, roster, nil)
}

// Override godoc
// @Summary Set a student's attendance status
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param studentId path string true "Student ID"
// @Param payload body dto.OverrideAttendanceRequest true "Status"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/attendance/{studentId} [put]
func (h *AttendanceHandler) Override(c *gin.Context) {
	var req dto.OverrideAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid attendance payload"))
		return
	}
	req.SessionID = c.Param("id")
	req.StudentID = c.Param("studentId")

	record, err := h.attendance.OverrideStatus(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}
