package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-attendance-api/internal/dto"
	"github.com/noah-isme/sma-attendance-api/internal/models"
	"github.com/noah-isme/sma-attendance-api/pkg/response"
)

type sessionGenerator interface {
	Preview(ctx context.Context, courseID string, req dto.GenerateSessionsRequest, actor *models.JWTClaims) (*dto.GenerateSessionsResult, error)
	Generate(ctx context.Context, courseID string, req dto.GenerateSessionsRequest, actor *models.JWTClaims) (*dto.GenerateSessionsResult, error)
	CreateSingle(ctx context.Context, courseID string, req dto.CreateSessionRequest, actor *models.JWTClaims) (*models.ClassSession, error)
	List(ctx context.Context, courseID string, actor *models.JWTClaims) ([]models.ClassSession, error)
}

// SessionHandler exposes session scheduling endpoints.
type SessionHandler struct {
	sessions sessionGenerator
}

// NewSessionHandler constructs the handler.
func NewSessionHandler(sessions sessionGenerator) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// Generate godoc
// @Summary Generate sessions from a weekly recurrence rule
// @Tags Sessions
// @Accept json
// @Produce json
// @Param courseId path string true "Course ID"
// @Param preview query bool false "Dry run without persisting"
// @Param payload body dto.GenerateSessionsRequest true "Recurrence rule"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /courses/{courseId}/sessions/generate [post]
func (h *SessionHandler) Generate(c *gin.Context) {
	var req dto.GenerateSessionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid recurrence rule payload"))
		return
	}
	courseID := c.Param("courseId")
	actor := claimsFromContext(c)

	if preview, _ := strconv.ParseBool(c.Query("preview")); preview {
		result, err := h.sessions.Preview(c.Request.Context(), courseID, req, actor)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, result, nil)
		return
	}

	result, err := h.sessions.Generate(c.Request.Context(), courseID, req, actor)
	if err != nil {
		if result != nil {
			response.ErrorWithData(c, err, result)
			return
		}
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Create godoc
// @Summary Schedule a single session
// @Tags Sessions
// @Accept json
// @Produce json
// @Param courseId path string true "Course ID"
// @Param payload body dto.CreateSessionRequest true "Session"
// @Success 201 {object} response.Envelope
// @Router /courses/{courseId}/sessions [post]
func (h *SessionHandler) Create(c *gin.Context) {
	var req dto.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid session payload"))
		return
	}
	session, err := h.sessions.CreateSingle(c.Request.Context(), c.Param("courseId"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, session)
}

// List godoc
// @Summary List course sessions
// @Tags Sessions
// @Produce json
// @Param courseId path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{courseId}/sessions [get]
func (h *SessionHandler) List(c *gin.Context) {
	sessions, err := h.sessions.List(c.Request.Context(), c.Param("courseId"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessions, nil)
}
