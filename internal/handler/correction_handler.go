package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-attendance-api/internal/dto"
	"github.com/noah-isme/sma-attendance-api/internal/models"
	"github.com/noah-isme/sma-attendance-api/pkg/response"
)

type correctionWorkflow interface {
	Create(ctx context.Context, kind models.CorrectionKind, req dto.CreateCorrectionRequest, actor *models.JWTClaims) (*models.CorrectionRequest, error)
	Decide(ctx context.Context, kind models.CorrectionKind, requestID string, req dto.DecideCorrectionRequest, actor *models.JWTClaims) (*models.CorrectionRequest, error)
	Get(ctx context.Context, kind models.CorrectionKind, requestID string, actor *models.JWTClaims) (*models.CorrectionRequest, error)
	List(ctx context.Context, kind models.CorrectionKind, query dto.CorrectionQuery, actor *models.JWTClaims) ([]models.CorrectionRequest, *models.Pagination, error)
}

// CorrectionHandler serves one correction kind, mounted at /excuses or /appeals.
type CorrectionHandler struct {
	kind        models.CorrectionKind
	corrections correctionWorkflow
}

// NewCorrectionHandler constructs a handler bound to kind.
func NewCorrectionHandler(kind models.CorrectionKind, corrections correctionWorkflow) *CorrectionHandler {
	return &CorrectionHandler{kind: kind, corrections: corrections}
}

// Create godoc
// @Summary File an excuse or appeal
// @Tags Corrections
// @Accept json
// @Produce json
// @Param payload body dto.CreateCorrectionRequest true "Request"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /excuses [post]
// @Router /appeals [post]
func (h *CorrectionHandler) Create(c *gin.Context) {
	var req dto.CreateCorrectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid request payload"))
		return
	}
	request, err := h.corrections.Create(c.Request.Context(), h.kind, req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, request)
}

// List godoc
// @Summary List excuses or appeals
// @Tags Corrections
// @Produce json
// @Param status query string false "PENDING, APPROVED or REJECTED"
// @Param courseId query string false "Course ID"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /excuses [get]
// @Router /appeals [get]
func (h *CorrectionHandler) List(c *gin.Context) {
	query := dto.CorrectionQuery{
		CourseID: c.Query("courseId"),
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "pageSize", 20),
	}
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		status := models.CorrectionStatus(strings.ToUpper(raw))
		query.Status = &status
	}
	requests, pagination, err := h.corrections.List(c.Request.Context(), h.kind, query, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, pagination)
}

// Get godoc
// @Summary Get an excuse or appeal
// @Tags Corrections
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /excuses/{id} [get]
// @Router /appeals/{id} [get]
func (h *CorrectionHandler) Get(c *gin.Context) {
	request, err := h.corrections.Get(c.Request.Context(), h.kind, c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Decide godoc
// @Summary Approve or reject a pending request
// @Tags Corrections
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.DecideCorrectionRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /excuses/{id}/decision [post]
// @Router /appeals/{id}/decision [post]
func (h *CorrectionHandler) Decide(c *gin.Context) {
	var req dto.DecideCorrectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err, "invalid decision payload"))
		return
	}
	request, err := h.corrections.Decide(c.Request.Context(), h.kind, c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}
