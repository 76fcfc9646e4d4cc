package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-attendance-api/internal/models"
	appErrors "github.com/noah-isme/sma-attendance-api/pkg/errors"
	"github.com/noah-isme/sma-attendance-api/pkg/response"
)

type notificationReader interface {
	ListForUser(ctx context.Context, userID string, limit int) ([]models.Notification, error)
}

// NotificationHandler lists the caller's notifications.
type NotificationHandler struct {
	notifications notificationReader
}

// NewNotificationHandler constructs the handler.
func NewNotificationHandler(notifications notificationReader) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

// List godoc
// @Summary Latest notifications for the current user
// @Tags Notifications
// @Produce json
// @Param limit query int false "Maximum rows (default 20)"
// @Success 200 {object} response.Envelope
// @Router /notifications [get]
func (h *NotificationHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	items, err := h.notifications.ListForUser(c.Request.Context(), claims.UserID, queryInt(c, "limit", 20))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}
