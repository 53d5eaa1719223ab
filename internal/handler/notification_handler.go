package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sba-transport-api/internal/models"
	"github.com/noah-isme/sba-transport-api/pkg/response"
)

type notificationService interface {
	ListForActor(ctx context.Context, actor *models.JWTClaims, limit int) ([]models.Notification, error)
}

// NotificationHandler serves recipient inboxes.
type NotificationHandler struct {
	service notificationService
}

// NewNotificationHandler constructs the handler.
func NewNotificationHandler(service notificationService) *NotificationHandler {
	return &NotificationHandler{service: service}
}

// List godoc
// @Summary List the caller's notifications
// @Tags Notifications
// @Produce json
// @Param limit query int false "Maximum entries"
// @Success 200 {object} response.Envelope
// @Router /notifications [get]
func (h *NotificationHandler) List(c *gin.Context) {
	notifications, err := h.service.ListForActor(c.Request.Context(), claimsFromContext(c), intQuery(c, "limit"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, notifications, nil)
}
