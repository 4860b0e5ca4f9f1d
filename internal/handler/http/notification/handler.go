package notification

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"voicelink-backend/internal/middleware"
	"voicelink-backend/internal/service/notify"
	"voicelink-backend/pkg/response"
)

// Handler handles notification HTTP requests
type Handler struct {
	notifyService *notify.Service
}

// NewHandler creates a new notification handler
func NewHandler(notifyService *notify.Service) *Handler {
	return &Handler{notifyService: notifyService}
}

// List retrieves a page of the user's notifications
// GET /v1/notifications?limit=20&offset=0
func (h *Handler) List(c *gin.Context) {
	user, ok := middleware.Identity(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 || limit > 100 {
		limit = 20
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	notifications, err := h.notifyService.List(c.Request.Context(), user.UserID, limit, offset)
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"notifications": notifications})
}

// UnreadCount reports the user's unread notification count
// GET /v1/notifications/unread-count
func (h *Handler) UnreadCount(c *gin.Context) {
	user, ok := middleware.Identity(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	count, err := h.notifyService.UnreadCount(c.Request.Context(), user.UserID)
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"unread_count": count})
}

// MarkRead marks one notification as read
// POST /v1/notifications/:id/read
func (h *Handler) MarkRead(c *gin.Context) {
	user, ok := middleware.Identity(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	notificationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid notification ID")
		return
	}

	if err := h.notifyService.MarkRead(c.Request.Context(), notificationID, user.UserID); err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"marked": true})
}

// MarkAllRead marks all of the user's notifications as read
// POST /v1/notifications/read-all
func (h *Handler) MarkAllRead(c *gin.Context) {
	user, ok := middleware.Identity(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	if err := h.notifyService.MarkAllRead(c.Request.Context(), user.UserID); err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"marked": true})
}
