package notification

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"threadcast-backend/internal/handler/http/request"
	"threadcast-backend/internal/service/notification"
	"threadcast-backend/pkg/response"
)

// Handler handles notification HTTP requests
type Handler struct {
	notificationService *notification.Service
}

// NewHandler creates a new notification handler
func NewHandler(notificationService *notification.Service) *Handler {
	return &Handler{
		notificationService: notificationService,
	}
}

// RegisterRoutes mounts the notification feed routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/notifications", h.GetNotifications)
	rg.GET("/notifications/unread-count", h.GetUnreadCount)
	rg.POST("/notifications/read-all", h.MarkAllAsRead)
	rg.POST("/notifications/:id/read", h.MarkAsRead)
}

// GetNotifications retrieves user's notifications
// GET /v1/notifications?limit=20&offset=0
func (h *Handler) GetNotifications(c *gin.Context) {
	userID, ok := request.UserID(c)
	if !ok {
		return
	}
	limit, ok := request.Limit(c)
	if !ok {
		return
	}

	offset := 0
	if offsetStr := c.Query("offset"); offsetStr != "" {
		o, err := strconv.Atoi(offsetStr)
		if err != nil || o < 0 {
			response.ValidationError(c, "offset must be a non-negative integer")
			return
		}
		offset = o
	}

	result, err := h.notificationService.GetNotifications(c.Request.Context(), userID, limit, offset)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// GetUnreadCount returns the number of unread notifications
// GET /v1/notifications/unread-count
func (h *Handler) GetUnreadCount(c *gin.Context) {
	userID, ok := request.UserID(c)
	if !ok {
		return
	}

	count, err := h.notificationService.GetUnreadCount(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"unread_count": count})
}

// MarkAsRead marks a notification as read
// POST /v1/notifications/:id/read
func (h *Handler) MarkAsRead(c *gin.Context) {
	userID, notificationID, ok := request.Caller(c, "id")
	if !ok {
		return
	}

	if err := h.notificationService.MarkAsRead(c.Request.Context(), notificationID, userID); err != nil {
		response.FromError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// MarkAllAsRead marks all notifications as read
// POST /v1/notifications/read-all
func (h *Handler) MarkAllAsRead(c *gin.Context) {
	userID, ok := request.UserID(c)
	if !ok {
		return
	}

	if err := h.notificationService.MarkAllAsRead(c.Request.Context(), userID); err != nil {
		response.FromError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
