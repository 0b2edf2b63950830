package conversation

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"threadcast-backend/internal/domain"
	"threadcast-backend/internal/handler/http/request"
	"threadcast-backend/internal/service/conversation"
	apperrors "threadcast-backend/pkg/errors"
	"threadcast-backend/pkg/response"
)

// OnlineChecker reports which users hold an open realtime connection
type OnlineChecker interface {
	OnlineAmong(ctx context.Context, userIDs []uuid.UUID) ([]uuid.UUID, error)
}

// Handler handles conversation HTTP requests
type Handler struct {
	conversationService *conversation.Service
	presence            OnlineChecker
}

// NewHandler creates a new conversation handler. presence may be nil.
func NewHandler(conversationService *conversation.Service, presence OnlineChecker) *Handler {
	return &Handler{
		conversationService: conversationService,
		presence:            presence,
	}
}

// RegisterRoutes mounts the conversation routes on an authenticated group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/conversations", h.CreateConversation)
	rg.GET("/conversations", h.ListConversations)
	rg.GET("/conversations/:id", h.GetConversation)
	rg.GET("/conversations/:id/participants", h.ListParticipants)
	rg.GET("/conversations/:id/unread", h.UnreadCount)
	rg.POST("/conversations/:id/read", h.MarkRead)
	if h.presence != nil {
		rg.GET("/conversations/:id/presence", h.Presence)
	}
}

// MarkReadRequest moves the read cursor. Without a message id the cursor
// moves to the newest message.
type MarkReadRequest struct {
	MessageID *uuid.UUID `json:"message_id"`
}

// CreateConversation creates a conversation, or returns the existing direct thread
// POST /v1/conversations
func (h *Handler) CreateConversation(c *gin.Context) {
	var req domain.ConversationCreate
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	userID, ok := request.UserID(c)
	if !ok {
		return
	}

	conv, err := h.conversationService.CreateConversation(c.Request.Context(), &conversation.CreateConversationInput{
		Type:           req.Type,
		Name:           req.Name,
		CreatedBy:      userID,
		ParticipantIDs: req.ParticipantIDs,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, conv)
}

// ListConversations lists the caller's conversations, most recent first
// GET /v1/conversations
func (h *Handler) ListConversations(c *gin.Context) {
	userID, ok := request.UserID(c)
	if !ok {
		return
	}

	conversations, err := h.conversationService.ListConversations(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"conversations": conversations})
}

// GetConversation returns one conversation
// GET /v1/conversations/:id
func (h *Handler) GetConversation(c *gin.Context) {
	userID, conversationID, ok := request.Caller(c, "id")
	if !ok {
		return
	}

	conv, err := h.conversationService.GetConversation(c.Request.Context(), conversationID, userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, conv)
}

// ListParticipants lists the members of a conversation
// GET /v1/conversations/:id/participants
func (h *Handler) ListParticipants(c *gin.Context) {
	userID, conversationID, ok := request.Caller(c, "id")
	if !ok {
		return
	}

	participants, err := h.conversationService.ListParticipants(c.Request.Context(), conversationID, userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"participants": participants})
}

// UnreadCount returns how many messages the caller has not read
// GET /v1/conversations/:id/unread
func (h *Handler) UnreadCount(c *gin.Context) {
	userID, conversationID, ok := request.Caller(c, "id")
	if !ok {
		return
	}

	count, err := h.conversationService.UnreadCount(c.Request.Context(), conversationID, userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"unread_count": count})
}

// MarkRead moves the caller's read cursor
// POST /v1/conversations/:id/read
func (h *Handler) MarkRead(c *gin.Context) {
	userID, conversationID, ok := request.Caller(c, "id")
	if !ok {
		return
	}

	var req MarkReadRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ValidationError(c, err.Error())
			return
		}
	}

	ctx := c.Request.Context()
	if err := h.conversationService.MarkRead(ctx, conversationID, userID, req.MessageID); err != nil {
		response.FromError(c, err)
		return
	}
	count, err := h.conversationService.UnreadCount(ctx, conversationID, userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"unread_count": count})
}

// Presence lists the members that are currently online
// GET /v1/conversations/:id/presence
func (h *Handler) Presence(c *gin.Context) {
	userID, conversationID, ok := request.Caller(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	participants, err := h.conversationService.ListParticipants(ctx, conversationID, userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	ids := make([]uuid.UUID, len(participants))
	for i, p := range participants {
		ids[i] = p.UserID
	}
	online, err := h.presence.OnlineAmong(ctx, ids)
	if err != nil {
		response.FromError(c, apperrors.WrapWithStatus(apperrors.ErrCodeInternal, "Presence unavailable", http.StatusServiceUnavailable, err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"online": online})
}
