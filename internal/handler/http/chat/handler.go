package chat

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"threadcast-backend/internal/domain"
	"threadcast-backend/internal/handler/http/request"
	"threadcast-backend/internal/service/chat"
	"threadcast-backend/pkg/response"
)

// Handler handles message HTTP requests
type Handler struct {
	chatService *chat.Service
}

// NewHandler creates a new chat handler
func NewHandler(chatService *chat.Service) *Handler {
	return &Handler{
		chatService: chatService,
	}
}

// RegisterRoutes mounts the message routes on an authenticated group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/conversations/:id/messages", h.SendMessage)
	rg.GET("/conversations/:id/messages", h.GetMessages)
	rg.POST("/conversations/:id/typing", h.Typing)
	rg.GET("/messages/:id", h.GetMessage)
}

// SendMessageRequest represents send message request. Payload shape depends
// on the message type.
type SendMessageRequest struct {
	MessageType domain.MessageType `json:"message_type" binding:"required"`
	Content     *string            `json:"content"`
	Payload     json.RawMessage    `json:"payload"`
}

// TypingIndicatorRequest represents typing indicator request
type TypingIndicatorRequest struct {
	IsTyping bool `json:"is_typing"`
}

// SendMessage handles sending a new message
// POST /v1/conversations/:id/messages
func (h *Handler) SendMessage(c *gin.Context) {
	userID, conversationID, ok := request.Caller(c, "id")
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	payload, err := domain.DecodePayload(req.MessageType, req.Payload)
	if err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	msg, err := h.chatService.SendMessage(c.Request.Context(), &chat.SendMessageInput{
		ConversationID: conversationID,
		SenderID:       userID,
		MessageType:    req.MessageType,
		Content:        req.Content,
		Payload:        payload,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, msg)
}

// GetMessages returns one page of history, oldest first
// GET /v1/conversations/:id/messages?before=<message_id>&limit=50
func (h *Handler) GetMessages(c *gin.Context) {
	userID, conversationID, ok := request.Caller(c, "id")
	if !ok {
		return
	}
	limit, ok := request.Limit(c)
	if !ok {
		return
	}

	input := &chat.GetMessagesInput{
		ConversationID: conversationID,
		UserID:         userID,
		Limit:          limit,
	}
	if raw := c.Query("before"); raw != "" {
		before, err := uuid.Parse(raw)
		if err != nil {
			response.ValidationError(c, "Invalid before cursor")
			return
		}
		input.Before = &before
	}

	page, err := h.chatService.GetMessages(c.Request.Context(), input)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, page)
}

// GetMessage returns a single message
// GET /v1/messages/:id
func (h *Handler) GetMessage(c *gin.Context) {
	userID, messageID, ok := request.Caller(c, "id")
	if !ok {
		return
	}

	msg, err := h.chatService.GetMessage(c.Request.Context(), messageID, userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, msg)
}

// Typing broadcasts a typing indicator. Nothing is stored.
// POST /v1/conversations/:id/typing
func (h *Handler) Typing(c *gin.Context) {
	userID, conversationID, ok := request.Caller(c, "id")
	if !ok {
		return
	}

	var req TypingIndicatorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	if err := h.chatService.PublishTyping(c.Request.Context(), conversationID, userID, req.IsTyping); err != nil {
		response.FromError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
