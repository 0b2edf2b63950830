package call

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"threadcast-backend/internal/domain"
	"threadcast-backend/internal/handler/http/request"
	"threadcast-backend/internal/service/call"
	"threadcast-backend/pkg/response"
)

// Handler handles call HTTP requests
type Handler struct {
	callService *call.Service
}

// NewHandler creates a new call handler
func NewHandler(callService *call.Service) *Handler {
	return &Handler{callService: callService}
}

// RegisterRoutes mounts the call routes on an authenticated group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/conversations/:id/calls", h.InitiateCall)
	rg.GET("/conversations/:id/calls", h.GetCallHistory)
	rg.GET("/calls/:id", h.GetCall)
	rg.POST("/calls/:id/join", h.JoinCall)
	rg.POST("/calls/:id/leave", h.LeaveCall)
	rg.POST("/calls/:id/decline", h.DeclineCall)
	rg.PATCH("/calls/:id/media", h.UpdateMedia)
}

// InitiateCallRequest represents initiate call request
type InitiateCallRequest struct {
	CallType domain.CallType `json:"call_type" binding:"required"`
}

// JoinCallRequest optionally overrides the media a participant joins with
type JoinCallRequest struct {
	Media *domain.MediaCapabilities `json:"media"`
}

// InitiateCall starts a call in a conversation
// POST /v1/conversations/:id/calls
func (h *Handler) InitiateCall(c *gin.Context) {
	userID, conversationID, ok := request.Caller(c, "id")
	if !ok {
		return
	}

	var req InitiateCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	details, err := h.callService.InitiateCall(c.Request.Context(), &call.InitiateCallInput{
		ConversationID: conversationID,
		InitiatorID:    userID,
		CallType:       req.CallType,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, details)
}

// JoinCall joins or rejoins a call
// POST /v1/calls/:id/join
func (h *Handler) JoinCall(c *gin.Context) {
	userID, callID, ok := request.Caller(c, "id")
	if !ok {
		return
	}

	var req JoinCallRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ValidationError(c, err.Error())
			return
		}
	}

	details, err := h.callService.JoinCall(c.Request.Context(), &call.JoinCallInput{
		CallID: callID,
		UserID: userID,
		Media:  req.Media,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, details)
}

// LeaveCall leaves a call. The last participant out ends it.
// POST /v1/calls/:id/leave
func (h *Handler) LeaveCall(c *gin.Context) {
	userID, callID, ok := request.Caller(c, "id")
	if !ok {
		return
	}

	result, err := h.callService.LeaveCall(c.Request.Context(), callID, userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// DeclineCall declines a ringing call
// POST /v1/calls/:id/decline
func (h *Handler) DeclineCall(c *gin.Context) {
	userID, callID, ok := request.Caller(c, "id")
	if !ok {
		return
	}

	result, err := h.callService.DeclineCall(c.Request.Context(), callID, userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// UpdateMedia toggles the caller's audio, video and screen share flags
// PATCH /v1/calls/:id/media
func (h *Handler) UpdateMedia(c *gin.Context) {
	userID, callID, ok := request.Caller(c, "id")
	if !ok {
		return
	}

	var media domain.MediaCapabilities
	if err := c.ShouldBindJSON(&media); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	participant, err := h.callService.UpdateMedia(c.Request.Context(), callID, userID, media)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, participant)
}

// GetCall returns a call with its participants
// GET /v1/calls/:id
func (h *Handler) GetCall(c *gin.Context) {
	userID, callID, ok := request.Caller(c, "id")
	if !ok {
		return
	}

	details, err := h.callService.GetCall(c.Request.Context(), callID, userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, details)
}

// GetCallHistory lists recent calls in a conversation
// GET /v1/conversations/:id/calls?limit=20
func (h *Handler) GetCallHistory(c *gin.Context) {
	userID, conversationID, ok := request.Caller(c, "id")
	if !ok {
		return
	}
	limit, ok := request.Limit(c)
	if !ok {
		return
	}

	calls, err := h.callService.GetCallHistory(c.Request.Context(), conversationID, userID, limit)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"calls": calls})
}
