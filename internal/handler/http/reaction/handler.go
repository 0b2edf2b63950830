package reaction

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"threadcast-backend/internal/domain"
	"threadcast-backend/internal/handler/http/request"
	"threadcast-backend/internal/service/reaction"
	"threadcast-backend/pkg/response"
)

// Handler handles reaction HTTP requests
type Handler struct {
	reactionService *reaction.Service
}

// NewHandler creates a new reaction handler
func NewHandler(reactionService *reaction.Service) *Handler {
	return &Handler{reactionService: reactionService}
}

// RegisterRoutes mounts the reaction routes for messages and comments
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/messages/:id/reactions", h.Toggle(domain.ReactionTargetMessage))
	rg.GET("/messages/:id/reactions", h.List(domain.ReactionTargetMessage))
	rg.POST("/comments/:id/reactions", h.Toggle(domain.ReactionTargetComment))
	rg.GET("/comments/:id/reactions", h.List(domain.ReactionTargetComment))
}

// ToggleReactionRequest represents toggle reaction request
type ToggleReactionRequest struct {
	Emoji string `json:"emoji" binding:"required"`
}

// Toggle adds the caller's reaction, or removes it when already present
// POST /v1/{messages|comments}/:id/reactions
func (h *Handler) Toggle(targetType domain.ReactionTargetType) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, targetID, ok := request.Caller(c, "id")
		if !ok {
			return
		}

		var req ToggleReactionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ValidationError(c, err.Error())
			return
		}

		target := domain.ReactionTarget{Type: targetType, ID: targetID}
		result, err := h.reactionService.ToggleReaction(c.Request.Context(), target, userID, req.Emoji)
		if err != nil {
			response.FromError(c, err)
			return
		}

		response.Success(c, http.StatusOK, result)
	}
}

// List returns reactions grouped by emoji
// GET /v1/{messages|comments}/:id/reactions
func (h *Handler) List(targetType domain.ReactionTargetType) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, targetID, ok := request.Caller(c, "id")
		if !ok {
			return
		}

		target := domain.ReactionTarget{Type: targetType, ID: targetID}
		summaries, err := h.reactionService.ListReactions(c.Request.Context(), target, userID)
		if err != nil {
			response.FromError(c, err)
			return
		}

		response.Success(c, http.StatusOK, gin.H{"reactions": summaries})
	}
}
