package watch

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"threadcast-backend/internal/domain"
	"threadcast-backend/internal/handler/http/request"
	"threadcast-backend/internal/service/watch"
	"threadcast-backend/pkg/response"
)

// Handler handles watch-together HTTP requests
type Handler struct {
	watchService *watch.Service
}

// NewHandler creates a new watch-together handler
func NewHandler(watchService *watch.Service) *Handler {
	return &Handler{watchService: watchService}
}

// RegisterRoutes mounts the watch-together routes on an authenticated group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/conversations/:id/watch", h.StartSession)
	rg.GET("/watch/:id", h.GetSession)
	rg.PUT("/watch/:id/playback", h.UpdatePlayback)
	rg.POST("/watch/:id/end", h.EndSession)
}

// StartSession opens a shared playback session
// POST /v1/conversations/:id/watch
func (h *Handler) StartSession(c *gin.Context) {
	userID, conversationID, ok := request.Caller(c, "id")
	if !ok {
		return
	}

	var req domain.WatchStart
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	session, err := h.watchService.StartSession(c.Request.Context(), &watch.StartSessionInput{
		ConversationID: conversationID,
		StartedBy:      userID,
		MediaURL:       req.MediaURL,
		Title:          req.Title,
		ThumbnailURL:   req.ThumbnailURL,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, session)
}

// UpdatePlayback moves the shared cursor. The latest update wins.
// PUT /v1/watch/:id/playback
func (h *Handler) UpdatePlayback(c *gin.Context) {
	userID, sessionID, ok := request.Caller(c, "id")
	if !ok {
		return
	}

	var req domain.PlaybackUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	session, err := h.watchService.UpdatePlayback(c.Request.Context(), sessionID, userID, req)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, session)
}

// EndSession closes a session
// POST /v1/watch/:id/end
func (h *Handler) EndSession(c *gin.Context) {
	userID, sessionID, ok := request.Caller(c, "id")
	if !ok {
		return
	}

	session, err := h.watchService.EndSession(c.Request.Context(), sessionID, userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, session)
}

// GetSession returns a session
// GET /v1/watch/:id
func (h *Handler) GetSession(c *gin.Context) {
	userID, sessionID, ok := request.Caller(c, "id")
	if !ok {
		return
	}

	session, err := h.watchService.GetSession(c.Request.Context(), sessionID, userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, session)
}
