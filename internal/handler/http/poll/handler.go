package poll

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"threadcast-backend/internal/handler/http/request"
	"threadcast-backend/internal/service/poll"
	"threadcast-backend/pkg/response"
)

// Handler handles poll HTTP requests
type Handler struct {
	pollService *poll.Service
}

// NewHandler creates a new poll handler
func NewHandler(pollService *poll.Service) *Handler {
	return &Handler{
		pollService: pollService,
	}
}

// RegisterRoutes mounts the poll routes on an authenticated group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/conversations/:id/polls", h.CreatePoll)
	rg.GET("/conversations/:id/polls", h.ListPolls)
	rg.GET("/polls/:id", h.GetPoll)
	rg.GET("/polls/:id/results", h.GetResults)
	rg.POST("/polls/:id/votes", h.Vote)
	rg.POST("/polls/:id/close", h.ClosePoll)
}

// CreatePollRequest represents create poll request
type CreatePollRequest struct {
	Question      string     `json:"question" binding:"required"`
	Options       []string   `json:"options" binding:"required"`
	AllowMultiple bool       `json:"allow_multiple"`
	IsAnonymous   bool       `json:"is_anonymous"`
	StartsAt      *time.Time `json:"starts_at"`
	ExpiresAt     *time.Time `json:"expires_at"`
}

// VoteRequest represents vote request
type VoteRequest struct {
	OptionID uuid.UUID `json:"option_id" binding:"required"`
}

// CreatePoll handles creating a new poll
// POST /v1/conversations/:id/polls
func (h *Handler) CreatePoll(c *gin.Context) {
	userID, conversationID, ok := request.Caller(c, "id")
	if !ok {
		return
	}

	var req CreatePollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	details, err := h.pollService.CreatePoll(c.Request.Context(), &poll.CreatePollInput{
		ConversationID: conversationID,
		CreatorID:      userID,
		Question:       req.Question,
		Options:        req.Options,
		AllowMultiple:  req.AllowMultiple,
		IsAnonymous:    req.IsAnonymous,
		StartsAt:       req.StartsAt,
		ExpiresAt:      req.ExpiresAt,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, details)
}

// Vote casts, changes or withdraws a vote on one option
// POST /v1/polls/:id/votes
func (h *Handler) Vote(c *gin.Context) {
	userID, pollID, ok := request.Caller(c, "id")
	if !ok {
		return
	}

	var req VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	result, err := h.pollService.Vote(c.Request.Context(), &poll.VoteInput{
		PollID:   pollID,
		OptionID: req.OptionID,
		UserID:   userID,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// GetResults returns the current tally
// GET /v1/polls/:id/results
func (h *Handler) GetResults(c *gin.Context) {
	userID, pollID, ok := request.Caller(c, "id")
	if !ok {
		return
	}

	results, err := h.pollService.Results(c.Request.Context(), pollID, userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, results)
}

// GetPoll returns a poll with its tally
// GET /v1/polls/:id
func (h *Handler) GetPoll(c *gin.Context) {
	userID, pollID, ok := request.Caller(c, "id")
	if !ok {
		return
	}

	details, err := h.pollService.GetPoll(c.Request.Context(), pollID, userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, details)
}

// ListPolls lists recent polls in a conversation
// GET /v1/conversations/:id/polls?limit=20
func (h *Handler) ListPolls(c *gin.Context) {
	userID, conversationID, ok := request.Caller(c, "id")
	if !ok {
		return
	}
	limit, ok := request.Limit(c)
	if !ok {
		return
	}

	polls, err := h.pollService.ListPolls(c.Request.Context(), conversationID, userID, limit)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"polls": polls})
}

// ClosePoll ends voting early
// POST /v1/polls/:id/close
func (h *Handler) ClosePoll(c *gin.Context) {
	userID, pollID, ok := request.Caller(c, "id")
	if !ok {
		return
	}

	details, err := h.pollService.ClosePoll(c.Request.Context(), pollID, userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, details)
}
