// Package ws delivers broker events to WebSocket clients and accepts the
// client-originated signals that are never persisted: typing indicators and
// WebRTC negotiation.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"threadcast-backend/internal/domain"
	"threadcast-backend/internal/handler/http/request"
	"threadcast-backend/internal/pubsub"
	"threadcast-backend/internal/service/call"
	apperrors "threadcast-backend/pkg/errors"
	"threadcast-backend/pkg/logger"
	"threadcast-backend/pkg/metrics"
	"threadcast-backend/pkg/response"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 64 << 10
	sendBuffer     = 256
)

// Inbound frame types
const (
	FrameTyping     = "TYPING"
	FrameStopTyping = "STOP_TYPING"
	FrameCallSignal = "CALL_SIGNAL"
	frameError      = "ERROR"
)

// Subscriber opens broker subscriptions
type Subscriber interface {
	Subscribe(ctx context.Context, channels ...string) (pubsub.Subscription, error)
}

// Ledger resolves which conversations a connection listens to
type Ledger interface {
	RequireMember(ctx context.Context, conversationID, userID uuid.UUID) (*domain.ConversationParticipant, error)
	ListConversations(ctx context.Context, userID uuid.UUID) ([]*domain.ConversationSummary, error)
}

// TypingPublisher fans out typing indicators
type TypingPublisher interface {
	PublishTyping(ctx context.Context, conversationID, userID uuid.UUID, typing bool) error
}

// SignalRelay forwards WebRTC negotiation between call participants
type SignalRelay interface {
	RelaySignal(ctx context.Context, sig *call.Signal) error
}

// PresenceTracker records which users hold an open connection
type PresenceTracker interface {
	SetUserOnline(ctx context.Context, userID uuid.UUID) error
	SetUserOffline(ctx context.Context, userID uuid.UUID) error
	RefreshPresence(ctx context.Context, userID uuid.UUID) error
}

// Options configures a Hub
type Options struct {
	AllowedOrigins []string
	// Presence may be nil
	Presence PresenceTracker
	// Metrics may be nil
	Metrics *metrics.Metrics
}

// Hub tracks open connections
type Hub struct {
	subscriber Subscriber
	ledger     Ledger
	typing     TypingPublisher
	signals    SignalRelay
	presence   PresenceTracker
	metrics    *metrics.Metrics
	upgrader   websocket.Upgrader

	mu      sync.Mutex
	clients map[*Client]struct{}
	perUser map[uuid.UUID]int
}

// InboundFrame is a message sent by the client
type InboundFrame struct {
	Type           string          `json:"type"`
	ConversationID uuid.UUID       `json:"conversation_id"`
	CallID         uuid.UUID       `json:"call_id"`
	ToUserID       uuid.UUID       `json:"to_user_id"`
	Kind           call.SignalKind `json:"kind"`
	Payload        json.RawMessage `json:"payload"`
}

// NewHub creates a hub
func NewHub(subscriber Subscriber, ledger Ledger, typing TypingPublisher, signals SignalRelay, opts Options) *Hub {
	h := &Hub{
		subscriber: subscriber,
		ledger:     ledger,
		typing:     typing,
		signals:    signals,
		presence:   opts.Presence,
		metrics:    opts.Metrics,
		clients:    make(map[*Client]struct{}),
		perUser:    make(map[uuid.UUID]int),
	}
	origins := slices.Clone(opts.AllowedOrigins)
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || len(origins) == 0 || slices.Contains(origins, origin)
		},
	}
	return h
}

// ServeWS upgrades the request. With ?conversation_id= the connection
// follows that conversation only; otherwise every conversation the user
// belongs to at connect time. The user's personal channel is always included.
// GET /v1/ws
func (h *Hub) ServeWS(c *gin.Context) {
	userID, ok := request.UserID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	channels, err := h.channels(ctx, c.Query("conversation_id"), userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	sub, err := h.subscriber.Subscribe(context.WithoutCancel(ctx), channels...)
	if err != nil {
		response.FromError(c, apperrors.WrapWithStatus(apperrors.ErrCodeInternal, "Realtime delivery unavailable", http.StatusServiceUnavailable, err))
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		_ = sub.Close()
		logger.FromContext(ctx).Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		hub:    h,
		conn:   conn,
		sub:    sub,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
		userID: userID,
		log:    logger.FromContext(ctx).With(zap.String("user_id", userID.String())),
	}
	h.register(client)

	go client.forward()
	go client.writePump()
	go client.readPump()
}

// Close disconnects every client
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

// Connections returns the number of open connections
func (h *Hub) Connections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) channels(ctx context.Context, rawConversationID string, userID uuid.UUID) ([]string, error) {
	channels := []string{domain.UserChannel(userID)}

	if rawConversationID != "" {
		conversationID, err := uuid.Parse(rawConversationID)
		if err != nil {
			return nil, apperrors.ValidationError("Invalid conversation_id")
		}
		if _, err := h.ledger.RequireMember(ctx, conversationID, userID); err != nil {
			return nil, err
		}
		return append(channels, domain.ConversationChannel(conversationID)), nil
	}

	conversations, err := h.ledger.ListConversations(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, conv := range conversations {
		channels = append(channels, domain.ConversationChannel(conv.ConversationID))
	}
	return channels, nil
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.perUser[c.userID]++
	first := h.perUser[c.userID] == 1
	count := len(h.clients)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.SetWebSocketConnections(count)
	}
	if first && h.presence != nil {
		if err := h.presence.SetUserOnline(context.Background(), c.userID); err != nil {
			c.log.Warn("Failed to set presence", zap.Error(err))
		}
	}
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	h.perUser[c.userID]--
	last := h.perUser[c.userID] == 0
	if last {
		delete(h.perUser, c.userID)
	}
	count := len(h.clients)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.SetWebSocketConnections(count)
	}
	if last && h.presence != nil {
		if err := h.presence.SetUserOffline(context.Background(), c.userID); err != nil {
			c.log.Warn("Failed to clear presence", zap.Error(err))
		}
	}
}

func (h *Hub) recordMessage(frameType, direction string) {
	if h.metrics != nil {
		h.metrics.RecordWebSocketMessage(frameType, direction)
	}
}

func (h *Hub) recordError(kind string) {
	if h.metrics != nil {
		h.metrics.RecordWebSocketError(kind)
	}
}
