package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"threadcast-backend/internal/pubsub"
	"threadcast-backend/internal/service/call"
	apperrors "threadcast-backend/pkg/errors"
)

// Client is one WebSocket connection
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	sub    pubsub.Subscription
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	userID uuid.UUID
	log    *zap.Logger
}

type errorFrame struct {
	Event string `json:"event"`
	Data  struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

func (c *Client) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.sub.Close()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = c.conn.Close()
		c.hub.unregister(c)
	})
}

// forward copies broker messages into the send buffer. A client that cannot
// keep up loses messages rather than stalling the subscription.
func (c *Client) forward() {
	for {
		select {
		case <-c.done:
			return
		case msg, ok := <-c.sub.Messages():
			if !ok {
				c.close()
				return
			}
			select {
			case c.send <- msg.Payload:
				c.hub.recordMessage("event", "outbound")
			case <-c.done:
				return
			default:
				c.hub.recordError("send_buffer_full")
				c.log.Warn("Dropping event for slow client", zap.String("channel", msg.Channel))
			}
		}
	}
}

func (c *Client) readPump() {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		if c.hub.presence != nil {
			if err := c.hub.presence.RefreshPresence(context.Background(), c.userID); err != nil {
				c.log.Debug("Failed to refresh presence", zap.Error(err))
			}
		}
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.recordError("read")
				c.log.Info("WebSocket closed unexpectedly", zap.Error(err))
			}
			return
		}

		var frame InboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.reply(apperrors.ValidationError("Malformed frame"))
			continue
		}
		if err := c.handle(&frame); err != nil {
			c.reply(err)
		}
	}
}

func (c *Client) handle(frame *InboundFrame) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()

	switch frame.Type {
	case FrameTyping, FrameStopTyping:
		c.hub.recordMessage(frame.Type, "inbound")
		return c.hub.typing.PublishTyping(ctx, frame.ConversationID, c.userID, frame.Type == FrameTyping)
	case FrameCallSignal:
		c.hub.recordMessage(frame.Type, "inbound")
		return c.hub.signals.RelaySignal(ctx, &call.Signal{
			CallID:   frame.CallID,
			FromUser: c.userID,
			ToUser:   frame.ToUserID,
			Kind:     frame.Kind,
			Payload:  frame.Payload,
		})
	}
	c.hub.recordError("unknown_frame")
	return apperrors.ValidationError("Unknown frame type")
}

func (c *Client) reply(err error) {
	appErr := apperrors.GetAppError(err)
	var frame errorFrame
	frame.Event = frameError
	frame.Data.Code = string(appErr.Code)
	frame.Data.Message = appErr.Message
	frame.Timestamp = time.Now().UTC()

	payload, mErr := json.Marshal(frame)
	if mErr != nil {
		return
	}
	select {
	case c.send <- payload:
	case <-c.done:
	default:
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			return
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.recordError("write")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
