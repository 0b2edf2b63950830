// Package pubsub moves event envelopes between service nodes and the
// WebSocket hub. Channels are named "conversation:<id>", "user:<id>:chat"
// and "comment:<id>".
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"threadcast-backend/internal/domain"
)

// Publisher publishes an event on a named channel
type Publisher interface {
	Publish(ctx context.Context, channel string, event domain.Event) error
}

// Message is a raw payload received on a channel
type Message struct {
	Channel string
	Payload []byte
}

// Subscription delivers messages until closed
type Subscription interface {
	Messages() <-chan Message
	Close() error
}

// Broker publishes and subscribes
type Broker interface {
	Publisher
	Subscribe(ctx context.Context, channels ...string) (Subscription, error)
	Close() error
}

func encode(event domain.Event) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s event: %w", event.Event, err)
	}
	return payload, nil
}
