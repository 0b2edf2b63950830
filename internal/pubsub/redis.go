package pubsub

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"threadcast-backend/internal/domain"
)

// RedisBroker uses Redis Pub/Sub
type RedisBroker struct {
	client *redis.Client
}

// NewRedisBroker wraps an existing client. The caller owns the client.
func NewRedisBroker(client *redis.Client) *RedisBroker {
	return &RedisBroker{client: client}
}

// Publish publishes the JSON envelope on channel
func (b *RedisBroker) Publish(ctx context.Context, channel string, event domain.Event) error {
	payload, err := encode(event)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}

// Subscribe subscribes to channels and waits for the confirmation
func (b *RedisBroker) Subscribe(ctx context.Context, channels ...string) (Subscription, error) {
	ps := b.client.Subscribe(ctx, channels...)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	sub := &redisSubscription{ps: ps, out: make(chan Message, 64)}
	go sub.pump()
	return sub, nil
}

// Close is a no-op; the client is closed by its owner
func (b *RedisBroker) Close() error {
	return nil
}

type redisSubscription struct {
	ps  *redis.PubSub
	out chan Message
}

func (s *redisSubscription) pump() {
	defer close(s.out)
	for msg := range s.ps.Channel() {
		s.out <- Message{Channel: msg.Channel, Payload: []byte(msg.Payload)}
	}
}

func (s *redisSubscription) Messages() <-chan Message {
	return s.out
}

func (s *redisSubscription) Close() error {
	return s.ps.Close()
}
