package pubsub

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"

	"threadcast-backend/internal/domain"
)

// NATSBroker uses core NATS subjects
type NATSBroker struct {
	conn *nats.Conn
}

// NewNATSBroker wraps an existing connection
func NewNATSBroker(conn *nats.Conn) *NATSBroker {
	return &NATSBroker{conn: conn}
}

// ConnectNATS dials a NATS server
func ConnectNATS(url, name string) (*nats.Conn, error) {
	conn, err := nats.Connect(url, nats.Name(name), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return conn, nil
}

// Subject maps a channel name onto a NATS subject
func Subject(channel string) string {
	return strings.ReplaceAll(channel, ":", ".")
}

func channelFromSubject(subject string) string {
	return strings.ReplaceAll(subject, ".", ":")
}

// Publish publishes the JSON envelope on the channel's subject
func (b *NATSBroker) Publish(_ context.Context, channel string, event domain.Event) error {
	payload, err := encode(event)
	if err != nil {
		return err
	}
	if err := b.conn.Publish(Subject(channel), payload); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}

// Subscribe subscribes to each channel's subject
func (b *NATSBroker) Subscribe(_ context.Context, channels ...string) (Subscription, error) {
	sub := &natsSubscription{out: make(chan Message, 64)}
	for _, ch := range channels {
		s, err := b.conn.Subscribe(Subject(ch), sub.deliver)
		if err != nil {
			_ = sub.Close()
			return nil, fmt.Errorf("failed to subscribe to %s: %w", ch, err)
		}
		sub.subs = append(sub.subs, s)
	}
	return sub, nil
}

// Close drains the connection
func (b *NATSBroker) Close() error {
	return b.conn.Drain()
}

type natsSubscription struct {
	mu     sync.Mutex
	subs   []*nats.Subscription
	out    chan Message
	closed bool
}

func (s *natsSubscription) deliver(msg *nats.Msg) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.out <- Message{Channel: channelFromSubject(msg.Subject), Payload: msg.Data}:
	default:
		// slow consumer: drop rather than block the NATS dispatcher
	}
}

func (s *natsSubscription) Messages() <-chan Message {
	return s.out
}

func (s *natsSubscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	var firstErr error
	for _, sub := range s.subs {
		if err := sub.Unsubscribe(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	close(s.out)
	return firstErr
}
