package pubsub

import (
	"context"
	"sync"

	"threadcast-backend/internal/domain"
)

// Published is one recorded Publish call
type Published struct {
	Channel string
	Event   domain.Event
}

// MemoryBroker delivers events to subscribers in the same process and keeps
// a log of everything published. Used by single-node deployments and tests.
type MemoryBroker struct {
	mu        sync.Mutex
	published []Published
	subs      map[*memorySubscription]struct{}
	failWith  error
}

// NewMemoryBroker creates an empty broker
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[*memorySubscription]struct{})}
}

// FailWith makes every later Publish return err without recording
func (b *MemoryBroker) FailWith(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failWith = err
}

// Publish records the event and delivers it to matching subscribers
func (b *MemoryBroker) Publish(_ context.Context, channel string, event domain.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failWith != nil {
		return b.failWith
	}
	b.published = append(b.published, Published{Channel: channel, Event: event})

	var payload []byte
	for sub := range b.subs {
		if _, ok := sub.channels[channel]; !ok {
			continue
		}
		if payload == nil {
			p, err := encode(event)
			if err != nil {
				return err
			}
			payload = p
		}
		select {
		case sub.out <- Message{Channel: channel, Payload: payload}:
		default:
		}
	}
	return nil
}

// Subscribe registers a subscriber for channels
func (b *MemoryBroker) Subscribe(_ context.Context, channels ...string) (Subscription, error) {
	sub := &memorySubscription{
		broker:   b,
		channels: make(map[string]struct{}, len(channels)),
		out:      make(chan Message, 64),
	}
	for _, ch := range channels {
		sub.channels[ch] = struct{}{}
	}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub, nil
}

// Close closes every open subscription
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		delete(b.subs, sub)
		close(sub.out)
	}
	return nil
}

// Published returns a copy of the publish log
func (b *MemoryBroker) Published() []Published {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Published, len(b.published))
	copy(out, b.published)
	return out
}

// On returns the events published on channel, in order
func (b *MemoryBroker) On(channel string) []domain.Event {
	var out []domain.Event
	for _, p := range b.Published() {
		if p.Channel == channel {
			out = append(out, p.Event)
		}
	}
	return out
}

// Named returns every published event with the given name
func (b *MemoryBroker) Named(name domain.EventName) []Published {
	var out []Published
	for _, p := range b.Published() {
		if p.Event.Event == name {
			out = append(out, p)
		}
	}
	return out
}

// Reset clears the publish log
func (b *MemoryBroker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = nil
}

type memorySubscription struct {
	broker   *MemoryBroker
	channels map[string]struct{}
	out      chan Message
}

func (s *memorySubscription) Messages() <-chan Message {
	return s.out
}

func (s *memorySubscription) Close() error {
	s.broker.mu.Lock()
	defer s.broker.mu.Unlock()
	if _, ok := s.broker.subs[s]; ok {
		delete(s.broker.subs, s)
		close(s.out)
	}
	return nil
}
