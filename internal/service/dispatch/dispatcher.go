// Package dispatch fans a service outcome out to the broker and the
// notification store. Delivery is best effort: failures are logged and
// counted, never returned to the caller.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"threadcast-backend/internal/domain"
	"threadcast-backend/internal/pubsub"
	"threadcast-backend/pkg/logger"
	"threadcast-backend/pkg/metrics"
)

// NotificationRepository persists notifications
type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
}

// Target is one channel an outcome is published on
type Target struct {
	Channel string
	Event   domain.EventName
	// Recipient, when set, gets a notification row for this event
	Recipient *uuid.UUID
	// Data overrides Outcome.Data for this target
	Data any
}

// ToConversation targets every member listening on the conversation channel
func ToConversation(conversationID uuid.UUID, event domain.EventName) Target {
	return Target{Channel: domain.ConversationChannel(conversationID), Event: event}
}

// ToUser targets a user's personal channel and records a notification
func ToUser(userID uuid.UUID, event domain.EventName) Target {
	id := userID
	return Target{Channel: domain.UserChannel(userID), Event: event, Recipient: &id}
}

// ToUserSilent targets a user's personal channel without a notification
func ToUserSilent(userID uuid.UUID, event domain.EventName) Target {
	return Target{Channel: domain.UserChannel(userID), Event: event}
}

// ToComment targets listeners of a comment thread
func ToComment(commentID uuid.UUID, event domain.EventName) Target {
	return Target{Channel: domain.CommentChannel(commentID), Event: event}
}

// Outcome is everything one state change publishes
type Outcome struct {
	ConversationID *uuid.UUID
	SenderID       uuid.UUID
	ReferenceID    *uuid.UUID
	Data           any
	Targets        []Target
}

// Options configures a Dispatcher
type Options struct {
	Async   bool
	Timeout time.Duration
}

// Dispatcher publishes outcomes
type Dispatcher struct {
	publisher     pubsub.Publisher
	notifications NotificationRepository
	opts          Options
	now           func() time.Time
	wg            sync.WaitGroup
}

// NewDispatcher creates a dispatcher. notifications may be nil.
func NewDispatcher(publisher pubsub.Publisher, notifications NotificationRepository, opts Options) *Dispatcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	return &Dispatcher{
		publisher:     publisher,
		notifications: notifications,
		opts:          opts,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Dispatch delivers o. In async mode it returns immediately and delivery
// outlives the request context.
func (d *Dispatcher) Dispatch(ctx context.Context, o Outcome) {
	if len(o.Targets) == 0 {
		return
	}
	if !d.opts.Async {
		d.deliver(ctx, o)
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.opts.Timeout)
		defer cancel()
		d.deliver(dctx, o)
	}()
}

// Wait blocks until every in-flight async delivery has finished
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) deliver(ctx context.Context, o Outcome) {
	start := time.Now()
	defer func() {
		metrics.DispatchDuration.Observe(time.Since(start).Seconds())
	}()

	log := logger.FromContext(ctx)
	ts := d.now()

	for _, t := range o.Targets {
		data := o.Data
		if t.Data != nil {
			data = t.Data
		}

		if t.Recipient != nil && d.notifications != nil && !t.Event.Ephemeral() {
			d.notify(ctx, log, o, t, ts)
		}

		event := domain.Event{
			Event:          t.Event,
			ConversationID: o.ConversationID,
			Data:           data,
			Timestamp:      ts,
		}
		if err := d.publisher.Publish(ctx, t.Channel, event); err != nil {
			metrics.EventsPublishedTotal.WithLabelValues(string(t.Event), "error").Inc()
			log.Warn("Failed to publish event",
				zap.String("event", string(t.Event)),
				zap.String("channel", t.Channel),
				zap.Error(err))
			continue
		}
		metrics.EventsPublishedTotal.WithLabelValues(string(t.Event), "success").Inc()
	}
}

func (d *Dispatcher) notify(ctx context.Context, log *zap.Logger, o Outcome, t Target, ts time.Time) {
	n := &domain.Notification{
		NotificationID: uuid.New(),
		Type:           t.Event,
		RecipientID:    *t.Recipient,
		SenderID:       o.SenderID,
		ConversationID: o.ConversationID,
		ReferenceID:    o.ReferenceID,
		CreatedAt:      ts,
	}
	if err := d.notifications.Create(ctx, n); err != nil {
		metrics.NotificationsWrittenTotal.WithLabelValues("error").Inc()
		log.Warn("Failed to write notification",
			zap.String("event", string(t.Event)),
			zap.String("recipient_id", t.Recipient.String()),
			zap.Error(err))
		return
	}
	metrics.NotificationsWrittenTotal.WithLabelValues("success").Inc()
}
