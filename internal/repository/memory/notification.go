package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"threadcast-backend/internal/domain"
)

// NotificationRepository is the in-memory notification feed
type NotificationRepository struct {
	s *Store
}

// Create stores a notification
func (r *NotificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cp := *n
	r.s.notifications = append(r.s.notifications, &cp)
	return nil
}

// ListByRecipient returns a page of a user's notifications, newest first,
// together with the total count
func (r *NotificationRepository) ListByRecipient(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Notification, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var all []*domain.Notification
	for _, n := range r.s.notifications {
		if n.RecipientID == userID {
			cp := *n
			all = append(all, &cp)
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	total := len(all)
	if offset >= total {
		return []*domain.Notification{}, total, nil
	}
	end := min(offset+limit, total)
	return all[offset:end], total, nil
}

// CountUnread counts a user's unread notifications
func (r *NotificationRepository) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	n := 0
	for _, no := range r.s.notifications {
		if no.RecipientID == userID && !no.IsRead {
			n++
		}
	}
	return n, nil
}

// MarkAsRead marks one of the user's notifications read
func (r *NotificationRepository) MarkAsRead(ctx context.Context, notificationID, userID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, n := range r.s.notifications {
		if n.NotificationID == notificationID && n.RecipientID == userID {
			n.IsRead = true
			return nil
		}
	}
	return domain.ErrNotFound
}

// MarkAllAsRead marks every notification of the user read
func (r *NotificationRepository) MarkAllAsRead(ctx context.Context, userID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, n := range r.s.notifications {
		if n.RecipientID == userID {
			n.IsRead = true
		}
	}
	return nil
}
