package notification

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"threadcast-backend/internal/domain"
	apperrors "threadcast-backend/pkg/errors"
	"threadcast-backend/pkg/pagination"
)

// Repository reads and updates a user's notification feed
type Repository interface {
	ListByRecipient(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Notification, int, error)
	CountUnread(ctx context.Context, userID uuid.UUID) (int, error)
	MarkAsRead(ctx context.Context, notificationID, userID uuid.UUID) error
	MarkAllAsRead(ctx context.Context, userID uuid.UUID) error
}

// Service serves the notification feed written by the event dispatcher
type Service struct {
	notificationRepo Repository
}

// NewService creates a new notification service
func NewService(notificationRepo Repository) *Service {
	return &Service{
		notificationRepo: notificationRepo,
	}
}

// GetNotifications retrieves notifications for a user
func (s *Service) GetNotifications(ctx context.Context, userID uuid.UUID, limit, offset int) (*domain.NotificationPage, error) {
	limit = pagination.Limit(limit, pagination.DefaultLimit, pagination.MaxLimit)
	offset = pagination.Offset(offset)

	notifications, totalCount, err := s.notificationRepo.ListByRecipient(ctx, userID, limit, offset)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	unreadCount, err := s.notificationRepo.CountUnread(ctx, userID)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	return &domain.NotificationPage{
		Notifications: notifications,
		UnreadCount:   unreadCount,
		TotalCount:    totalCount,
		HasMore:       pagination.HasMore(offset, len(notifications), totalCount),
	}, nil
}

// GetUnreadCount returns the count of unread notifications
func (s *Service) GetUnreadCount(ctx context.Context, userID uuid.UUID) (int, error) {
	count, err := s.notificationRepo.CountUnread(ctx, userID)
	if err != nil {
		return 0, apperrors.DatabaseError(err)
	}
	return count, nil
}

// MarkAsRead marks a notification as read. Another user's notification is
// reported as not found.
func (s *Service) MarkAsRead(ctx context.Context, notificationID, userID uuid.UUID) error {
	if err := s.notificationRepo.MarkAsRead(ctx, notificationID, userID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return apperrors.NotFoundError("Notification")
		}
		return apperrors.DatabaseError(err)
	}
	return nil
}

// MarkAllAsRead marks all notifications as read for a user
func (s *Service) MarkAllAsRead(ctx context.Context, userID uuid.UUID) error {
	if err := s.notificationRepo.MarkAllAsRead(ctx, userID); err != nil {
		return apperrors.DatabaseError(err)
	}
	return nil
}
