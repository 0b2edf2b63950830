package watch

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"threadcast-backend/internal/domain"
	"threadcast-backend/internal/service/chat"
	"threadcast-backend/internal/service/dispatch"
	apperrors "threadcast-backend/pkg/errors"
	"threadcast-backend/pkg/logger"
	"threadcast-backend/pkg/metrics"
	"threadcast-backend/pkg/sanitize"
)

// Repository persists watch-together sessions
type Repository interface {
	Create(ctx context.Context, session *domain.WatchSession) error
	GetByID(ctx context.Context, sessionID uuid.UUID) (*domain.WatchSession, error)
	UpdatePlayback(ctx context.Context, sessionID uuid.UUID, update domain.PlaybackUpdate, updatedBy uuid.UUID, at time.Time) (*domain.WatchSession, error)
	End(ctx context.Context, sessionID, endedBy uuid.UUID, at time.Time) (bool, error)
}

// Ledger is the membership view sessions authorize against
type Ledger interface {
	RequireMember(ctx context.Context, conversationID, userID uuid.UUID) (*domain.ConversationParticipant, error)
}

// MessageRecorder writes the WATCH_TOGETHER message into the conversation
type MessageRecorder interface {
	RecordMessage(ctx context.Context, input *chat.SendMessageInput) (*domain.MessageResponse, error)
}

// EventDispatcher fans outcomes out to subscribers
type EventDispatcher interface {
	Dispatch(ctx context.Context, o dispatch.Outcome)
}

// Service keeps one shared playback cursor per session
type Service struct {
	repo       Repository
	ledger     Ledger
	messages   MessageRecorder
	dispatcher EventDispatcher
	now        func() time.Time
}

// NewService creates a new watch-together service
func NewService(repo Repository, ledger Ledger, messages MessageRecorder, dispatcher EventDispatcher) *Service {
	return &Service{
		repo:       repo,
		ledger:     ledger,
		messages:   messages,
		dispatcher: dispatcher,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// StartSessionInput contains session data
type StartSessionInput struct {
	ConversationID uuid.UUID
	StartedBy      uuid.UUID
	MediaURL       string
	Title          *string
	ThumbnailURL   *string
}

// StartSession opens a playing session at position zero
func (s *Service) StartSession(ctx context.Context, input *StartSessionInput) (*domain.WatchSession, error) {
	if _, err := s.ledger.RequireMember(ctx, input.ConversationID, input.StartedBy); err != nil {
		return nil, err
	}

	mediaURL := sanitize.SanitizeURL(input.MediaURL)
	if mediaURL == "" {
		return nil, apperrors.MissingFieldError("media_url")
	}
	if !strings.HasPrefix(mediaURL, "http://") && !strings.HasPrefix(mediaURL, "https://") {
		return nil, apperrors.ValidationError("media_url must be an http(s) URL")
	}

	var title *string
	if input.Title != nil {
		if t := strings.TrimSpace(sanitize.PlainText(*input.Title)); t != "" {
			title = &t
		}
	}
	var thumb *string
	if input.ThumbnailURL != nil {
		if u := sanitize.SanitizeURL(*input.ThumbnailURL); u != "" {
			thumb = &u
		}
	}

	sessionID := uuid.New()
	msg, err := s.messages.RecordMessage(ctx, &chat.SendMessageInput{
		ConversationID: input.ConversationID,
		SenderID:       input.StartedBy,
		MessageType:    domain.MessageTypeWatchTogether,
		Content:        title,
		Payload:        domain.WatchRef{SessionID: sessionID},
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	session := &domain.WatchSession{
		SessionID:       sessionID,
		ConversationID:  input.ConversationID,
		StartedBy:       input.StartedBy,
		MessageID:       msg.MessageID,
		MediaURL:        mediaURL,
		Title:           title,
		ThumbnailURL:    thumb,
		CurrentPosition: 0,
		IsPlaying:       true,
		IsActive:        true,
		UpdatedBy:       input.StartedBy,
		UpdatedAt:       now,
		CreatedAt:       now,
	}
	if err := s.repo.Create(ctx, session); err != nil {
		logger.FromContext(ctx).Error("Failed to create watch session",
			zap.String("session_id", sessionID.String()),
			zap.String("message_id", msg.MessageID.String()),
			zap.Error(err))
		return nil, apperrors.DatabaseError(err)
	}
	metrics.WatchSessionsTotal.WithLabelValues("started").Inc()

	s.dispatcher.Dispatch(ctx, dispatch.Outcome{
		ConversationID: &session.ConversationID,
		SenderID:       input.StartedBy,
		ReferenceID:    &sessionID,
		Data:           session,
		Targets:        []dispatch.Target{dispatch.ToConversation(session.ConversationID, domain.EventWatchStarted)},
	})

	return session, nil
}

// UpdatePlayback overwrites the shared cursor. Concurrent updates are not
// merged: whichever write lands last is the stored state.
func (s *Service) UpdatePlayback(ctx context.Context, sessionID, userID uuid.UUID, update domain.PlaybackUpdate) (*domain.WatchSession, error) {
	current, err := s.authorize(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if update.CurrentPosition < 0 || math.IsNaN(update.CurrentPosition) || math.IsInf(update.CurrentPosition, 0) {
		return nil, apperrors.BadRequestError("Playback position must be a non-negative number of seconds")
	}
	if !current.IsActive {
		return nil, apperrors.BadRequestError("Watch session has ended")
	}

	session, err := s.repo.UpdatePlayback(ctx, sessionID, update, userID, s.now())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Ended between the read and the write
			return nil, apperrors.BadRequestError("Watch session has ended")
		}
		return nil, apperrors.DatabaseError(err)
	}
	metrics.WatchUpdatesTotal.Inc()

	s.dispatcher.Dispatch(ctx, dispatch.Outcome{
		ConversationID: &session.ConversationID,
		SenderID:       userID,
		ReferenceID:    &sessionID,
		Data: map[string]any{
			"session_id":       session.SessionID,
			"current_position": session.CurrentPosition,
			"is_playing":       session.IsPlaying,
			"updated_by":       userID,
		},
		Targets: []dispatch.Target{dispatch.ToConversation(session.ConversationID, domain.EventWatchUpdated)},
	})

	return session, nil
}

// EndSession stops a session for everyone
func (s *Service) EndSession(ctx context.Context, sessionID, userID uuid.UUID) (*domain.WatchSession, error) {
	current, err := s.authorize(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if !current.IsActive {
		return nil, apperrors.BadRequestError("Watch session has already ended")
	}

	ended, err := s.repo.End(ctx, sessionID, userID, s.now())
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	if !ended {
		return nil, apperrors.BadRequestError("Watch session has already ended")
	}
	metrics.WatchSessionsTotal.WithLabelValues("ended").Inc()

	session, err := s.get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	s.dispatcher.Dispatch(ctx, dispatch.Outcome{
		ConversationID: &session.ConversationID,
		SenderID:       userID,
		ReferenceID:    &sessionID,
		Data:           session,
		Targets:        []dispatch.Target{dispatch.ToConversation(session.ConversationID, domain.EventWatchEnded)},
	})

	return session, nil
}

// GetSession returns a session to a conversation member
func (s *Service) GetSession(ctx context.Context, sessionID, userID uuid.UUID) (*domain.WatchSession, error) {
	return s.authorize(ctx, sessionID, userID)
}

func (s *Service) authorize(ctx context.Context, sessionID, userID uuid.UUID) (*domain.WatchSession, error) {
	session, err := s.get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if _, err := s.ledger.RequireMember(ctx, session.ConversationID, userID); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *Service) get(ctx context.Context, sessionID uuid.UUID) (*domain.WatchSession, error) {
	session, err := s.repo.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apperrors.NotFoundError("Watch session")
		}
		return nil, apperrors.DatabaseError(err)
	}
	return session, nil
}
