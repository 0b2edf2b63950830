package chat

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"threadcast-backend/internal/domain"
	"threadcast-backend/internal/service/dispatch"
	apperrors "threadcast-backend/pkg/errors"
	"threadcast-backend/pkg/logger"
	"threadcast-backend/pkg/metrics"
	"threadcast-backend/pkg/pagination"
	"threadcast-backend/pkg/sanitize"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

// MessageRepository persists messages
type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	GetByID(ctx context.Context, messageID uuid.UUID) (*domain.Message, error)
	ListByConversation(ctx context.Context, conversationID uuid.UUID, before *uuid.UUID, limit int) ([]*domain.Message, error)
	CountUnread(ctx context.Context, conversationID, userID uuid.UUID) (int, error)
}

// UserRepository resolves sender profiles
type UserRepository interface {
	GetSummaries(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.UserSummary, error)
}

// Ledger is the membership view the message store authorizes against
type Ledger interface {
	RequireMember(ctx context.Context, conversationID, userID uuid.UUID) (*domain.ConversationParticipant, error)
	Conversation(ctx context.Context, conversationID uuid.UUID) (*domain.Conversation, error)
	Participants(ctx context.Context, conversationID uuid.UUID) ([]*domain.ConversationParticipant, error)
}

// Presigner turns stored object keys into download URLs
type Presigner interface {
	PresignGet(ctx context.Context, objectKey string) (string, error)
}

// EventDispatcher fans outcomes out to subscribers
type EventDispatcher interface {
	Dispatch(ctx context.Context, o dispatch.Outcome)
}

// Service handles the typed message store
type Service struct {
	messageRepo MessageRepository
	userRepo    UserRepository
	ledger      Ledger
	dispatcher  EventDispatcher
	presigner   Presigner
	now         func() time.Time
}

// NewService creates a new chat service. presigner may be nil.
func NewService(
	messageRepo MessageRepository,
	userRepo UserRepository,
	ledger Ledger,
	dispatcher EventDispatcher,
	presigner Presigner,
) *Service {
	return &Service{
		messageRepo: messageRepo,
		userRepo:    userRepo,
		ledger:      ledger,
		dispatcher:  dispatcher,
		presigner:   presigner,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SendMessageInput contains message data
type SendMessageInput struct {
	ConversationID uuid.UUID
	SenderID       uuid.UUID
	MessageType    domain.MessageType
	Content        *string
	Payload        domain.Payload
}

// SendMessage stores a user-authored message and fans out NEW_MESSAGE
func (s *Service) SendMessage(ctx context.Context, input *SendMessageInput) (*domain.MessageResponse, error) {
	if _, err := s.ledger.RequireMember(ctx, input.ConversationID, input.SenderID); err != nil {
		return nil, err
	}
	if !input.MessageType.UserAuthored() {
		return nil, apperrors.BadRequestError("Message type cannot be sent directly")
	}

	conv, resp, err := s.create(ctx, input)
	if err != nil {
		return nil, err
	}

	targets := []dispatch.Target{dispatch.ToConversation(conv.ConversationID, domain.EventNewMessage)}
	if resp.ReceiverID != nil {
		targets = append(targets, dispatch.ToUser(*resp.ReceiverID, domain.EventNewMessage))
	} else {
		participants, err := s.ledger.Participants(ctx, conv.ConversationID)
		if err != nil {
			logger.FromContext(ctx).Warn("Failed to list participants for fan-out", zap.Error(err))
		}
		for _, p := range participants {
			if p.UserID != input.SenderID {
				targets = append(targets, dispatch.ToUserSilent(p.UserID, domain.EventNewMessage))
			}
		}
	}

	ref := resp.MessageID
	s.dispatcher.Dispatch(ctx, dispatch.Outcome{
		ConversationID: &conv.ConversationID,
		SenderID:       input.SenderID,
		ReferenceID:    &ref,
		Data:           resp,
		Targets:        targets,
	})

	return resp, nil
}

// RecordMessage stores an engine-generated message (poll, call record,
// watch-together or system note). The caller has already authorized the
// actor and publishes its own event.
func (s *Service) RecordMessage(ctx context.Context, input *SendMessageInput) (*domain.MessageResponse, error) {
	_, resp, err := s.create(ctx, input)
	return resp, err
}

func (s *Service) create(ctx context.Context, input *SendMessageInput) (*domain.Conversation, *domain.MessageResponse, error) {
	content := input.Content
	if content != nil {
		clean := sanitize.MessageContent(*content)
		content = &clean
		if clean == "" && input.MessageType != domain.MessageTypeText && input.MessageType != domain.MessageTypeSystem {
			content = nil
		}
	}

	if err := domain.ValidatePayload(input.MessageType, content, input.Payload); err != nil {
		return nil, nil, apperrors.ValidationError(err.Error())
	}

	conv, err := s.ledger.Conversation(ctx, input.ConversationID)
	if err != nil {
		return nil, nil, err
	}

	msg := domain.NewMessage(input.ConversationID, input.SenderID, input.MessageType, content, input.Payload)
	msg.CreatedAt = s.now()
	if !conv.IsGroup() {
		if receiver := s.otherParticipant(ctx, conv.ConversationID, input.SenderID); receiver != nil {
			msg.ReceiverID = receiver
		}
	}

	if err := s.messageRepo.Create(ctx, msg); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil, apperrors.NotFoundError("Conversation")
		}
		return nil, nil, apperrors.DatabaseError(err)
	}
	metrics.MessagesCreatedTotal.WithLabelValues(string(msg.MessageType)).Inc()

	resolved, err := s.resolve(ctx, []*domain.Message{msg})
	if err != nil {
		return nil, nil, err
	}
	return conv, resolved[0], nil
}

func (s *Service) otherParticipant(ctx context.Context, conversationID, senderID uuid.UUID) *uuid.UUID {
	participants, err := s.ledger.Participants(ctx, conversationID)
	if err != nil {
		logger.FromContext(ctx).Warn("Failed to resolve receiver", zap.Error(err))
		return nil
	}
	for _, p := range participants {
		if p.UserID != senderID {
			id := p.UserID
			return &id
		}
	}
	return nil
}

// GetMessagesInput contains query parameters
type GetMessagesInput struct {
	ConversationID uuid.UUID
	UserID         uuid.UUID
	Before         *uuid.UUID
	Limit          int
}

// GetMessages returns one page of history in chronological order along with
// the requester's unread count
func (s *Service) GetMessages(ctx context.Context, input *GetMessagesInput) (*domain.MessagePage, error) {
	if _, err := s.ledger.RequireMember(ctx, input.ConversationID, input.UserID); err != nil {
		return nil, err
	}

	limit := pagination.Limit(input.Limit, defaultPageSize, maxPageSize)

	// One extra row tells us whether an older page exists
	msgs, err := s.messageRepo.ListByConversation(ctx, input.ConversationID, input.Before, limit+1)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	page := &domain.MessagePage{}
	if len(msgs) > limit {
		msgs = msgs[:limit]
		page.HasMore = true
		cursor := msgs[len(msgs)-1].MessageID
		page.NextCursor = &cursor
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	page.Messages, err = s.resolve(ctx, msgs)
	if err != nil {
		return nil, err
	}

	page.UnreadCount, err = s.messageRepo.CountUnread(ctx, input.ConversationID, input.UserID)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	return page, nil
}

// GetMessage returns one message to a member of its conversation
func (s *Service) GetMessage(ctx context.Context, messageID, userID uuid.UUID) (*domain.MessageResponse, error) {
	msg, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apperrors.NotFoundError("Message")
		}
		return nil, apperrors.DatabaseError(err)
	}
	if _, err := s.ledger.RequireMember(ctx, msg.ConversationID, userID); err != nil {
		return nil, err
	}

	resolved, err := s.resolve(ctx, []*domain.Message{msg})
	if err != nil {
		return nil, err
	}
	return resolved[0], nil
}

// PublishTyping fans out an ephemeral TYPING or STOP_TYPING signal
func (s *Service) PublishTyping(ctx context.Context, conversationID, userID uuid.UUID, typing bool) error {
	if _, err := s.ledger.RequireMember(ctx, conversationID, userID); err != nil {
		return err
	}

	event := domain.EventStopTyping
	if typing {
		event = domain.EventTyping
	}
	s.dispatcher.Dispatch(ctx, dispatch.Outcome{
		ConversationID: &conversationID,
		SenderID:       userID,
		Data:           map[string]string{"user_id": userID.String()},
		Targets:        []dispatch.Target{dispatch.ToConversation(conversationID, event)},
	})
	return nil
}

// resolve attaches sender profiles and presigned media URLs
func (s *Service) resolve(ctx context.Context, msgs []*domain.Message) ([]*domain.MessageResponse, error) {
	ids := make([]uuid.UUID, 0, len(msgs))
	seen := make(map[uuid.UUID]bool, len(msgs))
	for _, m := range msgs {
		if !seen[m.SenderID] {
			seen[m.SenderID] = true
			ids = append(ids, m.SenderID)
		}
	}

	senders, err := s.userRepo.GetSummaries(ctx, ids)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	out := make([]*domain.MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		s.presignMedia(ctx, m)
		out = append(out, &domain.MessageResponse{Message: m, Sender: senders[m.SenderID]})
	}
	return out, nil
}

func (s *Service) presignMedia(ctx context.Context, m *domain.Message) {
	if s.presigner == nil {
		return
	}
	for i := range m.Media {
		att := &m.Media[i]
		if att.ObjectKey == "" {
			continue
		}
		signed, err := s.presigner.PresignGet(ctx, att.ObjectKey)
		if err != nil {
			logger.FromContext(ctx).Warn("Failed to presign media",
				zap.String("object_key", att.ObjectKey),
				zap.Error(err))
			continue
		}
		att.URL = signed
	}
}
