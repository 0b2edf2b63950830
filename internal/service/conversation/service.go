package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"threadcast-backend/internal/domain"
	apperrors "threadcast-backend/pkg/errors"
	"threadcast-backend/pkg/logger"
	"threadcast-backend/pkg/metrics"
)

// Repository is the membership ledger store
type Repository interface {
	Create(ctx context.Context, conv *domain.Conversation, participants []*domain.ConversationParticipant) error
	GetByID(ctx context.Context, conversationID uuid.UUID) (*domain.Conversation, error)
	FindDirect(ctx context.Context, userA, userB uuid.UUID) (*domain.Conversation, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Conversation, error)
	IsParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error)
	GetParticipant(ctx context.Context, conversationID, userID uuid.UUID) (*domain.ConversationParticipant, error)
	ListParticipants(ctx context.Context, conversationID uuid.UUID) ([]*domain.ConversationParticipant, error)
	UpdateLastRead(ctx context.Context, conversationID, userID, messageID uuid.UUID) error
}

// MessageReader is the part of the message store the ledger needs for read cursors
type MessageReader interface {
	GetByID(ctx context.Context, messageID uuid.UUID) (*domain.Message, error)
	Latest(ctx context.Context, conversationID uuid.UUID) (*domain.Message, error)
	CountUnread(ctx context.Context, conversationID, userID uuid.UUID) (int, error)
}

// Service handles conversation membership and read cursors
type Service struct {
	conversationRepo Repository
	messageRepo      MessageReader
	now              func() time.Time
}

// NewService creates a new conversation service
func NewService(conversationRepo Repository, messageRepo MessageReader) *Service {
	return &Service{
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// IsMember reports whether userID participates in the conversation
func (s *Service) IsMember(ctx context.Context, conversationID, userID uuid.UUID) (bool, error) {
	ok, err := s.conversationRepo.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return false, apperrors.DatabaseError(err)
	}
	return ok, nil
}

// RequireMember returns the caller's ledger entry, or Forbidden when the
// caller is not a participant
func (s *Service) RequireMember(ctx context.Context, conversationID, userID uuid.UUID) (*domain.ConversationParticipant, error) {
	p, err := s.conversationRepo.GetParticipant(ctx, conversationID, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apperrors.NotMemberError()
		}
		return nil, apperrors.DatabaseError(err)
	}
	return p, nil
}

// Participants lists the ledger entries of a conversation
func (s *Service) Participants(ctx context.Context, conversationID uuid.UUID) ([]*domain.ConversationParticipant, error) {
	participants, err := s.conversationRepo.ListParticipants(ctx, conversationID)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	return participants, nil
}

// Conversation loads a conversation without an authorization check
func (s *Service) Conversation(ctx context.Context, conversationID uuid.UUID) (*domain.Conversation, error) {
	conv, err := s.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apperrors.NotFoundError("Conversation")
		}
		return nil, apperrors.DatabaseError(err)
	}
	return conv, nil
}

// UnreadCount counts messages from other members newer than the user's cursor
func (s *Service) UnreadCount(ctx context.Context, conversationID, userID uuid.UUID) (int, error) {
	if _, err := s.RequireMember(ctx, conversationID, userID); err != nil {
		return 0, err
	}
	n, err := s.messageRepo.CountUnread(ctx, conversationID, userID)
	if err != nil {
		return 0, apperrors.DatabaseError(err)
	}
	if n < 0 {
		n = 0
	}
	return n, nil
}

// MarkRead moves the user's read cursor to messageID, or to the latest
// message when messageID is nil. An empty conversation is a no-op.
func (s *Service) MarkRead(ctx context.Context, conversationID, userID uuid.UUID, messageID *uuid.UUID) error {
	if _, err := s.RequireMember(ctx, conversationID, userID); err != nil {
		return err
	}

	var target *domain.Message
	var err error
	if messageID != nil {
		target, err = s.messageRepo.GetByID(ctx, *messageID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return apperrors.NotFoundError("Message")
			}
			return apperrors.DatabaseError(err)
		}
		if target.ConversationID != conversationID {
			return apperrors.BadRequestError("Message does not belong to this conversation")
		}
	} else {
		target, err = s.messageRepo.Latest(ctx, conversationID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil
			}
			return apperrors.DatabaseError(err)
		}
	}

	if err := s.conversationRepo.UpdateLastRead(ctx, conversationID, userID, target.MessageID); err != nil {
		return apperrors.DatabaseError(err)
	}
	metrics.MessagesReadTotal.Inc()
	return nil
}

// CreateConversationInput contains conversation creation data
type CreateConversationInput struct {
	Type           domain.ConversationType
	Name           *string
	CreatedBy      uuid.UUID
	ParticipantIDs []uuid.UUID
}

// CreateConversation creates a conversation. A direct conversation with an
// existing partner returns the existing thread.
func (s *Service) CreateConversation(ctx context.Context, input *CreateConversationInput) (*domain.ConversationSummary, error) {
	members := make([]uuid.UUID, 0, len(input.ParticipantIDs)+1)
	seen := map[uuid.UUID]bool{input.CreatedBy: true}
	members = append(members, input.CreatedBy)
	for _, id := range input.ParticipantIDs {
		if id == uuid.Nil {
			return nil, apperrors.ValidationError("Participant ID must not be empty")
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		members = append(members, id)
	}

	switch input.Type {
	case domain.ConversationTypeDirect:
		if len(members) != 2 {
			return nil, apperrors.BadRequestError("Direct conversation needs exactly one other participant")
		}
		existing, err := s.conversationRepo.FindDirect(ctx, members[0], members[1])
		if err == nil {
			return s.summary(ctx, existing, input.CreatedBy)
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, apperrors.DatabaseError(err)
		}
	case domain.ConversationTypeGroup:
		if len(members) < 2 {
			return nil, apperrors.BadRequestError("Group conversation needs at least one other participant")
		}
	default:
		return nil, apperrors.ValidationError("Invalid conversation type")
	}

	now := s.now()
	conv := &domain.Conversation{
		ConversationID: uuid.New(),
		Type:           input.Type,
		Name:           input.Name,
		CreatedBy:      input.CreatedBy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	participants := make([]*domain.ConversationParticipant, 0, len(members))
	for _, userID := range members {
		role := domain.RoleMember
		if userID == input.CreatedBy && conv.IsGroup() {
			role = domain.RoleAdmin
		}
		participants = append(participants, &domain.ConversationParticipant{
			ParticipantID:  uuid.New(),
			ConversationID: conv.ConversationID,
			UserID:         userID,
			Role:           role,
			JoinedAt:       now,
		})
	}

	if err := s.conversationRepo.Create(ctx, conv, participants); err != nil {
		return nil, apperrors.DatabaseError(fmt.Errorf("failed to create conversation: %w", err))
	}

	logger.FromContext(ctx).Info("Conversation created",
		zap.String("conversation_id", conv.ConversationID.String()),
		zap.String("type", string(conv.Type)),
		zap.Int("participants", len(participants)))

	return &domain.ConversationSummary{Conversation: *conv, Participants: participants}, nil
}

// GetConversation returns a conversation as seen by one of its members
func (s *Service) GetConversation(ctx context.Context, conversationID, userID uuid.UUID) (*domain.ConversationSummary, error) {
	conv, err := s.Conversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if _, err := s.RequireMember(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	return s.summary(ctx, conv, userID)
}

// ListConversations returns the user's conversations, most recent first
func (s *Service) ListConversations(ctx context.Context, userID uuid.UUID) ([]*domain.ConversationSummary, error) {
	convs, err := s.conversationRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	out := make([]*domain.ConversationSummary, 0, len(convs))
	for _, conv := range convs {
		sum, err := s.summary(ctx, conv, userID)
		if err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, nil
}

// ListParticipants returns the members of a conversation to one of its members
func (s *Service) ListParticipants(ctx context.Context, conversationID, userID uuid.UUID) ([]*domain.ConversationParticipant, error) {
	if _, err := s.RequireMember(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	return s.Participants(ctx, conversationID)
}

func (s *Service) summary(ctx context.Context, conv *domain.Conversation, userID uuid.UUID) (*domain.ConversationSummary, error) {
	participants, err := s.Participants(ctx, conv.ConversationID)
	if err != nil {
		return nil, err
	}
	unread, err := s.messageRepo.CountUnread(ctx, conv.ConversationID, userID)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	return &domain.ConversationSummary{
		Conversation: *conv,
		Participants: participants,
		UnreadCount:  unread,
	}, nil
}
