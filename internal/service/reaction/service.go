package reaction

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"threadcast-backend/internal/domain"
	"threadcast-backend/internal/service/dispatch"
	apperrors "threadcast-backend/pkg/errors"
	"threadcast-backend/pkg/metrics"
	"threadcast-backend/pkg/sanitize"
)

const maxEmojiLength = 32

// Action is what a toggle did
type Action string

const (
	ActionAdded   Action = "added"
	ActionRemoved Action = "removed"
)

// Repository persists reactions
type Repository interface {
	Find(ctx context.Context, target domain.ReactionTarget, userID uuid.UUID, emoji string) (*domain.Reaction, error)
	Add(ctx context.Context, reaction *domain.Reaction) error
	Remove(ctx context.Context, reactionID uuid.UUID) error
	ListByTarget(ctx context.Context, target domain.ReactionTarget) ([]*domain.Reaction, error)
}

// MessageReader loads reacted-to messages
type MessageReader interface {
	GetByID(ctx context.Context, messageID uuid.UUID) (*domain.Message, error)
}

// Ledger is the membership view message reactions authorize against
type Ledger interface {
	RequireMember(ctx context.Context, conversationID, userID uuid.UUID) (*domain.ConversationParticipant, error)
}

// CommentDirectory resolves comment threads owned outside this service.
// CommentVisible reports whether the comment exists and userID may see it.
type CommentDirectory interface {
	CommentVisible(ctx context.Context, commentID, userID uuid.UUID) (bool, error)
}

// EventDispatcher fans outcomes out to subscribers
type EventDispatcher interface {
	Dispatch(ctx context.Context, o dispatch.Outcome)
}

// Service toggles emoji reactions on messages and comments
type Service struct {
	repo       Repository
	messages   MessageReader
	ledger     Ledger
	dispatcher EventDispatcher
	comments   CommentDirectory
	now        func() time.Time
}

// NewService creates a new reaction service
func NewService(repo Repository, messages MessageReader, ledger Ledger, dispatcher EventDispatcher) *Service {
	return &Service{
		repo:       repo,
		messages:   messages,
		ledger:     ledger,
		dispatcher: dispatcher,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithComments enables comment targets. Without a directory they are rejected.
func (s *Service) WithComments(dir CommentDirectory) *Service {
	s.comments = dir
	return s
}

// ToggleResult reports the toggle outcome and the target's reactions afterwards
type ToggleResult struct {
	Action    Action                   `json:"action"`
	Reaction  *domain.Reaction         `json:"reaction"`
	Reactions []domain.ReactionSummary `json:"reactions"`
}

// ToggleReaction removes the user's emoji from a target if present, otherwise adds it
func (s *Service) ToggleReaction(ctx context.Context, target domain.ReactionTarget, userID uuid.UUID, emoji string) (*ToggleResult, error) {
	msg, err := s.authorize(ctx, target, userID)
	if err != nil {
		return nil, err
	}

	emoji, err = normalizeEmoji(emoji)
	if err != nil {
		return nil, err
	}

	action, reaction, err := s.toggle(ctx, target, userID, emoji)
	if errors.Is(err, domain.ErrDuplicate) || errors.Is(err, domain.ErrNotFound) {
		action, reaction, err = s.toggle(ctx, target, userID, emoji)
	}
	if err != nil {
		if errors.Is(err, domain.ErrDuplicate) || errors.Is(err, domain.ErrNotFound) {
			return nil, apperrors.BadRequestError("Reaction conflicted with a concurrent request, please retry")
		}
		return nil, apperrors.DatabaseError(err)
	}
	metrics.ReactionsTotal.WithLabelValues(string(target.Type), string(action)).Inc()

	summary, err := s.summarize(ctx, target)
	if err != nil {
		return nil, err
	}
	result := &ToggleResult{Action: action, Reaction: reaction, Reactions: summary}

	s.publish(ctx, target, msg, userID, action, result)
	return result, nil
}

func (s *Service) toggle(ctx context.Context, target domain.ReactionTarget, userID uuid.UUID, emoji string) (Action, *domain.Reaction, error) {
	existing, err := s.repo.Find(ctx, target, userID, emoji)
	switch {
	case err == nil:
		return ActionRemoved, existing, s.repo.Remove(ctx, existing.ReactionID)
	case errors.Is(err, domain.ErrNotFound):
		r := &domain.Reaction{
			ReactionID: uuid.New(),
			TargetType: target.Type,
			TargetID:   target.ID,
			UserID:     userID,
			Emoji:      emoji,
			CreatedAt:  s.now(),
		}
		return ActionAdded, r, s.repo.Add(ctx, r)
	default:
		return "", nil, fmt.Errorf("find reaction: %w", err)
	}
}

func (s *Service) publish(ctx context.Context, target domain.ReactionTarget, msg *domain.Message, userID uuid.UUID, action Action, result *ToggleResult) {
	event := domain.EventReactionAdded
	if action == ActionRemoved {
		event = domain.EventReactionRemoved
	}

	data := map[string]any{
		"target_type": target.Type,
		"target_id":   target.ID,
		"user_id":     userID,
		"emoji":       result.Reaction.Emoji,
		"reactions":   result.Reactions,
	}

	out := dispatch.Outcome{
		SenderID:    userID,
		ReferenceID: &target.ID,
		Data:        data,
	}

	if msg == nil {
		out.Targets = []dispatch.Target{dispatch.ToComment(target.ID, event)}
		s.dispatcher.Dispatch(ctx, out)
		return
	}

	out.ConversationID = &msg.ConversationID
	out.Targets = []dispatch.Target{dispatch.ToConversation(msg.ConversationID, event)}
	if msg.SenderID != userID {
		if action == ActionAdded {
			out.Targets = append(out.Targets, dispatch.ToUser(msg.SenderID, event))
		} else {
			out.Targets = append(out.Targets, dispatch.ToUserSilent(msg.SenderID, event))
		}
	}
	s.dispatcher.Dispatch(ctx, out)
}

// ListReactions returns a target's reactions grouped by emoji, most used first
func (s *Service) ListReactions(ctx context.Context, target domain.ReactionTarget, userID uuid.UUID) ([]domain.ReactionSummary, error) {
	if _, err := s.authorize(ctx, target, userID); err != nil {
		return nil, err
	}
	return s.summarize(ctx, target)
}

// authorize returns the reacted-to message for message targets, nil for comments
func (s *Service) authorize(ctx context.Context, target domain.ReactionTarget, userID uuid.UUID) (*domain.Message, error) {
	if target.ID == uuid.Nil {
		return nil, apperrors.MissingFieldError("target_id")
	}

	switch target.Type {
	case domain.ReactionTargetComment:
		return nil, s.authorizeComment(ctx, target.ID, userID)
	case domain.ReactionTargetMessage:
	default:
		return nil, apperrors.ValidationError("Unknown reaction target type")
	}

	msg, err := s.messages.GetByID(ctx, target.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apperrors.NotFoundError("Message")
		}
		return nil, apperrors.DatabaseError(err)
	}
	if _, err := s.ledger.RequireMember(ctx, msg.ConversationID, userID); err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *Service) authorizeComment(ctx context.Context, commentID, userID uuid.UUID) error {
	if s.comments == nil {
		return apperrors.BadRequestError("Comment reactions are not enabled")
	}
	visible, err := s.comments.CommentVisible(ctx, commentID, userID)
	if err != nil {
		return apperrors.InternalError("Failed to resolve comment")
	}
	if !visible {
		return apperrors.NotFoundError("Comment")
	}
	return nil
}

func (s *Service) summarize(ctx context.Context, target domain.ReactionTarget) ([]domain.ReactionSummary, error) {
	reactions, err := s.repo.ListByTarget(ctx, target)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	return Group(reactions), nil
}

// Group folds reactions into per-emoji summaries ordered by count, then emoji
func Group(reactions []*domain.Reaction) []domain.ReactionSummary {
	index := make(map[string]int)
	out := []domain.ReactionSummary{}
	for _, r := range reactions {
		i, ok := index[r.Emoji]
		if !ok {
			i = len(out)
			index[r.Emoji] = i
			out = append(out, domain.ReactionSummary{Emoji: r.Emoji})
		}
		out[i].Count++
		out[i].UserIDs = append(out[i].UserIDs, r.UserID)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Emoji < out[j].Emoji
	})
	return out
}

func normalizeEmoji(raw string) (string, error) {
	emoji := strings.TrimSpace(sanitize.StripControlCharacters(raw))
	if emoji == "" {
		return "", apperrors.MissingFieldError("emoji")
	}
	if utf8.RuneCountInString(emoji) > maxEmojiLength || strings.ContainsAny(emoji, "<>\"'&") {
		return "", apperrors.ValidationError("Invalid emoji")
	}
	return emoji, nil
}
