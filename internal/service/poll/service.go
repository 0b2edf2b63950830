package poll

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"threadcast-backend/internal/domain"
	"threadcast-backend/internal/service/chat"
	"threadcast-backend/internal/service/dispatch"
	apperrors "threadcast-backend/pkg/errors"
	"threadcast-backend/pkg/logger"
	"threadcast-backend/pkg/metrics"
	"threadcast-backend/pkg/pagination"
	"threadcast-backend/pkg/sanitize"
)

const (
	maxQuestionLength = 500
	maxOptionLength   = 200
	defaultListLimit  = 20
	maxListLimit      = 100
)

// PollRepository interface for poll data operations
type PollRepository interface {
	Create(ctx context.Context, poll *domain.Poll, options []*domain.PollOption) error
	GetByID(ctx context.Context, pollID uuid.UUID) (*domain.Poll, error)
	ListByConversation(ctx context.Context, conversationID uuid.UUID, limit int) ([]*domain.Poll, error)
	GetOptions(ctx context.Context, pollID uuid.UUID) ([]*domain.PollOption, error)
	GetVotes(ctx context.Context, pollID uuid.UUID) ([]*domain.PollVote, error)
	GetUserVotes(ctx context.Context, pollID, userID uuid.UUID) ([]*domain.PollVote, error)
	AddVote(ctx context.Context, vote *domain.PollVote, singleChoice bool) error
	RemoveVote(ctx context.Context, pollID, voteID uuid.UUID) error
	ChangeVote(ctx context.Context, pollID, voteID, optionID uuid.UUID, at time.Time) error
	Close(ctx context.Context, pollID uuid.UUID, at time.Time) (bool, error)
}

// Ledger is the membership view polls authorize against
type Ledger interface {
	RequireMember(ctx context.Context, conversationID, userID uuid.UUID) (*domain.ConversationParticipant, error)
}

// MessageRecorder writes the POLL message into the conversation
type MessageRecorder interface {
	RecordMessage(ctx context.Context, input *chat.SendMessageInput) (*domain.MessageResponse, error)
}

// EventDispatcher fans outcomes out to subscribers
type EventDispatcher interface {
	Dispatch(ctx context.Context, o dispatch.Outcome)
}

// Service handles poll business logic
type Service struct {
	pollRepo   PollRepository
	ledger     Ledger
	messages   MessageRecorder
	dispatcher EventDispatcher
	now        func() time.Time
}

// NewService creates a new poll service
func NewService(
	pollRepo PollRepository,
	ledger Ledger,
	messages MessageRecorder,
	dispatcher EventDispatcher,
) *Service {
	return &Service{
		pollRepo:   pollRepo,
		ledger:     ledger,
		messages:   messages,
		dispatcher: dispatcher,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// CreatePollInput contains poll creation data
type CreatePollInput struct {
	ConversationID uuid.UUID
	CreatorID      uuid.UUID
	Question       string
	Options        []string
	AllowMultiple  bool
	IsAnonymous    bool
	StartsAt       *time.Time
	ExpiresAt      *time.Time
}

// CreatePoll creates a new poll with options and posts it to the conversation
func (s *Service) CreatePoll(ctx context.Context, input *CreatePollInput) (*domain.PollDetails, error) {
	if _, err := s.ledger.RequireMember(ctx, input.ConversationID, input.CreatorID); err != nil {
		return nil, err
	}

	now := s.now()
	question, options, err := normalize(input.Question, input.Options)
	if err != nil {
		return nil, err
	}
	if input.ExpiresAt != nil && !input.ExpiresAt.After(now) {
		return nil, apperrors.BadRequestError("Poll expiry must be in the future")
	}
	if input.StartsAt != nil && input.ExpiresAt != nil && !input.StartsAt.Before(*input.ExpiresAt) {
		return nil, apperrors.BadRequestError("Poll must start before it expires")
	}

	pollID := uuid.New()
	msg, err := s.messages.RecordMessage(ctx, &chat.SendMessageInput{
		ConversationID: input.ConversationID,
		SenderID:       input.CreatorID,
		MessageType:    domain.MessageTypePoll,
		Content:        &question,
		Payload:        domain.PollRef{PollID: pollID},
	})
	if err != nil {
		return nil, err
	}

	poll := &domain.Poll{
		PollID:         pollID,
		ConversationID: input.ConversationID,
		CreatorID:      input.CreatorID,
		MessageID:      msg.MessageID,
		Question:       question,
		AllowMultiple:  input.AllowMultiple,
		IsAnonymous:    input.IsAnonymous,
		Status:         domain.PollStatusActive,
		StartsAt:       input.StartsAt,
		ExpiresAt:      input.ExpiresAt,
		CreatedAt:      now,
	}
	poll.Status = poll.EffectiveStatus(now)

	opts := make([]*domain.PollOption, 0, len(options))
	for i, text := range options {
		opts = append(opts, &domain.PollOption{
			OptionID: uuid.New(),
			PollID:   pollID,
			Text:     text,
			Position: i,
		})
	}

	if err := s.pollRepo.Create(ctx, poll, opts); err != nil {
		logger.FromContext(ctx).Error("Failed to create poll",
			zap.String("poll_id", pollID.String()),
			zap.String("message_id", msg.MessageID.String()),
			zap.Error(err))
		return nil, apperrors.DatabaseError(err)
	}
	metrics.PollsCreatedTotal.WithLabelValues(pollKind(poll)).Inc()

	details := &domain.PollDetails{
		Poll:    poll,
		Results: domain.TallyResults(poll, opts, nil, input.CreatorID, now),
	}

	s.dispatcher.Dispatch(ctx, dispatch.Outcome{
		ConversationID: &poll.ConversationID,
		SenderID:       input.CreatorID,
		ReferenceID:    &pollID,
		Data:           details,
		Targets:        []dispatch.Target{dispatch.ToConversation(poll.ConversationID, domain.EventNewPoll)},
	})

	logger.FromContext(ctx).Info("Poll created",
		zap.String("poll_id", pollID.String()),
		zap.String("conversation_id", poll.ConversationID.String()),
		zap.Int("options", len(opts)))

	return details, nil
}

func normalize(rawQuestion string, rawOptions []string) (string, []string, error) {
	question := strings.TrimSpace(sanitize.PlainText(rawQuestion))
	if question == "" {
		return "", nil, apperrors.MissingFieldError("question")
	}
	if utf8.RuneCountInString(question) > maxQuestionLength {
		return "", nil, apperrors.ValidationError(fmt.Sprintf("Question must be at most %d characters", maxQuestionLength))
	}

	if len(rawOptions) < domain.MinPollOptions {
		return "", nil, apperrors.BadRequestError(fmt.Sprintf("A poll needs at least %d options", domain.MinPollOptions))
	}
	if len(rawOptions) > domain.MaxPollOptions {
		return "", nil, apperrors.BadRequestError(fmt.Sprintf("A poll can have at most %d options", domain.MaxPollOptions))
	}

	options := make([]string, 0, len(rawOptions))
	seen := make(map[string]bool, len(rawOptions))
	for _, raw := range rawOptions {
		text := strings.TrimSpace(sanitize.PlainText(raw))
		if text == "" {
			return "", nil, apperrors.ValidationError("Poll options cannot be empty")
		}
		if utf8.RuneCountInString(text) > maxOptionLength {
			return "", nil, apperrors.ValidationError(fmt.Sprintf("Poll options must be at most %d characters", maxOptionLength))
		}
		key := strings.ToLower(text)
		if seen[key] {
			return "", nil, apperrors.BadRequestError("Poll options must be unique")
		}
		seen[key] = true
		options = append(options, text)
	}
	return question, options, nil
}

// VoteInput contains vote data
type VoteInput struct {
	PollID   uuid.UUID
	OptionID uuid.UUID
	UserID   uuid.UUID
}

// VoteResult reports what a vote did and the tally afterwards
type VoteResult struct {
	Action  domain.VoteAction   `json:"action"`
	Results *domain.PollResults `json:"results"`
}

// Vote applies one vote request. Multi-choice polls toggle the option.
// Single-choice polls add, remove (same option) or change (other option).
func (s *Service) Vote(ctx context.Context, input *VoteInput) (*VoteResult, error) {
	poll, err := s.getPoll(ctx, input.PollID)
	if err != nil {
		return nil, err
	}
	if _, err := s.ledger.RequireMember(ctx, poll.ConversationID, input.UserID); err != nil {
		return nil, err
	}

	now := s.now()
	if status := poll.EffectiveStatus(now); status != domain.PollStatusActive {
		return nil, apperrors.BadRequestError(fmt.Sprintf("Poll is %s", strings.ToLower(string(status))))
	}

	options, err := s.pollRepo.GetOptions(ctx, poll.PollID)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	if !hasOption(options, input.OptionID) {
		return nil, apperrors.BadRequestError("Option does not belong to this poll")
	}

	action, err := s.applyVote(ctx, poll, input, now)
	if isRace(err) {
		// A concurrent request from the same user moved the row under us
		action, err = s.applyVote(ctx, poll, input, now)
	}
	if err != nil {
		if isRace(err) {
			return nil, apperrors.BadRequestError("Vote conflicted with a concurrent vote, please retry")
		}
		return nil, apperrors.DatabaseError(err)
	}
	metrics.VotesTotal.WithLabelValues(pollKind(poll), string(action)).Inc()

	votes, err := s.pollRepo.GetVotes(ctx, poll.PollID)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	results := domain.TallyResults(poll, options, votes, input.UserID, now)

	data := map[string]any{
		"poll_id":   poll.PollID,
		"option_id": input.OptionID,
		"action":    action,
		"results":   domain.TallyResults(poll, options, votes, uuid.Nil, now),
	}
	if !poll.IsAnonymous {
		data["user_id"] = input.UserID
	}
	s.dispatcher.Dispatch(ctx, dispatch.Outcome{
		ConversationID: &poll.ConversationID,
		SenderID:       input.UserID,
		ReferenceID:    &poll.PollID,
		Data:           data,
		Targets:        []dispatch.Target{dispatch.ToConversation(poll.ConversationID, domain.EventPollVoteUpdated)},
	})

	return &VoteResult{Action: action, Results: results}, nil
}

func (s *Service) applyVote(ctx context.Context, poll *domain.Poll, input *VoteInput, now time.Time) (domain.VoteAction, error) {
	mine, err := s.pollRepo.GetUserVotes(ctx, poll.PollID, input.UserID)
	if err != nil {
		return "", err
	}

	if poll.AllowMultiple {
		for _, v := range mine {
			if v.OptionID == input.OptionID {
				return domain.VoteRemoved, s.pollRepo.RemoveVote(ctx, poll.PollID, v.VoteID)
			}
		}
		return domain.VoteAdded, s.pollRepo.AddVote(ctx, newVote(input, now), false)
	}

	switch {
	case len(mine) == 0:
		return domain.VoteAdded, s.pollRepo.AddVote(ctx, newVote(input, now), true)
	case mine[0].OptionID == input.OptionID:
		return domain.VoteRemoved, s.pollRepo.RemoveVote(ctx, poll.PollID, mine[0].VoteID)
	default:
		return domain.VoteChanged, s.pollRepo.ChangeVote(ctx, poll.PollID, mine[0].VoteID, input.OptionID, now)
	}
}

func newVote(input *VoteInput, now time.Time) *domain.PollVote {
	return &domain.PollVote{
		VoteID:    uuid.New(),
		PollID:    input.PollID,
		OptionID:  input.OptionID,
		UserID:    input.UserID,
		CreatedAt: now,
	}
}

func isRace(err error) bool {
	return errors.Is(err, domain.ErrDuplicate) || errors.Is(err, domain.ErrNotFound)
}

// Results returns the tally of a poll as seen by userID
func (s *Service) Results(ctx context.Context, pollID, userID uuid.UUID) (*domain.PollResults, error) {
	details, err := s.GetPoll(ctx, pollID, userID)
	if err != nil {
		return nil, err
	}
	return details.Results, nil
}

// GetPoll returns a poll with its effective status and tally
func (s *Service) GetPoll(ctx context.Context, pollID, userID uuid.UUID) (*domain.PollDetails, error) {
	poll, err := s.getPoll(ctx, pollID)
	if err != nil {
		return nil, err
	}
	if _, err := s.ledger.RequireMember(ctx, poll.ConversationID, userID); err != nil {
		return nil, err
	}
	return s.details(ctx, poll, userID)
}

// ListPolls returns the newest polls of a conversation
func (s *Service) ListPolls(ctx context.Context, conversationID, userID uuid.UUID, limit int) ([]*domain.PollDetails, error) {
	if _, err := s.ledger.RequireMember(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	limit = pagination.Limit(limit, defaultListLimit, maxListLimit)

	polls, err := s.pollRepo.ListByConversation(ctx, conversationID, limit)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	out := make([]*domain.PollDetails, 0, len(polls))
	for _, p := range polls {
		d, err := s.details(ctx, p, userID)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// ClosePoll ends a poll early. Only the creator or a conversation admin may close it.
func (s *Service) ClosePoll(ctx context.Context, pollID, userID uuid.UUID) (*domain.PollDetails, error) {
	poll, err := s.getPoll(ctx, pollID)
	if err != nil {
		return nil, err
	}
	member, err := s.ledger.RequireMember(ctx, poll.ConversationID, userID)
	if err != nil {
		return nil, err
	}
	if poll.CreatorID != userID && member.Role != domain.RoleAdmin {
		return nil, apperrors.ForbiddenError("Only the poll creator or an admin can close this poll")
	}

	closed, err := s.pollRepo.Close(ctx, pollID, s.now())
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	if !closed {
		return nil, apperrors.BadRequestError("Poll is already closed")
	}
	metrics.PollsClosedTotal.Inc()

	poll, err = s.getPoll(ctx, pollID)
	if err != nil {
		return nil, err
	}
	details, err := s.details(ctx, poll, userID)
	if err != nil {
		return nil, err
	}

	s.dispatcher.Dispatch(ctx, dispatch.Outcome{
		ConversationID: &poll.ConversationID,
		SenderID:       userID,
		ReferenceID:    &poll.PollID,
		Data:           details,
		Targets:        []dispatch.Target{dispatch.ToConversation(poll.ConversationID, domain.EventPollClosed)},
	})

	logger.FromContext(ctx).Info("Poll closed",
		zap.String("poll_id", pollID.String()),
		zap.String("closed_by", userID.String()))

	return details, nil
}

func (s *Service) getPoll(ctx context.Context, pollID uuid.UUID) (*domain.Poll, error) {
	poll, err := s.pollRepo.GetByID(ctx, pollID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apperrors.NotFoundError("Poll")
		}
		return nil, apperrors.DatabaseError(err)
	}
	return poll, nil
}

func (s *Service) details(ctx context.Context, poll *domain.Poll, userID uuid.UUID) (*domain.PollDetails, error) {
	options, err := s.pollRepo.GetOptions(ctx, poll.PollID)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	votes, err := s.pollRepo.GetVotes(ctx, poll.PollID)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	now := s.now()
	view := *poll
	view.Status = poll.EffectiveStatus(now)
	return &domain.PollDetails{
		Poll:    &view,
		Results: domain.TallyResults(poll, options, votes, userID, now),
	}, nil
}

func hasOption(options []*domain.PollOption, optionID uuid.UUID) bool {
	for _, o := range options {
		if o.OptionID == optionID {
			return true
		}
	}
	return false
}

func pollKind(p *domain.Poll) string {
	if p.AllowMultiple {
		return "multiple"
	}
	return "single"
}
