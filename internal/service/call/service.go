package call

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"threadcast-backend/internal/domain"
	"threadcast-backend/internal/service/chat"
	"threadcast-backend/internal/service/dispatch"
	apperrors "threadcast-backend/pkg/errors"
	"threadcast-backend/pkg/logger"
	"threadcast-backend/pkg/metrics"
	"threadcast-backend/pkg/pagination"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// Repository persists calls and their participants
type Repository interface {
	Create(ctx context.Context, call *domain.Call, initiator *domain.CallParticipant) error
	GetByID(ctx context.Context, callID uuid.UUID) (*domain.Call, error)
	ListByConversation(ctx context.Context, conversationID uuid.UUID, limit int) ([]*domain.Call, error)
	MarkOngoing(ctx context.Context, callID uuid.UUID) (bool, error)
	Finish(ctx context.Context, callID uuid.UUID, status domain.CallStatus, endedAt time.Time, duration int) (bool, error)
	UpsertParticipant(ctx context.Context, p *domain.CallParticipant) error
	GetParticipant(ctx context.Context, callID, userID uuid.UUID) (*domain.CallParticipant, error)
	MarkParticipantLeft(ctx context.Context, callID, userID uuid.UUID, at time.Time) (bool, error)
	CountActiveParticipants(ctx context.Context, callID uuid.UUID) (int, error)
	ListParticipants(ctx context.Context, callID uuid.UUID) ([]*domain.CallParticipant, error)
}

// Ledger is the membership view calls authorize against
type Ledger interface {
	RequireMember(ctx context.Context, conversationID, userID uuid.UUID) (*domain.ConversationParticipant, error)
	Conversation(ctx context.Context, conversationID uuid.UUID) (*domain.Conversation, error)
	Participants(ctx context.Context, conversationID uuid.UUID) ([]*domain.ConversationParticipant, error)
}

// MessageRecorder writes engine-generated messages into a conversation
type MessageRecorder interface {
	RecordMessage(ctx context.Context, input *chat.SendMessageInput) (*domain.MessageResponse, error)
}

// EventDispatcher fans outcomes out to subscribers
type EventDispatcher interface {
	Dispatch(ctx context.Context, o dispatch.Outcome)
}

// Service runs the call lifecycle: RINGING -> ONGOING -> ENDED, with
// DECLINED reachable from RINGING
type Service struct {
	callRepo   Repository
	ledger     Ledger
	messages   MessageRecorder
	dispatcher EventDispatcher
	now        func() time.Time
}

// NewService creates a new call service
func NewService(callRepo Repository, ledger Ledger, messages MessageRecorder, dispatcher EventDispatcher) *Service {
	return &Service{
		callRepo:   callRepo,
		ledger:     ledger,
		messages:   messages,
		dispatcher: dispatcher,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// InitiateCallInput contains call initiation data
type InitiateCallInput struct {
	ConversationID uuid.UUID
	InitiatorID    uuid.UUID
	CallType       domain.CallType
}

// InitiateCall starts a ringing call, records it in the conversation and
// rings every other member
func (s *Service) InitiateCall(ctx context.Context, input *InitiateCallInput) (*domain.CallDetails, error) {
	member, err := s.ledger.RequireMember(ctx, input.ConversationID, input.InitiatorID)
	if err != nil {
		return nil, err
	}
	if !input.CallType.Valid() {
		return nil, apperrors.ValidationError(fmt.Sprintf("Unknown call type %q", input.CallType))
	}

	callID := uuid.New()
	now := s.now()

	msg, err := s.messages.RecordMessage(ctx, &chat.SendMessageInput{
		ConversationID: input.ConversationID,
		SenderID:       input.InitiatorID,
		MessageType:    domain.MessageTypeCallRecord,
		Payload:        domain.CallRef{CallID: callID},
	})
	if err != nil {
		return nil, err
	}

	messageID := msg.MessageID
	call := &domain.Call{
		CallID:         callID,
		ConversationID: input.ConversationID,
		InitiatorID:    input.InitiatorID,
		CallType:       input.CallType,
		Status:         domain.CallStatusRinging,
		MessageID:      &messageID,
		StartedAt:      now,
	}
	initiator := &domain.CallParticipant{
		CallID:          callID,
		ParticipantID:   member.ParticipantID,
		UserID:          input.InitiatorID,
		HasVideo:        input.CallType.HasVideo(),
		HasAudio:        true,
		IsScreenSharing: input.CallType == domain.CallTypeScreenShare,
		JoinedAt:        now,
	}

	if err := s.callRepo.Create(ctx, call, initiator); err != nil {
		logger.FromContext(ctx).Error("Failed to create call",
			zap.String("call_id", callID.String()),
			zap.String("message_id", messageID.String()),
			zap.Error(err))
		return nil, apperrors.DatabaseError(err)
	}
	metrics.CallsTotal.WithLabelValues(string(call.CallType), string(call.Status)).Inc()

	details := &domain.CallDetails{Call: call, Participants: []*domain.CallParticipant{initiator}}

	targets := []dispatch.Target{dispatch.ToConversation(call.ConversationID, domain.EventCallStarted)}
	participants, err := s.ledger.Participants(ctx, call.ConversationID)
	if err != nil {
		logger.FromContext(ctx).Warn("Failed to list participants for ringing", zap.Error(err))
	}
	for _, p := range participants {
		if p.UserID != input.InitiatorID {
			targets = append(targets, dispatch.ToUser(p.UserID, domain.EventIncomingCall))
		}
	}

	s.dispatcher.Dispatch(ctx, dispatch.Outcome{
		ConversationID: &call.ConversationID,
		SenderID:       input.InitiatorID,
		ReferenceID:    &callID,
		Data:           details,
		Targets:        targets,
	})

	logger.FromContext(ctx).Info("Call initiated",
		zap.String("call_id", callID.String()),
		zap.String("conversation_id", call.ConversationID.String()),
		zap.String("call_type", string(call.CallType)))

	return details, nil
}

// JoinCallInput contains join data. A nil Media joins with the call type's defaults.
type JoinCallInput struct {
	CallID uuid.UUID
	UserID uuid.UUID
	Media  *domain.MediaCapabilities
}

// JoinCall adds or re-adds a member to a call. The first join by anyone other
// than the initiator moves the call from RINGING to ONGOING.
func (s *Service) JoinCall(ctx context.Context, input *JoinCallInput) (*domain.CallDetails, error) {
	call, member, err := s.authorize(ctx, input.CallID, input.UserID)
	if err != nil {
		return nil, err
	}
	if call.Status.IsTerminal() {
		return nil, apperrors.BadRequestError("Call is no longer active")
	}

	media := domain.MediaCapabilities{
		HasVideo:        call.CallType.HasVideo(),
		HasAudio:        true,
		IsScreenSharing: call.CallType == domain.CallTypeScreenShare,
	}
	if input.Media != nil {
		media = *input.Media
	}

	participant := &domain.CallParticipant{
		CallID:          call.CallID,
		ParticipantID:   member.ParticipantID,
		UserID:          input.UserID,
		HasVideo:        media.HasVideo,
		HasAudio:        media.HasAudio,
		IsScreenSharing: media.IsScreenSharing,
		JoinedAt:        s.now(),
	}
	if err := s.callRepo.UpsertParticipant(ctx, participant); err != nil {
		return nil, s.repoError(err)
	}

	if input.UserID != call.InitiatorID && call.Status == domain.CallStatusRinging {
		changed, err := s.callRepo.MarkOngoing(ctx, call.CallID)
		if err != nil {
			return nil, s.repoError(err)
		}
		if changed {
			metrics.CallsTotal.WithLabelValues(string(call.CallType), string(domain.CallStatusOngoing)).Inc()
		}
	}

	details, err := s.details(ctx, call.CallID)
	if err != nil {
		return nil, err
	}

	joined := participant
	for _, p := range details.Participants {
		if p.UserID == input.UserID {
			joined = p
			break
		}
	}
	s.publishParticipant(ctx, call, input.UserID, joined)

	return details, nil
}

// LeaveCall stamps the caller's departure. When nobody is left the call ends
// with its duration recorded. Leaving without an active row is a no-op.
func (s *Service) LeaveCall(ctx context.Context, callID, userID uuid.UUID) (*domain.Call, error) {
	call, _, err := s.authorize(ctx, callID, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	left, err := s.callRepo.MarkParticipantLeft(ctx, callID, userID, now)
	if err != nil {
		return nil, s.repoError(err)
	}
	if !left {
		return call, nil
	}

	active, err := s.callRepo.CountActiveParticipants(ctx, callID)
	if err != nil {
		return nil, s.repoError(err)
	}

	if active > 0 {
		s.dispatcher.Dispatch(ctx, dispatch.Outcome{
			ConversationID: &call.ConversationID,
			SenderID:       userID,
			ReferenceID:    &call.CallID,
			Data: map[string]any{
				"call_id": call.CallID,
				"user_id": userID,
				"left_at": now,
			},
			Targets: []dispatch.Target{dispatch.ToConversation(call.ConversationID, domain.EventCallParticipantLeft)},
		})
		return call, nil
	}

	return s.finish(ctx, call, userID, domain.CallStatusEnded, now)
}

// DeclineCall lets a ringing member refuse a call. In a direct conversation
// the call ends immediately; in a group the refusal is only announced.
func (s *Service) DeclineCall(ctx context.Context, callID, userID uuid.UUID) (*domain.Call, error) {
	call, _, err := s.authorize(ctx, callID, userID)
	if err != nil {
		return nil, err
	}
	if userID == call.InitiatorID {
		return nil, apperrors.BadRequestError("The caller cannot decline their own call")
	}
	if call.Status != domain.CallStatusRinging {
		return nil, apperrors.BadRequestError("Only a ringing call can be declined")
	}

	conv, err := s.ledger.Conversation(ctx, call.ConversationID)
	if err != nil {
		return nil, err
	}

	if !conv.IsGroup() {
		return s.finish(ctx, call, userID, domain.CallStatusDeclined, s.now())
	}

	s.dispatcher.Dispatch(ctx, dispatch.Outcome{
		ConversationID: &call.ConversationID,
		SenderID:       userID,
		ReferenceID:    &call.CallID,
		Data: map[string]any{
			"call_id": call.CallID,
			"user_id": userID,
		},
		Targets: []dispatch.Target{dispatch.ToConversation(call.ConversationID, domain.EventCallDeclined)},
	})
	return call, nil
}

// finish performs the terminal transition. Only the caller that wins the
// conditional update records the system message and publishes.
func (s *Service) finish(ctx context.Context, call *domain.Call, userID uuid.UUID, status domain.CallStatus, endedAt time.Time) (*domain.Call, error) {
	duration := 0
	if status == domain.CallStatusEnded {
		duration = domain.CallDurationSeconds(call.StartedAt, endedAt)
	}

	won, err := s.callRepo.Finish(ctx, call.CallID, status, endedAt, duration)
	if err != nil {
		return nil, s.repoError(err)
	}

	final, err := s.callRepo.GetByID(ctx, call.CallID)
	if err != nil {
		return nil, s.repoError(err)
	}
	if !won {
		return final, nil
	}

	metrics.CallsTotal.WithLabelValues(string(call.CallType), string(status)).Inc()
	event := domain.EventCallDeclined
	note := "Call declined"
	if status == domain.CallStatusEnded {
		event = domain.EventCallEnded
		note = "Call ended. Duration: " + FormatDuration(duration)
		metrics.CallDurationSeconds.WithLabelValues(string(call.CallType)).Observe(float64(duration))
	}

	if _, err := s.messages.RecordMessage(ctx, &chat.SendMessageInput{
		ConversationID: call.ConversationID,
		SenderID:       userID,
		MessageType:    domain.MessageTypeSystem,
		Content:        &note,
	}); err != nil {
		logger.FromContext(ctx).Warn("Failed to record call summary",
			zap.String("call_id", call.CallID.String()),
			zap.Error(err))
	}

	s.dispatcher.Dispatch(ctx, dispatch.Outcome{
		ConversationID: &call.ConversationID,
		SenderID:       userID,
		ReferenceID:    &call.CallID,
		Data:           final,
		Targets:        []dispatch.Target{dispatch.ToConversation(call.ConversationID, event)},
	})

	logger.FromContext(ctx).Info("Call finished",
		zap.String("call_id", call.CallID.String()),
		zap.String("status", string(status)),
		zap.Int("duration", duration))

	return final, nil
}

// UpdateMedia toggles an active participant's media flags
func (s *Service) UpdateMedia(ctx context.Context, callID, userID uuid.UUID, media domain.MediaCapabilities) (*domain.CallParticipant, error) {
	call, _, err := s.authorize(ctx, callID, userID)
	if err != nil {
		return nil, err
	}
	if call.Status.IsTerminal() {
		return nil, apperrors.BadRequestError("Call is no longer active")
	}

	current, err := s.callRepo.GetParticipant(ctx, callID, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apperrors.BadRequestError("You are not in this call")
		}
		return nil, apperrors.DatabaseError(err)
	}
	if !current.Active() {
		return nil, apperrors.BadRequestError("You are not in this call")
	}

	current.HasVideo = media.HasVideo
	current.HasAudio = media.HasAudio
	current.IsScreenSharing = media.IsScreenSharing
	if err := s.callRepo.UpsertParticipant(ctx, current); err != nil {
		return nil, s.repoError(err)
	}

	s.publishParticipant(ctx, call, userID, current)
	return current, nil
}

// SignalKind is the WebRTC negotiation step a relayed signal carries
type SignalKind string

const (
	SignalOffer        SignalKind = "offer"
	SignalAnswer       SignalKind = "answer"
	SignalICECandidate SignalKind = "ice-candidate"
)

// Signal is an opaque WebRTC payload relayed between two participants
type Signal struct {
	CallID   uuid.UUID       `json:"call_id"`
	FromUser uuid.UUID       `json:"from_user_id"`
	ToUser   uuid.UUID       `json:"to_user_id"`
	Kind     SignalKind      `json:"kind"`
	Payload  json.RawMessage `json:"payload"`
}

// RelaySignal forwards SDP and ICE payloads between two active participants
// of a live call. Nothing is stored.
func (s *Service) RelaySignal(ctx context.Context, sig *Signal) error {
	switch sig.Kind {
	case SignalOffer, SignalAnswer, SignalICECandidate:
	default:
		return apperrors.ValidationError(fmt.Sprintf("Unknown signal kind %q", sig.Kind))
	}
	if len(sig.Payload) == 0 {
		return apperrors.MissingFieldError("payload")
	}
	if sig.FromUser == sig.ToUser {
		return apperrors.BadRequestError("Cannot signal yourself")
	}

	call, _, err := s.authorize(ctx, sig.CallID, sig.FromUser)
	if err != nil {
		return err
	}
	if call.Status.IsTerminal() {
		return apperrors.BadRequestError("Call is no longer active")
	}
	for _, userID := range []uuid.UUID{sig.FromUser, sig.ToUser} {
		p, err := s.callRepo.GetParticipant(ctx, sig.CallID, userID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return apperrors.DatabaseError(err)
		}
		if p == nil || !p.Active() {
			return apperrors.BadRequestError("Both users must be in the call")
		}
	}

	s.dispatcher.Dispatch(ctx, dispatch.Outcome{
		ConversationID: &call.ConversationID,
		SenderID:       sig.FromUser,
		ReferenceID:    &call.CallID,
		Data:           sig,
		Targets:        []dispatch.Target{dispatch.ToUserSilent(sig.ToUser, domain.EventCallSignal)},
	})
	return nil
}

// GetCall returns a call with its participants to a conversation member
func (s *Service) GetCall(ctx context.Context, callID, userID uuid.UUID) (*domain.CallDetails, error) {
	if _, _, err := s.authorize(ctx, callID, userID); err != nil {
		return nil, err
	}
	return s.details(ctx, callID)
}

// GetCallHistory lists the most recent calls of a conversation
func (s *Service) GetCallHistory(ctx context.Context, conversationID, userID uuid.UUID, limit int) ([]*domain.Call, error) {
	if _, err := s.ledger.RequireMember(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	limit = pagination.Limit(limit, defaultHistoryLimit, maxHistoryLimit)

	calls, err := s.callRepo.ListByConversation(ctx, conversationID, limit)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	if calls == nil {
		calls = []*domain.Call{}
	}
	return calls, nil
}

func (s *Service) authorize(ctx context.Context, callID, userID uuid.UUID) (*domain.Call, *domain.ConversationParticipant, error) {
	call, err := s.callRepo.GetByID(ctx, callID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil, apperrors.NotFoundError("Call")
		}
		return nil, nil, apperrors.DatabaseError(err)
	}
	member, err := s.ledger.RequireMember(ctx, call.ConversationID, userID)
	if err != nil {
		return nil, nil, err
	}
	return call, member, nil
}

func (s *Service) details(ctx context.Context, callID uuid.UUID) (*domain.CallDetails, error) {
	call, err := s.callRepo.GetByID(ctx, callID)
	if err != nil {
		return nil, s.repoError(err)
	}
	participants, err := s.callRepo.ListParticipants(ctx, callID)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	return &domain.CallDetails{Call: call, Participants: participants}, nil
}

func (s *Service) publishParticipant(ctx context.Context, call *domain.Call, userID uuid.UUID, p *domain.CallParticipant) {
	s.dispatcher.Dispatch(ctx, dispatch.Outcome{
		ConversationID: &call.ConversationID,
		SenderID:       userID,
		ReferenceID:    &call.CallID,
		Data:           p,
		Targets:        []dispatch.Target{dispatch.ToConversation(call.ConversationID, domain.EventCallParticipantJoined)},
	})
}

func (s *Service) repoError(err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return apperrors.NotFoundError("Call")
	}
	return apperrors.DatabaseError(err)
}

// FormatDuration renders whole seconds as h:mm:ss or m:ss
func FormatDuration(seconds int) string {
	h := seconds / 3600
	m := (seconds % 3600) / 60
	sec := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%d:%02d", m, sec)
}
