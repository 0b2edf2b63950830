package domain

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Payload is the attachment half of a typed message. The set of
// implementations is closed: one per non-text message type.
type Payload interface {
	Kind() MessageType
	apply(m *Message)
}

// MediaInput describes one uploaded file referenced by a message
type MediaInput struct {
	URL          string  `json:"url" validate:"required_without=ObjectKey,omitempty,url"`
	ObjectKey    string  `json:"object_key" validate:"omitempty,max=512"`
	MimeType     string  `json:"mime_type" validate:"required,max=127"`
	SizeBytes    int64   `json:"size_bytes" validate:"gte=0"`
	ThumbnailURL *string `json:"thumbnail_url" validate:"omitempty,url"`
}

// MediaPayload carries images, videos or files
type MediaPayload struct {
	Attachments []MediaInput `json:"attachments" validate:"required,min=1,max=10,dive"`
}

// VoicePayload carries a single recorded audio clip
type VoicePayload struct {
	Attachment      MediaInput `json:"attachment"`
	DurationSeconds float64    `json:"duration_seconds" validate:"gt=0,lte=900"`
}

// Point is a sample along a handwriting stroke
type Point struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Pressure float64 `json:"pressure,omitempty" validate:"gte=0,lte=1"`
}

// Stroke is one continuous pen movement
type Stroke struct {
	Points []Point `json:"points" validate:"required,min=1,max=5000,dive"`
	Color  string  `json:"color" validate:"omitempty,hexcolor"`
	Width  float64 `json:"width" validate:"gt=0,lte=100"`
}

// HandwritingPayload is stored inline with the message
type HandwritingPayload struct {
	Strokes    []Stroke `json:"strokes" validate:"required,min=1,max=500,dive"`
	Width      int      `json:"width" validate:"gt=0,lte=8192"`
	Height     int      `json:"height" validate:"gt=0,lte=8192"`
	Background string   `json:"background,omitempty" validate:"omitempty,hexcolor"`
}

// PollRef links a POLL message to its poll
type PollRef struct {
	PollID uuid.UUID `json:"poll_id"`
}

// CallRef links a CALL_RECORD message to its call
type CallRef struct {
	CallID uuid.UUID `json:"call_id"`
}

// WatchRef links a WATCH_TOGETHER message to its session
type WatchRef struct {
	SessionID uuid.UUID `json:"session_id"`
}

func (MediaPayload) Kind() MessageType       { return MessageTypeMedia }
func (VoicePayload) Kind() MessageType       { return MessageTypeVoice }
func (HandwritingPayload) Kind() MessageType { return MessageTypeHandwriting }
func (PollRef) Kind() MessageType            { return MessageTypePoll }
func (CallRef) Kind() MessageType            { return MessageTypeCallRecord }
func (WatchRef) Kind() MessageType           { return MessageTypeWatchTogether }

func (p MediaPayload) apply(m *Message) {
	for i, in := range p.Attachments {
		m.Media = append(m.Media, in.attachment(m.MessageID, i))
	}
}

func (p VoicePayload) apply(m *Message) {
	att := p.Attachment.attachment(m.MessageID, 0)
	duration := p.DurationSeconds
	att.DurationSeconds = &duration
	m.Media = append(m.Media, att)
}

func (p HandwritingPayload) apply(m *Message) {
	hw := p
	m.Handwriting = &hw
}

func (p PollRef) apply(m *Message) {
	id := p.PollID
	m.PollID = &id
}

func (p CallRef) apply(m *Message) {
	id := p.CallID
	m.CallID = &id
}

func (p WatchRef) apply(m *Message) {
	id := p.SessionID
	m.WatchSessionID = &id
}

func (in MediaInput) attachment(messageID uuid.UUID, position int) MediaAttachment {
	return MediaAttachment{
		AttachmentID: uuid.New(),
		MessageID:    messageID,
		URL:          in.URL,
		ObjectKey:    in.ObjectKey,
		MimeType:     in.MimeType,
		SizeBytes:    in.SizeBytes,
		ThumbnailURL: in.ThumbnailURL,
		Position:     position,
	}
}

var validate = validator.New()

// ValidatePayload enforces the type/attachment invariant: the payload kind
// must match the message type, and TEXT and SYSTEM messages carry none.
func ValidatePayload(t MessageType, content *string, p Payload) error {
	if !t.Valid() {
		return fmt.Errorf("%w: unknown message type %q", ErrInvalidPayload, t)
	}

	switch t {
	case MessageTypeText, MessageTypeSystem:
		if p != nil {
			return fmt.Errorf("%w: %s messages carry no attachment", ErrInvalidPayload, t)
		}
		if content == nil || strings.TrimSpace(*content) == "" {
			return fmt.Errorf("%w: %s messages require content", ErrInvalidPayload, t)
		}
		return nil
	}

	if p == nil {
		return fmt.Errorf("%w: %s messages require an attachment", ErrInvalidPayload, t)
	}
	if p.Kind() != t {
		return fmt.Errorf("%w: %s attachment on a %s message", ErrInvalidPayload, p.Kind(), t)
	}

	switch ref := p.(type) {
	case PollRef:
		if ref.PollID == uuid.Nil {
			return fmt.Errorf("%w: poll_id is required", ErrInvalidPayload)
		}
		return nil
	case CallRef:
		if ref.CallID == uuid.Nil {
			return fmt.Errorf("%w: call_id is required", ErrInvalidPayload)
		}
		return nil
	case WatchRef:
		if ref.SessionID == uuid.Nil {
			return fmt.Errorf("%w: session_id is required", ErrInvalidPayload)
		}
		return nil
	}

	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

// DecodePayload parses the client-supplied payload for a user-authored message type
func DecodePayload(t MessageType, raw json.RawMessage) (Payload, error) {
	if !t.UserAuthored() {
		return nil, fmt.Errorf("%w: %s messages cannot be sent directly", ErrInvalidPayload, t)
	}

	empty := len(raw) == 0 || string(raw) == "null"

	switch t {
	case MessageTypeText:
		if !empty {
			return nil, fmt.Errorf("%w: TEXT messages carry no attachment", ErrInvalidPayload)
		}
		return nil, nil
	case MessageTypeMedia:
		var p MediaPayload
		return decodeInto(raw, empty, &p)
	case MessageTypeVoice:
		var p VoicePayload
		return decodeInto(raw, empty, &p)
	case MessageTypeHandwriting:
		var p HandwritingPayload
		return decodeInto(raw, empty, &p)
	}
	return nil, fmt.Errorf("%w: unknown message type %q", ErrInvalidPayload, t)
}

func decodeInto[T Payload](raw json.RawMessage, empty bool, dst *T) (Payload, error) {
	if empty {
		return nil, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return *dst, nil
}

// NewMessage assembles a message and attaches its payload. Callers must run
// ValidatePayload first.
func NewMessage(conversationID, senderID uuid.UUID, t MessageType, content *string, p Payload) *Message {
	msg := &Message{
		MessageID:      uuid.Must(uuid.NewV7()),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		MessageType:    t,
	}
	if p != nil {
		p.apply(msg)
	}
	return msg
}
