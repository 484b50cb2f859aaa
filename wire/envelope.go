// Package wire is the envelope codec. It is the only place malformed external
// input enters the system; everything downstream assumes well-formed envelopes.
package wire

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"chat-relay/domain"
	"chat-relay/errors"
)

// Kind discriminates the three envelope payloads.
type Kind string

const (
	KindMessage Kind = "message"
	KindStatus  Kind = "status"
	KindTyping  Kind = "typing"
)

// Envelope is the tagged wire unit. Exactly one payload field is set,
// matching Kind. Envelopes are immutable once constructed.
type Envelope struct {
	Kind    Kind
	Message *domain.Message
	Status  *domain.StatusEvent
	Typing  *domain.Typing
}

func WrapMessage(m domain.Message) Envelope {
	return Envelope{Kind: KindMessage, Message: &m}
}

func WrapStatus(e domain.StatusEvent) Envelope {
	return Envelope{Kind: KindStatus, Status: &e}
}

func WrapTyping(t domain.Typing) Envelope {
	return Envelope{Kind: KindTyping, Typing: &t}
}

var validate = validator.New()

// Field names follow the broker wire format of the deployed system.
type header struct {
	Type string `json:"type"`
}

type messageFrame struct {
	Type        string    `json:"type"`
	MessageID   string    `json:"message_id" validate:"required"`
	SenderID    string    `json:"sender_id" validate:"required"`
	SenderName  string    `json:"sender_name" validate:"required"`
	ReceiverID  string    `json:"receiver_id" validate:"required"`
	Content     string    `json:"content" validate:"required"`
	MessageType string    `json:"message_type,omitempty"`
	Timestamp   time.Time `json:"timestamp" validate:"required"`
}

type statusFrame struct {
	Type      string    `json:"type"`
	MessageID string    `json:"message_id" validate:"required"`
	Status    string    `json:"status" validate:"required"`
	UserID    string    `json:"user_id" validate:"required"`
	Timestamp time.Time `json:"timestamp" validate:"required"`
}

type typingFrame struct {
	Type       string `json:"type"`
	SenderID   string `json:"sender_id" validate:"required"`
	SenderName string `json:"sender_name,omitempty"`
	ReceiverID string `json:"receiver_id" validate:"required"`
	IsTyping   bool   `json:"is_typing"`
}

// Encode serializes an envelope to its transport payload.
func Encode(e Envelope) ([]byte, error) {
	switch e.Kind {
	case KindMessage:
		m := e.Message
		return json.Marshal(messageFrame{
			Type:        string(KindMessage),
			MessageID:   m.ID,
			SenderID:    m.SenderID,
			SenderName:  m.SenderName,
			ReceiverID:  m.ReceiverID,
			Content:     m.Content,
			MessageType: m.Kind,
			Timestamp:   m.CreatedAt,
		})
	case KindStatus:
		s := e.Status
		return json.Marshal(statusFrame{
			Type:      string(KindStatus),
			MessageID: s.MessageID,
			Status:    string(s.Status),
			UserID:    s.ParticipantID,
			Timestamp: s.At,
		})
	case KindTyping:
		t := e.Typing
		return json.Marshal(typingFrame{
			Type:       string(KindTyping),
			SenderID:   t.ActorID,
			SenderName: t.ActorName,
			ReceiverID: t.TargetID,
			IsTyping:   t.Active,
		})
	default:
		return nil, fmt.Errorf("encode: unknown envelope kind %q", e.Kind)
	}
}

// Decode parses a transport payload. Every failure wraps errors.ErrDecode:
// payloads that are not structured data, unrecognized kinds, and missing
// kind-specific required fields.
func Decode(payload []byte) (Envelope, error) {
	var h header
	if err := json.Unmarshal(payload, &h); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", errors.ErrDecode, err)
	}
	switch Kind(h.Type) {
	case KindMessage:
		var f messageFrame
		if err := unmarshalFrame(payload, &f); err != nil {
			return Envelope{}, err
		}
		kind := f.MessageType
		if kind == "" {
			kind = domain.DefaultKind
		}
		return WrapMessage(domain.Message{
			ID:         f.MessageID,
			SenderID:   f.SenderID,
			SenderName: f.SenderName,
			ReceiverID: f.ReceiverID,
			Content:    f.Content,
			Kind:       kind,
			CreatedAt:  f.Timestamp,
			UpdatedAt:  f.Timestamp,
		}), nil
	case KindStatus:
		var f statusFrame
		if err := unmarshalFrame(payload, &f); err != nil {
			return Envelope{}, err
		}
		status, err := domain.ParseStatus(f.Status)
		if err != nil {
			return Envelope{}, fmt.Errorf("%w: %v", errors.ErrDecode, err)
		}
		return WrapStatus(domain.StatusEvent{
			MessageID:     f.MessageID,
			Status:        status,
			ParticipantID: f.UserID,
			At:            f.Timestamp,
		}), nil
	case KindTyping:
		var f typingFrame
		if err := unmarshalFrame(payload, &f); err != nil {
			return Envelope{}, err
		}
		return WrapTyping(domain.Typing{
			ActorID:   f.SenderID,
			ActorName: f.SenderName,
			TargetID:  f.ReceiverID,
			Active:    f.IsTyping,
		}), nil
	default:
		return Envelope{}, fmt.Errorf("%w: unknown kind %q", errors.ErrDecode, h.Type)
	}
}

func unmarshalFrame(payload []byte, frame any) error {
	if err := json.Unmarshal(payload, frame); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrDecode, err)
	}
	if err := validate.Struct(frame); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrDecode, err)
	}
	return nil
}
