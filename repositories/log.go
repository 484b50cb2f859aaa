//go:generate go run go.uber.org/mock/mockgen -source=log.go -destination=../mocks/mock_message_log.go -package=mocks
package repositories

import (
	"time"

	"chat-relay/domain"
)

// IMessageLog is the durable append-and-query store for chat messages and
// their status history. The store serializes concurrent writers itself.
type IMessageLog interface {
	// Append upserts a message keyed by its identifier. Re-appending an
	// existing identifier is a no-op.
	Append(message domain.Message) error
	// AppendStatus inserts a status event and touches the parent message's
	// updated_at. Fails with ErrReferential when the parent is unknown.
	AppendStatus(event domain.StatusEvent) error
	// History returns messages where the participant is sender or receiver,
	// newest first. limit 0 means all.
	History(participantID string, limit int) ([]domain.Message, error)
	// Statuses returns the recorded status events of one message, oldest
	// first.
	Statuses(messageID string) ([]domain.StatusEvent, error)
}

// messageRecord is the stored shape shared by both backends' codecs.
type messageRecord struct {
	ID          string    `json:"message_id"`
	SenderID    string    `json:"sender_id"`
	SenderName  string    `json:"sender_name"`
	ReceiverID  string    `json:"receiver_id"`
	Content     string    `json:"content"`
	MessageType string    `json:"message_type"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type statusRecord struct {
	MessageID string    `json:"message_id"`
	Status    string    `json:"status"`
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
}

func fromMessage(m domain.Message) messageRecord {
	return messageRecord{
		ID:          m.ID,
		SenderID:    m.SenderID,
		SenderName:  m.SenderName,
		ReceiverID:  m.ReceiverID,
		Content:     m.Content,
		MessageType: m.Kind,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func toMessage(r messageRecord) domain.Message {
	return domain.Message{
		ID:         r.ID,
		SenderID:   r.SenderID,
		SenderName: r.SenderName,
		ReceiverID: r.ReceiverID,
		Content:    r.Content,
		Kind:       r.MessageType,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

func fromStatusEvent(e domain.StatusEvent) statusRecord {
	return statusRecord{
		MessageID: e.MessageID,
		Status:    string(e.Status),
		UserID:    e.ParticipantID,
		Timestamp: e.At,
	}
}

func toStatusEvent(r statusRecord) domain.StatusEvent {
	return domain.StatusEvent{
		MessageID:     r.MessageID,
		Status:        domain.Status(r.Status),
		ParticipantID: r.UserID,
		At:            r.Timestamp,
	}
}
