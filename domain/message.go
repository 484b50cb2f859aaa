// Package domain contains core concepts of the chat system.
// This file defines Message and related rules.
// Messages are immutable once assigned an identifier.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// BroadcastID is the reserved receiver identifier meaning "all participants".
const BroadcastID = "all"

// DefaultKind is the message kind used when the caller does not specify one.
const DefaultKind = "text"

// Message represents one chat message. The ID is generated at send time and
// never reused; identical IDs never denote two different contents.
type Message struct {
	ID         string
	SenderID   string
	SenderName string
	ReceiverID string
	Content    string
	Kind       string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewMessage builds a message with a fresh identifier.
func NewMessage(senderID, senderName, receiverID, content string) Message {
	now := time.Now().UTC()
	return Message{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		SenderName: senderName,
		ReceiverID: receiverID,
		Content:    content,
		Kind:       DefaultKind,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Broadcast reports whether the message is addressed to all participants.
func (m Message) Broadcast() bool {
	return m.ReceiverID == BroadcastID
}

// SameContent compares the immutable part of two messages, ignoring the
// timestamps touched by the log.
func (m Message) SameContent(other Message) bool {
	return m.SenderID == other.SenderID &&
		m.SenderName == other.SenderName &&
		m.ReceiverID == other.ReceiverID &&
		m.Content == other.Content &&
		m.Kind == other.Kind
}
