package domain

import (
	"fmt"
	"time"
)

// Status is one step of the delivery ladder. The zero value is not valid.
type Status string

const (
	StatusSent             Status = "sent"
	StatusReceivedByServer Status = "received_by_server"
	StatusDelivered        Status = "delivered"
	StatusRead             Status = "read"
)

var statusRank = map[Status]int{
	StatusSent:             1,
	StatusReceivedByServer: 2,
	StatusDelivered:        3,
	StatusRead:             4,
}

// ParseStatus validates a wire status value.
func ParseStatus(s string) (Status, error) {
	status := Status(s)
	if _, ok := statusRank[status]; !ok {
		return "", fmt.Errorf("unknown status %q", s)
	}
	return status, nil
}

func (s Status) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// Before reports whether s comes strictly earlier than other on the ladder.
func (s Status) Before(other Status) bool {
	return statusRank[s] < statusRank[other]
}

// Terminal reports whether no further transition is tracked past s.
func (s Status) Terminal() bool {
	return s == StatusRead
}

// MaxStatus returns the later of the two ladder positions. Out-of-order
// network delivery is resolved by merging with this rule.
func MaxStatus(a, b Status) Status {
	if a.Before(b) {
		return b
	}
	return a
}

// StatusEvent records one observed transition of one message, as seen by one
// participant. Events are append-only.
type StatusEvent struct {
	MessageID     string
	Status        Status
	ParticipantID string
	At            time.Time
}

// NewStatusEvent stamps an event with the current time.
func NewStatusEvent(messageID string, status Status, participantID string) StatusEvent {
	return StatusEvent{
		MessageID:     messageID,
		Status:        status,
		ParticipantID: participantID,
		At:            time.Now().UTC(),
	}
}
