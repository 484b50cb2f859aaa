// Package tracker keeps the sender-local table of outstanding messages and
// the highest delivery status observed for each of them.
package tracker

import (
	"fmt"
	"iter"
	"log/slog"
	"sort"
	"sync"
	"time"

	"chat-relay/domain"
	"chat-relay/errors"
)

// DefaultCapacity bounds the working set before resolved entries are evicted.
const DefaultCapacity = 1024

type entry struct {
	mu        sync.Mutex
	message   domain.Message
	status    domain.Status
	updatedAt time.Time
	resolved  bool
}

// Tracker is safe for concurrent use. The map is guarded by a RWMutex;
// status updates serialize per entry, so advances on different message
// identifiers never block each other.
type Tracker struct {
	mu       sync.RWMutex
	entries  map[string]*entry
	log      *slog.Logger
	capacity int
}

func New(log *slog.Logger, capacity int) *Tracker {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Tracker{
		entries:  make(map[string]*entry),
		log:      log,
		capacity: capacity,
	}
}

// Register inserts a pending entry at status "sent". Registering the same
// identifier with identical content is a no-op; with different content it
// fails with ErrDuplicateMessage.
func (t *Tracker) Register(message domain.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.entries[message.ID]; ok {
		if existing.message.SameContent(message) {
			return nil
		}
		return fmt.Errorf("%w: %s", errors.ErrDuplicateMessage, message.ID)
	}
	t.entries[message.ID] = &entry{
		message:   message,
		status:    domain.StatusSent,
		updatedAt: time.Now().UTC(),
	}
	t.evictLocked()
	return nil
}

// Advance merges a newly observed status into the entry using the monotone
// max rule: a lower-or-equal status is an idempotent no-op. The returned
// event reflects the status actually held after the merge. When the message
// was never registered here the event is still synthesized for audit, along
// with ErrUnknownMessage, and no entry is created: tracking is sender-local.
func (t *Tracker) Advance(messageID string, status domain.Status, participantID string) (domain.StatusEvent, error) {
	t.mu.RLock()
	e, ok := t.entries[messageID]
	t.mu.RUnlock()

	if !ok {
		return domain.NewStatusEvent(messageID, status, participantID),
			fmt.Errorf("%w: %s", errors.ErrUnknownMessage, messageID)
	}

	e.mu.Lock()
	e.status = domain.MaxStatus(e.status, status)
	e.updatedAt = time.Now().UTC()
	applied := e.status
	e.mu.Unlock()

	return domain.NewStatusEvent(messageID, applied, participantID), nil
}

// Resolve marks an entry eligible for eviction. It only takes effect once
// the entry holds the terminal status; removal itself happens lazily when
// capacity is exceeded.
func (t *Tracker) Resolve(messageID string) {
	t.mu.RLock()
	e, ok := t.entries[messageID]
	t.mu.RUnlock()
	if !ok {
		return
	}
	e.mu.Lock()
	if e.status.Terminal() {
		e.resolved = true
	}
	e.mu.Unlock()
}

// Snapshot yields all tracked entries, most recently updated first. The
// sequence is lazy and restartable: each range re-reads the live table.
func (t *Tracker) Snapshot() iter.Seq2[domain.Message, domain.Status] {
	return func(yield func(domain.Message, domain.Status) bool) {
		type row struct {
			message   domain.Message
			status    domain.Status
			updatedAt time.Time
		}
		t.mu.RLock()
		rows := make([]row, 0, len(t.entries))
		for _, e := range t.entries {
			e.mu.Lock()
			rows = append(rows, row{e.message, e.status, e.updatedAt})
			e.mu.Unlock()
		}
		t.mu.RUnlock()

		sort.Slice(rows, func(i, j int) bool {
			return rows[i].updatedAt.After(rows[j].updatedAt)
		})
		for _, r := range rows {
			if !yield(r.message, r.status) {
				return
			}
		}
	}
}

// Len reports the current working-set size.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// evictLocked removes the oldest resolved entries once capacity is exceeded.
// Entries that never reached the terminal status are kept regardless of age.
// Caller holds t.mu.
func (t *Tracker) evictLocked() {
	if len(t.entries) <= t.capacity {
		return
	}
	type candidate struct {
		id        string
		updatedAt time.Time
	}
	var resolved []candidate
	for id, e := range t.entries {
		e.mu.Lock()
		if e.resolved {
			resolved = append(resolved, candidate{id, e.updatedAt})
		}
		e.mu.Unlock()
	}
	sort.Slice(resolved, func(i, j int) bool {
		return resolved[i].updatedAt.Before(resolved[j].updatedAt)
	})
	for _, c := range resolved {
		if len(t.entries) <= t.capacity {
			return
		}
		delete(t.entries, c.id)
		t.log.Debug("evicted resolved entry", "message_id", c.id)
	}
}
