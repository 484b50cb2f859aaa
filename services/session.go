// Package services ties the router, tracker and message log together into a
// per-participant session. One Session per logical user; no process-wide
// state.
package services

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"chat-relay/domain"
	"chat-relay/repositories"
	"chat-relay/router"
	"chat-relay/tracker"
	"chat-relay/transport"
	"chat-relay/wire"
)

// Identity names the participant owning the session.
type Identity struct {
	ID   string
	Name string
}

// Options tune the session's supporting behavior.
type Options struct {
	// AutoReadDelay marks inbound direct messages read after this delay.
	// Zero disables the receipt timer.
	AutoReadDelay time.Duration
	// TypingLinger is how long a typing indicator stays active before the
	// stop signal is published. Zero disables the stop signal.
	TypingLinger time.Duration
	// TrackerCapacity bounds the pending table before resolved entries are
	// evicted. Zero means the tracker default.
	TrackerCapacity int
}

type Session struct {
	log      *slog.Logger
	identity Identity
	tracker  *tracker.Tracker
	router   *router.Router
	store    repositories.IMessageLog
	opts     Options
}

// New wires a session. The caller's callbacks are wrapped so the session can
// publish the delivered/read receipts before handing the notification over.
func New(log *slog.Logger, identity Identity, pubsub transport.PubSub,
	store repositories.IMessageLog, sharedTopic string,
	callbacks router.Callbacks, opts Options) *Session {

	s := &Session{
		log:      log,
		identity: identity,
		tracker:  tracker.New(log, opts.TrackerCapacity),
		store:    store,
		opts:     opts,
	}
	wrapped := router.Callbacks{
		OnDelivered:     s.wrapDelivered(callbacks.OnDelivered),
		OnStatusChanged: s.wrapStatusChanged(callbacks.OnStatusChanged),
		OnTyping:        callbacks.OnTyping,
	}
	s.router = router.New(log, pubsub, s.tracker, store, sharedTopic, identity.ID, wrapped)
	return s
}

// Start begins consuming the shared and personal topics.
func (s *Session) Start(ctx context.Context) error {
	return s.router.Start(ctx)
}

// Send publishes a direct message, logs it and registers it as pending at
// status "sent". A transport failure aborts the whole operation.
func (s *Session) Send(ctx context.Context, receiverID, content string) (domain.Message, error) {
	message := domain.NewMessage(s.identity.ID, s.identity.Name, receiverID, content)

	topic := s.router.TopicFor(receiverID)
	if err := s.router.Publish(ctx, wire.WrapMessage(message), topic); err != nil {
		return domain.Message{}, fmt.Errorf("send: %w", err)
	}
	if err := s.store.Append(message); err != nil {
		return domain.Message{}, fmt.Errorf("send: %w", err)
	}
	sent := domain.NewStatusEvent(message.ID, domain.StatusSent, s.identity.ID)
	if err := s.store.AppendStatus(sent); err != nil {
		return domain.Message{}, fmt.Errorf("send: %w", err)
	}
	if err := s.tracker.Register(message); err != nil {
		return domain.Message{}, fmt.Errorf("send: %w", err)
	}
	return message, nil
}

// Broadcast publishes one envelope to the shared topic, addressed to the
// broadcast sentinel.
func (s *Session) Broadcast(ctx context.Context, content string) (domain.Message, error) {
	return s.Send(ctx, domain.BroadcastID, content)
}

// History returns this participant's messages, newest first. limit 0 means
// all.
func (s *Session) History(limit int) ([]domain.Message, error) {
	return s.store.History(s.identity.ID, limit)
}

// Statuses returns the recorded status trail of one message.
func (s *Session) Statuses(messageID string) ([]domain.StatusEvent, error) {
	return s.store.Statuses(messageID)
}

// StatusReport yields the tracked outbound messages, most recently updated
// first.
func (s *Session) StatusReport() iter.Seq2[domain.Message, domain.Status] {
	return s.tracker.Snapshot()
}

// Typing publishes a typing indicator to the receiver's personal topic and,
// when a linger is configured, the matching stop signal afterwards.
func (s *Session) Typing(ctx context.Context, receiverID string) error {
	signal := domain.Typing{
		ActorID:   s.identity.ID,
		ActorName: s.identity.Name,
		TargetID:  receiverID,
		Active:    true,
	}
	topic := s.router.TopicFor(receiverID)
	if err := s.router.Publish(ctx, wire.WrapTyping(signal), topic); err != nil {
		return fmt.Errorf("typing: %w", err)
	}
	if s.opts.TypingLinger > 0 {
		time.AfterFunc(s.opts.TypingLinger, func() {
			signal.Active = false
			if err := s.router.Publish(ctx, wire.WrapTyping(signal), topic); err != nil {
				s.log.Warn("publishing typing stop", "receiver", receiverID, "error", err)
			}
		})
	}
	return nil
}

// MarkRead records and publishes the read receipt for a received message.
func (s *Session) MarkRead(ctx context.Context, message domain.Message) error {
	event := domain.NewStatusEvent(message.ID, domain.StatusRead, s.identity.ID)
	if err := s.store.AppendStatus(event); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	if err := s.router.Publish(ctx, wire.WrapStatus(event), s.router.TopicFor(message.SenderID)); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

// Tracker exposes the pending table, mainly for status-report callers.
func (s *Session) Tracker() *tracker.Tracker {
	return s.tracker
}

// wrapDelivered publishes the delivered receipt back to the sender once the
// inbound message has been persisted, then schedules the read receipt and
// notifies the caller.
func (s *Session) wrapDelivered(next func(domain.Message)) func(domain.Message) {
	return func(message domain.Message) {
		event := domain.NewStatusEvent(message.ID, domain.StatusDelivered, s.identity.ID)
		if err := s.store.AppendStatus(event); err != nil {
			s.log.Error("recording delivered receipt", "message_id", message.ID, "error", err)
		}
		if err := s.router.Publish(context.Background(), wire.WrapStatus(event), s.router.TopicFor(message.SenderID)); err != nil {
			s.log.Error("publishing delivered receipt", "message_id", message.ID, "error", err)
		}
		if s.opts.AutoReadDelay > 0 {
			time.AfterFunc(s.opts.AutoReadDelay, func() {
				if err := s.MarkRead(context.Background(), message); err != nil {
					s.log.Warn("auto read receipt", "message_id", message.ID, "error", err)
				}
			})
		}
		if next != nil {
			next(message)
		}
	}
}

// wrapStatusChanged releases terminal entries for eviction before notifying
// the caller.
func (s *Session) wrapStatusChanged(next func(domain.StatusEvent)) func(domain.StatusEvent) {
	return func(event domain.StatusEvent) {
		if event.Status.Terminal() {
			s.tracker.Resolve(event.MessageID)
		}
		if next != nil {
			next(event)
		}
	}
}
