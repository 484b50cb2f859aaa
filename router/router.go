// Package router subscribes to the chat topics and dispatches inbound
// envelopes by kind. Malformed input stops here; it is logged and dropped,
// never propagated.
package router

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"

	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/repositories"
	"chat-relay/tracker"
	"chat-relay/transport"
	"chat-relay/wire"
)

// Callbacks are the notification sinks handed to the caller. Nil callbacks
// are skipped.
type Callbacks struct {
	OnDelivered     func(domain.Message)
	OnStatusChanged func(domain.StatusEvent)
	OnTyping        func(domain.Typing)
}

type Router struct {
	log         *slog.Logger
	pubsub      transport.PubSub
	tracker     *tracker.Tracker
	store       repositories.IMessageLog
	sharedTopic string
	selfID      string
	callbacks   Callbacks

	// ctx set by Start; bounds the publishes made from the inbound path.
	ctx context.Context
}

func New(log *slog.Logger, pubsub transport.PubSub, track *tracker.Tracker,
	store repositories.IMessageLog, sharedTopic, selfID string, callbacks Callbacks) *Router {
	return &Router{
		log:         log,
		pubsub:      pubsub,
		tracker:     track,
		store:       store,
		sharedTopic: sharedTopic,
		selfID:      selfID,
		callbacks:   callbacks,
		ctx:         context.Background(),
	}
}

// TopicFor resolves the addressing rule: the broadcast sentinel maps to the
// shared topic, anything else to the participant's personal topic.
func (r *Router) TopicFor(participantID string) string {
	if participantID == domain.BroadcastID {
		return r.sharedTopic
	}
	return r.sharedTopic + "/" + participantID
}

// Start subscribes to the shared topic and to this participant's personal
// topic. Shutdown is ctx cancellation; in-flight envelopes are not drained.
func (r *Router) Start(ctx context.Context) error {
	r.ctx = ctx
	return r.pubsub.Subscribe(ctx, r.HandleRaw, r.sharedTopic, r.TopicFor(r.selfID))
}

// Publish encodes and hands the envelope to the broker. Transport failures
// surface to the caller; retries belong to the transport collaborator.
func (r *Router) Publish(ctx context.Context, envelope wire.Envelope, topic string) error {
	payload, err := wire.Encode(envelope)
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return r.pubsub.Publish(ctx, topic, payload)
}

// HandleRaw is the transport delivery callback. It may run concurrently with
// the send path.
func (r *Router) HandleRaw(topic string, payload []byte) {
	envelope, err := wire.Decode(payload)
	if err != nil {
		r.log.Warn("dropping malformed envelope", "topic", topic, "error", err)
		return
	}
	switch envelope.Kind {
	case wire.KindMessage:
		r.handleMessage(*envelope.Message)
	case wire.KindStatus:
		r.handleStatus(*envelope.Status)
	case wire.KindTyping:
		r.handleTyping(*envelope.Typing)
	}
}

func (r *Router) handleMessage(message domain.Message) {
	if message.SenderID == r.selfID {
		// Own broadcast echoed back on the shared topic; already
		// persisted and tracked at send time.
		return
	}
	if !message.Broadcast() && message.ReceiverID != r.selfID {
		return
	}

	if err := r.store.Append(message); err != nil {
		r.log.Error("persisting inbound message", "message_id", message.ID, "error", err)
		return
	}

	ack := domain.NewStatusEvent(message.ID, domain.StatusReceivedByServer, r.selfID)
	if err := r.store.AppendStatus(ack); err != nil {
		r.log.Error("recording server ack", "message_id", message.ID, "error", err)
	}
	if err := r.Publish(r.ctx, wire.WrapStatus(ack), r.TopicFor(message.SenderID)); err != nil {
		r.log.Error("publishing server ack", "message_id", message.ID, "error", err)
	}

	if r.callbacks.OnDelivered != nil {
		r.callbacks.OnDelivered(message)
	}
}

func (r *Router) handleStatus(event domain.StatusEvent) {
	applied, err := r.tracker.Advance(event.MessageID, event.Status, event.ParticipantID)
	if err != nil {
		// Not registered here, so nothing to track. The event is still
		// persisted below for audit.
		r.log.Warn("status for untracked message", "message_id", event.MessageID, "error", err)
	}

	if err := r.store.AppendStatus(event); err != nil {
		if stderrors.Is(err, errors.ErrReferential) {
			r.log.Error("status arrived before its message", "message_id", event.MessageID, "error", err)
		} else {
			r.log.Error("persisting status event", "message_id", event.MessageID, "error", err)
		}
		return
	}

	if r.callbacks.OnStatusChanged != nil {
		r.callbacks.OnStatusChanged(applied)
	}
}

func (r *Router) handleTyping(typing domain.Typing) {
	// Never persisted, never tracked. Straight to the caller.
	if r.callbacks.OnTyping != nil {
		r.callbacks.OnTyping(typing)
	}
}
