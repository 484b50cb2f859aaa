package router

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/mocks"
	"chat-relay/tracker"
	"chat-relay/transport"
	"chat-relay/wire"
)

const sharedTopic = "chat/messages"

func inboundMessage() domain.Message {
	at := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	return domain.Message{
		ID:         "8e5a7d1c-33f1-4c86-9d1e-0a4f2b8c9e11",
		SenderID:   "fredy",
		SenderName: "Fredy",
		ReceiverID: "david",
		Content:    "Hello! How are you?",
		Kind:       domain.DefaultKind,
		CreatedAt:  at,
		UpdatedAt:  at,
	}
}

func encode(t *testing.T, envelope wire.Envelope) []byte {
	t.Helper()
	payload, err := wire.Encode(envelope)
	require.NoError(t, err)
	return payload
}

func Test_Inbound_Message_Is_Persisted_Acked_And_Delivered(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	store := mocks.NewMockIMessageLog(ctrl)
	var persisted domain.Message
	var recorded domain.StatusEvent
	store.EXPECT().Append(gomock.Any()).DoAndReturn(func(m domain.Message) error {
		persisted = m
		return nil
	})
	store.EXPECT().AppendStatus(gomock.Any()).DoAndReturn(func(e domain.StatusEvent) error {
		recorded = e
		return nil
	})

	broker := transport.NewMemoryBroker()
	acks := make(chan wire.Envelope, 1)
	req.NoError(broker.Subscribe(context.Background(), func(_ string, payload []byte) {
		envelope, err := wire.Decode(payload)
		req.NoError(err)
		acks <- envelope
	}, sharedTopic+"/fredy"))

	var delivered domain.Message
	r := New(log, broker, tracker.New(log, 0), store, sharedTopic, "david", Callbacks{
		OnDelivered: func(m domain.Message) { delivered = m },
	})

	message := inboundMessage()
	r.HandleRaw(sharedTopic+"/david", encode(t, wire.WrapMessage(message)))

	req.Equal(message, persisted)
	req.Equal(message, delivered)
	req.Equal(domain.StatusReceivedByServer, recorded.Status)
	req.Equal("david", recorded.ParticipantID)

	select {
	case ack := <-acks:
		req.Equal(wire.KindStatus, ack.Kind)
		req.Equal(message.ID, ack.Status.MessageID)
		req.Equal(domain.StatusReceivedByServer, ack.Status.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("server ack never reached the sender topic")
	}
}

func Test_Message_For_Someone_Else_Is_Ignored(t *testing.T) {
	ctrl := gomock.NewController(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	store := mocks.NewMockIMessageLog(ctrl) // no expectations: any call fails

	r := New(log, transport.NewMemoryBroker(), tracker.New(log, 0), store, sharedTopic, "alice", Callbacks{
		OnDelivered: func(domain.Message) { t.Fatal("delivery callback fired") },
	})

	r.HandleRaw(sharedTopic, encode(t, wire.WrapMessage(inboundMessage())))
}

func Test_Own_Broadcast_Echo_Is_Ignored(t *testing.T) {
	ctrl := gomock.NewController(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	store := mocks.NewMockIMessageLog(ctrl)

	message := inboundMessage()
	message.SenderID = "david"
	message.ReceiverID = domain.BroadcastID

	r := New(log, transport.NewMemoryBroker(), tracker.New(log, 0), store, sharedTopic, "david", Callbacks{
		OnDelivered: func(domain.Message) { t.Fatal("delivery callback fired") },
	})

	r.HandleRaw(sharedTopic, encode(t, wire.WrapMessage(message)))
}

func Test_Inbound_Status_Advances_Tracker_And_Is_Persisted(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	message := inboundMessage()
	message.SenderID = "david" // we sent it, so we track it
	track := tracker.New(log, 0)
	req.NoError(track.Register(message))

	store := mocks.NewMockIMessageLog(ctrl)
	store.EXPECT().AppendStatus(gomock.Any()).Return(nil)

	var notified domain.StatusEvent
	r := New(log, transport.NewMemoryBroker(), track, store, sharedTopic, "david", Callbacks{
		OnStatusChanged: func(e domain.StatusEvent) { notified = e },
	})

	event := domain.StatusEvent{
		MessageID:     message.ID,
		Status:        domain.StatusDelivered,
		ParticipantID: "fredy",
		At:            time.Date(2025, 3, 14, 9, 27, 0, 0, time.UTC),
	}
	r.HandleRaw(sharedTopic+"/david", encode(t, wire.WrapStatus(event)))

	req.Equal(domain.StatusDelivered, notified.Status)
	for tracked, status := range track.Snapshot() {
		req.Equal(message.ID, tracked.ID)
		req.Equal(domain.StatusDelivered, status)
	}
}

func Test_Status_For_Untracked_Message_Is_Still_Persisted(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	store := mocks.NewMockIMessageLog(ctrl)
	var recorded domain.StatusEvent
	store.EXPECT().AppendStatus(gomock.Any()).DoAndReturn(func(e domain.StatusEvent) error {
		recorded = e
		return nil
	})

	r := New(log, transport.NewMemoryBroker(), tracker.New(log, 0), store, sharedTopic, "david", Callbacks{})

	event := domain.StatusEvent{
		MessageID:     "never-registered",
		Status:        domain.StatusRead,
		ParticipantID: "fredy",
		At:            time.Date(2025, 3, 14, 9, 27, 0, 0, time.UTC),
	}
	r.HandleRaw(sharedTopic+"/david", encode(t, wire.WrapStatus(event)))

	req.Equal(event, recorded)
}

func Test_Referential_Fault_Suppresses_The_Status_Callback(t *testing.T) {
	ctrl := gomock.NewController(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	store := mocks.NewMockIMessageLog(ctrl)
	store.EXPECT().AppendStatus(gomock.Any()).Return(errors.ErrReferential)

	r := New(log, transport.NewMemoryBroker(), tracker.New(log, 0), store, sharedTopic, "david", Callbacks{
		OnStatusChanged: func(domain.StatusEvent) { t.Fatal("status callback fired") },
	})

	event := domain.NewStatusEvent("orphan", domain.StatusDelivered, "fredy")
	r.HandleRaw(sharedTopic+"/david", encode(t, wire.WrapStatus(event)))
}

func Test_Typing_Only_Fires_The_Typing_Callback(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	store := mocks.NewMockIMessageLog(ctrl) // typing must never touch the log

	track := tracker.New(log, 0)
	var typing domain.Typing
	r := New(log, transport.NewMemoryBroker(), track, store, sharedTopic, "david", Callbacks{
		OnTyping: func(signal domain.Typing) { typing = signal },
	})

	r.HandleRaw(sharedTopic+"/david", encode(t, wire.WrapTyping(domain.Typing{
		ActorID:  "fredy",
		TargetID: "david",
		Active:   true,
	})))

	req.Equal("fredy", typing.ActorID)
	req.True(typing.Active)
	req.Equal(0, track.Len())
}

func Test_Malformed_Payload_Is_Dropped_Without_Crashing(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	store := mocks.NewMockIMessageLog(ctrl)
	store.EXPECT().Append(gomock.Any()).Return(nil)
	store.EXPECT().AppendStatus(gomock.Any()).Return(nil)

	var delivered int
	r := New(log, transport.NewMemoryBroker(), tracker.New(log, 0), store, sharedTopic, "david", Callbacks{
		OnDelivered: func(domain.Message) { delivered++ },
	})

	r.HandleRaw(sharedTopic, []byte(`{"type":"mess`))
	// The router keeps serving after the bad payload.
	r.HandleRaw(sharedTopic+"/david", encode(t, wire.WrapMessage(inboundMessage())))

	req.Equal(1, delivered)
}
