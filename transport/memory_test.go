package transport

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chat-relay/errors"
)

func Test_Publish_Reaches_Only_The_Subscribed_Topic(t *testing.T) {
	req := require.New(t)
	broker := NewMemoryBroker()

	var hits atomic.Int32
	req.NoError(broker.Subscribe(context.Background(), func(topic string, payload []byte) {
		req.Equal("chat/messages", topic)
		req.Equal("hello", string(payload))
		hits.Add(1)
	}, "chat/messages"))

	req.NoError(broker.Publish(context.Background(), "chat/messages", []byte("hello")))
	req.NoError(broker.Publish(context.Background(), "chat/messages/david", []byte("direct")))

	req.Eventually(func() bool { return hits.Load() == 1 }, time.Second, 5*time.Millisecond)
	req.NoError(broker.Close())
	req.Equal(int32(1), hits.Load())
}

func Test_Cancelled_Subscription_Stops_Receiving(t *testing.T) {
	req := require.New(t)
	broker := NewMemoryBroker()

	ctx, cancel := context.WithCancel(context.Background())
	var hits atomic.Int32
	req.NoError(broker.Subscribe(ctx, func(string, []byte) { hits.Add(1) }, "chat/messages"))

	cancel()
	req.NoError(broker.Publish(context.Background(), "chat/messages", []byte("late")))
	req.NoError(broker.Close())
	req.Equal(int32(0), hits.Load())
}

func Test_Closed_Broker_Rejects_Publishes(t *testing.T) {
	req := require.New(t)
	broker := NewMemoryBroker()
	req.NoError(broker.Close())

	err := broker.Publish(context.Background(), "chat/messages", []byte("x"))
	req.ErrorIs(err, errors.ErrTransport)
}
