package transport

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"chat-relay/errors"
)

// RedisPubSub multiplexes topics over Redis channels.
type RedisPubSub struct {
	client *redis.Client
	log    *slog.Logger
	subs   []*redis.PubSub
}

func NewRedisPubSub(addr string, log *slog.Logger) *RedisPubSub {
	client := redis.NewClient(&redis.Options{Addr: addr})
	return &RedisPubSub{client: client, log: log}
}

func (r *RedisPubSub) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := r.client.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("%w: publish to %s: %v", errors.ErrTransport, topic, err)
	}
	return nil
}

func (r *RedisPubSub) Subscribe(ctx context.Context, handler Handler, topics ...string) error {
	sub := r.client.Subscribe(ctx, topics...)
	// Force the SUBSCRIBE round-trip so a dead broker fails here,
	// not silently in the delivery loop.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("%w: subscribe %v: %v", errors.ErrTransport, topics, err)
	}
	r.subs = append(r.subs, sub)

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				handler(msg.Channel, []byte(msg.Payload))
			}
		}
	}()
	return nil
}

func (r *RedisPubSub) Close() error {
	for _, sub := range r.subs {
		if err := sub.Close(); err != nil {
			r.log.Warn("closing subscription", "error", err)
		}
	}
	return r.client.Close()
}
