// Package transport abstracts the pub/sub broker. The broker is an external
// collaborator: a reliable at-least-once topic multiplexer. Delivery order
// across topics is not guaranteed and retries are the broker's concern.
package transport

import "context"

// Handler receives one raw payload delivered on a topic. Handlers run on the
// subscriber goroutine and may be invoked concurrently with the caller's own
// publishes.
type Handler func(topic string, payload []byte)

// PubSub is the broker contract used by the router.
type PubSub interface {
	// Publish hands the payload to the broker for the given topic.
	Publish(ctx context.Context, topic string, payload []byte) error
	// Subscribe registers the handler for the given topics and starts the
	// delivery loop. The loop stops when ctx is cancelled.
	Subscribe(ctx context.Context, handler Handler, topics ...string) error
	// Close tears the broker connection down. In-flight deliveries are not
	// drained.
	Close() error
}
