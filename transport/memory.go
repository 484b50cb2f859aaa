package transport

import (
	"context"
	"fmt"
	"sync"

	"chat-relay/errors"
)

// MemoryBroker is an in-process PubSub used by tests and by single-process
// demos. It delivers asynchronously, like a real broker would.
type MemoryBroker struct {
	mu     sync.RWMutex
	subs   map[string][]subscription
	closed bool
	wg     sync.WaitGroup
}

type subscription struct {
	ctx     context.Context
	handler Handler
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[string][]subscription)}
}

func (b *MemoryBroker) Publish(_ context.Context, topic string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return fmt.Errorf("%w: broker closed", errors.ErrTransport)
	}
	for _, sub := range b.subs[topic] {
		if sub.ctx.Err() != nil {
			continue
		}
		// Copy so concurrent subscribers never share the buffer.
		buf := make([]byte, len(payload))
		copy(buf, payload)
		b.wg.Add(1)
		go func(s subscription) {
			defer b.wg.Done()
			s.handler(topic, buf)
		}(sub)
	}
	return nil
}

func (b *MemoryBroker) Subscribe(ctx context.Context, handler Handler, topics ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("%w: broker closed", errors.ErrTransport)
	}
	for _, topic := range topics {
		b.subs[topic] = append(b.subs[topic], subscription{ctx: ctx, handler: handler})
	}
	return nil
}

// Close stops accepting publishes and waits for in-flight deliveries.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.wg.Wait()
	return nil
}
