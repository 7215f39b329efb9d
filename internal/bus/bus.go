// Package bus relays room events from the session engine to every
// gateway instance. Single-instance deployments use the in-process
// dispatcher; multi-instance deployments relay over NATS subjects.
package bus

import (
	"context"
	"sync"

	"github.com/mkarlin14/quizroom/internal/events"
)

// Handler consumes one room event. Handlers must not block; the
// gateway hands events off to its broadcast channel immediately.
type Handler func(ctx context.Context, ev *events.Envelope)

// Bus publishes room events and fans them in to subscribed handlers.
// Per-room publish order is preserved end to end.
type Bus interface {
	Publish(ctx context.Context, ev *events.Envelope) error
	Subscribe(handler Handler) (unsubscribe func(), err error)
}

// InProcBus dispatches events synchronously inside one process.
type InProcBus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]Handler
}

var _ Bus = (*InProcBus)(nil)

// NewInProcBus creates an empty in-process bus.
func NewInProcBus() *InProcBus {
	return &InProcBus{handlers: make(map[int]Handler)}
}

func (b *InProcBus) Publish(ctx context.Context, ev *events.Envelope) error {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, ev)
	}
	return nil
}

func (b *InProcBus) Subscribe(handler Handler) (func(), error) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = handler
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.handlers, id)
		b.mu.Unlock()
	}, nil
}
