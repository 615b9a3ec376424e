package events

import (
	"context"
	"sync"

	"studyhall/domain/events"
	"studyhall/domain/interfaces"

	log "github.com/sirupsen/logrus"
)

// Handler processes one event. Handler errors are logged and never stop
// delivery to other handlers.
type Handler func(ctx context.Context, event events.Event) error

// Bus is the in-process event bus. Events fan out synchronously to local
// subscribers, then forward to the external publisher (NATS when
// configured, noop otherwise) for other shards and services.
type Bus struct {
	mu       sync.RWMutex
	handlers map[events.EventType][]Handler
	external interfaces.EventPublisher
}

// NewBus creates a bus forwarding to the given external publisher
func NewBus(external interfaces.EventPublisher) *Bus {
	return &Bus{
		handlers: make(map[events.EventType][]Handler),
		external: external,
	}
}

// Subscribe registers a handler for an event type
func (b *Bus) Subscribe(eventType events.EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Publish delivers the event to local subscribers and the external publisher
func (b *Bus) Publish(event events.Event) error {
	b.mu.RLock()
	handlers := b.handlers[event.Type()]
	b.mu.RUnlock()

	ctx := context.Background()
	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			log.WithFields(log.Fields{
				"eventType": event.Type(),
				"error":     err,
			}).Error("Event handler failed")
		}
	}

	if b.external != nil {
		return b.external.Publish(event)
	}
	return nil
}
