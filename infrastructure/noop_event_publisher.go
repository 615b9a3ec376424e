package infrastructure

import (
	"studyhall/domain/events"
)

// NoopEventPublisher discards events. Used when NATS is not configured,
// keeping the bus wiring identical either way.
type NoopEventPublisher struct{}

// NewNoopEventPublisher creates a new noop event publisher
func NewNoopEventPublisher() *NoopEventPublisher {
	return &NoopEventPublisher{}
}

// Publish discards the event
func (p *NoopEventPublisher) Publish(event events.Event) error {
	return nil
}
