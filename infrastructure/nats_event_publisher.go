package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"studyhall/domain/events"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const domainEventStream = "schedule_events"

// eventEnvelope wraps every published event with tracing metadata.
type eventEnvelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	Timestamp     time.Time       `json:"timestamp"`
	SourceService string          `json:"source_service"`
	ShardID       int             `json:"shard_id"`
	Payload       json.RawMessage `json:"payload"`
}

// NATSEventPublisher publishes domain events to a JetStream stream so
// other shards and services can observe schedule activity.
type NATSEventPublisher struct {
	natsClient *NATSClient
	shardID    int
}

// NewNATSEventPublisher creates a new NATS event publisher
func NewNATSEventPublisher(natsClient *NATSClient, shardID int) *NATSEventPublisher {
	return &NATSEventPublisher{
		natsClient: natsClient,
		shardID:    shardID,
	}
}

// Publish publishes an event to NATS under schedule.<event_type>
func (p *NATSEventPublisher) Publish(event events.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	envelope := eventEnvelope{
		EventID:       uuid.New().String(),
		EventType:     string(event.Type()),
		Timestamp:     time.Now().UTC(),
		SourceService: "studyhall",
		ShardID:       p.shardID,
		Payload:       payload,
	}

	envelopeData, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal event envelope: %w", err)
	}

	subject := fmt.Sprintf("schedule.%s", event.Type())
	if err := p.natsClient.Publish(context.Background(), subject, envelopeData); err != nil {
		// A missing stream response is not worth failing the caller over.
		if strings.Contains(err.Error(), "no response from stream") {
			return nil
		}
		return fmt.Errorf("failed to publish event to NATS: %w", err)
	}

	log.WithFields(log.Fields{
		"eventType": event.Type(),
		"eventId":   envelope.EventID,
		"subject":   subject,
	}).Debug("Published event to NATS")

	return nil
}

// EnsureDomainEventStream ensures the schedule_events stream exists
func (p *NATSEventPublisher) EnsureDomainEventStream() error {
	return p.natsClient.EnsureStream(domainEventStream, []string{"schedule.*"})
}
