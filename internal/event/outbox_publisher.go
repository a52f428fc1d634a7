package event

import (
	"context"
	"encoding/json"
	"time"

	"github.com/chamahq/chama-backend/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// OutboxPublisher wraps a publisher with the outbox fallback: events are
// emitted after commit, and any emission failure lands the event in the
// outbox table so the worker can retry it later.
type OutboxPublisher struct {
	inner  Publisher
	outbox domain.OutboxRepository
}

// NewOutboxPublisher creates an OutboxPublisher
func NewOutboxPublisher(inner Publisher, outbox domain.OutboxRepository) *OutboxPublisher {
	return &OutboxPublisher{inner: inner, outbox: outbox}
}

// Publish attempts direct delivery and falls back to the outbox. The
// operation that produced the event has already committed, so a failure here
// must never surface to the caller.
func (p *OutboxPublisher) Publish(ctx context.Context, event Event) error {
	err := p.inner.Publish(ctx, event)
	if err == nil {
		return nil
	}

	log.Warn().Err(err).Str("event_type", string(event.Type)).Msg("Event emission failed, enqueueing to outbox")

	payload, marshalErr := json.Marshal(event.Payload)
	if marshalErr != nil {
		payload = json.RawMessage("null")
	}
	enqueueErr := p.outbox.Enqueue(ctx, &domain.OutboxEvent{
		ID:            uuid.New(),
		EventID:       event.ID,
		FundID:        event.FundID,
		EventType:     string(event.Type),
		Payload:       payload,
		OccurredAt:    event.OccurredAt,
		NextAttemptAt: time.Now().UTC(),
	})
	if enqueueErr != nil {
		log.Error().Err(enqueueErr).Str("event_id", event.ID.String()).Msg("Failed to enqueue event to outbox")
	}
	return nil
}
