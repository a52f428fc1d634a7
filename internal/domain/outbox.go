package domain

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// OutboxEvent is a domain event whose emission failed after commit. The
// outbox worker retries dispatch until it succeeds, giving at-least-once
// delivery across broker unavailability.
type OutboxEvent struct {
	ID            uuid.UUID       `json:"id"`
	EventID       uuid.UUID       `json:"eventId"`
	FundID        uuid.UUID       `json:"fundId"`
	EventType     string          `json:"eventType"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurredAt"`
	Attempts      int             `json:"attempts"`
	NextAttemptAt time.Time       `json:"nextAttemptAt"`
	DispatchedAt  *time.Time      `json:"dispatchedAt,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// OutboxRepository persists undelivered events
type OutboxRepository interface {
	Enqueue(ctx context.Context, event *OutboxEvent) error
	// ListDue returns undispatched events whose next attempt time has passed
	ListDue(ctx context.Context, asOf time.Time, limit int) ([]*OutboxEvent, error)
	MarkDispatched(ctx context.Context, id uuid.UUID, at time.Time) error
	RecordFailure(ctx context.Context, id uuid.UUID, attempts int, nextAttempt time.Time) error
}

// JobLocker serialises periodic jobs per fund: at most one instance of a
// given job runs for a given fund at a time
type JobLocker interface {
	// WithLock runs fn under an advisory lock keyed (jobName, fundID). When
	// the lock is held elsewhere it returns false without running fn.
	WithLock(ctx context.Context, jobName string, fundID uuid.UUID, fn func(context.Context) error) (bool, error)
}
