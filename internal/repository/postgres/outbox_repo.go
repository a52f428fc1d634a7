package postgres

import (
	"context"
	"time"

	"github.com/chamahq/chama-backend/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OutboxRepository implements domain.OutboxRepository using PostgreSQL
type OutboxRepository struct {
	pool *pgxpool.Pool
}

// NewOutboxRepository creates a new OutboxRepository
func NewOutboxRepository(pool *pgxpool.Pool) *OutboxRepository {
	return &OutboxRepository{pool: pool}
}

// Enqueue stores an event whose emission failed
func (r *OutboxRepository) Enqueue(ctx context.Context, event *domain.OutboxEvent) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO outbox_events (id, event_id, fund_id, event_type, payload, occurred_at, attempts, next_attempt_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		event.ID, event.EventID, event.FundID, event.EventType, []byte(event.Payload),
		event.OccurredAt, event.Attempts, event.NextAttemptAt)
	return err
}

// ListDue returns undispatched events whose next attempt time has passed,
// oldest first
func (r *OutboxRepository) ListDue(ctx context.Context, asOf time.Time, limit int) ([]*domain.OutboxEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, event_id, fund_id, event_type, payload, occurred_at, attempts, next_attempt_at, dispatched_at, created_at
		FROM outbox_events
		WHERE dispatched_at IS NULL AND next_attempt_at <= $1
		ORDER BY occurred_at
		LIMIT $2`,
		asOf, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.OutboxEvent
	for rows.Next() {
		var e domain.OutboxEvent
		var payload []byte
		if err := rows.Scan(&e.ID, &e.EventID, &e.FundID, &e.EventType, &payload,
			&e.OccurredAt, &e.Attempts, &e.NextAttemptAt, &e.DispatchedAt, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Payload = payload
		result = append(result, &e)
	}
	return result, rows.Err()
}

// MarkDispatched stamps the event as delivered
func (r *OutboxRepository) MarkDispatched(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE outbox_events SET dispatched_at = $2 WHERE id = $1`,
		id, at)
	return err
}

// RecordFailure bumps the attempt counter and schedules the next retry
func (r *OutboxRepository) RecordFailure(ctx context.Context, id uuid.UUID, attempts int, nextAttempt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE outbox_events SET attempts = $2, next_attempt_at = $3 WHERE id = $1`,
		id, attempts, nextAttempt)
	return err
}
