package postgres

import (
	"context"
	"errors"

	"github.com/chamahq/chama-backend/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// IdempotencyRepository implements domain.IdempotencyRepository using
// PostgreSQL. Records are written by the atomic payment methods of the
// owning repositories; this one only reads.
type IdempotencyRepository struct {
	pool *pgxpool.Pool
}

// NewIdempotencyRepository creates a new IdempotencyRepository
func NewIdempotencyRepository(pool *pgxpool.Pool) *IdempotencyRepository {
	return &IdempotencyRepository{pool: pool}
}

// Get retrieves a record by its unique key, returning (nil, nil) when absent
func (r *IdempotencyRepository) Get(ctx context.Context, fundID uuid.UUID, endpoint, key string) (*domain.IdempotencyRecord, error) {
	var record domain.IdempotencyRecord
	err := r.pool.QueryRow(ctx, `
		SELECT id, fund_id, endpoint, idempotency_key, request_hash, result_ref, created_at
		FROM idempotency_records
		WHERE fund_id = $1 AND endpoint = $2 AND idempotency_key = $3`,
		fundID, endpoint, key).
		Scan(&record.ID, &record.FundID, &record.Endpoint, &record.IdempotencyKey,
			&record.RequestHash, &record.ResultRef, &record.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// insertIdempotencyRecord writes a record inside an open transaction
func insertIdempotencyRecord(ctx context.Context, tx pgx.Tx, record *domain.IdempotencyRecord) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO idempotency_records (id, fund_id, endpoint, idempotency_key, request_hash, result_ref)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		record.ID, record.FundID, record.Endpoint, record.IdempotencyKey,
		record.RequestHash, record.ResultRef)
	if isUniqueViolation(err) {
		return domain.ErrConflict
	}
	return err
}
