package postgres

import (
	"context"
	"hash/fnv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AdvisoryJobLocker implements domain.JobLocker with pg_try_advisory_xact_lock,
// serialising each (job, fund) pair across all running instances
type AdvisoryJobLocker struct {
	pool *pgxpool.Pool
}

// NewAdvisoryJobLocker creates a new AdvisoryJobLocker
func NewAdvisoryJobLocker(pool *pgxpool.Pool) *AdvisoryJobLocker {
	return &AdvisoryJobLocker{pool: pool}
}

// WithLock runs fn inside a transaction holding the advisory lock for
// (jobName, fundID). Returns false without running fn when the lock is held
// by another session; the lock releases with the transaction.
func (l *AdvisoryJobLocker) WithLock(ctx context.Context, jobName string, fundID uuid.UUID, fn func(context.Context) error) (bool, error) {
	acquired := false
	err := withTx(ctx, l.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `SELECT pg_try_advisory_xact_lock($1)`,
			lockKey(jobName, fundID)).Scan(&acquired); err != nil {
			return err
		}
		if !acquired {
			return nil
		}
		return fn(ctx)
	})
	if err != nil {
		return acquired, err
	}
	return acquired, nil
}

// lockKey folds the job name and fund id into the bigint keyspace of
// advisory locks
func lockKey(jobName string, fundID uuid.UUID) int64 {
	h := fnv.New64a()
	h.Write([]byte(jobName))
	h.Write([]byte{0})
	h.Write(fundID[:])
	return int64(h.Sum64())
}
