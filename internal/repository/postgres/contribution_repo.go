package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/chamahq/chama-backend/internal/domain"
	"github.com/chamahq/chama-backend/internal/util"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ContributionRepository implements domain.ContributionRepository using
// PostgreSQL
type ContributionRepository struct {
	pool *pgxpool.Pool
}

// NewContributionRepository creates a new ContributionRepository
func NewContributionRepository(pool *pgxpool.Pool) *ContributionRepository {
	return &ContributionRepository{pool: pool}
}

const dueColumns = `id, fund_id, user_id, month_year, amount_due, amount_paid, status, due_date, paid_date, missed_at, version, created_at, updated_at`

// CreateDue inserts the due unless one already exists for
// (fundID, userID, monthYear); reports whether a row was created
func (r *ContributionRepository) CreateDue(ctx context.Context, due *domain.ContributionDue) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO contribution_dues (id, fund_id, user_id, month_year, amount_due, amount_paid, status, due_date, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1)
		ON CONFLICT (fund_id, user_id, month_year) DO NOTHING`,
		due.ID, due.FundID, due.UserID, due.MonthYear, due.AmountDue.String(),
		due.AmountPaid.String(), due.Status, due.DueDate)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// GetDueByID retrieves one due
func (r *ContributionRepository) GetDueByID(ctx context.Context, id uuid.UUID) (*domain.ContributionDue, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+dueColumns+` FROM contribution_dues WHERE id = $1`, id)
	due, err := scanDue(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDueNotFound
		}
		return nil, err
	}
	return due, nil
}

// ListByFundMonth retrieves a fund's dues for one month
func (r *ContributionRepository) ListByFundMonth(ctx context.Context, fundID uuid.UUID, monthYear util.MonthYear) ([]*domain.ContributionDue, error) {
	return r.listDues(ctx, `
		SELECT `+dueColumns+` FROM contribution_dues
		WHERE fund_id = $1 AND month_year = $2
		ORDER BY user_id`,
		fundID, monthYear)
}

// ListByUser retrieves one member's dues across months
func (r *ContributionRepository) ListByUser(ctx context.Context, fundID, userID uuid.UUID) ([]*domain.ContributionDue, error) {
	return r.listDues(ctx, `
		SELECT `+dueColumns+` FROM contribution_dues
		WHERE fund_id = $1 AND user_id = $2
		ORDER BY month_year`,
		fundID, userID)
}

// ListOverdueCandidates returns pending/partial dues whose dueDate + grace
// has passed. asOf already has the grace period subtracted by the caller.
func (r *ContributionRepository) ListOverdueCandidates(ctx context.Context, fundID uuid.UUID, asOf time.Time) ([]*domain.ContributionDue, error) {
	return r.listDues(ctx, `
		SELECT `+dueColumns+` FROM contribution_dues
		WHERE fund_id = $1 AND status IN ($2, $3) AND due_date < $4
		ORDER BY due_date`,
		fundID, domain.DuePending, domain.DuePartial, asOf)
}

// UpdateStatus persists a status flip with a version check
func (r *ContributionRepository) UpdateStatus(ctx context.Context, due *domain.ContributionDue) (*domain.ContributionDue, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE contribution_dues
		SET status = $2, missed_at = $3, version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $4
		RETURNING `+dueColumns,
		due.ID, due.Status, due.MissedAt, due.Version)
	updated, err := scanDue(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if _, gerr := r.GetDueByID(ctx, due.ID); gerr != nil {
				return nil, gerr
			}
			return nil, domain.ErrVersionMismatch
		}
		return nil, err
	}
	return updated, nil
}

// RecordPayment persists the updated due, appends the ledger transaction, and
// writes the idempotency record in one database transaction
func (r *ContributionRepository) RecordPayment(ctx context.Context, due *domain.ContributionDue, txn *domain.Transaction, record *domain.IdempotencyRecord) (*domain.ContributionDue, error) {
	var updated *domain.ContributionDue
	err := withTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			UPDATE contribution_dues
			SET amount_paid = $2, status = $3, paid_date = $4, version = version + 1, updated_at = now()
			WHERE id = $1 AND version = $5
			RETURNING `+dueColumns,
			due.ID, due.AmountPaid.String(), due.Status, due.PaidDate, due.Version)
		var scanErr error
		updated, scanErr = scanDue(row)
		if scanErr != nil {
			if errors.Is(scanErr, pgx.ErrNoRows) {
				return domain.ErrVersionMismatch
			}
			return scanErr
		}
		if err := insertTransactionTx(ctx, tx, txn); err != nil {
			return err
		}
		return insertIdempotencyRecord(ctx, tx, record)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// SumUnpaidByUser returns each member's positive remaining due balance
func (r *ContributionRepository) SumUnpaidByUser(ctx context.Context, fundID uuid.UUID) (map[uuid.UUID]decimal.Decimal, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT user_id, sum(amount_due - amount_paid)
		FROM contribution_dues
		WHERE fund_id = $1 AND amount_due > amount_paid
		GROUP BY user_id`,
		fundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[uuid.UUID]decimal.Decimal)
	for rows.Next() {
		var (
			userID uuid.UUID
			sum    pgtype.Numeric
		)
		if err := rows.Scan(&userID, &sum); err != nil {
			return nil, err
		}
		result[userID] = pgNumericToDecimal(sum)
	}
	return result, rows.Err()
}

func (r *ContributionRepository) listDues(ctx context.Context, query string, args ...any) ([]*domain.ContributionDue, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.ContributionDue
	for rows.Next() {
		due, err := scanDue(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, due)
	}
	return result, rows.Err()
}

func scanDue(row pgx.Row) (*domain.ContributionDue, error) {
	var (
		due        domain.ContributionDue
		amountDue  pgtype.Numeric
		amountPaid pgtype.Numeric
	)
	if err := row.Scan(&due.ID, &due.FundID, &due.UserID, &due.MonthYear,
		&amountDue, &amountPaid, &due.Status, &due.DueDate, &due.PaidDate,
		&due.MissedAt, &due.Version, &due.CreatedAt, &due.UpdatedAt); err != nil {
		return nil, err
	}
	due.AmountDue = pgNumericToDecimal(amountDue)
	due.AmountPaid = pgNumericToDecimal(amountPaid)
	return &due, nil
}
