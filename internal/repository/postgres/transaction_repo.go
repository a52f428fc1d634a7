package postgres

import (
	"context"
	"strconv"

	"github.com/chamahq/chama-backend/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// TransactionRepository implements domain.TransactionRepository using
// PostgreSQL. The ledger is append-only; no update or delete path exists.
type TransactionRepository struct {
	pool *pgxpool.Pool
}

// NewTransactionRepository creates a new TransactionRepository
func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{pool: pool}
}

const transactionColumns = `id, fund_id, user_id, type, amount, idempotency_key, reference_entity_type, reference_entity_id, created_at`

// Append inserts one ledger row
func (r *TransactionRepository) Append(ctx context.Context, txn *domain.Transaction) (*domain.Transaction, error) {
	row := r.pool.QueryRow(ctx, insertTransactionSQL, transactionArgs(txn)...)
	created, err := scanTransaction(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrDuplicateTransaction
		}
		return nil, err
	}
	return created, nil
}

// ListByFund retrieves ledger rows for a fund, newest first
func (r *TransactionRepository) ListByFund(ctx context.Context, fundID uuid.UUID, filter domain.TransactionFilter) ([]*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE fund_id = $1`
	args := []any{fundID}
	if filter.Type != nil {
		args = append(args, *filter.Type)
		query += ` AND type = $` + strconv.Itoa(len(args))
	}
	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		query += ` AND user_id = $` + strconv.Itoa(len(args))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		query += ` AND created_at >= $` + strconv.Itoa(len(args))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		query += ` AND created_at < $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, txn)
	}
	return result, rows.Err()
}

// SumByType sums ledger amounts of one type for a fund
func (r *TransactionRepository) SumByType(ctx context.Context, fundID uuid.UUID, txnType domain.TransactionType) (decimal.Decimal, error) {
	var sum pgtype.Numeric
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(sum(amount), 0) FROM transactions WHERE fund_id = $1 AND type = $2`,
		fundID, txnType).Scan(&sum)
	if err != nil {
		return decimal.Zero, err
	}
	return pgNumericToDecimal(sum), nil
}

// SumByTypeAndUser returns per-user sums for one transaction type
func (r *TransactionRepository) SumByTypeAndUser(ctx context.Context, fundID uuid.UUID, txnType domain.TransactionType) (map[uuid.UUID]decimal.Decimal, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT user_id, sum(amount)
		FROM transactions
		WHERE fund_id = $1 AND type = $2 AND user_id IS NOT NULL
		GROUP BY user_id`,
		fundID, txnType)
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

// Balance recomputes the fund pool from scratch:
// contributions - disbursements + repayments + interest + penalties
func (r *TransactionRepository) Balance(ctx context.Context, fundID uuid.UUID) (decimal.Decimal, error) {
	var balance pgtype.Numeric
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(sum(CASE WHEN type = $2 THEN -amount ELSE amount END), 0)
		FROM transactions
		WHERE fund_id = $1`,
		fundID, domain.TxnDisbursement).Scan(&balance)
	if err != nil {
		return decimal.Zero, err
	}
	return pgNumericToDecimal(balance), nil
}

const insertTransactionSQL = `
	INSERT INTO transactions (id, fund_id, user_id, type, amount, idempotency_key, reference_entity_type, reference_entity_id)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	RETURNING ` + transactionColumns

func transactionArgs(txn *domain.Transaction) []any {
	return []any{
		txn.ID, txn.FundID, txn.UserID, txn.Type, txn.Amount.String(),
		txn.IdempotencyKey, txn.ReferenceEntityType, txn.ReferenceEntityID,
	}
}

// insertTransactionTx appends a ledger row inside an open transaction
func insertTransactionTx(ctx context.Context, tx pgx.Tx, txn *domain.Transaction) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO transactions (id, fund_id, user_id, type, amount, idempotency_key, reference_entity_type, reference_entity_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		transactionArgs(txn)...)
	if isUniqueViolation(err) {
		return domain.ErrDuplicateTransaction
	}
	return err
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var (
		txn    domain.Transaction
		amount pgtype.Numeric
	)
	if err := row.Scan(&txn.ID, &txn.FundID, &txn.UserID, &txn.Type, &amount,
		&txn.IdempotencyKey, &txn.ReferenceEntityType, &txn.ReferenceEntityID, &txn.CreatedAt); err != nil {
		return nil, err
	}
	txn.Amount = pgNumericToDecimal(amount)
	return &txn, nil
}
