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

// RepaymentRepository implements domain.RepaymentRepository using PostgreSQL
type RepaymentRepository struct {
	pool *pgxpool.Pool
}

// NewRepaymentRepository creates a new RepaymentRepository
func NewRepaymentRepository(pool *pgxpool.Pool) *RepaymentRepository {
	return &RepaymentRepository{pool: pool}
}

const entryColumns = `id, loan_id, fund_id, month_year, interest_due, principal_due, total_due,
	amount_paid, status, due_date, paid_date, penalty_source_entry_id, version, created_at, updated_at`

// CreateEntry inserts the entry unless one exists for (loanID, monthYear);
// reports whether a row was created
func (r *RepaymentRepository) CreateEntry(ctx context.Context, entry *domain.RepaymentEntry) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO repayment_entries (id, loan_id, fund_id, month_year, interest_due, principal_due,
			total_due, amount_paid, status, due_date, penalty_source_entry_id, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 1)
		ON CONFLICT (loan_id, month_year) DO NOTHING`,
		entry.ID, entry.LoanID, entry.FundID, entry.MonthYear, entry.InterestDue.String(),
		entry.PrincipalDue.String(), entry.TotalDue.String(), entry.AmountPaid.String(),
		entry.Status, entry.DueDate, entry.PenaltySourceEntryID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// GetEntryByID retrieves one repayment entry
func (r *RepaymentRepository) GetEntryByID(ctx context.Context, id uuid.UUID) (*domain.RepaymentEntry, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+entryColumns+` FROM repayment_entries WHERE id = $1`, id)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrEntryNotFound
		}
		return nil, err
	}
	return entry, nil
}

// GetByLoanMonth retrieves the entry for one loan and month
func (r *RepaymentRepository) GetByLoanMonth(ctx context.Context, loanID uuid.UUID, monthYear util.MonthYear) (*domain.RepaymentEntry, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+entryColumns+` FROM repayment_entries WHERE loan_id = $1 AND month_year = $2`,
		loanID, monthYear)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrEntryNotFound
		}
		return nil, err
	}
	return entry, nil
}

// ListByLoan returns a loan's repayment schedule in month order
func (r *RepaymentRepository) ListByLoan(ctx context.Context, loanID uuid.UUID) ([]*domain.RepaymentEntry, error) {
	return r.listEntries(ctx, `
		SELECT `+entryColumns+` FROM repayment_entries WHERE loan_id = $1 ORDER BY month_year`,
		loanID)
}

// ListOverdue returns overdue, not fully paid entries for the fund
func (r *RepaymentRepository) ListOverdue(ctx context.Context, fundID uuid.UUID) ([]*domain.RepaymentEntry, error) {
	return r.listEntries(ctx, `
		SELECT `+entryColumns+` FROM repayment_entries
		WHERE fund_id = $1 AND status = $2 AND amount_paid < total_due
		ORDER BY due_date`,
		fundID, domain.RepaymentOverdue)
}

// ListOverdueCandidates returns pending/partial entries past their due date
func (r *RepaymentRepository) ListOverdueCandidates(ctx context.Context, fundID uuid.UUID, asOf time.Time) ([]*domain.RepaymentEntry, error) {
	return r.listEntries(ctx, `
		SELECT `+entryColumns+` FROM repayment_entries
		WHERE fund_id = $1 AND status IN ($2, $3) AND due_date < $4
		ORDER BY due_date`,
		fundID, domain.RepaymentPending, domain.RepaymentPartial, asOf)
}

// UpdateEntry persists mutable columns with an optimistic version check
func (r *RepaymentRepository) UpdateEntry(ctx context.Context, entry *domain.RepaymentEntry) (*domain.RepaymentEntry, error) {
	row := r.pool.QueryRow(ctx, updateEntrySQL, updateEntryArgs(entry)...)
	updated, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if _, gerr := r.GetEntryByID(ctx, entry.ID); gerr != nil {
				return nil, gerr
			}
			return nil, domain.ErrVersionMismatch
		}
		return nil, err
	}
	return updated, nil
}

// RecordPayment persists the entry and loan updates, appends the ledger
// transactions, and writes the idempotency record in one database
// transaction. Both updates carry optimistic version checks.
func (r *RepaymentRepository) RecordPayment(ctx context.Context, entry *domain.RepaymentEntry, loan *domain.Loan, txns []*domain.Transaction, record *domain.IdempotencyRecord) (*domain.RepaymentEntry, error) {
	var updated *domain.RepaymentEntry
	err := withTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, updateEntrySQL, updateEntryArgs(entry)...)
		var scanErr error
		updated, scanErr = scanEntry(row)
		if scanErr != nil {
			if errors.Is(scanErr, pgx.ErrNoRows) {
				return domain.ErrVersionMismatch
			}
			return scanErr
		}

		loanRow := tx.QueryRow(ctx, updateLoanSQL, updateLoanArgs(loan)...)
		if _, scanErr := scanLoan(loanRow); scanErr != nil {
			if errors.Is(scanErr, pgx.ErrNoRows) {
				return domain.ErrVersionMismatch
			}
			return scanErr
		}

		for _, txn := range txns {
			if err := insertTransactionTx(ctx, tx, txn); err != nil {
				return err
			}
		}
		return insertIdempotencyRecord(ctx, tx, record)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// HasPenaltyFrom reports whether a penalty sourced from the given overdue
// entry was already carried into a later entry
func (r *RepaymentRepository) HasPenaltyFrom(ctx context.Context, sourceEntryID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM repayment_entries WHERE penalty_source_entry_id = $1)`,
		sourceEntryID).Scan(&exists)
	return exists, err
}

// SumUnpaidInterestByUser returns each borrower's uncovered interest across
// entries with positive remaining balances. Payments allocate interest-first,
// so the uncovered interest is interest_due - amount_paid floored at zero.
func (r *RepaymentRepository) SumUnpaidInterestByUser(ctx context.Context, fundID uuid.UUID) (map[uuid.UUID]decimal.Decimal, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT l.borrower_id, sum(GREATEST(e.interest_due - e.amount_paid, 0))
		FROM repayment_entries e
		JOIN loans l ON l.id = e.loan_id
		WHERE e.fund_id = $1 AND e.amount_paid < e.total_due
		GROUP BY l.borrower_id`,
		fundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[uuid.UUID]decimal.Decimal)
	for rows.Next() {
		var (
			borrowerID uuid.UUID
			sum        pgtype.Numeric
		)
		if err := rows.Scan(&borrowerID, &sum); err != nil {
			return nil, err
		}
		result[borrowerID] = pgNumericToDecimal(sum)
	}
	return result, rows.Err()
}

func (r *RepaymentRepository) listEntries(ctx context.Context, query string, args ...any) ([]*domain.RepaymentEntry, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.RepaymentEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

const updateEntrySQL = `
	UPDATE repayment_entries
	SET total_due = $2, amount_paid = $3, status = $4, paid_date = $5,
	    penalty_source_entry_id = $6, version = version + 1, updated_at = now()
	WHERE id = $1 AND version = $7
	RETURNING ` + entryColumns

func updateEntryArgs(entry *domain.RepaymentEntry) []any {
	return []any{
		entry.ID, entry.TotalDue.String(), entry.AmountPaid.String(), entry.Status,
		entry.PaidDate, entry.PenaltySourceEntryID, entry.Version,
	}
}

func scanEntry(row pgx.Row) (*domain.RepaymentEntry, error) {
	var (
		entry        domain.RepaymentEntry
		interestDue  pgtype.Numeric
		principalDue pgtype.Numeric
		totalDue     pgtype.Numeric
		amountPaid   pgtype.Numeric
	)
	if err := row.Scan(&entry.ID, &entry.LoanID, &entry.FundID, &entry.MonthYear,
		&interestDue, &principalDue, &totalDue, &amountPaid, &entry.Status,
		&entry.DueDate, &entry.PaidDate, &entry.PenaltySourceEntryID,
		&entry.Version, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
		return nil, err
	}
	entry.InterestDue = pgNumericToDecimal(interestDue)
	entry.PrincipalDue = pgNumericToDecimal(principalDue)
	entry.TotalDue = pgNumericToDecimal(totalDue)
	entry.AmountPaid = pgNumericToDecimal(amountPaid)
	return &entry, nil
}
