package postgres

import (
	"context"
	"errors"

	"github.com/chamahq/chama-backend/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// LoanRepository implements domain.LoanRepository using PostgreSQL
type LoanRepository struct {
	pool *pgxpool.Pool
}

// NewLoanRepository creates a new LoanRepository
func NewLoanRepository(pool *pgxpool.Pool) *LoanRepository {
	return &LoanRepository{pool: pool}
}

const loanColumns = `id, fund_id, borrower_id, principal_amount, outstanding_principal,
	requested_start_month, purpose, status, monthly_interest_rate, scheduled_installment,
	minimum_principal, approved_by, rejection_reason, approval_date, disbursement_date,
	closed_date, version, created_at, updated_at`

// Create creates a new loan in PendingApproval
func (r *LoanRepository) Create(ctx context.Context, loan *domain.Loan) (*domain.Loan, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO loans (id, fund_id, borrower_id, principal_amount, outstanding_principal,
			requested_start_month, purpose, status, monthly_interest_rate, scheduled_installment,
			minimum_principal, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 1)
		RETURNING `+loanColumns,
		loan.ID, loan.FundID, loan.BorrowerID, loan.PrincipalAmount.String(),
		loan.OutstandingPrincipal.String(), loan.RequestedStartMonth, loan.Purpose, loan.Status,
		loan.MonthlyInterestRate.String(), loan.ScheduledInstallment.String(),
		loan.MinimumPrincipal.String())
	return scanLoan(row)
}

// GetByID retrieves a loan by its ID
func (r *LoanRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = $1`, id)
	loan, err := scanLoan(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrLoanNotFound
		}
		return nil, err
	}
	return loan, nil
}

// Update persists mutable columns with an optimistic version check
func (r *LoanRepository) Update(ctx context.Context, loan *domain.Loan) (*domain.Loan, error) {
	row := r.pool.QueryRow(ctx, updateLoanSQL, updateLoanArgs(loan)...)
	updated, err := scanLoan(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if _, gerr := r.GetByID(ctx, loan.ID); gerr != nil {
				return nil, gerr
			}
			return nil, domain.ErrVersionMismatch
		}
		return nil, err
	}
	return updated, nil
}

// Approve persists the approved loan and appends the disbursement ledger
// transaction in one database transaction
func (r *LoanRepository) Approve(ctx context.Context, loan *domain.Loan, disbursement *domain.Transaction) (*domain.Loan, error) {
	var approved *domain.Loan
	err := withTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, updateLoanSQL, updateLoanArgs(loan)...)
		var scanErr error
		approved, scanErr = scanLoan(row)
		if scanErr != nil {
			if errors.Is(scanErr, pgx.ErrNoRows) {
				return domain.ErrVersionMismatch
			}
			return scanErr
		}
		return insertTransactionTx(ctx, tx, disbursement)
	})
	if err != nil {
		return nil, err
	}
	return approved, nil
}

// ListByFund retrieves all loans for a fund, newest first
func (r *LoanRepository) ListByFund(ctx context.Context, fundID uuid.UUID) ([]*domain.Loan, error) {
	return r.listLoans(ctx, `
		SELECT `+loanColumns+` FROM loans WHERE fund_id = $1 ORDER BY created_at DESC`,
		fundID)
}

// CountNonTerminalByBorrower counts the borrower's open loans within a fund
func (r *LoanRepository) CountNonTerminalByBorrower(ctx context.Context, fundID, borrowerID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM loans
		WHERE fund_id = $1 AND borrower_id = $2 AND status = ANY($3)`,
		fundID, borrowerID, nonTerminalStatuses()).Scan(&count)
	return count, err
}

// SumOutstandingByBorrower returns each borrower's total outstanding
// principal across non-terminal loans
func (r *LoanRepository) SumOutstandingByBorrower(ctx context.Context, fundID uuid.UUID) (map[uuid.UUID]decimal.Decimal, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT borrower_id, sum(outstanding_principal)
		FROM loans
		WHERE fund_id = $1 AND status = ANY($2)
		GROUP BY borrower_id`,
		fundID, nonTerminalStatuses())
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

// ListActiveByFund retrieves a fund's active loans
func (r *LoanRepository) ListActiveByFund(ctx context.Context, fundID uuid.UUID) ([]*domain.Loan, error) {
	return r.listLoans(ctx, `
		SELECT `+loanColumns+` FROM loans WHERE fund_id = $1 AND status = $2 ORDER BY created_at`,
		fundID, domain.LoanActive)
}

func (r *LoanRepository) listLoans(ctx context.Context, query string, args ...any) ([]*domain.Loan, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, loan)
	}
	return result, rows.Err()
}

const updateLoanSQL = `
	UPDATE loans
	SET outstanding_principal = $2, status = $3, monthly_interest_rate = $4,
	    scheduled_installment = $5, minimum_principal = $6, approved_by = $7,
	    rejection_reason = $8, approval_date = $9, disbursement_date = $10,
	    closed_date = $11, version = version + 1, updated_at = now()
	WHERE id = $1 AND version = $12
	RETURNING ` + loanColumns

func updateLoanArgs(loan *domain.Loan) []any {
	return []any{
		loan.ID, loan.OutstandingPrincipal.String(), loan.Status,
		loan.MonthlyInterestRate.String(), loan.ScheduledInstallment.String(),
		loan.MinimumPrincipal.String(), loan.ApprovedBy, loan.RejectionReason,
		loan.ApprovalDate, loan.DisbursementDate, loan.ClosedDate, loan.Version,
	}
}

func nonTerminalStatuses() []string {
	statuses := make([]string, len(domain.NonTerminalLoanStatuses))
	for i, s := range domain.NonTerminalLoanStatuses {
		statuses[i] = string(s)
	}
	return statuses
}

func scanLoan(row pgx.Row) (*domain.Loan, error) {
	var (
		loan        domain.Loan
		principal   pgtype.Numeric
		outstanding pgtype.Numeric
		rate        pgtype.Numeric
		installment pgtype.Numeric
		minPrinc    pgtype.Numeric
	)
	if err := row.Scan(&loan.ID, &loan.FundID, &loan.BorrowerID, &principal, &outstanding,
		&loan.RequestedStartMonth, &loan.Purpose, &loan.Status, &rate, &installment,
		&minPrinc, &loan.ApprovedBy, &loan.RejectionReason, &loan.ApprovalDate,
		&loan.DisbursementDate, &loan.ClosedDate, &loan.Version, &loan.CreatedAt,
		&loan.UpdatedAt); err != nil {
		return nil, err
	}
	loan.PrincipalAmount = pgNumericToDecimal(principal)
	loan.OutstandingPrincipal = pgNumericToDecimal(outstanding)
	loan.MonthlyInterestRate = pgNumericToDecimal(rate)
	loan.ScheduledInstallment = pgNumericToDecimal(installment)
	loan.MinimumPrincipal = pgNumericToDecimal(minPrinc)
	return &loan, nil
}
