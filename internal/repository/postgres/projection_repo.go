package postgres

import (
	"context"
	"errors"

	"github.com/chamahq/chama-backend/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// FundProjectionRepository implements domain.FundProjectionRepository using
// PostgreSQL
type FundProjectionRepository struct {
	pool *pgxpool.Pool
}

// NewFundProjectionRepository creates a new FundProjectionRepository
func NewFundProjectionRepository(pool *pgxpool.Pool) *FundProjectionRepository {
	return &FundProjectionRepository{pool: pool}
}

// Upsert replaces the fund's projection row
func (r *FundProjectionRepository) Upsert(ctx context.Context, p *domain.FundProjection) error {
	var maxLoan *string
	if p.MaxLoanPerMember != nil {
		s := p.MaxLoanPerMember.String()
		maxLoan = &s
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO fund_projections (fund_id, monthly_interest_rate, minimum_principal_per_repayment,
			max_loan_per_member, max_concurrent_loans, loan_approval_policy, penalty_type,
			penalty_value, is_active, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (fund_id) DO UPDATE SET
			monthly_interest_rate = EXCLUDED.monthly_interest_rate,
			minimum_principal_per_repayment = EXCLUDED.minimum_principal_per_repayment,
			max_loan_per_member = EXCLUDED.max_loan_per_member,
			max_concurrent_loans = EXCLUDED.max_concurrent_loans,
			loan_approval_policy = EXCLUDED.loan_approval_policy,
			penalty_type = EXCLUDED.penalty_type,
			penalty_value = EXCLUDED.penalty_value,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at`,
		p.FundID, p.MonthlyInterestRate.String(), p.MinimumPrincipalPerRepayment.String(),
		maxLoan, p.MaxConcurrentLoans, p.LoanApprovalPolicy, p.PenaltyType,
		p.PenaltyValue.String(), p.IsActive, p.UpdatedAt)
	return err
}

// GetByFundID retrieves the fund's projection
func (r *FundProjectionRepository) GetByFundID(ctx context.Context, fundID uuid.UUID) (*domain.FundProjection, error) {
	var (
		p        domain.FundProjection
		rate     pgtype.Numeric
		minPrinc pgtype.Numeric
		maxLoan  pgtype.Numeric
		penalty  pgtype.Numeric
	)
	err := r.pool.QueryRow(ctx, `
		SELECT fund_id, monthly_interest_rate, minimum_principal_per_repayment,
			max_loan_per_member, max_concurrent_loans, loan_approval_policy, penalty_type,
			penalty_value, is_active, updated_at
		FROM fund_projections
		WHERE fund_id = $1`,
		fundID).
		Scan(&p.FundID, &rate, &minPrinc, &maxLoan, &p.MaxConcurrentLoans,
			&p.LoanApprovalPolicy, &p.PenaltyType, &penalty, &p.IsActive, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrFundNotFound
		}
		return nil, err
	}
	p.MonthlyInterestRate = pgNumericToDecimal(rate)
	p.MinimumPrincipalPerRepayment = pgNumericToDecimal(minPrinc)
	if maxLoan.Valid {
		d := pgNumericToDecimal(maxLoan)
		p.MaxLoanPerMember = &d
	}
	p.PenaltyValue = pgNumericToDecimal(penalty)
	return &p, nil
}
