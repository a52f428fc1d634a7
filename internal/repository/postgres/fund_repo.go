package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/chamahq/chama-backend/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// FundRepository implements domain.FundRepository using PostgreSQL
type FundRepository struct {
	pool *pgxpool.Pool
}

// NewFundRepository creates a new FundRepository
func NewFundRepository(pool *pgxpool.Pool) *FundRepository {
	return &FundRepository{pool: pool}
}

const fundColumns = `id, name, description, currency, config, state, version, created_at, updated_at`

// Create creates a new fund
func (r *FundRepository) Create(ctx context.Context, fund *domain.Fund) (*domain.Fund, error) {
	config, err := json.Marshal(fund.Config)
	if err != nil {
		return nil, err
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO funds (id, name, description, currency, config, state, version)
		VALUES ($1, $2, $3, $4, $5, $6, 1)
		RETURNING `+fundColumns,
		fund.ID, fund.Name, fund.Description, fund.Currency, config, fund.State)
	return scanFund(row)
}

// GetByID retrieves a fund by its ID
func (r *FundRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Fund, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+fundColumns+` FROM funds WHERE id = $1`, id)
	fund, err := scanFund(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrFundNotFound
		}
		return nil, err
	}
	return fund, nil
}

// Update persists mutable columns with an optimistic version check
func (r *FundRepository) Update(ctx context.Context, fund *domain.Fund) (*domain.Fund, error) {
	config, err := json.Marshal(fund.Config)
	if err != nil {
		return nil, err
	}
	row := r.pool.QueryRow(ctx, `
		UPDATE funds
		SET name = $2, description = $3, config = $4, state = $5,
		    version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $6
		RETURNING `+fundColumns,
		fund.ID, fund.Name, fund.Description, config, fund.State, fund.Version)
	updated, err := scanFund(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Distinguish a stale version from a missing row
			if _, gerr := r.GetByID(ctx, fund.ID); gerr != nil {
				return nil, gerr
			}
			return nil, domain.ErrVersionMismatch
		}
		return nil, err
	}
	return updated, nil
}

// AssignRole creates a role assignment for a user within a fund
func (r *FundRepository) AssignRole(ctx context.Context, assignment *domain.FundRoleAssignment) (*domain.FundRoleAssignment, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO fund_role_assignments (id, fund_id, user_id, role)
		VALUES ($1, $2, $3, $4)
		RETURNING id, fund_id, user_id, role, created_at, updated_at`,
		assignment.ID, assignment.FundID, assignment.UserID, assignment.Role)
	created, err := scanRoleAssignment(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrDuplicateRole
		}
		return nil, err
	}
	return created, nil
}

// UpdateRole changes a user's role within a fund
func (r *FundRepository) UpdateRole(ctx context.Context, fundID, userID uuid.UUID, role domain.Role) (*domain.FundRoleAssignment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE fund_role_assignments
		SET role = $3, updated_at = now()
		WHERE fund_id = $1 AND user_id = $2
		RETURNING id, fund_id, user_id, role, created_at, updated_at`,
		fundID, userID, role)
	updated, err := scanRoleAssignment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrMemberNotFound
		}
		return nil, err
	}
	return updated, nil
}

// RemoveRole deletes a user's role assignment
func (r *FundRepository) RemoveRole(ctx context.Context, fundID, userID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM fund_role_assignments WHERE fund_id = $1 AND user_id = $2`,
		fundID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrMemberNotFound
	}
	return nil
}

// GetRole retrieves a user's role assignment within a fund
func (r *FundRepository) GetRole(ctx context.Context, fundID, userID uuid.UUID) (*domain.FundRoleAssignment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, fund_id, user_id, role, created_at, updated_at
		FROM fund_role_assignments
		WHERE fund_id = $1 AND user_id = $2`,
		fundID, userID)
	assignment, err := scanRoleAssignment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrMemberNotFound
		}
		return nil, err
	}
	return assignment, nil
}

// ListRoles retrieves all role assignments for a fund
func (r *FundRepository) ListRoles(ctx context.Context, fundID uuid.UUID) ([]*domain.FundRoleAssignment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, fund_id, user_id, role, created_at, updated_at
		FROM fund_role_assignments
		WHERE fund_id = $1
		ORDER BY created_at`,
		fundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.FundRoleAssignment
	for rows.Next() {
		assignment, err := scanRoleAssignment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, assignment)
	}
	return result, rows.Err()
}

// CountAdmins counts the fund's admin role assignments
func (r *FundRepository) CountAdmins(ctx context.Context, fundID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM fund_role_assignments WHERE fund_id = $1 AND role = $2`,
		fundID, domain.RoleAdmin).Scan(&count)
	return count, err
}

// CreateMemberPlan creates a member's contribution plan
func (r *FundRepository) CreateMemberPlan(ctx context.Context, plan *domain.MemberContributionPlan) (*domain.MemberContributionPlan, error) {
	amount, err := decimalToPgNumeric(plan.MonthlyContributionAmount)
	if err != nil {
		return nil, err
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO member_contribution_plans (id, fund_id, user_id, monthly_contribution_amount, join_date, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, fund_id, user_id, monthly_contribution_amount, join_date, is_active, created_at, updated_at`,
		plan.ID, plan.FundID, plan.UserID, amount, plan.JoinDate, plan.IsActive)
	created, err := scanMemberPlan(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrDuplicateMemberPlan
		}
		return nil, err
	}
	return created, nil
}

// GetMemberPlan retrieves a member's contribution plan
func (r *FundRepository) GetMemberPlan(ctx context.Context, fundID, userID uuid.UUID) (*domain.MemberContributionPlan, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, fund_id, user_id, monthly_contribution_amount, join_date, is_active, created_at, updated_at
		FROM member_contribution_plans
		WHERE fund_id = $1 AND user_id = $2`,
		fundID, userID)
	plan, err := scanMemberPlan(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrMemberNotFound
		}
		return nil, err
	}
	return plan, nil
}

// ListMemberPlans retrieves a fund's contribution plans
func (r *FundRepository) ListMemberPlans(ctx context.Context, fundID uuid.UUID, activeOnly bool) ([]*domain.MemberContributionPlan, error) {
	query := `
		SELECT id, fund_id, user_id, monthly_contribution_amount, join_date, is_active, created_at, updated_at
		FROM member_contribution_plans
		WHERE fund_id = $1`
	if activeOnly {
		query += ` AND is_active`
	}
	query += ` ORDER BY join_date`

	rows, err := r.pool.Query(ctx, query, fundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.MemberContributionPlan
	for rows.Next() {
		plan, err := scanMemberPlan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, plan)
	}
	return result, rows.Err()
}

// DeactivateMemberPlan marks a member's plan inactive
func (r *FundRepository) DeactivateMemberPlan(ctx context.Context, fundID, userID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE member_contribution_plans
		SET is_active = false, updated_at = now()
		WHERE fund_id = $1 AND user_id = $2`,
		fundID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrMemberNotFound
	}
	return nil
}

// ListFundIDsByStates retrieves the IDs of funds in any of the given states
func (r *FundRepository) ListFundIDsByStates(ctx context.Context, states ...domain.FundState) ([]uuid.UUID, error) {
	names := make([]string, len(states))
	for i, state := range states {
		names[i] = string(state)
	}
	rows, err := r.pool.Query(ctx, `SELECT id FROM funds WHERE state = ANY($1)`, names)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Scan helpers

func scanFund(row pgx.Row) (*domain.Fund, error) {
	var (
		fund      domain.Fund
		config    []byte
		createdAt time.Time
		updatedAt time.Time
	)
	if err := row.Scan(&fund.ID, &fund.Name, &fund.Description, &fund.Currency,
		&config, &fund.State, &fund.Version, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(config, &fund.Config); err != nil {
		return nil, err
	}
	fund.CreatedAt = createdAt
	fund.UpdatedAt = updatedAt
	return &fund, nil
}

func scanRoleAssignment(row pgx.Row) (*domain.FundRoleAssignment, error) {
	var a domain.FundRoleAssignment
	if err := row.Scan(&a.ID, &a.FundID, &a.UserID, &a.Role, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func scanMemberPlan(row pgx.Row) (*domain.MemberContributionPlan, error) {
	var (
		p      domain.MemberContributionPlan
		amount pgtype.Numeric
	)
	if err := row.Scan(&p.ID, &p.FundID, &p.UserID, &amount, &p.JoinDate, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.MonthlyContributionAmount = pgNumericToDecimal(amount)
	return &p, nil
}
