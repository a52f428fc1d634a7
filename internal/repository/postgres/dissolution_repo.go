package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/chamahq/chama-backend/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DissolutionRepository implements domain.DissolutionRepository using
// PostgreSQL. Line items are stored as a JSONB document alongside the
// settlement head row; they are always read and written as a whole.
type DissolutionRepository struct {
	pool *pgxpool.Pool
}

// NewDissolutionRepository creates a new DissolutionRepository
func NewDissolutionRepository(pool *pgxpool.Pool) *DissolutionRepository {
	return &DissolutionRepository{pool: pool}
}

const settlementColumns = `id, fund_id, status, total_contributions_collected, total_interest_pool,
	settlement_date, line_items, created_at, updated_at`

// Upsert replaces the fund's settlement and its line items. A confirmed
// settlement is never replaced.
func (r *DissolutionRepository) Upsert(ctx context.Context, settlement *domain.DissolutionSettlement) (*domain.DissolutionSettlement, error) {
	items, err := json.Marshal(settlement.LineItems)
	if err != nil {
		return nil, err
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO dissolution_settlements (id, fund_id, status, total_contributions_collected,
			total_interest_pool, line_items)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (fund_id) DO UPDATE SET
			status = EXCLUDED.status,
			total_contributions_collected = EXCLUDED.total_contributions_collected,
			total_interest_pool = EXCLUDED.total_interest_pool,
			line_items = EXCLUDED.line_items,
			updated_at = now()
		WHERE dissolution_settlements.status <> $7
		RETURNING `+settlementColumns,
		settlement.ID, settlement.FundID, settlement.Status,
		settlement.TotalContributionsCollected.String(),
		settlement.TotalInterestPool.String(), items, domain.SettlementConfirmed)
	saved, err := scanSettlement(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAlreadyFinalised
		}
		return nil, err
	}
	return saved, nil
}

// GetByFundID retrieves the fund's settlement
func (r *DissolutionRepository) GetByFundID(ctx context.Context, fundID uuid.UUID) (*domain.DissolutionSettlement, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+settlementColumns+` FROM dissolution_settlements WHERE fund_id = $1`,
		fundID)
	settlement, err := scanSettlement(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSettlementNotFound
		}
		return nil, err
	}
	return settlement, nil
}

// ConfirmSettlement persists the confirmed settlement and the fund's
// Dissolving -> Dissolved transition in one database transaction
func (r *DissolutionRepository) ConfirmSettlement(ctx context.Context, settlement *domain.DissolutionSettlement, fund *domain.Fund) (*domain.DissolutionSettlement, error) {
	var confirmed *domain.DissolutionSettlement
	err := withTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			UPDATE dissolution_settlements
			SET status = $2, settlement_date = $3, updated_at = now()
			WHERE id = $1 AND status = $4
			RETURNING `+settlementColumns,
			settlement.ID, settlement.Status, settlement.SettlementDate, domain.SettlementReady)
		var scanErr error
		confirmed, scanErr = scanSettlement(row)
		if scanErr != nil {
			if errors.Is(scanErr, pgx.ErrNoRows) {
				return domain.ErrInvalidState
			}
			return scanErr
		}

		config, err := json.Marshal(fund.Config)
		if err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `
			UPDATE funds
			SET config = $2, state = $3, version = version + 1, updated_at = now()
			WHERE id = $1 AND version = $4`,
			fund.ID, config, fund.State, fund.Version)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrVersionMismatch
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return confirmed, nil
}

func scanSettlement(row pgx.Row) (*domain.DissolutionSettlement, error) {
	var (
		s                  domain.DissolutionSettlement
		totalContributions pgtype.Numeric
		totalInterest      pgtype.Numeric
		items              []byte
	)
	if err := row.Scan(&s.ID, &s.FundID, &s.Status, &totalContributions, &totalInterest,
		&s.SettlementDate, &items, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.TotalContributionsCollected = pgNumericToDecimal(totalContributions)
	s.TotalInterestPool = pgNumericToDecimal(totalInterest)
	if err := json.Unmarshal(items, &s.LineItems); err != nil {
		return nil, err
	}
	return &s, nil
}
