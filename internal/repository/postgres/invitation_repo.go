package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/chamahq/chama-backend/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// InvitationRepository implements domain.InvitationRepository using
// PostgreSQL
type InvitationRepository struct {
	pool *pgxpool.Pool
}

// NewInvitationRepository creates a new InvitationRepository
func NewInvitationRepository(pool *pgxpool.Pool) *InvitationRepository {
	return &InvitationRepository{pool: pool}
}

const invitationColumns = `id, fund_id, target_contact, invited_by, status, expires_at, created_at, updated_at`

// Create inserts an invitation. A partial unique index on pending rows
// enforces one pending invitation per (fund, contact).
func (r *InvitationRepository) Create(ctx context.Context, inv *domain.Invitation) (*domain.Invitation, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO invitations (id, fund_id, target_contact, invited_by, status, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+invitationColumns,
		inv.ID, inv.FundID, inv.TargetContact, inv.InvitedBy, inv.Status, inv.ExpiresAt)
	created, err := scanInvitation(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrPendingInvitation
		}
		return nil, err
	}
	return created, nil
}

// GetByID retrieves an invitation by its ID
func (r *InvitationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Invitation, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE id = $1`, id)
	inv, err := scanInvitation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrInvitationNotFound
		}
		return nil, err
	}
	return inv, nil
}

// GetPending retrieves the pending invitation for a contact, if any
func (r *InvitationRepository) GetPending(ctx context.Context, fundID uuid.UUID, targetContact string) (*domain.Invitation, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+invitationColumns+` FROM invitations
		WHERE fund_id = $1 AND target_contact = $2 AND status = $3`,
		fundID, targetContact, domain.InvitationPending)
	inv, err := scanInvitation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrInvitationNotFound
		}
		return nil, err
	}
	return inv, nil
}

// UpdateStatus persists a status transition
func (r *InvitationRepository) UpdateStatus(ctx context.Context, inv *domain.Invitation) (*domain.Invitation, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE invitations
		SET status = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+invitationColumns,
		inv.ID, inv.Status)
	updated, err := scanInvitation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrInvitationNotFound
		}
		return nil, err
	}
	return updated, nil
}

// ExpirePending flips every pending invitation past its expiry
func (r *InvitationRepository) ExpirePending(ctx context.Context, asOf time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE invitations
		SET status = $1, updated_at = now()
		WHERE status = $2 AND expires_at < $3`,
		domain.InvitationExpired, domain.InvitationPending, asOf)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ListByFund retrieves a fund's invitations, newest first
func (r *InvitationRepository) ListByFund(ctx context.Context, fundID uuid.UUID) ([]*domain.Invitation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+invitationColumns+` FROM invitations WHERE fund_id = $1 ORDER BY created_at DESC`,
		fundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, inv)
	}
	return result, rows.Err()
}

func scanInvitation(row pgx.Row) (*domain.Invitation, error) {
	var inv domain.Invitation
	if err := row.Scan(&inv.ID, &inv.FundID, &inv.TargetContact, &inv.InvitedBy,
		&inv.Status, &inv.ExpiresAt, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
		return nil, err
	}
	return &inv, nil
}
