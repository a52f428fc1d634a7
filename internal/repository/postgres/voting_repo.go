package postgres

import (
	"context"
	"errors"

	"github.com/chamahq/chama-backend/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// VotingRepository implements domain.VotingRepository using PostgreSQL
type VotingRepository struct {
	pool *pgxpool.Pool
}

// NewVotingRepository creates a new VotingRepository
func NewVotingRepository(pool *pgxpool.Pool) *VotingRepository {
	return &VotingRepository{pool: pool}
}

const sessionColumns = `id, loan_id, fund_id, window_start, window_end, threshold_type,
	threshold_value, result, finalised_by, finalised_date, override_used, created_at, updated_at`

// CreateSession inserts the session; ErrAlreadyExists when the loan already
// has one
func (r *VotingRepository) CreateSession(ctx context.Context, session *domain.VotingSession) (*domain.VotingSession, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO voting_sessions (id, loan_id, fund_id, window_start, window_end,
			threshold_type, threshold_value, result)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+sessionColumns,
		session.ID, session.LoanID, session.FundID, session.WindowStart, session.WindowEnd,
		session.ThresholdType, session.ThresholdValue, session.Result)
	created, err := scanSession(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrAlreadyExists
		}
		return nil, err
	}
	return created, nil
}

// GetSessionByID retrieves a session by its ID
func (r *VotingRepository) GetSessionByID(ctx context.Context, id uuid.UUID) (*domain.VotingSession, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM voting_sessions WHERE id = $1`, id)
	return r.sessionOrNotFound(row)
}

// GetSessionByLoanID retrieves the session attached to a loan
func (r *VotingRepository) GetSessionByLoanID(ctx context.Context, loanID uuid.UUID) (*domain.VotingSession, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM voting_sessions WHERE loan_id = $1`, loanID)
	return r.sessionOrNotFound(row)
}

// CastVote inserts the vote; ErrAlreadyVoted on a duplicate (sessionID, voterID)
func (r *VotingRepository) CastVote(ctx context.Context, vote *domain.Vote) (*domain.Vote, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO votes (id, session_id, voter_id, decision, cast_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, session_id, voter_id, decision, cast_at`,
		vote.ID, vote.SessionID, vote.VoterID, vote.Decision, vote.CastAt)
	var created domain.Vote
	if err := row.Scan(&created.ID, &created.SessionID, &created.VoterID, &created.Decision, &created.CastAt); err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrAlreadyVoted
		}
		return nil, err
	}
	return &created, nil
}

// CountVotes tallies the session's votes by decision
func (r *VotingRepository) CountVotes(ctx context.Context, sessionID uuid.UUID) (int, int, error) {
	var approve, reject int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FILTER (WHERE decision = $2),
		       count(*) FILTER (WHERE decision = $3)
		FROM votes
		WHERE session_id = $1`,
		sessionID, domain.VoteApprove, domain.VoteReject).Scan(&approve, &reject)
	return approve, reject, err
}

// ListVotes retrieves the session's votes in cast order
func (r *VotingRepository) ListVotes(ctx context.Context, sessionID uuid.UUID) ([]*domain.Vote, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, session_id, voter_id, decision, cast_at
		FROM votes
		WHERE session_id = $1
		ORDER BY cast_at`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.Vote
	for rows.Next() {
		var v domain.Vote
		if err := rows.Scan(&v.ID, &v.SessionID, &v.VoterID, &v.Decision, &v.CastAt); err != nil {
			return nil, err
		}
		result = append(result, &v)
	}
	return result, rows.Err()
}

// FinaliseSession persists the terminal result; only a pending session can be
// finalised
func (r *VotingRepository) FinaliseSession(ctx context.Context, session *domain.VotingSession) (*domain.VotingSession, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE voting_sessions
		SET result = $2, finalised_by = $3, finalised_date = $4, override_used = $5, updated_at = now()
		WHERE id = $1 AND result = $6
		RETURNING `+sessionColumns,
		session.ID, session.Result, session.FinalisedBy, session.FinalisedDate,
		session.OverrideUsed, domain.VotingPending)
	finalised, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if _, gerr := r.GetSessionByID(ctx, session.ID); gerr != nil {
				return nil, gerr
			}
			return nil, domain.ErrAlreadyFinalised
		}
		return nil, err
	}
	return finalised, nil
}

func (r *VotingRepository) sessionOrNotFound(row pgx.Row) (*domain.VotingSession, error) {
	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, err
	}
	return session, nil
}

func scanSession(row pgx.Row) (*domain.VotingSession, error) {
	var s domain.VotingSession
	if err := row.Scan(&s.ID, &s.LoanID, &s.FundID, &s.WindowStart, &s.WindowEnd,
		&s.ThresholdType, &s.ThresholdValue, &s.Result, &s.FinalisedBy,
		&s.FinalisedDate, &s.OverrideUsed, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}
