package service

import (
	"context"
	"time"

	"github.com/chamahq/chama-backend/internal/domain"
	"github.com/chamahq/chama-backend/internal/event"
	"github.com/google/uuid"
)

// VotingService runs the member voting protocol attached to loan approval
type VotingService struct {
	loanRepo   domain.LoanRepository
	votingRepo domain.VotingRepository
	publisher  event.Publisher
	audit      event.AuditSink
}

// NewVotingService creates a new VotingService
func NewVotingService(loanRepo domain.LoanRepository, votingRepo domain.VotingRepository, publisher event.Publisher, audit event.AuditSink) *VotingService {
	return &VotingService{
		loanRepo:   loanRepo,
		votingRepo: votingRepo,
		publisher:  publisher,
		audit:      audit,
	}
}

// StartVotingInput contains input for opening a session
type StartVotingInput struct {
	LoanID         uuid.UUID
	WindowHours    int
	ThresholdType  domain.ThresholdType
	ThresholdValue int
}

// StartVoting opens the voting session for a pending loan. One session per
// loan; the window must span 24 to 72 hours.
func (s *VotingService) StartVoting(ctx context.Context, actorID uuid.UUID, input StartVotingInput) (*domain.VotingSession, error) {
	if input.WindowHours < domain.MinVotingWindowHours || input.WindowHours > domain.MaxVotingWindowHours {
		return nil, domain.ErrValidation
	}
	switch input.ThresholdType {
	case domain.ThresholdMajority:
	case domain.ThresholdPercentage:
		if input.ThresholdValue < 1 || input.ThresholdValue > 100 {
			return nil, domain.ErrValidation
		}
	default:
		return nil, domain.ErrValidation
	}

	loan, err := s.loanRepo.GetByID(ctx, input.LoanID)
	if err != nil {
		return nil, err
	}
	if loan.Status != domain.LoanPendingApproval {
		return nil, domain.ErrInvalidState
	}

	now := time.Now().UTC()
	session, err := s.votingRepo.CreateSession(ctx, &domain.VotingSession{
		ID:             uuid.New(),
		LoanID:         input.LoanID,
		FundID:         loan.FundID,
		WindowStart:    now,
		WindowEnd:      now.Add(time.Duration(input.WindowHours) * time.Hour),
		ThresholdType:  input.ThresholdType,
		ThresholdValue: input.ThresholdValue,
		Result:         domain.VotingPending,
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, event.New(event.TypeVotingStarted, loan.FundID, map[string]any{
		"sessionId": session.ID,
		"loanId":    input.LoanID,
		"windowEnd": session.WindowEnd,
	}))
	s.recordAudit(ctx, actorID, loan.FundID, "VotingSession", session.ID, "VotingStarted", nil, session)
	return session, nil
}

// CastVote records one voter's immutable decision inside the window
func (s *VotingService) CastVote(ctx context.Context, voterID, sessionID uuid.UUID, decision domain.VoteDecision) (*domain.Vote, error) {
	if decision != domain.VoteApprove && decision != domain.VoteReject {
		return nil, domain.ErrValidation
	}

	session, err := s.votingRepo.GetSessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.IsFinalised() {
		return nil, domain.ErrAlreadyFinalised
	}
	now := time.Now().UTC()
	if now.After(session.WindowEnd) {
		return nil, domain.ErrWindowClosed
	}

	vote, err := s.votingRepo.CastVote(ctx, &domain.Vote{
		ID:        uuid.New(),
		SessionID: sessionID,
		VoterID:   voterID,
		Decision:  decision,
		CastAt:    now,
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, event.New(event.TypeVoteCast, session.FundID, map[string]any{
		"sessionId": sessionID,
		"decision":  decision,
	}))
	s.recordAudit(ctx, voterID, session.FundID, "Vote", vote.ID, "VoteCast", nil, vote)
	return vote, nil
}

// FinaliseVoting tallies the session and records the admin decision. When
// the decision contradicts a natural outcome that reached quorum, the
// override flag is set and the audit trail names the override explicitly.
func (s *VotingService) FinaliseVoting(ctx context.Context, adminID, sessionID uuid.UUID, adminDecision domain.VotingResult) (*domain.VotingSession, error) {
	session, err := s.votingRepo.GetSessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	approve, reject, err := s.votingRepo.CountVotes(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	natural := domain.Tally(approve, reject, session.ThresholdType, session.ThresholdValue)

	before := *session
	if err := session.Finalise(adminID, adminDecision, natural, time.Now().UTC()); err != nil {
		return nil, err
	}

	finalised, err := s.votingRepo.FinaliseSession(ctx, session)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, event.New(event.TypeVotingFinalised, session.FundID, map[string]any{
		"sessionId":    sessionID,
		"result":       finalised.Result,
		"overrideUsed": finalised.OverrideUsed,
	}))
	action := event.ActionVotingFinalised
	if finalised.OverrideUsed {
		action = event.ActionVotingFinalisedWithOverride
	}
	s.recordAudit(ctx, adminID, session.FundID, "VotingSession", sessionID, action, &before, finalised)
	return finalised, nil
}

// GetSession retrieves a session by id
func (s *VotingService) GetSession(ctx context.Context, id uuid.UUID) (*domain.VotingSession, error) {
	return s.votingRepo.GetSessionByID(ctx, id)
}

// GetSessionForLoan retrieves the session attached to a loan
func (s *VotingService) GetSessionForLoan(ctx context.Context, loanID uuid.UUID) (*domain.VotingSession, error) {
	return s.votingRepo.GetSessionByLoanID(ctx, loanID)
}

func (s *VotingService) publish(ctx context.Context, e event.Event) {
	if s.publisher != nil {
		_ = s.publisher.Publish(ctx, e)
	}
}

func (s *VotingService) recordAudit(ctx context.Context, actorID, fundID uuid.UUID, entityType string, entityID uuid.UUID, action string, before, after any) {
	if s.audit == nil {
		return
	}
	fid := fundID
	_ = s.audit.Record(ctx, event.NewAuditEntry(actorID, &fid, entityType, entityID, action, before, after))
}
