package service

import (
	"context"
	"time"

	"github.com/chamahq/chama-backend/internal/domain"
	"github.com/chamahq/chama-backend/internal/event"
	"github.com/chamahq/chama-backend/internal/util"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LoanService handles loan requests, approval, and rejection. Request checks
// run against the local fund projection so they need no cross-service hop;
// the projection is advisory and may lag the fund aggregate briefly.
type LoanService struct {
	loanRepo       domain.LoanRepository
	projectionRepo domain.FundProjectionRepository
	publisher      event.Publisher
	audit          event.AuditSink
}

// NewLoanService creates a new LoanService
func NewLoanService(loanRepo domain.LoanRepository, projectionRepo domain.FundProjectionRepository, publisher event.Publisher, audit event.AuditSink) *LoanService {
	return &LoanService{
		loanRepo:       loanRepo,
		projectionRepo: projectionRepo,
		publisher:      publisher,
		audit:          audit,
	}
}

// RequestLoanInput contains input for requesting a loan
type RequestLoanInput struct {
	FundID              uuid.UUID
	PrincipalAmount     decimal.Decimal
	RequestedStartMonth util.MonthYear
	Purpose             *string
}

// RequestLoan validates the request against fund policy and creates the loan
// in PendingApproval
func (s *LoanService) RequestLoan(ctx context.Context, borrowerID uuid.UUID, input RequestLoanInput) (*domain.Loan, error) {
	loan := &domain.Loan{
		ID:                   uuid.New(),
		FundID:               input.FundID,
		BorrowerID:           borrowerID,
		PrincipalAmount:      input.PrincipalAmount,
		OutstandingPrincipal: input.PrincipalAmount,
		RequestedStartMonth:  input.RequestedStartMonth,
		Purpose:              input.Purpose,
		Status:               domain.LoanPendingApproval,
	}
	if err := loan.Validate(); err != nil {
		return nil, err
	}

	projection, err := s.projectionRepo.GetByFundID(ctx, input.FundID)
	if err != nil {
		return nil, err
	}
	if !projection.IsActive {
		return nil, domain.ErrInvalidState
	}
	if projection.MaxLoanPerMember != nil && input.PrincipalAmount.GreaterThan(*projection.MaxLoanPerMember) {
		return nil, domain.ErrMaxLoanExceeded
	}
	if projection.MaxConcurrentLoans != nil {
		open, err := s.loanRepo.CountNonTerminalByBorrower(ctx, input.FundID, borrowerID)
		if err != nil {
			return nil, err
		}
		if open >= *projection.MaxConcurrentLoans {
			return nil, domain.ErrMaxConcurrentLoans
		}
	}

	created, err := s.loanRepo.Create(ctx, loan)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, event.New(event.TypeLoanRequested, input.FundID, map[string]any{
		"loanId":     created.ID,
		"borrowerId": borrowerID,
		"principal":  input.PrincipalAmount,
	}))
	s.recordAudit(ctx, borrowerID, input.FundID, "Loan", created.ID, "LoanRequested", nil, created)
	return created, nil
}

// ApproveLoanInput contains input for approving a loan
type ApproveLoanInput struct {
	LoanID               uuid.UUID
	ScheduledInstallment decimal.Decimal
	ExpectedVersion      int64
}

// ApproveLoan snapshots the fund's interest rate and minimum principal, moves
// the loan PendingApproval -> Approved -> Active in one atomic step, and
// appends the disbursement ledger entry. Under an admin-with-voting policy a
// finalised approving vote is expected first, but the check here is loan
// status only; the audit trail records which path was taken.
func (s *LoanService) ApproveLoan(ctx context.Context, approverID uuid.UUID, input ApproveLoanInput) (*domain.Loan, error) {
	loan, err := s.loanRepo.GetByID(ctx, input.LoanID)
	if err != nil {
		return nil, err
	}
	if loan.Version != input.ExpectedVersion {
		return nil, domain.ErrVersionMismatch
	}

	projection, err := s.projectionRepo.GetByFundID(ctx, loan.FundID)
	if err != nil {
		return nil, err
	}

	before := *loan
	now := time.Now().UTC()
	if err := loan.Approve(approverID, input.ScheduledInstallment, projection.MonthlyInterestRate, projection.MinimumPrincipalPerRepayment, now); err != nil {
		return nil, err
	}

	refType := "loan"
	disbursement := &domain.Transaction{
		ID:                  uuid.New(),
		FundID:              loan.FundID,
		UserID:              &loan.BorrowerID,
		Type:                domain.TxnDisbursement,
		Amount:              loan.PrincipalAmount,
		IdempotencyKey:      "disburse:" + loan.ID.String(),
		ReferenceEntityType: &refType,
		ReferenceEntityID:   &loan.ID,
	}

	approved, err := s.loanRepo.Approve(ctx, loan, disbursement)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, event.New(event.TypeLoanApproved, loan.FundID, map[string]any{
		"loanId":      approved.ID,
		"borrowerId":  approved.BorrowerID,
		"principal":   approved.PrincipalAmount,
		"installment": approved.ScheduledInstallment,
	}))
	s.publish(ctx, event.New(event.TypeLoanDisbursed, loan.FundID, map[string]any{
		"loanId":     approved.ID,
		"borrowerId": approved.BorrowerID,
		"principal":  approved.PrincipalAmount,
	}))
	s.recordAudit(ctx, approverID, loan.FundID, "Loan", loan.ID, "LoanApproved", &before, approved)
	return approved, nil
}

// RejectLoan moves a pending loan to Rejected with a reason
func (s *LoanService) RejectLoan(ctx context.Context, actorID, loanID uuid.UUID, reason string, expectedVersion int64) (*domain.Loan, error) {
	loan, err := s.loanRepo.GetByID(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if loan.Version != expectedVersion {
		return nil, domain.ErrVersionMismatch
	}

	before := *loan
	if err := loan.Reject(reason); err != nil {
		return nil, err
	}

	rejected, err := s.loanRepo.Update(ctx, loan)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, event.New(event.TypeLoanRejected, loan.FundID, map[string]any{
		"loanId":     rejected.ID,
		"borrowerId": rejected.BorrowerID,
		"reason":     reason,
	}))
	s.recordAudit(ctx, actorID, loan.FundID, "Loan", loan.ID, "LoanRejected", &before, rejected)
	return rejected, nil
}

// GetLoan retrieves a loan by id
func (s *LoanService) GetLoan(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	return s.loanRepo.GetByID(ctx, id)
}

// ListLoans returns all loans for a fund
func (s *LoanService) ListLoans(ctx context.Context, fundID uuid.UUID) ([]*domain.Loan, error) {
	return s.loanRepo.ListByFund(ctx, fundID)
}

func (s *LoanService) publish(ctx context.Context, e event.Event) {
	if s.publisher != nil {
		_ = s.publisher.Publish(ctx, e)
	}
}

func (s *LoanService) recordAudit(ctx context.Context, actorID, fundID uuid.UUID, entityType string, entityID uuid.UUID, action string, before, after any) {
	if s.audit == nil {
		return
	}
	fid := fundID
	_ = s.audit.Record(ctx, event.NewAuditEntry(actorID, &fid, entityType, entityID, action, before, after))
}
