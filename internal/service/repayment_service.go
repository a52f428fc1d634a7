package service

import (
	"context"
	"errors"
	"time"

	"github.com/chamahq/chama-backend/internal/domain"
	"github.com/chamahq/chama-backend/internal/event"
	"github.com/chamahq/chama-backend/internal/util"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// EndpointRecordRepayment keys the idempotency registry for repayment
// recording
const EndpointRecordRepayment = "repayments/record-payment"

// RepaymentService generates monthly repayment entries and records payments
// against them using reducing-balance arithmetic
type RepaymentService struct {
	loanRepo        domain.LoanRepository
	repaymentRepo   domain.RepaymentRepository
	idempotencyRepo domain.IdempotencyRepository
	publisher       event.Publisher
	audit           event.AuditSink
}

// NewRepaymentService creates a new RepaymentService
func NewRepaymentService(
	loanRepo domain.LoanRepository,
	repaymentRepo domain.RepaymentRepository,
	idempotencyRepo domain.IdempotencyRepository,
	publisher event.Publisher,
	audit event.AuditSink,
) *RepaymentService {
	return &RepaymentService{
		loanRepo:        loanRepo,
		repaymentRepo:   repaymentRepo,
		idempotencyRepo: idempotencyRepo,
		publisher:       publisher,
		audit:           audit,
	}
}

// GenerateEntry creates the month's repayment entry for an active loan using
// the loan's approval-time snapshot. Idempotent by the unique
// (loan, monthYear) key; re-running returns the existing entry.
func (s *RepaymentService) GenerateEntry(ctx context.Context, actorID, loanID uuid.UUID, monthYear util.MonthYear) (*domain.RepaymentEntry, bool, error) {
	if !monthYear.Valid() {
		return nil, false, domain.ErrValidation
	}
	loan, err := s.loanRepo.GetByID(ctx, loanID)
	if err != nil {
		return nil, false, err
	}
	if loan.Status != domain.LoanActive {
		return nil, false, domain.ErrInvalidState
	}

	interestDue := domain.MonthlyInterest(loan.OutstandingPrincipal, loan.MonthlyInterestRate)
	principalDue := domain.PrincipalDue(loan.OutstandingPrincipal, loan.MinimumPrincipal, loan.ScheduledInstallment, interestDue)
	entry := &domain.RepaymentEntry{
		ID:           uuid.New(),
		LoanID:       loanID,
		FundID:       loan.FundID,
		MonthYear:    monthYear,
		InterestDue:  interestDue,
		PrincipalDue: principalDue,
		TotalDue:     interestDue.Add(principalDue),
		AmountPaid:   decimal.Zero,
		Status:       domain.RepaymentPending,
		DueDate:      monthYear.LastDay(),
	}

	created, err := s.repaymentRepo.CreateEntry(ctx, entry)
	if err != nil {
		return nil, false, err
	}
	if !created {
		existing, err := s.repaymentRepo.GetByLoanMonth(ctx, loanID, monthYear)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	s.publish(ctx, event.New(event.TypeRepaymentDueGenerated, loan.FundID, map[string]any{
		"entryId":   entry.ID,
		"loanId":    loanID,
		"monthYear": monthYear,
		"interest":  interestDue,
		"principal": principalDue,
	}))
	s.recordAudit(ctx, actorID, loan.FundID, "RepaymentEntry", entry.ID, "RepaymentDueGenerated", nil, entry)
	return entry, true, nil
}

// RecordRepaymentInput contains input for recording a repayment
type RecordRepaymentInput struct {
	EntryID         uuid.UUID
	Amount          decimal.Decimal
	IdempotencyKey  string
	ExpectedVersion int64
}

// RepaymentReceipt reports how a recorded payment was allocated
type RepaymentReceipt struct {
	Entry             *domain.RepaymentEntry `json:"entry"`
	InterestPaid      decimal.Decimal        `json:"interestPaid"`
	PrincipalPaid     decimal.Decimal        `json:"principalPaid"`
	ExcessToPrincipal decimal.Decimal        `json:"excessToPrincipal"`
	LoanOutstanding   decimal.Decimal        `json:"loanOutstanding"`
	LoanClosed        bool                   `json:"loanClosed"`
}

// RecordPayment allocates a cash payment interest-first across the entry,
// reduces the loan's outstanding principal, appends the cash and interest
// ledger rows, and auto-closes the loan at zero outstanding. The entry
// update, loan update, ledger rows, and idempotency record commit in one
// database transaction.
func (s *RepaymentService) RecordPayment(ctx context.Context, recorderID uuid.UUID, input RecordRepaymentInput) (*RepaymentReceipt, error) {
	if input.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, domain.ErrValidation
	}
	if !domain.ValidIdempotencyKey(input.IdempotencyKey) {
		return nil, domain.ErrValidation
	}

	entry, err := s.repaymentRepo.GetEntryByID(ctx, input.EntryID)
	if err != nil {
		return nil, err
	}

	requestHash := domain.HashRequest(input)
	existing, err := s.idempotencyRepo.Get(ctx, entry.FundID, EndpointRecordRepayment, input.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if replay, err := existing.CheckReplay(requestHash); err != nil {
		return nil, err
	} else if replay {
		loan, err := s.loanRepo.GetByID(ctx, entry.LoanID)
		if err != nil {
			return nil, err
		}
		return &RepaymentReceipt{
			Entry:           entry,
			LoanOutstanding: loan.OutstandingPrincipal,
			LoanClosed:      loan.Status == domain.LoanClosed,
		}, nil
	}

	loan, err := s.loanRepo.GetByID(ctx, entry.LoanID)
	if err != nil {
		return nil, err
	}
	if loan.Status != domain.LoanActive {
		return nil, domain.ErrInvalidState
	}
	if entry.Status == domain.RepaymentPaid {
		return nil, domain.ErrAlreadyPaid
	}
	if entry.Version != input.ExpectedVersion {
		return nil, domain.ErrVersionMismatch
	}

	split := domain.ApplyPayment(input.Amount, entry.InterestOutstanding(), entry.PrincipalDueRemaining(), loan.OutstandingPrincipal)
	if split.ExcessNotApplied.IsPositive() {
		// Over-payment beyond the loan's outstanding principal is rejected
		return nil, domain.ErrValidation
	}

	before := *entry
	now := time.Now().UTC()
	if err := entry.ApplyPayment(input.Amount, now); err != nil {
		return nil, err
	}
	loan.SettleOutstanding(split.NewOutstanding, now)

	refType := "repayment_entry"
	txns := []*domain.Transaction{{
		ID:                  uuid.New(),
		FundID:              entry.FundID,
		UserID:              &loan.BorrowerID,
		Type:                domain.TxnRepayment,
		Amount:              input.Amount,
		IdempotencyKey:      input.IdempotencyKey,
		ReferenceEntityType: &refType,
		ReferenceEntityID:   &entry.ID,
	}}
	if split.InterestPaid.IsPositive() {
		txns = append(txns, &domain.Transaction{
			ID:                  uuid.New(),
			FundID:              entry.FundID,
			UserID:              &loan.BorrowerID,
			Type:                domain.TxnInterestIncome,
			Amount:              split.InterestPaid,
			IdempotencyKey:      input.IdempotencyKey + ":interest",
			ReferenceEntityType: &refType,
			ReferenceEntityID:   &entry.ID,
		})
	}
	record := &domain.IdempotencyRecord{
		ID:             uuid.New(),
		FundID:         entry.FundID,
		Endpoint:       EndpointRecordRepayment,
		IdempotencyKey: input.IdempotencyKey,
		RequestHash:    requestHash,
		ResultRef:      entry.ID,
	}

	updated, err := s.repaymentRepo.RecordPayment(ctx, entry, loan, txns, record)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, event.New(event.TypeRepaymentRecorded, entry.FundID, map[string]any{
		"entryId":           entry.ID,
		"loanId":            loan.ID,
		"amount":            input.Amount,
		"interestPaid":      split.InterestPaid,
		"principalPaid":     split.PrincipalPaid,
		"excessToPrincipal": split.ExcessToPrincipal,
	}))
	if loan.Status == domain.LoanClosed {
		s.publish(ctx, event.New(event.TypeLoanClosed, entry.FundID, map[string]any{
			"loanId":     loan.ID,
			"borrowerId": loan.BorrowerID,
		}))
	}
	s.recordAudit(ctx, recorderID, entry.FundID, "RepaymentEntry", entry.ID, "RepaymentRecorded", &before, updated)

	return &RepaymentReceipt{
		Entry:             updated,
		InterestPaid:      split.InterestPaid,
		PrincipalPaid:     split.PrincipalPaid,
		ExcessToPrincipal: split.ExcessToPrincipal,
		LoanOutstanding:   loan.OutstandingPrincipal,
		LoanClosed:        loan.Status == domain.LoanClosed,
	}, nil
}

// DetectOverdue is the periodic job body for one fund: pending/partial
// entries past their due date become Overdue
func (s *RepaymentService) DetectOverdue(ctx context.Context, fundID uuid.UUID, asOf time.Time) (int, error) {
	candidates, err := s.repaymentRepo.ListOverdueCandidates(ctx, fundID, asOf)
	if err != nil {
		return 0, err
	}
	flipped := 0
	for _, entry := range candidates {
		entry.Status = domain.RepaymentOverdue
		if _, err := s.repaymentRepo.UpdateEntry(ctx, entry); err != nil {
			if errors.Is(err, domain.ErrVersionMismatch) {
				log.Debug().Str("entry_id", entry.ID.String()).Msg("Skipping entry updated concurrently")
				continue
			}
			return flipped, err
		}
		flipped++
	}
	return flipped, nil
}

// GetEntry retrieves one repayment entry
func (s *RepaymentService) GetEntry(ctx context.Context, id uuid.UUID) (*domain.RepaymentEntry, error) {
	return s.repaymentRepo.GetEntryByID(ctx, id)
}

// ListEntries returns a loan's repayment schedule
func (s *RepaymentService) ListEntries(ctx context.Context, loanID uuid.UUID) ([]*domain.RepaymentEntry, error) {
	return s.repaymentRepo.ListByLoan(ctx, loanID)
}

func (s *RepaymentService) publish(ctx context.Context, e event.Event) {
	if s.publisher != nil {
		_ = s.publisher.Publish(ctx, e)
	}
}

func (s *RepaymentService) recordAudit(ctx context.Context, actorID, fundID uuid.UUID, entityType string, entityID uuid.UUID, action string, before, after any) {
	if s.audit == nil {
		return
	}
	fid := fundID
	_ = s.audit.Record(ctx, event.NewAuditEntry(actorID, &fid, entityType, entityID, action, before, after))
}
