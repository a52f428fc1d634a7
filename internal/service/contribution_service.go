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

// EndpointRecordContribution keys the idempotency registry for contribution
// payments
const EndpointRecordContribution = "contributions/record-payment"

// ContributionService handles monthly due generation, payment recording, the
// overdue detection job, and ledger queries
type ContributionService struct {
	fundRepo         domain.FundRepository
	contributionRepo domain.ContributionRepository
	transactionRepo  domain.TransactionRepository
	idempotencyRepo  domain.IdempotencyRepository
	publisher        event.Publisher
	audit            event.AuditSink
}

// NewContributionService creates a new ContributionService
func NewContributionService(
	fundRepo domain.FundRepository,
	contributionRepo domain.ContributionRepository,
	transactionRepo domain.TransactionRepository,
	idempotencyRepo domain.IdempotencyRepository,
	publisher event.Publisher,
	audit event.AuditSink,
) *ContributionService {
	return &ContributionService{
		fundRepo:         fundRepo,
		contributionRepo: contributionRepo,
		transactionRepo:  transactionRepo,
		idempotencyRepo:  idempotencyRepo,
		publisher:        publisher,
		audit:            audit,
	}
}

// GenerateDuesResult reports the outcome of an idempotent generation run
type GenerateDuesResult struct {
	Generated int `json:"generated"`
	Skipped   int `json:"skipped"`
}

// GenerateDues creates one ContributionDue per active member plan for the
// month. Idempotent by the unique (fund, user, monthYear) key: re-running
// skips existing rows.
func (s *ContributionService) GenerateDues(ctx context.Context, actorID, fundID uuid.UUID, monthYear util.MonthYear) (*GenerateDuesResult, error) {
	if !monthYear.Valid() {
		return nil, domain.ErrValidation
	}
	fund, err := s.fundRepo.GetByID(ctx, fundID)
	if err != nil {
		return nil, err
	}
	// Dissolving funds stop generating new dues
	if fund.State != domain.FundStateActive {
		return nil, domain.ErrInvalidState
	}

	plans, err := s.fundRepo.ListMemberPlans(ctx, fundID, true)
	if err != nil {
		return nil, err
	}

	dueDate := monthYear.DayClamped(fund.Config.ContributionDayOfMonth)
	result := &GenerateDuesResult{}
	totalAmount := decimal.Zero
	for _, plan := range plans {
		created, err := s.contributionRepo.CreateDue(ctx, &domain.ContributionDue{
			ID:         uuid.New(),
			FundID:     fundID,
			UserID:     plan.UserID,
			MonthYear:  monthYear,
			AmountDue:  plan.MonthlyContributionAmount,
			AmountPaid: decimal.Zero,
			Status:     domain.DuePending,
			DueDate:    dueDate,
		})
		if err != nil {
			return nil, err
		}
		if created {
			result.Generated++
			totalAmount = totalAmount.Add(plan.MonthlyContributionAmount)
		} else {
			result.Skipped++
		}
	}

	if result.Generated > 0 {
		s.publish(ctx, event.New(event.TypeContributionDueGenerated, fundID, map[string]any{
			"monthYear":   monthYear,
			"totalAmount": totalAmount,
			"memberCount": result.Generated,
		}))
	}
	s.recordAudit(ctx, actorID, fundID, "ContributionDue", fundID, "ContributionDuesGenerated", nil, result)
	return result, nil
}

// RecordContributionInput contains input for recording a due payment
type RecordContributionInput struct {
	DueID           uuid.UUID
	Amount          decimal.Decimal
	IdempotencyKey  string
	ExpectedVersion int64
}

// RecordPayment applies a payment to a due, appends the ledger transaction,
// and writes the idempotency record atomically. A retry with the same key and
// request hash returns the original result without a second side-effect.
func (s *ContributionService) RecordPayment(ctx context.Context, actorID uuid.UUID, input RecordContributionInput) (*domain.ContributionDue, error) {
	if input.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, domain.ErrValidation
	}
	if !domain.ValidIdempotencyKey(input.IdempotencyKey) {
		return nil, domain.ErrValidation
	}

	due, err := s.contributionRepo.GetDueByID(ctx, input.DueID)
	if err != nil {
		return nil, err
	}

	requestHash := domain.HashRequest(input)
	existing, err := s.idempotencyRepo.Get(ctx, due.FundID, EndpointRecordContribution, input.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if replay, err := existing.CheckReplay(requestHash); err != nil {
		return nil, err
	} else if replay {
		return due, nil
	}

	if due.Version != input.ExpectedVersion {
		return nil, domain.ErrVersionMismatch
	}
	before := *due
	if err := due.ApplyPayment(input.Amount, time.Now().UTC()); err != nil {
		return nil, err
	}

	refType := "contribution_due"
	userID := due.UserID
	txn := &domain.Transaction{
		ID:                  uuid.New(),
		FundID:              due.FundID,
		UserID:              &userID,
		Type:                domain.TxnContribution,
		Amount:              input.Amount,
		IdempotencyKey:      input.IdempotencyKey,
		ReferenceEntityType: &refType,
		ReferenceEntityID:   &due.ID,
	}
	record := &domain.IdempotencyRecord{
		ID:             uuid.New(),
		FundID:         due.FundID,
		Endpoint:       EndpointRecordContribution,
		IdempotencyKey: input.IdempotencyKey,
		RequestHash:    requestHash,
		ResultRef:      due.ID,
	}

	updated, err := s.contributionRepo.RecordPayment(ctx, due, txn, record)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, event.New(event.TypeContributionPaid, due.FundID, map[string]any{
		"dueId":  due.ID,
		"userId": due.UserID,
		"amount": input.Amount,
	}))
	s.recordAudit(ctx, actorID, due.FundID, "ContributionDue", due.ID, "ContributionPaid", &before, updated)
	return updated, nil
}

// DetectOverdue is the periodic job body for one fund: pending/partial dues
// past dueDate + grace become Late, and Missed after the fund's second
// threshold when configured
func (s *ContributionService) DetectOverdue(ctx context.Context, fundID uuid.UUID, asOf time.Time) (int, error) {
	fund, err := s.fundRepo.GetByID(ctx, fundID)
	if err != nil {
		return 0, err
	}

	graceCutoff := asOf.AddDate(0, 0, -fund.Config.GracePeriodDays)
	candidates, err := s.contributionRepo.ListOverdueCandidates(ctx, fundID, graceCutoff)
	if err != nil {
		return 0, err
	}

	flipped := 0
	for _, due := range candidates {
		due.Status = domain.DueLate
		if fund.Config.MissedAfterDays != nil {
			missedCutoff := due.DueDate.AddDate(0, 0, *fund.Config.MissedAfterDays)
			if asOf.After(missedCutoff) {
				due.Status = domain.DueMissed
				missedAt := asOf
				due.MissedAt = &missedAt
			}
		}
		if _, err := s.contributionRepo.UpdateStatus(ctx, due); err != nil {
			// A concurrent payment bumping the version is not a job failure
			if errors.Is(err, domain.ErrVersionMismatch) {
				log.Debug().Str("due_id", due.ID.String()).Msg("Skipping due updated concurrently")
				continue
			}
			return flipped, err
		}
		flipped++
		s.publish(ctx, event.New(event.TypeContributionOverdue, fundID, map[string]any{
			"dueId":  due.ID,
			"userId": due.UserID,
			"amount": due.RemainingBalance(),
		}))
	}
	return flipped, nil
}

// GetDue retrieves one due
func (s *ContributionService) GetDue(ctx context.Context, id uuid.UUID) (*domain.ContributionDue, error) {
	return s.contributionRepo.GetDueByID(ctx, id)
}

// ListDues returns the fund's dues for a month
func (s *ContributionService) ListDues(ctx context.Context, fundID uuid.UUID, monthYear util.MonthYear) ([]*domain.ContributionDue, error) {
	return s.contributionRepo.ListByFundMonth(ctx, fundID, monthYear)
}

// GetStatement lists ledger transactions for a fund
func (s *ContributionService) GetStatement(ctx context.Context, fundID uuid.UUID, filter domain.TransactionFilter) ([]*domain.Transaction, error) {
	return s.transactionRepo.ListByFund(ctx, fundID, filter)
}

// GetBalance recomputes the fund pool balance from the ledger
func (s *ContributionService) GetBalance(ctx context.Context, fundID uuid.UUID) (decimal.Decimal, error) {
	return s.transactionRepo.Balance(ctx, fundID)
}

func (s *ContributionService) publish(ctx context.Context, e event.Event) {
	if s.publisher != nil {
		_ = s.publisher.Publish(ctx, e)
	}
}

func (s *ContributionService) recordAudit(ctx context.Context, actorID, fundID uuid.UUID, entityType string, entityID uuid.UUID, action string, before, after any) {
	if s.audit == nil {
		return
	}
	fid := fundID
	_ = s.audit.Record(ctx, event.NewAuditEntry(actorID, &fid, entityType, entityID, action, before, after))
}
