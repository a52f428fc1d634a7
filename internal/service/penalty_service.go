package service

import (
	"context"
	"errors"

	"github.com/chamahq/chama-backend/internal/domain"
	"github.com/chamahq/chama-backend/internal/event"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

var oneHundred = decimal.NewFromInt(100)

// PenaltyService carries configured penalties from overdue repayment entries
// into the following month
type PenaltyService struct {
	repaymentRepo  domain.RepaymentRepository
	projectionRepo domain.FundProjectionRepository
	publisher      event.Publisher
	audit          event.AuditSink
}

// NewPenaltyService creates a new PenaltyService
func NewPenaltyService(repaymentRepo domain.RepaymentRepository, projectionRepo domain.FundProjectionRepository, publisher event.Publisher, audit event.AuditSink) *PenaltyService {
	return &PenaltyService{
		repaymentRepo:  repaymentRepo,
		projectionRepo: projectionRepo,
		publisher:      publisher,
		audit:          audit,
	}
}

// ApplyPenalties is the periodic job body for one fund. Each overdue entry
// with a remaining balance gets its penalty added to the next month's entry
// for the same loan; a penalty-only entry due on the 15th is created when no
// next-month entry exists yet. An entry already referenced as a penalty
// source is skipped, so re-runs never double-apply.
func (s *PenaltyService) ApplyPenalties(ctx context.Context, fundID uuid.UUID) (int, error) {
	projection, err := s.projectionRepo.GetByFundID(ctx, fundID)
	if err != nil {
		return 0, err
	}
	if projection.PenaltyType == domain.PenaltyNone || !projection.PenaltyValue.IsPositive() {
		return 0, nil
	}

	overdue, err := s.repaymentRepo.ListOverdue(ctx, fundID)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, entry := range overdue {
		overdueAmount := entry.RemainingBalance()
		if !overdueAmount.IsPositive() {
			continue
		}
		already, err := s.repaymentRepo.HasPenaltyFrom(ctx, entry.ID)
		if err != nil {
			return applied, err
		}
		if already {
			continue
		}

		var penalty decimal.Decimal
		switch projection.PenaltyType {
		case domain.PenaltyFlat:
			penalty = projection.PenaltyValue.RoundBank(2)
		case domain.PenaltyPercentage:
			penalty = overdueAmount.Mul(projection.PenaltyValue).Div(oneHundred).RoundBank(2)
		}
		if !penalty.IsPositive() {
			continue
		}

		target, err := s.carryPenalty(ctx, entry, penalty)
		if err != nil {
			if errors.Is(err, domain.ErrVersionMismatch) {
				log.Debug().Str("entry_id", entry.ID.String()).Msg("Skipping penalty target updated concurrently")
				continue
			}
			return applied, err
		}
		applied++

		s.publish(ctx, event.New(event.TypeRepaymentPenaltyApplied, fundID, map[string]any{
			"entryId":       target.ID,
			"sourceEntryId": entry.ID,
			"loanId":        entry.LoanID,
			"monthYear":     target.MonthYear,
			"penalty":       penalty,
		}))
		s.recordAudit(ctx, uuid.Nil, fundID, "RepaymentEntry", target.ID, "RepaymentPenaltyApplied", entry, target)
	}
	return applied, nil
}

// carryPenalty adds the penalty to next month's entry, creating a
// penalty-only entry when the month has not been generated yet
func (s *PenaltyService) carryPenalty(ctx context.Context, source *domain.RepaymentEntry, penalty decimal.Decimal) (*domain.RepaymentEntry, error) {
	nextMonth := source.MonthYear.Next()
	sourceID := source.ID

	target, err := s.repaymentRepo.GetByLoanMonth(ctx, source.LoanID, nextMonth)
	if err == nil {
		target.TotalDue = target.TotalDue.Add(penalty)
		target.PenaltySourceEntryID = &sourceID
		if target.Status == domain.RepaymentPaid {
			// The added penalty reopens the entry
			target.Status = domain.RepaymentPartial
			target.PaidDate = nil
		}
		return s.repaymentRepo.UpdateEntry(ctx, target)
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	target = &domain.RepaymentEntry{
		ID:                   uuid.New(),
		LoanID:               source.LoanID,
		FundID:               source.FundID,
		MonthYear:            nextMonth,
		InterestDue:          decimal.Zero,
		PrincipalDue:         decimal.Zero,
		TotalDue:             penalty,
		AmountPaid:           decimal.Zero,
		Status:               domain.RepaymentPending,
		DueDate:              nextMonth.DayClamped(15),
		PenaltySourceEntryID: &sourceID,
	}
	created, err := s.repaymentRepo.CreateEntry(ctx, target)
	if err != nil {
		return nil, err
	}
	if !created {
		// Generation raced us into existence; fold the penalty into the row
		return s.carryPenaltyInto(ctx, source, penalty)
	}
	return target, nil
}

func (s *PenaltyService) carryPenaltyInto(ctx context.Context, source *domain.RepaymentEntry, penalty decimal.Decimal) (*domain.RepaymentEntry, error) {
	target, err := s.repaymentRepo.GetByLoanMonth(ctx, source.LoanID, source.MonthYear.Next())
	if err != nil {
		return nil, err
	}
	sourceID := source.ID
	target.TotalDue = target.TotalDue.Add(penalty)
	target.PenaltySourceEntryID = &sourceID
	return s.repaymentRepo.UpdateEntry(ctx, target)
}

func (s *PenaltyService) publish(ctx context.Context, e event.Event) {
	if s.publisher != nil {
		_ = s.publisher.Publish(ctx, e)
	}
}

func (s *PenaltyService) recordAudit(ctx context.Context, actorID, fundID uuid.UUID, entityType string, entityID uuid.UUID, action string, before, after any) {
	if s.audit == nil {
		return
	}
	fid := fundID
	_ = s.audit.Record(ctx, event.NewAuditEntry(actorID, &fid, entityType, entityID, action, before, after))
}
