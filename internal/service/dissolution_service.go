package service

import (
	"context"
	"sort"
	"time"

	"github.com/chamahq/chama-backend/internal/domain"
	"github.com/chamahq/chama-backend/internal/event"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DissolutionService computes the terminal per-member settlement for a
// dissolving fund and confirms it into the fund's final state
type DissolutionService struct {
	fundRepo         domain.FundRepository
	transactionRepo  domain.TransactionRepository
	loanRepo         domain.LoanRepository
	repaymentRepo    domain.RepaymentRepository
	contributionRepo domain.ContributionRepository
	dissolutionRepo  domain.DissolutionRepository
	publisher        event.Publisher
	audit            event.AuditSink
}

// NewDissolutionService creates a new DissolutionService
func NewDissolutionService(
	fundRepo domain.FundRepository,
	transactionRepo domain.TransactionRepository,
	loanRepo domain.LoanRepository,
	repaymentRepo domain.RepaymentRepository,
	contributionRepo domain.ContributionRepository,
	dissolutionRepo domain.DissolutionRepository,
	publisher event.Publisher,
	audit event.AuditSink,
) *DissolutionService {
	return &DissolutionService{
		fundRepo:         fundRepo,
		transactionRepo:  transactionRepo,
		loanRepo:         loanRepo,
		repaymentRepo:    repaymentRepo,
		contributionRepo: contributionRepo,
		dissolutionRepo:  dissolutionRepo,
		publisher:        publisher,
		audit:            audit,
	}
}

// SettlementView is a settlement plus the members blocking confirmation
type SettlementView struct {
	Settlement *domain.DissolutionSettlement `json:"settlement"`
	Blockers   []uuid.UUID                   `json:"blockers,omitempty"`
}

// Recalculate rebuilds the settlement from the ledger. Interest is shared in
// proportion to each member's paid contributions, with the rounding residual
// assigned to the largest contributor (ties broken by smallest userId).
// The settlement is Ready only when no member's net payout is negative.
func (s *DissolutionService) Recalculate(ctx context.Context, actorID, fundID uuid.UUID) (*SettlementView, error) {
	fund, err := s.fundRepo.GetByID(ctx, fundID)
	if err != nil {
		return nil, err
	}
	if fund.State != domain.FundStateDissolving {
		return nil, domain.ErrInvalidState
	}

	totalContributions, err := s.transactionRepo.SumByType(ctx, fundID, domain.TxnContribution)
	if err != nil {
		return nil, err
	}
	totalInterest, err := s.transactionRepo.SumByType(ctx, fundID, domain.TxnInterestIncome)
	if err != nil {
		return nil, err
	}
	paidByUser, err := s.transactionRepo.SumByTypeAndUser(ctx, fundID, domain.TxnContribution)
	if err != nil {
		return nil, err
	}
	outstandingByUser, err := s.loanRepo.SumOutstandingByBorrower(ctx, fundID)
	if err != nil {
		return nil, err
	}
	unpaidInterestByUser, err := s.repaymentRepo.SumUnpaidInterestByUser(ctx, fundID)
	if err != nil {
		return nil, err
	}
	unpaidDuesByUser, err := s.contributionRepo.SumUnpaidByUser(ctx, fundID)
	if err != nil {
		return nil, err
	}

	plans, err := s.fundRepo.ListMemberPlans(ctx, fundID, true)
	if err != nil {
		return nil, err
	}

	items := make([]domain.DissolutionLineItem, 0, len(plans))
	shareSum := decimal.Zero
	for _, plan := range plans {
		paid := paidByUser[plan.UserID]
		share := decimal.Zero
		if totalContributions.IsPositive() {
			share = totalInterest.Mul(paid).Div(totalContributions).RoundBank(2)
		}
		shareSum = shareSum.Add(share)
		items = append(items, domain.DissolutionLineItem{
			UserID:                   plan.UserID,
			TotalPaidContributions:   paid,
			InterestShare:            share,
			OutstandingLoanPrincipal: outstandingByUser[plan.UserID],
			UnpaidInterest:           unpaidInterestByUser[plan.UserID],
			UnpaidDues:               unpaidDuesByUser[plan.UserID],
		})
	}

	// Hand the rounding residual to the largest contributor so interest
	// shares sum to the pool exactly
	if residual := totalInterest.Sub(shareSum); !residual.IsZero() && len(items) > 0 {
		idx := 0
		for i := 1; i < len(items); i++ {
			switch items[i].TotalPaidContributions.Cmp(items[idx].TotalPaidContributions) {
			case 1:
				idx = i
			case 0:
				if items[i].UserID.String() < items[idx].UserID.String() {
					idx = i
				}
			}
		}
		items[idx].InterestShare = items[idx].InterestShare.Add(residual)
	}

	for i := range items {
		items[i].GrossPayout = items[i].TotalPaidContributions.Add(items[i].InterestShare)
		deductions := items[i].OutstandingLoanPrincipal.Add(items[i].UnpaidInterest).Add(items[i].UnpaidDues)
		items[i].NetPayout = items[i].GrossPayout.Sub(deductions)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].UserID.String() < items[j].UserID.String()
	})

	settlement := &domain.DissolutionSettlement{
		ID:                          uuid.New(),
		FundID:                      fundID,
		Status:                      domain.SettlementDraft,
		TotalContributionsCollected: totalContributions,
		TotalInterestPool:           totalInterest,
		LineItems:                   items,
	}
	blockers := settlement.Blockers()
	if len(blockers) == 0 {
		settlement.Status = domain.SettlementReady
	}

	saved, err := s.dissolutionRepo.Upsert(ctx, settlement)
	if err != nil {
		return nil, err
	}

	s.recordAudit(ctx, actorID, fundID, "DissolutionSettlement", saved.ID, "SettlementRecalculated", nil, saved)
	return &SettlementView{Settlement: saved, Blockers: blockers}, nil
}

// Confirm finalises a Ready settlement and moves the fund to Dissolved. The
// settlement and fund transitions commit together; the fund is read-only
// afterwards.
func (s *DissolutionService) Confirm(ctx context.Context, actorID, fundID uuid.UUID, expectedVersion int64) (*domain.DissolutionSettlement, error) {
	settlement, err := s.dissolutionRepo.GetByFundID(ctx, fundID)
	if err != nil {
		return nil, err
	}
	fund, err := s.fundRepo.GetByID(ctx, fundID)
	if err != nil {
		return nil, err
	}
	if fund.Version != expectedVersion {
		return nil, domain.ErrVersionMismatch
	}

	now := time.Now().UTC()
	if err := settlement.Confirm(now); err != nil {
		return nil, err
	}
	if err := fund.ConfirmDissolution(); err != nil {
		return nil, err
	}

	confirmed, err := s.dissolutionRepo.ConfirmSettlement(ctx, settlement, fund)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, event.New(event.TypeFundDissolved, fundID, fund))
	s.recordAudit(ctx, actorID, fundID, "DissolutionSettlement", confirmed.ID, "SettlementConfirmed", nil, confirmed)
	return confirmed, nil
}

// GetSettlement retrieves the fund's settlement with its current blockers
func (s *DissolutionService) GetSettlement(ctx context.Context, fundID uuid.UUID) (*SettlementView, error) {
	settlement, err := s.dissolutionRepo.GetByFundID(ctx, fundID)
	if err != nil {
		return nil, err
	}
	return &SettlementView{Settlement: settlement, Blockers: settlement.Blockers()}, nil
}

func (s *DissolutionService) publish(ctx context.Context, e event.Event) {
	if s.publisher != nil {
		_ = s.publisher.Publish(ctx, e)
	}
}

func (s *DissolutionService) recordAudit(ctx context.Context, actorID, fundID uuid.UUID, entityType string, entityID uuid.UUID, action string, before, after any) {
	if s.audit == nil {
		return
	}
	fid := fundID
	_ = s.audit.Record(ctx, event.NewAuditEntry(actorID, &fid, entityType, entityID, action, before, after))
}
