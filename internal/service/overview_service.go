package service

import (
	"context"

	"github.com/chamahq/chama-backend/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OverviewService builds the read-only fund dashboard from the ledger and
// the per-aggregate stores
type OverviewService struct {
	fundRepo         domain.FundRepository
	transactionRepo  domain.TransactionRepository
	contributionRepo domain.ContributionRepository
	loanRepo         domain.LoanRepository
}

// NewOverviewService creates a new OverviewService
func NewOverviewService(
	fundRepo domain.FundRepository,
	transactionRepo domain.TransactionRepository,
	contributionRepo domain.ContributionRepository,
	loanRepo domain.LoanRepository,
) *OverviewService {
	return &OverviewService{
		fundRepo:         fundRepo,
		transactionRepo:  transactionRepo,
		contributionRepo: contributionRepo,
		loanRepo:         loanRepo,
	}
}

// MemberOverview is one member's row in the fund dashboard
type MemberOverview struct {
	UserID                   uuid.UUID       `json:"userId"`
	MonthlyContribution      decimal.Decimal `json:"monthlyContribution"`
	TotalContributed         decimal.Decimal `json:"totalContributed"`
	UnpaidDues               decimal.Decimal `json:"unpaidDues"`
	OutstandingLoanPrincipal decimal.Decimal `json:"outstandingLoanPrincipal"`
	ActiveLoans              int             `json:"activeLoans"`
}

// FundOverview is the fund dashboard summary
type FundOverview struct {
	FundID      uuid.UUID        `json:"fundId"`
	State       domain.FundState `json:"state"`
	PoolBalance decimal.Decimal  `json:"poolBalance"`
	Members     []MemberOverview `json:"members"`
}

// GetOverview aggregates the fund pool balance and per-member positions
func (s *OverviewService) GetOverview(ctx context.Context, fundID uuid.UUID) (*FundOverview, error) {
	fund, err := s.fundRepo.GetByID(ctx, fundID)
	if err != nil {
		return nil, err
	}

	balance, err := s.transactionRepo.Balance(ctx, fundID)
	if err != nil {
		return nil, err
	}
	plans, err := s.fundRepo.ListMemberPlans(ctx, fundID, true)
	if err != nil {
		return nil, err
	}
	contributed, err := s.transactionRepo.SumByTypeAndUser(ctx, fundID, domain.TxnContribution)
	if err != nil {
		return nil, err
	}
	unpaidDues, err := s.contributionRepo.SumUnpaidByUser(ctx, fundID)
	if err != nil {
		return nil, err
	}
	outstanding, err := s.loanRepo.SumOutstandingByBorrower(ctx, fundID)
	if err != nil {
		return nil, err
	}
	activeLoans, err := s.loanRepo.ListActiveByFund(ctx, fundID)
	if err != nil {
		return nil, err
	}
	activeCounts := make(map[uuid.UUID]int, len(activeLoans))
	for _, loan := range activeLoans {
		activeCounts[loan.BorrowerID]++
	}

	overview := &FundOverview{
		FundID:      fundID,
		State:       fund.State,
		PoolBalance: balance,
		Members:     make([]MemberOverview, 0, len(plans)),
	}
	for _, plan := range plans {
		overview.Members = append(overview.Members, MemberOverview{
			UserID:                   plan.UserID,
			MonthlyContribution:      plan.MonthlyContributionAmount,
			TotalContributed:         contributed[plan.UserID],
			UnpaidDues:               unpaidDues[plan.UserID],
			OutstandingLoanPrincipal: outstanding[plan.UserID],
			ActiveLoans:              activeCounts[plan.UserID],
		})
	}
	return overview, nil
}
