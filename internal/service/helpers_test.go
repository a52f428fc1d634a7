package service

import (
	"context"
	"time"

	"github.com/chamahq/chama-backend/internal/domain"
	"github.com/chamahq/chama-backend/internal/testutil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func intPtr(n int) *int {
	return &n
}

func testConfig() domain.FundConfig {
	return domain.FundConfig{
		MonthlyInterestRate:          dec("0.02"),
		MinimumMonthlyContribution:   dec("100.00"),
		MinimumPrincipalPerRepayment: dec("500.00"),
		LoanApprovalPolicy:           domain.ApprovalAdminOnly,
		OverduePenaltyType:           domain.PenaltyPercentage,
		OverduePenaltyValue:          dec("5"),
		ContributionDayOfMonth:       5,
		GracePeriodDays:              3,
	}
}

// seedFund stores a fund directly at the given state and returns it
func seedFund(repo *testutil.MockFundRepository, state domain.FundState) *domain.Fund {
	fund, _ := repo.Create(context.Background(), &domain.Fund{
		ID:       uuid.New(),
		Name:     "Umoja Savings Circle",
		Currency: "KES",
		Config:   testConfig(),
		State:    state,
	})
	repo.Funds[fund.ID].State = state
	fund.State = state
	return fund
}

func seedPlan(repo *testutil.MockFundRepository, fundID uuid.UUID, amount string) *domain.MemberContributionPlan {
	plan, _ := repo.CreateMemberPlan(context.Background(), &domain.MemberContributionPlan{
		ID:                        uuid.New(),
		FundID:                    fundID,
		UserID:                    uuid.New(),
		MonthlyContributionAmount: dec(amount),
		JoinDate:                  time.Now().UTC(),
		IsActive:                  true,
	})
	return plan
}

// seedActiveLoan stores a disbursed loan with the standard approval snapshot
func seedActiveLoan(repo *testutil.MockLoanRepository, fundID uuid.UUID, outstanding string) *domain.Loan {
	loan, _ := repo.Create(context.Background(), &domain.Loan{
		ID:                   uuid.New(),
		FundID:               fundID,
		BorrowerID:           uuid.New(),
		PrincipalAmount:      dec(outstanding),
		OutstandingPrincipal: dec(outstanding),
		RequestedStartMonth:  202501,
		Status:               domain.LoanActive,
		MonthlyInterestRate:  dec("0.02"),
		ScheduledInstallment: dec("2000.00"),
		MinimumPrincipal:     dec("500.00"),
	})
	return loan
}
