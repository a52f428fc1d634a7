package service

import (
	"context"
	"testing"

	"github.com/chamahq/chama-backend/internal/domain"
	"github.com/chamahq/chama-backend/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOverviewAggregatesMemberPositions(t *testing.T) {
	funds := testutil.NewMockFundRepository()
	txns := testutil.NewMockTransactionRepository()
	idem := testutil.NewMockIdempotencyRepository()
	loans := testutil.NewMockLoanRepository(txns)
	contribs := testutil.NewMockContributionRepository(txns, idem)
	svc := NewOverviewService(funds, txns, contribs, loans)

	fund := seedFund(funds, domain.FundStateActive)
	saver := seedPlan(funds, fund.ID, "500.00")
	borrower := seedPlan(funds, fund.ID, "500.00")

	for i, seed := range []struct {
		userID uuid.UUID
		amount string
	}{
		{saver.UserID, "3000.00"},
		{borrower.UserID, "1000.00"},
	} {
		uid := seed.userID
		_, err := txns.Append(context.Background(), &domain.Transaction{
			ID: uuid.New(), FundID: fund.ID, UserID: &uid,
			Type: domain.TxnContribution, Amount: dec(seed.amount),
			IdempotencyKey: string(rune('a' + i)),
		})
		require.NoError(t, err)
	}

	loan := seedActiveLoan(loans, fund.ID, "8000.00")
	loans.Loans[loan.ID].BorrowerID = borrower.UserID

	_, err := contribs.CreateDue(context.Background(), &domain.ContributionDue{
		ID: uuid.New(), FundID: fund.ID, UserID: borrower.UserID,
		MonthYear: 202503, AmountDue: dec("500.00"), Status: domain.DueLate,
	})
	require.NoError(t, err)

	overview, err := svc.GetOverview(context.Background(), fund.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.FundStateActive, overview.State)
	assert.True(t, dec("4000.00").Equal(overview.PoolBalance))
	require.Len(t, overview.Members, 2)

	byUser := make(map[uuid.UUID]MemberOverview)
	for _, m := range overview.Members {
		byUser[m.UserID] = m
	}

	assert.True(t, dec("3000.00").Equal(byUser[saver.UserID].TotalContributed))
	assert.True(t, byUser[saver.UserID].OutstandingLoanPrincipal.IsZero())
	assert.Equal(t, 0, byUser[saver.UserID].ActiveLoans)

	assert.True(t, dec("1000.00").Equal(byUser[borrower.UserID].TotalContributed))
	assert.True(t, dec("8000.00").Equal(byUser[borrower.UserID].OutstandingLoanPrincipal))
	assert.True(t, dec("500.00").Equal(byUser[borrower.UserID].UnpaidDues))
	assert.Equal(t, 1, byUser[borrower.UserID].ActiveLoans)
}

func TestGetOverviewUnknownFund(t *testing.T) {
	funds := testutil.NewMockFundRepository()
	txns := testutil.NewMockTransactionRepository()
	idem := testutil.NewMockIdempotencyRepository()
	loans := testutil.NewMockLoanRepository(txns)
	contribs := testutil.NewMockContributionRepository(txns, idem)
	svc := NewOverviewService(funds, txns, contribs, loans)

	_, err := svc.GetOverview(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
