package service

import (
	"context"
	"testing"

	"github.com/chamahq/chama-backend/internal/domain"
	"github.com/chamahq/chama-backend/internal/event"
	"github.com/chamahq/chama-backend/internal/testutil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dissolutionFixture struct {
	svc      *DissolutionService
	funds    *testutil.MockFundRepository
	txns     *testutil.MockTransactionRepository
	loans    *testutil.MockLoanRepository
	repays   *testutil.MockRepaymentRepository
	contribs *testutil.MockContributionRepository
	diss     *testutil.MockDissolutionRepository
	pub      *testutil.CapturePublisher
}

func newDissolutionFixture() *dissolutionFixture {
	funds := testutil.NewMockFundRepository()
	txns := testutil.NewMockTransactionRepository()
	idem := testutil.NewMockIdempotencyRepository()
	loans := testutil.NewMockLoanRepository(txns)
	repays := testutil.NewMockRepaymentRepository(loans, txns, idem)
	contribs := testutil.NewMockContributionRepository(txns, idem)
	diss := testutil.NewMockDissolutionRepository(funds)
	pub := testutil.NewCapturePublisher()
	audit := testutil.NewCaptureAuditSink()
	return &dissolutionFixture{
		svc:      NewDissolutionService(funds, txns, loans, repays, contribs, diss, pub, audit),
		funds:    funds,
		txns:     txns,
		loans:    loans,
		repays:   repays,
		contribs: contribs,
		diss:     diss,
		pub:      pub,
	}
}

func (f *dissolutionFixture) recordContribution(t *testing.T, fundID, userID uuid.UUID, amount, key string) {
	t.Helper()
	uid := userID
	_, err := f.txns.Append(context.Background(), &domain.Transaction{
		ID:             uuid.New(),
		FundID:         fundID,
		UserID:         &uid,
		Type:           domain.TxnContribution,
		Amount:         dec(amount),
		IdempotencyKey: key,
	})
	require.NoError(t, err)
}

func (f *dissolutionFixture) recordInterest(t *testing.T, fundID uuid.UUID, amount, key string) {
	t.Helper()
	_, err := f.txns.Append(context.Background(), &domain.Transaction{
		ID:             uuid.New(),
		FundID:         fundID,
		Type:           domain.TxnInterestIncome,
		Amount:         dec(amount),
		IdempotencyKey: key,
	})
	require.NoError(t, err)
}

func memberItem(view *SettlementView, userID uuid.UUID) *domain.DissolutionLineItem {
	for i := range view.Settlement.LineItems {
		if view.Settlement.LineItems[i].UserID == userID {
			return &view.Settlement.LineItems[i]
		}
	}
	return nil
}

func TestRecalculateSharesInterestProportionally(t *testing.T) {
	f := newDissolutionFixture()
	fund := seedFund(f.funds, domain.FundStateDissolving)
	planA := seedPlan(f.funds, fund.ID, "500.00")
	planB := seedPlan(f.funds, fund.ID, "500.00")

	f.recordContribution(t, fund.ID, planA.UserID, "6000.00", "ca")
	f.recordContribution(t, fund.ID, planB.UserID, "4000.00", "cb")
	f.recordInterest(t, fund.ID, "500.00", "int")

	view, err := f.svc.Recalculate(context.Background(), uuid.New(), fund.ID)
	require.NoError(t, err)
	assert.Empty(t, view.Blockers)
	assert.Equal(t, domain.SettlementReady, view.Settlement.Status)
	assert.True(t, dec("10000.00").Equal(view.Settlement.TotalContributionsCollected))
	assert.True(t, dec("500.00").Equal(view.Settlement.TotalInterestPool))

	itemA := memberItem(view, planA.UserID)
	require.NotNil(t, itemA)
	assert.True(t, dec("300.00").Equal(itemA.InterestShare))
	assert.True(t, dec("6300.00").Equal(itemA.NetPayout))

	itemB := memberItem(view, planB.UserID)
	require.NotNil(t, itemB)
	assert.True(t, dec("200.00").Equal(itemB.InterestShare))
	assert.True(t, dec("4200.00").Equal(itemB.NetPayout))
}

func TestRecalculateRoundingResidualGoesToLargestContributor(t *testing.T) {
	f := newDissolutionFixture()
	fund := seedFund(f.funds, domain.FundStateDissolving)
	planA := seedPlan(f.funds, fund.ID, "500.00")
	planB := seedPlan(f.funds, fund.ID, "500.00")

	f.recordContribution(t, fund.ID, planA.UserID, "100.00", "ca")
	f.recordContribution(t, fund.ID, planB.UserID, "100.00", "cb")
	// Each half-share rounds to 0.02, overshooting the pool by 0.01
	f.recordInterest(t, fund.ID, "0.03", "int")

	view, err := f.svc.Recalculate(context.Background(), uuid.New(), fund.ID)
	require.NoError(t, err)

	shareSum := decimal.Zero
	for _, item := range view.Settlement.LineItems {
		shareSum = shareSum.Add(item.InterestShare)
	}
	assert.True(t, dec("0.03").Equal(shareSum), "shares must sum to the interest pool, got %s", shareSum)

	// The tie breaks toward the smaller user id
	first, second := planA.UserID, planB.UserID
	if second.String() < first.String() {
		first, second = second, first
	}
	assert.True(t, dec("0.01").Equal(memberItem(view, first).InterestShare))
	assert.True(t, dec("0.02").Equal(memberItem(view, second).InterestShare))
}

func TestRecalculateBlockedByNegativeNetPayout(t *testing.T) {
	f := newDissolutionFixture()
	fund := seedFund(f.funds, domain.FundStateDissolving)
	saver := seedPlan(f.funds, fund.ID, "500.00")
	borrowerPlan := seedPlan(f.funds, fund.ID, "500.00")

	f.recordContribution(t, fund.ID, saver.UserID, "6000.00", "ca")
	f.recordContribution(t, fund.ID, borrowerPlan.UserID, "1000.00", "cb")

	loan := seedActiveLoan(f.loans, fund.ID, "5000.00")
	f.loans.Loans[loan.ID].BorrowerID = borrowerPlan.UserID

	view, err := f.svc.Recalculate(context.Background(), uuid.New(), fund.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementDraft, view.Settlement.Status)
	require.Len(t, view.Blockers, 1)
	assert.Equal(t, borrowerPlan.UserID, view.Blockers[0])

	item := memberItem(view, borrowerPlan.UserID)
	require.NotNil(t, item)
	assert.True(t, item.NetPayout.IsNegative())
	assert.True(t, dec("5000.00").Equal(item.OutstandingLoanPrincipal))
}

func TestRecalculateDeductsUnpaidDues(t *testing.T) {
	f := newDissolutionFixture()
	fund := seedFund(f.funds, domain.FundStateDissolving)
	plan := seedPlan(f.funds, fund.ID, "500.00")

	f.recordContribution(t, fund.ID, plan.UserID, "2000.00", "ca")
	_, err := f.contribs.CreateDue(context.Background(), &domain.ContributionDue{
		ID:        uuid.New(),
		FundID:    fund.ID,
		UserID:    plan.UserID,
		MonthYear: 202503,
		AmountDue: dec("500.00"),
		Status:    domain.DueMissed,
	})
	require.NoError(t, err)

	view, err := f.svc.Recalculate(context.Background(), uuid.New(), fund.ID)
	require.NoError(t, err)

	item := memberItem(view, plan.UserID)
	require.NotNil(t, item)
	assert.True(t, dec("500.00").Equal(item.UnpaidDues))
	assert.True(t, dec("1500.00").Equal(item.NetPayout))
}

func TestRecalculateRequiresDissolvingFund(t *testing.T) {
	f := newDissolutionFixture()
	fund := seedFund(f.funds, domain.FundStateActive)

	_, err := f.svc.Recalculate(context.Background(), uuid.New(), fund.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestConfirmSettlementDissolvesFund(t *testing.T) {
	f := newDissolutionFixture()
	fund := seedFund(f.funds, domain.FundStateDissolving)
	plan := seedPlan(f.funds, fund.ID, "500.00")
	f.recordContribution(t, fund.ID, plan.UserID, "2000.00", "ca")

	_, err := f.svc.Recalculate(context.Background(), uuid.New(), fund.ID)
	require.NoError(t, err)

	confirmed, err := f.svc.Confirm(context.Background(), uuid.New(), fund.ID, fund.Version)
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementConfirmed, confirmed.Status)
	assert.NotNil(t, confirmed.SettlementDate)

	stored := f.funds.Funds[fund.ID]
	assert.Equal(t, domain.FundStateDissolved, stored.State)
	assert.Equal(t, fund.Version+1, stored.Version)
	assert.Len(t, f.pub.ByType(event.TypeFundDissolved), 1)

	// The confirmed settlement cannot be rebuilt
	_, err = f.svc.Recalculate(context.Background(), uuid.New(), fund.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestConfirmSettlementStaleVersion(t *testing.T) {
	f := newDissolutionFixture()
	fund := seedFund(f.funds, domain.FundStateDissolving)
	plan := seedPlan(f.funds, fund.ID, "500.00")
	f.recordContribution(t, fund.ID, plan.UserID, "2000.00", "ca")

	_, err := f.svc.Recalculate(context.Background(), uuid.New(), fund.ID)
	require.NoError(t, err)

	_, err = f.svc.Confirm(context.Background(), uuid.New(), fund.ID, fund.Version+5)
	assert.ErrorIs(t, err, domain.ErrVersionMismatch)
	assert.Equal(t, domain.FundStateDissolving, f.funds.Funds[fund.ID].State)
}

func TestConfirmSettlementWithBlockers(t *testing.T) {
	f := newDissolutionFixture()
	fund := seedFund(f.funds, domain.FundStateDissolving)
	borrowerPlan := seedPlan(f.funds, fund.ID, "500.00")
	f.recordContribution(t, fund.ID, borrowerPlan.UserID, "1000.00", "cb")
	loan := seedActiveLoan(f.loans, fund.ID, "5000.00")
	f.loans.Loans[loan.ID].BorrowerID = borrowerPlan.UserID

	view, err := f.svc.Recalculate(context.Background(), uuid.New(), fund.ID)
	require.NoError(t, err)
	require.Equal(t, domain.SettlementDraft, view.Settlement.Status)

	// A draft settlement cannot be confirmed
	_, err = f.svc.Confirm(context.Background(), uuid.New(), fund.ID, fund.Version)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}
