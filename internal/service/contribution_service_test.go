package service

import (
	"context"
	"testing"
	"time"

	"github.com/chamahq/chama-backend/internal/domain"
	"github.com/chamahq/chama-backend/internal/event"
	"github.com/chamahq/chama-backend/internal/testutil"
	"github.com/chamahq/chama-backend/internal/util"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type contributionFixture struct {
	svc      *ContributionService
	funds    *testutil.MockFundRepository
	contribs *testutil.MockContributionRepository
	txns     *testutil.MockTransactionRepository
	idem     *testutil.MockIdempotencyRepository
	pub      *testutil.CapturePublisher
	audit    *testutil.CaptureAuditSink
}

func newContributionFixture() *contributionFixture {
	funds := testutil.NewMockFundRepository()
	txns := testutil.NewMockTransactionRepository()
	idem := testutil.NewMockIdempotencyRepository()
	contribs := testutil.NewMockContributionRepository(txns, idem)
	pub := testutil.NewCapturePublisher()
	audit := testutil.NewCaptureAuditSink()
	return &contributionFixture{
		svc:      NewContributionService(funds, contribs, txns, idem, pub, audit),
		funds:    funds,
		contribs: contribs,
		txns:     txns,
		idem:     idem,
		pub:      pub,
		audit:    audit,
	}
}

func TestGenerateDuesOnePerActivePlan(t *testing.T) {
	f := newContributionFixture()
	fund := seedFund(f.funds, domain.FundStateActive)
	planA := seedPlan(f.funds, fund.ID, "500.00")
	planB := seedPlan(f.funds, fund.ID, "750.00")
	inactive := seedPlan(f.funds, fund.ID, "300.00")
	f.funds.Plans[fund.ID][inactive.UserID].IsActive = false

	month := util.NewMonthYear(2025, 1)
	result, err := f.svc.GenerateDues(context.Background(), uuid.New(), fund.ID, month)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Generated)
	assert.Equal(t, 0, result.Skipped)

	dues, err := f.contribs.ListByFundMonth(context.Background(), fund.ID, month)
	require.NoError(t, err)
	require.Len(t, dues, 2)
	byUser := map[uuid.UUID]*domain.ContributionDue{}
	for _, due := range dues {
		byUser[due.UserID] = due
		assert.Equal(t, domain.DuePending, due.Status)
		// Fund config puts contributions on day 5
		assert.Equal(t, time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC), due.DueDate)
	}
	assert.True(t, dec("500.00").Equal(byUser[planA.UserID].AmountDue))
	assert.True(t, dec("750.00").Equal(byUser[planB.UserID].AmountDue))

	assert.Len(t, f.pub.ByType(event.TypeContributionDueGenerated), 1)
}

func TestGenerateDuesRerunSkipsExisting(t *testing.T) {
	f := newContributionFixture()
	fund := seedFund(f.funds, domain.FundStateActive)
	seedPlan(f.funds, fund.ID, "500.00")

	month := util.NewMonthYear(2025, 3)
	_, err := f.svc.GenerateDues(context.Background(), uuid.New(), fund.ID, month)
	require.NoError(t, err)

	result, err := f.svc.GenerateDues(context.Background(), uuid.New(), fund.ID, month)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Generated)
	assert.Equal(t, 1, result.Skipped)
	// The skipped rerun emits no generation event
	assert.Len(t, f.pub.ByType(event.TypeContributionDueGenerated), 1)
}

func TestGenerateDuesBlockedUnlessActive(t *testing.T) {
	f := newContributionFixture()
	fund := seedFund(f.funds, domain.FundStateDissolving)

	_, err := f.svc.GenerateDues(context.Background(), uuid.New(), fund.ID, util.NewMonthYear(2025, 1))
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestRecordContributionFullPayment(t *testing.T) {
	f := newContributionFixture()
	fund := seedFund(f.funds, domain.FundStateActive)
	plan := seedPlan(f.funds, fund.ID, "500.00")
	month := util.NewMonthYear(2025, 1)
	_, err := f.svc.GenerateDues(context.Background(), uuid.New(), fund.ID, month)
	require.NoError(t, err)
	dues, _ := f.contribs.ListByFundMonth(context.Background(), fund.ID, month)
	due := dues[0]

	updated, err := f.svc.RecordPayment(context.Background(), plan.UserID, RecordContributionInput{
		DueID:           due.ID,
		Amount:          dec("500.00"),
		IdempotencyKey:  "pay-jan-1",
		ExpectedVersion: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.DuePaid, updated.Status)
	assert.True(t, dec("500.00").Equal(updated.AmountPaid))
	assert.Equal(t, int64(2), updated.Version)

	require.Len(t, f.txns.Txns, 1)
	assert.Equal(t, domain.TxnContribution, f.txns.Txns[0].Type)
	balance, err := f.txns.Balance(context.Background(), fund.ID)
	require.NoError(t, err)
	assert.True(t, dec("500.00").Equal(balance))

	assert.Len(t, f.pub.ByType(event.TypeContributionPaid), 1)
}

func TestRecordContributionIdempotentRetry(t *testing.T) {
	f := newContributionFixture()
	fund := seedFund(f.funds, domain.FundStateActive)
	plan := seedPlan(f.funds, fund.ID, "500.00")
	month := util.NewMonthYear(2025, 1)
	_, err := f.svc.GenerateDues(context.Background(), uuid.New(), fund.ID, month)
	require.NoError(t, err)
	dues, _ := f.contribs.ListByFundMonth(context.Background(), fund.ID, month)

	input := RecordContributionInput{
		DueID:           dues[0].ID,
		Amount:          dec("500.00"),
		IdempotencyKey:  "pay-jan-1",
		ExpectedVersion: 1,
	}
	_, err = f.svc.RecordPayment(context.Background(), plan.UserID, input)
	require.NoError(t, err)

	// The exact same request again must not produce a second ledger row
	replayed, err := f.svc.RecordPayment(context.Background(), plan.UserID, input)
	require.NoError(t, err)
	assert.Equal(t, domain.DuePaid, replayed.Status)
	assert.Len(t, f.txns.Txns, 1)
	assert.Len(t, f.pub.ByType(event.TypeContributionPaid), 1)
}

func TestRecordContributionKeyReusedForDifferentRequest(t *testing.T) {
	f := newContributionFixture()
	fund := seedFund(f.funds, domain.FundStateActive)
	plan := seedPlan(f.funds, fund.ID, "500.00")
	month := util.NewMonthYear(2025, 1)
	_, err := f.svc.GenerateDues(context.Background(), uuid.New(), fund.ID, month)
	require.NoError(t, err)
	dues, _ := f.contribs.ListByFundMonth(context.Background(), fund.ID, month)

	_, err = f.svc.RecordPayment(context.Background(), plan.UserID, RecordContributionInput{
		DueID:           dues[0].ID,
		Amount:          dec("200.00"),
		IdempotencyKey:  "pay-jan-1",
		ExpectedVersion: 1,
	})
	require.NoError(t, err)

	_, err = f.svc.RecordPayment(context.Background(), plan.UserID, RecordContributionInput{
		DueID:           dues[0].ID,
		Amount:          dec("300.00"),
		IdempotencyKey:  "pay-jan-1",
		ExpectedVersion: 2,
	})
	assert.ErrorIs(t, err, domain.ErrIdempotencyMismatch)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestRecordContributionPartialPayment(t *testing.T) {
	f := newContributionFixture()
	fund := seedFund(f.funds, domain.FundStateActive)
	plan := seedPlan(f.funds, fund.ID, "500.00")
	month := util.NewMonthYear(2025, 1)
	_, err := f.svc.GenerateDues(context.Background(), uuid.New(), fund.ID, month)
	require.NoError(t, err)
	dues, _ := f.contribs.ListByFundMonth(context.Background(), fund.ID, month)

	updated, err := f.svc.RecordPayment(context.Background(), plan.UserID, RecordContributionInput{
		DueID:           dues[0].ID,
		Amount:          dec("200.00"),
		IdempotencyKey:  "pay-jan-part",
		ExpectedVersion: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.DuePartial, updated.Status)
	assert.True(t, dec("300.00").Equal(updated.RemainingBalance()))
}

func TestRecordContributionStaleVersion(t *testing.T) {
	f := newContributionFixture()
	fund := seedFund(f.funds, domain.FundStateActive)
	plan := seedPlan(f.funds, fund.ID, "500.00")
	month := util.NewMonthYear(2025, 1)
	_, err := f.svc.GenerateDues(context.Background(), uuid.New(), fund.ID, month)
	require.NoError(t, err)
	dues, _ := f.contribs.ListByFundMonth(context.Background(), fund.ID, month)

	_, err = f.svc.RecordPayment(context.Background(), plan.UserID, RecordContributionInput{
		DueID:           dues[0].ID,
		Amount:          dec("500.00"),
		IdempotencyKey:  "pay-stale",
		ExpectedVersion: 7,
	})
	assert.ErrorIs(t, err, domain.ErrVersionMismatch)
	assert.Empty(t, f.txns.Txns)
}

func TestRecordContributionRejectsBadInput(t *testing.T) {
	f := newContributionFixture()

	_, err := f.svc.RecordPayment(context.Background(), uuid.New(), RecordContributionInput{
		DueID:           uuid.New(),
		Amount:          dec("0"),
		IdempotencyKey:  "k",
		ExpectedVersion: 1,
	})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.svc.RecordPayment(context.Background(), uuid.New(), RecordContributionInput{
		DueID:           uuid.New(),
		Amount:          dec("10.00"),
		ExpectedVersion: 1,
	})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestDetectOverdueContributions(t *testing.T) {
	f := newContributionFixture()
	fund := seedFund(f.funds, domain.FundStateActive)
	f.funds.Funds[fund.ID].Config.MissedAfterDays = intPtr(30)
	plan := seedPlan(f.funds, fund.ID, "500.00")

	asOf := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	makeDue := func(month util.MonthYear, dueDate time.Time) uuid.UUID {
		due := &domain.ContributionDue{
			ID:        uuid.New(),
			FundID:    fund.ID,
			UserID:    plan.UserID,
			MonthYear: month,
			AmountDue: dec("500.00"),
			Status:    domain.DuePending,
			DueDate:   dueDate,
		}
		_, err := f.contribs.CreateDue(context.Background(), due)
		require.NoError(t, err)
		return due.ID
	}
	lateID := makeDue(util.NewMonthYear(2025, 4), asOf.AddDate(0, 0, -10))
	missedID := makeDue(util.NewMonthYear(2025, 3), asOf.AddDate(0, 0, -40))
	freshID := makeDue(util.NewMonthYear(2025, 5), asOf.AddDate(0, 0, -1))

	flipped, err := f.svc.DetectOverdue(context.Background(), fund.ID, asOf)
	require.NoError(t, err)
	assert.Equal(t, 2, flipped)

	late, _ := f.contribs.GetDueByID(context.Background(), lateID)
	assert.Equal(t, domain.DueLate, late.Status)
	missed, _ := f.contribs.GetDueByID(context.Background(), missedID)
	assert.Equal(t, domain.DueMissed, missed.Status)
	assert.NotNil(t, missed.MissedAt)
	fresh, _ := f.contribs.GetDueByID(context.Background(), freshID)
	// Inside the grace window, nothing changes
	assert.Equal(t, domain.DuePending, fresh.Status)

	assert.Len(t, f.pub.ByType(event.TypeContributionOverdue), 2)
}
