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

type penaltyFixture struct {
	svc    *PenaltyService
	loans  *testutil.MockLoanRepository
	repays *testutil.MockRepaymentRepository
	proj   *testutil.MockFundProjectionRepository
	pub    *testutil.CapturePublisher
}

func newPenaltyFixture(fundID uuid.UUID, penaltyType domain.PenaltyType, penaltyValue string) *penaltyFixture {
	txns := testutil.NewMockTransactionRepository()
	idem := testutil.NewMockIdempotencyRepository()
	loans := testutil.NewMockLoanRepository(txns)
	repays := testutil.NewMockRepaymentRepository(loans, txns, idem)
	proj := testutil.NewMockFundProjectionRepository()
	pub := testutil.NewCapturePublisher()
	audit := testutil.NewCaptureAuditSink()

	_ = proj.Upsert(context.Background(), &domain.FundProjection{
		FundID:       fundID,
		PenaltyType:  penaltyType,
		PenaltyValue: dec(penaltyValue),
		IsActive:     true,
	})

	return &penaltyFixture{
		svc:    NewPenaltyService(repays, proj, pub, audit),
		loans:  loans,
		repays: repays,
		proj:   proj,
		pub:    pub,
	}
}

func (f *penaltyFixture) seedOverdueEntry(t *testing.T, fundID, loanID uuid.UUID, month util.MonthYear, totalDue, amountPaid string) *domain.RepaymentEntry {
	t.Helper()
	entry := &domain.RepaymentEntry{
		ID:           uuid.New(),
		LoanID:       loanID,
		FundID:       fundID,
		MonthYear:    month,
		InterestDue:  dec("0"),
		PrincipalDue: dec(totalDue),
		TotalDue:     dec(totalDue),
		AmountPaid:   dec(amountPaid),
		Status:       domain.RepaymentOverdue,
		DueDate:      month.LastDay(),
	}
	created, err := f.repays.CreateEntry(context.Background(), entry)
	require.NoError(t, err)
	require.True(t, created)
	f.repays.Entries[entry.ID].Status = domain.RepaymentOverdue
	return entry
}

func TestApplyPenaltiesCarriesIntoNextMonth(t *testing.T) {
	fundID := uuid.New()
	f := newPenaltyFixture(fundID, domain.PenaltyPercentage, "5")
	loanID := uuid.New()
	source := f.seedOverdueEntry(t, fundID, loanID, util.NewMonthYear(2025, 3), "1000.00", "0")

	applied, err := f.svc.ApplyPenalties(context.Background(), fundID)
	require.NoError(t, err)
	assert.Equal(t, 1, applied)

	// 5% of the 1000 overdue balance lands in a fresh April entry
	target, err := f.repays.GetByLoanMonth(context.Background(), loanID, util.NewMonthYear(2025, 4))
	require.NoError(t, err)
	assert.True(t, dec("50.00").Equal(target.TotalDue))
	assert.True(t, target.InterestDue.IsZero())
	assert.True(t, target.PrincipalDue.IsZero())
	assert.Equal(t, domain.RepaymentPending, target.Status)
	assert.Equal(t, time.Date(2025, 4, 15, 0, 0, 0, 0, time.UTC), target.DueDate)
	require.NotNil(t, target.PenaltySourceEntryID)
	assert.Equal(t, source.ID, *target.PenaltySourceEntryID)

	assert.Len(t, f.pub.ByType(event.TypeRepaymentPenaltyApplied), 1)
}

func TestApplyPenaltiesRerunDoesNotDouble(t *testing.T) {
	fundID := uuid.New()
	f := newPenaltyFixture(fundID, domain.PenaltyPercentage, "5")
	loanID := uuid.New()
	f.seedOverdueEntry(t, fundID, loanID, util.NewMonthYear(2025, 3), "1000.00", "0")

	_, err := f.svc.ApplyPenalties(context.Background(), fundID)
	require.NoError(t, err)

	applied, err := f.svc.ApplyPenalties(context.Background(), fundID)
	require.NoError(t, err)
	assert.Equal(t, 0, applied)

	target, err := f.repays.GetByLoanMonth(context.Background(), loanID, util.NewMonthYear(2025, 4))
	require.NoError(t, err)
	assert.True(t, dec("50.00").Equal(target.TotalDue))
	assert.Len(t, f.pub.ByType(event.TypeRepaymentPenaltyApplied), 1)
}

func TestApplyPenaltiesAddsToExistingEntry(t *testing.T) {
	fundID := uuid.New()
	f := newPenaltyFixture(fundID, domain.PenaltyPercentage, "5")
	loanID := uuid.New()
	f.seedOverdueEntry(t, fundID, loanID, util.NewMonthYear(2025, 3), "1000.00", "0")

	next := &domain.RepaymentEntry{
		ID:           uuid.New(),
		LoanID:       loanID,
		FundID:       fundID,
		MonthYear:    util.NewMonthYear(2025, 4),
		InterestDue:  dec("200.00"),
		PrincipalDue: dec("1800.00"),
		TotalDue:     dec("2000.00"),
		AmountPaid:   dec("0"),
		Status:       domain.RepaymentPending,
		DueDate:      util.NewMonthYear(2025, 4).LastDay(),
	}
	created, err := f.repays.CreateEntry(context.Background(), next)
	require.NoError(t, err)
	require.True(t, created)

	applied, err := f.svc.ApplyPenalties(context.Background(), fundID)
	require.NoError(t, err)
	assert.Equal(t, 1, applied)

	target, err := f.repays.GetEntryByID(context.Background(), next.ID)
	require.NoError(t, err)
	assert.True(t, dec("2050.00").Equal(target.TotalDue))
	require.NotNil(t, target.PenaltySourceEntryID)
}

func TestApplyPenaltiesReopensPaidEntry(t *testing.T) {
	fundID := uuid.New()
	f := newPenaltyFixture(fundID, domain.PenaltyFlat, "25.00")
	loanID := uuid.New()
	f.seedOverdueEntry(t, fundID, loanID, util.NewMonthYear(2025, 3), "1000.00", "100.00")

	paidAt := time.Now().UTC()
	next := &domain.RepaymentEntry{
		ID:         uuid.New(),
		LoanID:     loanID,
		FundID:     fundID,
		MonthYear:  util.NewMonthYear(2025, 4),
		TotalDue:   dec("2000.00"),
		AmountPaid: dec("2000.00"),
		Status:     domain.RepaymentPaid,
		DueDate:    util.NewMonthYear(2025, 4).LastDay(),
		PaidDate:   &paidAt,
	}
	created, err := f.repays.CreateEntry(context.Background(), next)
	require.NoError(t, err)
	require.True(t, created)

	applied, err := f.svc.ApplyPenalties(context.Background(), fundID)
	require.NoError(t, err)
	assert.Equal(t, 1, applied)

	target, err := f.repays.GetEntryByID(context.Background(), next.ID)
	require.NoError(t, err)
	// The flat penalty reopens the already settled month
	assert.True(t, dec("2025.00").Equal(target.TotalDue))
	assert.Equal(t, domain.RepaymentPartial, target.Status)
	assert.Nil(t, target.PaidDate)
}

func TestApplyPenaltiesNoneConfigured(t *testing.T) {
	fundID := uuid.New()
	f := newPenaltyFixture(fundID, domain.PenaltyNone, "0")
	f.seedOverdueEntry(t, fundID, uuid.New(), util.NewMonthYear(2025, 3), "1000.00", "0")

	applied, err := f.svc.ApplyPenalties(context.Background(), fundID)
	require.NoError(t, err)
	assert.Equal(t, 0, applied)
}
