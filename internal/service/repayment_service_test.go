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

type repaymentFixture struct {
	svc    *RepaymentService
	loans  *testutil.MockLoanRepository
	repays *testutil.MockRepaymentRepository
	txns   *testutil.MockTransactionRepository
	idem   *testutil.MockIdempotencyRepository
	pub    *testutil.CapturePublisher
	audit  *testutil.CaptureAuditSink
}

func newRepaymentFixture() *repaymentFixture {
	txns := testutil.NewMockTransactionRepository()
	idem := testutil.NewMockIdempotencyRepository()
	loans := testutil.NewMockLoanRepository(txns)
	repays := testutil.NewMockRepaymentRepository(loans, txns, idem)
	pub := testutil.NewCapturePublisher()
	audit := testutil.NewCaptureAuditSink()
	return &repaymentFixture{
		svc:    NewRepaymentService(loans, repays, idem, pub, audit),
		loans:  loans,
		repays: repays,
		txns:   txns,
		idem:   idem,
		pub:    pub,
		audit:  audit,
	}
}

func TestGenerateEntryReducingBalance(t *testing.T) {
	f := newRepaymentFixture()
	loan := seedActiveLoan(f.loans, uuid.New(), "10000.00")

	entry, created, err := f.svc.GenerateEntry(context.Background(), uuid.Nil, loan.ID, util.NewMonthYear(2025, 1))
	require.NoError(t, err)
	assert.True(t, created)
	// 2% of 10000 outstanding
	assert.True(t, dec("200.00").Equal(entry.InterestDue))
	// Installment 2000 covers interest first, remainder to principal
	assert.True(t, dec("1800.00").Equal(entry.PrincipalDue))
	assert.True(t, dec("2000.00").Equal(entry.TotalDue))
	assert.Equal(t, domain.RepaymentPending, entry.Status)
	assert.Equal(t, time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC), entry.DueDate)

	// Re-running the same month returns the existing entry unchanged
	again, created, err := f.svc.GenerateEntry(context.Background(), uuid.Nil, loan.ID, util.NewMonthYear(2025, 1))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, entry.ID, again.ID)
	assert.Len(t, f.pub.ByType(event.TypeRepaymentDueGenerated), 1)
}

func TestGenerateEntryMinimumPrincipalFloor(t *testing.T) {
	f := newRepaymentFixture()
	loan := seedActiveLoan(f.loans, uuid.New(), "10000.00")
	f.loans.Loans[loan.ID].ScheduledInstallment = dec("600.00")

	entry, _, err := f.svc.GenerateEntry(context.Background(), uuid.Nil, loan.ID, util.NewMonthYear(2025, 1))
	require.NoError(t, err)
	// Installment 600 leaves 400 after interest, below the 500 floor
	assert.True(t, dec("200.00").Equal(entry.InterestDue))
	assert.True(t, dec("500.00").Equal(entry.PrincipalDue))
}

func TestGenerateEntryFinalInstallmentCapped(t *testing.T) {
	f := newRepaymentFixture()
	loan := seedActiveLoan(f.loans, uuid.New(), "300.00")

	entry, _, err := f.svc.GenerateEntry(context.Background(), uuid.Nil, loan.ID, util.NewMonthYear(2025, 1))
	require.NoError(t, err)
	// Principal due never exceeds what is left on the loan
	assert.True(t, dec("6.00").Equal(entry.InterestDue))
	assert.True(t, dec("300.00").Equal(entry.PrincipalDue))
}

func TestGenerateEntryRequiresActiveLoan(t *testing.T) {
	f := newRepaymentFixture()
	loan := seedActiveLoan(f.loans, uuid.New(), "10000.00")
	f.loans.Loans[loan.ID].Status = domain.LoanPendingApproval

	_, _, err := f.svc.GenerateEntry(context.Background(), uuid.Nil, loan.ID, util.NewMonthYear(2025, 1))
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestRecordRepaymentInterestFirstAllocation(t *testing.T) {
	f := newRepaymentFixture()
	loan := seedActiveLoan(f.loans, uuid.New(), "10000.00")
	entry, _, err := f.svc.GenerateEntry(context.Background(), uuid.Nil, loan.ID, util.NewMonthYear(2025, 1))
	require.NoError(t, err)

	receipt, err := f.svc.RecordPayment(context.Background(), uuid.New(), RecordRepaymentInput{
		EntryID:         entry.ID,
		Amount:          dec("2500.00"),
		IdempotencyKey:  "repay-jan",
		ExpectedVersion: 1,
	})
	require.NoError(t, err)
	assert.True(t, dec("200.00").Equal(receipt.InterestPaid))
	assert.True(t, dec("1800.00").Equal(receipt.PrincipalPaid))
	assert.True(t, dec("500.00").Equal(receipt.ExcessToPrincipal))
	assert.True(t, dec("7700.00").Equal(receipt.LoanOutstanding))
	assert.False(t, receipt.LoanClosed)
	assert.Equal(t, domain.RepaymentPaid, receipt.Entry.Status)

	stored := f.loans.Loans[loan.ID]
	assert.True(t, dec("7700.00").Equal(stored.OutstandingPrincipal))
	assert.Equal(t, domain.LoanActive, stored.Status)

	// One cash row plus one interest income row
	require.Len(t, f.txns.Txns, 2)
	assert.Equal(t, domain.TxnRepayment, f.txns.Txns[0].Type)
	assert.True(t, dec("2500.00").Equal(f.txns.Txns[0].Amount))
	assert.Equal(t, domain.TxnInterestIncome, f.txns.Txns[1].Type)
	assert.True(t, dec("200.00").Equal(f.txns.Txns[1].Amount))

	assert.Len(t, f.pub.ByType(event.TypeRepaymentRecorded), 1)
	assert.Empty(t, f.pub.ByType(event.TypeLoanClosed))
}

func TestRecordRepaymentRejectsOverpayment(t *testing.T) {
	f := newRepaymentFixture()
	loan := seedActiveLoan(f.loans, uuid.New(), "10000.00")
	entry, _, err := f.svc.GenerateEntry(context.Background(), uuid.Nil, loan.ID, util.NewMonthYear(2025, 1))
	require.NoError(t, err)

	// More than interest plus the whole outstanding principal
	_, err = f.svc.RecordPayment(context.Background(), uuid.New(), RecordRepaymentInput{
		EntryID:         entry.ID,
		Amount:          dec("15000.00"),
		IdempotencyKey:  "repay-too-much",
		ExpectedVersion: 1,
	})
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Empty(t, f.txns.Txns)
}

func TestRecordRepaymentClosesLoanAtZero(t *testing.T) {
	f := newRepaymentFixture()
	loan := seedActiveLoan(f.loans, uuid.New(), "10000.00")
	entry, _, err := f.svc.GenerateEntry(context.Background(), uuid.Nil, loan.ID, util.NewMonthYear(2025, 1))
	require.NoError(t, err)

	// Interest 200 plus the full 10000 principal
	receipt, err := f.svc.RecordPayment(context.Background(), uuid.New(), RecordRepaymentInput{
		EntryID:         entry.ID,
		Amount:          dec("10200.00"),
		IdempotencyKey:  "repay-settle",
		ExpectedVersion: 1,
	})
	require.NoError(t, err)
	assert.True(t, receipt.LoanClosed)
	assert.True(t, receipt.LoanOutstanding.IsZero())
	assert.True(t, dec("8200.00").Equal(receipt.ExcessToPrincipal))

	stored := f.loans.Loans[loan.ID]
	assert.Equal(t, domain.LoanClosed, stored.Status)
	assert.NotNil(t, stored.ClosedDate)
	assert.Len(t, f.pub.ByType(event.TypeLoanClosed), 1)
}

func TestRecordRepaymentIdempotentRetry(t *testing.T) {
	f := newRepaymentFixture()
	loan := seedActiveLoan(f.loans, uuid.New(), "10000.00")
	entry, _, err := f.svc.GenerateEntry(context.Background(), uuid.Nil, loan.ID, util.NewMonthYear(2025, 1))
	require.NoError(t, err)

	input := RecordRepaymentInput{
		EntryID:         entry.ID,
		Amount:          dec("2500.00"),
		IdempotencyKey:  "repay-jan",
		ExpectedVersion: 1,
	}
	_, err = f.svc.RecordPayment(context.Background(), uuid.New(), input)
	require.NoError(t, err)

	replayed, err := f.svc.RecordPayment(context.Background(), uuid.New(), input)
	require.NoError(t, err)
	assert.Equal(t, domain.RepaymentPaid, replayed.Entry.Status)
	assert.True(t, dec("7700.00").Equal(replayed.LoanOutstanding))
	// No second set of ledger rows
	assert.Len(t, f.txns.Txns, 2)
	assert.Len(t, f.pub.ByType(event.TypeRepaymentRecorded), 1)

	assert.True(t, dec("7700.00").Equal(f.loans.Loans[loan.ID].OutstandingPrincipal))
}

func TestRecordRepaymentStaleVersion(t *testing.T) {
	f := newRepaymentFixture()
	loan := seedActiveLoan(f.loans, uuid.New(), "10000.00")
	entry, _, err := f.svc.GenerateEntry(context.Background(), uuid.Nil, loan.ID, util.NewMonthYear(2025, 1))
	require.NoError(t, err)

	_, err = f.svc.RecordPayment(context.Background(), uuid.New(), RecordRepaymentInput{
		EntryID:         entry.ID,
		Amount:          dec("2500.00"),
		IdempotencyKey:  "repay-stale",
		ExpectedVersion: 4,
	})
	assert.ErrorIs(t, err, domain.ErrVersionMismatch)
	assert.Empty(t, f.txns.Txns)
}

func TestRecordRepaymentAlreadyPaid(t *testing.T) {
	f := newRepaymentFixture()
	loan := seedActiveLoan(f.loans, uuid.New(), "10000.00")
	entry, _, err := f.svc.GenerateEntry(context.Background(), uuid.Nil, loan.ID, util.NewMonthYear(2025, 1))
	require.NoError(t, err)

	_, err = f.svc.RecordPayment(context.Background(), uuid.New(), RecordRepaymentInput{
		EntryID:         entry.ID,
		Amount:          dec("2000.00"),
		IdempotencyKey:  "repay-1",
		ExpectedVersion: 1,
	})
	require.NoError(t, err)

	_, err = f.svc.RecordPayment(context.Background(), uuid.New(), RecordRepaymentInput{
		EntryID:         entry.ID,
		Amount:          dec("100.00"),
		IdempotencyKey:  "repay-2",
		ExpectedVersion: 2,
	})
	assert.ErrorIs(t, err, domain.ErrAlreadyPaid)
}

func TestDetectOverdueRepayments(t *testing.T) {
	f := newRepaymentFixture()
	fundID := uuid.New()
	loan := seedActiveLoan(f.loans, fundID, "10000.00")
	asOf := time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)

	entry, _, err := f.svc.GenerateEntry(context.Background(), uuid.Nil, loan.ID, util.NewMonthYear(2025, 1))
	require.NoError(t, err)
	current, _, err := f.svc.GenerateEntry(context.Background(), uuid.Nil, loan.ID, util.NewMonthYear(2025, 2))
	require.NoError(t, err)

	flipped, err := f.svc.DetectOverdue(context.Background(), fundID, asOf)
	require.NoError(t, err)
	assert.Equal(t, 1, flipped)

	stored, _ := f.repays.GetEntryByID(context.Background(), entry.ID)
	assert.Equal(t, domain.RepaymentOverdue, stored.Status)
	fresh, _ := f.repays.GetEntryByID(context.Background(), current.ID)
	assert.Equal(t, domain.RepaymentPending, fresh.Status)
}
