package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestLoanApprove(t *testing.T) {
	approver := uuid.New()
	now := time.Now().UTC()
	l := &Loan{
		Status:          LoanPendingApproval,
		PrincipalAmount: dec("10000.00"),
	}

	err := l.Approve(approver, dec("2000.00"), dec("0.02"), dec("1000.00"), now)
	assert.NoError(t, err)
	assert.Equal(t, LoanActive, l.Status)
	assert.True(t, dec("10000.00").Equal(l.OutstandingPrincipal))
	assert.True(t, dec("0.02").Equal(l.MonthlyInterestRate))
	assert.True(t, dec("2000.00").Equal(l.ScheduledInstallment))
	assert.Equal(t, &approver, l.ApprovedBy)
	assert.NotNil(t, l.DisbursementDate)

	// Approve is only legal from PendingApproval
	assert.ErrorIs(t, l.Approve(approver, dec("2000.00"), dec("0.02"), dec("1000.00"), now), ErrInvalidState)
}

func TestLoanApproveNegativeInstallment(t *testing.T) {
	l := &Loan{Status: LoanPendingApproval, PrincipalAmount: dec("10000.00")}
	err := l.Approve(uuid.New(), dec("-1.00"), dec("0.02"), dec("1000.00"), time.Now().UTC())
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, LoanPendingApproval, l.Status)
}

func TestLoanReject(t *testing.T) {
	l := &Loan{Status: LoanPendingApproval}
	assert.ErrorIs(t, l.Reject("   "), ErrValidation)
	assert.NoError(t, l.Reject("insufficient pool balance"))
	assert.Equal(t, LoanRejected, l.Status)
	assert.Equal(t, "insufficient pool balance", *l.RejectionReason)
	assert.True(t, l.IsTerminal())

	assert.ErrorIs(t, l.Reject("again"), ErrInvalidState)
}

func TestLoanSettleOutstandingAutoCloses(t *testing.T) {
	now := time.Now().UTC()
	l := &Loan{Status: LoanActive, PrincipalAmount: dec("10000.00"), OutstandingPrincipal: dec("500.00")}

	l.SettleOutstanding(dec("200.00"), now)
	assert.Equal(t, LoanActive, l.Status)

	l.SettleOutstanding(decimal.Zero, now)
	assert.Equal(t, LoanClosed, l.Status)
	assert.NotNil(t, l.ClosedDate)
}

func TestRepaymentEntryOutstandingPortions(t *testing.T) {
	e := &RepaymentEntry{
		InterestDue:  dec("200.00"),
		PrincipalDue: dec("1800.00"),
		TotalDue:     dec("2000.00"),
		AmountPaid:   decimal.Zero,
	}
	assert.True(t, dec("200.00").Equal(e.InterestOutstanding()))
	assert.True(t, dec("1800.00").Equal(e.PrincipalDueRemaining()))

	e.AmountPaid = dec("150.00")
	assert.True(t, dec("50.00").Equal(e.InterestOutstanding()))
	assert.True(t, dec("1800.00").Equal(e.PrincipalDueRemaining()))

	e.AmountPaid = dec("700.00")
	assert.True(t, e.InterestOutstanding().IsZero())
	assert.True(t, dec("1300.00").Equal(e.PrincipalDueRemaining()))
}

func TestRepaymentEntryApplyPayment(t *testing.T) {
	now := time.Now().UTC()
	e := &RepaymentEntry{
		InterestDue:  dec("200.00"),
		PrincipalDue: dec("1800.00"),
		TotalDue:     dec("2000.00"),
		AmountPaid:   decimal.Zero,
		Status:       RepaymentPending,
	}

	assert.NoError(t, e.ApplyPayment(dec("500.00"), now))
	assert.Equal(t, RepaymentPartial, e.Status)
	assert.Nil(t, e.PaidDate)

	assert.NoError(t, e.ApplyPayment(dec("1500.00"), now))
	assert.Equal(t, RepaymentPaid, e.Status)
	assert.NotNil(t, e.PaidDate)

	assert.ErrorIs(t, e.ApplyPayment(dec("1.00"), now), ErrAlreadyPaid)
}

func TestContributionDueApplyPayment(t *testing.T) {
	now := time.Now().UTC()
	d := &ContributionDue{
		AmountDue:  dec("1000.00"),
		AmountPaid: decimal.Zero,
		Status:     DuePending,
	}

	assert.NoError(t, d.ApplyPayment(dec("400.00"), now))
	assert.Equal(t, DuePartial, d.Status)
	assert.True(t, dec("600.00").Equal(d.RemainingBalance()))

	assert.NoError(t, d.ApplyPayment(dec("600.00"), now))
	assert.Equal(t, DuePaid, d.Status)
	assert.True(t, d.RemainingBalance().IsZero())

	assert.ErrorIs(t, d.ApplyPayment(dec("1.00"), now), ErrAlreadyPaid)
}
