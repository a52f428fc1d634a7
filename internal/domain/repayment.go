package domain

import (
	"context"
	"time"

	"github.com/chamahq/chama-backend/internal/util"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RepaymentStatus is the payment state of a monthly repayment entry
type RepaymentStatus string

const (
	RepaymentPending RepaymentStatus = "pending"
	RepaymentPartial RepaymentStatus = "partial"
	RepaymentPaid    RepaymentStatus = "paid"
	RepaymentOverdue RepaymentStatus = "overdue"
)

// RepaymentEntry is one month's obligation on an active loan.
// Unique on (loanID, monthYear). TotalDue = interestDue + principalDue plus
// any penalty carried over from a previous overdue month.
type RepaymentEntry struct {
	ID           uuid.UUID       `json:"id"`
	LoanID       uuid.UUID       `json:"loanId"`
	FundID       uuid.UUID       `json:"fundId"`
	MonthYear    util.MonthYear  `json:"monthYear"`
	InterestDue  decimal.Decimal `json:"interestDue"`
	PrincipalDue decimal.Decimal `json:"principalDue"`
	TotalDue     decimal.Decimal `json:"totalDue"`
	AmountPaid   decimal.Decimal `json:"amountPaid"`
	Status       RepaymentStatus `json:"status"`
	DueDate      time.Time       `json:"dueDate"`
	PaidDate     *time.Time      `json:"paidDate,omitempty"`
	// PenaltySourceEntryID marks penalty amounts carried into this entry and
	// guards the penalty job against double application
	PenaltySourceEntryID *uuid.UUID `json:"penaltySourceEntryId,omitempty"`
	Version              int64      `json:"version"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
}

// InterestOutstanding is the interest portion not yet covered by payments
func (e *RepaymentEntry) InterestOutstanding() decimal.Decimal {
	covered := decimal.Min(e.AmountPaid, e.InterestDue)
	return e.InterestDue.Sub(covered)
}

// PrincipalDueRemaining is the principal portion not yet covered, assuming
// interest-first allocation of everything paid so far
func (e *RepaymentEntry) PrincipalDueRemaining() decimal.Decimal {
	afterInterest := e.AmountPaid.Sub(e.InterestDue)
	if afterInterest.IsNegative() {
		return e.PrincipalDue
	}
	covered := decimal.Min(afterInterest, e.PrincipalDue)
	return e.PrincipalDue.Sub(covered)
}

// RemainingBalance is totalDue - amountPaid, floored at zero
func (e *RepaymentEntry) RemainingBalance() decimal.Decimal {
	rem := e.TotalDue.Sub(e.AmountPaid)
	if rem.IsNegative() {
		return decimal.Zero
	}
	return rem
}

// ApplyPayment adds amount and recomputes status
func (e *RepaymentEntry) ApplyPayment(amount decimal.Decimal, now time.Time) error {
	if e.Status == RepaymentPaid {
		return ErrAlreadyPaid
	}
	e.AmountPaid = e.AmountPaid.Add(amount)
	if e.AmountPaid.GreaterThanOrEqual(e.TotalDue) {
		e.Status = RepaymentPaid
		paid := now
		e.PaidDate = &paid
	} else {
		e.Status = RepaymentPartial
	}
	return nil
}

// RepaymentRepository persists repayment entries
type RepaymentRepository interface {
	// CreateEntry inserts the entry unless one exists for (loanID, monthYear);
	// reports whether a row was created
	CreateEntry(ctx context.Context, entry *RepaymentEntry) (bool, error)
	GetEntryByID(ctx context.Context, id uuid.UUID) (*RepaymentEntry, error)
	GetByLoanMonth(ctx context.Context, loanID uuid.UUID, monthYear util.MonthYear) (*RepaymentEntry, error)
	ListByLoan(ctx context.Context, loanID uuid.UUID) ([]*RepaymentEntry, error)
	// ListOverdue returns overdue, not fully paid entries for the fund
	ListOverdue(ctx context.Context, fundID uuid.UUID) ([]*RepaymentEntry, error)
	// ListOverdueCandidates returns pending/partial entries past their due date
	ListOverdueCandidates(ctx context.Context, fundID uuid.UUID, asOf time.Time) ([]*RepaymentEntry, error)
	// UpdateEntry persists mutable columns with an optimistic version check
	UpdateEntry(ctx context.Context, entry *RepaymentEntry) (*RepaymentEntry, error)
	// RecordPayment persists the entry and loan updates, appends the ledger
	// transactions (cash repayment plus interest income), and writes the
	// idempotency record in one database transaction. Both the entry and the
	// loan carry optimistic version checks.
	RecordPayment(ctx context.Context, entry *RepaymentEntry, loan *Loan, txns []*Transaction, record *IdempotencyRecord) (*RepaymentEntry, error)
	// HasPenaltyFrom reports whether a penalty sourced from the given overdue
	// entry was already carried into a later entry
	HasPenaltyFrom(ctx context.Context, sourceEntryID uuid.UUID) (bool, error)
	// SumUnpaidInterestByUser returns each borrower's uncovered interest
	// across their entries with positive remaining balances
	SumUnpaidInterestByUser(ctx context.Context, fundID uuid.UUID) (map[uuid.UUID]decimal.Decimal, error)
}
