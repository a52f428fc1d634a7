package domain

import (
	"context"
	"time"

	"github.com/chamahq/chama-backend/internal/util"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType classifies entries in the fund ledger
type TransactionType string

const (
	TxnContribution   TransactionType = "contribution"
	TxnDisbursement   TransactionType = "disbursement"
	TxnRepayment      TransactionType = "repayment"
	TxnInterestIncome TransactionType = "interest_income"
	TxnPenalty        TransactionType = "penalty"
)

// Transaction is one append-only ledger row. Every monetary side-effect in
// the system writes exactly one transaction, keyed unique on
// (fundID, idempotencyKey).
type Transaction struct {
	ID                  uuid.UUID       `json:"id"`
	FundID              uuid.UUID       `json:"fundId"`
	UserID              *uuid.UUID      `json:"userId,omitempty"`
	Type                TransactionType `json:"type"`
	Amount              decimal.Decimal `json:"amount"`
	IdempotencyKey      string          `json:"idempotencyKey"`
	ReferenceEntityType *string         `json:"referenceEntityType,omitempty"`
	ReferenceEntityID   *uuid.UUID      `json:"referenceEntityId,omitempty"`
	CreatedAt           time.Time       `json:"createdAt"`
}

// TransactionFilter narrows ledger queries
type TransactionFilter struct {
	Type   *TransactionType
	UserID *uuid.UUID
	From   *time.Time
	To     *time.Time
}

// TransactionRepository is the append-only ledger store
type TransactionRepository interface {
	Append(ctx context.Context, txn *Transaction) (*Transaction, error)
	ListByFund(ctx context.Context, fundID uuid.UUID, filter TransactionFilter) ([]*Transaction, error)
	SumByType(ctx context.Context, fundID uuid.UUID, txnType TransactionType) (decimal.Decimal, error)
	// SumByTypeAndUser returns per-user sums for one transaction type
	SumByTypeAndUser(ctx context.Context, fundID uuid.UUID, txnType TransactionType) (map[uuid.UUID]decimal.Decimal, error)
	// Balance recomputes the fund pool from scratch:
	// contributions - disbursements + repayments + interest + penalties
	Balance(ctx context.Context, fundID uuid.UUID) (decimal.Decimal, error)
}

// ContributionDueStatus is the payment state of a monthly due
type ContributionDueStatus string

const (
	DuePending ContributionDueStatus = "pending"
	DuePartial ContributionDueStatus = "partial"
	DuePaid    ContributionDueStatus = "paid"
	DueLate    ContributionDueStatus = "late"
	DueMissed  ContributionDueStatus = "missed"
)

// ContributionDue is one member's monthly obligation.
// Unique on (fundID, userID, monthYear).
type ContributionDue struct {
	ID        uuid.UUID             `json:"id"`
	FundID    uuid.UUID             `json:"fundId"`
	UserID    uuid.UUID             `json:"userId"`
	MonthYear util.MonthYear        `json:"monthYear"`
	AmountDue decimal.Decimal       `json:"amountDue"`
	AmountPaid decimal.Decimal      `json:"amountPaid"`
	Status    ContributionDueStatus `json:"status"`
	DueDate   time.Time             `json:"dueDate"`
	PaidDate  *time.Time            `json:"paidDate,omitempty"`
	MissedAt  *time.Time            `json:"missedAt,omitempty"`
	Version   int64                 `json:"version"`
	CreatedAt time.Time             `json:"createdAt"`
	UpdatedAt time.Time             `json:"updatedAt"`
}

// RemainingBalance is amountDue - amountPaid, floored at zero
func (d *ContributionDue) RemainingBalance() decimal.Decimal {
	rem := d.AmountDue.Sub(d.AmountPaid)
	if rem.IsNegative() {
		return decimal.Zero
	}
	return rem
}

// IsSettled reports whether nothing more is owed
func (d *ContributionDue) IsSettled() bool {
	return d.Status == DuePaid
}

// ApplyPayment adds amount to the due and recomputes status
func (d *ContributionDue) ApplyPayment(amount decimal.Decimal, now time.Time) error {
	if d.Status == DuePaid {
		return ErrAlreadyPaid
	}
	d.AmountPaid = d.AmountPaid.Add(amount)
	if d.RemainingBalance().IsZero() {
		d.Status = DuePaid
		paid := now
		d.PaidDate = &paid
	} else {
		d.Status = DuePartial
	}
	return nil
}

// ContributionRepository persists monthly dues. Multi-row payment flows are
// atomic repository methods so the due, ledger row, and idempotency record
// commit together.
type ContributionRepository interface {
	// CreateDue inserts the due unless one already exists for
	// (fundID, userID, monthYear); reports whether a row was created
	CreateDue(ctx context.Context, due *ContributionDue) (bool, error)
	GetDueByID(ctx context.Context, id uuid.UUID) (*ContributionDue, error)
	ListByFundMonth(ctx context.Context, fundID uuid.UUID, monthYear util.MonthYear) ([]*ContributionDue, error)
	ListByUser(ctx context.Context, fundID, userID uuid.UUID) ([]*ContributionDue, error)
	// ListOverdueCandidates returns pending/partial dues whose
	// dueDate + grace has passed
	ListOverdueCandidates(ctx context.Context, fundID uuid.UUID, asOf time.Time) ([]*ContributionDue, error)
	// UpdateStatus persists a status flip (late/missed) with a version check
	UpdateStatus(ctx context.Context, due *ContributionDue) (*ContributionDue, error)
	// RecordPayment persists the updated due, appends the ledger transaction,
	// and writes the idempotency record in one database transaction. The due
	// update carries an optimistic version check.
	RecordPayment(ctx context.Context, due *ContributionDue, txn *Transaction, record *IdempotencyRecord) (*ContributionDue, error)
	// SumUnpaidByUser returns each member's positive remaining due balance
	SumUnpaidByUser(ctx context.Context, fundID uuid.UUID) (map[uuid.UUID]decimal.Decimal, error)
}
