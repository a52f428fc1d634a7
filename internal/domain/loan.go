package domain

import (
	"context"
	"strings"
	"time"

	"github.com/chamahq/chama-backend/internal/util"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LoanStatus is the lifecycle state of a loan
type LoanStatus string

const (
	LoanPendingApproval LoanStatus = "pending_approval"
	LoanApproved        LoanStatus = "approved"
	LoanActive          LoanStatus = "active"
	LoanRejected        LoanStatus = "rejected"
	LoanClosed          LoanStatus = "closed"
)

// NonTerminalLoanStatuses are the states that count against maxConcurrentLoans
var NonTerminalLoanStatuses = []LoanStatus{LoanPendingApproval, LoanApproved, LoanActive}

// Loan is a member borrowing from the fund pool. Rate and minimum principal
// are snapshotted at approval; later fund config changes never touch an
// approved loan's repayment math.
type Loan struct {
	ID                  uuid.UUID       `json:"id"`
	FundID              uuid.UUID       `json:"fundId"`
	BorrowerID          uuid.UUID       `json:"borrowerId"`
	PrincipalAmount     decimal.Decimal `json:"principalAmount"`
	OutstandingPrincipal decimal.Decimal `json:"outstandingPrincipal"`
	RequestedStartMonth util.MonthYear  `json:"requestedStartMonth"`
	Purpose             *string         `json:"purpose,omitempty"`
	Status              LoanStatus      `json:"status"`

	// Approval-time snapshot
	MonthlyInterestRate  decimal.Decimal `json:"monthlyInterestRate"`
	ScheduledInstallment decimal.Decimal `json:"scheduledInstallment"`
	MinimumPrincipal     decimal.Decimal `json:"minimumPrincipal"`

	ApprovedBy       *uuid.UUID `json:"approvedBy,omitempty"`
	RejectionReason  *string    `json:"rejectionReason,omitempty"`
	ApprovalDate     *time.Time `json:"approvalDate,omitempty"`
	DisbursementDate *time.Time `json:"disbursementDate,omitempty"`
	ClosedDate       *time.Time `json:"closedDate,omitempty"`
	Version          int64      `json:"version"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// Validate checks request-time fields
func (l *Loan) Validate() error {
	if l.PrincipalAmount.LessThanOrEqual(decimal.Zero) {
		return ErrValidation
	}
	if !l.RequestedStartMonth.Valid() {
		return ErrValidation
	}
	return nil
}

// IsTerminal reports whether the loan reached a final state
func (l *Loan) IsTerminal() bool {
	return l.Status == LoanRejected || l.Status == LoanClosed
}

// Approve snapshots fund policy and moves the loan PendingApproval ->
// Approved -> Active in one step, stamping the disbursement date
func (l *Loan) Approve(approverID uuid.UUID, installment, rate, minPrincipal decimal.Decimal, now time.Time) error {
	if l.Status != LoanPendingApproval {
		return ErrInvalidState
	}
	if installment.IsNegative() {
		return ErrValidation
	}
	l.Status = LoanActive
	l.ApprovedBy = &approverID
	l.MonthlyInterestRate = rate
	l.ScheduledInstallment = installment
	l.MinimumPrincipal = minPrincipal
	l.OutstandingPrincipal = l.PrincipalAmount
	l.ApprovalDate = &now
	l.DisbursementDate = &now
	return nil
}

// Reject moves the loan PendingApproval -> Rejected with a reason
func (l *Loan) Reject(reason string) error {
	if l.Status != LoanPendingApproval {
		return ErrInvalidState
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ErrValidation
	}
	l.Status = LoanRejected
	l.RejectionReason = &reason
	return nil
}

// SettleOutstanding sets the new outstanding principal and auto-closes the
// loan when it reaches zero
func (l *Loan) SettleOutstanding(newOutstanding decimal.Decimal, now time.Time) {
	l.OutstandingPrincipal = newOutstanding
	if l.Status == LoanActive && newOutstanding.IsZero() {
		l.Status = LoanClosed
		l.ClosedDate = &now
	}
}

// FundProjection is the loans component's local read model of fund policy,
// kept in step by consuming fund lifecycle events. Stale values are
// acceptable for advisory request checks only.
type FundProjection struct {
	FundID                       uuid.UUID          `json:"fundId"`
	MonthlyInterestRate          decimal.Decimal    `json:"monthlyInterestRate"`
	MinimumPrincipalPerRepayment decimal.Decimal    `json:"minimumPrincipalPerRepayment"`
	MaxLoanPerMember             *decimal.Decimal   `json:"maxLoanPerMember,omitempty"`
	MaxConcurrentLoans           *int               `json:"maxConcurrentLoans,omitempty"`
	LoanApprovalPolicy           LoanApprovalPolicy `json:"loanApprovalPolicy"`
	PenaltyType                  PenaltyType        `json:"penaltyType"`
	PenaltyValue                 decimal.Decimal    `json:"penaltyValue"`
	IsActive                     bool               `json:"isActive"`
	UpdatedAt                    time.Time          `json:"updatedAt"`
}

// LoanRepository persists loans
type LoanRepository interface {
	Create(ctx context.Context, loan *Loan) (*Loan, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Loan, error)
	// Update persists mutable columns with an optimistic version check
	Update(ctx context.Context, loan *Loan) (*Loan, error)
	// Approve persists the approved loan and appends the disbursement ledger
	// transaction in one database transaction
	Approve(ctx context.Context, loan *Loan, disbursement *Transaction) (*Loan, error)
	ListByFund(ctx context.Context, fundID uuid.UUID) ([]*Loan, error)
	CountNonTerminalByBorrower(ctx context.Context, fundID, borrowerID uuid.UUID) (int, error)
	// SumOutstandingByBorrower returns each borrower's total outstanding
	// principal across non-terminal loans
	SumOutstandingByBorrower(ctx context.Context, fundID uuid.UUID) (map[uuid.UUID]decimal.Decimal, error)
	ListActiveByFund(ctx context.Context, fundID uuid.UUID) ([]*Loan, error)
}

// FundProjectionRepository persists the loans component's read model
type FundProjectionRepository interface {
	Upsert(ctx context.Context, projection *FundProjection) error
	GetByFundID(ctx context.Context, fundID uuid.UUID) (*FundProjection, error)
}
