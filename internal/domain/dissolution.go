package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SettlementStatus is the lifecycle state of a dissolution settlement
type SettlementStatus string

const (
	SettlementDraft     SettlementStatus = "draft"
	SettlementReady     SettlementStatus = "ready"
	SettlementConfirmed SettlementStatus = "confirmed"
)

// DissolutionLineItem is one member's share of the terminal settlement
type DissolutionLineItem struct {
	UserID                   uuid.UUID       `json:"userId"`
	TotalPaidContributions   decimal.Decimal `json:"totalPaidContributions"`
	InterestShare            decimal.Decimal `json:"interestShare"`
	GrossPayout              decimal.Decimal `json:"grossPayout"`
	OutstandingLoanPrincipal decimal.Decimal `json:"outstandingLoanPrincipal"`
	UnpaidInterest           decimal.Decimal `json:"unpaidInterest"`
	UnpaidDues               decimal.Decimal `json:"unpaidDues"`
	NetPayout                decimal.Decimal `json:"netPayout"`
}

// DissolutionSettlement is the per-member accounting produced when a fund
// dissolves. One per fund.
type DissolutionSettlement struct {
	ID                          uuid.UUID             `json:"id"`
	FundID                      uuid.UUID             `json:"fundId"`
	Status                      SettlementStatus      `json:"status"`
	TotalContributionsCollected decimal.Decimal       `json:"totalContributionsCollected"`
	TotalInterestPool           decimal.Decimal       `json:"totalInterestPool"`
	SettlementDate              *time.Time            `json:"settlementDate,omitempty"`
	LineItems                   []DissolutionLineItem `json:"lineItems"`
	CreatedAt                   time.Time             `json:"createdAt"`
	UpdatedAt                   time.Time             `json:"updatedAt"`
}

// Blockers returns members whose net payout is negative; any blocker keeps
// the settlement in Draft
func (s *DissolutionSettlement) Blockers() []uuid.UUID {
	var blocked []uuid.UUID
	for _, item := range s.LineItems {
		if item.NetPayout.IsNegative() {
			blocked = append(blocked, item.UserID)
		}
	}
	return blocked
}

// Confirm moves Ready -> Confirmed and stamps the settlement date
func (s *DissolutionSettlement) Confirm(now time.Time) error {
	if s.Status != SettlementReady {
		return ErrInvalidState
	}
	s.Status = SettlementConfirmed
	s.SettlementDate = &now
	return nil
}

// DissolutionRepository persists settlements
type DissolutionRepository interface {
	// Upsert replaces the fund's settlement and its line items
	Upsert(ctx context.Context, settlement *DissolutionSettlement) (*DissolutionSettlement, error)
	GetByFundID(ctx context.Context, fundID uuid.UUID) (*DissolutionSettlement, error)
	// ConfirmSettlement persists the confirmed settlement and the fund's
	// Dissolving -> Dissolved transition in one database transaction
	ConfirmSettlement(ctx context.Context, settlement *DissolutionSettlement, fund *Fund) (*DissolutionSettlement, error)
}
