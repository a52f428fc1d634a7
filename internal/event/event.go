package event

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Type names a domain event in the taxonomy consumed by external collaborators
type Type string

const (
	TypeFundCreated           Type = "fund.created"
	TypeFundActivated         Type = "fund.activated"
	TypeDissolutionInitiated  Type = "fund.dissolution_initiated"
	TypeFundDissolved         Type = "fund.dissolved"
	TypeMemberJoined          Type = "fund.member_joined"
	TypeMemberRemoved         Type = "fund.member_removed"
	TypeFundAdminAssigned     Type = "fund.admin_assigned"
	TypeInvitationSent        Type = "fund.invitation_sent"
	TypeContributionDueGenerated Type = "contribution.due_generated"
	TypeContributionPaid      Type = "contribution.paid"
	TypeContributionOverdue   Type = "contribution.overdue"
	TypeLoanRequested         Type = "loan.requested"
	TypeLoanApproved          Type = "loan.approved"
	TypeLoanRejected          Type = "loan.rejected"
	TypeLoanDisbursed         Type = "loan.disbursed"
	TypeLoanClosed            Type = "loan.closed"
	TypeRepaymentDueGenerated Type = "repayment.due_generated"
	TypeRepaymentRecorded     Type = "repayment.recorded"
	TypeRepaymentPenaltyApplied Type = "repayment.penalty_applied"
	TypeVotingStarted         Type = "voting.started"
	TypeVoteCast              Type = "voting.vote_cast"
	TypeVotingFinalised       Type = "voting.finalised"
)

// Event is the envelope emitted to the external bus. Every event carries a
// fresh id, the fund it belongs to, and a UTC occurrence timestamp.
type Event struct {
	ID         uuid.UUID   `json:"id"`
	FundID     uuid.UUID   `json:"fundId"`
	Type       Type        `json:"type"`
	OccurredAt time.Time   `json:"occurredAt"`
	Payload    interface{} `json:"payload"`
}

// New builds an event envelope with a fresh id and the current UTC time
func New(eventType Type, fundID uuid.UUID, payload interface{}) Event {
	return Event{
		ID:         uuid.New(),
		FundID:     fundID,
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}

// ToJSON serializes the event envelope
func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// Publisher delivers events to the external bus. Delivery is best-effort at
// the call site; callers wrap publishers with the outbox for at-least-once.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// NopPublisher discards events (tests, event feed disabled)
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, event Event) error { return nil }

// FanOut delivers each event to every wrapped publisher, returning the first
// error after all deliveries are attempted
type FanOut struct {
	publishers []Publisher
}

// NewFanOut creates a FanOut over the given publishers
func NewFanOut(publishers ...Publisher) *FanOut {
	return &FanOut{publishers: publishers}
}

func (f *FanOut) Publish(ctx context.Context, event Event) error {
	var firstErr error
	for _, p := range f.publishers {
		if err := p.Publish(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
