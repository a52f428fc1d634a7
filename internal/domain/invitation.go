package domain

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// InvitationStatus is the lifecycle state of a fund invitation
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationDeclined InvitationStatus = "declined"
	InvitationExpired  InvitationStatus = "expired"
)

// InvitationTTL is the default validity window of an invitation
const InvitationTTL = 7 * 24 * time.Hour

// Invitation invites a contact to join a fund. At most one pending
// invitation per (fundID, targetContact).
type Invitation struct {
	ID            uuid.UUID        `json:"id"`
	FundID        uuid.UUID        `json:"fundId"`
	TargetContact string           `json:"targetContact"`
	InvitedBy     uuid.UUID        `json:"invitedBy"`
	Status        InvitationStatus `json:"status"`
	ExpiresAt     time.Time        `json:"expiresAt"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
}

// Validate checks invitation fields
func (i *Invitation) Validate() error {
	if strings.TrimSpace(i.TargetContact) == "" {
		return ErrValidation
	}
	return nil
}

// IsTerminal reports whether the invitation can no longer change state
func (i *Invitation) IsTerminal() bool {
	return i.Status != InvitationPending
}

// Respond moves a pending invitation to accepted or declined
func (i *Invitation) Respond(accept bool, now time.Time) error {
	if i.IsTerminal() {
		return ErrInvalidState
	}
	if now.After(i.ExpiresAt) {
		i.Status = InvitationExpired
		return ErrInvalidState
	}
	if accept {
		i.Status = InvitationAccepted
	} else {
		i.Status = InvitationDeclined
	}
	return nil
}

// InvitationRepository persists invitations
type InvitationRepository interface {
	Create(ctx context.Context, inv *Invitation) (*Invitation, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Invitation, error)
	GetPending(ctx context.Context, fundID uuid.UUID, targetContact string) (*Invitation, error)
	UpdateStatus(ctx context.Context, inv *Invitation) (*Invitation, error)
	// ExpirePending flips every pending invitation past its expiry; returns
	// the number of rows touched
	ExpirePending(ctx context.Context, asOf time.Time) (int64, error)
	ListByFund(ctx context.Context, fundID uuid.UUID) ([]*Invitation, error)
}
