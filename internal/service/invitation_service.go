package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/chamahq/chama-backend/internal/domain"
	"github.com/chamahq/chama-backend/internal/event"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// InvitationService manages fund invitations and their expiry sweep
type InvitationService struct {
	fundRepo       domain.FundRepository
	invitationRepo domain.InvitationRepository
	publisher      event.Publisher
	audit          event.AuditSink
}

// NewInvitationService creates a new InvitationService
func NewInvitationService(fundRepo domain.FundRepository, invitationRepo domain.InvitationRepository, publisher event.Publisher, audit event.AuditSink) *InvitationService {
	return &InvitationService{
		fundRepo:       fundRepo,
		invitationRepo: invitationRepo,
		publisher:      publisher,
		audit:          audit,
	}
}

// SendInvitation invites a contact to the fund. One pending invitation per
// (fund, contact); dissolving and dissolved funds accept no new invitations.
func (s *InvitationService) SendInvitation(ctx context.Context, inviterID, fundID uuid.UUID, targetContact string) (*domain.Invitation, error) {
	targetContact = strings.TrimSpace(targetContact)

	fund, err := s.fundRepo.GetByID(ctx, fundID)
	if err != nil {
		return nil, err
	}
	if fund.State == domain.FundStateDissolving || fund.State == domain.FundStateDissolved {
		return nil, domain.ErrInvalidState
	}

	if pending, err := s.invitationRepo.GetPending(ctx, fundID, targetContact); err == nil && pending != nil {
		return nil, domain.ErrPendingInvitation
	} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	inv := &domain.Invitation{
		ID:            uuid.New(),
		FundID:        fundID,
		TargetContact: targetContact,
		InvitedBy:     inviterID,
		Status:        domain.InvitationPending,
		ExpiresAt:     now.Add(domain.InvitationTTL),
	}
	if err := inv.Validate(); err != nil {
		return nil, err
	}

	created, err := s.invitationRepo.Create(ctx, inv)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, event.New(event.TypeInvitationSent, fundID, map[string]any{
		"invitationId": created.ID,
		"contact":      targetContact,
	}))
	s.recordAudit(ctx, inviterID, fundID, "Invitation", created.ID, "InvitationSent", nil, created)
	return created, nil
}

// Respond accepts or declines a pending invitation. Responding past the
// expiry marks the invitation Expired and fails.
func (s *InvitationService) Respond(ctx context.Context, responderID, invitationID uuid.UUID, accept bool) (*domain.Invitation, error) {
	inv, err := s.invitationRepo.GetByID(ctx, invitationID)
	if err != nil {
		return nil, err
	}

	before := *inv
	if respondErr := inv.Respond(accept, time.Now().UTC()); respondErr != nil {
		if inv.Status != before.Status {
			// Persist the expiry flip even though the response fails
			if _, err := s.invitationRepo.UpdateStatus(ctx, inv); err != nil {
				return nil, err
			}
		}
		return nil, respondErr
	}

	updated, err := s.invitationRepo.UpdateStatus(ctx, inv)
	if err != nil {
		return nil, err
	}

	action := "InvitationDeclined"
	if accept {
		action = "InvitationAccepted"
	}
	s.recordAudit(ctx, responderID, inv.FundID, "Invitation", inv.ID, action, &before, updated)
	return updated, nil
}

// ExpireSweep is the periodic job body flipping pending invitations past
// their expiry
func (s *InvitationService) ExpireSweep(ctx context.Context, asOf time.Time) (int64, error) {
	expired, err := s.invitationRepo.ExpirePending(ctx, asOf)
	if err != nil {
		return 0, err
	}
	if expired > 0 {
		log.Info().Int64("count", expired).Msg("Expired pending invitations")
	}
	return expired, nil
}

// ListInvitations returns a fund's invitations
func (s *InvitationService) ListInvitations(ctx context.Context, fundID uuid.UUID) ([]*domain.Invitation, error) {
	return s.invitationRepo.ListByFund(ctx, fundID)
}

func (s *InvitationService) publish(ctx context.Context, e event.Event) {
	if s.publisher != nil {
		_ = s.publisher.Publish(ctx, e)
	}
}

func (s *InvitationService) recordAudit(ctx context.Context, actorID, fundID uuid.UUID, entityType string, entityID uuid.UUID, action string, before, after any) {
	if s.audit == nil {
		return
	}
	fid := fundID
	_ = s.audit.Record(ctx, event.NewAuditEntry(actorID, &fid, entityType, entityID, action, before, after))
}
