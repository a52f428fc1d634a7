package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/chamahq/chama-backend/internal/domain"
	"github.com/chamahq/chama-backend/internal/event"
	"github.com/rs/zerolog/log"
)

// ProjectionSyncService keeps the loans component's FundProjection in step
// with fund lifecycle events. Consumption is eventually consistent; the
// projection is advisory input to loan request checks only.
type ProjectionSyncService struct {
	projectionRepo domain.FundProjectionRepository
}

// NewProjectionSyncService creates a new ProjectionSyncService
func NewProjectionSyncService(projectionRepo domain.FundProjectionRepository) *ProjectionSyncService {
	return &ProjectionSyncService{projectionRepo: projectionRepo}
}

// Publish implements event.Publisher so the sync service can sit on the same
// fan-out as external consumers
func (s *ProjectionSyncService) Publish(ctx context.Context, e event.Event) error {
	switch e.Type {
	case event.TypeFundCreated, event.TypeFundActivated, event.TypeDissolutionInitiated, event.TypeFundDissolved:
		return s.apply(ctx, e)
	}
	return nil
}

func (s *ProjectionSyncService) apply(ctx context.Context, e event.Event) error {
	fund, err := fundFromPayload(e.Payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(e.Type)).Msg("Projection sync: undecodable fund payload")
		return err
	}

	projection := &domain.FundProjection{
		FundID:                       fund.ID,
		MonthlyInterestRate:          fund.Config.MonthlyInterestRate,
		MinimumPrincipalPerRepayment: fund.Config.MinimumPrincipalPerRepayment,
		MaxLoanPerMember:             fund.Config.MaxLoanPerMember,
		MaxConcurrentLoans:           fund.Config.MaxConcurrentLoans,
		LoanApprovalPolicy:           fund.Config.LoanApprovalPolicy,
		PenaltyType:                  fund.Config.OverduePenaltyType,
		PenaltyValue:                 fund.Config.OverduePenaltyValue,
		IsActive:                     fund.State == domain.FundStateActive,
		UpdatedAt:                    time.Now().UTC(),
	}
	return s.projectionRepo.Upsert(ctx, projection)
}

// fundFromPayload tolerates both in-process (*domain.Fund) and re-serialized
// (outbox JSON) payloads
func fundFromPayload(payload any) (*domain.Fund, error) {
	switch v := payload.(type) {
	case *domain.Fund:
		return v, nil
	case domain.Fund:
		return &v, nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		var fund domain.Fund
		if err := json.Unmarshal(data, &fund); err != nil {
			return nil, err
		}
		return &fund, nil
	}
}
