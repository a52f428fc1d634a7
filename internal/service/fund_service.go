package service

import (
	"context"
	"time"

	"github.com/chamahq/chama-backend/internal/domain"
	"github.com/chamahq/chama-backend/internal/event"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FundService handles fund lifecycle, role assignments, and member plans
type FundService struct {
	fundRepo  domain.FundRepository
	publisher event.Publisher
	audit     event.AuditSink
}

// NewFundService creates a new FundService
func NewFundService(fundRepo domain.FundRepository, publisher event.Publisher, audit event.AuditSink) *FundService {
	return &FundService{
		fundRepo:  fundRepo,
		publisher: publisher,
		audit:     audit,
	}
}

// CreateFundInput contains input for creating a fund
type CreateFundInput struct {
	Name        string
	Description *string
	Currency    string
	Config      domain.FundConfig
}

// CreateFund creates a fund in Draft and assigns the creator as its first admin
func (s *FundService) CreateFund(ctx context.Context, actorID uuid.UUID, input CreateFundInput) (*domain.Fund, error) {
	fund := &domain.Fund{
		ID:          uuid.New(),
		Name:        input.Name,
		Description: input.Description,
		Currency:    input.Currency,
		Config:      input.Config,
		State:       domain.FundStateDraft,
	}
	if err := fund.Validate(); err != nil {
		return nil, err
	}

	created, err := s.fundRepo.Create(ctx, fund)
	if err != nil {
		return nil, err
	}

	if _, err := s.fundRepo.AssignRole(ctx, &domain.FundRoleAssignment{
		ID:     uuid.New(),
		FundID: created.ID,
		UserID: actorID,
		Role:   domain.RoleAdmin,
	}); err != nil {
		return nil, err
	}

	s.publish(ctx, event.New(event.TypeFundCreated, created.ID, created))
	s.publish(ctx, event.New(event.TypeFundAdminAssigned, created.ID, map[string]any{"userId": actorID, "role": domain.RoleAdmin}))
	s.recordAudit(ctx, actorID, created.ID, "Fund", created.ID, "FundCreated", nil, created)
	return created, nil
}

// GetFund retrieves a fund by id
func (s *FundService) GetFund(ctx context.Context, id uuid.UUID) (*domain.Fund, error) {
	return s.fundRepo.GetByID(ctx, id)
}

// UpdateDescription updates the fund description; legal in any state before
// Dissolved
func (s *FundService) UpdateDescription(ctx context.Context, actorID, fundID uuid.UUID, description *string, expectedVersion int64) (*domain.Fund, error) {
	fund, err := s.fundRepo.GetByID(ctx, fundID)
	if err != nil {
		return nil, err
	}
	if fund.IsTerminal() {
		return nil, domain.ErrInvalidState
	}
	before := *fund
	fund.Description = description
	fund.Version = expectedVersion

	updated, err := s.fundRepo.Update(ctx, fund)
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, fundID, "Fund", fundID, "FundDescriptionUpdated", &before, updated)
	return updated, nil
}

// UpdateConfiguration replaces the fund config; fails with InvalidState
// unless the fund is still Draft
func (s *FundService) UpdateConfiguration(ctx context.Context, actorID, fundID uuid.UUID, cfg domain.FundConfig, expectedVersion int64) (*domain.Fund, error) {
	fund, err := s.fundRepo.GetByID(ctx, fundID)
	if err != nil {
		return nil, err
	}
	before := *fund
	if err := fund.UpdateConfiguration(cfg); err != nil {
		return nil, err
	}
	fund.Version = expectedVersion

	updated, err := s.fundRepo.Update(ctx, fund)
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, fundID, "Fund", fundID, "FundConfigurationUpdated", &before, updated)
	return updated, nil
}

// Activate moves the fund Draft -> Active once it has at least one admin
func (s *FundService) Activate(ctx context.Context, actorID, fundID uuid.UUID, expectedVersion int64) (*domain.Fund, error) {
	fund, err := s.fundRepo.GetByID(ctx, fundID)
	if err != nil {
		return nil, err
	}
	admins, err := s.fundRepo.CountAdmins(ctx, fundID)
	if err != nil {
		return nil, err
	}
	before := *fund
	if err := fund.Activate(admins); err != nil {
		return nil, err
	}
	fund.Version = expectedVersion

	updated, err := s.fundRepo.Update(ctx, fund)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, event.New(event.TypeFundActivated, fundID, updated))
	s.recordAudit(ctx, actorID, fundID, "Fund", fundID, "FundActivated", &before, updated)
	return updated, nil
}

// InitiateDissolution moves the fund Active -> Dissolving. New members, new
// loan requests, and new due generation stop; in-flight repayments continue.
func (s *FundService) InitiateDissolution(ctx context.Context, actorID, fundID uuid.UUID, expectedVersion int64) (*domain.Fund, error) {
	fund, err := s.fundRepo.GetByID(ctx, fundID)
	if err != nil {
		return nil, err
	}
	before := *fund
	if err := fund.InitiateDissolution(); err != nil {
		return nil, err
	}
	fund.Version = expectedVersion

	updated, err := s.fundRepo.Update(ctx, fund)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, event.New(event.TypeDissolutionInitiated, fundID, updated))
	s.recordAudit(ctx, actorID, fundID, "Fund", fundID, "DissolutionInitiated", &before, updated)
	return updated, nil
}

// AssignRole grants a user a role in the fund; duplicates are a Conflict
func (s *FundService) AssignRole(ctx context.Context, actorID, fundID, userID uuid.UUID, role domain.Role) (*domain.FundRoleAssignment, error) {
	if !domain.ValidRole(role) {
		return nil, domain.ErrValidation
	}
	fund, err := s.fundRepo.GetByID(ctx, fundID)
	if err != nil {
		return nil, err
	}
	if fund.IsTerminal() || fund.State == domain.FundStateDissolving {
		return nil, domain.ErrInvalidState
	}

	assignment, err := s.fundRepo.AssignRole(ctx, &domain.FundRoleAssignment{
		ID:     uuid.New(),
		FundID: fundID,
		UserID: userID,
		Role:   role,
	})
	if err != nil {
		return nil, err
	}
	if role == domain.RoleAdmin {
		s.publish(ctx, event.New(event.TypeFundAdminAssigned, fundID, map[string]any{"userId": userID, "role": role}))
	}
	s.recordAudit(ctx, actorID, fundID, "FundRoleAssignment", assignment.ID, "RoleAssigned", nil, assignment)
	return assignment, nil
}

// ChangeRole changes an existing assignment; refuses to demote the last admin
func (s *FundService) ChangeRole(ctx context.Context, actorID, fundID, userID uuid.UUID, role domain.Role) (*domain.FundRoleAssignment, error) {
	if !domain.ValidRole(role) {
		return nil, domain.ErrValidation
	}
	current, err := s.fundRepo.GetRole(ctx, fundID, userID)
	if err != nil {
		return nil, err
	}
	if current.Role == domain.RoleAdmin && role != domain.RoleAdmin {
		admins, err := s.fundRepo.CountAdmins(ctx, fundID)
		if err != nil {
			return nil, err
		}
		if admins <= 1 {
			return nil, domain.ErrLastAdmin
		}
	}

	updated, err := s.fundRepo.UpdateRole(ctx, fundID, userID, role)
	if err != nil {
		return nil, err
	}
	if role == domain.RoleAdmin {
		s.publish(ctx, event.New(event.TypeFundAdminAssigned, fundID, map[string]any{"userId": userID, "role": role}))
	}
	s.recordAudit(ctx, actorID, fundID, "FundRoleAssignment", updated.ID, "RoleChanged", current, updated)
	return updated, nil
}

// RemoveMember removes a user's role and deactivates their contribution plan;
// refuses to remove the last admin
func (s *FundService) RemoveMember(ctx context.Context, actorID, fundID, userID uuid.UUID) error {
	current, err := s.fundRepo.GetRole(ctx, fundID, userID)
	if err != nil {
		return err
	}
	if current.Role == domain.RoleAdmin {
		admins, err := s.fundRepo.CountAdmins(ctx, fundID)
		if err != nil {
			return err
		}
		if admins <= 1 {
			return domain.ErrLastAdmin
		}
	}

	if err := s.fundRepo.RemoveRole(ctx, fundID, userID); err != nil {
		return err
	}
	if _, err := s.fundRepo.GetMemberPlan(ctx, fundID, userID); err == nil {
		if err := s.fundRepo.DeactivateMemberPlan(ctx, fundID, userID); err != nil {
			return err
		}
	}

	s.publish(ctx, event.New(event.TypeMemberRemoved, fundID, map[string]any{"userId": userID}))
	s.recordAudit(ctx, actorID, fundID, "FundRoleAssignment", current.ID, "MemberRemoved", current, nil)
	return nil
}

// AddMemberPlanInput contains input for enrolling a member
type AddMemberPlanInput struct {
	UserID                    uuid.UUID
	MonthlyContributionAmount decimal.Decimal
	JoinDate                  time.Time
}

// AddMemberPlan enrolls a member with a standing monthly contribution. The
// amount is immutable afterwards and must meet the fund minimum. Blocked once
// dissolution starts.
func (s *FundService) AddMemberPlan(ctx context.Context, actorID, fundID uuid.UUID, input AddMemberPlanInput) (*domain.MemberContributionPlan, error) {
	fund, err := s.fundRepo.GetByID(ctx, fundID)
	if err != nil {
		return nil, err
	}
	if fund.State == domain.FundStateDissolving || fund.IsTerminal() {
		return nil, domain.ErrInvalidState
	}
	if input.MonthlyContributionAmount.LessThan(fund.Config.MinimumMonthlyContribution) {
		return nil, domain.ErrValidation
	}

	joinDate := input.JoinDate
	if joinDate.IsZero() {
		joinDate = time.Now().UTC()
	}
	plan, err := s.fundRepo.CreateMemberPlan(ctx, &domain.MemberContributionPlan{
		ID:                        uuid.New(),
		FundID:                    fundID,
		UserID:                    input.UserID,
		MonthlyContributionAmount: input.MonthlyContributionAmount,
		JoinDate:                  joinDate,
		IsActive:                  true,
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, event.New(event.TypeMemberJoined, fundID, plan))
	s.recordAudit(ctx, actorID, fundID, "MemberContributionPlan", plan.ID, "MemberJoined", nil, plan)
	return plan, nil
}

// ListMembers returns the fund's role assignments
func (s *FundService) ListMembers(ctx context.Context, fundID uuid.UUID) ([]*domain.FundRoleAssignment, error) {
	return s.fundRepo.ListRoles(ctx, fundID)
}

// ListMemberPlans returns the fund's contribution plans
func (s *FundService) ListMemberPlans(ctx context.Context, fundID uuid.UUID, activeOnly bool) ([]*domain.MemberContributionPlan, error) {
	return s.fundRepo.ListMemberPlans(ctx, fundID, activeOnly)
}

func (s *FundService) publish(ctx context.Context, e event.Event) {
	if s.publisher != nil {
		_ = s.publisher.Publish(ctx, e)
	}
}

func (s *FundService) recordAudit(ctx context.Context, actorID, fundID uuid.UUID, entityType string, entityID uuid.UUID, action string, before, after any) {
	if s.audit == nil {
		return
	}
	fid := fundID
	_ = s.audit.Record(ctx, event.NewAuditEntry(actorID, &fid, entityType, entityID, action, before, after))
}
