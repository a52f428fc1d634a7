package domain

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FundState is the lifecycle state of a fund
type FundState string

const (
	FundStateDraft      FundState = "draft"
	FundStateActive     FundState = "active"
	FundStateDissolving FundState = "dissolving"
	FundStateDissolved  FundState = "dissolved"
)

// LoanApprovalPolicy controls whether loan approvals expect a member vote
type LoanApprovalPolicy string

const (
	ApprovalAdminOnly       LoanApprovalPolicy = "admin_only"
	ApprovalAdminWithVoting LoanApprovalPolicy = "admin_with_voting"
)

// PenaltyType configures how overdue repayments are penalised
type PenaltyType string

const (
	PenaltyNone       PenaltyType = "none"
	PenaltyFlat       PenaltyType = "flat"
	PenaltyPercentage PenaltyType = "percentage"
)

// Role is a member's role within a fund
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleGuest  Role = "guest"
)

// ValidRole reports whether r is a known role
func ValidRole(r Role) bool {
	switch r {
	case RoleAdmin, RoleEditor, RoleGuest:
		return true
	}
	return false
}

// FundConfig is the rule set of a fund. Immutable once the fund leaves Draft,
// except that Description lives on the Fund itself and stays editable.
type FundConfig struct {
	MonthlyInterestRate          decimal.Decimal  `json:"monthlyInterestRate"`          // per-month fraction, 4dp, (0, 1]
	MinimumMonthlyContribution   decimal.Decimal  `json:"minimumMonthlyContribution"`   // > 0
	MinimumPrincipalPerRepayment decimal.Decimal  `json:"minimumPrincipalPerRepayment"` // > 0
	LoanApprovalPolicy           LoanApprovalPolicy `json:"loanApprovalPolicy"`
	MaxLoanPerMember             *decimal.Decimal `json:"maxLoanPerMember,omitempty"`   // optional, > 0
	MaxConcurrentLoans           *int             `json:"maxConcurrentLoans,omitempty"` // optional, >= 1
	OverduePenaltyType           PenaltyType      `json:"overduePenaltyType"`
	OverduePenaltyValue          decimal.Decimal  `json:"overduePenaltyValue"` // >= 0
	ContributionDayOfMonth       int              `json:"contributionDayOfMonth"` // [1, 28]
	GracePeriodDays              int              `json:"gracePeriodDays"`        // >= 0
	MissedAfterDays              *int             `json:"missedAfterDays,omitempty"` // optional second threshold
}

// Validate checks every config range rule
func (c FundConfig) Validate() error {
	if c.MonthlyInterestRate.LessThanOrEqual(decimal.Zero) || c.MonthlyInterestRate.GreaterThan(decimal.NewFromInt(1)) {
		return ErrValidation
	}
	if c.MinimumMonthlyContribution.LessThanOrEqual(decimal.Zero) {
		return ErrValidation
	}
	if c.MinimumPrincipalPerRepayment.LessThanOrEqual(decimal.Zero) {
		return ErrValidation
	}
	switch c.LoanApprovalPolicy {
	case ApprovalAdminOnly, ApprovalAdminWithVoting:
	default:
		return ErrValidation
	}
	if c.MaxLoanPerMember != nil && c.MaxLoanPerMember.LessThanOrEqual(decimal.Zero) {
		return ErrValidation
	}
	if c.MaxConcurrentLoans != nil && *c.MaxConcurrentLoans < 1 {
		return ErrValidation
	}
	switch c.OverduePenaltyType {
	case PenaltyNone, PenaltyFlat, PenaltyPercentage:
	default:
		return ErrValidation
	}
	if c.OverduePenaltyValue.IsNegative() {
		return ErrValidation
	}
	if c.ContributionDayOfMonth < 1 || c.ContributionDayOfMonth > 28 {
		return ErrValidation
	}
	if c.GracePeriodDays < 0 {
		return ErrValidation
	}
	if c.MissedAfterDays != nil && *c.MissedAfterDays <= c.GracePeriodDays {
		return ErrValidation
	}
	return nil
}

// Fund is the aggregate root of a pooled lending fund
type Fund struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	Description *string    `json:"description,omitempty"`
	Currency    string     `json:"currency"`
	Config      FundConfig `json:"config"`
	State       FundState  `json:"state"`
	Version     int64      `json:"version"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Validate checks the fund's own fields plus its config
func (f *Fund) Validate() error {
	if strings.TrimSpace(f.Name) == "" {
		return ErrValidation
	}
	if strings.TrimSpace(f.Currency) == "" {
		return ErrValidation
	}
	return f.Config.Validate()
}

// IsTerminal reports whether the fund is in its read-only final state
func (f *Fund) IsTerminal() bool {
	return f.State == FundStateDissolved
}

// UpdateConfiguration replaces the config; legal only while Draft
func (f *Fund) UpdateConfiguration(cfg FundConfig) error {
	if f.State != FundStateDraft {
		return ErrInvalidState
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	f.Config = cfg
	return nil
}

// Activate moves Draft -> Active; requires at least one admin
func (f *Fund) Activate(adminCount int) error {
	if f.State != FundStateDraft {
		return ErrInvalidState
	}
	if adminCount < 1 {
		return ErrLastAdmin
	}
	f.State = FundStateActive
	return nil
}

// InitiateDissolution moves Active -> Dissolving. New members, new loan
// requests, and new due generation are blocked; in-flight repayments continue.
func (f *Fund) InitiateDissolution() error {
	if f.State != FundStateActive {
		return ErrInvalidState
	}
	f.State = FundStateDissolving
	return nil
}

// ConfirmDissolution moves Dissolving -> Dissolved (terminal)
func (f *Fund) ConfirmDissolution() error {
	if f.State != FundStateDissolving {
		return ErrInvalidState
	}
	f.State = FundStateDissolved
	return nil
}

// FundRoleAssignment maps a user to a role within one fund.
// Unique on (userID, fundID).
type FundRoleAssignment struct {
	ID        uuid.UUID `json:"id"`
	FundID    uuid.UUID `json:"fundId"`
	UserID    uuid.UUID `json:"userId"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// MemberContributionPlan is a member's standing monthly contribution
// commitment. The amount is immutable after creation.
type MemberContributionPlan struct {
	ID                        uuid.UUID       `json:"id"`
	FundID                    uuid.UUID       `json:"fundId"`
	UserID                    uuid.UUID       `json:"userId"`
	MonthlyContributionAmount decimal.Decimal `json:"monthlyContributionAmount"`
	JoinDate                  time.Time       `json:"joinDate"`
	IsActive                  bool            `json:"isActive"`
	CreatedAt                 time.Time       `json:"createdAt"`
	UpdatedAt                 time.Time       `json:"updatedAt"`
}

// FundRepository persists funds, role assignments, and member plans
type FundRepository interface {
	Create(ctx context.Context, fund *Fund) (*Fund, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Fund, error)
	// Update persists mutable columns (description, config, state) with an
	// optimistic version check; returns ErrVersionMismatch on a stale version
	Update(ctx context.Context, fund *Fund) (*Fund, error)

	AssignRole(ctx context.Context, assignment *FundRoleAssignment) (*FundRoleAssignment, error)
	UpdateRole(ctx context.Context, fundID, userID uuid.UUID, role Role) (*FundRoleAssignment, error)
	RemoveRole(ctx context.Context, fundID, userID uuid.UUID) error
	GetRole(ctx context.Context, fundID, userID uuid.UUID) (*FundRoleAssignment, error)
	ListRoles(ctx context.Context, fundID uuid.UUID) ([]*FundRoleAssignment, error)
	CountAdmins(ctx context.Context, fundID uuid.UUID) (int, error)

	CreateMemberPlan(ctx context.Context, plan *MemberContributionPlan) (*MemberContributionPlan, error)
	GetMemberPlan(ctx context.Context, fundID, userID uuid.UUID) (*MemberContributionPlan, error)
	ListMemberPlans(ctx context.Context, fundID uuid.UUID, activeOnly bool) ([]*MemberContributionPlan, error)
	DeactivateMemberPlan(ctx context.Context, fundID, userID uuid.UUID) error

	// ListFundIDsByStates feeds the periodic jobs that iterate per fund
	ListFundIDsByStates(ctx context.Context, states ...FundState) ([]uuid.UUID, error)
}
