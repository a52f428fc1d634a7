package handler

import (
	"net/http"
	"time"

	"github.com/chamahq/chama-backend/internal/domain"
	"github.com/chamahq/chama-backend/internal/middleware"
	"github.com/chamahq/chama-backend/internal/service"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

// FundHandler handles fund lifecycle and membership HTTP requests
type FundHandler struct {
	fundService *service.FundService
}

// NewFundHandler creates a new FundHandler
func NewFundHandler(fundService *service.FundService) *FundHandler {
	return &FundHandler{fundService: fundService}
}

// FundConfigRequest represents a fund rule set in request bodies
type FundConfigRequest struct {
	MonthlyInterestRate          string  `json:"monthlyInterestRate"`
	MinimumMonthlyContribution   string  `json:"minimumMonthlyContribution"`
	MinimumPrincipalPerRepayment string  `json:"minimumPrincipalPerRepayment"`
	LoanApprovalPolicy           string  `json:"loanApprovalPolicy"`
	MaxLoanPerMember             *string `json:"maxLoanPerMember,omitempty"`
	MaxConcurrentLoans           *int    `json:"maxConcurrentLoans,omitempty"`
	OverduePenaltyType           string  `json:"overduePenaltyType"`
	OverduePenaltyValue          string  `json:"overduePenaltyValue"`
	ContributionDayOfMonth       int     `json:"contributionDayOfMonth"`
	GracePeriodDays              int     `json:"gracePeriodDays"`
	MissedAfterDays              *int    `json:"missedAfterDays,omitempty"`
}

// toDomain parses the string decimals into a FundConfig
func (r FundConfigRequest) toDomain() (domain.FundConfig, []ValidationError) {
	var errs []ValidationError
	cfg := domain.FundConfig{
		LoanApprovalPolicy:     domain.LoanApprovalPolicy(r.LoanApprovalPolicy),
		MaxConcurrentLoans:     r.MaxConcurrentLoans,
		OverduePenaltyType:     domain.PenaltyType(r.OverduePenaltyType),
		ContributionDayOfMonth: r.ContributionDayOfMonth,
		GracePeriodDays:        r.GracePeriodDays,
		MissedAfterDays:        r.MissedAfterDays,
	}

	parse := func(field, raw string) decimal.Decimal {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			errs = append(errs, ValidationError{Field: field, Message: "Must be a valid decimal number"})
		}
		return d
	}

	cfg.MonthlyInterestRate = parse("monthlyInterestRate", r.MonthlyInterestRate)
	cfg.MinimumMonthlyContribution = parse("minimumMonthlyContribution", r.MinimumMonthlyContribution)
	cfg.MinimumPrincipalPerRepayment = parse("minimumPrincipalPerRepayment", r.MinimumPrincipalPerRepayment)
	cfg.OverduePenaltyValue = parse("overduePenaltyValue", r.OverduePenaltyValue)

	if r.MaxLoanPerMember != nil && *r.MaxLoanPerMember != "" {
		max := parse("maxLoanPerMember", *r.MaxLoanPerMember)
		cfg.MaxLoanPerMember = &max
	}

	return cfg, errs
}

// CreateFundRequest represents the create fund request body
type CreateFundRequest struct {
	Name        string            `json:"name"`
	Description *string           `json:"description,omitempty"`
	Currency    string            `json:"currency"`
	Config      FundConfigRequest `json:"config"`
}

// CreateFund handles POST /api/v1/funds
func (h *FundHandler) CreateFund(c echo.Context) error {
	actorID := middleware.GetPrincipalID(c)

	var req CreateFundRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	cfg, errs := req.Config.toDomain()
	if len(errs) > 0 {
		return NewValidationError(c, "Invalid fund configuration", errs)
	}

	fund, err := h.fundService.CreateFund(c.Request().Context(), actorID, service.CreateFundInput{
		Name:        req.Name,
		Description: req.Description,
		Currency:    req.Currency,
		Config:      cfg,
	})
	if err != nil {
		return RespondDomainError(c, err)
	}

	return c.JSON(http.StatusCreated, fund)
}

// GetFund handles GET /api/v1/funds/:fundId
func (h *FundHandler) GetFund(c echo.Context) error {
	fundID, ok := pathUUID(c, "fundId")
	if !ok {
		return NewValidationError(c, "Invalid fund id", nil)
	}

	fund, err := h.fundService.GetFund(c.Request().Context(), fundID)
	if err != nil {
		return RespondDomainError(c, err)
	}

	return c.JSON(http.StatusOK, fund)
}

// UpdateFundRequest represents the update fund request body. Only the
// description is editable after creation.
type UpdateFundRequest struct {
	Description *string `json:"description"`
}

// UpdateFund handles PATCH /api/v1/funds/:fundId
func (h *FundHandler) UpdateFund(c echo.Context) error {
	actorID := middleware.GetPrincipalID(c)
	fundID, ok := pathUUID(c, "fundId")
	if !ok {
		return NewValidationError(c, "Invalid fund id", nil)
	}
	version, ok := expectedVersion(c)
	if !ok {
		return NewValidationError(c, "Missing or invalid If-Match header", nil)
	}

	var req UpdateFundRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	fund, err := h.fundService.UpdateDescription(c.Request().Context(), actorID, fundID, req.Description, version)
	if err != nil {
		return RespondDomainError(c, err)
	}

	return c.JSON(http.StatusOK, fund)
}

// UpdateConfiguration handles PUT /api/v1/funds/:fundId/configuration.
// Allowed only while the fund is in Draft.
func (h *FundHandler) UpdateConfiguration(c echo.Context) error {
	actorID := middleware.GetPrincipalID(c)
	fundID, ok := pathUUID(c, "fundId")
	if !ok {
		return NewValidationError(c, "Invalid fund id", nil)
	}
	version, ok := expectedVersion(c)
	if !ok {
		return NewValidationError(c, "Missing or invalid If-Match header", nil)
	}

	var req FundConfigRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	cfg, errs := req.toDomain()
	if len(errs) > 0 {
		return NewValidationError(c, "Invalid fund configuration", errs)
	}

	fund, err := h.fundService.UpdateConfiguration(c.Request().Context(), actorID, fundID, cfg, version)
	if err != nil {
		return RespondDomainError(c, err)
	}

	return c.JSON(http.StatusOK, fund)
}

// ActivateFund handles POST /api/v1/funds/:fundId/activate
func (h *FundHandler) ActivateFund(c echo.Context) error {
	actorID := middleware.GetPrincipalID(c)
	fundID, ok := pathUUID(c, "fundId")
	if !ok {
		return NewValidationError(c, "Invalid fund id", nil)
	}
	version, ok := expectedVersion(c)
	if !ok {
		return NewValidationError(c, "Missing or invalid If-Match header", nil)
	}

	fund, err := h.fundService.Activate(c.Request().Context(), actorID, fundID, version)
	if err != nil {
		return RespondDomainError(c, err)
	}

	return c.JSON(http.StatusOK, fund)
}

// InitiateDissolution handles POST /api/v1/funds/:fundId/dissolve
func (h *FundHandler) InitiateDissolution(c echo.Context) error {
	actorID := middleware.GetPrincipalID(c)
	fundID, ok := pathUUID(c, "fundId")
	if !ok {
		return NewValidationError(c, "Invalid fund id", nil)
	}
	version, ok := expectedVersion(c)
	if !ok {
		return NewValidationError(c, "Missing or invalid If-Match header", nil)
	}

	fund, err := h.fundService.InitiateDissolution(c.Request().Context(), actorID, fundID, version)
	if err != nil {
		return RespondDomainError(c, err)
	}

	return c.JSON(http.StatusOK, fund)
}

// AssignRoleRequest represents the assign role request body
type AssignRoleRequest struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

// AssignRole handles POST /api/v1/funds/:fundId/members
func (h *FundHandler) AssignRole(c echo.Context) error {
	actorID := middleware.GetPrincipalID(c)
	fundID, ok := pathUUID(c, "fundId")
	if !ok {
		return NewValidationError(c, "Invalid fund id", nil)
	}

	var req AssignRoleRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		return NewValidationError(c, "Invalid user id", []ValidationError{
			{Field: "userId", Message: "Must be a valid UUID"},
		})
	}

	assignment, err := h.fundService.AssignRole(c.Request().Context(), actorID, fundID, userID, domain.Role(req.Role))
	if err != nil {
		return RespondDomainError(c, err)
	}

	return c.JSON(http.StatusCreated, assignment)
}

// ChangeRoleRequest represents the change role request body
type ChangeRoleRequest struct {
	Role string `json:"role"`
}

// ChangeRole handles PUT /api/v1/funds/:fundId/members/:userId/role
func (h *FundHandler) ChangeRole(c echo.Context) error {
	actorID := middleware.GetPrincipalID(c)
	fundID, ok := pathUUID(c, "fundId")
	if !ok {
		return NewValidationError(c, "Invalid fund id", nil)
	}
	userID, ok := pathUUID(c, "userId")
	if !ok {
		return NewValidationError(c, "Invalid user id", nil)
	}

	var req ChangeRoleRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	assignment, err := h.fundService.ChangeRole(c.Request().Context(), actorID, fundID, userID, domain.Role(req.Role))
	if err != nil {
		return RespondDomainError(c, err)
	}

	return c.JSON(http.StatusOK, assignment)
}

// RemoveMember handles DELETE /api/v1/funds/:fundId/members/:userId
func (h *FundHandler) RemoveMember(c echo.Context) error {
	actorID := middleware.GetPrincipalID(c)
	fundID, ok := pathUUID(c, "fundId")
	if !ok {
		return NewValidationError(c, "Invalid fund id", nil)
	}
	userID, ok := pathUUID(c, "userId")
	if !ok {
		return NewValidationError(c, "Invalid user id", nil)
	}

	if err := h.fundService.RemoveMember(c.Request().Context(), actorID, fundID, userID); err != nil {
		return RespondDomainError(c, err)
	}

	return c.NoContent(http.StatusNoContent)
}

// ListMembers handles GET /api/v1/funds/:fundId/members
func (h *FundHandler) ListMembers(c echo.Context) error {
	fundID, ok := pathUUID(c, "fundId")
	if !ok {
		return NewValidationError(c, "Invalid fund id", nil)
	}

	members, err := h.fundService.ListMembers(c.Request().Context(), fundID)
	if err != nil {
		return RespondDomainError(c, err)
	}

	return c.JSON(http.StatusOK, members)
}

// AddMemberPlanRequest represents the add member plan request body
type AddMemberPlanRequest struct {
	UserID                    string `json:"userId"`
	MonthlyContributionAmount string `json:"monthlyContributionAmount"`
	JoinDate                  string `json:"joinDate"`
}

// AddMemberPlan handles POST /api/v1/funds/:fundId/plans
func (h *FundHandler) AddMemberPlan(c echo.Context) error {
	actorID := middleware.GetPrincipalID(c)
	fundID, ok := pathUUID(c, "fundId")
	if !ok {
		return NewValidationError(c, "Invalid fund id", nil)
	}

	var req AddMemberPlanRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		return NewValidationError(c, "Invalid user id", []ValidationError{
			{Field: "userId", Message: "Must be a valid UUID"},
		})
	}
	amount, err := decimal.NewFromString(req.MonthlyContributionAmount)
	if err != nil {
		return NewValidationError(c, "Invalid contribution amount", []ValidationError{
			{Field: "monthlyContributionAmount", Message: "Must be a valid decimal number"},
		})
	}
	joinDate, err := time.Parse("2006-01-02", req.JoinDate)
	if err != nil {
		return NewValidationError(c, "Invalid join date", []ValidationError{
			{Field: "joinDate", Message: "Must be in YYYY-MM-DD format"},
		})
	}

	plan, err := h.fundService.AddMemberPlan(c.Request().Context(), actorID, fundID, service.AddMemberPlanInput{
		UserID:                    userID,
		MonthlyContributionAmount: amount,
		JoinDate:                  joinDate,
	})
	if err != nil {
		return RespondDomainError(c, err)
	}

	return c.JSON(http.StatusCreated, plan)
}

// ListMemberPlans handles GET /api/v1/funds/:fundId/plans
func (h *FundHandler) ListMemberPlans(c echo.Context) error {
	fundID, ok := pathUUID(c, "fundId")
	if !ok {
		return NewValidationError(c, "Invalid fund id", nil)
	}
	activeOnly := c.QueryParam("active") == "true"

	plans, err := h.fundService.ListMemberPlans(c.Request().Context(), fundID, activeOnly)
	if err != nil {
		return RespondDomainError(c, err)
	}

	return c.JSON(http.StatusOK, plans)
}
