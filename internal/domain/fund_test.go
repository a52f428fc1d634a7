package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func validConfig() FundConfig {
	return FundConfig{
		MonthlyInterestRate:          dec("0.02"),
		MinimumMonthlyContribution:   dec("1000.00"),
		MinimumPrincipalPerRepayment: dec("1000.00"),
		LoanApprovalPolicy:           ApprovalAdminOnly,
		OverduePenaltyType:           PenaltyNone,
		OverduePenaltyValue:          decimal.Zero,
		ContributionDayOfMonth:       5,
		GracePeriodDays:              3,
	}
}

func TestFundConfigValidate(t *testing.T) {
	assert.NoError(t, validConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*FundConfig)
	}{
		{"zero interest rate", func(c *FundConfig) { c.MonthlyInterestRate = decimal.Zero }},
		{"rate above one", func(c *FundConfig) { c.MonthlyInterestRate = dec("1.0001") }},
		{"zero minimum contribution", func(c *FundConfig) { c.MinimumMonthlyContribution = decimal.Zero }},
		{"zero minimum principal", func(c *FundConfig) { c.MinimumPrincipalPerRepayment = decimal.Zero }},
		{"unknown policy", func(c *FundConfig) { c.LoanApprovalPolicy = "committee" }},
		{"zero max loan", func(c *FundConfig) { z := decimal.Zero; c.MaxLoanPerMember = &z }},
		{"zero max concurrent", func(c *FundConfig) { z := 0; c.MaxConcurrentLoans = &z }},
		{"negative penalty value", func(c *FundConfig) { c.OverduePenaltyValue = dec("-1") }},
		{"contribution day zero", func(c *FundConfig) { c.ContributionDayOfMonth = 0 }},
		{"contribution day 29", func(c *FundConfig) { c.ContributionDayOfMonth = 29 }},
		{"negative grace period", func(c *FundConfig) { c.GracePeriodDays = -1 }},
		{"missed threshold inside grace", func(c *FundConfig) { d := 2; c.MissedAfterDays = &d }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrValidation)
		})
	}
}

func TestFundActivate(t *testing.T) {
	f := &Fund{State: FundStateDraft, Config: validConfig()}
	assert.ErrorIs(t, f.Activate(0), ErrLastAdmin)
	assert.Equal(t, FundStateDraft, f.State)

	assert.NoError(t, f.Activate(1))
	assert.Equal(t, FundStateActive, f.State)

	// Re-activation is not a legal transition
	assert.ErrorIs(t, f.Activate(1), ErrInvalidState)
}

func TestFundDissolutionTransitions(t *testing.T) {
	f := &Fund{State: FundStateDraft}
	assert.ErrorIs(t, f.InitiateDissolution(), ErrInvalidState)
	assert.ErrorIs(t, f.ConfirmDissolution(), ErrInvalidState)

	f.State = FundStateActive
	assert.NoError(t, f.InitiateDissolution())
	assert.Equal(t, FundStateDissolving, f.State)
	assert.ErrorIs(t, f.InitiateDissolution(), ErrInvalidState)

	assert.NoError(t, f.ConfirmDissolution())
	assert.Equal(t, FundStateDissolved, f.State)
	assert.True(t, f.IsTerminal())

	// Dissolved is terminal
	assert.ErrorIs(t, f.InitiateDissolution(), ErrInvalidState)
	assert.ErrorIs(t, f.ConfirmDissolution(), ErrInvalidState)
}

func TestFundUpdateConfigurationOnlyInDraft(t *testing.T) {
	f := &Fund{State: FundStateDraft, Config: validConfig()}
	next := validConfig()
	next.GracePeriodDays = 10
	assert.NoError(t, f.UpdateConfiguration(next))
	assert.Equal(t, 10, f.Config.GracePeriodDays)

	f.State = FundStateActive
	assert.ErrorIs(t, f.UpdateConfiguration(validConfig()), ErrInvalidState)
}

func TestFundUpdateConfigurationValidates(t *testing.T) {
	f := &Fund{State: FundStateDraft, Config: validConfig()}
	bad := validConfig()
	bad.ContributionDayOfMonth = 31
	assert.ErrorIs(t, f.UpdateConfiguration(bad), ErrValidation)
}

func TestFundValidate(t *testing.T) {
	f := &Fund{Name: "Village Circle", Currency: "KES", Config: validConfig()}
	assert.NoError(t, f.Validate())

	f.Name = "  "
	assert.ErrorIs(t, f.Validate(), ErrValidation)

	f.Name = "Village Circle"
	f.Currency = ""
	assert.ErrorIs(t, f.Validate(), ErrValidation)
}
