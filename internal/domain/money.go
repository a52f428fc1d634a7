package domain

import "github.com/shopspring/decimal"

// Monetary values are fixed-point decimals with two fractional digits; rates
// carry four. Intermediate products keep full precision, banker's rounding is
// applied on the final step only.

// MonthlyInterest returns the interest accrued on principal for one month at
// the given per-month rate, rounded to two decimal places
func MonthlyInterest(principal, rate decimal.Decimal) decimal.Decimal {
	return principal.Mul(rate).RoundBank(2)
}

// PrincipalDue returns the principal portion of a monthly repayment under
// reducing-balance scheduling. The scheduled installment covers interest
// first; the remainder goes to principal, floored at minPrincipal and capped
// at the outstanding balance. When the installment does not clear the
// interest, the minimum principal still falls due.
func PrincipalDue(outstanding, minPrincipal, installment, interest decimal.Decimal) decimal.Decimal {
	remainder := installment.Sub(interest)
	due := minPrincipal
	if remainder.GreaterThan(minPrincipal) {
		due = remainder
	}
	if due.GreaterThan(outstanding) {
		// Final installment: settle whatever is left
		return outstanding
	}
	return due
}

// PaymentSplit is the outcome of allocating a cash payment across a repayment
// entry and its loan
type PaymentSplit struct {
	InterestPaid      decimal.Decimal
	PrincipalPaid     decimal.Decimal
	ExcessToPrincipal decimal.Decimal
	ExcessNotApplied  decimal.Decimal
	NewOutstanding    decimal.Decimal
}

// ApplyPayment allocates amount across a repayment entry: interest first (up
// to interestOutstanding), then the entry's remaining principal due, then any
// remainder reduces the loan's outstanding principal directly. Whatever
// cannot be absorbed by the loan comes back as ExcessNotApplied; callers
// reject over-payments by default.
func ApplyPayment(amount, interestOutstanding, principalDueRemaining, loanOutstanding decimal.Decimal) PaymentSplit {
	interestPaid := decimal.Min(amount, interestOutstanding)
	remaining := amount.Sub(interestPaid)

	principalPaid := decimal.Min(remaining, principalDueRemaining, loanOutstanding)
	remaining = remaining.Sub(principalPaid)

	outstanding := loanOutstanding.Sub(principalPaid)
	excess := decimal.Min(remaining, outstanding)
	remaining = remaining.Sub(excess)
	outstanding = outstanding.Sub(excess)

	return PaymentSplit{
		InterestPaid:      interestPaid,
		PrincipalPaid:     principalPaid,
		ExcessToPrincipal: excess,
		ExcessNotApplied:  remaining,
		NewOutstanding:    outstanding,
	}
}
