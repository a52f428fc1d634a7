package domain

import (
	"errors"
	"fmt"
)

// Error kinds returned uniformly by the core. Handlers map these to HTTP
// status codes; services surface them verbatim.
var (
	ErrNotFound           = errors.New("resource not found")
	ErrInvalidState       = errors.New("operation not allowed in current state")
	ErrValidation         = errors.New("invalid input")
	ErrConflict           = errors.New("conflict")
	ErrLastAdmin          = errors.New("fund must keep at least one admin")
	ErrMaxLoanExceeded    = errors.New("principal exceeds the per-member loan cap")
	ErrMaxConcurrentLoans = errors.New("borrower already holds the maximum number of open loans")
	ErrAlreadyPaid        = errors.New("already fully paid")
	ErrAlreadyVoted       = errors.New("voter has already cast a vote in this session")
	ErrAlreadyFinalised   = errors.New("voting session is already finalised")
	ErrAlreadyExists      = errors.New("resource already exists")
	ErrWindowClosed       = errors.New("voting window has closed")
	ErrRateLimited        = errors.New("rate limited")
)

// Entity-specific sentinels, all wrapping a kind so errors.Is matches both
var (
	ErrFundNotFound       = fmt.Errorf("%w: fund", ErrNotFound)
	ErrLoanNotFound       = fmt.Errorf("%w: loan", ErrNotFound)
	ErrDueNotFound        = fmt.Errorf("%w: contribution due", ErrNotFound)
	ErrEntryNotFound      = fmt.Errorf("%w: repayment entry", ErrNotFound)
	ErrSessionNotFound    = fmt.Errorf("%w: voting session", ErrNotFound)
	ErrInvitationNotFound = fmt.Errorf("%w: invitation", ErrNotFound)
	ErrSettlementNotFound = fmt.Errorf("%w: dissolution settlement", ErrNotFound)
	ErrMemberNotFound     = fmt.Errorf("%w: fund member", ErrNotFound)

	ErrVersionMismatch      = fmt.Errorf("%w: row version mismatch", ErrConflict)
	ErrIdempotencyMismatch  = fmt.Errorf("%w: idempotency key reused with a different request", ErrConflict)
	ErrDuplicateRole        = fmt.Errorf("%w: role already assigned", ErrConflict)
	ErrDuplicateMemberPlan  = fmt.Errorf("%w: member plan already exists", ErrConflict)
	ErrPendingInvitation    = fmt.Errorf("%w: a pending invitation already exists for this contact", ErrConflict)
	ErrDuplicateTransaction = fmt.Errorf("%w: transaction idempotency key already used", ErrConflict)
)
