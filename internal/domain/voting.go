package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ThresholdType selects how a voting session is tallied
type ThresholdType string

const (
	ThresholdMajority   ThresholdType = "majority"
	ThresholdPercentage ThresholdType = "percentage"
)

// VotingResult is the outcome of a session
type VotingResult string

const (
	VotingPending  VotingResult = "pending"
	VotingApproved VotingResult = "approved"
	VotingRejected VotingResult = "rejected"
	VotingNoQuorum VotingResult = "no_quorum"
)

// VoteDecision is a single voter's choice
type VoteDecision string

const (
	VoteApprove VoteDecision = "approve"
	VoteReject  VoteDecision = "reject"
)

// Voting window bounds in hours
const (
	MinVotingWindowHours = 24
	MaxVotingWindowHours = 72
)

// VotingSession is a bounded-window collective decision attached to one loan
// approval. At most one session per loan.
type VotingSession struct {
	ID             uuid.UUID     `json:"id"`
	LoanID         uuid.UUID     `json:"loanId"`
	FundID         uuid.UUID     `json:"fundId"`
	WindowStart    time.Time     `json:"windowStart"`
	WindowEnd      time.Time     `json:"windowEnd"`
	ThresholdType  ThresholdType `json:"thresholdType"`
	ThresholdValue int           `json:"thresholdValue"`
	Result         VotingResult  `json:"result"`
	FinalisedBy    *uuid.UUID    `json:"finalisedBy,omitempty"`
	FinalisedDate  *time.Time    `json:"finalisedDate,omitempty"`
	OverrideUsed   bool          `json:"overrideUsed"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}

// IsFinalised reports whether the session reached a terminal result
func (s *VotingSession) IsFinalised() bool {
	return s.Result != VotingPending
}

// Vote is one voter's immutable decision. Unique on (sessionID, voterID).
type Vote struct {
	ID        uuid.UUID    `json:"id"`
	SessionID uuid.UUID    `json:"sessionId"`
	VoterID   uuid.UUID    `json:"voterId"`
	Decision  VoteDecision `json:"decision"`
	CastAt    time.Time    `json:"castAt"`
}

// Tally computes the natural outcome of a session from vote counts
func Tally(approve, reject int, thresholdType ThresholdType, thresholdValue int) VotingResult {
	total := approve + reject
	if total == 0 {
		return VotingNoQuorum
	}
	if thresholdType == ThresholdMajority {
		if approve > reject {
			return VotingApproved
		}
		return VotingRejected
	}
	if approve*100/total >= thresholdValue {
		return VotingApproved
	}
	return VotingRejected
}

// Finalise records the admin decision, flagging an override when it
// contradicts a natural outcome that reached quorum
func (s *VotingSession) Finalise(adminID uuid.UUID, adminDecision VotingResult, naturalOutcome VotingResult, now time.Time) error {
	if s.IsFinalised() {
		return ErrAlreadyFinalised
	}
	if adminDecision != VotingApproved && adminDecision != VotingRejected {
		return ErrValidation
	}
	s.Result = adminDecision
	s.FinalisedBy = &adminID
	s.FinalisedDate = &now
	s.OverrideUsed = naturalOutcome != VotingNoQuorum && adminDecision != naturalOutcome
	return nil
}

// VotingRepository persists sessions and votes
type VotingRepository interface {
	// CreateSession inserts the session; ErrAlreadyExists when the loan
	// already has one
	CreateSession(ctx context.Context, session *VotingSession) (*VotingSession, error)
	GetSessionByID(ctx context.Context, id uuid.UUID) (*VotingSession, error)
	GetSessionByLoanID(ctx context.Context, loanID uuid.UUID) (*VotingSession, error)
	// CastVote inserts the vote; ErrAlreadyVoted on a duplicate
	// (sessionID, voterID)
	CastVote(ctx context.Context, vote *Vote) (*Vote, error)
	CountVotes(ctx context.Context, sessionID uuid.UUID) (approve, reject int, err error)
	ListVotes(ctx context.Context, sessionID uuid.UUID) ([]*Vote, error)
	FinaliseSession(ctx context.Context, session *VotingSession) (*VotingSession, error)
}
