package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestTally(t *testing.T) {
	tests := []struct {
		name           string
		approve        int
		reject         int
		thresholdType  ThresholdType
		thresholdValue int
		want           VotingResult
	}{
		{"no votes is no quorum", 0, 0, ThresholdMajority, 0, VotingNoQuorum},
		{"majority approve", 3, 1, ThresholdMajority, 0, VotingApproved},
		{"majority reject", 1, 3, ThresholdMajority, 0, VotingRejected},
		{"majority tie rejects", 2, 2, ThresholdMajority, 0, VotingRejected},
		{"percentage met exactly", 3, 1, ThresholdPercentage, 75, VotingApproved},
		{"percentage not met", 2, 2, ThresholdPercentage, 51, VotingRejected},
		{"percentage single approve", 1, 0, ThresholdPercentage, 100, VotingApproved},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tally(tt.approve, tt.reject, tt.thresholdType, tt.thresholdValue)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSessionFinalise(t *testing.T) {
	admin := uuid.New()
	now := time.Now().UTC()

	s := &VotingSession{Result: VotingPending}
	assert.NoError(t, s.Finalise(admin, VotingApproved, VotingRejected, now))
	assert.Equal(t, VotingApproved, s.Result)
	assert.True(t, s.OverrideUsed)
	assert.Equal(t, &admin, s.FinalisedBy)

	// Re-entry fails
	assert.ErrorIs(t, s.Finalise(admin, VotingRejected, VotingRejected, now), ErrAlreadyFinalised)
}

func TestSessionFinaliseNoOverride(t *testing.T) {
	s := &VotingSession{Result: VotingPending}
	assert.NoError(t, s.Finalise(uuid.New(), VotingApproved, VotingApproved, time.Now().UTC()))
	assert.False(t, s.OverrideUsed)
}

func TestSessionFinaliseNoQuorumNeverOverride(t *testing.T) {
	// An admin decision against an empty tally is not an override
	s := &VotingSession{Result: VotingPending}
	assert.NoError(t, s.Finalise(uuid.New(), VotingApproved, VotingNoQuorum, time.Now().UTC()))
	assert.False(t, s.OverrideUsed)
}

func TestSessionFinaliseRejectsNonTerminalDecision(t *testing.T) {
	s := &VotingSession{Result: VotingPending}
	assert.ErrorIs(t, s.Finalise(uuid.New(), VotingNoQuorum, VotingNoQuorum, time.Now().UTC()), ErrValidation)
	assert.ErrorIs(t, s.Finalise(uuid.New(), VotingPending, VotingNoQuorum, time.Now().UTC()), ErrValidation)
}
