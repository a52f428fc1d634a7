package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/chamahq/chama-backend/internal/domain"
	"github.com/chamahq/chama-backend/internal/util"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Job names used as advisory lock keys
const (
	jobGenerateDues         = "generate_dues"
	jobGenerateRepayments   = "generate_repayments"
	jobOverdueContributions = "overdue_contributions"
	jobOverdueRepayments    = "overdue_repayments"
	jobApplyPenalties       = "apply_penalties"
)

// Scheduler is a background worker driving the periodic per-fund jobs:
// monthly due and repayment-entry generation, overdue detection, penalty
// application, and the invitation expiry sweep. Per-fund jobs run under an
// advisory lock so multiple instances never process the same fund twice.
type Scheduler struct {
	fundRepo      domain.FundRepository
	loanRepo      domain.LoanRepository
	locker        domain.JobLocker
	contributions *ContributionService
	repayments    *RepaymentService
	penalties     *PenaltyService
	invitations   *InvitationService
	logger        zerolog.Logger
	interval      time.Duration
	stopCh        chan struct{}
	doneCh        chan struct{}
	mu            sync.Mutex
	running       bool
}

// SchedulerConfig holds configuration for the scheduler
type SchedulerConfig struct {
	Interval time.Duration // How often to run the job sweep
}

// DefaultSchedulerConfig returns sensible defaults
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{Interval: 1 * time.Hour}
}

// NewScheduler creates a new scheduler
func NewScheduler(
	fundRepo domain.FundRepository,
	loanRepo domain.LoanRepository,
	locker domain.JobLocker,
	contributions *ContributionService,
	repayments *RepaymentService,
	penalties *PenaltyService,
	invitations *InvitationService,
	logger zerolog.Logger,
	config SchedulerConfig,
) *Scheduler {
	if config.Interval <= 0 {
		config.Interval = 1 * time.Hour
	}

	return &Scheduler{
		fundRepo:      fundRepo,
		loanRepo:      loanRepo,
		locker:        locker,
		contributions: contributions,
		repayments:    repayments,
		penalties:     penalties,
		invitations:   invitations,
		logger:        logger.With().Str("component", "scheduler").Logger(),
		interval:      config.Interval,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
}

// Start begins the background job sweep
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info().Dur("interval", s.interval).Msg("Starting scheduler")
	go s.run(ctx)
}

// Stop gracefully stops the scheduler
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.logger.Info().Msg("Stopping scheduler")
	close(s.stopCh)
	<-s.doneCh
	s.logger.Info().Msg("Scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	// Run immediately on startup
	s.Sweep(ctx, time.Now().UTC())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
			return
		case <-s.stopCh:
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
			return
		case <-ticker.C:
			s.Sweep(ctx, time.Now().UTC())
		}
	}
}

// Sweep runs one pass of every job over every fund still doing business.
// Dissolving funds stay in the sweep: their in-flight loan repayments
// continue, so repayment-entry generation, overdue detection, and penalties
// keep running until the fund is Dissolved.
func (s *Scheduler) Sweep(ctx context.Context, asOf time.Time) {
	start := time.Now()

	if _, err := s.invitations.ExpireSweep(ctx, asOf); err != nil {
		s.logger.Error().Err(err).Msg("Invitation expiry sweep failed")
	}

	fundIDs, err := s.fundRepo.ListFundIDsByStates(ctx, domain.FundStateActive, domain.FundStateDissolving)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list sweepable funds")
		return
	}

	month := util.MonthYearFromTime(asOf)
	for _, fundID := range fundIDs {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Context cancelled, stopping sweep")
			return
		case <-s.stopCh:
			s.logger.Info().Msg("Stop signal received, stopping sweep")
			return
		default:
		}
		s.sweepFund(ctx, fundID, month, asOf)
	}

	s.logger.Info().
		Int("funds", len(fundIDs)).
		Dur("elapsed", time.Since(start)).
		Msg("Completed job sweep")
}

func (s *Scheduler) sweepFund(ctx context.Context, fundID uuid.UUID, month util.MonthYear, asOf time.Time) {
	s.withLock(ctx, jobGenerateDues, fundID, func(ctx context.Context) error {
		_, err := s.contributions.GenerateDues(ctx, uuid.Nil, fundID, month)
		if errors.Is(err, domain.ErrInvalidState) {
			// Dissolving funds stop generating dues
			return nil
		}
		return err
	})
	s.withLock(ctx, jobGenerateRepayments, fundID, func(ctx context.Context) error {
		return s.generateRepaymentEntries(ctx, fundID, month)
	})
	s.withLock(ctx, jobOverdueContributions, fundID, func(ctx context.Context) error {
		_, err := s.contributions.DetectOverdue(ctx, fundID, asOf)
		return err
	})
	s.withLock(ctx, jobOverdueRepayments, fundID, func(ctx context.Context) error {
		_, err := s.repayments.DetectOverdue(ctx, fundID, asOf)
		return err
	})
	s.withLock(ctx, jobApplyPenalties, fundID, func(ctx context.Context) error {
		_, err := s.penalties.ApplyPenalties(ctx, fundID)
		return err
	})
}

func (s *Scheduler) generateRepaymentEntries(ctx context.Context, fundID uuid.UUID, month util.MonthYear) error {
	loans, err := s.loanRepo.ListActiveByFund(ctx, fundID)
	if err != nil {
		return err
	}
	for _, loan := range loans {
		if _, _, err := s.repayments.GenerateEntry(ctx, uuid.Nil, loan.ID, month); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) withLock(ctx context.Context, jobName string, fundID uuid.UUID, fn func(context.Context) error) {
	acquired, err := s.locker.WithLock(ctx, jobName, fundID, fn)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("job", jobName).
			Str("fund_id", fundID.String()).
			Msg("Job failed")
		return
	}
	if !acquired {
		s.logger.Debug().
			Str("job", jobName).
			Str("fund_id", fundID.String()).
			Msg("Job lock held elsewhere, skipping")
	}
}

// IsRunning returns whether the scheduler is currently running
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
