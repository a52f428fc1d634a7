package service

import (
	"context"
	"sync"
	"time"

	"github.com/chamahq/chama-backend/internal/domain"
	"github.com/chamahq/chama-backend/internal/event"
	"github.com/rs/zerolog"
)

// OutboxWorker is a background worker that retries events whose emission
// failed after commit, giving at-least-once delivery
type OutboxWorker struct {
	outboxRepo domain.OutboxRepository
	publisher  event.Publisher
	logger     zerolog.Logger
	interval   time.Duration
	batchSize  int
	maxBackoff time.Duration
	stopCh     chan struct{}
	doneCh     chan struct{}
	mu         sync.Mutex
	running    bool
}

// OutboxWorkerConfig holds configuration for the outbox worker
type OutboxWorkerConfig struct {
	Interval   time.Duration // How often to scan for undelivered events
	BatchSize  int           // Max events dispatched per scan
	MaxBackoff time.Duration // Cap on the retry delay
}

// DefaultOutboxWorkerConfig returns sensible defaults
func DefaultOutboxWorkerConfig() OutboxWorkerConfig {
	return OutboxWorkerConfig{
		Interval:   30 * time.Second,
		BatchSize:  100,
		MaxBackoff: 1 * time.Hour,
	}
}

// NewOutboxWorker creates a new outbox worker. The publisher must be the
// direct bus publisher, not one wrapped with the outbox fallback.
func NewOutboxWorker(outboxRepo domain.OutboxRepository, publisher event.Publisher, logger zerolog.Logger, config OutboxWorkerConfig) *OutboxWorker {
	if config.Interval <= 0 {
		config.Interval = 30 * time.Second
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = 1 * time.Hour
	}

	return &OutboxWorker{
		outboxRepo: outboxRepo,
		publisher:  publisher,
		logger:     logger.With().Str("component", "outbox_worker").Logger(),
		interval:   config.Interval,
		batchSize:  config.BatchSize,
		maxBackoff: config.MaxBackoff,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Start begins the background dispatch loop
func (w *OutboxWorker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info().Dur("interval", w.interval).Msg("Starting outbox worker")
	go w.run(ctx)
}

// Stop gracefully stops the outbox worker
func (w *OutboxWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	w.logger.Info().Msg("Stopping outbox worker")
	close(w.stopCh)
	<-w.doneCh
	w.logger.Info().Msg("Outbox worker stopped")
}

func (w *OutboxWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			w.running = false
			w.mu.Unlock()
			return
		case <-w.stopCh:
			w.mu.Lock()
			w.running = false
			w.mu.Unlock()
			return
		case <-ticker.C:
			w.DispatchDue(ctx, time.Now().UTC())
		}
	}
}

// DispatchDue attempts delivery of every event whose retry time has passed.
// Returns the number dispatched.
func (w *OutboxWorker) DispatchDue(ctx context.Context, asOf time.Time) int {
	due, err := w.outboxRepo.ListDue(ctx, asOf, w.batchSize)
	if err != nil {
		w.logger.Error().Err(err).Msg("Failed to list outbox events")
		return 0
	}

	dispatched := 0
	for _, pending := range due {
		select {
		case <-ctx.Done():
			return dispatched
		case <-w.stopCh:
			return dispatched
		default:
		}

		e := event.Event{
			ID:         pending.EventID,
			FundID:     pending.FundID,
			Type:       event.Type(pending.EventType),
			OccurredAt: pending.OccurredAt,
			Payload:    pending.Payload,
		}
		if err := w.publisher.Publish(ctx, e); err != nil {
			attempts := pending.Attempts + 1
			next := asOf.Add(w.backoff(attempts))
			if rerr := w.outboxRepo.RecordFailure(ctx, pending.ID, attempts, next); rerr != nil {
				w.logger.Error().Err(rerr).Str("outbox_id", pending.ID.String()).Msg("Failed to record outbox failure")
			}
			w.logger.Warn().
				Err(err).
				Str("event_type", pending.EventType).
				Int("attempts", attempts).
				Time("next_attempt", next).
				Msg("Outbox dispatch failed")
			continue
		}
		if err := w.outboxRepo.MarkDispatched(ctx, pending.ID, asOf); err != nil {
			w.logger.Error().Err(err).Str("outbox_id", pending.ID.String()).Msg("Failed to mark outbox event dispatched")
			continue
		}
		dispatched++
	}

	if dispatched > 0 {
		w.logger.Info().Int("dispatched", dispatched).Msg("Dispatched outbox events")
	}
	return dispatched
}

// backoff doubles per attempt from one interval, capped at maxBackoff
func (w *OutboxWorker) backoff(attempts int) time.Duration {
	d := w.interval
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= w.maxBackoff {
			return w.maxBackoff
		}
	}
	if d > w.maxBackoff {
		return w.maxBackoff
	}
	return d
}

// IsRunning returns whether the worker is currently running
func (w *OutboxWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
