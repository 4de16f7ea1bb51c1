package dischargesync

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/adt/adt/internal/platform/db"
)

const (
	baseBackoff = 30 * time.Second
	maxBackoff  = time.Hour
	// claimLease keeps claimed events hidden from rival dispatchers while
	// delivery runs outside the claiming transaction. Events claimed by a
	// dispatcher that died mid-batch come due again once the lease expires.
	claimLease = 5 * time.Minute
)

// Dispatcher drains the discharge outbox in the background. Each cycle claims
// due pending events under a short lease, delivers outside any transaction,
// and records each outcome individually. Delivery never touches admission
// state.
type Dispatcher struct {
	repo        Repository
	notifier    Notifier
	txm         *db.TxManager
	logger      zerolog.Logger
	interval    time.Duration
	batchSize   int
	maxAttempts int
}

func NewDispatcher(repo Repository, notifier Notifier, txm *db.TxManager, logger zerolog.Logger,
	interval time.Duration, batchSize, maxAttempts int) *Dispatcher {
	return &Dispatcher{
		repo:        repo,
		notifier:    notifier,
		txm:         txm,
		logger:      logger.With().Str("component", "discharge_dispatcher").Logger(),
		interval:    interval,
		batchSize:   batchSize,
		maxAttempts: maxAttempts,
	}
}

// Run polls until ctx is cancelled. Intended to be started as a goroutine
// alongside the HTTP server.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.logger.Info().Dur("interval", d.interval).Msg("discharge dispatcher started")
	for {
		select {
		case <-ctx.Done():
			d.logger.Info().Msg("discharge dispatcher stopped")
			return
		case <-ticker.C:
			if _, err := d.DispatchOnce(ctx); err != nil {
				d.logger.Error().Err(err).Msg("dispatch cycle failed")
			}
		}
	}
}

// DispatchOnce processes a single batch and returns the number of events
// delivered. Claiming is its own short transaction so the gateway calls never
// run against the transaction deadline, and each MarkDelivered or
// MarkAttemptFailed is a standalone write, so one slow or failing event never
// undoes the outcomes already recorded for the rest of the batch.
func (d *Dispatcher) DispatchOnce(ctx context.Context) (int, error) {
	var events []*Event
	err := d.txm.Run(ctx, func(ctx context.Context) error {
		var err error
		events, err = d.repo.ClaimDue(ctx, d.batchSize, claimLease)
		return err
	})
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, event := range events {
		if err := d.deliver(ctx, event); err == nil {
			delivered++
		}
	}
	return delivered, nil
}

func (d *Dispatcher) deliver(ctx context.Context, event *Event) error {
	err := d.notifier.Notify(ctx, event.Payload)
	if err == nil {
		if markErr := d.repo.MarkDelivered(ctx, event.ID); markErr != nil {
			return markErr
		}
		d.logger.Info().
			Str("event_id", event.ID.String()).
			Str("admission_id", event.AdmissionID.String()).
			Msg("discharge event delivered")
		return nil
	}

	attempts := event.Attempts + 1
	terminal := attempts >= d.maxAttempts
	next := time.Now().Add(backoff(attempts))

	if markErr := d.repo.MarkAttemptFailed(ctx, event.ID, attempts, next, err.Error(), terminal); markErr != nil {
		return markErr
	}

	evt := d.logger.Warn()
	if terminal {
		evt = d.logger.Error().Bool("terminal", true)
	}
	evt.
		Str("event_id", event.ID.String()).
		Str("admission_id", event.AdmissionID.String()).
		Int("attempts", attempts).
		Err(err).
		Msg("discharge event delivery failed")
	return err
}

// backoff doubles per attempt: 30s, 1m, 2m, ... capped at an hour.
func backoff(attempts int) time.Duration {
	d := baseBackoff
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}
