package worker

import (
	"context"
	"errors"
	"time"

	"leecher/internal/domain"
	"leecher/internal/models"

	"github.com/rs/zerolog"
)

// Drainer is the part of the queue processor the worker drives.
type Drainer interface {
	Drain(ctx context.Context) (*models.DrainReport, error)
}

// DrainWorker drains the schedule queue on a fixed interval. A failed drain
// is retried with backoff; a drain already running elsewhere is not an error.
type DrainWorker struct {
	drainer     Drainer
	interval    time.Duration
	retryPolicy RetryPolicy
	trigger     chan struct{}
	logger      *zerolog.Logger
}

func NewDrainWorker(drainer Drainer, interval time.Duration, retry RetryPolicy, logger *zerolog.Logger) *DrainWorker {
	if interval <= 0 {
		interval = models.DefaultDrainInterval * time.Second
	}
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 5
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = time.Minute
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}

	return &DrainWorker{
		drainer:     drainer,
		interval:    interval,
		retryPolicy: retry,
		trigger:     make(chan struct{}, 1),
		logger:      logger,
	}
}

// Trigger asks for a drain before the next tick. Extra triggers coalesce.
func (w *DrainWorker) Trigger() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

// Start runs until ctx is done.
func (w *DrainWorker) Start(ctx context.Context) {
	w.logger.Info().Dur("interval", w.interval).Msg("Drain worker started")
	defer w.logger.Info().Msg("Drain worker stopped")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-w.trigger:
		}
		w.RunOnce(ctx)
	}
}

// RunOnce drains the queue, retrying failed drains per the retry policy.
// It reports whether a drain completed.
func (w *DrainWorker) RunOnce(ctx context.Context) bool {
	for attempt := 1; ; attempt++ {
		report, err := w.drainer.Drain(ctx)
		switch {
		case err == nil:
			if report != nil && report.Processed+report.Skipped > 0 {
				w.logger.Debug().
					Int("processed", report.Processed).
					Int("skipped", report.Skipped).
					Msg("Scheduled drain finished")
			}
			return true
		case errors.Is(err, domain.ErrDrainInProgress):
			w.logger.Debug().Msg("Drain already running, skipping tick")
			return false
		case ctx.Err() != nil:
			return false
		}

		if attempt > w.retryPolicy.MaxRetries {
			w.logger.Error().Err(err).Int("attempts", attempt).Msg("Drain failed, giving up until next tick")
			return false
		}

		delay := w.retryPolicy.NextDelay(attempt)
		w.logger.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", delay).Msg("Drain failed")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
	}
}
