package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"leecher/internal/domain"
	"leecher/internal/events"
	"leecher/internal/metrics"
	"leecher/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Processor drains the schedule queue one item at a time.
type Processor struct {
	store    domain.ScheduleStore
	runner   domain.BatchRunner
	locker   domain.DrainLocker
	eventBus domain.EventPublisher
	lockTTL  time.Duration
	now      func() time.Time
	logger   *zerolog.Logger
}

func NewProcessor(store domain.ScheduleStore, runner domain.BatchRunner, locker domain.DrainLocker, eventBus domain.EventPublisher, lockTTL time.Duration, logger *zerolog.Logger) *Processor {
	if lockTTL <= 0 {
		lockTTL = models.DefaultDrainLockTTL * time.Second
	}
	return &Processor{
		store:    store,
		runner:   runner,
		locker:   locker,
		eventBus: eventBus,
		lockTTL:  lockTTL,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}
}

// Drain processes the queue as it is when the call starts. Items queued
// meanwhile wait for the next drain. A concurrent drain gets
// domain.ErrDrainInProgress. Batch failures are logged per item; only store
// errors, a lost lock and context cancellation stop the drain early.
// Cancellation is checked between items: a started item always finishes
// together with its log entry and dequeue.
func (p *Processor) Drain(ctx context.Context) (*models.DrainReport, error) {
	started := time.Now()

	lease, err := p.locker.Acquire(ctx, models.DrainLockKey, p.lockTTL)
	if errors.Is(err, domain.ErrLockHeld) {
		metrics.ObserveDrain("busy", 0)
		return nil, domain.ErrDrainInProgress
	}
	if err != nil {
		metrics.ObserveDrain("error", 0)
		return nil, fmt.Errorf("acquire drain lock: %w", err)
	}
	hb := p.keepAlive(lease)
	defer func() {
		hb.stop()
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			p.logger.Warn().Err(err).Msg("Failed to release drain lock")
		}
	}()

	items, err := p.store.ListQueue(ctx, models.ListQuery{})
	if err != nil {
		metrics.ObserveDrain("error", time.Since(started))
		return nil, fmt.Errorf("read queue: %w", err)
	}
	metrics.SetQueueDepth(len(items))

	itemCtx := context.WithoutCancel(ctx)
	report := models.NewDrainReport()
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			metrics.ObserveDrain("error", time.Since(started))
			return report, err
		}
		if err := hb.lost(); err != nil {
			metrics.ObserveDrain("error", time.Since(started))
			return report, fmt.Errorf("drain lock: %w", err)
		}
		if err := p.process(itemCtx, item, report); err != nil {
			metrics.ObserveDrain("error", time.Since(started))
			return report, err
		}
	}

	metrics.ObserveDrain("ok", time.Since(started))
	if len(items) > 0 {
		p.logger.Info().
			Int("processed", report.Processed).
			Int("skipped", report.Skipped).
			Dur("took", time.Since(started)).
			Msg("Queue drained")
	}
	p.publish(events.EventDrainCompleted, report)
	return report, nil
}

// heartbeat extends a drain lease in the background.
type heartbeat struct {
	done     chan struct{}
	finished chan struct{}
	mu       sync.Mutex
	err      error
}

// keepAlive extends the lease every third of the lock TTL until stop.
func (p *Processor) keepAlive(lease domain.Lease) *heartbeat {
	hb := &heartbeat{done: make(chan struct{}), finished: make(chan struct{})}
	every := p.lockTTL / 3
	if every <= 0 {
		every = p.lockTTL
	}

	go func() {
		defer close(hb.finished)
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-hb.done:
				return
			case <-ticker.C:
			}

			ctx, cancel := context.WithTimeout(context.Background(), every)
			err := lease.Extend(ctx, p.lockTTL)
			cancel()
			switch {
			case err == nil:
			case errors.Is(err, domain.ErrLockLost):
				p.logger.Error().Msg("Drain lock taken over by another owner")
				hb.mu.Lock()
				hb.err = err
				hb.mu.Unlock()
				return
			default:
				// следующая попытка на следующем тике
				p.logger.Warn().Err(err).Msg("Failed to extend drain lock")
			}
		}
	}()
	return hb
}

func (hb *heartbeat) lost() error {
	hb.mu.Lock()
	defer hb.mu.Unlock()
	return hb.err
}

func (hb *heartbeat) stop() {
	close(hb.done)
	<-hb.finished
}

func (p *Processor) process(ctx context.Context, item *models.ScheduleQueueItem, report *models.DrainReport) error {
	// Лог уже записан, но элемент не удалён: прошлый прогон оборвался
	logged, err := p.store.HasLog(ctx, item.ID)
	if err != nil {
		return fmt.Errorf("check log for %s: %w", item.ID, err)
	}
	if logged {
		if err := p.store.RemoveQueueItem(ctx, item.ID); err != nil {
			return fmt.Errorf("dequeue %s: %w", item.ID, err)
		}
		report.Skipped++
		p.publish(events.EventQueueItemDrained, events.ItemPayload{
			QueueItemID: item.ID,
			ProjectName: item.Command.ProjectName,
			Skipped:     true,
			At:          p.now(),
		})
		return nil
	}

	result := p.run(ctx, item)

	entry := &models.ScheduleLog{
		ID:          uuid.NewString(),
		QueueItemID: item.ID,
		ProjectName: item.Command.ProjectName,
		BatchResult: result,
		CreatedAt:   p.now(),
	}
	if err := p.store.AppendLog(ctx, entry); err != nil {
		return fmt.Errorf("append log for %s: %w", item.ID, err)
	}
	if err := p.store.RemoveQueueItem(ctx, item.ID); err != nil {
		return fmt.Errorf("dequeue %s: %w", item.ID, err)
	}

	report.Add(result)
	metrics.IncBatchResult(result.String())
	p.publish(events.EventQueueItemDrained, events.ItemPayload{
		QueueItemID: item.ID,
		ProjectName: item.Command.ProjectName,
		Result:      result.String(),
		At:          entry.CreatedAt,
	})
	return nil
}

func (p *Processor) run(ctx context.Context, item *models.ScheduleQueueItem) (result models.BatchResult) {
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.Error().
				Interface("panic", rec).
				Str("queue_item_id", item.ID).
				Str("project", item.Command.ProjectName).
				Msg("Batch runner panicked")
			result = models.BatchFailure
		}
	}()

	result = p.runner.Run(ctx, item.Command)
	if !result.Valid() {
		p.logger.Error().Str("result", string(result)).Str("queue_item_id", item.ID).Msg("Unknown batch result")
		result = models.BatchFailure
	}
	return result
}

func (p *Processor) publish(eventType string, payload interface{}) {
	if p.eventBus == nil {
		return
	}
	if err := p.eventBus.PublishJSON(eventType, payload); err != nil {
		p.logger.Warn().Err(err).Str("event", eventType).Msg("Failed to publish event")
	}
}
