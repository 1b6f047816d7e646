package schedule

import (
	"context"
	"fmt"
	"time"

	"leecher/internal/domain"
	"leecher/internal/events"
	"leecher/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Registrar is the submit/cancel/list boundary over the schedule store.
type Registrar struct {
	store         domain.ScheduleStore
	writer        domain.ProjectWriter
	eventBus      domain.EventPublisher
	purgeOnCancel bool
	now           func() time.Time
	logger        *zerolog.Logger
}

// NewRegistrar builds a registrar. writer may be nil, which disables the
// submit-time project id check.
func NewRegistrar(store domain.ScheduleStore, writer domain.ProjectWriter, eventBus domain.EventPublisher, purgeOnCancel bool, logger *zerolog.Logger) *Registrar {
	return &Registrar{
		store:         store,
		writer:        writer,
		eventBus:      eventBus,
		purgeOnCancel: purgeOnCancel,
		now:           func() time.Time { return time.Now().UTC() },
		logger:        logger,
	}
}

// Submit records cmd as the latest command for projectName and queues a new
// attempt. Earlier pending attempts are kept.
func (r *Registrar) Submit(ctx context.Context, projectName string, cmd models.BatchCommand) (*models.ScheduleQueueItem, error) {
	if cmd.ProjectName == "" {
		cmd.ProjectName = projectName
	}
	if cmd.ProjectName != projectName {
		return nil, fmt.Errorf("%w: command is for %q, not %q", models.ErrInvalidCommand, cmd.ProjectName, projectName)
	}
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	if err := r.checkProjectID(ctx, cmd); err != nil {
		return nil, err
	}

	now := r.now()
	if err := r.store.UpsertProject(ctx, &models.ScheduleProject{
		ProjectName: projectName,
		Command:     cmd,
		UpdatedAt:   now,
	}); err != nil {
		return nil, fmt.Errorf("upsert schedule project: %w", err)
	}

	item := &models.ScheduleQueueItem{
		ID:        uuid.NewString(),
		Command:   cmd,
		CreatedAt: now,
	}
	if err := r.store.EnqueueItem(ctx, item); err != nil {
		return nil, fmt.Errorf("enqueue schedule item: %w", err)
	}

	r.logger.Info().
		Str("project", projectName).
		Int64("shotgrid_project_id", cmd.ProjectID).
		Str("queue_item_id", item.ID).
		Msg("Project scheduled")
	r.publish(events.EventProjectSubmitted, events.SchedulePayload{
		ProjectName: projectName,
		ProjectID:   cmd.ProjectID,
		QueueItemID: item.ID,
		At:          now,
	})
	return item, nil
}

// Cancel removes the registry entry. Pending items are purged only when
// the registrar was built with purgeOnCancel; the count is returned.
func (r *Registrar) Cancel(ctx context.Context, projectName string) (int, error) {
	removed, err := r.store.DeleteProject(ctx, projectName)
	if err != nil {
		return 0, fmt.Errorf("delete schedule project: %w", err)
	}
	if !removed {
		return 0, fmt.Errorf("%s: %w", projectName, domain.ErrProjectNotScheduled)
	}

	purged := 0
	if r.purgeOnCancel {
		purged, err = r.store.PurgeQueue(ctx, projectName)
		if err != nil {
			return 0, fmt.Errorf("purge schedule queue: %w", err)
		}
	}

	r.logger.Info().Str("project", projectName).Int("purged", purged).Msg("Project unscheduled")
	r.publish(events.EventProjectCancelled, events.SchedulePayload{
		ProjectName: projectName,
		Purged:      purged,
		At:          r.now(),
	})
	return purged, nil
}

func (r *Registrar) ListProjects(ctx context.Context, q models.ListQuery) ([]*models.ScheduleProject, error) {
	return r.store.ListProjects(ctx, clamp(q))
}

func (r *Registrar) ListQueue(ctx context.Context, q models.ListQuery) ([]*models.ScheduleQueueItem, error) {
	return r.store.ListQueue(ctx, clamp(q))
}

func (r *Registrar) ListLogs(ctx context.Context, q models.ListQuery) ([]*models.ScheduleLog, error) {
	return r.store.ListLogs(ctx, clamp(q))
}

func (r *Registrar) checkProjectID(ctx context.Context, cmd models.BatchCommand) error {
	if r.writer == nil {
		return nil
	}
	existing, err := r.writer.FetchProject(ctx, cmd.ProjectName)
	if err != nil {
		return fmt.Errorf("fetch destination project: %w", err)
	}
	if existing != nil && existing.ShotgridID != 0 && existing.ShotgridID != cmd.ProjectID {
		return fmt.Errorf("%s is bound to shotgrid project %d: %w", cmd.ProjectName, existing.ShotgridID, domain.ErrWrongProjectName)
	}
	return nil
}

func (r *Registrar) publish(eventType string, payload interface{}) {
	if r.eventBus == nil {
		return
	}
	if err := r.eventBus.PublishJSON(eventType, payload); err != nil {
		r.logger.Warn().Err(err).Str("event", eventType).Msg("Failed to publish event")
	}
}

func clamp(q models.ListQuery) models.ListQuery {
	if q.Limit > models.MaxListLimit {
		q.Limit = models.MaxListLimit
	}
	if q.Skip < 0 {
		q.Skip = 0
	}
	return q
}
