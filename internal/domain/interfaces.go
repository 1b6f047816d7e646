package domain

import (
	"context"
	"time"

	"leecher/internal/hierarchy"
	"leecher/internal/models"
)

// ScheduleStore persists the schedule registry, the pending queue and the
// drain log. Implementations serialize their own mutations.
type ScheduleStore interface {
	UpsertProject(ctx context.Context, project *models.ScheduleProject) error
	DeleteProject(ctx context.Context, projectName string) (bool, error)
	ListProjects(ctx context.Context, q models.ListQuery) ([]*models.ScheduleProject, error)

	EnqueueItem(ctx context.Context, item *models.ScheduleQueueItem) error
	ListQueue(ctx context.Context, q models.ListQuery) ([]*models.ScheduleQueueItem, error)
	RemoveQueueItem(ctx context.Context, id string) error
	PurgeQueue(ctx context.Context, projectName string) (int, error)

	// AppendLog is a no-op when a log for the same queue item exists.
	AppendLog(ctx context.Context, log *models.ScheduleLog) error
	HasLog(ctx context.Context, queueItemID string) (bool, error)
	ListLogs(ctx context.Context, q models.ListQuery) ([]*models.ScheduleLog, error)

	Ping(ctx context.Context) error
}

// HierarchyFetcher returns the raw hierarchy of the command's source project.
// A snapshot without a project row means the project was not found.
type HierarchyFetcher interface {
	FetchHierarchy(ctx context.Context, cmd models.BatchCommand) (*hierarchy.Snapshot, error)
}

// ProjectWriter is the destination project database.
type ProjectWriter interface {
	// FetchProject returns nil, nil when the project does not exist.
	FetchProject(ctx context.Context, projectName string) (*hierarchy.ProjectData, error)
	UpsertTree(ctx context.Context, projectName string, tree *hierarchy.Tree, overwrite bool) error
}

type BatchRunner interface {
	Run(ctx context.Context, cmd models.BatchCommand) models.BatchResult
}

// DrainLocker serializes drains. Acquire returns ErrLockHeld when another
// holder owns key.
type DrainLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

// Lease is a held lock. Extend returns ErrLockLost once another holder has
// taken the key; Release never frees a key owned by someone else.
type Lease interface {
	Extend(ctx context.Context, ttl time.Duration) error
	Release(ctx context.Context) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}
