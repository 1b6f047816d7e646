package batch

import (
	"context"

	"leecher/internal/hierarchy"
	"leecher/internal/models"
	"leecher/internal/shotgrid"
)

type HierarchySource interface {
	FetchHierarchy(ctx context.Context, projectID int64) (*shotgrid.Hierarchy, error)
}

// SourceFactory opens a Shotgrid connection for a command's credentials.
type SourceFactory func(ctx context.Context, cmd models.BatchCommand) HierarchySource

// ShotgridFetcher adapts the Shotgrid client to domain.HierarchyFetcher.
type ShotgridFetcher struct {
	open SourceFactory
}

// NewShotgridFetcher opens a REST client per command. The command's fields
// mapping overrides opts.FieldsMapping.
func NewShotgridFetcher(opts shotgrid.Options) *ShotgridFetcher {
	return NewFetcherWithFactory(func(ctx context.Context, cmd models.BatchCommand) HierarchySource {
		o := opts
		if len(cmd.FieldsMapping) > 0 {
			o.FieldsMapping = cmd.FieldsMapping
		}
		return shotgrid.NewClient(ctx, cmd.Credentials, o)
	})
}

func NewFetcherWithFactory(open SourceFactory) *ShotgridFetcher {
	return &ShotgridFetcher{open: open}
}

func (f *ShotgridFetcher) FetchHierarchy(ctx context.Context, cmd models.BatchCommand) (*hierarchy.Snapshot, error) {
	h, err := f.open(ctx, cmd).FetchHierarchy(ctx, cmd.ProjectID)
	if err != nil {
		return nil, err
	}
	return hierarchy.SnapshotOf(h), nil
}
