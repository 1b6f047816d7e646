package batch

import (
	"context"
	"errors"
	"fmt"

	"leecher/internal/domain"
	"leecher/internal/hierarchy"
	"leecher/internal/models"

	"github.com/rs/zerolog"
)

type mode int

const (
	modeSync mode = iota
	modeCreate
	modeUpdate
)

func (m mode) String() string {
	switch m {
	case modeCreate:
		return "create"
	case modeUpdate:
		return "update"
	default:
		return "sync"
	}
}

// Runner executes one batch command: fetch, map, write.
type Runner struct {
	fetcher domain.HierarchyFetcher
	writer  domain.ProjectWriter
	logger  *zerolog.Logger
}

func NewRunner(fetcher domain.HierarchyFetcher, writer domain.ProjectWriter, logger *zerolog.Logger) *Runner {
	return &Runner{
		fetcher: fetcher,
		writer:  writer,
		logger:  logger,
	}
}

// Run is the scheduled variant. It never panics and never returns an error;
// every failure is reported as BatchFailure.
func (r *Runner) Run(ctx context.Context, cmd models.BatchCommand) models.BatchResult {
	return r.execute(ctx, cmd, modeSync)
}

// Create syncs into a fresh destination project seeded with default params.
func (r *Runner) Create(ctx context.Context, cmd models.BatchCommand) models.BatchResult {
	return r.execute(ctx, cmd, modeCreate)
}

// Update syncs into an existing destination project using its params.
// It returns domain.ErrProjectNotFound when the project does not exist.
func (r *Runner) Update(ctx context.Context, cmd models.BatchCommand) (models.BatchResult, error) {
	existing, err := r.writer.FetchProject(ctx, cmd.ProjectName)
	if err != nil {
		return models.BatchFailure, fmt.Errorf("fetch destination project: %w", err)
	}
	if existing == nil {
		return "", fmt.Errorf("%s: %w", cmd.ProjectName, domain.ErrProjectNotFound)
	}
	return r.execute(ctx, cmd, modeUpdate), nil
}

func (r *Runner) execute(ctx context.Context, cmd models.BatchCommand, m mode) (result models.BatchResult) {
	logger := r.logger.With().
		Str("project", cmd.ProjectName).
		Int64("shotgrid_project_id", cmd.ProjectID).
		Str("mode", m.String()).
		Logger()

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error().Interface("panic", rec).Msg("Batch panicked")
			result = models.BatchFailure
		}
	}()

	res, err := r.sync(ctx, cmd, m)
	if err != nil {
		logger.Error().Err(err).Msg("Batch failed")
		return models.BatchFailure
	}
	logger.Info().Str("result", res.String()).Msg("Batch finished")
	return res
}

func (r *Runner) sync(ctx context.Context, cmd models.BatchCommand, m mode) (models.BatchResult, error) {
	existing, err := r.writer.FetchProject(ctx, cmd.ProjectName)
	if err != nil {
		return "", fmt.Errorf("fetch destination project: %w", err)
	}
	// Проект с тем же именем, но из другого проекта Shotgrid
	if existing != nil && existing.ShotgridID != 0 && existing.ShotgridID != cmd.ProjectID {
		return models.BatchWrongProjectName, nil
	}

	defaults := hierarchy.DefaultParams()
	if existing != nil && m != modeCreate {
		defaults = existing.Params
	}

	snap, err := r.fetcher.FetchHierarchy(ctx, cmd)
	if err != nil {
		return "", fmt.Errorf("fetch hierarchy: %w", err)
	}
	if !hasProject(snap) {
		return models.BatchNoShotgridHierarchy, nil
	}

	rows, failed := hierarchy.NewMapper(snap.Steps).MapRows(snap.Rows, defaults)
	if len(failed) > 0 {
		errs := make([]error, 0, len(failed))
		for _, f := range failed {
			errs = append(errs, f)
		}
		return "", fmt.Errorf("map hierarchy: %w", errors.Join(errs...))
	}

	tree, err := hierarchy.BuildTree(rows)
	if err != nil {
		return "", fmt.Errorf("build tree: %w", err)
	}

	if err := r.writer.UpsertTree(ctx, cmd.ProjectName, tree, cmd.Overwrite); err != nil {
		return "", fmt.Errorf("write project: %w", err)
	}
	return models.BatchOK, nil
}

func hasProject(snap *hierarchy.Snapshot) bool {
	if snap == nil {
		return false
	}
	for _, row := range snap.Rows {
		if t, _ := row["type"].(string); t == string(hierarchy.TypeProject) {
			return true
		}
	}
	return false
}
