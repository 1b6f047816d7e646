// Package storetest holds the behaviour every domain.ScheduleStore must share.
package storetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"leecher/internal/domain"
	"leecher/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Command(name string, projectID int64) models.BatchCommand {
	return models.BatchCommand{
		ProjectID:   projectID,
		ProjectName: name,
		Overwrite:   true,
		Credentials: models.ShotgridCredentials{
			URL:        "https://studio.shotgrid.autodesk.com",
			ScriptName: "leecher",
			ScriptKey:  "secret",
		},
		FieldsMapping: models.FieldsMapping{"shot": map[string]any{"sg_cut_in": "sg_head_in"}},
	}
}

// Run exercises a fresh store returned by newStore for each subtest.
func Run(t *testing.T, newStore func(t *testing.T) domain.ScheduleStore) {
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("ProjectsUpsert", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.UpsertProject(ctx, &models.ScheduleProject{ProjectName: "a", Command: Command("a", 1), UpdatedAt: base}))
		require.NoError(t, s.UpsertProject(ctx, &models.ScheduleProject{ProjectName: "b", Command: Command("b", 2), UpdatedAt: base.Add(time.Second)}))
		require.NoError(t, s.UpsertProject(ctx, &models.ScheduleProject{ProjectName: "a", Command: Command("a", 3), UpdatedAt: base.Add(2 * time.Second)}))

		projects, err := s.ListProjects(ctx, models.ListQuery{})
		require.NoError(t, err)
		require.Len(t, projects, 2)
		assert.Equal(t, "b", projects[0].ProjectName)
		assert.Equal(t, "a", projects[1].ProjectName)
		assert.Equal(t, Command("a", 3), projects[1].Command)
		assert.True(t, projects[1].UpdatedAt.Equal(base.Add(2*time.Second)))

		filtered, err := s.ListProjects(ctx, models.ListQuery{ProjectName: "b"})
		require.NoError(t, err)
		require.Len(t, filtered, 1)
		assert.Equal(t, int64(2), filtered[0].Command.ProjectID)

		removed, err := s.DeleteProject(ctx, "a")
		require.NoError(t, err)
		assert.True(t, removed)
		removed, err = s.DeleteProject(ctx, "a")
		require.NoError(t, err)
		assert.False(t, removed)
	})

	t.Run("QueueFIFO", func(t *testing.T) {
		s := newStore(t)
		for i := 0; i < 4; i++ {
			name := "a"
			if i%2 == 1 {
				name = "b"
			}
			require.NoError(t, s.EnqueueItem(ctx, &models.ScheduleQueueItem{
				ID:        fmt.Sprintf("item-%d", i),
				Command:   Command(name, int64(i+1)),
				CreatedAt: base.Add(time.Duration(i) * time.Second),
			}))
		}

		items, err := s.ListQueue(ctx, models.ListQuery{})
		require.NoError(t, err)
		require.Len(t, items, 4)
		for i, item := range items {
			assert.Equal(t, fmt.Sprintf("item-%d", i), item.ID)
		}
		assert.Equal(t, Command("a", 1), items[0].Command)

		desc, err := s.ListQueue(ctx, models.ListQuery{ProjectName: "a", Descending: true})
		require.NoError(t, err)
		require.Len(t, desc, 2)
		assert.Equal(t, "item-2", desc[0].ID)

		require.NoError(t, s.RemoveQueueItem(ctx, "item-1"))
		require.NoError(t, s.RemoveQueueItem(ctx, "item-1"))

		purged, err := s.PurgeQueue(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, 2, purged)

		items, err = s.ListQueue(ctx, models.ListQuery{})
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "item-3", items[0].ID)
	})

	t.Run("LogsIdempotent", func(t *testing.T) {
		s := newStore(t)
		results := []models.BatchResult{models.BatchOK, models.BatchFailure, models.BatchNoShotgridHierarchy}
		for i, r := range results {
			require.NoError(t, s.AppendLog(ctx, &models.ScheduleLog{
				ID:          fmt.Sprintf("log-%d", i),
				QueueItemID: fmt.Sprintf("item-%d", i),
				ProjectName: "a",
				BatchResult: r,
				CreatedAt:   base.Add(time.Duration(i) * time.Second),
			}))
		}
		require.NoError(t, s.AppendLog(ctx, &models.ScheduleLog{
			ID: "dup", QueueItemID: "item-0", ProjectName: "a", BatchResult: models.BatchFailure, CreatedAt: base,
		}))

		logged, err := s.HasLog(ctx, "item-1")
		require.NoError(t, err)
		assert.True(t, logged)
		logged, err = s.HasLog(ctx, "item-9")
		require.NoError(t, err)
		assert.False(t, logged)

		logs, err := s.ListLogs(ctx, models.ListQuery{})
		require.NoError(t, err)
		require.Len(t, logs, 3)
		for i, l := range logs {
			assert.Equal(t, results[i], l.BatchResult)
			assert.Equal(t, fmt.Sprintf("log-%d", i), l.ID)
		}

		page, err := s.ListLogs(ctx, models.ListQuery{Skip: 1, Limit: 1})
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, models.BatchFailure, page[0].BatchResult)
	})

	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, newStore(t).Ping(ctx))
	})
}
