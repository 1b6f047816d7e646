package schedule

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"leecher/internal/database"
	"leecher/internal/domain"
	"leecher/internal/events"
	"leecher/internal/hierarchy"
	"leecher/internal/models"
	"leecher/internal/repository"
	"leecher/internal/repository/storetest"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedRunner returns results per project name; "panic" panics.
type scriptedRunner struct {
	mu      sync.Mutex
	results map[string]models.BatchResult
	calls   []string
	ctxErrs []error
	hook    func(cmd models.BatchCommand)
}

func (r *scriptedRunner) Run(ctx context.Context, cmd models.BatchCommand) models.BatchResult {
	r.mu.Lock()
	r.calls = append(r.calls, cmd.ProjectName)
	res, ok := r.results[cmd.ProjectName]
	hook := r.hook
	r.mu.Unlock()

	if hook != nil {
		hook(cmd)
	}
	r.mu.Lock()
	r.ctxErrs = append(r.ctxErrs, ctx.Err())
	r.mu.Unlock()
	if res == "panic" {
		panic("runner exploded")
	}
	if !ok {
		return models.BatchOK
	}
	return res
}

type fixedWriter struct {
	projects map[string]*hierarchy.ProjectData
}

func (w *fixedWriter) FetchProject(_ context.Context, name string) (*hierarchy.ProjectData, error) {
	return w.projects[name], nil
}

func (w *fixedWriter) UpsertTree(context.Context, string, *hierarchy.Tree, bool) error {
	return nil
}

type harness struct {
	store     *repository.MemoryScheduleStore
	runner    *scriptedRunner
	registrar *Registrar
	processor *Processor
	bus       *events.EventBus
}

func newHarness(purge bool) *harness {
	logger := zerolog.Nop()
	store := repository.NewMemoryScheduleStore()
	runner := &scriptedRunner{results: map[string]models.BatchResult{}}
	bus := events.NewEventBus()
	writer := &fixedWriter{projects: map[string]*hierarchy.ProjectData{
		"bound": {Name: "bound", ShotgridID: 500},
	}}
	return &harness{
		store:     store,
		runner:    runner,
		bus:       bus,
		registrar: NewRegistrar(store, writer, bus, purge, &logger),
		processor: NewProcessor(store, runner, repository.NewMemoryLocker(), bus, time.Minute, &logger),
	}
}

func results(logs []*models.ScheduleLog) []models.BatchResult {
	out := make([]models.BatchResult, 0, len(logs))
	for _, l := range logs {
		out = append(out, l.BatchResult)
	}
	return out
}

func TestDrain_LogsEveryItemInOrder(t *testing.T) {
	ctx := context.Background()
	h := newHarness(false)

	var names []string
	for i := 0; i < 5; i++ {
		name := fmt.Sprintf("project-%d", i)
		names = append(names, name)
		_, err := h.registrar.Submit(ctx, name, storetest.Command(name, int64(i+1)))
		require.NoError(t, err)
	}

	report, err := h.processor.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, report.Processed)
	assert.Equal(t, 5, report.Results[models.BatchOK])

	logs, err := h.registrar.ListLogs(ctx, models.ListQuery{})
	require.NoError(t, err)
	require.Len(t, logs, 5)
	for i, l := range logs {
		assert.Equal(t, names[i], l.ProjectName)
		assert.NotEmpty(t, l.QueueItemID)
	}
	assert.Equal(t, names, h.runner.calls)

	queue, err := h.registrar.ListQueue(ctx, models.ListQuery{})
	require.NoError(t, err)
	assert.Empty(t, queue)
}

func TestDrain_FailureIsolation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(false)
	h.runner.results = map[string]models.BatchResult{
		"first":  models.BatchOK,
		"second": "panic",
		"third":  models.BatchNoShotgridHierarchy,
	}

	for i, name := range []string{"first", "second", "third"} {
		_, err := h.registrar.Submit(ctx, name, storetest.Command(name, int64(i+1)))
		require.NoError(t, err)
	}

	report, err := h.processor.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Processed)

	logs, err := h.registrar.ListLogs(ctx, models.ListQuery{})
	require.NoError(t, err)
	assert.Equal(t, []models.BatchResult{models.BatchOK, models.BatchFailure, models.BatchNoShotgridHierarchy}, results(logs))
}

func TestDrain_UnknownResultBecomesFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(false)
	h.runner.results = map[string]models.BatchResult{"odd": "maybe"}

	_, err := h.registrar.Submit(ctx, "odd", storetest.Command("odd", 1))
	require.NoError(t, err)

	_, err = h.processor.Drain(ctx)
	require.NoError(t, err)

	logs, err := h.registrar.ListLogs(ctx, models.ListQuery{})
	require.NoError(t, err)
	assert.Equal(t, []models.BatchResult{models.BatchFailure}, results(logs))
}

func TestDrain_EmptyQueue(t *testing.T) {
	ctx := context.Background()
	h := newHarness(false)

	report, err := h.processor.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Processed)
	assert.Empty(t, report.Results)

	logs, err := h.registrar.ListLogs(ctx, models.ListQuery{})
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestDrain_ItemsQueuedDuringDrainWait(t *testing.T) {
	ctx := context.Background()
	h := newHarness(false)

	_, err := h.registrar.Submit(ctx, "a", storetest.Command("a", 1))
	require.NoError(t, err)

	var once sync.Once
	h.runner.hook = func(models.BatchCommand) {
		once.Do(func() {
			_, err := h.registrar.Submit(ctx, "late", storetest.Command("late", 2))
			require.NoError(t, err)
		})
	}

	report, err := h.processor.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)

	queue, err := h.registrar.ListQueue(ctx, models.ListQuery{})
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, "late", queue[0].Command.ProjectName)
}

func TestDrain_ConcurrentDrainRejected(t *testing.T) {
	ctx := context.Background()
	h := newHarness(false)

	_, err := h.registrar.Submit(ctx, "a", storetest.Command("a", 1))
	require.NoError(t, err)

	var second error
	h.runner.hook = func(models.BatchCommand) {
		_, second = h.processor.Drain(ctx)
	}

	_, err = h.processor.Drain(ctx)
	require.NoError(t, err)
	assert.ErrorIs(t, second, domain.ErrDrainInProgress)

	// lock is released afterwards
	h.runner.hook = nil
	_, err = h.processor.Drain(ctx)
	assert.NoError(t, err)
}

func TestDrain_SkipsAlreadyLoggedItems(t *testing.T) {
	ctx := context.Background()
	h := newHarness(false)

	item, err := h.registrar.Submit(ctx, "a", storetest.Command("a", 1))
	require.NoError(t, err)

	// a previous drain logged the item but died before dequeuing it
	require.NoError(t, h.store.AppendLog(ctx, &models.ScheduleLog{
		ID:          "earlier",
		QueueItemID: item.ID,
		ProjectName: "a",
		BatchResult: models.BatchOK,
		CreatedAt:   time.Now(),
	}))

	report, err := h.processor.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Processed)
	assert.Equal(t, 1, report.Skipped)
	assert.Empty(t, h.runner.calls)

	logs, err := h.registrar.ListLogs(ctx, models.ListQuery{})
	require.NoError(t, err)
	assert.Len(t, logs, 1)

	queue, err := h.registrar.ListQueue(ctx, models.ListQuery{})
	require.NoError(t, err)
	assert.Empty(t, queue)
}

func TestDrain_StopsOnCancelledContext(t *testing.T) {
	h := newHarness(false)
	ctx, cancel := context.WithCancel(context.Background())

	for _, name := range []string{"a", "b"} {
		_, err := h.registrar.Submit(ctx, name, storetest.Command(name, 1))
		require.NoError(t, err)
	}
	h.runner.hook = func(models.BatchCommand) { cancel() }

	report, err := h.processor.Drain(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, report.Processed)

	// the started item ran to the end on a live context
	assert.Equal(t, []string{"a"}, h.runner.calls)
	assert.Equal(t, []error{nil}, h.runner.ctxErrs)

	logs, err := h.registrar.ListLogs(context.Background(), models.ListQuery{})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.BatchOK, logs[0].BatchResult)

	queue, err := h.registrar.ListQueue(context.Background(), models.ListQuery{})
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, "b", queue[0].Command.ProjectName)
}

func TestDrain_LockOutlivesTTL(t *testing.T) {
	ctx := context.Background()
	h := newHarness(false)
	logger := zerolog.Nop()
	h.processor = NewProcessor(h.store, h.runner, repository.NewMemoryLocker(), h.bus, 60*time.Millisecond, &logger)

	for _, name := range []string{"a", "b"} {
		_, err := h.registrar.Submit(ctx, name, storetest.Command(name, 1))
		require.NoError(t, err)
	}

	var second error
	var once sync.Once
	h.runner.hook = func(models.BatchCommand) {
		once.Do(func() {
			time.Sleep(200 * time.Millisecond)
			_, second = h.processor.Drain(ctx)
		})
	}

	report, err := h.processor.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Processed)
	assert.ErrorIs(t, second, domain.ErrDrainInProgress)
	assert.Equal(t, []string{"a", "b"}, h.runner.calls)
}

type lostLocker struct{}

func (lostLocker) Acquire(context.Context, string, time.Duration) (domain.Lease, error) {
	return lostLease{}, nil
}

type lostLease struct{}

func (lostLease) Extend(context.Context, time.Duration) error { return domain.ErrLockLost }
func (lostLease) Release(context.Context) error               { return nil }

func TestDrain_StopsWhenLockLost(t *testing.T) {
	ctx := context.Background()
	h := newHarness(false)
	logger := zerolog.Nop()
	h.processor = NewProcessor(h.store, h.runner, lostLocker{}, h.bus, 15*time.Millisecond, &logger)

	for _, name := range []string{"a", "b"} {
		_, err := h.registrar.Submit(ctx, name, storetest.Command(name, 1))
		require.NoError(t, err)
	}
	h.runner.hook = func(models.BatchCommand) { time.Sleep(100 * time.Millisecond) }

	report, err := h.processor.Drain(ctx)
	assert.ErrorIs(t, err, domain.ErrLockLost)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, []string{"a"}, h.runner.calls)

	queue, err := h.registrar.ListQueue(ctx, models.ListQuery{})
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, "b", queue[0].Command.ProjectName)
}

func TestDrain_SharedDatabaseLockAcrossProcesses(t *testing.T) {
	ctx := context.Background()
	logger := zerolog.Nop()
	path := filepath.Join(t.TempDir(), "schedule.db")

	open := func() *database.DB {
		db, err := database.NewDB(path, &logger)
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })
		return db
	}
	serveDB, cliDB := open(), open()

	runner := &scriptedRunner{results: map[string]models.BatchResult{}}
	serve := NewProcessor(serveDB, runner, database.NewLocker(serveDB), nil, time.Minute, &logger)
	cli := NewProcessor(cliDB, runner, database.NewLocker(cliDB), nil, time.Minute, &logger)

	registrar := NewRegistrar(serveDB, &fixedWriter{}, nil, false, &logger)
	for _, name := range []string{"a", "b"} {
		_, err := registrar.Submit(ctx, name, storetest.Command(name, 1))
		require.NoError(t, err)
	}

	var cliErr error
	var once sync.Once
	runner.hook = func(models.BatchCommand) {
		once.Do(func() { _, cliErr = cli.Drain(ctx) })
	}

	report, err := serve.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Processed)
	assert.ErrorIs(t, cliErr, domain.ErrDrainInProgress)
	assert.Equal(t, []string{"a", "b"}, runner.calls)

	// после освобождения второй процесс берёт лок
	report, err = cli.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Processed)
}

func TestDrain_PublishesEvents(t *testing.T) {
	ctx := context.Background()
	h := newHarness(false)

	var drained []events.ItemPayload
	h.bus.Subscribe(events.EventQueueItemDrained, func(e *events.Event) error {
		var p events.ItemPayload
		if err := e.Decode(&p); err != nil {
			return err
		}
		drained = append(drained, p)
		return nil
	})
	completed := 0
	h.bus.Subscribe(events.EventDrainCompleted, func(*events.Event) error { completed++; return nil })

	_, err := h.registrar.Submit(ctx, "a", storetest.Command("a", 1))
	require.NoError(t, err)
	_, err = h.processor.Drain(ctx)
	require.NoError(t, err)

	require.Len(t, drained, 1)
	assert.Equal(t, "ok", drained[0].Result)
	assert.Equal(t, 1, completed)
}

func TestSubmit_ListProjectsShowsCommand(t *testing.T) {
	ctx := context.Background()
	h := newHarness(false)
	cmd := storetest.Command("demo", 42)

	_, err := h.registrar.Submit(ctx, "demo", cmd)
	require.NoError(t, err)

	projects, err := h.registrar.ListProjects(ctx, models.ListQuery{})
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "demo", projects[0].ProjectName)
	assert.Equal(t, cmd, projects[0].Command)
	assert.Equal(t, cmd.Credentials.URL, projects[0].Command.Credentials.URL)
}

func TestSubmit_LastWriteWinsButQueueKeepsBoth(t *testing.T) {
	ctx := context.Background()
	h := newHarness(false)
	cmd1 := storetest.Command("demo", 1)
	cmd2 := storetest.Command("demo", 2)
	cmd2.Overwrite = false

	_, err := h.registrar.Submit(ctx, "demo", cmd1)
	require.NoError(t, err)
	_, err = h.registrar.Submit(ctx, "demo", cmd2)
	require.NoError(t, err)

	projects, err := h.registrar.ListProjects(ctx, models.ListQuery{})
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, cmd2, projects[0].Command)

	queue, err := h.registrar.ListQueue(ctx, models.ListQuery{})
	require.NoError(t, err)
	require.Len(t, queue, 2)
	assert.Equal(t, cmd1, queue[0].Command)
	assert.Equal(t, cmd2, queue[1].Command)
}

func TestSubmit_Rejections(t *testing.T) {
	ctx := context.Background()
	h := newHarness(false)

	t.Run("invalid command", func(t *testing.T) {
		cmd := storetest.Command("demo", 1)
		cmd.Credentials.URL = "not a url"
		_, err := h.registrar.Submit(ctx, "demo", cmd)
		assert.ErrorIs(t, err, models.ErrInvalidCommand)
	})

	t.Run("name mismatch", func(t *testing.T) {
		_, err := h.registrar.Submit(ctx, "demo", storetest.Command("other", 1))
		assert.ErrorIs(t, err, models.ErrInvalidCommand)
	})

	t.Run("wrong project id", func(t *testing.T) {
		_, err := h.registrar.Submit(ctx, "bound", storetest.Command("bound", 7))
		assert.ErrorIs(t, err, domain.ErrWrongProjectName)
	})

	t.Run("matching project id", func(t *testing.T) {
		_, err := h.registrar.Submit(ctx, "bound", storetest.Command("bound", 500))
		assert.NoError(t, err)
	})

	t.Run("name filled from path", func(t *testing.T) {
		cmd := storetest.Command("", 3)
		item, err := h.registrar.Submit(ctx, "fresh", cmd)
		require.NoError(t, err)
		assert.Equal(t, "fresh", item.Command.ProjectName)
	})
}

func TestCancel(t *testing.T) {
	ctx := context.Background()

	t.Run("keeps queue by default", func(t *testing.T) {
		h := newHarness(false)
		_, err := h.registrar.Submit(ctx, "demo", storetest.Command("demo", 1))
		require.NoError(t, err)

		purged, err := h.registrar.Cancel(ctx, "demo")
		require.NoError(t, err)
		assert.Equal(t, 0, purged)

		projects, _ := h.registrar.ListProjects(ctx, models.ListQuery{})
		assert.Empty(t, projects)
		queue, _ := h.registrar.ListQueue(ctx, models.ListQuery{})
		assert.Len(t, queue, 1)
	})

	t.Run("purges when configured", func(t *testing.T) {
		h := newHarness(true)
		for _, name := range []string{"demo", "other", "demo"} {
			_, err := h.registrar.Submit(ctx, name, storetest.Command(name, 1))
			require.NoError(t, err)
		}

		purged, err := h.registrar.Cancel(ctx, "demo")
		require.NoError(t, err)
		assert.Equal(t, 2, purged)

		queue, _ := h.registrar.ListQueue(ctx, models.ListQuery{})
		require.Len(t, queue, 1)
		assert.Equal(t, "other", queue[0].Command.ProjectName)
	})

	t.Run("unknown project", func(t *testing.T) {
		h := newHarness(false)
		_, err := h.registrar.Cancel(ctx, "ghost")
		assert.True(t, errors.Is(err, domain.ErrProjectNotScheduled))
	})
}

func TestList_ClampsLimit(t *testing.T) {
	q := clamp(models.ListQuery{Limit: models.MaxListLimit + 10, Skip: -3})
	assert.Equal(t, models.MaxListLimit, q.Limit)
	assert.Equal(t, 0, q.Skip)
}
