package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"leecher/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	body := fmt.Sprintf(`
app:
  name: leecher-test
database:
  path: %s
destination:
  path: %s
logging:
  level: error
  output: stderr
exports:
  path: %s
`, filepath.Join(dir, "schedule.db"), filepath.Join(dir, "avalon.db"), filepath.Join(dir, "exports"))

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.ExecuteContext(context.Background()))
	return out.String()
}

func TestSubmitAndCancel(t *testing.T) {
	path := writeConfig(t)

	out := execute(t, "--config", path, "submit", "demo",
		"--shotgrid-project-id", "7",
		"--shotgrid-url", "https://studio.shotgunstudio.com",
		"--script-name", "leecher",
		"--script-key", "secret",
	)
	var item models.ScheduleQueueItem
	require.NoError(t, json.Unmarshal([]byte(out), &item))
	assert.Equal(t, "demo", item.Command.ProjectName)
	assert.Equal(t, int64(7), item.Command.ProjectID)

	a, err := newApp(context.Background(), cfg, logger)
	require.NoError(t, err)
	defer a.Close()

	queue, err := a.store.ListQueue(context.Background(), models.ListQuery{})
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, item.ID, queue[0].ID)

	out = execute(t, "--config", path, "cancel", "demo")
	assert.Contains(t, out, "demo unscheduled")
}

func TestDrainEmptyQueue(t *testing.T) {
	path := writeConfig(t)

	out := execute(t, "--config", path, "drain")
	var report models.DrainReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 0, report.Processed)
	assert.Equal(t, 0, report.Skipped)
}

func TestLogsExport(t *testing.T) {
	path := writeConfig(t)

	out := execute(t, "--config", path, "logs", "--xlsx")
	assert.FileExists(t, filepath.Clean(string(bytes.TrimSpace([]byte(out)))))
}
