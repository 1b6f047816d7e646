package database

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"leecher/internal/models"
)

func encodeCommand(cmd models.BatchCommand) (string, error) {
	raw, err := json.Marshal(cmd)
	if err != nil {
		return "", fmt.Errorf("failed to encode command: %w", err)
	}
	return string(raw), nil
}

func decodeCommand(raw string) (models.BatchCommand, error) {
	var cmd models.BatchCommand
	if err := json.Unmarshal([]byte(raw), &cmd); err != nil {
		return cmd, fmt.Errorf("failed to decode command: %w", err)
	}
	return cmd, nil
}

// listClause builds the WHERE/ORDER/LIMIT tail shared by the listings.
func listClause(q models.ListQuery, orderBy string) (string, []interface{}) {
	var sb strings.Builder
	var args []interface{}

	if q.ProjectName != "" {
		sb.WriteString(" WHERE project_name = ?")
		args = append(args, q.ProjectName)
	}

	dir := "ASC"
	if q.Descending {
		dir = "DESC"
	}
	sb.WriteString(" ORDER BY ")
	for i, col := range strings.Split(orderBy, ",") {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(strings.TrimSpace(col) + " " + dir)
	}

	// LIMIT -1 в SQLite означает без ограничения
	limit := -1
	if q.Limit > 0 {
		limit = q.Limit
	}
	skip := q.Skip
	if skip < 0 {
		skip = 0
	}
	sb.WriteString(" LIMIT ? OFFSET ?")
	args = append(args, limit, skip)

	return sb.String(), args
}

func (db *DB) UpsertProject(ctx context.Context, project *models.ScheduleProject) error {
	command, err := encodeCommand(project.Command)
	if err != nil {
		return err
	}

	query := `INSERT INTO schedule_projects (project_name, command, updated_at)
              VALUES (?, ?, ?)
              ON CONFLICT(project_name) DO UPDATE SET
                  command = excluded.command,
                  updated_at = excluded.updated_at`
	if _, err := db.ExecContext(ctx, query, project.ProjectName, command, project.UpdatedAt.UTC()); err != nil {
		return fmt.Errorf("failed to upsert schedule project: %w", err)
	}
	return nil
}

func (db *DB) DeleteProject(ctx context.Context, projectName string) (bool, error) {
	result, err := db.ExecContext(ctx, `DELETE FROM schedule_projects WHERE project_name = ?`, projectName)
	if err != nil {
		return false, fmt.Errorf("failed to delete schedule project: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return n > 0, nil
}

func (db *DB) ListProjects(ctx context.Context, q models.ListQuery) ([]*models.ScheduleProject, error) {
	tail, args := listClause(q, "updated_at, project_name")
	rows, err := db.QueryContext(ctx, `SELECT project_name, command, updated_at FROM schedule_projects`+tail, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedule projects: %w", err)
	}
	defer rows.Close()

	var projects []*models.ScheduleProject
	for rows.Next() {
		var p models.ScheduleProject
		var command string
		if err := rows.Scan(&p.ProjectName, &command, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan schedule project: %w", err)
		}
		if p.Command, err = decodeCommand(command); err != nil {
			return nil, err
		}
		projects = append(projects, &p)
	}
	return projects, rows.Err()
}

func (db *DB) EnqueueItem(ctx context.Context, item *models.ScheduleQueueItem) error {
	command, err := encodeCommand(item.Command)
	if err != nil {
		return err
	}

	query := `INSERT INTO schedule_queue (id, project_name, command, created_at) VALUES (?, ?, ?, ?)`
	if _, err := db.ExecContext(ctx, query, item.ID, item.Command.ProjectName, command, item.CreatedAt.UTC()); err != nil {
		return fmt.Errorf("failed to enqueue schedule item: %w", err)
	}
	return nil
}

func (db *DB) ListQueue(ctx context.Context, q models.ListQuery) ([]*models.ScheduleQueueItem, error) {
	tail, args := listClause(q, "seq")
	rows, err := db.QueryContext(ctx, `SELECT id, command, created_at FROM schedule_queue`+tail, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedule queue: %w", err)
	}
	defer rows.Close()

	var items []*models.ScheduleQueueItem
	for rows.Next() {
		var item models.ScheduleQueueItem
		var command string
		if err := rows.Scan(&item.ID, &command, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan schedule item: %w", err)
		}
		if item.Command, err = decodeCommand(command); err != nil {
			return nil, err
		}
		items = append(items, &item)
	}
	return items, rows.Err()
}

func (db *DB) RemoveQueueItem(ctx context.Context, id string) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM schedule_queue WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to remove schedule item: %w", err)
	}
	return nil
}

func (db *DB) PurgeQueue(ctx context.Context, projectName string) (int, error) {
	result, err := db.ExecContext(ctx, `DELETE FROM schedule_queue WHERE project_name = ?`, projectName)
	if err != nil {
		return 0, fmt.Errorf("failed to purge schedule queue: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return int(n), nil
}

func (db *DB) AppendLog(ctx context.Context, log *models.ScheduleLog) error {
	query := `INSERT OR IGNORE INTO schedule_logs (id, queue_item_id, project_name, batch_result, created_at)
              VALUES (?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, query,
		log.ID,
		log.QueueItemID,
		log.ProjectName,
		log.BatchResult.String(),
		log.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to append schedule log: %w", err)
	}
	return nil
}

func (db *DB) HasLog(ctx context.Context, queueItemID string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM schedule_logs WHERE queue_item_id = ?)`, queueItemID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check schedule log: %w", err)
	}
	return exists, nil
}

func (db *DB) ListLogs(ctx context.Context, q models.ListQuery) ([]*models.ScheduleLog, error) {
	tail, args := listClause(q, "seq")
	rows, err := db.QueryContext(ctx,
		`SELECT id, queue_item_id, project_name, batch_result, created_at FROM schedule_logs`+tail, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedule logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.ScheduleLog
	for rows.Next() {
		var l models.ScheduleLog
		var result string
		if err := rows.Scan(&l.ID, &l.QueueItemID, &l.ProjectName, &result, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan schedule log: %w", err)
		}
		if l.BatchResult, err = models.ParseBatchResult(result); err != nil {
			return nil, err
		}
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}
