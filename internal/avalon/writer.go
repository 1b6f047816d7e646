// Package avalon stores mapped hierarchies in the pipeline project database.
package avalon

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"leecher/internal/hierarchy"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// Writer is the SQLite-backed destination project database.
type Writer struct {
	db     *sql.DB
	now    func() time.Time
	logger *zerolog.Logger
}

// Entity is one stored non-project node.
type Entity struct {
	Path         string                  `json:"path"`
	Type         hierarchy.Type          `json:"type"`
	Name         string                  `json:"name"`
	Parent       string                  `json:"parent"`
	SrcID        *int64                  `json:"src_id,omitempty"`
	Params       hierarchy.Params        `json:"params"`
	TaskType     string                  `json:"task_type,omitempty"`
	LinkedAssets []hierarchy.LinkedAsset `json:"linked_assets,omitempty"`
}

type entityData struct {
	Params       hierarchy.Params        `json:"params"`
	TaskType     string                  `json:"task_type,omitempty"`
	LinkedAssets []hierarchy.LinkedAsset `json:"linked_assets,omitempty"`
}

func NewWriter(path string, logger *zerolog.Logger) (*Writer, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create destination directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open destination database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to destination database: %w", err)
	}
	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Writer{
		db:     db,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS avalon_projects (
            name TEXT PRIMARY KEY,
            code TEXT NOT NULL DEFAULT '',
            shotgrid_id INTEGER NOT NULL DEFAULT 0,
            params TEXT NOT NULL,
            config TEXT NOT NULL,
            updated_at DATETIME NOT NULL
        )`,
		// path уникален в пределах проекта: ",project,parent,...,id,"
		`CREATE TABLE IF NOT EXISTS avalon_entities (
            project_name TEXT NOT NULL,
            path TEXT NOT NULL,
            type TEXT NOT NULL,
            name TEXT NOT NULL,
            parent TEXT NOT NULL,
            src_id INTEGER,
            data TEXT NOT NULL,
            updated_at DATETIME NOT NULL,
            PRIMARY KEY (project_name, path),
            FOREIGN KEY (project_name) REFERENCES avalon_projects(name) ON DELETE CASCADE
        )`,
		`CREATE INDEX IF NOT EXISTS idx_avalon_entities_type ON avalon_entities(project_name, type)`,
	}
	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

// FetchProject returns nil, nil when the project does not exist.
func (w *Writer) FetchProject(ctx context.Context, projectName string) (*hierarchy.ProjectData, error) {
	var (
		data   hierarchy.ProjectData
		params string
	)
	err := w.db.QueryRowContext(ctx,
		`SELECT name, shotgrid_id, params FROM avalon_projects WHERE name = ?`, projectName,
	).Scan(&data.Name, &data.ShotgridID, &params)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch project %s: %w", projectName, err)
	}
	if err := json.Unmarshal([]byte(params), &data.Params); err != nil {
		return nil, fmt.Errorf("failed to decode params of %s: %w", projectName, err)
	}
	return &data, nil
}

// UpsertTree writes tree under projectName. Rows are keyed by path, so
// repeating the call is harmless. Without overwrite, entities and the
// project that already exist keep their stored params.
func (w *Writer) UpsertTree(ctx context.Context, projectName string, tree *hierarchy.Tree, overwrite bool) error {
	project := tree.Project()
	if project == nil {
		return fmt.Errorf("upsert %s: %w", projectName, hierarchy.ErrProjectNotMapped)
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := w.now()
	if err := upsertProject(ctx, tx, projectName, project, overwrite, now); err != nil {
		return err
	}

	entityQuery := `INSERT INTO avalon_entities (project_name, path, type, name, parent, src_id, data, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)
              ON CONFLICT(project_name, path) DO UPDATE SET
                  type = excluded.type,
                  src_id = excluded.src_id,
                  updated_at = excluded.updated_at`
	if overwrite {
		entityQuery += `, data = excluded.data`
	}
	stmt, err := tx.PrepareContext(ctx, entityQuery)
	if err != nil {
		return fmt.Errorf("failed to prepare entity upsert: %w", err)
	}
	defer stmt.Close()

	written := 0
	for _, row := range tree.Rows() {
		if row.Type() == hierarchy.TypeProject {
			continue
		}
		b := row.Common()
		data, err := json.Marshal(dataOf(row))
		if err != nil {
			return fmt.Errorf("failed to encode %s %s: %w", row.Type(), b.ID, err)
		}
		if _, err := stmt.ExecContext(ctx,
			projectName,
			hierarchy.PathOf(row),
			string(row.Type()),
			b.ID,
			b.Parent,
			b.SrcID,
			string(data),
			now,
		); err != nil {
			return fmt.Errorf("failed to upsert %s %s: %w", row.Type(), b.ID, err)
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit project %s: %w", projectName, err)
	}

	w.logger.Info().
		Str("project", projectName).
		Int("entities", written).
		Bool("overwrite", overwrite).
		Msg("Project hierarchy written")
	return nil
}

func upsertProject(ctx context.Context, tx *sql.Tx, name string, p *hierarchy.Project, overwrite bool, now time.Time) error {
	params, err := json.Marshal(p.Params)
	if err != nil {
		return fmt.Errorf("failed to encode project params: %w", err)
	}
	config, err := json.Marshal(p.Config)
	if err != nil {
		return fmt.Errorf("failed to encode project config: %w", err)
	}
	var shotgridID int64
	if p.SrcID != nil {
		shotgridID = *p.SrcID
	}

	query := `INSERT INTO avalon_projects (name, code, shotgrid_id, params, config, updated_at)
              VALUES (?, ?, ?, ?, ?, ?)
              ON CONFLICT(name) DO UPDATE SET
                  code = excluded.code,
                  shotgrid_id = excluded.shotgrid_id,
                  config = excluded.config,
                  updated_at = excluded.updated_at`
	if overwrite {
		query += `, params = excluded.params`
	}
	if _, err := tx.ExecContext(ctx, query, name, p.Code, shotgridID, string(params), string(config), now); err != nil {
		return fmt.Errorf("failed to upsert project %s: %w", name, err)
	}
	return nil
}

func dataOf(row hierarchy.Row) entityData {
	data := entityData{Params: row.Common().Params}
	switch r := row.(type) {
	case *hierarchy.Shot:
		data.LinkedAssets = r.LinkedAssets
	case *hierarchy.Task:
		data.TaskType = r.TaskType
	}
	return data
}

// Entities lists the stored nodes of a project ordered by path.
func (w *Writer) Entities(ctx context.Context, projectName string) ([]Entity, error) {
	rows, err := w.db.QueryContext(ctx,
		`SELECT path, type, name, parent, src_id, data FROM avalon_entities WHERE project_name = ? ORDER BY path`,
		projectName)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities of %s: %w", projectName, err)
	}
	defer rows.Close()

	var entities []Entity
	for rows.Next() {
		var (
			e     Entity
			typ   string
			src   sql.NullInt64
			data  string
			extra entityData
		)
		if err := rows.Scan(&e.Path, &typ, &e.Name, &e.Parent, &src, &data); err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		if err := json.Unmarshal([]byte(data), &extra); err != nil {
			return nil, fmt.Errorf("failed to decode entity %s: %w", e.Path, err)
		}
		e.Type = hierarchy.Type(typ)
		if src.Valid {
			id := src.Int64
			e.SrcID = &id
		}
		e.Params = extra.Params
		e.TaskType = extra.TaskType
		e.LinkedAssets = extra.LinkedAssets
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

func (w *Writer) Ping(ctx context.Context) error {
	return w.db.PingContext(ctx)
}

func (w *Writer) Close() error {
	return w.db.Close()
}
