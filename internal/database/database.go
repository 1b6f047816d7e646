package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// DB wraps the SQLite handle holding the schedule tables.
type DB struct {
	*sql.DB
	logger *zerolog.Logger
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if path != ":memory:" {
		// Создаем директорию для БД, если её нет
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// один писатель: SQLite сериализует запись, а :memory: живёт в одном соединении
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("Schedule database initialized")
	return &DB{DB: sqlDB, logger: logger}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		// Реестр проектов: последняя команда на проект
		`CREATE TABLE IF NOT EXISTS schedule_projects (
            project_name TEXT PRIMARY KEY,
            command TEXT NOT NULL,
            updated_at DATETIME NOT NULL
        )`,
		// Очередь: порядок задаётся seq
		`CREATE TABLE IF NOT EXISTS schedule_queue (
            seq INTEGER PRIMARY KEY AUTOINCREMENT,
            id TEXT UNIQUE NOT NULL,
            project_name TEXT NOT NULL,
            command TEXT NOT NULL,
            created_at DATETIME NOT NULL
        )`,
		// Журнал: одна запись на элемент очереди
		`CREATE TABLE IF NOT EXISTS schedule_logs (
            seq INTEGER PRIMARY KEY AUTOINCREMENT,
            id TEXT UNIQUE NOT NULL,
            queue_item_id TEXT UNIQUE NOT NULL,
            project_name TEXT NOT NULL,
            batch_result TEXT NOT NULL,
            created_at DATETIME NOT NULL
        )`,
		// Локи прогонов: общие для всех процессов на этом файле
		`CREATE TABLE IF NOT EXISTS schedule_locks (
            lock_key TEXT PRIMARY KEY,
            token TEXT NOT NULL,
            expires_at INTEGER NOT NULL
        )`,

		`CREATE INDEX IF NOT EXISTS idx_schedule_projects_updated_at ON schedule_projects(updated_at)`,
		`CREATE INDEX IF NOT EXISTS idx_schedule_queue_project ON schedule_queue(project_name)`,
		`CREATE INDEX IF NOT EXISTS idx_schedule_logs_project ON schedule_logs(project_name)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

func (db *DB) Ping(ctx context.Context) error {
	return db.PingContext(ctx)
}

func (db *DB) Close() error {
	return db.DB.Close()
}
