package loader

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/astei/anvil2voxel/anvil"
)

type Status string

const (
	StatusDone   Status = "done"
	StatusFailed Status = "failed"
)

// Checkpoint remembers which region files have been handled across runs.
type Checkpoint interface {
	// Completed returns the recorded status of every file.
	Completed(ctx context.Context) (map[string]Status, error)
	Mark(ctx context.Context, file anvil.RegionFile, status Status) error
}

// SQLiteCheckpoint keeps checkpoints in a sqlite database.
type SQLiteCheckpoint struct {
	db *sql.DB
}

func OpenSQLiteCheckpoint(path string) (*SQLiteCheckpoint, error) {
	if path == "" {
		return nil, fmt.Errorf("empty checkpoint path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initCheckpointSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteCheckpoint{db: db}, nil
}

func initCheckpointSchema(db *sql.DB) error {
	stmts := []string{
		"PRAGMA journal_mode=WAL;",
		// every mark must survive a crash
		"PRAGMA synchronous=FULL;",
		"PRAGMA busy_timeout=5000;",
		`CREATE TABLE IF NOT EXISTS region_progress (
			path TEXT PRIMARY KEY,
			region_x INTEGER NOT NULL,
			region_z INTEGER NOT NULL,
			status TEXT NOT NULL,
			completed_at TEXT NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("checkpoint schema: %w", err)
		}
	}
	return nil
}

func (c *SQLiteCheckpoint) Completed(ctx context.Context) (map[string]Status, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT path, status FROM region_progress")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]Status)
	for rows.Next() {
		var path, status string
		if err := rows.Scan(&path, &status); err != nil {
			return nil, err
		}
		out[path] = Status(status)
	}
	return out, rows.Err()
}

func (c *SQLiteCheckpoint) Mark(ctx context.Context, file anvil.RegionFile, status Status) error {
	_, err := c.db.ExecContext(ctx, `INSERT INTO region_progress (path, region_x, region_z, status, completed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET status = excluded.status, completed_at = excluded.completed_at`,
		file.Path, file.X, file.Z, string(status), time.Now().UTC().Format(time.RFC3339))
	return err
}

func (c *SQLiteCheckpoint) Close() error {
	return c.db.Close()
}
