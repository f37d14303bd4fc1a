package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/law-makers/sitewatch/pkg/models"
	_ "modernc.org/sqlite"
)

const createSiteStateTable = `
CREATE TABLE IF NOT EXISTS site_state (
	site_id         TEXT PRIMARY KEY,
	content         TEXT,
	last_checked_at TEXT,
	updated_at      TEXT NOT NULL
)`

// SQLiteBackend keeps site state in a single SQLite table.
type SQLiteBackend struct {
	db   *sql.DB
	path string
}

// NewSQLiteBackend opens (creating if needed) the database at path.
func NewSQLiteBackend(ctx context.Context, path string) (*SQLiteBackend, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database %s: %w", path, err)
	}
	// A single connection serialises writers.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure sqlite database: %w", err)
	}
	if _, err := db.ExecContext(ctx, createSiteStateTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create site_state table: %w", err)
	}

	return &SQLiteBackend{db: db, path: path}, nil
}

func (s *SQLiteBackend) Name() string { return "sqlite" }

func (s *SQLiteBackend) Read(ctx context.Context, siteID string) (models.SiteState, error) {
	var content, lastChecked sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT content, last_checked_at FROM site_state WHERE site_id = ?`, siteID,
	).Scan(&content, &lastChecked)
	if errors.Is(err, sql.ErrNoRows) {
		return models.SiteState{}, ErrNotFound
	}
	if err != nil {
		return models.SiteState{}, fmt.Errorf("failed to query state for %s: %w", siteID, err)
	}

	var state models.SiteState
	if content.Valid {
		c := content.String
		state.Content = &c
	}
	if lastChecked.Valid {
		ts, err := parseTimestamp(lastChecked.String)
		if err != nil {
			return models.SiteState{}, err
		}
		state.LastCheckedAt = &ts
	}
	return state, nil
}

func (s *SQLiteBackend) Write(ctx context.Context, siteID string, state models.SiteState) error {
	var content, lastChecked sql.NullString
	if state.Content != nil {
		content = sql.NullString{String: *state.Content, Valid: true}
	}
	if state.LastCheckedAt != nil {
		lastChecked = sql.NullString{String: state.LastCheckedAt.Format(time.RFC3339Nano), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO site_state (site_id, content, last_checked_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(site_id) DO UPDATE SET
			content = excluded.content,
			last_checked_at = excluded.last_checked_at,
			updated_at = excluded.updated_at`,
		siteID, content, lastChecked, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert state for %s: %w", siteID, err)
	}
	return nil
}

func (s *SQLiteBackend) Delete(ctx context.Context, siteID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM site_state WHERE site_id = ?`, siteID); err != nil {
		return fmt.Errorf("failed to delete state for %s: %w", siteID, err)
	}
	return nil
}

func (s *SQLiteBackend) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT site_id FROM site_state ORDER BY site_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list states: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteBackend) Close() error {
	return s.db.Close()
}
