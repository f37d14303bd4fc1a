package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/law-makers/sitewatch/pkg/models"
)

const stateFileExt = ".json"

// Zone-less ISO-8601 timestamps are read in local time.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
}

// fileRecord is the on-disk layout of <dir>/<site_id>.json
type fileRecord struct {
	Content   *string `json:"content"`
	LastCheck *string `json:"last_check"`
}

// FileBackend stores one JSON file per site in a directory.
type FileBackend struct {
	dir string
}

// NewFileBackend creates dir if needed and returns a backend rooted there.
func NewFileBackend(dir string) (*FileBackend, error) {
	if dir == "" {
		return nil, errors.New("state directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", dir, err)
	}
	return &FileBackend{dir: dir}, nil
}

func (f *FileBackend) Name() string { return "file" }

// Dir returns the directory holding the state files.
func (f *FileBackend) Dir() string { return f.dir }

func (f *FileBackend) path(siteID string) string {
	return filepath.Join(f.dir, siteID+stateFileExt)
}

func (f *FileBackend) Read(_ context.Context, siteID string) (models.SiteState, error) {
	data, err := os.ReadFile(f.path(siteID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return models.SiteState{}, ErrNotFound
		}
		return models.SiteState{}, fmt.Errorf("failed to read state file: %w", err)
	}

	var rec fileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return models.SiteState{}, fmt.Errorf("failed to decode state file %s: %w", f.path(siteID), err)
	}

	state := models.SiteState{Content: rec.Content}
	if rec.LastCheck != nil {
		ts, err := parseTimestamp(*rec.LastCheck)
		if err != nil {
			return models.SiteState{}, fmt.Errorf("failed to decode state file %s: %w", f.path(siteID), err)
		}
		state.LastCheckedAt = &ts
	}
	return state, nil
}

// Write replaces the state file atomically via a temp file and rename.
func (f *FileBackend) Write(_ context.Context, siteID string, state models.SiteState) error {
	rec := fileRecord{Content: state.Content}
	if state.LastCheckedAt != nil {
		ts := state.LastCheckedAt.Format(time.RFC3339Nano)
		rec.LastCheck = &ts
	}

	data, err := json.MarshalIndent(rec, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	tmp, err := os.CreateTemp(f.dir, siteID+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close state file: %w", err)
	}
	if err := os.Rename(tmpName, f.path(siteID)); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

func (f *FileBackend) Delete(_ context.Context, siteID string) error {
	err := os.Remove(f.path(siteID))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete state file: %w", err)
	}
	return nil
}

func (f *FileBackend) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, err
	}

	var ids []string
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == stateFileExt {
			ids = append(ids, strings.TrimSuffix(entry.Name(), stateFileExt))
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (f *FileBackend) Close() error { return nil }

func parseTimestamp(s string) (time.Time, error) {
	var firstErr error
	for _, layout := range timestampLayouts {
		ts, err := time.ParseInLocation(layout, s, time.Local)
		if err == nil {
			return ts, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, fmt.Errorf("invalid last_check timestamp %q: %w", s, firstErr)
}
