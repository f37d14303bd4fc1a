package store

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/law-makers/sitewatch/pkg/models"
)

// ErrNotFound is returned by a Backend when no record exists for a site.
var ErrNotFound = errors.New("state not found")

// Backend is the durable storage behind a StateStore.
// Records are keyed one-to-one by site ID.
type Backend interface {
	// Read returns the stored record, ErrNotFound, or a read/decode error.
	Read(ctx context.Context, siteID string) (models.SiteState, error)
	// Write replaces the record for siteID.
	Write(ctx context.Context, siteID string, state models.SiteState) error
	// Delete removes the record; deleting a missing record is not an error.
	Delete(ctx context.Context, siteID string) error
	// List returns the IDs of all stored records in sorted order.
	List(ctx context.Context) ([]string, error)
	// Close releases the backend's resources.
	Close() error
	// Name identifies the backend in logs.
	Name() string
}

// MemoryBackend keeps records in a map. Reads that miss fall through to
// Base when it is set; writes never reach Base.
type MemoryBackend struct {
	Base Backend

	mu      sync.RWMutex
	records map[string]models.SiteState
	deleted map[string]struct{}
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		records: make(map[string]models.SiteState),
		deleted: make(map[string]struct{}),
	}
}

// NewOverlay creates a MemoryBackend that reads through to base and
// keeps every write in memory. It backs dry-run checks.
func NewOverlay(base Backend) *MemoryBackend {
	m := NewMemoryBackend()
	m.Base = base
	return m
}

func (m *MemoryBackend) Name() string {
	if m.Base != nil {
		return "overlay(" + m.Base.Name() + ")"
	}
	return "memory"
}

func (m *MemoryBackend) Read(ctx context.Context, siteID string) (models.SiteState, error) {
	m.mu.RLock()
	st, ok := m.records[siteID]
	_, deleted := m.deleted[siteID]
	m.mu.RUnlock()

	if ok {
		return st, nil
	}
	if m.Base != nil && !deleted {
		return m.Base.Read(ctx, siteID)
	}
	return models.SiteState{}, ErrNotFound
}

func (m *MemoryBackend) Write(_ context.Context, siteID string, state models.SiteState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[siteID] = state
	delete(m.deleted, siteID)
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, siteID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, siteID)
	m.deleted[siteID] = struct{}{}
	return nil
}

func (m *MemoryBackend) List(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})

	if m.Base != nil {
		ids, err := m.Base.List(ctx)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			seen[id] = struct{}{}
		}
	}

	m.mu.RLock()
	for id := range m.records {
		seen[id] = struct{}{}
	}
	for id := range m.deleted {
		delete(seen, id)
	}
	m.mu.RUnlock()

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Close does not close Base; its owner does.
func (m *MemoryBackend) Close() error { return nil }
