// Package store keeps the last observed content of every watched site.
//
// A StateStore serves reads from memory and writes through to a Backend.
// The in-memory copy is authoritative for the running process: when a
// durable write fails the site is marked dirty and Flush retries it later.
package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/law-makers/sitewatch/internal/retry"
	"github.com/law-makers/sitewatch/pkg/models"
	"github.com/rs/zerolog"
)

// StateStore is safe for concurrent use. Writes that overlap may reach the
// backend out of order; the site then stays dirty until Flush writes the
// latest state.
type StateStore struct {
	backend Backend
	logger  zerolog.Logger
	retry   retry.Config
	now     func() time.Time

	mu     sync.Mutex
	states map[string]models.SiteState
	dirty  map[string]struct{}
}

// Option configures a StateStore.
type Option func(*StateStore)

// WithRetryConfig overrides the write retry policy.
func WithRetryConfig(cfg retry.Config) Option {
	return func(s *StateStore) { s.retry = cfg }
}

// WithClock overrides the clock used to stamp LastCheckedAt.
func WithClock(now func() time.Time) Option {
	return func(s *StateStore) { s.now = now }
}

// New creates a StateStore over backend.
func New(backend Backend, logger zerolog.Logger, opts ...Option) *StateStore {
	s := &StateStore{
		backend: backend,
		logger:  logger.With().Str("component", "store").Str("backend", backend.Name()).Logger(),
		retry:   retry.DefaultConfig(),
		now:     time.Now,
		states:  make(map[string]models.SiteState),
		dirty:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load returns the state for siteID. It never fails: missing, unreadable
// or corrupt records yield a never-checked state.
func (s *StateStore) Load(ctx context.Context, siteID string) models.SiteState {
	s.mu.Lock()
	if st, ok := s.states[siteID]; ok {
		s.mu.Unlock()
		return st
	}
	s.mu.Unlock()

	st, err := s.backend.Read(ctx, siteID)
	switch {
	case err == nil:
		s.logger.Debug().Str("site", siteID).Msg("Loaded persisted state")
	case errors.Is(err, ErrNotFound):
		s.logger.Debug().Str("site", siteID).Msg("No persisted state, treating as never checked")
		st = models.SiteState{}
	default:
		s.logger.Error().Err(err).Str("site", siteID).Msg("Failed to load state, treating as never checked")
		st = models.SiteState{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// A concurrent Save may have won the race.
	if existing, ok := s.states[siteID]; ok {
		return existing
	}
	s.states[siteID] = st
	return st
}

// Save records content as the latest observation of siteID.
// Memory is updated first; a failed durable write leaves the site dirty.
func (s *StateStore) Save(ctx context.Context, siteID, content string) {
	now := s.now()
	c := content
	st := models.SiteState{Content: &c, LastCheckedAt: &now}

	s.mu.Lock()
	s.states[siteID] = st
	s.mu.Unlock()

	err := retry.WithRetry(ctx, s.retry, s.logger, func() error {
		return s.backend.Write(ctx, siteID, st)
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.dirty[siteID] = struct{}{}
		s.logger.Error().Err(err).Str("site", siteID).Msg("Failed to persist state, keeping it in memory")
		return
	}
	s.settle(siteID, st)
	s.logger.Debug().Str("site", siteID).Int("content_length", len(content)).Msg("State saved")
}

// Flush retries the durable write of every dirty site once and returns
// how many remain dirty.
func (s *StateStore) Flush(ctx context.Context) int {
	s.mu.Lock()
	ids := make([]string, 0, len(s.dirty))
	for id := range s.dirty {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	if len(ids) == 0 {
		return 0
	}
	sort.Strings(ids)

	for _, id := range ids {
		s.mu.Lock()
		_, pending := s.dirty[id]
		st := s.states[id]
		s.mu.Unlock()
		if !pending {
			continue
		}

		if err := s.backend.Write(ctx, id, st); err != nil {
			s.logger.Warn().Err(err).Str("site", id).Msg("State still not persisted")
			continue
		}
		s.mu.Lock()
		s.settle(id, st)
		s.mu.Unlock()
		s.logger.Info().Str("site", id).Msg("Persisted previously unsaved state")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.dirty)
}

// settle updates the dirty set after written reached the backend. If memory
// moved on while the write was in flight, the backend may hold the older
// value, so the site stays dirty. Callers hold s.mu.
func (s *StateStore) settle(siteID string, written models.SiteState) {
	if cur, ok := s.states[siteID]; ok && !sameState(cur, written) {
		s.dirty[siteID] = struct{}{}
		return
	}
	delete(s.dirty, siteID)
}

// isDirty reports whether siteID has state that is not yet durable.
func (s *StateStore) isDirty(siteID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.dirty[siteID]
	return ok
}

// DirtyCount returns the number of sites whose state is not yet durable.
func (s *StateStore) DirtyCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.dirty)
}

// Sites returns the IDs with durable state, plus any held only in memory.
func (s *StateStore) Sites(ctx context.Context) ([]string, error) {
	ids, err := s.backend.List(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}

	s.mu.Lock()
	for id, st := range s.states {
		if _, ok := seen[id]; !ok && st.Checked() {
			ids = append(ids, id)
		}
	}
	s.mu.Unlock()

	sort.Strings(ids)
	return ids, nil
}

// Reset forgets siteID so its next check is an initial observation.
func (s *StateStore) Reset(ctx context.Context, siteID string) error {
	if err := s.backend.Delete(ctx, siteID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, siteID)
	delete(s.dirty, siteID)
	s.logger.Info().Str("site", siteID).Msg("State reset")
	return nil
}

// Close flushes once and closes the backend.
func (s *StateStore) Close(ctx context.Context) error {
	if remaining := s.Flush(ctx); remaining > 0 {
		s.logger.Warn().Int("sites", remaining).Msg("Closing with unpersisted state")
	}
	return s.backend.Close()
}

func sameState(a, b models.SiteState) bool {
	if (a.Content == nil) != (b.Content == nil) || (a.LastCheckedAt == nil) != (b.LastCheckedAt == nil) {
		return false
	}
	if a.Content != nil && *a.Content != *b.Content {
		return false
	}
	if a.LastCheckedAt != nil && !a.LastCheckedAt.Equal(*b.LastCheckedAt) {
		return false
	}
	return true
}
