package denylist

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/foxseedlab/nyukoku/internal/denylist"
	"github.com/foxseedlab/nyukoku/internal/repository"
)

// CachedStore keeps the active deny-list in memory. The first lookup loads it and
// later lookups reload it once the refresh interval elapsed.
type CachedStore struct {
	repo    repository.DenyListRepository
	refresh time.Duration
	now     func() time.Time

	mu       sync.Mutex
	loadedAt time.Time
	entries  map[denylist.Category]map[string]struct{}
}

func NewCachedStore(repo repository.DenyListRepository, refresh time.Duration) *CachedStore {
	return &CachedStore{
		repo:    repo,
		refresh: refresh,
		now:     time.Now,
	}
}

func (s *CachedStore) IsListed(ctx context.Context, category denylist.Category, value string) (bool, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoadedLocked(ctx); err != nil {
		return false, err
	}
	_, listed := s.entries[category][value]
	return listed, nil
}

func (s *CachedStore) ensureLoadedLocked(ctx context.Context) error {
	if s.entries != nil && s.now().Sub(s.loadedAt) < s.refresh {
		return nil
	}
	list, err := s.repo.ListActiveDenyList(ctx)
	if err != nil {
		if s.entries != nil {
			slog.Warn("deny-list refresh failed; serving previous snapshot", "error", err, "loaded_at", s.loadedAt)
			return nil
		}
		return fmt.Errorf("load deny-list: %w", err)
	}
	entries := make(map[denylist.Category]map[string]struct{}, 2)
	for _, e := range list {
		if entries[e.Category] == nil {
			entries[e.Category] = make(map[string]struct{})
		}
		entries[e.Category][e.Value] = struct{}{}
	}
	s.entries = entries
	s.loadedAt = s.now()
	slog.Debug("deny-list loaded", "entries", len(list))
	return nil
}

func (s *CachedStore) invalidate() {
	s.mu.Lock()
	s.entries = nil
	s.mu.Unlock()
}

func (s *CachedStore) Add(ctx context.Context, category denylist.Category, value, reason string) (repository.UpsertResult, error) {
	res, err := s.repo.AddDenyListEntry(ctx, repository.UpsertDenyListInput{
		Category: category,
		Value:    strings.TrimSpace(value),
		Reason:   reason,
	})
	if err != nil {
		return "", err
	}
	s.invalidate()
	return res, nil
}

func (s *CachedStore) Remove(ctx context.Context, category denylist.Category, value string) (bool, error) {
	ok, err := s.repo.InvalidateDenyListEntry(ctx, category, strings.TrimSpace(value))
	if err != nil {
		return false, err
	}
	s.invalidate()
	return ok, nil
}

func (s *CachedStore) ListActive(ctx context.Context) ([]repository.DenyListEntry, error) {
	return s.repo.ListActiveDenyList(ctx)
}
