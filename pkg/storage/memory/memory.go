// Package memory provides an in-memory storage.RunStore for tests and
// single-process use. Runs are lost when the process exits. Optional LRU
// eviction bounds memory usage.
package memory

import (
	"container/list"
	"context"
	"sort"
	"sync"

	"github.com/rhuss/datasci/pkg/api"
	"github.com/rhuss/datasci/pkg/storage"
)

type entry struct {
	run     *api.Run
	lruElem *list.Element
}

// Store is an in-memory RunStore with optional LRU eviction.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	lruList *list.List // front = most recently used
	maxSize int        // 0 = unlimited
}

var _ storage.RunStore = (*Store)(nil)

// New creates a store. If maxSize is 0, the store grows without limit;
// otherwise the least recently used run is evicted at the limit.
func New(maxSize int) *Store {
	return &Store{
		entries: make(map[string]*entry),
		lruList: list.New(),
		maxSize: maxSize,
	}
}

// SaveRun stores run.
func (s *Store) SaveRun(_ context.Context, run *api.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[run.ID]; exists {
		return storage.ErrConflict
	}
	if s.maxSize > 0 && len(s.entries) >= s.maxSize {
		s.evictOldest()
	}

	elem := s.lruList.PushFront(run.ID)
	s.entries[run.ID] = &entry{run: run, lruElem: elem}
	return nil
}

// GetRun returns the run with id and marks it recently used.
func (s *Store) GetRun(_ context.Context, id string) (*api.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	s.lruList.MoveToFront(e.lruElem)
	return e.run, nil
}

// DeleteRun removes a run.
func (s *Store) DeleteRun(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return storage.ErrNotFound
	}
	s.lruList.Remove(e.lruElem)
	delete(s.entries, id)
	return nil
}

// ListRuns returns runs ordered by creation time with cursor pagination.
func (s *Store) ListRuns(_ context.Context, opts storage.ListOptions) (*storage.RunList, error) {
	s.mu.RLock()
	var matches []*api.Run
	for _, e := range s.entries {
		if opts.Status != "" && e.run.Status != opts.Status {
			continue
		}
		matches = append(matches, e.run)
	}
	s.mu.RUnlock()

	asc := opts.Order == "asc"
	sort.Slice(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			if asc {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.CreatedAt.After(b.CreatedAt)
		}
		if asc {
			return a.ID < b.ID
		}
		return a.ID > b.ID
	})

	if opts.After != "" {
		idx := -1
		for i, r := range matches {
			if r.ID == opts.After {
				idx = i
				break
			}
		}
		if idx >= 0 {
			matches = matches[idx+1:]
		} else {
			matches = nil
		}
	}

	limit := opts.EffectiveLimit()
	hasMore := len(matches) > limit
	if hasMore {
		matches = matches[:limit]
	}

	result := &storage.RunList{Data: matches, HasMore: hasMore}
	if len(matches) > 0 {
		result.FirstID = matches[0].ID
		result.LastID = matches[len(matches)-1].ID
	}
	if result.Data == nil {
		result.Data = []*api.Run{}
	}
	return result, nil
}

// HealthCheck always returns nil.
func (s *Store) HealthCheck(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() error { return nil }

// evictOldest removes the least recently used entry. Must be called with
// s.mu held.
func (s *Store) evictOldest() {
	back := s.lruList.Back()
	if back == nil {
		return
	}
	id := back.Value.(string)
	s.lruList.Remove(back)
	delete(s.entries, id)
}
