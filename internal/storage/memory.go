package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/deusflow/feedharvest/internal/logger"
	"github.com/deusflow/feedharvest/internal/news"
)

// EvictionPolicy bounds a MemoryStore. When the store grows past Capacity,
// the Batch articles with the oldest publish time are removed. A Capacity of
// zero disables eviction.
type EvictionPolicy struct {
	Capacity int
	Batch    int
}

// DefaultEvictionPolicy keeps at most 10000 articles, dropping 1000 at a time.
var DefaultEvictionPolicy = EvictionPolicy{Capacity: 10000, Batch: 1000}

// MemoryStore keeps articles in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	articles map[string]news.Article
	byURL    map[string]string
	byHash   map[string]map[string]struct{}
	policy   EvictionPolicy
}

func NewMemoryStore(policy EvictionPolicy) *MemoryStore {
	if policy.Capacity > 0 && policy.Batch <= 0 {
		policy.Batch = 1
	}
	return &MemoryStore{
		articles: make(map[string]news.Article),
		byURL:    make(map[string]string),
		byHash:   make(map[string]map[string]struct{}),
		policy:   policy,
	}
}

func (m *MemoryStore) FindByURLOrHash(_ context.Context, url, hash string) (news.Article, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if id, ok := m.byURL[url]; ok {
		return m.articles[id], true, nil
	}
	if hash != "" {
		// Oldest first so repeated lookups are stable.
		var found *news.Article
		for id := range m.byHash[hash] {
			a := m.articles[id]
			if found == nil || a.CreatedAt.Before(found.CreatedAt) || (a.CreatedAt.Equal(found.CreatedAt) && a.ID < found.ID) {
				found = &a
			}
		}
		if found != nil {
			return *found, true, nil
		}
	}
	return news.Article{}, false, nil
}

func (m *MemoryStore) Insert(ctx context.Context, a news.Article) error {
	return m.insert(ctx, a, nil)
}

// insert adds a and evicts down to capacity. When commit is set it runs under
// the write lock with the evicted articles; if it fails the store is restored.
func (m *MemoryStore) insert(_ context.Context, a news.Article, commit func(evicted []news.Article) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.articles[a.ID]; exists {
		return fmt.Errorf("%w: id %s", ErrConflict, a.ID)
	}
	if _, exists := m.byURL[a.URL]; exists {
		return fmt.Errorf("%w: url %s", ErrConflict, a.URL)
	}

	m.put(a)
	evicted := m.evictLocked()
	if commit == nil {
		return nil
	}
	if err := commit(evicted); err != nil {
		m.remove(a.ID)
		for _, e := range evicted {
			if e.ID != a.ID {
				m.put(e)
			}
		}
		return err
	}
	return nil
}

func (m *MemoryStore) Update(ctx context.Context, a news.Article) error {
	return m.update(ctx, a, nil)
}

func (m *MemoryStore) update(_ context.Context, a news.Article, commit func() error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	old, ok := m.articles[a.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, a.ID)
	}
	if id, taken := m.byURL[a.URL]; taken && id != a.ID {
		return fmt.Errorf("%w: url %s", ErrConflict, a.URL)
	}

	m.unindex(old)
	m.put(a)
	if commit == nil {
		return nil
	}
	if err := commit(); err != nil {
		m.unindex(a)
		m.put(old)
		return err
	}
	return nil
}

func (m *MemoryStore) put(a news.Article) {
	m.articles[a.ID] = a
	m.byURL[a.URL] = a.ID
	ids, ok := m.byHash[a.ContentHash]
	if !ok {
		ids = make(map[string]struct{})
		m.byHash[a.ContentHash] = ids
	}
	ids[a.ID] = struct{}{}
}

func (m *MemoryStore) unindex(a news.Article) {
	delete(m.byURL, a.URL)
	if ids, ok := m.byHash[a.ContentHash]; ok {
		delete(ids, a.ID)
		if len(ids) == 0 {
			delete(m.byHash, a.ContentHash)
		}
	}
}

func (m *MemoryStore) remove(id string) bool {
	a, ok := m.articles[id]
	if !ok {
		return false
	}
	m.unindex(a)
	delete(m.articles, id)
	return true
}

func (m *MemoryStore) evictLocked() []news.Article {
	if m.policy.Capacity <= 0 || len(m.articles) <= m.policy.Capacity {
		return nil
	}

	all := make([]news.Article, 0, len(m.articles))
	for _, a := range m.articles {
		all = append(all, a)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].PublishedAt.Equal(all[j].PublishedAt) {
			return all[i].PublishedAt.Before(all[j].PublishedAt)
		}
		return all[i].ID < all[j].ID
	})

	n := min(m.policy.Batch, len(all))
	evicted := all[:n]
	for _, a := range evicted {
		m.remove(a.ID)
	}
	logger.Info("Evicted oldest articles", "count", n, "capacity", m.policy.Capacity)
	return evicted
}

func (m *MemoryStore) snapshot() []news.Article {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]news.Article, 0, len(m.articles))
	for _, a := range m.articles {
		out = append(out, a)
	}
	return out
}

func (m *MemoryStore) Query(_ context.Context, f Filter) (Page, error) {
	return filterArticles(m.snapshot(), f), nil
}

func (m *MemoryStore) SourcesStats(context.Context) ([]SourceStat, error) {
	return sourcesStats(m.snapshot()), nil
}

func (m *MemoryStore) CategoriesStats(_ context.Context, limit int) ([]CategoryStat, error) {
	return categoriesStats(m.snapshot(), limit), nil
}

func (m *MemoryStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return m.deleteOlderThan(cutoff, nil)
}

func (m *MemoryStore) deleteOlderThan(cutoff time.Time, commit func(ids []string) error) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed []news.Article
	for _, a := range m.articles {
		if a.PublishedAt.Before(cutoff) {
			removed = append(removed, a)
		}
	}
	if len(removed) == 0 {
		return 0, nil
	}
	ids := make([]string, len(removed))
	for i, a := range removed {
		m.remove(a.ID)
		ids[i] = a.ID
	}
	if commit != nil {
		if err := commit(ids); err != nil {
			for _, a := range removed {
				m.put(a)
			}
			return 0, err
		}
	}
	return int64(len(ids)), nil
}

func (m *MemoryStore) Count(context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.articles)), nil
}

func (m *MemoryStore) Close() error { return nil }
