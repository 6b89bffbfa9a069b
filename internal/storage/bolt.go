package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/deusflow/feedharvest/internal/logger"
	"github.com/deusflow/feedharvest/internal/news"
)

var articlesBucket = []byte("articles")

// BoltStore is a MemoryStore whose writes go through to a bbolt file, so the
// article set survives restarts. Reads are served from memory.
type BoltStore struct {
	*MemoryStore
	db *bolt.DB
}

// OpenBoltStore opens or creates the database at path and loads its articles.
func OpenBoltStore(path string, policy EvictionPolicy) (*BoltStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt database: %w", err)
	}

	s := &BoltStore{MemoryStore: NewMemoryStore(policy), db: db}
	if err := s.load(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// load fills memory from disk, then evicts down to capacity and removes the
// evicted records from the file in the same transaction.
func (s *BoltStore) load() error {
	loaded, evicted := 0, 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(articlesBucket)
		if err != nil {
			return err
		}
		err = b.ForEach(func(k, v []byte) error {
			var a news.Article
			if err := json.Unmarshal(v, &a); err != nil {
				logger.Warn("Skipping unreadable stored article", "id", string(k), "error", err)
				return nil
			}
			s.MemoryStore.put(a)
			loaded++
			return nil
		})
		if err != nil {
			return err
		}

		s.MemoryStore.mu.Lock()
		defer s.MemoryStore.mu.Unlock()
		for {
			batch := s.MemoryStore.evictLocked()
			if len(batch) == 0 {
				return nil
			}
			if err := deleteArticles(b, batch); err != nil {
				return err
			}
			evicted += len(batch)
		}
	})
	if err != nil {
		return fmt.Errorf("load articles: %w", err)
	}
	logger.Info("Loaded articles from disk", "count", loaded-evicted, "evicted", evicted, "path", s.db.Path())
	return nil
}

// Insert writes a to disk before it becomes visible in memory. A failed
// write leaves the store unchanged.
func (s *BoltStore) Insert(ctx context.Context, a news.Article) error {
	return s.MemoryStore.insert(ctx, a, func(evicted []news.Article) error {
		return s.write(func(b *bolt.Bucket) error {
			if err := putArticle(b, a); err != nil {
				return err
			}
			return deleteArticles(b, evicted)
		})
	})
}

func (s *BoltStore) Update(ctx context.Context, a news.Article) error {
	return s.MemoryStore.update(ctx, a, func() error {
		return s.write(func(b *bolt.Bucket) error { return putArticle(b, a) })
	})
}

func (s *BoltStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	return s.MemoryStore.deleteOlderThan(cutoff, func(ids []string) error {
		return s.write(func(b *bolt.Bucket) error {
			for _, id := range ids {
				if err := b.Delete([]byte(id)); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) write(fn func(b *bolt.Bucket) error) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return fn(tx.Bucket(articlesBucket))
	})
	if err != nil {
		return fmt.Errorf("bolt write: %w", err)
	}
	return nil
}

func putArticle(b *bolt.Bucket, a news.Article) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode article %s: %w", a.ID, err)
	}
	return b.Put([]byte(a.ID), data)
}

func deleteArticles(b *bolt.Bucket, articles []news.Article) error {
	for _, a := range articles {
		if err := b.Delete([]byte(a.ID)); err != nil {
			return err
		}
	}
	return nil
}
