// Package storage persists articles and answers the read queries used by the
// monitoring surface. Backends are an in-memory map, a bbolt file and
// PostgreSQL; the Gateway applies the upsert policy on top of any of them.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/deusflow/feedharvest/internal/news"
)

var (
	// ErrConflict is returned when a write violates url or id uniqueness.
	ErrConflict = errors.New("persistence conflict")
	// ErrStoreUnavailable is returned when the backend cannot be reached at startup.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrNotFound is returned by Update for an unknown article id.
	ErrNotFound = errors.New("article not found")
)

// Store is a persistence backend.
type Store interface {
	// FindByURLOrHash returns an article whose url equals url, or failing
	// that one whose content hash equals hash.
	FindByURLOrHash(ctx context.Context, url, hash string) (news.Article, bool, error)
	Insert(ctx context.Context, a news.Article) error
	Update(ctx context.Context, a news.Article) error

	Query(ctx context.Context, f Filter) (Page, error)
	SourcesStats(ctx context.Context) ([]SourceStat, error)
	CategoriesStats(ctx context.Context, limit int) ([]CategoryStat, error)

	// DeleteOlderThan removes articles published before cutoff.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	Count(ctx context.Context) (int64, error)
	Close() error
}

// SourceStat aggregates non-duplicate articles of one source domain.
type SourceStat struct {
	Domain        string    `json:"domain"`
	Name          string    `json:"name"`
	Count         int64     `json:"count"`
	LatestArticle time.Time `json:"latestArticle"`
}

// CategoryStat counts non-duplicate articles carrying one category.
type CategoryStat struct {
	Category string `json:"category"`
	Count    int64  `json:"count"`
}
