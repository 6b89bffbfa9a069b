package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/deusflow/feedharvest/internal/logger"
	"github.com/deusflow/feedharvest/internal/news"
)

// DefaultStaleAfter is how old a stored article must be before a re-ingest
// overwrites it.
const DefaultStaleAfter = 60 * time.Second

// SaveResult counts the outcome of one Save call.
type SaveResult struct {
	Saved          int `json:"saved"`
	Updated        int `json:"updated"`
	Skipped        int `json:"skipped"`
	TotalProcessed int `json:"totalProcessed"`

	// Inserted holds the newly stored articles, in save order.
	Inserted []news.Article `json:"-"`
}

// Gateway applies the staleness-aware upsert policy over a Store.
type Gateway struct {
	store      Store
	staleAfter time.Duration
	now        func() time.Time
}

// GatewayOption customises a Gateway.
type GatewayOption func(*Gateway)

// WithStaleAfter overrides DefaultStaleAfter.
func WithStaleAfter(d time.Duration) GatewayOption {
	return func(g *Gateway) { g.staleAfter = d }
}

// WithNow overrides the gateway clock.
func WithNow(now func() time.Time) GatewayOption {
	return func(g *Gateway) { g.now = now }
}

func NewGateway(store Store, opts ...GatewayOption) *Gateway {
	g := &Gateway{store: store, staleAfter: DefaultStaleAfter, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Store returns the underlying backend.
func (g *Gateway) Store() Store { return g.store }

// Save upserts articles in order. A missing article is inserted, a stored
// one older than the stale threshold is overwritten in place, anything else
// is skipped. Per-article failures are logged and counted as skipped.
func (g *Gateway) Save(ctx context.Context, articles []news.Article) SaveResult {
	var res SaveResult
	for _, a := range articles {
		if err := ctx.Err(); err != nil {
			logger.Warn("Save interrupted", "remaining", len(articles)-res.TotalProcessed, "error", err)
			break
		}
		res.TotalProcessed++

		outcome, stored, err := g.saveOne(ctx, a)
		if err != nil {
			logger.Error("Error saving article", "url", a.URL, "error", err)
			res.Skipped++
			continue
		}
		switch outcome {
		case outcomeSaved:
			res.Saved++
			res.Inserted = append(res.Inserted, stored)
		case outcomeUpdated:
			res.Updated++
		default:
			res.Skipped++
		}
	}
	return res
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeSaved
	outcomeUpdated
)

func (g *Gateway) saveOne(ctx context.Context, a news.Article) (outcome, news.Article, error) {
	a.EnsureKeys()
	now := g.now()

	existing, found, err := g.store.FindByURLOrHash(ctx, a.URL, a.ContentHash)
	if err != nil {
		return outcomeSkipped, a, err
	}

	if !found {
		a.CreatedAt = now
		a.UpdatedAt = now
		if err := g.store.Insert(ctx, a); err != nil {
			return outcomeSkipped, a, err
		}
		return outcomeSaved, a, nil
	}

	if now.Sub(existing.UpdatedAt) <= g.staleAfter {
		return outcomeSkipped, existing, nil
	}

	updated := mergeMutable(existing, a)
	updated.UpdatedAt = now
	if err := g.store.Update(ctx, updated); err != nil {
		return outcomeSkipped, existing, err
	}
	return outcomeUpdated, updated, nil
}

// mergeMutable overwrites existing with the mutable fields of incoming. The
// identity fields id, url, source and createdAt are kept.
func mergeMutable(existing, incoming news.Article) news.Article {
	out := incoming
	out.ID = existing.ID
	out.URL = existing.URL
	out.Source = existing.Source
	out.CreatedAt = existing.CreatedAt
	return out
}

// GetArticles returns one page of articles matching f.
func (g *Gateway) GetArticles(ctx context.Context, f Filter) (Page, error) {
	return g.store.Query(ctx, f.Normalized())
}

func (g *Gateway) SourcesStats(ctx context.Context) ([]SourceStat, error) {
	return g.store.SourcesStats(ctx)
}

// CategoriesStats returns the most used categories, at most DefaultTopCategory.
func (g *Gateway) CategoriesStats(ctx context.Context) ([]CategoryStat, error) {
	return g.store.CategoriesStats(ctx, DefaultTopCategory)
}

// Cleanup deletes articles published more than olderThan ago.
func (g *Gateway) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := g.now().Add(-olderThan)
	n, err := g.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return n, fmt.Errorf("cleanup articles older than %s: %w", cutoff.Format(time.RFC3339), err)
	}
	if n > 0 {
		logger.Info("Cleaned up old articles", "deleted", n, "cutoff", cutoff)
	}
	return n, nil
}

func (g *Gateway) Count(ctx context.Context) (int64, error) {
	return g.store.Count(ctx)
}
