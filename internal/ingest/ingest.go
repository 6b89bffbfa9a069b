// Package ingest runs one ingestion cycle: fetch every feed, normalize the
// entries, flag duplicates, persist the batch and notify downstream sinks.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/errgroup"

	"github.com/deusflow/feedharvest/internal/logger"
	"github.com/deusflow/feedharvest/internal/metrics"
	"github.com/deusflow/feedharvest/internal/news"
	"github.com/deusflow/feedharvest/internal/publish"
	"github.com/deusflow/feedharvest/internal/ratelimit"
	"github.com/deusflow/feedharvest/internal/storage"
)

const DefaultConcurrency = 4

// ErrAllFeedsFailed is returned when no configured feed could be fetched.
var ErrAllFeedsFailed = errors.New("all feeds failed")

// FeedSource fetches the raw entries of one feed.
type FeedSource interface {
	FetchFeed(ctx context.Context, feedURL string) ([]*gofeed.Item, error)
}

// EntryNormalizer turns one raw entry into an article.
type EntryNormalizer interface {
	Normalize(ctx context.Context, item *gofeed.Item, feedURL string) (news.Article, error)
}

// Result summarises one cycle.
type Result struct {
	FeedsTotal      int           `json:"feedsTotal"`
	FeedsFailed     int           `json:"feedsFailed"`
	Fetched         int           `json:"fetched"`
	Normalized      int           `json:"normalized"`
	NormalizeErrors int           `json:"normalizeErrors"`
	Unique          int           `json:"unique"`
	Duplicates      int           `json:"duplicates"`
	Groups          int           `json:"groups"`
	Saved           int           `json:"saved"`
	Updated         int           `json:"updated"`
	Skipped         int           `json:"skipped"`
	Published       int           `json:"published"`
	PublishFailed   int           `json:"publishFailed"`
	Duration        time.Duration `json:"-"`
	DurationMs      int64         `json:"durationMs"`
}

// Counts converts the result into run counters.
func (r Result) Counts() metrics.Counts {
	return metrics.Counts{
		Processed:   r.Normalized,
		Duplicates:  r.Duplicates,
		Saved:       r.Saved,
		Updated:     r.Updated,
		Skipped:     r.Skipped,
		FeedsFailed: r.FeedsFailed,
	}
}

func (r *Result) finish(d time.Duration) {
	r.Duration = d
	r.DurationMs = d.Milliseconds()
}

// Pipeline wires the ingestion stages together.
type Pipeline struct {
	feeds       []string
	source      FeedSource
	normalizer  EntryNormalizer
	detector    *news.Detector
	gateway     *storage.Gateway
	dispatcher  *publish.Dispatcher
	budget      *ratelimit.Budget
	concurrency int
	now         func() time.Time
}

type Option func(*Pipeline)

// WithConcurrency bounds parallel normalization within a feed.
func WithConcurrency(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithDispatcher enables downstream publishing of newly saved articles.
func WithDispatcher(d *publish.Dispatcher) Option {
	return func(p *Pipeline) { p.dispatcher = d }
}

// WithBudget resets the page fetch budget at the start of each cycle.
func WithBudget(b *ratelimit.Budget) Option {
	return func(p *Pipeline) { p.budget = b }
}

func WithDetector(d *news.Detector) Option {
	return func(p *Pipeline) { p.detector = d }
}

func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

func New(feeds []string, source FeedSource, normalizer EntryNormalizer, gateway *storage.Gateway, opts ...Option) *Pipeline {
	p := &Pipeline{
		feeds:       feeds,
		source:      source,
		normalizer:  normalizer,
		detector:    news.NewDetector(),
		gateway:     gateway,
		concurrency: DefaultConcurrency,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Feeds returns the configured feed URLs in fetch order.
func (p *Pipeline) Feeds() []string {
	return append([]string(nil), p.feeds...)
}

// Run executes one cycle. Failures of single feeds or entries are counted in
// the result. An error is returned only when ctx ends or every feed failed.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	start := p.now()
	res := Result{FeedsTotal: len(p.feeds)}
	if p.budget != nil {
		p.budget.Reset()
	}

	var batch []news.Article
	for _, feedURL := range p.feeds {
		if err := ctx.Err(); err != nil {
			res.finish(p.now().Sub(start))
			return res, err
		}

		items, err := p.source.FetchFeed(ctx, feedURL)
		if err != nil {
			res.FeedsFailed++
			logger.Error("Error fetching feed", "feed", feedURL, "error", err)
			continue
		}
		res.Fetched += len(items)

		articles, failed := p.normalizeFeed(ctx, feedURL, items)
		res.NormalizeErrors += failed
		batch = append(batch, articles...)
		logger.Info("Feed processed", "feed", feedURL, "entries", len(items), "articles", len(articles))
	}
	res.Normalized = len(batch)

	part := p.detector.Partition(batch)
	res.Unique = len(part.Unique)
	res.Duplicates = len(part.Duplicates)
	res.Groups = len(part.Groups)
	for _, g := range part.Groups {
		logger.Debug("Duplicate group", "leader", g.Leader.URL, "best", g.Best.URL, "members", len(g.Members))
	}

	saved := p.gateway.Save(ctx, part.All())
	res.Saved = saved.Saved
	res.Updated = saved.Updated
	res.Skipped = saved.Skipped

	if p.dispatcher.Enabled() && len(saved.Inserted) > 0 {
		res.Published, res.PublishFailed = p.dispatcher.PublishSaved(ctx, saved.Inserted)
	}

	res.finish(p.now().Sub(start))
	logger.Info("Ingestion cycle finished",
		"feeds", res.FeedsTotal, "feedsFailed", res.FeedsFailed,
		"articles", res.Normalized, "duplicates", res.Duplicates,
		"saved", res.Saved, "updated", res.Updated, "skipped", res.Skipped,
		"duration", res.Duration)
	if p.budget != nil {
		st := p.budget.Stats()
		logger.Debug("Page fetch budget", "used", st.Used, "limit", st.Limit, "denied", st.Denied, "cacheHitRate", st.CacheHitRate)
	}

	if res.FeedsTotal > 0 && res.FeedsFailed == res.FeedsTotal {
		return res, fmt.Errorf("%w: %d feeds", ErrAllFeedsFailed, res.FeedsFailed)
	}
	return res, nil
}

// normalizeFeed converts the entries of one feed with bounded concurrency.
// Output order follows feed order.
func (p *Pipeline) normalizeFeed(ctx context.Context, feedURL string, items []*gofeed.Item) ([]news.Article, int) {
	slots := make([]*news.Article, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, item := range items {
		g.Go(func() error {
			a, err := p.normalizer.Normalize(gctx, item, feedURL)
			if err != nil {
				logger.Warn("Skipping feed entry", "feed", feedURL, "index", i, "error", err)
				return nil
			}
			if !a.HasValidDate() {
				logger.Warn("Feed entry has no valid publish date", "url", a.URL)
			}
			slots[i] = &a
			return nil
		})
	}
	_ = g.Wait()

	out := make([]news.Article, 0, len(items))
	failed := 0
	for _, a := range slots {
		if a == nil {
			failed++
			continue
		}
		out = append(out, *a)
	}
	return out, failed
}
