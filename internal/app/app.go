// Package app wires configuration, storage, the ingestion pipeline, the
// scheduler and the monitoring server into one running service.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/deusflow/feedharvest/internal/config"
	"github.com/deusflow/feedharvest/internal/httpclient"
	"github.com/deusflow/feedharvest/internal/ingest"
	"github.com/deusflow/feedharvest/internal/logger"
	"github.com/deusflow/feedharvest/internal/monitor"
	"github.com/deusflow/feedharvest/internal/publish"
	"github.com/deusflow/feedharvest/internal/ratelimit"
	"github.com/deusflow/feedharvest/internal/retry"
	"github.com/deusflow/feedharvest/internal/rss"
	"github.com/deusflow/feedharvest/internal/scheduler"
	"github.com/deusflow/feedharvest/internal/scraper"
	"github.com/deusflow/feedharvest/internal/sources"
	"github.com/deusflow/feedharvest/internal/storage"
)

var publishRetry = retry.Policy{MaxAttempts: 3, Delay: time.Second, Linear: true}

// Run starts the service and blocks until ctx is cancelled or the
// monitoring server fails.
func Run(ctx context.Context, cfg *config.Config) error {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Error closing store", "error", err)
		}
	}()

	profiles := sources.Default()
	if cfg.DomainsConfigPath != "" {
		if err := profiles.LoadFile(cfg.DomainsConfigPath); err != nil {
			return fmt.Errorf("load domain profiles: %w", err)
		}
	}

	feeds, err := loadFeeds(cfg)
	if err != nil {
		return err
	}

	dispatcher, err := buildDispatcher(ctx, cfg.PublishersFile)
	if err != nil {
		return err
	}
	defer dispatcher.Close()

	gateway := storage.NewGateway(store)
	pipeline := newPipeline(ctx, cfg, feeds, profiles, gateway, dispatcher)

	interval, err := scheduler.ParseCadence(cfg.FetchInterval)
	if err != nil {
		return err
	}
	cleanup, err := scheduler.ParseCadence(cfg.CleanupSchedule)
	if err != nil {
		return err
	}
	sched := scheduler.New(pipeline, gateway, scheduler.Config{
		Interval:     interval,
		Cleanup:      cleanup,
		Retention:    cfg.Retention(),
		InitialDelay: cfg.InitialDelay,
	})
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	logger.Info("Service started",
		"feeds", len(feeds), "storage", cfg.StoreDriver,
		"interval", cfg.FetchInterval, "publishers", dispatcher.Enabled())

	if cfg.HTTPAddr == "" {
		<-ctx.Done()
		logger.Info("Shutting down")
		return nil
	}

	srv := monitor.NewServer(sched, gateway, cfg.StoreDriver)
	if err := srv.ListenAndServe(ctx, cfg.HTTPAddr); err != nil {
		return fmt.Errorf("monitoring server: %w", err)
	}
	logger.Info("Shutting down")
	return nil
}

func newPipeline(ctx context.Context, cfg *config.Config, feeds []string, profiles *sources.Table, gateway *storage.Gateway, dispatcher *publish.Dispatcher) *ingest.Pipeline {
	feedClient := httpclient.NewRestyClient(cfg.FeedTimeout, cfg.UserAgent)
	pageClient := httpclient.NewRestyClient(cfg.PageTimeout, cfg.UserAgent)

	budget := ratelimit.NewBudget(cfg.ScrapeMaxPages)
	pages := scraper.NewPageCache(ctx, cfg.PageCacheTTL)
	resolver := scraper.NewImageResolver(pageClient, profiles, pages, budget)

	return ingest.New(
		feeds,
		rss.NewFetcher(feedClient),
		rss.NewNormalizer(profiles, rss.WithImageResolver(resolver)),
		gateway,
		ingest.WithConcurrency(cfg.ScrapeConcurrency),
		ingest.WithBudget(budget),
		ingest.WithDispatcher(dispatcher),
	)
}

// openStore connects the configured backend, retrying with a fixed backoff.
func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	policy := storage.EvictionPolicy{Capacity: cfg.StoreCapacity, Batch: cfg.StoreEvictBatch}

	var store storage.Store
	connect := func(ctx context.Context) error {
		var err error
		switch cfg.StoreDriver {
		case config.DriverPostgres:
			store, err = storage.NewPostgresStore(ctx, cfg.DatabaseURL)
		case config.DriverBolt:
			store, err = storage.OpenBoltStore(cfg.BoltPath, policy)
		default:
			store = storage.NewMemoryStore(policy)
		}
		return err
	}

	err := retry.Do(ctx, retry.Policy{
		MaxAttempts: cfg.StoreConnectRetries,
		Delay:       cfg.StoreConnectBackoff,
		OnRetry: func(attempt int, err error, wait time.Duration) {
			logger.Warn("Store connection failed, retrying", "driver", cfg.StoreDriver, "attempt", attempt, "wait", wait, "error", err)
		},
	}, connect)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", storage.ErrStoreUnavailable, cfg.StoreDriver, err)
	}
	logger.Info("Connected to store", "driver", cfg.StoreDriver)
	return store, nil
}

// loadFeeds returns RSS_FEEDS followed by the entries of FEEDS_CONFIG_PATH,
// without repeats.
func loadFeeds(cfg *config.Config) ([]string, error) {
	all := append([]string(nil), cfg.Feeds...)
	if cfg.FeedsConfigPath != "" {
		extra, err := rss.LoadFeeds(cfg.FeedsConfigPath)
		if err != nil {
			return nil, err
		}
		all = append(all, extra...)
	}

	seen := make(map[string]struct{}, len(all))
	feeds := all[:0]
	for _, f := range all {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		feeds = append(feeds, f)
	}
	if len(feeds) == 0 {
		return nil, errors.New("no feeds configured")
	}
	return feeds, nil
}

func buildDispatcher(ctx context.Context, path string) (*publish.Dispatcher, error) {
	if path == "" {
		return nil, nil
	}
	cfgs, err := publish.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	pubs, err := publish.DefaultRegistry().Build(ctx, cfgs)
	if err != nil {
		return nil, err
	}
	return publish.NewDispatcher(pubs, publishRetry), nil
}
