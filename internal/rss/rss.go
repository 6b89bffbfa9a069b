package rss

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mmcdole/gofeed"
	"gopkg.in/yaml.v3"

	"github.com/deusflow/feedharvest/internal/httpclient"
	"github.com/deusflow/feedharvest/internal/logger"
)

// ErrFetchFailure marks a feed that could not be downloaded or parsed.
var ErrFetchFailure = errors.New("feed fetch failed")

// FeedsConfig is YAML config structure
// feeds:
//   - https://...
type FeedsConfig struct {
	Feeds []string `yaml:"feeds"`
}

// LoadFeeds reads RSS feeds list from YAML file
func LoadFeeds(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg FeedsConfig
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode feeds file %s: %w", path, err)
	}

	feeds := make([]string, 0, len(cfg.Feeds))
	for _, u := range cfg.Feeds {
		if u = strings.TrimSpace(u); u != "" {
			feeds = append(feeds, u)
		}
	}
	return feeds, nil
}

// Fetcher downloads and parses feeds.
type Fetcher struct {
	client httpclient.Client
}

func NewFetcher(client httpclient.Client) *Fetcher {
	return &Fetcher{client: client}
}

// FetchFeed performs one GET for feedURL and parses the body as RSS, Atom or
// JSON Feed. All failures wrap ErrFetchFailure.
func (f *Fetcher) FetchFeed(ctx context.Context, feedURL string) ([]*gofeed.Item, error) {
	resp, err := f.client.Get(ctx, feedURL, map[string]string{
		"Accept": "application/rss+xml, application/atom+xml, application/xml, text/xml;q=0.9, */*;q=0.8",
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFetchFailure, feedURL, err)
	}
	if !httpclient.IsSuccess(resp) {
		return nil, fmt.Errorf("%w: %s: status %d", ErrFetchFailure, feedURL, resp.StatusCode())
	}

	feed, err := gofeed.NewParser().ParseString(string(resp.Body()))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: parse: %w", ErrFetchFailure, feedURL, err)
	}
	return feed.Items, nil
}

// Fetch is FetchFeed that never fails: errors are logged and an empty slice
// is returned so one broken feed cannot abort a cycle.
func (f *Fetcher) Fetch(ctx context.Context, feedURL string) []*gofeed.Item {
	items, err := f.FetchFeed(ctx, feedURL)
	if err != nil {
		logger.Error("Error fetching RSS feed", "feed", feedURL, "error", err)
		return []*gofeed.Item{}
	}
	logger.Info("Loaded feed entries", "feed", feedURL, "count", len(items))
	return items
}
