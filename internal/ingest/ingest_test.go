package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/deusflow/feedharvest/internal/httpclient"
	"github.com/deusflow/feedharvest/internal/news"
	"github.com/deusflow/feedharvest/internal/publish"
	"github.com/deusflow/feedharvest/internal/ratelimit"
	"github.com/deusflow/feedharvest/internal/retry"
	"github.com/deusflow/feedharvest/internal/rss"
	"github.com/deusflow/feedharvest/internal/sources"
	"github.com/deusflow/feedharvest/internal/storage"
)

const feedTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>%s</title>
<item><title>%s</title><link>%s</link><description>%s</description><pubDate>%s</pubDate><category>Sensors</category></item>
</channel></rss>`

func feedServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, feedTemplate, "A", "Sensor Breakthrough", "https://a.example/x",
			"Researchers announce a new sensor.", "Mon, 02 Mar 2026 10:00:00 GMT")
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, feedTemplate, "B", "Sensor Breakthru", "https://b.example/y",
			"A sensor milestone was reached.", "Mon, 02 Mar 2026 12:00:00 GMT")
	})
	mux.HandleFunc("/down", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fixedClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fixedClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recorder struct {
	mu     sync.Mutex
	events []publish.Event
}

func (r *recorder) ID() string { return "recorder" }

func (r *recorder) Publish(_ context.Context, evt publish.Event) error {
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
	return nil
}

func TestPipeline_SimilarTitlesAcrossFeeds(t *testing.T) {
	srv := feedServer(t)
	ctx := context.Background()
	clock := &fixedClock{t: time.Date(2026, 3, 2, 13, 0, 0, 0, time.UTC)}

	store := storage.NewMemoryStore(storage.EvictionPolicy{})
	gw := storage.NewGateway(store, storage.WithNow(clock.now))
	rec := &recorder{}
	budget := ratelimit.NewBudget(10)

	p := New(
		[]string{srv.URL + "/a", srv.URL + "/b", srv.URL + "/down"},
		rss.NewFetcher(httpclient.NewRestyClient(2*time.Second, "")),
		rss.NewNormalizer(sources.Default(), rss.WithClock(clock.now)),
		gw,
		WithDispatcher(publish.NewDispatcher([]publish.Publisher{rec}, retry.Policy{MaxAttempts: 1})),
		WithBudget(budget),
	)

	res, err := p.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.FeedsTotal != 3 || res.FeedsFailed != 1 {
		t.Errorf("feeds = %d/%d failed", res.FeedsFailed, res.FeedsTotal)
	}
	if res.Normalized != 2 || res.Unique != 1 || res.Duplicates != 1 || res.Groups != 1 {
		t.Errorf("result = %+v", res)
	}
	if res.Saved != 2 || res.Published != 1 {
		t.Errorf("saved=%d published=%d", res.Saved, res.Published)
	}

	page, err := gw.GetArticles(ctx, storage.Filter{IncludeDuplicates: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Articles) != 2 {
		t.Fatalf("stored %d articles", len(page.Articles))
	}
	byURL := map[string]news.Article{}
	for _, a := range page.Articles {
		byURL[a.URL] = a
	}
	if first := byURL["https://a.example/x"]; first.IsDuplicate {
		t.Errorf("leader flagged as duplicate: %+v", first)
	}
	second := byURL["https://b.example/y"]
	if !second.IsDuplicate || second.DuplicateReason != news.ReasonTitleSimilarAt || second.Similarity < 0.8 {
		t.Errorf("second = dup:%v reason:%q sim:%v", second.IsDuplicate, second.DuplicateReason, second.Similarity)
	}
	if len(rec.events) != 1 || rec.events[0].Article.URL != "https://a.example/x" {
		t.Errorf("events = %+v", rec.events)
	}

	// Immediate re-ingest is a no-op.
	clock.advance(30 * time.Second)
	res, err = p.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Saved != 0 || res.Updated != 0 || res.Skipped != 2 {
		t.Errorf("re-ingest = %+v", res)
	}

	clock.advance(time.Minute)
	res, _ = p.Run(ctx)
	if res.Updated != 2 {
		t.Errorf("re-ingest after window = %+v", res)
	}
}

func TestPipeline_AllFeedsFailed(t *testing.T) {
	srv := feedServer(t)
	p := New(
		[]string{srv.URL + "/down"},
		rss.NewFetcher(httpclient.NewRestyClient(time.Second, "")),
		rss.NewNormalizer(nil),
		storage.NewGateway(storage.NewMemoryStore(storage.EvictionPolicy{})),
	)
	res, err := p.Run(context.Background())
	if !errors.Is(err, ErrAllFeedsFailed) {
		t.Fatalf("err = %v", err)
	}
	if res.FeedsFailed != 1 || res.Saved != 0 {
		t.Errorf("result = %+v", res)
	}
}

type staticSource map[string][]*gofeed.Item

func (s staticSource) FetchFeed(_ context.Context, url string) ([]*gofeed.Item, error) {
	return s[url], nil
}

// slowNormalizer finishes earlier entries last to exercise slot ordering.
type slowNormalizer struct {
	mu     sync.Mutex
	active int
	peak   int
}

func (n *slowNormalizer) Normalize(_ context.Context, item *gofeed.Item, _ string) (news.Article, error) {
	n.mu.Lock()
	n.active++
	if n.active > n.peak {
		n.peak = n.active
	}
	n.mu.Unlock()
	defer func() {
		n.mu.Lock()
		n.active--
		n.mu.Unlock()
	}()

	if item.Title == "" {
		return news.Article{}, rss.ErrMissingRequiredField
	}
	time.Sleep(time.Duration(10-len(item.Title)) * 3 * time.Millisecond)
	a := news.Article{Title: item.Title, URL: item.Link, PublishedAt: time.Now()}
	a.EnsureKeys()
	return a, nil
}

func TestPipeline_NormalizeKeepsFeedOrder(t *testing.T) {
	var items []*gofeed.Item
	titles := []string{"a", "bb", "", "ccc", "dddd", "eeeee", "ffffff"}
	for i, title := range titles {
		items = append(items, &gofeed.Item{Title: title, Link: fmt.Sprintf("https://o.example/%d", i)})
	}
	norm := &slowNormalizer{}
	p := New([]string{"feed"}, staticSource{"feed": items}, norm,
		storage.NewGateway(storage.NewMemoryStore(storage.EvictionPolicy{})), WithConcurrency(2))

	got, failed := p.normalizeFeed(context.Background(), "feed", items)
	if failed != 1 {
		t.Errorf("failed = %d", failed)
	}
	want := []string{"a", "bb", "ccc", "dddd", "eeeee", "ffffff"}
	if len(got) != len(want) {
		t.Fatalf("got %d articles", len(got))
	}
	for i, a := range got {
		if a.Title != want[i] {
			t.Errorf("article[%d] = %q, want %q", i, a.Title, want[i])
		}
	}
	if norm.peak > 2 {
		t.Errorf("peak concurrency = %d", norm.peak)
	}
}
