package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/deusflow/feedharvest/internal/news"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time           { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func testArticle(url, title string, published time.Time) news.Article {
	a := news.Article{
		Title:       title,
		URL:         url,
		Author:      "Unknown",
		Excerpt:     "excerpt of " + title,
		Source:      news.Source{Name: "Example", Domain: "example.com", FeedURL: "https://example.com/feed"},
		PublishedAt: published,
		Categories:  []string{"IoT"},
		Images:      []news.Image{},
	}
	a.EnsureKeys()
	return a
}

func newTestGateway(c *clock) *Gateway {
	return NewGateway(NewMemoryStore(EvictionPolicy{}), WithNow(c.now))
}

func TestGateway_InsertThenSkipWithinWindow(t *testing.T) {
	c := &clock{t: t0}
	g := newTestGateway(c)
	a := testArticle("https://example.com/1", "First", t0)

	res := g.Save(context.Background(), []news.Article{a})
	if res.Saved != 1 || res.TotalProcessed != 1 || len(res.Inserted) != 1 {
		t.Fatalf("first save = %+v", res)
	}
	stored := res.Inserted[0]
	if !stored.CreatedAt.Equal(t0) || !stored.UpdatedAt.Equal(t0) {
		t.Errorf("timestamps = %v / %v", stored.CreatedAt, stored.UpdatedAt)
	}

	c.advance(30 * time.Second)
	res = g.Save(context.Background(), []news.Article{a})
	if res.Skipped != 1 || res.Saved != 0 || res.Updated != 0 {
		t.Fatalf("re-save within window = %+v", res)
	}

	c.advance(30 * time.Second)
	res = g.Save(context.Background(), []news.Article{a})
	if res.Skipped != 1 {
		t.Fatalf("re-save at exactly 60s = %+v", res)
	}
}

func TestGateway_UpdateAfterWindow(t *testing.T) {
	c := &clock{t: t0}
	g := newTestGateway(c)
	a := testArticle("https://example.com/1", "First", t0)
	g.Save(context.Background(), []news.Article{a})

	c.advance(2 * time.Minute)
	changed := a
	changed.Excerpt = "a new excerpt"
	changed.ContentHash = ""
	changed.Source = news.Source{Name: "Other", Domain: "other.example"}
	changed.RelevanceScore = 0.9

	res := g.Save(context.Background(), []news.Article{changed})
	if res.Updated != 1 {
		t.Fatalf("save after window = %+v", res)
	}

	page, err := g.GetArticles(context.Background(), Filter{})
	if err != nil || len(page.Articles) != 1 {
		t.Fatalf("GetArticles = %+v, %v", page, err)
	}
	got := page.Articles[0]
	if got.Excerpt != "a new excerpt" || got.RelevanceScore != 0.9 {
		t.Errorf("mutable fields not updated: %+v", got)
	}
	if got.Source.Domain != "example.com" || got.ID != a.ID || !got.CreatedAt.Equal(t0) {
		t.Errorf("identity fields changed: %+v", got)
	}
	if !got.UpdatedAt.After(got.CreatedAt) {
		t.Errorf("updatedAt %v not after createdAt %v", got.UpdatedAt, got.CreatedAt)
	}
}

func TestGateway_MatchesByContentHash(t *testing.T) {
	c := &clock{t: t0}
	g := newTestGateway(c)
	a := testArticle("https://example.com/1", "Same story", t0)
	b := testArticle("https://mirror.example/1", "Same story", t0)
	if a.ContentHash != b.ContentHash {
		t.Fatal("expected equal hashes")
	}

	res := g.Save(context.Background(), []news.Article{a, b})
	if res.Saved != 1 || res.Skipped != 1 {
		t.Fatalf("save = %+v", res)
	}
	if n, _ := g.Count(context.Background()); n != 1 {
		t.Errorf("count = %d", n)
	}
}

type failingStore struct {
	*MemoryStore
	insertErr error
}

func (f failingStore) Insert(ctx context.Context, a news.Article) error {
	if a.URL == "https://example.com/bad" {
		return f.insertErr
	}
	return f.MemoryStore.Insert(ctx, a)
}

func TestGateway_ErrorsCountAsSkipped(t *testing.T) {
	c := &clock{t: t0}
	store := failingStore{MemoryStore: NewMemoryStore(EvictionPolicy{}), insertErr: ErrConflict}
	g := NewGateway(store, WithNow(c.now))

	res := g.Save(context.Background(), []news.Article{
		testArticle("https://example.com/bad", "Bad", t0),
		testArticle("https://example.com/good", "Good", t0),
	})
	if res.Saved != 1 || res.Skipped != 1 || res.TotalProcessed != 2 {
		t.Fatalf("save = %+v", res)
	}
}

func TestGateway_CleanupRetention(t *testing.T) {
	c := &clock{t: t0}
	g := newTestGateway(c)
	day := 24 * time.Hour

	g.Save(context.Background(), []news.Article{
		testArticle("https://example.com/old", "Old", t0.Add(-91*day)),
		testArticle("https://example.com/recent", "Recent", t0.Add(-89*day)),
	})

	n, err := g.Cleanup(context.Background(), 90*day)
	if err != nil || n != 1 {
		t.Fatalf("Cleanup = %d, %v", n, err)
	}
	page, _ := g.GetArticles(context.Background(), Filter{IncludeDuplicates: true})
	if len(page.Articles) != 1 || page.Articles[0].URL != "https://example.com/recent" {
		t.Fatalf("remaining = %+v", page.Articles)
	}
}

func TestGateway_StopsOnCancelledContext(t *testing.T) {
	c := &clock{t: t0}
	g := newTestGateway(c)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := g.Save(ctx, []news.Article{testArticle("https://example.com/1", "x", t0)})
	if res.TotalProcessed != 0 {
		t.Fatalf("save = %+v", res)
	}
}

func TestMemoryStore_UpdateUnknown(t *testing.T) {
	m := NewMemoryStore(EvictionPolicy{})
	err := m.Update(context.Background(), testArticle("https://example.com/x", "x", t0))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}
