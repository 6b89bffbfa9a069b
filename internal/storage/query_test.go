package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/deusflow/feedharvest/internal/news"
)

func seedStore(t *testing.T) *MemoryStore {
	t.Helper()
	m := NewMemoryStore(EvictionPolicy{})
	ctx := context.Background()

	items := []news.Article{
		{Title: "LoRaWAN rollout", URL: "https://a.example/1", Author: "Jane Roe", Excerpt: "city wide network",
			Source: news.Source{Name: "A", Domain: "a.example"}, PublishedAt: t0.Add(-1 * time.Hour), Categories: []string{"Networks", "LPWAN"}},
		{Title: "Chip shortage", URL: "https://a.example/2", Author: "Unknown", Excerpt: "supply update",
			Source: news.Source{Name: "A", Domain: "a.example"}, PublishedAt: t0.Add(-2 * time.Hour), Categories: []string{"Semiconductors"}},
		{Title: "Smart meters", URL: "https://b.example/1", Author: "John Poe", Excerpt: "utility lpwan deployment",
			Source: news.Source{Name: "B", Domain: "b.example"}, PublishedAt: t0.Add(-3 * time.Hour), Categories: []string{"Energy"}},
		{Title: "LoRaWAN rollout again", URL: "https://b.example/2", Author: "John Poe", Excerpt: "dup",
			Source: news.Source{Name: "B", Domain: "b.example"}, PublishedAt: t0.Add(-4 * time.Hour), Categories: []string{"Networks"},
			IsDuplicate: true, DuplicateReason: news.ReasonTitleSimilarAt},
	}
	for _, a := range items {
		a.EnsureKeys()
		if err := m.Insert(ctx, a); err != nil {
			t.Fatal(err)
		}
	}
	return m
}

func TestQuery_Filters(t *testing.T) {
	m := seedStore(t)
	tests := []struct {
		name string
		f    Filter
		want []string
	}{
		{"default excludes duplicates", Filter{}, []string{"https://a.example/1", "https://a.example/2", "https://b.example/1"}},
		{"include duplicates", Filter{IncludeDuplicates: true}, []string{"https://a.example/1", "https://a.example/2", "https://b.example/1", "https://b.example/2"}},
		{"source exact", Filter{Source: "b.example"}, []string{"https://b.example/1"}},
		{"category substring", Filter{Category: "net"}, []string{"https://a.example/1"}},
		{"author substring", Filter{Author: "poe"}, []string{"https://b.example/1"}},
		{"author unknown ignored", Filter{Author: "Unknown"}, []string{"https://a.example/1", "https://a.example/2", "https://b.example/1"}},
		{"date range inclusive", Filter{StartDate: t0.Add(-2 * time.Hour), EndDate: t0.Add(-1 * time.Hour)}, []string{"https://a.example/1", "https://a.example/2"}},
		{"search title", Filter{Search: "chip"}, []string{"https://a.example/2"}},
		{"search excerpt and categories", Filter{Search: "LPWAN"}, []string{"https://a.example/1", "https://b.example/1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := m.Query(context.Background(), tt.f)
			if err != nil {
				t.Fatal(err)
			}
			if len(page.Articles) != len(tt.want) {
				t.Fatalf("got %d articles, want %d", len(page.Articles), len(tt.want))
			}
			for i, a := range page.Articles {
				if a.URL != tt.want[i] {
					t.Errorf("article[%d] = %s, want %s", i, a.URL, tt.want[i])
				}
			}
		})
	}
}

func TestQuery_Pagination(t *testing.T) {
	m := NewMemoryStore(EvictionPolicy{})
	for i := 0; i < 45; i++ {
		a := news.Article{Title: fmt.Sprintf("t%d", i), URL: fmt.Sprintf("https://p.example/%d", i), PublishedAt: t0.Add(-time.Duration(i) * time.Minute)}
		a.EnsureKeys()
		if err := m.Insert(context.Background(), a); err != nil {
			t.Fatal(err)
		}
	}

	page, _ := m.Query(context.Background(), Filter{Page: 3})
	if page.Pagination != (Pagination{Total: 45, Page: 3, Pages: 3, Limit: 20}) {
		t.Errorf("pagination = %+v", page.Pagination)
	}
	if len(page.Articles) != 5 || page.Articles[0].URL != "https://p.example/40" {
		t.Errorf("page 3 = %d articles", len(page.Articles))
	}

	page, _ = m.Query(context.Background(), Filter{Limit: 500})
	if page.Pagination.Limit != MaxPageSize || len(page.Articles) != 45 {
		t.Errorf("limit clamp = %+v", page.Pagination)
	}

	page, _ = m.Query(context.Background(), Filter{Page: 9})
	if len(page.Articles) != 0 || page.Pagination.Total != 45 {
		t.Errorf("out of range page = %+v", page.Pagination)
	}
}

func TestStats(t *testing.T) {
	m := seedStore(t)

	sources, _ := m.SourcesStats(context.Background())
	if len(sources) != 2 || sources[0].Domain != "a.example" || sources[0].Count != 2 || sources[1].Count != 1 {
		t.Fatalf("sources = %+v", sources)
	}
	if !sources[0].LatestArticle.Equal(t0.Add(-time.Hour)) {
		t.Errorf("latest = %v", sources[0].LatestArticle)
	}

	cats, _ := m.CategoriesStats(context.Background(), DefaultTopCategory)
	if len(cats) != 4 {
		t.Fatalf("categories = %+v", cats)
	}
	for _, c := range cats {
		if c.Category == "Networks" && c.Count != 1 {
			t.Errorf("duplicates counted in categories: %+v", c)
		}
	}
}

func TestCategoriesStats_Top50(t *testing.T) {
	m := NewMemoryStore(EvictionPolicy{})
	for i := 0; i < 60; i++ {
		a := news.Article{Title: fmt.Sprintf("t%d", i), URL: fmt.Sprintf("https://c.example/%d", i), PublishedAt: t0,
			Categories: []string{fmt.Sprintf("cat-%02d", i), "common"}}
		a.EnsureKeys()
		if err := m.Insert(context.Background(), a); err != nil {
			t.Fatal(err)
		}
	}
	cats, _ := m.CategoriesStats(context.Background(), DefaultTopCategory)
	if len(cats) != 50 || cats[0].Category != "common" || cats[0].Count != 60 {
		t.Fatalf("top = %+v (len %d)", cats[0], len(cats))
	}
}

func TestMemoryStore_Eviction(t *testing.T) {
	m := NewMemoryStore(EvictionPolicy{Capacity: 10, Batch: 3})
	for i := 0; i < 11; i++ {
		a := news.Article{Title: fmt.Sprintf("t%d", i), URL: fmt.Sprintf("https://e.example/%d", i), PublishedAt: t0.Add(time.Duration(i) * time.Hour)}
		a.EnsureKeys()
		if err := m.Insert(context.Background(), a); err != nil {
			t.Fatal(err)
		}
	}
	if n, _ := m.Count(context.Background()); n != 8 {
		t.Fatalf("count = %d, want 8", n)
	}
	for i := 0; i < 3; i++ {
		if _, found, _ := m.FindByURLOrHash(context.Background(), fmt.Sprintf("https://e.example/%d", i), ""); found {
			t.Errorf("article %d should have been evicted", i)
		}
	}
}

func TestMemoryStore_InsertConflict(t *testing.T) {
	m := NewMemoryStore(EvictionPolicy{})
	a := news.Article{Title: "x", URL: "https://x.example/1", PublishedAt: t0}
	a.EnsureKeys()
	if err := m.Insert(context.Background(), a); err != nil {
		t.Fatal(err)
	}
	b := a
	b.ID = "different"
	if err := m.Insert(context.Background(), b); !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}
