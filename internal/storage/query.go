package storage

import (
	"sort"
	"strings"
	"time"

	"github.com/deusflow/feedharvest/internal/news"
)

const (
	DefaultPageSize    = 20
	MaxPageSize        = 100
	DefaultTopCategory = 50
)

// Filter selects articles for GetArticles. Zero values mean "no constraint".
type Filter struct {
	Page              int
	Limit             int
	Source            string
	Category          string
	Author            string
	StartDate         time.Time
	EndDate           time.Time
	Search            string
	IncludeDuplicates bool
}

// Normalized applies paging defaults and bounds.
func (f Filter) Normalized() Filter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = DefaultPageSize
	}
	if f.Limit > MaxPageSize {
		f.Limit = MaxPageSize
	}
	f.Source = strings.TrimSpace(f.Source)
	f.Category = strings.TrimSpace(f.Category)
	f.Author = strings.TrimSpace(f.Author)
	if strings.EqualFold(f.Author, news.UnknownAuthor) {
		f.Author = ""
	}
	f.Search = strings.TrimSpace(f.Search)
	return f
}

func (f Filter) offset() int {
	return (f.Page - 1) * f.Limit
}

// Pagination describes one page of a result set.
type Pagination struct {
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Pages int   `json:"pages"`
	Limit int   `json:"limit"`
}

func newPagination(total int64, f Filter) Pagination {
	pages := int((total + int64(f.Limit) - 1) / int64(f.Limit))
	return Pagination{Total: total, Page: f.Page, Pages: pages, Limit: f.Limit}
}

// Page is one page of articles.
type Page struct {
	Articles   []news.Article `json:"articles"`
	Pagination Pagination     `json:"pagination"`
}

// matches evaluates f against a in process.
func (f Filter) matches(a news.Article) bool {
	if !f.IncludeDuplicates && a.IsDuplicate {
		return false
	}
	if f.Source != "" && a.Source.Domain != f.Source {
		return false
	}
	if f.Category != "" && !anyContainsFold(a.Categories, f.Category) {
		return false
	}
	if f.Author != "" && !containsFold(a.Author, f.Author) {
		return false
	}
	if !f.StartDate.IsZero() && a.PublishedAt.Before(f.StartDate) {
		return false
	}
	if !f.EndDate.IsZero() && a.PublishedAt.After(f.EndDate) {
		return false
	}
	if f.Search != "" {
		if !containsFold(a.Title, f.Search) && !containsFold(a.Excerpt, f.Search) && !anyContainsFold(a.Categories, f.Search) {
			return false
		}
	}
	return true
}

// filterArticles applies f, sorts by publish time descending and pages.
func filterArticles(all []news.Article, f Filter) Page {
	f = f.Normalized()

	matched := make([]news.Article, 0, len(all))
	for _, a := range all {
		if f.matches(a) {
			matched = append(matched, a)
		}
	}
	sortNewestFirst(matched)

	total := int64(len(matched))
	start := min(f.offset(), len(matched))
	end := min(start+f.Limit, len(matched))

	return Page{
		Articles:   matched[start:end],
		Pagination: newPagination(total, f),
	}
}

func sortNewestFirst(articles []news.Article) {
	sort.SliceStable(articles, func(i, j int) bool {
		if !articles[i].PublishedAt.Equal(articles[j].PublishedAt) {
			return articles[i].PublishedAt.After(articles[j].PublishedAt)
		}
		return articles[i].ID < articles[j].ID
	})
}

func sourcesStats(all []news.Article) []SourceStat {
	byDomain := make(map[string]*SourceStat)
	for _, a := range all {
		if a.IsDuplicate {
			continue
		}
		s, ok := byDomain[a.Source.Domain]
		if !ok {
			s = &SourceStat{Domain: a.Source.Domain, Name: a.Source.Name}
			byDomain[a.Source.Domain] = s
		}
		s.Count++
		if a.PublishedAt.After(s.LatestArticle) {
			s.LatestArticle = a.PublishedAt
		}
	}

	out := make([]SourceStat, 0, len(byDomain))
	for _, s := range byDomain {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Domain < out[j].Domain
	})
	return out
}

func categoriesStats(all []news.Article, limit int) []CategoryStat {
	counts := make(map[string]int64)
	for _, a := range all {
		if a.IsDuplicate {
			continue
		}
		for _, c := range a.Categories {
			counts[c]++
		}
	}

	out := make([]CategoryStat, 0, len(counts))
	for c, n := range counts {
		out = append(out, CategoryStat{Category: c, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Category < out[j].Category
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func anyContainsFold(values []string, sub string) bool {
	for _, v := range values {
		if containsFold(v, sub) {
			return true
		}
	}
	return false
}
