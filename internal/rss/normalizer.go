package rss

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/deusflow/feedharvest/internal/news"
	"github.com/deusflow/feedharvest/internal/scraper"
	"github.com/deusflow/feedharvest/internal/sources"
)

var (
	ErrMissingRequiredField = errors.New("missing required field")
	ErrInvalidURL           = errors.New("invalid article url")
)

const maxCategories = 10

var genericAuthorMarkers = []string{"staff", "admin", "editor", "team"}

// ImageResolver finds the featured image and supplementary images of an entry.
type ImageResolver interface {
	Resolve(ctx context.Context, item *gofeed.Item, domain string) (*news.Image, []news.Image)
}

// Normalizer turns raw feed entries into articles.
type Normalizer struct {
	profiles *sources.Table
	images   ImageResolver
	now      func() time.Time
}

// NormalizerOption customises a Normalizer.
type NormalizerOption func(*Normalizer)

// WithImageResolver enables image resolution during normalization.
func WithImageResolver(r ImageResolver) NormalizerOption {
	return func(n *Normalizer) { n.images = r }
}

// WithClock overrides the time source used for recency scoring.
func WithClock(now func() time.Time) NormalizerOption {
	return func(n *Normalizer) { n.now = now }
}

func NewNormalizer(profiles *sources.Table, opts ...NormalizerOption) *Normalizer {
	if profiles == nil {
		profiles = sources.Default()
	}
	n := &Normalizer{profiles: profiles, now: time.Now}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize converts item from feedURL into an article. Entries without a
// title or a usable link return ErrMissingRequiredField or ErrInvalidURL.
func (n *Normalizer) Normalize(ctx context.Context, item *gofeed.Item, feedURL string) (news.Article, error) {
	if item == nil {
		return news.Article{}, fmt.Errorf("%w: empty entry", ErrMissingRequiredField)
	}

	feed, err := url.Parse(feedURL)
	if err != nil || feed.Hostname() == "" {
		return news.Article{}, fmt.Errorf("%w: feed url %q", ErrInvalidURL, feedURL)
	}
	domain := feed.Hostname()

	title := strings.TrimSpace(item.Title)
	if title == "" {
		return news.Article{}, fmt.Errorf("%w: title", ErrMissingRequiredField)
	}

	link := articleLink(item)
	if link == "" {
		return news.Article{}, fmt.Errorf("%w: url", ErrMissingRequiredField)
	}
	if !isAbsoluteHTTP(link) {
		return news.Article{}, fmt.Errorf("%w: %q", ErrInvalidURL, link)
	}

	profile := n.profiles.Get(domain)
	content := item.Content
	if content == "" {
		content = item.Description
	}
	summary := item.Description
	if summary == "" {
		summary = item.Content
	}

	a := news.Article{
		Title: title,
		URL:   link,
		Source: news.Source{
			Name:    n.profiles.DisplayName(domain),
			Domain:  domain,
			FeedURL: feedURL,
		},
		Author:       normalizeAuthor(rawAuthor(item), profile),
		PublishedAt:  publishedAt(item),
		Excerpt:      excerpt(summary, excerptLength),
		Content:      content,
		Images:       []news.Image{},
		Categories:   normalizeCategories(item.Categories),
		Tags:         []string{},
		CommentCount: commentCount(item),
	}

	if n.images != nil {
		featured, images := n.images.Resolve(ctx, item, domain)
		a.FeaturedImage = featured
		if images != nil {
			a.Images = images
		}
	}

	a.RelevanceScore = n.score(item, content, a.PublishedAt, n.profiles.Trusted(domain))
	a.EnsureKeys()
	return a, nil
}

// score computes the heuristic relevance in [0,1].
func (n *Normalizer) score(item *gofeed.Item, content string, published time.Time, trusted bool) float64 {
	score := 0.5

	if !published.IsZero() {
		days := int(n.now().Sub(published).Hours() / 24)
		switch {
		case days <= 1:
			score += 0.3
		case days <= 7:
			score += 0.2
		case days <= 30:
			score += 0.1
		}
	}

	if strings.Contains(content, "<img") {
		score += 0.1
	}
	if len(item.Categories) > 0 {
		score += 0.1
	}
	if trusted {
		score += 0.1
	}
	if scraper.HasMedia(item) {
		score += 0.1
	}

	return min(max(score, 0), 1)
}

func articleLink(item *gofeed.Item) string {
	if link := strings.TrimSpace(item.Link); link != "" {
		return link
	}
	if guid := strings.TrimSpace(item.GUID); isAbsoluteHTTP(guid) {
		return guid
	}
	return ""
}

func isAbsoluteHTTP(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func rawAuthor(item *gofeed.Item) string {
	if item.DublinCoreExt != nil {
		for _, c := range item.DublinCoreExt.Creator {
			if c = strings.TrimSpace(c); c != "" {
				return c
			}
		}
	}
	if item.Author != nil && strings.TrimSpace(item.Author.Name) != "" {
		return item.Author.Name
	}
	for _, p := range item.Authors {
		if p != nil && strings.TrimSpace(p.Name) != "" {
			return p.Name
		}
	}
	return ""
}

func normalizeAuthor(author string, profile sources.Profile) string {
	author = strings.TrimSpace(author)
	if author == "" {
		return news.UnknownAuthor
	}

	for _, alias := range profile.GenericAuthors {
		if alias != "" && strings.Contains(author, alias) {
			return profile.Team()
		}
	}
	lower := strings.ToLower(author)
	for _, marker := range genericAuthorMarkers {
		if strings.Contains(lower, marker) {
			return profile.Team()
		}
	}
	return author
}

// publishedAt returns the parsed publish date, then the update date, else the
// zero time.
func publishedAt(item *gofeed.Item) time.Time {
	if item.PublishedParsed != nil {
		return item.PublishedParsed.UTC()
	}
	if item.UpdatedParsed != nil {
		return item.UpdatedParsed.UTC()
	}
	return time.Time{}
}

func normalizeCategories(raw []string) []string {
	out := make([]string, 0, min(len(raw), maxCategories))
	seen := make(map[string]struct{}, len(raw))
	for _, c := range raw {
		c = strings.TrimSpace(c)
		if c == "" || strings.EqualFold(c, "Uncategorized") {
			continue
		}
		key := strings.ToLower(c)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
		if len(out) == maxCategories {
			break
		}
	}
	return out
}

func commentCount(item *gofeed.Item) int {
	slash, ok := item.Extensions["slash"]
	if !ok {
		return 0
	}
	for _, e := range slash["comments"] {
		if n, err := strconv.Atoi(strings.TrimSpace(e.Value)); err == nil && n >= 0 {
			return n
		}
	}
	return 0
}
