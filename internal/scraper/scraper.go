package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/deusflow/feedharvest/internal/cache"
	"github.com/deusflow/feedharvest/internal/httpclient"
	"github.com/deusflow/feedharvest/internal/logger"
	"github.com/deusflow/feedharvest/internal/news"
	"github.com/deusflow/feedharvest/internal/ratelimit"
	"github.com/deusflow/feedharvest/internal/sources"
)

// ErrImageResolution marks a failed image strategy. It never aborts resolution.
var ErrImageResolution = errors.New("image resolution failed")

// MaxImages caps the supplementary images kept per article.
const MaxImages = 5

// PageResult is the cached outcome of one article page fetch.
type PageResult struct {
	Featured *news.Image
}

// PageCache holds page results keyed by article URL.
type PageCache = cache.Cache[PageResult]

// ImageResolver runs the image strategy cascade for feed entries.
type ImageResolver struct {
	client   httpclient.Client
	profiles *sources.Table
	pages    *PageCache
	budget   *ratelimit.Budget
}

// NewImageResolver builds a resolver. A nil client disables page fetches; nil
// pages or budget disable caching or the per-cycle cap.
func NewImageResolver(client httpclient.Client, profiles *sources.Table, pages *PageCache, budget *ratelimit.Budget) *ImageResolver {
	if profiles == nil {
		profiles = sources.Default()
	}
	return &ImageResolver{client: client, profiles: profiles, pages: pages, budget: budget}
}

// NewPageCache returns the cache type consumed by NewImageResolver.
func NewPageCache(ctx context.Context, ttl time.Duration) *PageCache {
	return cache.New[PageResult](ctx, ttl, time.Hour)
}

// Resolve returns the featured image and up to MaxImages unique images for item.
func (r *ImageResolver) Resolve(ctx context.Context, item *gofeed.Item, domain string) (*news.Image, []news.Image) {
	if item == nil {
		return nil, []news.Image{}
	}

	profile := r.profiles.Get(domain)
	base := strings.TrimSpace(item.Link)
	acc := newCollector()

	acc.addAll(inlineImages(item.Content, base))
	acc.addAll(inlineImages(item.Description, base))
	acc.addAll(mediaImages(item, base))
	acc.addAll(enclosureImages(item, base))

	if acc.featured == nil && base != "" && r.client != nil {
		if img, err := r.pageImage(ctx, base, profile.ImageSelectors); err != nil {
			logger.Debug("Page image strategy failed", "url", base, "error", err)
		} else if img != nil {
			acc.add(*img)
		}
	}

	if acc.featured == nil && profile.Placeholder.URL != "" {
		acc.add(news.Image{
			URL:     profile.Placeholder.URL,
			Alt:     profile.Placeholder.Alt,
			Caption: profile.Placeholder.Caption,
		})
	}

	return acc.featured, acc.images
}

// pageImage loads the article page through the cache and the page budget.
func (r *ImageResolver) pageImage(ctx context.Context, pageURL string, selectors []string) (*news.Image, error) {
	if r.pages != nil {
		if res, ok := r.pages.Get(pageURL); ok {
			if r.budget != nil {
				r.budget.RecordCacheHit()
			}
			return res.Featured, nil
		}
	}
	if r.budget != nil {
		r.budget.RecordCacheMiss()
		if !r.budget.Allow() {
			return nil, fmt.Errorf("%w: page budget exhausted", ErrImageResolution)
		}
	}

	img, err := r.fetchPageImage(ctx, pageURL, selectors)
	if err != nil {
		return nil, err
	}
	if r.pages != nil {
		r.pages.Set(pageURL, PageResult{Featured: img})
	}
	return img, nil
}

func (r *ImageResolver) fetchPageImage(ctx context.Context, pageURL string, selectors []string) (*news.Image, error) {
	resp, err := r.client.Get(ctx, pageURL, map[string]string{"Accept": "text/html,application/xhtml+xml"})
	if err != nil {
		return nil, fmt.Errorf("%w: load page: %w", ErrImageResolution, err)
	}
	if !httpclient.IsSuccess(resp) {
		return nil, fmt.Errorf("%w: HTTP error: %d", ErrImageResolution, resp.StatusCode())
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body()))
	if err != nil {
		return nil, fmt.Errorf("%w: parse page: %w", ErrImageResolution, err)
	}
	return extractPageImage(doc, pageURL, selectors), nil
}

// extractPageImage tries og:image, then twitter:image, then the domain selectors.
func extractPageImage(doc *goquery.Document, pageURL string, selectors []string) *news.Image {
	metas := []struct {
		query string
		alt   string
	}{
		{`meta[property="og:image"]`, `meta[property="og:image:alt"]`},
		{`meta[name="twitter:image"]`, `meta[name="twitter:image:alt"]`},
		{`meta[name="twitter:image:src"]`, `meta[name="twitter:image:alt"]`},
		{`meta[property="twitter:image"]`, `meta[property="twitter:image:alt"]`},
	}
	for _, m := range metas {
		content, _ := doc.Find(m.query).First().Attr("content")
		if u := resolveImage(content, pageURL); u != "" {
			alt, _ := doc.Find(m.alt).First().Attr("content")
			if alt = strings.TrimSpace(alt); alt == "" {
				alt = "Article image"
			}
			return &news.Image{URL: u, Alt: alt}
		}
	}

	for _, selector := range selectors {
		var found *news.Image
		doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			src := firstAttr(s, "src", "data-src", "data-lazy-src")
			if u := resolveImage(src, pageURL); u != "" {
				found = &news.Image{
					URL:     u,
					Alt:     strings.TrimSpace(s.AttrOr("alt", "")),
					Caption: strings.TrimSpace(s.AttrOr("title", "")),
				}
				return false
			}
			return true
		})
		if found != nil {
			return found
		}
	}
	return nil
}

// inlineImages extracts img tags from an HTML fragment.
func inlineImages(html, base string) []news.Image {
	if !strings.Contains(html, "<img") {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var out []news.Image
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		u := resolveImage(firstAttr(s, "src", "data-src", "data-lazy-src"), base)
		if u == "" {
			return
		}
		caption := s.AttrOr("title", "")
		if caption == "" {
			caption = s.Next().Filter("figcaption").Text()
		}
		out = append(out, news.Image{
			URL:     u,
			Alt:     strings.TrimSpace(s.AttrOr("alt", "")),
			Caption: strings.TrimSpace(caption),
		})
	})
	return out
}

func firstAttr(s *goquery.Selection, names ...string) string {
	for _, n := range names {
		if v := strings.TrimSpace(s.AttrOr(n, "")); v != "" {
			return v
		}
	}
	return ""
}

// collector keeps the first image as featured and accumulates unique images.
type collector struct {
	featured *news.Image
	images   []news.Image
	seen     map[string]struct{}
}

func newCollector() *collector {
	return &collector{images: []news.Image{}, seen: make(map[string]struct{})}
}

func (c *collector) add(img news.Image) {
	if c.featured == nil {
		f := img
		c.featured = &f
	}
	if _, dup := c.seen[img.URL]; dup || len(c.images) >= MaxImages {
		return
	}
	c.seen[img.URL] = struct{}{}
	c.images = append(c.images, img)
}

func (c *collector) addAll(imgs []news.Image) {
	for _, img := range imgs {
		c.add(img)
	}
}
