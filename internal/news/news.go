package news

import (
	"crypto/md5" //nolint:gosec // content fingerprint, not a security boundary
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
	"unicode"
)

// UnknownAuthor is used when a feed entry names no author.
const UnknownAuthor = "Unknown"

// Duplicate reasons reported by the detector.
const (
	ReasonExactURL       = "exact_url_match"
	ReasonContentHash    = "content_hash_match"
	ReasonTitleSimilarAt = "title_similarity_and_time"
)

// Source describes where an article came from. It is never changed after creation.
type Source struct {
	Name    string `json:"name"`
	Domain  string `json:"domain"`
	FeedURL string `json:"feedUrl"`
}

// Image is a featured or supplementary article image.
type Image struct {
	URL     string `json:"url"`
	Alt     string `json:"alt"`
	Caption string `json:"caption"`
}

// Article is the canonical record produced by ingestion.
type Article struct {
	ID          string `json:"id"`
	ContentHash string `json:"contentHash"`

	Title  string `json:"title"`
	URL    string `json:"url"`
	Author string `json:"author"`
	Source Source `json:"source"`

	PublishedAt   time.Time `json:"publishedAt"`
	Excerpt       string    `json:"excerpt"`
	Content       string    `json:"content"`
	FeaturedImage *Image    `json:"featuredImage"`
	Images        []Image   `json:"images"`
	Categories    []string  `json:"categories"`
	Tags          []string  `json:"tags"`
	CommentCount  int       `json:"commentCount"`

	RelevanceScore float64 `json:"relevanceScore"`

	IsDuplicate     bool    `json:"isDuplicate"`
	DuplicateReason string  `json:"duplicateReason,omitempty"`
	Similarity      float64 `json:"similarity,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HasValidDate reports whether the publish time was parsed from the entry.
func (a Article) HasValidDate() bool {
	return !a.PublishedAt.IsZero()
}

// EnsureKeys fills ID and ContentHash when they are not set yet.
func (a *Article) EnsureKeys() {
	if a.ID == "" {
		a.ID = MakeID(a.URL, a.Title)
	}
	if a.ContentHash == "" {
		a.ContentHash = MakeContentHash(a.Title, a.Excerpt, a.Author)
	}
}

// MakeID derives the stable article identifier from url and title.
func MakeID(url, title string) string {
	sum := sha256.Sum256([]byte(url + title))
	return hex.EncodeToString(sum[:])[:16]
}

// MakeContentHash fingerprints title, excerpt and author independently of the URL.
func MakeContentHash(title, excerpt, author string) string {
	sum := md5.Sum([]byte(normalizeForHash(title + excerpt + author))) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

// normalizeForHash lowercases, drops punctuation and collapses whitespace.
func normalizeForHash(s string) string {
	s = strings.ToLower(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if isWordRune(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// isWordRune matches the ASCII \w class: letters, digits and underscore.
func isWordRune(r rune) bool {
	return r == '_' || ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || ('0' <= r && r <= '9')
}
