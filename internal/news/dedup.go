package news

import (
	"math"
	"sort"
	"strings"
	"time"
)

const (
	DefaultSimilarityThreshold = 0.8
	DefaultTimeWindow          = 24 * time.Hour
)

// Verdict is the outcome of comparing two articles.
type Verdict struct {
	IsDuplicate bool
	Reason      string
	Similarity  float64
}

// Group is one cluster of articles describing the same story.
//
// Leader is the earliest article in scan order and is the one that keeps
// IsDuplicate=false. Best is the highest scored member (latest publish time on
// ties) and is only informational.
type Group struct {
	Leader  Article
	Best    Article
	Members []Article
}

// Partition is the result of running the detector over one batch.
type Partition struct {
	Unique     []Article
	Duplicates []Article
	Groups     []Group
}

// All returns unique articles followed by duplicates, the order used for persistence.
func (p Partition) All() []Article {
	out := make([]Article, 0, len(p.Unique)+len(p.Duplicates))
	out = append(out, p.Unique...)
	return append(out, p.Duplicates...)
}

// Detector finds exact and near-duplicate articles within a batch.
type Detector struct {
	threshold float64
	window    time.Duration
}

// Option customises a Detector.
type Option func(*Detector)

// WithThreshold sets the minimum title similarity for a fuzzy match.
func WithThreshold(t float64) Option {
	return func(d *Detector) { d.threshold = t }
}

// WithTimeWindow sets the maximum publish time distance for a fuzzy match.
func WithTimeWindow(w time.Duration) Option {
	return func(d *Detector) { d.window = w }
}

func NewDetector(opts ...Option) *Detector {
	d := &Detector{threshold: DefaultSimilarityThreshold, window: DefaultTimeWindow}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Compare checks a against b. Rules are evaluated in order and the first match wins.
func (d *Detector) Compare(a, b Article) Verdict {
	if a.URL == b.URL {
		return Verdict{IsDuplicate: true, Reason: ReasonExactURL, Similarity: 1.0}
	}

	if hashOf(a) == hashOf(b) {
		return Verdict{IsDuplicate: true, Reason: ReasonContentHash, Similarity: 1.0}
	}

	sim := Similarity(strings.ToLower(a.Title), strings.ToLower(b.Title))
	if sim >= d.threshold && absDuration(a.PublishedAt.Sub(b.PublishedAt)) <= d.window {
		return Verdict{IsDuplicate: true, Reason: ReasonTitleSimilarAt, Similarity: sim}
	}

	return Verdict{Similarity: sim}
}

// Partition annotates duplicates in articles and splits them into unique and
// duplicate sets. The input slice is not modified.
func (d *Detector) Partition(articles []Article) Partition {
	items := make([]Article, len(articles))
	copy(items, articles)
	for i := range items {
		items[i].IsDuplicate = false
		items[i].DuplicateReason = ""
		items[i].Similarity = 0
	}

	var groups []Group
	for i := range items {
		if items[i].IsDuplicate {
			continue
		}

		members := []Article{items[i]}
		for j := i + 1; j < len(items); j++ {
			if items[j].IsDuplicate {
				continue
			}
			v := d.Compare(items[i], items[j])
			if !v.IsDuplicate {
				continue
			}
			items[j].IsDuplicate = true
			items[j].DuplicateReason = v.Reason
			items[j].Similarity = v.Similarity
			members = append(members, items[j])
		}

		if len(members) > 1 {
			groups = append(groups, Group{
				Leader:  items[i],
				Best:    bestOf(members),
				Members: members,
			})
		}
	}

	p := Partition{Groups: groups}
	for _, a := range items {
		if a.IsDuplicate {
			p.Duplicates = append(p.Duplicates, a)
		} else {
			p.Unique = append(p.Unique, a)
		}
	}
	return p
}

// bestOf picks the highest relevance score, then the most recent publish time.
func bestOf(members []Article) Article {
	ranked := make([]Article, len(members))
	copy(ranked, members)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].RelevanceScore != ranked[j].RelevanceScore {
			return ranked[i].RelevanceScore > ranked[j].RelevanceScore
		}
		return ranked[i].PublishedAt.After(ranked[j].PublishedAt)
	})
	return ranked[0]
}

func hashOf(a Article) string {
	if a.ContentHash != "" {
		return a.ContentHash
	}
	return MakeContentHash(a.Title, a.Excerpt, a.Author)
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		if d == math.MinInt64 {
			return math.MaxInt64
		}
		return -d
	}
	return d
}
