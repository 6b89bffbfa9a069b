package ratelimit

import (
	"sync"

	"github.com/deusflow/feedharvest/internal/logger"
)

// Budget caps how many article pages may be fetched per ingestion cycle.
// A max of zero or less disables the cap.
type Budget struct {
	mu          sync.Mutex
	max         int
	used        int
	denied      int
	cacheHits   int
	cacheMisses int
}

func NewBudget(limit int) *Budget {
	return &Budget{max: limit}
}

// Allow consumes one page fetch if the budget has room.
func (b *Budget) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.max > 0 && b.used >= b.max {
		if b.denied == 0 {
			logger.Warn("Page fetch budget exhausted", "used", b.used, "limit", b.max)
		}
		b.denied++
		return false
	}
	b.used++
	return true
}

// RecordCacheHit counts a page lookup served from cache.
func (b *Budget) RecordCacheHit() {
	b.mu.Lock()
	b.cacheHits++
	b.mu.Unlock()
}

// RecordCacheMiss counts a page lookup that had to go to the network.
func (b *Budget) RecordCacheMiss() {
	b.mu.Lock()
	b.cacheMisses++
	b.mu.Unlock()
}

// Reset starts a new cycle, logging the previous cycle's usage.
func (b *Budget) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.used > 0 || b.cacheHits > 0 {
		logger.Debug("Page fetch budget reset",
			"used", b.used, "limit", b.max, "denied", b.denied,
			"cache_hits", b.cacheHits, "cache_misses", b.cacheMisses)
	}
	b.used, b.denied, b.cacheHits, b.cacheMisses = 0, 0, 0, 0
}

// Stats is a point-in-time view of budget usage.
type Stats struct {
	Used         int     `json:"used"`
	Limit        int     `json:"limit"`
	Denied       int     `json:"denied"`
	CacheHits    int     `json:"cacheHits"`
	CacheMisses  int     `json:"cacheMisses"`
	CacheHitRate float64 `json:"cacheHitRate"`
}

func (b *Budget) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := Stats{
		Used:        b.used,
		Limit:       b.max,
		Denied:      b.denied,
		CacheHits:   b.cacheHits,
		CacheMisses: b.cacheMisses,
	}
	if total := b.cacheHits + b.cacheMisses; total > 0 {
		s.CacheHitRate = float64(b.cacheHits) / float64(total) * 100
	}
	return s
}
