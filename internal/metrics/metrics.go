package metrics

import (
	"sync"
	"time"
)

// Counts are the per-cycle numbers folded into the run totals.
type Counts struct {
	Processed   int
	Duplicates  int
	Saved       int
	Updated     int
	Skipped     int
	FeedsFailed int
}

// RunStats accumulates ingestion cycle statistics.
type RunStats struct {
	mu sync.RWMutex

	// Counters
	TotalRuns         int64
	SuccessfulRuns    int64
	Errors            int64
	ArticlesProcessed int64
	DuplicatesFlagged int64
	ArticlesSaved     int64
	ArticlesUpdated   int64
	ArticlesSkipped   int64
	FeedsFailed       int64
	CleanupRuns       int64
	ArticlesExpired   int64

	// Timings
	LastDuration    time.Duration
	AverageDuration time.Duration
	TotalDuration   time.Duration

	// Status
	StartedAt     time.Time
	LastRunTime   time.Time
	LastErrorTime time.Time
	LastError     string
}

func NewRunStats(now time.Time) *RunStats {
	return &RunStats{StartedAt: now}
}

// RecordSuccess folds a completed cycle into the totals.
func (m *RunStats) RecordSuccess(at time.Time, d time.Duration, c Counts) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalRuns++
	m.SuccessfulRuns++
	m.addCounts(c)
	m.recordTiming(at, d)
}

// RecordFailure folds a failed cycle into the totals.
func (m *RunStats) RecordFailure(at time.Time, d time.Duration, err error, c Counts) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalRuns++
	m.Errors++
	m.addCounts(c)
	m.recordTiming(at, d)
	if err != nil {
		m.LastError = err.Error()
	}
	m.LastErrorTime = at
}

// RecordCleanup counts one retention sweep.
func (m *RunStats) RecordCleanup(deleted int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CleanupRuns++
	m.ArticlesExpired += deleted
}

func (m *RunStats) addCounts(c Counts) {
	m.ArticlesProcessed += int64(c.Processed)
	m.DuplicatesFlagged += int64(c.Duplicates)
	m.ArticlesSaved += int64(c.Saved)
	m.ArticlesUpdated += int64(c.Updated)
	m.ArticlesSkipped += int64(c.Skipped)
	m.FeedsFailed += int64(c.FeedsFailed)
}

func (m *RunStats) recordTiming(at time.Time, d time.Duration) {
	m.LastRunTime = at
	m.LastDuration = d
	m.TotalDuration += d
	if m.TotalRuns > 0 {
		m.AverageDuration = m.TotalDuration / time.Duration(m.TotalRuns)
	}
}

// Snapshot is a copy of the counters suitable for JSON output.
type Snapshot struct {
	LastRun           *time.Time `json:"lastRun"`
	TotalRuns         int64      `json:"totalRuns"`
	SuccessfulRuns    int64      `json:"successfulRuns"`
	Errors            int64      `json:"errors"`
	ArticlesProcessed int64      `json:"articlesProcessed"`
	DuplicatesFlagged int64      `json:"duplicatesFlagged"`
	ArticlesSaved     int64      `json:"articlesSaved"`
	ArticlesUpdated   int64      `json:"articlesUpdated"`
	ArticlesSkipped   int64      `json:"articlesSkipped"`
	FeedsFailed       int64      `json:"feedsFailed"`
	CleanupRuns       int64      `json:"cleanupRuns"`
	ArticlesExpired   int64      `json:"articlesExpired"`
	LastDurationMs    int64      `json:"lastDurationMs"`
	AverageDurationMs int64      `json:"averageDurationMs"`
	LastError         string     `json:"lastError,omitempty"`
	UptimeSeconds     int64      `json:"uptimeSeconds"`
}

func (m *RunStats) Snapshot(now time.Time) Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Snapshot{
		TotalRuns:         m.TotalRuns,
		SuccessfulRuns:    m.SuccessfulRuns,
		Errors:            m.Errors,
		ArticlesProcessed: m.ArticlesProcessed,
		DuplicatesFlagged: m.DuplicatesFlagged,
		ArticlesSaved:     m.ArticlesSaved,
		ArticlesUpdated:   m.ArticlesUpdated,
		ArticlesSkipped:   m.ArticlesSkipped,
		FeedsFailed:       m.FeedsFailed,
		CleanupRuns:       m.CleanupRuns,
		ArticlesExpired:   m.ArticlesExpired,
		LastDurationMs:    m.LastDuration.Milliseconds(),
		AverageDurationMs: m.AverageDuration.Milliseconds(),
		LastError:         m.LastError,
		UptimeSeconds:     int64(now.Sub(m.StartedAt).Seconds()),
	}
	if !m.LastRunTime.IsZero() {
		last := m.LastRunTime
		s.LastRun = &last
	}
	return s
}
