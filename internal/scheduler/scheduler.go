// Package scheduler drives ingestion cycles on a cadence with a single-flight
// guard and runs the daily retention sweep.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/deusflow/feedharvest/internal/ingest"
	"github.com/deusflow/feedharvest/internal/logger"
	"github.com/deusflow/feedharvest/internal/metrics"
)

const (
	DefaultInterval     = "*/15 * * * *"
	DefaultCleanup      = "0 2 * * *"
	DefaultRetention    = 90 * 24 * time.Hour
	DefaultInitialDelay = 10 * time.Second
)

// ErrAlreadyRunning is returned when a cycle is requested while one is in progress.
var ErrAlreadyRunning = errors.New("ingestion already running")

// Runner executes one ingestion cycle.
type Runner interface {
	Run(ctx context.Context) (ingest.Result, error)
}

// Cleaner removes articles older than a cutoff.
type Cleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Config holds the timers of a Scheduler.
type Config struct {
	Interval     Cadence
	Cleanup      Cadence
	Retention    time.Duration
	InitialDelay time.Duration
}

// Stats is the scheduler view exposed to consumers.
type Stats struct {
	metrics.Snapshot
	IsRunning  bool           `json:"isRunning"`
	LastResult *ingest.Result `json:"lastResult"`
}

type Scheduler struct {
	runner  Runner
	cleaner Cleaner
	cfg     Config
	stats   *metrics.RunStats
	now     func() time.Time

	running atomic.Bool

	mu         sync.Mutex
	lastResult *ingest.Result
	handles    []*Handle
}

// New returns a Scheduler. Missing cadences and retention fall back to the
// defaults; a zero InitialDelay runs the first cycle immediately.
func New(runner Runner, cleaner Cleaner, cfg Config) *Scheduler {
	if cfg.Interval == nil {
		cfg.Interval, _ = ParseCadence(DefaultInterval)
	}
	if cfg.Cleanup == nil {
		cfg.Cleanup, _ = ParseCadence(DefaultCleanup)
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.InitialDelay < 0 {
		cfg.InitialDelay = DefaultInitialDelay
	}
	return &Scheduler{
		runner:  runner,
		cleaner: cleaner,
		cfg:     cfg,
		stats:   metrics.NewRunStats(time.Now()),
		now:     time.Now,
	}
}

// RunCycle runs the pipeline once. It returns ErrAlreadyRunning without
// touching any counter when another cycle is in progress.
func (s *Scheduler) RunCycle(ctx context.Context) (res ingest.Result, err error) {
	if !s.running.CompareAndSwap(false, true) {
		logger.Warn("Ingestion already running, skipping")
		return ingest.Result{}, ErrAlreadyRunning
	}
	defer s.running.Store(false)

	start := s.now()
	logger.Info("Starting ingestion cycle")

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("ingestion cycle panicked: %v", r)
		}
		d := s.now().Sub(start)
		if err != nil {
			s.stats.RecordFailure(start, d, err, res.Counts())
			logger.Error("Ingestion cycle failed", "error", err, "duration", d)
		} else {
			s.stats.RecordSuccess(start, d, res.Counts())
		}

		s.mu.Lock()
		last := res
		s.lastResult = &last
		s.mu.Unlock()
	}()

	return s.runner.Run(ctx)
}

// TriggerRefresh is RunCycle for external callers.
func (s *Scheduler) TriggerRefresh(ctx context.Context) (ingest.Result, error) {
	return s.RunCycle(ctx)
}

// Cleanup deletes articles published before the retention cutoff.
func (s *Scheduler) Cleanup(ctx context.Context) (int64, error) {
	deleted, err := s.cleaner.Cleanup(ctx, s.cfg.Retention)
	if err != nil {
		logger.Error("Retention sweep failed", "error", err)
		return 0, err
	}
	s.stats.RecordCleanup(deleted)
	return deleted, nil
}

// IsRunning reports whether a cycle is in progress.
func (s *Scheduler) IsRunning() bool {
	return s.running.Load()
}

func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	var last *ingest.Result
	if s.lastResult != nil {
		r := *s.lastResult
		last = &r
	}
	s.mu.Unlock()

	return Stats{
		Snapshot:   s.stats.Snapshot(s.now()),
		IsRunning:  s.running.Load(),
		LastResult: last,
	}
}

// Start arms the cycle timer, the retention timer and the initial cycle.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.handles) > 0 {
		return errors.New("scheduler already started")
	}

	cycle := func(ctx context.Context) {
		if _, err := s.RunCycle(ctx); err != nil && !errors.Is(err, ErrAlreadyRunning) {
			logger.Warn("Scheduled cycle ended with error", "error", err)
		}
	}
	sweep := func(ctx context.Context) {
		if n, err := s.Cleanup(ctx); err == nil {
			logger.Info("Retention sweep finished", "deleted", n)
		}
	}

	s.handles = []*Handle{
		Schedule(ctx, s.cfg.Interval, cycle),
		Schedule(ctx, s.cfg.Cleanup, sweep),
		After(ctx, s.cfg.InitialDelay, cycle),
	}
	logger.Info("Scheduler started", "initialDelay", s.cfg.InitialDelay, "retention", s.cfg.Retention)
	return nil
}

// Stop cancels all timers and waits for running activations to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	handles := s.handles
	s.handles = nil
	s.mu.Unlock()

	for _, h := range handles {
		h.Stop()
	}
	if len(handles) > 0 {
		logger.Info("Scheduler stopped")
	}
}
