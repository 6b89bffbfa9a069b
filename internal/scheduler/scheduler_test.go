package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/deusflow/feedharvest/internal/ingest"
	"github.com/deusflow/feedharvest/internal/news"
	"github.com/deusflow/feedharvest/internal/storage"
)

type blockingRunner struct {
	started chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{started: make(chan struct{}, 1), release: make(chan struct{})}
}

func (r *blockingRunner) Run(ctx context.Context) (ingest.Result, error) {
	r.calls.Add(1)
	r.started <- struct{}{}
	<-r.release
	return ingest.Result{Normalized: 3, Saved: 2, Duplicates: 1}, nil
}

type funcRunner func(ctx context.Context) (ingest.Result, error)

func (f funcRunner) Run(ctx context.Context) (ingest.Result, error) { return f(ctx) }

type nopCleaner struct{ olderThan time.Duration }

func (c *nopCleaner) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	c.olderThan = olderThan
	return 0, nil
}

func TestRunCycle_SingleFlight(t *testing.T) {
	runner := newBlockingRunner()
	s := New(runner, &nopCleaner{}, Config{})

	done := make(chan error, 1)
	go func() {
		_, err := s.RunCycle(context.Background())
		done <- err
	}()
	<-runner.started

	if !s.IsRunning() {
		t.Fatal("expected running state")
	}
	before := s.Stats()
	if _, err := s.TriggerRefresh(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("err = %v, want ErrAlreadyRunning", err)
	}
	after := s.Stats()
	if before.TotalRuns != after.TotalRuns || before.Errors != after.Errors || before.ArticlesProcessed != after.ArticlesProcessed {
		t.Errorf("counters changed by refused call: %+v -> %+v", before.Snapshot, after.Snapshot)
	}

	close(runner.release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	st := s.Stats()
	if st.IsRunning || st.TotalRuns != 1 || st.SuccessfulRuns != 1 || st.ArticlesProcessed != 3 {
		t.Errorf("stats = %+v", st)
	}
	if st.LastResult == nil || st.LastResult.Saved != 2 || st.LastRun == nil {
		t.Errorf("last result = %+v", st.LastResult)
	}
	if runner.calls.Load() != 1 {
		t.Errorf("runner called %d times", runner.calls.Load())
	}
}

func TestRunCycle_ErrorsAndPanics(t *testing.T) {
	calls := 0
	s := New(funcRunner(func(ctx context.Context) (ingest.Result, error) {
		calls++
		if calls == 1 {
			return ingest.Result{FeedsFailed: 2}, ingest.ErrAllFeedsFailed
		}
		panic("boom")
	}), &nopCleaner{}, Config{})

	if _, err := s.RunCycle(context.Background()); !errors.Is(err, ingest.ErrAllFeedsFailed) {
		t.Fatalf("err = %v", err)
	}
	if _, err := s.RunCycle(context.Background()); err == nil {
		t.Fatal("panic not converted to error")
	}

	st := s.Stats()
	if st.TotalRuns != 2 || st.Errors != 2 || st.SuccessfulRuns != 0 || st.FeedsFailed != 2 {
		t.Errorf("stats = %+v", st.Snapshot)
	}
	if st.IsRunning {
		t.Error("guard not released after panic")
	}
	if st.LastError == "" {
		t.Error("last error not recorded")
	}
}

func TestCleanup_Retention(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	gw := storage.NewGateway(storage.NewMemoryStore(storage.EvictionPolicy{}))
	for _, days := range []int{91, 89} {
		a := news.Article{Title: "t", URL: fmt.Sprintf("https://r.example/%d", days), PublishedAt: now.Add(-time.Duration(days) * 24 * time.Hour)}
		a.EnsureKeys()
		gw.Save(ctx, []news.Article{a})
	}

	s := New(funcRunner(nil), gw, Config{Retention: 90 * 24 * time.Hour})
	n, err := s.Cleanup(ctx)
	if err != nil || n != 1 {
		t.Fatalf("cleanup = %d, %v", n, err)
	}
	if left, _ := gw.Count(ctx); left != 1 {
		t.Errorf("remaining = %d", left)
	}
	if st := s.Stats(); st.CleanupRuns != 1 || st.ArticlesExpired != 1 {
		t.Errorf("stats = %+v", st.Snapshot)
	}
}

func TestStartStop(t *testing.T) {
	var runs atomic.Int32
	ran := make(chan struct{}, 10)
	cleaner := &nopCleaner{}
	s := New(funcRunner(func(ctx context.Context) (ingest.Result, error) {
		runs.Add(1)
		select {
		case ran <- struct{}{}:
		default:
		}
		return ingest.Result{}, nil
	}), cleaner, Config{
		Interval:     Every(20 * time.Millisecond),
		Cleanup:      Every(time.Hour),
		InitialDelay: 0,
	})

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(context.Background()); err == nil {
		t.Error("second Start should fail")
	}

	for i := 0; i < 2; i++ {
		select {
		case <-ran:
		case <-time.After(2 * time.Second):
			t.Fatal("cycle did not run")
		}
	}
	s.Stop()

	n := runs.Load()
	time.Sleep(60 * time.Millisecond)
	if runs.Load() != n {
		t.Errorf("cycles ran after Stop: %d -> %d", n, runs.Load())
	}
	s.Stop()
}

func TestParseCadence(t *testing.T) {
	base := time.Date(2026, 3, 2, 10, 7, 0, 0, time.UTC)

	c, err := ParseCadence(DefaultInterval)
	if err != nil {
		t.Fatal(err)
	}
	if got := c.Next(base); !got.Equal(time.Date(2026, 3, 2, 10, 15, 0, 0, time.UTC)) {
		t.Errorf("next = %v", got)
	}

	c, _ = ParseCadence(DefaultCleanup)
	if got := c.Next(base); !got.Equal(time.Date(2026, 3, 3, 2, 0, 0, 0, time.UTC)) {
		t.Errorf("cleanup next = %v", got)
	}

	c, _ = ParseCadence("90s")
	if got := c.Next(base); !got.Equal(base.Add(90 * time.Second)) {
		t.Errorf("duration next = %v", got)
	}

	for _, bad := range []string{"", "-5s", "61 * * * *", "not a cron"} {
		if _, err := ParseCadence(bad); err == nil {
			t.Errorf("ParseCadence(%q) should fail", bad)
		}
	}
}

func TestAfter_StoppedBeforeFiring(t *testing.T) {
	var fired atomic.Bool
	h := After(context.Background(), time.Hour, func(context.Context) { fired.Store(true) })
	h.Stop()
	select {
	case <-h.Done():
	default:
		t.Fatal("handle not done after Stop")
	}
	if fired.Load() {
		t.Error("callback fired")
	}
}
