package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Cadence yields the next activation strictly after t.
type Cadence interface {
	Next(t time.Time) time.Time
}

type every time.Duration

func (e every) Next(t time.Time) time.Time { return t.Add(time.Duration(e)) }

// Every returns a fixed-interval cadence.
func Every(d time.Duration) Cadence {
	return every(d)
}

// ParseCadence accepts a standard 5-field cron expression, a descriptor such
// as @daily or @every 10m, or a plain Go duration.
func ParseCadence(spec string) (Cadence, error) {
	if d, err := time.ParseDuration(spec); err == nil {
		if d <= 0 {
			return nil, fmt.Errorf("cadence %q must be positive", spec)
		}
		return Every(d), nil
	}
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse cadence %q: %w", spec, err)
	}
	return sched, nil
}

// Handle controls one recurring timer.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Stop cancels the timer and waits for an in-flight activation to return.
func (h *Handle) Stop() {
	h.once.Do(h.cancel)
	<-h.done
}

// Done is closed once the timer loop has exited.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Schedule calls fn at every activation of c until ctx ends or the handle is
// stopped. Activations never overlap; one that falls due while fn is still
// running is skipped.
func Schedule(ctx context.Context, c Cadence, fn func(ctx context.Context)) *Handle {
	return start(ctx, func(ctx context.Context) {
		for {
			now := time.Now()
			timer := time.NewTimer(c.Next(now).Sub(now))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
			fn(ctx)
		}
	})
}

// After calls fn once after delay unless the handle is stopped first.
func After(ctx context.Context, delay time.Duration, fn func(ctx context.Context)) *Handle {
	return start(ctx, func(ctx context.Context) {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case <-timer.C:
			fn(ctx)
		}
	})
}

func start(ctx context.Context, loop func(ctx context.Context)) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(h.done)
		loop(ctx)
	}()
	return h
}
