// Package publish forwards newly stored articles to downstream sinks: AWS SQS
// and SNS, Google Cloud Pub/Sub, HTTP webhooks and Telegram chats.
package publish

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/deusflow/feedharvest/internal/logger"
	"github.com/deusflow/feedharvest/internal/news"
	"github.com/deusflow/feedharvest/internal/retry"
)

// EventArticleSaved is emitted for each newly inserted, non-duplicate article.
const EventArticleSaved = "article.saved"

// Event is the payload delivered to every sink.
type Event struct {
	Type       string       `json:"type"`
	OccurredAt time.Time    `json:"occurredAt"`
	Article    news.Article `json:"article"`
}

// Publisher delivers events to one sink.
type Publisher interface {
	ID() string
	Publish(ctx context.Context, evt Event) error
}

// Builder creates a Publisher from a config entry.
type Builder func(ctx context.Context, cfg PublisherConfig) (Publisher, error)

// Registry maps publisher types to builders.
type Registry struct {
	mu       sync.RWMutex
	builders map[string]Builder
}

func NewRegistry(builders map[string]Builder) *Registry {
	r := &Registry{builders: make(map[string]Builder)}
	for typ, b := range builders {
		r.Register(typ, b)
	}
	return r
}

// DefaultRegistry knows the queue, http and telegram publisher types.
func DefaultRegistry() *Registry {
	return NewRegistry(map[string]Builder{
		TypeQueue:    newQueuePublisher,
		TypeHTTP:     newHTTPPublisher,
		TypeTelegram: newTelegramPublisher,
	})
}

func (r *Registry) Register(typ string, builder Builder) {
	if typ = strings.ToLower(strings.TrimSpace(typ)); typ == "" || builder == nil {
		return
	}
	r.mu.Lock()
	r.builders[typ] = builder
	r.mu.Unlock()
}

// Build instantiates the enabled publishers in cfgs.
func (r *Registry) Build(ctx context.Context, cfgs []PublisherConfig) ([]Publisher, error) {
	var pubs []Publisher
	for _, cfg := range cfgs {
		if !cfg.EnabledValue() {
			continue
		}
		r.mu.RLock()
		builder := r.builders[cfg.Type]
		r.mu.RUnlock()
		if builder == nil {
			return nil, fmt.Errorf("no publisher registered for type %q", cfg.Type)
		}

		pub, err := builder(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("build publisher %q: %w", cfg.ID, err)
		}
		pubs = append(pubs, pub)
	}
	return pubs, nil
}

// Dispatcher fans article events out to publishers with retries.
type Dispatcher struct {
	publishers []Publisher
	policy     retry.Policy
	now        func() time.Time
}

// NewDispatcher returns a dispatcher. Each delivery is attempted up to
// policy.MaxAttempts times.
func NewDispatcher(publishers []Publisher, policy retry.Policy) *Dispatcher {
	return &Dispatcher{publishers: publishers, policy: policy, now: time.Now}
}

// Enabled reports whether any publisher is configured.
func (d *Dispatcher) Enabled() bool {
	return d != nil && len(d.publishers) > 0
}

// Close releases publishers that hold connections. Errors are logged and the
// first one is returned.
func (d *Dispatcher) Close() error {
	if d == nil {
		return nil
	}
	var first error
	for _, p := range d.publishers {
		c, ok := p.(io.Closer)
		if !ok {
			continue
		}
		if err := c.Close(); err != nil {
			logger.Error("Error closing publisher", "publisher", p.ID(), "error", err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// PublishSaved emits EventArticleSaved for every non-duplicate article and
// returns the number of successful and failed deliveries.
func (d *Dispatcher) PublishSaved(ctx context.Context, articles []news.Article) (sent, failed int) {
	if !d.Enabled() {
		return 0, 0
	}

	for _, a := range articles {
		if a.IsDuplicate {
			continue
		}
		evt := Event{Type: EventArticleSaved, OccurredAt: d.now().UTC(), Article: a}
		for _, p := range d.publishers {
			policy := d.policy
			policy.OnRetry = func(attempt int, err error, wait time.Duration) {
				logger.Warn("Retrying publish", "publisher", p.ID(), "attempt", attempt, "wait", wait, "error", err)
			}
			err := retry.Do(ctx, policy, func(ctx context.Context) error {
				return p.Publish(ctx, evt)
			})
			if err != nil {
				failed++
				logger.Error("Publish failed", "publisher", p.ID(), "article", a.ID, "error", err)
				continue
			}
			sent++
		}
	}
	return sent, failed
}
