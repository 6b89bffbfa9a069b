package publish

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

type httpPublisher struct {
	id     string
	cfg    HTTPConfig
	client *resty.Client
}

func newHTTPPublisher(_ context.Context, cfg PublisherConfig) (Publisher, error) {
	if cfg.HTTP == nil || cfg.HTTP.URL == "" {
		return nil, fmt.Errorf("http configuration is missing")
	}
	client := resty.New().
		SetTimeout(time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeaders(cfg.HTTP.Headers)
	return &httpPublisher{id: cfg.ID, cfg: *cfg.HTTP, client: client}, nil
}

func (p *httpPublisher) ID() string { return p.id }

func (p *httpPublisher) Publish(ctx context.Context, evt Event) error {
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(evt).
		Execute(p.cfg.Method, p.cfg.URL)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode())
	}
	return nil
}
