// Package httpclient wraps resty with the defaults used for feed and article
// page requests.
package httpclient

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultUserAgent identifies the harvester to upstream sites.
const DefaultUserAgent = "feedharvest/1.0 (+RSS ingestion)"

// Client issues GET requests.
type Client interface {
	Get(ctx context.Context, url string, headers map[string]string) (*resty.Response, error)
}

// RestyClient is a Client backed by a resty.Client.
type RestyClient struct {
	client *resty.Client
}

// NewRestyClient returns a client with the given per-request timeout and
// User-Agent. An empty userAgent selects DefaultUserAgent.
func NewRestyClient(timeout time.Duration, userAgent string) *RestyClient {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	c := resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", userAgent).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(10))
	return &RestyClient{client: c}
}

func (c *RestyClient) Get(ctx context.Context, url string, headers map[string]string) (*resty.Response, error) {
	req := c.client.R().SetContext(ctx)
	if len(headers) > 0 {
		req.SetHeaders(headers)
	}
	return req.Get(url)
}

// IsSuccess reports a 2xx status.
func IsSuccess(resp *resty.Response) bool {
	return resp != nil && resp.StatusCode() >= 200 && resp.StatusCode() < 300
}
