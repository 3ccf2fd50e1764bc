package notifier

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/good-yellow-bee/blazealert/pkg/config"
)

// HTTPOptions configures the HTTP transport of webhook-family adapters.
type HTTPOptions struct {
	// Client overrides the default client (30s timeout).
	Client    *http.Client
	RateLimit RateLimitConfig
}

// httpPoster posts JSON documents for webhook-family adapters.
type httpPoster struct {
	name       string
	httpClient *http.Client
	limiter    *rateLimiter
}

func newHTTPPoster(name string, opts HTTPOptions) *httpPoster {
	client := opts.Client
	if client == nil {
		client = &http.Client{
			Timeout: 30 * time.Second,
		}
	}
	return &httpPoster{
		name:       name,
		httpClient: client,
		limiter:    newRateLimiter(opts.RateLimit),
	}
}

// post sends body to url and returns the response body of a 2xx answer.
func (p *httpPoster) post(ctx context.Context, url string, body []byte, headers map[string]string) ([]byte, error) {
	if !p.limiter.allow() {
		return nil, ErrRateLimited
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", config.UserAgent())
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%s API error: status %d, body: %s", p.name, resp.StatusCode, string(respBody))
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return respBody, nil
}

func (p *httpPoster) RateLimitStatus() RateLimitStats {
	return p.limiter.stats()
}
