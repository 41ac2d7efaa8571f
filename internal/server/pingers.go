package server

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// HTTPPinger probes a hosted model API by issuing a GET against its base URL.
// Any answer below 500, including 401 or 404, counts as reachable, so the
// probe never spends tokens or needs credentials.
type HTTPPinger struct {
	// name identifies the backend in readiness responses (e.g. "openai").
	name string
	// url is the endpoint to probe.
	url string
	// client performs the probe.
	client *http.Client
}

// NewHTTPPinger constructs an HTTPPinger for url.
func NewHTTPPinger(name, url string) *HTTPPinger {
	return &HTTPPinger{
		name:   name,
		url:    url,
		client: &http.Client{Timeout: probeTimeout + time.Second},
	}
}

// Name returns the backend label used in readiness responses.
func (p *HTTPPinger) Name() string { return p.name }

// Ping reports whether the endpoint answered without a server error.
func (p *HTTPPinger) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return fmt.Errorf("%s: build probe: %w", p.name, err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s unreachable: %w", p.name, err)
	}
	resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%s answered HTTP %d", p.name, resp.StatusCode)
	}
	return nil
}
