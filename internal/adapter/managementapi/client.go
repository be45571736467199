// Package managementapi delivers payloads through a remote connection
// management API, addressed as POST {endpoint}/@connections/{id}.
package managementapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/pscheid92/fanout/internal/adapter/metrics"
	"github.com/pscheid92/fanout/internal/domain"
	"github.com/sony/gobreaker"
)

const componentLabel = "management_api"

// Client is a domain.DeliveryChannel for one management API endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker
}

var _ domain.DeliveryChannel = (*Client)(nil)

// NewClient creates a client for baseURL (scheme and host, optional path prefix).
// The breaker opens when at least 60% of 5 or more calls in a 10s window
// failed, and probes again after 30s. A gone recipient is not a failure.
func NewClient(baseURL string, httpClient *http.Client, m *metrics.CircuitBreakerMetrics) *Client {
	settings := gobreaker.Settings{
		Name:        baseURL,
		MaxRequests: 1,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, domain.ErrRecipientGone)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker state changed",
				"component", componentLabel,
				"endpoint", name,
				"from", from.String(),
				"to", to.String(),
			)
			m.StateChanges.WithLabelValues(componentLabel, to.String()).Inc()
			m.State.WithLabelValues(componentLabel).Set(float64(to))
		},
	}
	return newClient(baseURL, httpClient, settings)
}

func newClient(baseURL string, httpClient *http.Client, settings gobreaker.Settings) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		cb:         gobreaker.NewCircuitBreaker(settings),
	}
}

// Send posts payload to the connection. 2xx is delivered, 410 Gone wraps
// domain.ErrRecipientGone, everything else (including an open breaker) is transient.
func (c *Client) Send(ctx context.Context, connectionID string, payload []byte) error {
	_, err := c.cb.Execute(func() (any, error) {
		return nil, c.post(ctx, connectionID, payload)
	})
	return err
}

func (c *Client) post(ctx context.Context, connectionID string, payload []byte) error {
	target := c.baseURL + "/@connections/" + url.PathEscape(connectionID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post to connection %s: %w", connectionID, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusGone:
		return fmt.Errorf("connection %s: %w", connectionID, domain.ErrRecipientGone)
	default:
		return fmt.Errorf("post to connection %s: unexpected status %d", connectionID, resp.StatusCode)
	}
}

// State reports the breaker state.
func (c *Client) State() gobreaker.State {
	return c.cb.State()
}
