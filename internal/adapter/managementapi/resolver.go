package managementapi

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/pscheid92/fanout/internal/adapter/metrics"
	"github.com/pscheid92/fanout/internal/domain"
)

// Resolver maps a post event's endpoint onto a delivery channel: the local
// channel for an empty endpoint, otherwise one cached Client per endpoint.
type Resolver struct {
	local      domain.DeliveryChannel
	httpClient *http.Client
	metrics    *metrics.CircuitBreakerMetrics

	mu      sync.Mutex
	clients map[string]*Client
}

var _ domain.ChannelResolver = (*Resolver)(nil)

func NewResolver(local domain.DeliveryChannel, httpClient *http.Client, m *metrics.CircuitBreakerMetrics) *Resolver {
	return &Resolver{
		local:      local,
		httpClient: httpClient,
		metrics:    m,
		clients:    make(map[string]*Client),
	}
}

func (r *Resolver) ChannelFor(endpoint string) (domain.DeliveryChannel, error) {
	if endpoint == "" {
		return r.local, nil
	}

	baseURL, err := normalizeEndpoint(endpoint)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.clients[baseURL]; ok {
		return c, nil
	}
	c := NewClient(baseURL, r.httpClient, r.metrics)
	r.clients[baseURL] = c
	return c, nil
}

// normalizeEndpoint turns "domain/stage" or a full URL into a base URL
// without trailing slash. A missing scheme means https.
func normalizeEndpoint(endpoint string) (string, error) {
	raw := strings.TrimSpace(endpoint)
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid endpoint %q: unsupported scheme %q", endpoint, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid endpoint %q: missing host", endpoint)
	}

	u.RawQuery = ""
	u.Fragment = ""
	return strings.TrimRight(u.String(), "/"), nil
}
