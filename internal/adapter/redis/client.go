package redis

import (
	"context"
	"fmt"

	"github.com/pscheid92/fanout/internal/adapter/metrics"
	"github.com/pscheid92/fanout/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

// NewClient creates a go-redis client from a URL (e.g. "redis://localhost:6379"),
// installs the metrics and circuit-breaker hooks and verifies the connection.
func NewClient(ctx context.Context, redisURL string, storeMetrics *metrics.StoreMetrics, cbMetrics *metrics.CircuitBreakerMetrics) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	rdb := goredis.NewClient(opts)
	rdb.AddHook(NewMetricsHook(storeMetrics))
	rdb.AddHook(NewCircuitBreakerHook(cbMetrics))

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%w: failed to ping redis: %w", domain.ErrStoreUnavailable, err)
	}
	return rdb, nil
}
