package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/fanout/internal/adapter/metrics"
	"github.com/pscheid92/fanout/internal/domain"
)

const backendLabel = "postgres"

// Registry is a domain.ConnectionRegistry backed by a single PostgreSQL table.
type Registry struct {
	pool    *pgxpool.Pool
	clock   clockwork.Clock
	metrics *metrics.StoreMetrics

	upsertSQL        string
	removeSQL        string
	listSQL          string
	removeExpiredSQL string
}

var _ domain.ConnectionRegistry = (*Registry)(nil)

// NewRegistry expects the table to exist; see RunMigrationsWithLock.
func NewRegistry(pool *pgxpool.Pool, table string, clock clockwork.Clock, m *metrics.StoreMetrics) *Registry {
	t := pgx.Identifier{table}.Sanitize()
	return &Registry{
		pool:    pool,
		clock:   clock,
		metrics: m,

		upsertSQL: `INSERT INTO ` + t + ` (connection_id, expires_at) VALUES ($1, $2)
			ON CONFLICT (connection_id) DO UPDATE SET expires_at = EXCLUDED.expires_at`,
		removeSQL:        `DELETE FROM ` + t + ` WHERE connection_id = $1`,
		listSQL:          `SELECT connection_id, expires_at FROM ` + t,
		removeExpiredSQL: `DELETE FROM ` + t + ` WHERE expires_at <= $1`,
	}
}

func (r *Registry) Upsert(ctx context.Context, id string, ttl time.Duration) error {
	start := time.Now()
	_, err := r.pool.Exec(ctx, r.upsertSQL, id, r.clock.Now().Add(ttl))
	r.observe("upsert", start, err)
	if err != nil {
		return fmt.Errorf("%w: upsert connection %s: %w", domain.ErrStoreUnavailable, id, err)
	}
	return nil
}

func (r *Registry) Remove(ctx context.Context, id string) error {
	start := time.Now()
	_, err := r.pool.Exec(ctx, r.removeSQL, id)
	r.observe("remove", start, err)
	if err != nil {
		return fmt.Errorf("%w: remove connection %s: %w", domain.ErrStoreUnavailable, id, err)
	}
	return nil
}

func (r *Registry) ListAll(ctx context.Context) ([]domain.ConnectionRecord, error) {
	start := time.Now()
	records, err := r.list(ctx)
	r.observe("list", start, err)
	if err != nil {
		return nil, fmt.Errorf("%w: list connections: %w", domain.ErrStoreUnavailable, err)
	}
	return records, nil
}

func (r *Registry) list(ctx context.Context) ([]domain.ConnectionRecord, error) {
	rows, err := r.pool.Query(ctx, r.listSQL)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.ConnectionRecord, error) {
		var rec domain.ConnectionRecord
		err := row.Scan(&rec.ID, &rec.ExpiresAt)
		return rec, err
	})
}

func (r *Registry) RemoveExpired(ctx context.Context, now time.Time) (int, error) {
	start := time.Now()
	tag, err := r.pool.Exec(ctx, r.removeExpiredSQL, now)
	r.observe("remove_expired", start, err)
	if err != nil {
		return 0, fmt.Errorf("%w: remove expired connections: %w", domain.ErrStoreUnavailable, err)
	}
	return int(tag.RowsAffected()), nil
}

// Ping reports whether the database is reachable, for readiness checks.
func (r *Registry) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *Registry) observe(operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	r.metrics.OpsTotal.WithLabelValues(backendLabel, operation, status).Inc()
	r.metrics.OpDuration.WithLabelValues(backendLabel, operation).Observe(time.Since(start).Seconds())
}
