package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/fanout/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

// Registry is a domain.ConnectionRegistry backed by a Redis hash. Each field
// holds the record's expiry as unix seconds and carries a native field TTL
// (HPEXPIRE, Redis 7.4+) so Redis evicts it without waiting for the sweeper.
type Registry struct {
	rdb   *goredis.Client
	table string
	clock clockwork.Clock
}

var _ domain.ConnectionRegistry = (*Registry)(nil)

func NewRegistry(rdb *goredis.Client, table string, clock clockwork.Clock) *Registry {
	return &Registry{rdb: rdb, table: table, clock: clock}
}

func (r *Registry) Upsert(ctx context.Context, id string, ttl time.Duration) error {
	expiresAt := r.clock.Now().Add(ttl).Unix()

	pipe := r.rdb.TxPipeline()
	pipe.HSet(ctx, r.table, id, strconv.FormatInt(expiresAt, 10))
	pipe.HPExpire(ctx, r.table, ttl, id)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: upsert connection %s: %w", domain.ErrStoreUnavailable, id, err)
	}
	return nil
}

func (r *Registry) Remove(ctx context.Context, id string) error {
	if err := r.rdb.HDel(ctx, r.table, id).Err(); err != nil {
		return fmt.Errorf("%w: remove connection %s: %w", domain.ErrStoreUnavailable, id, err)
	}
	return nil
}

func (r *Registry) ListAll(ctx context.Context) ([]domain.ConnectionRecord, error) {
	fields, err := r.rdb.HGetAll(ctx, r.table).Result()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("%w: list connections: %w", domain.ErrStoreUnavailable, err)
	}

	records := make([]domain.ConnectionRecord, 0, len(fields))
	for id, raw := range fields {
		records = append(records, domain.ConnectionRecord{ID: id, ExpiresAt: parseExpiry(raw)})
	}
	return records, nil
}

// removeExpiredScript deletes every hash field whose expiry is at or before
// ARGV[1] and returns the removed identities. Checking and deleting in one
// script keeps a concurrent reconnect from being swept.
var removeExpiredScript = goredis.NewScript(`
local removed = {}
local entries = redis.call('HGETALL', KEYS[1])
for i = 1, #entries, 2 do
  local expires = tonumber(entries[i + 1])
  if expires == nil or expires <= tonumber(ARGV[1]) then
    redis.call('HDEL', KEYS[1], entries[i])
    table.insert(removed, entries[i])
  end
end
return removed
`)

func (r *Registry) RemoveExpired(ctx context.Context, now time.Time) (int, error) {
	removed, err := removeExpiredScript.Run(ctx, r.rdb, []string{r.table}, strconv.FormatInt(now.Unix(), 10)).StringSlice()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return 0, fmt.Errorf("%w: remove expired connections: %w", domain.ErrStoreUnavailable, err)
	}
	return len(removed), nil
}

// Ping reports whether Redis is reachable, for readiness checks.
func (r *Registry) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

// parseExpiry treats an unreadable value as already expired so the sweeper reclaims it.
func parseExpiry(raw string) time.Time {
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Unix(0, 0)
	}
	return time.Unix(secs, 0)
}
