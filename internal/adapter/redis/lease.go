package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// acquireLeaseScript takes the lease when it is free and extends it when the
// caller already holds it.
var acquireLeaseScript = goredis.NewScript(`
local holder = redis.call("GET", KEYS[1])
if not holder then
	redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
	return 1
end
if holder == ARGV[1] then
	redis.call("PEXPIRE", KEYS[1], ARGV[2])
	return 1
end
return 0
`)

var releaseLeaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lease elects one instance to run the expiry sweep of a registry table.
// The holder keeps it by re-acquiring before ttl runs out.
type Lease struct {
	rdb        *goredis.Client
	instanceID string
	key        string
	ttl        time.Duration
}

// NewSweepLease creates the sweep lease for table. ttl should outlast one sweep interval.
func NewSweepLease(rdb *goredis.Client, table, instanceID string, ttl time.Duration) *Lease {
	return &Lease{
		rdb:        rdb,
		instanceID: instanceID,
		key:        table + ":sweeper",
		ttl:        ttl,
	}
}

// TryAcquire reports whether this instance holds the lease after the call.
func (l *Lease) TryAcquire(ctx context.Context) (bool, error) {
	held, err := acquireLeaseScript.Run(ctx, l.rdb, []string{l.key}, l.instanceID, l.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("failed to acquire sweep lease: %w", err)
	}
	return held == 1, nil
}

// Release gives the lease up if this instance holds it.
func (l *Lease) Release(ctx context.Context) error {
	if err := releaseLeaseScript.Run(ctx, l.rdb, []string{l.key}, l.instanceID).Err(); err != nil {
		return fmt.Errorf("failed to release sweep lease: %w", err)
	}
	return nil
}
