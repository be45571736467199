// Package redis implements the connection registry on Redis.
//
// Records live in a single hash keyed by connection identity with the expiry
// deadline (unix seconds) as value, so HGETALL yields an atomic snapshot.
// Each field also carries a native field TTL (Redis 7.4+), so Redis evicts
// expired records on its own; the sweeper covers the rest. All commands
// pass through a metrics hook and a circuit-breaker hook installed by NewClient.
package redis
