package domain

import (
	"context"
	"time"
)

// DefaultConnectionTTL is how long a connection record lives without a refresh.
const DefaultConnectionTTL = time.Hour

// ConnectionRecord is one registered connection identity.
// The record is logically expired after ExpiresAt, but the broadcast path
// does not filter on it and relies on live delivery failures instead.
type ConnectionRecord struct {
	ID        string
	ExpiresAt time.Time
}

// Expired reports whether the record is past its deadline at now.
func (r ConnectionRecord) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// ConnectionRegistry is the durable mapping of connection identity to expiry.
// Implementations rely on the backing store's per-key atomicity; every
// failure to reach the store is reported wrapping ErrStoreUnavailable.
type ConnectionRegistry interface {
	// Upsert stores or replaces the record for id with ExpiresAt = now + ttl.
	Upsert(ctx context.Context, id string, ttl time.Duration) error

	// Remove deletes the record for id. Removing an absent id succeeds.
	Remove(ctx context.Context, id string) error

	// ListAll returns a point-in-time snapshot of every stored record,
	// expired ones included. It never returns a partial snapshot.
	ListAll(ctx context.Context) ([]ConnectionRecord, error)

	// RemoveExpired deletes every record whose deadline is at or before now
	// and returns how many were removed.
	RemoveExpired(ctx context.Context, now time.Time) (int, error)
}
