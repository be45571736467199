// Package memory provides an in-process connection registry for single-instance
// development and tests. Nothing survives a restart.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/fanout/internal/domain"
)

// Registry is a mutex-guarded domain.ConnectionRegistry.
type Registry struct {
	clock   clockwork.Clock
	mu      sync.RWMutex
	records map[string]time.Time
}

var _ domain.ConnectionRegistry = (*Registry)(nil)

func NewRegistry(clock clockwork.Clock) *Registry {
	return &Registry{
		clock:   clock,
		records: make(map[string]time.Time),
	}
}

func (r *Registry) Upsert(_ context.Context, id string, ttl time.Duration) error {
	expiresAt := r.clock.Now().Add(ttl)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[id] = expiresAt
	return nil
}

func (r *Registry) Remove(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, id)
	return nil
}

func (r *Registry) ListAll(_ context.Context) ([]domain.ConnectionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records := make([]domain.ConnectionRecord, 0, len(r.records))
	for id, expiresAt := range r.records {
		records = append(records, domain.ConnectionRecord{ID: id, ExpiresAt: expiresAt})
	}
	return records, nil
}

func (r *Registry) RemoveExpired(_ context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, expiresAt := range r.records {
		rec := domain.ConnectionRecord{ID: id, ExpiresAt: expiresAt}
		if rec.Expired(now) {
			delete(r.records, id)
			removed++
		}
	}
	return removed, nil
}

// Ping always succeeds.
func (r *Registry) Ping(context.Context) error {
	return nil
}
