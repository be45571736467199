package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pscheid92/fanout/internal/domain"
)

// --- Mock implementations ---

type mockRegistry struct {
	upsertFn        func(ctx context.Context, id string, ttl time.Duration) error
	removeFn        func(ctx context.Context, id string) error
	listAllFn       func(ctx context.Context) ([]domain.ConnectionRecord, error)
	removeExpiredFn func(ctx context.Context, now time.Time) (int, error)

	mu    sync.Mutex
	calls []string
}

func (m *mockRegistry) record(call string) {
	m.mu.Lock()
	m.calls = append(m.calls, call)
	m.mu.Unlock()
}

func (m *mockRegistry) getCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *mockRegistry) Upsert(ctx context.Context, id string, ttl time.Duration) error {
	m.record("upsert:" + id)
	if m.upsertFn != nil {
		return m.upsertFn(ctx, id, ttl)
	}
	return nil
}

func (m *mockRegistry) Remove(ctx context.Context, id string) error {
	m.record("remove:" + id)
	if m.removeFn != nil {
		return m.removeFn(ctx, id)
	}
	return nil
}

func (m *mockRegistry) ListAll(ctx context.Context) ([]domain.ConnectionRecord, error) {
	m.record("list")
	if m.listAllFn != nil {
		return m.listAllFn(ctx)
	}
	return nil, nil
}

func (m *mockRegistry) RemoveExpired(ctx context.Context, now time.Time) (int, error) {
	m.record("remove_expired")
	if m.removeExpiredFn != nil {
		return m.removeExpiredFn(ctx, now)
	}
	return 0, nil
}

type mockBroadcaster struct {
	broadcastFn func(ctx context.Context, channel domain.DeliveryChannel, payload []byte) (domain.DeliveryReport, error)
}

func (m *mockBroadcaster) Broadcast(ctx context.Context, channel domain.DeliveryChannel, payload []byte) (domain.DeliveryReport, error) {
	if m.broadcastFn != nil {
		return m.broadcastFn(ctx, channel, payload)
	}
	return domain.DeliveryReport{}, errors.New("not implemented")
}

type mockChannel struct {
	name string
}

func (m *mockChannel) Send(context.Context, string, []byte) error { return nil }

type mockResolver struct {
	channelForFn func(endpoint string) (domain.DeliveryChannel, error)
}

func (m *mockResolver) ChannelFor(endpoint string) (domain.DeliveryChannel, error) {
	if m.channelForFn != nil {
		return m.channelForFn(endpoint)
	}
	return &mockChannel{name: endpoint}, nil
}
