package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/fanout/internal/adapter/memory"
	"github.com/pscheid92/fanout/internal/adapter/metrics"
	"github.com/pscheid92/fanout/internal/domain"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock implementations ---

type mockRegistry struct {
	upsertFn        func(ctx context.Context, id string, ttl time.Duration) error
	removeFn        func(ctx context.Context, id string) error
	listAllFn       func(ctx context.Context) ([]domain.ConnectionRecord, error)
	removeExpiredFn func(ctx context.Context, now time.Time) (int, error)
}

func (m *mockRegistry) Upsert(ctx context.Context, id string, ttl time.Duration) error {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, id, ttl)
	}
	return nil
}

func (m *mockRegistry) Remove(ctx context.Context, id string) error {
	if m.removeFn != nil {
		return m.removeFn(ctx, id)
	}
	return nil
}

func (m *mockRegistry) ListAll(ctx context.Context) ([]domain.ConnectionRecord, error) {
	if m.listAllFn != nil {
		return m.listAllFn(ctx)
	}
	return nil, nil
}

func (m *mockRegistry) RemoveExpired(ctx context.Context, now time.Time) (int, error) {
	if m.removeExpiredFn != nil {
		return m.removeExpiredFn(ctx, now)
	}
	return 0, nil
}

type channelFunc func(ctx context.Context, id string, payload []byte) error

func (f channelFunc) Send(ctx context.Context, id string, payload []byte) error {
	return f(ctx, id, payload)
}

// recordingChannel answers from a per-identity outcome table and records every send.
type recordingChannel struct {
	mu      sync.Mutex
	results map[string]error
	sent    map[string][]byte
	ctxErrs []error
}

func newRecordingChannel(results map[string]error) *recordingChannel {
	return &recordingChannel{results: results, sent: make(map[string][]byte)}
}

func (c *recordingChannel) Send(ctx context.Context, id string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent[id] = payload
	c.ctxErrs = append(c.ctxErrs, ctx.Err())
	return c.results[id]
}

func (c *recordingChannel) sentTo() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.sent))
	for id := range c.sent {
		ids = append(ids, id)
	}
	return ids
}

// --- Helpers ---

func newTestCoordinator(t *testing.T, ids ...string) (*Coordinator, *memory.Registry, *metrics.BroadcastMetrics) {
	t.Helper()
	registry := memory.NewRegistry(clockwork.NewFakeClock())
	for _, id := range ids {
		require.NoError(t, registry.Upsert(context.Background(), id, time.Hour))
	}
	m := metrics.NewBroadcastMetrics(metrics.NewRegistry())
	return NewCoordinator(registry, m, clockwork.NewRealClock()), registry, m
}

func registeredIDs(t *testing.T, registry domain.ConnectionRegistry) []string {
	t.Helper()
	records, err := registry.ListAll(context.Background())
	require.NoError(t, err)
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return ids
}

// --- Tests ---

func TestBroadcast_EmptyRegistry(t *testing.T) {
	coordinator, _, _ := newTestCoordinator(t)
	channel := newRecordingChannel(nil)

	report, err := coordinator.Broadcast(context.Background(), channel, []byte("hi"))

	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryReport{}, report)
	assert.Empty(t, channel.sentTo())
}

func TestBroadcast_DeliversToEveryConnection(t *testing.T) {
	coordinator, registry, m := newTestCoordinator(t, "a", "b", "c")
	channel := newRecordingChannel(nil)

	report, err := coordinator.Broadcast(context.Background(), channel, []byte("hi"))

	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryReport{Recipients: 3, Delivered: 3}, report)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, channel.sentTo())
	for _, payload := range channel.sent {
		assert.Equal(t, []byte("hi"), payload)
	}
	assert.ElementsMatch(t, []string{"a", "b", "c"}, registeredIDs(t, registry))
	assert.InDelta(t, 3, testutil.ToFloat64(m.Deliveries.WithLabelValues("delivered")), 0)
}

func TestBroadcast_ReconcilesStaleAndKeepsTransient(t *testing.T) {
	coordinator, registry, m := newTestCoordinator(t, "a", "b", "c")
	channel := newRecordingChannel(map[string]error{
		"b": fmt.Errorf("socket closed: %w", domain.ErrRecipientGone),
		"c": errors.New("throttled"),
	})

	report, err := coordinator.Broadcast(context.Background(), channel, []byte("hi"))

	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryReport{Recipients: 3, Delivered: 1, Stale: 1, Transient: 1}, report)
	assert.ElementsMatch(t, []string{"a", "c"}, registeredIDs(t, registry))
	assert.InDelta(t, 1, testutil.ToFloat64(m.Deliveries.WithLabelValues("stale")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Deliveries.WithLabelValues("transient")), 0)
}

func TestBroadcast_AllStaleEmptiesRegistry(t *testing.T) {
	coordinator, registry, _ := newTestCoordinator(t, "a", "b")
	gone := channelFunc(func(context.Context, string, []byte) error { return domain.ErrRecipientGone })

	report, err := coordinator.Broadcast(context.Background(), gone, []byte("hi"))

	require.NoError(t, err)
	assert.Equal(t, 2, report.Stale)
	assert.Empty(t, registeredIDs(t, registry))
}

func TestBroadcast_SnapshotFailure(t *testing.T) {
	registry := &mockRegistry{
		listAllFn: func(context.Context) ([]domain.ConnectionRecord, error) {
			return nil, errors.New("connection reset")
		},
	}
	coordinator := NewCoordinator(registry, metrics.NewBroadcastMetrics(metrics.NewRegistry()), clockwork.NewRealClock())
	var sends atomic.Int32
	channel := channelFunc(func(context.Context, string, []byte) error {
		sends.Add(1)
		return nil
	})

	report, err := coordinator.Broadcast(context.Background(), channel, []byte("hi"))

	require.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, domain.DeliveryReport{}, report)
	assert.Zero(t, sends.Load())
}

func TestBroadcast_CleanupFailureIsSwallowed(t *testing.T) {
	var removed []string
	var mu sync.Mutex
	registry := &mockRegistry{
		listAllFn: func(context.Context) ([]domain.ConnectionRecord, error) {
			return []domain.ConnectionRecord{{ID: "a"}, {ID: "b"}}, nil
		},
		removeFn: func(_ context.Context, id string) error {
			mu.Lock()
			removed = append(removed, id)
			mu.Unlock()
			return fmt.Errorf("%w: timeout", domain.ErrStoreUnavailable)
		},
	}
	m := metrics.NewBroadcastMetrics(metrics.NewRegistry())
	coordinator := NewCoordinator(registry, m, clockwork.NewRealClock())
	gone := channelFunc(func(context.Context, string, []byte) error { return domain.ErrRecipientGone })

	report, err := coordinator.Broadcast(context.Background(), gone, []byte("hi"))

	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryReport{Recipients: 2, Stale: 2}, report)
	assert.ElementsMatch(t, []string{"a", "b"}, removed)
	assert.InDelta(t, 2, testutil.ToFloat64(m.CleanupFailures), 0)
}

func TestBroadcast_SendsConcurrently(t *testing.T) {
	const n = 20
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("conn-%d", i)
	}
	coordinator, _, _ := newTestCoordinator(t, ids...)

	// Every send blocks until all n are in flight at once.
	var started sync.WaitGroup
	started.Add(n)
	allStarted := make(chan struct{})
	go func() {
		started.Wait()
		close(allStarted)
	}()

	channel := channelFunc(func(context.Context, string, []byte) error {
		started.Done()
		select {
		case <-allStarted:
			return nil
		case <-time.After(5 * time.Second):
			return errors.New("sends were serialised")
		}
	})

	report, err := coordinator.Broadcast(context.Background(), channel, []byte("hi"))

	require.NoError(t, err)
	assert.Equal(t, n, report.Delivered)
}

func TestBroadcast_IgnoresCallerCancellation(t *testing.T) {
	coordinator, _, _ := newTestCoordinator(t, "a", "b")
	channel := newRecordingChannel(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := coordinator.Broadcast(ctx, channel, []byte("hi"))

	require.NoError(t, err)
	assert.Equal(t, 2, report.Delivered)
	for _, ctxErr := range channel.ctxErrs {
		assert.NoError(t, ctxErr)
	}
}

func TestBroadcast_SlowDeliveryDoesNotDropOthers(t *testing.T) {
	coordinator, _, _ := newTestCoordinator(t, "fast-1", "slow", "fast-2")
	channel := channelFunc(func(_ context.Context, id string, _ []byte) error {
		if id == "slow" {
			time.Sleep(50 * time.Millisecond)
			return errors.New("deadline exceeded")
		}
		return nil
	})

	report, err := coordinator.Broadcast(context.Background(), channel, []byte("hi"))

	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryReport{Recipients: 3, Delivered: 2, Transient: 1}, report)
}
