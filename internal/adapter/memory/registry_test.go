package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/fanout/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func ids(records []domain.ConnectionRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func TestRegistry_UpsertThenList(t *testing.T) {
	registry := NewRegistry(clockwork.NewFakeClockAt(epoch))
	ctx := context.Background()

	require.NoError(t, registry.Upsert(ctx, "a", time.Hour))
	require.NoError(t, registry.Upsert(ctx, "b", time.Hour))

	records, err := registry.ListAll(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, ids(records))
}

func TestRegistry_UpsertIsKeyedByIdentity(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	registry := NewRegistry(clock)
	ctx := context.Background()

	require.NoError(t, registry.Upsert(ctx, "a", time.Hour))
	clock.Advance(30 * time.Minute)
	require.NoError(t, registry.Upsert(ctx, "a", time.Hour))

	records, err := registry.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, epoch.Add(90*time.Minute), records[0].ExpiresAt)
}

func TestRegistry_RemoveAbsentIsNoop(t *testing.T) {
	registry := NewRegistry(clockwork.NewFakeClockAt(epoch))
	ctx := context.Background()

	require.NoError(t, registry.Upsert(ctx, "a", time.Hour))
	require.NoError(t, registry.Remove(ctx, "a"))
	require.NoError(t, registry.Remove(ctx, "a"))

	records, err := registry.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRegistry_ListAllIncludesExpired(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	registry := NewRegistry(clock)
	ctx := context.Background()

	require.NoError(t, registry.Upsert(ctx, "a", time.Minute))
	clock.Advance(time.Hour)

	records, err := registry.ListAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(records))
}

func TestRegistry_RemoveExpired(t *testing.T) {
	registry := NewRegistry(clockwork.NewFakeClockAt(epoch))
	ctx := context.Background()

	require.NoError(t, registry.Upsert(ctx, "short", time.Minute))
	require.NoError(t, registry.Upsert(ctx, "exact", 10*time.Minute))
	require.NoError(t, registry.Upsert(ctx, "long", time.Hour))

	removed, err := registry.RemoveExpired(ctx, epoch.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	records, err := registry.ListAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"long"}, ids(records))
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	registry := NewRegistry(clockwork.NewFakeClockAt(epoch))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 100 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, registry.Upsert(ctx, fmt.Sprintf("conn-%d", i), time.Hour))
		}()
		go func() {
			defer wg.Done()
			_, err := registry.ListAll(ctx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	records, err := registry.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 100)
}
