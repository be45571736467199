package retry_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/fanout/internal/domain"
	"github.com/pscheid92/fanout/internal/platform/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastPolicy = retry.Policy{
	MaxAttempts:    3,
	InitialBackoff: time.Millisecond,
}

func alwaysRetry(error) retry.Action { return retry.Retry }
func alwaysStop(error) retry.Action  { return retry.Stop }

func TestDo_SuccessFirstAttempt(t *testing.T) {
	calls := 0
	val, err := retry.Do(context.Background(), fastPolicy, alwaysRetry, func(context.Context) (int, error) {
		calls++
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, val)
	assert.Equal(t, 1, calls)
}

func TestDo_SuccessAfterRetries(t *testing.T) {
	calls := 0
	err := retry.DoVoid(context.Background(), fastPolicy, alwaysRetry, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_PermanentErrorStopsImmediately(t *testing.T) {
	permanent := errors.New("permanent")
	calls := 0
	err := retry.DoVoid(context.Background(), fastPolicy, alwaysStop, func(context.Context) error {
		calls++
		return permanent
	})

	var permErr *retry.PermanentError
	require.ErrorAs(t, err, &permErr)
	require.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustedRetries(t *testing.T) {
	underlying := errors.New("transient")
	calls := 0
	err := retry.DoVoid(context.Background(), fastPolicy, alwaysRetry, func(context.Context) error {
		calls++
		return underlying
	})

	require.ErrorIs(t, err, underlying)
	assert.Contains(t, err.Error(), "failed after 3 attempts")
	assert.Equal(t, fastPolicy.MaxAttempts, calls)
}

func TestDo_InvalidPolicy(t *testing.T) {
	err := retry.DoVoid(context.Background(), retry.Policy{}, alwaysRetry, func(context.Context) error {
		t.Fatal("operation must not run")
		return nil
	})

	require.Error(t, err)
}

func TestDo_BackoffDoublesUpToCap(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var backoffs []time.Duration
	policy := retry.Policy{
		MaxAttempts:    5,
		InitialBackoff: time.Second,
		MaxBackoff:     3 * time.Second,
		Clock:          clock,
		OnRetry: func(_ int, _ error, backoff time.Duration) {
			backoffs = append(backoffs, backoff)
		},
	}

	done := make(chan error, 1)
	go func() {
		done <- retry.DoVoid(context.Background(), policy, alwaysRetry, func(context.Context) error {
			return errors.New("transient")
		})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for range policy.MaxAttempts - 1 {
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		clock.Advance(3 * time.Second)
	}

	require.Error(t, <-done)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second, 3 * time.Second}, backoffs)
}

func TestDo_ContextCancellationDuringWait(t *testing.T) {
	clock := clockwork.NewFakeClock()
	policy := retry.Policy{MaxAttempts: 3, InitialBackoff: time.Hour, Clock: clock}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- retry.DoVoid(ctx, policy, alwaysRetry, func(context.Context) error {
			return errors.New("transient")
		})
	}()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))
	cancel()

	err := <-done
	require.ErrorIs(t, err, context.Canceled)
}

func TestStoreUnavailable(t *testing.T) {
	assert.Equal(t, retry.Retry, retry.StoreUnavailable(fmt.Errorf("%w: ping: refused", domain.ErrStoreUnavailable)))
	assert.Equal(t, retry.Stop, retry.StoreUnavailable(errors.New("failed to parse redis URL")))
}
