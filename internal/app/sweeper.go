package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/fanout/internal/adapter/metrics"
	"github.com/pscheid92/fanout/internal/domain"
	"github.com/pscheid92/fanout/internal/platform/correlation"
)

const leaseReleaseTimeout = 5 * time.Second

// Lease elects the one instance that sweeps a shared registry.
type Lease interface {
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Sweeper periodically deletes expired connection records. Connections that
// vanish without a disconnect event are otherwise only purged when a broadcast
// reports them gone.
type Sweeper struct {
	registry domain.ConnectionRegistry
	lease    Lease
	clock    clockwork.Clock
	interval time.Duration
	metrics  *metrics.LifecycleMetrics
}

// NewSweeper creates a sweeper. With a nil lease every instance sweeps.
func NewSweeper(registry domain.ConnectionRegistry, lease Lease, clock clockwork.Clock, interval time.Duration, m *metrics.LifecycleMetrics) *Sweeper {
	return &Sweeper{registry: registry, lease: lease, clock: clock, interval: interval, metrics: m}
}

// Run sweeps every interval until ctx is cancelled. A zero interval disables sweeping.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		slog.Info("Expiry sweeper disabled")
		return
	}

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()
	defer s.releaseLease(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.Sweep(ctx)
		}
	}
}

// Sweep removes every record expired at the current clock time.
func (s *Sweeper) Sweep(ctx context.Context) int {
	sweepCtx := correlation.WithID(ctx, correlation.NewID())

	if s.lease != nil {
		held, err := s.lease.TryAcquire(sweepCtx)
		if err != nil {
			s.metrics.SweepFailures.Inc()
			slog.WarnContext(sweepCtx, "Sweep lease unavailable", "error", err)
			return 0
		}
		if !held {
			slog.DebugContext(sweepCtx, "Sweep skipped, another instance holds the lease")
			return 0
		}
	}

	removed, err := s.registry.RemoveExpired(sweepCtx, s.clock.Now())
	if err != nil {
		s.metrics.SweepFailures.Inc()
		slog.WarnContext(sweepCtx, "Expiry sweep failed", "error", err)
		return 0
	}

	s.metrics.ExpiredRemoved.Add(float64(removed))
	if removed > 0 {
		slog.InfoContext(sweepCtx, "Removed expired connections", "count", removed)
	}
	return removed
}

func (s *Sweeper) releaseLease(ctx context.Context) {
	if s.lease == nil {
		return
	}
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), leaseReleaseTimeout)
	defer cancel()
	if err := s.lease.Release(releaseCtx); err != nil {
		slog.WarnContext(releaseCtx, "Failed to release sweep lease", "error", err)
	}
}
