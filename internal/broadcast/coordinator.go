package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/fanout/internal/adapter/metrics"
	"github.com/pscheid92/fanout/internal/domain"
	"golang.org/x/sync/errgroup"
)

// Coordinator runs broadcasts against a connection registry.
type Coordinator struct {
	registry domain.ConnectionRegistry
	metrics  *metrics.BroadcastMetrics
	clock    clockwork.Clock
}

func NewCoordinator(registry domain.ConnectionRegistry, m *metrics.BroadcastMetrics, clock clockwork.Clock) *Coordinator {
	return &Coordinator{registry: registry, metrics: m, clock: clock}
}

// Broadcast sends payload through channel to every identity in the registry
// and waits for all deliveries to settle. It fails only when the snapshot
// cannot be read; individual delivery failures are reported in the counts.
func (c *Coordinator) Broadcast(ctx context.Context, channel domain.DeliveryChannel, payload []byte) (domain.DeliveryReport, error) {
	start := c.clock.Now()

	records, err := c.registry.ListAll(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrStoreUnavailable) {
			err = fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
		}
		return domain.DeliveryReport{}, fmt.Errorf("failed to read connection snapshot: %w", err)
	}

	// Deliveries keep the caller's values (correlation id) but not its cancellation.
	deliveryCtx := context.WithoutCancel(ctx)
	outcomes := make([]domain.DeliveryOutcome, len(records))

	var g errgroup.Group
	for i, rec := range records {
		g.Go(func() error {
			outcomes[i] = c.deliver(deliveryCtx, channel, rec.ID, payload)
			return nil
		})
	}
	_ = g.Wait()

	var report domain.DeliveryReport
	for _, o := range outcomes {
		report.Record(o)
		c.metrics.Deliveries.WithLabelValues(o.String()).Inc()
	}
	c.metrics.Recipients.Observe(float64(report.Recipients))
	c.metrics.Duration.Observe(c.clock.Since(start).Seconds())

	slog.InfoContext(ctx, "Broadcast complete",
		"recipients", report.Recipients,
		"delivered", report.Delivered,
		"stale", report.Stale,
		"transient", report.Transient,
	)
	return report, nil
}

func (c *Coordinator) deliver(ctx context.Context, channel domain.DeliveryChannel, id string, payload []byte) domain.DeliveryOutcome {
	err := channel.Send(ctx, id, payload)
	outcome := domain.ClassifyDelivery(err)

	switch outcome {
	case domain.GoneStale:
		slog.DebugContext(ctx, "Removing stale connection", "connection_id", id)
		if rmErr := c.registry.Remove(ctx, id); rmErr != nil {
			c.metrics.CleanupFailures.Inc()
			slog.ErrorContext(ctx, "Failed to remove stale connection", "connection_id", id, "error", rmErr)
		}
	case domain.TransientFailure:
		slog.WarnContext(ctx, "Delivery failed", "connection_id", id, "error", err)
	}
	return outcome
}
