package domain

import (
	"context"
	"errors"
)

// DeliveryChannel pushes one payload to one connection identity.
// A nil error means delivered; an error wrapping ErrRecipientGone means the
// identity is permanently unreachable; any other error is transient.
type DeliveryChannel interface {
	Send(ctx context.Context, connectionID string, payload []byte) error
}

// ChannelResolver picks the delivery channel for a post event's endpoint.
type ChannelResolver interface {
	ChannelFor(endpoint string) (DeliveryChannel, error)
}

// DeliveryOutcome classifies the result of a single send.
type DeliveryOutcome int

const (
	Delivered        DeliveryOutcome = iota // Channel confirmed delivery
	GoneStale                               // Recipient permanently unreachable
	TransientFailure                        // Any other delivery error
)

func (o DeliveryOutcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case GoneStale:
		return "stale"
	case TransientFailure:
		return "transient"
	default:
		return "unknown"
	}
}

// ClassifyDelivery maps a Send result onto its outcome.
func ClassifyDelivery(err error) DeliveryOutcome {
	switch {
	case err == nil:
		return Delivered
	case errors.Is(err, ErrRecipientGone):
		return GoneStale
	default:
		return TransientFailure
	}
}

// DeliveryReport summarises one broadcast.
// Recipients always equals Delivered + Stale + Transient.
type DeliveryReport struct {
	Recipients int `json:"recipients"`
	Delivered  int `json:"delivered"`
	Stale      int `json:"stale"`
	Transient  int `json:"transient"`
}

// Record counts one settled delivery.
func (r *DeliveryReport) Record(o DeliveryOutcome) {
	r.Recipients++
	switch o {
	case Delivered:
		r.Delivered++
	case GoneStale:
		r.Stale++
	default:
		r.Transient++
	}
}
