package domain

import "errors"

var (
	// ErrStoreUnavailable means the durable registry store could not be read or written.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrRecipientGone is the delivery channel's "permanently unreachable" signal.
	// It is not a failure: the broadcast path consumes it to purge the identity.
	ErrRecipientGone = errors.New("recipient gone")

	ErrMalformedPayload  = errors.New("malformed payload")
	ErrUnrecognizedEvent = errors.New("unrecognized event")
)
