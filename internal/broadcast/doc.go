// Package broadcast fans a payload out to every registered connection.
//
// A broadcast reads one registry snapshot, sends to each identity concurrently
// and reconciles the registry from the outcomes: identities reported gone are
// removed, transient failures are kept. The fan-out always runs to completion
// over its snapshot, regardless of the caller's cancellation.
package broadcast
