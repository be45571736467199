// Package domain defines the core domain types and interfaces.
//
// This package contains concept-oriented files (errors.go, connection.go, event.go,
// delivery.go, envelope.go) with shared types, cross-cutting interfaces and a few
// pure helpers. No I/O. Keeping the interfaces here prevents circular imports
// between the application layer and the adapters.
package domain
