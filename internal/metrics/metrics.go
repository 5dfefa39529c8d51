// Package metrics provides interfaces and implementations for collecting
// netlogind metrics. This package defines the Collector interface for
// recording metrics and the Server interface for exposing them.
package metrics

import "context"

// Collector defines the interface for recording netlogind metrics. A
// Collector is shared by the listener, broker and worker roles; each role
// records the events it observes.
type Collector interface {
	// Connection metrics (listener)
	ConnectionAccepted()
	ConnectionClosed()

	// Authentication metrics (broker/worker)
	AuthAttempt(success bool)
	AuthTimeout()

	// Session metrics (worker)
	SessionStarted()
	SessionEnded()
	CommandExecuted()
}

// Server defines the interface for a metrics HTTP server.
type Server interface {
	// Start begins serving metrics. It blocks until the context is canceled
	// or an error occurs.
	Start(ctx context.Context) error

	// Shutdown gracefully stops the metrics server.
	Shutdown(ctx context.Context) error
}
