// Package log provides the scoped loggers used across the control
// plane, thin wrappers over istio.io/pkg/log's Scope registry.
package log

import "istio.io/pkg/log"

var (
	// Server scopes every log line emitted by the gRPC discovery
	// server (connection lifecycle, per-request dispatch).
	Server = log.RegisterScope("server", "xDS discovery server")

	// Config scopes configuration loading and hot-reload events.
	Config = log.RegisterScope("config", "server configuration")

	// Source scopes the snapshotsource collaborators.
	Source = log.RegisterScope("source", "snapshot source collaborators")
)

// Options exposes istio.io/pkg/log's install-time options (output path,
// level overrides, JSON vs. text encoding) so cmd/xds-server can bind
// them to command-line flags without re-deriving the schema.
func Options() *log.Options {
	return log.DefaultOptions()
}

// Configure applies o to the global logging subsystem. Call once, early
// in main.
func Configure(o *log.Options) error {
	return log.Configure(o)
}
