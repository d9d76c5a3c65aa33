// Package logging provides structured logging for identity-core.
//
// It wraps Go's standard log/slog package to provide consistent,
// structured logging across the application.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Thread-safe for concurrent use
//
// # Security
//
// Never log passwords, token values, or password hashes. Log token IDs
// and account IDs instead; they identify without authenticating.
package logging
