// Package logging provides structured logging helpers for noon.
//
// Everything logs through log/slog. This package fixes the attribute names
// used across packages (cycle_id, tool, kind, round_trip, ...) so that one
// resolution cycle can be followed across the router, the loop, the tools and
// the calendar port by filtering on cycle_id.
//
//	logger := logging.WithCycle(slog.Default(), cycleID)
//	logger.Debug("gathering", logging.Tool("search_events"), logging.RoundTrip(2))
//
// # Security Considerations
//
//   - User identifiers are hashed (UserHash) so entries correlate without PII
//   - Tokens are only ever rendered through SanitizeToken
//   - Queries are truncated with TruncateQuery before they are logged
package logging
