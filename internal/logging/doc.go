// Package logging assembles structured slog loggers and formatting helpers used
// across proctor.
//
// It owns the console and JSON handlers, centralizes level and output plumbing,
// and defines the standard field names (component, session_id, signal,
// violation_kind, action) so daemon, monitor, and source logs can be filtered
// the same way. Warnings go through WarnWithContext, which guarantees an
// event_type, an error_hint, and an impact on every line.
package logging
