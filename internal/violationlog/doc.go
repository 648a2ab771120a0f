// Package violationlog keeps the append-only audit trail of detected
// violations.
//
// Journal is the in-process log the arbiter appends to: entries receive a
// strictly increasing sequence number and are never reordered or removed.
// Store is the SQLite-backed sink that persists each entry so the trail
// survives session reloads and daemon restarts. Sink failures are reported to
// the caller but never drop the in-memory entry.
//
// Schema changes bump the version in schema.go; operators move the old
// database aside to adopt the new schema.
package violationlog
