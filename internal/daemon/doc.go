// Package daemon coordinates the long-running proctor process.
//
// It wires configuration, the violation journal and its SQLite sink, the
// arbitration monitor, the remediation dispatcher, and every signal source
// into a single lifecycle with flock-based locking to prevent multiple
// instances. Host-facing operations (signal reports, acknowledgements, host
// request draining) enter here and are routed to the source or dispatcher
// that owns them.
//
// Keep orchestration logic here: arbitration rules belong to the arbiter and
// action semantics to the remediation dispatcher, while the daemon focuses on
// startup, shutdown, session reloads, and high level coordination.
package daemon
