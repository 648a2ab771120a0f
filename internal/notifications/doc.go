// Package notifications pushes violation and session events to a supervisor.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and degrades to a no-op when no topic is set. Repeats of the
// same violation kind inside the dedup window are dropped so a flapping signal
// does not flood the supervisor's phone.
package notifications
