// Package logs reads the daemon's log and JSON event files for the CLI.
//
// Tail prints the last lines of a file and optionally follows it across the
// log pointer being swapped to a new run. EventFilter narrows JSON event lines
// by event type or violation kind.
package logs
