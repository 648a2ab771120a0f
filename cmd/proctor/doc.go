// Package main hosts the proctor CLI.
//
// Most commands are thin IPC calls against a running proctord: they report
// host-observed signals, acknowledge prompts, and read status or the audit
// log. The replay and config commands work locally without a daemon.
package main
