// Package ipc exposes the daemon over JSON-RPC Unix sockets and ships the
// matching client used by the CLI and the host bridge.
//
// It owns socket lifecycle management and the request/response DTOs. Signal,
// value, and kind names travel as strings and are parsed on the server so the
// wire format stays readable from any JSON-RPC client.
//
// Reuse these types when adding new RPC endpoints to keep the protocol stable
// and compatible with existing command implementations.
package ipc
