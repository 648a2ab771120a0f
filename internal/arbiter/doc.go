// Package arbiter reduces the signal snapshot to the single active violation.
//
// Engine is the pure precedence walk. Monitor wraps it with the stateful parts:
// single-writer slot claims, the FIFO update queue, the evaluation loop that
// owns the snapshot, and the edge-triggered appends to the violation journal.
// A journal entry is written only when the blocking kind changes to a
// non-None kind, or when ambient noise goes from quiet to noisy.
package arbiter
