// Package preflight provides readiness checks for the filesystem paths,
// system interfaces, and external services proctor depends on.
//
// These checks run in two contexts:
//   - The daemon runtime calls RunAll at startup and logs every failure.
//   - The CLI "proctor status" command renders the same results.
//
// Each check is gated by its config toggle; disabled features are skipped.
package preflight
