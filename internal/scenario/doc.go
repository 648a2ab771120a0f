// Package scenario replays scripted signal changes and acknowledgements
// through an in-process monitor and dispatcher.
//
// Scripts are YAML documents with a name and an ordered list of steps. Each
// step sets a signal, acknowledges the active prompt, or checks the published
// state. Remediation handlers only record the actions they receive, so a
// replay never touches the host. The CLI exposes this as "proctor replay".
package scenario
