// Package remediation turns a user acknowledgement into the corrective action
// bound to the active violation kind.
package remediation
