// Package violation holds the closed set of integrity violation kinds and the
// precedence table that orders them.
//
// Each kind carries a fixed rank, audit message, prompt text, button label,
// and remediation action. The table is data rather than branching so the
// arbiter and the remediation dispatcher share one source of truth.
package violation
