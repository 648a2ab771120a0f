package violation

import "time"

// Active is the single violation currently surfaced to the user.
type Active struct {
	Kind  Kind
	Since time.Time
	// Seq is the log sequence number of the entry that opened this prompt.
	// It identifies the prompt instance an acknowledgement answers.
	Seq int64
	// PromptOpen is true until a dismiss remediation closes the prompt for
	// this kind. A kind change always reopens it.
	PromptOpen bool
}

// Definition returns the fixed description of the active kind.
func (a *Active) Definition() Definition {
	if a == nil {
		return Definition{}
	}
	def, _ := Lookup(a.Kind)
	return def
}

// KindOf returns the kind of a, treating nil as None.
func KindOf(a *Active) Kind {
	if a == nil {
		return None
	}
	return a.Kind
}
