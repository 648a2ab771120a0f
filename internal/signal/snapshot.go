package signal

import (
	"errors"
	"strings"
)

// Snapshot is a consistent read of every signal at one instant. It is an
// array value, so every copy is independent of the slots it was read from.
type Snapshot struct {
	values [Count]TriState
}

// Get returns the value of id, or Unset for an invalid id.
func (s Snapshot) Get(id ID) TriState {
	if !id.Valid() {
		return Unset
	}
	return s.values[id]
}

// With returns a copy of s with id set to value. The receiver is not modified.
func (s Snapshot) With(id ID, value TriState) Snapshot {
	if id.Valid() {
		s.values[id] = value
	}
	return s
}

// Violated reports whether id currently reads Violated.
func (s Snapshot) Violated(id ID) bool {
	return s.Get(id) == Violated
}

// Map renders the snapshot keyed by signal name.
func (s Snapshot) Map() map[string]string {
	out := make(map[string]string, Count)
	for i, v := range s.values {
		out[ID(i).String()] = v.String()
	}
	return out
}

func (s Snapshot) String() string {
	var b strings.Builder
	for i, v := range s.values {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(ID(i).String())
		b.WriteByte('=')
		b.WriteString(v.String())
	}
	return b.String()
}

// SnapshotOf builds a snapshot from explicit values; unspecified slots are Unset.
func SnapshotOf(values map[ID]TriState) Snapshot {
	var s Snapshot
	for id, v := range values {
		s = s.With(id, v)
	}
	return s
}

// ErrSlotClaimed is returned when a second writer claims an owned slot.
var ErrSlotClaimed = errors.New("signal slot already claimed")

// Update is one slot write travelling from a source to the evaluator.
type Update struct {
	Signal ID
	Value  TriState
}
