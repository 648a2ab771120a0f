package arbiter

import (
	"proctor/internal/signal"
	"proctor/internal/violation"
)

// Decision is the outcome of evaluating one snapshot.
type Decision struct {
	// Kind is the highest-precedence blocking violation, or violation.None.
	Kind violation.Kind
	// Noise reports whether the advisory ambient noise signal is violated.
	Noise bool
}

// Engine applies the precedence table to snapshots. It holds no state between
// calls and is safe for concurrent use.
type Engine struct {
	table []violation.Definition
}

// NewEngine returns an engine over the standard precedence table.
func NewEngine() *Engine {
	return &Engine{table: violation.Table()}
}

// Evaluate walks the table from rank 1. The first violated blocking rule wins;
// advisory rules never win but are still reported through Decision.Noise.
// Unset signals never match.
func (e *Engine) Evaluate(snap signal.Snapshot) Decision {
	var d Decision
	for _, def := range e.table {
		if !snap.Violated(def.Signal) {
			continue
		}
		if !def.Blocking {
			if def.Kind == violation.NoiseDetected {
				d.Noise = true
			}
			continue
		}
		if d.Kind == violation.None {
			d.Kind = def.Kind
		}
	}
	return d
}
