package daemon

import (
	"context"
	"time"

	"proctor/internal/violation"
)

// ActiveView describes the violation surfaced to the presentation layer.
type ActiveView struct {
	Kind        violation.Kind   `json:"kind"`
	Since       time.Time        `json:"since"`
	Seq         int64            `json:"seq"`
	PromptOpen  bool             `json:"prompt_open"`
	Message     string           `json:"message"`
	Prompt      string           `json:"prompt"`
	ButtonLabel string           `json:"button_label"`
	Action      violation.Action `json:"action"`
}

// Status represents daemon runtime information.
type Status struct {
	Running         bool
	SessionID       string
	Active          *ActiveView
	Signals         map[string]string
	Noise           bool
	Evaluations     uint64
	LogEntries      int
	PendingRequests int
	ReloadLatched   bool
	DatabasePath    string
	LockFilePath    string
}

// Status returns the current daemon status.
func (d *Daemon) Status(_ context.Context) Status {
	st := d.monitor.State()
	status := Status{
		Running:         d.running.Load(),
		SessionID:       d.SessionID(),
		Signals:         st.Snapshot.Map(),
		Noise:           st.Noise,
		Evaluations:     st.Evaluations,
		LogEntries:      d.journal.Len(),
		PendingRequests: d.requests.Len(),
		ReloadLatched:   d.dispatcher.Latched(),
		LockFilePath:    d.lockPath,
	}
	if d.store != nil {
		status.DatabasePath = d.store.Path()
	}
	if st.Active != nil {
		def := st.Active.Definition()
		status.Active = &ActiveView{
			Kind:        st.Active.Kind,
			Since:       st.Active.Since,
			Seq:         st.Active.Seq,
			PromptOpen:  st.Active.PromptOpen,
			Message:     def.Message,
			Prompt:      def.Prompt,
			ButtonLabel: def.ButtonLabel,
			Action:      def.Action,
		}
	}
	return status
}
