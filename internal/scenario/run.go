package scenario

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"proctor/internal/arbiter"
	"proctor/internal/logging"
	"proctor/internal/remediation"
	"proctor/internal/signal"
	"proctor/internal/violation"
	"proctor/internal/violationlog"
)

// Options customizes a replay.
type Options struct {
	Logger *slog.Logger
	// Clock stamps log entries; nil uses time.Now.
	Clock func() time.Time
}

// Ack records one acknowledgement click.
type Ack struct {
	Step         int              `json:"step"`
	Kind         violation.Kind   `json:"kind"`
	Action       violation.Action `json:"action"`
	Stale        bool             `json:"stale"`
	Deduplicated bool             `json:"deduplicated"`
	Error        string           `json:"error,omitempty"`
}

// Report is the outcome of a replay.
type Report struct {
	Name     string               `json:"name"`
	Final    arbiter.State        `json:"-"`
	Active   violation.Kind       `json:"active"`
	Entries  []violationlog.Entry `json:"entries"`
	Actions  []violation.Action   `json:"actions"`
	Acks     []Ack                `json:"acks"`
	Failures []string             `json:"failures,omitempty"`
}

// Passed reports whether every expectation held.
func (r *Report) Passed() bool {
	return len(r.Failures) == 0
}

type recorder struct {
	mu      sync.Mutex
	actions []violation.Action
}

func (r *recorder) record(action violation.Action) {
	r.mu.Lock()
	r.actions = append(r.actions, action)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []violation.Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]violation.Action(nil), r.actions...)
}

// Run replays script and returns the report. Expectation failures are
// collected in the report; an error means the replay itself broke.
func Run(ctx context.Context, script *Script, opts Options) (*Report, error) {
	if script == nil {
		return nil, errors.New("scenario script is required")
	}
	if err := script.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	journal := violationlog.NewJournal()
	monitorOpts := []arbiter.Option{arbiter.WithLogger(logger), arbiter.WithSessionID("replay")}
	if opts.Clock != nil {
		monitorOpts = append(monitorOpts, arbiter.WithClock(opts.Clock))
	}
	monitor := arbiter.NewMonitor(journal, monitorOpts...)

	runCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = monitor.Run(runCtx)
	}()
	defer func() {
		cancel()
		wg.Wait()
	}()

	writers := make(map[signal.ID]*arbiter.Writer, signal.Count)
	for _, id := range signal.All() {
		w, err := monitor.Claim(id)
		if err != nil {
			return nil, fmt.Errorf("claim %s: %w", id, err)
		}
		writers[id] = w
	}

	rec := &recorder{}
	sessions := 1
	dispatcher := remediation.NewDispatcher(logger)
	for _, def := range violation.Table() {
		action := def.Action
		if action == violation.ActionNone {
			continue
		}
		if action == violation.ActionDismiss {
			dispatcher.Register(action, remediation.HandlerFunc(func(ctx context.Context, req remediation.Request) error {
				rec.record(action)
				_, err := monitor.Dismiss(ctx, req.Kind)
				return err
			}))
			continue
		}
		if action == violation.ActionHardReload {
			dispatcher.Register(action, remediation.HandlerFunc(func(ctx context.Context, req remediation.Request) error {
				return replayReload(ctx, monitor, dispatcher, writers, req, rec, &sessions)
			}))
			continue
		}
		dispatcher.Register(action, remediation.HandlerFunc(func(context.Context, remediation.Request) error {
			rec.record(action)
			return nil
		}))
	}

	report := &Report{Name: script.Name}
	for i, step := range script.Steps {
		stepNo := i + 1
		switch {
		case step.Signal != "":
			id, _ := signal.Parse(step.Signal)
			value, _ := signal.ParseTriState(step.Value)
			if err := writers[id].Set(runCtx, value); err != nil {
				return nil, fmt.Errorf("step %d: %w", stepNo, err)
			}
		case step.Ack:
			acks, err := acknowledge(runCtx, monitor, dispatcher, step, stepNo)
			if err != nil {
				return nil, fmt.Errorf("step %d: %w", stepNo, err)
			}
			report.Acks = append(report.Acks, acks...)
		case step.Expect != nil:
			if err := monitor.Evaluate(runCtx); err != nil {
				return nil, fmt.Errorf("step %d: %w", stepNo, err)
			}
			report.Failures = append(report.Failures,
				check(stepNo, step.Expect, monitor.State(), journal.ReadAll(), rec.snapshot())...)
		}
		if err := monitor.Evaluate(runCtx); err != nil {
			return nil, fmt.Errorf("step %d: %w", stepNo, err)
		}
	}

	report.Final = monitor.State()
	report.Active = violation.KindOf(report.Final.Active)
	report.Entries = journal.ReadAll()
	report.Actions = rec.snapshot()
	logger.Debug("scenario replayed",
		logging.String("scenario", script.Name),
		logging.Int("steps", len(script.Steps)),
		logging.Int("failures", len(report.Failures)),
	)
	return report, nil
}

// replayReload mirrors the daemon's hard reload: every slot goes back to
// Unset, a new session begins and the latch is rearmed. A request for a
// prompt that is no longer active is refused.
func replayReload(ctx context.Context, monitor *arbiter.Monitor, dispatcher *remediation.Dispatcher, writers map[signal.ID]*arbiter.Writer, req remediation.Request, rec *recorder, sessions *int) error {
	if err := monitor.Sync(ctx); err != nil {
		return err
	}
	if active := monitor.State().Active; active == nil || active.Seq != req.Seq {
		return fmt.Errorf("replay reload: %w", remediation.ErrPromptClosed)
	}
	rec.record(req.Action)
	for _, id := range signal.All() {
		if err := writers[id].Set(ctx, signal.Unset); err != nil {
			return err
		}
	}
	// Only the handler running under the reload latch touches the counter.
	*sessions++
	if err := monitor.SetSession(ctx, fmt.Sprintf("replay-%d", *sessions)); err != nil {
		return err
	}
	dispatcher.Rearm()
	return nil
}

func acknowledge(ctx context.Context, monitor *arbiter.Monitor, dispatcher *remediation.Dispatcher, step Step, stepNo int) ([]Ack, error) {
	if err := monitor.Evaluate(ctx); err != nil {
		return nil, err
	}
	current := monitor.State().Active
	active := violation.KindOf(current)
	kind, _ := violation.ParseKind(step.Kind)
	if kind == violation.None {
		kind = active
	}
	clicks := step.Clicks
	if clicks <= 0 {
		clicks = 1
	}

	acks := make([]Ack, clicks)
	seq := step.Seq
	if seq == 0 && current != nil {
		seq = current.Seq
	}
	if kind == violation.None || kind != active || seq != current.Seq {
		for i := range acks {
			acks[i] = Ack{Step: stepNo, Kind: kind, Action: kind.Action(), Stale: true}
		}
		return acks, nil
	}

	var wg sync.WaitGroup
	for i := range acks {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcome, err := dispatcher.RemediatePrompt(ctx, kind, seq)
			acks[i] = Ack{Step: stepNo, Kind: kind, Action: outcome.Action, Stale: outcome.Stale, Deduplicated: outcome.Deduplicated}
			if err != nil {
				acks[i].Error = err.Error()
			}
		}(i)
	}
	wg.Wait()
	return acks, nil
}

func check(stepNo int, want *Expect, st arbiter.State, entries []violationlog.Entry, actions []violation.Action) []string {
	var failures []string
	fail := func(format string, args ...any) {
		failures = append(failures, fmt.Sprintf("step %d: ", stepNo)+fmt.Sprintf(format, args...))
	}

	if want.Active != nil {
		expected, _ := violation.ParseKind(*want.Active)
		if got := violation.KindOf(st.Active); got != expected {
			fail("active = %s, want %s", got, expected)
		}
	}
	if want.PromptOpen != nil {
		open := st.Active != nil && st.Active.PromptOpen
		if open != *want.PromptOpen {
			fail("prompt_open = %v, want %v", open, *want.PromptOpen)
		}
	}
	if want.Noise != nil && st.Noise != *want.Noise {
		fail("noise = %v, want %v", st.Noise, *want.Noise)
	}
	if want.LogLen != nil && len(entries) != *want.LogLen {
		fail("log_len = %d, want %d", len(entries), *want.LogLen)
	}
	if want.LastMessage != nil {
		last := ""
		if len(entries) > 0 {
			last = entries[len(entries)-1].Message
		}
		if last != *want.LastMessage {
			fail("last_message = %q, want %q", last, *want.LastMessage)
		}
	}
	if want.Actions != nil && len(actions) != *want.Actions {
		fail("actions = %d (%v), want %d", len(actions), actions, *want.Actions)
	}
	return failures
}
