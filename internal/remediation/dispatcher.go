package remediation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"proctor/internal/logging"
	"proctor/internal/violation"
)

var (
	// ErrNoRemediation is returned for kinds without a user-triggered action.
	ErrNoRemediation = errors.New("violation kind has no remediation")
	// ErrNoHandler is returned when no handler is registered for an action.
	ErrNoHandler = errors.New("no remediation handler registered")
	// ErrPromptClosed is returned by a handler when the prompt named in the
	// request has already been replaced. The dispatcher reports it as a stale
	// outcome rather than a failure.
	ErrPromptClosed = errors.New("prompt already replaced")
)

// Request describes one remediation invocation.
type Request struct {
	Kind   violation.Kind
	Action violation.Action
	// Seq identifies the prompt being answered; zero when unknown.
	Seq int64
}

// Handler performs the side effect of one action.
type Handler interface {
	Handle(ctx context.Context, req Request) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req Request) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, req Request) error {
	return f(ctx, req)
}

// Outcome reports how a remediation request was served.
type Outcome struct {
	Kind   violation.Kind   `json:"kind"`
	Action violation.Action `json:"action"`
	// Deduplicated is true when the request was absorbed by an in-flight
	// invocation of the same action or by the hard-reload latch.
	Deduplicated bool `json:"deduplicated"`
	// Stale is true when the handler found the prompt already replaced.
	Stale bool `json:"stale"`
}

// Dispatcher maps violation kinds to actions and runs the registered handler.
type Dispatcher struct {
	logger *slog.Logger
	group  singleflight.Group

	mu       sync.RWMutex
	handlers map[violation.Action]Handler
	latched  bool
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		logger:   logging.NewComponentLogger(logger, "remediation"),
		handlers: make(map[violation.Action]Handler),
	}
}

// Register binds handler to action, replacing any previous binding.
func (d *Dispatcher) Register(action violation.Action, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if handler == nil {
		delete(d.handlers, action)
		return
	}
	d.handlers[action] = handler
}

// Rearm clears the hard-reload latch so the next reload request runs.
func (d *Dispatcher) Rearm() {
	d.mu.Lock()
	d.latched = false
	d.mu.Unlock()
}

// Latched reports whether a hard reload has been requested since the last Rearm.
func (d *Dispatcher) Latched() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.latched
}

// Remediate runs the action bound to kind. Concurrent calls for the same
// action share one handler invocation. A hard reload latches: later reload
// requests are absorbed until Rearm, or until the reload handler fails.
func (d *Dispatcher) Remediate(ctx context.Context, kind violation.Kind) (Outcome, error) {
	return d.RemediatePrompt(ctx, kind, 0)
}

// RemediatePrompt is Remediate for the prompt instance seq. Handlers receive
// seq in the Request and may refuse with ErrPromptClosed once that prompt has
// been replaced, which makes a click that lands after a completed reload a
// no-op.
func (d *Dispatcher) RemediatePrompt(ctx context.Context, kind violation.Kind, seq int64) (Outcome, error) {
	action := kind.Action()
	outcome := Outcome{Kind: kind, Action: action}
	if action == violation.ActionNone {
		return outcome, fmt.Errorf("remediate %s: %w", kind, ErrNoRemediation)
	}

	d.mu.RLock()
	handler := d.handlers[action]
	d.mu.RUnlock()
	if handler == nil {
		return outcome, fmt.Errorf("remediate %s (%s): %w", kind, action, ErrNoHandler)
	}

	executed := false
	_, err, _ := d.group.Do(string(action), func() (any, error) {
		if action == violation.ActionHardReload && !d.latch() {
			return nil, nil
		}
		executed = true
		err := handler.Handle(ctx, Request{Kind: kind, Action: action, Seq: seq})
		if err != nil && action == violation.ActionHardReload {
			d.Rearm()
		}
		return nil, err
	})
	outcome.Deduplicated = !executed

	if errors.Is(err, ErrPromptClosed) {
		outcome.Stale = true
		d.logger.Info("remediation skipped for replaced prompt",
			logging.String(logging.FieldViolationKind, kind.String()),
			logging.String(logging.FieldAction, string(action)),
			logging.Int64("seq", seq),
			logging.String(logging.FieldEventType, "remediation_stale"),
		)
		return outcome, nil
	}
	if err != nil {
		logging.WarnWithContext(d.logger, "remediation failed", "remediation_failed",
			logging.String(logging.FieldViolationKind, kind.String()),
			logging.String(logging.FieldAction, string(action)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the host bridge connection and retry the prompt"),
			logging.String(logging.FieldImpact, "violation prompt stays open"),
		)
		return outcome, fmt.Errorf("remediate %s (%s): %w", kind, action, err)
	}
	d.logger.Info("remediation dispatched",
		logging.String(logging.FieldViolationKind, kind.String()),
		logging.String(logging.FieldAction, string(action)),
		logging.Bool("deduplicated", outcome.Deduplicated),
		logging.String(logging.FieldEventType, "remediation_dispatched"),
	)
	return outcome, nil
}

// latch sets the reload latch and reports whether it was previously clear.
func (d *Dispatcher) latch() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.latched {
		return false
	}
	d.latched = true
	return true
}
