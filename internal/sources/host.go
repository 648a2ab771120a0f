package sources

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"proctor/internal/logging"
	"proctor/internal/signal"
	"proctor/internal/violation"
)

// HostSource is a slot whose value is pushed by the host bridge, for signals
// only the browser can observe: tab focus, permissions, and fullscreen.
type HostSource struct {
	id      signal.ID
	action  violation.Action
	queue   *RequestQueue
	initial signal.TriState
	probe   bool
	logger  *slog.Logger

	mu   sync.Mutex
	slot slot
}

// HostOption customizes a HostSource.
type HostOption func(*HostSource)

// WithInitialValue writes value to the slot as soon as the source starts.
func WithInitialValue(value signal.TriState) HostOption {
	return func(s *HostSource) { s.initial = value }
}

// WithProbeOnStart posts the source's remediation request on every Start so
// the host asks for the permission without waiting for a violation.
func WithProbeOnStart(enabled bool) HostOption {
	return func(s *HostSource) { s.probe = enabled }
}

// WithHostLogger sets the source logger.
func WithHostLogger(logger *slog.Logger) HostOption {
	return func(s *HostSource) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewHostSource creates a host-fed source for id. Remediation requests go to queue.
func NewHostSource(id signal.ID, queue *RequestQueue, opts ...HostOption) *HostSource {
	s := &HostSource{
		id:     id,
		action: violation.ForSignal(id).Action(),
		queue:  queue,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logging.String(logging.FieldComponent, "host-source"), logging.String(logging.FieldSignal, id.String()))
	return s
}

// Name identifies the source in logs.
func (s *HostSource) Name() string { return "host:" + s.id.String() }

// Signals returns the single slot the source owns.
func (s *HostSource) Signals() []signal.ID { return []signal.ID{s.id} }

// Start claims the slot, writes the initial value, and probes when configured.
func (s *HostSource) Start(ctx context.Context, claim Claimer) error {
	s.mu.Lock()
	if err := s.slot.claim(claim, s.id); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("start %s: %w", s.Name(), err)
	}
	if s.initial != signal.Unset {
		if err := s.slot.set(ctx, s.initial); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("start %s: %w", s.Name(), err)
		}
	}
	s.mu.Unlock()

	if s.probe {
		return s.Remediate(ctx)
	}
	return nil
}

// Stop writes Unset and releases the slot.
func (s *HostSource) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slot.release(ctx)
}

// Report records a value observed by the host.
func (s *HostSource) Report(ctx context.Context, value signal.TriState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.slot.set(ctx, value); err != nil {
		return fmt.Errorf("report %s: %w", s.id, err)
	}
	return nil
}

// Remediate asks the host to perform the action bound to this signal.
func (s *HostSource) Remediate(ctx context.Context) error {
	if s.queue == nil || s.action == violation.ActionNone || s.action == violation.ActionDismiss {
		return nil
	}
	req, posted := s.queue.Post(s.action, s.id.String())
	if posted {
		s.logger.Info("host request posted",
			logging.String(logging.FieldAction, string(req.Action)),
			logging.String(logging.FieldRequestID, req.ID),
			logging.String(logging.FieldEventType, "host_request_posted"),
		)
	}
	return nil
}
