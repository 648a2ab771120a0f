package sources

import (
	"context"
	"errors"

	"proctor/internal/arbiter"
	"proctor/internal/signal"
)

// ErrSourceStopped is returned when a report reaches a source that is not running.
var ErrSourceStopped = errors.New("signal source not running")

// Claimer hands out exclusive slot writers. *arbiter.Monitor implements it.
type Claimer interface {
	Claim(id signal.ID) (*arbiter.Writer, error)
}

// Source produces values for the signal slots it owns. Start claims those
// slots; Stop writes Unset to each of them and releases the claims.
type Source interface {
	Name() string
	Signals() []signal.ID
	Start(ctx context.Context, claim Claimer) error
	Stop(ctx context.Context)
}

// Remediator is implemented by sources that can attempt to correct their own
// violation, typically by asking the host for a permission or a mode change.
type Remediator interface {
	Remediate(ctx context.Context) error
}

// slot guards one writer that comes and goes with Start and Stop.
type slot struct {
	writer *arbiter.Writer
}

func (s *slot) claim(claim Claimer, id signal.ID) error {
	if s.writer != nil {
		// An earlier release failed; the slot is still ours.
		return nil
	}
	w, err := claim.Claim(id)
	if err != nil {
		return err
	}
	s.writer = w
	return nil
}

func (s *slot) set(ctx context.Context, value signal.TriState) error {
	if s.writer == nil {
		return ErrSourceStopped
	}
	return s.writer.Set(ctx, value)
}

func (s *slot) release(ctx context.Context) {
	if s.writer == nil {
		return
	}
	if err := s.writer.Release(ctx); err != nil {
		return
	}
	s.writer = nil
}
