package sources

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"proctor/internal/logging"
	"proctor/internal/signal"
	"proctor/internal/violation"
)

// SurfaceMonitor is the display surface reported when the whole screen is shared.
const SurfaceMonitor = "monitor"

// ScreenCaptureSource owns the screen-shared and share-correctness slots. The
// host reports the capture state it obtained and whether the track ended.
type ScreenCaptureSource struct {
	queue  *RequestQueue
	logger *slog.Logger

	mu      sync.Mutex
	shared  slot
	correct slot
}

// NewScreenCaptureSource creates the screen capture source.
func NewScreenCaptureSource(queue *RequestQueue, logger *slog.Logger) *ScreenCaptureSource {
	return &ScreenCaptureSource{
		queue:  queue,
		logger: logging.NewComponentLogger(logger, "screen-capture"),
	}
}

// Name identifies the source in logs.
func (s *ScreenCaptureSource) Name() string { return "screen-capture" }

// Signals returns the slots the source owns.
func (s *ScreenCaptureSource) Signals() []signal.ID {
	return []signal.ID{signal.ScreenShared, signal.ScreenShareCorrect}
}

// Start claims both slots.
func (s *ScreenCaptureSource) Start(ctx context.Context, claim Claimer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.shared.claim(claim, signal.ScreenShared); err != nil {
		return fmt.Errorf("start %s: %w", s.Name(), err)
	}
	if err := s.correct.claim(claim, signal.ScreenShareCorrect); err != nil {
		s.shared.release(ctx)
		return fmt.Errorf("start %s: %w", s.Name(), err)
	}
	return nil
}

// Stop writes Unset to both slots and releases them.
func (s *ScreenCaptureSource) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shared.release(ctx)
	s.correct.release(ctx)
}

// ReportCapture records the outcome of a capture attempt. Only a shared
// "monitor" surface counts as the entire screen. When nothing is shared the
// correctness slot keeps its previous value.
func (s *ScreenCaptureSource) ReportCapture(ctx context.Context, shared bool, surface string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !shared {
		return s.shared.set(ctx, signal.Violated)
	}
	if err := s.shared.set(ctx, signal.Ok); err != nil {
		return err
	}
	correct := strings.EqualFold(strings.TrimSpace(surface), SurfaceMonitor)
	if !correct {
		s.logger.Info("partial screen shared",
			logging.String("surface", surface),
			logging.String(logging.FieldEventType, "screen_share_partial"),
		)
	}
	return s.correct.set(ctx, signal.FromCondition(correct))
}

// ReportEnded records that the capture track ended.
func (s *ScreenCaptureSource) ReportEnded(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shared.set(ctx, signal.Violated)
}

// Remediate asks the host to start a new screen capture.
func (s *ScreenCaptureSource) Remediate(_ context.Context) error {
	if s.queue == nil {
		return nil
	}
	s.queue.Post(violation.ActionStartScreenCapture, signal.ScreenShared.String())
	return nil
}
