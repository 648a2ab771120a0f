package sources

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"proctor/internal/logging"
	"proctor/internal/signal"
)

// LevelMeter holds the most recent audio frequency frame reported by the host.
type LevelMeter struct {
	mu   sync.Mutex
	bins []float64
	at   time.Time
	now  func() time.Time
}

// NewLevelMeter creates a meter. A nil clock uses time.Now.
func NewLevelMeter(now func() time.Time) *LevelMeter {
	if now == nil {
		now = time.Now
	}
	return &LevelMeter{now: now}
}

// Report stores a copy of one frequency-bin frame.
func (m *LevelMeter) Report(bins []float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bins = append(m.bins[:0], bins...)
	m.at = m.now()
}

// Level returns the mean bin value of the latest frame. ok is false when no
// frame has arrived, the frame is empty, or it is older than maxAge.
func (m *LevelMeter) Level(maxAge time.Duration) (level float64, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.bins) == 0 || m.at.IsZero() {
		return 0, false
	}
	if maxAge > 0 && m.now().Sub(m.at) > maxAge {
		return 0, false
	}
	return MeanLevel(m.bins), true
}

// MeanLevel averages the bins of one frame.
func MeanLevel(bins []float64) float64 {
	if len(bins) == 0 {
		return 0
	}
	var sum float64
	for _, b := range bins {
		sum += b
	}
	return sum / float64(len(bins))
}

// NoiseSource samples a LevelMeter on an interval and writes the ambient noise slot.
type NoiseSource struct {
	meter      *LevelMeter
	threshold  float64
	interval   time.Duration
	staleAfter time.Duration
	logger     *slog.Logger

	mu     sync.Mutex
	slot   slot
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewNoiseSource creates a poller over meter.
func NewNoiseSource(meter *LevelMeter, threshold float64, interval, staleAfter time.Duration, logger *slog.Logger) *NoiseSource {
	if interval <= 0 {
		interval = time.Second
	}
	return &NoiseSource{
		meter:      meter,
		threshold:  threshold,
		interval:   interval,
		staleAfter: staleAfter,
		logger:     logging.NewComponentLogger(logger, "noise"),
	}
}

// Name identifies the source in logs.
func (s *NoiseSource) Name() string { return "noise" }

// Signals returns the ambient noise slot.
func (s *NoiseSource) Signals() []signal.ID { return []signal.ID{signal.AmbientNoise} }

// Meter returns the meter the host reports frames into.
func (s *NoiseSource) Meter() *LevelMeter { return s.meter }

// Start claims the slot and begins polling.
func (s *NoiseSource) Start(ctx context.Context, claim Claimer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.slot.claim(claim, signal.AmbientNoise); err != nil {
		return fmt.Errorf("start %s: %w", s.Name(), err)
	}
	pollCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	go s.loop(pollCtx)
	return nil
}

// Stop ends polling, writes Unset, and releases the slot.
func (s *NoiseSource) Stop(ctx context.Context) {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.slot.release(ctx)
}

func (s *NoiseSource) loop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Poll(ctx); err != nil && ctx.Err() == nil {
				s.logger.Debug("noise poll failed", logging.Error(err))
			}
		}
	}
}

// Poll samples the meter once and writes the slot. A missing or stale frame
// writes Unset.
func (s *NoiseSource) Poll(ctx context.Context) error {
	value := signal.Unset
	if level, ok := s.meter.Level(s.staleAfter); ok {
		value = signal.FromCondition(level <= s.threshold)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slot.set(ctx, value)
}
