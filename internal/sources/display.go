package sources

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"proctor/internal/logging"
	"proctor/internal/signal"
)

// CountConnectedDisplays counts DRM connectors under dir whose status file
// reads "connected".
func CountConnectedDisplays(dir string) (int, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*", "status"))
	if err != nil {
		return 0, fmt.Errorf("glob drm connectors: %w", err)
	}
	if len(matches) == 0 {
		if _, statErr := os.Stat(dir); statErr != nil {
			return 0, fmt.Errorf("read drm sysfs: %w", statErr)
		}
	}
	connected := 0
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if strings.TrimSpace(string(data)) == "connected" {
			connected++
		}
	}
	return connected, nil
}

// DisplayValue maps a connector count to the multi-display slot value. Zero
// connectors means the count is not trustworthy, as on a headless VM.
func DisplayValue(count int, err error) signal.TriState {
	switch {
	case err != nil || count <= 0:
		return signal.Unset
	case count == 1:
		return signal.Ok
	default:
		return signal.Violated
	}
}

// DisplaySource detects extra monitors through DRM sysfs. It re-counts on udev
// hotplug events and on a fallback poll interval.
type DisplaySource struct {
	dir      string
	interval time.Duration
	watch    bool
	logger   *slog.Logger

	mu      sync.Mutex
	slot    slot
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	hotplug *hotplugWatcher
	last    int
}

// NewDisplaySource creates a detector over the DRM sysfs directory. When watch
// is true it also subscribes to udev netlink drm events.
func NewDisplaySource(dir string, interval time.Duration, watch bool, logger *slog.Logger) *DisplaySource {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &DisplaySource{
		dir:      dir,
		interval: interval,
		watch:    watch,
		logger:   logging.NewComponentLogger(logger, "display"),
		last:     -1,
	}
}

// Name identifies the source in logs.
func (s *DisplaySource) Name() string { return "display" }

// Signals returns the multi-display slot.
func (s *DisplaySource) Signals() []signal.ID { return []signal.ID{signal.MultiDisplay} }

// Start claims the slot, counts once, and begins watching.
func (s *DisplaySource) Start(ctx context.Context, claim Claimer) error {
	s.mu.Lock()
	if err := s.slot.claim(claim, signal.MultiDisplay); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("start %s: %w", s.Name(), err)
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.last = -1
	triggers := make(chan struct{}, 1)
	if s.watch {
		s.hotplug = newHotplugWatcher(s.logger, func() {
			select {
			case triggers <- struct{}{}:
			default:
			}
		})
	}
	hotplug := s.hotplug
	s.mu.Unlock()

	if err := s.Poll(runCtx); err != nil {
		s.logger.Debug("initial display count failed", logging.Error(err))
	}
	hotplug.Start(runCtx)

	s.wg.Add(1)
	go s.loop(runCtx, triggers)
	return nil
}

// Stop ends watching, writes Unset, and releases the slot.
func (s *DisplaySource) Stop(ctx context.Context) {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	hotplug := s.hotplug
	s.hotplug = nil
	s.mu.Unlock()

	hotplug.Stop()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.slot.release(ctx)
}

func (s *DisplaySource) loop(ctx context.Context, triggers <-chan struct{}) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-triggers:
		}
		if err := s.Poll(ctx); err != nil && ctx.Err() == nil {
			s.logger.Debug("display poll failed", logging.Error(err))
		}
	}
}

// Poll counts connectors once and writes the slot.
func (s *DisplaySource) Poll(ctx context.Context) error {
	count, err := CountConnectedDisplays(s.dir)
	value := DisplayValue(count, err)

	s.mu.Lock()
	defer s.mu.Unlock()
	if count != s.last {
		if err != nil {
			logging.WarnWithContext(s.logger, "display count unavailable", "display_count_unavailable",
				logging.String("dir", s.dir),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check sources.drm_sysfs_dir or set sources.display_detection = \"host\""),
				logging.String(logging.FieldImpact, "multiple displays cannot be detected"),
			)
		} else {
			s.logger.Info("display count changed",
				logging.Int("connected", count),
				logging.String("value", value.String()),
				logging.String(logging.FieldEventType, "display_count_changed"),
			)
		}
		s.last = count
	}
	return s.slot.set(ctx, value)
}
