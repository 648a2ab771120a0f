package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"proctor/internal/config"
	"proctor/internal/logging"
	"proctor/internal/remediation"
	"proctor/internal/signal"
	"proctor/internal/sources"
	"proctor/internal/violation"
)

func (d *Daemon) buildSources(logger *slog.Logger) {
	cfg := d.cfg
	sourceLogger := logging.NewComponentLogger(logger, "sources")

	d.hosts = map[signal.ID]*sources.HostSource{
		// The monitor starts with focus; the host reports the first blur.
		signal.TabFocus: sources.NewHostSource(signal.TabFocus, d.requests,
			sources.WithInitialValue(signal.Ok),
			sources.WithHostLogger(sourceLogger)),
		signal.CameraPermission: sources.NewHostSource(signal.CameraPermission, d.requests,
			sources.WithProbeOnStart(cfg.Sources.ProbePermissionsOnStart),
			sources.WithHostLogger(sourceLogger)),
		signal.MicrophonePermission: sources.NewHostSource(signal.MicrophonePermission, d.requests,
			sources.WithProbeOnStart(cfg.Sources.ProbePermissionsOnStart),
			sources.WithHostLogger(sourceLogger)),
		signal.Fullscreen: sources.NewHostSource(signal.Fullscreen, d.requests,
			sources.WithHostLogger(sourceLogger)),
	}
	d.screen = sources.NewScreenCaptureSource(d.requests, sourceLogger)
	d.noise = sources.NewNoiseSource(
		sources.NewLevelMeter(time.Now),
		cfg.Noise.Threshold,
		cfg.NoisePollDuration(),
		cfg.NoiseStaleDuration(),
		sourceLogger,
	)

	switch cfg.Sources.DisplayDetection {
	case config.DisplayDetectionSysfs:
		d.display = sources.NewDisplaySource(cfg.Sources.DRMSysfsDir, cfg.DisplayPollDuration(), true, sourceLogger)
	case config.DisplayDetectionHost:
		d.hosts[signal.MultiDisplay] = sources.NewHostSource(signal.MultiDisplay, d.requests,
			sources.WithHostLogger(sourceLogger))
	}

	// Slot order keeps startup logs and probes deterministic.
	for _, id := range signal.All() {
		if host, ok := d.hosts[id]; ok {
			d.sources = append(d.sources, host)
		}
	}
	d.sources = append(d.sources, d.screen, d.noise)
	if d.display != nil {
		d.sources = append(d.sources, d.display)
	}
}

func (d *Daemon) registerHandlers() {
	d.dispatcher.Register(violation.ActionDismiss, remediation.HandlerFunc(func(ctx context.Context, req remediation.Request) error {
		_, err := d.monitor.Dismiss(ctx, req.Kind)
		return err
	}))
	for _, id := range []signal.ID{signal.CameraPermission, signal.MicrophonePermission, signal.Fullscreen} {
		host := d.hosts[id]
		d.dispatcher.Register(violation.ForSignal(id).Action(), remediation.HandlerFunc(func(ctx context.Context, _ remediation.Request) error {
			return host.Remediate(ctx)
		}))
	}
	d.dispatcher.Register(violation.ActionStartScreenCapture, remediation.HandlerFunc(func(ctx context.Context, _ remediation.Request) error {
		return d.screen.Remediate(ctx)
	}))
	d.dispatcher.Register(violation.ActionHardReload, remediation.HandlerFunc(func(ctx context.Context, req remediation.Request) error {
		return d.reload(ctx, req.Seq)
	}))
}

func (d *Daemon) startSources(ctx context.Context) error {
	for i, src := range d.sources {
		if err := src.Start(ctx, d.monitor); err != nil {
			for j := i - 1; j >= 0; j-- {
				d.sources[j].Stop(ctx)
			}
			return err
		}
		d.logger.Debug("signal source started", logging.String("source", src.Name()))
	}
	return nil
}

func (d *Daemon) stopSources(ctx context.Context) {
	for i := len(d.sources) - 1; i >= 0; i-- {
		d.sources[i].Stop(ctx)
	}
}

// ReportSignal records a value observed by the host for a host-fed signal.
// Like every report operation it returns once the monitor has applied the value.
func (d *Daemon) ReportSignal(ctx context.Context, id signal.ID, value signal.TriState) error {
	if !id.Valid() {
		return fmt.Errorf("report %v: %w", id, signal.ErrUnknownSignal)
	}
	host, ok := d.hosts[id]
	if !ok {
		return fmt.Errorf("report %s: %w", id, ErrNotHostOwned)
	}
	if err := d.ensureRunning(); err != nil {
		return err
	}
	if err := host.Report(ctx, value); err != nil {
		return err
	}
	return d.monitor.Sync(ctx)
}

// ReportCapture records the outcome of a screen capture attempt.
func (d *Daemon) ReportCapture(ctx context.Context, shared bool, surface string) error {
	if err := d.ensureRunning(); err != nil {
		return err
	}
	if err := d.screen.ReportCapture(ctx, shared, surface); err != nil {
		return err
	}
	return d.monitor.Sync(ctx)
}

// ReportCaptureEnded records that the host's capture track ended.
func (d *Daemon) ReportCaptureEnded(ctx context.Context) error {
	if err := d.ensureRunning(); err != nil {
		return err
	}
	if err := d.screen.ReportEnded(ctx); err != nil {
		return err
	}
	return d.monitor.Sync(ctx)
}

// ReportAudioFrame stores one frequency-bin frame and samples the noise level
// without waiting for the next poll tick.
func (d *Daemon) ReportAudioFrame(ctx context.Context, bins []float64) error {
	if err := d.ensureRunning(); err != nil {
		return err
	}
	d.noise.Meter().Report(bins)
	if err := d.noise.Poll(ctx); err != nil {
		return err
	}
	return d.monitor.Sync(ctx)
}
