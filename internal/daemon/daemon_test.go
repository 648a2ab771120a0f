package daemon_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"proctor/internal/config"
	"proctor/internal/daemon"
	"proctor/internal/logging"
	"proctor/internal/signal"
	"proctor/internal/testsupport"
	"proctor/internal/violation"
)

func newDaemon(t *testing.T, cfg *config.Config) (*daemon.Daemon, context.Context) {
	t.Helper()
	store := testsupport.MustOpenStore(t, cfg)
	d, err := daemon.New(cfg, store, logging.NewNop(), nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		d.Stop()
		cancel()
	})
	return d, ctx
}

func startDaemon(t *testing.T, cfg *config.Config) (*daemon.Daemon, context.Context) {
	t.Helper()
	d, ctx := newDaemon(t, cfg)
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return d, ctx
}

func settle(t *testing.T, d *daemon.Daemon, ctx context.Context) daemon.Status {
	t.Helper()
	if err := d.Monitor().Evaluate(ctx); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	return d.Status(ctx)
}

func activeKind(status daemon.Status) violation.Kind {
	if status.Active == nil {
		return violation.None
	}
	return status.Active.Kind
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, ctx := newDaemon(t, cfg)

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	status := d.Status(ctx)
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.SessionID == "" {
		t.Fatal("expected a session id")
	}

	// Second start should fail
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	if d.Status(ctx).Running {
		t.Fatal("expected daemon to be stopped")
	}
	if err := d.Start(ctx); err != nil {
		t.Fatalf("restart after stop failed: %v", err)
	}
}

func TestDaemonSingleInstanceLock(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	startDaemon(t, cfg)

	other, err := daemon.New(cfg, nil, logging.NewNop(), nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	err = other.Start(context.Background())
	if err == nil {
		other.Stop()
		t.Fatal("expected second daemon to fail to acquire the lock")
	}
	if !strings.Contains(err.Error(), "already running") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestInitialStateHasFocusAndNoViolation(t *testing.T) {
	d, ctx := startDaemon(t, testsupport.NewConfig(t))
	status := settle(t, d, ctx)

	if status.Signals["tab_focus"] != "ok" {
		t.Fatalf("expected tab focus ok at start, got %q", status.Signals["tab_focus"])
	}
	if status.Active != nil {
		t.Fatalf("expected no active violation, got %+v", status.Active)
	}
	if status.LogEntries != 0 {
		t.Fatalf("expected empty log, got %d entries", status.LogEntries)
	}
}

func TestReportSignalRequiresRunningDaemon(t *testing.T) {
	d, ctx := newDaemon(t, testsupport.NewConfig(t))
	err := d.ReportSignal(ctx, signal.TabFocus, signal.Violated)
	if !errors.Is(err, daemon.ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
}

func TestReportSignalRejectsNativeSignals(t *testing.T) {
	d, ctx := startDaemon(t, testsupport.NewConfig(t))

	for _, id := range []signal.ID{signal.AmbientNoise, signal.ScreenShared, signal.MultiDisplay} {
		if err := d.ReportSignal(ctx, id, signal.Violated); !errors.Is(err, daemon.ErrNotHostOwned) {
			t.Fatalf("%s: expected ErrNotHostOwned, got %v", id, err)
		}
	}
	if err := d.ReportSignal(ctx, signal.ID(99), signal.Ok); !errors.Is(err, signal.ErrUnknownSignal) {
		t.Fatalf("expected ErrUnknownSignal, got %v", err)
	}
}

func TestTabBlurDismissAndStaleAck(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, ctx := startDaemon(t, cfg)

	if err := d.ReportSignal(ctx, signal.TabFocus, signal.Violated); err != nil {
		t.Fatalf("ReportSignal: %v", err)
	}
	status := settle(t, d, ctx)
	if activeKind(status) != violation.TabNotActive {
		t.Fatalf("expected tab_not_active, got %v", activeKind(status))
	}
	if !status.Active.PromptOpen || status.Active.ButtonLabel != "Okay" {
		t.Fatalf("unexpected active view %+v", status.Active)
	}

	res, err := d.Acknowledge(ctx, violation.TabNotActive, 0)
	if err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}
	if res.Stale || res.Action != violation.ActionDismiss {
		t.Fatalf("unexpected ack result %+v", res)
	}
	status = d.Status(ctx)
	if status.Active == nil || status.Active.PromptOpen {
		t.Fatalf("expected prompt closed while violation persists, got %+v", status.Active)
	}

	res, err = d.Acknowledge(ctx, violation.FullScreenExited, 0)
	if err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}
	if !res.Stale {
		t.Fatalf("expected stale ack for inactive kind, got %+v", res)
	}

	entries := d.Violations(ctx)
	if len(entries) != 1 || entries[0].Kind != violation.TabNotActive {
		t.Fatalf("unexpected log %+v", entries)
	}
	if entries[0].SessionID != status.SessionID {
		t.Fatalf("expected entry stamped with session %q, got %q", status.SessionID, entries[0].SessionID)
	}

	history, err := d.History(ctx, status.SessionID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 1 || history[0].Message != "You should not leave the assessment Tab" {
		t.Fatalf("expected persisted entry, got %+v", history)
	}
}

func TestPermissionAckPostsSingleHostRequest(t *testing.T) {
	d, ctx := startDaemon(t, testsupport.NewConfig(t))

	if err := d.ReportSignal(ctx, signal.CameraPermission, signal.Violated); err != nil {
		t.Fatalf("ReportSignal: %v", err)
	}
	settle(t, d, ctx)
	for i := 0; i < 3; i++ {
		res, err := d.Acknowledge(ctx, violation.None, 0)
		if err != nil {
			t.Fatalf("Acknowledge: %v", err)
		}
		if res.Kind != violation.CameraPermissionMissing || res.Stale {
			t.Fatalf("unexpected ack result %+v", res)
		}
	}

	pending := d.PendingRequests(ctx, false)
	if len(pending) != 1 || pending[0].Action != violation.ActionRequestCameraPermission {
		t.Fatalf("expected one camera request, got %+v", pending)
	}
	drained := d.PendingRequests(ctx, true)
	if len(drained) != 1 || pending[0].ID != drained[0].ID {
		t.Fatalf("expected drain to return the pending request, got %+v", drained)
	}
	if len(d.PendingRequests(ctx, false)) != 0 {
		t.Fatal("expected queue empty after drain")
	}
}

func TestPermissionProbeOnStart(t *testing.T) {
	d, ctx := startDaemon(t, testsupport.NewConfig(t, testsupport.WithPermissionProbe(true)))

	actions := map[violation.Action]bool{}
	for _, req := range d.PendingRequests(ctx, false) {
		actions[req.Action] = true
	}
	if !actions[violation.ActionRequestCameraPermission] || !actions[violation.ActionRequestMicrophonePermission] {
		t.Fatalf("expected camera and microphone probes, got %v", actions)
	}
}

func TestPartialScreenShare(t *testing.T) {
	d, ctx := startDaemon(t, testsupport.NewConfig(t))

	if err := d.ReportCapture(ctx, true, "window"); err != nil {
		t.Fatalf("ReportCapture: %v", err)
	}
	status := settle(t, d, ctx)
	if activeKind(status) != violation.ScreenWronglyShared {
		t.Fatalf("expected screen_wrongly_shared, got %v", activeKind(status))
	}

	if err := d.ReportCapture(ctx, true, "monitor"); err != nil {
		t.Fatalf("ReportCapture: %v", err)
	}
	if kind := activeKind(settle(t, d, ctx)); kind != violation.None {
		t.Fatalf("expected violation cleared, got %v", kind)
	}

	if err := d.ReportCaptureEnded(ctx); err != nil {
		t.Fatalf("ReportCaptureEnded: %v", err)
	}
	if kind := activeKind(settle(t, d, ctx)); kind != violation.ScreenNotShared {
		t.Fatalf("expected screen_not_shared after track ended, got %v", kind)
	}
}

func TestAudioFrameLogsNoiseWithoutBlocking(t *testing.T) {
	d, ctx := startDaemon(t, testsupport.NewConfig(t))

	loud := []float64{250, 240, 260}
	if err := d.ReportAudioFrame(ctx, loud); err != nil {
		t.Fatalf("ReportAudioFrame: %v", err)
	}
	status := settle(t, d, ctx)
	if !status.Noise {
		t.Fatal("expected noise flag")
	}
	if status.Active != nil {
		t.Fatalf("noise must not block, got %+v", status.Active)
	}
	entries := d.Violations(ctx)
	if len(entries) != 1 || entries[0].Kind != violation.NoiseDetected {
		t.Fatalf("expected single noise entry, got %+v", entries)
	}

	if err := d.ReportAudioFrame(ctx, []float64{1, 2, 3}); err != nil {
		t.Fatalf("ReportAudioFrame: %v", err)
	}
	if settle(t, d, ctx).Noise {
		t.Fatal("expected noise flag cleared after quiet frame")
	}
}

func TestHardReloadStartsNewSession(t *testing.T) {
	var marker string
	cfg := testsupport.NewConfig(t,
		testsupport.WithDisplayDetection(config.DisplayDetectionHost),
		testsupport.WithStubReloadCommand(&marker),
	)
	d, ctx := startDaemon(t, cfg)
	before := d.SessionID()

	if err := d.ReportSignal(ctx, signal.MultiDisplay, signal.Violated); err != nil {
		t.Fatalf("ReportSignal: %v", err)
	}
	if kind := activeKind(settle(t, d, ctx)); kind != violation.MultipleDisplaysDetected {
		t.Fatalf("expected multiple_displays_detected, got %v", kind)
	}

	res, err := d.Acknowledge(ctx, violation.MultipleDisplaysDetected, 0)
	if err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}
	if res.Action != violation.ActionHardReload || res.Deduplicated {
		t.Fatalf("unexpected ack result %+v", res)
	}

	data, err := os.ReadFile(marker)
	if err != nil {
		t.Fatalf("expected reload command to run: %v", err)
	}
	if got := strings.Count(string(data), "reload"); got != 1 {
		t.Fatalf("expected one reload command invocation, got %d", got)
	}

	status := settle(t, d, ctx)
	if status.SessionID == before {
		t.Fatal("expected a new session after reload")
	}
	if status.Active != nil {
		t.Fatalf("expected signals reset after reload, got %+v", status.Active)
	}
	if status.Signals["multi_display"] != "unset" || status.Signals["tab_focus"] != "ok" {
		t.Fatalf("unexpected signals after reload: %v", status.Signals)
	}
	if status.ReloadLatched {
		t.Fatal("expected reload latch rearmed")
	}

	var sawReload bool
	for _, req := range d.PendingRequests(ctx, true) {
		if req.Action == violation.ActionHardReload {
			sawReload = true
		}
	}
	if !sawReload {
		t.Fatal("expected hard-reload host request")
	}

	entries := d.Violations(ctx)
	if len(entries) != 1 || entries[0].SessionID != before {
		t.Fatalf("expected log to survive reload with the old session, got %+v", entries)
	}

	// The next violation is stamped with the new session.
	if err := d.ReportSignal(ctx, signal.Fullscreen, signal.Violated); err != nil {
		t.Fatalf("ReportSignal: %v", err)
	}
	settle(t, d, ctx)
	entries = d.Violations(ctx)
	if len(entries) != 2 || entries[1].SessionID != status.SessionID {
		t.Fatalf("expected new entry stamped with new session, got %+v", entries)
	}

	sessions, err := d.Sessions(ctx)
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected two persisted sessions, got %+v", sessions)
	}
}

func TestFailedReloadCommandKeepsSession(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithDisplayDetection(config.DisplayDetectionHost))
	cfg.Remediation.ReloadCommand = "exit 3"
	d, ctx := startDaemon(t, cfg)
	before := d.SessionID()

	if err := d.ReportSignal(ctx, signal.MultiDisplay, signal.Violated); err != nil {
		t.Fatalf("ReportSignal: %v", err)
	}
	settle(t, d, ctx)

	if _, err := d.Acknowledge(ctx, violation.MultipleDisplaysDetected, 0); err == nil {
		t.Fatal("expected reload failure")
	}
	status := settle(t, d, ctx)
	if status.SessionID != before {
		t.Fatal("failed reload must keep the session")
	}
	if status.ReloadLatched {
		t.Fatal("failed reload must clear the latch so the user can retry")
	}
	if activeKind(status) != violation.MultipleDisplaysDetected {
		t.Fatalf("expected violation still active, got %v", activeKind(status))
	}
}

func TestSysfsDisplayDetection(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithDisplayDetection(config.DisplayDetectionSysfs))
	testsupport.WriteDRMConnector(t, cfg.Sources.DRMSysfsDir, "card0-eDP-1", "connected")
	testsupport.WriteDRMConnector(t, cfg.Sources.DRMSysfsDir, "card0-HDMI-A-1", "connected")

	d, ctx := startDaemon(t, cfg)
	status := settle(t, d, ctx)
	if activeKind(status) != violation.MultipleDisplaysDetected {
		t.Fatalf("expected multiple displays from sysfs, got %v (signals %v)", activeKind(status), status.Signals)
	}
	if err := d.ReportSignal(ctx, signal.MultiDisplay, signal.Ok); !errors.Is(err, daemon.ErrNotHostOwned) {
		t.Fatalf("expected sysfs-owned slot to reject host reports, got %v", err)
	}
}

func TestDoubleClickOnReloadPromptReloadsOnce(t *testing.T) {
	var marker string
	cfg := testsupport.NewConfig(t,
		testsupport.WithDisplayDetection(config.DisplayDetectionSysfs),
		testsupport.WithStubReloadCommand(&marker),
	)
	testsupport.WriteDRMConnector(t, cfg.Sources.DRMSysfsDir, "card0-eDP-1", "connected")
	testsupport.WriteDRMConnector(t, cfg.Sources.DRMSysfsDir, "card0-HDMI-A-1", "connected")
	d, ctx := startDaemon(t, cfg)

	status := settle(t, d, ctx)
	if activeKind(status) != violation.MultipleDisplaysDetected {
		t.Fatalf("expected multiple displays from sysfs, got %v", activeKind(status))
	}
	clicked := status.Active.Seq
	if clicked == 0 {
		t.Fatal("expected the prompt to carry its log sequence number")
	}

	first, err := d.Acknowledge(ctx, violation.MultipleDisplaysDetected, clicked)
	if err != nil {
		t.Fatalf("first click: %v", err)
	}
	if first.Stale || first.Deduplicated || first.Action != violation.ActionHardReload {
		t.Fatalf("unexpected first click result %+v", first)
	}

	// The restarted display source flags the extra monitor again, opening a
	// new prompt in the new session. The second click still answers the old one.
	reloaded := settle(t, d, ctx)
	if activeKind(reloaded) != violation.MultipleDisplaysDetected {
		t.Fatalf("expected the display violation to return after reload, got %v", activeKind(reloaded))
	}
	if reloaded.Active.Seq == clicked {
		t.Fatalf("expected a new prompt after reload, still seq %d", clicked)
	}

	second, err := d.Acknowledge(ctx, violation.MultipleDisplaysDetected, clicked)
	if err != nil {
		t.Fatalf("second click: %v", err)
	}
	if !second.Stale {
		t.Fatalf("expected second click on the old prompt to be stale, got %+v", second)
	}

	data, err := os.ReadFile(marker)
	if err != nil {
		t.Fatalf("expected reload command to run: %v", err)
	}
	if got := strings.Count(string(data), "reload"); got != 1 {
		t.Fatalf("expected exactly one hard reload for a double click, got %d", got)
	}

	entries := d.Violations(ctx)
	if len(entries) != 2 || entries[1].Seq != reloaded.Active.Seq || entries[1].SessionID != reloaded.SessionID {
		t.Fatalf("expected the new prompt logged in the new session, got %+v", entries)
	}

	// The prompt opened by the new session is answerable.
	third, err := d.Acknowledge(ctx, violation.MultipleDisplaysDetected, reloaded.Active.Seq)
	if err != nil {
		t.Fatalf("click on new prompt: %v", err)
	}
	if third.Stale || third.Deduplicated {
		t.Fatalf("expected the new prompt to reload, got %+v", third)
	}
}

func TestTestNotificationWithoutTopic(t *testing.T) {
	d, ctx := newDaemon(t, testsupport.NewConfig(t))
	sent, msg, err := d.TestNotification(ctx)
	if err != nil || sent {
		t.Fatalf("expected unsent notification without error, got sent=%v err=%v", sent, err)
	}
	if msg != "ntfy topic not configured" {
		t.Fatalf("unexpected message %q", msg)
	}
}
