package scenario

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"proctor/internal/violation"
)

func fixedClock() func() time.Time {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	var n int
	return func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
}

func runFile(t *testing.T, name string) *Report {
	t.Helper()
	script, err := Load(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("Load(%s): %v", name, err)
	}
	report, err := Run(context.Background(), script, Options{Clock: fixedClock()})
	if err != nil {
		t.Fatalf("Run(%s): %v", name, err)
	}
	if !report.Passed() {
		t.Fatalf("%s expectations failed:\n%s", name, strings.Join(report.Failures, "\n"))
	}
	return report
}

func TestFullscreenExitAndRecovery(t *testing.T) {
	report := runFile(t, "fullscreen_exit.yaml")
	if len(report.Actions) != 1 || report.Actions[0] != violation.ActionRequestFullscreen {
		t.Fatalf("expected one fullscreen request, got %v", report.Actions)
	}
	if report.Active != violation.None {
		t.Fatalf("expected no active violation at the end, got %v", report.Active)
	}
}

func TestCameraOutranksFullscreen(t *testing.T) {
	report := runFile(t, "camera_then_fullscreen.yaml")
	if len(report.Entries) != 2 {
		t.Fatalf("expected two entries, got %+v", report.Entries)
	}
	if report.Entries[0].Kind != violation.CameraPermissionMissing || report.Entries[1].Kind != violation.FullScreenExited {
		t.Fatalf("unexpected entry order %+v", report.Entries)
	}
	if !report.Entries[0].Timestamp.Before(report.Entries[1].Timestamp) {
		t.Fatal("expected strictly increasing timestamps")
	}
}

func TestSecondDisplayReloadsOnce(t *testing.T) {
	report := runFile(t, "second_display.yaml")
	if len(report.Actions) != 1 || report.Actions[0] != violation.ActionHardReload {
		t.Fatalf("expected exactly one hard reload, got %v", report.Actions)
	}
	if len(report.Acks) != 3 {
		t.Fatalf("expected three recorded clicks, got %+v", report.Acks)
	}
	executed := 0
	for _, ack := range report.Acks[:2] {
		if ack.Error != "" {
			t.Fatalf("unexpected ack %+v", ack)
		}
		if !ack.Stale && !ack.Deduplicated {
			executed++
		}
	}
	if executed != 1 {
		t.Fatalf("expected one executed click, got %d", executed)
	}
	if !report.Acks[2].Stale {
		t.Fatalf("expected the late click on the first prompt to be stale, got %+v", report.Acks[2])
	}
	if len(report.Entries) != 2 || report.Entries[0].SessionID == report.Entries[1].SessionID {
		t.Fatalf("expected the second prompt logged in a new session, got %+v", report.Entries)
	}
	if report.Final.Active == nil || report.Final.Active.Seq != report.Entries[1].Seq {
		t.Fatalf("expected the active prompt to be the second entry, got %+v", report.Final.Active)
	}
}

func TestExpectationFailuresAreReported(t *testing.T) {
	script, err := Parse([]byte(`
name: wrong expectation
steps:
  - {signal: tab_focus, value: violated}
  - expect: {active: none, log_len: 3}
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	report, err := Run(context.Background(), script, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Passed() || len(report.Failures) != 2 {
		t.Fatalf("expected two failures, got %v", report.Failures)
	}
	if !strings.Contains(report.Failures[0], "active = tab_not_active") {
		t.Fatalf("unexpected failure text %q", report.Failures[0])
	}
}

func TestStaleAckRunsNothing(t *testing.T) {
	script, err := Parse([]byte(`
name: stale ack
steps:
  - {signal: tab_focus, value: violated}
  - {ack: true, kind: full_screen_exited}
  - expect: {actions: 0, prompt_open: true}
  - {ack: true}
  - expect: {actions: 1, prompt_open: false, active: tab_not_active}
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	report, err := Run(context.Background(), script, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !report.Passed() {
		t.Fatalf("unexpected failures: %v", report.Failures)
	}
	if !report.Acks[0].Stale || report.Acks[1].Stale {
		t.Fatalf("unexpected acks %+v", report.Acks)
	}
}

func TestNoiseIsAdvisory(t *testing.T) {
	script, err := Parse([]byte(`
name: noise
steps:
  - {signal: tab_focus, value: ok}
  - {signal: ambient_noise, value: violated}
  - expect: {active: none, noise: true, log_len: 1, last_message: Noise Detected}
  - {signal: ambient_noise, value: ok}
  - {signal: ambient_noise, value: violated}
  - expect: {log_len: 2}
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	report, err := Run(context.Background(), script, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !report.Passed() {
		t.Fatalf("unexpected failures: %v", report.Failures)
	}
}

func TestParseRejectsBadScripts(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "empty", yaml: "name: x\nsteps: []\n"},
		{name: "unknown signal", yaml: "steps:\n  - {signal: heartbeat, value: ok}\n"},
		{name: "bad value", yaml: "steps:\n  - {signal: tab_focus, value: maybe}\n"},
		{name: "two actions", yaml: "steps:\n  - {signal: tab_focus, value: ok, ack: true}\n"},
		{name: "unknown kind", yaml: "steps:\n  - expect: {active: tab_closed}\n"},
		{name: "unknown field", yaml: "steps:\n  - {signl: tab_focus}\n"},
		{name: "negative seq", yaml: "steps:\n  - {ack: true, seq: -2}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.yaml)); err == nil {
				t.Fatal("expected parse error")
			}
		})
	}

	_, err := Parse([]byte("steps:\n  - {ack: true, clicks: -1}\n"))
	if !errors.Is(err, ErrInvalidScript) {
		t.Fatalf("expected ErrInvalidScript, got %v", err)
	}
}
