package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"proctor/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Display detection is switched off so tests never touch the host's sysfs.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Sources.DisplayDetection = config.DisplayDetectionOff
	cfgVal.Sources.DRMSysfsDir = filepath.Join(base, "drm")
	cfgVal.Sources.ProbePermissionsOnStart = false
	cfgVal.Notifications.NtfyTopic = ""

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithNtfyTopic points notifications at the provided topic URL.
func WithNtfyTopic(topic string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Notifications.NtfyTopic = topic
	}
}

// WithPermissionProbe toggles camera/microphone probing on session start.
func WithPermissionProbe(enabled bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Sources.ProbePermissionsOnStart = enabled
	}
}

// WithDisplayDetection selects the display detection mode.
func WithDisplayDetection(mode string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Sources.DisplayDetection = mode
	}
}

// WithStubReloadCommand writes an executable that records each invocation to
// a marker file and configures it as the reload command. The marker path is
// returned through the provided pointer.
func WithStubReloadCommand(marker *string) ConfigOption {
	return func(b *configBuilder) {
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		out := filepath.Join(b.baseDir, "reload.calls")
		script := []byte("#!/bin/sh\necho reload >> \"" + out + "\"\n")
		target := filepath.Join(binDir, "reload-kiosk")
		if err := os.WriteFile(target, script, 0o755); err != nil {
			b.t.Fatalf("write stub reload command: %v", err)
		}
		b.cfg.Remediation.ReloadCommand = target
		if marker != nil {
			*marker = out
		}
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
