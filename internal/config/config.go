package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Monitor contains configuration for the evaluation loop.
type Monitor struct {
	// QueueSize bounds the number of pending signal updates before writers block.
	QueueSize int `toml:"queue_size"`
}

// Display detection modes.
const (
	DisplayDetectionSysfs = "sysfs"
	DisplayDetectionHost  = "host"
	DisplayDetectionOff   = "off"
)

// Sources contains configuration for the signal producers.
type Sources struct {
	ProbePermissionsOnStart bool   `toml:"probe_permissions_on_start"`
	DisplayDetection        string `toml:"display_detection"`
	DRMSysfsDir             string `toml:"drm_sysfs_dir"`
	DisplayPollInterval     int    `toml:"display_poll_interval"`
}

// Noise contains configuration for ambient noise polling.
type Noise struct {
	Threshold    float64 `toml:"threshold"`
	PollInterval int     `toml:"poll_interval"`
	StaleAfter   int     `toml:"stale_after"`
}

// Remediation contains configuration for remediation side effects.
type Remediation struct {
	ReloadCommand string `toml:"reload_command"`
	ReloadTimeout int    `toml:"reload_timeout"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic          string `toml:"ntfy_topic"`
	RequestTimeout     int    `toml:"request_timeout"`
	DedupWindowSeconds int    `toml:"dedup_window_seconds"`
	Noise              bool   `toml:"noise"`
	Reloads            bool   `toml:"reloads"`
}

// Config encapsulates all configuration values for proctor.
//
// Configuration sections by subsystem:
//   - Paths: state and log directories
//   - Logging: log format, level, and retention
//   - Monitor: evaluation queue sizing
//   - Sources: signal producer behavior and display detection
//   - Noise: ambient noise threshold and polling
//   - Remediation: hard-reload side effects
//   - Notifications: ntfy push notification settings
type Config struct {
	Paths         Paths         `toml:"paths"`
	Logging       Logging       `toml:"logging"`
	Monitor       Monitor       `toml:"monitor"`
	Sources       Sources       `toml:"sources"`
	Noise         Noise         `toml:"noise"`
	Remediation   Remediation   `toml:"remediation"`
	Notifications Notifications `toml:"notifications"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("proctor.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the location of the violation audit database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.StateDir, "violations.db")
}

// SocketPath returns the daemon IPC socket location.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.StateDir, "proctor.sock")
}

// LockPath returns the daemon single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "proctord.lock")
}

// DisplayPollDuration returns the display fallback poll interval.
func (c *Config) DisplayPollDuration() time.Duration {
	return time.Duration(c.Sources.DisplayPollInterval) * time.Second
}

// NoisePollDuration returns the ambient noise sampling interval.
func (c *Config) NoisePollDuration() time.Duration {
	return time.Duration(c.Noise.PollInterval) * time.Second
}

// NoiseStaleDuration returns how old an audio frame may be before the noise
// signal reverts to unset.
func (c *Config) NoiseStaleDuration() time.Duration {
	return time.Duration(c.Noise.StaleAfter) * time.Second
}

// ReloadTimeoutDuration bounds the optional reload command.
func (c *Config) ReloadTimeoutDuration() time.Duration {
	return time.Duration(c.Remediation.ReloadTimeout) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
