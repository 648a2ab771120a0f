package config

const (
	defaultConfigPath               = "~/.config/proctor/config.toml"
	defaultStateDir                 = "~/.local/state/proctor"
	defaultLogDir                   = "~/.local/share/proctor/logs"
	defaultLogFormat                = "console"
	defaultLogLevel                 = "info"
	defaultLogRetentionDays         = 30
	defaultMonitorQueueSize         = 64
	defaultDRMSysfsDir              = "/sys/class/drm"
	defaultDisplayPollInterval      = 5
	defaultNoiseThreshold           = 100
	defaultNoisePollInterval        = 1
	defaultNoiseStaleAfter          = 5
	defaultReloadTimeout            = 30
	defaultNotifyRequestTimeout     = 10
	defaultNotifyDedupWindowSeconds = 60
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
		Monitor: Monitor{
			QueueSize: defaultMonitorQueueSize,
		},
		Sources: Sources{
			ProbePermissionsOnStart: true,
			DisplayDetection:        DisplayDetectionSysfs,
			DRMSysfsDir:             defaultDRMSysfsDir,
			DisplayPollInterval:     defaultDisplayPollInterval,
		},
		Noise: Noise{
			Threshold:    defaultNoiseThreshold,
			PollInterval: defaultNoisePollInterval,
			StaleAfter:   defaultNoiseStaleAfter,
		},
		Remediation: Remediation{
			ReloadTimeout: defaultReloadTimeout,
		},
		Notifications: Notifications{
			RequestTimeout:     defaultNotifyRequestTimeout,
			DedupWindowSeconds: defaultNotifyDedupWindowSeconds,
			Reloads:            true,
		},
	}
}
