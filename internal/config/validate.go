package config

import (
	"errors"
	"fmt"
	"sort"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateIntervals(); err != nil {
		return err
	}
	if err := c.validateSources(); err != nil {
		return err
	}
	if err := c.validateNoise(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateIntervals() error {
	return ensurePositiveMap(map[string]int{
		"monitor.queue_size":            c.Monitor.QueueSize,
		"sources.display_poll_interval": c.Sources.DisplayPollInterval,
		"noise.poll_interval":           c.Noise.PollInterval,
		"noise.stale_after":             c.Noise.StaleAfter,
		"remediation.reload_timeout":    c.Remediation.ReloadTimeout,
		"notifications.request_timeout": c.Notifications.RequestTimeout,
	})
}

func (c *Config) validateSources() error {
	switch c.Sources.DisplayDetection {
	case DisplayDetectionSysfs, DisplayDetectionHost, DisplayDetectionOff:
		return nil
	default:
		return fmt.Errorf("sources.display_detection must be one of %q, %q or %q (got %q)",
			DisplayDetectionSysfs, DisplayDetectionHost, DisplayDetectionOff, c.Sources.DisplayDetection)
	}
}

func (c *Config) validateNoise() error {
	if c.Noise.Threshold <= 0 {
		return errors.New("noise.threshold must be positive")
	}
	if c.Noise.StaleAfter < c.Noise.PollInterval {
		return errors.New("noise.stale_after must be at least noise.poll_interval")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.DedupWindowSeconds < 0 {
		return errors.New("notifications.dedup_window_seconds must be >= 0")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
