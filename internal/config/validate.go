package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateEndpoints(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if err := ensurePositiveMap(map[string]int{
		"pipeline.workers":                    c.Pipeline.Workers,
		"pipeline.queue_size":                 c.Pipeline.QueueSize,
		"pipeline.segment_threshold_mb":       c.Pipeline.SegmentThresholdMB,
		"pipeline.segment_seconds":            c.Pipeline.SegmentSeconds,
		"pipeline.conversion_timeout_seconds": c.Pipeline.ConversionTimeoutSeconds,
		"pipeline.max_upload_mb":              c.Pipeline.MaxUploadMB,
		"notifications.request_timeout":       c.Notifications.RequestTimeout,
	}); err != nil {
		return err
	}
	if c.Pipeline.Workers > 64 {
		return errors.New("pipeline.workers must be at most 64")
	}
	if len(c.Pipeline.AllowedExtensions) == 0 {
		return errors.New("pipeline.allowed_extensions must include at least one extension")
	}
	return nil
}

func (c *Config) validateEndpoints() error {
	for key, value := range map[string]string{
		"transcription.base_url": c.Transcription.BaseURL,
		"llm.base_url":           c.LLM.BaseURL,
		"tracking.base_url":      c.Tracking.BaseURL,
	} {
		if strings.TrimSpace(value) == "" {
			continue
		}
		parsed, err := url.Parse(value)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("%s must be an absolute URL, got %q", key, value)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
