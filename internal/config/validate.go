package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateTimeouts(); err != nil {
		return err
	}
	if err := c.validateRetriever(); err != nil {
		return err
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateAnalyzer(); err != nil {
		return err
	}
	if err := c.validateSessions(); err != nil {
		return err
	}
	if err := c.validateResolver(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateTimeouts() error {
	return ensurePositiveMap(map[string]int{
		"resolver.timeout_seconds":          c.Resolver.TimeoutSeconds,
		"retriever.timeout_seconds":         c.Retriever.TimeoutSeconds,
		"store.timeout_seconds":             c.Store.TimeoutSeconds,
		"analyzer.timeout_seconds":          c.Analyzer.TimeoutSeconds,
		"notifications.request_timeout":     c.Notifications.RequestTimeout,
		"workflow.max_concurrent":           c.Workflow.MaxConcurrent,
		"workflow.staging_max_age_hours":    c.Workflow.StagingMaxAgeHours,
		"workflow.janitor_interval_minutes": c.Workflow.JanitorIntervalMins,
		"gate.limit_minutes":                c.Gate.LimitMinutes,
	})
}

func (c *Config) validateRetriever() error {
	if c.Retriever.MaxAttempts < 1 {
		return errors.New("retriever.max_attempts must be >= 1")
	}
	if c.Retriever.BaseDelayMillis < 0 {
		return errors.New("retriever.base_delay_ms must be >= 0")
	}
	if c.Retriever.BackoffMultiplier < 1 {
		return errors.New("retriever.backoff_multiplier must be >= 1")
	}
	if c.Retriever.MaxSizeMB <= 0 {
		return errors.New("retriever.max_size_mb must be positive")
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Backend {
	case StoreBackendFilesystem:
		if strings.TrimSpace(c.Store.Dir) == "" {
			return errors.New("store.dir must be set when store.backend is filesystem")
		}
	case StoreBackendS3:
		if c.Store.S3Bucket == "" {
			return errors.New("store.s3_bucket must be set when store.backend is s3")
		}
		if (c.Store.S3AccessKey == "") != (c.Store.S3SecretKey == "") {
			return errors.New("store.s3_access_key and store.s3_secret_key must be set together")
		}
		if c.Store.S3Endpoint != "" {
			if _, err := url.ParseRequestURI(c.Store.S3Endpoint); err != nil {
				return fmt.Errorf("store.s3_endpoint must be a valid URL: %w", err)
			}
		}
	default:
		return fmt.Errorf("store.backend must be %q or %q, got %q", StoreBackendFilesystem, StoreBackendS3, c.Store.Backend)
	}
	if c.Store.PublicBaseURL != "" {
		if _, err := url.ParseRequestURI(c.Store.PublicBaseURL); err != nil {
			return fmt.Errorf("store.public_base_url must be a valid URL: %w", err)
		}
	}
	return nil
}

func (c *Config) validateAnalyzer() error {
	if c.Analyzer.MaxAttempts < 1 {
		return errors.New("analyzer.max_attempts must be >= 1")
	}
	if c.Analyzer.RetryDelaySeconds < 0 {
		return errors.New("analyzer.retry_delay_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateSessions() error {
	if c.Sessions.TTLMinutes <= 0 {
		return errors.New("sessions.ttl_minutes must be positive")
	}
	if c.Sessions.SweepMinutes <= 0 {
		return errors.New("sessions.sweep_minutes must be positive")
	}
	if c.Sessions.SweepMinutes > c.Sessions.TTLMinutes {
		return errors.New("sessions.sweep_minutes must not exceed sessions.ttl_minutes")
	}
	return nil
}

func (c *Config) validateResolver() error {
	if _, err := url.ParseRequestURI(c.Resolver.LookupURL); err != nil {
		return fmt.Errorf("resolver.lookup_url must be a valid URL: %w", err)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
