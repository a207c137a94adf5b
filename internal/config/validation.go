package config

import (
	"fmt"
	"net/url"
	"strings"
)

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate checks config values for correctness.
// Returns an error listing every invalid value.
func (c *Config) Validate() error {
	var errs []string

	if c.Provider.Temperature < 0 || c.Provider.Temperature > 2 {
		errs = append(errs, "provider.temperature must be between 0 and 2")
	}
	if c.Provider.TimeoutSecs < 1 {
		errs = append(errs, "provider.timeout_secs must be >= 1")
	}

	if c.Orchestrator.MaxIterations < 1 {
		errs = append(errs, "orchestrator.max_iterations must be >= 1")
	}
	if c.Orchestrator.MaxRetries < 0 {
		errs = append(errs, "orchestrator.max_retries must be >= 0")
	}
	if c.Orchestrator.PacingMs < 0 {
		errs = append(errs, "orchestrator.pacing_ms must be >= 0")
	}
	if c.Orchestrator.ToolRecordLimit < 1 {
		errs = append(errs, "orchestrator.tool_record_limit must be >= 1")
	}
	if strings.TrimSpace(c.Orchestrator.ToolName) == "" {
		errs = append(errs, "orchestrator.tool_name must not be empty")
	}

	if c.Sandbox.MaxOutputBytes < 1 {
		errs = append(errs, "sandbox.max_output_bytes must be >= 1")
	}
	if c.Sandbox.TimeoutSecs < 1 {
		errs = append(errs, "sandbox.timeout_secs must be >= 1")
	}
	if c.Sandbox.HTTPTimeoutSecs < 1 {
		errs = append(errs, "sandbox.http_timeout_secs must be >= 1")
	}
	if c.Sandbox.RemoteURL != "" && !isHTTPURL(c.Sandbox.RemoteURL) {
		errs = append(errs, "sandbox.remote_url must be an http(s) URL")
	}
	if c.Sandbox.PrometheusURL != "" && !isHTTPURL(c.Sandbox.PrometheusURL) {
		errs = append(errs, "sandbox.prometheus_url must be an http(s) URL")
	}
	if c.Sandbox.AWSEndpoint != "" && !isHTTPURL(c.Sandbox.AWSEndpoint) {
		errs = append(errs, "sandbox.aws_endpoint must be an http(s) URL")
	}
	if c.Sandbox.AWSEnabled && strings.TrimSpace(c.Sandbox.Region) == "" {
		errs = append(errs, "sandbox.region is required when sandbox.aws_enabled is set")
	}

	if c.Dedup.WindowHours < 1 {
		errs = append(errs, "dedup.window_hours must be >= 1")
	}
	if c.Notify.WebhookURL != "" && !isHTTPURL(c.Notify.WebhookURL) {
		errs = append(errs, "notify.webhook_url must be an http(s) URL")
	}
	if c.Notify.TimeoutSecs < 1 {
		errs = append(errs, "notify.timeout_secs must be >= 1")
	}
	if c.Triage.MaxConcurrency < 1 {
		errs = append(errs, "triage.max_concurrency must be >= 1")
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, "logging.level must be one of debug, info, warn, error")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %v", errs)
	}

	return nil
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
