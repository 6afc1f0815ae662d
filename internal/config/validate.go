package config

import (
	"fmt"
	"strings"
)

// ValidationError is a single configuration validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks threshold ordering and value ranges. Any failure is fatal
// at load time; values are never silently clamped.
func (c *Config) Validate() error {
	var errs ValidationErrors

	fail := func(field, format string, args ...interface{}) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if c.DatabasePath == "" {
		fail("database_path", "must not be empty")
	}
	if c.Environment != "production" && c.Environment != "development" {
		fail("environment", "must be %q or %q, got %q", "production", "development", c.Environment)
	}

	cap := c.Capture
	if cap.SampleRateHz <= 0 {
		fail("capture.sample_rate_hz", "must be positive, got %d", cap.SampleRateHz)
	}
	if cap.BufferCapacity <= 0 {
		fail("capture.buffer_capacity", "must be positive, got %d", cap.BufferCapacity)
	}
	if cap.FlushIntervalSeconds < 1 {
		fail("capture.flush_interval_seconds", "must be at least 1, got %d", cap.FlushIntervalSeconds)
	}
	if cap.ShutdownFlushTimeoutSecond <= 0 {
		fail("capture.shutdown_flush_timeout_seconds", "must be positive, got %g", cap.ShutdownFlushTimeoutSecond)
	}

	a := c.Analysis
	if a.MicroPauseSeconds <= 0 {
		fail("analysis.micro_pause_seconds", "must be positive, got %g", a.MicroPauseSeconds)
	}
	if a.ShortPauseSeconds <= a.MicroPauseSeconds {
		fail("analysis.short_pause_seconds", "must exceed micro_pause_seconds (%g), got %g",
			a.MicroPauseSeconds, a.ShortPauseSeconds)
	}
	if a.MediumPauseSeconds <= a.ShortPauseSeconds {
		fail("analysis.medium_pause_seconds", "must exceed short_pause_seconds (%g), got %g",
			a.ShortPauseSeconds, a.MediumPauseSeconds)
	}
	if a.LongPauseSeconds <= a.MediumPauseSeconds {
		fail("analysis.long_pause_seconds", "must exceed medium_pause_seconds (%g), got %g",
			a.MediumPauseSeconds, a.LongPauseSeconds)
	}
	if a.HesitationThresholdSeconds <= 0 {
		fail("analysis.hesitation_threshold_seconds", "must be positive, got %g", a.HesitationThresholdSeconds)
	}
	if a.BurstThresholdSeconds <= 0 {
		fail("analysis.burst_threshold_seconds", "must be positive, got %g", a.BurstThresholdSeconds)
	}
	if a.MinBurstRun < 2 {
		fail("analysis.min_burst_run", "must be at least 2, got %d", a.MinBurstRun)
	}
	if a.FlowStateThreshold < 2 {
		fail("analysis.flow_state_threshold", "must be at least 2, got %d", a.FlowStateThreshold)
	}
	if a.FlowMaxCV <= 0 {
		fail("analysis.flow_max_cv", "must be positive, got %g", a.FlowMaxCV)
	}
	if a.ConsistencyWindow < 2 {
		fail("analysis.consistency_window", "must be at least 2, got %d", a.ConsistencyWindow)
	}
	if a.MinSessionDurationSeconds < 0 {
		fail("analysis.min_session_duration_seconds", "must not be negative, got %g", a.MinSessionDurationSeconds)
	}

	w := a.CognitiveLoad
	if w.PauseWeight < 0 || w.AppSwitchWeight < 0 || w.CorrectionWeight < 0 {
		fail("analysis.cognitive_load", "weights must not be negative, got (%g, %g, %g)",
			w.PauseWeight, w.AppSwitchWeight, w.CorrectionWeight)
	}
	if w.PauseNormSeconds <= 0 {
		fail("analysis.cognitive_load.pause_norm_seconds", "must be positive, got %g", w.PauseNormSeconds)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
