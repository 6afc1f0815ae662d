package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// CaptureConfig controls the capture buffer and flush cycle.
type CaptureConfig struct {
	SampleRateHz               int     `mapstructure:"sample_rate_hz"`
	BufferCapacity             int     `mapstructure:"buffer_capacity"`
	FlushIntervalSeconds       int     `mapstructure:"flush_interval_seconds"`
	ShutdownFlushTimeoutSecond float64 `mapstructure:"shutdown_flush_timeout_seconds"`
}

// CognitiveLoadWeights is the weight vector for the per-keystroke cognitive
// load heuristic.
type CognitiveLoadWeights struct {
	PauseWeight      float64 `mapstructure:"pause_weight"`
	AppSwitchWeight  float64 `mapstructure:"app_switch_weight"`
	CorrectionWeight float64 `mapstructure:"correction_weight"`
	PauseNormSeconds float64 `mapstructure:"pause_norm_seconds"`
}

// AnalysisConfig holds session segmentation and metric thresholds.
type AnalysisConfig struct {
	MicroPauseSeconds  float64 `mapstructure:"micro_pause_seconds"`
	ShortPauseSeconds  float64 `mapstructure:"short_pause_seconds"`
	MediumPauseSeconds float64 `mapstructure:"medium_pause_seconds"`
	LongPauseSeconds   float64 `mapstructure:"long_pause_seconds"`
	AllDayTracking     bool    `mapstructure:"all_day_tracking"`

	HesitationThresholdSeconds float64 `mapstructure:"hesitation_threshold_seconds"`
	BurstThresholdSeconds      float64 `mapstructure:"burst_threshold_seconds"`
	MinBurstRun                int     `mapstructure:"min_burst_run"`
	FlowStateThreshold         int     `mapstructure:"flow_state_threshold"`
	FlowMaxCV                  float64 `mapstructure:"flow_max_cv"`
	ConsistencyWindow          int     `mapstructure:"consistency_window"`
	MinSessionDurationSeconds  float64 `mapstructure:"min_session_duration_seconds"`

	CognitiveLoad CognitiveLoadWeights `mapstructure:"cognitive_load"`
}

type Config struct {
	DatabasePath string         `mapstructure:"database_path"`
	Environment  string         `mapstructure:"environment"` // "production" or "development"
	Capture      CaptureConfig  `mapstructure:"capture"`
	Analysis     AnalysisConfig `mapstructure:"analysis"`
}

// Load reads configuration from the given path, or from the standard search
// paths when path is empty, applies defaults and env overrides, and validates
// the result. Invalid values are fatal here, never clamped downstream.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/keyflow")
		v.AddConfigPath("/etc/keyflow/")
	}

	v.SetEnvPrefix("KEYFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// No config file: defaults are a complete, valid configuration.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database_path", "keyflow.db")
	v.SetDefault("environment", "production")

	v.SetDefault("capture.sample_rate_hz", 1000)
	v.SetDefault("capture.buffer_capacity", 10000)
	v.SetDefault("capture.flush_interval_seconds", 60)
	v.SetDefault("capture.shutdown_flush_timeout_seconds", 5.0)

	v.SetDefault("analysis.micro_pause_seconds", 0.1)
	v.SetDefault("analysis.short_pause_seconds", 120.0)
	v.SetDefault("analysis.medium_pause_seconds", 900.0)
	v.SetDefault("analysis.long_pause_seconds", 1800.0)
	v.SetDefault("analysis.all_day_tracking", false)

	v.SetDefault("analysis.hesitation_threshold_seconds", 0.8)
	v.SetDefault("analysis.burst_threshold_seconds", 0.15)
	v.SetDefault("analysis.min_burst_run", 5)
	v.SetDefault("analysis.flow_state_threshold", 60)
	v.SetDefault("analysis.flow_max_cv", 0.6)
	v.SetDefault("analysis.consistency_window", 100)
	v.SetDefault("analysis.min_session_duration_seconds", 30.0)

	v.SetDefault("analysis.cognitive_load.pause_weight", 0.5)
	v.SetDefault("analysis.cognitive_load.app_switch_weight", 0.3)
	v.SetDefault("analysis.cognitive_load.correction_weight", 0.2)
	v.SetDefault("analysis.cognitive_load.pause_norm_seconds", 2.0)
}

// Duration helpers so callers do not repeat float-seconds conversions.

func seconds(s float64) time.Duration { return time.Duration(s * float64(time.Second)) }

func (c CaptureConfig) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalSeconds) * time.Second
}

func (c CaptureConfig) ShutdownFlushTimeout() time.Duration {
	return seconds(c.ShutdownFlushTimeoutSecond)
}

func (a AnalysisConfig) MicroPause() time.Duration  { return seconds(a.MicroPauseSeconds) }
func (a AnalysisConfig) ShortPause() time.Duration  { return seconds(a.ShortPauseSeconds) }
func (a AnalysisConfig) MediumPause() time.Duration { return seconds(a.MediumPauseSeconds) }
func (a AnalysisConfig) LongPause() time.Duration   { return seconds(a.LongPauseSeconds) }
func (a AnalysisConfig) HesitationThreshold() time.Duration {
	return seconds(a.HesitationThresholdSeconds)
}
func (a AnalysisConfig) BurstThreshold() time.Duration { return seconds(a.BurstThresholdSeconds) }
func (a AnalysisConfig) MinSessionDuration() time.Duration {
	return seconds(a.MinSessionDurationSeconds)
}
