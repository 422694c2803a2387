// Package config defines the application configuration and its loader.
package config

import "time"

// Config holds all application configuration, grouped by concern.
type Config struct {
	Log    LogConfig    `mapstructure:"log"    validate:"required"`
	Job    JobConfig    `mapstructure:"job"    validate:"required"`
	Engine EngineConfig `mapstructure:"engine" validate:"required"`
	LLM    LLMConfig    `mapstructure:"llm"    validate:"required"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
}

// JobConfig contains unit splitting and resume settings.
type JobConfig struct {
	// ChunkSize bounds the size of a single unit in bytes.
	ChunkSize int `mapstructure:"chunk_size" validate:"required,gt=0"`
	// RetryFailedOnly resumes a job by retrying only units recorded as
	// failed, skipping pending ones.
	RetryFailedOnly bool `mapstructure:"retry_failed_only"`
}

// EngineConfig contains worker pool and retry settings.
type EngineConfig struct {
	InitialWorkers        int     `mapstructure:"initial_workers"          validate:"required,gt=0"`
	MinWorkers            int     `mapstructure:"min_workers"              validate:"required,gt=0"`
	MaxWorkers            int     `mapstructure:"max_workers"              validate:"required,gtefield=MinWorkers"`
	MaxRetries            int     `mapstructure:"max_retries"              validate:"required,gt=0"`
	RequestsPerMinute     float64 `mapstructure:"requests_per_minute"      validate:"gte=0"`
	RampUpEvery           int     `mapstructure:"ramp_up_every"            validate:"gte=0"`
	RampUpQuietSeconds    int     `mapstructure:"ramp_up_quiet_seconds"    validate:"gte=0"`
	PerCallTimeoutSeconds int     `mapstructure:"per_call_timeout_seconds" validate:"gte=0"`
	StopTimeoutSeconds    int     `mapstructure:"stop_timeout_seconds"     validate:"gte=0"`
}

// LLMConfig contains remote text-generation settings. GeminiAPIKey is
// a secret: it never participates in the resume fingerprint.
type LLMConfig struct {
	GeminiAPIKey   string  `mapstructure:"gemini_api_key"  validate:"required"`
	ModelName      string  `mapstructure:"model_name"      validate:"required"`
	PromptTemplate string  `mapstructure:"prompt_template" validate:"required,contains={{slot}}"`
	Temperature    float64 `mapstructure:"temperature"     validate:"gte=0,lte=2"`
	TopP           float64 `mapstructure:"top_p"           validate:"gte=0,lte=1"`
}

// RampUpQuietPeriod returns the quiet period as a duration.
func (c EngineConfig) RampUpQuietPeriod() time.Duration {
	return time.Duration(c.RampUpQuietSeconds) * time.Second
}

// PerCallTimeout returns the per-call deadline as a duration.
func (c EngineConfig) PerCallTimeout() time.Duration {
	return time.Duration(c.PerCallTimeoutSeconds) * time.Second
}

// StopTimeout returns the shutdown join bound as a duration.
func (c EngineConfig) StopTimeout() time.Duration {
	return time.Duration(c.StopTimeoutSeconds) * time.Second
}

// FingerprintMap returns the configuration fields that participate in
// the resume fingerprint, keyed the way they are persisted. Secret
// fields are deliberately absent.
func (c *Config) FingerprintMap() map[string]any {
	return map[string]any{
		"chunk_size":          c.Job.ChunkSize,
		"model_name":          c.LLM.ModelName,
		"prompt_template":     c.LLM.PromptTemplate,
		"temperature":         c.LLM.Temperature,
		"top_p":               c.LLM.TopP,
		"max_retries":         c.Engine.MaxRetries,
		"requests_per_minute": c.Engine.RequestsPerMinute,
	}
}
