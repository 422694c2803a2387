package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from an optional YAML config file and from
// environment variables with the BT_ prefix (e.g. BT_LLM_GEMINI_API_KEY).
// Environment variables take precedence over file values. Pass an empty
// configPath to use environment variables and defaults only.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigType("yaml")
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file %q: %w", configPath, err)
			}
		}
	}

	v.SetEnvPrefix("BT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicitly bind keys that have no default so AutomaticEnv can
	// surface them through Unmarshal.
	for _, key := range []string{
		"llm.gemini_api_key",
		"llm.model_name",
		"llm.prompt_template",
	} {
		envVar := "BT_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envVar); err != nil {
			return nil, fmt.Errorf("failed to bind environment variable %s: %w", envVar, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")

	v.SetDefault("job.chunk_size", 6000)
	v.SetDefault("job.retry_failed_only", false)

	v.SetDefault("engine.initial_workers", 3)
	v.SetDefault("engine.min_workers", 1)
	v.SetDefault("engine.max_workers", 10)
	v.SetDefault("engine.max_retries", 10)
	v.SetDefault("engine.requests_per_minute", 60)
	v.SetDefault("engine.ramp_up_every", 10)
	v.SetDefault("engine.ramp_up_quiet_seconds", 60)
	v.SetDefault("engine.per_call_timeout_seconds", 600)
	v.SetDefault("engine.stop_timeout_seconds", 10)

	v.SetDefault("llm.model_name", "gemini-2.0-flash")
	v.SetDefault("llm.prompt_template", "{{slot}}")
	v.SetDefault("llm.temperature", 0.4)
	v.SetDefault("llm.top_p", 0.9)
}
