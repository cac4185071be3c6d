// Package config loads engine tuning from an optional file and AGENTAREA_*
// environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/agentarea/agentarea/pkg/llm"
	"github.com/agentarea/agentarea/pkg/models"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const EnvPrefix = "AGENTAREA"

type Config struct {
	LLM       LLMConfig       `mapstructure:"llm"`
	Agent     AgentConfig     `mapstructure:"agent"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Webhooks  WebhooksConfig  `mapstructure:"webhooks"`
	Tools     ToolsConfig     `mapstructure:"tools"`
}

type LLMConfig struct {
	DefaultModel      string                      `mapstructure:"default_model"       validate:"required"`
	Timeout           time.Duration               `mapstructure:"timeout"             validate:"gte=0"`
	RequestsPerSecond float64                     `mapstructure:"requests_per_second" validate:"gte=0"`
	Burst             int                         `mapstructure:"burst"               validate:"gte=0"`
	FallbackCost      float64                     `mapstructure:"fallback_cost"       validate:"gte=0"`
	Pricing           map[string]llm.ModelPricing `mapstructure:"pricing"`
}

type AgentConfig struct {
	DefaultBudgetUSD     float64 `mapstructure:"default_budget_usd"     validate:"gt=0"`
	DefaultMaxIterations int     `mapstructure:"default_max_iterations" validate:"gt=0"`
	// EvaluateGoals turns on the goal judge for turns without tool calls.
	EvaluateGoals bool `mapstructure:"evaluate_goals"`
}

type EngineConfig struct {
	MaxConcurrentActivities int           `mapstructure:"max_concurrent_activities" validate:"gt=0"`
	ShutdownTimeout         time.Duration `mapstructure:"shutdown_timeout"          validate:"gt=0"`
}

type SchedulerConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval" validate:"gt=0"`
}

type WebhooksConfig struct {
	RateLimit  int           `mapstructure:"rate_limit"  validate:"gte=0"`
	RateWindow time.Duration `mapstructure:"rate_window" validate:"gte=0"`
}

type ToolsConfig struct {
	HTTPTimeout time.Duration `mapstructure:"http_timeout" validate:"gt=0"`
}

// SetDefaults registers the default of every setting on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("llm.default_model", "gpt-4o-mini")
	v.SetDefault("llm.timeout", 2*time.Minute)
	v.SetDefault("llm.requests_per_second", 0)
	v.SetDefault("llm.burst", 1)
	v.SetDefault("llm.fallback_cost", llm.DefaultFallbackCost)

	v.SetDefault("agent.default_budget_usd", models.DefaultBudgetUSD)
	v.SetDefault("agent.default_max_iterations", models.DefaultMaxIterations)
	v.SetDefault("agent.evaluate_goals", false)

	v.SetDefault("engine.max_concurrent_activities", 32)
	v.SetDefault("engine.shutdown_timeout", 30*time.Second)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.interval", 30*time.Second)

	v.SetDefault("webhooks.rate_limit", 60)
	v.SetDefault("webhooks.rate_window", time.Minute)

	v.SetDefault("tools.http_timeout", 30*time.Second)
}

// New returns a viper instance with defaults and environment binding. Keys
// map to variables like AGENTAREA_LLM_DEFAULT_MODEL.
func New() *viper.Viper {
	v := viper.New()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	return v
}

// Load reads the config file at path, when one is given, on top of the
// defaults and environment.
func Load(path string) (*Config, error) {
	v := New()

	if path != "" {
		v.SetConfigFile(path)

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	return LoadWithViper(v)
}

func LoadWithViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	return nil
}

// Pricing builds the model price table with the configured overrides.
func (c *Config) Pricing() *llm.Pricing {
	return llm.NewPricing(c.LLM.Pricing, c.LLM.FallbackCost)
}
