package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentarea/agentarea/pkg/llm"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWithViper_Defaults(t *testing.T) {
	t.Parallel()

	v := viper.New()
	SetDefaults(v)

	cfg, err := LoadWithViper(v)
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o-mini", cfg.LLM.DefaultModel)
	assert.Equal(t, 2*time.Minute, cfg.LLM.Timeout)
	assert.InDelta(t, 10.0, cfg.Agent.DefaultBudgetUSD, 1e-9)
	assert.Equal(t, 10, cfg.Agent.DefaultMaxIterations)
	assert.False(t, cfg.Agent.EvaluateGoals)
	assert.Equal(t, 32, cfg.Engine.MaxConcurrentActivities)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.Interval)
	assert.Equal(t, 60, cfg.Webhooks.RateLimit)
}

func TestLoad_File(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "agentarea.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
llm:
  default_model: gpt-4.1-mini
  requests_per_second: 2.5
  pricing:
    local-model:
      prompt: 1
      completion: 2
agent:
  default_budget_usd: 3
  evaluate_goals: true
scheduler:
  interval: 5s
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "gpt-4.1-mini", cfg.LLM.DefaultModel)
	assert.InDelta(t, 2.5, cfg.LLM.RequestsPerSecond, 1e-9)
	assert.InDelta(t, 3.0, cfg.Agent.DefaultBudgetUSD, 1e-9)
	assert.True(t, cfg.Agent.EvaluateGoals)
	assert.Equal(t, 5*time.Second, cfg.Scheduler.Interval)
	assert.Equal(t, 10, cfg.Agent.DefaultMaxIterations)

	cost := cfg.Pricing().Cost("local-model", llm.Usage{PromptTokens: 1_000_000, CompletionTokens: 1_000_000})
	assert.InDelta(t, 3.0, cost, 1e-9)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("AGENTAREA_AGENT_DEFAULT_MAX_ITERATIONS", "4")
	t.Setenv("AGENTAREA_LLM_DEFAULT_MODEL", "gpt-4o")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Agent.DefaultMaxIterations)
	assert.Equal(t, "gpt-4o", cfg.LLM.DefaultModel)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*viper.Viper)
	}{
		{name: "zero budget", mutate: func(v *viper.Viper) { v.Set("agent.default_budget_usd", 0) }},
		{name: "negative rate limit", mutate: func(v *viper.Viper) { v.Set("webhooks.rate_limit", -1) }},
		{name: "empty model", mutate: func(v *viper.Viper) { v.Set("llm.default_model", "") }},
		{name: "zero interval", mutate: func(v *viper.Viper) { v.Set("scheduler.interval", 0) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			v := viper.New()
			SetDefaults(v)
			tt.mutate(v)

			_, err := LoadWithViper(v)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid config")
		})
	}
}
