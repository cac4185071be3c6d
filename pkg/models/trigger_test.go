package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cronTrigger() *TriggerDefinition {
	return &TriggerDefinition{
		ID:               "trigger-1",
		Name:             "Daily report",
		AgentID:          "agent-1",
		TriggerType:      TriggerTypeCron,
		IsActive:         true,
		FailureThreshold: 5,
		Cron:             &CronConfig{CronExpression: "0 9 * * *", Timezone: "Europe/Berlin"},
	}
}

func TestTriggerDefinition_CircuitBreaker(t *testing.T) {
	t.Parallel()

	trigger := cronTrigger()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for i := 1; i < 5; i++ {
		disabled := trigger.ApplyExecution(ExecutionStatusFailed, now)
		assert.False(t, disabled)
		assert.True(t, trigger.IsActive, "still active after %d failures", i)
		assert.Equal(t, i, trigger.ConsecutiveFailures)
	}

	disabled := trigger.ApplyExecution(ExecutionStatusTimeout, now)
	assert.True(t, disabled)
	assert.False(t, trigger.IsActive)
	assert.Equal(t, 5, trigger.ConsecutiveFailures)

	disabled = trigger.ApplyExecution(ExecutionStatusFailed, now)
	assert.False(t, disabled)
	assert.False(t, trigger.IsActive)
	assert.Equal(t, 6, trigger.ConsecutiveFailures)
	assert.Equal(t, now, *trigger.LastExecutionAt)
}

func TestTriggerDefinition_SuccessResetsAndSkipKeeps(t *testing.T) {
	t.Parallel()

	trigger := cronTrigger()
	now := time.Now()

	trigger.ApplyExecution(ExecutionStatusFailed, now)
	trigger.ApplyExecution(ExecutionStatusFailed, now)
	trigger.ApplyExecution(ExecutionStatusSkipped, now)
	assert.Equal(t, 2, trigger.ConsecutiveFailures)

	trigger.ApplyExecution(ExecutionStatusSuccess, now)
	assert.Equal(t, 0, trigger.ConsecutiveFailures)
	assert.True(t, trigger.IsActive)
}

func TestTriggerDefinition_DefaultThreshold(t *testing.T) {
	t.Parallel()

	trigger := cronTrigger()
	trigger.FailureThreshold = 0

	assert.Equal(t, DefaultFailureThreshold, trigger.EffectiveFailureThreshold())

	trigger.ConsecutiveFailures = DefaultFailureThreshold
	assert.True(t, trigger.CircuitOpen())
}

func TestTriggerDefinition_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*TriggerDefinition)
		wantErr bool
	}{
		{"valid cron", func(*TriggerDefinition) {}, false},
		{"missing agent", func(tr *TriggerDefinition) { tr.AgentID = "" }, true},
		{"unknown type", func(tr *TriggerDefinition) { tr.TriggerType = "kafka" }, true},
		{"cron without schedule", func(tr *TriggerDefinition) { tr.Cron = nil }, true},
		{"bad cron expression", func(tr *TriggerDefinition) { tr.Cron.CronExpression = "every day" }, true},
		{"bad timezone", func(tr *TriggerDefinition) { tr.Cron.Timezone = "Mars/Olympus" }, true},
		{"webhook without config", func(tr *TriggerDefinition) {
			tr.TriggerType = TriggerTypeWebhook
			tr.Cron = nil
		}, true},
		{"valid webhook", func(tr *TriggerDefinition) {
			tr.TriggerType = TriggerTypeWebhook
			tr.Cron = nil
			tr.Webhook = &WebhookConfig{WebhookID: "wh-1", AllowedMethods: []string{"POST"}, WebhookType: WebhookTypeGitHub}
		}, false},
		{"webhook bad method", func(tr *TriggerDefinition) {
			tr.TriggerType = TriggerTypeWebhook
			tr.Cron = nil
			tr.Webhook = &WebhookConfig{WebhookID: "wh-1", AllowedMethods: []string{"TRACE"}}
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			trigger := cronTrigger()
			tt.mutate(trigger)

			err := trigger.Validate()
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidTrigger)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestWebhookConfig_AllowsMethod(t *testing.T) {
	t.Parallel()

	assert.True(t, (&WebhookConfig{}).AllowsMethod("POST"))
	assert.False(t, (&WebhookConfig{}).AllowsMethod("GET"))

	cfg := &WebhookConfig{AllowedMethods: []string{"GET", "PUT"}}
	assert.True(t, cfg.AllowsMethod("GET"))
	assert.False(t, cfg.AllowsMethod("POST"))
}
