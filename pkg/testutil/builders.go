// Package testutil provides test data builders for agents and triggers.
package testutil

import (
	"time"

	"github.com/agentarea/agentarea/pkg/models"
	"github.com/google/uuid"
)

// TriggerOption overrides a field of a test trigger.
type TriggerOption func(*models.TriggerDefinition)

// CreateTestAgent creates an agent with default values that can be overridden.
func CreateTestAgent(overrides ...func(*models.Agent)) *models.Agent {
	agent := &models.Agent{
		ID:          uuid.New().String(),
		Name:        "Test Agent",
		Instruction: "You are a helpful assistant",
		ModelID:     "gpt-4o-mini",
		Tools:       []string{"task_complete"},
	}

	for _, override := range overrides {
		override(agent)
	}

	return agent
}

// CreateTestCronTrigger creates an active trigger firing every five minutes.
func CreateTestCronTrigger(id string, overrides ...TriggerOption) *models.TriggerDefinition {
	trigger := &models.TriggerDefinition{
		ID:          id,
		Name:        id,
		AgentID:     "agent-1",
		TriggerType: models.TriggerTypeCron,
		IsActive:    true,
		Cron:        &models.CronConfig{CronExpression: "*/5 * * * *"},
	}

	for _, override := range overrides {
		override(trigger)
	}

	return trigger
}

// CreateTestWebhookTrigger creates an active GitHub webhook trigger served
// at hook-<id>.
func CreateTestWebhookTrigger(id string, overrides ...TriggerOption) *models.TriggerDefinition {
	trigger := &models.TriggerDefinition{
		ID:          id,
		Name:        "GitHub issues",
		AgentID:     "agent-1",
		TriggerType: models.TriggerTypeWebhook,
		IsActive:    true,
		Webhook:     &models.WebhookConfig{WebhookID: "hook-" + id, WebhookType: models.WebhookTypeGitHub},
	}

	for _, override := range overrides {
		override(trigger)
	}

	return trigger
}

func WithInactive() TriggerOption {
	return func(t *models.TriggerDefinition) {
		t.IsActive = false
	}
}

// WithNextRun sets the next run time of a cron trigger.
func WithNextRun(next time.Time) TriggerOption {
	return func(t *models.TriggerDefinition) {
		t.Cron.NextRunTime = &next
	}
}

func WithWebhook(mutate func(*models.WebhookConfig)) TriggerOption {
	return func(t *models.TriggerDefinition) {
		mutate(t.Webhook)
	}
}
