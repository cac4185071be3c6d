package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWorkflowEvent(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	event := NewWorkflowEvent("task-1", LLMCallCompleted, map[string]any{"cost": 0.01}, at)

	assert.Equal(t, "workflow.LLMCallCompleted", event.EventType)
	assert.Equal(t, WorkflowEventsTopic, event.Topic())
	assert.Equal(t, LLMCallCompleted, event.GetType())

	payload, err := json.Marshal(event)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"event_type": "workflow.LLMCallCompleted",
		"data": {
			"aggregate_id": "task-1",
			"original_event_type": "LLMCallCompleted",
			"original_data": {"cost": 0.01}
		},
		"timestamp": "2026-02-01T10:00:00Z"
	}`, string(payload))
}

func TestNewTriggerEvent(t *testing.T) {
	t.Parallel()

	event := NewTriggerEvent("trigger-1", TriggerDisabled, nil, time.Now())

	assert.Equal(t, "trigger.TriggerDisabled", event.EventType)
	assert.Equal(t, TriggerEventsTopic, event.Topic())
	assert.Equal(t, "trigger-1", event.Data.AggregateID)
}
