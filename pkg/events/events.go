// Package events defines the event envelope published for agent and trigger
// executions, consumed by stream fan-out services.
package events

import (
	"strings"
	"time"
)

type EventType string

// Topics.
const (
	WorkflowEventsTopic = "agentarea.workflow.events"
	TriggerEventsTopic  = "agentarea.trigger.events"
)

const (
	AggregateIDMetadataKey = "aggregate_id"
	EventTypeMetadataKey   = "event_type"
)

const (
	// Agent workflow events.
	WorkflowStarted    EventType = "WorkflowStarted"
	LLMCallCompleted   EventType = "LLMCallCompleted"
	ToolCallStarted    EventType = "ToolCallStarted"
	ToolCallCompleted  EventType = "ToolCallCompleted"
	IterationCompleted EventType = "IterationCompleted"
	WorkflowCompleted  EventType = "WorkflowCompleted"
	WorkflowFailed     EventType = "WorkflowFailed"
	WorkflowCancelled  EventType = "WorkflowCancelled"

	// Trigger events.
	TriggerExecuted EventType = "TriggerExecuted"
	TriggerDisabled EventType = "TriggerDisabled"
)

const (
	workflowPrefix = "workflow."
	triggerPrefix  = "trigger."
)

// Event is the envelope carried on the event bus. AggregateID is the task
// or trigger ID so consumers can filter a single execution.
type Event struct {
	EventType string    `json:"event_type"`
	Data      Data      `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

type Data struct {
	AggregateID       string         `json:"aggregate_id"`
	OriginalEventType EventType      `json:"original_event_type"`
	OriginalData      map[string]any `json:"original_data,omitempty"`
}

func NewWorkflowEvent(taskID string, eventType EventType, data map[string]any, at time.Time) Event {
	return newEvent(workflowPrefix, taskID, eventType, data, at)
}

func NewTriggerEvent(triggerID string, eventType EventType, data map[string]any, at time.Time) Event {
	return newEvent(triggerPrefix, triggerID, eventType, data, at)
}

func newEvent(prefix, aggregateID string, eventType EventType, data map[string]any, at time.Time) Event {
	return Event{
		EventType: prefix + string(eventType),
		Data: Data{
			AggregateID:       aggregateID,
			OriginalEventType: eventType,
			OriginalData:      data,
		},
		Timestamp: at,
	}
}

func (e Event) GetType() EventType {
	return e.Data.OriginalEventType
}

// Topic returns the channel the event belongs on.
func (e Event) Topic() string {
	if strings.HasPrefix(e.EventType, triggerPrefix) {
		return TriggerEventsTopic
	}

	return WorkflowEventsTopic
}
