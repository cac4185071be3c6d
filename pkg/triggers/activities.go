package triggers

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/agentarea/agentarea/pkg/agent"
	"github.com/agentarea/agentarea/pkg/conditions"
	"github.com/agentarea/agentarea/pkg/durable"
	"github.com/agentarea/agentarea/pkg/errkind"
	"github.com/agentarea/agentarea/pkg/eventbus"
	"github.com/agentarea/agentarea/pkg/events"
	"github.com/agentarea/agentarea/pkg/log"
	"github.com/agentarea/agentarea/pkg/metrics"
	"github.com/agentarea/agentarea/pkg/models"
	"github.com/agentarea/agentarea/pkg/persistence"
	"github.com/agentarea/agentarea/pkg/tasks"
	"github.com/agentarea/agentarea/pkg/template"
	"github.com/google/uuid"
)

const (
	ActivityEvaluateTriggerConditions = "EvaluateTriggerConditions"
	ActivityExecuteTrigger            = "ExecuteTrigger"
	ActivityRecordTriggerExecution    = "RecordTriggerExecution"
)

type EvaluateConditionsInput struct {
	TriggerID string         `json:"trigger_id"`
	EventData map[string]any `json:"event_data,omitempty"`
}

type ConditionsResult struct {
	ConditionsMet bool `json:"conditions_met"`
}

type ExecuteTriggerInput struct {
	TriggerID     string        `json:"trigger_id"`
	ExecutionData ExecutionData `json:"execution_data"`
}

type ExecuteTriggerResult struct {
	Status          models.TaskStatus `json:"status"`
	TaskID          string            `json:"task_id,omitempty"`
	WorkflowID      string            `json:"workflow_id,omitempty"`
	RunID           string            `json:"run_id,omitempty"`
	ExecutionTimeMs int64             `json:"execution_time_ms"`
}

type RecordInput struct {
	RecordID        string                 `json:"record_id"`
	TriggerID       string                 `json:"trigger_id"`
	Status          models.ExecutionStatus `json:"status"`
	ExecutedAt      time.Time              `json:"executed_at"`
	TaskID          string                 `json:"task_id,omitempty"`
	WorkflowID      string                 `json:"workflow_id,omitempty"`
	RunID           string                 `json:"run_id,omitempty"`
	ExecutionTimeMs int64                  `json:"execution_time_ms"`
	ErrorMessage    string                 `json:"error_message,omitempty"`
	TriggerData     map[string]any         `json:"trigger_data,omitempty"`
}

// Activities are the side effects of the trigger workflow.
type Activities interface {
	EvaluateTriggerConditions(ctx context.Context, input EvaluateConditionsInput) (ConditionsResult, error)
	ExecuteTrigger(ctx context.Context, input ExecuteTriggerInput) (ExecuteTriggerResult, error)
	RecordTriggerExecution(ctx context.Context, input RecordInput) (models.TriggerExecutionRecord, error)
}

// Register wires the trigger workflow and its activities into r.
func Register(r agent.Registrar, workflow *Workflow, acts Activities) {
	r.RegisterWorkflow(WorkflowName, durable.Workflow(workflow.Run))
	r.RegisterActivity(ActivityEvaluateTriggerConditions, durable.Activity(acts.EvaluateTriggerConditions))
	r.RegisterActivity(ActivityExecuteTrigger, durable.Activity(acts.ExecuteTrigger))
	r.RegisterActivity(ActivityRecordTriggerExecution, durable.Activity(acts.RecordTriggerExecution))
}

// ConditionEvaluator is implemented by conditions.Evaluator.
type ConditionEvaluator interface {
	EvaluateWithFallback(ctx context.Context, condition *models.Condition, eventData map[string]any) (bool, error)
	ExtractTaskParameters(ctx context.Context, instruction string, eventData map[string]any) (map[string]any, error)
}

// TaskStarter is implemented by tasks.Service.
type TaskStarter interface {
	StartTask(ctx context.Context, req tasks.Request) (*tasks.Result, error)
}

// Service implements Activities over the trigger repositories.
type Service struct {
	triggers   persistence.TriggerRepository
	executions persistence.TriggerExecutionRepository
	evaluator  ConditionEvaluator
	starter    TaskStarter
	publisher  eventbus.EventPublisher
	heartbeat  time.Duration
	clock      func() time.Time
	logger     *slog.Logger
}

type Option func(*Service)

// WithHeartbeatInterval sets how often ExecuteTrigger reports liveness.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(s *Service) {
		s.heartbeat = d
	}
}

func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

func NewService(
	triggers persistence.TriggerRepository,
	executions persistence.TriggerExecutionRepository,
	evaluator ConditionEvaluator,
	starter TaskStarter,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		triggers:   triggers,
		executions: executions,
		evaluator:  evaluator,
		starter:    starter,
		publisher:  publisher,
		heartbeat:  10 * time.Second,
		clock:      time.Now,
		logger:     logger.With("module", "triggers"),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *Service) activeTrigger(ctx context.Context, triggerID string) (*models.TriggerDefinition, error) {
	trigger, err := s.triggers.GetByID(ctx, triggerID)
	if err != nil {
		return nil, errkind.FromRepository(err)
	}

	if !trigger.IsActive {
		return nil, errkind.NewDisabled(triggerID)
	}

	return trigger, nil
}

// EvaluateTriggerConditions reports whether the event satisfies the trigger's
// conditions. A trigger without conditions always fires.
func (s *Service) EvaluateTriggerConditions(ctx context.Context, input EvaluateConditionsInput) (ConditionsResult, error) {
	trigger, err := s.activeTrigger(ctx, input.TriggerID)
	if err != nil {
		return ConditionsResult{}, err
	}

	if trigger.Conditions == nil {
		return ConditionsResult{ConditionsMet: true}, nil
	}

	stop := durable.KeepAlive(ctx, s.heartbeat)
	defer stop()

	met, err := s.evaluator.EvaluateWithFallback(ctx, trigger.Conditions, input.EventData)
	if err != nil {
		return ConditionsResult{}, errkind.NewValidation("evaluate conditions of trigger %s: %v", trigger.ID, err)
	}

	s.logger.DebugContext(ctx, "Trigger conditions evaluated", "trigger_id", trigger.ID, "met", met)

	return ConditionsResult{ConditionsMet: met}, nil
}

// ExecuteTrigger starts the agent task of one firing. The task id is derived
// from the workflow run so a retried attempt reuses the task it may have
// already started.
func (s *Service) ExecuteTrigger(ctx context.Context, input ExecuteTriggerInput) (ExecuteTriggerResult, error) {
	start := s.clock()

	stop := durable.KeepAlive(ctx, s.heartbeat)
	defer stop()

	trigger, err := s.activeTrigger(ctx, input.TriggerID)
	if err != nil {
		return ExecuteTriggerResult{}, err
	}

	if trigger.CircuitOpen() {
		return ExecuteTriggerResult{}, errkind.NewCircuitBreakerOpen(trigger.ID, trigger.ConsecutiveFailures)
	}

	params := s.buildParameters(ctx, trigger, input.ExecutionData)

	taskID := ""
	if info, ok := durable.ActivityInfoFrom(ctx); ok {
		taskID = agent.TaskIDFromRun(info.WorkflowID, info.RunID)
	}

	result, err := s.starter.StartTask(ctx, tasks.Request{
		TaskID:      taskID,
		AgentID:     trigger.AgentID,
		Query:       taskQuery(trigger, params),
		Parameters:  params,
		UserID:      trigger.CreatedBy,
		WorkspaceID: trigger.WorkspaceID,
	})
	if err != nil {
		return ExecuteTriggerResult{}, err
	}

	log.FromContext(ctx, s.logger).InfoContext(ctx, "Trigger started agent task",
		"trigger_id", trigger.ID,
		"task_id", result.TaskID,
		"status", result.Status,
	)

	return ExecuteTriggerResult{
		Status:          result.Status,
		TaskID:          result.TaskID,
		WorkflowID:      result.WorkflowID,
		RunID:           result.RunID,
		ExecutionTimeMs: s.clock().Sub(start).Milliseconds(),
	}, nil
}

// buildParameters layers trigger metadata, the rendered task parameters and
// the parameters extracted from the event, later layers winning.
func (s *Service) buildParameters(ctx context.Context, trigger *models.TriggerDefinition, data ExecutionData) map[string]any {
	params := map[string]any{
		"trigger_id":   trigger.ID,
		"trigger_name": trigger.Name,
		"trigger_type": string(trigger.TriggerType),
		"source":       data.Source,
		"triggered_at": data.Timestamp.UTC().Format(time.RFC3339),
	}

	if len(data.EventData) > 0 {
		params["event_data"] = data.EventData
	}

	static, err := template.RenderParameters(trigger.TaskParameters, map[string]any{
		"event":        data.EventData,
		"trigger":      map[string]any{"id": trigger.ID, "name": trigger.Name, "type": string(trigger.TriggerType)},
		"source":       data.Source,
		"triggered_at": params["triggered_at"],
	})
	if err != nil {
		log.FromContext(ctx, s.logger).WarnContext(ctx, "Task parameter template failed, keeping raw value",
			"trigger_id", trigger.ID,
			"error", err,
		)
	}

	maps.Copy(params, static)

	if trigger.ParameterInstruction == "" {
		return params
	}

	extracted, err := s.evaluator.ExtractTaskParameters(ctx, trigger.ParameterInstruction, data.EventData)
	if err != nil {
		log.FromContext(ctx, s.logger).WarnContext(ctx, "Parameter extraction failed, keeping raw event",
			"trigger_id", trigger.ID,
			"error", err,
		)

		extracted = conditions.FallbackParameters(trigger.ParameterInstruction, data.EventData, "")
	}

	maps.Copy(params, extracted)

	return params
}

func taskQuery(trigger *models.TriggerDefinition, params map[string]any) string {
	if query, ok := params["query"].(string); ok && query != "" {
		return query
	}

	if trigger.Description != "" {
		return trigger.Description
	}

	return fmt.Sprintf("Handle %s trigger %q", trigger.TriggerType, trigger.Name)
}

// RecordTriggerExecution appends the execution record and applies its
// outcome to the trigger's circuit breaker.
func (s *Service) RecordTriggerExecution(ctx context.Context, input RecordInput) (models.TriggerExecutionRecord, error) {
	record := &models.TriggerExecutionRecord{
		ID:              input.RecordID,
		TriggerID:       input.TriggerID,
		ExecutedAt:      input.ExecutedAt,
		Status:          input.Status,
		TaskID:          input.TaskID,
		ExecutionTimeMs: input.ExecutionTimeMs,
		ErrorMessage:    input.ErrorMessage,
		TriggerData:     input.TriggerData,
		WorkflowID:      input.WorkflowID,
		RunID:           input.RunID,
	}

	if record.ID == "" {
		record.ID = uuid.NewString()
	}

	if record.ExecutedAt.IsZero() {
		record.ExecutedAt = s.clock().UTC()
	}

	outcome, err := s.executions.Record(ctx, record)
	if err != nil {
		return models.TriggerExecutionRecord{}, errkind.FromRepository(err)
	}

	metrics.TriggerExecutions.WithLabelValues(string(record.Status)).Inc()

	evts := []events.Event{
		events.NewTriggerEvent(record.TriggerID, events.TriggerExecuted, map[string]any{
			"status":               record.Status,
			"task_id":              record.TaskID,
			"execution_time_ms":    record.ExecutionTimeMs,
			"error_message":        record.ErrorMessage,
			"consecutive_failures": outcome.Trigger.ConsecutiveFailures,
		}, record.ExecutedAt),
	}

	if outcome.Disabled {
		metrics.TriggersDisabled.Inc()
		log.FromContext(ctx, s.logger).WarnContext(ctx, "Trigger disabled after consecutive failures",
			"trigger_id", record.TriggerID,
			"consecutive_failures", outcome.Trigger.ConsecutiveFailures,
			"failure_threshold", outcome.Trigger.EffectiveFailureThreshold(),
		)

		evts = append(evts, events.NewTriggerEvent(record.TriggerID, events.TriggerDisabled, map[string]any{
			"consecutive_failures": outcome.Trigger.ConsecutiveFailures,
			"failure_threshold":    outcome.Trigger.EffectiveFailureThreshold(),
		}, record.ExecutedAt))
	}

	if err := s.publisher.Publish(ctx, evts...); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish trigger events", "trigger_id", record.TriggerID, "error", err)
	}

	return *record, nil
}
