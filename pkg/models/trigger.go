package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

const DefaultFailureThreshold = 5

type TriggerType string

const (
	TriggerTypeCron    TriggerType = "cron"
	TriggerTypeWebhook TriggerType = "webhook"
)

type WebhookType string

const (
	WebhookTypeGeneric  WebhookType = "generic"
	WebhookTypeGitHub   WebhookType = "github"
	WebhookTypeSlack    WebhookType = "slack"
	WebhookTypeTelegram WebhookType = "telegram"
)

var (
	// ErrInvalidTrigger is returned when trigger validation fails
	ErrInvalidTrigger = errors.New("invalid trigger configuration")

	validate = validator.New(validator.WithRequiredStructEnabled())
)

// TriggerDefinition is a cron or webhook trigger that starts agent tasks.
// Exactly one of Cron and Webhook is set, matching TriggerType.
type TriggerDefinition struct {
	ID                   string         `json:"id"                              validate:"required"`
	Name                 string         `json:"name"                            validate:"required"`
	Description          string         `json:"description,omitempty"`
	AgentID              string         `json:"agent_id"                        validate:"required"`
	TriggerType          TriggerType    `json:"trigger_type"                    validate:"required,oneof=cron webhook"`
	IsActive             bool           `json:"is_active"`
	TaskParameters       map[string]any `json:"task_parameters,omitempty"`
	Conditions           *Condition     `json:"conditions,omitempty"`
	ParameterInstruction string         `json:"parameter_instruction,omitempty"`
	FailureThreshold     int            `json:"failure_threshold"               validate:"gte=0"`
	ConsecutiveFailures  int            `json:"consecutive_failures"            validate:"gte=0"`
	LastExecutionAt      *time.Time     `json:"last_execution_at,omitempty"`
	CreatedBy            string         `json:"created_by,omitempty"`
	WorkspaceID          string         `json:"workspace_id,omitempty"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`

	Cron    *CronConfig    `json:"cron,omitempty"    validate:"required_if=TriggerType cron"`
	Webhook *WebhookConfig `json:"webhook,omitempty" validate:"required_if=TriggerType webhook"`
}

type WebhookConfig struct {
	WebhookID       string         `json:"webhook_id"                 validate:"required"`
	AllowedMethods  []string       `json:"allowed_methods,omitempty"  validate:"dive,oneof=GET POST PUT PATCH DELETE"`
	WebhookType     WebhookType    `json:"webhook_type,omitempty"     validate:"omitempty,oneof=generic github slack telegram"`
	ValidationRules map[string]any `json:"validation_rules,omitempty"`
	Config          map[string]any `json:"webhook_config,omitempty"`
}

// AllowsMethod reports whether method may invoke the webhook. An empty
// allow-list accepts POST only.
func (w *WebhookConfig) AllowsMethod(method string) bool {
	if len(w.AllowedMethods) == 0 {
		return method == "POST"
	}

	for _, allowed := range w.AllowedMethods {
		if allowed == method {
			return true
		}
	}

	return false
}

func (t *TriggerDefinition) Validate() error {
	if err := validate.Struct(t); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTrigger, err)
	}

	if t.TriggerType == TriggerTypeCron {
		if err := t.Cron.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidTrigger, err)
		}
	}

	return nil
}

// EffectiveFailureThreshold returns the configured threshold or the default.
func (t *TriggerDefinition) EffectiveFailureThreshold() int {
	if t.FailureThreshold <= 0 {
		return DefaultFailureThreshold
	}

	return t.FailureThreshold
}

// CircuitOpen reports whether the trigger has reached its failure threshold.
func (t *TriggerDefinition) CircuitOpen() bool {
	return t.ConsecutiveFailures >= t.EffectiveFailureThreshold()
}

// ApplyExecution updates the failure counter for an execution outcome and
// disables the trigger once the threshold is reached. It returns true when
// this call disabled the trigger.
func (t *TriggerDefinition) ApplyExecution(status ExecutionStatus, at time.Time) bool {
	t.LastExecutionAt = &at
	t.UpdatedAt = at

	switch status {
	case ExecutionStatusSuccess:
		t.ConsecutiveFailures = 0
	case ExecutionStatusFailed, ExecutionStatusTimeout:
		t.ConsecutiveFailures++
	case ExecutionStatusSkipped:
	}

	if t.IsActive && t.CircuitOpen() {
		t.IsActive = false

		return true
	}

	return false
}

type ExecutionStatus string

const (
	ExecutionStatusSuccess ExecutionStatus = "success"
	ExecutionStatusFailed  ExecutionStatus = "failed"
	ExecutionStatusSkipped ExecutionStatus = "skipped"
	ExecutionStatusTimeout ExecutionStatus = "timeout"
)

// TriggerExecutionRecord is the append-only audit entry of one firing attempt.
type TriggerExecutionRecord struct {
	ID              string          `json:"id"`
	TriggerID       string          `json:"trigger_id"                validate:"required"`
	ExecutedAt      time.Time       `json:"executed_at"`
	Status          ExecutionStatus `json:"status"                    validate:"required,oneof=success failed skipped timeout"`
	TaskID          string          `json:"task_id,omitempty"`
	ExecutionTimeMs int64           `json:"execution_time_ms"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	TriggerData     map[string]any  `json:"trigger_data,omitempty"`
	WorkflowID      string          `json:"workflow_id,omitempty"`
	RunID           string          `json:"run_id,omitempty"`
}
