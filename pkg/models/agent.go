package models

import "time"

// Agent is the stored definition an execution materializes its config from.
type Agent struct {
	ID           string         `json:"id"                      validate:"required"`
	Name         string         `json:"name"                    validate:"required,min=1"`
	Description  string         `json:"description,omitempty"`
	Instruction  string         `json:"instruction"             validate:"required"`
	ModelID      string         `json:"model_id,omitempty"`
	Tools        []string       `json:"tools,omitempty"`
	EventsConfig map[string]any `json:"events_config,omitempty"`
	Planning     bool           `json:"planning"`
	Temperature  *float64       `json:"temperature,omitempty"   validate:"omitempty,gte=0,lte=2"`
	MaxTokens    *int           `json:"max_tokens,omitempty"    validate:"omitempty,gt=0"`
	WorkspaceID  string         `json:"workspace_id,omitempty"`
	CreatedBy    string         `json:"created_by,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

type TaskStatus string

const (
	TaskStatusPending        TaskStatus = "pending"
	TaskStatusRunning        TaskStatus = "running"
	TaskStatusAlreadyRunning TaskStatus = "already_running"
	TaskStatusCompleted      TaskStatus = "completed"
	TaskStatusFailed         TaskStatus = "failed"
	TaskStatusCancelled      TaskStatus = "cancelled"
)

// IsTerminal reports whether a task in this status will not change again.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed || s == TaskStatusCancelled
}

// TaskResult summarises how the agent execution of a task ended.
type TaskResult struct {
	Success           bool              `json:"success"`
	FinalResponse     string            `json:"final_response,omitempty"`
	TerminationReason TerminationReason `json:"termination_reason,omitempty"`
	Iterations        int               `json:"iterations"`
	TotalCost         float64           `json:"total_cost"`
	Error             string            `json:"error,omitempty"`
}

// Task is one unit of agent work, executed by exactly one agent workflow.
type Task struct {
	ID          string         `json:"id"                    validate:"required"`
	AgentID     string         `json:"agent_id"              validate:"required"`
	Query       string         `json:"query"                 validate:"required"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	Status      TaskStatus     `json:"status"`
	WorkflowID  string         `json:"workflow_id,omitempty"`
	RunID       string         `json:"run_id,omitempty"`
	UserID      string         `json:"user_id,omitempty"`
	WorkspaceID string         `json:"workspace_id,omitempty"`
	Result      *TaskResult    `json:"result,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}
