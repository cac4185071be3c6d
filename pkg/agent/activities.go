package agent

import (
	"context"

	"github.com/agentarea/agentarea/pkg/durable"
	"github.com/agentarea/agentarea/pkg/events"
	"github.com/agentarea/agentarea/pkg/models"
)

// Activity names used by the agent workflow.
const (
	ActivityBuildAgentConfig       = "BuildAgentConfig"
	ActivityDiscoverAvailableTools = "DiscoverAvailableTools"
	ActivityCallLLM                = "CallLLM"
	ActivityExecuteTool            = "ExecuteTool"
	ActivityEvaluateGoalProgress   = "EvaluateGoalProgress"
	ActivityPublishWorkflowEvents  = "PublishWorkflowEvents"
	ActivityUpdateTaskStatus       = "UpdateTaskStatus"
)

// TaskCompleteTool is the tool a model calls to finish its task.
const TaskCompleteTool = "task_complete"

type UserContext struct {
	UserID      string `json:"user_id"`
	WorkspaceID string `json:"workspace_id"`
}

type AgentInput struct {
	AgentID     string      `json:"agent_id"`
	UserContext UserContext `json:"user_context"`
}

type AgentConfig struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Instruction  string         `json:"instruction"`
	ModelID      string         `json:"model_id"`
	ToolsConfig  map[string]any `json:"tools_config,omitempty"`
	EventsConfig map[string]any `json:"events_config,omitempty"`
	Planning     bool           `json:"planning"`
	Temperature  *float64       `json:"temperature,omitempty"`
	MaxTokens    *int           `json:"max_tokens,omitempty"`
}

// PublishesEvents reports whether the agent's events config leaves
// publishing enabled. It is on unless "publish_events" is false.
func (c AgentConfig) PublishesEvents() bool {
	enabled, ok := c.EventsConfig["publish_events"].(bool)

	return !ok || enabled
}

// ToolSchema describes a tool in the OpenAI function-calling format.
type ToolSchema struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

type ToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type CallLLMInput struct {
	TaskID      string                       `json:"task_id"`
	Messages    []models.ConversationMessage `json:"messages"`
	ModelID     string                       `json:"model_id"`
	Tools       []ToolSchema                 `json:"tools,omitempty"`
	Temperature *float64                     `json:"temperature,omitempty"`
	MaxTokens   *int                         `json:"max_tokens,omitempty"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type LLMResponse struct {
	Role      models.MessageRole `json:"role"`
	Content   string             `json:"content"`
	ToolCalls []models.ToolCall  `json:"tool_calls,omitempty"`
	Cost      float64            `json:"cost"`
	Usage     Usage              `json:"usage"`
}

type ExecuteToolInput struct {
	TaskID   string         `json:"task_id"`
	AgentID  string         `json:"agent_id"`
	ToolName string         `json:"tool_name"`
	ToolArgs map[string]any `json:"tool_args"`
}

type ToolResult struct {
	Success   bool   `json:"success"`
	Completed bool   `json:"completed,omitempty"`
	Result    any    `json:"result,omitempty"`
	ToolName  string `json:"tool_name"`
	Error     string `json:"error,omitempty"`
}

type GoalProgressInput struct {
	State models.AgentExecutionState `json:"state"`
	Goal  models.AgentGoal           `json:"goal"`
}

type GoalProgress struct {
	GoalAchieved  bool   `json:"goal_achieved"`
	FinalResponse string `json:"final_response,omitempty"`
}

type PublishEventsInput struct {
	Events []events.Event `json:"events"`
}

// TaskStatusInput moves a task to the status its execution ended in.
type TaskStatusInput struct {
	TaskID string             `json:"task_id"`
	Status models.TaskStatus  `json:"status"`
	Result *models.TaskResult `json:"result,omitempty"`
}

// Activities performs the side effects of an agent execution.
type Activities interface {
	BuildAgentConfig(ctx context.Context, input AgentInput) (AgentConfig, error)
	DiscoverAvailableTools(ctx context.Context, input AgentInput) ([]ToolSchema, error)
	CallLLM(ctx context.Context, input CallLLMInput) (LLMResponse, error)
	ExecuteTool(ctx context.Context, input ExecuteToolInput) (ToolResult, error)
	EvaluateGoalProgress(ctx context.Context, input GoalProgressInput) (GoalProgress, error)
	PublishWorkflowEvents(ctx context.Context, input PublishEventsInput) (bool, error)
	UpdateTaskStatus(ctx context.Context, input TaskStatusInput) (bool, error)
}

// Registrar is implemented by durable.Engine.
type Registrar interface {
	RegisterWorkflow(name string, fn durable.WorkflowFunc)
	RegisterActivity(name string, fn durable.ActivityFunc)
}

// Register wires the agent workflow and its activities into r.
func Register(r Registrar, workflow *Workflow, acts Activities) {
	r.RegisterWorkflow(WorkflowName, durable.Workflow(workflow.Run))
	r.RegisterActivity(ActivityBuildAgentConfig, durable.Activity(acts.BuildAgentConfig))
	r.RegisterActivity(ActivityDiscoverAvailableTools, durable.Activity(acts.DiscoverAvailableTools))
	r.RegisterActivity(ActivityCallLLM, durable.Activity(acts.CallLLM))
	r.RegisterActivity(ActivityExecuteTool, durable.Activity(acts.ExecuteTool))
	r.RegisterActivity(ActivityEvaluateGoalProgress, durable.Activity(acts.EvaluateGoalProgress))
	r.RegisterActivity(ActivityPublishWorkflowEvents, durable.Activity(acts.PublishWorkflowEvents))
	r.RegisterActivity(ActivityUpdateTaskStatus, durable.Activity(acts.UpdateTaskStatus))
}
