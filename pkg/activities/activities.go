// Package activities implements the side effects of the agent workflow on
// top of persistence, the tool registry, the model client and the event bus.
package activities

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/agentarea/agentarea/pkg/agent"
	"github.com/agentarea/agentarea/pkg/durable"
	"github.com/agentarea/agentarea/pkg/errkind"
	"github.com/agentarea/agentarea/pkg/eventbus"
	"github.com/agentarea/agentarea/pkg/llm"
	"github.com/agentarea/agentarea/pkg/log"
	"github.com/agentarea/agentarea/pkg/metrics"
	"github.com/agentarea/agentarea/pkg/models"
	"github.com/agentarea/agentarea/pkg/persistence"
	"github.com/agentarea/agentarea/pkg/tools"
)

// ChatClient is implemented by llm.Client.
type ChatClient interface {
	Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error)
}

// ToolRunner is implemented by tools.Registry.
type ToolRunner interface {
	Definitions(names []string) []tools.Definition
	Execute(ctx context.Context, name string, args map[string]any) (tools.Result, error)
}

type Activities struct {
	agents       persistence.AgentRepository
	tasks        persistence.TaskRepository
	chat         ChatClient
	tools        ToolRunner
	judge        GoalJudge
	publisher    eventbus.EventPublisher
	defaultModel string
	heartbeat    time.Duration
	logger       *slog.Logger
}

var _ agent.Activities = (*Activities)(nil)

type Option func(*Activities)

// WithJudge sets the goal judge. Without one the NoopJudge is used.
func WithJudge(judge GoalJudge) Option {
	return func(a *Activities) {
		a.judge = judge
	}
}

// WithDefaultModel sets the model used for agents that name none.
func WithDefaultModel(model string) Option {
	return func(a *Activities) {
		a.defaultModel = model
	}
}

func WithHeartbeatInterval(d time.Duration) Option {
	return func(a *Activities) {
		a.heartbeat = d
	}
}

func New(
	agents persistence.AgentRepository,
	tasks persistence.TaskRepository,
	chat ChatClient,
	toolRunner ToolRunner,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
	opts ...Option,
) *Activities {
	a := &Activities{
		agents:    agents,
		tasks:     tasks,
		chat:      chat,
		tools:     toolRunner,
		judge:     NoopJudge{},
		publisher: publisher,
		heartbeat: 20 * time.Second,
		logger:    logger.With("module", "agent_activities"),
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

func (a *Activities) loadAgent(ctx context.Context, input agent.AgentInput) (*models.Agent, error) {
	stored, err := a.agents.GetByID(ctx, input.AgentID)
	if err != nil {
		return nil, errkind.FromRepository(err)
	}

	workspace := input.UserContext.WorkspaceID
	if workspace != "" && stored.WorkspaceID != "" && workspace != stored.WorkspaceID {
		return nil, errkind.NewAuth("agent "+stored.ID+" does not belong to workspace "+workspace, nil)
	}

	return stored, nil
}

func (a *Activities) BuildAgentConfig(ctx context.Context, input agent.AgentInput) (agent.AgentConfig, error) {
	stored, err := a.loadAgent(ctx, input)
	if err != nil {
		return agent.AgentConfig{}, err
	}

	model := stored.ModelID
	if model == "" {
		model = a.defaultModel
	}

	toolNames := make([]any, 0, len(stored.Tools))
	for _, name := range stored.Tools {
		toolNames = append(toolNames, name)
	}

	return agent.AgentConfig{
		ID:           stored.ID,
		Name:         stored.Name,
		Instruction:  stored.Instruction,
		ModelID:      model,
		ToolsConfig:  map[string]any{"tools": toolNames},
		EventsConfig: stored.EventsConfig,
		Planning:     stored.Planning,
		Temperature:  stored.Temperature,
		MaxTokens:    stored.MaxTokens,
	}, nil
}

// DiscoverAvailableTools returns the agent's tools. task_complete is always
// offered so every agent can finish its task.
func (a *Activities) DiscoverAvailableTools(ctx context.Context, input agent.AgentInput) ([]agent.ToolSchema, error) {
	stored, err := a.loadAgent(ctx, input)
	if err != nil {
		return nil, err
	}

	names := []string{tools.TaskCompleteName}
	for _, name := range stored.Tools {
		if name != tools.TaskCompleteName {
			names = append(names, name)
		}
	}

	defs := a.tools.Definitions(names)
	schemas := make([]agent.ToolSchema, 0, len(defs))

	for _, def := range defs {
		schemas = append(schemas, agent.ToolSchema{
			Type: "function",
			Function: agent.ToolFunction{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters,
			},
		})
	}

	return schemas, nil
}

func (a *Activities) CallLLM(ctx context.Context, input agent.CallLLMInput) (agent.LLMResponse, error) {
	req := llm.ChatRequest{
		Model:       input.ModelID,
		Messages:    input.Messages,
		Temperature: input.Temperature,
		MaxTokens:   input.MaxTokens,
	}

	for _, schema := range input.Tools {
		req.Tools = append(req.Tools, llm.Tool{
			Type: schema.Type,
			Function: llm.Function{
				Name:        schema.Function.Name,
				Description: schema.Function.Description,
				Parameters:  schema.Function.Parameters,
			},
		})
	}

	resp, err := a.chat.Chat(ctx, req)
	if err != nil {
		return agent.LLMResponse{}, err
	}

	return agent.LLMResponse{
		Role:      models.RoleAssistant,
		Content:   resp.Content,
		ToolCalls: resp.ToolCalls,
		Cost:      resp.Cost,
		Usage: agent.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

func (a *Activities) ExecuteTool(ctx context.Context, input agent.ExecuteToolInput) (agent.ToolResult, error) {
	stop := durable.KeepAlive(ctx, a.heartbeat)
	defer stop()

	result, err := a.tools.Execute(ctx, input.ToolName, input.ToolArgs)
	if err != nil {
		metrics.ToolCalls.WithLabelValues(input.ToolName, "error").Inc()

		var appErr *durable.ApplicationError
		if errors.As(err, &appErr) {
			return agent.ToolResult{}, err
		}

		return agent.ToolResult{}, durable.NewApplicationError(errkind.ToolExecution, "execute tool "+input.ToolName, err)
	}

	metrics.ToolCalls.WithLabelValues(input.ToolName, strconv.FormatBool(result.Success)).Inc()

	log.FromContext(ctx, a.logger).DebugContext(ctx, "Tool executed",
		"task_id", input.TaskID,
		"tool", input.ToolName,
		"success", result.Success,
	)

	return agent.ToolResult{
		Success:   result.Success,
		Completed: result.Completed,
		Result:    result.Result,
		ToolName:  input.ToolName,
		Error:     result.Error,
	}, nil
}

func (a *Activities) EvaluateGoalProgress(ctx context.Context, input agent.GoalProgressInput) (agent.GoalProgress, error) {
	return a.judge.Judge(ctx, input.State, input.Goal)
}

func (a *Activities) PublishWorkflowEvents(ctx context.Context, input agent.PublishEventsInput) (bool, error) {
	if len(input.Events) == 0 {
		return true, nil
	}

	if err := a.publisher.Publish(ctx, input.Events...); err != nil {
		return false, fmt.Errorf("publish %d workflow events: %w", len(input.Events), err)
	}

	return true, nil
}

// UpdateTaskStatus stores the terminal status and result of a task. A task
// that already reached a terminal status is left as it is.
func (a *Activities) UpdateTaskStatus(ctx context.Context, input agent.TaskStatusInput) (bool, error) {
	task, err := a.tasks.GetByID(ctx, input.TaskID)
	if err != nil {
		return false, errkind.FromRepository(err)
	}

	if task.Status.IsTerminal() {
		return false, nil
	}

	task.Status = input.Status
	task.Result = input.Result
	task.UpdatedAt = time.Now().UTC()

	if info, ok := durable.ActivityInfoFrom(ctx); ok && task.RunID == "" {
		task.WorkflowID = info.WorkflowID
		task.RunID = info.RunID
	}

	if err := a.tasks.Save(ctx, task); err != nil {
		return false, errkind.FromRepository(err)
	}

	log.FromContext(ctx, a.logger).InfoContext(ctx, "Task finished", "task_id", task.ID, "status", task.Status)

	return true, nil
}
