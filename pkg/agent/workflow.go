package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/agentarea/agentarea/pkg/durable"
	"github.com/agentarea/agentarea/pkg/errkind"
	"github.com/agentarea/agentarea/pkg/events"
	"github.com/agentarea/agentarea/pkg/models"
	"github.com/google/uuid"
)

const (
	WorkflowName = "AgentExecutionWorkflow"
	SignalCancel = "cancel_execution"
	QueryStatus  = "get_execution_status"
)

// WorkflowID is the durable workflow id of the execution of a task.
func WorkflowID(taskID string) string {
	return "agent-task-" + taskID
}

// Options holds the activity policies of the agent workflow.
type Options struct {
	Config       durable.ActivityOptions
	LLM          durable.ActivityOptions
	Tool         durable.ActivityOptions
	GoalProgress durable.ActivityOptions
	Publish      durable.ActivityOptions
	TaskStatus   durable.ActivityOptions
	// EvaluateGoals enables the EvaluateGoalProgress judge on turns where
	// the model answers without calling a tool.
	EvaluateGoals bool
}

func DefaultOptions() Options {
	nonRetryable := errkind.NonRetryable

	return Options{
		Config: durable.ActivityOptions{
			StartToCloseTimeout: time.Minute,
			RetryPolicy: durable.RetryPolicy{
				MaximumAttempts:        3,
				NonRetryableErrorTypes: nonRetryable,
			},
		},
		LLM: durable.ActivityOptions{
			StartToCloseTimeout: 5 * time.Minute,
			RetryPolicy: durable.RetryPolicy{
				InitialInterval:        time.Second,
				BackoffCoefficient:     2,
				MaximumInterval:        30 * time.Second,
				MaximumAttempts:        3,
				NonRetryableErrorTypes: nonRetryable,
			},
		},
		Tool: durable.ActivityOptions{
			StartToCloseTimeout: 10 * time.Minute,
			HeartbeatTimeout:    time.Minute,
			RetryPolicy: durable.RetryPolicy{
				MaximumAttempts:        3,
				NonRetryableErrorTypes: nonRetryable,
			},
		},
		GoalProgress: durable.ActivityOptions{
			StartToCloseTimeout: 2 * time.Minute,
			RetryPolicy: durable.RetryPolicy{
				MaximumAttempts:        2,
				NonRetryableErrorTypes: nonRetryable,
			},
		},
		Publish: durable.ActivityOptions{
			StartToCloseTimeout: 30 * time.Second,
			RetryPolicy: durable.RetryPolicy{
				MaximumAttempts:        2,
				NonRetryableErrorTypes: nonRetryable,
			},
		},
		TaskStatus: durable.ActivityOptions{
			StartToCloseTimeout: 30 * time.Second,
			RetryPolicy: durable.RetryPolicy{
				MaximumAttempts:        5,
				NonRetryableErrorTypes: nonRetryable,
			},
		},
		EvaluateGoals: true,
	}
}

type Workflow struct {
	opts       Options
	terminator TerminationEvaluator
}

func NewWorkflow(opts Options) *Workflow {
	return &Workflow{opts: opts}
}

// ExecutionStatus is the answer to the get_execution_status query.
type ExecutionStatus struct {
	IsCancelled      bool    `json:"is_cancelled"`
	DurationMs       int64   `json:"duration_ms"`
	IsRunning        bool    `json:"is_running"`
	CurrentIteration int     `json:"current_iteration"`
	TotalCost        float64 `json:"total_cost"`
}

// execution is the in-memory state of one run. It only changes between
// suspension points, so the query handler always sees a consistent view.
type execution struct {
	ctx     durable.Context
	req     models.AgentExecutionRequest
	goal    models.AgentGoal
	state   *models.AgentExecutionState
	budget  *BudgetTracker
	config  AgentConfig
	tools   []ToolSchema
	pending []events.Event

	cancelled bool
	running   bool
}

// Run drives the reasoning loop until the goal is achieved, the iteration
// cap is reached, the budget is exceeded or the run is cancelled.
func (w *Workflow) Run(ctx durable.Context, req models.AgentExecutionRequest) (models.ExecutionResult, error) {
	if err := req.Validate(); err != nil {
		err = errkind.NewValidation("invalid agent execution request: %v", err)
		w.finish(ctx, req.TaskID, models.TaskStatusFailed, &models.TaskResult{Error: err.Error()})

		return models.ExecutionResult{}, err
	}

	goal := req.Goal()
	exec := &execution{
		ctx:     ctx,
		req:     req,
		goal:    goal,
		state:   &models.AgentExecutionState{Goal: goal},
		budget:  NewBudgetTracker(req.Budget()),
		running: true,
	}

	ctx.SetQueryHandler(QueryStatus, func() (any, error) {
		return ExecutionStatus{
			IsCancelled:      exec.cancelled,
			DurationMs:       ctx.Now().Sub(ctx.Info().StartedAt).Milliseconds(),
			IsRunning:        exec.running,
			CurrentIteration: exec.state.CurrentIteration,
			TotalCost:        exec.budget.Cost(),
		}, nil
	})

	logger := ctx.Logger().With("task_id", req.TaskID, "agent_id", req.AgentID)
	logger.Info("Starting agent execution", "max_iterations", goal.MaxIterations, "budget_usd", exec.budget.Budget())

	result, err := w.run(exec)
	exec.running = false

	if err != nil {
		logger.Error("Agent execution failed", "error", err, "iteration", exec.state.CurrentIteration)
		exec.emit(events.WorkflowFailed, map[string]any{
			"error":     err.Error(),
			"iteration": exec.state.CurrentIteration,
		})
		w.flush(exec)
		w.finish(ctx, req.TaskID, models.TaskStatusFailed, &models.TaskResult{
			Iterations: exec.state.CurrentIteration,
			TotalCost:  exec.budget.Cost(),
			Error:      err.Error(),
		})

		return models.ExecutionResult{}, err
	}

	logger.Info("Agent execution finished",
		"success", result.Success,
		"reason", result.TerminationReason,
		"iterations", result.ReasoningIterationsUsed,
		"total_cost", result.TotalCost,
	)

	w.finish(ctx, req.TaskID, taskStatus(result), &models.TaskResult{
		Success:           result.Success,
		FinalResponse:     result.FinalResponse,
		TerminationReason: result.TerminationReason,
		Iterations:        result.ReasoningIterationsUsed,
		TotalCost:         result.TotalCost,
	})

	return result, nil
}

// finish stores the terminal status of the task. A failed write is logged
// and does not change the outcome of the run.
func (w *Workflow) finish(ctx durable.Context, taskID string, status models.TaskStatus, result *models.TaskResult) {
	if taskID == "" {
		return
	}

	var updated bool

	err := ctx.ExecuteActivity(ActivityUpdateTaskStatus, w.opts.TaskStatus, TaskStatusInput{
		TaskID: taskID,
		Status: status,
		Result: result,
	}, &updated)
	if err != nil {
		ctx.Logger().Warn("Updating task status failed", "task_id", taskID, "status", status, "error", err)
	}
}

func taskStatus(result models.ExecutionResult) models.TaskStatus {
	switch {
	case result.TerminationReason == models.TerminationCancelled:
		return models.TaskStatusCancelled
	case result.Success:
		return models.TaskStatusCompleted
	default:
		return models.TaskStatusFailed
	}
}

func (w *Workflow) run(exec *execution) (models.ExecutionResult, error) {
	ctx := exec.ctx
	input := AgentInput{
		AgentID: exec.req.AgentID,
		UserContext: UserContext{
			UserID:      exec.req.UserID,
			WorkspaceID: exec.req.WorkspaceID,
		},
	}

	if err := ctx.ExecuteActivity(ActivityBuildAgentConfig, w.opts.Config, input, &exec.config); err != nil {
		return models.ExecutionResult{}, err
	}

	if err := ctx.ExecuteActivity(ActivityDiscoverAvailableTools, w.opts.Config, input, &exec.tools); err != nil {
		return models.ExecutionResult{}, err
	}

	exec.state.AddMessage(models.ConversationMessage{Role: models.RoleSystem, Content: systemPrompt(exec.config, exec.goal)})
	exec.state.AddMessage(models.ConversationMessage{Role: models.RoleUser, Content: userPrompt(exec.goal)})

	exec.emit(events.WorkflowStarted, map[string]any{
		"agent_id":       exec.req.AgentID,
		"task_query":     exec.req.TaskQuery,
		"max_iterations": exec.goal.MaxIterations,
		"budget_usd":     exec.budget.Budget(),
	})

	reason := models.TerminationContinue

	for {
		if ctx.ReceiveSignal(SignalCancel) {
			exec.cancelled = true
		}

		if exec.cancelled {
			reason = models.TerminationCancelled
			exec.emit(events.WorkflowCancelled, map[string]any{"iteration": exec.state.CurrentIteration})

			break
		}

		if err := w.iterate(exec); err != nil {
			return models.ExecutionResult{}, err
		}

		var proceed bool

		proceed, reason = w.terminator.ShouldContinue(exec.state, exec.budget, exec.goal)
		if !proceed {
			break
		}

		w.flush(exec)
	}

	result := models.ExecutionResult{
		TaskID:                  exec.req.TaskID,
		AgentID:                 exec.req.AgentID,
		Success:                 exec.state.Success,
		ReasoningIterationsUsed: exec.state.CurrentIteration,
		FinalResponse:           exec.state.FinalResponse,
		TotalCost:               exec.budget.Cost(),
		ConversationHistory:     exec.state.ConversationHistory,
		TerminationReason:       reason,
	}

	exec.emit(events.WorkflowCompleted, map[string]any{
		"success":            result.Success,
		"termination_reason": result.TerminationReason,
		"iterations":         result.ReasoningIterationsUsed,
		"final_response":     result.FinalResponse,
		"total_cost":         result.TotalCost,
	})
	w.flush(exec)

	return result, nil
}

// iterate performs one reasoning step: an LLM call followed by the tool
// calls it requested.
func (w *Workflow) iterate(exec *execution) error {
	ctx := exec.ctx
	iteration := exec.state.CurrentIteration + 1

	var resp LLMResponse

	err := ctx.ExecuteActivity(ActivityCallLLM, w.opts.LLM, CallLLMInput{
		TaskID:      exec.req.TaskID,
		Messages:    exec.state.ConversationHistory,
		ModelID:     exec.config.ModelID,
		Tools:       exec.tools,
		Temperature: exec.config.Temperature,
		MaxTokens:   exec.config.MaxTokens,
	}, &resp)
	if err != nil {
		return err
	}

	exec.budget.AddCost(resp.Cost)

	calls := ExtractToolCalls(resp.Content, resp.ToolCalls)
	exec.state.AddMessage(models.ConversationMessage{
		Role:      models.RoleAssistant,
		Content:   resp.Content,
		ToolCalls: calls,
	})

	exec.emit(events.LLMCallCompleted, map[string]any{
		"iteration":    iteration,
		"content":      resp.Content,
		"tool_calls":   calls,
		"cost":         resp.Cost,
		"total_cost":   exec.budget.Cost(),
		"usage":        resp.Usage,
		"budget_usd":   exec.budget.Budget(),
		"model_id":     exec.config.ModelID,
		"tool_call_no": len(calls),
	})

	for _, call := range calls {
		if err := w.executeTool(exec, iteration, call); err != nil {
			return err
		}
	}

	if len(calls) == 0 && strings.TrimSpace(resp.Content) != "" && w.opts.EvaluateGoals {
		w.evaluateGoal(exec)
	}

	exec.state.CurrentIteration = iteration
	exec.emit(events.IterationCompleted, map[string]any{
		"iteration":  iteration,
		"total_cost": exec.budget.Cost(),
		"success":    exec.state.Success,
	})

	return nil
}

func (w *Workflow) executeTool(exec *execution, iteration int, call models.ToolCall) error {
	ctx := exec.ctx

	exec.emit(events.ToolCallStarted, map[string]any{
		"iteration":    iteration,
		"tool_name":    call.Function.Name,
		"tool_call_id": call.ID,
		"arguments":    call.Function.Arguments,
	})

	var result ToolResult

	args, err := ParseArguments(call.Function.Arguments)
	if err != nil {
		result = ToolResult{
			ToolName: call.Function.Name,
			Error:    fmt.Sprintf("invalid tool arguments: %v", err),
		}
	} else {
		err = ctx.ExecuteActivity(ActivityExecuteTool, w.opts.Tool, ExecuteToolInput{
			TaskID:   exec.req.TaskID,
			AgentID:  exec.req.AgentID,
			ToolName: call.Function.Name,
			ToolArgs: args,
		}, &result)
		if err != nil {
			var actErr *durable.ActivityError
			if !errors.As(err, &actErr) {
				return err
			}

			ctx.Logger().Warn("Tool execution failed", "tool", call.Function.Name, "error", err)

			result = ToolResult{ToolName: call.Function.Name, Error: err.Error()}
		}
	}

	if result.ToolName == "" {
		result.ToolName = call.Function.Name
	}

	content, err := json.Marshal(result)
	if err != nil {
		return durable.NewNonRetryableError(durable.ErrTypeInvalidInput, "encode tool result", err)
	}

	exec.state.AddMessage(models.ConversationMessage{
		Role:       models.RoleTool,
		Content:    string(content),
		ToolCallID: call.ID,
		Name:       call.Function.Name,
	})

	exec.emit(events.ToolCallCompleted, map[string]any{
		"iteration":    iteration,
		"tool_name":    call.Function.Name,
		"tool_call_id": call.ID,
		"success":      result.Success,
		"result":       result.Result,
		"error":        result.Error,
	})

	if call.Function.Name == TaskCompleteTool && result.Success && result.Completed {
		exec.state.Complete(finalResponse(result.Result))
	}

	return nil
}

func (w *Workflow) evaluateGoal(exec *execution) {
	var progress GoalProgress

	err := exec.ctx.ExecuteActivity(ActivityEvaluateGoalProgress, w.opts.GoalProgress, GoalProgressInput{
		State: *exec.state,
		Goal:  exec.goal,
	}, &progress)
	if err != nil {
		exec.ctx.Logger().Warn("Goal evaluation failed", "error", err)

		return
	}

	if progress.GoalAchieved {
		final := progress.FinalResponse
		if final == "" {
			final = lastAssistantContent(exec.state)
		}

		exec.state.Complete(final)
	}
}

// flush publishes the events collected since the last flush. Publishing is
// best effort and never fails the run.
func (w *Workflow) flush(exec *execution) {
	if len(exec.pending) == 0 {
		return
	}

	batch := exec.pending
	exec.pending = nil

	if !exec.config.PublishesEvents() {
		return
	}

	var published bool

	err := exec.ctx.ExecuteActivity(ActivityPublishWorkflowEvents, w.opts.Publish, PublishEventsInput{Events: batch}, &published)
	if err != nil {
		exec.ctx.Logger().Warn("Publishing workflow events failed", "error", err, "events", len(batch))
	}
}

func (e *execution) emit(eventType events.EventType, data map[string]any) {
	e.pending = append(e.pending, events.NewWorkflowEvent(e.req.TaskID, eventType, data, e.ctx.Now()))
}

func finalResponse(result any) string {
	switch v := result.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}

		return string(raw)
	}
}

func lastAssistantContent(state *models.AgentExecutionState) string {
	for i := len(state.ConversationHistory) - 1; i >= 0; i-- {
		msg := state.ConversationHistory[i]
		if msg.Role == models.RoleAssistant && msg.Content != "" {
			return msg.Content
		}
	}

	return ""
}

func systemPrompt(config AgentConfig, goal models.AgentGoal) string {
	var b strings.Builder

	if config.Instruction != "" {
		b.WriteString(config.Instruction)
		b.WriteString("\n\n")
	}

	if config.Name != "" {
		fmt.Fprintf(&b, "You are %s.\n", config.Name)
	}

	b.WriteString("Work on the task step by step. Use the available tools when they help. ")
	fmt.Fprintf(&b, "When the task is done, call the %s tool with your final answer as the result.\n", TaskCompleteTool)

	if config.Planning {
		b.WriteString("Before your first tool call, write a short numbered plan and keep it updated as you learn more.\n")
	}

	if len(goal.SuccessCriteria) > 0 {
		b.WriteString("\nSuccess criteria:\n")

		for _, criterion := range goal.SuccessCriteria {
			fmt.Fprintf(&b, "- %s\n", criterion)
		}
	}

	fmt.Fprintf(&b, "\nYou have at most %d iterations.", goal.MaxIterations)

	return b.String()
}

func userPrompt(goal models.AgentGoal) string {
	if len(goal.Context) == 0 {
		return goal.Description
	}

	raw, err := json.Marshal(goal.Context)
	if err != nil {
		return goal.Description
	}

	return goal.Description + "\n\nContext:\n" + string(raw)
}

// TaskIDFromRun derives a stable task id for work started by the given
// workflow run, so that retried starts reuse the same task.
func TaskIDFromRun(workflowID, runID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(workflowID+"/"+runID)).String()
}
