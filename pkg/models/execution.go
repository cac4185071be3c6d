package models

const (
	DefaultMaxIterations = 10
	DefaultBudgetUSD     = 10.0
)

type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
)

// ToolCall is a requested tool invocation in the OpenAI function-calling shape.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall carries the tool name and its arguments as raw JSON text.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type ConversationMessage struct {
	Role       MessageRole `json:"role"`
	Content    string      `json:"content"`
	ToolCalls  []ToolCall  `json:"tool_calls,omitempty"`
	ToolCallID string      `json:"tool_call_id,omitempty"`
	Name       string      `json:"name,omitempty"`
}

// AgentGoal describes what a single execution must achieve. It is not
// modified after the execution starts.
type AgentGoal struct {
	ID                    string         `json:"id"`
	Description           string         `json:"description"`
	SuccessCriteria       []string       `json:"success_criteria,omitempty"`
	MaxIterations         int            `json:"max_iterations"`
	RequiresHumanApproval bool           `json:"requires_human_approval"`
	Context               map[string]any `json:"context,omitempty"`
}

// AgentExecutionState is the mutable progress of one agent workflow run.
type AgentExecutionState struct {
	Goal                AgentGoal             `json:"goal"`
	CurrentIteration    int                   `json:"current_iteration"`
	ConversationHistory []ConversationMessage `json:"conversation_history"`
	Success             bool                  `json:"success"`
	FinalResponse       string                `json:"final_response,omitempty"`
}

func (s *AgentExecutionState) AddMessage(msg ConversationMessage) {
	s.ConversationHistory = append(s.ConversationHistory, msg)
}

// Complete marks the goal as achieved. It is the only way Success becomes true.
func (s *AgentExecutionState) Complete(finalResponse string) {
	s.Success = true
	s.FinalResponse = finalResponse
}

type TerminationReason string

const (
	TerminationGoalAchieved   TerminationReason = "goal achieved"
	TerminationMaxIterations  TerminationReason = "maximum iterations reached"
	TerminationBudgetExceeded TerminationReason = "budget exceeded"
	TerminationCancelled      TerminationReason = "cancelled"
	TerminationContinue       TerminationReason = "continue"
)

// ExecutionResult is the terminal outcome of an agent workflow.
type ExecutionResult struct {
	TaskID                  string                `json:"task_id"`
	AgentID                 string                `json:"agent_id"`
	Success                 bool                  `json:"success"`
	ReasoningIterationsUsed int                   `json:"reasoning_iterations_used"`
	FinalResponse           string                `json:"final_response,omitempty"`
	TotalCost               float64               `json:"total_cost"`
	ConversationHistory     []ConversationMessage `json:"conversation_history"`
	TerminationReason       TerminationReason     `json:"termination_reason"`
}

// TaskParameters are the execution knobs carried with a task. Keys other
// than the known ones are kept in Extra and handed to the model as context.
type TaskParameters struct {
	SuccessCriteria []string       `json:"success_criteria,omitempty"`
	MaxIterations   int            `json:"max_iterations,omitempty"`
	Extra           map[string]any `json:"extra,omitempty"`
}

// TaskParametersFromMap splits a free-form parameter map into TaskParameters.
func TaskParametersFromMap(params map[string]any) TaskParameters {
	var tp TaskParameters

	for key, value := range params {
		switch key {
		case "success_criteria":
			tp.SuccessCriteria = toStrings(value)
		case "max_iterations":
			if n, ok := ToFloat(value); ok {
				tp.MaxIterations = int(n)
			}
		default:
			if tp.Extra == nil {
				tp.Extra = make(map[string]any)
			}

			tp.Extra[key] = value
		}
	}

	return tp
}

type AgentExecutionRequest struct {
	AgentID               string         `json:"agent_id"                validate:"required"`
	TaskID                string         `json:"task_id"                 validate:"required"`
	UserID                string         `json:"user_id,omitempty"`
	WorkspaceID           string         `json:"workspace_id,omitempty"`
	TaskQuery             string         `json:"task_query"              validate:"required"`
	TaskParameters        TaskParameters `json:"task_parameters"`
	BudgetUSD             float64        `json:"budget_usd"`
	RequiresHumanApproval bool           `json:"requires_human_approval"`
}

// Goal derives the execution goal, applying the default iteration cap.
func (r AgentExecutionRequest) Goal() AgentGoal {
	maxIterations := r.TaskParameters.MaxIterations
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}

	return AgentGoal{
		ID:                    r.TaskID,
		Description:           r.TaskQuery,
		SuccessCriteria:       r.TaskParameters.SuccessCriteria,
		MaxIterations:         maxIterations,
		RequiresHumanApproval: r.RequiresHumanApproval,
		Context:               r.TaskParameters.Extra,
	}
}

func (r AgentExecutionRequest) Budget() float64 {
	if r.BudgetUSD <= 0 {
		return DefaultBudgetUSD
	}

	return r.BudgetUSD
}

func (r AgentExecutionRequest) Validate() error {
	return validate.Struct(r)
}
