package activities

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agentarea/agentarea/pkg/agent"
	"github.com/agentarea/agentarea/pkg/jsonscan"
	"github.com/agentarea/agentarea/pkg/models"
)

// GoalJudge decides whether an execution has achieved its goal when the
// model answers without calling a tool.
type GoalJudge interface {
	Judge(ctx context.Context, state models.AgentExecutionState, goal models.AgentGoal) (agent.GoalProgress, error)
}

// NoopJudge never declares a goal achieved, leaving completion to the
// task_complete tool.
type NoopJudge struct{}

func (NoopJudge) Judge(context.Context, models.AgentExecutionState, models.AgentGoal) (agent.GoalProgress, error) {
	return agent.GoalProgress{}, nil
}

// Completer is implemented by llm.Client.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// LLMJudge asks a model whether the latest assistant answer meets the goal.
// Replies without a readable verdict count as not achieved.
type LLMJudge struct {
	completer Completer
}

func NewLLMJudge(completer Completer) *LLMJudge {
	return &LLMJudge{completer: completer}
}

type verdict struct {
	GoalAchieved  bool   `json:"goal_achieved"`
	FinalResponse string `json:"final_response"`
}

func (j *LLMJudge) Judge(ctx context.Context, state models.AgentExecutionState, goal models.AgentGoal) (agent.GoalProgress, error) {
	answer := lastAssistantMessage(state.ConversationHistory)
	if answer == "" {
		return agent.GoalProgress{}, nil
	}

	var criteria strings.Builder
	for _, c := range goal.SuccessCriteria {
		criteria.WriteString("- " + c + "\n")
	}

	if criteria.Len() == 0 {
		criteria.WriteString("- The goal is fully addressed\n")
	}

	prompt := fmt.Sprintf(`Decide whether the assistant has achieved its goal.

Goal: %s

Success criteria:
%s
Latest assistant answer:
%s

Reply with a JSON object {"goal_achieved": true|false, "final_response": "<answer to return when achieved>"}.`,
		goal.Description, criteria.String(), answer)

	reply, err := j.completer.Complete(ctx, prompt)
	if err != nil {
		return agent.GoalProgress{}, fmt.Errorf("judge goal progress: %w", err)
	}

	for _, span := range append([]string{strings.TrimSpace(reply)}, jsonscan.Objects(reply)...) {
		var v verdict
		if err := json.Unmarshal([]byte(span), &v); err != nil {
			continue
		}

		if !v.GoalAchieved {
			return agent.GoalProgress{}, nil
		}

		final := v.FinalResponse
		if final == "" {
			final = answer
		}

		return agent.GoalProgress{GoalAchieved: true, FinalResponse: final}, nil
	}

	return agent.GoalProgress{}, nil
}

func lastAssistantMessage(history []models.ConversationMessage) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == models.RoleAssistant && strings.TrimSpace(history[i].Content) != "" {
			return history[i].Content
		}
	}

	return ""
}
