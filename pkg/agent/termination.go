package agent

import "github.com/agentarea/agentarea/pkg/models"

// TerminationEvaluator decides after each iteration whether the loop goes on.
type TerminationEvaluator struct{}

// ShouldContinue checks, in order: goal achieved, iteration cap, budget.
// The first matching condition stops the loop with its reason.
func (TerminationEvaluator) ShouldContinue(state *models.AgentExecutionState, budget *BudgetTracker, goal models.AgentGoal) (bool, models.TerminationReason) {
	switch {
	case state.Success:
		return false, models.TerminationGoalAchieved
	case state.CurrentIteration >= goal.MaxIterations:
		return false, models.TerminationMaxIterations
	case budget.IsExceeded():
		return false, models.TerminationBudgetExceeded
	default:
		return true, models.TerminationContinue
	}
}
