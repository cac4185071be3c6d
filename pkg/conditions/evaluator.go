// Package conditions evaluates the predicates that gate trigger firings.
package conditions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/agentarea/agentarea/pkg/models"
)

var (
	ErrNoCompleter          = errors.New("no language model configured for llm conditions")
	ErrUnknownConditionType = errors.New("unknown condition type")
	ErrUnknownOperator      = errors.New("unknown operator")
)

// Completer answers a single prompt with a language model.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type noCompleter struct{}

func (noCompleter) Complete(context.Context, string) (string, error) {
	return "", ErrNoCompleter
}

type Evaluator struct {
	completer Completer
	logger    *slog.Logger
}

// NewEvaluator returns an evaluator. A nil completer makes every llm
// condition fail, which EvaluateWithFallback turns into rule-only evaluation.
func NewEvaluator(completer Completer, logger *slog.Logger) *Evaluator {
	if completer == nil {
		completer = noCompleter{}
	}

	return &Evaluator{
		completer: completer,
		logger:    logger.With("module", "conditions"),
	}
}

// Evaluate reports whether eventData satisfies condition. A nil condition
// is always met. Missing fields never cause errors, they simply do not match.
func (e *Evaluator) Evaluate(ctx context.Context, condition *models.Condition, eventData map[string]any) (bool, error) {
	if condition == nil {
		return true, nil
	}

	switch condition.Type {
	case models.ConditionTypeRule:
		return evaluateRules(condition.Rules, condition.Logic, eventData)
	case models.ConditionTypeLLM:
		return e.evaluateLLM(ctx, condition, eventData)
	case models.ConditionTypeCombined:
		return e.evaluateCombined(ctx, condition, eventData)
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownConditionType, condition.Type)
	}
}

func (e *Evaluator) evaluateCombined(ctx context.Context, condition *models.Condition, eventData map[string]any) (bool, error) {
	or := condition.Logic == models.LogicOr

	for _, child := range condition.Conditions {
		met, err := e.Evaluate(ctx, child, eventData)
		if err != nil {
			return false, err
		}

		if or && met {
			return true, nil
		}

		if !or && !met {
			return false, nil
		}
	}

	return !or || len(condition.Conditions) == 0, nil
}

// EvaluateWithFallback evaluates condition and, when that fails, evaluates
// the rule-only subset of the same tree instead of giving up. A tree
// without any rule part is not met once the evaluator has failed.
func (e *Evaluator) EvaluateWithFallback(ctx context.Context, condition *models.Condition, eventData map[string]any) (bool, error) {
	met, err := e.Evaluate(ctx, condition, eventData)
	if err == nil {
		return met, nil
	}

	e.logger.WarnContext(ctx, "Condition evaluation failed, falling back to rule conditions", "error", err)

	subset := RuleSubset(condition)
	if subset == nil {
		return false, nil
	}

	return e.Evaluate(ctx, subset, eventData)
}

// RuleSubset returns a copy of condition with every llm part removed, or
// nil when nothing rule-shaped remains.
func RuleSubset(condition *models.Condition) *models.Condition {
	if condition == nil {
		return nil
	}

	switch condition.Type {
	case models.ConditionTypeRule:
		c := *condition

		return &c
	case models.ConditionTypeCombined:
		var children []*models.Condition

		for _, child := range condition.Conditions {
			if sub := RuleSubset(child); sub != nil {
				children = append(children, sub)
			}
		}

		if len(children) == 0 {
			return nil
		}

		c := *condition
		c.Conditions = children

		return &c
	default:
		return nil
	}
}
