package conditions

import (
	"fmt"
	"strings"

	"github.com/agentarea/agentarea/pkg/models"
)

// ValidateConditionSyntax lists every problem found in condition. An empty
// result means the condition is well formed.
func ValidateConditionSyntax(condition *models.Condition) []string {
	if condition == nil {
		return nil
	}

	return validate(condition, "condition")
}

func validate(condition *models.Condition, path string) []string {
	if condition == nil {
		return []string{path + ": condition is empty"}
	}

	var errs []string

	switch condition.Type {
	case models.ConditionTypeRule:
		if condition.Logic != "" && !validLogic(condition.Logic) {
			errs = append(errs, fmt.Sprintf("%s: invalid logic %q, expected AND or OR", path, condition.Logic))
		}

		if len(condition.Rules) == 0 {
			errs = append(errs, path+": rule condition requires at least one rule")
		}

		for i, rule := range condition.Rules {
			rulePath := fmt.Sprintf("%s.rules[%d]", path, i)

			if strings.TrimSpace(rule.Field) == "" {
				errs = append(errs, rulePath+": rule condition requires field")
			}

			if rule.Operator == "" {
				errs = append(errs, rulePath+": rule condition requires operator")
			} else if !isOperator(rule.Operator) {
				errs = append(errs, fmt.Sprintf("%s: unknown operator %q", rulePath, rule.Operator))
			}
		}
	case models.ConditionTypeLLM:
		if strings.TrimSpace(condition.Description) == "" {
			errs = append(errs, path+": llm condition requires description")
		}
	case models.ConditionTypeCombined:
		if !validLogic(condition.Logic) {
			errs = append(errs, fmt.Sprintf("%s: combined condition requires logic AND or OR, got %q", path, condition.Logic))
		}

		if len(condition.Conditions) == 0 {
			errs = append(errs, path+": combined condition requires nested conditions")
		}

		for i, child := range condition.Conditions {
			errs = append(errs, validate(child, fmt.Sprintf("%s.conditions[%d]", path, i))...)
		}
	default:
		errs = append(errs, fmt.Sprintf("%s: unknown condition type %q", path, condition.Type))
	}

	return errs
}

func validLogic(logic models.Logic) bool {
	return logic == models.LogicAnd || logic == models.LogicOr
}
