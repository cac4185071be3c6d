package conditions

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/agentarea/agentarea/pkg/models"
)

func evaluateRules(rules []models.RuleClause, logic models.Logic, eventData map[string]any) (bool, error) {
	or := logic == models.LogicOr

	for _, rule := range rules {
		met, err := evaluateRule(rule, eventData)
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

	return !or || len(rules) == 0, nil
}

func evaluateRule(rule models.RuleClause, eventData map[string]any) (bool, error) {
	actual, found := Lookup(eventData, rule.Field)

	if rule.Operator == models.OperatorExists {
		want := true
		if b, ok := rule.Value.(bool); ok {
			want = b
		}

		return found == want, nil
	}

	if !found {
		if !isOperator(rule.Operator) {
			return false, fmt.Errorf("%w: %q", ErrUnknownOperator, rule.Operator)
		}

		return false, nil
	}

	switch rule.Operator {
	case models.OperatorEq:
		return equal(actual, rule.Value), nil
	case models.OperatorNe:
		return !equal(actual, rule.Value), nil
	case models.OperatorGt, models.OperatorGte, models.OperatorLt, models.OperatorLte:
		return compare(rule.Operator, actual, rule.Value), nil
	case models.OperatorContains:
		return contains(actual, rule.Value), nil
	case models.OperatorNotContains:
		return !contains(actual, rule.Value), nil
	case models.OperatorIn:
		return contains(rule.Value, actual), nil
	case models.OperatorStartsWith:
		s, ok := actual.(string)

		return ok && strings.HasPrefix(s, fmt.Sprint(rule.Value)), nil
	case models.OperatorEndsWith:
		s, ok := actual.(string)

		return ok && strings.HasSuffix(s, fmt.Sprint(rule.Value)), nil
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownOperator, rule.Operator)
	}
}

func isOperator(op models.Operator) bool {
	for _, known := range models.Operators {
		if op == known {
			return true
		}
	}

	return false
}

// Lookup resolves a dotted path such as "pull_request.labels.0.name"
// against decoded JSON. Numeric segments index into arrays.
func Lookup(data map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}

	var current any = data

	for _, segment := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]any:
			value, ok := node[segment]
			if !ok {
				return nil, false
			}

			current = value
		case []any:
			index, err := strconv.Atoi(segment)
			if err != nil || index < 0 || index >= len(node) {
				return nil, false
			}

			current = node[index]
		default:
			return nil, false
		}
	}

	return current, true
}

func equal(actual, expected any) bool {
	if a, ok := number(actual); ok {
		if b, ok := number(expected); ok {
			return a == b
		}
	}

	if reflect.DeepEqual(actual, expected) {
		return true
	}

	if actual == nil || expected == nil {
		return false
	}

	if isScalar(actual) && isScalar(expected) {
		return fmt.Sprint(actual) == fmt.Sprint(expected)
	}

	return false
}

func compare(op models.Operator, actual, expected any) bool {
	a, okA := models.ToFloat(actual)
	b, okB := models.ToFloat(expected)

	if !okA || !okB {
		sa, isStrA := actual.(string)
		sb, isStrB := expected.(string)

		if !isStrA || !isStrB {
			return false
		}

		cmp := strings.Compare(sa, sb)
		a, b = float64(cmp), 0
	}

	switch op {
	case models.OperatorGt:
		return a > b
	case models.OperatorGte:
		return a >= b
	case models.OperatorLt:
		return a < b
	default:
		return a <= b
	}
}

// contains reports whether haystack holds needle: a substring of a string,
// an element of a list or a key of an object.
func contains(haystack, needle any) bool {
	switch h := haystack.(type) {
	case string:
		return strings.Contains(h, fmt.Sprint(needle))
	case []any:
		for _, item := range h {
			if equal(item, needle) {
				return true
			}
		}
	case []string:
		for _, item := range h {
			if equal(item, needle) {
				return true
			}
		}
	case map[string]any:
		_, ok := h[fmt.Sprint(needle)]

		return ok
	}

	return false
}

// number converts numeric JSON values, not numeric strings.
func number(value any) (float64, bool) {
	if _, isString := value.(string); isString {
		return 0, false
	}

	return models.ToFloat(value)
}

func isScalar(value any) bool {
	switch value.(type) {
	case string, bool, float64, float32, int, int32, int64, uint, uint64:
		return true
	default:
		return false
	}
}
