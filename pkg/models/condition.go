package models

type ConditionType string

const (
	ConditionTypeRule     ConditionType = "rule"
	ConditionTypeLLM      ConditionType = "llm"
	ConditionTypeCombined ConditionType = "combined"
)

type Logic string

const (
	LogicAnd Logic = "AND"
	LogicOr  Logic = "OR"
)

type Operator string

const (
	OperatorEq          Operator = "eq"
	OperatorNe          Operator = "ne"
	OperatorGt          Operator = "gt"
	OperatorGte         Operator = "gte"
	OperatorLt          Operator = "lt"
	OperatorLte         Operator = "lte"
	OperatorContains    Operator = "contains"
	OperatorNotContains Operator = "not_contains"
	OperatorIn          Operator = "in"
	OperatorExists      Operator = "exists"
	OperatorStartsWith  Operator = "starts_with"
	OperatorEndsWith    Operator = "ends_with"
)

// Operators lists every supported rule operator.
var Operators = []Operator{
	OperatorEq, OperatorNe, OperatorGt, OperatorGte, OperatorLt, OperatorLte,
	OperatorContains, OperatorNotContains, OperatorIn, OperatorExists,
	OperatorStartsWith, OperatorEndsWith,
}

// Condition gates a trigger firing. Rule conditions use Rules, LLM
// conditions use Description and ContextFields, and combined conditions
// nest further conditions. Logic applies to Rules and Conditions.
type Condition struct {
	Type          ConditionType `json:"type"`
	Logic         Logic         `json:"logic,omitempty"`
	Rules         []RuleClause  `json:"rules,omitempty"`
	Description   string        `json:"description,omitempty"`
	ContextFields []string      `json:"context_fields,omitempty"`
	Conditions    []*Condition  `json:"conditions,omitempty"`
}

// RuleClause tests the value at a dotted Field path of the event data.
type RuleClause struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value,omitempty"`
}
