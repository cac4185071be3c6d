package conditions

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/agentarea/agentarea/pkg/jsonscan"
	"github.com/agentarea/agentarea/pkg/models"
)

func (e *Evaluator) evaluateLLM(ctx context.Context, condition *models.Condition, eventData map[string]any) (bool, error) {
	prompt, err := conditionPrompt(condition, eventData)
	if err != nil {
		return false, err
	}

	reply, err := e.completer.Complete(ctx, prompt)
	if err != nil {
		return false, fmt.Errorf("evaluate llm condition: %w", err)
	}

	met := ParseDecision(reply)
	e.logger.DebugContext(ctx, "LLM condition evaluated", "description", condition.Description, "reply", reply, "met", met)

	return met, nil
}

func conditionPrompt(condition *models.Condition, eventData map[string]any) (string, error) {
	fields := eventData
	if len(condition.ContextFields) > 0 {
		fields = make(map[string]any, len(condition.ContextFields))

		for _, field := range condition.ContextFields {
			if value, ok := Lookup(eventData, field); ok {
				fields[field] = value
			}
		}
	}

	raw, err := json.MarshalIndent(fields, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode condition context: %w", err)
	}

	return fmt.Sprintf(`Decide whether the following event satisfies the condition.

Condition: %s

Event data:
%s

Answer with exactly one word: true or false.`, condition.Description, raw), nil
}

// ParseDecision reads a yes/no verdict from a model reply. Exact "true" and
// "false" win, then negative markers, then positive ones. Anything else is
// false.
func ParseDecision(reply string) bool {
	normalized := strings.ToLower(strings.TrimSpace(reply))
	normalized = strings.Trim(normalized, ".!\"'`")

	switch normalized {
	case "true":
		return true
	case "false":
		return false
	}

	if strings.Contains(normalized, "not match") || strings.Contains(normalized, "does not") {
		return false
	}

	words := strings.FieldsFunc(normalized, func(r rune) bool {
		return !unicode.IsLetter(r) && r != '_'
	})

	positive := false

	for _, word := range words {
		switch word {
		case "no", "false", "not":
			return false
		case "yes", "true", "match", "matches", "matched":
			positive = true
		}
	}

	return positive
}

// ExtractTaskParameters asks the model to turn eventData into task
// parameters following instruction. Replies that hold no JSON object yield
// the fallback parameters so the event is never lost.
func (e *Evaluator) ExtractTaskParameters(ctx context.Context, instruction string, eventData map[string]any) (map[string]any, error) {
	raw, err := json.MarshalIndent(eventData, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode event data: %w", err)
	}

	prompt := fmt.Sprintf(`Extract task parameters from the event below.

Instruction: %s

Event data:
%s

Reply with a single JSON object and nothing else.`, instruction, raw)

	reply, err := e.completer.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("extract task parameters: %w", err)
	}

	if params, ok := parseObject(reply); ok {
		return params, nil
	}

	e.logger.WarnContext(ctx, "Could not parse task parameters from model reply", "reply", reply)

	return FallbackParameters(instruction, eventData, reply), nil
}

// FallbackParameters keeps the raw inputs when no parameters could be extracted.
func FallbackParameters(instruction string, eventData map[string]any, reply string) map[string]any {
	return map[string]any{
		"event_data":   eventData,
		"instruction":  instruction,
		"llm_response": reply,
	}
}

func parseObject(reply string) (map[string]any, bool) {
	trimmed := strings.TrimSpace(reply)

	var params map[string]any
	if err := json.Unmarshal([]byte(trimmed), &params); err == nil && params != nil {
		return params, true
	}

	for _, span := range jsonscan.Objects(trimmed) {
		params = nil
		if err := json.Unmarshal([]byte(span), &params); err == nil && params != nil {
			return params, true
		}
	}

	return nil, false
}
