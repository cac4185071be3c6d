package agent

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/agentarea/agentarea/pkg/jsonscan"
	"github.com/agentarea/agentarea/pkg/models"
	"github.com/google/uuid"
)

var toolCallNamespace = uuid.MustParse("6f1d7c2e-3b1a-4c55-9a0e-5d2f8e7b9c41")

// ExtractToolCalls recovers tool invocations from an LLM message. Structured
// tool calls win. Otherwise the whole content, then the first balanced JSON
// object mentioning "name", is parsed as {"name": ..., "arguments": {...}}.
// An empty result means the model answered without acting.
func ExtractToolCalls(content string, structured []models.ToolCall) []models.ToolCall {
	if len(structured) > 0 {
		return append([]models.ToolCall(nil), structured...)
	}

	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil
	}

	if call, ok := parseToolCall(trimmed); ok {
		return []models.ToolCall{call}
	}

	for _, span := range jsonscan.Objects(trimmed) {
		if !strings.Contains(span, `"name"`) {
			continue
		}

		if call, ok := parseToolCall(span); ok {
			return []models.ToolCall{call}
		}

		break
	}

	return nil
}

type inlineToolCall struct {
	Name      *string         `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func parseToolCall(text string) (models.ToolCall, bool) {
	var inline inlineToolCall
	if err := json.Unmarshal([]byte(text), &inline); err != nil {
		return models.ToolCall{}, false
	}

	if inline.Name == nil || strings.TrimSpace(*inline.Name) == "" {
		return models.ToolCall{}, false
	}

	args, ok := normalizeArguments(inline.Arguments)
	if !ok {
		return models.ToolCall{}, false
	}

	return models.ToolCall{
		ID:   "call_" + strings.ReplaceAll(uuid.NewSHA1(toolCallNamespace, []byte(text)).String(), "-", "")[:24],
		Type: "function",
		Function: models.FunctionCall{
			Name:      *inline.Name,
			Arguments: args,
		},
	}, true
}

// normalizeArguments accepts a JSON object, a string holding a JSON object,
// or nothing at all, and returns compact object text.
func normalizeArguments(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "{}", true
	}

	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return "", false
		}

		raw = bytes.TrimSpace([]byte(inner))
	}

	if len(raw) == 0 || raw[0] != '{' {
		return "", false
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return "", false
	}

	return buf.String(), true
}

// ParseArguments decodes tool call arguments. Empty arguments decode to an empty map.
func ParseArguments(arguments string) (map[string]any, error) {
	args := map[string]any{}
	if strings.TrimSpace(arguments) == "" {
		return args, nil
	}

	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return nil, err
	}

	return args, nil
}
