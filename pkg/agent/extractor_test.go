package agent

import (
	"strings"
	"testing"

	"github.com/agentarea/agentarea/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractToolCalls_StructuredCallsReturnedVerbatim(t *testing.T) {
	t.Parallel()

	structured := []models.ToolCall{{
		ID:       "call_1",
		Type:     "function",
		Function: models.FunctionCall{Name: "search", Arguments: `{"q": "go"}`},
	}}

	calls := ExtractToolCalls(`{"name": "ignored", "arguments": {}}`, structured)

	assert.Equal(t, structured, calls)
}

func TestExtractToolCalls_WholeContent(t *testing.T) {
	t.Parallel()

	content := "{\n  \"name\": \"task_complete\",\n  \"arguments\": {}\n}"

	calls := ExtractToolCalls(content, nil)

	require.Len(t, calls, 1)
	assert.Equal(t, "task_complete", calls[0].Function.Name)
	assert.Equal(t, "{}", calls[0].Function.Arguments)
	assert.Equal(t, "function", calls[0].Type)
	assert.True(t, strings.HasPrefix(calls[0].ID, "call_"))
}

func TestExtractToolCalls_PrefixedContent(t *testing.T) {
	t.Parallel()

	content := `I will complete the task: {"name": "task_complete", "arguments": {"result": "x"}}`

	calls := ExtractToolCalls(content, nil)

	require.Len(t, calls, 1)
	assert.Equal(t, "task_complete", calls[0].Function.Name)

	args, err := ParseArguments(calls[0].Function.Arguments)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"result": "x"}, args)
}

func TestExtractToolCalls_IDIsDeterministic(t *testing.T) {
	t.Parallel()

	content := `{"name": "search", "arguments": {"q": "go"}}`

	first := ExtractToolCalls(content, nil)
	second := ExtractToolCalls(content, nil)

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
}

func TestExtractToolCalls_NothingRecoverable(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		content string
	}{
		{name: "empty", content: ""},
		{name: "whitespace", content: "  \n\t"},
		{name: "plain text", content: "The answer is 42."},
		{name: "object without name", content: `Here: {"result": "x"}`},
		{name: "unquoted keys", content: `Done: {name: "task_complete", arguments: {}}`},
		{name: "unterminated object", content: `{"name": "task_complete", "arguments": {`},
		{name: "empty name", content: `{"name": "", "arguments": {}}`},
		{name: "non string name", content: `{"name": 7, "arguments": {}}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			assert.Empty(t, ExtractToolCalls(tc.content, nil))
		})
	}
}

func TestExtractToolCalls_ArgumentForms(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		content  string
		expected string
	}{
		{name: "missing arguments", content: `{"name": "ping"}`, expected: "{}"},
		{name: "null arguments", content: `{"name": "ping", "arguments": null}`, expected: "{}"},
		{name: "stringified object", content: `{"name": "ping", "arguments": "{\"host\": \"a\"}"}`, expected: `{"host":"a"}`},
		{name: "nested object compacted", content: `{"name": "ping", "arguments": {"opts": {"n": 1}}}`, expected: `{"opts":{"n":1}}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			calls := ExtractToolCalls(tc.content, nil)

			require.Len(t, calls, 1)
			assert.Equal(t, tc.expected, calls[0].Function.Arguments)
		})
	}
}

func TestParseArguments(t *testing.T) {
	t.Parallel()

	args, err := ParseArguments("")
	require.NoError(t, err)
	assert.Empty(t, args)

	args, err = ParseArguments(`{"a": 1}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": float64(1)}, args)

	_, err = ParseArguments(`{a: 1}`)
	assert.Error(t, err)
}
