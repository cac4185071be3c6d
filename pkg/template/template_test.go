package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	t.Parallel()

	data := map[string]any{
		"event": map[string]any{
			"body": map[string]any{
				"action":   "opened",
				"assignee": "",
				"issue":    map[string]any{"number": 42, "title": "Crash on start", "draft": false},
				"labels":   []any{"bug", "p1"},
			},
		},
	}

	tests := []struct {
		name     string
		template string
		want     any
	}{
		{name: "string field", template: "{{ .event.body.action }}", want: "opened"},
		{name: "number becomes float", template: "{{ .event.body.issue.number }}", want: 42.0},
		{name: "boolean", template: "{{ .event.body.issue.draft }}", want: false},
		{name: "interpolated text", template: "Triage #{{ .event.body.issue.number }}: {{ .event.body.issue.title }}", want: "Triage #42: Crash on start"},
		{name: "json helper", template: "{{ json .event.body.labels }}", want: []any{"bug", "p1"}},
		{name: "object literal", template: `{"issue": {{ .event.body.issue.number }}, "kind": "{{ .event.body.action }}"}`, want: map[string]any{"issue": 42.0, "kind": "opened"}},
		{name: "default helper", template: `{{ default "none" .event.body.assignee }}`, want: "none"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := Render(tt.template, data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRender_Errors(t *testing.T) {
	t.Parallel()

	_, err := Render("{{ .event", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse template")

	_, err = Render("{{ .missing.field }}", map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to execute template")

	_, err = Render(`{ "broken": {{ .n }} }`, map[string]any{"n": "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse json")
}

func TestRenderParameters(t *testing.T) {
	t.Parallel()

	data := map[string]any{"event": map[string]any{"repo": "agentarea", "count": 3}}

	params := map[string]any{
		"query":  "Summarize activity in {{ .event.repo }}",
		"static": "no templates here",
		"limit":  10,
		"nested": map[string]any{"items": []any{"{{ .event.count }}", "plain"}},
		"broken": "{{ .event.missing.deeper }}",
	}

	got, err := RenderParameters(params, data)

	require.Error(t, err)
	assert.Equal(t, "Summarize activity in agentarea", got["query"])
	assert.Equal(t, "no templates here", got["static"])
	assert.Equal(t, 10, got["limit"])
	assert.Equal(t, map[string]any{"items": []any{3.0, "plain"}}, got["nested"])
	assert.Equal(t, "{{ .event.missing.deeper }}", got["broken"])
	assert.Equal(t, "Summarize activity in {{ .event.repo }}", params["query"])
}

func TestRenderParameters_Nil(t *testing.T) {
	t.Parallel()

	got, err := RenderParameters(nil, nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}
