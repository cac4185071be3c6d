// Package template renders Go text/template expressions embedded in trigger
// task parameters against the firing's event data.
package template

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/template"
)

// NeedsTemplating reports whether input contains a template action.
func NeedsTemplating(input string) bool {
	return strings.Contains(input, "{{")
}

// Render executes templateStr against data. Output that reads as a JSON
// object or array, a number or a boolean is returned as that value.
func Render(templateStr string, data any) (any, error) {
	tmpl, err := template.
		New("parameter").
		Option("missingkey=error").
		Funcs(template.FuncMap{
			"json": func(v any) (string, error) {
				raw, err := json.Marshal(v)

				return string(raw), err
			},
			"default": func(fallback, v any) any {
				if v == nil || v == "" {
					return fallback
				}

				return v
			},
		}).Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	result := strings.TrimSpace(buf.String())

	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any
		if err := json.Unmarshal([]byte(result), &jsonResult); err != nil {
			return nil, fmt.Errorf("failed to parse json '%s': %w", templateStr, err)
		}

		return jsonResult, nil
	}

	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}

// RenderParameters returns a copy of params with every templated string
// rendered against data, descending into nested maps and lists. Values that
// fail to render keep their raw text and the failures are joined into the
// returned error.
func RenderParameters(params map[string]any, data any) (map[string]any, error) {
	var errs []error

	rendered := renderMap(params, data, &errs)

	return rendered, errors.Join(errs...)
}

func renderMap(values map[string]any, data any, errs *[]error) map[string]any {
	if values == nil {
		return nil
	}

	out := make(map[string]any, len(values))
	for key, value := range values {
		out[key] = renderValue(value, data, errs)
	}

	return out
}

func renderValue(value any, data any, errs *[]error) any {
	switch v := value.(type) {
	case string:
		if !NeedsTemplating(v) {
			return v
		}

		result, err := Render(v, data)
		if err != nil {
			*errs = append(*errs, err)

			return v
		}

		return result
	case map[string]any:
		return renderMap(v, data, errs)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = renderValue(item, data, errs)
		}

		return out
	default:
		return value
	}
}
