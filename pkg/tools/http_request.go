package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/agentarea/agentarea/pkg/durable"
	"github.com/agentarea/agentarea/pkg/errkind"
	"github.com/go-resty/resty/v2"
)

const (
	HTTPRequestName = "http_request"

	defaultHTTPTimeout = 30 * time.Second
	maxResponseBody    = 64 << 10
)

// HTTPRequest performs a single HTTP call on behalf of the model.
type HTTPRequest struct {
	client *resty.Client
}

func NewHTTPRequest(timeout time.Duration) *HTTPRequest {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}

	return &HTTPRequest{
		client: resty.New().SetTimeout(timeout),
	}
}

func (*HTTPRequest) Name() string { return HTTPRequestName }

func (*HTTPRequest) Description() string {
	return "Send an HTTP request and return the status code, headers and body of the response."
}

func (*HTTPRequest) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":    "string",
				"pattern": "^https?://",
			},
			"method": map[string]any{
				"type": "string",
				"enum": []any{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD"},
			},
			"headers": map[string]any{
				"type":                 "object",
				"additionalProperties": map[string]any{"type": "string"},
			},
			"body": map[string]any{
				"description": "Request body. Objects and arrays are sent as JSON.",
			},
		},
		"required":             []any{"url"},
		"additionalProperties": false,
	}
}

func (h *HTTPRequest) Execute(ctx context.Context, args map[string]any) (Result, error) {
	url, _ := args["url"].(string)

	method, _ := args["method"].(string)
	if method == "" {
		method = http.MethodGet
	}

	req := h.client.R().SetContext(ctx)

	if headers, ok := args["headers"].(map[string]any); ok {
		for key, value := range headers {
			req.SetHeader(key, fmt.Sprint(value))
		}
	}

	if body, ok := args["body"]; ok && body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, url)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}

		return Result{}, durable.NewApplicationError(errkind.ToolExecution, fmt.Sprintf("%s %s", method, url), err)
	}

	raw := resp.Body()
	truncated := len(raw) > maxResponseBody

	if truncated {
		raw = raw[:maxResponseBody]
	}

	var body any
	if err := json.Unmarshal(raw, &body); err != nil {
		body = string(raw)
	}

	headers := make(map[string]string, len(resp.Header()))
	for key := range resp.Header() {
		headers[key] = strings.Join(resp.Header().Values(key), ", ")
	}

	output := map[string]any{
		"status_code": resp.StatusCode(),
		"headers":     headers,
		"body":        body,
	}

	if truncated {
		output["truncated"] = true
	}

	result := Result{Success: resp.StatusCode() < http.StatusBadRequest, Result: output}
	if !result.Success {
		result.Error = fmt.Sprintf("%s %s returned %d", method, url, resp.StatusCode())
	}

	return result, nil
}
