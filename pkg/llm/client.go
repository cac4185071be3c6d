// Package llm is a client for OpenAI-compatible chat completion APIs.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/agentarea/agentarea/pkg/durable"
	"github.com/agentarea/agentarea/pkg/errkind"
	"github.com/agentarea/agentarea/pkg/metrics"
	"github.com/agentarea/agentarea/pkg/models"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

var ErrNoChoices = errors.New("model returned no choices")

type Config struct {
	BaseURL      string
	APIKey       string
	DefaultModel string
	Timeout      time.Duration
	// RequestsPerSecond limits outgoing calls. Zero disables limiting.
	RequestsPerSecond float64
	Burst             int
}

type Tool struct {
	Type     string   `json:"type"`
	Function Function `json:"function"`
}

type Function struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type ChatRequest struct {
	Model       string                       `json:"model"`
	Messages    []models.ConversationMessage `json:"messages"`
	Tools       []Tool                       `json:"tools,omitempty"`
	Temperature *float64                     `json:"temperature,omitempty"`
	MaxTokens   *int                         `json:"max_tokens,omitempty"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
	// Cost is set by providers that report the charged amount themselves.
	Cost *float64 `json:"cost,omitempty"`
}

type ChatResponse struct {
	Model        string
	Content      string
	ToolCalls    []models.ToolCall
	FinishReason string
	Usage        Usage
	Cost         float64
}

type chatCompletion struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role      string            `json:"role"`
			Content   *string           `json:"content"`
			ToolCalls []models.ToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

// Client calls the chat completions endpoint. It never retries on its own,
// failed calls are classified and left to the caller's retry policy.
type Client struct {
	http         *resty.Client
	defaultModel string
	limiter      *rate.Limiter
	pricing      *Pricing
	logger       *slog.Logger
}

func NewClient(cfg Config, pricing *Pricing, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")

	if cfg.APIKey != "" {
		httpClient.SetAuthToken(cfg.APIKey)
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}

		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	if pricing == nil {
		pricing = DefaultPricing()
	}

	return &Client{
		http:         httpClient,
		defaultModel: cfg.DefaultModel,
		limiter:      limiter,
		pricing:      pricing,
		logger:       logger.With("module", "llm"),
	}
}

// Chat sends one chat completion request. An empty model selects the
// client's default model.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if req.Model == "" {
		req.Model = c.defaultModel
	}

	if req.Model == "" {
		return nil, errkind.NewValidation("no model given and no default model configured")
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, durable.NewApplicationError(errkind.RateLimited, "wait for llm rate limiter", err)
		}
	}

	var completion chatCompletion

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		Post("/chat/completions")
	if err != nil {
		return nil, durable.NewApplicationError(errkind.LLMProvider, "call chat completions", err)
	}

	if resp.StatusCode() != http.StatusOK {
		return nil, statusError(resp.StatusCode(), resp.Body())
	}

	if err := json.Unmarshal(resp.Body(), &completion); err != nil {
		return nil, durable.NewApplicationError(errkind.LLMProvider, "decode chat completion", err)
	}

	if len(completion.Choices) == 0 {
		return nil, durable.NewApplicationError(errkind.LLMProvider, "", ErrNoChoices)
	}

	choice := completion.Choices[0]

	model := completion.Model
	if model == "" {
		model = req.Model
	}

	out := &ChatResponse{
		Model:        model,
		ToolCalls:    choice.Message.ToolCalls,
		FinishReason: choice.FinishReason,
		Usage:        completion.Usage,
	}

	if choice.Message.Content != nil {
		out.Content = *choice.Message.Content
	}

	if completion.Usage.Cost != nil {
		out.Cost = *completion.Usage.Cost
	} else {
		out.Cost = c.pricing.Cost(req.Model, completion.Usage)
	}

	metrics.LLMCostUSD.WithLabelValues(req.Model).Add(out.Cost)
	metrics.LLMTokens.WithLabelValues(req.Model, "prompt").Add(float64(completion.Usage.PromptTokens))
	metrics.LLMTokens.WithLabelValues(req.Model, "completion").Add(float64(completion.Usage.CompletionTokens))

	c.logger.DebugContext(ctx, "Chat completion finished",
		"model", model,
		"tool_calls", len(out.ToolCalls),
		"prompt_tokens", completion.Usage.PromptTokens,
		"completion_tokens", completion.Usage.CompletionTokens,
		"cost", out.Cost,
	)

	return out, nil
}

// Complete answers a single user prompt with the default model.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.Chat(ctx, ChatRequest{
		Messages: []models.ConversationMessage{{Role: models.RoleUser, Content: prompt}},
	})
	if err != nil {
		return "", err
	}

	return resp.Content, nil
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// statusError classifies a non-200 response. Client errors other than rate
// limiting are final, the rest may succeed on retry.
func statusError(status int, body []byte) error {
	message := strings.TrimSpace(string(body))

	var parsed apiError
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		message = parsed.Error.Message
	}

	message = fmt.Sprintf("llm provider returned %d: %s", status, message)

	switch {
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return errkind.NewValidation("%s", message)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return errkind.NewAuth(message, nil)
	case status == http.StatusNotFound:
		return durable.NewNonRetryableError(errkind.NotFound, message, nil)
	case status == http.StatusTooManyRequests:
		return durable.NewApplicationError(errkind.RateLimited, message, nil)
	default:
		return durable.NewApplicationError(errkind.LLMProvider, message, nil)
	}
}
