// Package web serves webhook ingress and workflow status endpoints.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/agentarea/agentarea/pkg/agent"
	"github.com/agentarea/agentarea/pkg/durable"
	"github.com/agentarea/agentarea/pkg/metrics"
	"github.com/agentarea/agentarea/pkg/models"
	"github.com/agentarea/agentarea/pkg/persistence"
	"github.com/agentarea/agentarea/pkg/triggers"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/xeipuuv/gojsonschema"
)

// WorkflowEngine is the part of durable.Engine the handlers use.
type WorkflowEngine interface {
	StartWorkflow(ctx context.Context, opts durable.StartOptions, input any) (*durable.Run, error)
	SignalWorkflow(ctx context.Context, workflowID, signalName string) error
	QueryWorkflow(ctx context.Context, workflowID, queryName string, result any) error
	Describe(ctx context.Context, workflowID string) (*durable.RunInfo, error)
}

type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type APIHandlers struct {
	triggers  persistence.TriggerRepository
	engine    WorkflowEngine
	health    HealthChecker
	validator *validator.Validate
	clock     func() time.Time
	logger    *slog.Logger
}

func NewAPIHandlers(
	triggers persistence.TriggerRepository,
	engine WorkflowEngine,
	health HealthChecker,
	validator *validator.Validate,
	logger *slog.Logger,
) *APIHandlers {
	return &APIHandlers{
		triggers:  triggers,
		engine:    engine,
		health:    health,
		validator: validator,
		clock:     time.Now,
		logger:    logger.With("module", "web"),
	}
}

// Webhook starts a trigger execution for an inbound webhook call.
func (h *APIHandlers) Webhook(c fiber.Ctx) error {
	err := h.webhook(c)

	metrics.WebhooksReceived.WithLabelValues(strconv.Itoa(c.Response().StatusCode())).Inc()

	return err
}

func (h *APIHandlers) webhook(c fiber.Ctx) error {
	webhookID := c.Params("webhook_id")
	if webhookID == "" {
		return badRequest(c, "Webhook ID is required")
	}

	trigger, err := h.triggers.GetByWebhookID(c.Context(), webhookID)
	if err != nil {
		if persistence.IsTriggerNotFound(err) {
			return notFound(c, "Webhook not found")
		}

		return internalError(c, err)
	}

	if trigger.TriggerType != models.TriggerTypeWebhook || trigger.Webhook == nil {
		return notFound(c, "Webhook not found")
	}

	if !trigger.Webhook.AllowsMethod(c.Method()) {
		allowed := trigger.Webhook.AllowedMethods
		if len(allowed) == 0 {
			allowed = []string{http.MethodPost}
		}

		return methodNotAllowed(c, allowed)
	}

	if !trigger.IsActive {
		return conflict(c, "Trigger "+trigger.ID+" is disabled")
	}

	body, err := decodeBody(c.Body())
	if err != nil {
		return badRequest(c, "Invalid JSON in request body")
	}

	if len(trigger.Webhook.ValidationRules) > 0 {
		if err := validatePayload(trigger.Webhook.ValidationRules, body); err != nil {
			h.logger.WarnContext(c.Context(), "Webhook payload rejected", "trigger_id", trigger.ID, "error", err)

			return badRequest(c, err.Error())
		}
	}

	now := h.clock().UTC()
	input := triggers.TriggerExecutionInput{
		TriggerID: trigger.ID,
		ExecutionData: triggers.ExecutionData{
			Timestamp:      now,
			Source:         triggers.SourceWebhook,
			TimeoutMinutes: timeoutMinutes(trigger.Webhook.Config),
			EventData:      h.eventData(c, trigger.Webhook, body, now),
		},
	}

	run, err := h.engine.StartWorkflow(c.Context(), durable.StartOptions{
		ID:       triggers.WorkflowID(trigger.ID, triggers.SourceWebhook, now),
		Workflow: triggers.WorkflowName,
	}, input)
	if err != nil {
		h.logger.ErrorContext(c.Context(), "Failed to start trigger workflow", "trigger_id", trigger.ID, "error", err)

		return internalError(c, err)
	}

	h.logger.InfoContext(c.Context(), "Webhook accepted",
		"trigger_id", trigger.ID,
		"webhook_id", webhookID,
		"workflow_id", run.WorkflowID,
		"remote_addr", c.IP())

	return c.Status(fiber.StatusAccepted).JSON(WebhookAccepted{
		Status:         "accepted",
		TriggerID:      trigger.ID,
		WorkflowID:     run.WorkflowID,
		RunID:          run.RunID,
		AlreadyRunning: run.AlreadyRunning,
	})
}

// decodeBody parses a JSON body. An empty body decodes to an empty object.
func decodeBody(raw []byte) (any, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return map[string]any{}, nil
	}

	var body any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, err
	}

	return body, nil
}

// validatePayload checks body against the JSON schema held in rules.
func validatePayload(rules map[string]any, body any) error {
	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(rules), gojsonschema.NewGoLoader(body))
	if err != nil {
		return errors.New("invalid validation rules: " + err.Error())
	}

	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			messages = append(messages, desc.String())
		}

		return errors.New("payload validation failed: " + strings.Join(messages, "; "))
	}

	return nil
}

func (h *APIHandlers) eventData(c fiber.Ctx, webhook *models.WebhookConfig, body any, receivedAt time.Time) map[string]any {
	headers := make(map[string]any)

	for name, values := range c.GetReqHeaders() {
		if len(values) > 0 {
			headers[name] = strings.Join(values, ", ")
		}
	}

	query := make(map[string]any)
	for name, value := range c.Queries() {
		query[name] = value
	}

	webhookType := webhook.WebhookType
	if webhookType == "" {
		webhookType = models.WebhookTypeGeneric
	}

	return map[string]any{
		"body": body,
		"webhook": map[string]any{
			"webhook_id":   webhook.WebhookID,
			"webhook_type": string(webhookType),
			"method":       c.Method(),
			"path":         c.Path(),
			"headers":      headers,
			"query_params": query,
			"remote_addr":  c.IP(),
			"received_at":  receivedAt.Format(time.RFC3339),
		},
	}
}

// timeoutMinutes reads an optional "timeout_minutes" from the webhook config.
func timeoutMinutes(config map[string]any) int {
	switch v := config["timeout_minutes"].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

// GetWorkflow describes a workflow run. A running workflow also reports the
// answer of its status query.
func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	workflowID := c.Params("workflow_id")
	if workflowID == "" {
		return badRequest(c, "Workflow ID is required")
	}

	info, err := h.engine.Describe(c.Context(), workflowID)
	if err != nil {
		return handleEngineError(c, err)
	}

	response := newWorkflowStatusResponse(info)

	if info.Status == durable.RunStatusRunning {
		var execution json.RawMessage

		err := h.engine.QueryWorkflow(c.Context(), workflowID, agent.QueryStatus, &execution)
		if err != nil {
			h.logger.DebugContext(c.Context(), "Status query unavailable", "workflow_id", workflowID, "error", err)
		} else {
			response.Execution = execution
		}
	}

	return c.JSON(response)
}

// CancelWorkflow asks a running agent or trigger workflow to stop.
func (h *APIHandlers) CancelWorkflow(c fiber.Ctx) error {
	workflowID := c.Params("workflow_id")
	if workflowID == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req CancelRequest

	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}

		if err := h.validator.Struct(req); err != nil {
			return badRequest(c, err.Error())
		}
	}

	if err := h.engine.SignalWorkflow(c.Context(), workflowID, agent.SignalCancel); err != nil {
		return handleEngineError(c, err)
	}

	h.logger.InfoContext(c.Context(), "Workflow cancellation requested", "workflow_id", workflowID, "reason", req.Reason)

	return c.Status(fiber.StatusAccepted).JSON(CancelResponse{
		WorkflowID: workflowID,
		Status:     "cancel_requested",
		Reason:     req.Reason,
	})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	message := "agentarea worker is healthy"
	httpStatus := http.StatusOK
	persistenceCheck := "ok"

	if err := h.health.HealthCheck(c.Context()); err != nil {
		status = "unhealthy"
		message = "agentarea worker is unhealthy"
		httpStatus = http.StatusServiceUnavailable
		persistenceCheck = err.Error()
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"persistence": persistenceCheck,
		},
		"timestamp": h.clock().UTC(),
	})
}
