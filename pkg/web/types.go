package web

import (
	"encoding/json"
	"time"

	"github.com/agentarea/agentarea/pkg/durable"
)

// WebhookAccepted is returned once a webhook has started a trigger execution.
type WebhookAccepted struct {
	Status         string `json:"status"`
	TriggerID      string `json:"trigger_id"`
	WorkflowID     string `json:"workflow_id"`
	RunID          string `json:"run_id"`
	AlreadyRunning bool   `json:"already_running,omitempty"`
}

// CancelRequest is the optional body of a cancel call.
type CancelRequest struct {
	Reason string `json:"reason,omitempty" validate:"max=500"`
}

type CancelResponse struct {
	WorkflowID string `json:"workflow_id"`
	Status     string `json:"status"`
	Reason     string `json:"reason,omitempty"`
}

// WorkflowStatusResponse describes a workflow run. Execution holds the
// answer of the run's status query and is only present while it runs.
type WorkflowStatusResponse struct {
	WorkflowID   string            `json:"workflow_id"`
	RunID        string            `json:"run_id"`
	WorkflowName string            `json:"workflow_name"`
	Status       durable.RunStatus `json:"status"`
	StartedAt    time.Time         `json:"started_at"`
	ClosedAt     *time.Time        `json:"closed_at,omitempty"`
	Result       json.RawMessage   `json:"result,omitempty"`
	Failure      *durable.Failure  `json:"failure,omitempty"`
	Execution    json.RawMessage   `json:"execution,omitempty"`
}

func newWorkflowStatusResponse(info *durable.RunInfo) WorkflowStatusResponse {
	return WorkflowStatusResponse{
		WorkflowID:   info.WorkflowID,
		RunID:        info.RunID,
		WorkflowName: info.WorkflowName,
		Status:       info.Status,
		StartedAt:    info.StartedAt,
		ClosedAt:     info.ClosedAt,
		Result:       info.Result,
		Failure:      info.Failure,
	}
}
