// Package triggers runs one firing of a cron or webhook trigger: evaluate its
// conditions, start an agent task, and record the outcome.
package triggers

import (
	"errors"
	"fmt"
	"time"

	"github.com/agentarea/agentarea/pkg/durable"
	"github.com/agentarea/agentarea/pkg/errkind"
	"github.com/agentarea/agentarea/pkg/models"
	"github.com/google/uuid"
)

const (
	WorkflowName = "TriggerExecutionWorkflow"
	SignalCancel = "cancel_execution"
	QueryStatus  = "get_execution_status"
)

// Sources of a trigger firing.
const (
	SourceCron    = "cron"
	SourceWebhook = "webhook"
	SourceManual  = "manual"
)

// WorkflowID is the durable workflow id of one firing of a trigger.
func WorkflowID(triggerID, source string, at time.Time) string {
	return fmt.Sprintf("trigger-%s-%s-%d", triggerID, source, at.UnixNano())
}

type Status string

const (
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
	StatusCancelled Status = "cancelled"
)

// ExecutionData describes what fired the trigger.
type ExecutionData struct {
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	// TimeoutMinutes overrides the ExecuteTrigger start-to-close timeout.
	TimeoutMinutes int            `json:"timeout_minutes,omitempty"`
	EventData      map[string]any `json:"event_data,omitempty"`
}

type TriggerExecutionInput struct {
	TriggerID     string        `json:"trigger_id"`
	ExecutionData ExecutionData `json:"execution_data"`
}

type TriggerExecutionResult struct {
	TriggerID       string `json:"trigger_id"`
	Status          Status `json:"status"`
	ConditionsMet   bool   `json:"conditions_met"`
	TaskID          string `json:"task_id,omitempty"`
	WorkflowID      string `json:"workflow_id,omitempty"`
	RunID           string `json:"run_id,omitempty"`
	ExecutionTimeMs int64  `json:"execution_time_ms"`
}

// Options holds the activity policies of the trigger workflow.
type Options struct {
	Evaluate durable.ActivityOptions
	Execute  durable.ActivityOptions
	Record   durable.ActivityOptions
}

func DefaultOptions() Options {
	return Options{
		Evaluate: durable.ActivityOptions{
			StartToCloseTimeout: 3 * time.Minute,
			HeartbeatTimeout:    30 * time.Second,
			RetryPolicy: durable.RetryPolicy{
				InitialInterval:        time.Second,
				BackoffCoefficient:     2,
				MaximumInterval:        2 * time.Minute,
				MaximumAttempts:        5,
				NonRetryableErrorTypes: errkind.NonRetryable,
			},
		},
		Execute: durable.ActivityOptions{
			StartToCloseTimeout: 12 * time.Minute,
			HeartbeatTimeout:    2 * time.Minute,
			RetryPolicy: durable.RetryPolicy{
				InitialInterval:        2 * time.Second,
				BackoffCoefficient:     2,
				MaximumInterval:        8 * time.Minute,
				MaximumAttempts:        3,
				NonRetryableErrorTypes: errkind.NonRetryableWith(errkind.RateLimited, errkind.CircuitBreakerOpen),
			},
		},
		Record: durable.ActivityOptions{
			StartToCloseTimeout: time.Minute,
			RetryPolicy: durable.RetryPolicy{
				InitialInterval:        time.Second,
				BackoffCoefficient:     2,
				MaximumInterval:        30 * time.Second,
				MaximumAttempts:        5,
				NonRetryableErrorTypes: []string{errkind.HardDatabase},
			},
		},
	}
}

type Workflow struct {
	opts Options
}

func NewWorkflow(opts Options) *Workflow {
	return &Workflow{opts: opts}
}

type State string

const (
	StateEvaluating State = "evaluating"
	StateExecuting  State = "executing"
	StateSkipped    State = "skipped"
	StateSuccess    State = "success"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
)

// ExecutionStatus is the answer to the get_execution_status query.
type ExecutionStatus struct {
	IsCancelled bool  `json:"is_cancelled"`
	DurationMs  int64 `json:"duration_ms"`
	IsRunning   bool  `json:"is_running"`
	State       State `json:"state"`
}

type execution struct {
	state     State
	cancelled bool
	running   bool
}

// Run performs one firing. Conditions that are not met end the run as
// skipped without starting a task. A failed execution is recorded before the
// error is returned, so the run fails while the failure stays on record.
func (w *Workflow) Run(ctx durable.Context, input TriggerExecutionInput) (TriggerExecutionResult, error) {
	if input.TriggerID == "" {
		return TriggerExecutionResult{}, errkind.NewValidation("trigger id is required")
	}

	exec := &execution{state: StateEvaluating, running: true}
	defer func() { exec.running = false }()

	ctx.SetQueryHandler(QueryStatus, func() (any, error) {
		return ExecutionStatus{
			IsCancelled: exec.cancelled,
			DurationMs:  ctx.Now().Sub(ctx.Info().StartedAt).Milliseconds(),
			IsRunning:   exec.running,
			State:       exec.state,
		}, nil
	})

	logger := ctx.Logger().With("trigger_id", input.TriggerID, "source", input.ExecutionData.Source)
	result := TriggerExecutionResult{TriggerID: input.TriggerID}

	if w.cancelled(ctx, exec) {
		logger.Info("Trigger execution cancelled before start")
		result.Status = StatusCancelled

		return result, nil
	}

	var conditions ConditionsResult

	err := ctx.ExecuteActivity(ActivityEvaluateTriggerConditions, w.opts.Evaluate, EvaluateConditionsInput{
		TriggerID: input.TriggerID,
		EventData: input.ExecutionData.EventData,
	}, &conditions)
	if err != nil {
		exec.state = StateFailed
		logger.Error("Trigger condition evaluation failed", "error", err)

		return TriggerExecutionResult{}, err
	}

	result.ConditionsMet = conditions.ConditionsMet

	if !conditions.ConditionsMet {
		exec.state = StateSkipped
		logger.Info("Trigger conditions not met, skipping")
		w.record(ctx, input, RecordInput{Status: models.ExecutionStatusSkipped})
		result.Status = StatusSkipped

		return result, nil
	}

	if w.cancelled(ctx, exec) {
		logger.Info("Trigger execution cancelled after condition evaluation")
		result.Status = StatusCancelled

		return result, nil
	}

	exec.state = StateExecuting

	opts := w.opts.Execute
	if minutes := input.ExecutionData.TimeoutMinutes; minutes > 0 {
		opts.StartToCloseTimeout = time.Duration(minutes) * time.Minute
	}

	var executed ExecuteTriggerResult

	err = ctx.ExecuteActivity(ActivityExecuteTrigger, opts, ExecuteTriggerInput(input), &executed)
	if err != nil {
		exec.state = StateFailed

		var actErr *durable.ActivityError
		if !errors.As(err, &actErr) {
			return TriggerExecutionResult{}, err
		}

		status := models.ExecutionStatusFailed
		if durable.HasErrorType(err, durable.ErrTypeTimeout, durable.ErrTypeHeartbeatTimeout) {
			status = models.ExecutionStatusTimeout
		}

		logger.Error("Trigger execution failed", "error", err, "attempts", actErr.Attempts)
		w.record(ctx, input, RecordInput{
			Status:          status,
			ExecutionTimeMs: ctx.Now().Sub(ctx.Info().StartedAt).Milliseconds(),
			ErrorMessage:    err.Error(),
		})

		return TriggerExecutionResult{}, err
	}

	exec.state = StateSuccess
	w.record(ctx, input, RecordInput{
		Status:          models.ExecutionStatusSuccess,
		TaskID:          executed.TaskID,
		WorkflowID:      executed.WorkflowID,
		RunID:           executed.RunID,
		ExecutionTimeMs: executed.ExecutionTimeMs,
	})

	logger.Info("Trigger executed", "task_id", executed.TaskID, "workflow_id", executed.WorkflowID)

	result.Status = StatusSuccess
	result.TaskID = executed.TaskID
	result.WorkflowID = executed.WorkflowID
	result.RunID = executed.RunID
	result.ExecutionTimeMs = executed.ExecutionTimeMs

	return result, nil
}

func (w *Workflow) cancelled(ctx durable.Context, exec *execution) bool {
	if ctx.ReceiveSignal(SignalCancel) {
		exec.cancelled = true
	}

	if exec.cancelled {
		exec.state = StateCancelled
	}

	return exec.cancelled
}

// record stores the execution record. A failure is logged and swallowed so
// it never masks the outcome of the firing itself.
func (w *Workflow) record(ctx durable.Context, input TriggerExecutionInput, rec RecordInput) {
	info := ctx.Info()

	rec.RecordID = RecordID(info.WorkflowID, info.RunID)
	rec.TriggerID = input.TriggerID
	rec.ExecutedAt = ctx.Now()
	rec.TriggerData = map[string]any{
		"source":     input.ExecutionData.Source,
		"timestamp":  input.ExecutionData.Timestamp,
		"event_data": input.ExecutionData.EventData,
	}

	if err := ctx.ExecuteActivity(ActivityRecordTriggerExecution, w.opts.Record, rec, nil); err != nil {
		ctx.Logger().Error("Failed to record trigger execution",
			"trigger_id", input.TriggerID,
			"status", rec.Status,
			"error", err,
		)
	}
}

// RecordID derives the execution record id from the workflow run, so
// retried record activities write the same record.
func RecordID(workflowID, runID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(workflowID+"/"+runID+"/record")).String()
}
