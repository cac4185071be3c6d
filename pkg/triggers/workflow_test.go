package triggers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/agentarea/agentarea/pkg/durable"
	"github.com/agentarea/agentarea/pkg/errkind"
	"github.com/agentarea/agentarea/pkg/log"
	"github.com/agentarea/agentarea/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedActivities struct {
	mu        sync.Mutex
	met       bool
	evalErr   error
	execErr   error
	recordErr error
	started   chan struct{}
	block     chan struct{}

	evalCalls  int
	execInputs []ExecuteTriggerInput
	records    []RecordInput
}

func (s *scriptedActivities) EvaluateTriggerConditions(context.Context, EvaluateConditionsInput) (ConditionsResult, error) {
	s.mu.Lock()
	s.evalCalls++
	started, block := s.started, s.block
	s.mu.Unlock()

	if started != nil {
		close(started)
	}

	if block != nil {
		<-block
	}

	if s.evalErr != nil {
		return ConditionsResult{}, s.evalErr
	}

	return ConditionsResult{ConditionsMet: s.met}, nil
}

func (s *scriptedActivities) ExecuteTrigger(_ context.Context, input ExecuteTriggerInput) (ExecuteTriggerResult, error) {
	s.mu.Lock()
	s.execInputs = append(s.execInputs, input)
	s.mu.Unlock()

	if s.execErr != nil {
		return ExecuteTriggerResult{}, s.execErr
	}

	return ExecuteTriggerResult{
		Status:          models.TaskStatusRunning,
		TaskID:          "task-1",
		WorkflowID:      "agent-task-task-1",
		RunID:           "run-1",
		ExecutionTimeMs: 12,
	}, nil
}

func (s *scriptedActivities) RecordTriggerExecution(_ context.Context, input RecordInput) (models.TriggerExecutionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.recordErr != nil {
		return models.TriggerExecutionRecord{}, s.recordErr
	}

	s.records = append(s.records, input)

	return models.TriggerExecutionRecord{ID: input.RecordID, TriggerID: input.TriggerID, Status: input.Status}, nil
}

func (s *scriptedActivities) snapshot() (int, int, []RecordInput) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.evalCalls, len(s.execInputs), append([]RecordInput(nil), s.records...)
}

func testOptions() Options {
	opts := DefaultOptions()

	for _, o := range []*durable.ActivityOptions{&opts.Evaluate, &opts.Execute, &opts.Record} {
		o.RetryPolicy.InitialInterval = time.Millisecond
		o.RetryPolicy.MaximumInterval = time.Millisecond
		o.HeartbeatTimeout = 0
	}

	return opts
}

func startEngine(t *testing.T, acts Activities) *durable.Engine {
	t.Helper()

	engine := durable.NewEngine(durable.NewMemoryStore(), log.Discard())
	Register(engine, NewWorkflow(testOptions()), acts)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = engine.Shutdown(ctx)
	})

	return engine
}

func input(triggerID string) TriggerExecutionInput {
	return TriggerExecutionInput{
		TriggerID: triggerID,
		ExecutionData: ExecutionData{
			Timestamp: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
			Source:    SourceWebhook,
			EventData: map[string]any{"action": "opened"},
		},
	}
}

func runTrigger(t *testing.T, acts Activities, in TriggerExecutionInput) (TriggerExecutionResult, error) {
	t.Helper()

	engine := startEngine(t, acts)
	workflowID := WorkflowID(in.TriggerID, in.ExecutionData.Source, in.ExecutionData.Timestamp)

	_, err := engine.StartWorkflow(context.Background(), durable.StartOptions{ID: workflowID, Workflow: WorkflowName}, in)
	require.NoError(t, err)

	return awaitResult(t, engine, workflowID)
}

func awaitResult(t *testing.T, engine *durable.Engine, workflowID string) (TriggerExecutionResult, error) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var result TriggerExecutionResult
	err := engine.GetResult(ctx, workflowID, &result)

	return result, err
}

func TestWorkflow_Success(t *testing.T) {
	t.Parallel()

	acts := &scriptedActivities{met: true}

	result, err := runTrigger(t, acts, input("trg-ok"))
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, result.Status)
	assert.True(t, result.ConditionsMet)
	assert.Equal(t, "task-1", result.TaskID)
	assert.Equal(t, "agent-task-task-1", result.WorkflowID)
	assert.Equal(t, int64(12), result.ExecutionTimeMs)

	_, execs, records := acts.snapshot()
	assert.Equal(t, 1, execs)
	require.Len(t, records, 1)
	assert.Equal(t, models.ExecutionStatusSuccess, records[0].Status)
	assert.Equal(t, "task-1", records[0].TaskID)
	assert.Equal(t, "trg-ok", records[0].TriggerID)
	assert.NotEmpty(t, records[0].RecordID)
	assert.Equal(t, SourceWebhook, records[0].TriggerData["source"])
}

func TestWorkflow_ConditionsNotMetSkips(t *testing.T) {
	t.Parallel()

	acts := &scriptedActivities{met: false}

	result, err := runTrigger(t, acts, input("trg-skip"))
	require.NoError(t, err)

	assert.Equal(t, StatusSkipped, result.Status)
	assert.False(t, result.ConditionsMet)
	assert.Empty(t, result.TaskID)

	evals, execs, records := acts.snapshot()
	assert.Equal(t, 1, evals)
	assert.Zero(t, execs, "ExecuteTrigger must not run for skipped firings")
	require.Len(t, records, 1)
	assert.Equal(t, models.ExecutionStatusSkipped, records[0].Status)
}

func TestWorkflow_ExecutionFailureIsRecorded(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		execErr    error
		wantType   string
		wantStatus models.ExecutionStatus
		wantExecs  int
	}{
		{
			name:       "circuit breaker open is not retried",
			execErr:    errkind.NewCircuitBreakerOpen("trg", 5),
			wantType:   errkind.CircuitBreakerOpen,
			wantStatus: models.ExecutionStatusFailed,
			wantExecs:  1,
		},
		{
			name:       "rate limited is not retried",
			execErr:    durable.NewApplicationError(errkind.RateLimited, "slow down", nil),
			wantType:   errkind.RateLimited,
			wantStatus: models.ExecutionStatusFailed,
			wantExecs:  1,
		},
		{
			name:       "transient error exhausts retries",
			execErr:    errors.New("agent service unavailable"),
			wantType:   durable.ErrTypeGeneric,
			wantStatus: models.ExecutionStatusFailed,
			wantExecs:  3,
		},
		{
			name:       "deadline becomes timeout",
			execErr:    fmt.Errorf("start task: %w", context.DeadlineExceeded),
			wantType:   durable.ErrTypeTimeout,
			wantStatus: models.ExecutionStatusTimeout,
			wantExecs:  3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			acts := &scriptedActivities{met: true, execErr: tt.execErr}

			_, err := runTrigger(t, acts, input("trg-fail"))
			require.Error(t, err)
			assert.True(t, durable.HasErrorType(err, tt.wantType), "got %v", err)

			_, execs, records := acts.snapshot()
			assert.Equal(t, tt.wantExecs, execs)
			require.Len(t, records, 1)
			assert.Equal(t, tt.wantStatus, records[0].Status)
			assert.NotEmpty(t, records[0].ErrorMessage)
		})
	}
}

func TestWorkflow_EvaluationFailurePropagates(t *testing.T) {
	t.Parallel()

	acts := &scriptedActivities{evalErr: errkind.NewDisabled("trg-off")}

	_, err := runTrigger(t, acts, input("trg-off"))
	require.Error(t, err)
	assert.True(t, durable.HasErrorType(err, errkind.Disabled))

	evals, execs, records := acts.snapshot()
	assert.Equal(t, 1, evals)
	assert.Zero(t, execs)
	assert.Empty(t, records)
}

func TestWorkflow_RecordFailureDoesNotFailRun(t *testing.T) {
	t.Parallel()

	acts := &scriptedActivities{met: true, recordErr: durable.NewNonRetryableError(errkind.HardDatabase, "constraint", nil)}

	result, err := runTrigger(t, acts, input("trg-record"))
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, result.Status)
}

func TestWorkflow_CancelStopsBeforeExecution(t *testing.T) {
	t.Parallel()

	acts := &scriptedActivities{
		met:     true,
		started: make(chan struct{}),
		block:   make(chan struct{}),
	}

	engine := startEngine(t, acts)
	in := input("trg-cancel")
	workflowID := WorkflowID(in.TriggerID, in.ExecutionData.Source, in.ExecutionData.Timestamp)

	_, err := engine.StartWorkflow(context.Background(), durable.StartOptions{ID: workflowID, Workflow: WorkflowName}, in)
	require.NoError(t, err)

	<-acts.started

	var status ExecutionStatus
	require.NoError(t, engine.QueryWorkflow(context.Background(), workflowID, QueryStatus, &status))
	assert.True(t, status.IsRunning)
	assert.False(t, status.IsCancelled)
	assert.Equal(t, StateEvaluating, status.State)

	require.NoError(t, engine.SignalWorkflow(context.Background(), workflowID, SignalCancel))
	close(acts.block)

	result, err := awaitResult(t, engine, workflowID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, result.Status)

	_, execs, records := acts.snapshot()
	assert.Zero(t, execs)
	assert.Empty(t, records)
}

func TestWorkflow_MissingTriggerID(t *testing.T) {
	t.Parallel()

	acts := &scriptedActivities{met: true}

	_, err := runTrigger(t, acts, TriggerExecutionInput{ExecutionData: ExecutionData{Source: SourceManual}})
	require.Error(t, err)
	assert.True(t, durable.HasErrorType(err, errkind.Validation))

	evals, _, _ := acts.snapshot()
	assert.Zero(t, evals)
}

func TestWorkflowID(t *testing.T) {
	t.Parallel()

	at := time.Unix(0, 1700000000123456789)
	assert.Equal(t, "trigger-abc-cron-1700000000123456789", WorkflowID("abc", SourceCron, at))
}

func TestRecordID(t *testing.T) {
	t.Parallel()

	assert.Equal(t, RecordID("w", "r"), RecordID("w", "r"))
	assert.NotEqual(t, RecordID("w", "r"), RecordID("w", "r2"))
	assert.Len(t, RecordID("w", "r"), 36)
}
