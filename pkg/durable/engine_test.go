package durable

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agentarea/agentarea/pkg/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastRetry = RetryPolicy{
	InitialInterval: time.Millisecond,
	MaximumInterval: 5 * time.Millisecond,
	MaximumAttempts: 3,
}

func newTestEngine(t *testing.T, store HistoryStore) *Engine {
	t.Helper()

	if store == nil {
		store = NewMemoryStore()
	}

	engine := NewEngine(store, log.Discard(), WithMaxConcurrentActivities(4))

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = engine.Shutdown(ctx)
	})

	return engine
}

func resultOf(t *testing.T, engine *Engine, workflowID string, result any) error {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return engine.GetResult(ctx, workflowID, result)
}

func singleActivityWorkflow(activity string, opts ActivityOptions) WorkflowFunc {
	return Workflow(func(ctx Context, input string) (string, error) {
		var out string
		if err := ctx.ExecuteActivity(activity, opts, input, &out); err != nil {
			return "", err
		}

		return out, nil
	})
}

func TestEngine_RetriesUntilSuccess(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, nil)

	var calls atomic.Int32

	engine.RegisterActivity("flaky", Activity(func(_ context.Context, in string) (string, error) {
		if calls.Add(1) < 3 {
			return "", errors.New("connection refused")
		}

		return "hello " + in, nil
	}))
	engine.RegisterWorkflow("greet", singleActivityWorkflow("flaky", ActivityOptions{RetryPolicy: fastRetry}))

	run, err := engine.StartWorkflow(context.Background(), StartOptions{ID: "greet-1", Workflow: "greet"}, "world")
	require.NoError(t, err)
	assert.False(t, run.AlreadyRunning)

	var out string
	require.NoError(t, resultOf(t, engine, "greet-1", &out))
	assert.Equal(t, "hello world", out)
	assert.Equal(t, int32(3), calls.Load())
}

func TestEngine_NonRetryableShortCircuits(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, nil)

	var calls atomic.Int32

	engine.RegisterActivity("validate", Activity(func(_ context.Context, _ string) (string, error) {
		calls.Add(1)

		return "", NewNonRetryableError("ValidationError", "query is required", nil)
	}))
	engine.RegisterWorkflow("wf", singleActivityWorkflow("validate", ActivityOptions{RetryPolicy: fastRetry}))

	_, err := engine.StartWorkflow(context.Background(), StartOptions{ID: "wf-1", Workflow: "wf"}, "")
	require.NoError(t, err)

	err = resultOf(t, engine, "wf-1", nil)

	var wfErr *WorkflowExecutionError
	require.ErrorAs(t, err, &wfErr)
	assert.Equal(t, "ValidationError", wfErr.Cause.Type)
	assert.Equal(t, int32(1), calls.Load())
}

func TestEngine_NonRetryableErrorTypesFromPolicy(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, nil)

	var calls atomic.Int32

	engine.RegisterActivity("lookup", Activity(func(_ context.Context, _ string) (string, error) {
		calls.Add(1)

		return "", NewApplicationError("NotFoundError", "agent missing", nil)
	}))

	policy := fastRetry
	policy.NonRetryableErrorTypes = []string{"NotFoundError"}
	engine.RegisterWorkflow("wf", singleActivityWorkflow("lookup", ActivityOptions{RetryPolicy: policy}))

	_, err := engine.StartWorkflow(context.Background(), StartOptions{ID: "wf-2", Workflow: "wf"}, "")
	require.NoError(t, err)
	require.Error(t, resultOf(t, engine, "wf-2", nil))
	assert.Equal(t, int32(1), calls.Load())
}

func TestEngine_DuplicateStartReportsAlreadyRunning(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, nil)
	release := make(chan struct{})

	engine.RegisterActivity("block", Activity(func(ctx context.Context, _ string) (string, error) {
		select {
		case <-release:
			return "done", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}))
	engine.RegisterWorkflow("wf", singleActivityWorkflow("block", ActivityOptions{RetryPolicy: fastRetry}))

	first, err := engine.StartWorkflow(context.Background(), StartOptions{ID: "agent-task-1", Workflow: "wf"}, "")
	require.NoError(t, err)

	second, err := engine.StartWorkflow(context.Background(), StartOptions{ID: "agent-task-1", Workflow: "wf"}, "")
	require.NoError(t, err)
	assert.True(t, second.AlreadyRunning)
	assert.Equal(t, first.RunID, second.RunID)

	close(release)

	var out string
	require.NoError(t, resultOf(t, engine, "agent-task-1", &out))
	assert.Equal(t, "done", out)
}

func TestEngine_SignalAndQuery(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, nil)

	engine.RegisterWorkflow("poller", Workflow(func(ctx Context, _ string) (int, error) {
		iterations := 0

		ctx.SetQueryHandler("iterations", func() (any, error) {
			return map[string]int{"iterations": iterations}, nil
		})

		for !ctx.ReceiveSignal("stop") {
			iterations++

			if err := ctx.Sleep(time.Millisecond); err != nil {
				return 0, err
			}
		}

		return iterations, nil
	}))

	_, err := engine.StartWorkflow(context.Background(), StartOptions{ID: "poller-1", Workflow: "poller"}, "")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		var status map[string]int
		if err := engine.QueryWorkflow(context.Background(), "poller-1", "iterations", &status); err != nil {
			return false
		}

		return status["iterations"] > 2
	}, 2*time.Second, 5*time.Millisecond)

	err = engine.QueryWorkflow(context.Background(), "poller-1", "missing", nil)
	require.ErrorIs(t, err, ErrQueryNotFound)

	require.NoError(t, engine.SignalWorkflow(context.Background(), "poller-1", "stop"))

	var iterations int
	require.NoError(t, resultOf(t, engine, "poller-1", &iterations))
	assert.Greater(t, iterations, 2)

	err = engine.SignalWorkflow(context.Background(), "poller-1", "stop")
	require.ErrorIs(t, err, ErrWorkflowNotRunning)

	err = engine.SignalWorkflow(context.Background(), "unknown", "stop")
	require.ErrorIs(t, err, ErrWorkflowNotFound)
}

func TestEngine_ResumeReplaysRecordedActivities(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()
	started := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := store.CreateRun(ctx, RunInfo{
		WorkflowID:   "replay-1",
		RunID:        "run-1",
		WorkflowName: "twice",
		Status:       RunStatusRunning,
		StartedAt:    started,
	})
	require.NoError(t, err)
	require.NoError(t, store.AppendEvent(ctx, "replay-1", "run-1", HistoryEvent{
		Seq:       0,
		Type:      EventActivityCompleted,
		Name:      "step",
		Payload:   json.RawMessage(`"recorded"`),
		Attempts:  1,
		Timestamp: started.Add(time.Second),
	}))

	engine := newTestEngine(t, store)

	var calls atomic.Int32

	engine.RegisterActivity("step", Activity(func(_ context.Context, _ struct{}) (string, error) {
		calls.Add(1)

		return "live", nil
	}))

	var replayedNow atomic.Value

	engine.RegisterWorkflow("twice", Workflow(func(ctx Context, _ struct{}) ([]string, error) {
		var first, second string
		if err := ctx.ExecuteActivity("step", ActivityOptions{}, struct{}{}, &first); err != nil {
			return nil, err
		}

		replayedNow.Store(ctx.Now())

		if err := ctx.ExecuteActivity("step", ActivityOptions{}, struct{}{}, &second); err != nil {
			return nil, err
		}

		return []string{first, second}, nil
	}))

	require.NoError(t, engine.Resume(ctx))

	var out []string
	require.NoError(t, resultOf(t, engine, "replay-1", &out))
	assert.Equal(t, []string{"recorded", "live"}, out)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, started.Add(time.Second), replayedNow.Load())

	events, err := store.Events(ctx, "replay-1", "run-1")
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestEngine_NondeterministicHistoryFailsRun(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.CreateRun(ctx, RunInfo{WorkflowID: "nd-1", RunID: "run-1", WorkflowName: "wf", Status: RunStatusRunning})
	require.NoError(t, err)
	require.NoError(t, store.AppendEvent(ctx, "nd-1", "run-1", HistoryEvent{Seq: 0, Type: EventActivityCompleted, Name: "other"}))

	engine := newTestEngine(t, store)
	engine.RegisterActivity("step", Activity(func(_ context.Context, _ string) (string, error) { return "", nil }))
	engine.RegisterWorkflow("wf", singleActivityWorkflow("step", ActivityOptions{}))

	require.NoError(t, engine.Resume(ctx))

	err = resultOf(t, engine, "nd-1", nil)

	var wfErr *WorkflowExecutionError
	require.ErrorAs(t, err, &wfErr)
	assert.Contains(t, wfErr.Cause.Message, "does not match")
}

func TestEngine_HeartbeatTimeoutIsRetried(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, nil)

	var calls atomic.Int32

	engine.RegisterActivity("stuck", Activity(func(ctx context.Context, _ string) (string, error) {
		if calls.Add(1) == 1 {
			<-ctx.Done()

			return "", ctx.Err()
		}

		stop := KeepAlive(ctx, 2*time.Millisecond)
		defer stop()

		time.Sleep(40 * time.Millisecond)

		return "recovered", nil
	}))
	engine.RegisterWorkflow("wf", singleActivityWorkflow("stuck", ActivityOptions{
		HeartbeatTimeout: 20 * time.Millisecond,
		RetryPolicy:      fastRetry,
	}))

	_, err := engine.StartWorkflow(context.Background(), StartOptions{ID: "hb-1", Workflow: "wf"}, "")
	require.NoError(t, err)

	var out string
	require.NoError(t, resultOf(t, engine, "hb-1", &out))
	assert.Equal(t, "recovered", out)
	assert.Equal(t, int32(2), calls.Load())
}

func TestEngine_KeepAliveIntervalFollowsHeartbeatTimeout(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, nil)

	var calls atomic.Int32

	engine.RegisterActivity("slow", Activity(func(ctx context.Context, _ string) (string, error) {
		calls.Add(1)

		stop := KeepAlive(ctx, time.Hour)
		defer stop()

		time.Sleep(120 * time.Millisecond)

		return "done", nil
	}))
	engine.RegisterWorkflow("wf", singleActivityWorkflow("slow", ActivityOptions{
		HeartbeatTimeout: 40 * time.Millisecond,
		RetryPolicy:      RetryPolicy{MaximumAttempts: 1},
	}))

	_, err := engine.StartWorkflow(context.Background(), StartOptions{ID: "keepalive-1", Workflow: "wf"}, "")
	require.NoError(t, err)

	var out string
	require.NoError(t, resultOf(t, engine, "keepalive-1", &out))
	assert.Equal(t, "done", out)
	assert.Equal(t, int32(1), calls.Load())
}

func TestKeepAliveInterval(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name             string
		interval         time.Duration
		heartbeatTimeout time.Duration
		want             time.Duration
	}{
		{name: "below limit", interval: 5 * time.Second, heartbeatTimeout: 30 * time.Second, want: 5 * time.Second},
		{name: "equal to timeout", interval: 30 * time.Second, heartbeatTimeout: 30 * time.Second, want: 10 * time.Second},
		{name: "no timeout", interval: time.Minute, want: time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, keepAliveInterval(tt.interval, tt.heartbeatTimeout))
		})
	}
}

func TestEngine_StartToCloseTimeout(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, nil)

	engine.RegisterActivity("slow", Activity(func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()

		return "", ctx.Err()
	}))

	policy := fastRetry
	policy.MaximumAttempts = 2
	engine.RegisterWorkflow("wf", singleActivityWorkflow("slow", ActivityOptions{
		StartToCloseTimeout: 10 * time.Millisecond,
		RetryPolicy:         policy,
	}))

	_, err := engine.StartWorkflow(context.Background(), StartOptions{ID: "slow-1", Workflow: "wf"}, "")
	require.NoError(t, err)

	err = resultOf(t, engine, "slow-1", nil)

	var wfErr *WorkflowExecutionError
	require.ErrorAs(t, err, &wfErr)
	assert.Equal(t, ErrTypeTimeout, wfErr.Cause.Type)
}

func TestEngine_ActivityInfoAvailable(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, nil)

	engine.RegisterActivity("info", Activity(func(ctx context.Context, _ string) (ActivityInfo, error) {
		info, ok := ActivityInfoFrom(ctx)
		if !ok {
			return ActivityInfo{}, errors.New("missing activity info")
		}

		if log.FromContext(ctx, nil) == nil {
			return ActivityInfo{}, errors.New("missing activity logger")
		}

		return info, nil
	}))
	engine.RegisterWorkflow("wf", Workflow(func(ctx Context, _ string) (ActivityInfo, error) {
		var info ActivityInfo
		err := ctx.ExecuteActivity("info", ActivityOptions{}, "", &info)

		return info, err
	}))

	run, err := engine.StartWorkflow(context.Background(), StartOptions{ID: "info-1", Workflow: "wf"}, "")
	require.NoError(t, err)

	var info ActivityInfo
	require.NoError(t, resultOf(t, engine, "info-1", &info))
	assert.Equal(t, "info-1", info.WorkflowID)
	assert.Equal(t, run.RunID, info.RunID)
	assert.Equal(t, "info", info.ActivityName)
	assert.Equal(t, 1, info.Attempt)
}

func TestEngine_PanicBecomesFailure(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, nil)
	engine.RegisterWorkflow("wf", Workflow(func(_ Context, _ string) (string, error) {
		panic("unexpected state")
	}))

	_, err := engine.StartWorkflow(context.Background(), StartOptions{ID: "panic-1", Workflow: "wf"}, "")
	require.NoError(t, err)

	err = resultOf(t, engine, "panic-1", nil)

	var wfErr *WorkflowExecutionError
	require.ErrorAs(t, err, &wfErr)
	assert.Equal(t, ErrTypePanic, wfErr.Cause.Type)
}

func TestEngine_ShutdownLeavesRunOpen(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	engine := NewEngine(store, log.Discard())
	entered := make(chan struct{})

	engine.RegisterActivity("wait", Activity(func(ctx context.Context, _ string) (string, error) {
		close(entered)
		<-ctx.Done()

		return "", ctx.Err()
	}))
	engine.RegisterWorkflow("wf", singleActivityWorkflow("wait", ActivityOptions{}))

	_, err := engine.StartWorkflow(context.Background(), StartOptions{ID: "open-1", Workflow: "wf"}, "")
	require.NoError(t, err)

	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, engine.Shutdown(ctx))

	info, err := store.GetRun(context.Background(), "open-1")
	require.NoError(t, err)
	assert.Equal(t, RunStatusRunning, info.Status)

	_, err = engine.StartWorkflow(context.Background(), StartOptions{ID: "open-2", Workflow: "wf"}, "")
	require.ErrorIs(t, err, ErrEngineStopped)
}

func TestEngine_UnknownWorkflow(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, nil)

	_, err := engine.StartWorkflow(context.Background(), StartOptions{ID: "x", Workflow: "missing"}, nil)
	require.ErrorIs(t, err, ErrUnknownWorkflow)
}
