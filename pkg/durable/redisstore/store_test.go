package redisstore

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/agentarea/agentarea/pkg/durable"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}

	store, err := NewFromURL(context.Background(), url, WithPrefix("agentarea-test:"+uuid.NewString()))
	require.NoError(t, err)

	t.Cleanup(func() { _ = store.Close() })

	return store
}

func TestStore_RunLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	run := durable.RunInfo{
		WorkflowID:   "agent-task-1",
		RunID:        "run-1",
		WorkflowName: "AgentExecutionWorkflow",
		Status:       durable.RunStatusRunning,
		StartedAt:    time.Now().UTC(),
	}

	_, err := store.CreateRun(ctx, run)
	require.NoError(t, err)

	existing, err := store.CreateRun(ctx, durable.RunInfo{WorkflowID: "agent-task-1", RunID: "run-2", Status: durable.RunStatusRunning})
	require.ErrorIs(t, err, durable.ErrWorkflowAlreadyStarted)
	assert.Equal(t, "run-1", existing.RunID)

	require.NoError(t, store.AppendEvent(ctx, run.WorkflowID, run.RunID, durable.HistoryEvent{Seq: 0, Type: durable.EventActivityCompleted, Name: "CallLLM"}))
	require.Error(t, store.AppendEvent(ctx, run.WorkflowID, run.RunID, durable.HistoryEvent{Seq: 5, Type: durable.EventActivityCompleted, Name: "CallLLM"}))

	events, err := store.Events(ctx, run.WorkflowID, run.RunID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "CallLLM", events[0].Name)

	open, err := store.OpenRuns(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)

	require.NoError(t, store.CloseRun(ctx, run.WorkflowID, run.RunID, durable.RunStatusCompleted, json.RawMessage(`{"ok":true}`), nil, time.Now()))

	closed, err := store.GetRun(ctx, run.WorkflowID)
	require.NoError(t, err)
	assert.Equal(t, durable.RunStatusCompleted, closed.Status)
	assert.JSONEq(t, `{"ok":true}`, string(closed.Result))

	open, err = store.OpenRuns(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestStore_GetRunNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetRun(context.Background(), "missing")
	require.ErrorIs(t, err, durable.ErrWorkflowNotFound)
}
