package durable

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_CreateRunDedupe(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.CreateRun(ctx, RunInfo{WorkflowID: "wf", RunID: "r1", Status: RunStatusRunning})
	require.NoError(t, err)

	existing, err := store.CreateRun(ctx, RunInfo{WorkflowID: "wf", RunID: "r2", Status: RunStatusRunning})
	require.ErrorIs(t, err, ErrWorkflowAlreadyStarted)
	assert.Equal(t, "r1", existing.RunID)

	require.NoError(t, store.CloseRun(ctx, "wf", "r1", RunStatusCompleted, json.RawMessage(`1`), nil, time.Now()))

	created, err := store.CreateRun(ctx, RunInfo{WorkflowID: "wf", RunID: "r3", Status: RunStatusRunning})
	require.NoError(t, err)
	assert.Equal(t, "r3", created.RunID)
}

func TestMemoryStore_AppendEventOrdering(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.CreateRun(ctx, RunInfo{WorkflowID: "wf", RunID: "r1", Status: RunStatusRunning})
	require.NoError(t, err)

	require.NoError(t, store.AppendEvent(ctx, "wf", "r1", HistoryEvent{Seq: 0, Type: EventTimerFired, Name: "1s"}))
	require.Error(t, store.AppendEvent(ctx, "wf", "r1", HistoryEvent{Seq: 0, Type: EventTimerFired, Name: "1s"}))
	require.ErrorIs(t, store.AppendEvent(ctx, "wf", "missing", HistoryEvent{}), ErrWorkflowNotFound)

	events, err := store.Events(ctx, "wf", "r1")
	require.NoError(t, err)
	assert.Len(t, events, 1)

	open, err := store.OpenRuns(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 1)
}
