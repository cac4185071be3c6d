package durable

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

type EventType string

const (
	EventActivityCompleted EventType = "activity_completed"
	EventActivityFailed    EventType = "activity_failed"
	EventTimerFired        EventType = "timer_fired"
	EventSignalChecked     EventType = "signal_checked"
)

// HistoryEvent is one recorded step of a workflow run. Seq is dense and starts at zero.
type HistoryEvent struct {
	Seq       int             `json:"seq"`
	Type      EventType       `json:"type"`
	Name      string          `json:"name"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Failure   *Failure        `json:"failure,omitempty"`
	Attempts  int             `json:"attempts,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

type RunInfo struct {
	WorkflowID   string          `json:"workflow_id"`
	RunID        string          `json:"run_id"`
	WorkflowName string          `json:"workflow_name"`
	Input        json.RawMessage `json:"input,omitempty"`
	Status       RunStatus       `json:"status"`
	Result       json.RawMessage `json:"result,omitempty"`
	Failure      *Failure        `json:"failure,omitempty"`
	StartedAt    time.Time       `json:"started_at"`
	ClosedAt     *time.Time      `json:"closed_at,omitempty"`
}

// HistoryStore persists workflow runs and their event histories.
type HistoryStore interface {
	// CreateRun stores a new run. When a run with the same workflow ID is still
	// running it returns that run together with ErrWorkflowAlreadyStarted.
	CreateRun(ctx context.Context, run RunInfo) (*RunInfo, error)
	// GetRun returns the latest run for the workflow ID.
	GetRun(ctx context.Context, workflowID string) (*RunInfo, error)
	AppendEvent(ctx context.Context, workflowID, runID string, event HistoryEvent) error
	Events(ctx context.Context, workflowID, runID string) ([]HistoryEvent, error)
	CloseRun(ctx context.Context, workflowID, runID string, status RunStatus, result json.RawMessage, failure *Failure, closedAt time.Time) error
	OpenRuns(ctx context.Context) ([]RunInfo, error)
}

// MemoryStore keeps histories in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	runs   map[string]*RunInfo
	events map[string][]HistoryEvent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:   make(map[string]*RunInfo),
		events: make(map[string][]HistoryEvent),
	}
}

func historyKey(workflowID, runID string) string {
	return workflowID + "/" + runID
}

func (s *MemoryStore) CreateRun(_ context.Context, run RunInfo) (*RunInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.runs[run.WorkflowID]; ok && existing.Status == RunStatusRunning {
		copied := *existing

		return &copied, ErrWorkflowAlreadyStarted
	}

	stored := run
	s.runs[run.WorkflowID] = &stored
	s.events[historyKey(run.WorkflowID, run.RunID)] = nil

	copied := stored

	return &copied, nil
}

func (s *MemoryStore) GetRun(_ context.Context, workflowID string) (*RunInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[workflowID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, workflowID)
	}

	copied := *run

	return &copied, nil
}

func (s *MemoryStore) AppendEvent(_ context.Context, workflowID, runID string, event HistoryEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := historyKey(workflowID, runID)

	events, ok := s.events[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrWorkflowNotFound, key)
	}

	if event.Seq != len(events) {
		return fmt.Errorf("append event %d to %s: history has %d events", event.Seq, key, len(events))
	}

	s.events[key] = append(events, event)

	return nil
}

func (s *MemoryStore) Events(_ context.Context, workflowID, runID string) ([]HistoryEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events, ok := s.events[historyKey(workflowID, runID)]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrWorkflowNotFound, workflowID, runID)
	}

	return append([]HistoryEvent(nil), events...), nil
}

func (s *MemoryStore) CloseRun(_ context.Context, workflowID, runID string, status RunStatus, result json.RawMessage, failure *Failure, closedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[workflowID]
	if !ok || run.RunID != runID {
		return fmt.Errorf("%w: %s/%s", ErrWorkflowNotFound, workflowID, runID)
	}

	run.Status = status
	run.Result = result
	run.Failure = failure
	run.ClosedAt = &closedAt

	return nil
}

func (s *MemoryStore) OpenRuns(_ context.Context) ([]RunInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var open []RunInfo

	for _, run := range s.runs {
		if run.Status == RunStatusRunning {
			open = append(open, *run)
		}
	}

	return open, nil
}
