package tasks_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/agentarea/agentarea/pkg/agent"
	"github.com/agentarea/agentarea/pkg/durable"
	"github.com/agentarea/agentarea/pkg/errkind"
	"github.com/agentarea/agentarea/pkg/mocks"
	"github.com/agentarea/agentarea/pkg/models"
	"github.com/agentarea/agentarea/pkg/persistence"
	"github.com/agentarea/agentarea/pkg/tasks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newService(t *testing.T, opts ...tasks.Option) (*tasks.Service, *mocks.MockPersistence, *mocks.MockWorkflowEngine) {
	t.Helper()

	p := mocks.NewMockPersistence()
	engine := &mocks.MockWorkflowEngine{}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	opts = append([]tasks.Option{tasks.WithClock(func() time.Time { return fixedNow })}, opts...)
	svc := tasks.NewService(p.Agents(), p.Tasks(), engine, logger, opts...)

	t.Cleanup(func() {
		p.AgentRepo.AssertExpectations(t)
		p.TaskRepo.AssertExpectations(t)
		engine.AssertExpectations(t)
	})

	return svc, p, engine
}

func TestService_StartTask_CreatesTaskAndStartsWorkflow(t *testing.T) {
	t.Parallel()

	svc, p, engine := newService(t, tasks.WithDefaultBudget(2.5))
	ctx := context.Background()

	p.AgentRepo.On("GetByID", ctx, "agent-1").Return(&models.Agent{ID: "agent-1"}, nil)
	p.TaskRepo.On("GetByID", ctx, "task-1").Return(nil, persistence.ErrTaskNotFound)

	engine.On("StartWorkflow", ctx,
		durable.StartOptions{ID: "agent-task-task-1", Workflow: agent.WorkflowName},
		mock.MatchedBy(func(req models.AgentExecutionRequest) bool {
			return req.TaskID == "task-1" &&
				req.AgentID == "agent-1" &&
				req.BudgetUSD == 2.5 &&
				req.TaskParameters.MaxIterations == 3 &&
				req.TaskParameters.Extra["repo"] == "core"
		}),
	).Return(&durable.Run{WorkflowID: "agent-task-task-1", RunID: "run-1"}, nil)

	var saved []models.Task

	p.TaskRepo.On("Save", ctx, mock.AnythingOfType("*models.Task")).
		Run(func(args mock.Arguments) {
			saved = append(saved, *args.Get(1).(*models.Task))
		}).
		Return(nil).Twice()

	result, err := svc.StartTask(ctx, tasks.Request{
		TaskID:     "task-1",
		AgentID:    "agent-1",
		Query:      "triage the issue",
		Parameters: map[string]any{"max_iterations": 3, "repo": "core"},
	})

	require.NoError(t, err)
	assert.Equal(t, &tasks.Result{
		TaskID:     "task-1",
		WorkflowID: "agent-task-task-1",
		RunID:      "run-1",
		Status:     models.TaskStatusRunning,
	}, result)

	require.Len(t, saved, 2)
	assert.Equal(t, models.TaskStatusPending, saved[0].Status)
	assert.Empty(t, saved[0].RunID)
	assert.Equal(t, models.TaskStatusRunning, saved[1].Status)
	assert.Equal(t, "run-1", saved[1].RunID)
	assert.True(t, saved[1].CreatedAt.Equal(fixedNow))
}

func TestService_StartTask_AlreadyRunning(t *testing.T) {
	t.Parallel()

	svc, p, engine := newService(t)
	ctx := context.Background()

	existing := &models.Task{ID: "task-1", AgentID: "agent-1", Query: "q", CreatedAt: fixedNow.Add(-time.Hour)}

	p.AgentRepo.On("GetByID", ctx, "agent-1").Return(&models.Agent{ID: "agent-1"}, nil)
	p.TaskRepo.On("GetByID", ctx, "task-1").Return(existing, nil)
	engine.On("StartWorkflow", ctx, mock.Anything, mock.Anything).
		Return(&durable.Run{WorkflowID: "agent-task-task-1", RunID: "run-0", AlreadyRunning: true}, nil)
	p.TaskRepo.On("Save", ctx, existing).Return(nil)

	result, err := svc.StartTask(ctx, tasks.Request{TaskID: "task-1", AgentID: "agent-1", Query: "q"})

	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusAlreadyRunning, result.Status)
	assert.Equal(t, "run-0", existing.RunID)
	assert.True(t, existing.CreatedAt.Before(fixedNow))
}

func TestService_StartTask_StartedBeforeReturnsExistingRun(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		task       *models.Task
		wantStatus models.TaskStatus
	}{
		{
			name:       "still running",
			task:       &models.Task{ID: "task-1", Status: models.TaskStatusRunning, WorkflowID: "agent-task-task-1", RunID: "run-0"},
			wantStatus: models.TaskStatusAlreadyRunning,
		},
		{
			name:       "completed",
			task:       &models.Task{ID: "task-1", Status: models.TaskStatusCompleted, WorkflowID: "agent-task-task-1", RunID: "run-0"},
			wantStatus: models.TaskStatusCompleted,
		},
		{
			name:       "failed before the run id was stored",
			task:       &models.Task{ID: "task-1", Status: models.TaskStatusFailed},
			wantStatus: models.TaskStatusFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc, p, _ := newService(t)
			ctx := context.Background()

			p.AgentRepo.On("GetByID", ctx, "agent-1").Return(&models.Agent{ID: "agent-1"}, nil)
			p.TaskRepo.On("GetByID", ctx, "task-1").Return(tt.task, nil)

			result, err := svc.StartTask(ctx, tasks.Request{TaskID: "task-1", AgentID: "agent-1", Query: "q"})

			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, result.Status)
			assert.Equal(t, tt.task.RunID, result.RunID)
			p.TaskRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
		})
	}
}

func TestService_StartTask_GeneratesTaskID(t *testing.T) {
	t.Parallel()

	svc, p, engine := newService(t)
	ctx := context.Background()

	p.AgentRepo.On("GetByID", ctx, "agent-1").Return(&models.Agent{ID: "agent-1"}, nil)
	p.TaskRepo.On("GetByID", ctx, mock.AnythingOfType("string")).Return(nil, persistence.ErrTaskNotFound)
	engine.On("StartWorkflow", ctx, mock.Anything, mock.Anything).
		Return(&durable.Run{WorkflowID: "w", RunID: "r"}, nil)
	p.TaskRepo.On("Save", ctx, mock.Anything).Return(nil)

	result, err := svc.StartTask(ctx, tasks.Request{AgentID: "agent-1", Query: "q"})

	require.NoError(t, err)
	assert.Len(t, result.TaskID, 36)
}

func TestService_StartTask_DefaultMaxIterations(t *testing.T) {
	t.Parallel()

	svc, p, engine := newService(t, tasks.WithDefaultMaxIterations(25))
	ctx := context.Background()

	p.AgentRepo.On("GetByID", ctx, "agent-1").Return(&models.Agent{ID: "agent-1"}, nil)
	p.TaskRepo.On("GetByID", ctx, "task-1").Return(nil, persistence.ErrTaskNotFound)
	engine.On("StartWorkflow", ctx, mock.Anything, mock.MatchedBy(func(req models.AgentExecutionRequest) bool {
		return req.TaskParameters.MaxIterations == 25 && req.BudgetUSD == models.DefaultBudgetUSD
	})).Return(&durable.Run{WorkflowID: "agent-task-task-1", RunID: "run-1"}, nil)
	p.TaskRepo.On("Save", ctx, mock.Anything).Return(nil)

	_, err := svc.StartTask(ctx, tasks.Request{TaskID: "task-1", AgentID: "agent-1", Query: "q"})
	require.NoError(t, err)
}

func TestService_StartTask_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		req      tasks.Request
		setup    func(p *mocks.MockPersistence, engine *mocks.MockWorkflowEngine)
		wantType string
		wantErr  string
	}{
		{
			name:     "missing agent id",
			req:      tasks.Request{Query: "q"},
			setup:    func(*mocks.MockPersistence, *mocks.MockWorkflowEngine) {},
			wantType: errkind.Validation,
		},
		{
			name:     "missing query",
			req:      tasks.Request{AgentID: "agent-1"},
			setup:    func(*mocks.MockPersistence, *mocks.MockWorkflowEngine) {},
			wantType: errkind.Validation,
		},
		{
			name: "unknown agent",
			req:  tasks.Request{AgentID: "ghost", Query: "q"},
			setup: func(p *mocks.MockPersistence, _ *mocks.MockWorkflowEngine) {
				p.AgentRepo.On("GetByID", mock.Anything, "ghost").Return(nil, persistence.ErrAgentNotFound)
			},
			wantType: errkind.NotFound,
		},
		{
			name: "task lookup fails",
			req:  tasks.Request{TaskID: "task-1", AgentID: "agent-1", Query: "q"},
			setup: func(p *mocks.MockPersistence, _ *mocks.MockWorkflowEngine) {
				p.AgentRepo.On("GetByID", mock.Anything, "agent-1").Return(&models.Agent{ID: "agent-1"}, nil)
				p.TaskRepo.On("GetByID", mock.Anything, "task-1").Return(nil, errors.New("connection reset"))
			},
			wantType: errkind.Database,
		},
		{
			name: "workflow start fails",
			req:  tasks.Request{TaskID: "task-1", AgentID: "agent-1", Query: "q"},
			setup: func(p *mocks.MockPersistence, engine *mocks.MockWorkflowEngine) {
				p.AgentRepo.On("GetByID", mock.Anything, "agent-1").Return(&models.Agent{ID: "agent-1"}, nil)
				p.TaskRepo.On("GetByID", mock.Anything, "task-1").Return(nil, persistence.ErrTaskNotFound)
				p.TaskRepo.On("Save", mock.Anything, mock.Anything).Return(nil).Once()
				engine.On("StartWorkflow", mock.Anything, mock.Anything, mock.Anything).
					Return(nil, errors.New("engine stopped"))
			},
			wantErr: "start agent workflow for task task-1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc, p, engine := newService(t)
			tt.setup(p, engine)

			result, err := svc.StartTask(context.Background(), tt.req)

			require.Error(t, err)
			assert.Nil(t, result)

			if tt.wantType != "" {
				assert.True(t, durable.HasErrorType(err, tt.wantType), "got %v", err)
			}

			if tt.wantErr != "" {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
