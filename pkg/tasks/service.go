// Package tasks creates agent tasks and starts their executions.
package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/agentarea/agentarea/pkg/agent"
	"github.com/agentarea/agentarea/pkg/durable"
	"github.com/agentarea/agentarea/pkg/errkind"
	"github.com/agentarea/agentarea/pkg/models"
	"github.com/agentarea/agentarea/pkg/persistence"
	"github.com/google/uuid"
)

// WorkflowStarter is implemented by durable.Engine.
type WorkflowStarter interface {
	StartWorkflow(ctx context.Context, opts durable.StartOptions, input any) (*durable.Run, error)
}

type Request struct {
	// TaskID is optional. Supplying one makes StartTask idempotent.
	TaskID                string
	AgentID               string
	Query                 string
	Parameters            map[string]any
	UserID                string
	WorkspaceID           string
	BudgetUSD             float64
	RequiresHumanApproval bool
}

type Result struct {
	TaskID     string            `json:"task_id"`
	WorkflowID string            `json:"workflow_id"`
	RunID      string            `json:"run_id"`
	Status     models.TaskStatus `json:"status"`
}

type Service struct {
	agents    persistence.AgentRepository
	tasks     persistence.TaskRepository
	starter   WorkflowStarter
	budgetUSD float64
	maxIters  int
	clock     func() time.Time
	logger    *slog.Logger
}

type Option func(*Service)

// WithDefaultBudget sets the budget used when a request carries none.
func WithDefaultBudget(budgetUSD float64) Option {
	return func(s *Service) {
		s.budgetUSD = budgetUSD
	}
}

// WithDefaultMaxIterations sets the iteration limit used when the task
// parameters carry none.
func WithDefaultMaxIterations(n int) Option {
	return func(s *Service) {
		s.maxIters = n
	}
}

func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

func NewService(agents persistence.AgentRepository, tasks persistence.TaskRepository, starter WorkflowStarter, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		agents:    agents,
		tasks:     tasks,
		starter:   starter,
		budgetUSD: models.DefaultBudgetUSD,
		maxIters:  models.DefaultMaxIterations,
		clock:     time.Now,
		logger:    logger.With("module", "tasks"),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// StartTask persists a task and starts its agent workflow. Starting a task
// that was started before reports its current run instead of starting a new
// one: TaskStatusAlreadyRunning while it runs, its final status afterwards.
func (s *Service) StartTask(ctx context.Context, req Request) (*Result, error) {
	if req.AgentID == "" {
		return nil, errkind.NewValidation("agent id is required")
	}

	if req.Query == "" {
		return nil, errkind.NewValidation("task query is required")
	}

	if _, err := s.agents.GetByID(ctx, req.AgentID); err != nil {
		return nil, errkind.FromRepository(err)
	}

	taskID := req.TaskID
	if taskID == "" {
		taskID = uuid.NewString()
	}

	now := s.clock().UTC()

	task, err := s.tasks.GetByID(ctx, taskID)
	switch {
	case persistence.IsTaskNotFound(err):
		task = &models.Task{
			ID:          taskID,
			AgentID:     req.AgentID,
			Query:       req.Query,
			Parameters:  req.Parameters,
			Status:      models.TaskStatusPending,
			UserID:      req.UserID,
			WorkspaceID: req.WorkspaceID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		// The workflow stores its final status on this task, so it has to
		// exist before the run starts.
		if err := s.tasks.Save(ctx, task); err != nil {
			return nil, errkind.FromRepository(err)
		}
	case err != nil:
		return nil, errkind.FromRepository(err)
	case task.Status.IsTerminal() || task.RunID != "":
		// The task was started before. Its workflow may have closed already,
		// so starting again would run the agent twice.
		return s.existing(ctx, task), nil
	}

	budget := req.BudgetUSD
	if budget <= 0 {
		budget = s.budgetUSD
	}

	execReq := models.AgentExecutionRequest{
		AgentID:               req.AgentID,
		TaskID:                taskID,
		UserID:                req.UserID,
		WorkspaceID:           req.WorkspaceID,
		TaskQuery:             req.Query,
		TaskParameters:        models.TaskParametersFromMap(req.Parameters),
		BudgetUSD:             budget,
		RequiresHumanApproval: req.RequiresHumanApproval,
	}

	if execReq.TaskParameters.MaxIterations <= 0 {
		execReq.TaskParameters.MaxIterations = s.maxIters
	}

	run, err := s.starter.StartWorkflow(ctx, durable.StartOptions{
		ID:       agent.WorkflowID(taskID),
		Workflow: agent.WorkflowName,
	}, execReq)
	if err != nil {
		return nil, fmt.Errorf("start agent workflow for task %s: %w", taskID, err)
	}

	status := models.TaskStatusRunning
	if run.AlreadyRunning {
		status = models.TaskStatusAlreadyRunning
	}

	task.Status = models.TaskStatusRunning
	task.WorkflowID = run.WorkflowID
	task.RunID = run.RunID
	task.UpdatedAt = now

	if err := s.tasks.Save(ctx, task); err != nil {
		return nil, errkind.FromRepository(err)
	}

	s.logger.InfoContext(ctx, "Agent task started",
		"task_id", taskID,
		"agent_id", req.AgentID,
		"workflow_id", run.WorkflowID,
		"already_running", run.AlreadyRunning,
	)

	return &Result{
		TaskID:     taskID,
		WorkflowID: run.WorkflowID,
		RunID:      run.RunID,
		Status:     status,
	}, nil
}

func (s *Service) existing(ctx context.Context, task *models.Task) *Result {
	status := task.Status
	if !status.IsTerminal() {
		status = models.TaskStatusAlreadyRunning
	}

	s.logger.InfoContext(ctx, "Agent task already started",
		"task_id", task.ID,
		"workflow_id", task.WorkflowID,
		"status", status,
	)

	return &Result{
		TaskID:     task.ID,
		WorkflowID: task.WorkflowID,
		RunID:      task.RunID,
		Status:     status,
	}
}
