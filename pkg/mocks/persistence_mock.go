package mocks

import (
	"context"
	"time"

	"github.com/agentarea/agentarea/pkg/models"
	"github.com/agentarea/agentarea/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockPersistence is a mock implementation of persistence.Persistence interface.
type MockPersistence struct {
	mock.Mock

	AgentRepo            *MockAgentRepository
	TaskRepo             *MockTaskRepository
	TriggerRepo          *MockTriggerRepository
	TriggerExecutionRepo *MockTriggerExecutionRepository
}

func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		AgentRepo:            &MockAgentRepository{},
		TaskRepo:             &MockTaskRepository{},
		TriggerRepo:          &MockTriggerRepository{},
		TriggerExecutionRepo: &MockTriggerExecutionRepository{},
	}
}

func (m *MockPersistence) Agents() persistence.AgentRepository { return m.AgentRepo }

func (m *MockPersistence) Tasks() persistence.TaskRepository { return m.TaskRepo }

func (m *MockPersistence) Triggers() persistence.TriggerRepository { return m.TriggerRepo }

func (m *MockPersistence) TriggerExecutions() persistence.TriggerExecutionRepository {
	return m.TriggerExecutionRepo
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

// MockAgentRepository is a mock implementation of persistence.AgentRepository interface.
type MockAgentRepository struct {
	mock.Mock
}

func (m *MockAgentRepository) GetByID(ctx context.Context, id string) (*models.Agent, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Agent), args.Error(1)
}

func (m *MockAgentRepository) Save(ctx context.Context, agent *models.Agent) error {
	args := m.Called(ctx, agent)

	return args.Error(0)
}

// MockTaskRepository is a mock implementation of persistence.TaskRepository interface.
type MockTaskRepository struct {
	mock.Mock
}

func (m *MockTaskRepository) GetByID(ctx context.Context, id string) (*models.Task, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Task), args.Error(1)
}

func (m *MockTaskRepository) Save(ctx context.Context, task *models.Task) error {
	args := m.Called(ctx, task)

	return args.Error(0)
}

// MockTriggerRepository is a mock implementation of persistence.TriggerRepository interface.
type MockTriggerRepository struct {
	mock.Mock
}

func (m *MockTriggerRepository) GetByID(ctx context.Context, id string) (*models.TriggerDefinition, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.TriggerDefinition), args.Error(1)
}

func (m *MockTriggerRepository) GetByWebhookID(ctx context.Context, webhookID string) (*models.TriggerDefinition, error) {
	args := m.Called(ctx, webhookID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.TriggerDefinition), args.Error(1)
}

func (m *MockTriggerRepository) List(ctx context.Context) ([]*models.TriggerDefinition, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.TriggerDefinition), args.Error(1)
}

func (m *MockTriggerRepository) DueCron(ctx context.Context, now time.Time) ([]*models.TriggerDefinition, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.TriggerDefinition), args.Error(1)
}

func (m *MockTriggerRepository) Save(ctx context.Context, trigger *models.TriggerDefinition) error {
	args := m.Called(ctx, trigger)

	return args.Error(0)
}

func (m *MockTriggerRepository) UpdateNextRun(ctx context.Context, id string, next time.Time) error {
	args := m.Called(ctx, id, next)

	return args.Error(0)
}

// MockTriggerExecutionRepository is a mock implementation of persistence.TriggerExecutionRepository interface.
type MockTriggerExecutionRepository struct {
	mock.Mock
}

func (m *MockTriggerExecutionRepository) Record(ctx context.Context, record *models.TriggerExecutionRecord) (*persistence.RecordOutcome, error) {
	args := m.Called(ctx, record)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*persistence.RecordOutcome), args.Error(1)
}

func (m *MockTriggerExecutionRepository) ListByTrigger(ctx context.Context, triggerID string, limit int) ([]*models.TriggerExecutionRecord, error) {
	args := m.Called(ctx, triggerID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.TriggerExecutionRecord), args.Error(1)
}
