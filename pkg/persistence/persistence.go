package persistence

import (
	"context"
	"time"

	"github.com/agentarea/agentarea/pkg/models"
)

type Persistence interface {
	Agents() AgentRepository
	Tasks() TaskRepository
	Triggers() TriggerRepository
	TriggerExecutions() TriggerExecutionRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

type AgentRepository interface {
	GetByID(ctx context.Context, id string) (*models.Agent, error)
	Save(ctx context.Context, agent *models.Agent) error
}

type TaskRepository interface {
	GetByID(ctx context.Context, id string) (*models.Task, error)
	// Save creates or replaces a task. Tasks that reached a terminal status
	// are never overwritten.
	Save(ctx context.Context, task *models.Task) error
}

type TriggerRepository interface {
	GetByID(ctx context.Context, id string) (*models.TriggerDefinition, error)
	GetByWebhookID(ctx context.Context, webhookID string) (*models.TriggerDefinition, error)
	List(ctx context.Context) ([]*models.TriggerDefinition, error)
	// DueCron returns active cron triggers whose next run time is not after now.
	DueCron(ctx context.Context, now time.Time) ([]*models.TriggerDefinition, error)
	Save(ctx context.Context, trigger *models.TriggerDefinition) error
	// UpdateNextRun stores a cron trigger's next run time and leaves every
	// other field as it is in the store.
	UpdateNextRun(ctx context.Context, id string, next time.Time) error
}

// RecordOutcome is the trigger state after an execution was recorded.
type RecordOutcome struct {
	Trigger *models.TriggerDefinition
	// Disabled is true when this record tripped the circuit breaker.
	Disabled bool
}

type TriggerExecutionRepository interface {
	// Record appends the execution record and applies its outcome to the
	// trigger's failure counter in a single step.
	Record(ctx context.Context, record *models.TriggerExecutionRecord) (*RecordOutcome, error)
	ListByTrigger(ctx context.Context, triggerID string, limit int) ([]*models.TriggerExecutionRecord, error)
}
