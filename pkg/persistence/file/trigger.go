package file

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/agentarea/agentarea/pkg/models"
	"github.com/agentarea/agentarea/pkg/persistence"
)

var errNotCron = errors.New("trigger has no cron config")

type TriggerRepository struct {
	dir jsonDir
	mu  *sync.Mutex
}

func (r *TriggerRepository) GetByID(_ context.Context, id string) (*models.TriggerDefinition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.get(id)
}

func (r *TriggerRepository) get(id string) (*models.TriggerDefinition, error) {
	var trigger models.TriggerDefinition

	found, err := r.dir.read(id, &trigger)
	if err != nil {
		return nil, persistence.NewRepositoryError("GetByID", "trigger", id, err)
	}

	if !found {
		return nil, persistence.NewRepositoryError("GetByID", "trigger", id, persistence.ErrTriggerNotFound)
	}

	return &trigger, nil
}

func (r *TriggerRepository) GetByWebhookID(ctx context.Context, webhookID string) (*models.TriggerDefinition, error) {
	triggers, err := r.List(ctx)
	if err != nil {
		return nil, err
	}

	for _, trigger := range triggers {
		if trigger.Webhook != nil && trigger.Webhook.WebhookID == webhookID {
			return trigger, nil
		}
	}

	return nil, persistence.NewRepositoryError("GetByWebhookID", "trigger", webhookID, persistence.ErrTriggerNotFound)
}

func (r *TriggerRepository) List(_ context.Context) ([]*models.TriggerDefinition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids, err := r.dir.ids()
	if err != nil {
		return nil, persistence.NewRepositoryError("List", "trigger", "", err)
	}

	triggers := make([]*models.TriggerDefinition, 0, len(ids))

	for _, id := range ids {
		trigger, err := r.get(id)
		if err != nil {
			return nil, fmt.Errorf("failed to load trigger %s: %w", id, err)
		}

		triggers = append(triggers, trigger)
	}

	return triggers, nil
}

func (r *TriggerRepository) DueCron(ctx context.Context, now time.Time) ([]*models.TriggerDefinition, error) {
	triggers, err := r.List(ctx)
	if err != nil {
		return nil, err
	}

	due := make([]*models.TriggerDefinition, 0)

	for _, trigger := range triggers {
		if trigger.IsActive && trigger.TriggerType == models.TriggerTypeCron && trigger.Cron != nil && trigger.Cron.IsDue(now) {
			due = append(due, trigger)
		}
	}

	return due, nil
}

func (r *TriggerRepository) Save(_ context.Context, trigger *models.TriggerDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.save(trigger)
}

func (r *TriggerRepository) UpdateNextRun(_ context.Context, id string, next time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	trigger, err := r.get(id)
	if err != nil {
		return err
	}

	if trigger.Cron == nil {
		return persistence.NewRepositoryError("UpdateNextRun", "trigger", id, errNotCron)
	}

	next = next.UTC()
	trigger.Cron.NextRunTime = &next
	trigger.UpdatedAt = time.Now().UTC()

	return r.save(trigger)
}

func (r *TriggerRepository) save(trigger *models.TriggerDefinition) error {
	now := time.Now().UTC()
	if trigger.CreatedAt.IsZero() {
		trigger.CreatedAt = now
	}

	if trigger.UpdatedAt.IsZero() {
		trigger.UpdatedAt = now
	}

	if err := r.dir.write(trigger.ID, trigger); err != nil {
		return persistence.NewRepositoryError("Save", "trigger", trigger.ID, err)
	}

	return nil
}
