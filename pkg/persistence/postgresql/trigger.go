package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/agentarea/agentarea/pkg/models"
	"github.com/agentarea/agentarea/pkg/persistence"
)

// TriggerRepository keeps the full definition in a JSONB column and mirrors
// the fields the scheduler and webhook lookup query on.
type TriggerRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const selectTrigger = `SELECT definition FROM triggers`

func (r *TriggerRepository) GetByID(ctx context.Context, id string) (*models.TriggerDefinition, error) {
	return getTrigger(ctx, r.db, "GetByID", id, selectTrigger+" WHERE id = $1", id)
}

func (r *TriggerRepository) GetByWebhookID(ctx context.Context, webhookID string) (*models.TriggerDefinition, error) {
	return getTrigger(ctx, r.db, "GetByWebhookID", webhookID, selectTrigger+" WHERE webhook_id = $1", webhookID)
}

func getTrigger(ctx context.Context, q queryer, op, id, query string, args ...any) (*models.TriggerDefinition, error) {
	var definition []byte

	if err := q.QueryRowContext(ctx, query, args...).Scan(&definition); err != nil {
		return nil, classify(op, "trigger", id, err, persistence.ErrTriggerNotFound)
	}

	var trigger models.TriggerDefinition
	if err := unmarshalJSON(definition, &trigger); err != nil {
		return nil, persistence.NewRepositoryError(op, "trigger", id, err)
	}

	return &trigger, nil
}

func (r *TriggerRepository) List(ctx context.Context) ([]*models.TriggerDefinition, error) {
	return r.list(ctx, "List", selectTrigger+" ORDER BY created_at")
}

func (r *TriggerRepository) DueCron(ctx context.Context, now time.Time) ([]*models.TriggerDefinition, error) {
	return r.list(ctx, "DueCron",
		selectTrigger+" WHERE is_active AND trigger_type = 'cron' AND next_run_time <= $1 ORDER BY next_run_time",
		now.UTC())
}

func (r *TriggerRepository) list(ctx context.Context, op, query string, args ...any) ([]*models.TriggerDefinition, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(op, "trigger", "", err, persistence.ErrTriggerNotFound)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	triggers := make([]*models.TriggerDefinition, 0)

	for rows.Next() {
		var definition []byte
		if err := rows.Scan(&definition); err != nil {
			return nil, fmt.Errorf("failed to scan trigger: %w", err)
		}

		var trigger models.TriggerDefinition
		if err := unmarshalJSON(definition, &trigger); err != nil {
			return nil, persistence.NewRepositoryError(op, "trigger", "", err)
		}

		triggers = append(triggers, &trigger)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating triggers: %w", err)
	}

	return triggers, nil
}

func (r *TriggerRepository) Save(ctx context.Context, trigger *models.TriggerDefinition) error {
	return saveTrigger(ctx, r.db, trigger)
}

func saveTrigger(ctx context.Context, q queryer, trigger *models.TriggerDefinition) error {
	now := time.Now().UTC()
	if trigger.CreatedAt.IsZero() {
		trigger.CreatedAt = now
	}

	if trigger.UpdatedAt.IsZero() {
		trigger.UpdatedAt = now
	}

	definition, err := json.Marshal(trigger)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger %s: %w", trigger.ID, err)
	}

	var webhookID sql.NullString
	if trigger.Webhook != nil && trigger.Webhook.WebhookID != "" {
		webhookID = sql.NullString{String: trigger.Webhook.WebhookID, Valid: true}
	}

	var nextRun sql.NullTime
	if trigger.Cron != nil && trigger.Cron.NextRunTime != nil {
		nextRun = sql.NullTime{Time: trigger.Cron.NextRunTime.UTC(), Valid: true}
	}

	query := `
		INSERT INTO triggers (id, agent_id, trigger_type, is_active, webhook_id, next_run_time,
			consecutive_failures, definition, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			agent_id = EXCLUDED.agent_id,
			trigger_type = EXCLUDED.trigger_type,
			is_active = EXCLUDED.is_active,
			webhook_id = EXCLUDED.webhook_id,
			next_run_time = EXCLUDED.next_run_time,
			consecutive_failures = EXCLUDED.consecutive_failures,
			definition = EXCLUDED.definition,
			updated_at = EXCLUDED.updated_at
	`

	_, err = q.ExecContext(ctx, query,
		trigger.ID, trigger.AgentID, string(trigger.TriggerType), trigger.IsActive, webhookID, nextRun,
		trigger.ConsecutiveFailures, string(definition), trigger.CreatedAt, trigger.UpdatedAt,
	)
	if err != nil {
		return classify("Save", "trigger", trigger.ID, err, persistence.ErrTriggerNotFound)
	}

	return nil
}

// UpdateNextRun touches only the schedule so a concurrent circuit breaker
// update of is_active and consecutive_failures is kept.
func (r *TriggerRepository) UpdateNextRun(ctx context.Context, id string, next time.Time) error {
	next = next.UTC()
	now := time.Now().UTC()

	nextJSON, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to marshal next run time: %w", err)
	}

	nowJSON, err := json.Marshal(now)
	if err != nil {
		return fmt.Errorf("failed to marshal updated time: %w", err)
	}

	query := `
		UPDATE triggers SET
			next_run_time = $2,
			definition = jsonb_set(jsonb_set(definition, '{cron,next_run_time}', $3::jsonb), '{updated_at}', $4::jsonb),
			updated_at = $5
		WHERE id = $1 AND trigger_type = 'cron'
	`

	result, err := r.db.ExecContext(ctx, query, id, next, string(nextJSON), string(nowJSON), now)
	if err != nil {
		return classify("UpdateNextRun", "trigger", id, err, persistence.ErrTriggerNotFound)
	}

	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return persistence.NewRepositoryError("UpdateNextRun", "trigger", id, persistence.ErrTriggerNotFound)
	}

	return nil
}
