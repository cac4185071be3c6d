package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/agentarea/agentarea/pkg/models"
	"github.com/agentarea/agentarea/pkg/persistence"
	"github.com/google/uuid"
)

type TriggerExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// Record locks the trigger row, appends the record and stores the updated
// failure counter in one transaction.
func (r *TriggerExecutionRepository) Record(ctx context.Context, record *models.TriggerExecutionRecord) (*persistence.RecordOutcome, error) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify("Record", "trigger execution", record.ID, err, persistence.ErrTriggerNotFound)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	trigger, err := getTrigger(ctx, tx, "Record", record.TriggerID, selectTrigger+" WHERE id = $1 FOR UPDATE", record.TriggerID)
	if err != nil {
		return nil, err
	}

	triggerData, err := marshalJSON(record.TriggerData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal trigger data: %w", err)
	}

	query := `
		INSERT INTO trigger_executions (id, trigger_id, executed_at, status, task_id, execution_time_ms,
			error_message, trigger_data, workflow_id, run_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`

	result, err := tx.ExecContext(ctx, query,
		record.ID, record.TriggerID, record.ExecutedAt.UTC(), string(record.Status), record.TaskID,
		record.ExecutionTimeMs, record.ErrorMessage, triggerData, record.WorkflowID, record.RunID,
	)
	if err != nil {
		return nil, classify("Record", "trigger execution", record.ID, err, persistence.ErrTriggerNotFound)
	}

	// A retried activity may record the same execution twice. Only the
	// first insert moves the failure counter.
	if inserted, err := result.RowsAffected(); err == nil && inserted == 0 {
		return &persistence.RecordOutcome{Trigger: trigger}, nil
	}

	disabled := trigger.ApplyExecution(record.Status, record.ExecutedAt)

	if err := saveTrigger(ctx, tx, trigger); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, classify("Record", "trigger execution", record.ID, err, persistence.ErrTriggerNotFound)
	}

	if disabled {
		r.logger.WarnContext(ctx, "Trigger disabled by circuit breaker",
			"trigger_id", trigger.ID,
			"consecutive_failures", trigger.ConsecutiveFailures,
		)
	}

	return &persistence.RecordOutcome{Trigger: trigger, Disabled: disabled}, nil
}

func (r *TriggerExecutionRepository) ListByTrigger(ctx context.Context, triggerID string, limit int) ([]*models.TriggerExecutionRecord, error) {
	query := `
		SELECT id, trigger_id, executed_at, status, task_id, execution_time_ms, error_message,
			trigger_data, workflow_id, run_id
		FROM trigger_executions WHERE trigger_id = $1 ORDER BY executed_at DESC
	`
	args := []any{triggerID}

	if limit > 0 {
		query += " LIMIT $2"

		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("ListByTrigger", "trigger execution", triggerID, err, persistence.ErrTriggerNotFound)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	records := make([]*models.TriggerExecutionRecord, 0)

	for rows.Next() {
		var (
			record      models.TriggerExecutionRecord
			triggerData []byte
		)

		err := rows.Scan(
			&record.ID, &record.TriggerID, &record.ExecutedAt, &record.Status, &record.TaskID,
			&record.ExecutionTimeMs, &record.ErrorMessage, &triggerData, &record.WorkflowID, &record.RunID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trigger execution: %w", err)
		}

		if err := unmarshalJSON(triggerData, &record.TriggerData); err != nil {
			return nil, persistence.NewRepositoryError("ListByTrigger", "trigger execution", record.ID, err)
		}

		records = append(records, &record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trigger executions: %w", err)
	}

	return records, nil
}
