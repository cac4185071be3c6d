package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agentarea/agentarea/pkg/models"
	"github.com/agentarea/agentarea/pkg/persistence"
)

type TaskRepository struct {
	db *sql.DB
}

func (r *TaskRepository) GetByID(ctx context.Context, id string) (*models.Task, error) {
	query := `
		SELECT id, agent_id, query, parameters, status, workflow_id, run_id, user_id, workspace_id,
			created_at, updated_at, result
		FROM tasks WHERE id = $1
	`

	var (
		task       models.Task
		parameters []byte
		result     []byte
	)

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&task.ID, &task.AgentID, &task.Query, &parameters, &task.Status,
		&task.WorkflowID, &task.RunID, &task.UserID, &task.WorkspaceID, &task.CreatedAt, &task.UpdatedAt,
		&result,
	)
	if err != nil {
		return nil, classify("GetByID", "task", id, err, persistence.ErrTaskNotFound)
	}

	if err := unmarshalJSON(parameters, &task.Parameters); err != nil {
		return nil, persistence.NewRepositoryError("GetByID", "task", id, err)
	}

	if len(result) > 0 {
		if err := json.Unmarshal(result, &task.Result); err != nil {
			return nil, persistence.NewRepositoryError("GetByID", "task", id, err)
		}
	}

	return &task, nil
}

// Save upserts the task. A stored task in a terminal status is left unchanged.
func (r *TaskRepository) Save(ctx context.Context, task *models.Task) error {
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}

	if task.UpdatedAt.IsZero() {
		task.UpdatedAt = task.CreatedAt
	}

	parameters, err := marshalJSON(task.Parameters)
	if err != nil {
		return fmt.Errorf("failed to marshal task parameters: %w", err)
	}

	var result sql.NullString

	if task.Result != nil {
		raw, err := json.Marshal(task.Result)
		if err != nil {
			return fmt.Errorf("failed to marshal task result: %w", err)
		}

		result = sql.NullString{String: string(raw), Valid: true}
	}

	query := `
		INSERT INTO tasks (id, agent_id, query, parameters, status, workflow_id, run_id, user_id, workspace_id,
			created_at, updated_at, result)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			workflow_id = EXCLUDED.workflow_id,
			run_id = EXCLUDED.run_id,
			updated_at = EXCLUDED.updated_at,
			result = EXCLUDED.result
		WHERE tasks.status NOT IN ('completed', 'failed', 'cancelled')
	`

	_, err = r.db.ExecContext(ctx, query,
		task.ID, task.AgentID, task.Query, parameters, string(task.Status),
		task.WorkflowID, task.RunID, task.UserID, task.WorkspaceID, task.CreatedAt, task.UpdatedAt, result,
	)
	if err != nil {
		return classify("Save", "task", task.ID, err, persistence.ErrTaskNotFound)
	}

	return nil
}
