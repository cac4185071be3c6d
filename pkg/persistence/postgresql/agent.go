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

type AgentRepository struct {
	db *sql.DB
}

func (r *AgentRepository) GetByID(ctx context.Context, id string) (*models.Agent, error) {
	query := `
		SELECT id, name, description, instruction, model_id, tools, events_config, planning,
			temperature, max_tokens, workspace_id, created_by, created_at, updated_at
		FROM agents WHERE id = $1
	`

	var (
		agent        models.Agent
		tools        []byte
		eventsConfig []byte
		temperature  sql.NullFloat64
		maxTokens    sql.NullInt64
	)

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&agent.ID, &agent.Name, &agent.Description, &agent.Instruction, &agent.ModelID,
		&tools, &eventsConfig, &agent.Planning, &temperature, &maxTokens,
		&agent.WorkspaceID, &agent.CreatedBy, &agent.CreatedAt, &agent.UpdatedAt,
	)
	if err != nil {
		return nil, classify("GetByID", "agent", id, err, persistence.ErrAgentNotFound)
	}

	if err := unmarshalJSON(tools, &agent.Tools); err != nil {
		return nil, classify("GetByID", "agent", id, err, persistence.ErrAgentNotFound)
	}

	if err := unmarshalJSON(eventsConfig, &agent.EventsConfig); err != nil {
		return nil, classify("GetByID", "agent", id, err, persistence.ErrAgentNotFound)
	}

	if temperature.Valid {
		agent.Temperature = &temperature.Float64
	}

	if maxTokens.Valid {
		n := int(maxTokens.Int64)
		agent.MaxTokens = &n
	}

	return &agent, nil
}

func (r *AgentRepository) Save(ctx context.Context, agent *models.Agent) error {
	now := time.Now().UTC()
	if agent.CreatedAt.IsZero() {
		agent.CreatedAt = now
	}

	agent.UpdatedAt = now

	tools := agent.Tools
	if tools == nil {
		tools = []string{}
	}

	toolsJSON, err := json.Marshal(tools)
	if err != nil {
		return fmt.Errorf("failed to marshal agent tools: %w", err)
	}

	eventsConfig, err := marshalJSON(agent.EventsConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal agent events config: %w", err)
	}

	query := `
		INSERT INTO agents (id, name, description, instruction, model_id, tools, events_config, planning,
			temperature, max_tokens, workspace_id, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			instruction = EXCLUDED.instruction,
			model_id = EXCLUDED.model_id,
			tools = EXCLUDED.tools,
			events_config = EXCLUDED.events_config,
			planning = EXCLUDED.planning,
			temperature = EXCLUDED.temperature,
			max_tokens = EXCLUDED.max_tokens,
			workspace_id = EXCLUDED.workspace_id,
			updated_at = EXCLUDED.updated_at
	`

	var maxTokens sql.NullInt64
	if agent.MaxTokens != nil {
		maxTokens = sql.NullInt64{Int64: int64(*agent.MaxTokens), Valid: true}
	}

	var temperature sql.NullFloat64
	if agent.Temperature != nil {
		temperature = sql.NullFloat64{Float64: *agent.Temperature, Valid: true}
	}

	_, err = r.db.ExecContext(ctx, query,
		agent.ID, agent.Name, agent.Description, agent.Instruction, agent.ModelID,
		string(toolsJSON), eventsConfig, agent.Planning, temperature, maxTokens,
		agent.WorkspaceID, agent.CreatedBy, agent.CreatedAt, agent.UpdatedAt,
	)
	if err != nil {
		return classify("Save", "agent", agent.ID, err, persistence.ErrAgentNotFound)
	}

	return nil
}

// marshalJSON encodes value for a nullable JSONB column.
func marshalJSON[T any](value map[string]T) (sql.NullString, error) {
	if value == nil {
		return sql.NullString{}, nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return sql.NullString{}, err
	}

	return sql.NullString{String: string(data), Valid: true}, nil
}

func unmarshalJSON(data []byte, target any) error {
	if len(data) == 0 {
		return nil
	}

	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %w", persistence.ErrHardDatabase, err)
	}

	return nil
}
