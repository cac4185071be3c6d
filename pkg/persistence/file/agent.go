package file

import (
	"context"
	"time"

	"github.com/agentarea/agentarea/pkg/models"
	"github.com/agentarea/agentarea/pkg/persistence"
)

type AgentRepository struct {
	dir jsonDir
}

func (r *AgentRepository) GetByID(_ context.Context, id string) (*models.Agent, error) {
	var agent models.Agent

	found, err := r.dir.read(id, &agent)
	if err != nil {
		return nil, persistence.NewRepositoryError("GetByID", "agent", id, err)
	}

	if !found {
		return nil, persistence.NewRepositoryError("GetByID", "agent", id, persistence.ErrAgentNotFound)
	}

	return &agent, nil
}

func (r *AgentRepository) Save(_ context.Context, agent *models.Agent) error {
	now := time.Now().UTC()
	if agent.CreatedAt.IsZero() {
		agent.CreatedAt = now
	}

	agent.UpdatedAt = now

	if err := r.dir.write(agent.ID, agent); err != nil {
		return persistence.NewRepositoryError("Save", "agent", agent.ID, err)
	}

	return nil
}
