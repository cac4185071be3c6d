// Package file provides file-based persistence for agents, tasks and triggers.
package file

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/agentarea/agentarea/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using the file system.
type Persistence struct {
	root       string
	agents     *AgentRepository
	tasks      *TaskRepository
	triggers   *TriggerRepository
	executions *TriggerExecutionRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) persistence.Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	// Recording an execution rewrites the trigger file, so triggers and
	// executions share one lock.
	triggerMu := &sync.Mutex{}

	return &Persistence{
		root:       cleanRoot,
		agents:     &AgentRepository{dir: jsonDir{root: cleanRoot, name: "agents"}},
		tasks:      &TaskRepository{dir: jsonDir{root: cleanRoot, name: "tasks"}, mu: &sync.Mutex{}},
		triggers:   &TriggerRepository{dir: jsonDir{root: cleanRoot, name: "triggers"}, mu: triggerMu},
		executions: &TriggerExecutionRepository{root: cleanRoot, mu: triggerMu},
	}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) Agents() persistence.AgentRepository {
	return fp.agents
}

func (fp *Persistence) Tasks() persistence.TaskRepository {
	return fp.tasks
}

func (fp *Persistence) Triggers() persistence.TriggerRepository {
	return fp.triggers
}

func (fp *Persistence) TriggerExecutions() persistence.TriggerExecutionRepository {
	return fp.executions
}
