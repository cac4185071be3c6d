package file

import (
	"context"
	"sync"
	"time"

	"github.com/agentarea/agentarea/pkg/models"
	"github.com/agentarea/agentarea/pkg/persistence"
)

type TaskRepository struct {
	dir jsonDir
	mu  *sync.Mutex
}

func (r *TaskRepository) GetByID(_ context.Context, id string) (*models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.get(id)
}

func (r *TaskRepository) get(id string) (*models.Task, error) {
	var task models.Task

	found, err := r.dir.read(id, &task)
	if err != nil {
		return nil, persistence.NewRepositoryError("GetByID", "task", id, err)
	}

	if !found {
		return nil, persistence.NewRepositoryError("GetByID", "task", id, persistence.ErrTaskNotFound)
	}

	return &task, nil
}

// Save creates or replaces the task. A stored task in a terminal status is
// left unchanged.
func (r *TaskRepository) Save(_ context.Context, task *models.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, err := r.get(task.ID)
	switch {
	case err == nil && stored.Status.IsTerminal():
		return nil
	case err != nil && !persistence.IsTaskNotFound(err):
		return err
	}

	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}

	if task.UpdatedAt.IsZero() {
		task.UpdatedAt = task.CreatedAt
	}

	if err := r.dir.write(task.ID, task); err != nil {
		return persistence.NewRepositoryError("Save", "task", task.ID, err)
	}

	return nil
}
