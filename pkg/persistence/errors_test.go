package persistence

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRepositoryError(t *testing.T) {
	t.Parallel()

	err := NewRepositoryError("GetByID", "trigger", "t-1", ErrTriggerNotFound)

	assert.Equal(t, "GetByID operation failed for trigger t-1: trigger not found", err.Error())
	assert.True(t, IsTriggerNotFound(err))
	assert.True(t, IsNotFound(err))
	assert.False(t, IsAgentNotFound(err))
	assert.ErrorIs(t, fmt.Errorf("wrapped: %w", err), ErrTriggerNotFound)

	listErr := NewRepositoryError("List", "trigger", "", errors.New("timeout"))
	assert.Equal(t, "List operation failed for trigger: timeout", listErr.Error())
	assert.False(t, IsNotFound(listErr))
}

func TestIsHardDatabaseError(t *testing.T) {
	t.Parallel()

	hard := NewRepositoryError("Record", "trigger_execution", "t-1", fmt.Errorf("%w: duplicate key", ErrHardDatabase))

	assert.True(t, IsHardDatabaseError(hard))
	assert.False(t, IsHardDatabaseError(errors.New("connection reset")))
}
