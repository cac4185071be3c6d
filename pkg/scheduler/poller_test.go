package scheduler_test

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/agentarea/agentarea/pkg/durable"
	"github.com/agentarea/agentarea/pkg/mocks"
	"github.com/agentarea/agentarea/pkg/models"
	"github.com/agentarea/agentarea/pkg/persistence"
	"github.com/agentarea/agentarea/pkg/persistence/file"
	"github.com/agentarea/agentarea/pkg/scheduler"
	"github.com/agentarea/agentarea/pkg/testutil"
	"github.com/agentarea/agentarea/pkg/triggers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 3, 10, 9, 0, 30, 0, time.UTC)

func ptr(t time.Time) *time.Time { return &t }

func cronTrigger(id string, active bool, next *time.Time) *models.TriggerDefinition {
	var opts []testutil.TriggerOption
	if !active {
		opts = append(opts, testutil.WithInactive())
	}

	if next != nil {
		opts = append(opts, testutil.WithNextRun(*next))
	}

	return testutil.CreateTestCronTrigger(id, opts...)
}

func setup(t *testing.T, defs ...*models.TriggerDefinition) (persistence.TriggerRepository, *mocks.MockWorkflowEngine, *scheduler.Poller) {
	t.Helper()

	repo := file.NewPersistence(t.TempDir()).Triggers()
	for _, def := range defs {
		require.NoError(t, repo.Save(t.Context(), def))
	}

	engine := &mocks.MockWorkflowEngine{}
	t.Cleanup(func() { engine.AssertExpectations(t) })

	poller := scheduler.NewPoller(repo, engine, slog.Default(), scheduler.WithClock(func() time.Time { return now }))

	return repo, engine, poller
}

func TestPoller_Prime(t *testing.T) {
	t.Parallel()

	scheduled := ptr(now.Add(time.Hour))
	repo, _, poller := setup(t,
		cronTrigger("fresh", true, nil),
		cronTrigger("scheduled", true, scheduled),
		cronTrigger("inactive", false, nil),
	)

	require.NoError(t, poller.Prime(t.Context()))

	fresh, err := repo.GetByID(t.Context(), "fresh")
	require.NoError(t, err)
	require.NotNil(t, fresh.Cron.NextRunTime)
	assert.Equal(t, time.Date(2025, 3, 10, 9, 5, 0, 0, time.UTC), fresh.Cron.NextRunTime.UTC())

	kept, err := repo.GetByID(t.Context(), "scheduled")
	require.NoError(t, err)
	assert.True(t, scheduled.Equal(*kept.Cron.NextRunTime))

	inactive, err := repo.GetByID(t.Context(), "inactive")
	require.NoError(t, err)
	assert.Nil(t, inactive.Cron.NextRunTime)
}

func TestPoller_PollStartsDueTriggers(t *testing.T) {
	t.Parallel()

	dueAt := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	repo, engine, poller := setup(t,
		cronTrigger("due", true, ptr(dueAt)),
		cronTrigger("later", true, ptr(now.Add(time.Hour))),
	)

	wantID := triggers.WorkflowID("due", triggers.SourceCron, dueAt)
	engine.On("StartWorkflow", mock.Anything, durable.StartOptions{ID: wantID, Workflow: triggers.WorkflowName},
		mock.MatchedBy(func(input triggers.TriggerExecutionInput) bool {
			return input.TriggerID == "due" &&
				input.ExecutionData.Source == triggers.SourceCron &&
				input.ExecutionData.EventData["scheduled_for"] == "2025-03-10T09:00:00Z"
		})).
		Return(&durable.Run{WorkflowID: wantID, RunID: "run-1"}, nil).Once()

	assert.Equal(t, 1, poller.Poll(t.Context()))

	due, err := repo.GetByID(t.Context(), "due")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 10, 9, 5, 0, 0, time.UTC), due.Cron.NextRunTime.UTC())
}

func TestPoller_StartFailureKeepsSchedule(t *testing.T) {
	t.Parallel()

	dueAt := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	repo, engine, poller := setup(t, cronTrigger("due", true, ptr(dueAt)))

	engine.On("StartWorkflow", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("engine unavailable")).Once()

	assert.Equal(t, 0, poller.Poll(t.Context()))

	due, err := repo.GetByID(t.Context(), "due")
	require.NoError(t, err)
	assert.True(t, dueAt.Equal(*due.Cron.NextRunTime))
}

func TestPoller_StartStop(t *testing.T) {
	t.Parallel()

	_, _, poller := setup(t)

	require.NoError(t, poller.Start(t.Context()))
	require.NoError(t, poller.Start(t.Context()))
	poller.Stop()
	poller.Stop()
}

func TestPoller_PollKeepsBreakerTrip(t *testing.T) {
	t.Parallel()

	dueAt := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	trigger := cronTrigger("flaky", true, ptr(dueAt))
	trigger.FailureThreshold = 5
	trigger.ConsecutiveFailures = 4

	store := file.NewPersistence(t.TempDir())
	require.NoError(t, store.Triggers().Save(t.Context(), trigger))

	engine := &mocks.MockWorkflowEngine{}
	t.Cleanup(func() { engine.AssertExpectations(t) })

	// The previous firing records its fifth failure while this poll is
	// starting the next run.
	engine.On("StartWorkflow", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			outcome, err := store.TriggerExecutions().Record(t.Context(), &models.TriggerExecutionRecord{
				ID:         "previous-run",
				TriggerID:  "flaky",
				ExecutedAt: dueAt.Add(-5 * time.Minute),
				Status:     models.ExecutionStatusFailed,
			})
			require.NoError(t, err)
			require.True(t, outcome.Disabled)
		}).
		Return(&durable.Run{WorkflowID: "wf", RunID: "run-1"}, nil).Once()

	poller := scheduler.NewPoller(store.Triggers(), engine, slog.Default(), scheduler.WithClock(func() time.Time { return now }))

	assert.Equal(t, 1, poller.Poll(t.Context()))

	stored, err := store.Triggers().GetByID(t.Context(), "flaky")
	require.NoError(t, err)
	assert.False(t, stored.IsActive)
	assert.Equal(t, 5, stored.ConsecutiveFailures)
	assert.Equal(t, time.Date(2025, 3, 10, 9, 5, 0, 0, time.UTC), stored.Cron.NextRunTime.UTC())
}
