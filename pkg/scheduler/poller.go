// Package scheduler fires cron triggers by polling for due schedules and
// starting a trigger execution workflow for each one.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/agentarea/agentarea/pkg/durable"
	"github.com/agentarea/agentarea/pkg/models"
	"github.com/agentarea/agentarea/pkg/persistence"
	"github.com/agentarea/agentarea/pkg/triggers"
)

const DefaultInterval = 30 * time.Second

// WorkflowStarter is implemented by durable.Engine.
type WorkflowStarter interface {
	StartWorkflow(ctx context.Context, opts durable.StartOptions, input any) (*durable.Run, error)
}

// Poller checks the trigger store for due cron triggers. Every trigger with
// a cron config is evaluated against its own expression, so one poller
// serves all schedules.
type Poller struct {
	triggers persistence.TriggerRepository
	starter  WorkflowStarter
	interval time.Duration
	clock    func() time.Time
	logger   *slog.Logger

	mu      sync.Mutex
	started bool
	done    chan struct{}
	wg      sync.WaitGroup
}

type Option func(*Poller)

func WithInterval(interval time.Duration) Option {
	return func(p *Poller) {
		if interval > 0 {
			p.interval = interval
		}
	}
}

func WithClock(clock func() time.Time) Option {
	return func(p *Poller) {
		p.clock = clock
	}
}

func NewPoller(repo persistence.TriggerRepository, starter WorkflowStarter, logger *slog.Logger, opts ...Option) *Poller {
	p := &Poller{
		triggers: repo,
		starter:  starter,
		interval: DefaultInterval,
		clock:    time.Now,
		logger:   logger.With("module", "scheduler"),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Start primes unscheduled cron triggers and begins polling in the
// background. Calling Start on a running poller does nothing.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return nil
	}

	if err := p.Prime(ctx); err != nil {
		return err
	}

	p.done = make(chan struct{})
	p.started = true

	p.wg.Add(1)

	go p.loop(ctx)

	p.logger.Info("Cron poller started", "interval", p.interval)

	return nil
}

// Stop ends polling and waits for an in-flight poll to finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}

	close(p.done)
	p.wg.Wait()

	p.started = false
	p.logger.Info("Cron poller stopped")
}

func (p *Poller) loop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}

// Prime computes the first run time of every active cron trigger that has
// none yet. Triggers with an invalid schedule are logged and left alone.
func (p *Poller) Prime(ctx context.Context) error {
	all, err := p.triggers.List(ctx)
	if err != nil {
		return err
	}

	now := p.clock().UTC()

	for _, trigger := range all {
		if !trigger.IsActive || trigger.TriggerType != models.TriggerTypeCron || trigger.Cron == nil {
			continue
		}

		if trigger.Cron.NextRunTime != nil {
			continue
		}

		if err := trigger.Cron.Advance(now); err != nil {
			p.logger.Error("Invalid cron schedule", "trigger_id", trigger.ID, "error", err)

			continue
		}

		if err := p.triggers.UpdateNextRun(ctx, trigger.ID, *trigger.Cron.NextRunTime); err != nil {
			p.logger.Error("Failed to save cron schedule", "trigger_id", trigger.ID, "error", err)

			continue
		}

		p.logger.Info("Cron trigger scheduled", "trigger_id", trigger.ID, "next_run_time", trigger.Cron.NextRunTime)
	}

	return nil
}

// Poll starts a workflow for every due cron trigger and moves its schedule
// forward. It returns how many workflows were started.
func (p *Poller) Poll(ctx context.Context) int {
	now := p.clock().UTC()

	due, err := p.triggers.DueCron(ctx, now)
	if err != nil {
		p.logger.Error("Failed to get due cron triggers", "error", err)

		return 0
	}

	if len(due) > 0 {
		p.logger.Info("Processing due cron triggers", "count", len(due))
	}

	started := 0

	for _, trigger := range due {
		dueAt := *trigger.Cron.NextRunTime

		if err := p.fire(ctx, trigger, dueAt, now); err != nil {
			p.logger.Error("Failed to start trigger workflow", "trigger_id", trigger.ID, "error", err)

			continue
		}

		started++

		// Missed activations are skipped; the next run is computed from now.
		if err := trigger.Cron.Advance(now); err != nil {
			p.logger.Error("Failed to compute next run time", "trigger_id", trigger.ID, "error", err)

			continue
		}

		// Only the schedule is written back. The trigger may have been
		// disabled since it was loaded.
		if err := p.triggers.UpdateNextRun(ctx, trigger.ID, *trigger.Cron.NextRunTime); err != nil {
			p.logger.Error("Failed to save cron schedule", "trigger_id", trigger.ID, "error", err)
		}
	}

	return started
}

func (p *Poller) fire(ctx context.Context, trigger *models.TriggerDefinition, dueAt, now time.Time) error {
	input := triggers.TriggerExecutionInput{
		TriggerID: trigger.ID,
		ExecutionData: triggers.ExecutionData{
			Timestamp: now,
			Source:    triggers.SourceCron,
			EventData: map[string]any{
				"cron_expression": trigger.Cron.CronExpression,
				"scheduled_for":   dueAt.Format(time.RFC3339),
			},
		},
	}

	run, err := p.starter.StartWorkflow(ctx, durable.StartOptions{
		ID:       triggers.WorkflowID(trigger.ID, triggers.SourceCron, dueAt),
		Workflow: triggers.WorkflowName,
	}, input)
	if err != nil {
		return err
	}

	p.logger.Info("Cron trigger fired",
		"trigger_id", trigger.ID,
		"workflow_id", run.WorkflowID,
		"already_running", run.AlreadyRunning,
		"scheduled_for", dueAt)

	return nil
}
