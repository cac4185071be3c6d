package durable

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"
)

// Context is the only way workflow code interacts with the outside world.
// Every method is recorded in history and replays identically after a restart.
type Context interface {
	Info() WorkflowInfo
	// Now returns the time of the most recent history event.
	Now() time.Time
	IsReplaying() bool
	Logger() *slog.Logger
	// ExecuteActivity runs the named activity with retries and decodes its result into result.
	ExecuteActivity(name string, opts ActivityOptions, input any, result any) error
	Sleep(d time.Duration) error
	// ReceiveSignal reports whether a signal with the given name is pending and consumes it.
	ReceiveSignal(name string) bool
	SetQueryHandler(name string, handler QueryHandler)
}

type QueryHandler func() (any, error)

type WorkflowInfo struct {
	WorkflowID   string
	RunID        string
	WorkflowName string
	StartedAt    time.Time
}

type workflowContext struct {
	engine  *Engine
	run     *workflowRun
	info    WorkflowInfo
	history []HistoryEvent
	seq     int
	now     time.Time
	err     error

	logger *slog.Logger
	silent *slog.Logger
}

func newWorkflowContext(engine *Engine, run *workflowRun, history []HistoryEvent) *workflowContext {
	info := WorkflowInfo{
		WorkflowID:   run.info.WorkflowID,
		RunID:        run.info.RunID,
		WorkflowName: run.info.WorkflowName,
		StartedAt:    run.info.StartedAt,
	}

	return &workflowContext{
		engine:  engine,
		run:     run,
		info:    info,
		history: history,
		now:     run.info.StartedAt,
		logger: engine.logger.With(
			"workflow_id", info.WorkflowID,
			"run_id", info.RunID,
			"workflow", info.WorkflowName,
		),
		silent: slog.New(slog.DiscardHandler),
	}
}

func (c *workflowContext) Info() WorkflowInfo { return c.info }

func (c *workflowContext) Now() time.Time { return c.now }

func (c *workflowContext) IsReplaying() bool { return c.seq < len(c.history) }

func (c *workflowContext) Logger() *slog.Logger {
	if c.IsReplaying() {
		return c.silent
	}

	return c.logger
}

func (c *workflowContext) SetQueryHandler(name string, handler QueryHandler) {
	c.run.setQueryHandler(name, handler)
}

// replay returns the next recorded event when one exists. A recorded event
// that does not match the requested step poisons the context.
func (c *workflowContext) replay(name string, types ...EventType) (*HistoryEvent, error) {
	if c.err != nil {
		return nil, c.err
	}

	if !c.IsReplaying() {
		return nil, nil
	}

	event := c.history[c.seq]
	if event.Name != name || !slices.Contains(types, event.Type) {
		c.err = fmt.Errorf("%w: step %d recorded %s %q, workflow requested %s %q",
			ErrNondeterministic, c.seq, event.Type, event.Name, types[0], name)

		return nil, c.err
	}

	c.seq++
	c.now = event.Timestamp

	return &event, nil
}

func (c *workflowContext) record(event HistoryEvent) error {
	event.Seq = c.seq
	event.Timestamp = c.engine.clock()

	if err := c.engine.store.AppendEvent(c.run.ctx, c.info.WorkflowID, c.info.RunID, event); err != nil {
		if c.run.ctx.Err() != nil {
			c.err = ErrEngineStopped
		} else {
			c.err = fmt.Errorf("record %s %q: %w", event.Type, event.Name, err)
		}

		return c.err
	}

	c.history = append(c.history, event)
	c.seq++
	c.now = event.Timestamp

	return nil
}

func (c *workflowContext) ExecuteActivity(name string, opts ActivityOptions, input any, result any) error {
	event, err := c.replay(name, EventActivityCompleted, EventActivityFailed)
	if err != nil {
		return err
	}

	if event == nil {
		payload, err := json.Marshal(input)
		if err != nil {
			return NewNonRetryableError(ErrTypeInvalidInput, "encode activity input", err)
		}

		c.run.mu.Unlock()
		output, failure, attempts, err := c.engine.executeActivity(c.run.ctx, c.info, name, opts, payload)
		c.run.mu.Lock()

		if err != nil {
			c.err = err

			return err
		}

		recorded := HistoryEvent{Type: EventActivityCompleted, Name: name, Payload: output, Attempts: attempts}
		if failure != nil {
			recorded = HistoryEvent{Type: EventActivityFailed, Name: name, Failure: failure, Attempts: attempts}
		}

		if err := c.record(recorded); err != nil {
			return err
		}

		event = &c.history[len(c.history)-1]
	}

	if event.Type == EventActivityFailed {
		return &ActivityError{ActivityName: name, Attempts: event.Attempts, Cause: event.Failure.Err()}
	}

	if result == nil || len(event.Payload) == 0 {
		return nil
	}

	if err := json.Unmarshal(event.Payload, result); err != nil {
		return NewNonRetryableError(ErrTypeInvalidInput, fmt.Sprintf("decode %s result", name), err)
	}

	return nil
}

func (c *workflowContext) Sleep(d time.Duration) error {
	name := d.String()

	event, err := c.replay(name, EventTimerFired)
	if err != nil || event != nil {
		return err
	}

	c.run.mu.Unlock()
	timer := time.NewTimer(d)
	select {
	case <-timer.C:
	case <-c.run.ctx.Done():
		timer.Stop()
	}
	c.run.mu.Lock()

	if c.run.ctx.Err() != nil {
		c.err = ErrEngineStopped

		return c.err
	}

	return c.record(HistoryEvent{Type: EventTimerFired, Name: name})
}

func (c *workflowContext) ReceiveSignal(name string) bool {
	event, err := c.replay(name, EventSignalChecked)
	if err != nil {
		return false
	}

	if event != nil {
		return string(event.Payload) == "true"
	}

	received := c.run.takeSignal(name)

	payload := json.RawMessage("false")
	if received {
		payload = json.RawMessage("true")
	}

	if err := c.record(HistoryEvent{Type: EventSignalChecked, Name: name, Payload: payload}); err != nil {
		return false
	}

	return received
}

func isEngineStopped(err error) bool {
	return errors.Is(err, ErrEngineStopped)
}
