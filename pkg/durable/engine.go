// Package durable implements an event-sourced workflow engine. Workflow code
// runs deterministically against a recorded history; activities perform the
// side effects and are retried according to their RetryPolicy.
package durable

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/agentarea/agentarea/pkg/log"
	"github.com/agentarea/agentarea/pkg/metrics"
	"github.com/agentarea/agentarea/pkg/otelhelper"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultMaxConcurrentActivities = 32
	resultPollInterval             = 50 * time.Millisecond
	closeRunTimeout                = 10 * time.Second
)

// WorkflowFunc is deterministic workflow code. It must only interact with the
// outside world through ctx.
type WorkflowFunc func(ctx Context, input json.RawMessage) (any, error)

// Workflow adapts a typed function to WorkflowFunc.
func Workflow[I any, O any](fn func(ctx Context, input I) (O, error)) WorkflowFunc {
	return func(ctx Context, raw json.RawMessage) (any, error) {
		var input I

		if err := decodeInput(raw, &input); err != nil {
			return nil, NewNonRetryableError(ErrTypeInvalidInput, "decode workflow input", err)
		}

		return fn(ctx, input)
	}
}

type StartOptions struct {
	ID       string
	Workflow string
}

// Run identifies a started workflow. AlreadyRunning is set when a run with
// the same workflow ID was already open.
type Run struct {
	WorkflowID     string `json:"workflow_id"`
	RunID          string `json:"run_id"`
	AlreadyRunning bool   `json:"already_running"`
}

type Option func(*Engine)

func WithMaxConcurrentActivities(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.slots = make(chan struct{}, n)
		}
	}
}

func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = tracer
	}
}

type Engine struct {
	store  HistoryStore
	base   *slog.Logger
	logger *slog.Logger
	tracer trace.Tracer
	clock  func() time.Time
	slots  chan struct{}

	registryMu sync.RWMutex
	workflows  map[string]WorkflowFunc
	activities map[string]ActivityFunc

	mu   sync.Mutex
	runs map[string]*workflowRun

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewEngine(store HistoryStore, logger *slog.Logger, opts ...Option) *Engine {
	ctx, cancel := context.WithCancel(context.Background())

	e := &Engine{
		store:      store,
		base:       logger,
		logger:     logger.With("module", "durable"),
		tracer:     otelhelper.NoopTracer(),
		clock:      time.Now,
		slots:      make(chan struct{}, defaultMaxConcurrentActivities),
		workflows:  make(map[string]WorkflowFunc),
		activities: make(map[string]ActivityFunc),
		runs:       make(map[string]*workflowRun),
		ctx:        ctx,
		cancel:     cancel,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

func (e *Engine) RegisterWorkflow(name string, fn WorkflowFunc) {
	e.registryMu.Lock()
	defer e.registryMu.Unlock()

	e.workflows[name] = fn
}

func (e *Engine) RegisterActivity(name string, fn ActivityFunc) {
	e.registryMu.Lock()
	defer e.registryMu.Unlock()

	e.activities[name] = fn
}

func (e *Engine) workflow(name string) (WorkflowFunc, bool) {
	e.registryMu.RLock()
	defer e.registryMu.RUnlock()

	fn, ok := e.workflows[name]

	return fn, ok
}

func (e *Engine) activity(name string) (ActivityFunc, bool) {
	e.registryMu.RLock()
	defer e.registryMu.RUnlock()

	fn, ok := e.activities[name]

	return fn, ok
}

// StartWorkflow creates a new run. Starting a workflow ID that is still
// running returns the existing run with AlreadyRunning set and no error.
func (e *Engine) StartWorkflow(ctx context.Context, opts StartOptions, input any) (*Run, error) {
	fn, ok := e.workflow(opts.Workflow)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownWorkflow, opts.Workflow)
	}

	if e.ctx.Err() != nil {
		return nil, ErrEngineStopped
	}

	payload, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("encode workflow input: %w", err)
	}

	info := RunInfo{
		WorkflowID:   opts.ID,
		RunID:        uuid.NewString(),
		WorkflowName: opts.Workflow,
		Input:        payload,
		Status:       RunStatusRunning,
		StartedAt:    e.clock(),
	}

	existing, err := e.store.CreateRun(ctx, info)
	if errors.Is(err, ErrWorkflowAlreadyStarted) {
		e.logger.InfoContext(ctx, "Workflow already running", "workflow_id", opts.ID, "run_id", existing.RunID)

		return &Run{WorkflowID: existing.WorkflowID, RunID: existing.RunID, AlreadyRunning: true}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("create run %s: %w", opts.ID, err)
	}

	e.launch(info, fn)

	return &Run{WorkflowID: info.WorkflowID, RunID: info.RunID}, nil
}

// Resume replays every open run not already executing in this process.
func (e *Engine) Resume(ctx context.Context) error {
	open, err := e.store.OpenRuns(ctx)
	if err != nil {
		return fmt.Errorf("list open runs: %w", err)
	}

	for _, info := range open {
		if e.lookup(info.WorkflowID) != nil {
			continue
		}

		fn, ok := e.workflow(info.WorkflowName)
		if !ok {
			e.logger.WarnContext(ctx, "Skipping open run of unregistered workflow",
				"workflow_id", info.WorkflowID, "workflow", info.WorkflowName)

			continue
		}

		e.logger.InfoContext(ctx, "Resuming workflow run", "workflow_id", info.WorkflowID, "run_id", info.RunID)
		e.launch(info, fn)
	}

	return nil
}

func (e *Engine) SignalWorkflow(ctx context.Context, workflowID, signalName string) error {
	run := e.lookup(workflowID)
	if run == nil {
		if _, err := e.store.GetRun(ctx, workflowID); err != nil {
			return err
		}

		return fmt.Errorf("%w: %s", ErrWorkflowNotRunning, workflowID)
	}

	run.addSignal(signalName)

	return nil
}

// QueryWorkflow invokes a query handler registered by a running workflow and
// decodes its answer into result.
func (e *Engine) QueryWorkflow(ctx context.Context, workflowID, queryName string, result any) error {
	run := e.lookup(workflowID)
	if run == nil {
		if _, err := e.store.GetRun(ctx, workflowID); err != nil {
			return err
		}

		return fmt.Errorf("%w: %s", ErrWorkflowNotRunning, workflowID)
	}

	value, err := run.query(queryName)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode query result: %w", err)
	}

	if result == nil {
		return nil
	}

	return json.Unmarshal(payload, result)
}

// GetResult blocks until the workflow closes and decodes its result.
func (e *Engine) GetResult(ctx context.Context, workflowID string, result any) error {
	for {
		if run := e.lookup(workflowID); run != nil {
			select {
			case <-run.done:
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		info, err := e.store.GetRun(ctx, workflowID)
		if err != nil {
			return err
		}

		switch info.Status {
		case RunStatusCompleted:
			if result == nil || len(info.Result) == 0 {
				return nil
			}

			return json.Unmarshal(info.Result, result)
		case RunStatusFailed:
			failure := info.Failure
			if failure == nil {
				failure = &Failure{Type: ErrTypeGeneric, Message: "workflow failed"}
			}

			return &WorkflowExecutionError{WorkflowID: info.WorkflowID, RunID: info.RunID, Cause: failure.Err()}
		case RunStatusRunning:
		}

		select {
		case <-time.After(resultPollInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (e *Engine) Describe(ctx context.Context, workflowID string) (*RunInfo, error) {
	return e.store.GetRun(ctx, workflowID)
}

// Shutdown stops all runs owned by this process. Interrupted runs stay open
// in the history store and continue on the next Resume.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.cancel()

	done := make(chan struct{})

	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for workflow runs: %w", ctx.Err())
	}
}

func (e *Engine) lookup(workflowID string) *workflowRun {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.runs[workflowID]
}

func (e *Engine) forget(run *workflowRun) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.runs[run.info.WorkflowID] == run {
		delete(e.runs, run.info.WorkflowID)
	}
}

func (e *Engine) launch(info RunInfo, fn WorkflowFunc) {
	run := newWorkflowRun(e.ctx, info)

	e.mu.Lock()
	e.runs[info.WorkflowID] = run
	e.mu.Unlock()

	e.wg.Add(1)

	go func() {
		defer e.wg.Done()
		e.execute(run, fn)
	}()
}

func (e *Engine) execute(run *workflowRun, fn WorkflowFunc) {
	defer close(run.done)
	defer e.forget(run)
	defer run.cancel()

	metrics.WorkflowsActive.Inc()
	defer metrics.WorkflowsActive.Dec()

	logger := e.logger.With("workflow_id", run.info.WorkflowID, "run_id", run.info.RunID)

	history, err := e.store.Events(run.ctx, run.info.WorkflowID, run.info.RunID)
	if err != nil {
		logger.ErrorContext(run.ctx, "Failed to load workflow history", "error", err)

		return
	}

	wctx := newWorkflowContext(e, run, history)

	run.mu.Lock()
	result, err := invoke(wctx, fn, run.info.Input)
	run.mu.Unlock()

	if wctx.err != nil {
		err = wctx.err
	}

	if isEngineStopped(err) || e.ctx.Err() != nil {
		logger.Info("Workflow run interrupted by shutdown")

		return
	}

	status := RunStatusCompleted

	var (
		payload json.RawMessage
		failure *Failure
	)

	if err == nil {
		payload, err = json.Marshal(result)
		if err != nil {
			err = NewNonRetryableError(ErrTypeGeneric, "encode workflow result", err)
		}
	}

	if err != nil {
		status = RunStatusFailed
		failure = FailureFromError(err)
		payload = nil

		logger.Error("Workflow run failed", "error", err)
	} else {
		logger.Info("Workflow run completed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), closeRunTimeout)
	defer cancel()

	if err := e.store.CloseRun(ctx, run.info.WorkflowID, run.info.RunID, status, payload, failure, e.clock()); err != nil {
		logger.ErrorContext(ctx, "Failed to close workflow run", "error", err)

		return
	}

	metrics.WorkflowRuns.WithLabelValues(run.info.WorkflowName, string(status)).Inc()
}

func invoke(ctx *workflowContext, fn WorkflowFunc, input json.RawMessage) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewNonRetryableError(ErrTypePanic, fmt.Sprintf("workflow panic: %v\n%s", r, debug.Stack()), nil)
		}
	}()

	return fn(ctx, input)
}

// executeActivity runs attempts until success, a non-retryable failure or
// exhausted attempts. The returned error is set only when the engine stops.
func (e *Engine) executeActivity(ctx context.Context, wf WorkflowInfo, name string, opts ActivityOptions, input json.RawMessage) (json.RawMessage, *Failure, int, error) {
	fn, ok := e.activity(name)
	if !ok {
		return nil, &Failure{
			Type:         ErrTypeUnknownActivity,
			Message:      fmt.Sprintf("activity %q is not registered", name),
			NonRetryable: true,
		}, 0, nil
	}

	policy := opts.RetryPolicy.withDefaults()

	for attempt := 1; ; attempt++ {
		output, err := e.attempt(ctx, wf, name, opts, attempt, fn, input)
		if ctx.Err() != nil {
			return nil, nil, attempt, ErrEngineStopped
		}

		if err == nil {
			metrics.ActivityAttempts.WithLabelValues(name, "success").Inc()

			return output, nil, attempt, nil
		}

		failure := FailureFromError(err)
		metrics.ActivityAttempts.WithLabelValues(name, outcomeLabel(failure)).Inc()

		if !policy.ShouldRetry(failure, attempt) {
			e.logger.Warn("Activity failed",
				"workflow_id", wf.WorkflowID, "activity", name, "attempt", attempt, "error_type", failure.Type, "error", err)

			return nil, failure, attempt, nil
		}

		delay := policy.Backoff(attempt)
		e.logger.Info("Retrying activity",
			"workflow_id", wf.WorkflowID, "activity", name, "attempt", attempt, "backoff", delay, "error", err)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()

			return nil, nil, attempt, ErrEngineStopped
		}
	}
}

func outcomeLabel(failure *Failure) string {
	switch failure.Type {
	case ErrTypeTimeout:
		return "timeout"
	case ErrTypeHeartbeatTimeout:
		return "heartbeat_timeout"
	default:
		return "failure"
	}
}

type attemptOutcome struct {
	output any
	err    error
}

func (e *Engine) attempt(ctx context.Context, wf WorkflowInfo, name string, opts ActivityOptions, attempt int, fn ActivityFunc, input json.RawMessage) (json.RawMessage, error) {
	select {
	case e.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-e.slots }()

	timeout := opts.StartToCloseTimeout
	if timeout <= 0 {
		timeout = DefaultStartToCloseTimeout
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	state := &activityState{
		info: ActivityInfo{
			WorkflowID:       wf.WorkflowID,
			RunID:            wf.RunID,
			ActivityName:     name,
			Attempt:          attempt,
			StartedAt:        started,
			HeartbeatTimeout: opts.HeartbeatTimeout,
		},
		lastHeartbeat: started,
	}
	attemptCtx = context.WithValue(attemptCtx, activityKey{}, state)
	attemptCtx = log.WithContext(attemptCtx, e.base.With(
		"workflow_id", wf.WorkflowID,
		"activity", name,
		"attempt", attempt,
	))

	attemptCtx, span := otelhelper.StartSpan(attemptCtx, e.tracer, "activity."+name,
		attribute.String(otelhelper.WorkflowIDKey, wf.WorkflowID),
		attribute.String(otelhelper.RunIDKey, wf.RunID),
		attribute.String(otelhelper.ActivityKey, name),
		attribute.Int(otelhelper.AttemptKey, attempt),
	)
	defer span.End()
	defer func() {
		metrics.ActivityDuration.WithLabelValues(name).Observe(time.Since(started).Seconds())
	}()

	done := make(chan attemptOutcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- attemptOutcome{err: NewNonRetryableError(ErrTypePanic, fmt.Sprintf("activity panic: %v", r), nil)}
			}
		}()

		output, err := fn(attemptCtx, input)
		done <- attemptOutcome{output: output, err: err}
	}()

	var heartbeats <-chan time.Time

	if opts.HeartbeatTimeout > 0 {
		ticker := time.NewTicker(heartbeatCheckInterval(opts.HeartbeatTimeout))
		defer ticker.Stop()

		heartbeats = ticker.C
	}

	for {
		select {
		case outcome := <-done:
			if outcome.err != nil {
				otelhelper.SetError(span, outcome.err)

				return nil, outcome.err
			}

			payload, err := json.Marshal(outcome.output)
			if err != nil {
				return nil, NewNonRetryableError(ErrTypeGeneric, "encode activity result", err)
			}

			return payload, nil
		case <-heartbeats:
			if state.sinceHeartbeat() > opts.HeartbeatTimeout {
				cancel()

				err := NewApplicationError(ErrTypeHeartbeatTimeout,
					fmt.Sprintf("no heartbeat within %s", opts.HeartbeatTimeout), nil)
				otelhelper.SetError(span, err)

				return nil, err
			}
		case <-attemptCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}

			err := NewApplicationError(ErrTypeTimeout, fmt.Sprintf("activity exceeded %s", timeout), nil)
			otelhelper.SetError(span, err)

			return nil, err
		}
	}
}

func heartbeatCheckInterval(timeout time.Duration) time.Duration {
	interval := timeout / 4
	if interval < 5*time.Millisecond {
		return 5 * time.Millisecond
	}

	return interval
}
