package durable

import (
	"context"
	"fmt"
	"sync"
)

// workflowRun is the in-memory state of a run owned by this process. mu is
// held by the workflow goroutine except while it waits on an activity, a
// timer, or the end of the run, so query handlers observe consistent state.
type workflowRun struct {
	info   RunInfo
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	queries map[string]QueryHandler

	signalMu sync.Mutex
	signals  map[string]int
}

func newWorkflowRun(parent context.Context, info RunInfo) *workflowRun {
	ctx, cancel := context.WithCancel(parent)

	return &workflowRun{
		info:    info,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		queries: make(map[string]QueryHandler),
		signals: make(map[string]int),
	}
}

// setQueryHandler is called from workflow code, which already holds mu.
func (r *workflowRun) setQueryHandler(name string, handler QueryHandler) {
	r.queries[name] = handler
}

func (r *workflowRun) query(name string) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	handler, ok := r.queries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrQueryNotFound, name)
	}

	return handler()
}

func (r *workflowRun) addSignal(name string) {
	r.signalMu.Lock()
	defer r.signalMu.Unlock()

	r.signals[name]++
}

func (r *workflowRun) takeSignal(name string) bool {
	r.signalMu.Lock()
	defer r.signalMu.Unlock()

	if r.signals[name] == 0 {
		return false
	}

	r.signals[name]--

	return true
}
