package durable

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// ActivityFunc performs a side effect on behalf of a workflow. The returned
// value is stored as JSON in the workflow history.
type ActivityFunc func(ctx context.Context, input json.RawMessage) (any, error)

// Activity adapts a typed function to ActivityFunc.
func Activity[I any, O any](fn func(ctx context.Context, input I) (O, error)) ActivityFunc {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var input I

		if err := decodeInput(raw, &input); err != nil {
			return nil, NewNonRetryableError(ErrTypeInvalidInput, "decode activity input", err)
		}

		return fn(ctx, input)
	}
}

func decodeInput(raw json.RawMessage, target any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	return json.Unmarshal(raw, target)
}

type ActivityInfo struct {
	WorkflowID       string
	RunID            string
	ActivityName     string
	Attempt          int
	StartedAt        time.Time
	HeartbeatTimeout time.Duration
}

type activityState struct {
	info ActivityInfo

	mu            sync.Mutex
	lastHeartbeat time.Time
	details       []any
}

func (s *activityState) heartbeat(details []any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastHeartbeat = time.Now()
	s.details = details
}

func (s *activityState) sinceHeartbeat() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	return time.Since(s.lastHeartbeat)
}

type activityKey struct{}

// ActivityInfoFrom returns information about the activity attempt running in ctx.
func ActivityInfoFrom(ctx context.Context) (ActivityInfo, bool) {
	state, ok := ctx.Value(activityKey{}).(*activityState)
	if !ok {
		return ActivityInfo{}, false
	}

	return state.info, true
}

// RecordHeartbeat reports liveness of the running activity attempt. Attempts
// that stay silent longer than their heartbeat timeout are abandoned and retried.
func RecordHeartbeat(ctx context.Context, details ...any) {
	if state, ok := ctx.Value(activityKey{}).(*activityState); ok {
		state.heartbeat(details)
	}
}

// KeepAlive heartbeats every interval until the returned stop func is called.
// The interval is capped at a third of the attempt's heartbeat timeout.
func KeepAlive(ctx context.Context, interval time.Duration) (stop func()) {
	state, ok := ctx.Value(activityKey{}).(*activityState)
	if !ok || interval <= 0 {
		return func() {}
	}

	interval = keepAliveInterval(interval, state.info.HeartbeatTimeout)

	done := make(chan struct{})
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				RecordHeartbeat(ctx)
			}
		}
	}()

	var once sync.Once

	return func() { once.Do(func() { close(done) }) }
}

func keepAliveInterval(interval, heartbeatTimeout time.Duration) time.Duration {
	if limit := heartbeatTimeout / 3; limit > 0 && interval > limit {
		return limit
	}

	return interval
}
