// Package redisstore keeps durable workflow histories in Redis.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/agentarea/agentarea/pkg/durable"
	"github.com/redis/go-redis/v9"
)

const (
	defaultPrefix = "agentarea:durable"
	maxTxRetries  = 5
)

var errConflict = errors.New("concurrent history update")

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// Store implements durable.HistoryStore. Runs are JSON strings keyed by
// workflow ID, histories are lists keyed by workflow and run ID, and open runs
// are tracked in a set.
type Store struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

type Option func(*Store)

func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithTTL expires closed runs and their histories after ttl.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{client: client, prefix: defaultPrefix}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// NewFromURL connects to the Redis server at url (redis://host:port/db).
func NewFromURL(ctx context.Context, url string, opts ...Option) (*Store, error) {
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(options)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return New(client, opts...), nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) keyRun(workflowID string) string { return fmt.Sprintf("%s:run:%s", s.prefix, workflowID) }

func (s *Store) keyEvents(workflowID, runID string) string {
	return fmt.Sprintf("%s:events:%s:%s", s.prefix, workflowID, runID)
}

func (s *Store) keyOpen() string { return s.prefix + ":open" }

func (s *Store) CreateRun(ctx context.Context, run durable.RunInfo) (*durable.RunInfo, error) {
	key := s.keyRun(run.WorkflowID)

	payload, err := json.Marshal(run)
	if err != nil {
		return nil, fmt.Errorf("encode run: %w", err)
	}

	var existing *durable.RunInfo

	txn := func(tx *redis.Tx) error {
		current, err := s.readRun(ctx, tx, key)
		if err != nil && !errors.Is(err, durable.ErrWorkflowNotFound) {
			return err
		}

		if current != nil && current.Status == durable.RunStatusRunning {
			existing = current

			return durable.ErrWorkflowAlreadyStarted
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			pipe.SAdd(ctx, s.keyOpen(), run.WorkflowID)

			return nil
		})

		return err
	}

	if err := s.watch(ctx, txn, key); err != nil {
		if errors.Is(err, durable.ErrWorkflowAlreadyStarted) {
			return existing, err
		}

		return nil, fmt.Errorf("create run %s: %w", run.WorkflowID, err)
	}

	created := run

	return &created, nil
}

func (s *Store) GetRun(ctx context.Context, workflowID string) (*durable.RunInfo, error) {
	return s.readRun(ctx, s.client, s.keyRun(workflowID))
}

func (s *Store) readRun(ctx context.Context, cmd getter, key string) (*durable.RunInfo, error) {
	raw, err := cmd.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", durable.ErrWorkflowNotFound, key)
	}

	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}

	var run durable.RunInfo
	if err := json.Unmarshal(raw, &run); err != nil {
		return nil, fmt.Errorf("decode run %s: %w", key, err)
	}

	return &run, nil
}

func (s *Store) AppendEvent(ctx context.Context, workflowID, runID string, event durable.HistoryEvent) error {
	key := s.keyEvents(workflowID, runID)

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	txn := func(tx *redis.Tx) error {
		length, err := tx.LLen(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("llen %s: %w", key, err)
		}

		if int(length) != event.Seq {
			return fmt.Errorf("append event %d to %s: history has %d events", event.Seq, key, length)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.RPush(ctx, key, payload)

			return nil
		})

		return err
	}

	return s.watch(ctx, txn, key)
}

func (s *Store) Events(ctx context.Context, workflowID, runID string) ([]durable.HistoryEvent, error) {
	key := s.keyEvents(workflowID, runID)

	items, err := s.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange %s: %w", key, err)
	}

	events := make([]durable.HistoryEvent, 0, len(items))

	for _, item := range items {
		var event durable.HistoryEvent
		if err := json.Unmarshal([]byte(item), &event); err != nil {
			return nil, fmt.Errorf("decode event in %s: %w", key, err)
		}

		events = append(events, event)
	}

	return events, nil
}

func (s *Store) CloseRun(ctx context.Context, workflowID, runID string, status durable.RunStatus, result json.RawMessage, failure *durable.Failure, closedAt time.Time) error {
	key := s.keyRun(workflowID)

	txn := func(tx *redis.Tx) error {
		run, err := s.readRun(ctx, tx, key)
		if err != nil {
			return err
		}

		if run.RunID != runID {
			return fmt.Errorf("%w: %s/%s", durable.ErrWorkflowNotFound, workflowID, runID)
		}

		run.Status = status
		run.Result = result
		run.Failure = failure
		run.ClosedAt = &closedAt

		payload, err := json.Marshal(run)
		if err != nil {
			return fmt.Errorf("encode run: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, s.ttl)
			pipe.SRem(ctx, s.keyOpen(), workflowID)

			if s.ttl > 0 {
				pipe.Expire(ctx, s.keyEvents(workflowID, runID), s.ttl)
			}

			return nil
		})

		return err
	}

	return s.watch(ctx, txn, key)
}

func (s *Store) OpenRuns(ctx context.Context) ([]durable.RunInfo, error) {
	ids, err := s.client.SMembers(ctx, s.keyOpen()).Result()
	if err != nil {
		return nil, fmt.Errorf("smembers %s: %w", s.keyOpen(), err)
	}

	var open []durable.RunInfo

	for _, id := range ids {
		run, err := s.GetRun(ctx, id)
		if errors.Is(err, durable.ErrWorkflowNotFound) {
			continue
		}

		if err != nil {
			return nil, err
		}

		if run.Status == durable.RunStatusRunning {
			open = append(open, *run)
		}
	}

	return open, nil
}

func (s *Store) watch(ctx context.Context, txn func(*redis.Tx) error, keys ...string) error {
	for range maxTxRetries {
		err := s.client.Watch(ctx, txn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}

		return err
	}

	return errConflict
}
