package cmd

import (
	"context"
	"strings"
	"time"

	"github.com/agentarea/agentarea/pkg/durable"
	"github.com/agentarea/agentarea/pkg/durable/redisstore"
)

// NewHistoryStore returns a Redis backed history store for redis:// and
// rediss:// URLs and an in-memory one otherwise. Memory history does not
// survive restarts.
func NewHistoryStore(ctx context.Context, historyURL string, ttl time.Duration) (durable.HistoryStore, func() error, error) {
	if strings.HasPrefix(historyURL, "redis://") || strings.HasPrefix(historyURL, "rediss://") {
		var opts []redisstore.Option
		if ttl > 0 {
			opts = append(opts, redisstore.WithTTL(ttl))
		}

		store, err := redisstore.NewFromURL(ctx, historyURL, opts...)
		if err != nil {
			return nil, nil, err
		}

		return store, store.Close, nil
	}

	return durable.NewMemoryStore(), func() error { return nil }, nil
}
