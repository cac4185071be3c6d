package kafka_test

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/agentarea/agentarea/pkg/channels/kafka"
	"github.com/agentarea/agentarea/pkg/eventbus"
	"github.com/agentarea/agentarea/pkg/events"
	"github.com/agentarea/agentarea/pkg/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkaTc "github.com/testcontainers/testcontainers-go/modules/kafka"
)

func TestCreateChannel_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping Kafka container test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	container, err := kafkaTc.Run(ctx, "confluentinc/confluent-local:7.7.0")
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)

	logger := log.Discard()

	pub, sub, err := kafka.CreateChannel(watermill.NewSlogLogger(logger), brokers, "agentarea-test")
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub, logger)
	t.Cleanup(func() { _ = bus.Close() })

	received := make(chan events.Event, 1)

	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, bus.Publish(ctx, events.NewTriggerEvent("trigger-1", events.TriggerExecuted, map[string]any{"task_id": "task-1"}, at)))

	require.NoError(t, bus.Subscribe(ctx, events.TriggerEventsTopic, func(_ context.Context, event events.Event) error {
		received <- event

		return nil
	}))

	select {
	case event := <-received:
		assert.Equal(t, "trigger-1", event.Data.AggregateID)
		assert.Equal(t, "task-1", event.Data.OriginalData["task_id"])
	case <-ctx.Done():
		t.Fatal("event not delivered")
	}
}
