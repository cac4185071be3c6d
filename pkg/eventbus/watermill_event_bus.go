package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/agentarea/agentarea/pkg/events"
)

type WatermillEventBus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	logger     *slog.Logger
}

func NewWatermillEventBus(pub message.Publisher, sub message.Subscriber, logger *slog.Logger) *WatermillEventBus {
	return &WatermillEventBus{
		publisher:  pub,
		subscriber: sub,
		logger:     logger.With("module", "eventbus"),
	}
}

func (eb *WatermillEventBus) Publish(ctx context.Context, evts ...events.Event) error {
	for _, event := range evts {
		payload, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("encode event %s: %w", event.EventType, err)
		}

		msg := message.NewMessage("msg-"+watermill.NewULID(), payload)
		msg.Metadata.Set(events.AggregateIDMetadataKey, event.Data.AggregateID)
		msg.Metadata.Set(events.EventTypeMetadataKey, event.EventType)
		msg.SetContext(ctx)

		if err := eb.publisher.Publish(event.Topic(), msg); err != nil {
			return fmt.Errorf("publish %s: %w", event.EventType, err)
		}
	}

	return nil
}

func (eb *WatermillEventBus) Subscribe(ctx context.Context, topic string, handler EventHandler) error {
	messages, err := eb.subscriber.Subscribe(ctx, topic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			var event events.Event

			if err := json.Unmarshal(msg.Payload, &event); err != nil {
				eb.logger.WarnContext(ctx, "Dropping undecodable event", "message_id", msg.UUID, "error", err)
				msg.Ack()

				continue
			}

			if err := handler(ctx, event); err != nil {
				eb.logger.ErrorContext(ctx, "Event handler failed", "event_type", event.EventType, "error", err)
				msg.Nack()

				continue
			}

			msg.Ack()
		}
	}()

	return nil
}

func (eb *WatermillEventBus) Close() error {
	err := eb.publisher.Close()
	if err != nil {
		return err
	}

	return eb.subscriber.Close()
}
