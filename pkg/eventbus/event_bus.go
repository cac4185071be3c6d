// Package eventbus publishes execution events to message channels.
package eventbus

import (
	"context"

	"github.com/agentarea/agentarea/pkg/events"
)

type EventPublisher interface {
	Publish(ctx context.Context, evts ...events.Event) error
}

type EventSubscriber interface {
	Subscribe(ctx context.Context, topic string, handler EventHandler) error
}

type EventHandler func(ctx context.Context, event events.Event) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
}

// NoopEventBus drops every event. It is used when no event bus is configured.
type NoopEventBus struct{}

func (NoopEventBus) Publish(context.Context, ...events.Event) error { return nil }

func (NoopEventBus) Subscribe(context.Context, string, EventHandler) error { return nil }

func (NoopEventBus) Close() error { return nil }
