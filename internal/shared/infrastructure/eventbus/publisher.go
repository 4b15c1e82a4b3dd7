// Package eventbus publishes domain events to the message broker.
package eventbus

import (
	"context"
	"log/slog"

	sharedDomain "github.com/diaguru/diaguru/internal/shared/domain"
)

// Publisher delivers domain events by routing key.
type Publisher interface {
	Publish(ctx context.Context, event sharedDomain.DomainEvent) error
	Close() error
}

// NoopPublisher drops events. Used when no broker is configured.
type NoopPublisher struct{}

// Publish discards the event.
func (NoopPublisher) Publish(ctx context.Context, event sharedDomain.DomainEvent) error {
	return nil
}

// Close is a no-op.
func (NoopPublisher) Close() error { return nil }

// PublishAll publishes every event, logging failures without interrupting the
// caller. Event delivery is best-effort; the store is the source of truth.
func PublishAll(ctx context.Context, pub Publisher, events []sharedDomain.DomainEvent, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	for _, event := range events {
		if err := pub.Publish(ctx, event); err != nil {
			logger.Warn("event publish failed",
				"routing_key", event.RoutingKey(),
				"event_id", event.EventID(),
				"error", err)
		}
	}
}
