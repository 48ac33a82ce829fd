package messaging

import (
	"context"

	"go.uber.org/zap"
)

// PublisherInterface defines the contract for event publishing
// This allows for easy mocking in tests
type PublisherInterface interface {
	Publish(ctx context.Context, routingKey string, eventData interface{}) error
	Close() error
}

// Ensure Publisher implements PublisherInterface
var _ PublisherInterface = (*Publisher)(nil)

// PublishBestEffort publishes an event after its transaction has committed.
// Failures are logged and never returned to the caller.
func PublishBestEffort(ctx context.Context, pub PublisherInterface, logger *zap.Logger, routingKey string, event interface{}) {
	if pub == nil {
		return
	}
	if err := pub.Publish(ctx, routingKey, event); err != nil {
		logger.Warn("failed to publish event",
			zap.String("routing_key", routingKey),
			zap.Error(err),
		)
	}
}
