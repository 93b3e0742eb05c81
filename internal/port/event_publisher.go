package port

import "context"

// EventPublisher emits loan lifecycle events to whatever broker is configured.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, partitionKey string, payload []byte) error
}
