package events

import (
	"context"
	"log/slog"
)

// LogPublisher records events in the service log. Used when no broker is configured.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.With("module", "lending", "layer", "events")}
}

func (p *LogPublisher) Publish(ctx context.Context, eventType, partitionKey string, payload []byte) error {
	p.logger.DebugContext(ctx, "loan event",
		"event_type", eventType,
		"loan_id", partitionKey,
		"payload", string(payload),
	)
	return nil
}
