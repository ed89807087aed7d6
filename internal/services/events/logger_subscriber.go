package events

import (
	"context"
	"fmt"

	"github.com/ternarybob/adforge/internal/interfaces"
	"github.com/ternarybob/arbor"
)

// NewLoggerSubscriber creates an event handler that logs all events
func NewLoggerSubscriber(logger arbor.ILogger) interfaces.EventHandler {
	return func(ctx context.Context, event interfaces.Event) error {
		logEvent := logger.Debug().Str("event_type", string(event.Type))

		if payload, ok := event.Payload.(map[string]interface{}); ok {
			for _, key := range []string{"job_id", "status", "error"} {
				if value, ok := payload[key].(string); ok && value != "" {
					logEvent = logEvent.Str(key, value)
				}
			}
			if token, ok := payload["token"].(uint64); ok {
				logEvent = logEvent.Int64("token", int64(token))
			}
		}

		logEvent.Msg("Event published")
		return nil
	}
}

// SubscribeLoggerToAllEvents subscribes the logger to all known event types
func SubscribeLoggerToAllEvents(eventService interfaces.EventService, logger arbor.ILogger) error {
	subscriber := NewLoggerSubscriber(logger)

	for _, eventType := range interfaces.AllEventTypes() {
		if err := eventService.Subscribe(eventType, subscriber); err != nil {
			return fmt.Errorf("failed to subscribe logger to event type %s: %w", eventType, err)
		}
	}
	return nil
}
