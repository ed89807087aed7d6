package interfaces

import "context"

// EventType represents different event types in the system
type EventType string

const (
	EventRunStarted       EventType = "run_started"
	EventRunFinished      EventType = "run_finished"
	EventSessionStarted   EventType = "session_started"
	EventSessionFinished  EventType = "session_finished"
	EventAgentJobStarted  EventType = "agent_job_started"
	EventAgentJobFinished EventType = "agent_job_finished"
)

// AllEventTypes lists every event type published by the application
func AllEventTypes() []EventType {
	return []EventType{
		EventRunStarted,
		EventRunFinished,
		EventSessionStarted,
		EventSessionFinished,
		EventAgentJobStarted,
		EventAgentJobFinished,
	}
}

// Event represents a system event.
// Payload is a map[string]interface{} for all events above.
type Event struct {
	Type    EventType
	Payload interface{}
}

// EventHandler is a function that handles events
type EventHandler func(ctx context.Context, event Event) error

// EventService manages pub/sub event bus
type EventService interface {
	// Subscribe to an event type
	Subscribe(eventType EventType, handler EventHandler) error

	// Publish an event to all subscribers
	Publish(ctx context.Context, event Event) error

	// PublishSync publishes event and waits for all handlers to complete
	PublishSync(ctx context.Context, event Event) error

	// Close shuts down the event service
	Close() error
}
