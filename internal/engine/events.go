package engine

// Event names published by the Engine.
const (
	EventLoadStart       = "load_start"
	EventLoadReady       = "load_ready"
	EventLoadFailed      = "load_failed"
	EventGenerationStart = "generation_start"
	EventGenerationEnd   = "generation_end"
)

// Event represents an engine lifecycle event.
// Minimal and stable: name + generation ID and optional fields via key/values.
type Event struct {
	Name         string
	GenerationID string
	Fields       map[string]any
}

// EventPublisher receives events from the engine. Implementations should be
// lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}
