package shared

import "context"

// EventHandler reacts to published domain events
type EventHandler interface {
	Handle(ctx context.Context, event DomainEvent) error
	// EventTypes lists the types to deliver; empty means every event
	EventTypes() []string
}

// EventPublisher publishes domain events after the change that raised
// them is stored
type EventPublisher interface {
	Publish(ctx context.Context, events ...DomainEvent) error
}

// EventBus delivers published events to subscribed handlers
type EventBus interface {
	EventPublisher
	// Subscribe registers handler for eventTypes, or for the types the
	// handler reports when none are given
	Subscribe(handler EventHandler, eventTypes ...string)
	Unsubscribe(handler EventHandler)
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
