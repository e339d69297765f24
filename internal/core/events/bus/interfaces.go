package bus

import "time"

// Wildcard subscribes a handler to every event type.
const Wildcard = "*"

// EventBus is a thread-safe, in-process pub/sub bus carrying tree structure
// and agent lifecycle notifications.
//
// Delivery is synchronous: Publish calls handlers in the caller goroutine, so
// handlers must be quick. Handler errors are joined and returned from Publish.
type EventBus interface {
	// Publish delivers the event to subscribers of event.Type() and to wildcard subscribers.
	Publish(event Event) error
	// Subscribe registers a handler for eventType. Use Wildcard for every type.
	Subscribe(eventType string, handler EventHandler) (Subscription, error)
	// Unsubscribe cancels the given Subscription. Nil is ignored.
	Unsubscribe(Subscription) error
	// Subscribers reports how many handlers are registered for eventType.
	Subscribers(eventType string) int
}

// Event is an immutable message transported by the EventBus.
type Event interface {
	Type() string
	Source() string
	Timestamp() time.Time
	Data() any
}

type (
	// EventHandler is invoked per delivered event.
	EventHandler func(event Event) error
)

// Subscription represents a registered handler bound to an event type.
type Subscription interface {
	ID() string
	EventType() string
	IsActive() bool
	// Cancel de-registers the handler. Multiple calls are safe.
	Cancel() error
}
