package core

import "sync"

// EventType identifies the kind of event fired on the bus.
type EventType int

const (
	EventStateChanged EventType = iota
	EventMessage
	EventBackendInfo
	EventOperationFailed
	EventTerminated
	EventConfigReloaded
)

// Relay event names as seen by subscribers outside the process.
const (
	RelayEventMessage     = "message"
	RelayEventBackendInfo = "backend-info"
	RelayEventState       = "state"
)

// Status strings emitted as message events on transitions.
const (
	StatusEnabled  = "Enabled"
	StatusDisabled = "Disabled"
)

// Event carries data about something that happened in the system.
type Event struct {
	Type    EventType
	Payload any
}

// StatePayload is the payload for EventStateChanged.
type StatePayload struct {
	OldState LifecycleState
	NewState LifecycleState
	Session  string
}

// MessagePayload is the payload for EventMessage and EventBackendInfo.
type MessagePayload struct {
	Text string
}

// FailurePayload is the payload for EventOperationFailed.
type FailurePayload struct {
	Op      string
	Session string
	Err     error
}

// Handler is a callback for bus subscribers.
type Handler func(Event)

// EventBus provides pub/sub between system components.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewEventBus creates a ready-to-use event bus.
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe registers a handler for the given event types.
func (eb *EventBus) Subscribe(h Handler, types ...EventType) {
	eb.mu.Lock()
	for _, t := range types {
		eb.handlers[t] = append(eb.handlers[t], h)
	}
	eb.mu.Unlock()
}

// Publish fires an event to all subscribed handlers synchronously,
// in subscription order.
func (eb *EventBus) Publish(e Event) {
	eb.mu.RLock()
	handlers := eb.handlers[e.Type]
	eb.mu.RUnlock()

	for _, h := range handlers {
		h(e)
	}
}

// PublishMessage publishes a status string as EventMessage.
func (eb *EventBus) PublishMessage(text string) {
	eb.Publish(Event{Type: EventMessage, Payload: MessagePayload{Text: text}})
}
