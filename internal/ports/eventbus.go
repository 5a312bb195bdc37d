// Package ports defines the interfaces the mixer core depends on.
// Adapters in internal/adapter implement them.
package ports

import (
	"github.com/tejashwikalptaru/gomixer/internal/domain"
)

// EventBus carries asynchronous notifications out of the mixer core.
//
// Channels and the session publish events; transports, metrics and logs subscribe.
// Publishers never know who is listening.
//
// Thread-safety: Implementations must be safe for concurrent use. Meter and
// routing events are published from platform goroutines.
//
// Example usage:
//
//	// In a channel: publish a meter reading
//	bus.Publish(domain.NewMeterLevelEvent(id, listener, level))
//
//	// In a transport: forward every listener-addressed event
//	subID := bus.SubscribeListeners(func(e domain.ListenerEvent) {
//	    send(e.ListenerName(), e.Payload())
//	})
//
//	// Later: Unsubscribe
//	bus.Unsubscribe(subID)
type EventBus interface {
	// Publish delivers an event to all subscribers of its type.
	// It must not block for long; meter ticks arrive at capture rate.
	Publish(event domain.Event)

	// Subscribe registers a handler for events of the specified type.
	// Returns a SubscriptionID that can be used to unsubscribe later.
	Subscribe(eventType domain.EventType, handler domain.EventHandler) domain.SubscriptionID

	// SubscribeAll registers a handler that receives all events regardless of type.
	SubscribeAll(handler domain.EventHandler) domain.SubscriptionID

	// SubscribeListeners registers a handler for every event that implements
	// domain.ListenerEvent and carries a non-empty listener name.
	SubscribeListeners(handler ListenerHandler) domain.SubscriptionID

	// Unsubscribe removes a previously registered handler.
	// Unknown IDs are a no-op.
	Unsubscribe(id domain.SubscriptionID)

	// HasSubscribers returns true if any subscription would receive eventType.
	HasSubscribers(eventType domain.EventType) bool

	// Close shuts down the event bus. Publishing after Close is a no-op.
	Close() error
}

// ListenerHandler handles listener-addressed notifications.
type ListenerHandler func(event domain.ListenerEvent)

// EventFilter is a function that determines if an event should be delivered to a subscriber.
type EventFilter func(event domain.Event) bool

// FilteringEventBus extends EventBus with filtered subscriptions.
type FilteringEventBus interface {
	EventBus

	// SubscribeFiltered registers a handler with a filter function.
	//
	// Example: Only meter readings for one channel
	//	bus.SubscribeFiltered(domain.EventMeterLevel, func(e domain.Event) bool {
	//	    return e.(domain.MeterLevelEvent).ChannelID == "a1"
	//	}, handle)
	SubscribeFiltered(eventType domain.EventType, filter EventFilter, handler domain.EventHandler) domain.SubscriptionID
}
