// Package domain defines events for the event-driven architecture.
// Channels and the session publish events instead of calling listeners directly.
package domain

import (
	"time"
)

// Event is the base interface for all events in the system.
// All events must implement this interface to be published via the event bus.
type Event interface {
	// Type returns the event type identifier
	Type() EventType

	// Timestamp returns when the event occurred
	Timestamp() time.Time
}

// ListenerEvent is an event addressed to a host-registered listener name.
// Transports forward these as (name, payload) pairs.
type ListenerEvent interface {
	Event

	// ListenerName is the name the host registered for this notification.
	ListenerName() string

	// Payload is the wire body of the notification.
	Payload() map[string]any
}

// EventType is a string identifier for different event types.
type EventType string

// Event type constants define all possible events in the system.
const (
	// Per-channel listener events
	EventMeterLevel  EventType = "channel.meter_level"
	EventElapsedTime EventType = "channel.elapsed_time"

	// Channel lifecycle events
	EventChannelStateChanged EventType = "channel.state_changed"
	EventChannelFaulted      EventType = "channel.faulted"

	// Session handler events
	EventSessionHandler EventType = "session.handler"
)

// HandlerType values carried by SessionHandlerEvent.
type HandlerType string

const (
	HandlerRouteDisconnected HandlerType = "ROUTE_DEVICE_DISCONNECTED"
	HandlerRouteReconnected  HandlerType = "ROUTE_DEVICE_RECONNECTED"
	HandlerRouteNewDevice    HandlerType = "ROUTE_NEW_DEVICE_FOUND"
	HandlerInterruptBegan    HandlerType = "INTERRUPT_BEGAN"
	HandlerInterruptEnded    HandlerType = "INTERRUPT_ENDED"
	HandlerChannelFaulted    HandlerType = "CHANNEL_FAULTED"
)

// EventHandler is a function that handles events.
type EventHandler func(event Event)

// SubscriptionID uniquely identifies an event subscription.
type SubscriptionID string

// baseEvent provides common event functionality.
// All concrete events should embed this struct.
type baseEvent struct {
	timestamp time.Time
}

// Timestamp returns when the event occurred.
func (e baseEvent) Timestamp() time.Time {
	return e.timestamp
}

// newBaseEvent creates a new base event with the current timestamp.
func newBaseEvent() baseEvent {
	return baseEvent{timestamp: time.Now()}
}

// MeterLevelEvent carries one volume-compensated meter reading.
type MeterLevelEvent struct {
	baseEvent
	ChannelID string
	Listener  string
	Level     float64
}

// Type returns the event type.
func (e MeterLevelEvent) Type() EventType {
	return EventMeterLevel
}

// ListenerName returns the channel listener name.
func (e MeterLevelEvent) ListenerName() string {
	return e.Listener
}

// Payload returns {"meterLevel": level}.
func (e MeterLevelEvent) Payload() map[string]any {
	return map[string]any{"meterLevel": e.Level}
}

// NewMeterLevelEvent creates a new MeterLevelEvent.
func NewMeterLevelEvent(channelID, listener string, level float64) MeterLevelEvent {
	return MeterLevelEvent{
		baseEvent: newBaseEvent(),
		ChannelID: channelID,
		Listener:  listener,
		Level:     level,
	}
}

// ElapsedTimeEvent is the periodic position tick of a playing file channel.
type ElapsedTimeEvent struct {
	baseEvent
	ChannelID string
	EventName string
	Elapsed   TimeParts
}

// Type returns the event type.
func (e ElapsedTimeEvent) Type() EventType {
	return EventElapsedTime
}

// ListenerName returns the elapsed-time event name.
func (e ElapsedTimeEvent) ListenerName() string {
	return e.EventName
}

// Payload returns the time parts.
func (e ElapsedTimeEvent) Payload() map[string]any {
	return e.Elapsed.Map()
}

// NewElapsedTimeEvent creates a new ElapsedTimeEvent.
func NewElapsedTimeEvent(channelID, eventName string, elapsed TimeParts) ElapsedTimeEvent {
	return ElapsedTimeEvent{
		baseEvent: newBaseEvent(),
		ChannelID: channelID,
		EventName: eventName,
		Elapsed:   elapsed,
	}
}

// SessionHandlerEvent notifies the session listener about routing and interruptions.
type SessionHandlerEvent struct {
	baseEvent
	Listener    string
	HandlerType HandlerType
	DeviceName  string // set for route events when known
}

// Type returns the event type.
func (e SessionHandlerEvent) Type() EventType {
	return EventSessionHandler
}

// ListenerName returns the session listener name.
func (e SessionHandlerEvent) ListenerName() string {
	return e.Listener
}

// Payload returns {"handlerType": ...} plus the device name when present.
func (e SessionHandlerEvent) Payload() map[string]any {
	payload := map[string]any{"handlerType": string(e.HandlerType)}
	if e.DeviceName != "" {
		payload["deviceName"] = e.DeviceName
	}
	return payload
}

// NewSessionHandlerEvent creates a new SessionHandlerEvent.
func NewSessionHandlerEvent(listener string, handlerType HandlerType, deviceName string) SessionHandlerEvent {
	return SessionHandlerEvent{
		baseEvent:   newBaseEvent(),
		Listener:    listener,
		HandlerType: handlerType,
		DeviceName:  deviceName,
	}
}

// ChannelFaultedEvent is published when a mic capture loop stops on an I/O error.
type ChannelFaultedEvent struct {
	baseEvent
	ChannelID string
	Listener  string
	Err       error
}

// Type returns the event type.
func (e ChannelFaultedEvent) Type() EventType {
	return EventChannelFaulted
}

// ListenerName returns the channel listener name.
func (e ChannelFaultedEvent) ListenerName() string {
	return e.Listener
}

// Payload returns the handler type, channel ID and error text.
func (e ChannelFaultedEvent) Payload() map[string]any {
	payload := map[string]any{
		"handlerType": string(HandlerChannelFaulted),
		"audioId":     e.ChannelID,
	}
	if e.Err != nil {
		payload["message"] = e.Err.Error()
	}
	return payload
}

// NewChannelFaultedEvent creates a new ChannelFaultedEvent.
func NewChannelFaultedEvent(channelID, listener string, err error) ChannelFaultedEvent {
	return ChannelFaultedEvent{
		baseEvent: newBaseEvent(),
		ChannelID: channelID,
		Listener:  listener,
		Err:       err,
	}
}

// ChannelStateChangedEvent is published on every lifecycle transition.
// It has no listener name and is consumed in-process (metrics, logs).
type ChannelStateChangedEvent struct {
	baseEvent
	ChannelID string
	Kind      InputType
	From      ChannelState
	To        ChannelState
}

// Type returns the event type.
func (e ChannelStateChangedEvent) Type() EventType {
	return EventChannelStateChanged
}

// NewChannelStateChangedEvent creates a new ChannelStateChangedEvent.
func NewChannelStateChangedEvent(channelID string, kind InputType, from, to ChannelState) ChannelStateChangedEvent {
	return ChannelStateChangedEvent{
		baseEvent: newBaseEvent(),
		ChannelID: channelID,
		Kind:      kind,
		From:      from,
		To:        to,
	}
}
