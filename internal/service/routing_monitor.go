package service

import (
	"log/slog"
	"sync"

	"github.com/tejashwikalptaru/gomixer/internal/domain"
	"github.com/tejashwikalptaru/gomixer/internal/ports"
)

// Interruptible is a channel that can be muted on routing loss without stopping capture.
type Interruptible interface {
	ID() string
	Interrupt() bool
	ResumeFromInterrupt() bool
}

// RoutingMonitor reacts to the presence of a routed device.
//
// It is level-triggered: only the latest observation matters. Repeated
// observations of the same presence are ignored, so each active mic channel
// sees exactly one Interrupt per loss and one resume per return.
type RoutingMonitor struct {
	logger  *slog.Logger
	bus     ports.EventBus
	targets func() []Interruptible

	// handleMu serializes observations so broadcasts happen in observation order.
	handleMu sync.Mutex

	mu       sync.Mutex
	listener string
	present  bool
	seen     map[int]struct{}
}

// NewRoutingMonitor creates a monitor. targets returns the channels to broadcast
// to and is called without any monitor lock held.
func NewRoutingMonitor(logger *slog.Logger, bus ports.EventBus, targets func() []Interruptible) *RoutingMonitor {
	return &RoutingMonitor{
		logger:  logger.With(slog.String("component", "routing")),
		bus:     bus,
		targets: targets,
		present: true,
		seen:    make(map[int]struct{}),
	}
}

// Reset sets the session listener and the devices already known at session start.
// The last observed presence is kept: mics muted by a routing loss stay
// interrupted until the next observation of a routed device resumes them.
func (m *RoutingMonitor) Reset(listener string, known ...domain.AudioDevice) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.listener = listener
	m.seen = make(map[int]struct{}, len(known))
	for _, d := range known {
		m.seen[d.ID] = struct{}{}
	}
}

// Present reports the last observed presence.
func (m *RoutingMonitor) Present() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.present
}

// OnRouteChanged is the platform routing callback. A nil device means nothing is routed.
func (m *RoutingMonitor) OnRouteChanged(device *domain.AudioDevice) {
	m.handleMu.Lock()
	defer m.handleMu.Unlock()

	present := device != nil

	m.mu.Lock()
	changed := present != m.present
	m.present = present
	newDevice := false
	if present {
		if _, ok := m.seen[device.ID]; !ok {
			m.seen[device.ID] = struct{}{}
			newDevice = true
		}
	}
	listener := m.listener
	m.mu.Unlock()

	name := ""
	if device != nil {
		name = device.Name
	}

	if changed {
		count := 0
		for _, ch := range m.targets() {
			var moved bool
			if present {
				moved = ch.ResumeFromInterrupt()
			} else {
				moved = ch.Interrupt()
			}
			if moved {
				count++
			}
		}

		handler := domain.HandlerRouteDisconnected
		if present {
			handler = domain.HandlerRouteReconnected
		}
		m.logger.Info("routing changed",
			slog.String("handler", string(handler)),
			slog.String("device", name),
			slog.Int("channels", count))
		m.notify(listener, handler, name)
	}

	if newDevice {
		m.logger.Info("new device found", slog.String("device", name), slog.Int("id", device.ID))
		m.notify(listener, domain.HandlerRouteNewDevice, name)
	}
}

func (m *RoutingMonitor) notify(listener string, handler domain.HandlerType, device string) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(domain.NewSessionHandlerEvent(listener, handler, device))
}
