package service

import (
	"log/slog"
	"math"
	"sync"

	"github.com/tejashwikalptaru/gomixer/internal/domain"
	"github.com/tejashwikalptaru/gomixer/internal/ports"
)

// MeterFloor is the lowest level ever reported.
const MeterFloor = -80.0

// meterReference converts millibels to the reported unit.
const meterReference = 100.0

// ComputeLevel maps a tap RMS reading in millibels to the reported meter level:
// (rms/100) * (1/volume), floored at MeterFloor with no ceiling.
// A volume of zero or less reports the floor.
func ComputeLevel(rmsMillibels, volume float64) float64 {
	if volume <= 0 || math.IsNaN(volume) || math.IsNaN(rmsMillibels) {
		return MeterFloor
	}
	level := (rmsMillibels / meterReference) * (1 / volume)
	if math.IsNaN(level) || level < MeterFloor {
		return MeterFloor
	}
	return level
}

// meterSnapshot is what the meter needs from its channel on each tick.
type meterSnapshot struct {
	playing      bool
	volume       float64
	listener     string
	elapsedEvent string
}

// meterOwner is the non-owning back-reference from a meter to its channel.
type meterOwner interface {
	meterSnapshot() meterSnapshot
	elapsedForMeter() (domain.TimeParts, bool)
}

// LevelMeter turns tap ticks into listener events.
// It never extends its channel's lifetime: Close drops the owner and waits for
// an in-flight tick, after which ticks are ignored.
type LevelMeter struct {
	logger    *slog.Logger
	bus       ports.EventBus
	tap       ports.LevelTap
	channelID string

	mu      sync.RWMutex
	owner   meterOwner
	running bool
}

// NewLevelMeter wires tap to owner. The meter starts stopped.
func NewLevelMeter(logger *slog.Logger, bus ports.EventBus, tap ports.LevelTap, channelID string, owner meterOwner) *LevelMeter {
	m := &LevelMeter{
		logger:    logger,
		bus:       bus,
		tap:       tap,
		channelID: channelID,
		owner:     owner,
	}
	tap.SetCaptureListener(m.onCapture)
	return m
}

// Start enables tap ticks.
func (m *LevelMeter) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.owner == nil || m.running {
		return nil
	}
	if err := m.tap.SetEnabled(true); err != nil {
		return err
	}
	m.running = true
	return nil
}

// Stop disables tap ticks.
func (m *LevelMeter) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.owner == nil || !m.running {
		return nil
	}
	m.running = false
	return m.tap.SetEnabled(false)
}

// Running reports whether ticks are enabled.
func (m *LevelMeter) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// Close detaches the meter from its channel and releases the tap.
func (m *LevelMeter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.owner == nil {
		return nil
	}
	m.owner = nil
	if m.running {
		m.running = false
		if err := m.tap.SetEnabled(false); err != nil {
			m.logger.Debug("failed to disable level tap", slog.Any("error", err))
		}
	}
	return m.tap.Release()
}

// onCapture runs on the platform's capture goroutine.
func (m *LevelMeter) onCapture(rmsMillibels float64) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.owner == nil || !m.running {
		return
	}
	snap := m.owner.meterSnapshot()
	if !snap.playing {
		return
	}

	if snap.listener != "" {
		level := ComputeLevel(rmsMillibels, snap.volume)
		m.bus.Publish(domain.NewMeterLevelEvent(m.channelID, snap.listener, level))
	}
	if snap.elapsedEvent != "" {
		if elapsed, ok := m.owner.elapsedForMeter(); ok {
			m.bus.Publish(domain.NewElapsedTimeEvent(m.channelID, snap.elapsedEvent, elapsed))
		}
	}
}
