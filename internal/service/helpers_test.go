package service

import (
	"math"
	"sync"
	"time"

	"github.com/tejashwikalptaru/gomixer/internal/adapter/audio/mock"
	"github.com/tejashwikalptaru/gomixer/internal/adapter/eventbus"
	"github.com/tejashwikalptaru/gomixer/internal/domain"
	"github.com/tejashwikalptaru/gomixer/internal/logger"
)

// Small buffers keep mic loops and their shutdown fast in tests.
var testSessionConfig = SessionConfig{SampleRate: 48000, FramesPerBuffer: 48}

// eventRecorder captures everything published on a bus.
type eventRecorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func recordEvents(bus *eventbus.SyncEventBus) *eventRecorder {
	r := &eventRecorder{}
	bus.SubscribeAll(func(e domain.Event) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, e)
	})
	return r
}

func (r *eventRecorder) ofType(t domain.EventType) []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Event
	for _, e := range r.events {
		if e.Type() == t {
			out = append(out, e)
		}
	}
	return out
}

func (r *eventRecorder) handlerTypes() []domain.HandlerType {
	var out []domain.HandlerType
	for _, e := range r.ofType(domain.EventSessionHandler) {
		out = append(out, e.(domain.SessionHandlerEvent).HandlerType)
	}
	return out
}

func (r *eventRecorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// newTestDeps returns channel dependencies backed by the mock platform.
func newTestDeps() (ChannelDeps, *mock.Platform, *eventbus.SyncEventBus) {
	log := logger.NewTestLogger()
	platform := mock.NewPlatform()
	bus := eventbus.NewSyncEventBus(log)
	return ChannelDeps{Logger: log, Bus: bus, Platform: platform}, platform, bus
}

// newTestSession creates a session on the mock platform with no devices.
func newTestSession() (*MixerSession, *mock.Platform, *eventbus.SyncEventBus) {
	log := logger.NewTestLogger()
	platform := mock.NewPlatform()
	bus := eventbus.NewSyncEventBus(log)
	return NewMixerSession(log, platform, bus, testSessionConfig), platform, bus
}

func testSettings(volume float64) domain.ChannelSettings {
	s := domain.DefaultChannelSettings()
	s.Volume = volume
	return s
}

func testMicConfig(channels int) MicConfig {
	return MicConfig{
		SampleRate:      testSessionConfig.SampleRate,
		FramesPerBuffer: testSessionConfig.FramesPerBuffer,
		CaptureChannels: channels,
	}
}

const (
	eventuallyWait = 2 * time.Second
	eventuallyTick = 5 * time.Millisecond
)

func nanValue() float64 { return math.NaN() }

func infValue() float64 { return math.Inf(1) }
