// Package mock provides an in-memory implementation of ports.AudioPlatform.
// It is used for testing the mixer without real audio devices or files.
package mock

import (
	"log/slog"
	"sync"
	"time"

	"github.com/tejashwikalptaru/gomixer/internal/domain"
	"github.com/tejashwikalptaru/gomixer/internal/ports"
)

// DefaultDuration is the length reported for every opened file unless overridden.
const DefaultDuration = 3 * time.Minute

// Platform is a mock implementation of the AudioPlatform interface.
// It simulates players, streams, effects and taps in memory.
//
// Thread-safety: This implementation is thread-safe. Simulate* helpers invoke
// callbacks on the calling goroutine, outside the platform lock.
type Platform struct {
	// Dependencies
	logger *slog.Logger

	mu sync.Mutex

	nextSession int
	nextWatch   int

	devices  []domain.AudioDevice
	duration time.Duration

	players  []*Player
	captures []*CaptureStream
	renders  []*RenderStream
	effects  map[int][]*EqEffect
	taps     map[int][]*LevelTap

	routingHandlers   map[int]ports.RoutingHandler
	interruptHandlers map[int]ports.InterruptionHandler

	// Behavior configuration (for testing error scenarios)
	missing       map[string]bool
	failOpen      bool
	failCapture   bool
	failRender    bool
	failEffect    bool
	failTap       bool
	failDevices   bool
	closed        bool
	captureSignal func(frame, channel int) int16
}

// NewPlatform creates a new mock platform with no devices.
func NewPlatform() *Platform {
	return &Platform{
		logger:            slog.New(slog.DiscardHandler),
		nextSession:       1,
		duration:          DefaultDuration,
		effects:           make(map[int][]*EqEffect),
		taps:              make(map[int][]*LevelTap),
		routingHandlers:   make(map[int]ports.RoutingHandler),
		interruptHandlers: make(map[int]ports.InterruptionHandler),
		missing:           make(map[string]bool),
		captureSignal:     ChannelMarker,
	}
}

// ChannelMarker is the default capture signal: every sample of channel c is (c+1)*100.
func ChannelMarker(_, channel int) int16 {
	return int16((channel + 1) * 100)
}

// SetLogger sets the logger for this platform.
func (p *Platform) SetLogger(logger *slog.Logger) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logger = logger
}

// SetDevices replaces the device enumeration.
func (p *Platform) SetDevices(devices ...domain.AudioDevice) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.devices = append([]domain.AudioDevice(nil), devices...)
}

// SetDuration sets the duration reported by players opened afterwards.
func (p *Platform) SetDuration(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.duration = d
}

// SetCaptureSignal sets the sample generator used by capture streams opened afterwards.
func (p *Platform) SetCaptureSignal(fn func(frame, channel int) int16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.captureSignal = fn
}

// AddMissingFile makes OpenMediaPlayer fail for path.
func (p *Platform) AddMissingFile(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.missing[path] = true
}

// SetFailOpen configures the mock to fail opening media players.
func (p *Platform) SetFailOpen(fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failOpen = fail
}

// SetFailCapture configures the mock to fail opening capture streams.
func (p *Platform) SetFailCapture(fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failCapture = fail
}

// SetFailRender configures the mock to fail opening render streams.
func (p *Platform) SetFailRender(fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failRender = fail
}

// SetFailEffect configures the mock to fail creating EQ effects.
func (p *Platform) SetFailEffect(fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failEffect = fail
}

// SetFailTap configures the mock to fail creating level taps.
func (p *Platform) SetFailTap(fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failTap = fail
}

// SetFailDevices configures the mock to fail device enumeration.
func (p *Platform) SetFailDevices(fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failDevices = fail
}

func (p *Platform) newSession() int {
	id := p.nextSession
	p.nextSession++
	return id
}

// OpenMediaPlayer opens a simulated player.
func (p *Platform) OpenMediaPlayer(path string) (ports.MediaPlayer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failOpen || p.missing[path] {
		return nil, domain.NewAudioEngineError("open", path, "mock open failed", nil)
	}

	player := &Player{
		path:      path,
		sessionID: p.newSession(),
		duration:  p.duration,
		volume:    1,
	}
	p.players = append(p.players, player)
	p.logger.Debug("player opened", slog.String("path", path), slog.Int("session", player.sessionID))
	return player, nil
}

// OpenCapture opens a simulated capture stream.
func (p *Platform) OpenCapture(cfg domain.StreamConfig) (ports.CaptureStream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failCapture {
		return nil, domain.NewAudioEngineError("capture", deviceName(cfg.Device), "mock capture failed", nil)
	}
	stream := &CaptureStream{
		cfg:    cfg,
		signal: p.captureSignal,
		done:   make(chan struct{}),
	}
	p.captures = append(p.captures, stream)
	return stream, nil
}

// OpenRender opens a simulated render stream.
func (p *Platform) OpenRender(cfg domain.StreamConfig) (ports.RenderStream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failRender {
		return nil, domain.NewAudioEngineError("render", deviceName(cfg.Device), "mock render failed", nil)
	}
	stream := &RenderStream{cfg: cfg, sessionID: p.newSession(), volume: 1}
	p.renders = append(p.renders, stream)
	return stream, nil
}

// NewEqEffect creates a simulated EQ effect.
func (p *Platform) NewEqEffect(sessionID int) (ports.EqEffect, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failEffect {
		return nil, domain.NewAudioEngineError("effect", "", "mock effect failed", nil)
	}
	effect := &EqEffect{sessionID: sessionID}
	p.effects[sessionID] = append(p.effects[sessionID], effect)
	return effect, nil
}

// NewLevelTap creates a simulated level tap.
func (p *Platform) NewLevelTap(sessionID int) (ports.LevelTap, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failTap {
		return nil, domain.NewAudioEngineError("tap", "", "mock tap failed", nil)
	}
	tap := &LevelTap{sessionID: sessionID}
	p.taps[sessionID] = append(p.taps[sessionID], tap)
	return tap, nil
}

// Devices returns the configured device list.
func (p *Platform) Devices() ([]domain.AudioDevice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failDevices {
		return nil, domain.NewAudioEngineError("devices", "", "mock enumeration failed", nil)
	}
	return append([]domain.AudioDevice(nil), p.devices...), nil
}

// WatchRouting registers a routing handler.
func (p *Platform) WatchRouting(handler ports.RoutingHandler) func() {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextWatch
	p.nextWatch++
	p.routingHandlers[id] = handler
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.routingHandlers, id)
	}
}

// WatchInterruptions registers an interruption handler.
func (p *Platform) WatchInterruptions(handler ports.InterruptionHandler) func() {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextWatch
	p.nextWatch++
	p.interruptHandlers[id] = handler
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.interruptHandlers, id)
	}
}

// Close releases every open resource.
func (p *Platform) Close() error {
	p.mu.Lock()
	players := append([]*Player(nil), p.players...)
	captures := append([]*CaptureStream(nil), p.captures...)
	renders := append([]*RenderStream(nil), p.renders...)
	p.closed = true
	p.mu.Unlock()

	for _, player := range players {
		_ = player.Release()
	}
	for _, c := range captures {
		_ = c.Release()
	}
	for _, r := range renders {
		_ = r.Release()
	}
	return nil
}

// SetRoutedDevice simulates a routing change. Nil means no device is routed.
func (p *Platform) SetRoutedDevice(device *domain.AudioDevice) {
	p.mu.Lock()
	handlers := make([]ports.RoutingHandler, 0, len(p.routingHandlers))
	for _, h := range p.routingHandlers {
		handlers = append(handlers, h)
	}
	p.mu.Unlock()

	for _, h := range handlers {
		h(device)
	}
}

// SimulateInterruption delivers a session interruption to all watchers.
func (p *Platform) SimulateInterruption(began, shouldResume bool) {
	p.mu.Lock()
	handlers := make([]ports.InterruptionHandler, 0, len(p.interruptHandlers))
	for _, h := range p.interruptHandlers {
		handlers = append(handlers, h)
	}
	p.mu.Unlock()

	for _, h := range handlers {
		h(began, shouldResume)
	}
}

// EmitLevel delivers one RMS reading to every enabled tap on sessionID.
func (p *Platform) EmitLevel(sessionID int, rmsMillibels float64) {
	p.mu.Lock()
	taps := append([]*LevelTap(nil), p.taps[sessionID]...)
	p.mu.Unlock()

	for _, tap := range taps {
		tap.Emit(rmsMillibels)
	}
}

// Player returns the most recently opened player for path, or nil.
func (p *Platform) Player(path string) *Player {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.players) - 1; i >= 0; i-- {
		if p.players[i].path == path {
			return p.players[i]
		}
	}
	return nil
}

// Captures returns every capture stream opened so far.
func (p *Platform) Captures() []*CaptureStream {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*CaptureStream(nil), p.captures...)
}

// Renders returns every render stream opened so far.
func (p *Platform) Renders() []*RenderStream {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*RenderStream(nil), p.renders...)
}

// Effect returns the most recent EQ effect on sessionID, or nil.
func (p *Platform) Effect(sessionID int) *EqEffect {
	p.mu.Lock()
	defer p.mu.Unlock()
	effects := p.effects[sessionID]
	if len(effects) == 0 {
		return nil
	}
	return effects[len(effects)-1]
}

// Tap returns the most recent level tap on sessionID, or nil.
func (p *Platform) Tap(sessionID int) *LevelTap {
	p.mu.Lock()
	defer p.mu.Unlock()
	taps := p.taps[sessionID]
	if len(taps) == 0 {
		return nil
	}
	return taps[len(taps)-1]
}

// RoutingWatchers returns the number of registered routing handlers.
func (p *Platform) RoutingWatchers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.routingHandlers)
}

func deviceName(d *domain.AudioDevice) string {
	if d == nil {
		return "default"
	}
	return d.Name
}

// Verify that Platform implements the platform interfaces
var (
	_ ports.AudioPlatform      = (*Platform)(nil)
	_ ports.InterruptionSource = (*Platform)(nil)
)
