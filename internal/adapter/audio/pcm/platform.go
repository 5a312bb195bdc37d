// Package pcm is a pure-Go software implementation of ports.AudioPlatform.
//
// Files are decoded completely on open (WAV, AIFF, MP3, Ogg Vorbis) and
// rendered in real time on a ticker. Every audio session runs its samples
// through the same chain: EQ, volume, level taps, then the sink. Capture
// streams synthesize a tone per channel, and routing and interruptions are
// driven through SetRoutedDevice and Interrupt, which makes the backend
// usable headless and in tests.
package pcm

import (
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/tejashwikalptaru/gomixer/internal/domain"
	"github.com/tejashwikalptaru/gomixer/internal/ports"
)

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("pcm platform closed")

// Config tunes the software backend.
type Config struct {
	// Period is the render tick of media players.
	Period time.Duration

	// MeterInterval is the level tap reporting interval.
	MeterInterval time.Duration

	// Sink receives processed output. Nil discards it.
	Sink Sink

	// Devices is the simulated device enumeration. Nil uses DefaultDevices.
	Devices []domain.AudioDevice

	// Signal generates capture input. Nil uses ToneSignal.
	Signal Signal
}

// DefaultConfig returns 20 ms render ticks and 50 ms meter ticks.
func DefaultConfig() Config {
	return Config{
		Period:        20 * time.Millisecond,
		MeterInterval: 50 * time.Millisecond,
	}
}

// DefaultDevices is a built-in microphone and speaker pair.
func DefaultDevices() []domain.AudioDevice {
	return []domain.AudioDevice{
		{
			ID:            1,
			Name:          "Built-in Microphone",
			Type:          domain.PortBuiltInMic,
			Source:        true,
			ChannelCounts: []int{1, 2},
		},
		{
			ID:            2,
			Name:          "Built-in Speaker",
			Type:          domain.PortBuiltInMic,
			Sink:          true,
			ChannelCounts: []int{2},
		},
	}
}

// session is the effect chain attached to one audio session ID.
type session struct {
	eq   *Equalizer
	taps []*LevelTap
}

// Platform is the software audio platform.
//
// Thread-safety: all methods are safe for concurrent use. Callbacks are
// never invoked while the platform lock is held.
type Platform struct {
	// Dependencies
	logger *slog.Logger
	cfg    Config
	sink   Sink

	mu          sync.Mutex
	nextSession int
	nextWatch   int
	devices     []domain.AudioDevice
	sessions    map[int]*session
	players     map[*Player]struct{}
	captures    map[*CaptureStream]struct{}
	renders     map[*RenderStream]struct{}
	routing     map[int]ports.RoutingHandler
	interrupts  map[int]ports.InterruptionHandler
	closed      bool
}

// NewPlatform creates a software platform. A nil logger discards output.
func NewPlatform(logger *slog.Logger, cfg Config) *Platform {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	def := DefaultConfig()
	if cfg.Period <= 0 {
		cfg.Period = def.Period
	}
	if cfg.MeterInterval <= 0 {
		cfg.MeterInterval = def.MeterInterval
	}
	if cfg.Signal == nil {
		cfg.Signal = ToneSignal
	}
	if cfg.Devices == nil {
		cfg.Devices = DefaultDevices()
	}
	sink := cfg.Sink
	if sink == nil {
		sink = Discard{}
	}

	return &Platform{
		logger:      logger.With(slog.String("component", "pcm")),
		cfg:         cfg,
		sink:        sink,
		nextSession: 1,
		devices:     slices.Clone(cfg.Devices),
		sessions:    make(map[int]*session),
		players:     make(map[*Player]struct{}),
		captures:    make(map[*CaptureStream]struct{}),
		renders:     make(map[*RenderStream]struct{}),
		routing:     make(map[int]ports.RoutingHandler),
		interrupts:  make(map[int]ports.InterruptionHandler),
	}
}

func (p *Platform) newSessionLocked() int {
	id := p.nextSession
	p.nextSession++
	return id
}

// OpenMediaPlayer decodes path and returns a paused player.
func (p *Platform) OpenMediaPlayer(path string) (ports.MediaPlayer, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	// Decoding happens outside the lock; files may be large.
	c, info, err := decodeFile(path)
	if err != nil {
		return nil, domain.NewAudioEngineError("open", path, "failed to decode file", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}

	player := newPlayer(p, p.newSessionLocked(), c, info, p.cfg.Period)
	p.players[player] = struct{}{}

	p.logger.Debug("player opened",
		slog.String("path", path),
		slog.String("title", info.Title),
		slog.String("artist", info.Artist),
		slog.Int("sample_rate", c.sampleRate),
		slog.Int("channels", c.channels),
		slog.Duration("duration", info.Duration),
		slog.Int("session", player.sessionID))
	return player, nil
}

// OpenCapture opens a synthetic capture stream.
func (p *Platform) OpenCapture(cfg domain.StreamConfig) (ports.CaptureStream, error) {
	cfg, err := normalizeStreamConfig(cfg)
	if err != nil {
		return nil, domain.NewAudioEngineError("capture", deviceName(cfg.Device), "invalid stream config", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	if cfg.Device != nil && !p.hasDeviceLocked(cfg.Device.ID, true) {
		return nil, domain.NewAudioEngineError("capture", cfg.Device.Name, "input device not present", nil)
	}

	stream := newCaptureStream(p, cfg, p.cfg.Signal)
	p.captures[stream] = struct{}{}
	p.logger.Debug("capture opened",
		slog.String("device", deviceName(cfg.Device)),
		slog.Int("channels", cfg.Channels),
		slog.Int("frames_per_buffer", cfg.FramesPerBuffer))
	return stream, nil
}

// OpenRender opens a render stream with its own audio session.
func (p *Platform) OpenRender(cfg domain.StreamConfig) (ports.RenderStream, error) {
	cfg, err := normalizeStreamConfig(cfg)
	if err != nil {
		return nil, domain.NewAudioEngineError("render", deviceName(cfg.Device), "invalid stream config", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}

	stream := newRenderStream(p, cfg, p.newSessionLocked())
	p.renders[stream] = struct{}{}
	p.logger.Debug("render opened",
		slog.String("device", deviceName(cfg.Device)),
		slog.Int("session", stream.sessionID))
	return stream, nil
}

func normalizeStreamConfig(cfg domain.StreamConfig) (domain.StreamConfig, error) {
	if cfg.SampleRate <= 0 || cfg.FramesPerBuffer <= 0 {
		return cfg, domain.NewValidationError("stream", cfg, "sample rate and buffer size must be positive")
	}
	cfg.Channels = max(cfg.Channels, 1)
	return cfg, nil
}

// NewEqEffect attaches an equalizer to sessionID, replacing any previous one.
func (p *Platform) NewEqEffect(sessionID int) (ports.EqEffect, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}

	eq := newEqualizer(p, sessionID)
	p.sessionLocked(sessionID).eq = eq
	return eq, nil
}

// NewLevelTap attaches a level tap to sessionID.
func (p *Platform) NewLevelTap(sessionID int) (ports.LevelTap, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}

	tap := newLevelTap(p, sessionID, p.cfg.MeterInterval)
	s := p.sessionLocked(sessionID)
	s.taps = append(s.taps, tap)
	return tap, nil
}

func (p *Platform) sessionLocked(id int) *session {
	s, ok := p.sessions[id]
	if !ok {
		s = &session{}
		p.sessions[id] = s
	}
	return s
}

// Devices returns the simulated enumeration.
func (p *Platform) Devices() ([]domain.AudioDevice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	return slices.Clone(p.devices), nil
}

// SetDevices replaces the simulated enumeration.
func (p *Platform) SetDevices(devices ...domain.AudioDevice) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.devices = slices.Clone(devices)
}

func (p *Platform) hasDeviceLocked(id int, source bool) bool {
	for _, d := range p.devices {
		if d.ID == id && (!source || d.IsSource()) {
			return true
		}
	}
	return false
}

// WatchRouting registers a routing handler.
func (p *Platform) WatchRouting(handler ports.RoutingHandler) func() {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextWatch
	p.nextWatch++
	p.routing[id] = handler
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.routing, id)
	}
}

// WatchInterruptions registers an interruption handler.
func (p *Platform) WatchInterruptions(handler ports.InterruptionHandler) func() {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextWatch
	p.nextWatch++
	p.interrupts[id] = handler
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.interrupts, id)
	}
}

// SetRoutedDevice reports a routing change to every watcher. Nil means
// nothing is routed.
func (p *Platform) SetRoutedDevice(device *domain.AudioDevice) {
	p.mu.Lock()
	handlers := make([]ports.RoutingHandler, 0, len(p.routing))
	for _, h := range p.routing {
		handlers = append(handlers, h)
	}
	p.mu.Unlock()

	p.logger.Info("routing changed", slog.String("device", deviceName(device)))
	for _, h := range handlers {
		h(device)
	}
}

// Interrupt reports a session interruption to every watcher.
func (p *Platform) Interrupt(began, shouldResume bool) {
	p.mu.Lock()
	handlers := make([]ports.InterruptionHandler, 0, len(p.interrupts))
	for _, h := range p.interrupts {
		handlers = append(handlers, h)
	}
	p.mu.Unlock()

	p.logger.Info("session interruption", slog.Bool("began", began), slog.Bool("should_resume", shouldResume))
	for _, h := range handlers {
		h(began, shouldResume)
	}
}

// process runs one buffer through the session chain in place.
func (p *Platform) process(sessionID int, buf []float32, channels, sampleRate int, volume float64) {
	p.mu.Lock()
	var (
		eq   *Equalizer
		taps []*LevelTap
	)
	if s, ok := p.sessions[sessionID]; ok {
		eq = s.eq
		taps = slices.Clone(s.taps)
	}
	sink := p.sink
	p.mu.Unlock()

	if eq != nil {
		eq.process(buf, channels, sampleRate)
	}
	if volume != 1 {
		gain := float32(volume)
		for i := range buf {
			buf[i] *= gain
		}
	}
	for _, t := range taps {
		t.observe(buf)
	}
	if err := sink.Write(sessionID, buf, channels, sampleRate); err != nil && !errors.Is(err, ErrClosed) {
		p.logger.Warn("sink write failed", slog.Int("session", sessionID), slog.Any("error", err))
	}
}

func (p *Platform) detachEqualizer(sessionID int, eq *Equalizer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.sessions[sessionID]; ok && s.eq == eq {
		s.eq = nil
		p.dropSessionIfEmptyLocked(sessionID, s)
	}
}

func (p *Platform) detachTap(sessionID int, tap *LevelTap) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.sessions[sessionID]; ok {
		s.taps = slices.DeleteFunc(s.taps, func(t *LevelTap) bool { return t == tap })
		p.dropSessionIfEmptyLocked(sessionID, s)
	}
}

func (p *Platform) dropSessionIfEmptyLocked(id int, s *session) {
	if s.eq == nil && len(s.taps) == 0 {
		delete(p.sessions, id)
	}
}

func (p *Platform) releasePlayer(player *Player) {
	p.mu.Lock()
	delete(p.players, player)
	p.mu.Unlock()
	p.closeSessionOutput(player.sessionID)
}

func (p *Platform) releaseRender(r *RenderStream) {
	p.mu.Lock()
	delete(p.renders, r)
	p.mu.Unlock()
	p.closeSessionOutput(r.sessionID)
}

func (p *Platform) forgetCapture(c *CaptureStream) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.captures, c)
}

func (p *Platform) closeSessionOutput(sessionID int) {
	if err := p.sink.CloseSession(sessionID); err != nil {
		p.logger.Warn("closing session output failed", slog.Int("session", sessionID), slog.Any("error", err))
	}
}

// OpenStreams returns the number of open players, capture and render streams.
func (p *Platform) OpenStreams() (players, captures, renders int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.players), len(p.captures), len(p.renders)
}

// Close releases every open player, stream and tap, then closes the sink.
func (p *Platform) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	players := make([]*Player, 0, len(p.players))
	for pl := range p.players {
		players = append(players, pl)
	}
	captures := make([]*CaptureStream, 0, len(p.captures))
	for c := range p.captures {
		captures = append(captures, c)
	}
	renders := make([]*RenderStream, 0, len(p.renders))
	for r := range p.renders {
		renders = append(renders, r)
	}
	var taps []*LevelTap
	for _, s := range p.sessions {
		taps = append(taps, s.taps...)
	}
	p.mu.Unlock()

	for _, t := range taps {
		_ = t.Release()
	}
	for _, pl := range players {
		_ = pl.Release()
	}
	for _, c := range captures {
		_ = c.Release()
	}
	for _, r := range renders {
		_ = r.Release()
	}
	p.logger.Debug("platform closed")
	return p.sink.Close()
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
