package mock

import (
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/tejashwikalptaru/gomixer/internal/domain"
	"github.com/tejashwikalptaru/gomixer/internal/ports"
)

// minReadPeriod keeps a zero-sized capture config from spinning.
const minReadPeriod = time.Millisecond

// Player is a simulated media player.
type Player struct {
	mu sync.Mutex

	path      string
	sessionID int
	duration  time.Duration
	position  time.Duration
	volume    float64
	playing   bool
	released  bool

	onCompletion func()
	startCount   int
	failStart    bool
}

// Start begins simulated playback.
func (p *Player) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return domain.ErrReleased
	}
	if p.failStart {
		return domain.NewAudioEngineError("start", p.path, "mock start failed", nil)
	}
	p.playing = true
	p.startCount++
	return nil
}

// Pause holds the position.
func (p *Player) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return domain.ErrReleased
	}
	p.playing = false
	return nil
}

// SeekTo moves the position, clamped to [0, duration].
func (p *Player) SeekTo(position time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return domain.ErrReleased
	}
	p.position = min(max(position, 0), p.duration)
	return nil
}

// IsPlaying reports whether the player is rendering.
func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Position returns the current position.
func (p *Player) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position
}

// Duration returns the configured duration.
func (p *Player) Duration() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.duration
}

// SetVolume records the volume.
func (p *Player) SetVolume(volume float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return domain.ErrReleased
	}
	p.volume = volume
	return nil
}

// Volume returns the last volume set.
func (p *Player) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// SetOnCompletion registers the end-of-media callback.
func (p *Player) SetOnCompletion(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onCompletion = fn
}

// SessionID returns the player's audio session.
func (p *Player) SessionID() int { return p.sessionID }

// Info describes the simulated file.
func (p *Player) Info() domain.TrackInfo {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(p.path)), ".")
	return domain.TrackInfo{
		FilePath:   p.path,
		Title:      strings.TrimSuffix(filepath.Base(p.path), filepath.Ext(p.path)),
		Format:     ext,
		SampleRate: 44100,
		Channels:   2,
		Duration:   p.duration,
	}
}

// Release frees the player.
func (p *Player) Release() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return domain.ErrReleased
	}
	p.released = true
	p.playing = false
	return nil
}

// Released reports whether Release was called.
func (p *Player) Released() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.released
}

// StartCount returns how many times Start succeeded.
func (p *Player) StartCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.startCount
}

// SetFailStart makes Start fail (for testing).
func (p *Player) SetFailStart(fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failStart = fail
}

// SimulateProgress advances a playing player (for testing).
// Reaching the end stops playback and fires the completion callback.
func (p *Player) SimulateProgress(delta time.Duration) {
	p.mu.Lock()
	if !p.playing || p.released {
		p.mu.Unlock()
		return
	}
	p.position += delta
	finished := p.position >= p.duration
	if finished {
		p.position = p.duration
		p.playing = false
	}
	cb := p.onCompletion
	p.mu.Unlock()

	if finished && cb != nil {
		cb()
	}
}

// SimulateCompletion jumps to the end of the media (for testing).
func (p *Player) SimulateCompletion() {
	p.mu.Lock()
	p.position = p.duration
	p.playing = false
	cb := p.onCompletion
	p.mu.Unlock()

	if cb != nil {
		cb()
	}
}

// CaptureStream is a simulated capture stream producing a deterministic signal.
type CaptureStream struct {
	cfg    domain.StreamConfig
	signal func(frame, channel int) int16

	mu       sync.Mutex
	started  bool
	released bool
	frame    int
	reads    int
	failNext error
	done     chan struct{}
}

// Start begins capturing.
func (c *CaptureStream) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return domain.ErrReleased
	}
	c.started = true
	return nil
}

// Read waits one buffer period, then fills buf.
func (c *CaptureStream) Read(buf []int16) (int, error) {
	period := max(c.cfg.BufferDuration(), minReadPeriod)
	timer := time.NewTimer(period)
	defer timer.Stop()

	select {
	case <-c.done:
		return 0, domain.ErrReleased
	case <-timer.C:
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.released {
		return 0, domain.ErrReleased
	}
	if err := c.failNext; err != nil {
		c.failNext = nil
		return 0, err
	}

	channels := max(c.cfg.Channels, 1)
	frames := len(buf) / channels
	for f := 0; f < frames; f++ {
		for ch := 0; ch < channels; ch++ {
			buf[f*channels+ch] = c.signal(c.frame+f, ch)
		}
	}
	c.frame += frames
	c.reads++
	return frames * channels, nil
}

// Config returns the stream configuration.
func (c *CaptureStream) Config() domain.StreamConfig { return c.cfg }

// Release stops the stream and unblocks a pending Read.
func (c *CaptureStream) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return domain.ErrReleased
	}
	c.released = true
	close(c.done)
	return nil
}

// Released reports whether Release was called.
func (c *CaptureStream) Released() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.released
}

// Reads returns the number of successful reads.
func (c *CaptureStream) Reads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads
}

// FailNextRead makes the next Read return err (for testing).
func (c *CaptureStream) FailNextRead(err error) {
	if err == nil {
		err = errors.New("mock read failed")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failNext = err
}

// RenderStream is a simulated render stream that records what it is given.
type RenderStream struct {
	cfg       domain.StreamConfig
	sessionID int

	mu       sync.Mutex
	volume   float64
	started  bool
	released bool
	written  int
	last     []int16
}

// Start begins rendering.
func (r *RenderStream) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return domain.ErrReleased
	}
	r.started = true
	return nil
}

// Write records buf.
func (r *RenderStream) Write(buf []int16) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return 0, domain.ErrReleased
	}
	r.written += len(buf)
	r.last = append(r.last[:0], buf...)
	return len(buf), nil
}

// SetVolume records the volume.
func (r *RenderStream) SetVolume(volume float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return domain.ErrReleased
	}
	r.volume = volume
	return nil
}

// Volume returns the last volume set.
func (r *RenderStream) Volume() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.volume
}

// SessionID returns the stream's audio session.
func (r *RenderStream) SessionID() int { return r.sessionID }

// Config returns the stream configuration.
func (r *RenderStream) Config() domain.StreamConfig { return r.cfg }

// Release frees the stream.
func (r *RenderStream) Release() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return domain.ErrReleased
	}
	r.released = true
	return nil
}

// Released reports whether Release was called.
func (r *RenderStream) Released() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.released
}

// Written returns the total number of samples written.
func (r *RenderStream) Written() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.written
}

// LastBuffer returns a copy of the most recent write.
func (r *RenderStream) LastBuffer() []int16 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int16(nil), r.last...)
}

// EqEffect is a simulated EQ effect.
type EqEffect struct {
	sessionID int

	mu         sync.Mutex
	bands      [domain.EqBandCount]domain.EqBand
	applyCount int
	enabled    bool
	released   bool
	failApply  bool
}

// ApplyBands records the bands.
func (e *EqEffect) ApplyBands(bands [domain.EqBandCount]domain.EqBand) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return domain.ErrReleased
	}
	if e.failApply {
		return domain.NewAudioEngineError("eq", "", "mock apply failed", nil)
	}
	e.bands = bands
	e.applyCount++
	return nil
}

// SetEnabled records the enabled flag.
func (e *EqEffect) SetEnabled(enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return domain.ErrReleased
	}
	e.enabled = enabled
	return nil
}

// Release frees the effect.
func (e *EqEffect) Release() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return domain.ErrReleased
	}
	e.released = true
	return nil
}

// Bands returns the last applied bands.
func (e *EqEffect) Bands() [domain.EqBandCount]domain.EqBand {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bands
}

// ApplyCount returns how many times ApplyBands succeeded.
func (e *EqEffect) ApplyCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.applyCount
}

// Enabled reports the enabled flag.
func (e *EqEffect) Enabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enabled
}

// Released reports whether Release was called.
func (e *EqEffect) Released() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.released
}

// SetFailApply makes ApplyBands fail (for testing).
func (e *EqEffect) SetFailApply(fail bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failApply = fail
}

// LevelTap is a simulated level tap. Readings are injected with Emit.
type LevelTap struct {
	sessionID int

	mu       sync.Mutex
	listener func(float64)
	enabled  bool
	released bool
}

// SetCaptureListener registers the callback.
func (t *LevelTap) SetCaptureListener(fn func(rmsMillibels float64)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listener = fn
}

// SetEnabled records the enabled flag.
func (t *LevelTap) SetEnabled(enabled bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.released {
		return domain.ErrReleased
	}
	t.enabled = enabled
	return nil
}

// Release frees the tap.
func (t *LevelTap) Release() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.released {
		return domain.ErrReleased
	}
	t.released = true
	t.listener = nil
	return nil
}

// Enabled reports the enabled flag.
func (t *LevelTap) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

// Released reports whether Release was called.
func (t *LevelTap) Released() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.released
}

// Emit delivers a reading if the tap is enabled. It reports whether the listener ran.
func (t *LevelTap) Emit(rmsMillibels float64) bool {
	t.mu.Lock()
	fn := t.listener
	active := t.enabled && !t.released
	t.mu.Unlock()

	if !active || fn == nil {
		return false
	}
	fn(rmsMillibels)
	return true
}

// Verify that the primitives implement their interfaces
var (
	_ ports.MediaPlayer   = (*Player)(nil)
	_ ports.CaptureStream = (*CaptureStream)(nil)
	_ ports.RenderStream  = (*RenderStream)(nil)
	_ ports.EqEffect      = (*EqEffect)(nil)
	_ ports.LevelTap      = (*LevelTap)(nil)
)
