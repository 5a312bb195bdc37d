package pcm

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/tejashwikalptaru/gomixer/internal/domain"
	"github.com/tejashwikalptaru/gomixer/internal/ports"
)

// Signal produces the capture sample for a frame and channel, in [-1, 1].
type Signal func(frame, channel, sampleRate int) float32

// ToneSignal is the default capture signal: a quarter-scale sine per channel,
// 220 Hz on channel 0 and one octave higher for each following channel.
func ToneSignal(frame, channel, sampleRate int) float32 {
	freq := 220 * math.Exp2(float64(channel))
	return float32(0.25 * math.Sin(2*math.Pi*freq*float64(frame)/float64(sampleRate)))
}

// CaptureStream synthesizes input paced at the real buffer rate.
type CaptureStream struct {
	platform *Platform
	cfg      domain.StreamConfig
	signal   Signal

	mu       sync.Mutex
	started  bool
	released bool
	frame    int
	next     time.Time
	done     chan struct{}
}

var _ ports.CaptureStream = (*CaptureStream)(nil)

func newCaptureStream(platform *Platform, cfg domain.StreamConfig, signal Signal) *CaptureStream {
	return &CaptureStream{
		platform: platform,
		cfg:      cfg,
		signal:   signal,
		done:     make(chan struct{}),
	}
}

func (c *CaptureStream) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.released {
		return domain.ErrReleased
	}
	if !c.started {
		c.started = true
		c.next = time.Now()
	}
	return nil
}

// Read waits for the next buffer period, then fills at most one buffer of
// whole frames.
func (c *CaptureStream) Read(buf []int16) (int, error) {
	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		return 0, domain.ErrReleased
	}
	if !c.started {
		c.mu.Unlock()
		return 0, domain.ErrNotInitialized
	}
	channels := max(c.cfg.Channels, 1)
	frames := min(len(buf)/channels, c.cfg.FramesPerBuffer)
	c.next = c.next.Add(c.cfg.BufferDuration())
	wait := time.Until(c.next)
	done := c.done
	c.mu.Unlock()

	if wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-done:
			timer.Stop()
			return 0, domain.ErrReleased
		case <-timer.C:
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return 0, domain.ErrReleased
	}
	for f := range frames {
		for ch := range channels {
			v := c.signal(c.frame+f, ch, c.cfg.SampleRate)
			buf[f*channels+ch] = int16(max(min(v, 1), -1) * 32767)
		}
	}
	c.frame += frames
	return frames * channels, nil
}

func (c *CaptureStream) Config() domain.StreamConfig { return c.cfg }

// Release unblocks a pending Read.
func (c *CaptureStream) Release() error {
	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		return domain.ErrReleased
	}
	c.released = true
	close(c.done)
	c.mu.Unlock()

	c.platform.forgetCapture(c)
	return nil
}

// RenderStream pushes written buffers through the session's effects to the sink.
type RenderStream struct {
	platform  *Platform
	cfg       domain.StreamConfig
	sessionID int

	mu       sync.Mutex
	volume   float64
	started  bool
	released bool
	scratch  []float32
}

var _ ports.RenderStream = (*RenderStream)(nil)

func newRenderStream(platform *Platform, cfg domain.StreamConfig, sessionID int) *RenderStream {
	return &RenderStream{platform: platform, cfg: cfg, sessionID: sessionID, volume: 1}
}

func (r *RenderStream) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return domain.ErrReleased
	}
	r.started = true
	return nil
}

// Write renders buf synchronously; writes are serialized per stream.
func (r *RenderStream) Write(buf []int16) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.released {
		return 0, domain.ErrReleased
	}
	if !r.started {
		return 0, domain.ErrNotInitialized
	}

	if cap(r.scratch) < len(buf) {
		r.scratch = make([]float32, len(buf))
	}
	r.scratch = r.scratch[:len(buf)]
	for i, s := range buf {
		r.scratch[i] = float32(s) / 32768
	}
	r.platform.process(r.sessionID, r.scratch, max(r.cfg.Channels, 1), r.cfg.SampleRate, r.volume)
	return len(buf), nil
}

func (r *RenderStream) SetVolume(volume float64) error {
	if volume < 0 || math.IsNaN(volume) || math.IsInf(volume, 0) {
		return fmt.Errorf("%w: %v", domain.ErrInvalidVolume, volume)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return domain.ErrReleased
	}
	r.volume = volume
	return nil
}

// Volume returns the current gain.
func (r *RenderStream) Volume() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.volume
}

func (r *RenderStream) SessionID() int { return r.sessionID }

func (r *RenderStream) Config() domain.StreamConfig { return r.cfg }

func (r *RenderStream) Release() error {
	r.mu.Lock()
	if r.released {
		r.mu.Unlock()
		return domain.ErrReleased
	}
	r.released = true
	r.mu.Unlock()

	r.platform.releaseRender(r)
	return nil
}
