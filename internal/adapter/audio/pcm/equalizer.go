package pcm

import (
	"math"
	"sync"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"

	"github.com/tejashwikalptaru/gomixer/internal/domain"
	"github.com/tejashwikalptaru/gomixer/internal/ports"
)

// midQ is the Q of the mid peaking section; its bandwidth is frequency/midQ.
const midQ = 1.0

// bandSection maps one band onto a beep parametric section. The bass and
// treble bands are shelves: sections centered at 0 Hz and at Nyquist, with
// the band edge at freq. Band-edge gain is half the boost, in dB.
func bandSection(band domain.EqBandIndex, gainDB, freq float64, rate int) effects.MonoEqualizerSection {
	nyquist := float64(rate) / 2
	s := effects.MonoEqualizerSection{G: gainDB, GB: gainDB / 2}
	switch band {
	case domain.BandBass:
		s.F0, s.Bf = 0, freq
	case domain.BandTreble:
		s.F0, s.Bf = nyquist, nyquist-freq
	default:
		s.F0, s.Bf = freq, freq/midQ
	}
	return s
}

// channelSource feeds one channel of an interleaved buffer to a beep streamer,
// duplicated on both sides of each frame.
type channelSource struct {
	buf      []float32
	channels int
	pos      int
}

func (c *channelSource) load(buf []float32, channels, channel int) {
	c.buf, c.channels, c.pos = buf, channels, channel
}

func (c *channelSource) Stream(samples [][2]float64) (int, bool) {
	n := 0
	for ; n < len(samples) && c.pos < len(c.buf); n++ {
		v := float64(c.buf[c.pos])
		samples[n] = [2]float64{v, v}
		c.pos += c.channels
	}
	return n, n > 0
}

func (c *channelSource) Err() error { return nil }

// clampFrequency keeps a corner frequency strictly inside (0, nyquist).
func clampFrequency(freq float64, rate int) float64 {
	nyquist := float64(rate) / 2
	return min(max(freq, 10), nyquist*0.99)
}

// Equalizer is a software 3-band EQ: low shelf, peaking mid and high shelf,
// built from beep equalizer sections. Each channel has its own filter chain.
type Equalizer struct {
	platform  *Platform
	sessionID int

	mu       sync.Mutex
	bands    [domain.EqBandCount]domain.EqBand
	enabled  bool
	released bool

	// Filter state, rebuilt when the bands or the stream layout change.
	dirty    bool
	flat     bool
	rate     int
	channels int
	sources  []*channelSource
	chains   []beep.Streamer
	frames   [][2]float64
}

var _ ports.EqEffect = (*Equalizer)(nil)

func newEqualizer(platform *Platform, sessionID int) *Equalizer {
	return &Equalizer{
		platform:  platform,
		sessionID: sessionID,
		bands:     domain.DefaultEqSettings().Bands(),
		dirty:     true,
	}
}

// ApplyBands replaces all three bands.
func (e *Equalizer) ApplyBands(bands [domain.EqBandCount]domain.EqBand) error {
	for _, b := range bands {
		if math.IsNaN(b.Gain) || math.IsInf(b.Gain, 0) || math.IsNaN(b.Frequency) || math.IsInf(b.Frequency, 0) {
			return domain.ErrInvalidParameter
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return domain.ErrReleased
	}
	e.bands = bands
	e.dirty = true
	return nil
}

// SetEnabled turns filtering on or off. A disabled EQ passes audio through.
func (e *Equalizer) SetEnabled(enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return domain.ErrReleased
	}
	if enabled && !e.enabled {
		e.dirty = true
	}
	e.enabled = enabled
	return nil
}

// Bands returns the bands currently applied.
func (e *Equalizer) Bands() [domain.EqBandCount]domain.EqBand {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bands
}

// Release detaches the EQ from its session.
func (e *Equalizer) Release() error {
	e.mu.Lock()
	if e.released {
		e.mu.Unlock()
		return domain.ErrReleased
	}
	e.released = true
	e.enabled = false
	e.mu.Unlock()

	e.platform.detachEqualizer(e.sessionID, e)
	return nil
}

// process filters interleaved samples in place.
func (e *Equalizer) process(buf []float32, channels, rate int) {
	if channels <= 0 || rate <= 0 {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.enabled {
		return
	}

	if e.dirty || e.rate != rate || e.channels != channels {
		e.rebuild(channels, rate)
	}
	if e.flat {
		return
	}

	frames := len(buf) / channels
	if cap(e.frames) < frames {
		e.frames = make([][2]float64, frames)
	}
	out := e.frames[:frames]
	for ch := range channels {
		e.sources[ch].load(buf[:frames*channels], channels, ch)
		e.chains[ch].Stream(out)
		for i := range out {
			buf[i*channels+ch] = float32(out[i][0])
		}
	}
}

// rebuild designs the filter chains. Zero-gain bands are left out; an
// all-flat EQ bypasses filtering. Filter history restarts.
func (e *Equalizer) rebuild(channels, rate int) {
	var sections effects.MonoEqualizerSections
	for i, b := range e.bands {
		if b.Gain == 0 {
			continue
		}
		band := domain.EqBandIndex(i)
		sections = append(sections, bandSection(band, b.Gain, clampFrequency(b.Frequency, rate), rate))
	}

	e.flat = len(sections) == 0
	e.sources = make([]*channelSource, channels)
	e.chains = make([]beep.Streamer, channels)
	if !e.flat {
		for ch := range channels {
			e.sources[ch] = &channelSource{}
			e.chains[ch] = effects.NewEqualizer(e.sources[ch], beep.SampleRate(rate), sections)
		}
	}

	e.rate, e.channels = rate, channels
	e.dirty = false
}
