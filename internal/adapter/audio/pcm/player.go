package pcm

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/tejashwikalptaru/gomixer/internal/domain"
	"github.com/tejashwikalptaru/gomixer/internal/ports"
)

// Player renders a decoded clip in real time, one period per tick.
type Player struct {
	platform  *Platform
	sessionID int
	clip      *clip
	info      domain.TrackInfo
	period    time.Duration

	mu           sync.Mutex
	pos          int // frames
	volume       float64
	playing      bool
	released     bool
	onCompletion func()
	stop         chan struct{}
	done         chan struct{}
}

var _ ports.MediaPlayer = (*Player)(nil)

func newPlayer(platform *Platform, sessionID int, c *clip, info domain.TrackInfo, period time.Duration) *Player {
	return &Player{
		platform:  platform,
		sessionID: sessionID,
		clip:      c,
		info:      info,
		period:    period,
		volume:    1,
	}
}

// Start begins rendering from the current position. A player at the end
// restarts from the beginning.
func (p *Player) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.released {
		return domain.ErrReleased
	}
	if p.playing {
		return nil
	}
	if p.pos >= p.clip.frames() {
		p.pos = 0
	}

	p.playing = true
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	go p.run(p.stop, p.done)
	return nil
}

// Pause stops rendering and waits for the render goroutine to exit.
func (p *Player) Pause() error {
	p.mu.Lock()
	if p.released {
		p.mu.Unlock()
		return domain.ErrReleased
	}
	if !p.playing {
		p.mu.Unlock()
		return nil
	}
	p.playing = false
	stop, done := p.stop, p.done
	p.stop = nil
	p.mu.Unlock()

	close(stop)
	<-done
	return nil
}

// SeekTo moves the position, clamped to [0, duration].
func (p *Player) SeekTo(position time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.released {
		return domain.ErrReleased
	}
	p.pos = min(max(durationToFrames(position, p.clip.sampleRate), 0), p.clip.frames())
	return nil
}

func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

func (p *Player) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return framesToDuration(p.pos, p.clip.sampleRate)
}

func (p *Player) Duration() time.Duration {
	return p.clip.duration()
}

// SetVolume sets the linear gain applied before the level tap.
func (p *Player) SetVolume(volume float64) error {
	if volume < 0 || math.IsNaN(volume) || math.IsInf(volume, 0) {
		return fmt.Errorf("%w: %v", domain.ErrInvalidVolume, volume)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return domain.ErrReleased
	}
	p.volume = volume
	return nil
}

// Volume returns the current gain.
func (p *Player) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// SetOnCompletion registers the end-of-media callback. It runs on its own goroutine.
func (p *Player) SetOnCompletion(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onCompletion = fn
}

func (p *Player) SessionID() int { return p.sessionID }

func (p *Player) Info() domain.TrackInfo { return p.info }

// Release stops rendering, waits for the render goroutine and closes the
// session's sink output.
func (p *Player) Release() error {
	p.mu.Lock()
	if p.released {
		p.mu.Unlock()
		return domain.ErrReleased
	}
	p.released = true
	p.playing = false
	p.onCompletion = nil
	stop, done := p.stop, p.done
	p.stop = nil
	p.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	if done != nil {
		<-done
	}

	p.platform.releasePlayer(p)
	return nil
}

// chunk copies the next period of audio and advances the position.
// finished is true when the chunk reaches the end of the clip.
func (p *Player) chunk(dst []float32) (buf []float32, volume float64, finished bool, onDone func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.playing {
		return dst[:0], p.volume, true, nil
	}

	ch := p.clip.channels
	frames := max(durationToFrames(p.period, p.clip.sampleRate), 1)
	end := min(p.pos+frames, p.clip.frames())

	n := copy(dst[:(end-p.pos)*ch], p.clip.samples[p.pos*ch:end*ch])
	p.pos = end

	if end >= p.clip.frames() {
		p.playing = false
		p.stop = nil
		return dst[:n], p.volume, true, p.onCompletion
	}
	return dst[:n], p.volume, false, nil
}

func (p *Player) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	frames := max(durationToFrames(p.period, p.clip.sampleRate), 1)
	scratch := make([]float32, frames*p.clip.channels)

	ticker := time.NewTicker(p.period)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		buf, volume, finished, onDone := p.chunk(scratch)
		if len(buf) > 0 {
			p.platform.process(p.sessionID, buf, p.clip.channels, p.clip.sampleRate, volume)
		}

		if finished {
			if onDone != nil {
				go onDone()
			}
			return
		}
	}
}
