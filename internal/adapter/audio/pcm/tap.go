package pcm

import (
	"math"
	"sync"
	"time"

	"github.com/tejashwikalptaru/gomixer/internal/domain"
	"github.com/tejashwikalptaru/gomixer/internal/ports"
)

// SilenceMillibels is reported for ticks with no signal.
const SilenceMillibels = -9600.0

// RMSMillibels converts a linear RMS of full scale to millibels.
func RMSMillibels(rms float64) float64 {
	if rms <= 0 || math.IsNaN(rms) {
		return SilenceMillibels
	}
	return max(2000*math.Log10(rms), SilenceMillibels)
}

// LevelTap accumulates the energy of the samples rendered on its session and
// reports it once per interval.
type LevelTap struct {
	platform  *Platform
	sessionID int
	interval  time.Duration

	mu         sync.Mutex
	sumSquares float64
	count      int
	listener   func(rmsMillibels float64)
	enabled    bool
	released   bool
	stop       chan struct{}
}

var _ ports.LevelTap = (*LevelTap)(nil)

func newLevelTap(platform *Platform, sessionID int, interval time.Duration) *LevelTap {
	return &LevelTap{platform: platform, sessionID: sessionID, interval: interval}
}

// SetCaptureListener registers the per-tick callback.
func (t *LevelTap) SetCaptureListener(fn func(rmsMillibels float64)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listener = fn
}

// SetEnabled starts or stops the tick goroutine.
func (t *LevelTap) SetEnabled(enabled bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.released {
		return domain.ErrReleased
	}
	if enabled == t.enabled {
		return nil
	}
	t.enabled = enabled
	t.sumSquares, t.count = 0, 0

	if enabled {
		t.stop = make(chan struct{})
		go t.run(t.stop)
		return nil
	}
	close(t.stop)
	t.stop = nil
	return nil
}

// Enabled reports whether ticks are being delivered.
func (t *LevelTap) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

// Release stops ticks and detaches the tap. A tick already past its
// stop check may still complete; none start afterwards.
func (t *LevelTap) Release() error {
	t.mu.Lock()
	if t.released {
		t.mu.Unlock()
		return domain.ErrReleased
	}
	t.released = true
	t.enabled = false
	t.listener = nil
	if t.stop != nil {
		close(t.stop)
		t.stop = nil
	}
	t.mu.Unlock()

	t.platform.detachTap(t.sessionID, t)
	return nil
}

// observe adds rendered samples to the current window.
func (t *LevelTap) observe(buf []float32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	for _, s := range buf {
		t.sumSquares += float64(s) * float64(s)
	}
	t.count += len(buf)
}

// measure closes the current window and returns its level.
func (t *LevelTap) measure() (float64, func(float64)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	level := SilenceMillibels
	if t.count > 0 {
		level = RMSMillibels(math.Sqrt(t.sumSquares / float64(t.count)))
	}
	t.sumSquares, t.count = 0, 0
	return level, t.listener
}

func (t *LevelTap) run(stop <-chan struct{}) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		// Ticker and stop may both be ready; stop wins.
		select {
		case <-stop:
			return
		default:
		}

		level, fn := t.measure()
		if fn != nil {
			fn(level)
		}
	}
}
