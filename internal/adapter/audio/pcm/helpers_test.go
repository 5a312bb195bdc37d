package pcm

import (
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/require"

	"github.com/tejashwikalptaru/gomixer/internal/logger"
)

const (
	eventuallyWait = 2 * time.Second
	eventuallyTick = 5 * time.Millisecond
)

// writeSine writes a 16-bit WAV holding a sine of freq Hz at amplitude amp.
func writeSine(t *testing.T, dir, name string, rate, channels int, length time.Duration, freq, amp float64) string {
	t.Helper()

	frames := durationToFrames(length, rate)
	data := make([]int, frames*channels)
	for f := range frames {
		v := int(amp * 32767 * math.Sin(2*math.Pi*freq*float64(f)/float64(rate)))
		for ch := range channels {
			data[f*channels+ch] = v
		}
	}

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	enc := wav.NewEncoder(f, rate, 16, channels, 1)
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Data:           data,
		Format:         &audio.Format{NumChannels: channels, SampleRate: rate},
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())
	return path
}

func newTestPlatform(t *testing.T, cfg Config) *Platform {
	t.Helper()
	p := NewPlatform(logger.NewTestLogger(), cfg)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

// memorySink keeps everything written, per session.
type memorySink struct {
	mu     sync.Mutex
	data   map[int][]float32
	closed map[int]bool
}

func newMemorySink() *memorySink {
	return &memorySink{data: make(map[int][]float32), closed: make(map[int]bool)}
}

func (s *memorySink) Write(sessionID int, samples []float32, _, _ int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[sessionID] = append(s.data[sessionID], samples...)
	return nil
}

func (s *memorySink) CloseSession(sessionID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed[sessionID] = true
	return nil
}

func (s *memorySink) Close() error { return nil }

func (s *memorySink) samples(sessionID int) []float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float32(nil), s.data[sessionID]...)
}

func (s *memorySink) sessionClosed(sessionID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed[sessionID]
}

func rms(buf []float32) float64 {
	if len(buf) == 0 {
		return 0
	}
	var sum float64
	for _, v := range buf {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum / float64(len(buf)))
}
