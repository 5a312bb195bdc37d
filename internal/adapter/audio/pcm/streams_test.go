package pcm

import (
	"os"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejashwikalptaru/gomixer/internal/domain"
	"github.com/tejashwikalptaru/gomixer/internal/testutil"
)

func testStreamConfig(channels int) domain.StreamConfig {
	return domain.StreamConfig{SampleRate: 8000, Channels: channels, FramesPerBuffer: 80}
}

func TestCaptureStream_ReadIsPacedAndInterleaved(t *testing.T) {
	marker := func(_, channel, _ int) float32 { return float32(channel+1) / 10 }
	p := newTestPlatform(t, Config{Signal: marker})

	cs, err := p.OpenCapture(testStreamConfig(2))
	require.NoError(t, err)

	buf := make([]int16, 1024)
	_, err = cs.Read(buf)
	assert.ErrorIs(t, err, domain.ErrNotInitialized)

	require.NoError(t, cs.Start())
	start := time.Now()
	for range 3 {
		n, err := cs.Read(buf)
		require.NoError(t, err)
		require.Equal(t, 160, n, "one buffer of whole frames")
	}
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond, "three 10 ms buffers")

	assert.Equal(t, int16(3276), buf[0])
	assert.Equal(t, int16(6553), buf[1])

	require.NoError(t, cs.Release())
	_, err = cs.Read(buf)
	assert.ErrorIs(t, err, domain.ErrReleased)
}

func TestCaptureStream_ReleaseUnblocksRead(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	p := newTestPlatform(t, Config{})
	cs, err := p.OpenCapture(domain.StreamConfig{SampleRate: 8000, Channels: 1, FramesPerBuffer: 8000})
	require.NoError(t, err)
	require.NoError(t, cs.Start())

	errc := make(chan error, 1)
	go func() {
		_, err := cs.Read(make([]int16, 8000))
		errc <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, cs.Release())

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, domain.ErrReleased)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Read did not return after Release")
	}
}

func TestOpenCapture_Validation(t *testing.T) {
	p := newTestPlatform(t, Config{})

	_, err := p.OpenCapture(domain.StreamConfig{SampleRate: 0, FramesPerBuffer: 10})
	assert.ErrorIs(t, err, domain.ErrInvalidParameter)

	_, err = p.OpenCapture(domain.StreamConfig{
		Device:          &domain.AudioDevice{ID: 99, Name: "Gone"},
		SampleRate:      8000,
		FramesPerBuffer: 80,
	})
	var engineErr *domain.AudioEngineError
	require.ErrorAs(t, err, &engineErr)
	assert.Equal(t, "Gone", engineErr.Path)
}

func TestRenderStream_ChainOrder(t *testing.T) {
	sink := newMemorySink()
	// Ticks would reset the window; measure it by hand instead.
	p := newTestPlatform(t, Config{Sink: sink, MeterInterval: time.Hour})

	rs, err := p.OpenRender(testStreamConfig(1))
	require.NoError(t, err)
	tap, err := p.NewLevelTap(rs.SessionID())
	require.NoError(t, err)
	require.NoError(t, tap.SetEnabled(true))

	_, err = rs.Write([]int16{100})
	assert.ErrorIs(t, err, domain.ErrNotInitialized)

	require.NoError(t, rs.Start())
	require.NoError(t, rs.SetVolume(0.5))

	n, err := rs.Write([]int16{16384, -16384})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []float32{0.25, -0.25}, sink.samples(rs.SessionID()), "volume applies before the sink")

	level, _ := tap.(*LevelTap).measure()
	assert.InDelta(t, RMSMillibels(0.25), level, 1e-9, "tap sees post-volume signal")

	assert.ErrorIs(t, rs.SetVolume(-1), domain.ErrInvalidVolume)

	require.NoError(t, tap.Release())
	require.NoError(t, rs.Release())
	assert.True(t, sink.sessionClosed(rs.SessionID()))
	_, err = rs.Write([]int16{1})
	assert.ErrorIs(t, err, domain.ErrReleased)
}

func TestWavDirSink_RecordsSession(t *testing.T) {
	sink, err := NewWavDirSink(t.TempDir())
	require.NoError(t, err)
	p := newTestPlatform(t, Config{Sink: sink})

	rs, err := p.OpenRender(testStreamConfig(1))
	require.NoError(t, err)
	require.NoError(t, rs.Start())

	for range 5 {
		_, err := rs.Write(make([]int16, 80))
		require.NoError(t, err)
	}
	require.NoError(t, rs.Release())

	f, err := os.Open(sink.SessionPath(rs.SessionID()))
	require.NoError(t, err)
	defer f.Close()

	dec := wav.NewDecoder(f)
	require.True(t, dec.IsValidFile())
	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	assert.Len(t, buf.Data, 400)
	assert.Equal(t, 8000, buf.Format.SampleRate)
}

func TestToneSignal(t *testing.T) {
	assert.Equal(t, float32(0), ToneSignal(0, 0, 48000))
	// Quarter period of 220 Hz at 8800 Hz is frame 10.
	assert.InDelta(t, 0.25, ToneSignal(10, 0, 8800), 1e-6)
}

func TestMultiSink(t *testing.T) {
	a, b := newMemorySink(), newMemorySink()
	sink := MultiSink{a, b}

	require.NoError(t, sink.Write(3, []float32{0.5}, 1, 8000))
	require.NoError(t, sink.CloseSession(3))
	require.NoError(t, sink.Close())

	for _, s := range []*memorySink{a, b} {
		assert.Equal(t, []float32{0.5}, s.samples(3))
		assert.True(t, s.sessionClosed(3))
	}
}
