package service

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejashwikalptaru/gomixer/internal/adapter/audio/mock"
	"github.com/tejashwikalptaru/gomixer/internal/domain"
)

func newReadyFileChannel(t *testing.T, settings domain.ChannelSettings) (*FileChannel, *mock.Platform, *eventRecorder) {
	t.Helper()
	deps, platform, bus := newTestDeps()
	rec := recordEvents(bus)

	ch, err := NewFileChannel("a1", "/music/a1.mp3", settings, deps)
	require.NoError(t, err)
	require.NoError(t, ch.Setup())
	return ch, platform, rec
}

func TestFileChannel_Setup(t *testing.T) {
	settings := testSettings(0.8)
	settings.ChannelListenerName = "meter-a1"
	ch, platform, rec := newReadyFileChannel(t, settings)

	assert.Equal(t, domain.StateReady, ch.State())
	assert.False(t, ch.IsPlaying())

	player := platform.Player("/music/a1.mp3")
	require.NotNil(t, player)
	assert.Equal(t, 0.8, player.Volume())

	effect := platform.Effect(player.SessionID())
	require.NotNil(t, effect)
	assert.True(t, effect.Enabled())
	assert.Equal(t, domain.DefaultEqSettings().Bands(), effect.Bands())

	tap := platform.Tap(player.SessionID())
	require.NotNil(t, tap)
	assert.False(t, tap.Enabled(), "meter must be off until playback starts")

	// Uninitialized -> Configuring -> Ready
	assert.Len(t, rec.ofType(domain.EventChannelStateChanged), 2)
}

func TestFileChannel_SetupTwice(t *testing.T) {
	ch, _, _ := newReadyFileChannel(t, testSettings(1))

	err := ch.Setup()
	assert.ErrorIs(t, err, domain.ErrAlreadyInitialized)
}

func TestFileChannel_SetupSourceUnavailable(t *testing.T) {
	deps, platform, _ := newTestDeps()
	platform.AddMissingFile("/missing.wav")

	ch, err := NewFileChannel("a1", "/missing.wav", testSettings(1), deps)
	require.NoError(t, err)

	err = ch.Setup()
	require.ErrorIs(t, err, domain.ErrSourceUnavailable)

	var srcErr *domain.SourceUnavailableError
	require.True(t, errors.As(err, &srcErr))
	assert.Equal(t, "/missing.wav", srcErr.Source)

	var engineErr *domain.AudioEngineError
	assert.True(t, errors.As(err, &engineErr), "platform cause should be preserved")
	assert.Equal(t, domain.StateUninitialized, ch.State())
}

func TestFileChannel_SetupEffectFailureReleasesPlayer(t *testing.T) {
	deps, platform, _ := newTestDeps()
	platform.SetFailEffect(true)

	ch, err := NewFileChannel("a1", "/a.wav", testSettings(1), deps)
	require.NoError(t, err)

	require.ErrorIs(t, ch.Setup(), domain.ErrSourceUnavailable)
	assert.True(t, platform.Player("/a.wav").Released())
}

func TestNewFileChannel_Validation(t *testing.T) {
	deps, _, _ := newTestDeps()

	_, err := NewFileChannel("a1", "/a.wav", testSettings(-0.1), deps)
	assert.ErrorIs(t, err, domain.ErrInvalidVolume)

	settings := testSettings(1)
	settings.Eq.MidGain = nanValue()
	_, err = NewFileChannel("a1", "/a.wav", settings, deps)
	assert.ErrorIs(t, err, domain.ErrInvalidParameter)
}

func TestFileChannel_PlayPauseTogglesMeter(t *testing.T) {
	ch, platform, _ := newReadyFileChannel(t, testSettings(1))
	player := platform.Player("/music/a1.mp3")
	tap := platform.Tap(player.SessionID())

	state, err := ch.PlayOrPause()
	require.NoError(t, err)
	assert.Equal(t, domain.TransportPlay, state)
	assert.True(t, ch.IsPlaying())
	assert.True(t, player.IsPlaying())
	assert.True(t, tap.Enabled())

	state, err = ch.PlayOrPause()
	require.NoError(t, err)
	assert.Equal(t, domain.TransportPause, state)
	assert.Equal(t, domain.StatePaused, ch.State())
	assert.False(t, player.IsPlaying())
	assert.False(t, tap.Enabled())

	state, err = ch.PlayOrPause()
	require.NoError(t, err)
	assert.Equal(t, domain.TransportPlay, state)
	assert.Equal(t, 2, player.StartCount())
}

func TestFileChannel_StopRewinds(t *testing.T) {
	for _, pauseFirst := range []bool{false, true} {
		ch, platform, _ := newReadyFileChannel(t, testSettings(1))
		player := platform.Player("/music/a1.mp3")

		_, err := ch.PlayOrPause()
		require.NoError(t, err)
		player.SimulateProgress(42 * time.Second)
		if pauseFirst {
			_, err = ch.PlayOrPause()
			require.NoError(t, err)
		}

		state, err := ch.Stop()
		require.NoError(t, err)
		assert.Equal(t, domain.TransportStop, state)
		assert.False(t, ch.IsPlaying())
		assert.Equal(t, domain.StateReady, ch.State())

		elapsed, err := ch.ElapsedTime()
		require.NoError(t, err)
		assert.Equal(t, domain.TimeParts{}, elapsed)
		assert.False(t, platform.Tap(player.SessionID()).Enabled())

		// Idempotent
		state, err = ch.Stop()
		require.NoError(t, err)
		assert.Equal(t, domain.TransportStop, state)
	}
}

func TestFileChannel_CompletionActsLikeStop(t *testing.T) {
	deps, platform, _ := newTestDeps()
	platform.SetDuration(5 * time.Second)

	ch, err := NewFileChannel("a1", "/short.wav", testSettings(1), deps)
	require.NoError(t, err)
	require.NoError(t, ch.Setup())

	_, err = ch.PlayOrPause()
	require.NoError(t, err)

	player := platform.Player("/short.wav")
	player.SimulateProgress(6 * time.Second)

	assert.Equal(t, domain.StateReady, ch.State())
	assert.False(t, ch.IsPlaying())
	elapsed, err := ch.ElapsedTime()
	require.NoError(t, err)
	assert.Equal(t, domain.TimeParts{}, elapsed)
	assert.False(t, platform.Tap(player.SessionID()).Enabled())

	total, err := ch.TotalTime()
	require.NoError(t, err)
	assert.Equal(t, 5, total.Seconds)

	// Playing again starts from the beginning
	state, err := ch.PlayOrPause()
	require.NoError(t, err)
	assert.Equal(t, domain.TransportPlay, state)
}

func TestFileChannel_AdjustVolume(t *testing.T) {
	ch, platform, _ := newReadyFileChannel(t, testSettings(0.8))
	player := platform.Player("/music/a1.mp3")

	require.NoError(t, ch.AdjustVolume(0.3))
	assert.Equal(t, 0.3, ch.Volume())
	assert.Equal(t, 0.3, player.Volume())

	for _, v := range []float64{-0.01, -1, -100} {
		err := ch.AdjustVolume(v)
		assert.ErrorIs(t, err, domain.ErrInvalidVolume)
		assert.Equal(t, 0.3, ch.Volume())
		assert.Equal(t, 0.3, player.Volume())
	}

	// No upper clamp
	require.NoError(t, ch.AdjustVolume(1.5))
	assert.Equal(t, 1.5, ch.Volume())
}

func TestFileChannel_AdjustEq(t *testing.T) {
	bands := []domain.EqBandIndex{domain.BandBass, domain.BandMid, domain.BandTreble}

	for _, band := range bands {
		t.Run(band.String(), func(t *testing.T) {
			ch, platform, _ := newReadyFileChannel(t, testSettings(1))
			effect := platform.Effect(platform.Player("/music/a1.mp3").SessionID())
			before := ch.CurrentEq().Bands()
			applied := effect.ApplyCount()

			require.NoError(t, ch.AdjustEq(band, -6, 1000))

			after := ch.CurrentEq().Bands()
			for _, other := range bands {
				if other == band {
					assert.Equal(t, domain.EqBand{Gain: -6, Frequency: 1000}, after[other])
				} else {
					assert.Equal(t, before[other], after[other], "band %s changed", other)
				}
			}
			assert.Equal(t, applied+1, effect.ApplyCount(), "all bands pushed in one call")
			assert.Equal(t, after, effect.Bands())
		})
	}
}

func TestFileChannel_AdjustEqRejectsBadValues(t *testing.T) {
	ch, _, _ := newReadyFileChannel(t, testSettings(1))
	before := ch.CurrentEq()

	assert.ErrorIs(t, ch.AdjustEq(domain.EqBandIndex(3), 1, 100), domain.ErrInvalidEqBand)
	assert.ErrorIs(t, ch.AdjustEq(domain.BandMid, nanValue(), 100), domain.ErrInvalidParameter)
	assert.ErrorIs(t, ch.AdjustEq(domain.BandMid, 1, infValue()), domain.ErrInvalidParameter)
	assert.Equal(t, before, ch.CurrentEq())
}

func TestFileChannel_AdjustEqEffectFailureKeepsModel(t *testing.T) {
	ch, platform, _ := newReadyFileChannel(t, testSettings(1))
	effect := platform.Effect(platform.Player("/music/a1.mp3").SessionID())
	effect.SetFailApply(true)
	before := ch.CurrentEq()

	err := ch.AdjustEq(domain.BandBass, 3, 150)
	var engineErr *domain.AudioEngineError
	assert.True(t, errors.As(err, &engineErr))
	assert.Equal(t, before, ch.CurrentEq())
}

func TestFileChannel_MeterEvents(t *testing.T) {
	settings := testSettings(0.5)
	settings.ChannelListenerName = "meter-a1"
	ch, platform, rec := newReadyFileChannel(t, settings)
	require.NoError(t, ch.SetElapsedTimeEvent("tick-a1"))
	session := platform.Player("/music/a1.mp3").SessionID()

	platform.EmitLevel(session, -1000)
	assert.Empty(t, rec.ofType(domain.EventMeterLevel), "no meter before play")

	_, err := ch.PlayOrPause()
	require.NoError(t, err)
	platform.Player("/music/a1.mp3").SimulateProgress(1500 * time.Millisecond)
	platform.EmitLevel(session, -1000)

	levels := rec.ofType(domain.EventMeterLevel)
	require.Len(t, levels, 1)
	assert.InDelta(t, -20.0, levels[0].(domain.MeterLevelEvent).Level, 1e-9)

	ticks := rec.ofType(domain.EventElapsedTime)
	require.Len(t, ticks, 1)
	assert.Equal(t, domain.TimeParts{Seconds: 1, Milliseconds: 500}, ticks[0].(domain.ElapsedTimeEvent).Elapsed)

	_, err = ch.PlayOrPause()
	require.NoError(t, err)
	platform.EmitLevel(session, -1000)
	assert.Len(t, rec.ofType(domain.EventMeterLevel), 1, "no meter while paused")
}

func TestFileChannel_Destroy(t *testing.T) {
	settings := testSettings(1)
	settings.ChannelListenerName = "meter-a1"
	settings.ElapsedTimeEventName = "tick-a1"
	ch, platform, _ := newReadyFileChannel(t, settings)
	player := platform.Player("/music/a1.mp3")

	_, err := ch.PlayOrPause()
	require.NoError(t, err)

	receipt, err := ch.Destroy()
	require.NoError(t, err)
	assert.Equal(t, domain.DestroyReceipt{ListenerName: "meter-a1", ElapsedTimeEventName: "tick-a1"}, receipt)
	assert.Equal(t, domain.StateDestroyed, ch.State())

	assert.True(t, platform.Tap(player.SessionID()).Released())
	assert.True(t, player.Released())
	assert.True(t, platform.Effect(player.SessionID()).Released())

	_, err = ch.Destroy()
	assert.ErrorIs(t, err, domain.ErrAlreadyDestroyed)

	_, err = ch.PlayOrPause()
	assert.ErrorIs(t, err, domain.ErrAlreadyDestroyed)
	assert.ErrorIs(t, ch.AdjustVolume(1), domain.ErrAlreadyDestroyed)

	// Completion after destroy is ignored
	player.SimulateCompletion()
	assert.Equal(t, domain.StateDestroyed, ch.State())
}

func TestFileChannel_NotInitialized(t *testing.T) {
	deps, _, _ := newTestDeps()
	ch, err := NewFileChannel("a1", "/a.wav", testSettings(1), deps)
	require.NoError(t, err)

	_, err = ch.PlayOrPause()
	assert.ErrorIs(t, err, domain.ErrNotInitialized)

	_, err = ch.Destroy()
	assert.NoError(t, err)
}
