package service

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejashwikalptaru/gomixer/internal/domain"
	"github.com/tejashwikalptaru/gomixer/internal/testutil"
)

var (
	builtInMic = domain.AudioDevice{
		ID: 1, Name: "Built-in Mic", Type: domain.PortBuiltInMic,
		Source: true, ChannelCounts: []int{1}, ChannelMasks: []int{16},
	}
	builtInSpeaker = domain.AudioDevice{
		ID: 2, Name: "Built-in Speaker", Type: domain.PortBuiltInMic, Sink: true,
	}
	usbInterface = domain.AudioDevice{
		ID: 3, Name: "USB Interface", Type: domain.PortUSBAudio,
		Source: true, Sink: true, ChannelCounts: []int{2, 4}, ChannelMasks: []int{12, 204},
	}
)

func TestSelectDevices(t *testing.T) {
	second := usbInterface
	second.ID, second.Name = 9, "Second USB"

	input, output := SelectDevices([]domain.AudioDevice{builtInMic, usbInterface, second}, domain.PortUSBAudio)
	require.NotNil(t, input)
	require.NotNil(t, output)
	assert.Equal(t, "USB Interface", input.Name, "first matching source in enumeration order")
	assert.Equal(t, "USB Interface", output.Name)

	input, output = SelectDevices([]domain.AudioDevice{builtInSpeaker, builtInMic}, domain.PortBuiltInMic)
	assert.Equal(t, "Built-in Mic", input.Name)
	assert.Equal(t, "Built-in Speaker", output.Name)

	input, output = SelectDevices([]domain.AudioDevice{builtInMic}, domain.PortHDMI)
	assert.Nil(t, input)
	assert.Nil(t, output)
}

func TestMixerSession_InitAudioSession(t *testing.T) {
	session, platform, _ := newTestSession()
	platform.SetDevices(builtInMic, builtInSpeaker, usbInterface)

	info, err := session.InitAudioSession(domain.PortUSBAudio, 0.01, "sess1")
	require.NoError(t, err)
	assert.Equal(t, "USB Interface", info.PreferredInputPortName)
	assert.Equal(t, domain.PortUSBAudio, info.PreferredInputPortType)
	assert.Equal(t, 0.01, info.PreferredIOBufferDuration)
	assert.True(t, session.IsActive())

	count, name, err := session.InputChannelCount()
	require.NoError(t, err)
	assert.Equal(t, 4, count)
	assert.Equal(t, "USB Interface", name)

	portType, err := session.PreferredInputPortType()
	require.NoError(t, err)
	assert.Equal(t, domain.PortUSBAudio, portType)

	assert.Equal(t, 1, platform.RoutingWatchers())
}

func TestMixerSession_InitAudioSessionFallback(t *testing.T) {
	session, platform, _ := newTestSession()
	platform.SetDevices(builtInMic)

	info, err := session.InitAudioSession(domain.PortHDMI, 0.02, "sess1")
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultInputPortName, info.PreferredInputPortName)
	assert.Equal(t, domain.PortBuiltInMic, info.PreferredInputPortType)

	count, _, err := session.InputChannelCount()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Enumeration failure also falls back
	platform.SetFailDevices(true)
	info, err = session.InitAudioSession(domain.PortUSBAudio, 0.02, "sess1")
	require.NoError(t, err)
	assert.Equal(t, "Default Mic", info.PreferredInputPortName)
}

func TestMixerSession_RequiresActiveSession(t *testing.T) {
	session, _, _ := newTestSession()

	err := session.InitMicInput("m1", 0, testSettings(1))
	assert.ErrorIs(t, err, domain.ErrSessionNotActive)
	files, mics := session.ChannelCounts()
	assert.Zero(t, files)
	assert.Zero(t, mics)

	assert.ErrorIs(t, session.InitAudioFile("a1", "/a.wav", testSettings(1)), domain.ErrSessionNotActive)
	_, err = session.Play("a1", domain.InputFile)
	assert.ErrorIs(t, err, domain.ErrSessionNotActive)
	_, err = session.DestroyAudioFile("a1")
	assert.ErrorIs(t, err, domain.ErrSessionNotActive)
	_, _, err = session.InputChannelCount()
	assert.ErrorIs(t, err, domain.ErrSessionNotActive)
	assert.ErrorIs(t, session.DeinitAudioSession(), domain.ErrSessionNotActive)
	assert.ErrorIs(t, session.ResetPlugin(), domain.ErrSessionNotActive)
}

func TestMixerSession_FilePlaybackScenario(t *testing.T) {
	session, platform, _ := newTestSession()
	platform.SetDevices(builtInMic, builtInSpeaker)

	info, err := session.InitAudioSession(domain.PortBuiltInMic, 0.02, "sess1")
	require.NoError(t, err)
	assert.Equal(t, domain.PortBuiltInMic, info.PreferredInputPortType)

	require.NoError(t, session.InitAudioFile("a1", "/music/a1.wav", testSettings(0.8)))

	state, err := session.Play("a1", domain.InputFile)
	require.NoError(t, err)
	assert.Equal(t, domain.TransportPlay, state)
	playing, err := session.IsPlaying("a1", domain.InputFile)
	require.NoError(t, err)
	assert.True(t, playing)

	require.NoError(t, session.AdjustVolume("a1", domain.InputFile, 0.3))
	volume, err := session.CurrentVolume("a1", domain.InputFile)
	require.NoError(t, err)
	assert.Equal(t, 0.3, volume)

	state, err = session.Stop("a1", domain.InputFile)
	require.NoError(t, err)
	assert.Equal(t, domain.TransportStop, state)
	playing, err = session.IsPlaying("a1", domain.InputFile)
	require.NoError(t, err)
	assert.False(t, playing)
}

func TestMixerSession_AdjustEqScenario(t *testing.T) {
	session, _, _ := newTestSession()
	_, err := session.InitAudioSession(domain.PortBuiltInMic, 0.02, "sess1")
	require.NoError(t, err)
	require.NoError(t, session.InitAudioFile("a1", "/music/a1.wav", testSettings(1)))

	require.NoError(t, session.AdjustEq("a1", domain.InputFile, domain.BandMid, -6, 1000))

	eq, err := session.CurrentEq("a1", domain.InputFile)
	require.NoError(t, err)
	assert.Equal(t, -6.0, eq.MidGain)
	assert.Equal(t, 1000.0, eq.MidFrequency)
	assert.Equal(t, 0.0, eq.BassGain)
	assert.Equal(t, 200.0, eq.BassFrequency)
	assert.Equal(t, 0.0, eq.TrebleGain)
	assert.Equal(t, 20000.0, eq.TrebleFrequency)
}

func TestMixerSession_NegativeVolumeKeepsValue(t *testing.T) {
	session, _, _ := newTestSession()
	_, err := session.InitAudioSession(domain.PortBuiltInMic, 0.02, "sess1")
	require.NoError(t, err)
	require.NoError(t, session.InitAudioFile("a1", "/a.wav", testSettings(0.4)))

	err = session.AdjustVolume("a1", domain.InputFile, -0.5)
	assert.ErrorIs(t, err, domain.ErrInvalidVolume)
	volume, err := session.CurrentVolume("a1", domain.InputFile)
	require.NoError(t, err)
	assert.Equal(t, 0.4, volume)
}

func TestMixerSession_DuplicateAndMissingFields(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	session, _, _ := newTestSession()
	_, err := session.InitAudioSession(domain.PortBuiltInMic, 0.001, "sess1")
	require.NoError(t, err)
	defer session.Close()

	require.NoError(t, session.InitAudioFile("x", "/a.wav", testSettings(1)))
	assert.ErrorIs(t, session.InitAudioFile("x", "/b.wav", testSettings(1)), domain.ErrDuplicateChannelID)
	assert.ErrorIs(t, session.InitMicInput("x", 0, testSettings(1)), domain.ErrDuplicateChannelID)

	assert.ErrorIs(t, session.InitAudioFile("y", "", testSettings(1)), domain.ErrMissingRequiredField)
	assert.ErrorIs(t, session.InitAudioFile("", "/a.wav", testSettings(1)), domain.ErrMissingRequiredField)
	assert.ErrorIs(t, session.InitMicInput("m1", -1, testSettings(1)), domain.ErrMissingRequiredField)

	files, mics := session.ChannelCounts()
	assert.Equal(t, 1, files)
	assert.Zero(t, mics)
}

func TestMixerSession_SetupFailureNotRegistered(t *testing.T) {
	session, platform, _ := newTestSession()
	platform.AddMissingFile("/missing.wav")
	_, err := session.InitAudioSession(domain.PortBuiltInMic, 0.02, "sess1")
	require.NoError(t, err)

	err = session.InitAudioFile("a1", "/missing.wav", testSettings(1))
	assert.ErrorIs(t, err, domain.ErrSourceUnavailable)

	// The ID is free again
	require.NoError(t, session.InitAudioFile("a1", "/present.wav", testSettings(1)))
}

func TestMixerSession_TypeSpecificLookup(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	session, _, _ := newTestSession()
	_, err := session.InitAudioSession(domain.PortBuiltInMic, 0.001, "sess1")
	require.NoError(t, err)
	defer session.Close()

	require.NoError(t, session.InitMicInput("m1", 0, testSettings(1)))
	require.NoError(t, session.InitAudioFile("a1", "/a.wav", testSettings(1)))

	_, err = session.DestroyAudioFile("m1")
	var notFound *domain.ChannelNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, domain.InputFile, notFound.Kind)
	assert.ErrorIs(t, err, domain.ErrChannelNotFound)

	_, err = session.DestroyMicInput("a1")
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, domain.InputMic, notFound.Kind)

	_, err = session.CurrentVolume("m1", domain.InputFile)
	assert.ErrorIs(t, err, domain.ErrChannelNotFound)

	_, err = session.CurrentVolume("m1", domain.InputType("speaker"))
	assert.ErrorIs(t, err, domain.ErrUnknownInputType)

	_, err = session.Play("m1", domain.InputMic)
	assert.ErrorIs(t, err, domain.ErrNotApplicable)

	playing, err := session.IsPlaying("m1", domain.InputMic)
	require.NoError(t, err)
	assert.True(t, playing)
}

func TestMixerSession_DestroyOnce(t *testing.T) {
	session, _, _ := newTestSession()
	_, err := session.InitAudioSession(domain.PortBuiltInMic, 0.02, "sess1")
	require.NoError(t, err)

	settings := testSettings(1)
	settings.ChannelListenerName = "meter-a1"
	require.NoError(t, session.InitAudioFile("a1", "/a.wav", settings))
	require.NoError(t, session.SetElapsedTimeEvent("a1", domain.InputFile, "tick-a1"))

	receipt, err := session.DestroyAudioFile("a1")
	require.NoError(t, err)
	assert.Equal(t, domain.DestroyReceipt{ListenerName: "meter-a1", ElapsedTimeEventName: "tick-a1"}, receipt)

	_, err = session.DestroyAudioFile("a1")
	assert.ErrorIs(t, err, domain.ErrChannelNotFound)

	// The ID can be reused after destroy
	require.NoError(t, session.InitAudioFile("a1", "/a.wav", settings))
}

func TestMixerSession_MicChannelNumberBound(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	session, platform, _ := newTestSession()
	platform.SetDevices(usbInterface)
	_, err := session.InitAudioSession(domain.PortUSBAudio, 0.001, "sess1")
	require.NoError(t, err)
	defer session.Close()

	require.NoError(t, session.InitMicInput("m1", 3, testSettings(1)))
	assert.ErrorIs(t, session.InitMicInput("m2", 4, testSettings(1)), domain.ErrInvalidParameter)

	captures := platform.Captures()
	require.Len(t, captures, 1)
	assert.Equal(t, 4, captures[0].Config().Channels)
	assert.Equal(t, "USB Interface", captures[0].Config().Device.Name)
	assert.Equal(t, 48, captures[0].Config().FramesPerBuffer, "0.001s at 48 kHz")
}

func TestMixerSession_ResetPlugin(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	session, platform, _ := newTestSession()
	_, err := session.InitAudioSession(domain.PortBuiltInMic, 0.001, "sess1")
	require.NoError(t, err)

	require.NoError(t, session.InitAudioFile("a1", "/a.wav", testSettings(1)))
	require.NoError(t, session.InitMicInput("m1", 0, testSettings(1)))

	require.NoError(t, session.ResetPlugin())

	files, mics := session.ChannelCounts()
	assert.Zero(t, files)
	assert.Zero(t, mics)
	assert.False(t, session.IsActive())
	assert.True(t, platform.Player("/a.wav").Released())
	assert.True(t, platform.Captures()[0].Released())
	assert.Zero(t, platform.RoutingWatchers())
}

func TestMixerSession_DeinitKeepsChannels(t *testing.T) {
	session, platform, _ := newTestSession()
	_, err := session.InitAudioSession(domain.PortBuiltInMic, 0.02, "sess1")
	require.NoError(t, err)
	require.NoError(t, session.InitAudioFile("a1", "/a.wav", testSettings(1)))

	require.NoError(t, session.DeinitAudioSession())
	_, err = session.CurrentVolume("a1", domain.InputFile)
	assert.ErrorIs(t, err, domain.ErrSessionNotActive)
	assert.False(t, platform.Player("/a.wav").Released())

	_, err = session.InitAudioSession(domain.PortBuiltInMic, 0.02, "sess1")
	require.NoError(t, err)
	volume, err := session.CurrentVolume("a1", domain.InputFile)
	require.NoError(t, err)
	assert.Equal(t, 1.0, volume)
	require.NoError(t, session.Close())
}

func TestMixerSession_RoutingInterruptsMics(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	session, platform, bus := newTestSession()
	rec := recordEvents(bus)
	platform.SetDevices(builtInMic, builtInSpeaker)
	_, err := session.InitAudioSession(domain.PortBuiltInMic, 0.001, "sess1")
	require.NoError(t, err)
	defer session.Close()

	require.NoError(t, session.InitMicInput("m1", 0, testSettings(0.7)))
	require.NoError(t, session.InitMicInput("m2", 0, testSettings(0.4)))
	require.NoError(t, session.InitAudioFile("a1", "/a.wav", testSettings(1)))
	renders := platform.Renders()
	require.Len(t, renders, 2)

	platform.SetRoutedDevice(nil)
	platform.SetRoutedDevice(nil)

	for _, r := range renders {
		assert.Equal(t, 0.0, r.Volume(), "muted on routing loss")
	}
	captures := platform.Captures()
	reads := captures[0].Reads()
	assert.Eventually(t, func() bool { return captures[0].Reads() > reads }, eventuallyWait, eventuallyTick,
		"capture keeps running while interrupted")

	platform.SetRoutedDevice(&builtInMic)
	assert.Equal(t, 0.7, renders[0].Volume())
	assert.Equal(t, 0.4, renders[1].Volume())

	assert.Equal(t, []domain.HandlerType{
		domain.HandlerRouteDisconnected,
		domain.HandlerRouteReconnected,
	}, rec.handlerTypes())
}

func TestMixerSession_MicStartsInterruptedWhenNothingRouted(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	session, platform, _ := newTestSession()
	_, err := session.InitAudioSession(domain.PortBuiltInMic, 0.001, "sess1")
	require.NoError(t, err)
	defer session.Close()

	platform.SetRoutedDevice(nil)
	require.NoError(t, session.InitMicInput("m1", 0, testSettings(0.5)))
	assert.Equal(t, 0.0, platform.Renders()[0].Volume())

	platform.SetRoutedDevice(&builtInMic)
	assert.Equal(t, 0.5, platform.Renders()[0].Volume())
}

func TestMixerSession_ReinitKeepsRoutingLoss(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	session, platform, _ := newTestSession()
	platform.SetDevices(builtInMic, builtInSpeaker)
	_, err := session.InitAudioSession(domain.PortBuiltInMic, 0.001, "sess1")
	require.NoError(t, err)
	defer session.Close()

	require.NoError(t, session.InitMicInput("m1", 0, testSettings(0.7)))
	render := platform.Renders()[0]

	platform.SetRoutedDevice(nil)
	assert.Equal(t, 0.0, render.Volume())

	_, err = session.InitAudioSession(domain.PortBuiltInMic, 0.001, "sess1")
	require.NoError(t, err)
	require.NoError(t, session.DeinitAudioSession())
	_, err = session.InitAudioSession(domain.PortBuiltInMic, 0.001, "sess1")
	require.NoError(t, err)
	assert.Equal(t, 0.0, render.Volume(), "still muted until a device returns")

	platform.SetRoutedDevice(&builtInMic)
	assert.Equal(t, 0.7, render.Volume())

	var mic *MicChannel
	require.NoError(t, session.withChannel("m1", domain.InputMic, func(ch Channel) error {
		mic = ch.(*MicChannel)
		return nil
	}))
	assert.False(t, mic.Interrupted())
}

func TestMixerSession_IOBufferDurationCapped(t *testing.T) {
	defer testutil.VerifyNoLeaks(t)

	session, platform, _ := newTestSession()
	info, err := session.InitAudioSession(domain.PortBuiltInMic, 1e12, "sess1")
	require.NoError(t, err)
	defer session.Close()
	assert.Equal(t, MaxIOBufferDuration, info.PreferredIOBufferDuration)

	require.NoError(t, session.InitMicInput("m1", 0, testSettings(1)))
	captures := platform.Captures()
	require.Len(t, captures, 1)
	assert.Equal(t, testSessionConfig.SampleRate, captures[0].Config().FramesPerBuffer)

	_, err = session.DestroyMicInput("m1")
	require.NoError(t, err)
}

func TestMixerSession_Interruptions(t *testing.T) {
	session, platform, bus := newTestSession()
	rec := recordEvents(bus)
	_, err := session.InitAudioSession(domain.PortBuiltInMic, 0.02, "sess1")
	require.NoError(t, err)

	require.NoError(t, session.InitAudioFile("a1", "/a.wav", testSettings(1)))
	require.NoError(t, session.InitAudioFile("a2", "/b.wav", testSettings(1)))
	_, err = session.Play("a1", domain.InputFile)
	require.NoError(t, err)

	platform.SimulateInterruption(true, false)
	playing, _ := session.IsPlaying("a1", domain.InputFile)
	assert.False(t, playing)

	platform.SimulateInterruption(false, true)
	playing, _ = session.IsPlaying("a1", domain.InputFile)
	assert.True(t, playing, "resumed after interruption")
	playing, _ = session.IsPlaying("a2", domain.InputFile)
	assert.False(t, playing, "a2 was never playing")

	// Without shouldResume the channel stays paused
	platform.SimulateInterruption(true, false)
	platform.SimulateInterruption(false, false)
	playing, _ = session.IsPlaying("a1", domain.InputFile)
	assert.False(t, playing)

	assert.Equal(t, []domain.HandlerType{
		domain.HandlerInterruptBegan,
		domain.HandlerInterruptEnded,
		domain.HandlerInterruptBegan,
		domain.HandlerInterruptEnded,
	}, rec.handlerTypes())
}

func TestMixerSession_ElapsedAndTotal(t *testing.T) {
	session, platform, _ := newTestSession()
	platform.SetDuration(time.Hour + 2*time.Minute + 3*time.Second + 456*time.Millisecond)
	_, err := session.InitAudioSession(domain.PortBuiltInMic, 0.02, "sess1")
	require.NoError(t, err)
	require.NoError(t, session.InitAudioFile("a1", "/a.wav", testSettings(1)))

	total, err := session.TotalTime("a1", domain.InputFile)
	require.NoError(t, err)
	assert.Equal(t, domain.TimeParts{Hours: 1, Minutes: 2, Seconds: 3, Milliseconds: 456}, total)

	_, err = session.Play("a1", domain.InputFile)
	require.NoError(t, err)
	platform.Player("/a.wav").SimulateProgress(61 * time.Second)

	elapsed, err := session.ElapsedTime("a1", domain.InputFile)
	require.NoError(t, err)
	assert.Equal(t, domain.TimeParts{Minutes: 1, Seconds: 1}, elapsed)
}
