package service

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/tejashwikalptaru/gomixer/internal/domain"
	"github.com/tejashwikalptaru/gomixer/internal/ports"
)

// MaxIOBufferDuration caps the requested I/O buffer duration, in seconds.
const MaxIOBufferDuration = 1.0

// SessionConfig holds stream parameters used when the host does not specify them.
type SessionConfig struct {
	SampleRate      int
	FramesPerBuffer int
}

// DefaultSessionConfig returns 48 kHz with 20 ms buffers.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		SampleRate:      48000,
		FramesPerBuffer: 960,
	}
}

// MixerSession owns every channel and the audio session state.
//
// Registry discipline: init and destroy take the write lock; dispatch holds the
// read lock for the whole call, so dispatches run concurrently with each other
// but never with an init or destroy. Each channel orders its own operations.
type MixerSession struct {
	// Dependencies (injected)
	logger   *slog.Logger
	platform ports.AudioPlatform
	bus      ports.EventBus
	cfg      SessionConfig

	routing *RoutingMonitor

	mu                sync.RWMutex
	active            bool
	listener          string
	info              domain.SessionInfo
	input             *domain.AudioDevice
	output            *domain.AudioDevice
	foundChannelCount int
	foundChannelMask  int
	framesPerBuffer   int
	files             map[string]*FileChannel
	mics              map[string]*MicChannel
	unwatchRouting    func()
	unwatchInterrupt  func()

	interruptMu       sync.Mutex
	pausedByInterrupt map[string]struct{}
}

// NewMixerSession creates an inactive session.
func NewMixerSession(
	logger *slog.Logger,
	platform ports.AudioPlatform,
	bus ports.EventBus,
	cfg SessionConfig,
) *MixerSession {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSessionConfig().SampleRate
	}
	if cfg.FramesPerBuffer <= 0 {
		cfg.FramesPerBuffer = DefaultSessionConfig().FramesPerBuffer
	}

	s := &MixerSession{
		logger:            logger,
		platform:          platform,
		bus:               bus,
		cfg:               cfg,
		foundChannelCount: 1,
		files:             make(map[string]*FileChannel),
		mics:              make(map[string]*MicChannel),
		pausedByInterrupt: make(map[string]struct{}),
	}
	s.routing = NewRoutingMonitor(logger, bus, s.interruptibleMics)

	logger.Debug("mixer session created",
		slog.Int("sample_rate", cfg.SampleRate),
		slog.Int("frames_per_buffer", cfg.FramesPerBuffer))
	return s
}

// SelectDevices picks the first source and the first sink of portType in enumeration order.
// Either result may be nil.
func SelectDevices(devices []domain.AudioDevice, portType domain.PortType) (input, output *domain.AudioDevice) {
	for i := range devices {
		d := devices[i]
		if d.Type != portType {
			continue
		}
		if input == nil && d.IsSource() {
			input = &d
		}
		if output == nil && d.IsSink() {
			output = &d
		}
	}
	return input, output
}

// InitAudioSession selects devices for portType and activates the session.
// Calling it again on an active session re-selects devices; channels are kept.
// ioBufferDuration is capped at MaxIOBufferDuration.
func (s *MixerSession) InitAudioSession(portType domain.PortType, ioBufferDuration float64, listener string) (domain.SessionInfo, error) {
	devices, err := s.platform.Devices()
	if err != nil {
		s.logger.Warn("device enumeration failed, using defaults", slog.Any("error", err))
		devices = nil
	}

	input, output := SelectDevices(devices, portType)

	info := domain.SessionInfo{
		PreferredInputPortName:    domain.DefaultInputPortName,
		PreferredInputPortType:    domain.DefaultInputPortType,
		PreferredIOBufferDuration: ioBufferDuration,
	}
	channelCount, channelMask := 1, 0
	if input != nil {
		info.PreferredInputPortName = input.Name
		info.PreferredInputPortType = input.Type
		channelCount = input.MaxChannelCount()
		if len(input.ChannelMasks) > 0 {
			channelMask = input.ChannelMasks[0]
		}
	}

	frames := s.cfg.FramesPerBuffer
	if ioBufferDuration > 0 && !math.IsInf(ioBufferDuration, 0) {
		ioBufferDuration = min(ioBufferDuration, MaxIOBufferDuration)
		info.PreferredIOBufferDuration = ioBufferDuration
		frames = max(int(math.Round(ioBufferDuration*float64(s.cfg.SampleRate))), 1)
	}

	s.routing.Reset(listener, devices...)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.active = true
	s.listener = listener
	s.info = info
	s.input = input
	s.output = output
	s.foundChannelCount = channelCount
	s.foundChannelMask = channelMask
	s.framesPerBuffer = frames

	if s.unwatchRouting == nil {
		s.unwatchRouting = s.platform.WatchRouting(s.routing.OnRouteChanged)
	}
	if src, ok := s.platform.(ports.InterruptionSource); ok && s.unwatchInterrupt == nil {
		s.unwatchInterrupt = src.WatchInterruptions(s.HandleInterruption)
	}

	s.logger.Info("audio session initialized",
		slog.String("port_type", string(portType)),
		slog.String("input", info.PreferredInputPortName),
		slog.String("input_type", string(info.PreferredInputPortType)),
		slog.Int("channel_count", channelCount),
		slog.Int("channel_mask", channelMask),
		slog.Int("frames_per_buffer", frames),
		slog.String("listener", listener))
	return info, nil
}

// DeinitAudioSession deactivates the session. Channels stay registered.
func (s *MixerSession) DeinitAudioSession() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return domain.ErrSessionNotActive
	}
	s.deactivateLocked()
	s.logger.Info("audio session deinitialized")
	return nil
}

// ResetPlugin destroys every channel and deactivates the session.
func (s *MixerSession) ResetPlugin() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return domain.ErrSessionNotActive
	}
	err := s.destroyAllLocked()
	s.deactivateLocked()
	s.logger.Info("mixer reset")
	return err
}

// Close destroys every channel regardless of session state. Used on shutdown.
func (s *MixerSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.destroyAllLocked()
	s.deactivateLocked()
	return err
}

func (s *MixerSession) deactivateLocked() {
	s.active = false
	if s.unwatchRouting != nil {
		s.unwatchRouting()
		s.unwatchRouting = nil
	}
	if s.unwatchInterrupt != nil {
		s.unwatchInterrupt()
		s.unwatchInterrupt = nil
	}
}

func (s *MixerSession) destroyAllLocked() error {
	var errs []error
	for id, ch := range s.files {
		if _, err := ch.Destroy(); err != nil {
			errs = append(errs, fmt.Errorf("destroy file %q: %w", id, err))
		}
	}
	for id, ch := range s.mics {
		if _, err := ch.Destroy(); err != nil {
			errs = append(errs, fmt.Errorf("destroy mic %q: %w", id, err))
		}
	}
	clear(s.files)
	clear(s.mics)

	s.interruptMu.Lock()
	clear(s.pausedByInterrupt)
	s.interruptMu.Unlock()

	return errors.Join(errs...)
}

// IsActive reports whether InitAudioSession has run.
func (s *MixerSession) IsActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

func (s *MixerSession) deps() ChannelDeps {
	return ChannelDeps{Logger: s.logger, Bus: s.bus, Platform: s.platform}
}

func (s *MixerSession) existsLocked(id string) bool {
	_, inFiles := s.files[id]
	_, inMics := s.mics[id]
	return inFiles || inMics
}

// InitAudioFile creates, sets up and registers a file channel.
func (s *MixerSession) InitAudioFile(id, path string, settings domain.ChannelSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return domain.ErrSessionNotActive
	}
	if id == "" {
		return domain.MissingFieldError("audioId")
	}
	if path == "" {
		return domain.MissingFieldError("filePath")
	}
	if s.existsLocked(id) {
		return fmt.Errorf("%w: %q", domain.ErrDuplicateChannelID, id)
	}

	ch, err := NewFileChannel(id, path, settings, s.deps())
	if err != nil {
		return err
	}
	if err := ch.Setup(); err != nil {
		s.logger.Warn("audio file setup failed", slog.String("id", id), slog.Any("error", err))
		return err
	}
	s.files[id] = ch
	return nil
}

// InitMicInput creates, sets up and registers a mic channel on the session's input device.
func (s *MixerSession) InitMicInput(id string, channelNumber int, settings domain.ChannelSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return domain.ErrSessionNotActive
	}
	if id == "" {
		return domain.MissingFieldError("audioId")
	}
	if s.existsLocked(id) {
		return fmt.Errorf("%w: %q", domain.ErrDuplicateChannelID, id)
	}

	ch, err := NewMicChannel(id, channelNumber, settings, MicConfig{
		Input:           s.input,
		Output:          s.output,
		SampleRate:      s.cfg.SampleRate,
		FramesPerBuffer: s.framesPerBuffer,
		CaptureChannels: s.foundChannelCount,
	}, s.deps())
	if err != nil {
		return err
	}
	if err := ch.Setup(); err != nil {
		s.logger.Warn("mic input setup failed", slog.String("id", id), slog.Any("error", err))
		return err
	}
	if !s.routing.Present() {
		ch.Interrupt()
	}
	s.mics[id] = ch
	return nil
}

// DestroyAudioFile destroys and unregisters a file channel.
func (s *MixerSession) DestroyAudioFile(id string) (domain.DestroyReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return domain.DestroyReceipt{}, domain.ErrSessionNotActive
	}
	ch, ok := s.files[id]
	if !ok {
		return domain.DestroyReceipt{}, domain.NewChannelNotFoundError(id, domain.InputFile)
	}

	receipt, err := ch.Destroy()
	delete(s.files, id)

	s.interruptMu.Lock()
	delete(s.pausedByInterrupt, id)
	s.interruptMu.Unlock()

	return receipt, err
}

// DestroyMicInput destroys and unregisters a mic channel.
func (s *MixerSession) DestroyMicInput(id string) (domain.DestroyReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return domain.DestroyReceipt{}, domain.ErrSessionNotActive
	}
	ch, ok := s.mics[id]
	if !ok {
		return domain.DestroyReceipt{}, domain.NewChannelNotFoundError(id, domain.InputMic)
	}

	receipt, err := ch.Destroy()
	delete(s.mics, id)
	return receipt, err
}

// lookupLocked resolves (id, kind) in the matching registry. Callers hold mu.
func (s *MixerSession) lookupLocked(id string, kind domain.InputType) (Channel, error) {
	switch kind {
	case domain.InputFile:
		if ch, ok := s.files[id]; ok {
			return ch, nil
		}
	case domain.InputMic:
		if ch, ok := s.mics[id]; ok {
			return ch, nil
		}
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownInputType, string(kind))
	}
	return nil, domain.NewChannelNotFoundError(id, kind)
}

// withChannel runs fn on the channel under the registry read lock.
func (s *MixerSession) withChannel(id string, kind domain.InputType, fn func(Channel) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.active {
		return domain.ErrSessionNotActive
	}
	ch, err := s.lookupLocked(id, kind)
	if err != nil {
		return err
	}
	return fn(ch)
}

// Play toggles play and pause.
func (s *MixerSession) Play(id string, kind domain.InputType) (domain.TransportState, error) {
	var state domain.TransportState
	err := s.withChannel(id, kind, func(ch Channel) error {
		var err error
		state, err = ch.PlayOrPause()
		return err
	})
	return state, err
}

// Stop stops and rewinds.
func (s *MixerSession) Stop(id string, kind domain.InputType) (domain.TransportState, error) {
	var state domain.TransportState
	err := s.withChannel(id, kind, func(ch Channel) error {
		var err error
		state, err = ch.Stop()
		return err
	})
	return state, err
}

// IsPlaying reports whether the channel is playing.
func (s *MixerSession) IsPlaying(id string, kind domain.InputType) (bool, error) {
	var playing bool
	err := s.withChannel(id, kind, func(ch Channel) error {
		playing = ch.IsPlaying()
		return nil
	})
	return playing, err
}

// AdjustVolume sets the channel volume.
func (s *MixerSession) AdjustVolume(id string, kind domain.InputType, volume float64) error {
	return s.withChannel(id, kind, func(ch Channel) error {
		return ch.AdjustVolume(volume)
	})
}

// CurrentVolume returns the channel volume.
func (s *MixerSession) CurrentVolume(id string, kind domain.InputType) (float64, error) {
	var volume float64
	err := s.withChannel(id, kind, func(ch Channel) error {
		volume = ch.Volume()
		return nil
	})
	return volume, err
}

// AdjustEq updates one EQ band.
func (s *MixerSession) AdjustEq(id string, kind domain.InputType, band domain.EqBandIndex, gain, frequency float64) error {
	return s.withChannel(id, kind, func(ch Channel) error {
		return ch.AdjustEq(band, gain, frequency)
	})
}

// CurrentEq returns the EQ snapshot.
func (s *MixerSession) CurrentEq(id string, kind domain.InputType) (domain.EqSettings, error) {
	var eq domain.EqSettings
	err := s.withChannel(id, kind, func(ch Channel) error {
		eq = ch.CurrentEq()
		return nil
	})
	return eq, err
}

// ElapsedTime returns the playback position.
func (s *MixerSession) ElapsedTime(id string, kind domain.InputType) (domain.TimeParts, error) {
	var t domain.TimeParts
	err := s.withChannel(id, kind, func(ch Channel) error {
		var err error
		t, err = ch.ElapsedTime()
		return err
	})
	return t, err
}

// TotalTime returns the media duration.
func (s *MixerSession) TotalTime(id string, kind domain.InputType) (domain.TimeParts, error) {
	var t domain.TimeParts
	err := s.withChannel(id, kind, func(ch Channel) error {
		var err error
		t, err = ch.TotalTime()
		return err
	})
	return t, err
}

// SetElapsedTimeEvent sets the elapsed-time tick event name.
func (s *MixerSession) SetElapsedTimeEvent(id string, kind domain.InputType, name string) error {
	return s.withChannel(id, kind, func(ch Channel) error {
		return ch.SetElapsedTimeEvent(name)
	})
}

// InputChannelCount returns the channel count and name of the selected input device.
func (s *MixerSession) InputChannelCount() (int, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.active {
		return 0, "", domain.ErrSessionNotActive
	}
	return s.foundChannelCount, s.info.PreferredInputPortName, nil
}

// PreferredInputPortType returns the port type of the selected input device.
func (s *MixerSession) PreferredInputPortType() (domain.PortType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.active {
		return "", domain.ErrSessionNotActive
	}
	return s.info.PreferredInputPortType, nil
}

// ChannelCounts returns the number of registered file and mic channels.
func (s *MixerSession) ChannelCounts() (files, mics int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files), len(s.mics)
}

// HandleInterruption pauses playing files when an interruption begins and
// resumes them when it ends with shouldResume set.
func (s *MixerSession) HandleInterruption(began, shouldResume bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.active {
		return
	}

	s.interruptMu.Lock()
	defer s.interruptMu.Unlock()

	if began {
		for id, ch := range s.files {
			if !ch.IsPlaying() {
				continue
			}
			if _, err := ch.PlayOrPause(); err != nil {
				s.logger.Warn("failed to pause on interruption", slog.String("id", id), slog.Any("error", err))
				continue
			}
			s.pausedByInterrupt[id] = struct{}{}
		}
		s.logger.Info("interruption began", slog.Int("paused", len(s.pausedByInterrupt)))
		s.notify(domain.HandlerInterruptBegan)
		return
	}

	resumed := 0
	for id := range s.pausedByInterrupt {
		ch, ok := s.files[id]
		if !ok || !shouldResume || ch.State() != domain.StatePaused {
			continue
		}
		if _, err := ch.PlayOrPause(); err != nil {
			s.logger.Warn("failed to resume after interruption", slog.String("id", id), slog.Any("error", err))
			continue
		}
		resumed++
	}
	clear(s.pausedByInterrupt)
	s.logger.Info("interruption ended", slog.Bool("should_resume", shouldResume), slog.Int("resumed", resumed))
	s.notify(domain.HandlerInterruptEnded)
}

// notify publishes a handler event to the session listener. Callers hold mu.
func (s *MixerSession) notify(handler domain.HandlerType) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(domain.NewSessionHandlerEvent(s.listener, handler, ""))
}

// interruptibleMics is the routing monitor's broadcast set, sorted by ID.
func (s *MixerSession) interruptibleMics() []Interruptible {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.active {
		return nil
	}
	out := make([]Interruptible, 0, len(s.mics))
	for _, ch := range s.mics {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Verify that MixerSession implements the command surface
var _ ports.Mixer = (*MixerSession)(nil)
