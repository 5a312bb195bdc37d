//go:build portaudio

package portaudio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/tejashwikalptaru/gomixer/internal/adapter/audio/pcm"
	"github.com/tejashwikalptaru/gomixer/internal/domain"
	"github.com/tejashwikalptaru/gomixer/internal/ports"
)

// Platform plays and captures through PortAudio devices. Media players,
// effects, taps, routing and interruptions come from the embedded software
// platform; its output is sent to the default output device.
type Platform struct {
	*pcm.Platform

	logger *slog.Logger
	output *outputSink
}

// NewPlatform initializes PortAudio. cfg.Sink, when set, receives a copy of
// everything played.
func NewPlatform(logger *slog.Logger, cfg pcm.Config) (*Platform, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With(slog.String("component", "portaudio"))

	if err := portaudio.Initialize(); err != nil {
		return nil, domain.NewAudioEngineError("init", "", "failed to initialize portaudio", err)
	}

	output := newOutputSink(logger, openOutput)
	if cfg.Sink != nil {
		cfg.Sink = pcm.MultiSink{output, cfg.Sink}
	} else {
		cfg.Sink = output
	}

	p := &Platform{logger: logger, output: output}
	devices, err := p.Devices()
	if err != nil {
		_ = portaudio.Terminate()
		return nil, err
	}
	cfg.Devices = devices
	p.Platform = pcm.NewPlatform(logger, cfg)

	logger.Info("portaudio initialized",
		slog.String("version", portaudio.VersionText()),
		slog.Int("devices", len(devices)))
	return p, nil
}

// Devices enumerates PortAudio devices. IDs are PortAudio device indexes.
func (p *Platform) Devices() ([]domain.AudioDevice, error) {
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, domain.NewAudioEngineError("devices", "", "failed to enumerate devices", err)
	}

	devices := make([]domain.AudioDevice, 0, len(infos))
	for _, info := range infos {
		devices = append(devices, toDomainDevice(info))
	}
	return devices, nil
}

func toDomainDevice(info *portaudio.DeviceInfo) domain.AudioDevice {
	counts := channelCounts(max(info.MaxInputChannels, info.MaxOutputChannels))
	return domain.AudioDevice{
		ID:            info.Index,
		Name:          info.Name,
		Type:          PortTypeFromName(info.Name),
		Source:        info.MaxInputChannels > 0,
		Sink:          info.MaxOutputChannels > 0,
		ChannelCounts: counts,
	}
}

// findDevice returns the PortAudio device for d, or the default input when d is nil.
func findDevice(d *domain.AudioDevice) (*portaudio.DeviceInfo, error) {
	if d == nil {
		return portaudio.DefaultInputDevice()
	}
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	for _, info := range infos {
		if info.Index == d.ID {
			return info, nil
		}
	}
	return nil, fmt.Errorf("device %q not found", d.Name)
}

// OpenCapture opens a blocking PortAudio input stream.
func (p *Platform) OpenCapture(cfg domain.StreamConfig) (ports.CaptureStream, error) {
	name := "default"
	if cfg.Device != nil {
		name = cfg.Device.Name
	}

	dev, err := findDevice(cfg.Device)
	if err != nil {
		return nil, domain.NewAudioEngineError("capture", name, "input device unavailable", err)
	}

	cfg.Channels = max(cfg.Channels, 1)
	params := portaudio.LowLatencyParameters(dev, nil)
	params.Input.Channels = cfg.Channels
	params.Output.Channels = 0
	params.SampleRate = float64(cfg.SampleRate)
	params.FramesPerBuffer = cfg.FramesPerBuffer

	buf := make([]int16, cfg.FramesPerBuffer*cfg.Channels)
	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		return nil, domain.NewAudioEngineError("capture", dev.Name, "failed to open input stream", err)
	}

	p.logger.Debug("capture opened",
		slog.String("device", dev.Name),
		slog.Int("channels", cfg.Channels),
		slog.Int("frames_per_buffer", cfg.FramesPerBuffer))
	return &captureStream{stream: stream, buf: buf, cfg: cfg}, nil
}

// Close releases the software platform, then terminates PortAudio.
func (p *Platform) Close() error {
	err := p.Platform.Close()
	return errors.Join(err, portaudio.Terminate())
}

// captureStream adapts a blocking PortAudio input stream.
type captureStream struct {
	stream *portaudio.Stream
	buf    []int16
	cfg    domain.StreamConfig

	mu       sync.Mutex
	released bool
}

func (c *captureStream) Start() error {
	return c.stream.Start()
}

// Read blocks until one buffer is captured. Input overflow is not an error.
func (c *captureStream) Read(dst []int16) (int, error) {
	if err := c.stream.Read(); err != nil && !errors.Is(err, portaudio.InputOverflowed) {
		return 0, err
	}
	return copy(dst, c.buf), nil
}

func (c *captureStream) Config() domain.StreamConfig { return c.cfg }

func (c *captureStream) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return domain.ErrReleased
	}
	c.released = true
	_ = c.stream.Stop()
	return c.stream.Close()
}

// paOutput is a started blocking output stream. Underflow is not an error.
type paOutput struct {
	*portaudio.Stream
}

func (o paOutput) Write() error {
	if err := o.Stream.Write(); err != nil && !errors.Is(err, portaudio.OutputUnderflowed) {
		return err
	}
	return nil
}

// openOutput opens the default output device for one session.
func openOutput(frames, channels, sampleRate int) ([]int16, outputDevice, error) {
	dev, err := portaudio.DefaultOutputDevice()
	if err != nil {
		return nil, nil, domain.NewAudioEngineError("render", "default", "no output device", err)
	}
	params := portaudio.LowLatencyParameters(nil, dev)
	params.Output.Channels = channels
	params.SampleRate = float64(sampleRate)
	params.FramesPerBuffer = frames

	buf := make([]int16, frames*channels)
	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		return nil, nil, domain.NewAudioEngineError("render", dev.Name, "failed to open output stream", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, nil, domain.NewAudioEngineError("render", dev.Name, "failed to start output stream", err)
	}
	return buf, paOutput{stream}, nil
}

var (
	_ ports.AudioPlatform      = (*Platform)(nil)
	_ ports.InterruptionSource = (*Platform)(nil)
)
