package service

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/tejashwikalptaru/gomixer/internal/domain"
	"github.com/tejashwikalptaru/gomixer/internal/ports"
)

// MicConfig is the device and stream setup a mic channel inherits from the session.
type MicConfig struct {
	// Input and Output are the preferred devices; nil selects the platform default.
	Input  *domain.AudioDevice
	Output *domain.AudioDevice

	SampleRate      int
	FramesPerBuffer int

	// CaptureChannels is the channel count of the input device.
	CaptureChannels int
}

// MicChannel copies live capture to a mono render stream.
//
// Capture runs continuously from Setup until Destroy on a dedicated goroutine.
// The loop checks an active flag at the top of every iteration, so Destroy
// returns at most one buffer period after it clears the flag.
type MicChannel struct {
	channelCore

	channelNumber int
	cfg           MicConfig

	// guarded by opMu
	capture ports.CaptureStream
	render  ports.RenderStream

	active atomic.Bool
	loopWg sync.WaitGroup

	// guarded by mu
	interrupted bool
	faultErr    error
}

// NewMicChannel validates settings and returns an unopened channel.
func NewMicChannel(id string, channelNumber int, settings domain.ChannelSettings, cfg MicConfig, deps ChannelDeps) (*MicChannel, error) {
	if channelNumber < 0 {
		return nil, domain.MissingFieldError("channelNumber")
	}
	cfg.CaptureChannels = max(cfg.CaptureChannels, 1)
	if channelNumber >= cfg.CaptureChannels {
		return nil, domain.NewValidationError("channelNumber", channelNumber,
			fmt.Sprintf("input device has %d channels", cfg.CaptureChannels))
	}
	if err := validateVolume(settings.Volume); err != nil {
		return nil, err
	}
	eq, err := domain.NewEqModel(settings.Eq)
	if err != nil {
		return nil, err
	}

	c := &MicChannel{channelNumber: channelNumber, cfg: cfg}
	c.init(id, domain.InputMic, settings, eq, deps)
	return c, nil
}

// ChannelNumber returns the capture channel this mic keeps.
func (c *MicChannel) ChannelNumber() int { return c.channelNumber }

// Setup opens capture and render, attaches EQ and the level tap, and starts the copy loop.
func (c *MicChannel) Setup() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err := c.beginSetup(); err != nil {
		return err
	}

	source := "default"
	if c.cfg.Input != nil {
		source = c.cfg.Input.Name
	}
	fail := func(err error, release ...func() error) error {
		for _, r := range release {
			_ = r()
		}
		c.setState(domain.StateUninitialized)
		return domain.NewSourceUnavailableError(source, err)
	}

	capture, err := c.plat.OpenCapture(domain.StreamConfig{
		Device:          c.cfg.Input,
		SampleRate:      c.cfg.SampleRate,
		Channels:        c.cfg.CaptureChannels,
		FramesPerBuffer: c.cfg.FramesPerBuffer,
	})
	if err != nil {
		return fail(err)
	}
	render, err := c.plat.OpenRender(domain.StreamConfig{
		Device:          c.cfg.Output,
		SampleRate:      c.cfg.SampleRate,
		Channels:        1,
		FramesPerBuffer: c.cfg.FramesPerBuffer,
	})
	if err != nil {
		return fail(err, capture.Release)
	}
	if err := render.SetVolume(c.Volume()); err != nil {
		return fail(err, capture.Release, render.Release)
	}
	if err := c.attachEffects(render.SessionID(), c); err != nil {
		return fail(err, capture.Release, render.Release)
	}
	if err := capture.Start(); err != nil {
		c.closeMeter()
		c.releaseEffect()
		return fail(err, capture.Release, render.Release)
	}
	if err := render.Start(); err != nil {
		c.closeMeter()
		c.releaseEffect()
		return fail(err, capture.Release, render.Release)
	}

	c.capture = capture
	c.render = render
	c.setState(domain.StateReady)

	c.active.Store(true)
	c.loopWg.Add(1)
	go c.copyLoop(capture, render)

	c.startMeter()
	c.setState(domain.StatePlaying)

	c.logger.Info("mic input ready",
		slog.String("device", source),
		slog.Int("channel_number", c.channelNumber),
		slog.Int("capture_channels", c.cfg.CaptureChannels),
		slog.Duration("buffer", capture.Config().BufferDuration()))
	return nil
}

// copyLoop is the blocking capture to render copy.
func (c *MicChannel) copyLoop(capture ports.CaptureStream, render ports.RenderStream) {
	defer c.loopWg.Done()

	channels := max(capture.Config().Channels, 1)
	frames := max(capture.Config().FramesPerBuffer, 1)
	in := make([]int16, frames*channels)
	out := make([]int16, frames)

	for c.active.Load() {
		n, err := capture.Read(in)
		if err != nil {
			c.fault(fmt.Errorf("capture read: %w", err))
			return
		}
		got := extractChannel(out, in[:n], channels, c.channelNumber)
		if _, err := render.Write(out[:got]); err != nil {
			c.fault(fmt.Errorf("render write: %w", err))
			return
		}
	}
}

// extractChannel copies one channel of interleaved src into dst and returns the frame count.
func extractChannel(dst, src []int16, channels, channel int) int {
	if channels <= 1 {
		return copy(dst, src)
	}
	frames := min(len(src)/channels, len(dst))
	for f := 0; f < frames; f++ {
		dst[f] = src[f*channels+channel]
	}
	return frames
}

// fault records a loop failure. It runs on the loop goroutine and must not take opMu,
// since Destroy holds opMu while waiting for the loop.
func (c *MicChannel) fault(err error) {
	if !c.active.Load() {
		return
	}

	c.mu.Lock()
	if c.state != domain.StatePlaying {
		c.mu.Unlock()
		return
	}
	c.faultErr = err
	listener := c.listener
	c.mu.Unlock()

	c.logger.Error("mic copy loop stopped", slog.Any("error", err))
	c.setState(domain.StateFaulted)
	if c.bus != nil {
		c.bus.Publish(domain.NewChannelFaultedEvent(c.id, listener, err))
	}
}

// FaultErr returns the error that stopped the copy loop, if any.
func (c *MicChannel) FaultErr() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.faultErr
}

// Interrupted reports whether the channel is muted by a routing loss.
func (c *MicChannel) Interrupted() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.interrupted
}

// Interrupt mutes the output and stops metering while capture keeps running.
// It reports whether the channel changed.
func (c *MicChannel) Interrupt() bool {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if c.State() != domain.StatePlaying || c.Interrupted() {
		return false
	}
	if err := c.render.SetVolume(0); err != nil {
		c.logger.Warn("failed to mute render stream", slog.Any("error", err))
	}
	c.stopMeter()

	c.mu.Lock()
	c.interrupted = true
	c.mu.Unlock()

	c.logger.Info("mic input interrupted")
	return true
}

// ResumeFromInterrupt restores the configured volume and restarts metering.
// It reports whether the channel changed.
func (c *MicChannel) ResumeFromInterrupt() bool {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if !c.Interrupted() || c.State() == domain.StateDestroyed {
		return false
	}

	c.mu.Lock()
	c.interrupted = false
	volume := c.volume
	c.mu.Unlock()

	if c.State() == domain.StatePlaying {
		if err := c.render.SetVolume(volume); err != nil {
			c.logger.Warn("failed to restore render volume", slog.Any("error", err))
		}
		c.startMeter()
	}

	c.logger.Info("mic input resumed", slog.Float64("volume", volume))
	return true
}

// PlayOrPause is not applicable: capture is continuous once set up.
func (c *MicChannel) PlayOrPause() (domain.TransportState, error) {
	if c.State() == domain.StateDestroyed {
		return "", domain.ErrAlreadyDestroyed
	}
	return "", domain.ErrNotApplicable
}

// Stop is not applicable: capture is continuous once set up.
func (c *MicChannel) Stop() (domain.TransportState, error) {
	if c.State() == domain.StateDestroyed {
		return "", domain.ErrAlreadyDestroyed
	}
	return "", domain.ErrNotApplicable
}

// AdjustVolume sets the render volume. While interrupted the value is stored
// and applied on resume.
func (c *MicChannel) AdjustVolume(volume float64) error {
	if err := validateVolume(volume); err != nil {
		return err
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err := c.checkUsable(); err != nil {
		return err
	}
	if !c.Interrupted() {
		if err := c.render.SetVolume(volume); err != nil {
			return domain.NewAudioEngineError("volume", c.id, "failed to set volume", err)
		}
	}

	c.mu.Lock()
	c.volume = volume
	c.mu.Unlock()
	return nil
}

// AdjustEq updates one band.
func (c *MicChannel) AdjustEq(band domain.EqBandIndex, gain, frequency float64) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err := c.checkUsable(); err != nil {
		return err
	}
	return c.adjustEq(band, gain, frequency)
}

// ElapsedTime is not applicable to live input.
func (c *MicChannel) ElapsedTime() (domain.TimeParts, error) {
	return domain.TimeParts{}, domain.ErrNotApplicable
}

// TotalTime is not applicable to live input.
func (c *MicChannel) TotalTime() (domain.TimeParts, error) {
	return domain.TimeParts{}, domain.ErrNotApplicable
}

// SetElapsedTimeEvent is not applicable to live input.
func (c *MicChannel) SetElapsedTimeEvent(string) error {
	return domain.ErrNotApplicable
}

// Destroy stops metering, stops the copy loop and waits for it, then releases
// capture, render and the EQ effect.
func (c *MicChannel) Destroy() (domain.DestroyReceipt, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if c.State() == domain.StateDestroyed {
		return domain.DestroyReceipt{}, domain.ErrAlreadyDestroyed
	}

	c.closeMeter()

	c.active.Store(false)
	c.loopWg.Wait()

	var errs []error
	if c.capture != nil {
		errs = append(errs, c.capture.Release())
	}
	if c.render != nil {
		errs = append(errs, c.render.Release())
	}
	if err := errors.Join(errs...); err != nil {
		c.logger.Warn("failed to release mic streams", slog.Any("error", err))
	}
	c.releaseEffect()

	receipt := c.receipt()
	c.setState(domain.StateDestroyed)
	c.logger.Info("mic input destroyed")
	return receipt, nil
}

func (c *MicChannel) meterSnapshot() meterSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return meterSnapshot{
		playing:  c.state == domain.StatePlaying && !c.interrupted,
		volume:   c.volume,
		listener: c.listener,
	}
}

func (c *MicChannel) elapsedForMeter() (domain.TimeParts, bool) {
	return domain.TimeParts{}, false
}

// Verify that MicChannel implements Channel
var _ Channel = (*MicChannel)(nil)
