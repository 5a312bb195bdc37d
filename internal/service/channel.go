// Package service implements the mixer core: channels, metering, routing and the session.
package service

import (
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/tejashwikalptaru/gomixer/internal/domain"
	"github.com/tejashwikalptaru/gomixer/internal/ports"
)

// Channel is one independently controllable audio path.
// Both variants support the full method set; operations that do not apply to a
// variant return domain.ErrNotApplicable instead of doing nothing.
type Channel interface {
	ID() string
	Kind() domain.InputType
	State() domain.ChannelState

	// Setup opens platform resources. It may block briefly.
	Setup() error

	PlayOrPause() (domain.TransportState, error)
	Stop() (domain.TransportState, error)
	IsPlaying() bool

	AdjustVolume(volume float64) error
	Volume() float64

	AdjustEq(band domain.EqBandIndex, gain, frequency float64) error
	CurrentEq() domain.EqSettings

	ElapsedTime() (domain.TimeParts, error)
	TotalTime() (domain.TimeParts, error)
	SetElapsedTimeEvent(name string) error

	// Destroy releases everything. A second call fails with domain.ErrAlreadyDestroyed.
	Destroy() (domain.DestroyReceipt, error)
}

// ChannelDeps are the collaborators every channel needs.
type ChannelDeps struct {
	Logger   *slog.Logger
	Bus      ports.EventBus
	Platform ports.AudioPlatform
}

// channelCore holds the state shared by both channel variants.
//
// opMu serializes operations on the channel, so they are totally ordered.
// mu guards the observable fields and is never held across a platform call,
// which keeps meter ticks and fault reports off the operation lock.
type channelCore struct {
	id     string
	kind   domain.InputType
	logger *slog.Logger
	bus    ports.EventBus
	plat   ports.AudioPlatform

	opMu sync.Mutex

	mu           sync.RWMutex
	state        domain.ChannelState
	volume       float64
	listener     string
	elapsedEvent string
	eq           domain.EqModel

	// guarded by opMu
	effect ports.EqEffect
	meter  *LevelMeter
}

func (c *channelCore) init(id string, kind domain.InputType, settings domain.ChannelSettings, eq domain.EqModel, deps ChannelDeps) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	c.id = id
	c.kind = kind
	c.logger = logger.With(slog.String("channel", id), slog.String("kind", string(kind)))
	c.bus = deps.Bus
	c.plat = deps.Platform
	c.state = domain.StateUninitialized
	c.volume = settings.Volume
	c.listener = settings.ChannelListenerName
	c.elapsedEvent = settings.ElapsedTimeEventName
	c.eq = eq
}

// ID returns the channel ID.
func (c *channelCore) ID() string { return c.id }

// Kind returns the registry the channel lives in.
func (c *channelCore) Kind() domain.InputType { return c.kind }

// State returns the lifecycle state.
func (c *channelCore) State() domain.ChannelState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// IsPlaying reports whether the channel is audibly running.
func (c *channelCore) IsPlaying() bool {
	return c.State() == domain.StatePlaying
}

// Volume returns the configured volume.
func (c *channelCore) Volume() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.volume
}

// CurrentEq returns a snapshot of the bands.
func (c *channelCore) CurrentEq() domain.EqSettings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.eq.Settings()
}

func (c *channelCore) receipt() domain.DestroyReceipt {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return domain.DestroyReceipt{
		ListenerName:         c.listener,
		ElapsedTimeEventName: c.elapsedEvent,
	}
}

// setState moves to a new state and publishes the transition.
// Returns false if the channel was already in that state.
func (c *channelCore) setState(to domain.ChannelState) bool {
	c.mu.Lock()
	from := c.state
	c.state = to
	c.mu.Unlock()

	if from == to {
		return false
	}
	c.logger.Debug("state changed", slog.String("from", from.String()), slog.String("to", to.String()))
	if c.bus != nil {
		c.bus.Publish(domain.NewChannelStateChangedEvent(c.id, c.kind, from, to))
	}
	return true
}

// checkUsable returns the error for operations on a channel that is not set up.
func (c *channelCore) checkUsable() error {
	switch c.State() {
	case domain.StateUninitialized, domain.StateConfiguring:
		return domain.ErrNotInitialized
	case domain.StateDestroyed:
		return domain.ErrAlreadyDestroyed
	default:
		return nil
	}
}

// beginSetup guards Setup against a second call and moves to Configuring.
func (c *channelCore) beginSetup() error {
	switch c.State() {
	case domain.StateUninitialized:
		c.setState(domain.StateConfiguring)
		return nil
	case domain.StateDestroyed:
		return domain.ErrAlreadyDestroyed
	default:
		return domain.ErrAlreadyInitialized
	}
}

func validateVolume(volume float64) error {
	if volume < 0 || math.IsNaN(volume) || math.IsInf(volume, 0) {
		return fmt.Errorf("%w: %v", domain.ErrInvalidVolume, volume)
	}
	return nil
}

// attachEffects creates the EQ effect and level tap on an audio session.
// On failure everything created so far is released.
func (c *channelCore) attachEffects(sessionID int, owner meterOwner) error {
	effect, err := c.plat.NewEqEffect(sessionID)
	if err != nil {
		return err
	}
	if err := effect.ApplyBands(c.eqBands()); err != nil {
		_ = effect.Release()
		return err
	}
	if err := effect.SetEnabled(true); err != nil {
		_ = effect.Release()
		return err
	}

	tap, err := c.plat.NewLevelTap(sessionID)
	if err != nil {
		_ = effect.Release()
		return err
	}

	c.effect = effect
	c.meter = NewLevelMeter(c.logger, c.bus, tap, c.id, owner)
	return nil
}

func (c *channelCore) eqBands() [domain.EqBandCount]domain.EqBand {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.eq.Bands()
}

// adjustEq updates one band and pushes all three to the effect together.
// The model only changes if the effect accepted the new bands.
func (c *channelCore) adjustEq(band domain.EqBandIndex, gain, frequency float64) error {
	c.mu.RLock()
	next := c.eq
	c.mu.RUnlock()

	if err := next.SetBand(band, gain, frequency); err != nil {
		return err
	}
	if c.effect != nil {
		if err := c.effect.ApplyBands(next.Bands()); err != nil {
			return domain.NewAudioEngineError("eq", c.id, "failed to apply bands", err)
		}
	}

	c.mu.Lock()
	c.eq = next
	c.mu.Unlock()

	c.logger.Debug("eq adjusted",
		slog.String("band", band.String()),
		slog.Float64("gain", gain),
		slog.Float64("frequency", frequency))
	return nil
}

// closeMeter is the first step of Destroy. The variant releases its transport
// next, then calls releaseEffect.
func (c *channelCore) closeMeter() {
	if c.meter == nil {
		return
	}
	if err := c.meter.Close(); err != nil {
		c.logger.Warn("failed to release level tap", slog.Any("error", err))
	}
}

func (c *channelCore) releaseEffect() {
	if c.effect == nil {
		return
	}
	if err := c.effect.Release(); err != nil {
		c.logger.Warn("failed to release eq effect", slog.Any("error", err))
	}
	c.effect = nil
}

func (c *channelCore) startMeter() {
	if c.meter == nil {
		return
	}
	if err := c.meter.Start(); err != nil {
		c.logger.Warn("failed to start level meter", slog.Any("error", err))
	}
}

func (c *channelCore) stopMeter() {
	if c.meter == nil {
		return
	}
	if err := c.meter.Stop(); err != nil {
		c.logger.Warn("failed to stop level meter", slog.Any("error", err))
	}
}
