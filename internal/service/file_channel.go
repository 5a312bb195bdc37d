package service

import (
	"log/slog"

	"github.com/tejashwikalptaru/gomixer/internal/domain"
	"github.com/tejashwikalptaru/gomixer/internal/ports"
)

// FileChannel plays one media file through a platform player.
// Play and pause toggle the transport and the level meter together, so the
// meter only runs while the file is audible.
type FileChannel struct {
	channelCore

	path   string
	player ports.MediaPlayer // set under mu in Setup
}

// NewFileChannel validates settings and returns an unopened channel.
func NewFileChannel(id, path string, settings domain.ChannelSettings, deps ChannelDeps) (*FileChannel, error) {
	if err := validateVolume(settings.Volume); err != nil {
		return nil, err
	}
	eq, err := domain.NewEqModel(settings.Eq)
	if err != nil {
		return nil, err
	}

	c := &FileChannel{path: path}
	c.init(id, domain.InputFile, settings, eq, deps)
	return c, nil
}

// Path returns the file the channel plays.
func (c *FileChannel) Path() string { return c.path }

// Setup opens the player, applies volume and EQ, and attaches the level tap.
func (c *FileChannel) Setup() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err := c.beginSetup(); err != nil {
		return err
	}

	player, err := c.plat.OpenMediaPlayer(c.path)
	if err != nil {
		c.setState(domain.StateUninitialized)
		return domain.NewSourceUnavailableError(c.path, err)
	}
	if err := player.SetVolume(c.Volume()); err != nil {
		_ = player.Release()
		c.setState(domain.StateUninitialized)
		return domain.NewSourceUnavailableError(c.path, err)
	}
	if err := c.attachEffects(player.SessionID(), c); err != nil {
		_ = player.Release()
		c.setState(domain.StateUninitialized)
		return domain.NewSourceUnavailableError(c.path, err)
	}
	player.SetOnCompletion(c.onCompletion)

	c.mu.Lock()
	c.player = player
	c.mu.Unlock()

	info := player.Info()
	c.logger.Info("audio file ready",
		slog.String("path", c.path),
		slog.String("title", info.Title),
		slog.String("artist", info.Artist),
		slog.String("format", info.Format),
		slog.Duration("duration", player.Duration()))

	c.setState(domain.StateReady)
	return nil
}

// PlayOrPause starts or pauses the transport.
func (c *FileChannel) PlayOrPause() (domain.TransportState, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err := c.checkUsable(); err != nil {
		return "", err
	}

	if c.State() == domain.StatePlaying {
		if err := c.player.Pause(); err != nil {
			return "", domain.NewAudioEngineError("pause", c.path, "failed to pause", err)
		}
		c.stopMeter()
		c.setState(domain.StatePaused)
		return domain.TransportPause, nil
	}

	if err := c.player.Start(); err != nil {
		return "", domain.NewAudioEngineError("start", c.path, "failed to start", err)
	}
	c.startMeter()
	c.setState(domain.StatePlaying)
	return domain.TransportPlay, nil
}

// Stop pauses, rewinds to zero and disables metering. It is idempotent.
func (c *FileChannel) Stop() (domain.TransportState, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err := c.checkUsable(); err != nil {
		return "", err
	}
	c.rewind()
	return domain.TransportStop, nil
}

// rewind is the shared body of Stop and natural end-of-media. Callers hold opMu.
func (c *FileChannel) rewind() {
	if c.player.IsPlaying() {
		if err := c.player.Pause(); err != nil {
			c.logger.Warn("failed to pause player", slog.Any("error", err))
		}
	}
	if err := c.player.SeekTo(0); err != nil {
		c.logger.Warn("failed to rewind player", slog.Any("error", err))
	}
	c.stopMeter()
	c.setState(domain.StateReady)
}

// onCompletion runs on the platform's goroutine when the media ends.
func (c *FileChannel) onCompletion() {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	switch c.State() {
	case domain.StatePlaying, domain.StatePaused:
		c.logger.Debug("playback completed")
		c.rewind()
	}
}

// AdjustVolume applies a new volume to the player.
func (c *FileChannel) AdjustVolume(volume float64) error {
	if err := validateVolume(volume); err != nil {
		return err
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err := c.checkUsable(); err != nil {
		return err
	}
	if err := c.player.SetVolume(volume); err != nil {
		return domain.NewAudioEngineError("volume", c.path, "failed to set volume", err)
	}

	c.mu.Lock()
	c.volume = volume
	c.mu.Unlock()
	return nil
}

// AdjustEq updates one band.
func (c *FileChannel) AdjustEq(band domain.EqBandIndex, gain, frequency float64) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err := c.checkUsable(); err != nil {
		return err
	}
	return c.adjustEq(band, gain, frequency)
}

// ElapsedTime returns the player position.
func (c *FileChannel) ElapsedTime() (domain.TimeParts, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err := c.checkUsable(); err != nil {
		return domain.TimeParts{}, err
	}
	return domain.NewTimeParts(c.player.Position()), nil
}

// TotalTime returns the media duration.
func (c *FileChannel) TotalTime() (domain.TimeParts, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err := c.checkUsable(); err != nil {
		return domain.TimeParts{}, err
	}
	return domain.NewTimeParts(c.player.Duration()), nil
}

// SetElapsedTimeEvent sets the name used for elapsed-time ticks. Empty disables them.
func (c *FileChannel) SetElapsedTimeEvent(name string) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if err := c.checkUsable(); err != nil {
		return err
	}
	c.mu.Lock()
	c.elapsedEvent = name
	c.mu.Unlock()
	return nil
}

// Destroy releases the meter, then the player, then the EQ effect.
func (c *FileChannel) Destroy() (domain.DestroyReceipt, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if c.State() == domain.StateDestroyed {
		return domain.DestroyReceipt{}, domain.ErrAlreadyDestroyed
	}

	c.closeMeter()
	if c.player != nil {
		if err := c.player.Release(); err != nil {
			c.logger.Warn("failed to release player", slog.Any("error", err))
		}
	}
	c.releaseEffect()

	receipt := c.receipt()
	c.setState(domain.StateDestroyed)
	c.logger.Info("audio file destroyed")
	return receipt, nil
}

func (c *FileChannel) meterSnapshot() meterSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return meterSnapshot{
		playing:      c.state == domain.StatePlaying,
		volume:       c.volume,
		listener:     c.listener,
		elapsedEvent: c.elapsedEvent,
	}
}

func (c *FileChannel) elapsedForMeter() (domain.TimeParts, bool) {
	c.mu.RLock()
	player := c.player
	c.mu.RUnlock()

	if player == nil {
		return domain.TimeParts{}, false
	}
	return domain.NewTimeParts(player.Position()), true
}

// Verify that FileChannel implements Channel
var _ Channel = (*FileChannel)(nil)
