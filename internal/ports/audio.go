package ports

import (
	"time"

	"github.com/tejashwikalptaru/gomixer/internal/domain"
)

// AudioPlatform is the set of OS audio primitives the mixer drives.
// Decoding, device I/O and DSP live behind it; the mixer only forwards parameters.
//
// Effects and level taps attach to an audio session ID, the way platform
// effect chains attach to a player or render track.
//
// Implementations must be thread-safe. Callbacks (completion, level capture,
// routing) are invoked on platform goroutines and never while a platform lock
// is held, so they may call back into the platform.
type AudioPlatform interface {
	// OpenMediaPlayer opens a file for decode and render. The player starts paused at 0.
	OpenMediaPlayer(path string) (MediaPlayer, error)

	// OpenCapture opens a blocking PCM capture stream.
	OpenCapture(cfg domain.StreamConfig) (CaptureStream, error)

	// OpenRender opens a blocking PCM render stream.
	OpenRender(cfg domain.StreamConfig) (RenderStream, error)

	// NewEqEffect creates a 3-band EQ attached to the given audio session.
	NewEqEffect(sessionID int) (EqEffect, error)

	// NewLevelTap creates a level measurement attached to the given audio session.
	NewLevelTap(sessionID int) (LevelTap, error)

	// Devices enumerates audio devices. Order is platform-defined and may change between calls.
	Devices() ([]domain.AudioDevice, error)

	// WatchRouting registers a handler for routing changes of the active streams.
	// A nil device means nothing is routed. The returned func unregisters the handler.
	WatchRouting(handler RoutingHandler) (cancel func())

	// Close releases every platform resource.
	Close() error
}

// RoutingHandler receives the device currently carrying the signal, or nil.
type RoutingHandler func(device *domain.AudioDevice)

// InterruptionHandler receives session interruptions (phone calls, other apps taking focus).
type InterruptionHandler func(began bool, shouldResume bool)

// InterruptionSource is implemented by platforms that report session interruptions.
type InterruptionSource interface {
	WatchInterruptions(handler InterruptionHandler) (cancel func())
}

// MediaPlayer decodes and renders one file.
type MediaPlayer interface {
	// Start begins or resumes rendering.
	Start() error

	// Pause holds the current position.
	Pause() error

	// SeekTo moves the position. Seeking past the end clamps to the duration.
	SeekTo(position time.Duration) error

	// IsPlaying reports whether the player is rendering.
	IsPlaying() bool

	// Position returns the current position.
	Position() time.Duration

	// Duration returns the total length of the media.
	Duration() time.Duration

	// SetVolume sets the linear output gain.
	SetVolume(volume float64) error

	// SetOnCompletion registers the end-of-media callback.
	SetOnCompletion(fn func())

	// SessionID identifies the player's audio session for effects and taps.
	SessionID() int

	// Info describes the opened media.
	Info() domain.TrackInfo

	// Release stops rendering and frees the player. Further calls fail.
	Release() error
}

// CaptureStream is a blocking interleaved 16-bit PCM input.
type CaptureStream interface {
	// Start begins capturing.
	Start() error

	// Read fills buf with interleaved samples and returns the number written.
	// It blocks for at most about one buffer period.
	Read(buf []int16) (int, error)

	// Config returns the negotiated stream configuration.
	Config() domain.StreamConfig

	// Release stops capturing and frees the stream.
	Release() error
}

// RenderStream is a blocking interleaved 16-bit PCM output.
type RenderStream interface {
	// Start begins rendering.
	Start() error

	// Write renders buf and returns the number of samples consumed.
	Write(buf []int16) (int, error)

	// SetVolume sets the linear output gain.
	SetVolume(volume float64) error

	// SessionID identifies the stream's audio session for effects and taps.
	SessionID() int

	// Config returns the negotiated stream configuration.
	Config() domain.StreamConfig

	// Release stops rendering and frees the stream.
	Release() error
}

// EqEffect is a 3-band equalizer. Band index 0 is bass, 1 mid, 2 treble.
type EqEffect interface {
	// ApplyBands pushes all three bands in one call.
	ApplyBands(bands [domain.EqBandCount]domain.EqBand) error

	// SetEnabled turns the effect on or off.
	SetEnabled(enabled bool) error

	// Release frees the effect.
	Release() error
}

// LevelTap periodically measures the RMS of the rendered signal.
type LevelTap interface {
	// SetCaptureListener registers the per-tick callback. rmsMillibels is
	// 2000*log10(rms) of full scale, so 0 is full scale and silence is very negative.
	SetCaptureListener(fn func(rmsMillibels float64))

	// SetEnabled starts or stops measurement ticks.
	SetEnabled(enabled bool) error

	// Release frees the tap. No callbacks are delivered after Release returns.
	Release() error
}
