// Package domain contains core mixer models and logic with no external dependencies.
// This package defines the fundamental entities of the mixer engine: channels,
// their settings, EQ bands, transport state and the audio session.
package domain

import (
	"fmt"
	"time"
)

// InputType selects which channel registry a command addresses.
type InputType string

const (
	// InputFile addresses file playback channels.
	InputFile InputType = "file"

	// InputMic addresses microphone passthrough channels.
	InputMic InputType = "mic"
)

// ParseInputType validates a wire input type. Only "file" and "mic" are accepted.
func ParseInputType(s string) (InputType, error) {
	switch InputType(s) {
	case InputFile, InputMic:
		return InputType(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownInputType, s)
	}
}

// ChannelSettings is the configuration supplied when a channel is initialized.
type ChannelSettings struct {
	// Volume is the linear output gain. Negative values are rejected; there is no upper clamp.
	Volume float64

	// ChannelListenerName receives meter level events (empty disables them).
	ChannelListenerName string

	// ElapsedTimeEventName receives elapsed-time ticks while playing (empty disables them).
	ElapsedTimeEventName string

	// Eq holds the initial band values.
	Eq EqSettings

	// ChannelNumber selects the capture channel to keep on multichannel input (mic only, 0-based).
	ChannelNumber int
}

// DefaultChannelSettings returns full volume with the default EQ.
func DefaultChannelSettings() ChannelSettings {
	return ChannelSettings{
		Volume: 1.0,
		Eq:     DefaultEqSettings(),
	}
}

// ChannelState is the lifecycle state of a channel.
type ChannelState int

const (
	// StateUninitialized is the state of a channel before Setup.
	StateUninitialized ChannelState = iota

	// StateConfiguring is held while Setup opens platform resources.
	StateConfiguring

	// StateReady means resources are open and the transport is at rest.
	StateReady

	// StatePlaying means audio is being rendered.
	StatePlaying

	// StatePaused means the transport is held at its current position.
	StatePaused

	// StateFaulted means a background loop failed; only Destroy is meaningful.
	StateFaulted

	// StateDestroyed is terminal.
	StateDestroyed
)

// String returns a human-readable representation of the channel state.
func (s ChannelState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConfiguring:
		return "configuring"
	case StateReady:
		return "ready"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateFaulted:
		return "faulted"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// TransportState is the result reported by play and stop commands.
type TransportState string

const (
	TransportPlay  TransportState = "play"
	TransportPause TransportState = "pause"
	TransportStop  TransportState = "stop"
)

// TimeParts splits a duration the way listeners expect it.
// Milliseconds is the sub-second remainder.
type TimeParts struct {
	Hours        int
	Minutes      int
	Seconds      int
	Milliseconds int
}

// NewTimeParts splits d into hours, minutes, seconds and milliseconds.
// Negative durations are treated as zero.
func NewTimeParts(d time.Duration) TimeParts {
	if d < 0 {
		d = 0
	}
	totalSeconds := int(d / time.Second)
	return TimeParts{
		Hours:        totalSeconds / 3600,
		Minutes:      (totalSeconds / 60) % 60,
		Seconds:      totalSeconds % 60,
		Milliseconds: int((d % time.Second) / time.Millisecond),
	}
}

// Duration reassembles the parts into a time.Duration.
func (t TimeParts) Duration() time.Duration {
	return time.Duration(t.Hours)*time.Hour +
		time.Duration(t.Minutes)*time.Minute +
		time.Duration(t.Seconds)*time.Second +
		time.Duration(t.Milliseconds)*time.Millisecond
}

// Map returns the wire representation used in responses and events.
func (t TimeParts) Map() map[string]any {
	return map[string]any{
		"hours":        t.Hours,
		"minutes":      t.Minutes,
		"seconds":      t.Seconds,
		"milliSeconds": t.Milliseconds,
	}
}

// DestroyReceipt is returned by a channel's Destroy so the session can finish bookkeeping.
type DestroyReceipt struct {
	ListenerName         string
	ElapsedTimeEventName string
}

// SessionInfo describes the device pair chosen by InitAudioSession.
type SessionInfo struct {
	PreferredInputPortName    string
	PreferredInputPortType    PortType
	PreferredIOBufferDuration float64
}

// AudioDevice is one entry of the platform device enumeration.
type AudioDevice struct {
	// ID is unique per physical device for the lifetime of the process.
	ID int

	// Name is the product name.
	Name string

	// Type is the port type of the device.
	Type PortType

	// Source is true for capture-capable devices.
	Source bool

	// Sink is true for render-capable devices.
	Sink bool

	// ChannelCounts lists supported channel counts.
	ChannelCounts []int

	// ChannelMasks lists supported positional channel masks.
	ChannelMasks []int
}

// IsSource reports whether the device can capture.
func (d AudioDevice) IsSource() bool { return d.Source }

// IsSink reports whether the device can render.
func (d AudioDevice) IsSink() bool { return d.Sink }

// MaxChannelCount returns the largest supported channel count, or 1 when none are listed.
func (d AudioDevice) MaxChannelCount() int {
	maxCount := 0
	for _, c := range d.ChannelCounts {
		if c > maxCount {
			maxCount = c
		}
	}
	if maxCount == 0 {
		return 1
	}
	return maxCount
}

// StreamConfig describes a PCM stream opened on a capture or render device.
type StreamConfig struct {
	// Device is the preferred device; nil selects the platform default.
	Device *AudioDevice

	// SampleRate in Hz.
	SampleRate int

	// Channels in the interleaved stream.
	Channels int

	// FramesPerBuffer is the size of one blocking read or write.
	FramesPerBuffer int
}

// BufferDuration returns how long one buffer of this stream lasts.
func (c StreamConfig) BufferDuration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(c.FramesPerBuffer) * time.Second / time.Duration(c.SampleRate)
}

// TrackInfo is descriptive information about an opened media file.
type TrackInfo struct {
	FilePath   string
	Title      string
	Artist     string
	Format     string
	SampleRate int
	Channels   int
	Duration   time.Duration
}
