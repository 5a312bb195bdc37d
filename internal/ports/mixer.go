package ports

import (
	"github.com/tejashwikalptaru/gomixer/internal/domain"
)

// Mixer is the command surface a host bridge drives.
// The bridge translates wire requests into these calls and never touches
// channels directly.
//
// Thread-safety: Implementations must be safe for concurrent use; every
// transport connection dispatches on its own goroutine.
type Mixer interface {
	// Session lifecycle

	// InitAudioSession selects devices for portType and activates the session.
	InitAudioSession(portType domain.PortType, ioBufferDuration float64, listener string) (domain.SessionInfo, error)

	// DeinitAudioSession deactivates the session.
	DeinitAudioSession() error

	// ResetPlugin destroys every channel and deactivates the session.
	ResetPlugin() error

	// Channel lifecycle

	InitAudioFile(id, path string, settings domain.ChannelSettings) error
	InitMicInput(id string, channelNumber int, settings domain.ChannelSettings) error
	DestroyAudioFile(id string) (domain.DestroyReceipt, error)
	DestroyMicInput(id string) (domain.DestroyReceipt, error)

	// Per-channel operations. kind selects the registry the id is looked up in.

	Play(id string, kind domain.InputType) (domain.TransportState, error)
	Stop(id string, kind domain.InputType) (domain.TransportState, error)
	IsPlaying(id string, kind domain.InputType) (bool, error)
	AdjustVolume(id string, kind domain.InputType, volume float64) error
	CurrentVolume(id string, kind domain.InputType) (float64, error)
	AdjustEq(id string, kind domain.InputType, band domain.EqBandIndex, gain, frequency float64) error
	CurrentEq(id string, kind domain.InputType) (domain.EqSettings, error)
	SetElapsedTimeEvent(id string, kind domain.InputType, name string) error
	ElapsedTime(id string, kind domain.InputType) (domain.TimeParts, error)
	TotalTime(id string, kind domain.InputType) (domain.TimeParts, error)

	// Session queries

	InputChannelCount() (count int, deviceName string, err error)
	PreferredInputPortType() (domain.PortType, error)
	ChannelCounts() (files, mics int)
}
