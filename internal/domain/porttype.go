package domain

// PortType is the enumerated category of audio device requested by InitAudioSession.
type PortType string

const (
	PortHDMI            PortType = "hdmi"
	PortBluetoothA2DP   PortType = "bluetoothA2DP"
	PortBluetoothHFP    PortType = "bluetoothHFP"
	PortBuiltInMic      PortType = "builtInMic"
	PortHeadsetMicUSB   PortType = "headsetMicUsb"
	PortHeadsetMicWired PortType = "headsetMicWired"
	PortLineIn          PortType = "lineIn"
	PortUSBAudio        PortType = "usbAudio"
	PortVirtual         PortType = "virtual"
	PortUnknown         PortType = "unknown"
)

// Fallback values reported when no device of the requested type exists.
const (
	DefaultInputPortName = "Default Mic"
	DefaultInputPortType = PortBuiltInMic
)

var knownPortTypes = map[PortType]struct{}{
	PortHDMI:            {},
	PortBluetoothA2DP:   {},
	PortBluetoothHFP:    {},
	PortBuiltInMic:      {},
	PortHeadsetMicUSB:   {},
	PortHeadsetMicWired: {},
	PortLineIn:          {},
	PortUSBAudio:        {},
	PortVirtual:         {},
}

// ParsePortType maps a wire value onto the taxonomy; anything unrecognized is PortUnknown.
// The legacy "headsetMic" value maps to the USB headset type.
func ParsePortType(s string) PortType {
	if s == "headsetMic" {
		return PortHeadsetMicUSB
	}
	if _, ok := knownPortTypes[PortType(s)]; ok {
		return PortType(s)
	}
	return PortUnknown
}
