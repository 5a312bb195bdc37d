// Package portaudio drives real capture and playback devices through PortAudio.
//
// Build with -tags portaudio; the package needs the PortAudio C library.
// Decoding, EQ and metering are shared with the software backend, so only
// device I/O differs between the two.
package portaudio

import (
	"strings"

	"github.com/tejashwikalptaru/gomixer/internal/domain"
)

// PortAudio does not report port types; they are inferred from device names.
var namePortTypes = []struct {
	keyword  string
	portType domain.PortType
}{
	{"hdmi", domain.PortHDMI},
	{"displayport", domain.PortHDMI},
	{"hands-free", domain.PortBluetoothHFP},
	{"hfp", domain.PortBluetoothHFP},
	{"bluetooth", domain.PortBluetoothA2DP},
	{"airpods", domain.PortBluetoothA2DP},
	{"headset", domain.PortHeadsetMicWired},
	{"usb", domain.PortUSBAudio},
	{"line", domain.PortLineIn},
	{"virtual", domain.PortVirtual},
	{"blackhole", domain.PortVirtual},
	{"loopback", domain.PortVirtual},
	{"built-in", domain.PortBuiltInMic},
	{"internal", domain.PortBuiltInMic},
	{"microphone", domain.PortBuiltInMic},
	{"speaker", domain.PortBuiltInMic},
}

// PortTypeFromName guesses the port type of a device from its name.
// USB headsets report headsetMicUsb. Unmatched names are builtInMic,
// the default input role.
func PortTypeFromName(name string) domain.PortType {
	lower := strings.ToLower(name)
	if strings.Contains(lower, "headset") && strings.Contains(lower, "usb") {
		return domain.PortHeadsetMicUSB
	}
	for _, m := range namePortTypes {
		if strings.Contains(lower, m.keyword) {
			return m.portType
		}
	}
	return domain.PortBuiltInMic
}

// channelCounts lists every channel count from 1 to maxChannels.
func channelCounts(maxChannels int) []int {
	if maxChannels <= 0 {
		return nil
	}
	counts := make([]int, maxChannels)
	for i := range counts {
		counts[i] = i + 1
	}
	return counts
}
