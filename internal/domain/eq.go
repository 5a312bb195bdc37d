package domain

import (
	"fmt"
	"math"
)

// EqBandIndex is the fixed role of a band. The numeric value is the band index
// the platform effect expects and must not be reordered.
type EqBandIndex int

const (
	BandBass   EqBandIndex = 0
	BandMid    EqBandIndex = 1
	BandTreble EqBandIndex = 2

	// EqBandCount is the number of bands every channel carries.
	EqBandCount = 3
)

// Default band values.
const (
	DefaultBassFrequency   = 200.0
	DefaultMidFrequency    = 1499.0
	DefaultTrebleFrequency = 20000.0
)

// String returns the wire name of the band.
func (b EqBandIndex) String() string {
	switch b {
	case BandBass:
		return "bass"
	case BandMid:
		return "mid"
	case BandTreble:
		return "treble"
	default:
		return fmt.Sprintf("band(%d)", int(b))
	}
}

// Valid reports whether b is one of the three fixed bands.
func (b EqBandIndex) Valid() bool {
	return b >= BandBass && b <= BandTreble
}

// ParseEqBand converts "bass", "mid" or "treble" into a band index.
func ParseEqBand(name string) (EqBandIndex, error) {
	switch name {
	case "bass":
		return BandBass, nil
	case "mid":
		return BandMid, nil
	case "treble":
		return BandTreble, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidEqBand, name)
	}
}

// EqBand is one parametric band: gain in dB and center/cutoff frequency in Hz.
type EqBand struct {
	Gain      float64
	Frequency float64
}

// EqSettings is the flat view of the three bands used on the wire.
type EqSettings struct {
	BassGain        float64
	BassFrequency   float64
	MidGain         float64
	MidFrequency    float64
	TrebleGain      float64
	TrebleFrequency float64
}

// DefaultEqSettings returns 0 dB on every band at the default frequencies.
func DefaultEqSettings() EqSettings {
	return EqSettings{
		BassFrequency:   DefaultBassFrequency,
		MidFrequency:    DefaultMidFrequency,
		TrebleFrequency: DefaultTrebleFrequency,
	}
}

// Bands returns the settings in band-index order.
func (s EqSettings) Bands() [EqBandCount]EqBand {
	return [EqBandCount]EqBand{
		BandBass:   {Gain: s.BassGain, Frequency: s.BassFrequency},
		BandMid:    {Gain: s.MidGain, Frequency: s.MidFrequency},
		BandTreble: {Gain: s.TrebleGain, Frequency: s.TrebleFrequency},
	}
}

// Map returns the wire representation used in responses.
func (s EqSettings) Map() map[string]any {
	return map[string]any{
		"bassGain":        s.BassGain,
		"bassFrequency":   s.BassFrequency,
		"midGain":         s.MidGain,
		"midFrequency":    s.MidFrequency,
		"trebleGain":      s.TrebleGain,
		"trebleFrequency": s.TrebleFrequency,
	}
}

// EqModel holds the three bands of one channel.
// It is a plain value type; callers serialize access.
type EqModel struct {
	bands [EqBandCount]EqBand
}

// NewEqModel builds a model from flat settings after validating every value.
func NewEqModel(settings EqSettings) (EqModel, error) {
	var m EqModel
	for i, band := range settings.Bands() {
		if err := m.SetBand(EqBandIndex(i), band.Gain, band.Frequency); err != nil {
			return EqModel{}, err
		}
	}
	return m, nil
}

// SetBand updates exactly one band. Unknown bands and non-finite values are rejected
// and leave the model unchanged. No clamping is applied.
func (m *EqModel) SetBand(band EqBandIndex, gain, frequency float64) error {
	if !band.Valid() {
		return fmt.Errorf("%w: index %d", ErrInvalidEqBand, int(band))
	}
	if !isFinite(gain) {
		return NewValidationError(band.String()+"Gain", gain, "gain must be a finite number")
	}
	if !isFinite(frequency) {
		return NewValidationError(band.String()+"Frequency", frequency, "frequency must be a finite number")
	}

	m.bands[band] = EqBand{Gain: gain, Frequency: frequency}
	return nil
}

// Band returns a single band.
func (m EqModel) Band(band EqBandIndex) EqBand {
	if !band.Valid() {
		return EqBand{}
	}
	return m.bands[band]
}

// Bands returns all three bands in index order.
func (m EqModel) Bands() [EqBandCount]EqBand {
	return m.bands
}

// Settings returns the flat snapshot.
func (m EqModel) Settings() EqSettings {
	return EqSettings{
		BassGain:        m.bands[BandBass].Gain,
		BassFrequency:   m.bands[BandBass].Frequency,
		MidGain:         m.bands[BandMid].Gain,
		MidFrequency:    m.bands[BandMid].Frequency,
		TrebleGain:      m.bands[BandTreble].Gain,
		TrebleFrequency: m.bands[BandTreble].Frequency,
	}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
