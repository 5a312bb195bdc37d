package bridge

import (
	"encoding/json"
	"math"

	"github.com/tejashwikalptaru/gomixer/internal/domain"
)

// Args are the named fields of a request, as decoded from JSON.
type Args map[string]any

// String returns the field as a string, or def when absent or not a string.
func (a Args) String(key, def string) string {
	if s, ok := a[key].(string); ok {
		return s
	}
	return def
}

// RequireString returns the field or a missing-field error when it is absent or empty.
func (a Args) RequireString(key string) (string, error) {
	s := a.String(key, "")
	if s == "" {
		return "", domain.MissingFieldError(key)
	}
	return s, nil
}

// Has reports whether the field is present and not null.
func (a Args) Has(key string) bool {
	v, ok := a[key]
	return ok && v != nil
}

// Float returns the field as a number, or def when absent.
func (a Args) Float(key string, def float64) (float64, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return def, nil
	}

	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, domain.NewValidationError(key, v, "must be a number")
		}
		f = parsed
	default:
		return 0, domain.NewValidationError(key, v, "must be a number")
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, domain.NewValidationError(key, v, "must be finite")
	}
	return f, nil
}

// RequireFloat returns the field or a missing-field error.
func (a Args) RequireFloat(key string) (float64, error) {
	if !a.Has(key) {
		return 0, domain.MissingFieldError(key)
	}
	return a.Float(key, 0)
}

// Int returns the field as a whole number, or def when absent.
func (a Args) Int(key string, def int) (int, error) {
	if !a.Has(key) {
		return def, nil
	}
	f, err := a.Float(key, 0)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, domain.NewValidationError(key, a[key], "must be a whole number")
	}
	return int(f), nil
}

// InputType returns the inputType field; absent means "file".
func (a Args) InputType() (domain.InputType, error) {
	if !a.Has("inputType") {
		return domain.InputFile, nil
	}
	return domain.ParseInputType(a.String("inputType", ""))
}

// ChannelSettings reads volume, listener name and the six EQ fields.
// Absent fields take their defaults.
func (a Args) ChannelSettings() (domain.ChannelSettings, error) {
	s := domain.DefaultChannelSettings()

	var err error
	if s.Volume, err = a.Float("volume", s.Volume); err != nil {
		return s, err
	}
	s.ChannelListenerName = a.String("channelListenerName", "")
	s.ElapsedTimeEventName = a.String("elapsedTimeEventName", "")

	fields := []struct {
		key string
		dst *float64
	}{
		{"bassGain", &s.Eq.BassGain},
		{"bassFrequency", &s.Eq.BassFrequency},
		{"midGain", &s.Eq.MidGain},
		{"midFrequency", &s.Eq.MidFrequency},
		{"trebleGain", &s.Eq.TrebleGain},
		{"trebleFrequency", &s.Eq.TrebleFrequency},
	}
	for _, f := range fields {
		if *f.dst, err = a.Float(f.key, *f.dst); err != nil {
			return s, err
		}
	}
	return s, nil
}
