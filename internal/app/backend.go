package app

import (
	"log/slog"
	"sort"

	"github.com/tejashwikalptaru/gomixer/internal/adapter/audio/mock"
	"github.com/tejashwikalptaru/gomixer/internal/adapter/audio/pcm"
	"github.com/tejashwikalptaru/gomixer/internal/ports"
)

// backendFactory creates an audio platform. sink may be nil.
type backendFactory func(log *slog.Logger, sink pcm.Sink) (ports.AudioPlatform, error)

var backends = map[string]backendFactory{
	"mock": func(log *slog.Logger, _ pcm.Sink) (ports.AudioPlatform, error) {
		p := mock.NewPlatform()
		p.SetLogger(log)
		return p, nil
	},
	"pcm": func(log *slog.Logger, sink pcm.Sink) (ports.AudioPlatform, error) {
		cfg := pcm.DefaultConfig()
		cfg.Sink = sink
		return pcm.NewPlatform(log, cfg), nil
	},
}

// Backends lists the audio backends compiled into this binary.
func Backends() []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
