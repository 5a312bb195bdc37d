//go:build portaudio

package app

import (
	"log/slog"

	"github.com/tejashwikalptaru/gomixer/internal/adapter/audio/pcm"
	"github.com/tejashwikalptaru/gomixer/internal/adapter/audio/portaudio"
	"github.com/tejashwikalptaru/gomixer/internal/ports"
)

func init() {
	backends["portaudio"] = func(log *slog.Logger, sink pcm.Sink) (ports.AudioPlatform, error) {
		cfg := pcm.DefaultConfig()
		cfg.Sink = sink
		return portaudio.NewPlatform(log, cfg)
	}
}
