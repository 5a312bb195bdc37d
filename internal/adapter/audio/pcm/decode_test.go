package pcm

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFile_WAV(t *testing.T) {
	dir := t.TempDir()
	path := writeSine(t, dir, "tone.wav", 8000, 2, 250*time.Millisecond, 440, 0.5)

	c, info, err := decodeFile(path)
	require.NoError(t, err)

	assert.Equal(t, 8000, c.sampleRate)
	assert.Equal(t, 2, c.channels)
	assert.Equal(t, 2000, c.frames())
	assert.Equal(t, 250*time.Millisecond, info.Duration)
	assert.Equal(t, "tone", info.Title, "title falls back to the file name")
	assert.Equal(t, "wav", info.Format)

	for _, s := range c.samples {
		require.LessOrEqual(t, s, float32(1))
		require.GreaterOrEqual(t, s, float32(-1))
	}
	assert.InDelta(t, 0.5/1.4142, rms(c.samples), 0.01)
}

func TestDecodeFile_Errors(t *testing.T) {
	dir := t.TempDir()

	garbage := filepath.Join(dir, "broken.wav")
	require.NoError(t, os.WriteFile(garbage, []byte("definitely not riff"), 0o644))

	tests := []struct {
		name string
		path string
		want error
	}{
		{name: "unsupported extension", path: filepath.Join(dir, "notes.txt"), want: ErrUnsupportedFormat},
		{name: "invalid wav", path: garbage, want: ErrInvalidFile},
		{name: "missing file", path: filepath.Join(dir, "missing.wav"), want: os.ErrNotExist},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := decodeFile(tt.path)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSupportedExtension(t *testing.T) {
	for _, path := range []string{"a.wav", "b.AIFF", "c.aif", "d.mp3", "e.ogg", "f.oga"} {
		assert.True(t, SupportedExtension(path), path)
	}
	for _, path := range []string{"a.flac", "b", "c.m4a"} {
		assert.False(t, SupportedExtension(path), path)
	}
}

func TestDurationFrames(t *testing.T) {
	assert.Equal(t, 480, durationToFrames(10*time.Millisecond, 48000))
	assert.Equal(t, time.Second, framesToDuration(44100, 44100))
	assert.Equal(t, time.Duration(0), framesToDuration(100, 0))
}
