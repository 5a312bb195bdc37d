package pcm

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dhowden/tag"
	"github.com/go-audio/aiff"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	gomp3 "github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"

	"github.com/tejashwikalptaru/gomixer/internal/domain"
)

// Decode errors.
var (
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrInvalidFile       = errors.New("invalid audio file")
	ErrEmptyFile         = errors.New("audio file has no samples")
)

// clip is a fully decoded file held in memory as interleaved float32 in [-1, 1].
type clip struct {
	samples    []float32
	sampleRate int
	channels   int
}

func (c *clip) frames() int {
	if c.channels == 0 {
		return 0
	}
	return len(c.samples) / c.channels
}

func (c *clip) duration() time.Duration {
	return framesToDuration(c.frames(), c.sampleRate)
}

func framesToDuration(frames, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(int64(frames) * int64(time.Second) / int64(sampleRate))
}

func durationToFrames(d time.Duration, sampleRate int) int {
	return int(int64(d) * int64(sampleRate) / int64(time.Second))
}

// decoder turns an open file into a clip.
type decoder func(f *os.File) (*clip, error)

var decoders = map[string]decoder{
	".wav":  decodeWAV,
	".wave": decodeWAV,
	".aif":  decodeAIFF,
	".aiff": decodeAIFF,
	".mp3":  decodeMP3,
	".ogg":  decodeVorbis,
	".oga":  decodeVorbis,
}

// SupportedExtension reports whether path has an extension the backend can decode.
func SupportedExtension(path string) bool {
	_, ok := decoders[strings.ToLower(filepath.Ext(path))]
	return ok
}

// decodeFile reads and decodes path completely, along with its tags.
func decodeFile(path string) (*clip, domain.TrackInfo, error) {
	ext := strings.ToLower(filepath.Ext(path))
	dec, ok := decoders[ext]
	if !ok {
		return nil, domain.TrackInfo{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, domain.TrackInfo{}, err
	}
	defer f.Close()

	c, err := dec(f)
	if err != nil {
		return nil, domain.TrackInfo{}, fmt.Errorf("decoding %s: %w", filepath.Base(path), err)
	}
	if c.frames() == 0 {
		return nil, domain.TrackInfo{}, ErrEmptyFile
	}

	info := domain.TrackInfo{
		FilePath:   path,
		Title:      strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Format:     strings.TrimPrefix(ext, "."),
		SampleRate: c.sampleRate,
		Channels:   c.channels,
		Duration:   c.duration(),
	}
	readTags(f, &info)

	return c, info, nil
}

// readTags fills title and artist from embedded metadata when present.
// Missing or unreadable tags are not an error.
func readTags(f *os.File, info *domain.TrackInfo) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return
	}
	m, err := tag.ReadFrom(f)
	if err != nil {
		return
	}
	if title := strings.TrimSpace(m.Title()); title != "" {
		info.Title = title
	}
	info.Artist = strings.TrimSpace(m.Artist())
}

func decodeWAV(f *os.File) (*clip, error) {
	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, ErrInvalidFile
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, err
	}
	return intBufferClip(buf, int(d.BitDepth))
}

func decodeAIFF(f *os.File) (*clip, error) {
	d := aiff.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, ErrInvalidFile
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, err
	}
	return intBufferClip(buf, int(d.BitDepth))
}

// intBufferClip normalizes go-audio integer samples by bit depth.
func intBufferClip(buf *audio.IntBuffer, bitDepth int) (*clip, error) {
	if buf == nil || buf.Format == nil || buf.Format.NumChannels <= 0 {
		return nil, ErrInvalidFile
	}
	if buf.SourceBitDepth > 0 {
		bitDepth = buf.SourceBitDepth
	}
	if bitDepth <= 0 || bitDepth > 32 {
		bitDepth = 16
	}
	scale := float32(int64(1) << (bitDepth - 1))

	samples := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = float32(v) / scale
	}
	return &clip{
		samples:    samples,
		sampleRate: buf.Format.SampleRate,
		channels:   buf.Format.NumChannels,
	}, nil
}

// go-mp3 always produces 16-bit little-endian stereo.
const (
	mp3Channels      = 2
	mp3BytesPerFrame = 4
)

func decodeMP3(f *os.File) (*clip, error) {
	d, err := gomp3.NewDecoder(f)
	if err != nil {
		return nil, err
	}

	var samples []float32
	if n := d.Length(); n > 0 {
		samples = make([]float32, 0, n/2)
	}
	raw := make([]byte, 8192)
	for {
		n, err := d.Read(raw)
		n -= n % 2
		for i := 0; i < n; i += 2 {
			v := int16(uint16(raw[i]) | uint16(raw[i+1])<<8)
			samples = append(samples, float32(v)/32768)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}

	// Drop a trailing partial frame.
	samples = samples[:len(samples)-len(samples)%(mp3BytesPerFrame/2)]
	return &clip{samples: samples, sampleRate: d.SampleRate(), channels: mp3Channels}, nil
}

func decodeVorbis(f *os.File) (*clip, error) {
	samples, format, err := oggvorbis.ReadAll(f)
	if err != nil {
		return nil, err
	}
	if format == nil || format.Channels <= 0 {
		return nil, ErrInvalidFile
	}
	return &clip{samples: samples, sampleRate: format.SampleRate, channels: format.Channels}, nil
}
