package pcm

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Sink receives the processed output of every audio session.
// Write is called from render goroutines; implementations must be thread-safe.
type Sink interface {
	Write(sessionID int, samples []float32, channels, sampleRate int) error
	CloseSession(sessionID int) error
	Close() error
}

// Discard drops all output.
type Discard struct{}

func (Discard) Write(int, []float32, int, int) error { return nil }
func (Discard) CloseSession(int) error                { return nil }
func (Discard) Close() error                          { return nil }

// WavDirSink records each session to <dir>/session-<id>.wav as 16-bit PCM.
type WavDirSink struct {
	dir string

	mu     sync.Mutex
	files  map[int]*wavRecording
	closed bool
}

type wavRecording struct {
	path     string
	file     *os.File
	enc      *wav.Encoder
	buf      *audio.IntBuffer
	channels int
}

// NewWavDirSink creates dir if needed.
func NewWavDirSink(dir string) (*WavDirSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating record dir: %w", err)
	}
	return &WavDirSink{dir: dir, files: make(map[int]*wavRecording)}, nil
}

// SessionPath returns the file a session is recorded to.
func (s *WavDirSink) SessionPath(sessionID int) string {
	return filepath.Join(s.dir, fmt.Sprintf("session-%d.wav", sessionID))
}

// Write appends samples to the session's recording, opening it on first use.
// The first write fixes the recording's layout; writes with a different
// channel count are dropped.
func (s *WavDirSink) Write(sessionID int, samples []float32, channels, sampleRate int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	rec, ok := s.files[sessionID]
	if !ok {
		path := s.SessionPath(sessionID)
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("creating recording: %w", err)
		}
		rec = &wavRecording{
			path:     path,
			file:     f,
			enc:      wav.NewEncoder(f, sampleRate, 16, channels, 1),
			buf:      &audio.IntBuffer{Format: &audio.Format{NumChannels: channels, SampleRate: sampleRate}, SourceBitDepth: 16},
			channels: channels,
		}
		s.files[sessionID] = rec
	}
	if channels != rec.channels {
		return nil
	}

	if cap(rec.buf.Data) < len(samples) {
		rec.buf.Data = make([]int, len(samples))
	}
	rec.buf.Data = rec.buf.Data[:len(samples)]
	for i, v := range samples {
		rec.buf.Data[i] = int(max(min(v, 1), -1) * 32767)
	}
	return rec.enc.Write(rec.buf)
}

// CloseSession finalizes the session's WAV header.
func (s *WavDirSink) CloseSession(sessionID int) error {
	s.mu.Lock()
	rec, ok := s.files[sessionID]
	delete(s.files, sessionID)
	s.mu.Unlock()

	if !ok {
		return nil
	}
	return rec.close()
}

// Close finalizes every open recording.
func (s *WavDirSink) Close() error {
	s.mu.Lock()
	files := s.files
	s.files = make(map[int]*wavRecording)
	s.closed = true
	s.mu.Unlock()

	var errs []error
	for _, rec := range files {
		errs = append(errs, rec.close())
	}
	return errors.Join(errs...)
}

func (r *wavRecording) close() error {
	encErr := r.enc.Close()
	fileErr := r.file.Close()
	if encErr != nil {
		return fmt.Errorf("finalizing %s: %w", r.path, encErr)
	}
	return fileErr
}

// MultiSink fans output out to every sink in order.
type MultiSink []Sink

func (m MultiSink) Write(sessionID int, samples []float32, channels, sampleRate int) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Write(sessionID, samples, channels, sampleRate))
	}
	return errors.Join(errs...)
}

func (m MultiSink) CloseSession(sessionID int) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.CloseSession(sessionID))
	}
	return errors.Join(errs...)
}

func (m MultiSink) Close() error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}
