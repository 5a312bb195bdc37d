package portaudio

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/tejashwikalptaru/gomixer/internal/adapter/audio/pcm"
)

// minOutputFrames is the smallest output buffer opened for a session.
const minOutputFrames = 64

// outputDevice is a started blocking output stream bound to a sample buffer.
// Write blocks until the buffer has been handed to the device.
type outputDevice interface {
	Write() error
	Stop() error
	Close() error
}

// outputOpener opens a device for one session and returns the buffer it reads from.
type outputOpener func(frames, channels, sampleRate int) ([]int16, outputDevice, error)

// outputSink plays each session on its own output stream.
// s.mu guards only the stream table; each stream has its own lock so a
// blocking write on one session never holds up another.
type outputSink struct {
	logger *slog.Logger
	open   outputOpener

	mu      sync.Mutex
	streams map[int]*outputStream
	closed  bool
}

type outputStream struct {
	mu       sync.Mutex
	device   outputDevice
	buf      []int16
	pending  []int16
	channels int
	closed   bool
}

func newOutputSink(logger *slog.Logger, open outputOpener) *outputSink {
	return &outputSink{logger: logger, open: open, streams: make(map[int]*outputStream)}
}

// Write queues samples and plays every complete buffer. The first write of
// a session fixes its layout and buffer size.
func (s *outputSink) Write(sessionID int, samples []float32, channels, sampleRate int) error {
	out, err := s.stream(sessionID, len(samples)/max(channels, 1), channels, sampleRate)
	if err != nil {
		return err
	}
	return out.write(samples, channels)
}

// stream returns the session's output stream, opening it on first use.
func (s *outputSink) stream(sessionID, frames, channels, sampleRate int) (*outputStream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, pcm.ErrClosed
	}
	if out, ok := s.streams[sessionID]; ok {
		return out, nil
	}

	buf, device, err := s.open(max(frames, minOutputFrames), channels, sampleRate)
	if err != nil {
		return nil, err
	}
	out := &outputStream{device: device, buf: buf, channels: channels}
	s.streams[sessionID] = out
	s.logger.Debug("output opened",
		slog.Int("session_id", sessionID),
		slog.Int("channels", channels),
		slog.Int("frames_per_buffer", len(buf)/max(channels, 1)))
	return out, nil
}

func (o *outputStream) write(samples []float32, channels int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return pcm.ErrClosed
	}
	if channels != o.channels {
		return nil
	}

	for _, v := range samples {
		o.pending = append(o.pending, int16(max(min(v, 1), -1)*32767))
	}
	for len(o.pending) >= len(o.buf) {
		copy(o.buf, o.pending)
		o.pending = o.pending[len(o.buf):]
		if err := o.device.Write(); err != nil {
			return err
		}
	}
	return nil
}

func (o *outputStream) close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	o.closed = true
	_ = o.device.Stop()
	return o.device.Close()
}

func (s *outputSink) CloseSession(sessionID int) error {
	s.mu.Lock()
	out, ok := s.streams[sessionID]
	delete(s.streams, sessionID)
	s.mu.Unlock()

	if !ok {
		return nil
	}
	return out.close()
}

func (s *outputSink) Close() error {
	s.mu.Lock()
	streams := s.streams
	s.streams = make(map[int]*outputStream)
	s.closed = true
	s.mu.Unlock()

	var errs []error
	for _, out := range streams {
		errs = append(errs, out.close())
	}
	return errors.Join(errs...)
}

var _ pcm.Sink = (*outputSink)(nil)
