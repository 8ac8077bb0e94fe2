// Package audio owns the local sound devices: microphone capture for the
// recogniser and volume ducking of other programs while the assistant speaks.
package audio

import (
	"errors"
	"fmt"
	log "log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"

	"orchestra/internal/recognition"
)

const (
	SampleRate = 16000
	frameSize  = 320 // 20ms
)

// Microphone is a recognition.Source backed by the default PortAudio input.
type Microphone struct {
	mu   sync.Mutex
	init bool
}

func NewMicrophone() *Microphone { return &Microphone{} }

// Init loads PortAudio. A failure means the host has no usable audio stack.
func (m *Microphone) Init() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.init {
		return nil
	}
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("%w: %v", recognition.ErrCapabilityUnavailable, err)
	}
	m.init = true
	return nil
}

func (m *Microphone) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.init {
		portaudio.Terminate()
		m.init = false
	}
}

func (m *Microphone) Open() (recognition.Stream, error) {
	m.mu.Lock()
	ready := m.init
	m.mu.Unlock()
	if !ready {
		return nil, recognition.ErrCapabilityUnavailable
	}

	buf := make([]float32, frameSize)

	stream, err := portaudio.OpenDefaultStream(1, 0, SampleRate, len(buf), buf)
	if err != nil {
		return nil, mapError(err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, mapError(err)
	}

	log.Debug("Microphone opened", "rate", SampleRate, "frame", frameSize)
	return &micStream{stream: stream, buf: buf}, nil
}

type micStream struct {
	stream *portaudio.Stream
	buf    []float32
	once   sync.Once
}

func (s *micStream) Read() ([]float32, error) {
	if err := s.stream.Read(); err != nil && !errors.Is(err, portaudio.InputOverflowed) {
		return nil, err
	}
	return append([]float32(nil), s.buf...), nil
}

// Close stops and releases the device. Safe to call more than once.
func (s *micStream) Close() error {
	var err error
	s.once.Do(func() {
		stopErr := s.stream.Stop()
		err = errors.Join(stopErr, s.stream.Close())
	})
	return err
}

func mapError(err error) error {
	switch {
	case errors.Is(err, portaudio.DeviceUnavailable):
		return fmt.Errorf("%w: %v", recognition.ErrPermissionDenied, err)
	case errors.Is(err, portaudio.InvalidDevice),
		errors.Is(err, portaudio.NotInitialized):
		return fmt.Errorf("%w: %v", recognition.ErrCapabilityUnavailable, err)
	}
	return err
}
