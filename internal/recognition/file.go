package recognition

import (
	"context"
	"fmt"
	"io"
	"sync"

	"orchestra/pkg/audioconv"
)

const fileFrameSize = 320 // 20ms at 16kHz

// FileSource replays a decoded audio file as if it were a microphone. It is
// used with --input to drive the daemon without audio hardware.
type FileSource struct {
	Path string
	// Pad appends trailing silence so the last utterance reaches a boundary.
	Pad int
}

func (f FileSource) Open() (Stream, error) {
	pcm, err := audioconv.DecodeFile(context.Background(), f.Path, audioconv.Options{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCapabilityUnavailable, err)
	}
	return NewPCMStream(append(pcm, make([]float32, f.Pad)...)), nil
}

// PCMStream serves an in-memory buffer frame by frame.
type PCMStream struct {
	mu     sync.Mutex
	pcm    []float32
	pos    int
	closed bool
}

func NewPCMStream(pcm []float32) *PCMStream {
	return &PCMStream{pcm: pcm}
}

func (p *PCMStream) Read() ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, io.ErrClosedPipe
	}
	if p.pos >= len(p.pcm) {
		return nil, io.EOF
	}
	end := min(p.pos+fileFrameSize, len(p.pcm))
	frame := p.pcm[p.pos:end]
	p.pos = end
	return frame, nil
}

func (p *PCMStream) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *PCMStream) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
