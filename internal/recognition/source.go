// Package recognition turns a stream of microphone frames into partial and
// final transcripts.
package recognition

import (
	"context"
	"errors"
)

var (
	ErrCapabilityUnavailable = errors.New("speech recognition is not available")
	ErrPermissionDenied      = errors.New("audio input access denied")
	ErrAlreadyActive         = errors.New("recognition session already active")
)

// Source acquires an audio input. Implementations map device errors onto
// ErrCapabilityUnavailable and ErrPermissionDenied.
type Source interface {
	Open() (Stream, error)
}

// Stream yields mono float32 frames at the source's sample rate. Read returns
// io.EOF when a finite source is exhausted.
type Stream interface {
	Read() ([]float32, error)
	Close() error
}

type Transcriber interface {
	Transcribe(ctx context.Context, pcm []float32) (string, error)
}
