// Package stt wraps whisper.cpp for utterance transcription.
package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"
	"sync"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

type Options struct {
	Language      string // "auto", "en", ...
	Threads       int    // <=0 => NumCPU()
	InitialPrompt string // biases decoding towards trigger vocabulary
	BeamSize      int    // 0 = greedy
}

type Transcriber struct {
	mu    sync.Mutex
	model whisper.Model
	opts  Options
}

func NewTranscriber(modelPath string, opts Options) (*Transcriber, error) {
	if modelPath == "" {
		return nil, errors.New("empty model path")
	}
	m, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	return &Transcriber{model: m, opts: opts}, nil
}

func (t *Transcriber) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.model == nil {
		return nil
	}
	err := t.model.Close()
	t.model = nil
	return err
}

// Transcribe decodes mono 16 kHz PCM. Calls are serialized; whisper contexts
// share the model's compute buffers.
func (t *Transcriber) Transcribe(ctx context.Context, pcm []float32) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.model == nil {
		return "", errors.New("transcriber closed")
	}
	if len(pcm) == 0 {
		return "", nil
	}

	wctx, err := t.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("new context: %w", err)
	}

	lang := t.opts.Language
	if lang == "" {
		lang = "auto"
	}
	if err := wctx.SetLanguage(lang); err != nil {
		return "", fmt.Errorf("set language: %w", err)
	}

	threads := t.opts.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	wctx.SetThreads(uint(threads))

	if t.opts.BeamSize > 0 {
		wctx.SetBeamSize(t.opts.BeamSize)
	}
	if t.opts.InitialPrompt != "" {
		wctx.SetInitialPrompt(t.opts.InitialPrompt)
	}

	if err := wctx.Process(pcm, nil, nil, nil); err != nil {
		return "", fmt.Errorf("process: %w", err)
	}

	var parts []string
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		seg, err := wctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("next segment: %w", err)
		}
		parts = append(parts, strings.TrimSpace(seg.Text))
	}

	return strings.Join(parts, " "), nil
}
