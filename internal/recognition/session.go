package recognition

import (
	"context"
	"errors"
	"io"
	log "log/slog"
	"math"
	"strings"
	"sync"
	"time"
)

type Options struct {
	SampleRate int
	// SilenceRMS is the frame energy below which a frame counts as silence.
	SilenceRMS float64
	// SilenceHold closes an utterance after this much trailing silence.
	SilenceHold time.Duration
	// PartialEvery re-transcribes the utterance in progress at this interval
	// of captured audio. Zero disables partial results.
	PartialEvery time.Duration
	// MaxUtterance forces an utterance boundary.
	MaxUtterance time.Duration
}

func DefaultOptions() Options {
	return Options{
		SampleRate:   16000,
		SilenceRMS:   0.015,
		SilenceHold:  600 * time.Millisecond,
		PartialEvery: 1500 * time.Millisecond,
		MaxUtterance: 15 * time.Second,
	}
}

// Session is a continuous recogniser. Each Start produces a fresh event
// channel that is closed after its End event; a stopped session can be
// started again.
type Session struct {
	src  Source
	tr   Transcriber
	opts Options

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSession(src Source, tr Transcriber, opts Options) *Session {
	def := DefaultOptions()
	if opts.SampleRate <= 0 {
		opts.SampleRate = def.SampleRate
	}
	if opts.SilenceRMS <= 0 {
		opts.SilenceRMS = def.SilenceRMS
	}
	if opts.SilenceHold <= 0 {
		opts.SilenceHold = def.SilenceHold
	}
	if opts.MaxUtterance <= 0 {
		opts.MaxUtterance = def.MaxUtterance
	}

	return &Session{src: src, tr: tr, opts: opts}
}

func (s *Session) Start(ctx context.Context) (<-chan Event, error) {
	if s == nil || s.src == nil || s.tr == nil {
		return nil, ErrCapabilityUnavailable
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return nil, ErrAlreadyActive
	}

	stream, err := s.src.Open()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	events := make(chan Event, 16)
	done := make(chan struct{})

	s.cancel = cancel
	s.done = done

	go s.run(ctx, stream, events, done)

	return events, nil
}

// Stop ends capture and waits for the stream to be released. An utterance in
// progress is discarded.
func (s *Session) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

func (s *Session) run(ctx context.Context, stream Stream, events chan<- Event, done chan struct{}) {
	defer func() {
		if err := stream.Close(); err != nil {
			log.Warn("Failed to release audio stream", "err", err)
		}

		select {
		case events <- End{}:
		default:
			log.Debug("Dropped end event, consumer not draining")
		}
		close(events)

		s.mu.Lock()
		s.cancel = nil
		s.done = nil
		s.mu.Unlock()
		close(done)
	}()

	emit := func(ev Event) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	var (
		utt          []float32
		speaking     bool
		silent       int // trailing silent samples
		sincePartial int
	)

	hold := s.samples(s.opts.SilenceHold)
	maxLen := s.samples(s.opts.MaxUtterance)
	partialEvery := s.samples(s.opts.PartialEvery)

	finish := func() bool {
		pcm := utt
		utt, speaking, silent, sincePartial = nil, false, 0, 0

		text, err := s.tr.Transcribe(ctx, pcm)
		if ctx.Err() != nil {
			return false
		}
		if err != nil {
			log.Warn("Transcription failed", "err", err)
			return true
		}
		if text = clean(text); text == "" {
			return true
		}
		return emit(Final{Text: text})
	}

	for {
		if ctx.Err() != nil {
			return
		}

		frame, err := stream.Read()
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, io.EOF) {
			if speaking {
				finish()
			}
			return
		}
		if err != nil {
			emit(Error{Reason: err.Error()})
			return
		}

		loud := frameRMS(frame) > s.opts.SilenceRMS

		switch {
		case loud:
			speaking = true
			silent = 0
		case speaking:
			silent += len(frame)
		default:
			continue
		}

		utt = append(utt, frame...)
		sincePartial += len(frame)

		if silent >= hold || len(utt) >= maxLen {
			if !finish() {
				return
			}
			continue
		}

		if partialEvery > 0 && sincePartial >= partialEvery {
			sincePartial = 0
			text, err := s.tr.Transcribe(ctx, utt)
			if ctx.Err() != nil {
				return
			}
			if err == nil && clean(text) != "" {
				if !emit(Partial{Text: clean(text)}) {
					return
				}
			}
		}
	}
}

func (s *Session) samples(d time.Duration) int {
	return int(d.Seconds() * float64(s.opts.SampleRate))
}

func clean(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func frameRMS(f []float32) float64 {
	if len(f) == 0 {
		return 0
	}
	var sum float64
	for _, x := range f {
		sum += float64(x * x)
	}
	return math.Sqrt(sum / float64(len(f)))
}
