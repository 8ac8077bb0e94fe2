package notify

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
)

var speakerOnce struct {
	sync.Once
	rate beep.SampleRate
	err  error
}

// Beep plays an mp3 cue and blocks until it ends.
func Beep(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open cue: %w", err)
	}

	streamer, format, err := mp3.Decode(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("decode cue: %w", err)
	}
	defer streamer.Close()

	speakerOnce.Do(func() {
		speakerOnce.rate = format.SampleRate
		speakerOnce.err = speaker.Init(format.SampleRate, format.SampleRate.N(time.Second/10))
	})
	if speakerOnce.err != nil {
		return fmt.Errorf("init speaker: %w", speakerOnce.err)
	}

	var s beep.Streamer = streamer
	if format.SampleRate != speakerOnce.rate {
		s = beep.Resample(4, format.SampleRate, speakerOnce.rate, streamer)
	}

	done := make(chan struct{})
	speaker.Play(beep.Seq(s, beep.Callback(func() {
		close(done)
	})))
	<-done
	return nil
}
