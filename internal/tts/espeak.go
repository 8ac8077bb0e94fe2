// Package tts speaks text through espeak-ng.
package tts

/*
#cgo LDFLAGS: -lespeak-ng
#include <stdlib.h>
#include <string.h>
#include <espeak-ng/speak_lib.h>

static int
espeak_init(const char *lang)
{
	if (espeak_Initialize(AUDIO_OUTPUT_SYNCH_PLAYBACK, 500, NULL, 0) < 0)
	{ return -1; }

	espeak_VOICE specs = { .languages = lang };
	espeak_SetVoiceByProperties(&specs);
	return 0;
}

static int
espeak_say(const char *text)
{
	if (!text)
	{ return -1; }

	espeak_Synth(text, strlen(text) + 1, 0, POS_CHARACTER, 0, espeakCHARS_AUTO, NULL, NULL);
	espeak_Synchronize();
	return 0;
}
*/
import "C"

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"unsafe"
)

var ErrUnavailable = errors.New("espeak-ng unavailable")

// Espeak plays one utterance at a time. Speak blocks until playback ends or
// ctx is cancelled, in which case playback is cut off.
type Espeak struct {
	mu sync.Mutex
}

func NewEspeak(lang string) (*Espeak, error) {
	if lang == "" {
		lang = "en"
	}
	clang := C.CString(lang)
	defer C.free(unsafe.Pointer(clang))

	if rc := C.espeak_init(clang); rc != 0 {
		return nil, ErrUnavailable
	}
	return &Espeak{}, nil
}

func (e *Espeak) Speak(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	ctext := C.CString(text)
	defer C.free(unsafe.Pointer(ctext))

	done := make(chan C.int, 1)
	go func() {
		done <- C.espeak_say(ctext)
	}()

	select {
	case rc := <-done:
		if rc != 0 {
			return fmt.Errorf("espeak_say failed: %d", int(rc))
		}
		return nil
	case <-ctx.Done():
		C.espeak_Cancel()
		<-done
		return ctx.Err()
	}
}

func (e *Espeak) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	C.espeak_Terminate()
}
