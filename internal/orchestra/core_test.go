package orchestra

import (
	"context"
	"errors"
	"testing"
	"time"

	"orchestra/internal/conversation"
	"orchestra/internal/notify"
	"orchestra/internal/recognition"
	"orchestra/internal/tracker"
)

type harness struct {
	core    *Core
	backend *fakeBackend
	rec     *fakeRecognizer
	notes   *notify.Recorder
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		backend: &fakeBackend{},
		rec:     &fakeRecognizer{},
		notes:   notify.NewRecorder(32),
	}
	cfg.Backend = h.backend
	if cfg.Agent == nil {
		cfg.Agent = &fakeAgent{reply: "Hello there."}
	}
	if cfg.Recognizer == nil {
		cfg.Recognizer = h.rec
	}
	cfg.Notifier = h.notes
	cfg.Tracker = tracker.Options{Tick: 5 * time.Millisecond, MinStep: 100, MaxStep: 100}
	h.core = New(cfg)
	t.Cleanup(h.core.Close)
	return h
}

func (h *harness) titles() []string {
	var out []string
	for _, n := range h.notes.Recent() {
		out = append(out, n.Title)
	}
	return out
}

func TestVoiceCommandDispatches(t *testing.T) {
	h := newHarness(t, Config{})

	if err := h.core.StartListening(); err != nil {
		t.Fatal(err)
	}
	if !h.core.Snapshot().Listening {
		t.Fatal("not listening")
	}

	h.rec.send(recognition.Partial{Text: "activate focus"})
	eventually(t, func() bool { return h.core.Snapshot().Transcript == "activate focus" })

	h.rec.send(recognition.Final{Text: "activate focus mode"})
	eventually(t, func() bool { return len(h.backend.Calls()) == 1 })

	call := h.backend.Calls()[0]
	if call.endpoint != "voice-command" || call.arg != "activate focus mode" || call.useAgent {
		t.Errorf("call = %+v", call)
	}

	snap := h.core.Snapshot()
	if snap.LastCommand != "activate focus mode" {
		t.Errorf("last command = %q", snap.LastCommand)
	}
	eventually(t, func() bool { return len(h.core.Snapshot().Running) == 0 })

	acts := h.core.Snapshot().Activities
	if acts[len(acts)-1].Kind != tracker.KindSystem || acts[len(acts)-1].Title != "Orchestrator Online" {
		t.Errorf("oldest activity = %+v", acts[len(acts)-1])
	}
	if acts[0].AutomationType != "focus-mode" {
		t.Errorf("newest activity = %+v", acts[0])
	}
}

func TestRecognitionErrorClearsListening(t *testing.T) {
	h := newHarness(t, Config{})

	if err := h.core.StartListening(); err != nil {
		t.Fatal(err)
	}
	h.rec.send(recognition.Error{Reason: "network"})
	eventually(t, func() bool { return !h.core.Snapshot().Listening })

	var found bool
	for _, n := range h.notes.Recent() {
		if n.Title == "Voice Recognition Error" && n.Variant == notify.Destructive {
			found = true
		}
	}
	if !found {
		t.Errorf("notifications = %v", h.titles())
	}

	// no error blocks later commands
	if err := h.core.SubmitText(context.Background(), "studio mode"); err != nil {
		t.Fatal(err)
	}
	if got := h.backend.Calls(); len(got) != 1 || got[0].endpoint != "studio" {
		t.Errorf("calls = %+v", got)
	}
}

func TestStartListeningFailures(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		title string
	}{
		{name: "unavailable", err: recognition.ErrCapabilityUnavailable, title: "Speech Recognition Not Supported"},
		{name: "denied", err: recognition.ErrPermissionDenied, title: "Microphone Access Required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Config{Recognizer: &fakeRecognizer{err: tt.err}})

			if err := h.core.StartListening(); !errors.Is(err, tt.err) {
				t.Fatalf("err = %v", err)
			}
			if h.core.Snapshot().Listening {
				t.Error("listening after failed start")
			}
			titles := h.titles()
			if len(titles) != 1 || titles[0] != tt.title {
				t.Errorf("notifications = %v", titles)
			}
		})
	}
}

func TestSubmitTextRejectedWhileBusy(t *testing.T) {
	engine := &blockingEngine{started: make(chan struct{})}
	h := newHarness(t, Config{Engine: engine})

	if err := h.core.StartListening(); err != nil {
		t.Fatal(err)
	}
	if err := h.core.SubmitText(context.Background(), "focus mode"); !errors.Is(err, ErrBusy) {
		t.Errorf("while listening: err = %v", err)
	}
	h.core.StopListening()

	h.core.ToggleMode()
	if err := h.core.SubmitText(context.Background(), "hello"); err != nil {
		t.Fatal(err)
	}
	<-engine.started
	if !h.core.Snapshot().Speaking {
		t.Fatal("not speaking")
	}
	if err := h.core.SubmitText(context.Background(), "again"); !errors.Is(err, ErrBusy) {
		t.Errorf("while speaking: err = %v", err)
	}

	h.core.CancelSpeech()
	eventually(t, func() bool { return !h.core.Snapshot().Speaking })
	if len(h.backend.Calls()) != 0 {
		t.Errorf("calls = %+v", h.backend.Calls())
	}
}

func TestSubmitTextEmpty(t *testing.T) {
	h := newHarness(t, Config{})
	if err := h.core.SubmitText(context.Background(), "   "); !errors.Is(err, ErrEmptyText) {
		t.Errorf("err = %v", err)
	}
}

func TestToggleModeClearsHistory(t *testing.T) {
	h := newHarness(t, Config{})

	if m := h.core.ToggleMode(); m != conversation.ModeConversation {
		t.Fatalf("mode = %s", m)
	}
	if err := h.core.SubmitText(context.Background(), "hello"); err != nil {
		t.Fatal(err)
	}

	snap := h.core.Snapshot()
	if len(snap.History) != 2 || snap.History[1].Text != "Hello there." {
		t.Fatalf("history = %+v", snap.History)
	}

	h.core.ToggleMode()
	snap = h.core.Snapshot()
	if snap.Mode != conversation.ModeCommand || len(snap.History) != 0 {
		t.Errorf("after toggle: mode %s, history %d", snap.Mode, len(snap.History))
	}
}

func TestTriggerManual(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()

	if err := h.core.Trigger(ctx, "gym-notes", ""); !errors.Is(err, ErrSubTriggerRequired) {
		t.Errorf("err = %v", err)
	}
	if err := h.core.Trigger(ctx, "gym-notes", "swimming"); !errors.Is(err, ErrUnknownSubTrigger) {
		t.Errorf("err = %v", err)
	}
	if err := h.core.Trigger(ctx, "warp-drive", ""); !errors.Is(err, ErrUnknownTrigger) {
		t.Errorf("err = %v", err)
	}
	if err := h.core.Trigger(ctx, "gym-notes", "cycling"); err != nil {
		t.Fatal(err)
	}

	calls := h.backend.Calls()
	if len(calls) != 1 || calls[0] != (backendCall{endpoint: "workout", arg: "cycling"}) {
		t.Errorf("calls = %+v", calls)
	}
}

func TestChangesSignal(t *testing.T) {
	h := newHarness(t, Config{})

	// drain anything queued by construction
	select {
	case <-h.core.Changes():
	default:
	}

	h.core.ToggleMode()
	select {
	case <-h.core.Changes():
	case <-time.After(time.Second):
		t.Fatal("no change signal")
	}
}

func TestDegradedSynthesis(t *testing.T) {
	h := newHarness(t, Config{})
	h.core.ToggleMode()

	if err := h.core.SubmitText(context.Background(), "hello"); err != nil {
		t.Fatal(err)
	}
	if h.core.Snapshot().Speaking {
		t.Error("speaking without an engine")
	}
	h.core.CancelSpeech()
}
