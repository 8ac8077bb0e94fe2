package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"

	"orchestra/internal/classify"
	"orchestra/internal/notify"
	"orchestra/internal/registry"
	"orchestra/internal/tracker"
)

type dispatchCall struct {
	trigger string
	sub     string
}

type fakeDispatcher struct {
	mu    sync.Mutex
	calls []dispatchCall
}

func (f *fakeDispatcher) Dispatch(_ context.Context, t registry.Trigger, sub *registry.SubTrigger) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := dispatchCall{trigger: t.ID}
	if sub != nil {
		call.sub = sub.ID
	}
	f.calls = append(f.calls, call)
	return nil
}

type fakeAgent struct {
	mu        sync.Mutex
	submitted []string
	histories [][]Message
	reply     string
	err       error
	// block, when set, is waited on inside Reply
	block chan struct{}
}

func (f *fakeAgent) Submit(_ context.Context, command string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, command)
	return f.err
}

func (f *fakeAgent) Reply(_ context.Context, history []Message, text string) (string, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.histories = append(f.histories, history)
	return f.reply, f.err
}

type fakeSpeaker struct {
	mu     sync.Mutex
	spoken []string
}

func (f *fakeSpeaker) Speak(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spoken = append(f.spoken, text)
}

type harness struct {
	ctrl     *Controller
	disp     *fakeDispatcher
	agent    *fakeAgent
	speaker  *fakeSpeaker
	notes    *notify.Recorder
	activity *tracker.Tracker
}

func newHarness() *harness {
	h := &harness{
		disp:     &fakeDispatcher{},
		agent:    &fakeAgent{reply: "Hi there!"},
		speaker:  &fakeSpeaker{},
		notes:    notify.NewRecorder(10),
		activity: tracker.New(tracker.Options{}),
	}
	h.ctrl = New(Config{
		Classifier: classify.New(registry.Builtin()),
		Dispatcher: h.disp,
		Agent:      h.agent,
		Speaker:    h.speaker,
		Notifier:   h.notes,
		Activity:   h.activity,
	})
	return h
}

func TestCommandModeDispatchesMatch(t *testing.T) {
	h := newHarness()

	h.ctrl.Handle(context.Background(), "Please activate FOCUS mode now")

	if len(h.disp.calls) != 1 || h.disp.calls[0] != (dispatchCall{trigger: "focus-mode"}) {
		t.Fatalf("calls = %+v", h.disp.calls)
	}
	if len(h.ctrl.History()) != 0 {
		t.Error("matched command added to history")
	}
	if len(h.agent.submitted) != 0 {
		t.Error("matched command sent to agent")
	}
}

func TestCommandModeResolvesSubTrigger(t *testing.T) {
	h := newHarness()

	h.ctrl.Handle(context.Background(), "gym notes running")
	if len(h.disp.calls) != 1 || h.disp.calls[0] != (dispatchCall{"gym-notes", "running"}) {
		t.Fatalf("calls = %+v", h.disp.calls)
	}

	h.ctrl.Handle(context.Background(), "start my workout")
	if len(h.disp.calls) != 1 {
		t.Fatalf("unresolved sub-trigger dispatched: %+v", h.disp.calls)
	}
	notes := h.notes.Recent()
	if len(notes) != 1 || notes[0].Variant != notify.Destructive {
		t.Errorf("notes = %+v", notes)
	}
}

func TestCommandModeUnmatchedGoesToAgent(t *testing.T) {
	h := newHarness()

	h.ctrl.Handle(context.Background(), "order me a pizza")
	h.ctrl.Wait()

	if len(h.agent.submitted) != 1 || h.agent.submitted[0] != "order me a pizza" {
		t.Fatalf("submitted = %v", h.agent.submitted)
	}
	hist := h.ctrl.History()
	if len(hist) != 1 || hist[0].Role != RoleUser || hist[0].Text != "order me a pizza" {
		t.Errorf("history = %+v", hist)
	}
	if len(h.speaker.spoken) != 0 {
		t.Error("command mode spoke a reply")
	}

	acts := h.activity.Activities()
	if len(acts) != 1 || acts[0].Kind != tracker.KindVoiceCommand || acts[0].Status != tracker.StatusCompleted {
		t.Errorf("activities = %+v", acts)
	}
}

func TestCommandModeAgentFailureStillRecordsHistory(t *testing.T) {
	h := newHarness()
	h.agent.err = errors.New("connection refused")

	h.ctrl.Handle(context.Background(), "order me a pizza")
	h.ctrl.Wait()

	if len(h.ctrl.History()) != 1 {
		t.Error("history not appended on agent failure")
	}
	if h.activity.Activities()[0].Status != tracker.StatusFailed {
		t.Error("voice command not marked failed")
	}
	notes := h.notes.Recent()
	if len(notes) != 1 || notes[0].Title != "Command Not Recognized" {
		t.Errorf("notes = %+v", notes)
	}
}

func TestConversationModeReplies(t *testing.T) {
	h := newHarness()
	h.ctrl.ToggleMode()

	h.ctrl.Handle(context.Background(), "hello")

	hist := h.ctrl.History()
	if len(hist) != 2 {
		t.Fatalf("history len = %d, want 2", len(hist))
	}
	if hist[0].Role != RoleUser || hist[0].Text != "hello" {
		t.Errorf("hist[0] = %+v", hist[0])
	}
	if hist[1].Role != RoleAI || hist[1].Text != "Hi there!" {
		t.Errorf("hist[1] = %+v", hist[1])
	}
	if len(h.speaker.spoken) != 1 || h.speaker.spoken[0] != "Hi there!" {
		t.Errorf("spoken = %v", h.speaker.spoken)
	}
	if len(h.disp.calls) != 0 {
		t.Error("conversation mode dispatched")
	}
}

func TestConversationModeBypassesClassifier(t *testing.T) {
	h := newHarness()
	h.ctrl.ToggleMode()

	h.ctrl.Handle(context.Background(), "what is focus mode")
	if len(h.disp.calls) != 0 {
		t.Fatalf("calls = %+v", h.disp.calls)
	}

	h.ctrl.Handle(context.Background(), "thanks")
	if len(h.agent.histories) != 2 || len(h.agent.histories[1]) != 2 {
		t.Errorf("second reply saw history %+v", h.agent.histories)
	}
}

func TestConversationModeFallback(t *testing.T) {
	h := newHarness()
	h.agent.err = errors.New("timeout")
	h.ctrl.ToggleMode()

	h.ctrl.Handle(context.Background(), "hello")

	hist := h.ctrl.History()
	if len(hist) != 2 || hist[1].Text != FallbackReply {
		t.Fatalf("history = %+v", hist)
	}
	if len(h.speaker.spoken) != 1 || h.speaker.spoken[0] != FallbackReply {
		t.Errorf("spoken = %v", h.speaker.spoken)
	}
}

func TestToggleClearsHistory(t *testing.T) {
	h := newHarness()

	h.ctrl.Handle(context.Background(), "order me a pizza")
	h.ctrl.Wait()
	if h.ctrl.ToggleMode() != ModeConversation {
		t.Fatal("expected conversation mode")
	}
	if len(h.ctrl.History()) != 0 {
		t.Error("history kept across toggle")
	}

	h.ctrl.Handle(context.Background(), "hello")
	if h.ctrl.ToggleMode() != ModeCommand {
		t.Fatal("expected command mode")
	}
	if len(h.ctrl.History()) != 0 {
		t.Error("history kept across toggle")
	}
}

func TestToggleDuringReplyDropsExchange(t *testing.T) {
	h := newHarness()
	h.agent.block = make(chan struct{})
	h.ctrl.ToggleMode()

	done := make(chan struct{})
	go func() {
		h.ctrl.Handle(context.Background(), "hello")
		close(done)
	}()

	// wait for the user message, then toggle while the agent is blocked
	for len(h.ctrl.History()) == 0 {
	}
	h.ctrl.ToggleMode()
	close(h.agent.block)
	<-done

	if len(h.ctrl.History()) != 0 {
		t.Errorf("history = %+v", h.ctrl.History())
	}
	if len(h.speaker.spoken) != 0 {
		t.Error("stale reply spoken")
	}
}
