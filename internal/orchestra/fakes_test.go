package orchestra

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"orchestra/internal/api"
	"orchestra/internal/conversation"
	"orchestra/internal/recognition"
)

type backendCall struct {
	endpoint string
	arg      string
	useAgent bool
}

type fakeBackend struct {
	mu    sync.Mutex
	calls []backendCall
	err   error
}

func (f *fakeBackend) record(endpoint, arg string, useAgent bool) (api.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, backendCall{endpoint: endpoint, arg: arg, useAgent: useAgent})
	if f.err != nil {
		return api.Response{}, f.err
	}
	return api.Response{Success: true, Message: "ok", AutomationType: endpoint}, nil
}

func (f *fakeBackend) Workout(_ context.Context, workoutType, _ string) (api.Response, error) {
	return f.record("workout", workoutType, false)
}

func (f *fakeBackend) DailyNote(_ context.Context, noteType, _ string) (api.Response, error) {
	return f.record("daily-note", noteType, false)
}

func (f *fakeBackend) Studio(_ context.Context, action string) (api.Response, error) {
	return f.record("studio", action, false)
}

func (f *fakeBackend) VoiceCommand(_ context.Context, command string, useAgent bool) (api.Response, error) {
	return f.record("voice-command", command, useAgent)
}

func (f *fakeBackend) Calls() []backendCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]backendCall(nil), f.calls...)
}

type fakeAgent struct {
	reply string
}

func (f *fakeAgent) Submit(context.Context, string) error { return nil }

func (f *fakeAgent) Reply(context.Context, []conversation.Message, string) (string, error) {
	return f.reply, nil
}

// fakeRecognizer hands out a channel the test feeds directly.
type fakeRecognizer struct {
	err    error
	mu     sync.Mutex
	events chan recognition.Event
	once   *sync.Once
}

func (f *fakeRecognizer) Start(context.Context) (<-chan recognition.Event, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = make(chan recognition.Event, 8)
	f.once = new(sync.Once)
	return f.events, nil
}

func (f *fakeRecognizer) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.once != nil {
		f.once.Do(func() { close(f.events) })
	}
}

func (f *fakeRecognizer) send(ev recognition.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events <- ev
}

type blockingEngine struct {
	started chan struct{}
}

func (e *blockingEngine) Speak(ctx context.Context, _ string) error {
	close(e.started)
	<-ctx.Done()
	return ctx.Err()
}

var errRefused = &api.Error{Op: "workout", Kind: api.KindNetwork, Err: errors.New("connection refused")}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
