// Package orchestra ties recognition, conversation routing, automation
// dispatch and execution tracking together and exposes their combined state
// as a read-only Snapshot.
package orchestra

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"maps"
	"slices"
	"sync"

	"orchestra/internal/classify"
	"orchestra/internal/conversation"
	"orchestra/internal/notify"
	"orchestra/internal/recognition"
	"orchestra/internal/registry"
	"orchestra/internal/synth"
	"orchestra/internal/tracker"
)

var (
	// ErrBusy rejects typed text while listening or speaking.
	ErrBusy      = errors.New("busy: listening or speaking")
	ErrEmptyText = errors.New("empty text")
)

type Recognizer interface {
	Start(ctx context.Context) (<-chan recognition.Event, error)
	Stop()
}

type Config struct {
	Registry *registry.Registry
	Backend  Backend
	Agent    conversation.Agent
	// Recognizer may be nil when no capture device or model is available.
	Recognizer Recognizer
	// Engine may be nil; spoken replies are then dropped.
	Engine   synth.Engine
	Ducker   synth.Ducker
	Notifier notify.Notifier
	Tracker  tracker.Options
	// Cue is played when listening starts.
	Cue func() error
}

type Snapshot struct {
	Listening   bool                   `json:"listening"`
	Speaking    bool                   `json:"speaking"`
	Mode        conversation.Mode      `json:"mode"`
	Transcript  string                 `json:"transcript"`
	LastCommand string                 `json:"last_command"`
	Running     []string               `json:"running_trigger_ids"`
	Progress    map[string]int         `json:"progress"`
	Activities  []tracker.Activity     `json:"activity_log"`
	History     []conversation.Message `json:"conversation_history"`
}

type Core struct {
	cfg        Config
	ctx        context.Context
	cancel     context.CancelFunc
	tracker    *tracker.Tracker
	synth      *synth.Controller
	conv       *conversation.Controller
	dispatcher *Dispatcher
	changes    chan struct{}

	mu          sync.Mutex
	listening   bool
	session     uint64
	transcript  string
	lastCommand string
	wg          sync.WaitGroup
}

func New(cfg Config) *Core {
	if cfg.Registry == nil {
		cfg.Registry = registry.Builtin()
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Log{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Core{
		cfg:     cfg,
		ctx:     ctx,
		cancel:  cancel,
		changes: make(chan struct{}, 1),
	}

	topts := cfg.Tracker
	topts.OnChange = c.signal
	c.tracker = tracker.New(topts)

	sopts := []synth.Option{synth.WithOnChange(c.signal)}
	if cfg.Ducker != nil {
		sopts = append(sopts, synth.WithDucker(cfg.Ducker))
	}
	c.synth = synth.New(cfg.Engine, sopts...)
	if !c.synth.Available() {
		log.Warn("Speech synthesis unavailable, running without spoken replies")
	}

	c.dispatcher = NewDispatcher(cfg.Registry, cfg.Backend, c.tracker, cfg.Notifier)
	c.conv = conversation.New(conversation.Config{
		Classifier: classify.New(cfg.Registry),
		Dispatcher: c.dispatcher,
		Agent:      cfg.Agent,
		Speaker:    c.synth,
		Notifier:   cfg.Notifier,
		Activity:   c.tracker,
		OnChange:   c.signal,
	})

	return c
}

// StartListening opens a recognition session. Calling it while already
// listening is a no-op.
func (c *Core) StartListening() error {
	c.mu.Lock()
	if c.listening {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if c.cfg.Recognizer == nil {
		c.recognitionFailed(recognition.ErrCapabilityUnavailable)
		return recognition.ErrCapabilityUnavailable
	}

	events, err := c.cfg.Recognizer.Start(c.ctx)
	if err != nil {
		c.recognitionFailed(err)
		return err
	}

	c.mu.Lock()
	c.session++
	gen := c.session
	c.listening = true
	c.transcript = ""
	c.wg.Add(1)
	c.mu.Unlock()

	log.Info("Listening")
	c.tracker.Record(tracker.KindSystem, "Orchestrator Online", "Voice recognition activated - ready for commands", tracker.StatusCompleted)
	c.cfg.Notifier.Notify(notify.Notification{
		Title:       "Orchestrator Online",
		Description: "Listening for voice commands...",
	})
	if c.cfg.Cue != nil {
		go func() {
			if err := c.cfg.Cue(); err != nil {
				log.Warn("Listening cue failed", "err", err)
			}
		}()
	}
	c.signal()

	go c.consume(gen, events)
	return nil
}

// StopListening ends capture and discards the live transcript.
func (c *Core) StopListening() {
	c.mu.Lock()
	if !c.listening {
		c.mu.Unlock()
		return
	}
	c.listening = false
	c.transcript = ""
	c.mu.Unlock()

	if c.cfg.Recognizer != nil {
		c.cfg.Recognizer.Stop()
	}
	log.Info("Stopped listening")
	c.signal()
}

func (c *Core) consume(gen uint64, events <-chan recognition.Event) {
	defer c.wg.Done()

	for ev := range events {
		switch ev := ev.(type) {
		case recognition.Partial:
			c.setTranscript(gen, ev.Text, false)
		case recognition.Final:
			if !c.setTranscript(gen, ev.Text, true) {
				continue
			}
			log.Info("Transcript", "text", ev.Text)
			c.wg.Add(1)
			go func(text string) {
				defer c.wg.Done()
				c.conv.Handle(c.ctx, text)
			}(ev.Text)
		case recognition.Error:
			log.Error("Recognition error", "reason", ev.Reason)
			c.cfg.Notifier.Notify(notify.Notification{
				Title:       "Voice Recognition Error",
				Description: fmt.Sprintf("Error: %s", ev.Reason),
				Variant:     notify.Destructive,
			})
			c.endSession(gen)
		case recognition.End:
			c.endSession(gen)
		}
	}
	c.endSession(gen)
}

func (c *Core) setTranscript(gen uint64, text string, final bool) bool {
	c.mu.Lock()
	if gen != c.session || !c.listening {
		c.mu.Unlock()
		return false
	}
	c.transcript = text
	if final {
		c.lastCommand = text
	}
	c.mu.Unlock()

	c.signal()
	return true
}

// endSession clears the listening flag when the session ends on its own.
func (c *Core) endSession(gen uint64) {
	c.mu.Lock()
	if gen != c.session || !c.listening {
		c.mu.Unlock()
		return
	}
	c.listening = false
	c.mu.Unlock()

	c.signal()
}

func (c *Core) recognitionFailed(err error) {
	n := notify.Notification{
		Title:       "Voice Recognition Error",
		Description: err.Error(),
		Variant:     notify.Destructive,
	}
	switch {
	case errors.Is(err, recognition.ErrCapabilityUnavailable):
		n.Title = "Speech Recognition Not Supported"
		n.Description = "No speech recognition backend is available on this machine"
	case errors.Is(err, recognition.ErrPermissionDenied):
		n.Title = "Microphone Access Required"
		n.Description = "Please allow microphone access to use voice commands"
	}
	log.Warn("Cannot start listening", "err", err)
	c.cfg.Notifier.Notify(n)
}

// SubmitText injects typed text as if it were a final transcript.
func (c *Core) SubmitText(ctx context.Context, text string) error {
	text = classify.Normalize(text)
	if text == "" {
		return ErrEmptyText
	}

	c.mu.Lock()
	if c.listening || c.synth.Speaking() {
		c.mu.Unlock()
		return ErrBusy
	}
	c.lastCommand = text
	c.mu.Unlock()

	c.signal()
	c.conv.Handle(ctx, text)
	return nil
}

// Trigger dispatches a registry trigger directly, bypassing classification.
func (c *Core) Trigger(ctx context.Context, triggerID, subID string) error {
	t, ok := c.cfg.Registry.Lookup(triggerID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTrigger, triggerID)
	}

	var sub *registry.SubTrigger
	if subID != "" {
		s, ok := t.SubTrigger(subID)
		if !ok {
			return fmt.Errorf("%w: %s/%s", ErrUnknownSubTrigger, triggerID, subID)
		}
		sub = &s
	}
	return c.dispatcher.Dispatch(ctx, t, sub)
}

func (c *Core) ToggleMode() conversation.Mode {
	return c.conv.ToggleMode()
}

func (c *Core) CancelSpeech() {
	c.synth.Cancel()
}

func (c *Core) Registry() *registry.Registry {
	return c.cfg.Registry
}

func (c *Core) Snapshot() Snapshot {
	c.mu.Lock()
	s := Snapshot{
		Listening:   c.listening,
		Transcript:  c.transcript,
		LastCommand: c.lastCommand,
	}
	c.mu.Unlock()

	s.Speaking = c.synth.Speaking()
	s.Mode = c.conv.Mode()
	s.Running = slices.Sorted(maps.Keys(c.tracker.Running()))
	s.Progress = c.tracker.ProgressAll()
	s.Activities = c.tracker.Activities()
	s.History = c.conv.History()
	return s
}

// Changes delivers a signal after state changes. Signals are coalesced:
// readers should call Snapshot on every receive.
func (c *Core) Changes() <-chan struct{} {
	return c.changes
}

func (c *Core) signal() {
	select {
	case c.changes <- struct{}{}:
	default:
	}
}

// Close stops listening and speech, then waits for in-flight commands and
// progress simulators.
func (c *Core) Close() {
	c.StopListening()
	if c.cfg.Recognizer != nil {
		c.cfg.Recognizer.Stop()
	}
	c.synth.Cancel()
	c.cancel()
	c.wg.Wait()
	c.conv.Wait()
	c.synth.Wait()
	c.tracker.Close()
}
