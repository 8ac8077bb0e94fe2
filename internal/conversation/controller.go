// Package conversation decides what happens to a final transcript.
//
// In command mode transcripts are matched against the trigger registry and
// anything unmatched is handed to the AI agent without waiting for a reply.
// In conversation mode every transcript goes to the agent and the reply is
// spoken back.
package conversation

import (
	"context"
	"fmt"
	log "log/slog"
	"strings"
	"sync"
	"time"

	"orchestra/internal/classify"
	"orchestra/internal/notify"
	"orchestra/internal/registry"
	"orchestra/internal/tracker"
)

type Mode string

const (
	ModeCommand      Mode = "command"
	ModeConversation Mode = "conversation"
)

type Role string

const (
	RoleUser Role = "user"
	RoleAI   Role = "ai"
)

type Message struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

const FallbackReply = "Sorry, I couldn't reach the assistant right now. Please try again in a moment."

// Agent is the remote AI assistant.
type Agent interface {
	// Submit hands an unmatched command to the agent for processing.
	Submit(ctx context.Context, command string) error
	// Reply answers text given the conversation so far (text excluded).
	Reply(ctx context.Context, history []Message, text string) (string, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, t registry.Trigger, sub *registry.SubTrigger) error
}

type Speaker interface {
	Speak(text string)
}

// Recorder receives voice-command activity entries.
type Recorder interface {
	Record(kind tracker.Kind, title, description string, status tracker.Status) string
	UpdateActivity(id string, u tracker.Update) bool
}

type Config struct {
	Classifier *classify.Classifier
	Dispatcher Dispatcher
	Agent      Agent
	Speaker    Speaker
	Notifier   notify.Notifier
	Activity   Recorder
	Now        func() time.Time
	OnChange   func()
}

type Controller struct {
	cfg Config

	mu         sync.Mutex
	mode       Mode
	history    []Message
	generation uint64
	wg         sync.WaitGroup
}

func New(cfg Config) *Controller {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Log{}
	}
	return &Controller{cfg: cfg, mode: ModeCommand}
}

func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// ToggleMode flips the mode and always discards the history.
func (c *Controller) ToggleMode() Mode {
	c.mu.Lock()
	if c.mode == ModeCommand {
		c.mode = ModeConversation
	} else {
		c.mode = ModeCommand
	}
	c.history = nil
	c.generation++
	mode := c.mode
	c.mu.Unlock()

	log.Info("Interaction mode changed", "mode", mode)
	c.changed()
	return mode
}

func (c *Controller) History() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.history...)
}

// Handle processes one final transcript. It returns once the transcript has
// been routed; in conversation mode that includes waiting for the reply.
func (c *Controller) Handle(ctx context.Context, transcript string) {
	text := classify.Normalize(transcript)
	if text == "" {
		return
	}

	c.mu.Lock()
	mode, gen := c.mode, c.generation
	c.mu.Unlock()

	if mode == ModeConversation {
		c.converse(ctx, gen, text)
		return
	}

	res := c.cfg.Classifier.Classify(text)
	if res.Matched() {
		c.trigger(ctx, *res.Trigger, text)
		return
	}

	c.append(gen, Message{Role: RoleUser, Text: text, Timestamp: c.cfg.Now()})
	c.submit(ctx, text)
}

// Wait blocks until background agent submissions have finished.
func (c *Controller) Wait() {
	c.wg.Wait()
}

func (c *Controller) trigger(ctx context.Context, t registry.Trigger, text string) {
	var sub *registry.SubTrigger
	if t.RequiresSubTrigger() {
		s, ok := t.ResolveSubTrigger(text)
		if !ok {
			names := make([]string, 0, len(t.SubTriggers))
			for _, s := range t.SubTriggers {
				names = append(names, strings.ToLower(s.Name))
			}
			log.Info("Sub-trigger not resolved", "trigger", t.ID, "text", text)
			c.cfg.Notifier.Notify(notify.Notification{
				Title:       fmt.Sprintf("Which %s?", t.Name),
				Description: fmt.Sprintf("Say %q followed by one of: %s", t.Keywords[0], strings.Join(names, ", ")),
				Variant:     notify.Destructive,
			})
			return
		}
		sub = &s
	}

	if err := c.cfg.Dispatcher.Dispatch(ctx, t, sub); err != nil {
		log.Warn("Dispatch rejected", "trigger", t.ID, "err", err)
	}
}

func (c *Controller) submit(ctx context.Context, text string) {
	var recID string
	if c.cfg.Activity != nil {
		recID = c.cfg.Activity.Record(tracker.KindVoiceCommand, "Voice Command", fmt.Sprintf("AI is processing: %q", text), tracker.StatusPending)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		start := c.cfg.Now()
		err := c.cfg.Agent.Submit(context.WithoutCancel(ctx), text)

		status := tracker.StatusCompleted
		if err != nil {
			status = tracker.StatusFailed
			log.Error("Voice command API error", "err", err)
			c.cfg.Notifier.Notify(notify.Notification{
				Title:       "Command Not Recognized",
				Description: fmt.Sprintf("Heard: %q - try one of the preset commands or check backend connection", text),
				Variant:     notify.Destructive,
			})
		} else {
			c.cfg.Notifier.Notify(notify.Notification{
				Title:       "Voice Command Processed",
				Description: fmt.Sprintf("AI is processing: %q", text),
			})
		}

		if recID != "" {
			d := c.cfg.Now().Sub(start).Milliseconds()
			c.cfg.Activity.UpdateActivity(recID, tracker.Update{Status: &status, DurationMs: &d})
		}
	}()
}

func (c *Controller) converse(ctx context.Context, gen uint64, text string) {
	history := c.History()
	if !c.append(gen, Message{Role: RoleUser, Text: text, Timestamp: c.cfg.Now()}) {
		return
	}

	reply, err := c.cfg.Agent.Reply(ctx, history, text)
	if err != nil || strings.TrimSpace(reply) == "" {
		log.Error("Agent reply failed", "err", err)
		reply = FallbackReply
	}

	// a mode toggle while waiting discards the exchange
	if !c.append(gen, Message{Role: RoleAI, Text: reply, Timestamp: c.cfg.Now()}) {
		log.Debug("Dropping reply from previous conversation")
		return
	}
	if c.cfg.Speaker != nil {
		c.cfg.Speaker.Speak(reply)
	}
}

func (c *Controller) append(gen uint64, m Message) bool {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return false
	}
	c.history = append(c.history, m)
	c.mu.Unlock()

	c.changed()
	return true
}

func (c *Controller) changed() {
	if c.cfg.OnChange != nil {
		c.cfg.OnChange()
	}
}
