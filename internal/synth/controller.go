// Package synth controls spoken replies: at most one utterance plays at a
// time and a new one always replaces the current one.
package synth

import (
	"context"
	log "log/slog"
	"sync"
	"time"
)

type Engine interface {
	Speak(ctx context.Context, text string) error
}

// Ducker lowers other audio while an utterance plays.
type Ducker interface {
	Duck(ctx context.Context) error
	Unduck(ctx context.Context) error
}

type Controller struct {
	engine   Engine
	ducker   Ducker
	onChange func()

	mu       sync.Mutex
	speaking bool
	current  uint64 // id of the utterance that owns the flag, 0 when idle
	next     uint64
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

type Option func(*Controller)

func WithDucker(d Ducker) Option {
	return func(c *Controller) { c.ducker = d }
}

// WithOnChange registers a hook fired whenever the speaking flag flips.
func WithOnChange(f func()) Option {
	return func(c *Controller) { c.onChange = f }
}

// New accepts a nil engine; the controller then runs in degraded mode and
// every Speak is logged and dropped.
func New(engine Engine, opts ...Option) *Controller {
	c := &Controller{engine: engine}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) Available() bool { return c.engine != nil }

// Speak cancels whatever is playing and starts text. It returns immediately.
func (c *Controller) Speak(text string) {
	if c.engine == nil {
		log.Warn("Speech synthesis unavailable, dropping reply", "text", text)
		return
	}

	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.next++
	id := c.next
	c.cancel = cancel
	c.current = id
	changed := !c.speaking
	c.speaking = true
	c.wg.Add(1)
	c.mu.Unlock()

	if changed {
		c.changed()
	}

	go c.play(ctx, cancel, id, text)
}

func (c *Controller) play(ctx context.Context, cancel context.CancelFunc, id uint64, text string) {
	defer c.wg.Done()
	defer cancel()

	if c.ducker != nil {
		if err := c.ducker.Duck(ctx); err != nil {
			log.Debug("Failed to duck audio", "err", err)
		}
	}

	err := c.engine.Speak(ctx, text)
	if err != nil && ctx.Err() == nil {
		log.Error("Failed to voice out", "err", err)
	}

	c.mu.Lock()
	owner := c.current == id
	idle := owner || c.current == 0
	if owner {
		c.current = 0
		c.cancel = nil
		c.speaking = false
	}
	c.mu.Unlock()

	if idle && c.ducker != nil {
		uctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := c.ducker.Unduck(uctx); err != nil {
			log.Debug("Failed to restore audio", "err", err)
		}
		cancel()
	}
	if owner {
		c.changed()
	}
}

// Cancel stops playback. Calling it while idle does nothing.
func (c *Controller) Cancel() {
	c.mu.Lock()
	if c.cancel == nil {
		c.mu.Unlock()
		return
	}
	c.cancel()
	c.cancel = nil
	c.current = 0
	c.speaking = false
	c.mu.Unlock()

	c.changed()
}

func (c *Controller) Speaking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speaking
}

// Wait blocks until every started utterance has returned from the engine.
func (c *Controller) Wait() {
	c.wg.Wait()
}

func (c *Controller) changed() {
	if c.onChange != nil {
		c.onChange()
	}
}
