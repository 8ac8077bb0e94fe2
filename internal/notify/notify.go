// Package notify delivers short user-facing messages: what was triggered,
// what failed and what to do about it.
package notify

import (
	"context"
	log "log/slog"
	"os/exec"
	"sync"
	"time"
)

type Variant string

const (
	Default     Variant = "default"
	Destructive Variant = "destructive"
)

type Notification struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Variant     Variant `json:"variant"`
}

type Notifier interface {
	Notify(n Notification)
}

type Func func(Notification)

func (f Func) Notify(n Notification) { f(n) }

// Log writes notifications to the default logger.
type Log struct{}

func (Log) Notify(n Notification) {
	if n.Variant == Destructive {
		log.Warn(n.Title, "description", n.Description)
		return
	}
	log.Info(n.Title, "description", n.Description)
}

// Desktop shows notifications through notify-send.
type Desktop struct {
	App string
}

func (d Desktop) Notify(n Notification) {
	urgency := "normal"
	if n.Variant == Destructive {
		urgency = "critical"
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		args := []string{"-a", d.App, "-u", urgency, n.Title}
		if n.Description != "" {
			args = append(args, n.Description)
		}
		if err := exec.CommandContext(ctx, "notify-send", args...).Run(); err != nil {
			log.Debug("notify-send failed", "err", err)
		}
	}()
}

// Multi fans a notification out to every notifier.
type Multi []Notifier

func (m Multi) Notify(n Notification) {
	for _, x := range m {
		if x != nil {
			x.Notify(n)
		}
	}
}

// Recorder keeps the most recent notifications in memory for status output.
type Recorder struct {
	mu   sync.Mutex
	size int
	list []Notification
}

func NewRecorder(size int) *Recorder {
	return &Recorder{size: max(size, 1)}
}

func (r *Recorder) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.list = append(r.list, n)
	if len(r.list) > r.size {
		r.list = r.list[len(r.list)-r.size:]
	}
}

// Recent returns notifications oldest first.
func (r *Recorder) Recent() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.list...)
}
