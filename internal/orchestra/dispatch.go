package orchestra

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"

	"orchestra/internal/api"
	"orchestra/internal/notify"
	"orchestra/internal/registry"
)

var (
	ErrUnknownTrigger     = errors.New("unknown trigger")
	ErrSubTriggerRequired = errors.New("trigger requires a sub-trigger")
	ErrUnknownSubTrigger  = errors.New("unknown sub-trigger")
)

const (
	reasonTimeout    = "Request timeout - check if backend is running"
	reasonConnection = "Connection error - check backend connectivity"
)

// Backend is the subset of the automation API used for dispatch.
type Backend interface {
	Workout(ctx context.Context, workoutType, date string) (api.Response, error)
	DailyNote(ctx context.Context, noteType, date string) (api.Response, error)
	Studio(ctx context.Context, action string) (api.Response, error)
	VoiceCommand(ctx context.Context, command string, useAgent bool) (api.Response, error)
}

// Executions is the subset of the tracker used for dispatch.
type Executions interface {
	Begin(triggerID, label, description string) string
	Fail(executionID, reason string) error
}

type Dispatcher struct {
	registry   *registry.Registry
	backend    Backend
	executions Executions
	notifier   notify.Notifier
}

func NewDispatcher(reg *registry.Registry, backend Backend, executions Executions, notifier notify.Notifier) *Dispatcher {
	if notifier == nil {
		notifier = notify.Log{}
	}
	return &Dispatcher{
		registry:   reg,
		backend:    backend,
		executions: executions,
		notifier:   notifier,
	}
}

// Dispatch begins an execution for t and issues its backend request.
//
// Only invalid input is returned as an error, before anything is tracked.
// Backend failures are reported through the execution state and a
// notification.
func (d *Dispatcher) Dispatch(ctx context.Context, t registry.Trigger, sub *registry.SubTrigger) error {
	if _, ok := d.registry.Lookup(t.ID); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTrigger, t.ID)
	}
	if t.RequiresSubTrigger() {
		if sub == nil {
			return fmt.Errorf("%w: %s", ErrSubTriggerRequired, t.ID)
		}
		if _, ok := t.SubTrigger(sub.ID); !ok {
			return fmt.Errorf("%w: %s/%s", ErrUnknownSubTrigger, t.ID, sub.ID)
		}
	}

	label := t.Label(sub)
	execID := d.executions.Begin(t.ID, label, t.Description)
	log.Info("Dispatching automation", "trigger", t.ID, "label", label, "execution", execID)

	d.notifier.Notify(notify.Notification{
		Title:       "Orchestra Activated",
		Description: fmt.Sprintf("%s sequence initiated", label),
	})

	resp, err := d.send(ctx, t, sub, label)
	if err != nil {
		reason := reasonConnection
		if api.IsTimeout(err) {
			reason = reasonTimeout
		}
		log.Error("Automation request failed", "trigger", t.ID, "execution", execID, "err", err)

		if ferr := d.executions.Fail(execID, reason); ferr != nil {
			log.Debug("Execution already finished", "execution", execID)
		}
		d.notifier.Notify(notify.Notification{
			Title:       "Automation Failed",
			Description: reason,
			Variant:     notify.Destructive,
		})
		return nil
	}

	msg := resp.Message
	if msg == "" {
		msg = fmt.Sprintf("%s triggered", label)
	}
	d.notifier.Notify(notify.Notification{
		Title:       "Automation Started",
		Description: msg,
	})
	return nil
}

func (d *Dispatcher) send(ctx context.Context, t registry.Trigger, sub *registry.SubTrigger, label string) (api.Response, error) {
	switch {
	case t.ID == "gym-notes" && sub != nil:
		return d.backend.Workout(ctx, sub.ID, "")
	case t.ID == "daily-note" && sub != nil:
		return d.backend.DailyNote(ctx, sub.ID, "")
	case t.ID == "studio-mode":
		return d.backend.Studio(ctx, "open_session")
	}

	command := t.Command
	if command == "" {
		command = "trigger " + label
	}
	return d.backend.VoiceCommand(ctx, command, false)
}
