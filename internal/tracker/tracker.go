// Package tracker follows every triggered automation from start to its
// terminal state and keeps a short most-recent-first activity log.
//
// Progress is simulated: each execution ticks towards 100% on its own clock,
// independently of what the backend reports. It is a placeholder for a real
// progress channel and must not be read as a completion signal from the
// backend.
package tracker

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	mrand "math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var ErrUnknownExecution = errors.New("unknown or finished execution")

type Options struct {
	// Capacity bounds the activity log. Defaults to 10.
	Capacity int
	// Tick is the progress simulator interval.
	Tick time.Duration
	// MinStep and MaxStep bound the random progress added per tick.
	MinStep, MaxStep int
	// Step overrides the random step source, returning a value in [min, max].
	Step func(min, max int) int
	Now  func() time.Time
	// OnChange fires after every state mutation, outside the lock.
	OnChange func()
}

type execution struct {
	id        string
	triggerID string
	recordID  string
	progress  int
	started   time.Time
	active    bool
	stop      chan struct{}
	done      chan struct{}
}

type Tracker struct {
	opts Options

	mu         sync.Mutex
	log        []*Activity // newest first
	executions map[string]*execution
	entropy    io.Reader
	wg         sync.WaitGroup
}

func New(opts Options) *Tracker {
	if opts.Capacity <= 0 {
		opts.Capacity = 10
	}
	if opts.Tick <= 0 {
		opts.Tick = 300 * time.Millisecond
	}
	if opts.MinStep <= 0 {
		opts.MinStep = 5
	}
	if opts.MaxStep < opts.MinStep {
		opts.MaxStep = opts.MinStep
	}
	if opts.Step == nil {
		opts.Step = func(lo, hi int) int { return lo + mrand.IntN(hi-lo+1) }
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Tracker{
		opts:       opts,
		executions: make(map[string]*execution),
		entropy:    ulid.Monotonic(rand.Reader, 0),
	}
}

// Begin records a running automation and starts its progress simulator.
// It returns the execution id.
func (t *Tracker) Begin(triggerID, label, description string) string {
	t.mu.Lock()

	now := t.opts.Now()
	rec := &Activity{
		ID:             t.newRecordID(now),
		Kind:           KindAutomation,
		Title:          label,
		Description:    description,
		Status:         StatusRunning,
		CreatedAt:      now,
		AutomationType: triggerID,
	}
	t.insert(rec)

	ex := &execution{
		id:        uuid.NewString(),
		triggerID: triggerID,
		recordID:  rec.ID,
		started:   now,
		active:    true,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	t.executions[ex.id] = ex
	t.wg.Add(1)
	t.mu.Unlock()

	go t.simulate(ex)
	t.changed()

	return ex.id
}

// Fail stops the simulator of a running execution and marks it failed.
// Finished or unknown executions are left untouched.
func (t *Tracker) Fail(executionID, reason string) error {
	t.mu.Lock()
	ex, ok := t.executions[executionID]
	if !ok || !ex.active {
		t.mu.Unlock()
		return ErrUnknownExecution
	}
	t.finish(ex, StatusFailed, reason)
	t.mu.Unlock()

	t.changed()
	return nil
}

// Record appends a non-automation entry (voice command, system event).
func (t *Tracker) Record(kind Kind, title, description string, status Status) string {
	t.mu.Lock()
	now := t.opts.Now()
	rec := &Activity{
		ID:          t.newRecordID(now),
		Kind:        kind,
		Title:       title,
		Description: description,
		Status:      status,
		CreatedAt:   now,
	}
	t.insert(rec)
	t.mu.Unlock()

	t.changed()
	return rec.ID
}

// UpdateActivity patches a record still present in the log.
func (t *Tracker) UpdateActivity(id string, u Update) bool {
	t.mu.Lock()
	rec := t.record(id)
	if rec == nil {
		t.mu.Unlock()
		return false
	}
	if u.Title != nil {
		rec.Title = *u.Title
	}
	if u.Description != nil {
		rec.Description = *u.Description
	}
	if u.Status != nil {
		rec.Status = *u.Status
	}
	if u.DurationMs != nil {
		d := *u.DurationMs
		rec.DurationMs = &d
	}
	t.mu.Unlock()

	t.changed()
	return true
}

// Progress is the highest progress among the trigger's running executions,
// 0 when none is running.
func (t *Tracker) Progress(triggerID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	best := 0
	for _, ex := range t.executions {
		if ex.triggerID == triggerID && ex.progress > best {
			best = ex.progress
		}
	}
	return best
}

// ProgressAll returns Progress for every trigger with a running execution.
func (t *Tracker) ProgressAll() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]int)
	for _, ex := range t.executions {
		if ex.progress >= out[ex.triggerID] {
			out[ex.triggerID] = ex.progress
		}
	}
	return out
}

// Running returns the set of trigger ids with at least one execution in flight.
func (t *Tracker) Running() map[string]struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]struct{}, len(t.executions))
	for _, ex := range t.executions {
		out[ex.triggerID] = struct{}{}
	}
	return out
}

func (t *Tracker) IsRunning(executionID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.executions[executionID]
	return ok
}

// Activities returns a copy of the log, newest first.
func (t *Tracker) Activities() []Activity {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Activity, len(t.log))
	for i, rec := range t.log {
		out[i] = *rec
		if rec.DurationMs != nil {
			d := *rec.DurationMs
			out[i].DurationMs = &d
		}
	}
	return out
}

// Wait blocks until the execution has completed or failed.
func (t *Tracker) Wait(ctx context.Context, executionID string) error {
	t.mu.Lock()
	ex, ok := t.executions[executionID]
	t.mu.Unlock()
	if !ok {
		return nil
	}

	select {
	case <-ex.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close waits for every progress simulator to stop.
func (t *Tracker) Close() {
	t.wg.Wait()
}

func (t *Tracker) simulate(ex *execution) {
	defer t.wg.Done()

	ticker := time.NewTicker(t.opts.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ex.stop:
			return
		case <-ticker.C:
		}

		t.mu.Lock()
		if !ex.active {
			t.mu.Unlock()
			return
		}
		ex.progress = min(ex.progress+t.opts.Step(t.opts.MinStep, t.opts.MaxStep), 100)
		completed := ex.progress >= 100
		if completed {
			t.finish(ex, StatusCompleted, "")
		}
		t.mu.Unlock()

		t.changed()
		if completed {
			return
		}
	}
}

// finish moves an active execution to a terminal state. Callers hold t.mu.
func (t *Tracker) finish(ex *execution, status Status, reason string) {
	ex.active = false
	delete(t.executions, ex.id)
	close(ex.stop)
	close(ex.done)

	if rec := t.record(ex.recordID); rec != nil {
		rec.Status = status
		if status == StatusFailed {
			rec.Description = reason
		}
		d := t.opts.Now().Sub(ex.started).Milliseconds()
		rec.DurationMs = &d
	}
}

func (t *Tracker) insert(rec *Activity) {
	t.log = append([]*Activity{rec}, t.log...)
	if len(t.log) > t.opts.Capacity {
		clear(t.log[t.opts.Capacity:])
		t.log = t.log[:t.opts.Capacity]
	}
}

func (t *Tracker) record(id string) *Activity {
	for _, rec := range t.log {
		if rec.ID == id {
			return rec
		}
	}
	return nil
}

func (t *Tracker) newRecordID(now time.Time) string {
	return ulid.MustNew(ulid.Timestamp(now), t.entropy).String()
}

func (t *Tracker) changed() {
	if t.opts.OnChange != nil {
		t.opts.OnChange()
	}
}
