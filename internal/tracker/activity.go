package tracker

import "time"

type Kind string

const (
	KindAutomation   Kind = "automation"
	KindVoiceCommand Kind = "voice_command"
	KindSystem       Kind = "system"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type Activity struct {
	ID             string    `json:"id"`
	Kind           Kind      `json:"type"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Status         Status    `json:"status"`
	CreatedAt      time.Time `json:"timestamp"`
	DurationMs     *int64    `json:"duration,omitempty"`
	AutomationType string    `json:"automation_type,omitempty"`
}

// Update is a partial modification applied by UpdateActivity. Nil fields are
// left untouched.
type Update struct {
	Title       *string
	Description *string
	Status      *Status
	DurationMs  *int64
}
