// Package classify maps a final transcript onto the trigger registry.
//
// Matching is plain substring search: the first trigger in registry order that
// has any keyword contained in the transcript wins. There is no scoring.
package classify

import (
	"strings"

	"orchestra/internal/registry"
)

type Result struct {
	Trigger    *registry.Trigger
	Transcript string
}

// Matched is false for transcripts that should be routed to the AI agent.
func (r Result) Matched() bool {
	return r.Trigger != nil
}

type Classifier struct {
	reg *registry.Registry
}

func New(reg *registry.Registry) *Classifier {
	return &Classifier{reg: reg}
}

func (c *Classifier) Classify(transcript string) Result {
	text := Normalize(transcript)

	for _, t := range c.reg.Triggers() {
		for _, kw := range t.Keywords {
			if kw != "" && strings.Contains(text, kw) {
				return Result{Trigger: &t, Transcript: text}
			}
		}
	}

	return Result{Transcript: text}
}

// Normalize lowercases and collapses whitespace.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
