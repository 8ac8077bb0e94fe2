// Package registry holds the catalogue of automation triggers the orchestrator
// can invoke, either from a manual selection or from a spoken command.
package registry

import (
	"fmt"
	"strings"
)

type SubTrigger struct {
	ID       string   `yaml:"id" json:"id" validate:"required"`
	Name     string   `yaml:"name" json:"name" validate:"required"`
	Icon     string   `yaml:"icon" json:"icon"`
	Keywords []string `yaml:"keywords,omitempty" json:"keywords,omitempty"`
}

type Trigger struct {
	ID          string       `yaml:"id" json:"id" validate:"required"`
	Name        string       `yaml:"name" json:"name" validate:"required"`
	Description string       `yaml:"description" json:"description"`
	Color       string       `yaml:"color" json:"color"`
	Keywords    []string     `yaml:"keywords" json:"keywords" validate:"required,min=1,dive,required"`
	Command     string       `yaml:"command,omitempty" json:"command,omitempty"`
	SubTriggers []SubTrigger `yaml:"sub_triggers,omitempty" json:"sub_triggers,omitempty" validate:"dive"`
}

// RequiresSubTrigger reports whether a manual invocation must name a sub-trigger.
func (t Trigger) RequiresSubTrigger() bool {
	return len(t.SubTriggers) > 0
}

func (t Trigger) SubTrigger(id string) (SubTrigger, bool) {
	for _, s := range t.SubTriggers {
		if s.ID == id {
			return s, true
		}
	}
	return SubTrigger{}, false
}

// Label is the human readable name of an invocation, "GYM Notes - Running".
func (t Trigger) Label(sub *SubTrigger) string {
	if sub == nil {
		return t.Name
	}
	return t.Name + " - " + sub.Name
}

// ResolveSubTrigger finds the first sub-trigger whose id, name or keywords
// occur in an already normalized transcript.
func (t Trigger) ResolveSubTrigger(transcript string) (SubTrigger, bool) {
	for _, s := range t.SubTriggers {
		phrases := append([]string{s.ID, s.Name}, s.Keywords...)
		for _, p := range phrases {
			p = strings.ToLower(strings.TrimSpace(p))
			if p != "" && strings.Contains(transcript, p) {
				return s, true
			}
		}
	}
	return SubTrigger{}, false
}

// Registry is an ordered, read-only list of triggers. Order matters: the
// classifier returns the first trigger that matches.
type Registry struct {
	triggers []Trigger
	byID     map[string]int
}

func New(triggers []Trigger) (*Registry, error) {
	r := &Registry{
		triggers: make([]Trigger, 0, len(triggers)),
		byID:     make(map[string]int, len(triggers)),
	}

	for _, t := range triggers {
		if err := validate(t); err != nil {
			return nil, err
		}
		if _, dup := r.byID[t.ID]; dup {
			return nil, fmt.Errorf("duplicate trigger id %q", t.ID)
		}

		t.Keywords = lowerAll(t.Keywords)
		t.SubTriggers = append([]SubTrigger(nil), t.SubTriggers...)

		r.byID[t.ID] = len(r.triggers)
		r.triggers = append(r.triggers, t)
	}

	return r, nil
}

// Triggers returns a copy of the catalogue in registry order.
func (r *Registry) Triggers() []Trigger {
	return append([]Trigger(nil), r.triggers...)
}

func (r *Registry) Lookup(id string) (Trigger, bool) {
	i, ok := r.byID[id]
	if !ok {
		return Trigger{}, false
	}
	return r.triggers[i], true
}

func (r *Registry) Len() int { return len(r.triggers) }

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, k := range in {
		out = append(out, strings.Join(strings.Fields(strings.ToLower(k)), " "))
	}
	return out
}
