package registry

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = func() func(Trigger) error {
	v := validator.New(validator.WithRequiredStructEnabled())
	return func(t Trigger) error {
		if err := v.Struct(t); err != nil {
			var verrs validator.ValidationErrors
			if errors.As(err, &verrs) && len(verrs) > 0 {
				return fmt.Errorf("trigger %q: field %s failed %q", t.ID, verrs[0].Namespace(), verrs[0].Tag())
			}
			return fmt.Errorf("trigger %q: %w", t.ID, err)
		}
		return nil
	}
}()

type file struct {
	Triggers []Trigger `yaml:"triggers"`
}

// LoadFile reads a catalogue from YAML:
//
//	triggers:
//	  - id: focus-mode
//	    name: Focus Mode
//	    keywords: [focus mode, deep focus]
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read triggers file: %w", err)
	}
	return FromYAML(data)
}

func FromYAML(data []byte) (*Registry, error) {
	var f file
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse triggers: %w", err)
	}
	if len(f.Triggers) == 0 {
		return nil, errors.New("triggers file defines no triggers")
	}
	return New(f.Triggers)
}
