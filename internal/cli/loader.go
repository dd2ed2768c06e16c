package cli

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Script is a YAML stimulus script: the external events a run feeds to the
// kernel, in order.
//
//	events:
//	  - name: tick
//	    payload: "1"
//	  - name: halt
type Script struct {
	Events []ScriptEvent `yaml:"events"`
}

// ScriptEvent is one stimulus.
type ScriptEvent struct {
	Name    string `yaml:"name"`
	Payload string `yaml:"payload,omitempty"`
}

// LoadScript reads and validates a stimulus script.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}
	if len(s.Events) == 0 {
		return nil, fmt.Errorf("script %s declares no events", path)
	}
	for i, ev := range s.Events {
		if ev.Name == "" {
			return nil, fmt.Errorf("script %s: event %d has no name", path, i)
		}
	}
	return &s, nil
}

// Next adapts the script to the kernel's event-source callback contract.
func (s *Script) Next() func() (string, any, bool) {
	i := 0
	return func() (string, any, bool) {
		if i >= len(s.Events) {
			return "", nil, false
		}
		ev := s.Events[i]
		i++
		var payload any
		if ev.Payload != "" {
			payload = ev.Payload
		}
		return ev.Name, payload, true
	}
}
