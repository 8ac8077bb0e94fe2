package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"

	"orchestra/internal/conversation"
	"orchestra/internal/orchestra"
	"orchestra/internal/registry"
	"orchestra/internal/tracker"
)

func TestProgressBar(t *testing.T) {
	tests := []struct {
		pct  int
		want string
	}{
		{0, "[..........]"},
		{50, "[#####.....]"},
		{100, "[##########]"},
		{140, "[##########]"},
		{-3, "[..........]"},
	}
	for _, tt := range tests {
		if got := progressBar(tt.pct, 10); got != tt.want {
			t.Errorf("progressBar(%d) = %q, want %q", tt.pct, got, tt.want)
		}
	}
}

func TestRenderSnapshot(t *testing.T) {
	color.NoColor = true

	d := int64(1200)
	snap := orchestra.Snapshot{
		Listening:   true,
		Mode:        conversation.ModeCommand,
		LastCommand: "activate focus mode",
		Running:     []string{"focus-mode"},
		Progress:    map[string]int{"focus-mode": 40},
		Activities: []tracker.Activity{{
			Kind:       tracker.KindAutomation,
			Title:      "GYM Notes - Running",
			Status:     tracker.StatusFailed,
			CreatedAt:  time.Now(),
			DurationMs: &d,
		}},
	}

	var buf bytes.Buffer
	renderSnapshot(&buf, snap)
	out := buf.String()

	for _, want := range []string{"listening on", "mode command", "focus-mode", "40%", "GYM Notes - Running", "failed", "1.2s"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderAutomations(t *testing.T) {
	color.NoColor = true
	data := []byte(`{"available_automations":{"workout":{"endpoint":"/workout","method":"POST","description":"Log a workout","supported_types":["running","gym"]}},"total_endpoints":1}`)

	var buf bytes.Buffer
	if err := renderAutomations(&buf, data); err != nil {
		t.Fatal(err)
	}
	if out := buf.String(); !strings.Contains(out, "/workout") || !strings.Contains(out, "running, gym") {
		t.Errorf("output:\n%s", out)
	}
}

func TestRenderTriggers(t *testing.T) {
	var buf bytes.Buffer
	renderTriggers(&buf, registry.Builtin())
	out := buf.String()
	if !strings.Contains(out, "gym-notes") || !strings.Contains(out, "running, cycling, mobility, gym") {
		t.Errorf("output:\n%s", out)
	}
}
