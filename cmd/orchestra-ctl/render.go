package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"orchestra/internal/orchestra"
	"orchestra/internal/registry"
	"orchestra/internal/tracker"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	faint  = color.New(color.Faint).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

func statusColor(s string) string {
	switch s {
	case string(tracker.StatusCompleted), "healthy", "ok":
		return green(s)
	case string(tracker.StatusFailed):
		return red(s)
	case string(tracker.StatusRunning), string(tracker.StatusPending):
		return yellow(s)
	}
	return s
}

func onOff(b bool) string {
	if b {
		return green("on")
	}
	return faint("off")
}

func renderSnapshot(w io.Writer, s orchestra.Snapshot) {
	fmt.Fprintf(w, "%s  listening %s  speaking %s  mode %s\n",
		bold("ORCHESTRA"), onOff(s.Listening), onOff(s.Speaking), cyan(string(s.Mode)))
	if s.Transcript != "" {
		fmt.Fprintf(w, "heard:   %q\n", s.Transcript)
	}
	if s.LastCommand != "" {
		fmt.Fprintf(w, "command: %q\n", s.LastCommand)
	}

	if len(s.Running) > 0 {
		fmt.Fprintln(w)
		for _, id := range s.Running {
			fmt.Fprintf(w, "  %-18s %s %3d%%\n", id, progressBar(s.Progress[id], 20), s.Progress[id])
		}
	}

	if len(s.Activities) > 0 {
		fmt.Fprintln(w)
		tw := table.NewWriter()
		tw.SetOutputMirror(w)
		tw.SetStyle(table.StyleLight)
		tw.AppendHeader(table.Row{"Time", "Type", "Title", "Status", "Duration", "Details"})
		for _, a := range s.Activities {
			dur := ""
			if a.DurationMs != nil {
				dur = (time.Duration(*a.DurationMs) * time.Millisecond).Round(100 * time.Millisecond).String()
			}
			tw.AppendRow(table.Row{
				a.CreatedAt.Local().Format(time.TimeOnly),
				string(a.Kind),
				a.Title,
				statusColor(string(a.Status)),
				dur,
				a.Description,
			})
		}
		tw.Render()
	}

	if len(s.History) > 0 {
		fmt.Fprintln(w)
		for _, m := range s.History {
			who := cyan("you")
			if m.Role == "ai" {
				who = green(" ai")
			}
			fmt.Fprintf(w, "%s  %s\n", who, m.Text)
		}
	}
}

func progressBar(pct, width int) string {
	pct = min(max(pct, 0), 100)
	filled := pct * width / 100
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + "]"
}

func renderAutomations(w io.Writer, data json.RawMessage) error {
	var list struct {
		Available map[string]struct {
			Endpoint         string   `json:"endpoint"`
			Method           string   `json:"method"`
			Description      string   `json:"description"`
			SupportedTypes   []string `json:"supported_types"`
			SupportedActions []string `json:"supported_actions"`
		} `json:"available_automations"`
		TotalEndpoints int `json:"total_endpoints"`
	}
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("decode automations: %w", err)
	}

	names := make([]string, 0, len(list.Available))
	for name := range list.Available {
		names = append(names, name)
	}
	sort.Strings(names)

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"Name", "Method", "Endpoint", "Options", "Description"})
	for _, name := range names {
		a := list.Available[name]
		opts := append(append([]string(nil), a.SupportedTypes...), a.SupportedActions...)
		tw.AppendRow(table.Row{name, a.Method, a.Endpoint, strings.Join(opts, ", "), a.Description})
	}
	tw.AppendFooter(table.Row{"", "", "", "total", list.TotalEndpoints})
	tw.Render()
	return nil
}

func renderTriggers(w io.Writer, reg *registry.Registry) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"#", "ID", "Name", "Keywords", "Sub-triggers"})
	for i, t := range reg.Triggers() {
		subs := make([]string, 0, len(t.SubTriggers))
		for _, s := range t.SubTriggers {
			subs = append(subs, s.ID)
		}
		tw.AppendRow(table.Row{i + 1, t.ID, t.Name, strings.Join(t.Keywords, ", "), strings.Join(subs, ", ")})
	}
	tw.Render()
}
