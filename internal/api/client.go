// Package api is the client for the automation backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	log "log/slog"
	"net"
	"net/http"
	"slices"
	"strings"
	"time"
)

const (
	pathHealth       = "/health"
	pathWorkout      = "/workout"
	pathDailyNote    = "/daily-note"
	pathStudio       = "/studio"
	pathVoiceCommand = "/voice-command"
	pathAutomations  = "/automations"
)

var (
	WorkoutTypes  = []string{"running", "cycling", "mobility", "gym"}
	NoteTypes     = []string{"today", "tomorrow"}
	StudioActions = []string{"open_session", "switch_audio", "open_project"}
)

type Response struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	Timestamp      string `json:"timestamp"`
	AutomationType string `json:"automation_type"`
}

type Health struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
}

type AutomationInfo struct {
	Endpoint         string         `json:"endpoint"`
	Method           string         `json:"method"`
	Description      string         `json:"description"`
	SupportedTypes   []string       `json:"supported_types,omitempty"`
	SupportedActions []string       `json:"supported_actions,omitempty"`
	Example          map[string]any `json:"example"`
}

type AutomationList struct {
	Available      map[string]AutomationInfo `json:"available_automations"`
	Timestamp      string                    `json:"timestamp"`
	TotalEndpoints int                       `json:"total_endpoints"`
}

type Config struct {
	BaseURL       string
	Timeout       time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	HTTPClient    *http.Client
}

type Client struct {
	baseURL    string
	timeout    time.Duration
	retries    int
	retryDelay time.Duration
	http       *http.Client
}

func NewClient(cfg Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		timeout:    timeout,
		retries:    cfg.RetryAttempts,
		retryDelay: cfg.RetryDelay,
		http:       hc,
	}
}

func (c *Client) Health(ctx context.Context) (Health, error) {
	var out Health
	err := c.do(ctx, "health", http.MethodGet, pathHealth, nil, &out)
	return out, err
}

// WaitHealthy probes /health up to 1+RetryAttempts times, sleeping RetryDelay
// between attempts. Automation requests themselves are never retried.
func (c *Client) WaitHealthy(ctx context.Context) (Health, error) {
	var (
		h   Health
		err error
	)
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			log.Debug("Retrying health check", "attempt", attempt, "err", err)
			select {
			case <-ctx.Done():
				return Health{}, ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}
		h, err = c.Health(ctx)
		if err == nil {
			return h, nil
		}
	}
	return Health{}, err
}

// Workout posts to /workout. date is optional (YYYY-MM-DD).
func (c *Client) Workout(ctx context.Context, workoutType, date string) (Response, error) {
	if !slices.Contains(WorkoutTypes, workoutType) {
		return Response{}, &Error{Op: "workout", Kind: KindInvalid, Err: fmt.Errorf("unknown workout type %q", workoutType)}
	}
	body := map[string]string{"workout_type": workoutType}
	if date != "" {
		body["date"] = date
	}

	var out Response
	err := c.do(ctx, "workout", http.MethodPost, pathWorkout, body, &out)
	return out, err
}

func (c *Client) DailyNote(ctx context.Context, noteType, date string) (Response, error) {
	if !slices.Contains(NoteTypes, noteType) {
		return Response{}, &Error{Op: "daily-note", Kind: KindInvalid, Err: fmt.Errorf("unknown note type %q", noteType)}
	}
	body := map[string]string{"note_type": noteType}
	if date != "" {
		body["date"] = date
	}

	var out Response
	err := c.do(ctx, "daily-note", http.MethodPost, pathDailyNote, body, &out)
	return out, err
}

func (c *Client) Studio(ctx context.Context, action string) (Response, error) {
	if !slices.Contains(StudioActions, action) {
		return Response{}, &Error{Op: "studio", Kind: KindInvalid, Err: fmt.Errorf("unknown studio action %q", action)}
	}

	var out Response
	err := c.do(ctx, "studio", http.MethodPost, pathStudio, map[string]string{"action": action}, &out)
	return out, err
}

func (c *Client) VoiceCommand(ctx context.Context, command string, useAgent bool) (Response, error) {
	body := struct {
		Command  string `json:"command"`
		UseAgent bool   `json:"use_agent"`
	}{command, useAgent}

	var out Response
	err := c.do(ctx, "voice-command", http.MethodPost, pathVoiceCommand, body, &out)
	return out, err
}

func (c *Client) Automations(ctx context.Context) (AutomationList, error) {
	var out AutomationList
	err := c.do(ctx, "automations", http.MethodGet, pathAutomations, nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return &Error{Op: op, Kind: KindInvalid, Err: err}
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &Error{Op: op, Kind: KindInvalid, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	log.Debug("Backend request", "method", method, "path", path)

	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return &Error{Op: op, Kind: KindTimeout, Err: err}
		}
		return &Error{Op: op, Kind: KindNetwork, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &Error{
			Op:     op,
			Kind:   KindStatus,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("%s: %s", http.StatusText(resp.StatusCode), strings.TrimSpace(string(snippet))),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if isTimeout(ctx, err) {
			return &Error{Op: op, Kind: KindTimeout, Err: err}
		}
		return &Error{Op: op, Kind: KindDecode, Err: err}
	}
	return nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
