package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, h http.HandlerFunc, timeout time.Duration) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL + "/api/v1/", Timeout: timeout, RetryAttempts: 2, RetryDelay: time.Millisecond})
}

func TestWorkoutRequest(t *testing.T) {
	var got map[string]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/workout" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content-type = %q", ct)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(Response{Success: true, Message: "logged", AutomationType: "workout"})
	}, time.Second)

	resp, err := c.Workout(context.Background(), "running", "")
	if err != nil {
		t.Fatal(err)
	}
	if !resp.Success || resp.Message != "logged" || resp.AutomationType != "workout" {
		t.Errorf("resp = %+v", resp)
	}
	if got["workout_type"] != "running" {
		t.Errorf("body = %v", got)
	}
	if _, ok := got["date"]; ok {
		t.Error("date should be omitted when empty")
	}
}

func TestVoiceCommandBody(t *testing.T) {
	var got struct {
		Command  string `json:"command"`
		UseAgent bool   `json:"use_agent"`
	}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(Response{Success: true})
	}, time.Second)

	if _, err := c.VoiceCommand(context.Background(), "order me a pizza", true); err != nil {
		t.Fatal(err)
	}
	if got.Command != "order me a pizza" || !got.UseAgent {
		t.Errorf("body = %+v", got)
	}
}

func TestErrorKinds(t *testing.T) {
	t.Run("status", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}, time.Second)

		_, err := c.Studio(context.Background(), "open_session")
		kind, ok := KindOf(err)
		if !ok || kind != KindStatus {
			t.Fatalf("err = %v", err)
		}
		if IsTimeout(err) {
			t.Error("status error reported as timeout")
		}
	})

	t.Run("timeout", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(time.Second):
			}
		}, 20*time.Millisecond)

		_, err := c.VoiceCommand(context.Background(), "x", false)
		if !IsTimeout(err) {
			t.Fatalf("err = %v, want timeout", err)
		}
	})

	t.Run("network", func(t *testing.T) {
		c := NewClient(Config{BaseURL: "http://127.0.0.1:1", Timeout: time.Second})
		_, err := c.Health(context.Background())
		kind, ok := KindOf(err)
		if !ok || kind != KindNetwork {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("decode", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("not json"))
		}, time.Second)

		_, err := c.Health(context.Background())
		if kind, _ := KindOf(err); kind != KindDecode {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("invalid argument", func(t *testing.T) {
		c := NewClient(Config{BaseURL: "http://unused"})
		for _, err := range []error{
			func() error { _, err := c.Workout(context.Background(), "swimming", ""); return err }(),
			func() error { _, err := c.DailyNote(context.Background(), "yesterday", ""); return err }(),
			func() error { _, err := c.Studio(context.Background(), "dance"); return err }(),
		} {
			if kind, _ := KindOf(err); kind != KindInvalid {
				t.Errorf("err = %v", err)
			}
		}
	})
}

func TestWaitHealthyRetries(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(Health{Status: "healthy", Version: "1.0.0"})
	}, time.Second)

	h, err := c.WaitHealthy(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if h.Status != "healthy" || calls.Load() != 3 {
		t.Errorf("health = %+v after %d calls", h, calls.Load())
	}
}

func TestWaitHealthyGivesUp(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}, time.Second)

	if _, err := c.WaitHealthy(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestAutomations(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"available_automations":{"workout":{"endpoint":"/workout","method":"POST","description":"log","supported_types":["running"],"example":{"workout_type":"running"}}},"timestamp":"now","total_endpoints":1}`))
	}, time.Second)

	list, err := c.Automations(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if list.TotalEndpoints != 1 || list.Available["workout"].Endpoint != "/workout" {
		t.Errorf("list = %+v", list)
	}
}
