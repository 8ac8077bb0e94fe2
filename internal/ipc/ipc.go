// Package ipc is the control channel between orchestra-ctl and the daemon:
// one JSON request and one JSON response per unix socket connection.
package ipc

import (
	"encoding/json"
	"errors"
	"fmt"
	log "log/slog"
	"net"
	"os"
	"time"
)

const DefaultSocketPath = "/tmp/orchestra.sock"

const (
	CmdListen       = "listen"
	CmdStop         = "stop"
	CmdToggle       = "toggle"
	CmdSay          = "say"
	CmdTrigger      = "trigger"
	CmdStatus       = "status"
	CmdHealth       = "health"
	CmdAutomations  = "automations"
	CmdCancelSpeech = "cancel-speech"
)

type Request struct {
	Cmd     string `json:"cmd"`
	Text    string `json:"text,omitempty"`
	Trigger string `json:"trigger,omitempty"`
	Sub     string `json:"sub,omitempty"`
}

type Response struct {
	OK       bool            `json:"ok"`
	Error    string          `json:"error,omitempty"`
	Snapshot json.RawMessage `json:"snapshot,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// Fail builds an error response.
func Fail(err error) Response {
	return Response{Error: err.Error()}
}

type Handler func(Request) Response

type Server struct {
	path string
	ln   net.Listener
}

// StartServer listens on path, replacing a stale socket, and serves each
// connection with handler until Close.
func StartServer(path string, handler Handler) (*Server, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}

	s := &Server{path: path, ln: ln}
	go s.serve(handler)
	return s, nil
}

func (s *Server) serve(handler Handler) {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Warn("Accept failed", "err", err)
			continue
		}
		go handleConn(conn, handler)
	}
}

func (s *Server) Close() error {
	err := s.ln.Close()
	os.Remove(s.path)
	return err
}

func handleConn(conn net.Conn, handler Handler) {
	defer conn.Close()

	var req Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		log.Debug("Bad control request", "err", err)
		_ = json.NewEncoder(conn).Encode(Fail(fmt.Errorf("decode request: %w", err)))
		return
	}

	log.Debug("Control request", "cmd", req.Cmd)
	if err := json.NewEncoder(conn).Encode(handler(req)); err != nil {
		log.Warn("Failed to write control response", "err", err)
	}
}

// Send delivers req to the daemon at path and waits for its response.
func Send(path string, req Request, timeout time.Duration) (Response, error) {
	conn, err := net.DialTimeout("unix", path, timeout)
	if err != nil {
		return Response{}, err
	}
	defer conn.Close()

	if timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(timeout))
	}

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return Response{}, fmt.Errorf("send: %w", err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}
	return resp, nil
}
