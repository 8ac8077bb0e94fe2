// Package bus bridges the orchestrator onto a websocket message bus: state
// snapshots go out, typed commands come in.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	log "log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"orchestra/internal/orchestra"
)

const (
	KindCommand = "command"
	KindState   = "state"
	KindError   = "error"
)

type Message struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Kind    string `json:"kind"`
	Content string `json:"content"`
}

type Core interface {
	SubmitText(ctx context.Context, text string) error
	Snapshot() orchestra.Snapshot
	Changes() <-chan struct{}
}

type Bridge struct {
	url       string
	name      string
	reconnect time.Duration
	core      Core

	wmu  sync.Mutex
	conn *websocket.Conn
}

func Dial(url, name string, reconnect time.Duration, core Core) (*Bridge, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial bus: %w", err)
	}
	if reconnect <= 0 {
		reconnect = time.Second
	}

	log.Info("Connected to bus", "url", url)
	return &Bridge{url: url, name: name, reconnect: reconnect, core: core, conn: conn}, nil
}

// Run serves the bus until ctx is done, redialing dropped connections.
func (b *Bridge) Run(ctx context.Context) error {
	go b.publish(ctx)
	go func() {
		<-ctx.Done()
		b.wmu.Lock()
		b.conn.Close()
		b.wmu.Unlock()
	}()

	b.send(b.state())
	for {
		msg, err := b.read()
		if err == nil {
			b.handle(ctx, msg)
			continue
		}
		if ctx.Err() != nil {
			return nil
		}

		var syntax *json.SyntaxError
		if errors.As(err, &syntax) {
			log.Warn("Malformed bus message", "err", err)
			continue
		}

		log.Warn("Bus connection lost", "err", err)
		if !b.redial(ctx) {
			return nil
		}
		b.send(b.state())
	}
}

func (b *Bridge) handle(ctx context.Context, msg Message) {
	if msg.Kind != KindCommand || (msg.To != "" && msg.To != b.name) {
		return
	}

	log.Info("Bus command", "from", msg.From, "text", msg.Content)
	if err := b.core.SubmitText(ctx, msg.Content); err != nil {
		b.send(Message{From: b.name, To: msg.From, Kind: KindError, Content: err.Error()})
	}
}

func (b *Bridge) publish(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.core.Changes():
			b.send(b.state())
		}
	}
}

func (b *Bridge) state() Message {
	data, err := json.Marshal(b.core.Snapshot())
	if err != nil {
		log.Error("Failed to encode snapshot", "err", err)
		return Message{}
	}
	return Message{From: b.name, Kind: KindState, Content: string(data)}
}

func (b *Bridge) read() (Message, error) {
	b.wmu.Lock()
	conn := b.conn
	b.wmu.Unlock()

	_, data, err := conn.ReadMessage()
	if err != nil {
		return Message{}, err
	}

	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, err
	}
	return m, nil
}

func (b *Bridge) send(m Message) {
	if m.Kind == "" {
		return
	}
	data, err := json.Marshal(m)
	if err != nil {
		return
	}

	b.wmu.Lock()
	defer b.wmu.Unlock()
	if err := b.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Debug("Bus write failed", "kind", m.Kind, "err", err)
	}
}

func (b *Bridge) redial(ctx context.Context) bool {
	for {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, b.url, nil)
		if err == nil {
			b.wmu.Lock()
			b.conn.Close()
			b.conn = conn
			b.wmu.Unlock()
			if ctx.Err() != nil {
				conn.Close()
				return false
			}
			log.Info("Reconnected to bus", "url", b.url)
			return true
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(b.reconnect):
		}
	}
}
