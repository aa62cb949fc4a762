package realtime

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/minichat/chat"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = 30 * time.Second
	sendBufferSize = 64
)

// ErrConnClosed is returned for emits after the connection has gone away.
var ErrConnClosed = errors.New("realtime connection closed")

var _ chat.Realtime = (*Conn)(nil)

// Conn is a websocket-backed chat.Realtime. Received frames are delivered
// on Events in strict arrival order; outgoing frames are queued on a
// buffered channel drained by a single write loop.
type Conn struct {
	ws     *websocket.Conn
	send   chan Envelope
	events chan chat.Event
	done   chan struct{}
	closed atomic.Bool
}

// Dial connects to a realtime endpoint (ws:// or wss://).
func Dial(ctx context.Context, url string) (*Conn, error) {
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, url, http.Header{})
	if err != nil {
		return nil, err
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	c := &Conn{
		ws:     ws,
		send:   make(chan Envelope, sendBufferSize),
		events: make(chan chat.Event, sendBufferSize),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	go c.writeLoop()
	return c, nil
}

// Events is the stream of pushed notifications. It is closed when the
// connection tears down.
func (c *Conn) Events() <-chan chat.Event {
	return c.events
}

// Join implements chat.Realtime.
func (c *Conn) Join(ctx context.Context, channel, username string) error {
	return c.enqueue(ctx, Envelope{Type: TypeJoin, Channel: channel, Username: username})
}

// SendMessage implements chat.Realtime.
func (c *Conn) SendMessage(ctx context.Context, msg chat.Message) error {
	return c.enqueue(ctx, MessageEnvelope(msg))
}

// SendTyping implements chat.Realtime.
func (c *Conn) SendTyping(ctx context.Context, channel, username string, typing bool) error {
	return c.enqueue(ctx, Envelope{Type: TypeTyping, Channel: channel, Username: username, Typing: typing})
}

func (c *Conn) enqueue(ctx context.Context, env Envelope) error {
	if c.closed.Load() {
		return ErrConnClosed
	}
	select {
	case c.send <- env:
		return nil
	case <-c.done:
		return ErrConnClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Conn) readLoop() {
	// events is closed here and only here, once the loop can no longer send
	defer func() {
		c.teardown()
		close(c.events)
	}()
	c.ws.SetReadLimit(1 << 20)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		var env Envelope
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		if err := c.ws.ReadJSON(&env); err != nil {
			log.Debug().Err(err).Msg("[realtime] read")
			return
		}
		ev, ok := env.Event()
		if !ok {
			log.Debug().Str("type", env.Type).Msg("[realtime] frame ignored")
			continue
		}
		select {
		case c.events <- ev:
		case <-c.done:
			return
		}
	}
}

func (c *Conn) writeLoop() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.teardown()
	}()
	for {
		select {
		case env := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(env); err != nil {
				log.Debug().Err(err).Msg("[realtime] write")
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *Conn) teardown() {
	if c.closed.Swap(true) {
		return
	}
	close(c.done)
	_ = c.ws.Close()
}

// Close tears the connection down. Safe to call more than once.
func (c *Conn) Close() error {
	c.teardown()
	return nil
}
