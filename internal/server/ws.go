package server

import (
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/minichat/chat"
	"github.com/gosuda/minichat/realtime"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = 30 * time.Second
	sendBufferSize = 64
)

var upgrader = websocket.Upgrader{
	CheckOrigin:      func(r *http.Request) bool { return true },
	ReadBufferSize:   1024,
	WriteBufferSize:  1024,
	HandshakeTimeout: 10 * time.Second,
}

// wsSession is one websocket participant. A session is anonymous until its
// first join frame names a user and channel.
type wsSession struct {
	hub    *hub
	conn   *websocket.Conn
	send   chan realtime.Envelope
	done   chan struct{}
	closed atomic.Bool

	mu       sync.Mutex
	channel  string
	username string
}

func (s *wsSession) activeChannel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channel
}

func (s *wsSession) identity() (channel, username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channel, s.username
}

// push enqueues a frame, dropping the oldest queued frame rather than
// blocking a slow consumer.
func (s *wsSession) push(env realtime.Envelope) {
	select {
	case s.send <- env:
	case <-s.done:
	default:
		select {
		case <-s.send:
		default:
		}
		select {
		case s.send <- env:
		case <-s.done:
		}
	}
}

func (s *wsSession) readLoop() {
	defer s.close()
	s.conn.SetReadLimit(1 << 20)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		var env realtime.Envelope
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
		if err := s.conn.ReadJSON(&env); err != nil {
			log.Debug().Err(err).Msg("[ws] read")
			return
		}
		s.handle(env)
	}
}

func (s *wsSession) handle(env realtime.Envelope) {
	switch env.Type {
	case realtime.TypeJoin:
		username := SanitizeUsername(env.Username)
		channel := SanitizeChannel(env.Channel)
		if username == "" || channel == "" {
			return
		}
		s.mu.Lock()
		prev := s.channel
		s.channel = channel
		s.username = username
		s.mu.Unlock()
		if prev == channel {
			return
		}
		log.Info().Str("user", username).Str("channel", channel).Msg("[ws] join")
		s.hub.broadcastSystem(channel, fmt.Sprintf("%s joined #%s", username, channel))

	case realtime.TypeMessage:
		channel, username := s.identity()
		if username == "" {
			return
		}
		text := SanitizeText(env.Text)
		if text == "" {
			return
		}
		kind := chat.Kind(env.Kind)
		if kind == "" {
			kind = chat.KindText
		}
		s.hub.broadcastMessage(chat.Message{
			ID:       uuid.NewString(),
			Channel:  channel,
			Username: username,
			Text:     text,
			Kind:     kind,
			Filename: SanitizeText(env.Filename),
			TS:       time.Now().UTC(),
		})

	case realtime.TypeTyping:
		channel, username := s.identity()
		if username == "" {
			return
		}
		s.hub.broadcastTyping(channel, username, env.Typing, s)

	default:
		log.Debug().Str("type", env.Type).Msg("[ws] frame ignored")
	}
}

func (s *wsSession) writeLoop() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		s.close()
	}()
	for {
		select {
		case env := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(env); err != nil {
				log.Debug().Err(err).Msg("[ws] write")
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.done:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"))
			return
		}
	}
}

func (s *wsSession) close() {
	if s.closed.Swap(true) {
		return
	}
	channel, username := s.identity()
	s.hub.unregister(s)
	close(s.done)
	_ = s.conn.Close()
	if username != "" {
		s.hub.broadcastSystem(channel, fmt.Sprintf("%s left #%s", username, channel))
	}
}

// handleWS upgrades the request and runs the session loops.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	sess := &wsSession{
		hub:  s.hub,
		conn: conn,
		send: make(chan realtime.Envelope, sendBufferSize),
		done: make(chan struct{}),
	}
	s.hub.register(sess)
	go sess.writeLoop()
	go sess.readLoop()
}
