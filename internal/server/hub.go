package server

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/minichat/chat"
	"github.com/gosuda/minichat/realtime"
)

// hub fans realtime frames out to connected sessions and keeps a bounded
// per-channel backlog that doubles as the history the REST endpoint serves.
type hub struct {
	mu         sync.RWMutex
	sessions   map[*wsSession]struct{}
	backlog    map[string][]chat.Message
	maxBacklog int
	store      *Store
	wg         sync.WaitGroup
}

func newHub() *hub {
	return &hub{
		sessions:   map[*wsSession]struct{}{},
		backlog:    map[string][]chat.Message{},
		maxBacklog: 100,
	}
}

// attachStore connects a persistent store; messages broadcast after this
// point are appended to it.
func (h *hub) attachStore(s *Store) {
	h.mu.Lock()
	h.store = s
	h.mu.Unlock()
}

// bootstrap preloads a channel's backlog, typically from the store at boot.
func (h *hub) bootstrap(channel string, msgs []chat.Message) {
	h.mu.Lock()
	h.backlog[channel] = append(h.backlog[channel], msgs...)
	h.mu.Unlock()
}

// history returns the channel's retained messages, oldest first.
func (h *hub) history(channel string) []chat.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]chat.Message(nil), h.backlog[channel]...)
}

// channels returns every channel the hub has seen, for the channel list.
func (h *hub) channels() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.backlog))
	for ch := range h.backlog {
		out = append(out, ch)
	}
	return out
}

func (h *hub) register(s *wsSession) {
	h.mu.Lock()
	h.sessions[s] = struct{}{}
	h.mu.Unlock()
	h.wg.Add(1)
}

func (h *hub) unregister(s *wsSession) {
	h.mu.Lock()
	_, ok := h.sessions[s]
	delete(h.sessions, s)
	h.mu.Unlock()
	if ok {
		h.wg.Done()
	}
}

// sessionsOn snapshots the sessions active on a channel.
func (h *hub) sessionsOn(channel string, except *wsSession) []*wsSession {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*wsSession, 0, len(h.sessions))
	for s := range h.sessions {
		if s == except {
			continue
		}
		if s.activeChannel() == channel {
			out = append(out, s)
		}
	}
	return out
}

// broadcastMessage retains, persists and fans a message out to every
// session on its channel, the sender included: a sender sees its own
// message only through this echo.
func (h *hub) broadcastMessage(m chat.Message) {
	h.mu.Lock()
	h.backlog[m.Channel] = append(h.backlog[m.Channel], m)
	if h.maxBacklog > 0 && len(h.backlog[m.Channel]) > h.maxBacklog {
		msgs := h.backlog[m.Channel]
		copy(msgs, msgs[len(msgs)-h.maxBacklog:])
		h.backlog[m.Channel] = msgs[:h.maxBacklog]
	}
	store := h.store
	h.mu.Unlock()

	if store != nil {
		if err := store.Append(m.Channel, m); err != nil {
			log.Debug().Err(err).Msg("[hub] persist message")
		}
	}
	env := realtime.MessageEnvelope(m)
	for _, s := range h.sessionsOn(m.Channel, nil) {
		s.push(env)
	}
}

// broadcastSystem emits an ephemeral notice to a channel. Notices are not
// retained; clients stamp and display them on receipt.
func (h *hub) broadcastSystem(channel, text string) {
	env := realtime.Envelope{Type: realtime.TypeSystem, Channel: channel, Text: text}
	for _, s := range h.sessionsOn(channel, nil) {
		s.push(env)
	}
}

// broadcastTyping relays a composing state to the channel, excluding the
// sender.
func (h *hub) broadcastTyping(channel, username string, typing bool, from *wsSession) {
	env := realtime.Envelope{Type: realtime.TypeTyping, Channel: channel, Username: username, Typing: typing}
	for _, s := range h.sessionsOn(channel, from) {
		s.push(env)
	}
}

// closeAll force-closes every session, used during shutdown.
func (h *hub) closeAll() {
	h.mu.RLock()
	sessions := make([]*wsSession, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()
	for _, s := range sessions {
		s.close()
	}
}

// wait blocks until every session handler has finished.
func (h *hub) wait() {
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		log.Warn().Msg("[hub] shutdown wait timed out")
	}
}
