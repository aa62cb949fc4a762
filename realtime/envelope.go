// Package realtime carries chat events over a websocket. It implements the
// push collaborator the chat core is built against, and defines the wire
// envelope both ends of the connection speak.
package realtime

import (
	"time"

	"github.com/gosuda/minichat/chat"
)

// Frame types on the wire.
const (
	TypeJoin    = "join"
	TypeMessage = "message"
	TypeSystem  = "system"
	TypeTyping  = "typing"
)

// Envelope is the JSON frame for every realtime event, client- and
// server-side. Unused fields are omitted per frame type.
type Envelope struct {
	Type     string    `json:"type"`
	ID       string    `json:"id,omitempty"`
	Channel  string    `json:"channel,omitempty"`
	Username string    `json:"username,omitempty"`
	Text     string    `json:"text,omitempty"`
	Kind     string    `json:"kind,omitempty"`
	Filename string    `json:"filename,omitempty"`
	Typing   bool      `json:"typing,omitempty"`
	TS       time.Time `json:"ts,omitzero"`
}

// MessageEnvelope wraps an outgoing message in its wire frame.
func MessageEnvelope(msg chat.Message) Envelope {
	return Envelope{
		Type:     TypeMessage,
		ID:       msg.ID,
		Channel:  msg.Channel,
		Username: msg.Username,
		Text:     msg.Text,
		Kind:     string(msg.Kind),
		Filename: msg.Filename,
		TS:       msg.TS,
	}
}

// Message unpacks a message frame.
func (e Envelope) Message() chat.Message {
	return chat.Message{
		ID:       e.ID,
		Channel:  e.Channel,
		Username: e.Username,
		Text:     e.Text,
		Kind:     chat.Kind(e.Kind),
		Filename: e.Filename,
		TS:       e.TS,
	}
}

// Event maps a received frame to a chat event. The second return is false
// for frames the client does not consume (join, unknown types).
func (e Envelope) Event() (chat.Event, bool) {
	switch e.Type {
	case TypeMessage:
		return chat.Event{Type: chat.EventMessage, Message: e.Message()}, true
	case TypeSystem:
		return chat.Event{Type: chat.EventSystem, Channel: e.Channel, Text: e.Text}, true
	case TypeTyping:
		return chat.Event{Type: chat.EventTyping, Channel: e.Channel, Username: e.Username, Typing: e.Typing}, true
	}
	return chat.Event{}, false
}
