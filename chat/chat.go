// Package chat implements the client-side chat session core: identity and
// channel selection, history loading, the live message feed, the composer
// and file attachments. It holds no transport of its own; the realtime and
// request/response collaborators are injected at construction and scoped to
// the session lifetime.
package chat

import (
	"context"
	"io"
)

// DefaultChannel is the channel a fresh session starts in.
const DefaultChannel = "general"

// DefaultChannels is the channel list a client offers before the server
// tells it otherwise. Channels are an open set; these are just the defaults.
var DefaultChannels = []string{"general", "random"}

// Realtime is the push transport the session emits into. Implementations
// must be safe for concurrent use.
type Realtime interface {
	// Join announces the user on a channel so the collaborator scopes
	// delivery to it.
	Join(ctx context.Context, channel, username string) error
	// SendMessage emits an outgoing message. The message becomes visible
	// locally only once the collaborator echoes it back.
	SendMessage(ctx context.Context, msg Message) error
	// SendTyping reports the user's composing state on a channel.
	SendTyping(ctx context.Context, channel, username string, typing bool) error
}

// API is the request/response collaborator: credential exchange, channel
// history and file upload.
type API interface {
	Login(ctx context.Context, username string) (token string, err error)
	History(ctx context.Context, channel string) ([]Message, error)
	// Upload stores the file contents and returns the hosted URL.
	Upload(ctx context.Context, filename string, r io.Reader) (url string, err error)
}

// EventType discriminates pushed realtime events.
type EventType string

const (
	EventMessage EventType = "message"
	EventSystem  EventType = "system"
	EventTyping  EventType = "typing"
)

// Event is one pushed notification from the realtime collaborator.
type Event struct {
	Type EventType

	// Message is set for EventMessage.
	Message Message

	// Text is set for EventSystem.
	Text string

	// Channel, Username and Typing are set for EventTyping; Channel is
	// also set for EventSystem when the notice is channel-scoped.
	Channel  string
	Username string
	Typing   bool
}
