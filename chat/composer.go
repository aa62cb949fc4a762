package chat

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// Composer holds the in-progress outgoing message text and derives typing
// notifications from edits.
type Composer struct {
	mu   sync.Mutex
	buf  string
	sess *Session
	rt   Realtime
}

// NewComposer creates an empty composer bound to the session's identity and
// active channel.
func NewComposer(sess *Session, rt Realtime) *Composer {
	return &Composer{sess: sess, rt: rt}
}

// Update replaces the buffer and reports the composing state. The signal is
// level-triggered: every edit re-emits whether the buffer is non-empty.
func (c *Composer) Update(ctx context.Context, text string) error {
	c.mu.Lock()
	c.buf = text
	c.mu.Unlock()
	return c.rt.SendTyping(ctx, c.sess.Channel(), c.sess.Username(), text != "")
}

// Send emits the buffered text as a message, clears the buffer and reports
// typing stopped. An empty buffer is a no-op: nothing is emitted and the
// buffer is untouched. The sent message becomes visible only when the
// collaborator echoes it back. Once the message is accepted the send has
// succeeded; a failed typing-stop afterwards is logged, not returned.
func (c *Composer) Send(ctx context.Context) error {
	c.mu.Lock()
	text := c.buf
	c.mu.Unlock()
	if text == "" {
		return nil
	}

	channel, username := c.sess.Channel(), c.sess.Username()
	msg := Message{Channel: channel, Username: username, Text: text, Kind: KindText}
	if err := c.rt.SendMessage(ctx, msg); err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	c.mu.Lock()
	c.buf = ""
	c.mu.Unlock()
	if err := c.rt.SendTyping(ctx, channel, username, false); err != nil {
		log.Debug().Err(err).Msg("[chat] typing stop after send")
	}
	return nil
}

// Text returns the current buffer.
func (c *Composer) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf
}
