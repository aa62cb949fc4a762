package chat

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// TypingKey identifies one composing user in one channel.
type TypingKey struct {
	Channel  string
	Username string
}

// Feed owns the displayed message sequence and the typing set. It is the
// only writer of both: pushed events are folded in through Apply, and
// LoadHistory replaces the sequence wholesale on channel switches.
type Feed struct {
	mu     sync.Mutex
	api    API
	msgs   []Message
	typing map[TypingKey]struct{}

	// gen tags each history fetch; a completion whose generation is no
	// longer current lost the race to a later switch and is discarded.
	gen uint64

	notify func()
}

// NewFeed creates an empty feed backed by the given history API.
func NewFeed(api API) *Feed {
	return &Feed{api: api, typing: map[TypingKey]struct{}{}}
}

// SetNotify registers a hook invoked after every mutation. UIs use it to
// schedule a redraw. Must be set before the event loop starts.
func (f *Feed) SetNotify(fn func()) {
	f.mu.Lock()
	f.notify = fn
	f.mu.Unlock()
}

func (f *Feed) changed() {
	f.mu.Lock()
	fn := f.notify
	f.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// LoadHistory fetches the ordered backlog for a channel and replaces the
// current sequence with it. A fetch that resolves after a newer LoadHistory
// call is dropped on the floor. On error the sequence is left untouched.
func (f *Feed) LoadHistory(ctx context.Context, channel string) error {
	f.mu.Lock()
	f.gen++
	gen := f.gen
	f.mu.Unlock()

	msgs, err := f.api.History(ctx, channel)
	if err != nil {
		return fmt.Errorf("load history %s: %w", channel, err)
	}

	f.mu.Lock()
	if gen != f.gen {
		f.mu.Unlock()
		log.Debug().Str("channel", channel).Msg("[chat] stale history response discarded")
		return nil
	}
	f.msgs = append([]Message(nil), msgs...)
	f.mu.Unlock()
	f.changed()
	return nil
}

// Apply folds one pushed event into the feed. Events are processed strictly
// in arrival order; messages are appended without re-sorting or
// de-duplication, trusting the collaborator's delivery.
func (f *Feed) Apply(ev Event) {
	switch ev.Type {
	case EventMessage:
		f.mu.Lock()
		f.msgs = append(f.msgs, ev.Message)
		f.mu.Unlock()
	case EventSystem:
		m := Message{
			ID:       "sys-" + uuid.NewString(),
			Channel:  ev.Channel,
			Username: SystemUser,
			Text:     ev.Text,
			Kind:     KindText,
			TS:       time.Now().UTC(),
		}
		f.mu.Lock()
		f.msgs = append(f.msgs, m)
		f.mu.Unlock()
	case EventTyping:
		key := TypingKey{Channel: ev.Channel, Username: ev.Username}
		f.mu.Lock()
		if ev.Typing {
			f.typing[key] = struct{}{}
		} else {
			delete(f.typing, key)
		}
		f.mu.Unlock()
	default:
		log.Debug().Str("type", string(ev.Type)).Msg("[chat] unknown event ignored")
		return
	}
	f.changed()
}

// Messages returns a snapshot of the displayed sequence.
func (f *Feed) Messages() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Message(nil), f.msgs...)
}

// TypingUsers returns the sorted usernames currently composing in a channel.
func (f *Feed) TypingUsers(channel string) []string {
	f.mu.Lock()
	users := make([]string, 0, len(f.typing))
	for key := range f.typing {
		if key.Channel == channel {
			users = append(users, key.Username)
		}
	}
	f.mu.Unlock()
	sort.Strings(users)
	return users
}
