package chat

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Client wires the session, feed, composer and uploader to one pair of
// collaborators and drives the realtime event loop.
type Client struct {
	Session  *Session
	Feed     *Feed
	Composer *Composer
	Uploader *Uploader

	rt Realtime
}

// NewClient builds a client around the injected collaborators.
func NewClient(api API, rt Realtime) *Client {
	sess := NewSession(api, rt)
	return &Client{
		Session:  sess,
		Feed:     NewFeed(api),
		Composer: NewComposer(sess, rt),
		Uploader: NewUploader(sess, api, rt),
		rt:       rt,
	}
}

// Login authenticates and then loads the active channel's history. The
// history trigger is deliberate: once on login, and again on every channel
// switch. A history failure degrades the feed but not the session, so it is
// logged rather than returned.
func (c *Client) Login(ctx context.Context, username string) error {
	if err := c.Session.Login(ctx, username); err != nil {
		return err
	}
	if err := c.Feed.LoadHistory(ctx, c.Session.Channel()); err != nil {
		log.Warn().Err(err).Msg("[chat] initial history load failed")
	}
	return nil
}

// SwitchChannel activates a channel, re-announces the user on it and
// replaces the feed with its history. Switching to the active channel is a
// no-op.
func (c *Client) SwitchChannel(ctx context.Context, channel string) error {
	if !c.Session.SetChannel(channel) {
		return nil
	}
	if err := c.rt.Join(ctx, channel, c.Session.Username()); err != nil {
		return err
	}
	return c.Feed.LoadHistory(ctx, channel)
}

// Run folds pushed events into the feed until the stream closes or the
// context is done. Events are applied strictly in arrival order.
func (c *Client) Run(ctx context.Context, events <-chan Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			c.Feed.Apply(ev)
		}
	}
}
