package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// State is the session's authentication state.
type State int

const (
	Anonymous State = iota
	Authenticating
	Authenticated
)

func (s State) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Session owns the identity (username, token) and the active channel.
// Identity is created by a successful Login and immutable afterwards.
type Session struct {
	mu       sync.Mutex
	state    State
	username string
	token    string
	channel  string

	api API
	rt  Realtime
}

// NewSession creates an anonymous session on the default channel.
func NewSession(api API, rt Realtime) *Session {
	return &Session{api: api, rt: rt, channel: DefaultChannel}
}

// Login exchanges the username for a credential and announces the user on
// the active channel. On failure the session stays anonymous.
func (s *Session) Login(ctx context.Context, username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return ErrEmptyUsername
	}

	s.mu.Lock()
	switch s.state {
	case Authenticating:
		s.mu.Unlock()
		return ErrLoginInProgress
	case Authenticated:
		s.mu.Unlock()
		return ErrAlreadyAuthenticated
	}
	s.state = Authenticating
	channel := s.channel
	s.mu.Unlock()

	token, err := s.api.Login(ctx, username)
	if err != nil {
		s.mu.Lock()
		s.state = Anonymous
		s.mu.Unlock()
		return &AuthError{Username: username, Err: err}
	}

	s.mu.Lock()
	s.state = Authenticated
	s.username = username
	s.token = token
	s.mu.Unlock()
	log.Debug().Str("user", username).Str("channel", channel).Msg("[chat] authenticated")

	if err := s.rt.Join(ctx, channel, username); err != nil {
		return fmt.Errorf("join %s: %w", channel, err)
	}
	return nil
}

// SetChannel switches the active channel and reports whether it changed.
func (s *Session) SetChannel(channel string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if channel == "" || channel == s.channel {
		return false
	}
	s.channel = channel
	return true
}

// State returns the current authentication state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Username returns the identity's username, empty while anonymous.
func (s *Session) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}

// Token returns the opaque credential, empty while anonymous.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Channel returns the active channel.
func (s *Session) Channel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channel
}
