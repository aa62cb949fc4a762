package chat

import (
	"context"
	"io"
	"sync"
)

// fakeAPI is an in-memory API collaborator. Histories are keyed by channel;
// a gate channel, when set, blocks History until released to exercise
// overlapping fetches, and a starts channel, when set, is closed as the
// fetch enters so a test can order overlapping loads deterministically.
type fakeAPI struct {
	mu sync.Mutex

	token    string
	loginErr error
	logins   []string

	histories  map[string][]Message
	historyErr error
	gates      map[string]chan struct{}
	starts     map[string]chan struct{}

	uploadURL string
	uploadErr error
	uploads   []string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		token:     "tok-1",
		histories: map[string][]Message{},
		gates:     map[string]chan struct{}{},
		starts:    map[string]chan struct{}{},
	}
}

func (a *fakeAPI) Login(ctx context.Context, username string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logins = append(a.logins, username)
	if a.loginErr != nil {
		return "", a.loginErr
	}
	return a.token, nil
}

func (a *fakeAPI) History(ctx context.Context, channel string) ([]Message, error) {
	a.mu.Lock()
	gate := a.gates[channel]
	if started := a.starts[channel]; started != nil {
		close(started)
		delete(a.starts, channel)
	}
	a.mu.Unlock()
	if gate != nil {
		<-gate
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.historyErr != nil {
		return nil, a.historyErr
	}
	return append([]Message(nil), a.histories[channel]...), nil
}

func (a *fakeAPI) Upload(ctx context.Context, filename string, r io.Reader) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.uploads = append(a.uploads, filename)
	if a.uploadErr != nil {
		return "", a.uploadErr
	}
	return a.uploadURL, nil
}

type joinCall struct {
	channel  string
	username string
}

type typingCall struct {
	channel  string
	username string
	typing   bool
}

// fakeRealtime records every emit in order.
type fakeRealtime struct {
	mu       sync.Mutex
	joins    []joinCall
	messages []Message
	typings  []typingCall

	sendErr   error
	typingErr error
}

func (r *fakeRealtime) Join(ctx context.Context, channel, username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.joins = append(r.joins, joinCall{channel, username})
	return nil
}

func (r *fakeRealtime) SendMessage(ctx context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sendErr != nil {
		return r.sendErr
	}
	r.messages = append(r.messages, msg)
	return nil
}

func (r *fakeRealtime) SendTyping(ctx context.Context, channel, username string, typing bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.typingErr != nil {
		return r.typingErr
	}
	r.typings = append(r.typings, typingCall{channel, username, typing})
	return nil
}

func (r *fakeRealtime) emitCount() (joins, messages, typings int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.joins), len(r.messages), len(r.typings)
}
