package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/minichat/chat"
	"github.com/gosuda/minichat/httpapi"
	"github.com/gosuda/minichat/realtime"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	srv := New(Config{JWTSecret: "test-secret", UploadDir: t.TempDir()})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Shutdown()
		ts.Close()
	})
	return srv, ts
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func nextEvent(t *testing.T, c *realtime.Conn) chat.Event {
	t.Helper()
	select {
	case ev, ok := <-c.Events():
		require.True(t, ok, "event stream closed")
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("no event delivered")
		return chat.Event{}
	}
}

func assertNoEvent(t *testing.T, c *realtime.Conn) {
	t.Helper()
	select {
	case ev := <-c.Events():
		t.Fatalf("unexpected event: %+v", ev)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestLoginIssuesVerifiableToken(t *testing.T) {
	srv, ts := newTestServer(t)

	api := httpapi.NewClient(ts.URL)
	token, err := api.Login(context.Background(), "alice")
	require.NoError(t, err)

	username, err := srv.tokens.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", username)
}

func TestLoginEmptyUsername(t *testing.T) {
	_, ts := newTestServer(t)

	api := httpapi.NewClient(ts.URL)
	_, err := api.Login(context.Background(), "   ")
	var statusErr *httpapi.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.Code)
}

func TestUploadRequiresCredential(t *testing.T) {
	_, ts := newTestServer(t)

	api := httpapi.NewClient(ts.URL)
	_, err := api.Upload(context.Background(), "x.png", strings.NewReader("data"))
	var statusErr *httpapi.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.Code)
}

func TestUploadAndFetch(t *testing.T) {
	_, ts := newTestServer(t)
	ctx := context.Background()

	api := httpapi.NewClient(ts.URL)
	_, err := api.Login(ctx, "alice")
	require.NoError(t, err)

	url, err := api.Upload(ctx, "cat.png", strings.NewReader("pngbytes"))
	require.NoError(t, err)
	assert.Contains(t, url, "/files/")
	assert.True(t, strings.HasSuffix(url, ".png"), "object keeps the extension: %s", url)

	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "pngbytes", string(data))
}

func TestRealtimeFlow(t *testing.T) {
	_, ts := newTestServer(t)
	ctx := context.Background()

	alice, err := realtime.Dial(ctx, wsURL(ts))
	require.NoError(t, err)
	defer alice.Close()
	bob, err := realtime.Dial(ctx, wsURL(ts))
	require.NoError(t, err)
	defer bob.Close()

	require.NoError(t, alice.Join(ctx, "general", "alice"))
	ev := nextEvent(t, alice)
	require.Equal(t, chat.EventSystem, ev.Type)
	assert.Equal(t, "alice joined #general", ev.Text)

	require.NoError(t, bob.Join(ctx, "general", "bob"))
	ev = nextEvent(t, alice)
	assert.Equal(t, "bob joined #general", ev.Text)
	ev = nextEvent(t, bob)
	assert.Equal(t, "bob joined #general", ev.Text)

	// messages echo to the sender and carry server id and timestamp
	require.NoError(t, alice.SendMessage(ctx, chat.Message{
		Channel: "general", Username: "alice", Text: "hi all", Kind: chat.KindText,
	}))
	for _, c := range []*realtime.Conn{alice, bob} {
		ev = nextEvent(t, c)
		require.Equal(t, chat.EventMessage, ev.Type)
		assert.Equal(t, "hi all", ev.Message.Text)
		assert.Equal(t, "alice", ev.Message.Username)
		assert.Equal(t, "general", ev.Message.Channel)
		assert.NotEmpty(t, ev.Message.ID)
		assert.False(t, ev.Message.TS.IsZero())
	}

	// typing goes to everyone on the channel except the sender
	require.NoError(t, bob.SendTyping(ctx, "general", "bob", true))
	ev = nextEvent(t, alice)
	require.Equal(t, chat.EventTyping, ev.Type)
	assert.Equal(t, "bob", ev.Username)
	assert.True(t, ev.Typing)
	assertNoEvent(t, bob)

	// history holds the message but not the ephemeral notices
	api := httpapi.NewClient(ts.URL)
	msgs, err := api.History(ctx, "general")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi all", msgs[0].Text)
}

func TestChannelIsolation(t *testing.T) {
	_, ts := newTestServer(t)
	ctx := context.Background()

	alice, err := realtime.Dial(ctx, wsURL(ts))
	require.NoError(t, err)
	defer alice.Close()
	bob, err := realtime.Dial(ctx, wsURL(ts))
	require.NoError(t, err)
	defer bob.Close()

	require.NoError(t, alice.Join(ctx, "general", "alice"))
	nextEvent(t, alice) // own join notice
	require.NoError(t, bob.Join(ctx, "random", "bob"))
	nextEvent(t, bob) // own join notice

	require.NoError(t, bob.SendMessage(ctx, chat.Message{
		Channel: "random", Username: "bob", Text: "psst", Kind: chat.KindText,
	}))
	ev := nextEvent(t, bob)
	assert.Equal(t, "psst", ev.Message.Text)
	assertNoEvent(t, alice)

	api := httpapi.NewClient(ts.URL)
	msgs, err := api.History(ctx, "general")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestMessageSanitized(t *testing.T) {
	_, ts := newTestServer(t)
	ctx := context.Background()

	alice, err := realtime.Dial(ctx, wsURL(ts))
	require.NoError(t, err)
	defer alice.Close()
	require.NoError(t, alice.Join(ctx, "general", "alice"))
	nextEvent(t, alice)

	require.NoError(t, alice.SendMessage(ctx, chat.Message{
		Channel: "general", Username: "alice", Text: "hi\x00 there", Kind: chat.KindText,
	}))
	ev := nextEvent(t, alice)
	assert.Equal(t, "hi there", ev.Message.Text)
}
