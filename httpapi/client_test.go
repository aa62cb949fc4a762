package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/minichat/chat"
)

func TestClientLogin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/login", r.URL.Path)
		var req struct {
			Username string `json:"username"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "alice", req.Username)
		_ = json.NewEncoder(w).Encode(map[string]string{"token": "T"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	token, err := c.Login(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "T", token)
}

func TestClientLoginRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "nope"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.Login(context.Background(), "alice")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.Code)
	assert.Equal(t, "nope", statusErr.Message)
}

func TestClientHistory(t *testing.T) {
	want := []chat.Message{
		{ID: "1", Channel: "general", Username: "alice", Text: "hi", Kind: chat.KindText, TS: time.Now().UTC().Truncate(time.Second)},
		{ID: "2", Channel: "general", Username: "bob", Text: "hey", Kind: chat.KindText, TS: time.Now().UTC().Truncate(time.Second)},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/channels/general/messages", r.URL.Path)
		_ = json.NewEncoder(w).Encode(want)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	got, err := c.History(context.Background(), "general")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, "hey", got[1].Text)
}

func TestClientUpload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/upload", r.URL.Path)
		assert.Equal(t, "Bearer T", r.Header.Get("Authorization"))
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "cat.png", header.Filename)
		data, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, "pngbytes", string(data))
		_ = json.NewEncoder(w).Encode(map[string]string{"url": "http://x/y.png"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	c.token = "T"
	url, err := c.Upload(context.Background(), "cat.png", strings.NewReader("pngbytes"))
	require.NoError(t, err)
	assert.Equal(t, "http://x/y.png", url)
}

func TestClientErrorWithoutBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.History(context.Background(), "general")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusText(http.StatusInternalServerError), statusErr.Message)
}
