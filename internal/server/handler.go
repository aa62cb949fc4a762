// Package server is a reference backend for the minichat client: jwt
// login, per-channel history, multipart file upload and a websocket fan-out
// hub. Any backend honoring the same surface works; the client only knows
// the collaborator contracts.
package server

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/minichat/chat"
)

const maxUploadBytes = 32 << 20

// Config carries the server's knobs.
type Config struct {
	JWTSecret string
	UploadDir string
	// Channels seeds the channel list; channels appear implicitly once
	// they hold messages.
	Channels []string
}

// Server owns the hub and the HTTP surface.
type Server struct {
	hub       *hub
	tokens    *TokenManager
	uploadDir string
	channels  []string
}

// New creates a server. The upload directory is created on demand.
func New(cfg Config) *Server {
	channels := cfg.Channels
	if len(channels) == 0 {
		channels = chat.DefaultChannels
	}
	return &Server{
		hub:       newHub(),
		tokens:    NewTokenManager(cfg.JWTSecret),
		uploadDir: cfg.UploadDir,
		channels:  channels,
	}
}

// AttachStore wires a persistent store and preloads each known channel's
// recent backlog into the hub.
func (s *Server) AttachStore(store *Store) {
	stored, err := store.Channels()
	if err != nil {
		log.Warn().Err(err).Msg("[server] list stored channels")
	}
	seen := map[string]struct{}{}
	for _, ch := range append(append([]string(nil), s.channels...), stored...) {
		if _, ok := seen[ch]; ok {
			continue
		}
		seen[ch] = struct{}{}
		msgs, err := store.LoadRecent(ch, s.hub.maxBacklog)
		if err != nil {
			log.Warn().Err(err).Str("channel", ch).Msg("[server] load history")
			continue
		}
		if len(msgs) > 0 {
			s.hub.bootstrap(ch, msgs)
			log.Info().Int("count", len(msgs)).Str("channel", ch).Msg("[server] history loaded")
		}
	}
	s.hub.attachStore(store)
}

// Shutdown closes every live connection and waits for their handlers.
func (s *Server) Shutdown() {
	s.hub.closeAll()
	s.hub.wait()
}

// Handler builds the HTTP router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Post("/login", s.handleLogin)
	r.Get("/channels", s.handleChannels)
	r.Get("/channels/{channel}/messages", s.handleHistory)
	r.Post("/upload", s.handleUpload)
	r.Get("/files/*", s.handleFiles)
	r.Get("/ws", s.handleWS)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	username := SanitizeUsername(req.Username)
	if username == "" {
		writeError(w, http.StatusBadRequest, "username required")
		return
	}
	token, err := s.tokens.Issue(username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "issue token")
		return
	}
	log.Info().Str("user", username).Msg("[server] login")
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleChannels(w http.ResponseWriter, _ *http.Request) {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(s.channels))
	for _, ch := range append(append([]string(nil), s.channels...), s.hub.channels()...) {
		if _, ok := seen[ch]; ok {
			continue
		}
		seen[ch] = struct{}{}
		out = append(out, ch)
	}
	sort.Strings(out)
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	channel := SanitizeChannel(chi.URLParam(r, "channel"))
	if channel == "" {
		writeError(w, http.StatusBadRequest, "invalid channel")
		return
	}
	msgs := s.hub.history(channel)
	if msgs == nil {
		msgs = []chat.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing credential")
		return
	}
	if _, err := s.tokens.Verify(token); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credential")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file provided")
		return
	}
	defer file.Close()

	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		writeError(w, http.StatusInternalServerError, "upload storage unavailable")
		return
	}
	// Server-chosen object name; the original filename only contributes
	// its extension.
	name := uuid.NewString() + strings.ToLower(filepath.Ext(header.Filename))
	dst, err := os.Create(filepath.Join(s.uploadDir, name))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store file")
		return
	}
	defer dst.Close()
	if _, err := io.Copy(dst, file); err != nil {
		writeError(w, http.StatusInternalServerError, "store file")
		return
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	url := scheme + "://" + r.Host + "/files/" + name
	log.Info().Str("file", name).Int64("size", r.ContentLength).Msg("[server] upload")
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	name := filepath.Base(strings.TrimPrefix(r.URL.Path, "/files/"))
	if name == "." || name == "/" {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, filepath.Join(s.uploadDir, name))
}
