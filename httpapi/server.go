package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/jpeg"
	"io"
	"io/fs"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/streamfx/schema"
)

// Controller is the session controller surface the API drives.
type Controller interface {
	Toggle(ctx context.Context) (schema.SessionState, error)
	ToggleFrom(ctx context.Context, observed schema.SessionState) (schema.SessionState, error)
	Snapshot() schema.SessionSnapshot
}

// EventSource delivers controller state events.
type EventSource interface {
	Subscribe() (<-chan schema.StateEvent, func())
}

// HistorySource lists finished sessions, newest first.
type HistorySource interface {
	Recent(n int) []schema.SessionRecord
}

// FrameSource returns the last frame presented into a window.
type FrameSource interface {
	Latest(id schema.WindowID) (schema.Frame, bool)
}

// Server serves the preview toggle API and page.
type Server struct {
	cfg      Config
	ctrl     Controller
	events   EventSource
	history  HistorySource
	frames   FrameSource
	basePath string
}

// NewServer constructs an HTTP server. events, history and frames may be nil;
// the matching endpoints then report 404.
func NewServer(cfg Config, ctrl Controller, events EventSource, history HistorySource, frames FrameSource) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaultHistoryLimit
	}
	if cfg.JPEGQuality <= 0 || cfg.JPEGQuality > 100 {
		cfg.JPEGQuality = defaultJPEGQuality
	}
	return &Server{
		cfg:      cfg,
		ctrl:     ctrl,
		events:   events,
		history:  history,
		frames:   frames,
		basePath: normalizeBasePath(cfg.BasePath),
	}
}

// Config returns the effective configuration.
func (s *Server) Config() Config {
	return s.cfg
}

// Handler returns an http.Handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/toggle", s.handleToggle)
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/api/stream", s.handleStream)
	mux.HandleFunc("/preview.jpg", s.handlePreview)
	return mountAt(s.basePath, withRequestLogging(mux))
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	data, err := fs.ReadFile(assetsFS, "index.html")
	if err != nil {
		http.Error(w, "index not found", http.StatusInternalServerError)
		return
	}
	http.ServeContent(w, r, "index.html", time.Time{}, bytes.NewReader(data))
}

// ToggleRequest is the optional POST /api/toggle body. From makes the toggle
// conditional on the state the client last saw.
type ToggleRequest struct {
	From schema.SessionState `json:"from,omitempty"`
}

// ToggleResponse is returned by POST /api/toggle.
type ToggleResponse struct {
	State    schema.SessionState    `json:"state"`
	Snapshot schema.SessionSnapshot `json:"snapshot"`
	Error    string                 `json:"error,omitempty"`
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	var req ToggleRequest
	if err := decodeJSON(r.Body, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request: %w", err))
		return
	}
	log := pslog.Ctx(r.Context())
	var (
		state schema.SessionState
		err   error
	)
	if req.From != "" {
		state, err = s.ctrl.ToggleFrom(r.Context(), req.From)
	} else {
		state, err = s.ctrl.Toggle(r.Context())
	}
	resp := ToggleResponse{State: state, Snapshot: s.ctrl.Snapshot()}
	if err != nil {
		resp.Error = err.Error()
		status := toggleErrorStatus(err)
		log.Warn("http toggle failed", "from", req.From, "status", status, "err", err)
		writeJSON(w, status, resp)
		return
	}
	log.Debug("http toggle", "from", req.From, "state", state)
	writeJSON(w, http.StatusOK, resp)
}

func toggleErrorStatus(err error) int {
	switch {
	case errors.Is(err, schema.ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, schema.ErrWindowCreationFailed), errors.Is(err, schema.ErrControllerClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.Snapshot())
}

// HistoryResponse is returned by GET /api/history.
type HistoryResponse struct {
	Sessions []schema.SessionRecord `json:"sessions"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	if s.history == nil {
		writeError(w, http.StatusNotFound, errors.New("history disabled"))
		return
	}
	limit := parseInt(r.URL.Query().Get("limit"), s.cfg.HistoryLimit)
	sessions := s.history.Recent(limit)
	if sessions == nil {
		sessions = []schema.SessionRecord{}
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Sessions: sessions})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeError(w, http.StatusNotFound, errors.New("stream disabled"))
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("stream unsupported"))
		return
	}
	log := pslog.Ctx(r.Context())

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, unsubscribe := s.events.Subscribe()
	defer unsubscribe()

	_ = writeSSEvent(w, schema.StateEvent{
		Type:      schema.StateEventTransition,
		Snapshot:  s.ctrl.Snapshot(),
		Timestamp: time.Now().UTC(),
	})
	flusher.Flush()

	notify := r.Context().Done()
	log.Info("http stream opened")
	for {
		select {
		case <-notify:
			log.Info("http stream closed")
			return
		case event, ok := <-ch:
			if !ok {
				log.Info("http stream closed", "reason", "event source closed")
				return
			}
			_ = writeSSEvent(w, event)
			flusher.Flush()
		}
	}
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	if s.frames == nil {
		http.NotFound(w, r)
		return
	}
	snap := s.ctrl.Snapshot()
	if snap.State != schema.SessionActive || snap.WindowID == "" {
		writeError(w, http.StatusNotFound, errors.New("no active preview"))
		return
	}
	frame, ok := s.frames.Latest(snap.WindowID)
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("no frame presented yet"))
		return
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame.Image, &jpeg.Options{Quality: s.cfg.JPEGQuality}); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Frame-Seq", strconv.FormatUint(frame.Seq, 10))
	_, _ = w.Write(buf.Bytes())
}

func decodeJSON(body io.Reader, target any) error {
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	data, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeSSEvent(w http.ResponseWriter, event schema.StateEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(w, "data: %s\n\n", strings.TrimSpace(string(data)))
	return nil
}

func parseInt(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
