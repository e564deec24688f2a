// Package server exposes the generation pipeline over HTTP: a unary chat
// endpoint, an SSE streaming endpoint, and the model listing.
package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/modelmux/modelmux/pkg/dispatch"
	"github.com/modelmux/modelmux/pkg/fault"
	"github.com/modelmux/modelmux/pkg/model"
	"github.com/modelmux/modelmux/pkg/registry"
	"github.com/modelmux/modelmux/pkg/relay"
)

// Server wires pre-built routes around a dispatcher.
type Server struct {
	dispatcher *dispatch.Dispatcher
	reg        *registry.Registry
	log        *zap.Logger
	mux        *http.ServeMux
}

// New creates a Server with pre-wired routes.
func New(d *dispatch.Dispatcher, reg *registry.Registry, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	srv := &Server{dispatcher: d, reg: reg, log: log, mux: http.NewServeMux()}
	srv.routes()
	return srv
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/chat", s.handleChat)
	s.mux.HandleFunc("/api/chat/stream", s.handleChatStream)
	s.mux.HandleFunc("/api/models", s.handleModels)
	s.mux.HandleFunc("/healthz", s.handleHealth)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe starts the HTTP server on addr.
func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s)
}

// chatPayload is the inbound request shape. Message images arrive base64
// encoded and decode straight into the []byte field.
type chatPayload struct {
	Messages []model.Message `json:"messages"`
	Model    string          `json:"model"`
	Options  model.Options   `json:"options"`
}

func (p *chatPayload) toRequest() *model.Request {
	return &model.Request{Messages: p.Messages, Model: p.Model, Options: p.Options}
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()
	var payload chatPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if len(payload.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages are required")
		return
	}

	result, err := s.dispatcher.Execute(r.Context(), payload.toRequest())
	if err != nil {
		s.writeDispatchError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()
	var payload chatPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if len(payload.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages are required")
		return
	}
	sink, err := newSSESink(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	rel := relay.New(sink, relay.DefaultChunkSize)
	if err := s.dispatcher.ExecuteStream(r.Context(), payload.toRequest(), rel); err != nil {
		// Headers are gone; the dispatcher already emitted an error frame
		// where the protocol allows one. Log and close.
		s.log.Warn("stream ended with error", zap.Error(err))
	}
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	type listedModel struct {
		ID             string `json:"id"`
		Provider       string `json:"provider"`
		MaxTokens      int    `json:"maxTokens,omitempty"`
		SupportsVision bool   `json:"supportsVision"`
		Available      bool   `json:"available"`
	}
	entries := s.reg.List()
	out := make([]listedModel, 0, len(entries))
	for _, e := range entries {
		out = append(out, listedModel{
			ID:             e.ID,
			Provider:       e.Kind.String(),
			MaxTokens:      e.MaxTokens,
			SupportsVision: e.SupportsVision,
			Available:      e.Available,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": out})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeDispatchError maps pipeline errors onto HTTP. Only auth failures
// reach here by design; anything else is a genuine internal error.
func (s *Server) writeDispatchError(w http.ResponseWriter, r *http.Request, err error) {
	var f *fault.Failure
	if errors.As(err, &f) && f.Class == fault.ClassAuth {
		writeError(w, http.StatusUnauthorized, f.Message)
		return
	}
	if errors.Is(err, r.Context().Err()) && r.Context().Err() != nil {
		return
	}
	s.log.Error("chat request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
