package server

import (
	"encoding/json"
	"net/http"

	"github.com/zeusync/behaviour/internal/core/observability/log"
)

type health struct {
	Status string `json:"status"`
	Agents int    `json:"agents"`
	Ticks  uint64 `json:"ticks"`
}

type errorBody struct {
	Error string `json:"error"`
}

// Handler returns the routed handler, with token auth applied when configured.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /agents", s.handleAgents)
	mux.HandleFunc("GET /agents/{id}", s.handleAgent)
	mux.HandleFunc("GET /tree", s.handleTree)
	mux.Handle("GET /metrics", s.exporter.Handler())
	mux.HandleFunc("GET /ws", s.hub.ServeWS)
	return TokenAuth(s.config.Token, mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, health{Status: "ok", Agents: s.inspector.Len(), Ticks: s.inspector.Ticks()})
}

func (s *Server) handleAgents(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.inspector.Snapshot())
}

func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.inspector.Agent(r.PathValue("id"))
	if !ok {
		s.writeJSON(w, http.StatusNotFound, errorBody{Error: "agent not found"})
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleTree(w http.ResponseWriter, _ *http.Request) {
	tmpl := s.inspector.Template()
	if tmpl == nil {
		s.writeJSON(w, http.StatusNotFound, errorBody{Error: "no template"})
		return
	}
	s.writeJSON(w, http.StatusOK, tmpl.Definition())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("Failed to write response", log.Error(err))
	}
}
