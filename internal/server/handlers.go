package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/raphaelgruber/chorus/internal/db"
	"github.com/raphaelgruber/chorus/internal/metrics"
	"github.com/raphaelgruber/chorus/internal/models"
)

const (
	defaultMessageLimit = 50
	maxMessageLimit     = 500
	maxBodyBytes        = 1 << 20
)

// PostMessageRequest is the body of POST /api/rooms/{roomID}/messages.
type PostMessageRequest struct {
	UserID  string `json:"user_id" validate:"required,max=128"`
	Content string `json:"content" validate:"required,max=4000"`
}

// JoinRoomRequest is the body of POST /api/rooms/{roomID}/participants.
type JoinRoomRequest struct {
	UserID string `json:"user_id" validate:"required,max=128"`
}

// AgentRequest is the body of POST /api/agents.
type AgentRequest struct {
	ID          string  `json:"id" validate:"omitempty,max=64"`
	Name        string  `json:"name" validate:"required,max=64"`
	Personality string  `json:"personality" validate:"required"`
	Voice       *string `json:"voice,omitempty"`
}

// StatsResponse is the body of GET /stats.
type StatsResponse struct {
	Metrics         metrics.Snapshot `json:"metrics"`
	Personas        int              `json:"personas"`
	PersonasLoaded  *time.Time       `json:"personas_loaded_at,omitempty"`
	Rooms           int              `json:"rooms"`
	PendingRechecks int              `json:"pending_rechecks"`
	Tasks           map[string]int   `json:"tasks"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Server) stats(w http.ResponseWriter, _ *http.Request) {
	resp := StatsResponse{
		Metrics: s.deps.Collector.Snapshot(),
		Tasks:   map[string]int{},
	}
	if s.deps.Personas != nil {
		resp.Personas = len(s.deps.Personas.All())
		if at := s.deps.Personas.LoadedAt(); !at.IsZero() {
			resp.PersonasLoaded = &at
		}
	}
	if s.deps.Rooms != nil {
		resp.Rooms = len(s.deps.Rooms.Rooms())
	}
	if o := s.deps.Orchestrator; o != nil {
		resp.PendingRechecks = o.PendingRechecks()
		for status, n := range o.Tasks().Counts() {
			resp.Tasks[string(status)] = n
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) websocket(w http.ResponseWriter, r *http.Request) {
	if s.deps.Hub == nil {
		s.writeError(w, http.StatusNotFound, "websocket fan-out disabled")
		return
	}
	if err := s.deps.Hub.ServeRoom(w, r, chi.URLParam(r, "roomID")); err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
	}
}

func (s *Server) listAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.deps.Store.QueryAgents(r.Context())
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, mapViews(agents, agentView))
}

func (s *Server) upsertAgent(w http.ResponseWriter, r *http.Request) {
	var req AgentRequest
	if !s.decode(w, r, &req) {
		return
	}
	agent, err := s.deps.Store.UpsertAgent(r.Context(), models.AgentInput{
		ID:          req.ID,
		Name:        req.Name,
		Personality: req.Personality,
		Voice:       req.Voice,
	})
	if err != nil {
		s.storeError(w, err)
		return
	}
	if err := s.deps.Personas.Reload(r.Context()); err != nil {
		s.logger.Warn("persona reload after upsert failed", "error", err)
	}
	s.writeJSON(w, http.StatusOK, agentView(*agent))
}

func (s *Server) reloadAgents(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Personas.Reload(r.Context()); err != nil {
		s.storeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"personas": len(s.deps.Personas.All())})
}

func (s *Server) listTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := s.deps.Store.QueryTemplates(r.Context())
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, mapViews(templates, templateView))
}

func (s *Server) getTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := s.deps.Store.GetTemplate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, templateView(*t))
}

func (s *Server) upsertTemplate(w http.ResponseWriter, r *http.Request) {
	var in models.TemplateInput
	if !s.decode(w, r, &in) {
		return
	}
	if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.Type) == "" {
		s.writeError(w, http.StatusBadRequest, "name and type are required")
		return
	}
	t, err := s.deps.Store.UpsertTemplate(r.Context(), in)
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, templateView(*t))
}

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	limit := defaultMessageLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxMessageLimit)
	}
	desc := r.URL.Query().Get("order") == "desc"

	msgs, err := s.deps.Store.QueryMessages(r.Context(), chi.URLParam(r, "roomID"), limit, desc)
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, mapViews(msgs, messageView))
}

func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	var req PostMessageRequest
	if !s.decode(w, r, &req) {
		return
	}
	msg, err := s.deps.Store.InsertMessage(r.Context(), chi.URLParam(r, "roomID"), req.UserID, req.Content)
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, messageView(*msg))
}

func (s *Server) listParticipants(w http.ResponseWriter, r *http.Request) {
	ps, err := s.deps.Store.QueryParticipants(r.Context(), chi.URLParam(r, "roomID"))
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, mapViews(ps, participantView))
}

func (s *Server) joinRoom(w http.ResponseWriter, r *http.Request) {
	var req JoinRoomRequest
	if !s.decode(w, r, &req) {
		return
	}
	p, err := s.deps.Store.JoinRoom(r.Context(), chi.URLParam(r, "roomID"), req.UserID)
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, participantView(*p))
}

func (s *Server) leaveRoom(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.LeaveRoom(r.Context(), chi.URLParam(r, "roomID"), chi.URLParam(r, "userID")); err != nil {
		s.storeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getGeneration(w http.ResponseWriter, r *http.Request) {
	g, err := s.deps.Store.GetGeneration(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, generationView(*g))
}

func (s *Server) renderGeneration(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	g, err := s.deps.Store.GetGeneration(ctx, chi.URLParam(r, "id"))
	if err != nil {
		s.storeError(w, err)
		return
	}

	var tmpl *models.Template
	if g.RenderMethod == models.RenderTemplate && g.TemplateID != nil {
		if tmpl, err = s.deps.Store.GetTemplate(ctx, *g.TemplateID); err != nil {
			s.storeError(w, err)
			return
		}
	}

	doc, err := s.deps.Renderer.RenderGeneration(*g, tmpl)
	if err != nil {
		s.logger.Error("render generation failed", "generation_id", g.GenerationIDString(), "error", err)
		s.writeError(w, http.StatusInternalServerError, "generation cannot be rendered")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Security-Policy", "sandbox allow-scripts; default-src 'none'; style-src 'unsafe-inline'; script-src 'unsafe-inline'; img-src data:")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(doc))
}

func (s *Server) listTasks(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Orchestrator == nil {
		s.writeJSON(w, http.StatusOK, []any{})
		return
	}
	s.writeJSON(w, http.StatusOK, s.deps.Orchestrator.Tasks().ListTasks())
}

// decode reads and validates a JSON body into v, writing a 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		var invalid *validator.InvalidValidationError
		if errors.As(err, &invalid) {
			return true
		}
		s.writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err.Error()
	}
	parts := make([]string, len(fieldErrs))
	for i, fe := range fieldErrs {
		parts[i] = strings.ToLower(fe.Field()) + " " + fe.Tag()
	}
	return "invalid request: " + strings.Join(parts, ", ")
}

// storeError maps persistence errors to status codes.
func (s *Server) storeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, db.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, db.ErrEntityAlreadyExists), errors.Is(err, db.ErrTransactionConflict):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, db.ErrTransient):
		s.logger.Warn("store unavailable", "error", err)
		s.writeError(w, http.StatusServiceUnavailable, "store unavailable")
	default:
		s.logger.Error("store error", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("encode response failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
