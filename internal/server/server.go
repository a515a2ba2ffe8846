// Package server exposes the chat API, the viewer websocket and operational endpoints over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/raphaelgruber/chorus/internal/broadcast"
	"github.com/raphaelgruber/chorus/internal/metrics"
	"github.com/raphaelgruber/chorus/internal/models"
	"github.com/raphaelgruber/chorus/internal/pipeline"
	"github.com/raphaelgruber/chorus/internal/service"
)

// Store is the persistence the API needs.
type Store interface {
	InsertMessage(ctx context.Context, roomID, userID, content string) (*models.Message, error)
	QueryMessages(ctx context.Context, roomID string, limit int, desc bool) ([]models.Message, error)
	JoinRoom(ctx context.Context, roomID, userID string) (*models.Participant, error)
	LeaveRoom(ctx context.Context, roomID, userID string) error
	QueryParticipants(ctx context.Context, roomID string) ([]models.Participant, error)
	QueryAgents(ctx context.Context) ([]models.Agent, error)
	UpsertAgent(ctx context.Context, in models.AgentInput) (*models.Agent, error)
	QueryTemplates(ctx context.Context) ([]models.Template, error)
	GetTemplate(ctx context.Context, id string) (*models.Template, error)
	UpsertTemplate(ctx context.Context, in models.TemplateInput) (*models.Template, error)
	GetGeneration(ctx context.Context, id string) (*models.Generation, error)
}

// Personas is the persona cache.
type Personas interface {
	Reload(ctx context.Context) error
	All() []models.Agent
	LoadedAt() time.Time
}

// Rooms reports decision engine state.
type Rooms interface {
	Rooms() []string
}

// Deps are the collaborators of the server. Hub, Orchestrator, Rooms and Collector may be nil.
type Deps struct {
	Store        Store
	Personas     Personas
	Renderer     *pipeline.Renderer
	Hub          *broadcast.Hub
	Orchestrator *service.Orchestrator
	Rooms        Rooms
	Collector    *metrics.Collector
}

// Server serves the HTTP API.
type Server struct {
	deps     Deps
	router   chi.Router
	validate *validator.Validate
	logger   *slog.Logger
}

// New creates a server with all routes registered.
func New(deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Renderer == nil {
		deps.Renderer = pipeline.NewRenderer()
	}
	s := &Server{
		deps:     deps,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger.With("component", "http"),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(LoggingMiddleware(s.logger))
	r.Use(chimw.Recoverer)

	r.Get("/health", s.health)
	r.Get("/stats", s.stats)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws/{roomID}", s.websocket)

	r.Route("/api", func(r chi.Router) {
		r.Get("/agents", s.listAgents)
		r.Post("/agents", s.upsertAgent)
		r.Post("/agents/reload", s.reloadAgents)

		r.Get("/templates", s.listTemplates)
		r.Post("/templates", s.upsertTemplate)
		r.Get("/templates/{id}", s.getTemplate)

		r.Route("/rooms/{roomID}", func(r chi.Router) {
			r.Get("/messages", s.listMessages)
			r.Post("/messages", s.postMessage)
			r.Get("/participants", s.listParticipants)
			r.Post("/participants", s.joinRoom)
			r.Delete("/participants/{userID}", s.leaveRoom)
		})

		r.Get("/generations/{id}", s.getGeneration)
		r.Get("/generations/{id}/render", s.renderGeneration)

		r.Get("/tasks", s.listTasks)
	})

	return r
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if s.deps.Hub != nil {
		s.deps.Hub.Close()
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http: %w", err)
	}
	return nil
}
