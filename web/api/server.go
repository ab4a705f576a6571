// Package api exposes the orchestration engine over HTTP: REST
// operations plus SSE and websocket event streams.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/brandlens/perception-orchestrator/internal/domain"
	"github.com/brandlens/perception-orchestrator/internal/events"
	"github.com/brandlens/perception-orchestrator/internal/gate"
	"github.com/brandlens/perception-orchestrator/internal/store"
)

// Orchestrator is the engine surface the API needs
type Orchestrator interface {
	RunPipeline(ctx context.Context, projectID string, t domain.PipelineType) (*domain.BatchExecution, error)
	RunFullBatch(ctx context.Context, projectID string) (*domain.BatchExecution, error)
	ListExecutions(projectID string) ([]*domain.BatchExecution, error)
	GetExecution(id string) (*domain.BatchExecution, error)
	GenerateReportFromBatch(executionID string) (*domain.Report, error)
	RegeneratePromptSet(projectID string) (*domain.PromptSet, error)
}

// Server is the HTTP API server
type Server struct {
	orch   Orchestrator
	store  *store.Store
	bus    *events.Bus
	gate   *gate.Gate
	addr   string
	router chi.Router
}

// NewServer creates a new API server. The gate may be nil; the status
// endpoint then omits in-flight counts.
func NewServer(orch Orchestrator, st *store.Store, bus *events.Bus, g *gate.Gate, addr string) *Server {
	s := &Server{
		orch:   orch,
		store:  st,
		bus:    bus,
		gate:   g,
		addr:   addr,
		router: chi.NewRouter(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Logger)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)

		r.Route("/projects", func(r chi.Router) {
			r.Get("/", s.handleListProjects)
			r.Put("/{projectID}", s.handleUpsertProject)
			r.Get("/{projectID}", s.handleGetProject)
			r.Get("/{projectID}/executions", s.handleListExecutions)
			r.Get("/{projectID}/reports", s.handleListReports)
			r.Post("/{projectID}/batch", s.handleRunFullBatch)
			r.Post("/{projectID}/pipelines/{pipelineType}", s.handleRunPipeline)
			r.Get("/{projectID}/promptset", s.handleGetPromptSet)
			r.Post("/{projectID}/promptset", s.handleRegeneratePromptSet)
		})

		r.Route("/executions", func(r chi.Router) {
			r.Get("/{executionID}", s.handleGetExecution)
			r.Get("/{executionID}/events", s.handleExecutionEvents)
			r.Post("/{executionID}/report", s.handleGenerateReport)
		})

		r.Get("/reports/{reportID}", s.handleGetReport)
		r.Get("/events", s.handleGlobalEvents)
		r.Get("/ws", s.handleWebSocket)
	})
}

// Handler returns the root handler, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server and blocks until the context ends
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func writeJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}
